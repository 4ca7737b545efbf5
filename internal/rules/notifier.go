package rules

import (
	"context"
	"time"
)

// EventKind classifies a notification.
type EventKind string

const (
	EventAdded    EventKind = "added"
	EventRemoved  EventKind = "removed"
	EventEnabled  EventKind = "enabled"
	EventDisabled EventKind = "disabled"
	EventOrphaned EventKind = "orphaned"
	EventFailed   EventKind = "failed"
)

// Event is something an operator may want to hear about.
type Event struct {
	Kind    EventKind
	Rule    string
	Message string
	At      time.Time
}

// Notifier delivers events. Delivery failures never fail an operation.
type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

// NopNotifier drops every event.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Event) error { return nil }
