package cron

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aatumaykin/ruletoggle/internal/codec"
)

// JobType represents the type of a job.
type JobType string

const (
	// JobTypeRecurring runs on every occurrence of Schedule.
	JobTypeRecurring JobType = "recurring"
	// JobTypeOneshot runs once at ExecuteAt and is then dropped.
	JobTypeOneshot JobType = "oneshot"
)

// Job is one scheduled transition.
type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Schedule  string          `json:"schedule,omitempty"`
	ExecuteAt *time.Time      `json:"execute_at,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

const (
	// PayloadSchema is the payload layout this build writes and reads.
	PayloadSchema = 1
	// KindToggleRule is the only job kind.
	KindToggleRule = "toggle-rule"
)

// ErrUnsupportedPayload is returned for payloads of another schema or kind.
var ErrUnsupportedPayload = errors.New("unsupported job payload")

// Payload describes a rule transition.
type Payload struct {
	Schema          int         `json:"schema"`
	Kind            string      `json:"kind"`
	RuleName        string      `json:"rule_name"`
	Recurrence      string      `json:"recurrence"`
	DurationSeconds int64       `json:"duration_seconds"`
	TargetState     codec.State `json:"target_state"`
}

// NewPayload builds a current-schema toggle payload.
func NewPayload(name, recurrence string, seconds int64, target codec.State) Payload {
	return Payload{
		Schema:          PayloadSchema,
		Kind:            KindToggleRule,
		RuleName:        name,
		Recurrence:      recurrence,
		DurationSeconds: seconds,
		TargetState:     target,
	}
}

// Encode marshals p.
func (p Payload) Encode() (json.RawMessage, error) {
	return json.Marshal(p)
}

// DecodePayload parses raw and checks schema and kind.
func DecodePayload(raw []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrUnsupportedPayload, err)
	}
	if p.Schema != PayloadSchema {
		return Payload{}, fmt.Errorf("%w: schema %d", ErrUnsupportedPayload, p.Schema)
	}
	if p.Kind != KindToggleRule {
		return Payload{}, fmt.Errorf("%w: kind %q", ErrUnsupportedPayload, p.Kind)
	}
	if p.RuleName == "" {
		return Payload{}, fmt.Errorf("%w: empty rule name", ErrUnsupportedPayload)
	}
	return p, nil
}

// NewToggleJob builds a job carrying p.
func NewToggleJob(typ JobType, schedule string, executeAt *time.Time, p Payload) (Job, error) {
	raw, err := p.Encode()
	if err != nil {
		return Job{}, err
	}
	return Job{Type: typ, Schedule: schedule, ExecuteAt: executeAt, Payload: raw}, nil
}
