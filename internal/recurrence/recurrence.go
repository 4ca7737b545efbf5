// Package recurrence answers "when is the next / previous occurrence" for
// cron-style recurrence expressions. Expressions are evaluated in UTC.
package recurrence

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var (
	// ErrInvalidRecurrence is returned when an expression cannot be parsed.
	ErrInvalidRecurrence = errors.New("invalid recurrence expression")

	// ErrNoOccurrence is returned when an expression parses but has no
	// occurrence in the searched range. It wraps ErrInvalidRecurrence.
	ErrNoOccurrence = fmt.Errorf("%w: no occurrence in range", ErrInvalidRecurrence)
)

// maxLookback bounds the backwards search in Previous. Eight years covers
// leap-day-only schedules.
const maxLookback = 8 * 366 * 24 * time.Hour

// visualizerBase is a public page that explains an expression to humans.
const visualizerBase = "https://crontab.guru/#"

// Evaluator parses and evaluates recurrence expressions.
type Evaluator struct {
	parser   cron.Parser
	location *time.Location
}

// New returns an evaluator accepting 5-field expressions, an optional leading
// seconds field, and calendar descriptors such as @daily. @every is rejected.
func New() *Evaluator {
	return &Evaluator{
		parser:   cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		location: time.UTC,
	}
}

// Validate reports whether expr parses and has an occurrence after from.
func (e *Evaluator) Validate(expr string, from time.Time) bool {
	sched, err := e.parse(expr)
	if err != nil {
		return false
	}
	return !sched.Next(from).IsZero()
}

// Next returns the first occurrence strictly after from.
func (e *Evaluator) Next(expr string, from time.Time) (time.Time, error) {
	sched, err := e.parse(expr)
	if err != nil {
		return time.Time{}, err
	}
	next := sched.Next(from)
	if next.IsZero() {
		return time.Time{}, ErrNoOccurrence
	}
	return next.In(e.location), nil
}

// Previous returns the last occurrence strictly before from.
//
// robfig/cron only iterates forwards, so the search widens a window ending
// at from (1s, 2s, 4s, ...) until the window holds an occurrence, then walks
// forward inside it and keeps the last hit.
func (e *Evaluator) Previous(expr string, from time.Time) (time.Time, error) {
	sched, err := e.parse(expr)
	if err != nil {
		return time.Time{}, err
	}

	for window := time.Second; window <= maxLookback; window *= 2 {
		var last time.Time
		for t := sched.Next(from.Add(-window)); !t.IsZero() && t.Before(from); t = sched.Next(t) {
			last = t
		}
		if !last.IsZero() {
			return last.In(e.location), nil
		}
	}
	return time.Time{}, ErrNoOccurrence
}

// VisualizerURL links to a human-readable explanation of expr.
func VisualizerURL(expr string) string {
	return visualizerBase + strings.ReplaceAll(strings.TrimSpace(expr), " ", "_")
}

func (e *Evaluator) parse(expr string) (cron.Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrInvalidRecurrence)
	}
	if strings.HasPrefix(expr, "TZ=") || strings.HasPrefix(expr, "CRON_TZ=") {
		return nil, fmt.Errorf("%w: time zone prefixes are not supported, expressions run in UTC", ErrInvalidRecurrence)
	}
	sched, err := e.parser.Parse("CRON_TZ=UTC " + expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecurrence, err)
	}
	// @every counts from whenever it is evaluated, so it has no previous
	// occurrence to anchor a window on.
	if _, ok := sched.(cron.ConstantDelaySchedule); ok {
		return nil, fmt.Errorf("%w: @every intervals are not supported, use a calendar expression", ErrInvalidRecurrence)
	}
	return sched, nil
}
