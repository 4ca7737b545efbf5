package rules

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aatumaykin/ruletoggle/internal/codec"
	"github.com/aatumaykin/ruletoggle/internal/cron"
	"github.com/aatumaykin/ruletoggle/internal/document"
	"github.com/aatumaykin/ruletoggle/internal/duration"
	"github.com/aatumaykin/ruletoggle/internal/logger"
	"github.com/aatumaykin/ruletoggle/internal/ruleblock"
)

// AddRequest is the form submitted to create a rule.
type AddRequest struct {
	Name       string `json:"name"`
	Recurrence string `json:"recurrence"`
	Duration   string `json:"duration"`
	Body       string `json:"body"`
}

// AddResult describes a created rule.
type AddResult struct {
	Name            string    `json:"name"`
	Recurrence      string    `json:"recurrence"`
	DurationSeconds int64     `json:"duration_seconds"`
	EnabledNow      bool      `json:"enabled_now"`
	NextEnable      time.Time `json:"next_enable"`
	// DisableAt closes the window opened by the previous occurrence.
	DisableAt    time.Time `json:"disable_at"`
	EnableJobID  string    `json:"enable_job_id"`
	DisableJobID string    `json:"disable_job_id,omitempty"`
}

// window is a validated request.
type window struct {
	name       string
	recurrence string
	seconds    int64
	next       time.Time
	disableAt  time.Time
	enabledNow bool
}

// Add validates req, writes the rule block and schedules its jobs. On
// failure the returned *OperationError carries req.
func (m *Manager) Add(ctx context.Context, req AddRequest) (*AddResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, err := m.add(ctx, req)
	if err != nil {
		m.logger.Warn("add rule failed",
			logger.Field{Key: "rule", Value: req.Name},
			logger.Field{Key: "error", Value: err.Error()})
		return nil, &OperationError{Op: "add", Input: &req, Err: err}
	}
	m.refreshGauge(ctx)
	return res, nil
}

func (m *Manager) validate(req AddRequest) (window, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" || strings.ContainsAny(name, "\r\n") {
		return window{}, fmt.Errorf("%w: %q", ErrInvalidName, req.Name)
	}

	seconds, ok := duration.ParseSeconds(req.Duration)
	if !ok {
		return window{}, fmt.Errorf("%w: %q", ErrInvalidDuration, req.Duration)
	}

	rec := strings.TrimSpace(req.Recurrence)
	now := m.clock()
	if !m.eval.Validate(rec, now) {
		return window{}, fmt.Errorf("%w: %q", ErrInvalidRecurrence, req.Recurrence)
	}
	next, err := m.eval.Next(rec, now)
	if err != nil {
		return window{}, err
	}
	prev, err := m.eval.Previous(rec, now)
	if err != nil {
		return window{}, err
	}

	disableAt := prev.Add(time.Duration(seconds) * time.Second)
	if disableAt.After(next) {
		return window{}, fmt.Errorf("%w: window closes at %s, after the next enable at %s",
			ErrInfeasibleWindow, disableAt.Format(time.RFC3339), next.Format(time.RFC3339))
	}

	// Feasibility is judged on the gap before the next occurrence only.
	if after, err := m.eval.Next(rec, next); err == nil {
		if gap := after.Sub(next); time.Duration(seconds)*time.Second > gap {
			m.logger.Warn("window overruns a later occurrence of an irregular schedule",
				logger.Field{Key: "rule", Value: name},
				logger.Field{Key: "recurrence", Value: rec},
				logger.Field{Key: "gap", Value: gap.String()})
		}
	}

	return window{
		name:       name,
		recurrence: rec,
		seconds:    seconds,
		next:       next,
		disableAt:  disableAt,
		enabledNow: now.Before(disableAt),
	}, nil
}

func (m *Manager) add(ctx context.Context, req AddRequest) (*AddResult, error) {
	w, err := m.validate(req)
	if err != nil {
		return nil, err
	}

	byName, _, err := m.ruleJobs(ctx)
	if err != nil {
		return nil, err
	}
	page, err := m.docs.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch document: %w", err)
	}
	original := page.Content()

	if len(byName[w.name]) > 0 {
		return nil, fmt.Errorf("%w: %q is scheduled", ErrNameConflict, w.name)
	}
	if ruleblock.Contains(original, m.codec.BorderMarkers(w.name)) {
		return nil, fmt.Errorf("%w: %q is in the document", ErrNameConflict, w.name)
	}

	state := codec.Disabled
	if w.enabledNow {
		state = codec.Enabled
	}
	rendered := m.codec.RenderBlock(codec.Rule{
		Name:       w.name,
		Recurrence: w.recurrence,
		Seconds:    w.seconds,
		Body:       req.Body,
	}, state)

	if err := m.update(ctx, page, ruleblock.Insert(original, rendered.Validation), m.describe("validate", w.name)); err != nil {
		return nil, err
	}

	if rendered.Block != rendered.Validation {
		if err := m.update(ctx, page, ruleblock.Insert(original, rendered.Block), m.describe("add", w.name)); err != nil {
			m.rollback(ctx, page, original, nil, w.name)
			return nil, err
		}
	}

	res := &AddResult{
		Name:            w.name,
		Recurrence:      w.recurrence,
		DurationSeconds: w.seconds,
		EnabledNow:      w.enabledNow,
		NextEnable:      w.next,
		DisableAt:       w.disableAt,
	}

	enable := cron.NewPayload(w.name, w.recurrence, w.seconds, codec.Enabled)
	res.EnableJobID, err = m.scheduleToggle(ctx, cron.JobTypeRecurring, nil, enable)
	if err != nil {
		m.rollback(ctx, page, original, nil, w.name)
		return nil, err
	}

	if w.enabledNow {
		disable := cron.NewPayload(w.name, w.recurrence, w.seconds, codec.Disabled)
		at := w.disableAt
		res.DisableJobID, err = m.scheduleToggle(ctx, cron.JobTypeOneshot, &at, disable)
		if err != nil {
			m.rollback(ctx, page, original, []string{res.EnableJobID}, w.name)
			return nil, err
		}
	}

	m.metrics.RuleAdded()
	m.logger.Info("rule added",
		logger.Field{Key: "rule", Value: w.name},
		logger.Field{Key: "recurrence", Value: w.recurrence},
		logger.Field{Key: "duration_seconds", Value: w.seconds},
		logger.Field{Key: "enabled_now", Value: w.enabledNow})
	m.notify(ctx, EventAdded, w.name, "rule %s added, next enable at %s", w.name, w.next.Format(time.RFC3339))
	return res, nil
}

// rollback undoes a partially applied add. It is best effort: failures are
// logged and the original error is what the caller sees.
func (m *Manager) rollback(ctx context.Context, page document.Page, original string, jobIDs []string, name string) {
	for _, id := range jobIDs {
		if err := m.jobs.Cancel(ctx, id); err != nil {
			m.logger.Error("rollback: failed to cancel job", err,
				logger.Field{Key: "rule", Value: name},
				logger.Field{Key: "job_id", Value: id})
		}
	}
	if page.Content() == original {
		return
	}
	if err := page.Update(ctx, original, m.describe("roll back", name)); err != nil {
		m.metrics.DocumentWrite(err)
		m.logger.Error("rollback: failed to restore document", err,
			logger.Field{Key: "rule", Value: name})
		m.notify(ctx, EventFailed, name, "rule %s could not be rolled back, check the document", name)
		return
	}
	m.metrics.DocumentWrite(nil)
	m.logger.Warn("add rolled back", logger.Field{Key: "rule", Value: name})
}
