package rules

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aatumaykin/ruletoggle/internal/codec"
	"github.com/aatumaykin/ruletoggle/internal/cron"
	"github.com/aatumaykin/ruletoggle/internal/kvstore"
	"github.com/aatumaykin/ruletoggle/internal/logger"
	"github.com/aatumaykin/ruletoggle/internal/retry"
	"github.com/aatumaykin/ruletoggle/internal/ruleblock"
)

// ToggleSnapshot is stored under kvstore.KeyLastToggle.
type ToggleSnapshot struct {
	Rule        string    `json:"rule"`
	TargetState string    `json:"target_state"`
	Found       bool      `json:"found"`
	Written     bool      `json:"written"`
	DisableAt   time.Time `json:"disable_at,omitempty"`
	At          time.Time `json:"at"`
	Error       string    `json:"error,omitempty"`
}

// HandleJob is the scheduler handler. Errors are logged, not returned.
func (m *Manager) HandleJob(ctx context.Context, job cron.Job) {
	p, err := cron.DecodePayload(job.Payload)
	if err != nil {
		m.logger.Error("cannot run job", err, logger.Field{Key: "job_id", Value: job.ID})
		return
	}
	if err := m.Toggle(ctx, p); err != nil {
		m.logger.Error("toggle failed", err,
			logger.Field{Key: "job_id", Value: job.ID},
			logger.Field{Key: "rule", Value: p.RuleName})
	}
}

// Toggle moves a rule's block to p.TargetState. A block that is no longer
// in the document is skipped. Enabling schedules the matching disable.
func (m *Manager) Toggle(ctx context.Context, p cron.Payload) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := ToggleSnapshot{Rule: p.RuleName, TargetState: p.TargetState.String(), At: m.clock()}
	err := m.toggle(ctx, p, &snap)
	if err != nil {
		snap.Error = err.Error()
		m.notify(ctx, EventFailed, p.RuleName, "rule %s could not be %s: %v", p.RuleName, p.TargetState, err)
	}
	m.snapshot(ctx, kvstore.KeyLastToggle, snap)
	return err
}

func (m *Manager) toggle(ctx context.Context, p cron.Payload, snap *ToggleSnapshot) error {
	page, err := m.docs.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch document: %w", err)
	}

	markers := m.codec.Markers(p.RuleName, p.Recurrence, p.DurationSeconds)
	updated, found, err := ruleblock.Toggle(page.Content(), markers, p.TargetState)
	if errors.Is(err, codec.ErrBlockMalformed) {
		return fmt.Errorf("rule %s: %w", p.RuleName, err)
	}
	if err != nil {
		return err
	}
	if !found {
		m.logger.Warn("rule block not found, skipping toggle",
			logger.Field{Key: "rule", Value: p.RuleName},
			logger.Field{Key: "target_state", Value: p.TargetState.String()})
		return nil
	}
	snap.Found = true

	if updated != page.Content() {
		if err := m.update(ctx, page, updated, m.describe(actionFor(p.TargetState), p.RuleName)); err != nil {
			return err
		}
		snap.Written = true
	}

	m.metrics.Transition(p.TargetState.String())
	m.logger.Info("rule toggled",
		logger.Field{Key: "rule", Value: p.RuleName},
		logger.Field{Key: "state", Value: p.TargetState.String()},
		logger.Field{Key: "written", Value: snap.Written})

	if p.TargetState != codec.Enabled {
		m.notify(ctx, EventDisabled, p.RuleName, "rule %s disabled", p.RuleName)
		return nil
	}

	disableAt := m.clock().Add(time.Duration(p.DurationSeconds) * time.Second)
	disable := cron.NewPayload(p.RuleName, p.Recurrence, p.DurationSeconds, codec.Disabled)
	err = retry.Do(ctx, m.retry, func(ctx context.Context) error {
		_, err := m.scheduleToggle(ctx, cron.JobTypeOneshot, &disableAt, disable)
		return err
	})
	if err != nil {
		// The block stays enabled until the next enable job schedules a disable.
		m.logger.Error("rule enabled without a scheduled disable", err,
			logger.Field{Key: "rule", Value: p.RuleName},
			logger.Field{Key: "disable_at", Value: disableAt})
		return err
	}
	snap.DisableAt = disableAt
	m.notify(ctx, EventEnabled, p.RuleName, "rule %s enabled until %s", p.RuleName, disableAt.Format(time.RFC3339))
	return nil
}

func actionFor(s codec.State) string {
	if s == codec.Enabled {
		return "enable"
	}
	return "disable"
}
