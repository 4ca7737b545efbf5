// Package rules schedules managed rules: it writes their blocks into the
// shared document and keeps the enable and disable jobs that toggle them.
package rules

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aatumaykin/ruletoggle/internal/codec"
	"github.com/aatumaykin/ruletoggle/internal/cron"
	"github.com/aatumaykin/ruletoggle/internal/document"
	"github.com/aatumaykin/ruletoggle/internal/kvstore"
	"github.com/aatumaykin/ruletoggle/internal/logger"
	"github.com/aatumaykin/ruletoggle/internal/metrics"
	"github.com/aatumaykin/ruletoggle/internal/recurrence"
	"github.com/aatumaykin/ruletoggle/internal/retry"
)

// JobStore is the part of the scheduler the manager needs.
type JobStore interface {
	Schedule(ctx context.Context, job cron.Job) (string, error)
	Cancel(ctx context.Context, id string) error
	List(ctx context.Context) ([]cron.Job, error)
}

// Config wires a Manager. Documents, Jobs and Codec are required.
type Config struct {
	Documents  document.Store
	Jobs       JobStore
	Codec      codec.Codec
	Recurrence *recurrence.Evaluator
	KV         kvstore.Store
	Notifier   Notifier
	Metrics    *metrics.Metrics
	Now        func() time.Time
	Logger     *logger.Logger
	// DisableRetry governs scheduling the disable job after an enable.
	// Defaults to two attempts 250ms apart.
	DisableRetry retry.Config
}

// Manager runs every rule operation to completion before starting the next.
type Manager struct {
	docs     document.Store
	jobs     JobStore
	codec    codec.Codec
	eval     *recurrence.Evaluator
	kv       kvstore.Store
	notifier Notifier
	metrics  *metrics.Metrics
	now      func() time.Time
	logger   *logger.Logger
	retry    retry.Config

	mu sync.Mutex
}

// NewManager creates a manager from cfg.
func NewManager(cfg Config) *Manager {
	m := &Manager{
		docs:     cfg.Documents,
		jobs:     cfg.Jobs,
		codec:    cfg.Codec,
		eval:     cfg.Recurrence,
		kv:       cfg.KV,
		notifier: cfg.Notifier,
		metrics:  cfg.Metrics,
		now:      cfg.Now,
		logger:   cfg.Logger,
		retry:    cfg.DisableRetry,
	}
	if m.retry.MaxAttempts == 0 {
		m.retry = retry.Config{MaxAttempts: 2, InitialBackoff: 250 * time.Millisecond}
	}
	if m.retry.Retryable == nil {
		m.retry.Retryable = func(err error) bool {
			return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		}
	}
	if m.eval == nil {
		m.eval = recurrence.New()
	}
	if m.notifier == nil {
		m.notifier = NopNotifier{}
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.logger == nil {
		m.logger = logger.Discard()
	}
	m.logger = m.logger.Component("rules")
	return m
}

// Codec is the codec blocks are written with.
func (m *Manager) Codec() codec.Codec { return m.codec }

func (m *Manager) clock() time.Time { return m.now().UTC() }

// update writes content through page and records the outcome.
func (m *Manager) update(ctx context.Context, page document.Page, content, reason string) error {
	err := page.Update(ctx, content, reason)
	m.metrics.DocumentWrite(err)
	if err != nil {
		m.logger.Error("document update failed", err, logger.Field{Key: "reason", Value: reason})
		return fmt.Errorf("failed to update document: %w", err)
	}
	return nil
}

func (m *Manager) describe(action, name string) string {
	return fmt.Sprintf("%s: %s managed rule %s", m.codec.Bot(), action, name)
}

// ruleJob is a scheduled job together with its decoded payload.
type ruleJob struct {
	job     cron.Job
	payload cron.Payload
}

// ruleJobs groups scheduled jobs by rule name. Jobs with payloads this
// build cannot read are logged and left alone.
func (m *Manager) ruleJobs(ctx context.Context) (map[string][]ruleJob, []string, error) {
	jobs, err := m.jobs.List(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	byName := make(map[string][]ruleJob)
	var order []string
	for _, job := range jobs {
		p, err := cron.DecodePayload(job.Payload)
		if err != nil {
			m.logger.Warn("skipping job with unreadable payload",
				logger.Field{Key: "job_id", Value: job.ID},
				logger.Field{Key: "error", Value: err.Error()})
			continue
		}
		if _, ok := byName[p.RuleName]; !ok {
			order = append(order, p.RuleName)
		}
		byName[p.RuleName] = append(byName[p.RuleName], ruleJob{job: job, payload: p})
	}
	return byName, order, nil
}

// cancelJobs cancels every job in list. Jobs that already left the
// scheduler count as cancelled.
func (m *Manager) cancelJobs(ctx context.Context, list []ruleJob) ([]string, error) {
	var (
		ids  []string
		errs []error
	)
	for _, rj := range list {
		err := m.jobs.Cancel(ctx, rj.job.ID)
		if err != nil && !errors.Is(err, cron.ErrJobNotFound) {
			errs = append(errs, fmt.Errorf("cancel job %s: %w", rj.job.ID, err))
			continue
		}
		ids = append(ids, rj.job.ID)
	}
	return ids, errors.Join(errs...)
}

func (m *Manager) scheduleToggle(ctx context.Context, typ cron.JobType, at *time.Time, p cron.Payload) (string, error) {
	schedule := ""
	if typ == cron.JobTypeRecurring {
		schedule = p.Recurrence
	}
	job, err := cron.NewToggleJob(typ, schedule, at, p)
	if err != nil {
		return "", err
	}
	id, err := m.jobs.Schedule(ctx, job)
	if err != nil {
		return "", fmt.Errorf("failed to schedule %s job for %s: %w", p.TargetState, p.RuleName, err)
	}
	return id, nil
}

func (m *Manager) notify(ctx context.Context, kind EventKind, rule, format string, args ...any) {
	e := Event{Kind: kind, Rule: rule, Message: fmt.Sprintf(format, args...), At: m.clock()}
	if err := m.notifier.Notify(ctx, e); err != nil {
		m.logger.Warn("notification failed",
			logger.Field{Key: "kind", Value: string(kind)},
			logger.Field{Key: "error", Value: err.Error()})
	}
}

func (m *Manager) snapshot(ctx context.Context, key string, v any) {
	if m.kv == nil {
		return
	}
	if err := kvstore.SetJSON(ctx, m.kv, key, v); err != nil {
		m.logger.Warn("failed to store snapshot",
			logger.Field{Key: "key", Value: key},
			logger.Field{Key: "error", Value: err.Error()})
	}
}

func (m *Manager) refreshGauge(ctx context.Context) {
	if m.metrics == nil {
		return
	}
	byName, _, err := m.ruleJobs(ctx)
	if err != nil {
		return
	}
	m.metrics.SetManagedRules(len(byName))
}
