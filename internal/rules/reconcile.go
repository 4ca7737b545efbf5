package rules

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aatumaykin/ruletoggle/internal/kvstore"
	"github.com/aatumaykin/ruletoggle/internal/logger"
	"github.com/aatumaykin/ruletoggle/internal/ruleblock"
)

// ReconcileResult lists what Reconcile cancelled.
type ReconcileResult struct {
	Rules         []string  `json:"rules"`
	CancelledJobs []string  `json:"cancelled_jobs"`
	At            time.Time `json:"at"`
}

// Reconcile cancels the jobs of rules whose block is gone from the
// document. A rule counts as gone only if two consecutive fetches agree.
func (m *Manager) Reconcile(ctx context.Context) (*ReconcileResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, err := m.reconcile(ctx)
	if err != nil {
		return res, &OperationError{Op: "reconcile", Err: err}
	}
	m.snapshot(ctx, kvstore.KeyLastReconcile, res)
	m.refreshGauge(ctx)
	return res, nil
}

func (m *Manager) reconcile(ctx context.Context) (*ReconcileResult, error) {
	res := &ReconcileResult{Rules: []string{}, CancelledJobs: []string{}, At: m.clock()}

	byName, order, err := m.ruleJobs(ctx)
	if err != nil {
		return res, err
	}
	if len(order) == 0 {
		return res, nil
	}

	missing, err := m.missingRules(ctx, order)
	if err != nil || len(missing) == 0 {
		return res, err
	}
	// Confirm against a fresh read before cancelling anything.
	missing, err = m.missingRules(ctx, missing)
	if err != nil {
		return res, err
	}

	var errs []error
	for _, name := range missing {
		ids, err := m.cancelJobs(ctx, byName[name])
		res.CancelledJobs = append(res.CancelledJobs, ids...)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		res.Rules = append(res.Rules, name)
		m.logger.Warn("rule removed from document by hand, jobs cancelled",
			logger.Field{Key: "rule", Value: name},
			logger.Field{Key: "jobs", Value: ids})
		m.notify(ctx, EventOrphaned, name, "rule %s was deleted from the document, its schedule was cancelled", name)
	}
	m.metrics.ReconcileCancelled(len(res.CancelledJobs))
	return res, errors.Join(errs...)
}

func (m *Manager) missingRules(ctx context.Context, names []string) ([]string, error) {
	page, err := m.docs.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch document: %w", err)
	}
	content := page.Content()
	var missing []string
	for _, name := range names {
		if !ruleblock.Contains(content, m.codec.BorderMarkers(name)) {
			missing = append(missing, name)
		}
	}
	return missing, nil
}
