package rules

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aatumaykin/ruletoggle/internal/logger"
	"github.com/aatumaykin/ruletoggle/internal/ruleblock"
)

// RemoveResult reports what Remove did per rule.
type RemoveResult struct {
	// Removed lists rules whose block left the document.
	Removed []string `json:"removed"`
	// Missing lists rules that had no block in the document.
	Missing []string `json:"missing"`
	// CancelledJobs lists cancelled job IDs.
	CancelledJobs []string `json:"cancelled_jobs"`
}

// Remove deletes the blocks of names in one document write and cancels
// every job of those rules, whether or not the write succeeded.
func (m *Manager) Remove(ctx context.Context, names []string) (*RemoveResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res := &RemoveResult{Removed: []string{}, Missing: []string{}, CancelledJobs: []string{}}
	names = uniqueNames(names)
	if len(names) == 0 {
		return res, nil
	}

	docErr := m.removeBlocks(ctx, names, res)

	var jobErr error
	byName, _, err := m.ruleJobs(ctx)
	if err != nil {
		jobErr = err
	} else {
		for _, name := range names {
			ids, err := m.cancelJobs(ctx, byName[name])
			res.CancelledJobs = append(res.CancelledJobs, ids...)
			if err != nil {
				jobErr = errors.Join(jobErr, err)
			}
		}
	}

	m.refreshGauge(ctx)

	if err := errors.Join(docErr, jobErr); err != nil {
		return res, &OperationError{Op: "remove", Names: names, Err: err}
	}

	m.metrics.RulesRemoved(len(res.Removed))
	for _, name := range res.Removed {
		m.notify(ctx, EventRemoved, name, "rule %s removed", name)
	}
	m.logger.Info("rules removed",
		logger.Field{Key: "removed", Value: res.Removed},
		logger.Field{Key: "missing", Value: res.Missing},
		logger.Field{Key: "cancelled_jobs", Value: len(res.CancelledJobs)})
	return res, nil
}

// removeBlocks edits the document. A malformed block aborts the write.
func (m *Manager) removeBlocks(ctx context.Context, names []string, res *RemoveResult) error {
	page, err := m.docs.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch document: %w", err)
	}

	content := page.Content()
	var removed, missing []string
	for _, name := range names {
		updated, found, err := ruleblock.Remove(content, m.codec.BorderMarkers(name))
		if err != nil {
			return fmt.Errorf("rule %s: %w", name, err)
		}
		if !found {
			m.logger.Warn("rule block not found, nothing to remove", logger.Field{Key: "rule", Value: name})
			missing = append(missing, name)
			continue
		}
		content = updated
		removed = append(removed, name)
	}

	if len(removed) > 0 {
		if err := m.update(ctx, page, content, m.describe("remove", strings.Join(removed, ", "))); err != nil {
			return err
		}
	}
	res.Removed = append(res.Removed, removed...)
	res.Missing = append(res.Missing, missing...)
	return nil
}

func uniqueNames(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
