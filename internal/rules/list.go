package rules

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aatumaykin/ruletoggle/internal/codec"
	"github.com/aatumaykin/ruletoggle/internal/cron"
)

// Rule states reported by List besides codec states.
const (
	StateMissing   = "missing"
	StateMalformed = "malformed"
)

// RuleInfo is one rule as seen through its jobs and the document.
type RuleInfo struct {
	Name            string     `json:"name"`
	Recurrence      string     `json:"recurrence,omitempty"`
	DurationSeconds int64      `json:"duration_seconds,omitempty"`
	State           string     `json:"state"`
	InDocument      bool       `json:"in_document"`
	Scheduled       bool       `json:"scheduled"`
	NextEnable      *time.Time `json:"next_enable,omitempty"`
	PendingDisable  *time.Time `json:"pending_disable,omitempty"`
	JobIDs          []string   `json:"job_ids"`
}

// List reports every rule that has jobs or a block in the document.
func (m *Manager) List(ctx context.Context) ([]RuleInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byName, order, err := m.ruleJobs(ctx)
	if err != nil {
		return nil, err
	}
	page, err := m.docs.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch document: %w", err)
	}
	content := page.Content()

	for _, name := range m.codec.RuleNames(content) {
		if _, ok := byName[name]; !ok {
			order = append(order, name)
			byName[name] = nil
		}
	}

	now := m.clock()
	out := make([]RuleInfo, 0, len(order))
	for _, name := range order {
		info := RuleInfo{
			Name:       name,
			InDocument: codec.ContainsLine(content, m.codec.Border(name, codec.Start)),
			Scheduled:  len(byName[name]) > 0,
			JobIDs:     []string{},
		}
		for _, rj := range byName[name] {
			info.JobIDs = append(info.JobIDs, rj.job.ID)
			info.Recurrence = rj.payload.Recurrence
			info.DurationSeconds = rj.payload.DurationSeconds
			switch rj.job.Type {
			case cron.JobTypeRecurring:
				if next, err := m.eval.Next(rj.payload.Recurrence, now); err == nil {
					info.NextEnable = &next
				}
			case cron.JobTypeOneshot:
				if rj.payload.TargetState == codec.Disabled && rj.job.ExecuteAt != nil {
					at := *rj.job.ExecuteAt
					if info.PendingDisable == nil || at.Before(*info.PendingDisable) {
						info.PendingDisable = &at
					}
				}
			}
		}
		info.State = m.stateOf(content, info)
		out = append(out, info)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// stateOf reads the comment state between the borders. Header lines are
// comments themselves, so they never make a block look enabled.
func (m *Manager) stateOf(content string, info RuleInfo) string {
	if !info.InDocument {
		return StateMissing
	}
	mk := m.codec.BorderMarkers(info.Name)
	_, rest, _ := codec.CutLine(content, mk.Start)
	body, _, found := codec.CutLine(rest, mk.End)
	if !found {
		return StateMalformed
	}
	return codec.StateOf(body).String()
}
