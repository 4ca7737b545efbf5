// Package migration rewrites managed rule blocks when an upgrade changes
// the block format, and records the installed version.
package migration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aatumaykin/ruletoggle/internal/codec"
	"github.com/aatumaykin/ruletoggle/internal/cron"
	"github.com/aatumaykin/ruletoggle/internal/document"
	"github.com/aatumaykin/ruletoggle/internal/kvstore"
	"github.com/aatumaykin/ruletoggle/internal/logger"
	"github.com/aatumaykin/ruletoggle/internal/metrics"
)

// Outcomes recorded in Result.Outcome and the migrations_total metric.
const (
	OutcomeInstalled = "installed"
	OutcomeCurrent   = "current"
	OutcomeUntouched = "untouched"
	OutcomeUnchanged = "unchanged"
	OutcomeUpgraded  = "upgraded"
	OutcomeFailed    = "failed"
)

// JobLister lists scheduled jobs.
type JobLister interface {
	List(ctx context.Context) ([]cron.Job, error)
}

// Coordinator runs install and upgrade hooks.
type Coordinator struct {
	KV        kvstore.Store
	Documents document.Store
	Jobs      JobLister
	Registry  *codec.Registry
	// Current is the running release.
	Current string
	Bot     string
	Metrics *metrics.Metrics
	Logger  *logger.Logger
	Now     func() time.Time
}

// Result describes one upgrade run. It is also stored under
// kvstore.KeyLastMigration.
type Result struct {
	From      string    `json:"from,omitempty"`
	To        string    `json:"to"`
	Outcome   string    `json:"outcome"`
	Migrated  []string  `json:"migrated"`
	Unchanged []string  `json:"unchanged"`
	Missing   []string  `json:"missing"`
	Written   bool      `json:"written"`
	At        time.Time `json:"at"`
}

// Install records the current version on a fresh install.
func (c *Coordinator) Install(ctx context.Context) error {
	if err := c.KV.Set(ctx, kvstore.KeyVersion, c.Current); err != nil {
		return fmt.Errorf("failed to record version: %w", err)
	}
	c.log().Info("version recorded", logger.Field{Key: "version", Value: c.Current})
	return nil
}

// Upgrade migrates blocks written by the installed release to the current
// format and records the current version. Unknown or newer installed
// versions leave the document alone.
func (c *Coordinator) Upgrade(ctx context.Context) (*Result, error) {
	res := &Result{To: c.Current, Migrated: []string{}, Unchanged: []string{}, Missing: []string{}, At: c.clock()}

	installed, ok, err := c.KV.Get(ctx, kvstore.KeyVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to read installed version: %w", err)
	}
	res.From = installed

	switch {
	case !ok:
		res.Outcome = OutcomeInstalled
	case installed == c.Current:
		res.Outcome = OutcomeCurrent
	case !codec.Older(installed, c.Current):
		res.Outcome = OutcomeUntouched
	default:
		if err := c.migrate(ctx, installed, res); err != nil {
			res.Outcome = OutcomeFailed
			c.finish(ctx, res)
			return res, err
		}
	}

	if err := c.Install(ctx); err != nil {
		res.Outcome = OutcomeFailed
		c.finish(ctx, res)
		return res, err
	}
	c.finish(ctx, res)
	return res, nil
}

func (c *Coordinator) migrate(ctx context.Context, installed string, res *Result) error {
	oldFormat, okOld := c.Registry.Lookup(installed)
	newFormat, okNew := c.Registry.Lookup(c.Current)
	if !okOld || !okNew {
		c.log().Warn("no format registered for version, leaving document untouched",
			logger.Field{Key: "from", Value: installed},
			logger.Field{Key: "to", Value: c.Current})
		res.Outcome = OutcomeUntouched
		return nil
	}
	if oldFormat.Version() == newFormat.Version() {
		res.Outcome = OutcomeUnchanged
		return nil
	}
	oldCodec, newCodec := oldFormat.Bind(c.Bot), newFormat.Bind(c.Bot)

	rules, err := c.rules(ctx)
	if err != nil {
		return err
	}

	page, err := c.Documents.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch document: %w", err)
	}
	content := page.Content()

	for _, r := range rules {
		body, err := oldCodec.ExtractBody(content, r.RuleName, r.Recurrence, r.DurationSeconds)
		if err != nil {
			if !errors.Is(err, codec.ErrBlockNotFound) && !errors.Is(err, codec.ErrBlockMalformed) {
				return err
			}
			c.log().Warn("rule block not found in old format, skipping",
				logger.Field{Key: "rule", Value: r.RuleName},
				logger.Field{Key: "error", Value: err.Error()})
			res.Missing = append(res.Missing, r.RuleName)
			continue
		}

		oldBlock := oldCodec.Frame(r.RuleName, r.Recurrence, r.DurationSeconds, body)
		newBlock := newCodec.Frame(r.RuleName, r.Recurrence, r.DurationSeconds, body)
		if oldBlock == newBlock {
			res.Unchanged = append(res.Unchanged, r.RuleName)
			continue
		}
		if !strings.Contains(content, oldBlock) {
			c.log().Warn("rule block was edited by hand, skipping",
				logger.Field{Key: "rule", Value: r.RuleName})
			res.Missing = append(res.Missing, r.RuleName)
			continue
		}
		content = strings.Replace(content, oldBlock, newBlock, 1)
		res.Migrated = append(res.Migrated, r.RuleName)
	}

	if content != page.Content() {
		reason := fmt.Sprintf("%s: migrate managed rules from %s to %s", c.Bot, installed, c.Current)
		err := page.Update(ctx, content, reason)
		c.Metrics.DocumentWrite(err)
		if err != nil {
			return fmt.Errorf("failed to write migrated document: %w", err)
		}
		res.Written = true
	}

	if res.Written {
		res.Outcome = OutcomeUpgraded
	} else {
		res.Outcome = OutcomeUnchanged
	}
	c.log().Info("managed rules migrated",
		logger.Field{Key: "from", Value: installed},
		logger.Field{Key: "to", Value: c.Current},
		logger.Field{Key: "migrated", Value: res.Migrated},
		logger.Field{Key: "missing", Value: res.Missing})
	return nil
}

// rules returns one payload per rule name, preferring the recurring job.
func (c *Coordinator) rules(ctx context.Context) ([]cron.Payload, error) {
	jobs, err := c.Jobs.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	index := make(map[string]int)
	var out []cron.Payload
	for _, job := range jobs {
		p, err := cron.DecodePayload(job.Payload)
		if err != nil {
			c.log().Warn("skipping job with unreadable payload",
				logger.Field{Key: "job_id", Value: job.ID},
				logger.Field{Key: "error", Value: err.Error()})
			continue
		}
		i, seen := index[p.RuleName]
		if !seen {
			index[p.RuleName] = len(out)
			out = append(out, p)
			continue
		}
		if job.Type == cron.JobTypeRecurring {
			out[i] = p
		}
	}
	return out, nil
}

func (c *Coordinator) finish(ctx context.Context, res *Result) {
	c.Metrics.Migration(res.Outcome)
	if err := kvstore.SetJSON(ctx, c.KV, kvstore.KeyLastMigration, res); err != nil {
		c.log().Warn("failed to store migration snapshot", logger.Field{Key: "error", Value: err.Error()})
	}
}

func (c *Coordinator) log() *logger.Logger {
	if c.Logger == nil {
		return logger.Discard()
	}
	return c.Logger
}

func (c *Coordinator) clock() time.Time {
	if c.Now == nil {
		return time.Now().UTC()
	}
	return c.Now().UTC()
}
