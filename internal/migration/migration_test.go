package migration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatumaykin/ruletoggle/internal/codec"
	"github.com/aatumaykin/ruletoggle/internal/cron"
	"github.com/aatumaykin/ruletoggle/internal/document"
	"github.com/aatumaykin/ruletoggle/internal/kvstore"
	"github.com/aatumaykin/ruletoggle/internal/ruleblock"
)

const (
	bot      = "ruletoggle"
	head     = "type: submission\naction: approve"
	ruleBody = "type: comment\naction: filter"
)

type rule struct {
	name  string
	rec   string
	secs  int64
	state codec.State
}

var testRules = []rule{
	{"quiet-hours", "0 0 * * 3", 30, codec.Enabled},
	{"night", "0 22 * * *", 3600, codec.Disabled},
}

func render(f codec.Format, rules []rule) string {
	doc := head
	c := f.Bind(bot)
	for _, r := range rules {
		doc = ruleblock.Insert(doc, c.RenderBlock(codec.Rule{Name: r.name, Recurrence: r.rec, Seconds: r.secs, Body: ruleBody}, r.state).Block)
	}
	return doc
}

func schedule(t *testing.T, jobs *cron.Scheduler, rules ...rule) {
	t.Helper()
	ctx := context.Background()
	for _, r := range rules {
		job, err := cron.NewToggleJob(cron.JobTypeRecurring, r.rec, nil, cron.NewPayload(r.name, r.rec, r.secs, codec.Enabled))
		require.NoError(t, err)
		_, err = jobs.Schedule(ctx, job)
		require.NoError(t, err)

		if r.state == codec.Enabled {
			at := time.Date(2026, 10, 21, 0, 0, 30, 0, time.UTC)
			job, err := cron.NewToggleJob(cron.JobTypeOneshot, "", &at, cron.NewPayload(r.name, r.rec, r.secs, codec.Disabled))
			require.NoError(t, err)
			_, err = jobs.Schedule(ctx, job)
			require.NoError(t, err)
		}
	}
}

func newCoordinator(store document.Store, kv kvstore.Store, jobs JobLister, registry *codec.Registry, current string) *Coordinator {
	return &Coordinator{
		KV:        kv,
		Documents: store,
		Jobs:      jobs,
		Registry:  registry,
		Current:   current,
		Bot:       bot,
	}
}

func version(t *testing.T, kv kvstore.Store) string {
	t.Helper()
	v, ok, err := kv.Get(context.Background(), kvstore.KeyVersion)
	require.NoError(t, err)
	require.True(t, ok)
	return v
}

func TestUpgrade_FreshInstall(t *testing.T) {
	store := document.NewMemoryStore(head)
	kv := kvstore.NewMemory()
	c := newCoordinator(store, kv, cron.NewScheduler(nil, nil), codec.DefaultRegistry(), "0.2.0")

	res, err := c.Upgrade(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeInstalled, res.Outcome)
	assert.Equal(t, "0.2.0", version(t, kv))
	assert.Empty(t, store.Writes())
}

func TestUpgrade_RewritesOldBlocks(t *testing.T) {
	store := document.NewMemoryStore(render(codec.V010, testRules))
	kv := kvstore.NewMemory()
	require.NoError(t, kv.Set(context.Background(), kvstore.KeyVersion, "0.1.0"))

	jobs := cron.NewScheduler(nil, nil)
	schedule(t, jobs, testRules...)
	schedule(t, jobs, rule{"vanished", "0 1 * * *", 60, codec.Disabled})

	c := newCoordinator(store, kv, jobs, codec.DefaultRegistry(), "0.2.0")
	res, err := c.Upgrade(context.Background())
	require.NoError(t, err)

	assert.Equal(t, OutcomeUpgraded, res.Outcome)
	assert.Equal(t, "0.1.0", res.From)
	assert.ElementsMatch(t, []string{"quiet-hours", "night"}, res.Migrated)
	assert.Equal(t, []string{"vanished"}, res.Missing)
	assert.True(t, res.Written)

	assert.Equal(t, render(codec.V020, testRules), store.Content())
	assert.Len(t, store.Writes(), 1)
	assert.Equal(t, "0.2.0", version(t, kv))

	var snap Result
	ok, err := kvstore.GetJSON(context.Background(), kv, kvstore.KeyLastMigration, &snap)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, OutcomeUpgraded, snap.Outcome)
}

func TestUpgrade_IdenticalHeadersDoNotRewrite(t *testing.T) {
	header := func(rec string, secs int64) []string {
		return []string{"Enabled on " + rec, "for a while"}
	}
	registry, err := codec.NewRegistry(codec.NewFormat("1.0.0", header), codec.NewFormat("1.1.0", header))
	require.NoError(t, err)

	old, _ := registry.Lookup("1.0.0")
	store := document.NewMemoryStore(render(old, testRules))
	kv := kvstore.NewMemory()
	require.NoError(t, kv.Set(context.Background(), kvstore.KeyVersion, "1.0.0"))
	jobs := cron.NewScheduler(nil, nil)
	schedule(t, jobs, testRules...)

	c := newCoordinator(store, kv, jobs, registry, "1.1.0")
	res, err := c.Upgrade(context.Background())
	require.NoError(t, err)

	assert.Equal(t, OutcomeUnchanged, res.Outcome)
	assert.ElementsMatch(t, []string{"quiet-hours", "night"}, res.Unchanged)
	assert.Empty(t, store.Writes())
	assert.Equal(t, "1.1.0", version(t, kv))
}

func TestUpgrade_LeavesUnknownVersionsAlone(t *testing.T) {
	for _, installed := range []string{"not-a-version", "9.0.0", "0.0.1"} {
		t.Run(installed, func(t *testing.T) {
			doc := render(codec.V010, testRules)
			store := document.NewMemoryStore(doc)
			kv := kvstore.NewMemory()
			require.NoError(t, kv.Set(context.Background(), kvstore.KeyVersion, installed))
			jobs := cron.NewScheduler(nil, nil)
			schedule(t, jobs, testRules...)

			c := newCoordinator(store, kv, jobs, codec.DefaultRegistry(), "0.2.0")
			res, err := c.Upgrade(context.Background())
			require.NoError(t, err)

			assert.Equal(t, OutcomeUntouched, res.Outcome)
			assert.Equal(t, doc, store.Content())
			assert.Equal(t, "0.2.0", version(t, kv))
		})
	}
}

func TestUpgrade_SameVersion(t *testing.T) {
	store := document.NewMemoryStore(head)
	kv := kvstore.NewMemory()
	require.NoError(t, kv.Set(context.Background(), kvstore.KeyVersion, "0.2.0"))

	c := newCoordinator(store, kv, cron.NewScheduler(nil, nil), codec.DefaultRegistry(), "0.2.0")
	res, err := c.Upgrade(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeCurrent, res.Outcome)
	assert.Empty(t, store.Writes())
}

func TestUpgrade_WriteFailureKeepsOldVersion(t *testing.T) {
	store := document.NewMemoryStore(render(codec.V010, testRules))
	store.FailWrites(errors.New("connection reset"))
	kv := kvstore.NewMemory()
	require.NoError(t, kv.Set(context.Background(), kvstore.KeyVersion, "0.1.0"))
	jobs := cron.NewScheduler(nil, nil)
	schedule(t, jobs, testRules...)

	c := newCoordinator(store, kv, jobs, codec.DefaultRegistry(), "0.2.0")
	res, err := c.Upgrade(context.Background())
	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, "0.1.0", version(t, kv))
}

func TestInstall(t *testing.T) {
	kv := kvstore.NewMemory()
	c := newCoordinator(document.NewMemoryStore(""), kv, cron.NewScheduler(nil, nil), codec.DefaultRegistry(), "0.2.0")

	require.NoError(t, c.Install(context.Background()))
	assert.Equal(t, "0.2.0", version(t, kv))
}
