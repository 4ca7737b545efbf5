package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatumaykin/ruletoggle/internal/config"
	"github.com/aatumaykin/ruletoggle/internal/cron"
	"github.com/aatumaykin/ruletoggle/internal/kvstore"
	"github.com/aatumaykin/ruletoggle/internal/logger"
	"github.com/aatumaykin/ruletoggle/internal/migration"
	"github.com/aatumaykin/ruletoggle/internal/version"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg, err := config.Parse(`
[document]
path = "` + filepath.Join(dir, "doc.yaml") + `"

[storage]
path = "` + filepath.Join(dir, "state") + `"

[watcher]
enabled = false

[api]
listen = "127.0.0.1:0"
`)
	require.NoError(t, err)
	return cfg
}

func post(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func TestApp_Lifecycle(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(cfg.Document.Path, []byte("type: submission\naction: approve"), 0644))

	a := New(cfg, logger.Discard())
	require.NoError(t, a.Initialize(context.Background()))
	base := "http://" + a.Addr()

	resp, err := http.Get(base + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = post(t, base+"/rules", map[string]string{
		"name":       "quiet-hours",
		"recurrence": "0 0 * * 3",
		"duration":   "1 hour",
		"body":       "type: comment\naction: filter",
	})
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	doc, err := os.ReadFile(cfg.Document.Path)
	require.NoError(t, err)
	assert.Contains(t, string(doc), "###### DO NOT EDIT THIS LINE - start ruletoggle managed rule quiet-hours")

	resp, err = http.Get(base + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, a.Shutdown())
	require.NoError(t, a.Shutdown())

	// Jobs survive a restart.
	jobs, err := cron.NewStorage(cfg.JobsDir(), nil).Load()
	require.NoError(t, err)
	assert.NotEmpty(t, jobs)

	b := New(cfg, logger.Discard())
	require.NoError(t, b.Initialize(context.Background()))
	defer b.Shutdown()

	list, err := b.Manager().List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Scheduled)
	assert.True(t, list[0].InDocument)
}

func TestApp_StartupReconcileDropsDeletedRules(t *testing.T) {
	cfg := testConfig(t)

	a := New(cfg, logger.Discard())
	require.NoError(t, a.Initialize(context.Background()))
	resp := post(t, "http://"+a.Addr()+"/rules", map[string]string{
		"name": "quiet-hours", "recurrence": "0 0 * * 3", "duration": "1 hour", "body": "action: filter",
	})
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NoError(t, a.Shutdown())

	// The block is deleted by hand while the daemon is down.
	require.NoError(t, os.WriteFile(cfg.Document.Path, []byte("type: submission"), 0644))

	b := New(cfg, logger.Discard())
	require.NoError(t, b.Initialize(context.Background()))
	defer b.Shutdown()

	list, err := b.Manager().List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestApp_Migrate(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	res, err := New(cfg, logger.Discard()).Migrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, migration.OutcomeInstalled, res.Outcome)

	res, err = New(cfg, logger.Discard()).Migrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, migration.OutcomeCurrent, res.Outcome)

	kv, err := kvstore.Open(kvstore.Config{Path: cfg.KVPath()}, nil)
	require.NoError(t, err)
	defer kv.Close()
	v, ok, err := kv.Get(ctx, kvstore.KeyVersion)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, version.Release(), v)
}

func TestApp_ListenError(t *testing.T) {
	cfg := testConfig(t)
	cfg.API.Listen = "127.0.0.1:99999"

	a := New(cfg, logger.Discard())
	err := a.Run(context.Background())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "failed to listen"))
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	a := New(cfg, logger.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool { return a.Addr() != "" }, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
