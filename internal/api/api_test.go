package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatumaykin/ruletoggle/internal/codec"
	"github.com/aatumaykin/ruletoggle/internal/cron"
	"github.com/aatumaykin/ruletoggle/internal/document"
	"github.com/aatumaykin/ruletoggle/internal/kvstore"
	"github.com/aatumaykin/ruletoggle/internal/metrics"
	"github.com/aatumaykin/ruletoggle/internal/rules"
)

const (
	head     = "type: submission\naction: approve"
	ruleBody = "type: comment\naction: filter"
)

// Monday 2026-10-19, outside the Wednesday window.
var monday = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

type testServer struct {
	store *document.MemoryStore
	jobs  *cron.Scheduler
	kv    *kvstore.Memory
	h     *Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	s := &testServer{
		store: document.NewMemoryStore(head),
		jobs:  cron.NewScheduler(nil, nil),
		kv:    kvstore.NewMemory(),
	}
	m := metrics.New("test", prometheus.NewRegistry())
	manager := rules.NewManager(rules.Config{
		Documents: s.store,
		Jobs:      s.jobs,
		Codec:     codec.V020.Bind("ruletoggle"),
		KV:        s.kv,
		Metrics:   m,
		Now:       func() time.Time { return monday },
	})
	s.h = &Handler{Rules: manager, KV: s.kv, Metrics: m}
	return s
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = httptest.NewRequest(method, path, bytes.NewReader(data))
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	rr := httptest.NewRecorder()
	s.h.Router().ServeHTTP(rr, r)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v))
	return v
}

func quietHours() rules.AddRequest {
	return rules.AddRequest{Name: "quiet-hours", Recurrence: "0 0 * * 3", Duration: "1 hour", Body: ruleBody}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rr := s.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, rr)["status"])
}

func TestAddAndListRules(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodPost, "/rules", quietHours())
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	res := decode[rules.AddResult](t, rr)
	assert.Equal(t, "quiet-hours", res.Name)
	assert.Equal(t, int64(3600), res.DurationSeconds)
	assert.False(t, res.EnabledNow)
	assert.Equal(t, time.Date(2026, 10, 21, 0, 0, 0, 0, time.UTC), res.NextEnable)

	rr = s.do(t, http.MethodGet, "/rules", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	list := decode[[]rules.RuleInfo](t, rr)
	require.Len(t, list, 1)
	assert.Equal(t, "quiet-hours", list[0].Name)
	assert.Equal(t, "disabled", list[0].State)
	assert.True(t, list[0].InDocument)
	assert.True(t, list[0].Scheduled)
}

func TestAddRule_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*rules.AddRequest)
		status int
		kind   string
	}{
		{"bad duration", func(r *rules.AddRequest) { r.Duration = "whenever" }, http.StatusBadRequest, "invalid_duration"},
		{"bad recurrence", func(r *rules.AddRequest) { r.Recurrence = "not cron" }, http.StatusBadRequest, "invalid_recurrence"},
		{"infeasible", func(r *rules.AddRequest) { r.Recurrence = "0 0 * * *"; r.Duration = "2 days" }, http.StatusBadRequest, "infeasible_window"},
		{"empty name", func(r *rules.AddRequest) { r.Name = "" }, http.StatusBadRequest, "invalid_name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			req := quietHours()
			tt.mutate(&req)

			rr := s.do(t, http.MethodPost, "/rules", req)
			assert.Equal(t, tt.status, rr.Code)
			resp := decode[ErrorResponse](t, rr)
			assert.Equal(t, tt.kind, resp.Kind)
			require.NotNil(t, resp.Input)
			assert.Equal(t, req, *resp.Input)
			assert.Equal(t, head, s.store.Content())
		})
	}
}

func TestAddRule_Conflict(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/rules", quietHours()).Code)

	rr := s.do(t, http.MethodPost, "/rules", quietHours())
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "name_conflict", decode[ErrorResponse](t, rr).Kind)
}

func TestAddRule_SyntaxRejected(t *testing.T) {
	s := newTestServer(t)
	s.store.SetValidator(document.YAMLValidator{})

	req := quietHours()
	req.Body = "action: [remove"
	rr := s.do(t, http.MethodPost, "/rules", req)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	resp := decode[ErrorResponse](t, rr)
	assert.Equal(t, "syntax_rejected", resp.Kind)
	assert.NotEmpty(t, resp.Reason)
	require.NotNil(t, resp.Input)
	assert.Equal(t, req.Body, resp.Input.Body)
}

func TestAddRule_InternalErrorHidesDetails(t *testing.T) {
	s := newTestServer(t)
	s.store.FailWrites(errors.New("disk on fire"))

	rr := s.do(t, http.MethodPost, "/rules", quietHours())
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	resp := decode[ErrorResponse](t, rr)
	assert.Equal(t, ErrMessageInternal, resp.Error)
	assert.Equal(t, "internal", resp.Kind)
}

func TestAddRule_InvalidJSON(t *testing.T) {
	s := newTestServer(t)
	r := httptest.NewRequest(http.MethodPost, "/rules", strings.NewReader("{"))
	rr := httptest.NewRecorder()
	s.h.Router().ServeHTTP(rr, r)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRemoveRules(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/rules", quietHours()).Code)

	rr := s.do(t, http.MethodDelete, "/rules", map[string][]string{"names": {"quiet-hours", "ghost"}})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	res := decode[rules.RemoveResult](t, rr)
	assert.Equal(t, []string{"quiet-hours"}, res.Removed)
	assert.Equal(t, []string{"ghost"}, res.Missing)
	assert.Len(t, res.CancelledJobs, 1)

	assert.Equal(t, head, s.store.Content())
	jobs, err := s.jobs.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestRemoveRules_RequiresNames(t *testing.T) {
	s := newTestServer(t)
	rr := s.do(t, http.MethodDelete, "/rules", map[string][]string{"names": {}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRemoveRule_ByURL(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/rules", quietHours()).Code)

	rr := s.do(t, http.MethodDelete, "/rules/quiet-hours", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"quiet-hours"}, decode[rules.RemoveResult](t, rr).Removed)
}

func TestRemoveRules_MalformedBlock(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/rules", quietHours()).Code)

	m := codec.V020.Bind("ruletoggle").BorderMarkers("quiet-hours")
	broken := head + "\n---\n" + m.Start + "\n" + ruleBody
	s.store.Set(broken)

	rr := s.do(t, http.MethodDelete, "/rules", map[string][]string{"names": {"quiet-hours"}})
	assert.Equal(t, http.StatusConflict, rr.Code)

	resp := decode[ErrorResponse](t, rr)
	assert.Equal(t, "block_malformed", resp.Kind)
	assert.NotEqual(t, ErrMessageInternal, resp.Error)
	assert.Equal(t, []string{"quiet-hours"}, resp.Names)
	require.NotNil(t, resp.Result)
	assert.Len(t, resp.Result.CancelledJobs, 1)

	assert.Equal(t, broken, s.store.Content())
	jobs, err := s.jobs.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestReconcile(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/rules", quietHours()).Code)
	s.store.Set(head)

	rr := s.do(t, http.MethodPost, "/reconcile", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	res := decode[rules.ReconcileResult](t, rr)
	assert.Equal(t, []string{"quiet-hours"}, res.Rules)
	assert.Len(t, res.CancelledJobs, 1)
}

func TestDebugKV(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, s.kv.Set(ctx, kvstore.KeyVersion, "0.2.0"))
	require.NoError(t, kvstore.SetJSON(ctx, s.kv, kvstore.KeyLastToggle, map[string]string{"rule": "quiet-hours"}))

	rr := s.do(t, http.MethodGet, "/debug/kv", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var rows []struct {
		Key   string          `json:"key"`
		Value json.RawMessage `json:"value"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&rows))
	values := map[string]string{}
	for _, r := range rows {
		values[r.Key] = string(r.Value)
	}
	assert.Equal(t, `"0.2.0"`, values[kvstore.KeyVersion])
	assert.JSONEq(t, `{"rule":"quiet-hours"}`, values[kvstore.KeyLastToggle])
}

func TestDebugHistory(t *testing.T) {
	s := newTestServer(t)
	h := document.NewHistory(filepath.Join(t.TempDir(), "doc.history.jsonl"))
	require.NoError(t, h.Append(document.HistoryEntry{At: monday, Revision: "abc", Reason: "first", Bytes: 3}))
	require.NoError(t, h.Append(document.HistoryEntry{At: monday, Revision: "def", Reason: "second", Bytes: 4}))
	s.h.History = h

	rr := s.do(t, http.MethodGet, "/debug/history?limit=1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	entries := decode[[]document.HistoryEntry](t, rr)
	require.Len(t, entries, 1)
	assert.Equal(t, "second", entries[0].Reason)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/rules", quietHours()).Code)

	rr := s.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "test_rules_added_total 1")
}

func TestRecoverer(t *testing.T) {
	s := newTestServer(t)
	s.h.Rules = nil

	rr := s.do(t, http.MethodGet, "/rules", nil)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, ErrMessageInternal, decode[ErrorResponse](t, rr).Error)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, StatusFor("invalid_duration"))
	assert.Equal(t, http.StatusConflict, StatusFor("revision_conflict"))
	assert.Equal(t, http.StatusConflict, StatusFor("block_malformed"))
	assert.Equal(t, http.StatusUnprocessableEntity, StatusFor("syntax_rejected"))
	assert.Equal(t, http.StatusInternalServerError, StatusFor("internal"))
}
