// Package api exposes rule operations over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/aatumaykin/ruletoggle/internal/document"
	"github.com/aatumaykin/ruletoggle/internal/kvstore"
	"github.com/aatumaykin/ruletoggle/internal/logger"
	"github.com/aatumaykin/ruletoggle/internal/metrics"
	"github.com/aatumaykin/ruletoggle/internal/rules"
	"github.com/aatumaykin/ruletoggle/internal/version"
)

// ErrMessageInternal is the generic message for 500 responses.
const ErrMessageInternal = "internal server error"

// RuleService is the part of rules.Manager the handlers call.
type RuleService interface {
	Add(ctx context.Context, req rules.AddRequest) (*rules.AddResult, error)
	List(ctx context.Context) ([]rules.RuleInfo, error)
	Remove(ctx context.Context, names []string) (*rules.RemoveResult, error)
	Reconcile(ctx context.Context) (*rules.ReconcileResult, error)
}

// Handler serves the API.
type Handler struct {
	Rules   RuleService
	KV      kvstore.Store
	History *document.History
	Metrics *metrics.Metrics
	Logger  *logger.Logger
}

// ErrorResponse is the body of every failed request. Result is the partial
// outcome of a failed remove.
type ErrorResponse struct {
	Error  string              `json:"error"`
	Kind   string              `json:"kind,omitempty"`
	Reason string              `json:"reason,omitempty"`
	Input  *rules.AddRequest   `json:"input,omitempty"`
	Names  []string            `json:"names,omitempty"`
	Result *rules.RemoveResult `json:"result,omitempty"`
}

// Router builds the chi router.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(h.requestLog)
	r.Use(h.recoverer)

	r.Get("/healthz", h.Health)

	r.Route("/rules", func(r chi.Router) {
		r.Get("/", h.ListRules)
		r.Post("/", h.AddRule)
		r.Delete("/", h.RemoveRules)
		r.Delete("/{name}", h.RemoveRule)
	})
	r.Post("/reconcile", h.Reconcile)

	r.Get("/debug/kv", h.DebugKV)
	if h.History != nil {
		r.Get("/debug/history", h.DebugHistory)
	}
	if h.Metrics != nil {
		r.Handle("/metrics", h.Metrics.Handler())
	}
	return r
}

func (h *Handler) log() *logger.Logger {
	if h.Logger == nil {
		return logger.Discard()
	}
	return h.Logger
}

// Health reports liveness and the running version.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Status string `json:"status"`
		version.Info
	}{"ok", version.Get()})
}

// ListRules returns every managed rule.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	list, err := h.Rules.List(r.Context())
	if err != nil {
		h.log().Error("list rules failed", err)
		JSONError(w, ErrMessageInternal, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// AddRule creates a rule. Body: {"name", "recurrence", "duration", "body"}.
func (h *Handler) AddRule(w http.ResponseWriter, r *http.Request) {
	var req rules.AddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		JSONError(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	res, err := h.Rules.Add(r.Context(), req)
	if err != nil {
		h.operationError(w, err, ErrorResponse{Input: &req})
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// RemoveRules removes the rules named in {"names": [...]}.
func (h *Handler) RemoveRules(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Names []string `json:"names"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		JSONError(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if len(input.Names) == 0 {
		JSONError(w, "names is required", http.StatusBadRequest)
		return
	}
	h.remove(w, r, input.Names)
}

// RemoveRule removes a single rule by URL name.
func (h *Handler) RemoveRule(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" {
		JSONError(w, "rule name is required", http.StatusBadRequest)
		return
	}
	h.remove(w, r, []string{name})
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request, names []string) {
	res, err := h.Rules.Remove(r.Context(), names)
	if err != nil {
		h.operationError(w, err, ErrorResponse{Names: names, Result: res})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Reconcile cancels jobs whose rule blocks are gone.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	res, err := h.Rules.Reconcile(r.Context())
	if err != nil {
		h.log().Error("reconcile failed", err)
		JSONError(w, ErrMessageInternal, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// DebugKV dumps the key-value store. JSON values are inlined.
func (h *Handler) DebugKV(w http.ResponseWriter, r *http.Request) {
	if h.KV == nil {
		JSONError(w, "key-value store not configured", http.StatusNotFound)
		return
	}
	entries, err := h.KV.All(r.Context())
	if err != nil {
		h.log().Error("kv dump failed", err)
		JSONError(w, ErrMessageInternal, http.StatusInternalServerError)
		return
	}

	type row struct {
		Key       string    `json:"key"`
		Value     any       `json:"value"`
		UpdatedAt time.Time `json:"updated_at"`
	}
	out := make([]row, 0, len(entries))
	for _, e := range entries {
		var v any = e.Value
		if json.Valid([]byte(e.Value)) {
			v = json.RawMessage(e.Value)
		}
		out = append(out, row{Key: e.Key, Value: v, UpdatedAt: e.UpdatedAt})
	}
	writeJSON(w, http.StatusOK, out)
}

// DebugHistory returns recent document writes (query: limit, default 20).
func (h *Handler) DebugHistory(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	entries, err := h.History.Recent(limit)
	if err != nil {
		h.log().Error("history read failed", err)
		JSONError(w, ErrMessageInternal, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// operationError maps a rules error to a status. resp carries what was
// submitted and any partial result.
func (h *Handler) operationError(w http.ResponseWriter, err error, resp ErrorResponse) {
	kind := rules.Kind(err)
	resp.Error = err.Error()
	resp.Kind = kind

	var opErr *rules.OperationError
	if errors.As(err, &opErr) {
		resp.Reason = opErr.Reason()
		if opErr.Input != nil {
			resp.Input = opErr.Input
		}
		if opErr.Names != nil {
			resp.Names = opErr.Names
		}
	}

	status := StatusFor(kind)
	if status == http.StatusInternalServerError {
		h.log().Error("rule operation failed", err)
		resp.Error = ErrMessageInternal
	}
	writeJSON(w, status, resp)
}

// StatusFor maps a rules.Kind value to an HTTP status.
func StatusFor(kind string) int {
	switch kind {
	case "invalid_name", "invalid_duration", "invalid_recurrence", "infeasible_window":
		return http.StatusBadRequest
	case "name_conflict", "revision_conflict", "block_malformed":
		return http.StatusConflict
	case "syntax_rejected":
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// JSONError sends a JSON error response with a single "error" field.
func JSONError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
