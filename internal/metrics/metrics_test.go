package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New("ruletoggle", prometheus.NewRegistry())

	m.RuleAdded()
	m.RulesRemoved(2)
	m.RulesRemoved(0)
	m.Transition("enabled")
	m.Transition("enabled")
	m.Transition("disabled")
	m.ReconcileCancelled(3)
	m.Migration("upgraded")
	m.DocumentWrite(nil)
	m.DocumentWrite(errors.New("rejected"))
	m.SetManagedRules(4)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.rulesAdded))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.rulesRemoved))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.transitions.WithLabelValues("enabled")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("disabled")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.reconcileCancels))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.migrations.WithLabelValues("upgraded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.documentWrites.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.documentWrites.WithLabelValues("error")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.managedRules))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RuleAdded()
		m.Transition("enabled")
		m.DocumentWrite(nil)
		m.SetManagedRules(1)
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := New("ruletoggle", nil)
	m.RuleAdded()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "ruletoggle_rules_added_total 1")
}
