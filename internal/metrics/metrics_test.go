package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Counters(t *testing.T) {
	r := NewRegistry()

	r.RecordCacheHit("quote")
	r.RecordCacheHit("quote")
	r.RecordCacheMiss("quote")
	r.RecordSymbol("qualified")
	r.ObserveStage("history", 10*time.Millisecond, errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(r.CacheHits.WithLabelValues("quote")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.CacheMisses.WithLabelValues("quote")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.SymbolsTotal.WithLabelValues("qualified")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.StageErrors.WithLabelValues("history")))
}

func TestRegistry_ScanStarted(t *testing.T) {
	r := NewRegistry()

	done := r.ScanStarted()
	assert.Equal(t, 1.0, testutil.ToFloat64(r.ActiveScans))

	done(OutcomeOK, 3)
	assert.Equal(t, 0.0, testutil.ToFloat64(r.ActiveScans))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.ScansTotal.WithLabelValues(OutcomeOK)))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.Qualified))
}

func TestRegistry_NilSafe(t *testing.T) {
	var r *Registry

	assert.NotPanics(t, func() {
		r.RecordCacheHit("quote")
		r.RecordCacheMiss("quote")
		r.RecordSymbol("failed")
		r.ObserveStage("quote", time.Second, nil)
		r.ScanStarted()(OutcomeError, 0)
	})
}

func TestRegistry_Handler(t *testing.T) {
	r := NewRegistry()
	r.RecordCacheHit("float")

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `gapscan_cache_hits_total{kind="float"} 1`))
}
