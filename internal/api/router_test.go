package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/gapscan/internal/api/handlers"
	"github.com/wonny/gapscan/internal/contracts"
	"github.com/wonny/gapscan/internal/metrics"
	"github.com/wonny/gapscan/internal/resultcache"
	"github.com/wonny/gapscan/internal/screener"
	"github.com/wonny/gapscan/pkg/logger"
)

type stubScanner struct {
	report *screener.Report
	err    error
	gotReq screener.Request
}

func (s *stubScanner) Scan(ctx context.Context, req screener.Request) (*screener.Report, error) {
	s.gotReq = req
	return s.report, s.err
}

func newTestRouter(t *testing.T, scanner *stubScanner, gotCriteria *contracts.FilterCriteria) http.Handler {
	t.Helper()
	factory := func(c contracts.FilterCriteria) (handlers.Scanner, error) {
		if gotCriteria != nil {
			*gotCriteria = c
		}
		return scanner, nil
	}
	cache := resultcache.New(resultcache.Options{})
	h := handlers.NewScanHandler(contracts.DefaultCriteria(), factory, cache, time.Second, logger.Nop())
	return NewRouter(h, metrics.NewRegistry(), logger.Nop())
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t, &stubScanner{}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestScan_Results(t *testing.T) {
	scanner := &stubScanner{report: &screener.Report{
		Candidates: []contracts.Ticker{"AAA"},
		Results:    []contracts.ScreenResult{{Ticker: "AAA", Price: 5, Headline: "AAA wins"}},
	}}
	var criteria contracts.FilterCriteria
	router := newTestRouter(t, scanner, &criteria)

	body := bytes.NewBufferString(`{"tickers":["aaa"],"price_max":15}`)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/scan", body))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp handlers.ScanResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "1 qualifying stock found", resp.Message)
	require.Len(t, resp.Report.Results, 1)

	assert.Equal(t, []string{"aaa"}, scanner.gotReq.Tickers)
	assert.Equal(t, 15.0, criteria.PriceMax)
	assert.Equal(t, 1.0, criteria.PriceMin)
}

func TestScan_EmptyBody(t *testing.T) {
	scanner := &stubScanner{report: &screener.Report{NoCandidates: true}}
	router := newTestRouter(t, scanner, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/scan", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp handlers.ScanResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "no_candidates", resp.Status)
	assert.Equal(t, "no candidates found", resp.Message)
}

func TestScan_NoQualifying(t *testing.T) {
	scanner := &stubScanner{report: &screener.Report{Candidates: []contracts.Ticker{"BBB"}}}
	router := newTestRouter(t, scanner, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/scan", bytes.NewBufferString(`{}`)))

	var resp handlers.ScanResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "no qualifying stocks found", resp.Message)
}

func TestScan_BadRequest(t *testing.T) {
	router := newTestRouter(t, &stubScanner{}, nil)

	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{"malformed", `{"tickers":`, "invalid_body"},
		{"invalid criteria", `{"price_min":30,"price_max":20}`, "invalid_criteria"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/scan", bytes.NewBufferString(tt.body)))
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var e handlers.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
			assert.Equal(t, tt.wantCode, e.Code)
			assert.NotEmpty(t, e.Message)
		})
	}
}

func TestScan_DiscoveryUnavailable(t *testing.T) {
	router := newTestRouter(t, &stubScanner{err: contracts.ErrUpstreamUnavailable}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/scan", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error":"discovery_unavailable"`)
}

func TestScan_Timeout(t *testing.T) {
	router := newTestRouter(t, &stubScanner{err: context.DeadlineExceeded}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/scan", nil))
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestCacheEndpoints(t *testing.T) {
	router := newTestRouter(t, &stubScanner{}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/cache", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"entries":0`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/cache", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestCriteriaAndMetrics(t *testing.T) {
	router := newTestRouter(t, &stubScanner{}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/criteria", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var c contracts.FilterCriteria
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &c))
	assert.Equal(t, contracts.DefaultCriteria(), c)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_NotFoundAndMethod(t *testing.T) {
	router := newTestRouter(t, &stubScanner{}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/unknown", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"not_found","message":"no route for /api/unknown"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/scan", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.JSONEq(t, `{"error":"method_not_allowed","message":"GET is not supported on /api/scan"}`, rec.Body.String())
}

func TestRouter_RequestID(t *testing.T) {
	router := newTestRouter(t, &stubScanner{}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Len(t, rec.Header().Get(RequestIDHeader), 16)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "scan-42")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, "scan-42", rec.Header().Get(RequestIDHeader))
}

func TestRecoverPanics(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter(&buf)
	h := recoverPanics(log, withRequestLog(log, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/scan", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal_error","message":"unexpected server error"}`, rec.Body.String())
	assert.Contains(t, buf.String(), "Panic recovered")
	assert.Contains(t, buf.String(), `"request_id"`)
}
