package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/wonny/gapscan/internal/contracts"
	"github.com/wonny/gapscan/internal/resultcache"
	"github.com/wonny/gapscan/internal/screener"
	"github.com/wonny/gapscan/pkg/logger"
)

// Scanner runs scans; satisfied by *screener.Pipeline
type Scanner interface {
	Scan(ctx context.Context, req screener.Request) (*screener.Report, error)
}

// PipelineFactory builds a scanner for custom criteria sharing the server's cache
type PipelineFactory func(criteria contracts.FilterCriteria) (Scanner, error)

// ScanHandler exposes "run a scan now" over HTTP
// ⭐ SSOT: scan API handlers live in this struct only
type ScanHandler struct {
	defaults    contracts.FilterCriteria
	newPipeline PipelineFactory
	cache       *resultcache.Cache
	scanTimeout time.Duration
	logger      *logger.Logger
}

// NewScanHandler creates a new scan handler
func NewScanHandler(
	defaults contracts.FilterCriteria,
	factory PipelineFactory,
	cache *resultcache.Cache,
	scanTimeout time.Duration,
	log *logger.Logger,
) *ScanHandler {
	return &ScanHandler{
		defaults:    defaults,
		newPipeline: factory,
		cache:       cache,
		scanTimeout: scanTimeout,
		logger:      log,
	}
}

// ScanRequest is the body of POST /api/scan. Every criteria field is optional.
type ScanRequest struct {
	Tickers           []string `json:"tickers,omitempty"`
	PriceMin          *float64 `json:"price_min,omitempty"`
	PriceMax          *float64 `json:"price_max,omitempty"`
	PercentChangeMin  *float64 `json:"percent_change_min,omitempty"`
	RelativeVolumeMin *float64 `json:"relative_volume_min,omitempty"`
	FloatMaxMillions  *float64 `json:"float_max_millions,omitempty"`
	LookbackDays      *int     `json:"lookback_days,omitempty"`
	MaxCandidates     *int     `json:"max_candidates,omitempty"`
}

// Apply overlays the set fields on base
func (r ScanRequest) Apply(base contracts.FilterCriteria) contracts.FilterCriteria {
	c := base
	if r.PriceMin != nil {
		c.PriceMin = *r.PriceMin
	}
	if r.PriceMax != nil {
		c.PriceMax = *r.PriceMax
	}
	if r.PercentChangeMin != nil {
		c.PercentChangeMin = *r.PercentChangeMin
	}
	if r.RelativeVolumeMin != nil {
		c.RelativeVolumeMin = *r.RelativeVolumeMin
	}
	if r.FloatMaxMillions != nil {
		c.FloatMaxMillions = *r.FloatMaxMillions
	}
	if r.LookbackDays != nil {
		c.LookbackDays = *r.LookbackDays
	}
	if r.MaxCandidates != nil {
		c.MaxCandidates = *r.MaxCandidates
	}
	return c
}

// ScanResponse wraps a report with a human-readable status line
type ScanResponse struct {
	Status  string           `json:"status"`
	Message string           `json:"message"`
	Report  *screener.Report `json:"report"`
}

// Scan runs a scan now
// POST /api/scan
func (h *ScanHandler) Scan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		WriteError(w, http.StatusBadRequest, "invalid_body", "request body is not valid JSON")
		return
	}

	criteria := req.Apply(h.defaults)
	if err := criteria.Validate(); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_criteria", err.Error())
		return
	}

	scanner, err := h.newPipeline(criteria)
	if err != nil {
		h.logger.WithError(err).Error("Failed to build pipeline")
		WriteError(w, http.StatusInternalServerError, "internal_error", "failed to build pipeline")
		return
	}

	ctx := r.Context()
	if h.scanTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.scanTimeout)
		defer cancel()
	}

	report, err := scanner.Scan(ctx, screener.Request{Tickers: req.Tickers})
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			WriteError(w, http.StatusGatewayTimeout, "scan_timeout", "scan did not finish in time")
		case errors.Is(err, context.Canceled):
			h.logger.Debug("Scan cancelled by client")
		case errors.Is(err, contracts.ErrUpstreamUnavailable):
			h.logger.WithError(err).Warn("Discovery unavailable")
			WriteError(w, http.StatusBadGateway, "discovery_unavailable", "candidate discovery unavailable")
		default:
			h.logger.WithError(err).Error("Scan failed")
			WriteError(w, http.StatusInternalServerError, "scan_failed", "scan failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, ScanResponse{
		Status:  statusOf(report),
		Message: report.Message(),
		Report:  report,
	})
}

// GetCriteria returns the default filter criteria
// GET /api/criteria
func (h *ScanHandler) GetCriteria(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.defaults)
}

// GetCacheStats returns result cache counters
// GET /api/cache
func (h *ScanHandler) GetCacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.cache.Stats())
}

// ResetCache drops every cached result
// DELETE /api/cache
func (h *ScanHandler) ResetCache(w http.ResponseWriter, r *http.Request) {
	removed, err := h.cache.Invalidate(r.Context())
	if err != nil {
		h.logger.WithError(err).Warn("Failed to flush shared cache")
	}
	h.logger.WithField("removed", removed).Info("Result cache reset")
	w.WriteHeader(http.StatusNoContent)
}

func statusOf(r *screener.Report) string {
	switch {
	case r.NoCandidates:
		return "no_candidates"
	case r.NoQualifying():
		return "no_qualifying"
	default:
		return "ok"
	}
}
