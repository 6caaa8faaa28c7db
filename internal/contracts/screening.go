package contracts

import (
	"fmt"
	"time"
)

// FilterCriteria is the immutable screening configuration of one pipeline
type FilterCriteria struct {
	PriceMin          float64 `json:"price_min" yaml:"price_min"`
	PriceMax          float64 `json:"price_max" yaml:"price_max"`
	PercentChangeMin  float64 `json:"percent_change_min" yaml:"percent_change_min"`
	RelativeVolumeMin float64 `json:"relative_volume_min" yaml:"relative_volume_min"`
	FloatMaxMillions  float64 `json:"float_max_millions" yaml:"float_max_millions"`
	LookbackDays      int     `json:"lookback_days" yaml:"lookback_days"`
	MaxCandidates     int     `json:"max_candidates" yaml:"max_candidates"`
}

// DefaultCriteria returns the classic small-cap gapper settings
func DefaultCriteria() FilterCriteria {
	return FilterCriteria{
		PriceMin:          1,
		PriceMax:          20,
		PercentChangeMin:  10,
		RelativeVolumeMin: 5,
		FloatMaxMillions:  10,
		LookbackDays:      20,
		MaxCandidates:     20,
	}
}

// Validate checks internal consistency
func (c FilterCriteria) Validate() error {
	if c.PriceMin < 0 {
		return fmt.Errorf("%w: price_min must be >= 0", ErrConfiguration)
	}
	if c.PriceMax < c.PriceMin {
		return fmt.Errorf("%w: price_max (%.2f) < price_min (%.2f)", ErrConfiguration, c.PriceMax, c.PriceMin)
	}
	if c.RelativeVolumeMin < 0 {
		return fmt.Errorf("%w: relative_volume_min must be >= 0", ErrConfiguration)
	}
	if c.FloatMaxMillions <= 0 {
		return fmt.Errorf("%w: float_max_millions must be > 0", ErrConfiguration)
	}
	if c.LookbackDays <= 0 {
		return fmt.Errorf("%w: lookback_days must be > 0", ErrConfiguration)
	}
	if c.MaxCandidates <= 0 {
		return fmt.Errorf("%w: max_candidates must be > 0", ErrConfiguration)
	}
	return nil
}

// Rejection reasons
const (
	RejectPrice          = "price_out_of_range"
	RejectPercentChange  = "percent_change_below_min"
	RejectRelativeVolume = "relative_volume_below_min"
	RejectFloat          = "float_above_max"
	RejectNoCatalyst     = "no_catalyst"
)

// CheckQuote evaluates the price-only predicates
func (c FilterCriteria) CheckQuote(q QuoteSnapshot) string {
	if q.CurrentPrice < c.PriceMin || q.CurrentPrice > c.PriceMax {
		return RejectPrice
	}
	if q.PercentChange() < c.PercentChangeMin {
		return RejectPercentChange
	}
	return ""
}

// CheckRelativeVolume evaluates the relative volume predicate
func (c FilterCriteria) CheckRelativeVolume(rv float64) string {
	if rv < c.RelativeVolumeMin {
		return RejectRelativeVolume
	}
	return ""
}

// CheckFloat evaluates the float predicate
func (c FilterCriteria) CheckFloat(floatMillions float64) string {
	if floatMillions > c.FloatMaxMillions {
		return RejectFloat
	}
	return ""
}

// Evaluate returns the first failed predicate, or "" when all pass
func (c FilterCriteria) Evaluate(q QuoteSnapshot, m MetricBundle) string {
	if reason := c.CheckQuote(q); reason != "" {
		return reason
	}
	if reason := c.CheckRelativeVolume(m.RelativeVolume); reason != "" {
		return reason
	}
	if reason := c.CheckFloat(m.FloatMillions); reason != "" {
		return reason
	}
	if m.Headline == nil || m.Headline.Title == "" {
		return RejectNoCatalyst
	}
	return ""
}

// Passes reports whether every predicate holds
func (c FilterCriteria) Passes(q QuoteSnapshot, m MetricBundle) bool {
	return c.Evaluate(q, m) == ""
}

// MetricBundle is the derived per-ticker metrics of one scan
type MetricBundle struct {
	PercentChange  float64   `json:"percent_change"`
	RelativeVolume float64   `json:"relative_volume"`
	FloatMillions  float64   `json:"float_millions"`
	Headline       *Headline `json:"headline,omitempty"`
}

// ScreenResult is one ticker that passed every filter
type ScreenResult struct {
	Ticker         Ticker    `json:"ticker"`
	Price          float64   `json:"price"`
	PercentChange  float64   `json:"percent_change"`
	RelativeVolume float64   `json:"relative_volume"`
	FloatMillions  float64   `json:"float_millions"`
	Headline       string    `json:"headline"`
	HeadlineURL    string    `json:"headline_url,omitempty"`
	ComputedAt     time.Time `json:"computed_at"`
}
