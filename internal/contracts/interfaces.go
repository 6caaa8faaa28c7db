package contracts

import "context"

// CandidateDiscovery returns the ordered, deduplicated, uppercased symbols
// worth evaluating this scan. No parseable symbols is an empty slice, not an error.
type CandidateDiscovery interface {
	Discover(ctx context.Context, limit int) ([]Ticker, error)
}

// MetricSource provides daily volume history and the current quote
type MetricSource interface {
	History(ctx context.Context, ticker Ticker, periodDays int) (VolumeHistory, error)
	Quote(ctx context.Context, ticker Ticker) (QuoteSnapshot, error)
}

// CatalystSource returns the most relevant recent headline, or nil when
// there is none. Absence is a normal outcome.
type CatalystSource interface {
	LatestHeadline(ctx context.Context, ticker Ticker) (*Headline, error)
}

// FloatEstimator returns the estimated public float in millions of shares
type FloatEstimator interface {
	Estimate(ctx context.Context, ticker Ticker) (float64, error)
}
