package finviz

import (
	"context"

	"github.com/wonny/gapscan/internal/contracts"
)

// StaticDiscovery serves a fixed ticker list, used when the caller names
// the symbols to scan
type StaticDiscovery struct {
	tickers []contracts.Ticker
}

// NewStaticDiscovery normalizes and dedups raw symbols
func NewStaticDiscovery(raw []string) *StaticDiscovery {
	return &StaticDiscovery{tickers: contracts.UniqueTickers(raw, 0)}
}

// Fingerprint identifies the list in shared cache keys
func (s *StaticDiscovery) Fingerprint() string {
	parts := make([]string, len(s.tickers))
	for i, t := range s.tickers {
		parts[i] = string(t)
	}
	return "static-" + contracts.HashParts(parts...)
}

// Discover returns the first limit tickers
func (s *StaticDiscovery) Discover(ctx context.Context, limit int) ([]contracts.Ticker, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := len(s.tickers)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]contracts.Ticker, n)
	copy(out, s.tickers[:n])
	return out, nil
}
