package alpaca

import (
	"context"
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"github.com/wonny/gapscan/internal/contracts"
	"github.com/wonny/gapscan/pkg/config"
	"github.com/wonny/gapscan/pkg/logger"
)

// dataClient is the part of the Alpaca market data SDK we use
type dataClient interface {
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
	GetSnapshot(symbol string, req marketdata.GetSnapshotRequest) (*marketdata.Snapshot, error)
}

// Client reads daily bars and snapshots from Alpaca market data
// ⭐ SSOT: Alpaca calls go through this client only
type Client struct {
	md     dataClient
	feed   marketdata.Feed
	logger *logger.Logger
	now    func() time.Time
}

// NewClient creates an Alpaca market data client from config
func NewClient(cfg *config.Config, log *logger.Logger) *Client {
	md := marketdata.NewClient(marketdata.ClientOpts{
		APIKey:    cfg.MarketData.AlpacaAPIKey,
		APISecret: cfg.MarketData.AlpacaAPISecret,
		BaseURL:   cfg.MarketData.AlpacaBaseURL,
	})
	return newClient(md, marketdata.Feed(cfg.MarketData.AlpacaFeed), log)
}

func newClient(md dataClient, feed marketdata.Feed, log *logger.Logger) *Client {
	return &Client{md: md, feed: feed, logger: log, now: time.Now}
}

// call runs a blocking SDK call and gives up when ctx ends
func call[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}

	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v: v, err: err}
	}()

	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case r := <-done:
		return r.v, r.err
	}
}

// History returns daily bar volumes over the last periodDays calendar days
func (c *Client) History(ctx context.Context, ticker contracts.Ticker, periodDays int) (contracts.VolumeHistory, error) {
	if periodDays <= 0 {
		periodDays = 30
	}
	end := c.now()
	start := end.AddDate(0, 0, -periodDays)

	bars, err := call(ctx, func() ([]marketdata.Bar, error) {
		return c.md.GetBars(ticker.String(), marketdata.GetBarsRequest{
			TimeFrame: marketdata.OneDay,
			Start:     start,
			End:       end,
			Feed:      c.feed,
		})
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: alpaca bars %s: %v", contracts.ErrUpstreamUnavailable, ticker, err)
	}

	history := make(contracts.VolumeHistory, 0, len(bars))
	for _, b := range bars {
		history = append(history, contracts.VolumePoint{
			Date:   b.Timestamp.UTC(),
			Volume: float64(b.Volume),
		})
	}

	c.logger.WithFields(logger.Fields{
		"ticker": ticker,
		"days":   len(history),
	}).Debug("Fetched volume history from Alpaca")

	return history, nil
}

// Quote returns the latest trade price and the previous daily close
func (c *Client) Quote(ctx context.Context, ticker contracts.Ticker) (contracts.QuoteSnapshot, error) {
	snap := contracts.QuoteSnapshot{Ticker: ticker}

	s, err := call(ctx, func() (*marketdata.Snapshot, error) {
		return c.md.GetSnapshot(ticker.String(), marketdata.GetSnapshotRequest{Feed: c.feed})
	})
	if err != nil {
		if ctx.Err() != nil {
			return snap, ctx.Err()
		}
		return snap, fmt.Errorf("%w: alpaca snapshot %s: %v", contracts.ErrUpstreamUnavailable, ticker, err)
	}
	if s == nil {
		return snap, nil
	}

	if s.LatestTrade != nil {
		snap.CurrentPrice = s.LatestTrade.Price
	} else if s.DailyBar != nil {
		snap.CurrentPrice = s.DailyBar.Close
	}
	if s.PrevDailyBar != nil {
		snap.PreviousClose = s.PrevDailyBar.Close
	}
	return snap, nil
}
