package yahoo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wonny/gapscan/internal/contracts"
	"github.com/wonny/gapscan/pkg/httputil"
	"github.com/wonny/gapscan/pkg/logger"
)

// DefaultBaseURL is the public Yahoo Finance API host
const DefaultBaseURL = "https://query1.finance.yahoo.com"

// Client reads daily volumes and quotes from the Yahoo chart API
// ⭐ SSOT: Yahoo Finance calls go through this client only
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
}

// NewClient creates a new Yahoo client. An empty baseURL uses DefaultBaseURL.
func NewClient(httpClient *httputil.Client, log *logger.Logger, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: httpClient,
		logger:     log,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// chartResponse is the subset of /v8/finance/chart we read
type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *chartError   `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Meta struct {
		Symbol             string  `json:"symbol"`
		RegularMarketPrice float64 `json:"regularMarketPrice"`
		PreviousClose      float64 `json:"previousClose"`
		ChartPreviousClose float64 `json:"chartPreviousClose"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Volume []*float64 `json:"volume"`
		} `json:"quote"`
	} `json:"indicators"`
}

type chartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// errNoData marks a symbol Yahoo knows nothing about
var errNoData = errors.New("yahoo: no data")

func (c *Client) fetchChart(ctx context.Context, ticker contracts.Ticker, rng string) (*chartResult, error) {
	u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1d&range=%s",
		c.baseURL, url.PathEscape(ticker.String()), rng)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	var chart chartResponse
	if err := c.httpClient.GetJSON(ctx, req, &chart); err != nil {
		var se *httputil.StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			return nil, errNoData
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: yahoo chart %s: %v", contracts.ErrUpstreamUnavailable, ticker, err)
	}

	if chart.Chart.Error != nil {
		if strings.EqualFold(chart.Chart.Error.Code, "Not Found") {
			return nil, errNoData
		}
		return nil, fmt.Errorf("%w: yahoo api error: %s", contracts.ErrUpstreamUnavailable, chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 {
		return nil, errNoData
	}

	return &chart.Chart.Result[0], nil
}

// History returns daily volumes for the last periodDays calendar days,
// oldest first. Null volumes are kept as missing points; an unknown symbol
// yields an empty history.
func (c *Client) History(ctx context.Context, ticker contracts.Ticker, periodDays int) (contracts.VolumeHistory, error) {
	if periodDays <= 0 {
		periodDays = 30
	}

	result, err := c.fetchChart(ctx, ticker, fmt.Sprintf("%dd", periodDays))
	if errors.Is(err, errNoData) {
		return contracts.VolumeHistory{}, nil
	}
	if err != nil {
		return nil, err
	}

	var volumes []*float64
	if len(result.Indicators.Quote) > 0 {
		volumes = result.Indicators.Quote[0].Volume
	}

	history := make(contracts.VolumeHistory, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		p := contracts.VolumePoint{Date: time.Unix(ts, 0).UTC()}
		if i < len(volumes) && volumes[i] != nil {
			p.Volume = *volumes[i]
		} else {
			p.Missing = true
		}
		history = append(history, p)
	}

	c.logger.WithFields(logger.Fields{
		"ticker": ticker,
		"days":   len(history),
	}).Debug("Fetched volume history from Yahoo")

	return history, nil
}

// Quote returns the latest price and previous close. Absent fields come
// back as zero, which the caller treats as an invalid snapshot.
func (c *Client) Quote(ctx context.Context, ticker contracts.Ticker) (contracts.QuoteSnapshot, error) {
	snap := contracts.QuoteSnapshot{Ticker: ticker}

	result, err := c.fetchChart(ctx, ticker, "1d")
	if errors.Is(err, errNoData) {
		return snap, nil
	}
	if err != nil {
		return snap, err
	}

	snap.CurrentPrice = result.Meta.RegularMarketPrice
	snap.PreviousClose = result.Meta.PreviousClose
	if snap.PreviousClose == 0 {
		snap.PreviousClose = result.Meta.ChartPreviousClose
	}
	return snap, nil
}
