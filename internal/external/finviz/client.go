package finviz

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/wonny/gapscan/internal/contracts"
	"github.com/wonny/gapscan/pkg/httputil"
	"github.com/wonny/gapscan/pkg/logger"
)

// DefaultScreenerURL lists top gainers under $20 with average volume above 500K
const DefaultScreenerURL = "https://finviz.com/screener.ashx?v=111&s=ta_topgainers&f=sh_price_u20,sh_avgvol_o500&ft=4"

// Client discovers gapper candidates from the Finviz top gainers screener
// ⭐ SSOT: Finviz calls go through this client only
type Client struct {
	httpClient  *httputil.Client
	logger      *logger.Logger
	screenerURL string
}

// NewClient creates a new Finviz client. An empty screenerURL uses DefaultScreenerURL.
func NewClient(httpClient *httputil.Client, log *logger.Logger, screenerURL string) *Client {
	if screenerURL == "" {
		screenerURL = DefaultScreenerURL
	}
	return &Client{
		httpClient:  httpClient,
		logger:      log,
		screenerURL: screenerURL,
	}
}

// Fingerprint identifies the screener URL in shared cache keys
func (c *Client) Fingerprint() string {
	return "finviz-" + contracts.HashParts(c.screenerURL)
}

// Discover fetches the gainers page and returns up to limit tickers in page order.
// A page without any recognizable ticker yields an empty slice.
func (c *Client) Discover(ctx context.Context, limit int) ([]contracts.Ticker, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.screenerURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", httputil.DefaultUserAgent)
	req.Header.Set("Accept", "text/html")

	body, err := c.httpClient.GetBody(ctx, req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: finviz screener: %v", contracts.ErrUpstreamUnavailable, err)
	}

	tickers := ParseGainers(string(body), limit)

	c.logger.WithFields(logger.Fields{
		"count": len(tickers),
		"limit": limit,
	}).Debug("Fetched gainers from Finviz")

	return tickers, nil
}
