package newsapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/wonny/gapscan/internal/contracts"
	"github.com/wonny/gapscan/pkg/httputil"
	"github.com/wonny/gapscan/pkg/logger"
)

// DefaultBaseURL is the newsapi.org v2 endpoint root
const DefaultBaseURL = "https://newsapi.org/v2"

// Client looks up recent headlines on newsapi.org
// ⭐ SSOT: newsapi.org calls go through this client only
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
	apiKey     string
	pageSize   int
}

// NewClient creates a news client. The API key is required.
func NewClient(httpClient *httputil.Client, log *logger.Logger, baseURL, apiKey string, pageSize int) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: news API key is required", contracts.ErrConfiguration)
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if pageSize <= 0 {
		pageSize = 5
	}
	return &Client{
		httpClient: httpClient,
		logger:     log,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		pageSize:   pageSize,
	}, nil
}

type everythingResponse struct {
	Status   string    `json:"status"`
	Code     string    `json:"code"`
	Message  string    `json:"message"`
	Articles []article `json:"articles"`
}

type article struct {
	Source struct {
		Name string `json:"name"`
	} `json:"source"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"publishedAt"`
}

// LatestHeadline returns the newest article mentioning ticker, or nil when
// there are no articles
func (c *Client) LatestHeadline(ctx context.Context, ticker contracts.Ticker) (*contracts.Headline, error) {
	params := url.Values{}
	params.Set("q", ticker.String())
	params.Set("sortBy", "publishedAt")
	params.Set("pageSize", strconv.Itoa(c.pageSize))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/everything?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)

	var resp everythingResponse
	if err := c.httpClient.GetJSON(ctx, req, &resp); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var se *httputil.StatusError
		if errors.As(err, &se) && (se.StatusCode == http.StatusUnauthorized || se.StatusCode == http.StatusTooManyRequests) {
			c.logger.WithField("status_code", se.StatusCode).Warn("newsapi rejected request")
		}
		return nil, fmt.Errorf("%w: newsapi %s: %v", contracts.ErrUpstreamUnavailable, ticker, err)
	}
	if resp.Status == "error" {
		return nil, fmt.Errorf("%w: newsapi %s: %s", contracts.ErrUpstreamUnavailable, resp.Code, resp.Message)
	}

	for _, a := range resp.Articles {
		title := strings.TrimSpace(a.Title)
		if title == "" || title == "[Removed]" {
			continue
		}
		return &contracts.Headline{
			Title:       title,
			Source:      a.Source.Name,
			URL:         a.URL,
			PublishedAt: a.PublishedAt,
		}, nil
	}

	return nil, nil
}
