package screener

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wonny/gapscan/internal/contracts"
)

type fakeDiscovery struct {
	tickers []contracts.Ticker
	err     error
	calls   atomic.Int32
}

func (f *fakeDiscovery) Discover(ctx context.Context, limit int) ([]contracts.Ticker, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	if limit > 0 && len(f.tickers) > limit {
		return f.tickers[:limit], nil
	}
	return f.tickers, nil
}

type fakeMarket struct {
	mu        sync.Mutex
	quotes    map[contracts.Ticker]contracts.QuoteSnapshot
	histories map[contracts.Ticker]contracts.VolumeHistory
	quoteErr  map[contracts.Ticker]error
	histErr   map[contracts.Ticker]error
	hang      map[contracts.Ticker]bool
	panics    map[contracts.Ticker]bool

	quoteCalls   atomic.Int32
	historyCalls atomic.Int32
}

func newFakeMarket() *fakeMarket {
	return &fakeMarket{
		quotes:    map[contracts.Ticker]contracts.QuoteSnapshot{},
		histories: map[contracts.Ticker]contracts.VolumeHistory{},
		quoteErr:  map[contracts.Ticker]error{},
		histErr:   map[contracts.Ticker]error{},
		hang:      map[contracts.Ticker]bool{},
		panics:    map[contracts.Ticker]bool{},
	}
}

func (f *fakeMarket) Quote(ctx context.Context, t contracts.Ticker) (contracts.QuoteSnapshot, error) {
	f.quoteCalls.Add(1)
	f.mu.Lock()
	hang, panics, err, q := f.hang[t], f.panics[t], f.quoteErr[t], f.quotes[t]
	f.mu.Unlock()

	if panics {
		panic("malformed payload for " + string(t))
	}
	if hang {
		<-ctx.Done()
		return contracts.QuoteSnapshot{}, ctx.Err()
	}
	if err != nil {
		return contracts.QuoteSnapshot{}, err
	}
	q.Ticker = t
	return q, nil
}

func (f *fakeMarket) History(ctx context.Context, t contracts.Ticker, periodDays int) (contracts.VolumeHistory, error) {
	f.historyCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.histErr[t]; err != nil {
		return nil, err
	}
	return f.histories[t], nil
}

type fakeCatalysts struct {
	headlines map[contracts.Ticker]string
	err       map[contracts.Ticker]error
	calls     atomic.Int32
}

func (f *fakeCatalysts) LatestHeadline(ctx context.Context, t contracts.Ticker) (*contracts.Headline, error) {
	f.calls.Add(1)
	if err := f.err[t]; err != nil {
		return nil, err
	}
	title, ok := f.headlines[t]
	if !ok {
		return nil, nil
	}
	return &contracts.Headline{Title: title, URL: "https://news.example/" + string(t)}, nil
}

type fakeFloats struct {
	floats map[contracts.Ticker]float64
	def    float64
}

func (f *fakeFloats) Estimate(ctx context.Context, t contracts.Ticker) (float64, error) {
	if v, ok := f.floats[t]; ok {
		return v, nil
	}
	return f.def, nil
}

var errUpstream = errors.New("connection reset")

// gapperHistory returns 20 days averaging 100 with latest 600
func gapperHistory() contracts.VolumeHistory {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	h := make(contracts.VolumeHistory, 0, 20)
	for i := 0; i < 19; i++ {
		v := 100.0
		if i >= 14 {
			v = 0
		}
		h = append(h, contracts.VolumePoint{Date: start.AddDate(0, 0, i), Volume: v})
	}
	return append(h, contracts.VolumePoint{Date: start.AddDate(0, 0, 19), Volume: 600})
}

type fixture struct {
	discovery *fakeDiscovery
	market    *fakeMarket
	catalysts *fakeCatalysts
	floats    *fakeFloats
}

// newFixture sets up AAA (passes), BBB (price too high) and CCC (no news)
func newFixture() *fixture {
	m := newFakeMarket()
	m.quotes["AAA"] = contracts.QuoteSnapshot{CurrentPrice: 5, PreviousClose: 4}
	m.quotes["BBB"] = contracts.QuoteSnapshot{CurrentPrice: 25, PreviousClose: 20}
	m.quotes["CCC"] = contracts.QuoteSnapshot{CurrentPrice: 6, PreviousClose: 5}
	for _, t := range []contracts.Ticker{"AAA", "BBB", "CCC"} {
		m.histories[t] = gapperHistory()
	}

	return &fixture{
		discovery: &fakeDiscovery{tickers: []contracts.Ticker{"AAA", "BBB", "CCC"}},
		market:    m,
		catalysts: &fakeCatalysts{
			headlines: map[contracts.Ticker]string{
				"AAA": "AAA announces FDA approval",
				"BBB": "BBB beats earnings",
			},
			err: map[contracts.Ticker]error{},
		},
		floats: &fakeFloats{floats: map[contracts.Ticker]float64{"AAA": 3, "BBB": 3, "CCC": 3}, def: 5},
	}
}

func (f *fixture) collaborators() Collaborators {
	return Collaborators{
		Discovery: f.discovery,
		Market:    f.market,
		Catalysts: f.catalysts,
		Floats:    f.floats,
	}
}
