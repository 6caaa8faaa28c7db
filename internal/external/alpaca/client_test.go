package alpaca

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/gapscan/internal/contracts"
	"github.com/wonny/gapscan/pkg/logger"
)

type fakeData struct {
	bars     []marketdata.Bar
	snapshot *marketdata.Snapshot
	err      error
	block    chan struct{}

	lastBarsReq marketdata.GetBarsRequest
	lastSnapReq marketdata.GetSnapshotRequest
}

func (f *fakeData) GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error) {
	f.lastBarsReq = req
	if f.block != nil {
		<-f.block
	}
	return f.bars, f.err
}

func (f *fakeData) GetSnapshot(symbol string, req marketdata.GetSnapshotRequest) (*marketdata.Snapshot, error) {
	f.lastSnapReq = req
	if f.block != nil {
		<-f.block
	}
	return f.snapshot, f.err
}

func TestClient_History(t *testing.T) {
	day := time.Date(2024, 3, 1, 5, 0, 0, 0, time.UTC)
	fake := &fakeData{bars: []marketdata.Bar{
		{Timestamp: day, Volume: 100},
		{Timestamp: day.AddDate(0, 0, 1), Volume: 600},
	}}
	c := newClient(fake, marketdata.IEX, logger.Nop())
	c.now = func() time.Time { return day.AddDate(0, 0, 2) }

	h, err := c.History(context.Background(), "AAA", 30)
	require.NoError(t, err)
	require.Len(t, h, 2)
	assert.Equal(t, 600.0, h[1].Volume)
	assert.Equal(t, marketdata.OneDay, fake.lastBarsReq.TimeFrame)
	assert.Equal(t, day.AddDate(0, 0, -28), fake.lastBarsReq.Start)
}

func TestClient_Quote(t *testing.T) {
	fake := &fakeData{snapshot: &marketdata.Snapshot{
		LatestTrade:  &marketdata.Trade{Price: 5.5},
		PrevDailyBar: &marketdata.Bar{Close: 5.0},
	}}
	c := newClient(fake, marketdata.IEX, logger.Nop())

	q, err := c.Quote(context.Background(), "AAA")
	require.NoError(t, err)
	assert.Equal(t, contracts.QuoteSnapshot{Ticker: "AAA", CurrentPrice: 5.5, PreviousClose: 5.0}, q)
}

func TestClient_PassesFeed(t *testing.T) {
	fake := &fakeData{}
	c := newClient(fake, marketdata.SIP, logger.Nop())

	_, err := c.History(context.Background(), "AAA", 5)
	require.NoError(t, err)
	_, err = c.Quote(context.Background(), "AAA")
	require.NoError(t, err)

	assert.Equal(t, marketdata.SIP, fake.lastBarsReq.Feed)
	assert.Equal(t, marketdata.SIP, fake.lastSnapReq.Feed)
}

func TestClient_Quote_NoSnapshot(t *testing.T) {
	c := newClient(&fakeData{}, marketdata.IEX, logger.Nop())

	q, err := c.Quote(context.Background(), "ZZZZ")
	require.NoError(t, err)
	assert.False(t, q.Valid())
}

func TestClient_UpstreamFailure(t *testing.T) {
	c := newClient(&fakeData{err: errors.New("403 forbidden")}, marketdata.IEX, logger.Nop())

	_, err := c.History(context.Background(), "AAA", 30)
	assert.True(t, errors.Is(err, contracts.ErrUpstreamUnavailable))

	_, err = c.Quote(context.Background(), "AAA")
	assert.True(t, errors.Is(err, contracts.ErrUpstreamUnavailable))
}

func TestClient_ContextDeadline(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	c := newClient(&fakeData{block: block}, marketdata.IEX, logger.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Quote(ctx, "AAA")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
