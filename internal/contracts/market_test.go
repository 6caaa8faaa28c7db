package contracts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func history(volumes ...float64) VolumeHistory {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	h := make(VolumeHistory, len(volumes))
	for i, v := range volumes {
		h[i] = VolumePoint{Date: start.AddDate(0, 0, i), Volume: v}
	}
	return h
}

func TestRelativeVolume(t *testing.T) {
	// 14 days at 100, 5 at 0, latest 600: mean over 20 = 2000/20 = 100
	prior := make([]float64, 0, 20)
	for i := 0; i < 14; i++ {
		prior = append(prior, 100)
	}
	for i := 0; i < 5; i++ {
		prior = append(prior, 0)
	}
	h := history(append(prior, 600)...)

	assert.InDelta(t, 6.0, h.RelativeVolume(20), 1e-9)
}

func TestRelativeVolume_UsesLastWindowOnly(t *testing.T) {
	h := history(1_000_000, 10, 10, 10, 20)
	// window of 4: 10,10,10,20 -> mean 12.5
	assert.InDelta(t, 1.6, h.RelativeVolume(4), 1e-9)
}

func TestRelativeVolume_Degenerate(t *testing.T) {
	tests := []struct {
		name     string
		h        VolumeHistory
		lookback int
	}{
		{"empty", nil, 20},
		{"shorter than lookback", history(1, 2, 3), 20},
		{"zero lookback", history(1, 2, 3), 0},
		{"negative lookback", history(1, 2, 3), -1},
		{"all zero", history(0, 0, 0), 3},
		{"all missing", VolumeHistory{{Missing: true}, {Missing: true}}, 2},
		{"latest missing", VolumeHistory{{Volume: 10}, {Volume: 10}, {Missing: true}}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, 0.0, tt.h.RelativeVolume(tt.lookback))
		})
	}
}

func TestRelativeVolume_SkipsMissing(t *testing.T) {
	h := VolumeHistory{{Volume: 100}, {Missing: true}, {Volume: 100}, {Volume: 400}}
	// mean of present values 100,100,400 = 200
	assert.InDelta(t, 2.0, h.RelativeVolume(4), 1e-9)
}

func TestVolumeHistory_Known(t *testing.T) {
	assert.False(t, VolumeHistory(nil).Known())
	assert.False(t, VolumeHistory{{Missing: true}}.Known())
	assert.True(t, history(0).Known())
}

func TestQuoteSnapshot(t *testing.T) {
	q := QuoteSnapshot{Ticker: "AAA", CurrentPrice: 5.50, PreviousClose: 5.00}
	assert.True(t, q.Valid())
	assert.InDelta(t, 10.0, q.PercentChange(), 1e-9)

	down := QuoteSnapshot{CurrentPrice: 9, PreviousClose: 10}
	assert.InDelta(t, -10.0, down.PercentChange(), 1e-9)

	zeroPrev := QuoteSnapshot{CurrentPrice: 5}
	assert.False(t, zeroPrev.Valid())
	assert.Equal(t, 0.0, zeroPrev.PercentChange())

	zeroCur := QuoteSnapshot{PreviousClose: 5}
	assert.False(t, zeroCur.Valid())
}
