package contracts

import "time"

// VolumePoint is one trading day's volume. Missing marks a provider gap
// (null volume) so it is never mistaken for a zero-volume day.
type VolumePoint struct {
	Date    time.Time `json:"date"`
	Volume  float64   `json:"volume"`
	Missing bool      `json:"missing,omitempty"`
}

// VolumeHistory is a ticker's daily volumes, most recent last.
// An empty history is the "unknown" marker.
type VolumeHistory []VolumePoint

// Known reports whether the history has at least one present value
func (h VolumeHistory) Known() bool {
	for _, p := range h {
		if !p.Missing {
			return true
		}
	}
	return false
}

// RelativeVolume returns latest volume / mean volume over the last lookback
// days (the latest day included). It is 0 when the history is shorter than
// lookback, has only missing values, the latest day is missing, or the mean is 0.
func (h VolumeHistory) RelativeVolume(lookback int) float64 {
	if lookback <= 0 || len(h) < lookback {
		return 0
	}

	latest := h[len(h)-1]
	if latest.Missing {
		return 0
	}

	window := h[len(h)-lookback:]
	sum := 0.0
	n := 0
	for _, p := range window {
		if p.Missing {
			continue
		}
		sum += p.Volume
		n++
	}
	if n == 0 {
		return 0
	}

	avg := sum / float64(n)
	if avg == 0 {
		return 0
	}
	return latest.Volume / avg
}

// QuoteSnapshot is the current and previous-close price of a ticker.
// A zero in either price marks a provider gap, see Valid.
type QuoteSnapshot struct {
	Ticker        Ticker  `json:"ticker"`
	CurrentPrice  float64 `json:"current_price"`
	PreviousClose float64 `json:"previous_close"`
}

// Valid reports whether both prices are usable
func (q QuoteSnapshot) Valid() bool {
	return q.CurrentPrice > 0 && q.PreviousClose > 0
}

// PercentChange returns (current - previous) / previous * 100, or 0 for an
// invalid snapshot
func (q QuoteSnapshot) PercentChange() float64 {
	if !q.Valid() {
		return 0
	}
	return (q.CurrentPrice - q.PreviousClose) / q.PreviousClose * 100
}

// Headline is a news item used as a catalyst
type Headline struct {
	Title       string    `json:"title"`
	Source      string    `json:"source,omitempty"`
	URL         string    `json:"url,omitempty"`
	PublishedAt time.Time `json:"published_at,omitempty"`
}
