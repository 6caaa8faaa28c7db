package contracts

import (
	"sort"
	"strings"
)

// MaxTickerLength bounds a plausible exchange symbol
const MaxTickerLength = 10

// Ticker is an uppercase stock symbol; the identity key for all per-symbol data
type Ticker string

// NormalizeTicker trims and uppercases a raw symbol
func NormalizeTicker(raw string) Ticker {
	return Ticker(strings.ToUpper(strings.TrimSpace(raw)))
}

// String implements fmt.Stringer
func (t Ticker) String() string {
	return string(t)
}

// Valid reports whether t is 1..MaxTickerLength ASCII letters, already uppercased
func (t Ticker) Valid() bool {
	if len(t) == 0 || len(t) > MaxTickerLength {
		return false
	}
	for i := 0; i < len(t); i++ {
		if t[i] < 'A' || t[i] > 'Z' {
			return false
		}
	}
	return true
}

// ParseTickers normalizes a comma/space separated list, dropping invalid and
// duplicate symbols while keeping the first-seen order
func ParseTickers(raw string) []Ticker {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == ';'
	})
	return UniqueTickers(fields, 0)
}

// UniqueTickers normalizes, validates and dedups symbols in encounter order.
// limit <= 0 means no limit.
func UniqueTickers(raw []string, limit int) []Ticker {
	seen := make(map[Ticker]struct{}, len(raw))
	out := make([]Ticker, 0, len(raw))
	for _, r := range raw {
		t := NormalizeTicker(r)
		if !t.Valid() {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// JoinTickers renders tickers as "A, B, C"
func JoinTickers(tickers []Ticker) string {
	parts := make([]string, len(tickers))
	for i, t := range tickers {
		parts[i] = string(t)
	}
	return strings.Join(parts, ", ")
}

// SortedTickers returns the keys of m sorted, for stable output
func SortedTickers[V any](m map[Ticker]V) []Ticker {
	out := make([]Ticker, 0, len(m))
	for t := range m {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
