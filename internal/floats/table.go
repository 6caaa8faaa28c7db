package floats

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/wonny/gapscan/internal/contracts"
	"github.com/wonny/gapscan/pkg/config"
)

// Unknown is the float reported for an unknown ticker under the disqualify
// policy; it fails any float ceiling
const Unknown = math.MaxFloat64

// DefaultSmallFloat is the float assumed for unknown tickers under assume-small
const DefaultSmallFloat = 5.0

// builtin holds well-known floats in millions of shares
var builtin = map[contracts.Ticker]float64{
	"GME":  9.5,
	"PLTR": 8.8,
	"TSLA": 800,
	"NVDA": 2000,
}

// Table estimates public float from a lookup table
// ⭐ SSOT: float estimates come from this table only
type Table struct {
	mu             sync.RWMutex
	floats         map[contracts.Ticker]float64
	policy         string
	defaultMillion float64
}

// NewTable creates a table seeded with the built-in estimates
func NewTable(policy string, defaultMillion float64) (*Table, error) {
	switch policy {
	case config.FloatPolicyAssumeSmall, config.FloatPolicyDisqualify:
	case "":
		policy = config.FloatPolicyDisqualify
	default:
		return nil, fmt.Errorf("%w: unknown float policy %q", contracts.ErrConfiguration, policy)
	}
	if defaultMillion <= 0 {
		defaultMillion = DefaultSmallFloat
	}

	t := &Table{
		floats:         make(map[contracts.Ticker]float64, len(builtin)),
		policy:         policy,
		defaultMillion: defaultMillion,
	}
	for k, v := range builtin {
		t.floats[k] = v
	}
	return t, nil
}

// NewTableFromConfig creates a table using the configured unknown-ticker policy
func NewTableFromConfig(cfg *config.Config) (*Table, error) {
	return NewTable(cfg.Float.UnknownPolicy, cfg.Float.DefaultMillion)
}

// Merge adds or replaces entries. Non-positive values are ignored.
func (t *Table) Merge(overrides map[contracts.Ticker]float64) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for k, v := range overrides {
		if v <= 0 || !k.Valid() {
			continue
		}
		t.floats[k] = v
		n++
	}
	return n
}

// Lookup returns the known float for ticker
func (t *Table) Lookup(ticker contracts.Ticker) (float64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.floats[ticker]
	return v, ok
}

// Policy returns the unknown-ticker policy in effect
func (t *Table) Policy() string {
	return t.policy
}

// Fingerprint identifies the unknown-ticker policy in shared cache keys
func (t *Table) Fingerprint() string {
	if t.policy == config.FloatPolicyAssumeSmall {
		return fmt.Sprintf("%s-%g", t.policy, t.defaultMillion)
	}
	return t.policy
}

// Estimate returns the float in millions of shares. Unknown tickers get the
// policy value, never an error.
func (t *Table) Estimate(ctx context.Context, ticker contracts.Ticker) (float64, error) {
	if v, ok := t.Lookup(ticker); ok {
		return v, nil
	}
	if t.policy == config.FloatPolicyAssumeSmall {
		return t.defaultMillion, nil
	}
	return Unknown, nil
}
