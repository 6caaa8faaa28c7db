package profile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/gapscan/internal/contracts"
)

func TestBuiltin(t *testing.T) {
	set, err := Builtin()
	require.NoError(t, err)
	assert.Equal(t, []string{Gappers, Manual}, set.Names())

	gappers, err := set.Get(Gappers)
	require.NoError(t, err)
	assert.Equal(t, DiscoveryFinviz, gappers.Discovery)
	assert.Equal(t, contracts.DefaultCriteria(), gappers.Criteria)
	assert.Empty(t, gappers.FloatPolicy)

	manual, err := set.Get(Manual)
	require.NoError(t, err)
	assert.Equal(t, DiscoveryStatic, manual.Discovery)
	assert.Equal(t, 50, manual.Criteria.MaxCandidates)
}

func TestSet_GetUnknown(t *testing.T) {
	set, err := Builtin()
	require.NoError(t, err)

	_, err = set.Get("nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, contracts.ErrConfiguration))
}

func TestSet_GetReturnsCopy(t *testing.T) {
	set, err := Parse([]byte(`
profiles:
  mine:
    discovery: static
    tickers: [AAA]
    criteria: {price_min: 1, price_max: 5, percent_change_min: 5, relative_volume_min: 2, float_max_millions: 20, lookback_days: 10, max_candidates: 5}
`))
	require.NoError(t, err)

	p, err := set.Get("mine")
	require.NoError(t, err)
	p.Tickers[0] = "ZZZ"
	p.Criteria.PriceMax = 100

	again, err := set.Get("mine")
	require.NoError(t, err)
	assert.Equal(t, []string{"AAA"}, again.Tickers)
	assert.Equal(t, 5.0, again.Criteria.PriceMax)
}

func TestParse_UnknownField(t *testing.T) {
	_, err := Parse([]byte(`
profiles:
  typo:
    discovery: finviz
    critera: {}
`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, contracts.ErrConfiguration))
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad discovery", `
profiles:
  x:
    discovery: reddit
    criteria: {price_min: 1, price_max: 20, percent_change_min: 10, relative_volume_min: 5, float_max_millions: 10, lookback_days: 20, max_candidates: 20}
`},
		{"bad criteria", `
profiles:
  x:
    discovery: finviz
    criteria: {price_min: 30, price_max: 20, percent_change_min: 10, relative_volume_min: 5, float_max_millions: 10, lookback_days: 20, max_candidates: 20}
`},
		{"bad ticker", `
profiles:
  x:
    discovery: static
    tickers: ["BRK.B"]
    criteria: {price_min: 1, price_max: 20, percent_change_min: 10, relative_volume_min: 5, float_max_millions: 10, lookback_days: 20, max_candidates: 20}
`},
		{"bad float policy", `
profiles:
  x:
    discovery: static
    float_policy: maybe
    criteria: {price_min: 1, price_max: 20, percent_change_min: 10, relative_volume_min: 5, float_max_millions: 10, lookback_days: 20, max_candidates: 20}
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.True(t, errors.Is(err, contracts.ErrConfiguration))
		})
	}
}

func TestLoad_OverridesBuiltin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
profiles:
  gappers:
    discovery: finviz
    criteria: {price_min: 2, price_max: 10, percent_change_min: 20, relative_volume_min: 3, float_max_millions: 15, lookback_days: 10, max_candidates: 10}
  watchlist:
    discovery: static
    float_policy: assume-small
    tickers: [gme, pltr]
    criteria: {price_min: 1, price_max: 50, percent_change_min: 5, relative_volume_min: 2, float_max_millions: 20, lookback_days: 20, max_candidates: 10}
`), 0o600))

	set, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{Gappers, Manual, "watchlist"}, set.Names())

	g, err := set.Get(Gappers)
	require.NoError(t, err)
	assert.Equal(t, 2.0, g.Criteria.PriceMin)

	w, err := set.Get("watchlist")
	require.NoError(t, err)
	assert.Equal(t, []string{"gme", "pltr"}, w.Tickers)
	assert.Equal(t, "assume-small", w.FloatPolicy)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errors.Is(err, contracts.ErrConfiguration))
}

func TestHash_Deterministic(t *testing.T) {
	set, err := Builtin()
	require.NoError(t, err)
	p, err := set.Get(Gappers)
	require.NoError(t, err)

	h1, err := Hash(p)
	require.NoError(t, err)
	h2, err := Hash(p)
	require.NoError(t, err)
	assert.Len(t, h1, 64)
	assert.Equal(t, h1, h2)
}
