package floats

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/gapscan/internal/contracts"
	"github.com/wonny/gapscan/pkg/config"
	"github.com/wonny/gapscan/pkg/logger"
)

func TestTable_Builtin(t *testing.T) {
	table, err := NewTable(config.FloatPolicyDisqualify, 0)
	require.NoError(t, err)

	tests := []struct {
		ticker contracts.Ticker
		want   float64
	}{
		{"GME", 9.5},
		{"PLTR", 8.8},
		{"TSLA", 800},
		{"NVDA", 2000},
	}
	for _, tt := range tests {
		t.Run(string(tt.ticker), func(t *testing.T) {
			got, err := table.Estimate(context.Background(), tt.ticker)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTable_UnknownPolicy(t *testing.T) {
	disqualify, err := NewTable(config.FloatPolicyDisqualify, 0)
	require.NoError(t, err)
	v, err := disqualify.Estimate(context.Background(), "ZZZ")
	require.NoError(t, err)
	assert.Equal(t, Unknown, v)
	assert.Greater(t, v, contracts.DefaultCriteria().FloatMaxMillions)

	small, err := NewTable(config.FloatPolicyAssumeSmall, 0)
	require.NoError(t, err)
	v, err = small.Estimate(context.Background(), "ZZZ")
	require.NoError(t, err)
	assert.Equal(t, DefaultSmallFloat, v)

	custom, err := NewTable(config.FloatPolicyAssumeSmall, 3)
	require.NoError(t, err)
	v, _ = custom.Estimate(context.Background(), "ZZZ")
	assert.Equal(t, 3.0, v)
}

func TestTable_DefaultsToDisqualify(t *testing.T) {
	table, err := NewTable("", 0)
	require.NoError(t, err)
	assert.Equal(t, config.FloatPolicyDisqualify, table.Policy())
}

func TestNewTable_InvalidPolicy(t *testing.T) {
	_, err := NewTable("guess", 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, contracts.ErrConfiguration))
}

func TestTable_Merge(t *testing.T) {
	table, err := NewTable(config.FloatPolicyDisqualify, 0)
	require.NoError(t, err)

	n := table.Merge(map[contracts.Ticker]float64{
		"AAA": 8,
		"GME": 300,
		"BAD": 0,
		"b-c": 4,
	})
	assert.Equal(t, 2, n)

	v, ok := table.Lookup("AAA")
	assert.True(t, ok)
	assert.Equal(t, 8.0, v)

	v, _ = table.Lookup("GME")
	assert.Equal(t, 300.0, v)

	_, ok = table.Lookup("BAD")
	assert.False(t, ok)
}

type fakeOverrides struct {
	data map[contracts.Ticker]float64
	err  error
}

func (f fakeOverrides) LoadAll(ctx context.Context) (map[contracts.Ticker]float64, error) {
	return f.data, f.err
}

func TestLoadOverrides(t *testing.T) {
	table, err := NewTable(config.FloatPolicyDisqualify, 0)
	require.NoError(t, err)

	err = LoadOverrides(context.Background(), table, fakeOverrides{data: map[contracts.Ticker]float64{"AAA": 8}}, logger.Nop())
	require.NoError(t, err)
	v, ok := table.Lookup("AAA")
	assert.True(t, ok)
	assert.Equal(t, 8.0, v)

	boom := errors.New("db down")
	err = LoadOverrides(context.Background(), table, fakeOverrides{err: boom}, logger.Nop())
	assert.ErrorIs(t, err, boom)
	_, ok = table.Lookup("AAA")
	assert.True(t, ok)
}

func TestTable_Fingerprint(t *testing.T) {
	strict, err := NewTable(config.FloatPolicyDisqualify, 5)
	require.NoError(t, err)
	small, err := NewTable(config.FloatPolicyAssumeSmall, 5)
	require.NoError(t, err)
	smaller, err := NewTable(config.FloatPolicyAssumeSmall, 2.5)
	require.NoError(t, err)

	assert.Equal(t, "disqualify", strict.Fingerprint())
	assert.Equal(t, "assume-small-5", small.Fingerprint())
	assert.Equal(t, "assume-small-2.5", smaller.Fingerprint())
}
