package finviz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/gapscan/internal/contracts"
	"github.com/wonny/gapscan/pkg/logger"
)

func TestStaticDiscovery_Dedup(t *testing.T) {
	s := NewStaticDiscovery([]string{"gme", "PLTR", "GME", "bad symbol"})

	got, err := s.Discover(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, []contracts.Ticker{"GME", "PLTR"}, got)

	got, err = s.Discover(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []contracts.Ticker{"GME"}, got)
}

func TestFingerprint(t *testing.T) {
	a := NewStaticDiscovery([]string{"GME", "PLTR"})
	assert.Equal(t, a.Fingerprint(), NewStaticDiscovery([]string{"gme", "pltr"}).Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), NewStaticDiscovery([]string{"GME"}).Fingerprint())

	log := logger.Nop()
	gainers := NewClient(nil, log, "")
	other := NewClient(nil, log, "https://finviz.com/screener.ashx?v=111&s=ta_topgainers")
	assert.Contains(t, gainers.Fingerprint(), "finviz-")
	assert.NotEqual(t, gainers.Fingerprint(), other.Fingerprint())
	assert.NotEqual(t, gainers.Fingerprint(), a.Fingerprint())
}
