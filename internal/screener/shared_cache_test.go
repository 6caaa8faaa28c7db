package screener

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/gapscan/internal/contracts"
	"github.com/wonny/gapscan/internal/external/finviz"
	"github.com/wonny/gapscan/internal/floats"
	"github.com/wonny/gapscan/internal/resultcache"
	"github.com/wonny/gapscan/pkg/config"
)

// memStore stands in for Redis: one JSON keyspace shared by several caches
type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemStore() *memStore { return &memStore{data: map[string][]byte{}} }

func (m *memStore) Enabled() bool { return true }

func (m *memStore) Get(ctx context.Context, k string, dest interface{}) (bool, error) {
	m.mu.Lock()
	raw, ok := m.data[k]
	m.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (m *memStore) Set(ctx context.Context, k string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data[k] = raw
	m.mu.Unlock()
	return nil
}

func (m *memStore) Flush(ctx context.Context, match string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k := range m.data {
		if strings.HasPrefix(k, match) {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

// processPipeline builds a pipeline as a separate gapscan process would:
// its own memory cache, the shared store behind it
func processPipeline(t *testing.T, f *fixture, store resultcache.Store, discovery contracts.CandidateDiscovery, policy string) *Pipeline {
	t.Helper()
	table, err := floats.NewTable(policy, 5)
	require.NoError(t, err)
	table.Merge(map[contracts.Ticker]float64{"AAA": 3})

	deps := f.collaborators()
	deps.Discovery = discovery
	deps.Floats = table
	deps.Cache = resultcache.New(resultcache.Options{L2: store})

	p, err := New(Config{Criteria: contracts.DefaultCriteria(), FetchTimeout: time.Second}, deps, nil)
	require.NoError(t, err)
	return p
}

func withUnknownFloatGapper(f *fixture) {
	f.market.quotes["ZZZ"] = contracts.QuoteSnapshot{CurrentPrice: 5, PreviousClose: 4}
	f.market.histories["ZZZ"] = gapperHistory()
	f.catalysts.headlines["ZZZ"] = "ZZZ wins contract"
}

func TestScan_SharedStoreKeepsFloatPolicyApart(t *testing.T) {
	f := newFixture()
	withUnknownFloatGapper(f)
	store := newMemStore()
	list := finviz.NewStaticDiscovery([]string{"AAA", "ZZZ"})

	small := processPipeline(t, f, store, list, config.FloatPolicyAssumeSmall)
	strict := processPipeline(t, f, store, list, config.FloatPolicyDisqualify)

	r1, err := small.Scan(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, []contracts.Ticker{"AAA", "ZZZ"}, resultTickers(r1))

	r2, err := strict.Scan(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, []contracts.Ticker{"AAA"}, resultTickers(r2))
	assert.Equal(t, contracts.RejectFloat, r2.Rejected["ZZZ"])

	// Quotes carry no configuration and are still shared
	assert.Equal(t, int32(2), f.market.quoteCalls.Load())
}

func TestScan_SharedStoreKeepsDiscoverySourcesApart(t *testing.T) {
	f := newFixture()
	store := newMemStore()

	first := processPipeline(t, f, store, finviz.NewStaticDiscovery([]string{"AAA", "BBB"}), config.FloatPolicyDisqualify)
	second := processPipeline(t, f, store, finviz.NewStaticDiscovery([]string{"CCC"}), config.FloatPolicyDisqualify)

	r1, err := first.Scan(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, []contracts.Ticker{"AAA", "BBB"}, r1.Candidates)

	r2, err := second.Scan(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, []contracts.Ticker{"CCC"}, r2.Candidates)
}
