package cache

import (
	"context"
	"errors"
	"path"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/internal/searcher/ranker"
)

type memBackend struct {
	mu     sync.Mutex
	data   map[string][]byte
	ttls   map[string]time.Duration
	getErr error
}

func newMemBackend() *memBackend {
	return &memBackend{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memBackend) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, redis.Nil
	}
	return v, nil
}

func (m *memBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

func (m *memBackend) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.data {
		if ok, _ := path.Match(pattern, k); ok {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

func result(query string) *executor.SearchResult {
	return &executor.SearchResult{
		Query:     query,
		TotalHits: 1,
		Results:   []ranker.ScoredDoc{{DocID: "D1", Score: 1.5}},
	}
}

func TestBuildKeyNormalizesTerms(t *testing.T) {
	opts := executor.Options{Limit: 10}
	assert.Equal(t,
		BuildKey(parser.Parse("virus transmission"), opts),
		BuildKey(parser.Parse("the Transmission of VIRUSES"), opts),
	)
}

func TestBuildKeyVariesWithOptions(t *testing.T) {
	plan := parser.Parse("virus")
	base := BuildKey(plan, executor.Options{Limit: 10})
	assert.NotEqual(t, base, BuildKey(plan, executor.Options{Limit: 20}))
	assert.NotEqual(t, base, BuildKey(plan, executor.Options{Limit: 10, UseSemantic: true}))
	assert.NotEqual(t, base, BuildKey(plan, executor.Options{Limit: 10, SemanticWeight: 0.3}))
	assert.NotEqual(t, base, BuildKey(plan, executor.Options{Limit: 10, Rerank: true}))
}

func TestGetOrComputeCachesResult(t *testing.T) {
	backend := newMemBackend()
	c := New(backend, time.Minute, nil)
	plan := parser.Parse("virus")
	opts := executor.Options{Limit: 5}

	var calls atomic.Int32
	compute := func() (*executor.SearchResult, error) {
		calls.Add(1)
		return result("virus"), nil
	}

	first, hit, err := c.GetOrCompute(context.Background(), plan, opts, compute)
	require.NoError(t, err)
	assert.False(t, hit)
	second, hit, err := c.GetOrCompute(context.Background(), plan, opts, compute)
	require.NoError(t, err)
	assert.True(t, hit)

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, first.Results, second.Results)
	assert.Equal(t, time.Minute, backend.ttls[BuildKey(plan, opts)])

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestGetOrComputePropagatesError(t *testing.T) {
	c := New(newMemBackend(), time.Minute, nil)
	boom := errors.New("boom")
	_, _, err := c.GetOrCompute(context.Background(), parser.Parse("virus"), executor.Options{}, func() (*executor.SearchResult, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestBackendErrorIsAMiss(t *testing.T) {
	backend := newMemBackend()
	backend.getErr = errors.New("connection refused")
	c := New(backend, time.Minute, nil)
	_, ok := c.Get(context.Background(), parser.Parse("virus"), executor.Options{})
	assert.False(t, ok)
}

func TestInvalidate(t *testing.T) {
	backend := newMemBackend()
	backend.data["unrelated"] = []byte("x")
	c := New(backend, time.Minute, nil)
	c.Set(context.Background(), parser.Parse("virus"), executor.Options{}, result("virus"))
	c.Set(context.Background(), parser.Parse("vaccine"), executor.Options{}, result("vaccine"))

	n, err := c.Invalidate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Contains(t, backend.data, "unrelated")

	_, ok := c.Get(context.Background(), parser.Parse("virus"), executor.Options{})
	assert.False(t, ok)
}
