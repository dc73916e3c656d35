package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/pkg/redis"
)

const keyPrefix = "papersearch:search:"

// Backend is the key-value store behind the cache. *pkgredis.Client
// satisfies it.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// QueryCache stores executed search results keyed by the query's
// normalized terms and the options that change scoring.
type QueryCache struct {
	backend Backend
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

func New(backend Backend, ttl time.Duration, m *metrics.Metrics) *QueryCache {
	return &QueryCache{
		backend: backend,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

func (c *QueryCache) Get(ctx context.Context, plan *parser.QueryPlan, opts executor.Options) (*executor.SearchResult, bool) {
	key := BuildKey(plan, opts)
	data, err := c.backend.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.miss()
		return nil, false
	}
	var result executor.SearchResult
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
	c.logger.Debug("cache hit", "query", plan.RawQuery, "key", key)
	return &result, true
}

func (c *QueryCache) Set(ctx context.Context, plan *parser.QueryPlan, opts executor.Options, result *executor.SearchResult) {
	key := BuildKey(plan, opts)
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.backend.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result, or runs computeFn once for all
// concurrent callers with the same key and caches its result.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	plan *parser.QueryPlan,
	opts executor.Options,
	computeFn func() (*executor.SearchResult, error),
) (*executor.SearchResult, bool, error) {
	if result, ok := c.Get(ctx, plan, opts); ok {
		return result, true, nil
	}
	key := BuildKey(plan, opts)
	val, err, _ := c.group.Do(key, func() (any, error) {
		result, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, plan, opts, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*executor.SearchResult), false, nil
}

// Invalidate drops every cached result.
func (c *QueryCache) Invalidate(ctx context.Context) (int64, error) {
	deleted, err := c.backend.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return deleted, fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidate", "keys_deleted", deleted)
	return deleted, nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

// BuildKey hashes the normalized terms and every option that affects the
// result. The raw query text is not part of the key: queries that tokenize
// to the same terms share an entry.
func BuildKey(plan *parser.QueryPlan, opts executor.Options) string {
	raw := plan.Normalized() +
		"|limit=" + strconv.Itoa(opts.Limit) +
		"|semantic=" + strconv.FormatBool(opts.UseSemantic) +
		"|weight=" + strconv.FormatFloat(opts.SemanticWeight, 'g', -1, 64) +
		"|rerank=" + strconv.FormatBool(opts.Rerank)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}
