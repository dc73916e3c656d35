package lexicon

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/internal/indexer/shard"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/pkg/metrics"
)

// DefaultReaderCacheSize is the number of parsed barrels a Reader keeps.
const DefaultReaderCacheSize = 4

// Reader resolves terms for the query path without loading the whole
// lexicon. Parsed barrels are kept in an LRU cache; concurrent misses on the
// same barrel share one parse.
type Reader struct {
	dir     string
	cache   *lru.Cache[int, map[string]int]
	group   singleflight.Group
	logger  *slog.Logger
	metrics *metrics.Metrics
	hits    atomic.Int64
	misses  atomic.Int64
}

// ReaderOption customises a Reader.
type ReaderOption func(*Reader)

// WithReaderMetrics counts barrel cache hits and misses.
func WithReaderMetrics(m *metrics.Metrics) ReaderOption {
	return func(r *Reader) { r.metrics = m }
}

// NewReader creates a Reader over the barrels in dir.
func NewReader(dir string, cacheSize int, opts ...ReaderOption) (*Reader, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultReaderCacheSize
	}
	cache, err := lru.New[int, map[string]int](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating lexicon barrel cache: %w", err)
	}
	r := &Reader{
		dir:    dir,
		cache:  cache,
		logger: slog.Default().With("component", "lexicon-reader"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Resolve looks term up in its barrel.
func (r *Reader) Resolve(term string) (int, bool, error) {
	barrel, err := r.barrel(shard.LexiconShard(term))
	if err != nil {
		return 0, false, err
	}
	id, ok := barrel[term]
	return id, ok, nil
}

// ResolveAll resolves many terms, visiting each barrel once. Unknown terms are
// absent from the result. A barrel that cannot be read is logged and its
// terms are treated as unknown.
func (r *Reader) ResolveAll(terms []string) map[string]int {
	sorted := append([]string(nil), terms...)
	sort.Strings(sorted)
	keys, groups := shard.GroupBy(sorted, shard.LexiconShard)
	resolved := make(map[string]int, len(terms))
	for _, n := range keys {
		barrel, err := r.barrel(n)
		if err != nil {
			r.logger.Error("lexicon barrel unreadable, terms unresolved",
				"barrel", n,
				"terms", len(groups[n]),
				"error", err,
			)
			continue
		}
		for _, term := range groups[n] {
			if id, ok := barrel[term]; ok {
				resolved[term] = id
			}
		}
	}
	return resolved
}

// Invalidate drops the cached copy of the given barrels, or of every barrel
// when none are named.
func (r *Reader) Invalidate(barrels ...int) {
	if len(barrels) == 0 {
		r.cache.Purge()
		return
	}
	for _, n := range barrels {
		r.cache.Remove(n)
	}
}

// Stats returns barrel cache hits and misses.
func (r *Reader) Stats() (hits, misses int64) {
	return r.hits.Load(), r.misses.Load()
}

func (r *Reader) barrel(n int) (map[string]int, error) {
	if m, ok := r.cache.Get(n); ok {
		r.hits.Add(1)
		r.metrics.RecordLexiconLookup(true)
		return m, nil
	}
	r.misses.Add(1)
	r.metrics.RecordLexiconLookup(false)
	v, err, _ := r.group.Do(strconv.Itoa(n), func() (any, error) {
		m := make(map[string]int)
		err := ReadBarrel(r.dir, n, func(e Entry) {
			if _, exists := m[e.Term]; !exists {
				m[e.Term] = e.ID
			}
		})
		if err != nil {
			return nil, err
		}
		r.cache.Add(n, m)
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]int), nil
}
