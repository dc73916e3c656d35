// Package semantic loads a word-embedding table and answers approximate
// "most similar words" queries by cosine similarity.
//
// Similarity search compares the query word against a bounded random sample
// of the table rather than every word, so results are approximate. Without
// a fixed seed, two engines can return different neighbours for the same
// word; results are cached per (word, topK, threshold) for the life of the
// engine, so repeated calls within one process agree.
package semantic

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"math/rand/v2"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	apperrors "github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/pkg/metrics"
)

const (
	DefaultDimension  = 100
	DefaultSampleSize = 20000
	DefaultCacheSize  = 10000

	epsilon       = 1e-10
	maxLineWarns  = 10
	pcgStreamSalt = 0x9e3779b97f4a7c15
)

// Config controls loading and sampling.
type Config struct {
	Path      string
	Dimension int
	// SampleSize caps the candidates compared per query. Zero or a value
	// not smaller than the table compares every word.
	SampleSize int
	// Seed makes sampling reproducible when nonzero.
	Seed      int64
	CacheSize int
}

// Similar is one neighbour of a query word.
type Similar struct {
	Word  string  `json:"word"`
	Score float64 `json:"score"`
}

type cacheKey struct {
	word      string
	topK      int
	threshold float64
}

// Engine is safe for concurrent use once loaded.
type Engine struct {
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	loadMu sync.Mutex
	loaded atomic.Bool

	words   []string
	index   map[string]int
	vectors []float32
	norms   []float64

	rngMu sync.Mutex
	rng   *rand.Rand

	cache  *lru.Cache[cacheKey, []Similar]
	group  singleflight.Group
	hits   atomic.Int64
	misses atomic.Int64
}

// Option customises an Engine.
type Option func(*Engine)

// WithMetrics records similarity cache lookups and the table size.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New returns an unloaded engine.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if cfg.Dimension <= 0 {
		cfg.Dimension = DefaultDimension
	}
	if cfg.SampleSize < 0 {
		return nil, apperrors.Invalidf("sample size must be non-negative, got %d", cfg.SampleSize)
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	cache, err := lru.New[cacheKey, []Similar](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating similarity cache: %w", err)
	}

	var src rand.Source
	if cfg.Seed != 0 {
		seed := uint64(cfg.Seed)
		src = rand.NewPCG(seed, seed^pcgStreamSalt)
	} else {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}

	e := &Engine{
		cfg:    cfg,
		logger: slog.Default().With("component", "semantic"),
		index:  make(map[string]int),
		rng:    rand.New(src),
		cache:  cache,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Load reads the embedding table once. A missing file is not an error: the
// engine stays unloaded and every query returns nothing. Calling Load again
// after a successful load is a no-op.
func (e *Engine) Load() (bool, error) {
	if e.loaded.Load() {
		return true, nil
	}
	e.loadMu.Lock()
	defer e.loadMu.Unlock()
	if e.loaded.Load() {
		return true, nil
	}

	f, err := os.Open(e.cfg.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			e.logger.Warn("embeddings not found, semantic search disabled", "path", e.cfg.Path)
			return false, nil
		}
		return false, fmt.Errorf("opening embeddings: %w", err)
	}
	defer f.Close()

	dim := e.cfg.Dimension
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo, skipped := 0, 0
	for scanner.Scan() {
		lineNo++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		vec, err := parseVector(fields, dim)
		if err != nil {
			skipped++
			if skipped <= maxLineWarns {
				e.logger.Warn("skipping malformed embedding line",
					"file", e.cfg.Path,
					"line", lineNo,
					"error", err,
				)
			}
			continue
		}
		word := fields[0]
		if _, dup := e.index[word]; dup {
			continue
		}
		e.index[word] = len(e.words)
		e.words = append(e.words, word)
		e.vectors = append(e.vectors, vec...)
		e.norms = append(e.norms, norm(vec))
	}
	if err := scanner.Err(); err != nil {
		e.reset()
		return false, fmt.Errorf("reading embeddings: %w", err)
	}

	e.loaded.Store(true)
	if e.metrics != nil {
		e.metrics.EmbeddingsLoaded.Set(float64(len(e.words)))
	}
	e.logger.Info("embeddings loaded",
		"path", e.cfg.Path,
		"words", len(e.words),
		"skipped_lines", skipped,
		"dimension", dim,
	)
	return true, nil
}

func (e *Engine) reset() {
	e.words = nil
	e.index = make(map[string]int)
	e.vectors = nil
	e.norms = nil
}

func parseVector(fields []string, dim int) ([]float32, error) {
	if len(fields) != dim+1 {
		return nil, fmt.Errorf("expected %d fields, got %d", dim+1, len(fields))
	}
	vec := make([]float32, dim)
	for i, s := range fields[1:] {
		v, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return nil, fmt.Errorf("component %d: %w", i, err)
		}
		vec[i] = float32(v)
	}
	return vec, nil
}

// Loaded reports whether the table is available.
func (e *Engine) Loaded() bool {
	return e.loaded.Load()
}

// Size returns the number of words in the table.
func (e *Engine) Size() int {
	if !e.Loaded() {
		return 0
	}
	return len(e.words)
}

// Vector returns the embedding of word. The slice must not be modified.
func (e *Engine) Vector(word string) ([]float32, bool) {
	if !e.Loaded() {
		return nil, false
	}
	i, ok := e.index[word]
	if !ok {
		return nil, false
	}
	return e.row(i), true
}

// Has reports whether word has an embedding.
func (e *Engine) Has(word string) bool {
	_, ok := e.Vector(word)
	return ok
}

// Similarity returns the cosine similarity of two known words.
func (e *Engine) Similarity(a, b string) (float64, bool) {
	if !e.Loaded() {
		return 0, false
	}
	i, ok := e.index[a]
	if !ok {
		return 0, false
	}
	j, ok := e.index[b]
	if !ok {
		return 0, false
	}
	return dot(e.row(i), e.row(j)) / (e.norms[i]*e.norms[j] + epsilon), true
}

func (e *Engine) row(i int) []float32 {
	dim := e.cfg.Dimension
	return e.vectors[i*dim : (i+1)*dim : (i+1)*dim]
}

// FindSimilar returns up to topK words whose similarity to word is at least
// threshold, most similar first. The word itself is never returned. An
// unloaded engine or an unknown word yields no results.
func (e *Engine) FindSimilar(word string, topK int, threshold float64) ([]Similar, error) {
	if err := validate(topK, threshold); err != nil {
		return nil, err
	}
	if topK == 0 || !e.Loaded() {
		return nil, nil
	}
	qi, ok := e.index[word]
	if !ok || e.norms[qi] == 0 {
		return nil, nil
	}

	key := cacheKey{word: word, topK: topK, threshold: threshold}
	if cached, ok := e.cache.Get(key); ok {
		e.hits.Add(1)
		e.metrics.RecordSimilarityLookup(true)
		return cached, nil
	}
	e.misses.Add(1)
	e.metrics.RecordSimilarityLookup(false)

	flightKey := word + "\x00" + strconv.Itoa(topK) + "\x00" + strconv.FormatFloat(threshold, 'g', -1, 64)
	v, _, _ := e.group.Do(flightKey, func() (any, error) {
		result := e.search(qi, topK, threshold)
		e.cache.Add(key, result)
		return result, nil
	})
	return v.([]Similar), nil
}

func (e *Engine) search(qi, topK int, threshold float64) []Similar {
	query := e.row(qi)
	qnorm := e.norms[qi]
	var found []Similar
	for _, i := range e.candidates() {
		if i == qi {
			continue
		}
		sim := dot(e.row(i), query) / (e.norms[i]*qnorm + epsilon)
		if sim >= threshold {
			found = append(found, Similar{Word: e.words[i], Score: sim})
		}
	}
	sort.Slice(found, func(a, b int) bool {
		if found[a].Score != found[b].Score {
			return found[a].Score > found[b].Score
		}
		return found[a].Word < found[b].Word
	})
	if len(found) > topK {
		found = found[:topK]
	}
	return found
}

// candidates returns the row indices compared for one query: the whole
// table when it fits within SampleSize, otherwise SampleSize distinct rows
// drawn at random.
func (e *Engine) candidates() []int {
	n := len(e.words)
	size := e.cfg.SampleSize
	if size == 0 || n <= size {
		all := make([]int, n)
		for i := range all {
			all[i] = i
		}
		return all
	}
	seen := make(map[int]struct{}, size)
	picks := make([]int, 0, size)
	e.rngMu.Lock()
	for len(picks) < size {
		i := e.rng.IntN(n)
		if _, dup := seen[i]; dup {
			continue
		}
		seen[i] = struct{}{}
		picks = append(picks, i)
	}
	e.rngMu.Unlock()
	sort.Ints(picks)
	return picks
}

// ExpandQuery maps each term with at least one neighbour to its neighbours.
// Terms without neighbours are absent.
func (e *Engine) ExpandQuery(terms []string, topK int, threshold float64) (map[string][]Similar, error) {
	if err := validate(topK, threshold); err != nil {
		return nil, err
	}
	expanded := make(map[string][]Similar)
	for _, term := range terms {
		if _, done := expanded[term]; done {
			continue
		}
		similar, err := e.FindSimilar(term, topK, threshold)
		if err != nil {
			return nil, err
		}
		if len(similar) > 0 {
			expanded[term] = similar
		}
	}
	return expanded, nil
}

// CacheStats reports similarity cache occupancy and lookups.
type CacheStats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

func (e *Engine) CacheStats() CacheStats {
	return CacheStats{
		Entries: e.cache.Len(),
		Hits:    e.hits.Load(),
		Misses:  e.misses.Load(),
	}
}

func validate(topK int, threshold float64) error {
	if topK < 0 {
		return apperrors.Invalidf("top_k must be non-negative, got %d", topK)
	}
	if math.IsNaN(threshold) || threshold < -1 || threshold > 1 {
		return apperrors.Invalidf("threshold must be in [-1,1], got %v", threshold)
	}
	return nil
}

// Cosine returns the cosine similarity of two equal-length vectors, guarded
// against zero norms.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	return dot(a, b) / (norm(a)*norm(b) + epsilon)
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func norm(v []float32) float64 {
	return math.Sqrt(dot(v, v))
}
