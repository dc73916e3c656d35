// Package indexer adds documents to the lexicon and inverted index barrels.
// All barrel mutation happens on one goroutine at a time; bulk indexing fans
// tokenization out to workers and folds their results back in input order.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/internal/document"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/internal/indexer/docstats"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/internal/indexer/lexicon"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/internal/semantic"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/pkg/metrics"
)

const lockFile = ".index.lock"

// Shards lists the barrels touched by an indexing operation.
type Shards struct {
	Lexicon       []int `json:"lexicon"`
	InvertedIndex []int `json:"inverted_index"`
}

// Result describes one indexed document.
type Result struct {
	PaperID    string   `json:"paper_id"`
	TermsAdded int      `json:"terms_added"`
	NewTerms   []string `json:"-"`
	Shards     Shards   `json:"barrels_updated"`
	// SavedPath is the document store file written for the record, if any.
	SavedPath  string   `json:"-"`
}

// BatchResult summarises a bulk run.
type BatchResult struct {
	Indexed    int      `json:"indexed"`
	Failed     int      `json:"failed"`
	TermsAdded int      `json:"terms_added"`
	NewTerms   []string `json:"-"`
	Shards     Shards   `json:"barrels_updated"`
}

// Engine owns the writable barrels of one data directory. Only one Engine
// per directory may exist across processes; the second gets ErrIndexLocked.
type Engine struct {
	cfg      config.IndexerConfig
	lex      *lexicon.Store
	inv      *index.Store
	stats    *docstats.Store
	docs     *document.Store
	semantic *semantic.Engine
	lock     *flock.Flock
	metrics  *metrics.Metrics
	logger   *slog.Logger

	mu sync.Mutex
}

// Option customises an Engine.
type Option func(*Engine)

// WithDocumentStore saves every incrementally indexed record into store.
func WithDocumentStore(store *document.Store) Option {
	return func(e *Engine) { e.docs = store }
}

// WithSemantic records, for each document, the terms that have embeddings.
func WithSemantic(s *semantic.Engine) Option {
	return func(e *Engine) { e.semantic = s }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine opens the barrels described by cfg and takes the directory lock.
func NewEngine(cfg config.IndexerConfig, opts ...Option) (*Engine, error) {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.FlushDocuments < 1 {
		cfg.FlushDocuments = 1
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating index data directory: %w", err)
	}

	lock := flock.New(filepath.Join(cfg.DataDir, lockFile))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking index directory: %w", err)
	}
	if !locked {
		return nil, apperrors.Newf(apperrors.ErrIndexLocked, http.StatusConflict, "%s", cfg.DataDir)
	}

	e := &Engine{
		cfg:    cfg,
		lock:   lock,
		logger: slog.Default().With("component", "indexer"),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.lex, err = lexicon.Open(cfg.LexiconDir); err != nil {
		lock.Unlock()
		return nil, fmt.Errorf("opening lexicon: %w", err)
	}
	if e.inv, err = index.OpenStore(cfg.InvertedIndexDir); err != nil {
		lock.Unlock()
		return nil, fmt.Errorf("opening inverted index: %w", err)
	}
	if e.stats, err = docstats.Open(cfg.StatsPath()); err != nil {
		lock.Unlock()
		return nil, fmt.Errorf("opening doc stats: %w", err)
	}
	if e.metrics != nil {
		e.metrics.LexiconTerms.Set(float64(e.lex.Len()))
		e.metrics.CorpusDocuments.Set(float64(e.stats.TotalDocuments()))
	}
	e.logger.Info("indexer ready",
		"data_dir", cfg.DataDir,
		"terms", e.lex.Len(),
		"documents", e.stats.TotalDocuments(),
	)
	return e, nil
}

// IndexDocument adds one record. Indexing the same record twice adds its
// weights twice; callers must not re-index unchanged documents.
func (e *Engine) IndexDocument(ctx context.Context, rec *document.Record, filename string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if err := rec.Validate(); err != nil {
		return Result{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	var saved string
	if e.docs != nil {
		var err error
		if saved, err = e.docs.Save(rec, filename); err != nil {
			return Result{}, fmt.Errorf("saving document %s: %w", rec.PaperID, err)
		}
	}

	b := newBatch()
	b.add(e.lex, Analyze(rec))
	shards, err := e.commit(b)
	if err != nil {
		return Result{}, fmt.Errorf("indexing document %s: %w", rec.PaperID, err)
	}
	e.observe(1, start)

	res := Result{
		PaperID:    rec.PaperID,
		TermsAdded: len(b.newTerms),
		NewTerms:   b.newTerms,
		Shards:     shards,
		SavedPath:  saved,
	}
	e.logger.Info("document indexed",
		"paper_id", res.PaperID,
		"terms_added", res.TermsAdded,
		"lexicon_barrels", len(shards.Lexicon),
		"index_barrels", len(shards.InvertedIndex),
	)
	return res, nil
}

// IndexDirectory indexes every *.json file in dir in name order.
func (e *Engine) IndexDirectory(ctx context.Context, dir string) (BatchResult, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return BatchResult{}, fmt.Errorf("listing %s: %w", dir, err)
	}
	sort.Strings(files)
	return e.IndexFiles(ctx, files)
}

type job struct {
	seq  int
	path string
}

type analyzed struct {
	seq      int
	path     string
	analysis Analysis
	err      error
}

// IndexFiles indexes the given record files. Workers read, parse and analyze
// files concurrently; a single coordinator assigns term IDs in input order
// and merges postings, flushing every FlushDocuments documents. Files that
// fail to parse are logged and counted as failed.
func (e *Engine) IndexFiles(ctx context.Context, paths []string) (BatchResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	var out BatchResult
	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan job)
	results := make(chan analyzed, e.cfg.Workers)

	g.Go(func() error {
		defer close(jobs)
		for i, p := range paths {
			select {
			case jobs <- job{seq: i, path: p}:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	var workers sync.WaitGroup
	for w := 0; w < e.cfg.Workers; w++ {
		workers.Add(1)
		g.Go(func() error {
			defer workers.Done()
			for j := range jobs {
				r := analyzed{seq: j.seq, path: j.path}
				r.analysis, r.err = analyzeFile(j.path)
				select {
				case results <- r:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}
	go func() {
		workers.Wait()
		close(results)
	}()

	g.Go(func() error {
		b := newBatch()
		flush := func() error {
			if b.docs == 0 {
				return nil
			}
			shards, err := e.commit(b)
			if err != nil {
				return err
			}
			e.observe(b.docs, start)
			out.Indexed += b.docs
			out.TermsAdded += len(b.newTerms)
			out.NewTerms = append(out.NewTerms, b.newTerms...)
			out.Shards = mergeShards(out.Shards, shards)
			e.logger.Info("batch flushed",
				"documents", b.docs,
				"indexed_total", out.Indexed,
				"lexicon_terms", e.lex.Len(),
			)
			b = newBatch()
			return nil
		}

		pending := make(map[int]analyzed)
		next := 0
		for r := range results {
			pending[r.seq] = r
			for {
				cur, ok := pending[next]
				if !ok {
					break
				}
				delete(pending, next)
				next++
				if cur.err != nil {
					out.Failed++
					e.logger.Warn("skipping document", "file", cur.path, "error", cur.err)
					continue
				}
				b.add(e.lex, cur.analysis)
				if b.docs >= e.cfg.FlushDocuments {
					if err := flush(); err != nil {
						return err
					}
				}
			}
		}
		if err := gctx.Err(); err != nil {
			return err
		}
		return flush()
	})

	err := g.Wait()
	e.logger.Info("bulk indexing finished",
		"files", len(paths),
		"indexed", out.Indexed,
		"failed", out.Failed,
		"terms_added", out.TermsAdded,
		"duration", time.Since(start),
	)
	return out, err
}

func analyzeFile(path string) (Analysis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Analysis{}, fmt.Errorf("reading %s: %w", path, err)
	}
	rec, err := document.Parse(data, filepath.Base(path))
	if err != nil {
		return Analysis{}, err
	}
	return Analyze(rec), nil
}

// batch collects the coordinator's state between flushes.
type batch struct {
	builder  *index.Builder
	stats    []docstats.Entry
	analyses []Analysis
	newTerms []string
	docs     int
}

func newBatch() *batch {
	return &batch{builder: index.NewBuilder()}
}

// add assigns term IDs for a and queues its postings.
func (b *batch) add(lex *lexicon.Store, a Analysis) {
	for _, term := range a.Terms {
		id, created := lex.ResolveOrCreate(term)
		if created {
			b.newTerms = append(b.newTerms, term)
		}
		b.builder.Add(id, a.PaperID, a.Weights[term])
	}
	b.analyses = append(b.analyses, a)
	b.docs++
}

// commit makes a batch durable: lexicon first, so every posting written
// refers to a persisted term, then postings, then document statistics.
func (e *Engine) commit(b *batch) (Shards, error) {
	lexBarrels, err := e.lex.Commit()
	e.metrics.RecordBarrelWrites("lexicon", len(lexBarrels))
	if err != nil {
		return Shards{}, err
	}
	invBarrels, err := b.builder.Flush(e.inv)
	e.metrics.RecordBarrelWrites("inverted_index", len(invBarrels))
	e.metrics.RecordFlush(err)
	if err != nil {
		return Shards{Lexicon: lexBarrels, InvertedIndex: invBarrels}, err
	}
	for _, a := range b.analyses {
		entry := docstats.Entry{DocID: a.PaperID, Length: a.Length}
		if e.cfg.StoreEmbeddedTerm {
			entry.EmbeddedTerms = e.embeddedTerms(a.Terms)
		}
		if err := e.stats.Append(entry); err != nil {
			return Shards{Lexicon: lexBarrels, InvertedIndex: invBarrels}, err
		}
	}
	if lexBarrels == nil {
		lexBarrels = []int{}
	}
	if invBarrels == nil {
		invBarrels = []int{}
	}
	return Shards{Lexicon: lexBarrels, InvertedIndex: invBarrels}, nil
}

func (e *Engine) embeddedTerms(terms []string) []string {
	if e.semantic == nil || !e.semantic.Loaded() {
		return nil
	}
	var out []string
	for _, t := range terms {
		if e.semantic.Has(t) {
			out = append(out, t)
		}
	}
	return out
}

func (e *Engine) observe(docs int, start time.Time) {
	if e.metrics == nil {
		return
	}
	e.metrics.DocsIndexedTotal.Add(float64(docs))
	e.metrics.IndexingDuration.Observe(time.Since(start).Seconds())
	e.metrics.LexiconTerms.Set(float64(e.lex.Len()))
	e.metrics.CorpusDocuments.Set(float64(e.stats.TotalDocuments()))
}

// Stats exposes the document statistics the engine maintains.
func (e *Engine) Stats() *docstats.Store {
	return e.stats
}

// Close releases the directory lock.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.lock.Unlock(); err != nil {
		return fmt.Errorf("unlocking index directory: %w", err)
	}
	return nil
}

func mergeShards(a, b Shards) Shards {
	return Shards{
		Lexicon:       unionSorted(a.Lexicon, b.Lexicon),
		InvertedIndex: unionSorted(a.InvertedIndex, b.InvertedIndex),
	}
}

func unionSorted(a, b []int) []int {
	seen := make(map[int]bool, len(a)+len(b))
	out := make([]int, 0, len(a)+len(b))
	for _, n := range append(append([]int(nil), a...), b...) {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	sort.Ints(out)
	return out
}
