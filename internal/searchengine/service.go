// Package searchengine wires the barrels, the semantic engine and the
// autocomplete trie into one service shared by the CLI and the HTTP layer.
// Searches run under a read lock and in-process indexing under the write
// lock, so a query never observes a half-applied indexing pass.
package searchengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/internal/autocomplete"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/internal/document"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/internal/indexer/docstats"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/internal/indexer/lexicon"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/internal/semantic"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/pkg/resilience"
)

// selfWriteWindow bounds how long a document file the service saved itself
// is ignored by IndexFile.
const selfWriteWindow = 10 * time.Second

type Service struct {
	cfg      *config.Config
	metrics  *metrics.Metrics
	logger   *slog.Logger
	writable bool
	events   kafka.Publisher

	semantic *semantic.Engine
	indexer  *indexer.Engine
	stats    *docstats.Store
	reader   *lexicon.Reader
	postings *index.Store
	exec     *executor.Executor
	trie     *autocomplete.Trie
	docs     *document.Store

	mu sync.RWMutex

	// selfWrites holds document store paths saved by IndexDocument, guarded
	// by the write lock.
	selfWrites map[string]time.Time
}

type Option func(*Service)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithEventPublisher announces every in-process indexing pass as an
// IndexEvent, so read-only services can refresh.
func WithEventPublisher(p kafka.Publisher) Option {
	return func(s *Service) { s.events = p }
}

// Writable makes the service own the index directory lock so it can index
// in-process. Without it the barrels are opened read-only and another
// process may index them.
func Writable() Option {
	return func(s *Service) { s.writable = true }
}

// Open loads the embeddings, the corpus statistics and the autocomplete
// trie. A missing embedding file leaves semantic features off.
func Open(cfg *config.Config, opts ...Option) (*Service, error) {
	s := &Service{
		cfg:        cfg,
		logger:     slog.Default().With("component", "search-service"),
		docs:       document.NewStore(cfg.Documents.Dir),
		selfWrites: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}

	var err error
	s.semantic, err = semantic.New(semantic.Config{
		Path:       cfg.Semantic.EmbeddingsPath,
		Dimension:  cfg.Semantic.Dimension,
		SampleSize: cfg.Semantic.SampleSize,
		Seed:       cfg.Semantic.Seed,
		CacheSize:  cfg.Semantic.CacheSize,
	}, semantic.WithMetrics(s.metrics))
	if err != nil {
		return nil, err
	}
	if _, err := s.semantic.Load(); err != nil {
		return nil, fmt.Errorf("loading embeddings: %w", err)
	}

	if s.writable {
		s.indexer, err = indexer.NewEngine(cfg.Indexer,
			indexer.WithDocumentStore(s.docs),
			indexer.WithSemantic(s.semantic),
			indexer.WithMetrics(s.metrics),
		)
		if err != nil {
			return nil, err
		}
		s.stats = s.indexer.Stats()
	} else {
		if s.stats, err = docstats.Open(cfg.Indexer.StatsPath()); err != nil {
			return nil, err
		}
	}

	if s.reader, err = lexicon.NewReader(cfg.Indexer.LexiconDir, cfg.Indexer.LexiconCacheSize, lexicon.WithReaderMetrics(s.metrics)); err != nil {
		s.Close()
		return nil, err
	}
	if s.postings, err = index.OpenStore(cfg.Indexer.InvertedIndexDir); err != nil {
		s.Close()
		return nil, err
	}
	if s.trie, err = autocomplete.FromLexicon(cfg.Indexer.LexiconDir); err != nil {
		s.Close()
		return nil, fmt.Errorf("building autocomplete trie: %w", err)
	}
	s.exec = executor.New(s.reader, s.postings, s.stats,
		executor.ConfigFrom(cfg.Search, cfg.Semantic),
		executor.WithSemantic(s.semantic),
		executor.WithMetrics(s.metrics),
	)

	s.logger.Info("search service ready",
		"writable", s.indexer != nil,
		"documents", s.stats.TotalDocuments(),
		"terms", s.trie.Len(),
		"embeddings", s.semantic.Size(),
	)
	return s, nil
}

// DefaultOptions are the configured per-query defaults.
func (s *Service) DefaultOptions() executor.Options {
	return executor.Options{
		UseSemantic:    s.cfg.Search.UseSemantic,
		SemanticWeight: s.cfg.Search.SemanticWeight,
		Rerank:         s.cfg.Search.Rerank,
		Limit:          s.cfg.Search.DefaultLimit,
	}
}

func (s *Service) Search(ctx context.Context, query string, opts executor.Options) (*executor.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.exec.Search(ctx, query, opts)
}

// Present turns ranked hits into result cards. Hits whose document is not in
// the document store are left out.
func (s *Service) Present(res *executor.SearchResult) []document.Summary {
	out := make([]document.Summary, 0, len(res.Results))
	for _, hit := range res.Results {
		rec, err := s.docs.Get(hit.DocID)
		if err != nil {
			if !errors.Is(err, apperrors.ErrDocumentNotFound) {
				s.logger.Warn("loading document for result failed", "doc_id", hit.DocID, "error", err)
			}
			continue
		}
		summary := document.Summarize(rec)
		summary.Score = hit.Score
		summary.DocName = hit.DocID
		out = append(out, summary)
	}
	return out
}

// Suggest completes the last word of query from the lexicon.
func (s *Service) Suggest(query string, limit int) []string {
	if limit <= 0 {
		limit = autocomplete.DefaultLimit
	}
	return s.trie.Complete(query, limit)
}

func (s *Service) Document(id string) (*document.Record, error) {
	return s.docs.Get(id)
}

func (s *Service) Writable() bool {
	return s.indexer != nil
}

func (s *Service) SemanticLoaded() bool {
	return s.semantic.Loaded()
}

func (s *Service) SimilarityCache() semantic.CacheStats {
	return s.semantic.CacheStats()
}

// IndexDocument indexes one record in-process, saving it to the document
// store.
func (s *Service) IndexDocument(ctx context.Context, rec *document.Record, filename string) (indexer.Result, error) {
	if s.indexer == nil {
		return indexer.Result{}, errReadOnly()
	}
	res, err := func() (indexer.Result, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		res, err := s.indexer.IndexDocument(ctx, rec, filename)
		s.afterIndex(res.Shards, res.NewTerms, err)
		if err == nil && res.SavedPath != "" {
			s.markSelfWrite(res.SavedPath)
		}
		return res, err
	}()
	if err != nil {
		return res, err
	}
	s.announce(ctx, res.PaperID, res.TermsAdded, res.NewTerms, res.Shards)
	return res, nil
}

// IndexFiles bulk-indexes paths in-process.
func (s *Service) IndexFiles(ctx context.Context, paths []string) (indexer.BatchResult, error) {
	if s.indexer == nil {
		return indexer.BatchResult{}, errReadOnly()
	}
	res, err := func() (indexer.BatchResult, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.indexFilesLocked(ctx, paths)
	}()
	if err != nil {
		return res, err
	}
	s.announceBatch(ctx, res)
	return res, nil
}

// IndexFile parses and indexes a single JSON record file. A document store
// file the service itself saved moments ago is skipped, so watching the
// documents directory does not index every saved record a second time.
func (s *Service) IndexFile(ctx context.Context, path string) error {
	if s.indexer == nil {
		return errReadOnly()
	}
	res, skipped, err := func() (indexer.BatchResult, bool, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.consumeSelfWrite(path) {
			return indexer.BatchResult{}, true, nil
		}
		res, err := s.indexFilesLocked(ctx, []string{path})
		return res, false, err
	}()
	switch {
	case err != nil:
		return err
	case skipped:
		s.logger.Debug("skipping document saved by this service", "path", path)
		return nil
	case res.Failed > 0:
		return apperrors.Newf(apperrors.ErrMalformedRecord, http.StatusBadRequest, "%s could not be indexed", path)
	}
	s.announceBatch(ctx, res)
	return nil
}

func (s *Service) indexFilesLocked(ctx context.Context, paths []string) (indexer.BatchResult, error) {
	res, err := s.indexer.IndexFiles(ctx, paths)
	s.afterIndex(res.Shards, res.NewTerms, err)
	return res, err
}

func errReadOnly() error {
	return apperrors.New(apperrors.ErrIndexingDisabled, http.StatusForbidden, "service opened read-only")
}

func (s *Service) markSelfWrite(path string) {
	now := time.Now()
	for p, at := range s.selfWrites {
		if now.Sub(at) > selfWriteWindow {
			delete(s.selfWrites, p)
		}
	}
	s.selfWrites[cleanPath(path)] = now
}

func (s *Service) consumeSelfWrite(path string) bool {
	key := cleanPath(path)
	at, ok := s.selfWrites[key]
	if !ok {
		return false
	}
	delete(s.selfWrites, key)
	return time.Since(at) <= selfWriteWindow
}

func cleanPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

func (s *Service) announceBatch(ctx context.Context, res indexer.BatchResult) {
	if res.Indexed == 0 {
		return
	}
	s.announce(ctx, "", res.TermsAdded, res.NewTerms, res.Shards)
}

// announce publishes an IndexEvent when a publisher is configured. A failed
// publish is logged only: the barrels are already written.
func (s *Service) announce(ctx context.Context, paperID string, termsAdded int, newTerms []string, shards indexer.Shards) {
	if s.events == nil {
		return
	}
	ev := kafka.IndexEvent{
		PaperID:       paperID,
		TermsAdded:    termsAdded,
		NewTerms:      newTerms,
		LexiconShards: shards.Lexicon,
		IndexShards:   shards.InvertedIndex,
		IndexedAt:     time.Now().UTC(),
	}
	err := resilience.Retry(ctx, "publish-index-event", resilience.RetryConfig{}, func() error {
		return s.events.Publish(ctx, kafka.Event{Key: paperID, Value: ev})
	})
	if err != nil {
		s.logger.Error("failed to publish index event", "paper_id", paperID, "error", err)
	}
}

// afterIndex makes barrels written under the write lock visible to readers.
// A failed pass may have committed barrels it does not report, so it drops
// the whole lexicon cache.
func (s *Service) afterIndex(shards indexer.Shards, newTerms []string, err error) {
	switch {
	case err != nil:
		s.reader.Invalidate()
	case len(shards.Lexicon) > 0:
		s.reader.Invalidate(shards.Lexicon...)
	}
	for _, term := range newTerms {
		s.trie.Insert(term)
	}
}

// ApplyIndexEvent refreshes a read-only service after another process has
// indexed a document.
func (s *Service) ApplyIndexEvent(ctx context.Context, ev kafka.IndexEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(ev.LexiconShards) > 0 {
		s.reader.Invalidate(ev.LexiconShards...)
	}
	for _, term := range ev.NewTerms {
		s.trie.Insert(term)
	}
	if s.indexer != nil {
		return nil
	}
	if err := s.stats.Reload(); err != nil {
		return fmt.Errorf("reloading doc stats after %s: %w", ev.PaperID, err)
	}
	s.logger.Debug("index event applied",
		"paper_id", ev.PaperID,
		"lexicon_shards", ev.LexiconShards,
		"documents", s.stats.TotalDocuments(),
	)
	return nil
}

// Close releases the index lock when the service is writable.
func (s *Service) Close() error {
	if s.indexer != nil {
		return s.indexer.Close()
	}
	return nil
}
