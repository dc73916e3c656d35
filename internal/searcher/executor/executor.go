package executor

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/internal/semantic"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/pkg/tracing"
)

// Lexicon resolves terms to IDs. Unknown terms are absent from the result.
type Lexicon interface {
	ResolveAll(terms []string) map[string]int
}

// PostingSource returns the postings stored for a term ID.
type PostingSource interface {
	Postings(termID int) (index.PostingList, error)
}

// CorpusStats supplies the BM25 corpus parameters and per-document data.
type CorpusStats interface {
	TotalDocuments() int64
	AverageLength() float64
	Length(docID string) (int, bool)
	EmbeddedTerms(docID string) []string
}

// Semantic is the part of the embedding engine the executor uses.
type Semantic interface {
	Loaded() bool
	Has(word string) bool
	Similarity(a, b string) (float64, bool)
	ExpandQuery(terms []string, topK int, threshold float64) (map[string][]semantic.Similar, error)
}

type Config struct {
	DefaultLimit         int
	MaxResults           int
	FallbackTotalDocs    int64
	FallbackAvgDocLength float64
	TopK                 int
	Threshold            float64
}

// ConfigFrom builds an executor Config from the application sections.
func ConfigFrom(search config.SearchConfig, sem config.SemanticConfig) Config {
	return Config{
		DefaultLimit:         search.DefaultLimit,
		MaxResults:           search.MaxResults,
		FallbackTotalDocs:    search.FallbackTotalDocs,
		FallbackAvgDocLength: search.FallbackAvgDocLength,
		TopK:                 sem.TopK,
		Threshold:            sem.Threshold,
	}
}

// Options are the per-query switches. A zero Limit means the configured
// default.
type Options struct {
	UseSemantic    bool    `json:"use_semantic"`
	SemanticWeight float64 `json:"semantic_weight"`
	Limit          int     `json:"limit"`
	Rerank         bool    `json:"rerank"`
}

type SearchResult struct {
	Query      string             `json:"query"`
	Terms      []string           `json:"terms"`
	Expansions map[string]float64 `json:"expansions,omitempty"`
	TotalHits  int                `json:"total_hits"`
	Results    []ranker.ScoredDoc `json:"results"`
	TermStats  map[string]int     `json:"term_stats"`
}

type Executor struct {
	lexicon  Lexicon
	postings PostingSource
	stats    CorpusStats
	semantic Semantic
	cfg      Config
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

type Option func(*Executor)

// WithSemantic enables expansion and reranking when the engine is loaded.
func WithSemantic(s Semantic) Option {
	return func(e *Executor) { e.semantic = s }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

func New(lexicon Lexicon, postings PostingSource, stats CorpusStats, cfg Config, opts ...Option) *Executor {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 50
	}
	if cfg.FallbackTotalDocs <= 0 {
		cfg.FallbackTotalDocs = 100_000
	}
	if cfg.FallbackAvgDocLength <= 0 {
		cfg.FallbackAvgDocLength = 1500
	}
	e := &Executor{
		lexicon:  lexicon,
		postings: postings,
		stats:    stats,
		cfg:      cfg,
		logger:   slog.Default().With("component", "query-executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Search tokenizes query and runs it.
func (e *Executor) Search(ctx context.Context, query string, opts Options) (*SearchResult, error) {
	return e.Execute(ctx, parser.Parse(query), opts)
}

// Execute ranks the documents matching plan. It fails only on invalid
// options or cancellation; missing data yields an empty result.
func (e *Executor) Execute(ctx context.Context, plan *parser.QueryPlan, opts Options) (*SearchResult, error) {
	limit, err := e.validate(opts)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	ctx, root := tracing.StartSpan(ctx, "search", logger.RequestID(ctx))
	defer func() {
		root.End()
		root.Log(e.logger)
	}()
	root.SetAttr("query", plan.RawQuery)

	result := &SearchResult{
		Query:     plan.RawQuery,
		Terms:     plan.Terms,
		Results:   []ranker.ScoredDoc{},
		TermStats: make(map[string]int),
	}
	if plan.Empty() {
		e.record(result, opts, start, nil)
		return result, nil
	}

	semanticOn := e.semantic != nil && e.semantic.Loaded()
	weights := make(map[string]float64, len(plan.Terms))
	for _, term := range plan.Terms {
		weights[term] = 1.0
	}
	if opts.UseSemantic && semanticOn && opts.SemanticWeight > 0 {
		_, span := tracing.StartChildSpan(ctx, "expand")
		expansions, err := e.expand(plan.Terms, opts.SemanticWeight)
		span.SetAttr("added", len(expansions))
		span.End()
		if err != nil {
			e.record(result, opts, start, err)
			return nil, err
		}
		for term, w := range expansions {
			weights[term] = w
		}
		result.Expansions = expansions
	}

	_, span := tracing.StartChildSpan(ctx, "resolve")
	working := make([]string, 0, len(weights))
	working = append(working, plan.Terms...)
	working = append(working, sortedKeys(result.Expansions)...)
	ids := e.lexicon.ResolveAll(working)
	span.SetAttr("resolved", len(ids))
	span.End()
	if len(ids) == 0 {
		e.record(result, opts, start, nil)
		return result, nil
	}

	_, span = tracing.StartChildSpan(ctx, "score")
	terms := make([]ranker.WeightedTerm, 0, len(ids))
	for _, term := range working {
		id, ok := ids[term]
		if !ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			span.End()
			e.record(result, opts, start, err)
			return nil, err
		}
		postings, err := e.postings.Postings(id)
		if err != nil {
			e.logger.Error("reading postings failed, term skipped",
				"term", term,
				"term_id", id,
				"error", err,
			)
			continue
		}
		if len(postings) == 0 {
			continue
		}
		result.TermStats[term] = len(postings)
		terms = append(terms, ranker.WeightedTerm{
			Term:     term,
			TermID:   id,
			Weight:   weights[term],
			Postings: postings,
		})
	}
	scored := ranker.Rank(terms, e.params(), e.stats.Length)
	span.SetAttr("documents", len(scored))
	span.End()

	if opts.Rerank && semanticOn && len(scored) > 0 {
		_, span := tracing.StartChildSpan(ctx, "rerank")
		boosted := e.rerank(plan.Terms, scored)
		span.SetAttr("boosted", boosted)
		span.End()
	}

	result.TotalHits = len(scored)
	result.Results = merger.TopK(scored, limit)
	e.record(result, opts, start, nil)
	e.logger.Debug("query executed",
		"query", plan.RawQuery,
		"terms", plan.Terms,
		"expansions", len(result.Expansions),
		"hits", result.TotalHits,
		"returned", len(result.Results),
	)
	return result, nil
}

func (e *Executor) validate(opts Options) (int, error) {
	if math.IsNaN(opts.SemanticWeight) || opts.SemanticWeight < 0 || opts.SemanticWeight > 1 {
		return 0, apperrors.Invalidf("semantic_weight must be in [0,1], got %v", opts.SemanticWeight)
	}
	if opts.Limit < 0 {
		return 0, apperrors.Invalidf("limit must be non-negative, got %d", opts.Limit)
	}
	limit := opts.Limit
	if limit == 0 {
		limit = e.cfg.DefaultLimit
	}
	if e.cfg.MaxResults > 0 && limit > e.cfg.MaxResults {
		limit = e.cfg.MaxResults
	}
	return limit, nil
}

// expand returns the sub-terms of every neighbour of the query terms with
// weight similarity*semanticWeight. Query terms keep weight 1 and are never
// returned; a sub-term reached through several neighbours keeps the largest
// weight.
func (e *Executor) expand(terms []string, semanticWeight float64) (map[string]float64, error) {
	expanded, err := e.semantic.ExpandQuery(terms, e.cfg.TopK, e.cfg.Threshold)
	if err != nil {
		return nil, err
	}
	original := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		original[t] = struct{}{}
	}
	out := make(map[string]float64)
	for _, term := range terms {
		for _, sim := range expanded[term] {
			w := sim.Score * semanticWeight
			if w <= 0 {
				continue
			}
			for _, sub := range tokenizer.Tokenize(sim.Word) {
				if _, isOriginal := original[sub]; isOriginal {
					continue
				}
				if w > out[sub] {
					out[sub] = w
				}
			}
		}
	}
	if e.metrics != nil && len(out) > 0 {
		e.metrics.QueryExpansionsTotal.Add(float64(len(out)))
	}
	return out, nil
}

// rerank multiplies each document score by 1 plus the mean, over query terms
// with an embedding, of the best similarity to the document's embedded
// terms. Similarities are clamped to [0,1]. It returns how many documents
// were boosted.
func (e *Executor) rerank(queryTerms []string, docs []ranker.ScoredDoc) int {
	embedded := make([]string, 0, len(queryTerms))
	for _, t := range queryTerms {
		if e.semantic.Has(t) {
			embedded = append(embedded, t)
		}
	}
	if len(embedded) == 0 {
		return 0
	}
	boosted := 0
	for i := range docs {
		docTerms := e.stats.EmbeddedTerms(docs[i].DocID)
		if len(docTerms) == 0 {
			continue
		}
		var sum float64
		for _, q := range embedded {
			best := 0.0
			for _, t := range docTerms {
				if s, ok := e.semantic.Similarity(q, t); ok && s > best {
					best = s
				}
			}
			sum += min(best, 1.0)
		}
		avg := sum / float64(len(embedded))
		if avg > 0 {
			docs[i].Score *= 1 + avg
			boosted++
		}
	}
	return boosted
}

func (e *Executor) params() ranker.RankParams {
	params := ranker.RankParams{
		TotalDocs:    e.stats.TotalDocuments(),
		AvgDocLength: e.stats.AverageLength(),
	}
	if params.TotalDocs <= 0 {
		params.TotalDocs = e.cfg.FallbackTotalDocs
	}
	if params.AvgDocLength <= 0 {
		params.AvgDocLength = e.cfg.FallbackAvgDocLength
	}
	return params
}

func (e *Executor) record(result *SearchResult, opts Options, start time.Time, err error) {
	if e.metrics == nil {
		return
	}
	e.metrics.SearchLatency.WithLabelValues(strconv.FormatBool(opts.UseSemantic)).Observe(time.Since(start).Seconds())
	switch {
	case err != nil:
		e.metrics.SearchQueriesTotal.WithLabelValues("error").Inc()
	case result.TotalHits == 0:
		e.metrics.SearchQueriesTotal.WithLabelValues("zero_result").Inc()
	default:
		e.metrics.SearchQueriesTotal.WithLabelValues("ok").Inc()
	}
	if err == nil {
		e.metrics.SearchResultsCount.WithLabelValues().Observe(float64(result.TotalHits))
	}
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
