package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/internal/document"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/internal/semantic"
	apperrors "github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/pkg/middleware"
)

const maxDocumentBytes = 32 << 20

// Service is what the HTTP layer needs from the search service.
type Service interface {
	DefaultOptions() executor.Options
	Search(ctx context.Context, query string, opts executor.Options) (*executor.SearchResult, error)
	Present(res *executor.SearchResult) []document.Summary
	Suggest(query string, limit int) []string
	Document(id string) (*document.Record, error)
	IndexDocument(ctx context.Context, rec *document.Record, filename string) (indexer.Result, error)
	SimilarityCache() semantic.CacheStats
}

type Handler struct {
	svc           Service
	cache         *cache.QueryCache
	allowIndexing bool
	logger        *slog.Logger
}

// New builds the handler. queryCache may be nil.
func New(svc Service, queryCache *cache.QueryCache, allowIndexing bool) *Handler {
	return &Handler{
		svc:           svc,
		cache:         queryCache,
		allowIndexing: allowIndexing,
		logger:        slog.Default().With("component", "search-handler"),
	}
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/search", h.Search)
	mux.HandleFunc("GET /api/autocomplete", h.Autocomplete)
	mux.HandleFunc("GET /api/documents/{id}", h.GetDocument)
	mux.HandleFunc("POST /api/documents", h.IndexDocument)
	mux.HandleFunc("GET /api/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/cache/invalidate", h.CacheInvalidate)
}

// SearchRequest leaves options nil to take the configured default.
type SearchRequest struct {
	Query          string   `json:"query"`
	UseSemantic    *bool    `json:"use_semantic,omitempty"`
	SemanticWeight *float64 `json:"semantic_weight,omitempty"`
	Rerank         *bool    `json:"rerank,omitempty"`
	Limit          *int     `json:"limit,omitempty"`
}

type SearchResponse struct {
	Query      string             `json:"query"`
	Total      int                `json:"total"`
	TotalHits  int                `json:"total_hits"`
	Results    []document.Summary `json:"results"`
	Expansions map[string]float64 `json:"expansions,omitempty"`
	CacheHit   bool               `json:"cache_hit"`
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var req SearchRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "request body must be a JSON object")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		h.writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	opts := h.options(req)

	plan := parser.Parse(req.Query)
	if plan.Empty() {
		h.writeJSON(w, http.StatusOK, SearchResponse{Query: req.Query, Results: []document.Summary{}})
		return
	}

	compute := func() (*executor.SearchResult, error) {
		return h.svc.Search(ctx, req.Query, opts)
	}
	var result *executor.SearchResult
	var err error
	cacheHit := false
	if h.cache != nil {
		result, cacheHit, err = h.cache.GetOrCompute(ctx, plan, opts, compute)
	} else {
		result, err = compute()
	}
	if err != nil {
		log.Error("search execution failed", "query", req.Query, "error", err)
		h.writeAppError(w, err)
		return
	}

	cards := h.svc.Present(result)
	log.Info("search completed",
		"query", req.Query,
		"total_hits", result.TotalHits,
		"returned", len(cards),
		"cache_hit", cacheHit,
		"latency_ms", time.Since(start).Milliseconds(),
		"request_id", middleware.GetRequestID(ctx),
	)
	h.writeJSON(w, http.StatusOK, SearchResponse{
		Query:      req.Query,
		Total:      len(cards),
		TotalHits:  result.TotalHits,
		Results:    cards,
		Expansions: result.Expansions,
		CacheHit:   cacheHit,
	})
}

func (h *Handler) options(req SearchRequest) executor.Options {
	opts := h.svc.DefaultOptions()
	if req.UseSemantic != nil {
		opts.UseSemantic = *req.UseSemantic
	}
	if req.SemanticWeight != nil {
		opts.SemanticWeight = *req.SemanticWeight
	}
	if req.Rerank != nil {
		opts.Rerank = *req.Rerank
	}
	if req.Limit != nil {
		opts.Limit = *req.Limit
	}
	return opts
}

func (h *Handler) Autocomplete(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	h.writeJSON(w, http.StatusOK, map[string][]string{
		"suggestions": h.svc.Suggest(r.URL.Query().Get("query"), limit),
	})
}

type DocumentResponse struct {
	Summary    document.Summary     `json:"summary"`
	References []document.Reference `json:"references"`
	Document   *document.Record     `json:"document"`
}

func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Document(r.PathValue("id"))
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	refs := document.References(rec)
	if refs == nil {
		refs = []document.Reference{}
	}
	h.writeJSON(w, http.StatusOK, DocumentResponse{
		Summary:    document.Summarize(rec),
		References: refs,
		Document:   rec,
	})
}

// IndexDocument indexes the raw record in the request body. The filename
// query parameter names the stored file and defaults the paper id.
func (h *Handler) IndexDocument(w http.ResponseWriter, r *http.Request) {
	if !h.allowIndexing {
		h.writeAppError(w, apperrors.New(apperrors.ErrIndexingDisabled, http.StatusForbidden, "indexing over HTTP is disabled"))
		return
	}
	ctx := r.Context()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxDocumentBytes))
	if err != nil {
		h.writeError(w, http.StatusRequestEntityTooLarge, "document too large")
		return
	}
	filename := r.URL.Query().Get("filename")
	rec, err := document.Parse(body, filename)
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	res, err := h.svc.IndexDocument(ctx, rec, filename)
	if err != nil {
		logger.FromContext(ctx).Error("indexing failed", "paper_id", rec.PaperID, "error", err)
		h.writeAppError(w, err)
		return
	}
	if h.cache != nil {
		if _, err := h.cache.Invalidate(ctx); err != nil {
			h.logger.Warn("cache invalidation after indexing failed", "error", err)
		}
	}
	h.writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{
		"similarity": h.svc.SimilarityCache(),
	}
	if h.cache == nil {
		out["status"] = "disabled"
		h.writeJSON(w, http.StatusOK, out)
		return
	}
	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	out["status"] = "enabled"
	out["hits"] = hits
	out["misses"] = misses
	out["total"] = total
	out["hit_rate"] = fmt.Sprintf("%.1f%%", hitRate)
	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	deleted, err := h.cache.Invalidate(r.Context())
	if err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// writeAppError reports err with its mapped status. Internal errors are not
// echoed to the client.
func (h *Handler) writeAppError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	if errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
	}
	message := err.Error()
	if status >= http.StatusInternalServerError {
		message = http.StatusText(status)
	}
	h.writeError(w, status, message)
}
