package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/internal/searchengine"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/pkg/middleware"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/pkg/redis"
)

func newServeCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the search HTTP API",
		Long: `Serve the search API. With server.allowIndexing the process owns the index
lock and accepts documents over HTTP; otherwise it opens the barrels
read-only and, when Kafka is enabled, follows index-complete events from
a separate indexer.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if port > 0 {
				cfg.Server.Port = port
			}
			return runServe(cmd.Context())
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (default from config)")
	return cmd
}

func runServe(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(nil)
		scrape := metrics.NewServer(cfg.Metrics.Port)
		if err := scrape.Start(); err != nil {
			return err
		}
		defer scrape.Shutdown(cfg.Server.ShutdownTimeout)
	}

	opts := []searchengine.Option{searchengine.WithMetrics(m)}
	if cfg.Server.AllowIndexing {
		opts = append(opts, searchengine.Writable())
		if cfg.Kafka.Enabled {
			producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete)
			defer producer.Close()
			opts = append(opts, searchengine.WithEventPublisher(producer))
		}
	}
	svc, err := searchengine.Open(cfg, opts...)
	if err != nil {
		return err
	}
	defer svc.Close()

	checker := health.NewChecker()
	checker.Register("index", health.DirCheck(cfg.Indexer.InvertedIndexDir))
	checker.Register("embeddings", health.FlagCheck(svc.SemanticLoaded, "embeddings not loaded, semantic features off"))

	var queryCache *cache.QueryCache
	if cfg.Redis.Enabled {
		client, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "addr", cfg.Redis.Addr, "error", err)
		} else {
			defer client.Close()
			queryCache = cache.New(client, cfg.Redis.CacheTTL, m)
			checker.Register("redis", health.Soft(health.PingCheck(client.Ping)))
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Kafka.Enabled && !svc.Writable() {
		var hooks []func(context.Context) error
		if queryCache != nil {
			hooks = append(hooks, func(ctx context.Context) error {
				_, err := queryCache.Invalidate(ctx)
				return err
			})
		}
		// Every searcher needs every event, so each process joins its own group.
		group := fmt.Sprintf("%s-search-%s", cfg.Kafka.ConsumerGroup, uuid.NewString()[:8])
		events := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete, group, searchengine.EventHandler(svc, hooks...))
		g.Go(func() error { return events.Start(gctx) })
		slog.Info("following index events", "topic", cfg.Kafka.Topics.IndexComplete, "group", group)
	}

	mux := http.NewServeMux()
	handler.New(svc, queryCache, cfg.Server.AllowIndexing).Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	mux.Handle("GET /metrics", metrics.Handler())

	server := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: middleware.Chain(mux,
			middleware.RequestID,
			middleware.Metrics(m),
			middleware.Timeout(cfg.Server.WriteTimeout),
		),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout + cfg.Server.ShutdownTimeout,
	}

	g.Go(func() error {
		slog.Info("search service listening",
			"addr", server.Addr,
			"indexing", svc.Writable(),
			"semantic", svc.SemanticLoaded(),
			"cache", queryCache != nil,
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	slog.Info("search service stopped")
	return err
}
