package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/internal/indexer/watcher"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/internal/searchengine"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/pkg/metrics"
)

type indexOptions struct {
	watchDir string
	kafka    bool
}

func newIndexCmd() *cobra.Command {
	var opts indexOptions
	cmd := &cobra.Command{
		Use:   "index [dir|file.json ...]",
		Short: "Index paper records into the barrels",
		Long: `Index JSON paper records. Directories contribute every *.json file they
contain, in name order. With no arguments the configured documents
directory is indexed.

With --watch the command keeps running and indexes records as they are
written to the directory. Records this process saves into the documents
directory are not indexed a second time when that directory is watched.
With --kafka it also consumes records from the document-ingest topic.

When Kafka is enabled every indexing pass, bulk or incremental, is
announced on the index-complete topic so read-only servers refresh.
Search result cards are built from the documents directory: records
indexed from elsewhere are ranked but only shown once a copy of the file
is in documents.dir.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd, args, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.watchDir, "watch", "w", "", "watch this directory for new records after the initial pass")
	cmd.Flags().BoolVar(&opts.kafka, "kafka", false, "consume records from the document-ingest topic")
	return cmd
}

func runIndex(cmd *cobra.Command, args []string, opts indexOptions) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	longRunning := opts.watchDir != "" || opts.kafka
	var m *metrics.Metrics
	if cfg.Metrics.Enabled && longRunning {
		m = metrics.New(nil)
		scrape := metrics.NewServer(cfg.Metrics.Port)
		if err := scrape.Start(); err != nil {
			return err
		}
		defer scrape.Shutdown(cfg.Server.ShutdownTimeout)
	}

	svcOpts := []searchengine.Option{searchengine.Writable(), searchengine.WithMetrics(m)}
	if opts.kafka || cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete)
		defer producer.Close()
		svcOpts = append(svcOpts, searchengine.WithEventPublisher(producer))
	}
	svc, err := searchengine.Open(cfg, svcOpts...)
	if err != nil {
		return err
	}
	defer svc.Close()

	if len(args) == 0 && !longRunning {
		args = []string{cfg.Documents.Dir}
	}
	if len(args) > 0 {
		paths, err := expandPaths(args)
		if err != nil {
			return err
		}
		res, err := svc.IndexFiles(ctx, paths)
		if err != nil {
			return err
		}
		if err := writeJSON(cmd, res); err != nil {
			return err
		}
	}
	if !longRunning {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	if opts.watchDir != "" {
		w := watcher.New(opts.watchDir, svc.IndexFile)
		g.Go(func() error { return w.Run(gctx) })
	}
	if opts.kafka {
		// The service announces each indexed record itself.
		ic := consumer.New(kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest, "",
			consumer.HandleMessage(svc, nil)))
		g.Go(func() error { return ic.Start(gctx) })
	}
	slog.Info("indexer running", "watch", opts.watchDir, "kafka", opts.kafka)
	return g.Wait()
}

// expandPaths replaces each directory argument with its *.json files.
func expandPaths(args []string) ([]string, error) {
	var out []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", arg, err)
		}
		if !info.IsDir() {
			out = append(out, arg)
			continue
		}
		files, err := filepath.Glob(filepath.Join(arg, "*.json"))
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", arg, err)
		}
		sort.Strings(files)
		out = append(out, files...)
	}
	return out, nil
}
