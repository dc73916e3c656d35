package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/internal/document"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/pkg/kafka"
)

func newIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <dir|file.json ...>",
		Short: "Publish paper records to the document-ingest topic",
		Long: `Publish raw JSON paper records to the document-ingest topic, keyed by file
name, for an "index --kafka" process to pick up. Records that do not parse
are reported and skipped.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := expandPaths(args)
			if err != nil {
				return err
			}
			producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest)
			defer producer.Close()

			published, skipped := 0, 0
			for _, path := range paths {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("reading %s: %w", path, err)
				}
				name := filepath.Base(path)
				if _, err := document.Parse(data, name); err != nil {
					slog.Warn("skipping record", "path", path, "error", err)
					skipped++
					continue
				}
				if err := producer.PublishRaw(cmd.Context(), name, data); err != nil {
					return err
				}
				published++
			}
			return writeJSON(cmd, map[string]int{"published": published, "skipped": skipped})
		},
	}
}
