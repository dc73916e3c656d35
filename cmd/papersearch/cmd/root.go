// Package cmd holds the papersearch subcommands.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/pkg/logger"
)

var (
	configPath string
	cfg        *config.Config
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "papersearch",
		Short: "Full-text and semantic search over scientific paper records",
		Long: `papersearch maintains sharded lexicon and inverted index barrels for a
collection of JSON paper records and ranks them with BM25, optionally
expanding queries with word-embedding neighbours.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			cfg = loaded
			logger.Setup(cfg.Logging)
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("SP_CONFIG"), "path to YAML config file")

	root.AddCommand(newIndexCmd())
	root.AddCommand(newIngestCmd())
	root.AddCommand(newSearchCmd())
	root.AddCommand(newSuggestCmd())
	root.AddCommand(newShowCmd())
	root.AddCommand(newServeCmd())
	return root
}

func Execute() error {
	return NewRootCmd().Execute()
}
