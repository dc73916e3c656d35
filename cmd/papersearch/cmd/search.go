package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/internal/document"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/internal/searchengine"
)

type searchOptions struct {
	limit      int
	noSemantic bool
	weight     float64
	rerank     bool
	raw        bool
}

type searchOutput struct {
	Query      string             `json:"query"`
	Total      int                `json:"total"`
	TotalHits  int                `json:"total_hits"`
	Expansions map[string]float64 `json:"expansions,omitempty"`
	Results    any                `json:"results"`
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Rank indexed papers for a query",
		Example: `  papersearch search "coronavirus transmission"
  papersearch search "vaccine efficacy" --limit 5 --weight 0.5
  papersearch search "mrna" --no-semantic --raw`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, strings.Join(args, " "), opts)
		},
	}
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "maximum number of results (default from config)")
	cmd.Flags().BoolVar(&opts.noSemantic, "no-semantic", false, "disable embedding-based query expansion")
	cmd.Flags().Float64Var(&opts.weight, "weight", -1, "semantic expansion weight in [0,1] (default from config)")
	cmd.Flags().BoolVar(&opts.rerank, "rerank", false, "rerank results by embedding similarity")
	cmd.Flags().BoolVar(&opts.raw, "raw", false, "print document ids and scores without loading records")
	return cmd
}

func runSearch(cmd *cobra.Command, query string, opts searchOptions) error {
	svc, err := searchengine.Open(cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	execOpts := svc.DefaultOptions()
	if opts.limit > 0 {
		execOpts.Limit = opts.limit
	}
	if opts.noSemantic {
		execOpts.UseSemantic = false
	}
	if cmd.Flags().Changed("weight") {
		execOpts.SemanticWeight = opts.weight
	}
	if cmd.Flags().Changed("rerank") {
		execOpts.Rerank = opts.rerank
	}

	res, err := svc.Search(cmd.Context(), query, execOpts)
	if err != nil {
		return fmt.Errorf("search %q: %w", query, err)
	}

	out := searchOutput{
		Query:      query,
		TotalHits:  res.TotalHits,
		Expansions: res.Expansions,
	}
	if opts.raw {
		out.Total = len(res.Results)
		out.Results = res.Results
	} else {
		cards := svc.Present(res)
		out.Total = len(cards)
		out.Results = cards
	}
	return writeJSON(cmd, out)
}

func newSuggestCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "suggest <text>",
		Short: "Complete the last word of text from the lexicon",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := searchengine.Open(cfg)
			if err != nil {
				return err
			}
			defer svc.Close()
			return writeJSON(cmd, map[string][]string{
				"suggestions": svc.Suggest(strings.Join(args, " "), limit),
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of suggestions")
	return cmd
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <paper-id>",
		Short: "Print a stored paper's summary and references",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := searchengine.Open(cfg)
			if err != nil {
				return err
			}
			defer svc.Close()
			rec, err := svc.Document(args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd, map[string]any{
				"summary":    document.Summarize(rec),
				"references": document.References(rec),
			})
		},
	}
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
