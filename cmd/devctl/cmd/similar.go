package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/arturoeanton/go-deviation-rag/internal/app"
	"github.com/arturoeanton/go-deviation-rag/internal/domain"
	"github.com/arturoeanton/go-deviation-rag/internal/retrieval"
)

var similarTopK int

var similarCmd = &cobra.Command{
	Use:   "similar [query...]",
	Short: "Find past deviations similar to each query",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSimilar,
}

func init() {
	similarCmd.Flags().IntVarP(&similarTopK, "top-k", "k", 0, "Matches per query (defaults to SIMILARITY_TOP_K)")
	rootCmd.AddCommand(similarCmd)
}

func runSimilar(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		topK := similarTopK
		if !cmd.Flags().Changed("top-k") {
			topK = a.Config.SimilarityTopK
		}
		results, err := a.Similarity.FindSimilar(ctx, args, topK)
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), map[string]any{
			"results":       results,
			"deviation_ids": retrieval.UnionRecordIDs(results, domain.MetaSummaryID),
		})
	})
}
