package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/arturoeanton/go-deviation-rag/internal/app"
	"github.com/arturoeanton/go-deviation-rag/internal/domain"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Index a closed deviation",
	Long: `Index a closed deviation read from a JSON file ("-" for stdin).

The file carries the "Description" and "Root Cause" fields:
  {"Description": "...", "Root Cause": "..."}`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	var in domain.DeviationInput
	if err := readJSON(cmd.InOrStdin(), args[0], &in); err != nil {
		return err
	}
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		res, err := a.Ingest.Ingest(ctx, in)
		if err != nil {
			return err
		}
		logResult("deviation indexed", "deviation_id", res.ID, "index_records", a.Index.Len())
		return printResult(cmd.OutOrStdout(), res)
	})
}
