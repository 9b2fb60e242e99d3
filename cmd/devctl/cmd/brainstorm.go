package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/arturoeanton/go-deviation-rag/internal/app"
)

var brainstormCmd = &cobra.Command{
	Use:   "brainstorm [file]",
	Short: "Brainstorm root cause and CAPA for a new deviation",
	Long: `Brainstorm root cause, CAPA and effectiveness checks for the deviation
described in a JSON object of field name to text ("-" for stdin).

Example input:
  {"Problem Description and Immediate Action": "Cold room reached 12C ..."}`,
	Args: cobra.ExactArgs(1),
	RunE: runBrainstorm,
}

func init() {
	rootCmd.AddCommand(brainstormCmd)
}

func runBrainstorm(cmd *cobra.Command, args []string) error {
	var input map[string]string
	if err := readJSON(cmd.InOrStdin(), args[0], &input); err != nil {
		return err
	}
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		res, err := a.Brainstorm.Brainstorm(ctx, input, progress(cmd.ErrOrStderr())...)
		if err != nil {
			return err
		}
		logResult("brainstorm finished", "failed", len(res.Failed), "elapsed_ms", res.ElapsedMS)
		return printResult(cmd.OutOrStdout(), res)
	})
}
