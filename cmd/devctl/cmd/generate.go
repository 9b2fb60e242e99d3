package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/arturoeanton/go-deviation-rag/internal/app"
)

var generateCmd = &cobra.Command{
	Use:   "generate [file]",
	Short: "Draft report subsections from section inputs",
	Long: `Draft GMP report subsections from a JSON object of section name to
free text ("-" for stdin). Sections without input are skipped.

Example input:
  {"PD&IA": "...", "Investigation": "...", "CAPA": "..."}`,
	Args: cobra.ExactArgs(1),
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	var input map[string]string
	if err := readJSON(cmd.InOrStdin(), args[0], &input); err != nil {
		return err
	}
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		res, err := a.Generation.Generate(ctx, input, progress(cmd.ErrOrStderr())...)
		if err != nil {
			return err
		}
		logResult("generation finished", "failed", len(res.Failed), "skipped", len(res.Skipped))
		return printResult(cmd.OutOrStdout(), res)
	})
}
