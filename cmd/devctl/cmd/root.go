package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/arturoeanton/go-deviation-rag/internal/app"
	"github.com/arturoeanton/go-deviation-rag/internal/pipeline"
	"github.com/arturoeanton/go-deviation-rag/pkg/config"
)

var (
	// envFile is an optional .env file loaded before the environment is read
	envFile string
	// outputFormat is json or yaml
	outputFormat string
	// verbose prints pipeline task events to stderr
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "devctl",
	Short: "Command line access to the deviation assistant services",
	Long: `devctl runs the deviation assistant pipelines without the HTTP server.

It reads the same environment as the server (INDEX_BACKEND, RECORD_BACKEND,
OLLAMA_*, LLM_PROVIDER, ...). Use a durable backend when ingesting, the
memory backends are discarded when the command exits.

Examples:
  # Index a closed deviation
  devctl ingest deviation.json

  # Find the closest past deviations
  devctl similar "temperature excursion in cold room" --top-k 5

  # Brainstorm root cause and CAPA for a new incident
  devctl brainstorm incident.json -o yaml

  # Draft report subsections from section inputs
  devctl generate sections.json`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Load environment variables from this file (defaults to ./.env when present)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "json", "Output format: json, yaml")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Print task progress to stderr")
}

// withApp loads configuration, builds the application and runs fn with it.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
	} else {
		_ = godotenv.Load()
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, config.Load())
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

// progress returns an observer that logs task transitions when verbose is set.
func progress(w io.Writer) []pipeline.Observer {
	if !verbose {
		return nil
	}
	return []pipeline.Observer{func(e pipeline.Event) {
		if e.Err != nil {
			fmt.Fprintf(w, "wave %d  %-24s %s: %v\n", e.Wave, e.Key, e.State, e.Err)
			return
		}
		fmt.Fprintf(w, "wave %d  %-24s %s\n", e.Wave, e.Key, e.State)
	}}
}

// readJSON decodes the file at path into v. A path of "-" reads stdin.
func readJSON(in io.Reader, path string, v any) error {
	var r io.Reader = in
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// printResult writes v in the selected output format.
func printResult(w io.Writer, v any) error {
	switch outputFormat {
	case "yaml":
		// Round-trip through JSON so yaml keys follow the json tags.
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var generic any
		if err := json.Unmarshal(raw, &generic); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return err
		}
		return enc.Close()
	case "json", "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	default:
		return fmt.Errorf("unknown output format %q", outputFormat)
	}
}

func logResult(msg string, args ...any) {
	if verbose {
		slog.Info(msg, args...)
	}
}
