package main

import (
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kirillkom/script-rating/internal/bootstrap"
	"github.com/kirillkom/script-rating/internal/config"
	"github.com/kirillkom/script-rating/internal/observability/logging"
)

type rootOptions struct {
	logLevel      string
	retrievalMode string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "ratingctl",
		Short:         "Screenplay age-rating toolkit",
		Long:          `Rate screenplays offline, manage the reference corpus and serve MCP tools.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level written to stderr (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&opts.retrievalMode, "retrieval", "", "override RETRIEVAL_MODE (semantic, lexical, hybrid)")

	cmd.AddCommand(newAnalyzeCmd(opts), newReferencesCmd(opts), newMCPCmd(opts))
	return cmd
}

// openApp assembles the application from the environment. Analyses always
// run inline in this process.
func openApp(cmd *cobra.Command, opts *rootOptions, mutate func(*config.Config)) (*bootstrap.App, error) {
	cfg := config.Load()
	cfg.AnalysisDispatch = "inline"
	if opts.retrievalMode != "" {
		cfg.RetrievalMode = opts.retrievalMode
	}
	if mutate != nil {
		mutate(&cfg)
	}
	logger := logging.NewJSONLoggerTo(cmd.ErrOrStderr(), "ratingctl", opts.logLevel)
	return bootstrap.New(cmd.Context(), cfg, bootstrap.Options{Service: "ratingctl", Logger: logger})
}

func readInput(path string) ([]byte, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", path, err)
	}
	return data, mime.TypeByExtension(filepath.Ext(path)), nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
