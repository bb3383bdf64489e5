package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kirillkom/script-rating/internal/config"
	"github.com/kirillkom/script-rating/internal/core/domain"
)

func newAnalyzeCmd(root *rootOptions) *cobra.Command {
	var (
		corpus []string
		target string
	)
	cmd := &cobra.Command{
		Use:   "analyze <script>",
		Short: "Rate a script file and print the analysis as JSON",
		Long: `Runs the full pipeline in-process on a PDF, DOCX or text script.

Reference files given with --corpus are indexed before the run, so citations
work without a database. Examples:

  ratingctl analyze pilot.pdf
  ratingctl analyze pilot.docx --corpus law.pdf --corpus guide.xlsx --target 12+`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			targetRating, err := domain.ParseOptionalRating(target)
			if err != nil {
				return err
			}

			scratch, err := os.MkdirTemp("", "ratingctl-*")
			if err != nil {
				return fmt.Errorf("create scratch dir: %w", err)
			}
			defer os.RemoveAll(scratch)

			app, err := openApp(cmd, root, func(cfg *config.Config) {
				cfg.StoragePath = scratch
				if len(corpus) > 0 {
					cfg.PostgresDSN = ""
				}
			})
			if err != nil {
				return err
			}
			defer app.Close()

			ctx := cmd.Context()
			for _, path := range corpus {
				if _, err := importReference(cmd, app, path, ""); err != nil {
					return err
				}
			}

			data, mimeType, err := readInput(args[0])
			if err != nil {
				return err
			}
			filename := filepath.Base(args[0])
			doc, err := app.Parser.Parse(ctx, data, mimeType, filename)
			if err != nil {
				return fmt.Errorf("parse %s: %w", filename, err)
			}

			run, err := app.Analysis.AnalyzeDocument(ctx, filename, doc, targetRating)
			if run.ID != "" {
				if printErr := printJSON(cmd, run); printErr != nil {
					return printErr
				}
			}
			return err
		},
	}
	cmd.Flags().StringArrayVar(&corpus, "corpus", nil, "reference file to index before the run (repeatable)")
	cmd.Flags().StringVar(&target, "target", "", "target rating; blocks above it are reported as problems")
	return cmd
}
