package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kirillkom/script-rating/internal/bootstrap"
	"github.com/kirillkom/script-rating/internal/core/domain"
)

func newReferencesCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "references",
		Short: "Manage the reference corpus",
		Long:  `Import, list and search reference documents. Uses POSTGRES_DSN when set.`,
	}
	cmd.AddCommand(newReferencesImportCmd(root), newReferencesListCmd(root), newReferencesQueryCmd(root))
	return cmd
}

func newReferencesImportCmd(root *rootOptions) *cobra.Command {
	var title string
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Index a PDF, DOCX, text or XLSX reference document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd, root, nil)
			if err != nil {
				return err
			}
			defer app.Close()

			id, err := importReference(cmd, app, args[0], title)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]string{"document_id": id})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "document title (defaults to the file name)")
	return cmd
}

func newReferencesListCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List indexed reference documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := openApp(cmd, root, nil)
			if err != nil {
				return err
			}
			defer app.Close()

			docs, err := app.KnowledgeBase.ListReferenceDocuments(cmd.Context())
			if err != nil {
				return err
			}
			if len(docs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No reference documents.")
				return nil
			}
			for _, d := range docs {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-40s  %d excerpts\n", d.ID, d.Title, d.ExcerptCount)
			}
			return nil
		},
	}
}

func newReferencesQueryCmd(root *rootOptions) *cobra.Command {
	var (
		topK     int
		category string
	)
	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Search the reference corpus",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := domain.QueryFilter{}
			if category != "" {
				c, err := domain.ParseCategory(category)
				if err != nil {
					return err
				}
				filter.Category = c
			}

			app, err := openApp(cmd, root, nil)
			if err != nil {
				return err
			}
			defer app.Close()

			hits, err := app.KnowledgeBase.Query(cmd.Context(), strings.Join(args, " "), topK, filter)
			if err != nil {
				return err
			}
			return printJSON(cmd, hits)
		},
	}
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "maximum number of excerpts (0 = default)")
	cmd.Flags().StringVar(&category, "category", "", "restrict to one content category")
	return cmd
}

func importReference(cmd *cobra.Command, app *bootstrap.App, path, title string) (string, error) {
	data, mimeType, err := readInput(path)
	if err != nil {
		return "", err
	}
	filename := filepath.Base(path)
	paragraphs, err := app.Parser.ParseReference(cmd.Context(), data, mimeType, filename)
	if err != nil {
		return "", fmt.Errorf("parse reference %s: %w", filename, err)
	}
	if title == "" {
		title = strings.TrimSuffix(filename, filepath.Ext(filename))
	}
	id, err := app.KnowledgeBase.AddReferenceDocument(cmd.Context(), title, paragraphs)
	if err != nil {
		return "", fmt.Errorf("index reference %s: %w", filename, err)
	}
	return id, nil
}
