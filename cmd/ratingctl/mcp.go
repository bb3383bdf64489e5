package main

import (
	"os"

	"github.com/spf13/cobra"

	mcpadapter "github.com/kirillkom/script-rating/internal/adapters/mcp"
)

func newMCPCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve rate_script and search_references over stdio (MCP)",
		Long: `Starts a Model Context Protocol server on stdin/stdout.

Client configuration example:
  {
    "mcpServers": {
      "script-rating": {"command": "/path/to/ratingctl", "args": ["mcp"]}
    }
  }`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := openApp(cmd, root, nil)
			if err != nil {
				return err
			}
			defer app.Close()

			server, err := mcpadapter.NewServer(&mcpadapter.Ports{
				Analyzer:   app.Analysis,
				Parser:     app.Parser,
				References: app.KnowledgeBase,
			})
			if err != nil {
				return err
			}
			return server.Serve(cmd.Context(), os.Stdin, os.Stdout)
		},
	}
}
