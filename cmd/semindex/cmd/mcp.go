package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aman-cerp/semindex/internal/config"
	"github.com/aman-cerp/semindex/internal/mcp"
	"github.com/aman-cerp/semindex/internal/store"
)

func newMCPCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "mcp",
		Short: "Run semindex as a Model Context Protocol server",
		Long: `mcp starts a stdio MCP server exposing 'index' and 'query' as tools,
for IDE and agent integrations that speak MCP instead of shelling out to
the CLI directly. It serves exactly one project, rooted at the current
directory (or its enclosing .git / .semindex.yaml root).`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cwd, err := os.Getwd()
			if err != nil {
				return err
			}
			root, err := config.FindProjectRoot(cwd)
			if err != nil {
				root = cwd
			}

			srv := mcp.NewServer(root, store.DefaultBaseDir())
			return srv.Serve(ctx, "stdio")
		},
	}
	return c
}
