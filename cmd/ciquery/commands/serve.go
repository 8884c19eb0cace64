package commands

import (
	"os"
	"os/signal"

	"ciquery/internal/mcp"
	"ciquery/internal/query"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the query tools over stdio JSON-RPC (MCP)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := requireEnvironments(); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		log.Info().Msg("MCP Server starting Stdio loop")
		server := mcp.NewServer(cfg, query.NewExecutor(cfg), Version)
		return server.Serve(ctx)
	},
}
