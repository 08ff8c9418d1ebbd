package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/seekr-dev/codeseek/internal/mcp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP server on stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cfg, true)
		if err != nil {
			return err
		}
		defer a.close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		go func() {
			sig := <-sigChan
			logger.Info().Str("signal", sig.String()).Msg("shutting down")
			cancel()
		}()

		server := mcp.NewServer(a.indexer, a.engine, a.store, logger)
		logger.Info().Msg("MCP server ready, listening on stdio")
		return server.Serve(ctx)
	},
}
