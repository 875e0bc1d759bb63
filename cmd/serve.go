// File: cmd/serve.go
package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/iwa/internal/gateway"
	"github.com/xkilldash9x/iwa/internal/observability"
	"github.com/xkilldash9x/iwa/internal/server"
	"github.com/xkilldash9x/iwa/pkg/agent"
	"github.com/xkilldash9x/iwa/pkg/invoker"
	"github.com/xkilldash9x/iwa/pkg/resolver"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP decision service (POST /act, GET /health).",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := observability.GetLogger()
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		pipeline, closeClient, err := buildPipeline(ctx, logger)
		if err != nil {
			return err
		}
		defer closeClient()

		srv := server.New(appCfg.Server, pipeline, logger)
		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("decision service exited with error: %w", err)
		}
		logger.Info("Decision service stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// buildPipeline assembles the decision pipeline from configuration:
// gateway client → invoker → agent with its resolver.
func buildPipeline(ctx context.Context, logger *zap.Logger) (*agent.Agent, func(), error) {
	client, err := gateway.New(ctx, appCfg.LLM, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build gateway client: %w", err)
	}
	closeClient := func() {
		if cErr := client.Close(); cErr != nil {
			logger.Warn("Failed to close gateway client", zap.Error(cErr))
		}
	}

	inv := invoker.New(client, appCfg.LLM, logger)
	res := resolver.New(appCfg.Agent.SimilarityThreshold, logger)
	return agent.New(appCfg.Agent, inv, res, logger), closeClient, nil
}
