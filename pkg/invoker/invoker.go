// File: pkg/invoker/invoker.go

// Package invoker walks the configured model fallback chain for one
// decision step. Per-model retry budgets live in the gateway client; the
// invoker only decides whether a failure means trying the next model or
// abandoning the step.
package invoker

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/xkilldash9x/iwa/api/schemas"
	"github.com/xkilldash9x/iwa/internal/config"
)

// Invoker issues one generation request per step, falling through the
// model chain until a model answers.
type Invoker struct {
	client schemas.LLMClient
	cfg    config.LLMConfig
	logger *zap.Logger
}

func New(client schemas.LLMClient, cfg config.LLMConfig, logger *zap.Logger) *Invoker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Invoker{
		client: client,
		cfg:    cfg,
		logger: logger.Named("invoker"),
	}
}

// Invoke sends the prompts to each model in the chain in order and returns
// the first successful completion. A payment-required reply aborts the
// whole chain: the remaining models share the account that just ran dry.
// An empty task id is a programming error and fails before any model is
// contacted.
func (inv *Invoker) Invoke(ctx context.Context, taskID, systemPrompt, userPrompt string) (string, error) {
	if taskID == "" {
		return "", fmt.Errorf("invoke called without a task id")
	}

	var lastErr error
	for _, model := range inv.cfg.Models {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return "", fmt.Errorf("model chain interrupted: %w (last model error: %v)", err, lastErr)
			}
			return "", fmt.Errorf("model chain interrupted: %w", err)
		}

		req := schemas.GenerationRequest{
			Model:        model,
			TaskID:       taskID,
			SystemPrompt: systemPrompt,
			UserPrompt:   userPrompt,
			Options: schemas.GenerationOptions{
				Temperature:     inv.cfg.Temperature,
				MaxTokens:       inv.cfg.MaxTokens,
				ForceJSONFormat: true,
			},
		}

		response, err := inv.client.Generate(ctx, req)
		if err == nil {
			inv.logger.Debug("Model answered",
				zap.String("model", model),
				zap.String("task_id", taskID),
			)
			return response, nil
		}
		lastErr = err

		var statusErr *schemas.StatusError
		if errors.As(err, &statusErr) && statusErr.Code == http.StatusPaymentRequired {
			inv.logger.Error("Gateway reported payment required, abandoning the model chain",
				zap.String("model", model),
				zap.String("task_id", taskID),
			)
			return "", fmt.Errorf("model chain aborted: %w", err)
		}

		inv.logger.Warn("Model failed, trying next in chain",
			zap.String("model", model),
			zap.String("task_id", taskID),
			zap.Error(err),
		)
	}

	return "", fmt.Errorf("all %d models in the fallback chain failed: %w", len(inv.cfg.Models), lastErr)
}
