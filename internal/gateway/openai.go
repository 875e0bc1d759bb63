// File: internal/gateway/openai.go
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/iwa/api/schemas"
	"github.com/xkilldash9x/iwa/internal/config"
)

// CorrelationHeader carries the task id on every outbound gateway request,
// so provider-side logs can be joined back to a task.
const CorrelationHeader = "iwa-task-id"

const maxErrorBodyLen = 512

// OpenAIClient implements schemas.LLMClient against any OpenAI-compatible
// chat completions endpoint. Transient failures are retried in place with
// exponential backoff; everything else surfaces as a schemas.StatusError so
// the caller can decide whether to move down the model chain.
type OpenAIClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
	cfg        config.LLMConfig

	// backoffFactory builds the retry policy for one Generate call. Tests
	// inject a faster one.
	backoffFactory func() backoff.BackOff
}

// -- OpenAI-compatible API request/response structures --

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatResponseFormat struct {
	Type string `json:"type"`
}

type ChatCompletionRequest struct {
	Model          string              `json:"model"`
	Messages       []ChatMessage       `json:"messages"`
	Temperature    float64             `json:"temperature"`
	MaxTokens      int                 `json:"max_tokens,omitempty"`
	ResponseFormat *ChatResponseFormat `json:"response_format,omitempty"`
}

type ChatCompletionResponse struct {
	Choices []struct {
		Message      ChatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// NewOpenAIClient initializes the client. The API key is optional: local
// OpenAI-compatible gateways often run unauthenticated.
func NewOpenAIClient(cfg config.LLMConfig, logger *zap.Logger) (*OpenAIClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("openai base URL is required")
	}

	return &OpenAIClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		cfg:     cfg,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		limiter:        rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
		logger:         logger.Named("gateway.openai"),
		backoffFactory: defaultBackoffFactory,
	}, nil
}

// Generate sends the prompts to the chat completions endpoint and returns
// the generated content, retrying transient failures up to the configured
// per-model budget.
func (c *OpenAIClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	if req.TaskID == "" {
		return "", fmt.Errorf("generation request is missing its task id")
	}
	if req.Model == "" {
		return "", fmt.Errorf("generation request is missing a model")
	}

	body, err := json.Marshal(c.buildRequestPayload(req))
	if err != nil {
		return "", fmt.Errorf("failed to marshal request payload: %w", err)
	}

	var responseContent string

	operation := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create HTTP request: %w", err))
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set(CorrelationHeader, req.TaskID)
		if c.apiKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		startTime := time.Now()
		resp, err := c.httpClient.Do(httpReq)
		duration := time.Since(startTime)

		if err != nil {
			c.logger.Warn("Network error during LLM request, retrying...", zap.Error(err))
			return fmt.Errorf("failed to execute HTTP request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			return c.handleAPIError(resp.StatusCode, respBody)
		}

		var responsePayload ChatCompletionResponse
		if err := json.Unmarshal(respBody, &responsePayload); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode response payload: %w", err))
		}

		if len(responsePayload.Choices) == 0 {
			return backoff.Permanent(fmt.Errorf("gateway returned no choices"))
		}

		choice := responsePayload.Choices[0]
		if choice.Message.Content == "" {
			if choice.FinishReason == "content_filter" {
				return backoff.Permanent(fmt.Errorf("gateway blocked the request (reason: %s)", choice.FinishReason))
			}
			return fmt.Errorf("gateway returned empty content (reason: %s)", choice.FinishReason)
		}

		c.logger.Info("LLM generation complete",
			zap.String("model", req.Model),
			zap.String("task_id", req.TaskID),
			zap.Duration("duration", duration),
			zap.Int("prompt_tokens", responsePayload.Usage.PromptTokens),
			zap.Int("completion_tokens", responsePayload.Usage.CompletionTokens),
			zap.Int("total_tokens", responsePayload.Usage.TotalTokens),
		)

		responseContent = choice.Message.Content
		return nil
	}

	if err := backoff.Retry(operation, c.retryPolicy(ctx)); err != nil {
		return "", err
	}
	return responseContent, nil
}

// Close releases client resources. The underlying HTTP client holds none.
func (c *OpenAIClient) Close() error {
	return nil
}

func (c *OpenAIClient) retryPolicy(ctx context.Context) backoff.BackOff {
	b := backoff.WithMaxRetries(c.backoffFactory(), uint64(c.cfg.MaxRetriesPerModel))
	return backoff.WithContext(b, ctx)
}

func (c *OpenAIClient) buildRequestPayload(req schemas.GenerationRequest) ChatCompletionRequest {
	payload := ChatCompletionRequest{
		Model: req.Model,
		Messages: []ChatMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.UserPrompt},
		},
		Temperature: req.Options.Temperature,
		MaxTokens:   req.Options.MaxTokens,
	}
	if req.Options.ForceJSONFormat {
		payload.ResponseFormat = &ChatResponseFormat{Type: "json_object"}
	}
	return payload
}

// handleAPIError classifies a non-200 reply. Rate limiting and server-side
// failures are retried; every other status is final for this model.
func (c *OpenAIClient) handleAPIError(statusCode int, body []byte) error {
	c.logger.Error("Gateway returned error status",
		zap.Int("status", statusCode),
		zap.String("response", truncateBody(body)),
	)
	err := &schemas.StatusError{Code: statusCode, Body: truncateBody(body)}

	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return err
	default:
		return backoff.Permanent(err)
	}
}

func truncateBody(body []byte) string {
	s := string(body)
	if len(s) > maxErrorBodyLen {
		return s[:maxErrorBodyLen] + "..."
	}
	return s
}
