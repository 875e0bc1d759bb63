// File: internal/gateway/gemini.go
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/xkilldash9x/iwa/api/schemas"
	"github.com/xkilldash9x/iwa/internal/config"
)

// GeminiClient implements schemas.LLMClient on the Gemini SDK. The task id
// travels on a context value and a wrapping transport stamps it onto every
// outbound request, since the SDK owns request construction.
type GeminiClient struct {
	client  *genai.Client
	limiter *rate.Limiter
	logger  *zap.Logger
	cfg     config.LLMConfig

	backoffFactory func() backoff.BackOff
}

type taskIDContextKey struct{}

// correlationTransport copies the task id from the request context into the
// correlation header before the request leaves the process.
type correlationTransport struct {
	base http.RoundTripper
}

func (t *correlationTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	if id, ok := r.Context().Value(taskIDContextKey{}).(string); ok && id != "" {
		r = r.Clone(r.Context())
		r.Header.Set(CorrelationHeader, id)
	}
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(r)
}

// NewGeminiClient initializes the client.
func NewGeminiClient(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
		HTTPClient: &http.Client{
			Timeout:   cfg.RequestTimeout,
			Transport: &correlationTransport{},
		},
	}
	if cfg.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize gemini client: %w", err)
	}

	return &GeminiClient{
		client:         client,
		cfg:            cfg,
		limiter:        rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
		logger:         logger.Named("gateway.gemini"),
		backoffFactory: defaultBackoffFactory,
	}, nil
}

// Generate sends the prompts to the Gemini API and returns the generated
// content, retrying transient failures up to the configured per-model budget.
func (c *GeminiClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	if req.TaskID == "" {
		return "", fmt.Errorf("generation request is missing its task id")
	}
	if req.Model == "" {
		return "", fmt.Errorf("generation request is missing a model")
	}

	ctx = context.WithValue(ctx, taskIDContextKey{}, req.TaskID)
	genConfig := c.buildGenerationConfig(req)

	var responseContent string

	operation := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		startTime := time.Now()
		resp, err := c.client.Models.GenerateContent(ctx, req.Model, genai.Text(req.UserPrompt), genConfig)
		duration := time.Since(startTime)

		if err != nil {
			return c.classifyError(err)
		}

		if len(resp.Candidates) == 0 {
			return backoff.Permanent(fmt.Errorf("gemini API returned no candidates"))
		}

		text := resp.Text()
		if text == "" {
			reason := string(resp.Candidates[0].FinishReason)
			if reason == "SAFETY" || reason == "BLOCKLIST" || reason == "PROHIBITED_CONTENT" {
				return backoff.Permanent(fmt.Errorf("gemini API blocked the request (reason: %s)", reason))
			}
			return fmt.Errorf("gemini API returned empty content (reason: %s)", reason)
		}

		if resp.UsageMetadata != nil {
			c.logger.Info("LLM generation complete",
				zap.String("model", req.Model),
				zap.String("task_id", req.TaskID),
				zap.Duration("duration", duration),
				zap.Int32("prompt_tokens", resp.UsageMetadata.PromptTokenCount),
				zap.Int32("completion_tokens", resp.UsageMetadata.CandidatesTokenCount),
				zap.Int32("total_tokens", resp.UsageMetadata.TotalTokenCount),
			)
		}

		responseContent = text
		return nil
	}

	retryPolicy := backoff.WithContext(backoff.WithMaxRetries(c.backoffFactory(), uint64(c.cfg.MaxRetriesPerModel)), ctx)
	if err := backoff.Retry(operation, retryPolicy); err != nil {
		return "", err
	}
	return responseContent, nil
}

// Close releases client resources. The SDK client holds no connections that
// outlive their requests.
func (c *GeminiClient) Close() error {
	return nil
}

func (c *GeminiClient) buildGenerationConfig(req schemas.GenerationRequest) *genai.GenerateContentConfig {
	genConfig := &genai.GenerateContentConfig{
		Temperature:       genai.Ptr(float32(req.Options.Temperature)),
		SystemInstruction: genai.NewContentFromText(req.SystemPrompt, genai.RoleUser),
	}
	if req.Options.MaxTokens > 0 {
		genConfig.MaxOutputTokens = int32(req.Options.MaxTokens)
	}
	if req.Options.ForceJSONFormat {
		genConfig.ResponseMIMEType = "application/json"
	}
	return genConfig
}

// classifyError maps SDK failures onto the shared retry policy: API errors
// become StatusError and follow the same transient set as the OpenAI path,
// anything else is treated as a network failure and retried.
func (c *GeminiClient) classifyError(err error) error {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		c.logger.Warn("Network error during LLM request, retrying...", zap.Error(err))
		return fmt.Errorf("failed to execute gemini request: %w", err)
	}

	c.logger.Error("Gemini API returned error status",
		zap.Int("status", apiErr.Code),
		zap.String("message", apiErr.Message),
	)
	statusErr := &schemas.StatusError{Code: apiErr.Code, Body: apiErr.Message}

	switch apiErr.Code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return statusErr
	default:
		return backoff.Permanent(statusErr)
	}
}
