// File: internal/gateway/helper_test.go
package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/iwa/api/schemas"
	"github.com/xkilldash9x/iwa/internal/config"
)

// testLLMConfig returns a valid gateway configuration for testing purposes.
// The rate limit is high enough that the limiter never throttles a test.
func testLLMConfig() config.LLMConfig {
	return config.LLMConfig{
		Provider:           config.ProviderOpenAI,
		BaseURL:            "http://localhost:0/v1",
		APIKey:             "test-api-key",
		Models:             []string{"test-model-a", "test-model-b"},
		RequestTimeout:     5 * time.Second,
		MaxRetriesPerModel: 2,
		Temperature:        0.7,
		RateLimit:          1000,
	}
}

// fastBackoff replaces the production retry policy so tests finish quickly.
func fastBackoff() backoff.BackOff {
	return backoff.NewConstantBackOff(5 * time.Millisecond)
}

// createTestRequest provides a standard generation request structure.
func createTestRequest() schemas.GenerationRequest {
	return schemas.GenerationRequest{
		Model:        "test-model-a",
		TaskID:       "task-123",
		SystemPrompt: "System prompt instructions.",
		UserPrompt:   "User query.",
		Options: schemas.GenerationOptions{
			Temperature: 0.7,
		},
	}
}

// setupOpenAIClient rigs up an OpenAIClient pointed at a mock HTTP server.
// It returns the client, the mock server, and a log observer.
func setupOpenAIClient(t *testing.T, handler http.HandlerFunc) (*OpenAIClient, *httptest.Server, *observer.ObservedLogs) {
	t.Helper()
	if handler == nil {
		handler = func(w http.ResponseWriter, r *http.Request) {
			t.Log("Warning: Unexpected HTTP request in test.")
			w.WriteHeader(http.StatusNotFound)
		}
	}
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	loggerCore, observedLogs := observer.New(zap.InfoLevel)
	logger := zap.New(loggerCore)

	cfg := testLLMConfig()
	cfg.BaseURL = server.URL

	client, err := NewOpenAIClient(cfg, logger)
	require.NoError(t, err, "NewOpenAIClient initialization failed")
	client.backoffFactory = fastBackoff

	return client, server, observedLogs
}
