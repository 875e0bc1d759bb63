// File: internal/gateway/openai_test.go
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/iwa/api/schemas"
)

func successResponse(content string) ChatCompletionResponse {
	resp := ChatCompletionResponse{}
	resp.Choices = []struct {
		Message      ChatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	}{
		{Message: ChatMessage{Role: "assistant", Content: content}, FinishReason: "stop"},
	}
	resp.Usage.PromptTokens = 100
	resp.Usage.CompletionTokens = 50
	resp.Usage.TotalTokens = 150
	return resp
}

func TestNewOpenAIClient(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		cfg := testLLMConfig()
		client, err := NewOpenAIClient(cfg, zap.NewNop())
		require.NoError(t, err)
		require.NotNil(t, client)

		assert.Equal(t, "http://localhost:0/v1", client.baseURL)
		assert.Equal(t, cfg.RequestTimeout, client.httpClient.Timeout)
		assert.NotNil(t, client.backoffFactory, "Backoff factory should be initialized")
	})

	t.Run("trailing slash trimmed", func(t *testing.T) {
		cfg := testLLMConfig()
		cfg.BaseURL = "http://localhost:8000/v1/"
		client, err := NewOpenAIClient(cfg, zap.NewNop())
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:8000/v1", client.baseURL)
	})

	t.Run("missing base URL", func(t *testing.T) {
		cfg := testLLMConfig()
		cfg.BaseURL = ""
		client, err := NewOpenAIClient(cfg, zap.NewNop())
		assert.Error(t, err)
		assert.Nil(t, client)
	})
}

func TestOpenAIGenerate_Success(t *testing.T) {
	expectedResponseText := `{"thinking": "ok", "action": {"type": "noop"}}`

	handler := func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer test-api-key", r.Header.Get("Authorization"))
		assert.Equal(t, "task-123", r.Header.Get(CorrelationHeader))

		body, _ := io.ReadAll(r.Body)
		var payload ChatCompletionRequest
		require.NoError(t, json.Unmarshal(body, &payload), "Server received invalid JSON payload")
		assert.Equal(t, "test-model-a", payload.Model)
		require.Len(t, payload.Messages, 2)
		assert.Equal(t, "system", payload.Messages[0].Role)
		assert.Equal(t, "System prompt instructions.", payload.Messages[0].Content)
		assert.Equal(t, "user", payload.Messages[1].Role)
		assert.Equal(t, "User query.", payload.Messages[1].Content)
		assert.Equal(t, 0.7, payload.Temperature)
		assert.Nil(t, payload.ResponseFormat)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(successResponse(expectedResponseText))
	}

	client, _, observedLogs := setupOpenAIClient(t, handler)

	response, err := client.Generate(context.Background(), createTestRequest())

	require.NoError(t, err)
	assert.Equal(t, expectedResponseText, response)

	require.Equal(t, 1, observedLogs.Len(), "Expected one log entry for successful generation")
	logEntry := observedLogs.All()[0]
	assert.Equal(t, "LLM generation complete", logEntry.Message)
	assert.Equal(t, int64(100), logEntry.ContextMap()["prompt_tokens"])
	assert.Equal(t, int64(50), logEntry.ContextMap()["completion_tokens"])
	assert.Equal(t, "task-123", logEntry.ContextMap()["task_id"])
}

func TestOpenAIGenerate_ForceJSONFormat(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var payload ChatCompletionRequest
		require.NoError(t, json.Unmarshal(body, &payload))
		require.NotNil(t, payload.ResponseFormat)
		assert.Equal(t, "json_object", payload.ResponseFormat.Type)

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(successResponse("{}"))
	}

	client, _, _ := setupOpenAIClient(t, handler)
	req := createTestRequest()
	req.Options.ForceJSONFormat = true

	_, err := client.Generate(context.Background(), req)
	require.NoError(t, err)
}

func TestOpenAIGenerate_MissingTaskID(t *testing.T) {
	var attemptCounter int32
	client, _, _ := setupOpenAIClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attemptCounter, 1)
	})

	req := createTestRequest()
	req.TaskID = ""

	_, err := client.Generate(context.Background(), req)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "task id")
	assert.Equal(t, int32(0), atomic.LoadInt32(&attemptCounter), "No request should leave the process without a task id")
}

func TestOpenAIGenerate_RetryOnTransientErrors(t *testing.T) {
	var attemptCounter int32
	expectedAttempts := 3

	handler := func(w http.ResponseWriter, r *http.Request) {
		attempt := atomic.AddInt32(&attemptCounter, 1)
		if int(attempt) < expectedAttempts {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("Service temporarily unavailable."))
			return
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(successResponse("Success after retry"))
	}

	client, _, observedLogs := setupOpenAIClient(t, handler)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	response, err := client.Generate(ctx, createTestRequest())

	require.NoError(t, err)
	assert.Equal(t, "Success after retry", response)
	assert.Equal(t, int32(expectedAttempts), atomic.LoadInt32(&attemptCounter), "The request should have been retried the expected number of times")

	errorLogs := observedLogs.FilterLevelExact(zap.ErrorLevel)
	assert.Equal(t, expectedAttempts-1, errorLogs.Len(), "Expected ERROR logs for the failed attempts")
}

func TestOpenAIGenerate_TransientExhaustsRetries(t *testing.T) {
	var attemptCounter int32
	handler := func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attemptCounter, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("still down"))
	}

	client, _, _ := setupOpenAIClient(t, handler)

	_, err := client.Generate(context.Background(), createTestRequest())

	require.Error(t, err)
	// One initial attempt plus MaxRetriesPerModel retries.
	assert.Equal(t, int32(3), atomic.LoadInt32(&attemptCounter))

	var statusErr *schemas.StatusError
	require.ErrorAs(t, err, &statusErr, "Exhausted retries should surface the last status error")
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.Code)
}

func TestOpenAIGenerate_NoRetryOnPermanentErrors(t *testing.T) {
	testCases := []struct {
		name   string
		status int
	}{
		{name: "bad request", status: http.StatusBadRequest},
		{name: "payment required", status: http.StatusPaymentRequired},
		{name: "unprocessable entity", status: http.StatusUnprocessableEntity},
		{name: "forbidden", status: http.StatusForbidden},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			var attemptCounter int32
			handler := func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&attemptCounter, 1)
				w.WriteHeader(tc.status)
				w.Write([]byte("request rejected"))
			}

			client, _, _ := setupOpenAIClient(t, handler)

			response, err := client.Generate(context.Background(), createTestRequest())

			require.Error(t, err)
			assert.Empty(t, response)
			assert.Equal(t, int32(1), atomic.LoadInt32(&attemptCounter), "Permanent errors must not trigger retries")

			var statusErr *schemas.StatusError
			require.ErrorAs(t, err, &statusErr)
			assert.Equal(t, tc.status, statusErr.Code)
			assert.Contains(t, statusErr.Body, "request rejected")
		})
	}
}

func TestOpenAIGenerate_RetryOnNetworkError(t *testing.T) {
	client, server, observedLogs := setupOpenAIClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("Handler reached despite server being closed.")
	})

	// Close the server to simulate a connection refused error.
	server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := client.Generate(ctx, createTestRequest())

	require.Error(t, err)

	var permanentErr *backoff.PermanentError
	assert.False(t, errors.As(err, &permanentErr), "Network errors should be treated as transient and retried")

	warnLogs := observedLogs.FilterLevelExact(zap.WarnLevel)
	assert.Equal(t, 3, warnLogs.Len(), "Expected a WARN log per failed attempt")
	assert.Contains(t, warnLogs.All()[0].Message, "Network error during LLM request, retrying...")
}

func TestOpenAIGenerate_NoChoices(t *testing.T) {
	var attemptCounter int32
	handler := func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attemptCounter, 1)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"choices": []}`))
	}

	client, _, _ := setupOpenAIClient(t, handler)

	response, err := client.Generate(context.Background(), createTestRequest())

	require.Error(t, err)
	assert.Empty(t, response)
	assert.Contains(t, err.Error(), "no choices")
	assert.Equal(t, int32(1), atomic.LoadInt32(&attemptCounter), "Empty choice lists must not trigger retries")
}

func TestOpenAIGenerate_EmptyContent(t *testing.T) {
	t.Run("content filter is permanent", func(t *testing.T) {
		var attemptCounter int32
		handler := func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&attemptCounter, 1)
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"choices": [{"message": {"role": "assistant", "content": ""}, "finish_reason": "content_filter"}]}`))
		}

		client, _, _ := setupOpenAIClient(t, handler)

		_, err := client.Generate(context.Background(), createTestRequest())

		require.Error(t, err)
		assert.Contains(t, err.Error(), "blocked")
		assert.Equal(t, int32(1), atomic.LoadInt32(&attemptCounter))
	})

	t.Run("other empty content is transient", func(t *testing.T) {
		var attemptCounter int32
		handler := func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&attemptCounter, 1)
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"choices": [{"message": {"role": "assistant", "content": ""}, "finish_reason": "length"}]}`))
		}

		client, _, _ := setupOpenAIClient(t, handler)

		_, err := client.Generate(context.Background(), createTestRequest())

		require.Error(t, err)
		assert.Contains(t, err.Error(), "empty content")
		assert.Equal(t, int32(3), atomic.LoadInt32(&attemptCounter), "Empty content should be retried")
	})
}

func TestOpenAIGenerate_InvalidJSONResponse(t *testing.T) {
	var attemptCounter int32
	handler := func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attemptCounter, 1)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("{invalid json:"))
	}

	client, _, _ := setupOpenAIClient(t, handler)

	response, err := client.Generate(context.Background(), createTestRequest())

	require.Error(t, err)
	assert.Empty(t, response)
	assert.Contains(t, err.Error(), "failed to decode response payload")
	assert.Equal(t, int32(1), atomic.LoadInt32(&attemptCounter))
}

func TestOpenAIGenerate_ContextCancellation(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}

	client, _, _ := setupOpenAIClient(t, handler)
	client.backoffFactory = func() backoff.BackOff {
		return backoff.NewConstantBackOff(10 * time.Second)
	}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	startTime := time.Now()
	response, err := client.Generate(ctx, createTestRequest())
	duration := time.Since(startTime)

	require.Error(t, err)
	assert.Empty(t, response)
	assert.True(t, errors.Is(err, context.Canceled), "Error should be context.Canceled, but got: %v", err)
	assert.Less(t, duration, 1*time.Second, "Operation should abort quickly upon cancellation")
}
