// File: pkg/invoker/invoker_test.go
package invoker

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/iwa/api/schemas"
	"github.com/xkilldash9x/iwa/internal/config"
)

// scriptedClient fails a fixed number of leading models, then answers.
type scriptedClient struct {
	answers map[string]string
	errs    map[string]error
	calls   []string
}

func (c *scriptedClient) Generate(_ context.Context, req schemas.GenerationRequest) (string, error) {
	c.calls = append(c.calls, req.Model)
	if err, ok := c.errs[req.Model]; ok {
		return "", err
	}
	if answer, ok := c.answers[req.Model]; ok {
		return answer, nil
	}
	return "", &schemas.StatusError{Code: http.StatusInternalServerError, Body: "unscripted model"}
}

func (c *scriptedClient) Close() error { return nil }

func chainConfig() config.LLMConfig {
	return config.LLMConfig{Models: []string{"primary", "secondary", "budget"}}
}

func TestInvokePrimaryAnswers(t *testing.T) {
	client := &scriptedClient{answers: map[string]string{"primary": "response"}}
	inv := New(client, chainConfig(), zaptest.NewLogger(t))

	raw, err := inv.Invoke(context.Background(), "t1", "system", "user")
	require.NoError(t, err)
	assert.Equal(t, "response", raw)
	assert.Equal(t, []string{"primary"}, client.calls)
}

func TestInvokeFallsThroughChain(t *testing.T) {
	client := &scriptedClient{
		errs: map[string]error{
			"primary":   &schemas.StatusError{Code: http.StatusBadRequest, Body: "unsupported"},
			"secondary": &schemas.StatusError{Code: http.StatusInternalServerError, Body: "boom"},
		},
		answers: map[string]string{"budget": "late answer"},
	}
	inv := New(client, chainConfig(), zaptest.NewLogger(t))

	raw, err := inv.Invoke(context.Background(), "t1", "system", "user")
	require.NoError(t, err)
	assert.Equal(t, "late answer", raw)
	assert.Equal(t, []string{"primary", "secondary", "budget"}, client.calls)
}

func TestInvokePaymentRequiredAbortsChain(t *testing.T) {
	client := &scriptedClient{
		errs: map[string]error{
			"primary": &schemas.StatusError{Code: http.StatusPaymentRequired, Body: "cost limit"},
		},
		answers: map[string]string{"secondary": "never reached"},
	}
	inv := New(client, chainConfig(), zaptest.NewLogger(t))

	_, err := inv.Invoke(context.Background(), "t1", "system", "user")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "aborted")
	assert.Equal(t, []string{"primary"}, client.calls, "remaining models share the exhausted account")
}

func TestInvokeChainExhaustion(t *testing.T) {
	client := &scriptedClient{}
	inv := New(client, chainConfig(), zaptest.NewLogger(t))

	_, err := inv.Invoke(context.Background(), "t1", "system", "user")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all 3 models")
	assert.Len(t, client.calls, 3)
}

func TestInvokeEmptyTaskIDIsProgrammingError(t *testing.T) {
	client := &scriptedClient{answers: map[string]string{"primary": "response"}}
	inv := New(client, chainConfig(), zaptest.NewLogger(t))

	_, err := inv.Invoke(context.Background(), "", "system", "user")
	require.Error(t, err)
	assert.Empty(t, client.calls, "no model may be contacted without a correlation token")
}

func TestInvokeStopsOnCancelledContext(t *testing.T) {
	client := &scriptedClient{
		errs: map[string]error{"primary": &schemas.StatusError{Code: http.StatusInternalServerError, Body: "boom"}},
	}
	inv := New(client, chainConfig(), zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := inv.Invoke(ctx, "t1", "system", "user")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, client.calls)
}
