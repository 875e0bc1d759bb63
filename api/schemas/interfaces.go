package schemas

import (
	"context"
	"fmt"
)

// -- LLM Client Schemas & Interface --

// GenerationOptions provides detailed parameters to control the text
// generation process of the model.
type GenerationOptions struct {
	Temperature     float64 `json:"temperature"`       // Controls randomness. Lower is more deterministic.
	MaxTokens       int     `json:"max_tokens"`        // Response token cap; zero means provider default.
	ForceJSONFormat bool    `json:"force_json_format"` // If true, asks the provider to emit valid JSON.
}

// GenerationRequest encapsulates a complete request to the model gateway.
// TaskID is mandatory: it rides every outbound request as the correlation
// token the gateway uses for per-task accounting.
type GenerationRequest struct {
	Model        string            `json:"model"`         // Concrete model identifier, chosen by the invoker.
	TaskID       string            `json:"task_id"`       // Correlation token; never empty.
	SystemPrompt string            `json:"system_prompt"` // Instructions for the model's persona and output contract.
	UserPrompt   string            `json:"user_prompt"`   // The per-step decision context.
	Options      GenerationOptions `json:"options"`       // Generation parameters.
}

// LLMClient defines a standard interface for interacting with a Large
// Language Model, abstracting the specifics of the underlying provider.
type LLMClient interface {
	// Generate produces a text completion based on the provided request.
	Generate(ctx context.Context, req GenerationRequest) (string, error)
	// Close cleans up any resources held by the client.
	Close() error
}

// StatusError reports a non-2xx reply from the model gateway. The invoker
// inspects Code to decide between retrying, skipping to the next model, and
// aborting the whole fallback chain.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gateway returned status %d: %s", e.Code, e.Body)
}
