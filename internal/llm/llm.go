// Package llm is the client side of the external text-generation service.
// The pipeline only depends on the Generator interface; AnthropicClient is
// the production implementation. Replies are expected to carry a JSON
// payload, optionally wrapped in a markdown code fence.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Request is one generation call.
type Request struct {
	// Operation names the caller ("analyse", "digest") for metrics and logs.
	Operation string
	System    string
	Prompt    string
	MaxTokens int
}

// Response is the raw text reply plus usage accounting.
type Response struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
}

// Generator produces text for a prompt. Implementations must honour ctx.
type Generator interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

// ErrMalformedJSON is returned by DecodeJSON when the payload is not valid
// JSON for the target type.
var ErrMalformedJSON = errors.New("llm: malformed JSON payload")

// StripFence removes a leading ``` (with optional language tag) and the last
// trailing ``` from text. Unfenced text is returned trimmed.
func StripFence(text string) string {
	cleaned := strings.TrimSpace(text)
	if !strings.HasPrefix(cleaned, "```") {
		return cleaned
	}
	if idx := strings.Index(cleaned, "\n"); idx >= 0 {
		cleaned = cleaned[idx+1:]
	} else {
		cleaned = strings.TrimPrefix(cleaned, "```")
	}
	if idx := strings.LastIndex(cleaned, "```"); idx >= 0 {
		cleaned = cleaned[:idx]
	}
	return strings.TrimSpace(cleaned)
}

// DecodeJSON strips an optional fence and decodes the payload into v. Trailing
// data after the first JSON value is rejected.
func DecodeJSON(text string, v any) error {
	payload := StripFence(text)
	if payload == "" {
		return fmt.Errorf("%w: empty payload", ErrMalformedJSON)
	}
	dec := json.NewDecoder(strings.NewReader(payload))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after JSON value", ErrMalformedJSON)
	}
	return nil
}
