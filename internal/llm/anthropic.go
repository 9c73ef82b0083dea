package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL   = "https://api.anthropic.com/v1/messages"
	defaultModel     = "claude-sonnet-4-20250514"
	anthropicVersion = "2023-06-01"
	defaultMaxTokens = 4096
	maxErrorBody     = 2048
)

// ErrNoAPIKey is returned when the client was built without credentials.
var ErrNoAPIKey = errors.New("llm: API key not configured")

// StatusError is a non-2xx reply from the provider.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("llm: provider returned %d: %s", e.StatusCode, e.Body)
}

// Options configures AnthropicClient.
type Options struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	// Timeout bounds each Generate call, including waiting on the limiter.
	Timeout time.Duration
	// RPS and Burst feed a token bucket shared by all callers. RPS <= 0
	// disables limiting.
	RPS   float64
	Burst int
	// HTTPClient overrides the transport (tests).
	HTTPClient *http.Client
}

// AnthropicClient calls the Anthropic Messages API. It performs no retries;
// the pipeline decides whether a failed call is retried or skipped.
type AnthropicClient struct {
	apiKey    string
	baseURL   string
	model     string
	maxTokens int
	timeout   time.Duration
	limiter   *rate.Limiter
	http      *http.Client
	observe   func(operation, outcome string, d time.Duration)
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// NewAnthropicClient builds a client with defaults applied.
func NewAnthropicClient(opt Options) *AnthropicClient {
	c := &AnthropicClient{
		apiKey:    opt.APIKey,
		baseURL:   opt.BaseURL,
		model:     opt.Model,
		maxTokens: opt.MaxTokens,
		timeout:   opt.Timeout,
		http:      opt.HTTPClient,
		observe:   func(string, string, time.Duration) {},
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.model == "" {
		c.model = defaultModel
	}
	if c.maxTokens <= 0 {
		c.maxTokens = defaultMaxTokens
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if opt.RPS > 0 {
		burst := opt.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opt.RPS), burst)
	}
	return c
}

// WithObserver registers a callback invoked after every Generate call with the
// outcome ("ok" or "error") and latency. It returns c for chaining.
func (c *AnthropicClient) WithObserver(fn func(operation, outcome string, d time.Duration)) *AnthropicClient {
	if fn != nil {
		c.observe = fn
	}
	return c
}

// Generate implements Generator.
func (c *AnthropicClient) Generate(ctx context.Context, req Request) (resp Response, err error) {
	ctx, span := otel.Tracer("llm/AnthropicClient").Start(ctx, "Generate",
		trace.WithAttributes(
			attribute.String("llm.operation", req.Operation),
			attribute.String("llm.model", c.model),
		),
	)
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		c.observe(req.Operation, outcome, time.Since(start))
		span.End()
	}()

	if c.apiKey == "" {
		return Response{}, ErrNoAPIKey
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return Response{}, fmt.Errorf("llm: rate limiter: %w", err)
		}
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	body, err := json.Marshal(messagesRequest{
		Model:     c.model,
		MaxTokens: maxTokens,
		System:    req.System,
		Messages:  []message{{Role: "user", Content: req.Prompt}},
	})
	if err != nil {
		return Response{}, fmt.Errorf("llm: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("llm: create request: %w", err)
	}
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("llm: request failed: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("llm: read response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		msg := string(respBody)
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		return Response{}, &StatusError{StatusCode: httpResp.StatusCode, Body: msg}
	}

	var apiResp messagesResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return Response{}, fmt.Errorf("llm: decode response: %w", err)
	}

	var text strings.Builder
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return Response{}, errors.New("llm: empty response content")
	}

	span.SetAttributes(
		attribute.Int("llm.input_tokens", apiResp.Usage.InputTokens),
		attribute.Int("llm.output_tokens", apiResp.Usage.OutputTokens),
	)
	return Response{
		Text:         text.String(),
		Model:        apiResp.Model,
		InputTokens:  apiResp.Usage.InputTokens,
		OutputTokens: apiResp.Usage.OutputTokens,
	}, nil
}
