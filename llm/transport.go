// Package llm implements the structured LLM call transport spec.md §4.4.4
// describes: per-agent system prompt/temperature/max-tokens/schema, routed
// through a shared rate limiter, with an optional supplementary model that
// re-structures a "thinking"-style primary model's free-form output into
// schema-conforming JSON.
package llm

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"

	"github.com/akolotov/crhoy-bot/ratelimiter"
)

// Request is one structured generation call.
type Request struct {
	Model           string
	SystemPrompt    string
	Prompt          string
	Temperature     float32
	MaxOutputTokens int32
	Schema          *genai.Schema
}

// Response is the raw text an LLM call returned, before any
// agent-specific deserialization.
type Response struct {
	Text string
}

// Transport issues one structured generation call against a backend model.
type Transport interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

// GenaiTransport is a Transport backed by the official
// google.golang.org/genai SDK — grounded on
// suprt-vietnam_bot_news/internal/gemini/client.go's use of
// client.Models.GenerateContent.
type GenaiTransport struct {
	client  *genai.Client
	limiter *ratelimiter.Registry
}

// NewGenaiTransport builds a GenaiTransport. apiKey is the backend
// credential (spec.md §6.1 AGENT_ENGINE_API_KEY); limiter is the shared
// per-model rate limiter (spec.md §4.6).
func NewGenaiTransport(ctx context.Context, apiKey string, limiter *ratelimiter.Registry) (*GenaiTransport, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("llm: create genai client: %w", err)
	}
	return &GenaiTransport{client: client, limiter: limiter}, nil
}

// Generate issues the call, honoring the shared rate limiter before
// dispatch (spec.md §4.4.4: "it does honor the shared rate limiter").
// It retries nothing on LLM protocol errors — surfaced as a *ResponseError.
func (t *GenaiTransport) Generate(ctx context.Context, req Request) (Response, error) {
	if err := t.limiter.Acquire(ctx, req.Model); err != nil {
		return Response{}, fmt.Errorf("llm: rate limiter acquire: %w", err)
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(req.Temperature),
		MaxOutputTokens:  req.MaxOutputTokens,
		ResponseMIMEType: "application/json",
	}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	if req.Schema != nil {
		cfg.ResponseSchema = req.Schema
	}

	callCtx, cancel := context.WithTimeout(ctx, RequestTimeout)
	defer cancel()

	result, err := t.client.Models.GenerateContent(callCtx, req.Model, genai.Text(req.Prompt), cfg)
	if err != nil {
		return Response{}, &ResponseError{Model: req.Model, Err: err}
	}

	text, err := result.Text()
	if err != nil {
		return Response{}, &ResponseError{Model: req.Model, Err: fmt.Errorf("extract text: %w", err)}
	}

	return Response{Text: text}, nil
}

// RequestTimeout bounds a single structured call made by Generate (time
// spent waiting on the rate limiter is not counted). It is independent of
// config's RequestTimeout, which sets the site HTTP client's timeout.
const RequestTimeout = 60 * time.Second
