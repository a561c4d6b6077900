// Package agent implements the per-stage LLM agents of the analysis
// pipeline (spec.md §4.4.3): Classification, Labeling, Naming,
// Finalization, Summarization, and Translation. Each stage is its own
// Config (system prompt, temperature, max tokens, schema) driven through a
// shared Driver that calls the transport, logs the raw response for audit,
// and falls back to a supplementary "re-packer" model when the primary
// model's output does not deserialize against the schema (spec.md
// §4.4.4).
package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/genai"

	"github.com/akolotov/crhoy-bot/llm"
)

// Config is one agent class's fixed behavior.
type Config struct {
	AgentID            string
	Model              string
	SupplementaryModel string
	Temperature        float32
	MaxOutputTokens    int32
	Schema             *genai.Schema
	SystemPrompt       string
}

// Driver issues one structured call per invocation, routed through the
// shared Transport, with per-session audit logging.
type Driver struct {
	Transport llm.Transport
	Audit     *llm.AuditLogger
	SessionID string
}

// Call issues cfg's prompt against the primary model, deserializing the
// JSON response into out. If deserialization fails and a supplementary
// model is configured, it re-issues the raw text to the supplementary
// model for re-structuring (spec.md §4.4.4) before giving up.
func (d *Driver) Call(ctx context.Context, cfg Config, prompt string, out any) error {
	resp, err := d.Transport.Generate(ctx, llm.Request{
		Model:           cfg.Model,
		SystemPrompt:    cfg.SystemPrompt,
		Prompt:          prompt,
		Temperature:     cfg.Temperature,
		MaxOutputTokens: cfg.MaxOutputTokens,
		Schema:          cfg.Schema,
	})
	if err != nil {
		return fmt.Errorf("agent %s: %w", cfg.AgentID, err)
	}
	d.Audit.Append(d.SessionID, cfg.AgentID, resp.Text)

	if jsonErr := json.Unmarshal([]byte(resp.Text), out); jsonErr != nil {
		if cfg.SupplementaryModel == "" {
			return &llm.ResponseError{Model: cfg.Model, Err: fmt.Errorf("agent %s: deserialize: %w", cfg.AgentID, jsonErr)}
		}
		return d.repack(ctx, cfg, resp.Text, out)
	}
	return nil
}

// repack re-issues rawText to cfg.SupplementaryModel, asking it to
// restructure the primary model's free-form output into schema-conforming
// JSON — used when the primary is a "thinking"-style model without native
// structured output (spec.md §4.4.4).
func (d *Driver) repack(ctx context.Context, cfg Config, rawText string, out any) error {
	resp, err := d.Transport.Generate(ctx, llm.Request{
		Model:           cfg.SupplementaryModel,
		SystemPrompt:    "Extract the structured answer from the following model output and return it as JSON conforming exactly to the provided schema. Do not add commentary.",
		Prompt:          rawText,
		Temperature:     0,
		MaxOutputTokens: cfg.MaxOutputTokens,
		Schema:          cfg.Schema,
	})
	if err != nil {
		return fmt.Errorf("agent %s: supplementary repack: %w", cfg.AgentID, err)
	}
	d.Audit.Append(d.SessionID, cfg.AgentID+"_repack", resp.Text)

	if err := json.Unmarshal([]byte(resp.Text), out); err != nil {
		return &llm.ResponseError{Model: cfg.SupplementaryModel, Err: fmt.Errorf("agent %s: repack deserialize: %w", cfg.AgentID, err)}
	}
	return nil
}
