package agent

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// SummaryResult is Stage F's output (spec.md §4.4.3): a concise summary in
// the article's source language.
type SummaryResult struct {
	Text string `json:"text"`
}

var summarizerSchema = objectSchema(map[string]*genai.Schema{
	"text": stringSchema(),
}, "text")

// SummarizerConfig builds Stage F's Config.
func SummarizerConfig(modelName, supplementary string, temperature float32, maxTokens int32) Config {
	return Config{
		AgentID:            "summarizer",
		Model:              modelName,
		SupplementaryModel: supplementary,
		Temperature:        temperature,
		MaxOutputTokens:    maxTokens,
		Schema:             summarizerSchema,
		SystemPrompt: "Write a concise summary of this article in its original language, suitable for a " +
			"short news notification. Respond only with the requested JSON object.",
	}
}

// Summarize runs Stage F against the article body.
func Summarize(ctx context.Context, d *Driver, cfg Config, articleBody string) (SummaryResult, error) {
	var out SummaryResult
	prompt := fmt.Sprintf("Article body:\n\n%s", articleBody)
	if err := d.Call(ctx, cfg, prompt, &out); err != nil {
		return SummaryResult{}, err
	}
	return out, nil
}
