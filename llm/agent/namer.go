package agent

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// NamerResult is Stage C's output (spec.md §4.4.3): an independently
// proposed new category name (one- or two-level path) and description.
type NamerResult struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

var namerSchema = objectSchema(map[string]*genai.Schema{
	"name":        stringSchema(),
	"description": stringSchema(),
}, "name", "description")

// NamerConfig builds Stage C's Config.
func NamerConfig(modelName, supplementary string, temperature float32, maxTokens int32) Config {
	return Config{
		AgentID:            "namer",
		Model:              modelName,
		SupplementaryModel: supplementary,
		Temperature:        temperature,
		MaxOutputTokens:    maxTokens,
		Schema:             namerSchema,
		SystemPrompt: "Propose a new category for this article, independent of any existing catalog. " +
			"The name must be a one- or two-level slash-separated path (e.g. \"deportes\" or \"deportes/futbol\"). " +
			"Respond only with the requested JSON object.",
	}
}

// Name runs Stage C against the article body.
func Name(ctx context.Context, d *Driver, cfg Config, articleBody string) (NamerResult, error) {
	var out NamerResult
	prompt := fmt.Sprintf("Article body:\n\n%s", articleBody)
	if err := d.Call(ctx, cfg, prompt, &out); err != nil {
		return NamerResult{}, err
	}
	return out, nil
}
