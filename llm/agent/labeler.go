package agent

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/akolotov/crhoy-bot/model"
)

// LabelSuggestion is one existing-category candidate with a confidence
// rank in [0,100].
type LabelSuggestion struct {
	Category string `json:"category"`
	Rank     int    `json:"rank"`
}

// LabelerResult is Stage B's output (spec.md §4.4.3): up to three
// existing-category suggestions plus a no_category flag.
type LabelerResult struct {
	Suggestions []LabelSuggestion `json:"suggestions"`
	NoCategory  bool              `json:"no_category"`
}

var labelerSchema = objectSchema(map[string]*genai.Schema{
	"suggestions": arraySchema(objectSchema(map[string]*genai.Schema{
		"category": stringSchema(),
		"rank":     integerSchema(),
	}, "category", "rank")),
	"no_category": booleanSchema(),
}, "suggestions", "no_category")

// LabelerConfig builds Stage B's Config.
func LabelerConfig(modelName, supplementary string, temperature float32, maxTokens int32) Config {
	return Config{
		AgentID:            "labeler",
		Model:              modelName,
		SupplementaryModel: supplementary,
		Temperature:        temperature,
		MaxOutputTokens:    maxTokens,
		Schema:             labelerSchema,
		SystemPrompt: "Given an article and a catalog of existing categories, suggest up to three matching " +
			"existing categories, each with a confidence rank from 0 to 100. Set no_category to true if none fit. " +
			"Respond only with the requested JSON object.",
	}
}

// HighestRankAbove returns the best suggestion if it exceeds threshold,
// accepting it as the final category per spec.md §4.4.3 ("If any
// suggestion has rank > 95, accept it as the final category").
func (r LabelerResult) HighestRankAbove(threshold int) (LabelSuggestion, bool) {
	var best LabelSuggestion
	found := false
	for _, s := range r.Suggestions {
		if s.Rank > threshold && (!found || s.Rank > best.Rank) {
			best = s
			found = true
		}
	}
	return best, found
}

// Label runs Stage B against the article body and the current catalog
// (sentinel excluded — spec.md §4.4.3's "dynamic Smart-Category catalog
// (excluding the sentinel)").
func Label(ctx context.Context, d *Driver, cfg Config, articleBody string, catalog []model.SmartCategory) (LabelerResult, error) {
	var out LabelerResult
	names := make([]string, len(catalog))
	for i, c := range catalog {
		names[i] = fmt.Sprintf("%s: %s", c.Name, c.Description)
	}
	prompt := fmt.Sprintf("Existing categories:\n%s\n\nArticle body:\n\n%s", strings.Join(names, "\n"), articleBody)
	if err := d.Call(ctx, cfg, prompt, &out); err != nil {
		return LabelerResult{}, err
	}
	return out, nil
}
