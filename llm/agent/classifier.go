package agent

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/akolotov/crhoy-bot/model"
)

// ClassifierResult is Stage A's output (spec.md §4.4.3): the article's
// relation to the focal region.
type ClassifierResult struct {
	Relation model.Relation `json:"relation"`
}

var classifierSchema = objectSchema(map[string]*genai.Schema{
	"relation": stringSchema(string(model.RelationDirectly), string(model.RelationIndirectly), string(model.RelationNA)),
}, "relation")

// ClassifierConfig builds Stage A's Config.
func ClassifierConfig(modelName, supplementary string, temperature float32, maxTokens int32) Config {
	return Config{
		AgentID:            "classifier",
		Model:              modelName,
		SupplementaryModel: supplementary,
		Temperature:        temperature,
		MaxOutputTokens:    maxTokens,
		Schema:             classifierSchema,
		SystemPrompt: "You classify whether a news article is directly related, indirectly related, " +
			"or not related (\"na\") to the focal region. Respond only with the requested JSON object.",
	}
}

// Classify runs Stage A against the article body.
func Classify(ctx context.Context, d *Driver, cfg Config, articleBody string) (ClassifierResult, error) {
	var out ClassifierResult
	prompt := fmt.Sprintf("Article body:\n\n%s", articleBody)
	if err := d.Call(ctx, cfg, prompt, &out); err != nil {
		return ClassifierResult{}, err
	}
	return out, nil
}
