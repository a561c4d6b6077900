package agent

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// TranslationResult is Stage G's output (spec.md §4.4.3): the Stage F
// summary translated into the configured target language.
type TranslationResult struct {
	Text string `json:"text"`
}

var translatorSchema = objectSchema(map[string]*genai.Schema{
	"text": stringSchema(),
}, "text")

// TranslatorConfig builds Stage G's Config.
func TranslatorConfig(modelName, supplementary string, temperature float32, maxTokens int32) Config {
	return Config{
		AgentID:            "translator",
		Model:              modelName,
		SupplementaryModel: supplementary,
		Temperature:        temperature,
		MaxOutputTokens:    maxTokens,
		Schema:             translatorSchema,
		SystemPrompt: "Translate the given summary into the target language, preserving meaning and tone. " +
			"Respond only with the requested JSON object.",
	}
}

// Translate runs Stage G against the Stage F summary text, translating it
// into targetLang (an IETF language tag or plain language name, per the
// caller's configuration).
func Translate(ctx context.Context, d *Driver, cfg Config, sourceSummary, targetLang string) (TranslationResult, error) {
	var out TranslationResult
	prompt := fmt.Sprintf("Target language: %s\n\nSummary to translate:\n\n%s", targetLang, sourceSummary)
	if err := d.Call(ctx, cfg, prompt, &out); err != nil {
		return TranslationResult{}, err
	}
	return out, nil
}
