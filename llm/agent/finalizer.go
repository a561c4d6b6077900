package agent

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/akolotov/crhoy-bot/llm"
)

// FinalizerResult is Stage D's output (spec.md §4.4.3): the chosen final
// category, de-obfuscated, and whether it is newly minted.
type FinalizerResult struct {
	Category string
	IsNew    bool
	// Description is only populated when IsNew is true, carried from
	// Stage C's proposal so the caller can insert it into the catalog.
	Description string
}

// rawFinalizerResult is the obfuscated-category shape the model actually
// returns — the winning category, existing or newly proposed alike, named
// only by its opaque placeholder (CAT000, …).
type rawFinalizerResult struct {
	ChosenPlaceholder string `json:"chosen_placeholder"`
}

var finalizerSchema = objectSchema(map[string]*genai.Schema{
	"chosen_placeholder": stringSchema(),
}, "chosen_placeholder")

// FinalizerConfig builds Stage D's Config.
func FinalizerConfig(modelName, supplementary string, temperature float32, maxTokens int32) Config {
	return Config{
		AgentID:            "finalizer",
		Model:              modelName,
		SupplementaryModel: supplementary,
		Temperature:        temperature,
		MaxOutputTokens:    maxTokens,
		Schema:             finalizerSchema,
		SystemPrompt: "Given candidate categories — existing and newly proposed alike, referred to only by " +
			"opaque placeholders — choose the single best fit for the article. Respond with chosen_placeholder " +
			"set to the winning placeholder. Respond only with the requested JSON object.",
	}
}

// Finalize runs Stage D. suggestions are Stage B's existing-category
// candidates; proposal is Stage C's independent new-category proposal. Both
// are obfuscated together into one bijection (spec.md §4.4.3, grounded on
// original_source's label_finalizer.py: the new category is assigned
// placeholder CAT{len(existing):03d} and the model never sees its real
// name) so the proposal competes on a level playing field with the
// existing categories instead of leaking its cleartext name into the
// prompt.
func Finalize(ctx context.Context, d *Driver, cfg Config, suggestions []LabelSuggestion, proposal NamerResult) (FinalizerResult, error) {
	names := make([]string, len(suggestions)+1)
	for i, s := range suggestions {
		names[i] = s.Category
	}
	names[len(suggestions)] = proposal.Name
	obf := llm.NewObfuscationMap(names)

	lines := make([]string, len(suggestions))
	for i, s := range suggestions {
		lines[i] = fmt.Sprintf("%s (rank %d)", obf.Obfuscate(s.Category), s.Rank)
	}
	newPlaceholder := obf.Obfuscate(proposal.Name)
	prompt := fmt.Sprintf(
		"Candidate existing categories:\n%s\n\nProposed new category: %s\nDescription: %s",
		strings.Join(lines, "\n"), newPlaceholder, proposal.Description,
	)

	var raw rawFinalizerResult
	if err := d.Call(ctx, cfg, prompt, &raw); err != nil {
		return FinalizerResult{}, err
	}

	real, ok := obf.Deobfuscate(raw.ChosenPlaceholder)
	if !ok {
		return FinalizerResult{}, fmt.Errorf("agent finalizer: model returned unrecognized placeholder %q", raw.ChosenPlaceholder)
	}

	if raw.ChosenPlaceholder == newPlaceholder {
		return FinalizerResult{Category: real, IsNew: true, Description: proposal.Description}, nil
	}
	return FinalizerResult{Category: real, IsNew: false}, nil
}
