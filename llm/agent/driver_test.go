package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/akolotov/crhoy-bot/llm"
	"github.com/akolotov/crhoy-bot/model"
)

// fakeTransport answers Generate with canned responses keyed by model name,
// in call order per model, so tests can simulate a primary-model failure
// followed by a supplementary-model success.
type fakeTransport struct {
	responses map[string][]llm.Response
	errs      map[string][]error
	calls     []llm.Request
}

func (f *fakeTransport) Generate(_ context.Context, req llm.Request) (llm.Response, error) {
	f.calls = append(f.calls, req)

	if errs := f.errs[req.Model]; len(errs) > 0 {
		err := errs[0]
		f.errs[req.Model] = errs[1:]
		if err != nil {
			return llm.Response{}, err
		}
	}

	resps := f.responses[req.Model]
	if len(resps) == 0 {
		return llm.Response{Text: "{}"}, nil
	}
	resp := resps[0]
	f.responses[req.Model] = resps[1:]
	return resp, nil
}

func newDriver(ft *fakeTransport) *Driver {
	return &Driver{
		Transport: ft,
		Audit:     llm.NewAuditLogger("", false),
		SessionID: "test-session",
	}
}

func TestClassifyParsesSchemaConformingResponse(t *testing.T) {
	ft := &fakeTransport{responses: map[string][]llm.Response{
		"gemini-main": {{Text: `{"relation":"directly"}`}},
	}}
	d := newDriver(ft)
	cfg := ClassifierConfig("gemini-main", "", 0.1, 256)

	result, err := Classify(context.Background(), d, cfg, "cuerpo del articulo")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if result.Relation != model.RelationDirectly {
		t.Errorf("Relation = %v, want directly", result.Relation)
	}
}

func TestDriverFallsBackToSupplementaryOnMalformedJSON(t *testing.T) {
	ft := &fakeTransport{responses: map[string][]llm.Response{
		"thinking-model":      {{Text: "not json, the model rambled instead"}},
		"supplementary-model": {{Text: `{"relation":"indirectly"}`}},
	}}
	d := newDriver(ft)
	cfg := ClassifierConfig("thinking-model", "supplementary-model", 0.1, 256)

	result, err := Classify(context.Background(), d, cfg, "body")
	if err != nil {
		t.Fatalf("Classify with supplementary fallback: %v", err)
	}
	if result.Relation != model.RelationIndirectly {
		t.Errorf("Relation = %v, want indirectly", result.Relation)
	}
	if len(ft.calls) != 2 {
		t.Fatalf("expected 2 transport calls (primary + supplementary), got %d", len(ft.calls))
	}
	if ft.calls[1].Model != "supplementary-model" {
		t.Errorf("second call used model %q, want supplementary-model", ft.calls[1].Model)
	}
}

func TestDriverSurfacesResponseErrorWithoutSupplementary(t *testing.T) {
	ft := &fakeTransport{responses: map[string][]llm.Response{
		"gemini-main": {{Text: "not json"}},
	}}
	d := newDriver(ft)
	cfg := ClassifierConfig("gemini-main", "", 0.1, 256)

	_, err := Classify(context.Background(), d, cfg, "body")
	if err == nil {
		t.Fatal("expected error when deserialization fails with no supplementary model")
	}
	var respErr *llm.ResponseError
	if !asResponseError(err, &respErr) {
		t.Errorf("expected *llm.ResponseError, got %T: %v", err, err)
	}
}

func TestLabelerHighestRankAboveThreshold(t *testing.T) {
	result := LabelerResult{Suggestions: []LabelSuggestion{
		{Category: "deportes", Rank: 80},
		{Category: "deportes/futbol", Rank: 97},
	}}
	best, ok := result.HighestRankAbove(95)
	if !ok {
		t.Fatal("expected a suggestion above threshold")
	}
	if best.Category != "deportes/futbol" {
		t.Errorf("best category = %q, want deportes/futbol", best.Category)
	}
}

func TestLabelerHighestRankAboveThresholdNoMatch(t *testing.T) {
	result := LabelerResult{Suggestions: []LabelSuggestion{{Category: "deportes", Rank: 80}}}
	if _, ok := result.HighestRankAbove(95); ok {
		t.Error("expected no suggestion above threshold")
	}
}

func TestFinalizeChoosesObfuscatedExistingCategory(t *testing.T) {
	ft := &fakeTransport{responses: map[string][]llm.Response{
		// Suggestions + proposal sorted by insertion order into the
		// obfuscation map: "deportes" -> CAT000, "politica" -> CAT001,
		// proposal "deportes/futbol" -> CAT002. Model picks CAT000.
		"gemini-main": {{Text: `{"chosen_placeholder":"CAT000"}`}},
	}}
	d := newDriver(ft)
	cfg := FinalizerConfig("gemini-main", "", 0.1, 256)

	suggestions := []LabelSuggestion{{Category: "deportes", Rank: 80}, {Category: "politica", Rank: 60}}
	proposal := NamerResult{Name: "deportes/futbol", Description: "futbol news"}

	result, err := Finalize(context.Background(), d, cfg, suggestions, proposal)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if result.IsNew {
		t.Error("expected IsNew=false")
	}
	if result.Category != "deportes" {
		t.Errorf("Category = %q, want deportes (de-obfuscated from CAT000)", result.Category)
	}
}

// TestFinalizeChoosesNewCategory grounds spec.md §8 scenario S4: the
// proposal is obfuscated like any other candidate (here CAT001, the last
// slot after the one existing suggestion) and the model must pick its
// placeholder rather than see its name in cleartext.
func TestFinalizeChoosesNewCategory(t *testing.T) {
	ft := &fakeTransport{responses: map[string][]llm.Response{
		"gemini-main": {{Text: `{"chosen_placeholder":"CAT001"}`}},
	}}
	d := newDriver(ft)
	cfg := FinalizerConfig("gemini-main", "", 0.1, 256)

	suggestions := []LabelSuggestion{{Category: "deportes", Rank: 80}}
	proposal := NamerResult{Name: "deportes/futbol", Description: "futbol news"}

	result, err := Finalize(context.Background(), d, cfg, suggestions, proposal)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if !result.IsNew {
		t.Error("expected IsNew=true")
	}
	if result.Category != "deportes/futbol" {
		t.Errorf("Category = %q, want deportes/futbol", result.Category)
	}
}

// TestFinalizePromptNeverLeaksProposalNameInCleartext further grounds S4's
// "references only CATxxx placeholders" requirement: the prompt text itself
// must never contain the proposal's real name, only its placeholder.
func TestFinalizePromptNeverLeaksProposalNameInCleartext(t *testing.T) {
	ft := &fakeTransport{responses: map[string][]llm.Response{
		"gemini-main": {{Text: `{"chosen_placeholder":"CAT003"}`}},
	}}
	d := newDriver(ft)
	cfg := FinalizerConfig("gemini-main", "", 0.1, 256)

	suggestions := []LabelSuggestion{
		{Category: "deportes", Rank: 80},
		{Category: "politica", Rank: 60},
		{Category: "economia", Rank: 50},
	}
	proposal := NamerResult{Name: "deportes/futbol", Description: "futbol news"}

	result, err := Finalize(context.Background(), d, cfg, suggestions, proposal)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if !result.IsNew || result.Category != "deportes/futbol" {
		t.Fatalf("expected the de-obfuscated new category, got %+v", result)
	}
	if len(ft.calls) != 1 {
		t.Fatalf("expected 1 transport call, got %d", len(ft.calls))
	}
	if strings.Contains(ft.calls[0].Prompt, proposal.Name) {
		t.Errorf("prompt leaked the proposal's real name in cleartext: %q", ft.calls[0].Prompt)
	}
}

func asResponseError(err error, out **llm.ResponseError) bool {
	re, ok := err.(*llm.ResponseError)
	if !ok {
		return false
	}
	*out = re
	return true
}
