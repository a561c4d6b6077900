package llm

import "fmt"

// ObfuscationMap is a stable, per-request bijection between real
// Smart-Category names and opaque placeholders ("CAT000", "CAT001", …),
// used by Stage D (spec.md §4.4.3) so the model cannot bias toward
// familiar category strings. Scoped to a single call — never persisted or
// reused across requests.
type ObfuscationMap struct {
	toPlaceholder map[string]string
	toReal        map[string]string
}

// NewObfuscationMap builds a bijection over names, in the given order, so
// callers get deterministic CAT000.. assignment for reproducible audit
// logs.
func NewObfuscationMap(names []string) *ObfuscationMap {
	m := &ObfuscationMap{
		toPlaceholder: make(map[string]string, len(names)),
		toReal:        make(map[string]string, len(names)),
	}
	for i, name := range names {
		placeholder := fmt.Sprintf("CAT%03d", i)
		m.toPlaceholder[name] = placeholder
		m.toReal[placeholder] = name
	}
	return m
}

// Obfuscate maps a real category name to its placeholder. Returns the
// input unchanged if it was not part of the original name set (defensive:
// the model should never invent a name at this stage, but the caller can
// choose how to treat that).
func (m *ObfuscationMap) Obfuscate(name string) string {
	if p, ok := m.toPlaceholder[name]; ok {
		return p
	}
	return name
}

// Deobfuscate reverses Obfuscate. Returns the input unchanged, plus false,
// if the placeholder is unrecognized — signaling the model returned a name
// outside the mapping (e.g. hallucinated a new category name directly);
// agent.Finalize reports that case as an error.
func (m *ObfuscationMap) Deobfuscate(placeholder string) (string, bool) {
	real, ok := m.toReal[placeholder]
	if !ok {
		return placeholder, false
	}
	return real, true
}
