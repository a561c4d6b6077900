package agent

import "google.golang.org/genai"

func objectSchema(props map[string]*genai.Schema, required ...string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeObject, Properties: props, Required: required}
}

func stringSchema(enum ...string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeString, Enum: enum}
}

func integerSchema() *genai.Schema {
	return &genai.Schema{Type: genai.TypeInteger}
}

func booleanSchema() *genai.Schema {
	return &genai.Schema{Type: genai.TypeBoolean}
}

func arraySchema(items *genai.Schema) *genai.Schema {
	return &genai.Schema{Type: genai.TypeArray, Items: items}
}
