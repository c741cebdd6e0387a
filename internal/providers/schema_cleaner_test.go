package providers

import (
	"testing"
)

func TestCleanToolSchemas_LlamaCpp(t *testing.T) {
	tools := []ToolDefinition{{
		Type: "function",
		Function: ToolFunctionSchema{
			Name:        "read_file",
			Description: "desc",
			Parameters: map[string]interface{}{
				"$schema": "http://json-schema.org/draft-07/schema#",
				"type":    "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":     "string",
						"examples": []interface{}{"main.go"},
					},
				},
				"additionalProperties": false,
			},
		},
	}}

	cleaned := CleanToolSchemas("llamacpp", tools)
	if len(cleaned) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(cleaned))
	}

	params := cleaned[0].Function.Parameters
	if _, ok := params["$schema"]; ok {
		t.Error("expected $schema to be removed")
	}
	if _, ok := params["additionalProperties"]; !ok {
		t.Error("expected additionalProperties to remain for llamacpp")
	}

	props := params["properties"].(map[string]interface{})
	pathSchema := props["path"].(map[string]interface{})
	if _, ok := pathSchema["examples"]; ok {
		t.Error("expected nested examples to be removed")
	}
	if _, ok := pathSchema["type"]; !ok {
		t.Error("expected nested type to remain")
	}

	// Original must be untouched.
	if _, ok := tools[0].Function.Parameters["$schema"]; !ok {
		t.Error("original schema should not be mutated")
	}
}

func TestCleanToolSchemas_Ollama_AnyOf(t *testing.T) {
	tools := []ToolDefinition{{
		Type: "function",
		Function: ToolFunctionSchema{
			Name: "search_files",
			Parameters: map[string]interface{}{
				"type": "object",
				"anyOf": []interface{}{
					map[string]interface{}{"type": "string", "default": "."},
					"literal",
				},
			},
		},
	}}

	cleaned := CleanToolSchemas("ollama", tools)
	anyOf := cleaned[0].Function.Parameters["anyOf"].([]interface{})
	first := anyOf[0].(map[string]interface{})
	if _, ok := first["default"]; ok {
		t.Error("expected default removed inside anyOf")
	}
	if anyOf[1] != "literal" {
		t.Errorf("non-map items should pass through, got %v", anyOf[1])
	}
}

func TestCleanToolSchemas_UnknownProviderPassthrough(t *testing.T) {
	tools := []ToolDefinition{{Type: "function", Function: ToolFunctionSchema{Name: "x"}}}
	cleaned := CleanToolSchemas("openai", tools)
	if &cleaned[0] != &tools[0] {
		t.Error("expected the same slice for providers without cleaning rules")
	}
}

func TestCleanSchema_Nil(t *testing.T) {
	if cleanSchema(nil, llamacppUnsupportedKeys) != nil {
		t.Error("expected nil for nil schema")
	}
}
