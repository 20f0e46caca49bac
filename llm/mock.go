package llm

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// MockResponse fabricates a deterministic response without any network
// call. The content is derived from a hash of the inputs so identical
// inputs always produce bit-identical output. When a schema is supplied
// the mock content is valid JSON shaped by the schema's known properties.
func MockResponse(systemPrompt, userPrompt, model string, schema map[string]any) *Response {
	sum := sha256.Sum256([]byte(systemPrompt + ":" + userPrompt + ":" + model))
	id := hex.EncodeToString(sum[:])[:8]

	var content string
	switch {
	case schema == nil:
		content = fmt.Sprintf("This is a mock response generated in mock mode.\nNo API call was made.\nResponse ID: %s", id)
	case schemaHasProperty(schema, "summary"):
		content = mustJSON(map[string]any{
			"summary":    fmt.Sprintf("Mock property summary for mock mode. Hash: %s", id),
			"highlights": []string{"Mock highlight 1", "Mock highlight 2", "Mock highlight 3"},
		})
	case schemaHasProperty(schema, "persona"):
		content = mustJSON(map[string]any{
			"persona":     fmt.Sprintf("Mock persona for mock mode. Hash: %s", id),
			"traits":      []string{"Friendly", "Organized", "Professional"},
			"preferences": []string{"Modern homes", "Urban locations", "Pet-friendly"},
		})
	case schemaHasProperty(schema, "recommendations") || schema["type"] == "array":
		content = mustJSON([]map[string]any{
			{"property_id": 1, "match_score": 90, "match_reasons": []string{"Mock recommendation 1"}},
			{"property_id": 2, "match_score": 85, "match_reasons": []string{"Mock recommendation 2"}},
			{"property_id": 3, "match_score": 80, "match_reasons": []string{"Mock recommendation 3"}},
		})
	default:
		// Generic mock: one placeholder value per declared property.
		// json.Marshal sorts map keys, keeping the output deterministic.
		mock := make(map[string]any)
		if props, ok := schema["properties"].(map[string]any); ok {
			for name := range props {
				mock[name] = "Mock value"
			}
		}
		content = mustJSON(mock)
	}

	return &Response{
		Content:    content,
		Model:      model,
		Usage:      Usage{PromptTokens: 100, CompletionTokens: 150, TotalTokens: 250},
		StopReason: "end_turn",
		IsMock:     true,
	}
}

func schemaHasProperty(schema map[string]any, name string) bool {
	props, ok := schema["properties"].(map[string]any)
	if !ok {
		return false
	}
	_, ok = props[name]
	return ok
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(data)
}
