// Package toolconv converts models.Tool definitions into each provider's
// wire-level tool/function-calling schema.
package toolconv

import "github.com/pasteldev/agentic-runtime/pkg/models"

// toJSONSchema renders a models.ParameterSchema into the generic
// map[string]any shape every provider's tool schema field expects.
func toJSONSchema(schema models.ParameterSchema) map[string]any {
	properties := make(map[string]any, len(schema.Properties))
	for name, spec := range schema.Properties {
		prop := map[string]any{"type": spec.Type}
		if spec.Description != "" {
			prop["description"] = spec.Description
		}
		properties[name] = prop
	}
	out := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(schema.Required) > 0 {
		out["required"] = schema.Required
	}
	return out
}
