package toolconv

import (
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/pasteldev/agentic-runtime/pkg/models"
)

// ToAnthropicTools converts registered tools to Anthropic tool definitions.
func ToAnthropicTools(tools []models.Tool) ([]anthropic.ToolUnionParam, error) {
	if len(tools) == 0 {
		return nil, nil
	}
	result := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		param, err := ToAnthropicTool(tool)
		if err != nil {
			return nil, err
		}
		result = append(result, param)
	}
	return result, nil
}

// ToAnthropicTool converts a single tool to an Anthropic tool definition.
func ToAnthropicTool(tool models.Tool) (anthropic.ToolUnionParam, error) {
	raw, err := json.Marshal(toJSONSchema(tool.Parameters))
	if err != nil {
		return anthropic.ToolUnionParam{}, fmt.Errorf("marshal schema for %s: %w", tool.Name, err)
	}
	var schema anthropic.ToolInputSchemaParam
	if err := json.Unmarshal(raw, &schema); err != nil {
		return anthropic.ToolUnionParam{}, fmt.Errorf("invalid tool schema for %s: %w", tool.Name, err)
	}

	param := anthropic.ToolUnionParamOfTool(schema, tool.Name)
	if param.OfTool == nil {
		return anthropic.ToolUnionParam{}, fmt.Errorf("invalid tool schema for %s: missing tool definition", tool.Name)
	}
	param.OfTool.Description = anthropic.String(tool.Description)
	return param, nil
}
