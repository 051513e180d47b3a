package toolconv

import (
	openai "github.com/sashabaranov/go-openai"

	"github.com/pasteldev/agentic-runtime/pkg/models"
)

// ToOpenAITools converts registered tools to OpenAI function schema.
func ToOpenAITools(tools []models.Tool) []openai.Tool {
	result := make([]openai.Tool, len(tools))
	for i, tool := range tools {
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  toJSONSchema(tool.Parameters),
			},
		}
	}
	return result
}
