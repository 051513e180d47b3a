package toolconv

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/pasteldev/agentic-runtime/pkg/models"
)

// ToBedrockTools converts registered tools to Bedrock tool configuration.
func ToBedrockTools(tools []models.Tool) *types.ToolConfiguration {
	bedrockTools := make([]types.Tool, len(tools))
	for i, tool := range tools {
		bedrockTools[i] = &types.ToolMemberToolSpec{
			Value: types.ToolSpecification{
				Name:        aws.String(tool.Name),
				Description: aws.String(tool.Description),
				InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(toJSONSchema(tool.Parameters))},
			},
		}
	}
	return &types.ToolConfiguration{Tools: bedrockTools}
}
