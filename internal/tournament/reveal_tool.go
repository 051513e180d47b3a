package tournament

import (
	"context"

	"github.com/pasteldev/agentic-runtime/internal/toolregistry"
	"github.com/pasteldev/agentic-runtime/internal/workspacefs"
	"github.com/pasteldev/agentic-runtime/pkg/models"
)

// newRevealTool builds the reveal(filename, description) tool bound to one
// worker's WorkspaceFS and RevealStore. Calling it makes a workspace file
// visible to downstream stages and to peers in subsequent debate rounds,
// per spec.md §4.F's reveal semantics.
func newRevealTool(fs *workspacefs.WorkspaceFS, workerID string, store *RevealStore, seq *Sequencer) models.Tool {
	handler := func(ctx context.Context, args map[string]any) (string, any, error) {
		filename, _ := args["filename"].(string)
		description, _ := args["description"].(string)
		if filename == "" {
			return "", nil, &toolregistry.SchemaViolation{Tool: toolregistry.ToolReveal, Detail: "filename is required"}
		}

		content, err := fs.Read(filename)
		if err != nil {
			return "", nil, err
		}

		artifact := models.RevealedArtifact{Filename: filename, Description: description, Content: content}
		store.Reveal(workerID, artifact, seq.next())

		return "revealed " + filename, artifact, nil
	}

	return models.Tool{
		Name:        toolregistry.ToolReveal,
		Description: "Make a workspace file visible to downstream tournament stages and peers.",
		Parameters: models.ParameterSchema{
			Properties: map[string]models.ParameterSpec{
				"filename":    {Type: "string", Description: "Path of the workspace file to reveal."},
				"description": {Type: "string", Description: "Short description of the artifact for peers and judges."},
			},
			Required: []string{"filename", "description"},
		},
		Handler:  handler,
		Category: models.ToolCategoryCore,
	}
}

// newCompleteTaskTool builds the complete_task(reason, summary, output) tool
// every worker registry carries. AgentCore intercepts calls to this tool
// name before dispatch, so the handler here only needs to satisfy registry
// validation and is never actually invoked through Registry.Invoke.
func newCompleteTaskTool() models.Tool {
	return models.Tool{
		Name:        toolregistry.ToolCompleteTask,
		Description: "Signal that the current task is finished, stuck, or blocked.",
		Parameters: models.ParameterSchema{
			Properties: map[string]models.ParameterSpec{
				"reason":  {Type: "string", Description: "One of finished, stuck, blocked, error."},
				"summary": {Type: "string", Description: "Short summary of the outcome."},
			},
			Required: []string{"reason"},
		},
		Handler:  func(context.Context, map[string]any) (string, any, error) { return "", nil, nil },
		Category: models.ToolCategoryMeta,
	}
}
