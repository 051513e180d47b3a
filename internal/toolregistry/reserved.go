package toolregistry

import "github.com/pasteldev/agentic-runtime/pkg/models"

// SeedReserved registers the three reserved control tools every AgentCore
// needs regardless of operating mode. Handlers are supplied by the caller
// (agentcore wires completeTask/manageContext, tournament wires reveal)
// since dispatch semantics depend on per-agent state the registry itself
// does not hold.
func SeedReserved(r *Registry, completeTask, manageContext, reveal models.ToolHandler) error {
	tools := []models.Tool{
		{
			Name:        ToolCompleteTask,
			Description: "Signal that the current task is finished, stuck, blocked, or has failed.",
			Category:    models.ToolCategoryMeta,
			Protected:   true,
			Parameters: models.ParameterSchema{
				Properties: map[string]models.ParameterSpec{
					"reason":  {Type: "string", Description: "finished, stuck, blocked, or error"},
					"summary": {Type: "string", Description: "Human-readable summary of the outcome"},
				},
				Required: []string{"reason", "summary"},
			},
			Handler: completeTask,
		},
		{
			Name:        ToolManageContext,
			Description: "Force a context compaction or inspect current usage.",
			Category:    models.ToolCategoryMeta,
			Protected:   true,
			Parameters: models.ParameterSchema{
				Properties: map[string]models.ParameterSpec{
					"action": {Type: "string", Description: "compact or usage"},
				},
				Required: []string{"action"},
			},
			Handler: manageContext,
		},
		{
			Name:        ToolReveal,
			Description: "Publish a file as a visible artifact to tournament peers and the supervisor.",
			Category:    models.ToolCategoryOutput,
			Protected:   true,
			Parameters: models.ParameterSchema{
				Properties: map[string]models.ParameterSpec{
					"filename":    {Type: "string", Description: "Path of the file to reveal"},
					"description": {Type: "string", Description: "Why this artifact matters"},
				},
				Required: []string{"filename", "description"},
			},
			Handler: reveal,
		},
	}

	for _, tool := range tools {
		if err := r.Register(tool); err != nil {
			return err
		}
	}
	return nil
}
