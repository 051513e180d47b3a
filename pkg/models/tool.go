package models

import "context"

// ToolCategory classifies a tool; Registry.List returns only the tools in
// the categories it is given.
type ToolCategory string

const (
	ToolCategoryCore   ToolCategory = "core"
	ToolCategoryMeta   ToolCategory = "meta"
	ToolCategoryOutput ToolCategory = "output"
	ToolCategoryCustom ToolCategory = "custom"
)

// ParameterSchema describes a tool's declared arguments.
type ParameterSchema struct {
	Properties map[string]ParameterSpec `json:"properties"`
	Required   []string                 `json:"required,omitempty"`
}

// ParameterSpec describes a single named parameter.
type ParameterSpec struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// ToolHandler executes a tool call against a decoded argument map and
// returns the result content plus any structured payload. ctx carries the
// invoking turn's cancellation; handlers that shell out or block must
// select on ctx.Done() so Stop() can interrupt them.
type ToolHandler func(ctx context.Context, args map[string]any) (content string, structured any, err error)

// Tool is a named, schema-validated capability AgentCore can dispatch.
type Tool struct {
	Name        string
	Description string
	Parameters  ParameterSchema
	Handler     ToolHandler
	Protected   bool
	Category    ToolCategory
}
