// Package builtin provides the workspace-scoped tools every AgentCore
// wires into its ToolRegistry regardless of run mode: reading, writing,
// and listing files rooted at the agent's WorkspaceFS. Sandboxed command
// execution is provided separately by workspacefs.NewCodeExecTool; this
// package only covers plain file access.
//
// Grounded on the teacher's internal/tools/files (path-resolution-scoped
// read/write/list), generalized here onto WorkspaceFS's own sandboxing
// in place of that package's Resolver.
package builtin

import (
	"context"

	"github.com/pasteldev/agentic-runtime/internal/toolregistry"
	"github.com/pasteldev/agentic-runtime/internal/workspacefs"
	"github.com/pasteldev/agentic-runtime/pkg/models"
)

// WorkspaceTools returns the read_file/write_file/list_files tools bound
// to fs.
func WorkspaceTools(fs *workspacefs.WorkspaceFS) []models.Tool {
	return []models.Tool{readFileTool(fs), writeFileTool(fs), listFilesTool(fs)}
}

func readFileTool(fs *workspacefs.WorkspaceFS) models.Tool {
	return models.Tool{
		Name:        "read_file",
		Description: "Read the full contents of a file in the workspace.",
		Parameters: models.ParameterSchema{
			Properties: map[string]models.ParameterSpec{
				"path": {Type: "string", Description: "Workspace-relative file path."},
			},
			Required: []string{"path"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, any, error) {
			path, _ := args["path"].(string)
			if path == "" {
				return "", nil, &toolregistry.SchemaViolation{Tool: "read_file", Detail: "path is required"}
			}
			data, err := fs.Read(path)
			if err != nil {
				return "", nil, err
			}
			return string(data), nil, nil
		},
		Category: models.ToolCategoryCore,
	}
}

func writeFileTool(fs *workspacefs.WorkspaceFS) models.Tool {
	return models.Tool{
		Name:        "write_file",
		Description: "Write content to a file in the workspace, creating or overwriting it.",
		Parameters: models.ParameterSchema{
			Properties: map[string]models.ParameterSpec{
				"path":    {Type: "string", Description: "Workspace-relative file path."},
				"content": {Type: "string", Description: "Content to write."},
			},
			Required: []string{"path", "content"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, any, error) {
			path, _ := args["path"].(string)
			if path == "" {
				return "", nil, &toolregistry.SchemaViolation{Tool: "write_file", Detail: "path is required"}
			}
			content, _ := args["content"].(string)
			if err := fs.Write(path, []byte(content)); err != nil {
				return "", nil, err
			}
			return "wrote " + path, nil, nil
		},
		Category: models.ToolCategoryCore,
	}
}

func listFilesTool(fs *workspacefs.WorkspaceFS) models.Tool {
	return models.Tool{
		Name:        "list_files",
		Description: "List the entries directly under a workspace directory.",
		Parameters: models.ParameterSchema{
			Properties: map[string]models.ParameterSpec{
				"path": {Type: "string", Description: "Workspace-relative directory path, \".\" for the root."},
			},
			Required: []string{"path"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, any, error) {
			path, _ := args["path"].(string)
			if path == "" {
				path = "."
			}
			names, err := fs.List(path)
			if err != nil {
				return "", nil, err
			}
			return "", names, nil
		},
		Category: models.ToolCategoryCore,
	}
}
