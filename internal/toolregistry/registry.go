// Package toolregistry implements the ToolRegistry component: tool
// registration, parameter schema validation, category-based visibility
// filtering, and dispatch.
package toolregistry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/pasteldev/agentic-runtime/pkg/models"
)

// Reserved tool names. A tool registered under one of these names is marked
// protected and cannot afterwards be unregistered or overwritten. New seeds
// none of them; SeedReserved registers all three.
const (
	ToolCompleteTask  = "complete_task"
	ToolManageContext = "manage_context"
	ToolReveal        = "reveal"
)

var protectedNames = map[string]bool{
	ToolCompleteTask:  true,
	ToolManageContext: true,
	ToolReveal:        true,
}

// UnknownTool is returned by Get/Invoke for a name with no registered Tool.
type UnknownTool struct{ Name string }

func (e *UnknownTool) Error() string { return fmt.Sprintf("toolregistry: unknown tool %q", e.Name) }

// SchemaViolation is returned when invocation arguments fail a tool's
// parameter schema (missing required field, type mismatch).
type SchemaViolation struct {
	Tool   string
	Detail string
}

func (e *SchemaViolation) Error() string {
	return fmt.Sprintf("toolregistry: schema violation for %q: %s", e.Tool, e.Detail)
}

// HandlerFailure wraps an error raised by a tool's handler.
type HandlerFailure struct {
	Tool  string
	Cause error
}

func (e *HandlerFailure) Error() string {
	return fmt.Sprintf("toolregistry: handler for %q failed: %v", e.Tool, e.Cause)
}

func (e *HandlerFailure) Unwrap() error { return e.Cause }

// PolicyViolation is returned when a caller attempts to register, overwrite,
// or unregister a protected tool.
type PolicyViolation struct{ Detail string }

func (e *PolicyViolation) Error() string { return "toolregistry: policy violation: " + e.Detail }

// Registry is the ToolRegistry component: tools are registered once at
// startup (protected) or dynamically (custom), looked up by name, and
// dispatched with schema-validated arguments.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]models.Tool
	schemas  map[string]*jsonschema.Schema
	resolver *Resolver
}

// New creates an empty Registry with no schema resolver attached.
func New() *Registry {
	return &Registry{
		tools:   make(map[string]models.Tool),
		schemas: make(map[string]*jsonschema.Schema),
	}
}

// SetResolver attaches a category/policy Resolver used by List to filter
// tools visible to a given caller (e.g. a tournament worker's restricted
// view).
func (r *Registry) SetResolver(resolver *Resolver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolver = resolver
}

// Register adds a tool, compiling its parameter schema. Re-registering a
// protected tool's name is a PolicyViolation.
func (r *Registry) Register(tool models.Tool) error {
	if tool.Name == "" {
		return &PolicyViolation{Detail: "tool name must not be empty"}
	}

	schema, err := compileSchema(tool.Name, tool.Parameters)
	if err != nil {
		return fmt.Errorf("toolregistry: compile schema for %q: %w", tool.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.tools[tool.Name]; ok && existing.Protected {
		return &PolicyViolation{Detail: fmt.Sprintf("%q is protected and cannot be overwritten", tool.Name)}
	}
	if protectedNames[tool.Name] {
		tool.Protected = true
	}

	r.tools[tool.Name] = tool
	r.schemas[tool.Name] = schema
	return nil
}

// Unregister removes a non-protected tool. Removing a protected tool is a
// PolicyViolation.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tool, ok := r.tools[name]
	if !ok {
		return &UnknownTool{Name: name}
	}
	if tool.Protected {
		return &PolicyViolation{Detail: fmt.Sprintf("%q is protected and cannot be removed", name)}
	}
	delete(r.tools, name)
	delete(r.schemas, name)
	return nil
}

// Get returns a registered tool by name.
func (r *Registry) Get(name string) (models.Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	if !ok {
		return models.Tool{}, &UnknownTool{Name: name}
	}
	return tool, nil
}

// List returns every registered tool, optionally filtered to the given
// categories, sorted by name for deterministic prompting.
func (r *Registry) List(categories ...models.ToolCategory) []models.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var allowed map[models.ToolCategory]bool
	if len(categories) > 0 {
		allowed = make(map[models.ToolCategory]bool, len(categories))
		for _, c := range categories {
			allowed[c] = true
		}
	}

	result := make([]models.Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		if allowed != nil && !allowed[tool.Category] {
			continue
		}
		if r.resolver != nil && !r.resolver.IsAllowed(tool.Name) {
			continue
		}
		result = append(result, tool)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Invoke validates args against the tool's schema, strips tool_description
// (surfaced only to logging, never to the handler), and dispatches.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) (content string, structured any, err error) {
	r.mu.RLock()
	tool, ok := r.tools[name]
	schema := r.schemas[name]
	r.mu.RUnlock()
	if !ok {
		return "", nil, &UnknownTool{Name: name}
	}

	if schema != nil {
		payload, marshalErr := json.Marshal(sanitizeArgs(args))
		if marshalErr != nil {
			return "", nil, &SchemaViolation{Tool: name, Detail: marshalErr.Error()}
		}
		var decoded any
		if err := json.Unmarshal(payload, &decoded); err != nil {
			return "", nil, &SchemaViolation{Tool: name, Detail: err.Error()}
		}
		if err := schema.Validate(decoded); err != nil {
			return "", nil, &SchemaViolation{Tool: name, Detail: err.Error()}
		}
	}

	if tool.Handler == nil {
		return "", nil, &HandlerFailure{Tool: name, Cause: errors.New("no handler registered")}
	}

	if err := ctx.Err(); err != nil {
		return "", nil, &HandlerFailure{Tool: name, Cause: err}
	}

	content, structured, err = tool.Handler(ctx, sanitizeArgs(args))
	if err != nil {
		return "", nil, &HandlerFailure{Tool: name, Cause: err}
	}
	return content, structured, nil
}

// sanitizeArgs strips tool_description, which is injected by the model to
// explain intent and must never reach a handler.
func sanitizeArgs(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}
	clean := make(map[string]any, len(args))
	for k, v := range args {
		if k == "tool_description" {
			continue
		}
		clean[k] = v
	}
	return clean
}

func compileSchema(name string, schema models.ParameterSchema) (*jsonschema.Schema, error) {
	doc := map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
	props := doc["properties"].(map[string]any)
	for propName, spec := range schema.Properties {
		props[propName] = map[string]any{
			"type":        spec.Type,
			"description": spec.Description,
		}
	}
	if len(schema.Required) > 0 {
		doc["required"] = schema.Required
	}

	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}

	compiler := jsonschema.NewCompiler()
	resourceName := name + ".schema.json"
	if err := compiler.AddResource(resourceName, bytes.NewReader(payload)); err != nil {
		return nil, err
	}
	return compiler.Compile(resourceName)
}
