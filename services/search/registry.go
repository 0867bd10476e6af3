package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"courserag/models"

	"github.com/anthropics/anthropic-sdk-go"
)

// Registry owns the set of registered tools, dispatches execution by
// name, and accumulates the source trail returned by tool executions.
// A registry instance is scoped to a single in-flight query.
type Registry struct {
	tools   map[string]Tool
	order   []string
	sources []models.Source
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool under its declared name. Duplicate names are
// rejected so dispatch never becomes ambiguous.
func (r *Registry) Register(tool Tool) error {
	name := tool.Name()
	if name == "" {
		return fmt.Errorf("tool has no name")
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool already registered: %s", name)
	}

	r.tools[name] = tool
	r.order = append(r.order, name)
	return nil
}

// Definitions returns tool schema descriptors in registration order.
func (r *Registry) Definitions() []anthropic.ToolUnionParam {
	defs := make([]anthropic.ToolUnionParam, 0, len(r.order))
	for _, name := range r.order {
		tool := r.tools[name]
		defs = append(defs, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        tool.Name(),
				Description: anthropic.String(tool.Description()),
				InputSchema: tool.InputSchema(),
			},
		})
	}
	return defs
}

// Execute dispatches one tool invocation. Failures of any kind become
// result text fed back to the model; a failing tool never aborts the
// round.
func (r *Registry) Execute(ctx context.Context, name string, input json.RawMessage) string {
	tool, ok := r.tools[name]
	if !ok {
		log.Printf("[WARN] Dispatch to unregistered tool %q", name)
		return fmt.Sprintf("tool not found: %s", name)
	}

	result, sources, err := tool.Execute(ctx, input)
	if err != nil {
		log.Printf("[ERROR] Tool %s execution failed: %v", name, err)
		return fmt.Sprintf("Error executing tool %s: %v", name, err)
	}

	r.sources = append(r.sources, sources...)
	return result
}

// Sources returns the attribution records accumulated since the last
// clear, in execution order.
func (r *Registry) Sources() []models.Source {
	out := make([]models.Source, len(r.sources))
	copy(out, r.sources)
	return out
}

func (r *Registry) ClearSources() {
	r.sources = nil
}
