// Package tools implements the tool registry and the core tools the
// reason-act loop can invoke: place search and itinerary creation.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rumbo-ai/rumbo/internal/providers"
)

// Tool is the interface every registered tool implements.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any
	Execute(ctx context.Context, args map[string]any) (*Result, error)
}

// Registry maps tool names to implementations.
type Registry struct {
	tools   map[string]Tool
	timeout time.Duration
}

func NewRegistry(timeout time.Duration) *Registry {
	return &Registry{tools: map[string]Tool{}, timeout: timeout}
}

func (r *Registry) Register(t Tool) {
	r.tools[t.Name()] = t
}

func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// ProviderDefs exports the registered tools as provider tool schemas.
func (r *Registry) ProviderDefs() []providers.ToolDefinition {
	defs := make([]providers.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, providers.ToolDefinition{
			Type: "function",
			Function: providers.ToolFunctionSchema{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return defs
}

// Execute runs a tool under the per-call timeout. Unknown tools and
// tool failures come back as error results, never as Go errors: the
// loop surfaces them to the model as observations.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) *Result {
	t, ok := r.tools[name]
	if !ok {
		return ErrorResult(fmt.Sprintf("unknown tool %q", name))
	}

	callCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := t.Execute(callCtx, args)
	elapsed := time.Since(start)

	if err != nil {
		slog.Warn("tool call failed", "tool", name, "duration", elapsed, "error", err)
		return ErrorResult(fmt.Sprintf("tool %s failed: %v", name, err)).WithError(err)
	}
	if result == nil {
		result = NewResult("")
	}
	slog.Debug("tool call", "tool", name, "duration", elapsed, "is_error", result.IsError)
	return result
}
