// Package agent drives the bounded reason-act loop: model call, at most
// one tool invocation per iteration, observation fed back, repeat.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rumbo-ai/rumbo/internal/providers"
	"github.com/rumbo-ai/rumbo/internal/store"
	"github.com/rumbo-ai/rumbo/internal/tools"
)

// ToolTrace records one tool invocation for observability.
type ToolTrace struct {
	Name       string         `json:"name"`
	Arguments  map[string]any `json:"arguments,omitempty"`
	DurationMS int            `json:"duration_ms"`
	IsError    bool           `json:"is_error"`
}

// Outcome is the result of one executor run.
type Outcome struct {
	Response   string
	Truncated  bool
	Iterations int
	ToolTraces []ToolTrace
	Usage      providers.Usage

	// Structured payloads captured from tool results.
	Places    []store.Place
	Itinerary *tools.Itinerary
}

// Params configure one run.
type Params struct {
	Model         string
	MaxTokens     int
	Temperature   float64
	MaxIterations int

	// TruncationFallback is the answer used when the iteration budget
	// runs out before the model produced any content. The caller
	// localizes it; the loop itself is language-agnostic.
	TruncationFallback string

	// ArgDefaults fills missing tool arguments per tool name, e.g. the
	// user's coordinates for create_itinerary.
	ArgDefaults map[string]map[string]any
}

// Executor runs the loop against a provider and a tool registry.
type Executor struct {
	registry *tools.Registry
	logger   *slog.Logger
}

func NewExecutor(registry *tools.Registry, logger *slog.Logger) *Executor {
	return &Executor{registry: registry, logger: logger}
}

// Run iterates until the model produces a final answer, the iteration
// budget runs out, or the context is done. Tool failures never abort
// the loop; they go back to the model as observations.
func (e *Executor) Run(ctx context.Context, provider providers.Provider, params Params, messages []providers.Message) (*Outcome, error) {
	maxIterations := params.MaxIterations
	if maxIterations <= 0 {
		maxIterations = 6
	}

	outcome := &Outcome{}
	msgs := append([]providers.Message{}, messages...)
	toolDefs := e.registry.ProviderDefs()

	for iteration := 1; iteration <= maxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return outcome, err
		}
		outcome.Iterations = iteration

		resp, err := provider.Chat(ctx, providers.ChatRequest{
			Model:    params.Model,
			Messages: msgs,
			Tools:    toolDefs,
			Options: map[string]any{
				providers.OptMaxTokens:   params.MaxTokens,
				providers.OptTemperature: params.Temperature,
			},
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return outcome, ctxErr
			}
			return outcome, fmt.Errorf("model call: %w", err)
		}
		if resp.Usage != nil {
			outcome.Usage.PromptTokens += resp.Usage.PromptTokens
			outcome.Usage.CompletionTokens += resp.Usage.CompletionTokens
			outcome.Usage.TotalTokens += resp.Usage.TotalTokens
		}
		if resp.Content != "" {
			// best interim answer so far, kept in case we truncate
			outcome.Response = resp.Content
		}

		if len(resp.ToolCalls) == 0 {
			e.logger.Debug("agent final answer", "iterations", iteration)
			return outcome, nil
		}

		// One tool call per iteration; extra calls are dropped and the
		// model sees only the first observation.
		call := resp.ToolCalls[0]
		if len(resp.ToolCalls) > 1 {
			e.logger.Warn("model requested parallel tools, keeping first", "tool", call.Name, "dropped", len(resp.ToolCalls)-1)
		}
		args := mergeArgDefaults(call.Arguments, params.ArgDefaults[call.Name])

		start := time.Now()
		result := e.registry.Execute(ctx, call.Name, args)
		outcome.ToolTraces = append(outcome.ToolTraces, ToolTrace{
			Name:       call.Name,
			Arguments:  args,
			DurationMS: int(time.Since(start).Milliseconds()),
			IsError:    result.IsError,
		})
		captureData(outcome, result)

		msgs = append(msgs,
			providers.Message{Role: "assistant", Content: resp.Content, ToolCalls: []providers.ToolCall{call}},
			providers.Message{Role: "tool", Content: result.ForLLM, ToolCallID: call.ID},
		)
	}

	e.logger.Warn("agent iteration budget exhausted", "iterations", maxIterations)
	outcome.Truncated = true
	if outcome.Response == "" {
		outcome.Response = params.TruncationFallback
	}
	return outcome, nil
}

func mergeArgDefaults(args, defaults map[string]any) map[string]any {
	if args == nil {
		args = map[string]any{}
	}
	for k, v := range defaults {
		if _, ok := args[k]; !ok {
			args[k] = v
		}
	}
	return args
}

// captureData pulls structured payloads out of tool results so the
// pipeline can persist them as turn metadata.
func captureData(outcome *Outcome, result *tools.Result) {
	switch data := result.Data.(type) {
	case []store.Place:
		outcome.Places = data
	case tools.Itinerary:
		outcome.Itinerary = &data
		if len(data.Steps) > 0 && len(outcome.Places) == 0 {
			places := make([]store.Place, len(data.Steps))
			for i, s := range data.Steps {
				places[i] = s.Place
			}
			outcome.Places = places
		}
	}
}
