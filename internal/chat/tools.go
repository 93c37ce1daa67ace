package chat

import (
	"context"
	"log/slog"
	"sort"

	"propchat-backend/internal/llm"
)

// Handler executes one registered tool. Implementations perform bounded,
// read-only lookups against the data layer and return plain serializable
// values; they never stream.
type Handler interface {
	Name() string
	Definition() llm.Tool
	Execute(ctx context.Context, args map[string]any) (any, error)
}

// Registry is the static tool dispatch table, built once at startup.
type Registry struct {
	handlers map[string]Handler
}

func NewRegistry(handlers ...Handler) *Registry {
	m := make(map[string]Handler, len(handlers))
	for _, h := range handlers {
		m[h.Name()] = h
	}
	return &Registry{handlers: m}
}

// Catalog returns the tool definitions advertised to the model, ordered by
// name so request bodies are stable.
func (r *Registry) Catalog() []llm.Tool {
	tools := make([]llm.Tool, 0, len(r.handlers))
	for _, h := range r.handlers {
		tools = append(tools, h.Definition())
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Function.Name < tools[j].Function.Name })
	return tools
}

// Execute dispatches one invocation. A name the model hallucinated, malformed
// arguments, and a failed handler all degrade to an empty result so the model
// can recover on its next turn.
func (r *Registry) Execute(ctx context.Context, inv llm.Invocation) any {
	handler, ok := r.handlers[inv.Name]
	if !ok {
		slog.Debug("no handler registered for tool", "tool", inv.Name)
		return []any{}
	}

	if inv.Args == nil && inv.RawArgs != "" {
		slog.Debug("tool call arguments did not parse", "tool", inv.Name)
		return []any{}
	}

	result, err := handler.Execute(ctx, inv.Args)
	if err != nil {
		slog.Error("tool handler failed", "tool", inv.Name, "error", err)
		return []any{}
	}
	return result
}
