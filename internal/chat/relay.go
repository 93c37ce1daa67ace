package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"propchat-backend/internal/llm"
)

type relayState int

const (
	statePrimaryStreaming relayState = iota
	stateToolsPending
	stateSecondaryStreaming
	stateDone
	stateFailed
)

func (s relayState) String() string {
	switch s {
	case statePrimaryStreaming:
		return "PRIMARY_STREAMING"
	case stateToolsPending:
		return "TOOLS_PENDING"
	case stateSecondaryStreaming:
		return "SECONDARY_STREAMING"
	case stateDone:
		return "DONE"
	case stateFailed:
		return "FAILED"
	}
	return "UNKNOWN"
}

const finishToolCalls = "tool_calls"

// EmitFunc receives each forwardable content fragment as it arrives.
type EmitFunc func(content string) error

// Relay drives the one or two upstream streaming sessions that make up a
// single user turn. Content deltas are forwarded through emit as they arrive
// and appended to the running reply; tool-call deltas are reassembled and, if
// the primary session finishes with a tool-call request, executed before a
// secondary session streams the model's final answer into the same output.
type Relay struct {
	llm   *llm.Client
	tools *Registry
}

func NewRelay(client *llm.Client, tools *Registry) *Relay {
	return &Relay{llm: client, tools: tools}
}

// Run executes the turn and returns the complete assistant text, including
// whatever was already forwarded when an error cut the turn short. The client
// cannot distinguish primary from secondary content; both phases write
// through the same emit func.
func (r *Relay) Run(ctx context.Context, history []llm.Message, emit EmitFunc) (string, error) {
	var reply strings.Builder
	acc := llm.NewToolCallAccumulator()

	state := statePrimaryStreaming
	body, err := r.llm.StreamChat(ctx, history, r.tools.Catalog())
	if err != nil {
		return "", err
	}

	finish, err := r.pump(ctx, body, acc, &reply, emit)
	if err != nil {
		transition(state, stateFailed)
		return reply.String(), err
	}

	if finish != finishToolCalls || acc.Empty() {
		transition(state, stateDone)
		return reply.String(), nil
	}

	state = transition(state, stateToolsPending)
	followup := r.executeTools(ctx, history, acc.Finalize())

	state = transition(state, stateSecondaryStreaming)
	// No tool catalog on the second call: at most one tool round per turn.
	body, err = r.llm.StreamChat(ctx, followup, nil)
	if err != nil {
		transition(state, stateFailed)
		return reply.String(), err
	}

	if _, err := r.pump(ctx, body, nil, &reply, emit); err != nil {
		transition(state, stateFailed)
		return reply.String(), err
	}

	transition(state, stateDone)
	return reply.String(), nil
}

func transition(from, to relayState) relayState {
	slog.Debug("relay state change", "from", from, "to", to)
	return to
}

// pump reads one upstream session to completion. Content deltas go to reply
// and emit, tool-call deltas go to acc (nil in the secondary session, which
// drops them), and the last finish reason seen is returned once the terminal
// sentinel or EOF arrives.
func (r *Relay) pump(ctx context.Context, body io.ReadCloser, acc *llm.ToolCallAccumulator, reply *strings.Builder, emit EmitFunc) (string, error) {
	defer body.Close()

	parser := &llm.FrameParser{}
	finish := ""
	buf := make([]byte, 4096)

	for {
		if err := ctx.Err(); err != nil {
			return finish, err
		}

		n, readErr := body.Read(buf)
		for _, frame := range parser.Feed(buf[:n]) {
			if frame.Done {
				return finish, nil
			}
			for _, choice := range frame.Chunk.Choices {
				if choice.Delta.Content != "" {
					reply.WriteString(choice.Delta.Content)
					if emit != nil {
						if err := emit(choice.Delta.Content); err != nil {
							return finish, err
						}
					}
				}
				if acc != nil {
					for _, tc := range choice.Delta.ToolCalls {
						acc.Add(tc)
					}
				}
				if choice.FinishReason != nil && *choice.FinishReason != "" {
					finish = *choice.FinishReason
				}
			}
		}

		if readErr == io.EOF {
			return finish, nil
		}
		if readErr != nil {
			return finish, fmt.Errorf("reading upstream stream: %w", readErr)
		}
	}
}

// executeTools runs each invocation sequentially in index order and builds
// the secondary session's history: the original turns, a synthetic assistant
// turn recording the calls, and one tool turn per invocation correlated by
// invocation id.
func (r *Relay) executeTools(ctx context.Context, history []llm.Message, invocations []llm.Invocation) []llm.Message {
	assistant := llm.Message{Role: "assistant"}
	results := make([]llm.Message, 0, len(invocations))

	for _, inv := range invocations {
		assistant.ToolCalls = append(assistant.ToolCalls, llm.ToolCall{
			ID:       inv.ID,
			Type:     "function",
			Function: llm.FunctionCall{Name: inv.Name, Arguments: inv.RawArgs},
		})

		result := r.tools.Execute(ctx, inv)
		serialized, err := json.Marshal(result)
		if err != nil {
			slog.Error("could not serialize tool result", "tool", inv.Name, "error", err)
			serialized = []byte("[]")
		}
		results = append(results, llm.Message{
			Role:       "tool",
			ToolCallID: inv.ID,
			Content:    string(serialized),
		})
	}

	followup := make([]llm.Message, 0, len(history)+1+len(results))
	followup = append(followup, history...)
	followup = append(followup, assistant)
	followup = append(followup, results...)
	return followup
}
