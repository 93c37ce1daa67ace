package llm

import (
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
)

// Invocation is a fully reconstructed tool call, ready for dispatch. Args is
// nil when the accumulated argument text did not parse; the invocation still
// carries its id so the follow-up call can correlate a neutral result.
type Invocation struct {
	ID   string
	Name string
	Args map[string]any

	// RawArgs is the concatenated argument text exactly as received. It is
	// echoed back to the model in the synthetic assistant turn.
	RawArgs string
}

type toolCallDraft struct {
	id   string
	name string
	args strings.Builder
}

// ToolCallAccumulator reassembles tool calls that arrive fragmented across
// many frames, keyed by the position index the upstream assigns to each call.
type ToolCallAccumulator struct {
	drafts map[int]*toolCallDraft
}

func NewToolCallAccumulator() *ToolCallAccumulator {
	return &ToolCallAccumulator{drafts: make(map[int]*toolCallDraft)}
}

// Add folds one tool-call delta into the draft for its index. The invocation
// id and tool name arrive on the first fragment; argument text accumulates
// across all of them in arrival order.
func (a *ToolCallAccumulator) Add(delta ToolCallDelta) {
	draft, ok := a.drafts[delta.Index]
	if !ok {
		draft = &toolCallDraft{}
		a.drafts[delta.Index] = draft
	}
	if delta.ID != "" {
		draft.id = delta.ID
	}
	if delta.Function.Name != "" {
		draft.name = delta.Function.Name
	}
	draft.args.WriteString(delta.Function.Arguments)
}

// Empty reports whether any tool-call delta has been seen.
func (a *ToolCallAccumulator) Empty() bool { return len(a.drafts) == 0 }

// Finalize parses each draft's accumulated argument text and returns the
// invocations in ascending index order. Argument text is only parseable once
// fully concatenated, so this must not run before the finish signal.
func (a *ToolCallAccumulator) Finalize() []Invocation {
	indices := make([]int, 0, len(a.drafts))
	for i := range a.drafts {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	invocations := make([]Invocation, 0, len(indices))
	for _, i := range indices {
		draft := a.drafts[i]
		inv := Invocation{ID: draft.id, Name: draft.name, RawArgs: draft.args.String()}
		if err := json.Unmarshal([]byte(inv.RawArgs), &inv.Args); err != nil {
			// Malformed arguments degrade to a neutral result rather than
			// aborting the turn; the model can self-correct next turn.
			slog.Debug("malformed tool call arguments", "tool", draft.name, "index", i, "error", err)
			inv.Args = nil
		}
		invocations = append(invocations, inv)
	}
	return invocations
}
