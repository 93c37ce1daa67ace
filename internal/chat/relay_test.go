package chat_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"propchat-backend/internal/chat"
	"propchat-backend/internal/llm"
)

type scriptedResponse struct {
	status int
	body   string
}

// fakeUpstream plays one scripted response per chat completion request and
// records the request bodies it receives.
type fakeUpstream struct {
	mu        sync.Mutex
	responses []scriptedResponse
	requests  []map[string]any
}

func (u *fakeUpstream) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		var decoded map[string]any
		require.NoError(t, json.Unmarshal(body, &decoded))

		u.mu.Lock()
		u.requests = append(u.requests, decoded)
		require.NotEmpty(t, u.responses, "more requests than scripted responses")
		resp := u.responses[0]
		u.responses = u.responses[1:]
		u.mu.Unlock()

		if resp.status != http.StatusOK {
			w.WriteHeader(resp.status)
			fmt.Fprint(w, resp.body)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, resp.body)
	}
}

func contentFrame(text string) string {
	payload, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{{"delta": map[string]any{"content": text}}},
	})
	return "data: " + string(payload) + "\n"
}

func toolFrame(index int, id, name, args string) string {
	fn := map[string]any{"arguments": args}
	if name != "" {
		fn["name"] = name
	}
	call := map[string]any{"index": index, "function": fn}
	if id != "" {
		call["id"] = id
	}
	payload, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{{"delta": map[string]any{"tool_calls": []any{call}}}},
	})
	return "data: " + string(payload) + "\n"
}

func finishFrame(reason string) string {
	return fmt.Sprintf(`data: {"choices":[{"delta":{},"finish_reason":"%s"}]}`+"\n", reason)
}

const doneFrame = "data: [DONE]\n"

func runRelay(t *testing.T, upstream *fakeUpstream, tools ...chat.Handler) (string, string, error) {
	server := httptest.NewServer(upstream.handler(t))
	t.Cleanup(server.Close)

	client := llm.NewClient(server.URL, "test-key", "test-model")
	relay := chat.NewRelay(client, chat.NewRegistry(tools...))

	var emitted strings.Builder
	reply, err := relay.Run(context.Background(), []llm.Message{{Role: "user", Content: "hi"}}, func(content string) error {
		emitted.WriteString(content)
		return nil
	})
	return reply, emitted.String(), err
}

func TestRelayPlainReply(t *testing.T) {
	upstream := &fakeUpstream{responses: []scriptedResponse{
		{status: http.StatusOK, body: contentFrame("Hello") + contentFrame(" world") + finishFrame("stop") + doneFrame},
	}}

	reply, emitted, err := runRelay(t, upstream, &stubTool{name: "get_properties"})
	require.NoError(t, err)
	assert.Equal(t, "Hello world", reply)
	assert.Equal(t, reply, emitted)

	require.Len(t, upstream.requests, 1)
	assert.Contains(t, upstream.requests[0], "tools")
}

func TestRelayToolRound(t *testing.T) {
	primary := toolFrame(0, "call_1", "get_properties", `{"city":"Test`) +
		toolFrame(0, "", "", `ville","bedrooms"`) +
		toolFrame(0, "", "", `:3}`) +
		finishFrame("tool_calls") + doneFrame
	secondary := contentFrame("I found 2 matching homes") + contentFrame(" in Testville.") + finishFrame("stop") + doneFrame

	upstream := &fakeUpstream{responses: []scriptedResponse{
		{status: http.StatusOK, body: primary},
		{status: http.StatusOK, body: secondary},
	}}

	tool := &stubTool{name: "get_properties", result: []string{"home-1", "home-2"}}
	reply, emitted, err := runRelay(t, upstream, tool)
	require.NoError(t, err)
	assert.Equal(t, "I found 2 matching homes in Testville.", reply)
	assert.Equal(t, reply, emitted)

	require.Len(t, tool.calls, 1)
	assert.Equal(t, map[string]any{"city": "Testville", "bedrooms": float64(3)}, tool.calls[0])

	require.Len(t, upstream.requests, 2)
	second := upstream.requests[1]
	// The second session must not advertise tools again; one round per turn.
	assert.NotContains(t, second, "tools")

	messages := second["messages"].([]any)
	require.Len(t, messages, 3) // user, synthetic assistant, tool result

	assistant := messages[1].(map[string]any)
	assert.Equal(t, "assistant", assistant["role"])
	calls := assistant["tool_calls"].([]any)
	require.Len(t, calls, 1)
	assert.Equal(t, "call_1", calls[0].(map[string]any)["id"])

	toolMsg := messages[2].(map[string]any)
	assert.Equal(t, "tool", toolMsg["role"])
	assert.Equal(t, "call_1", toolMsg["tool_call_id"])
	assert.JSONEq(t, `["home-1","home-2"]`, toolMsg["content"].(string))
}

func TestRelayExecutesToolsInIndexOrder(t *testing.T) {
	// Fragments for index 1 arrive before index 0; execution still follows
	// index order.
	primary := toolFrame(1, "call_b", "get_locations", `{}`) +
		toolFrame(0, "call_a", "get_properties", `{"city":"Testville"}`) +
		finishFrame("tool_calls") + doneFrame
	secondary := contentFrame("done") + finishFrame("stop") + doneFrame

	upstream := &fakeUpstream{responses: []scriptedResponse{
		{status: http.StatusOK, body: primary},
		{status: http.StatusOK, body: secondary},
	}}

	var order []string
	search := &orderedTool{name: "get_properties", order: &order}
	locations := &orderedTool{name: "get_locations", order: &order}

	_, _, err := runRelay(t, upstream, search, locations)
	require.NoError(t, err)
	assert.Equal(t, []string{"get_properties", "get_locations"}, order)
}

type orderedTool struct {
	name  string
	order *[]string
}

func (o *orderedTool) Name() string { return o.name }

func (o *orderedTool) Definition() llm.Tool {
	return llm.Tool{Type: "function", Function: llm.Function{Name: o.name}}
}

func (o *orderedTool) Execute(context.Context, map[string]any) (any, error) {
	*o.order = append(*o.order, o.name)
	return []any{}, nil
}

func TestRelayEmptyToolCallFinishWithoutDeltas(t *testing.T) {
	// A finish reason of tool_calls with no accumulated deltas ends the turn
	// instead of starting a pointless second session.
	upstream := &fakeUpstream{responses: []scriptedResponse{
		{status: http.StatusOK, body: contentFrame("hi") + finishFrame("tool_calls") + doneFrame},
	}}

	reply, _, err := runRelay(t, upstream)
	require.NoError(t, err)
	assert.Equal(t, "hi", reply)
	assert.Len(t, upstream.requests, 1)
}

func TestRelayRateLimited(t *testing.T) {
	upstream := &fakeUpstream{responses: []scriptedResponse{
		{status: http.StatusTooManyRequests, body: `{"error":"slow down"}`},
	}}

	reply, emitted, err := runRelay(t, upstream)
	assert.ErrorIs(t, err, llm.ErrRateLimited)
	assert.Empty(t, reply)
	assert.Empty(t, emitted)
}

func TestRelayMissingAPIKey(t *testing.T) {
	client := llm.NewClient("http://localhost:0", "", "test-model")
	relay := chat.NewRelay(client, chat.NewRegistry())

	_, err := relay.Run(context.Background(), []llm.Message{{Role: "user", Content: "hi"}}, nil)
	assert.ErrorIs(t, err, llm.ErrMissingAPIKey)
}
