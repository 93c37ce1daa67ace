package llm

// Message is one turn of the chat history sent to the upstream model.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a fully-formed tool invocation, echoed back to the model in the
// synthetic assistant turn that precedes the tool results.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Tool is one entry of the tool catalog advertised to the model.
type Tool struct {
	Type     string   `json:"type"`
	Function Function `json:"function"`
}

type Function struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Tools    []Tool    `json:"tools,omitempty"`
	Stream   bool      `json:"stream"`
}

// Chunk is the payload of one decoded data frame.
type Chunk struct {
	Choices []Choice `json:"choices"`
}

type Choice struct {
	Delta        Delta   `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}

type Delta struct {
	Content   string          `json:"content"`
	ToolCalls []ToolCallDelta `json:"tool_calls"`
}

// ToolCallDelta is an incremental fragment of a tool call. The upstream keys
// fragments by Index; id and name only appear on the first fragment for an
// index, and Arguments carries partial JSON text until the finish signal.
type ToolCallDelta struct {
	Index    int               `json:"index"`
	ID       string            `json:"id"`
	Function FunctionCallDelta `json:"function"`
}

type FunctionCallDelta struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Frame is one logical unit decoded from the upstream byte stream: a data
// chunk, or the terminal sentinel that closes the session.
type Frame struct {
	Chunk Chunk
	Done  bool
}
