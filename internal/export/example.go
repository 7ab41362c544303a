package export

// Example is one training example in the fine-tuning schema. This is the
// exact shape serialized to JSONL: parallel_tool_calls is always present
// (and always false — the training target does not model concurrent tool
// execution), tools only when the conversation invoked any.
type Example struct {
	Messages          []Message        `json:"messages"`
	ParallelToolCalls bool             `json:"parallel_tool_calls"`
	Tools             []ToolDefinition `json:"tools,omitempty"`
}

// Message is one role-tagged entry in an example. Weight is a pointer so
// an explicit 0 (excluded from the loss) survives serialization while the
// schema default stays absent.
type Message struct {
	Role       string            `json:"role"`
	Content    string            `json:"content,omitempty"`
	ToolCalls  []MessageToolCall `json:"tool_calls,omitempty"`
	ToolCallID string            `json:"tool_call_id,omitempty"`
	Weight     *int              `json:"weight,omitempty"`
}

// MessageToolCall is one entry of an assistant message's tool_calls array.
type MessageToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall carries the tool name and its arguments as JSON text, per
// the training schema.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolDefinition is one entry of the tool-schema catalog attached to
// examples that invoke it.
type ToolDefinition struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

type ToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}
