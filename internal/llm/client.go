package llm

import "context"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Sampling temperatures used across the app.
const (
	TemperatureChat     = 0.3
	TemperatureStrict   = 0.1
	TemperatureCreative = 0.5
)

type Message struct {
	Role       string     `json:"role"` // user, assistant, tool
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // for tool result messages
}

type ToolCall struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Params map[string]any `json:"params"`
}

type Response struct {
	Content   string
	ToolCalls []ToolCall
}

type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON Schema
}

// Attachment is a document passed alongside a Complete prompt.
type Attachment struct {
	Name     string
	MIMEType string
	Data     []byte
}

type CompleteOptions struct {
	Temperature float64
	Attachments []Attachment
}

type Client interface {
	Chat(ctx context.Context, systemPrompt string, messages []Message, tools []Tool) (*Response, error)
	// Complete runs a single-turn prompt with no tools and returns the text.
	Complete(ctx context.Context, prompt string, opts CompleteOptions) (string, error)
}
