package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int
	}{
		{"empty", "", 0},
		{"short", "hi", 1},
		{"exactly four chars", "test", 1},
		{"five chars rounds up", "hello", 2},
		{"typical sentence", "The quick brown fox jumps over the lazy dog.", 11},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EstimateTokens(tt.input))
		})
	}
}

func TestEstimateMessageTokens(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want int
	}{
		{"simple user message", Message{Role: RoleUser, Content: "hello"}, 4 + 2},
		{"empty message", Message{Role: RoleAssistant}, 4},
		{
			name: "message with tool call",
			msg: Message{
				Role:      RoleAssistant,
				ToolCalls: []ToolCall{{ID: "call_1", Name: "get_memory", Params: map[string]any{"key": "name"}}},
			},
			// overhead + name(10 chars) + {"key":"name"}(14 chars) + framing
			want: 4 + 3 + 4 + 4,
		},
		{
			name: "tool result message",
			msg:  Message{Role: RoleTool, Content: "Memory (name): Priya", ToolCallID: "call_1"},
			want: 4 + 5 + 2 + 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EstimateMessageTokens(tt.msg))
		})
	}
}

func TestEstimateMessagesTokens(t *testing.T) {
	messages := []Message{
		{Role: RoleUser, Content: "hello"},
		{Role: RoleAssistant, Content: "hi there"},
	}
	assert.Equal(t, 12, EstimateMessagesTokens(messages))
}

func TestEstimateToolsTokens(t *testing.T) {
	tools := []Tool{{
		Name:        "get_invoices",
		Description: "List invoices.",
		Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
	}}
	assert.Greater(t, EstimateToolsTokens(tools), 10)
}

func TestHistoryBudget(t *testing.T) {
	assert.Equal(t, 0, HistoryBudget(100, "system", nil))

	got := HistoryBudget(100000, "abcd", nil)
	assert.Equal(t, 100000-1-outputReserve, got)
}
