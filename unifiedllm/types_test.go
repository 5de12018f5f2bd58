package unifiedllm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentPartValidate(t *testing.T) {
	tests := []struct {
		name    string
		part    ContentPart
		wantErr bool
	}{
		{"text", TextPart("hi"), false},
		{"tool use", ToolUsePart("toolu_1", "read_file", json.RawMessage(`{}`)), false},
		{"tool result", ToolResultPart("toolu_1", "ok", false), false},
		{"tool use without payload", ContentPart{Kind: ContentToolUse}, true},
		{"tool result without payload", ContentPart{Kind: ContentToolResult}, true},
		{"unknown kind", ContentPart{Kind: "image"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.part.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestResponsePartitionKeepsOrder(t *testing.T) {
	resp := Response{Message: Message{
		Role: RoleAssistant,
		Content: []ContentPart{
			TextPart("first"),
			ToolUsePart("a", "write_file", json.RawMessage(`{"content":"x"}`)),
			TextPart(""),
			TextPart("second"),
			ToolUsePart("b", "run_script", json.RawMessage(`{}`)),
		},
	}}

	texts, calls := resp.Partition()

	assert.Equal(t, []string{"first", "second"}, texts)
	require.Len(t, calls, 2)
	assert.Equal(t, "a", calls[0].ID)
	assert.Equal(t, "write_file", calls[0].Name)
	assert.JSONEq(t, `{"content":"x"}`, string(calls[0].Input))
	assert.Equal(t, "b", calls[1].ID)
}

func TestMessageTextContent(t *testing.T) {
	msg := Message{Role: RoleAssistant, Content: []ContentPart{
		TextPart("Hello "),
		ToolUsePart("a", "read_file", nil),
		TextPart("world"),
	}}
	assert.Equal(t, "Hello world", msg.TextContent())
	assert.Equal(t, RoleUser, UserMessage("x").Role)
	assert.Equal(t, RoleAssistant, AssistantMessage("x").Role)
}

func TestContentPartJSONShape(t *testing.T) {
	data, err := json.Marshal(ToolResultPart("toolu_9", "done", true))
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"tool_result","tool_result":{"tool_use_id":"toolu_9","content":"done","is_error":true}}`, string(data))
}
