package agentloop

import (
	"time"

	"github.com/martinemde/fileagent/unifiedllm"
)

// Turn is a single entry in the conversation history. Content holds the raw
// blocks exactly as sent or received.
type Turn struct {
	Role      unifiedllm.Role          `json:"role"`
	Timestamp time.Time                `json:"timestamp"`
	Content   []unifiedllm.ContentPart `json:"content"`
}

// NewUserTurn creates a Turn wrapping user input.
func NewUserTurn(text string) Turn {
	return Turn{
		Role:      unifiedllm.RoleUser,
		Timestamp: time.Now(),
		Content:   []unifiedllm.ContentPart{unifiedllm.TextPart(text)},
	}
}

// NewAssistantTurn creates a Turn holding the complete content of a model
// response, tool_use blocks included.
func NewAssistantTurn(content []unifiedllm.ContentPart) Turn {
	blocks := make([]unifiedllm.ContentPart, len(content))
	copy(blocks, content)
	return Turn{
		Role:      unifiedllm.RoleAssistant,
		Timestamp: time.Now(),
		Content:   blocks,
	}
}

// NewToolResultTurn creates the user Turn that answers a single tool_use.
func NewToolResultTurn(toolUseID, result string, isError bool) Turn {
	return Turn{
		Role:      unifiedllm.RoleUser,
		Timestamp: time.Now(),
		Content:   []unifiedllm.ContentPart{unifiedllm.ToolResultPart(toolUseID, result, isError)},
	}
}

// TextContent returns the concatenated text blocks of the turn.
func (t Turn) TextContent() string {
	return t.Message().TextContent()
}

// Message returns the turn as a transport message.
func (t Turn) Message() unifiedllm.Message {
	return unifiedllm.Message{Role: t.Role, Content: t.Content}
}

// toolResultIDs collects the correlation ids answered by this turn.
func (t Turn) toolResultIDs() map[string]bool {
	ids := make(map[string]bool)
	for _, part := range t.Content {
		if part.Kind == unifiedllm.ContentToolResult && part.ToolResult != nil {
			ids[part.ToolResult.ToolUseID] = true
		}
	}
	return ids
}

// ConvertHistoryToMessages converts the turn history into transport messages.
// A tool_use block is only forwarded when the next turn carries its
// tool_result; discarded extra calls and calls made in a continuation
// response stay in history but never reach the model service.
func ConvertHistoryToMessages(history []Turn) []unifiedllm.Message {
	messages := make([]unifiedllm.Message, 0, len(history))
	for i, turn := range history {
		if turn.Role != unifiedllm.RoleAssistant {
			messages = append(messages, turn.Message())
			continue
		}

		answered := map[string]bool{}
		if i+1 < len(history) && history[i+1].Role == unifiedllm.RoleUser {
			answered = history[i+1].toolResultIDs()
		}

		parts := make([]unifiedllm.ContentPart, 0, len(turn.Content))
		for _, part := range turn.Content {
			switch part.Kind {
			case unifiedllm.ContentToolUse:
				if part.ToolUse == nil || !answered[part.ToolUse.ID] {
					continue
				}
			case unifiedllm.ContentText, unifiedllm.ContentToolResult:
			}
			parts = append(parts, part)
		}
		messages = append(messages, unifiedllm.Message{Role: turn.Role, Content: parts})
	}
	return messages
}
