package unifiedllm

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Role identifies who produced a message in a conversation.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ContentKind is the discriminator tag for ContentPart.
type ContentKind string

const (
	ContentText       ContentKind = "text"
	ContentToolUse    ContentKind = "tool_use"
	ContentToolResult ContentKind = "tool_result"
)

// ToolUseData represents a model-initiated tool invocation.
type ToolUseData struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResultData holds the result of a tool execution.
type ToolResultData struct {
	ToolUseID string `json:"tool_use_id"`
	Content   string `json:"content"`
	IsError   bool   `json:"is_error,omitempty"`
}

// ContentPart is a tagged union representing one block of a message.
// Exactly one payload matches Kind.
type ContentPart struct {
	Kind       ContentKind     `json:"kind"`
	Text       string          `json:"text,omitempty"`
	ToolUse    *ToolUseData    `json:"tool_use,omitempty"`
	ToolResult *ToolResultData `json:"tool_result,omitempty"`
}

// Validate reports whether the payload matches the discriminant.
func (p ContentPart) Validate() error {
	switch p.Kind {
	case ContentText:
		return nil
	case ContentToolUse:
		if p.ToolUse == nil {
			return fmt.Errorf("tool_use block without payload")
		}
		return nil
	case ContentToolResult:
		if p.ToolResult == nil {
			return fmt.Errorf("tool_result block without payload")
		}
		return nil
	default:
		return fmt.Errorf("unknown content kind %q", p.Kind)
	}
}

// TextPart creates a text ContentPart.
func TextPart(text string) ContentPart {
	return ContentPart{Kind: ContentText, Text: text}
}

// ToolUsePart creates a tool use ContentPart.
func ToolUsePart(id, name string, input json.RawMessage) ContentPart {
	return ContentPart{
		Kind:    ContentToolUse,
		ToolUse: &ToolUseData{ID: id, Name: name, Input: input},
	}
}

// ToolResultPart creates a tool result ContentPart.
func ToolResultPart(toolUseID, content string, isError bool) ContentPart {
	return ContentPart{
		Kind:       ContentToolResult,
		ToolResult: &ToolResultData{ToolUseID: toolUseID, Content: content, IsError: isError},
	}
}

// Message is the fundamental unit of conversation.
type Message struct {
	Role    Role          `json:"role"`
	Content []ContentPart `json:"content"`
}

// TextContent returns the concatenation of all text content parts.
func (m Message) TextContent() string {
	var sb strings.Builder
	for _, part := range m.Content {
		if part.Kind == ContentText {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}

// UserMessage creates a user Message with text content.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: []ContentPart{TextPart(text)}}
}

// AssistantMessage creates an assistant Message with text content.
func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: []ContentPart{TextPart(text)}}
}

// ToolDefinition describes a tool to the model.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"` // JSON Schema
}

// ToolCall is extracted from a model response.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// Request is the input to Client.Complete.
type Request struct {
	Model     string           `json:"model"`
	Provider  string           `json:"provider,omitempty"`
	MaxTokens int              `json:"max_tokens"`
	System    string           `json:"system,omitempty"`
	Messages  []Message        `json:"messages"`
	ToolDefs  []ToolDefinition `json:"tools,omitempty"`
}

// Usage tracks token consumption.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Response is the output of Client.Complete.
type Response struct {
	ID         string          `json:"id"`
	Model      string          `json:"model"`
	Provider   string          `json:"provider"`
	Message    Message         `json:"message"`
	StopReason string          `json:"stop_reason,omitempty"`
	Usage      Usage           `json:"usage"`
	Raw        json.RawMessage `json:"raw,omitempty"`
}

// Text returns the concatenated text from all text parts in the response message.
func (r Response) Text() string {
	return r.Message.TextContent()
}

// Partition splits the response content into its text fragments and tool
// calls, each in response order.
func (r Response) Partition() (texts []string, calls []ToolCall) {
	for _, part := range r.Message.Content {
		switch part.Kind {
		case ContentText:
			if part.Text != "" {
				texts = append(texts, part.Text)
			}
		case ContentToolUse:
			if part.ToolUse != nil {
				calls = append(calls, ToolCall{
					ID:    part.ToolUse.ID,
					Name:  part.ToolUse.Name,
					Input: part.ToolUse.Input,
				})
			}
		case ContentToolResult:
			// Models never return tool results.
		}
	}
	return texts, calls
}

// RequestSnapshot is an audit-safe copy of an outgoing request. Headers carry
// placeholders in place of credentials.
type RequestSnapshot struct {
	Provider string            `json:"provider"`
	Headers  map[string]string `json:"headers,omitempty"`
	Body     Request           `json:"body"`
	SentAt   time.Time         `json:"sent_at"`
}
