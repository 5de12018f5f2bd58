package unifiedllm

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teilomillet/gollm"
	"github.com/teilomillet/gollm/llm"
)

// fakeLLM answers Generate with a canned reply. Methods the adapter never
// calls fall through to the nil embedded interface.
type fakeLLM struct {
	gollm.LLM
	reply   string
	err     error
	prompts []*llm.Prompt
	options map[string]interface{}
}

func (f *fakeLLM) Generate(_ context.Context, prompt *llm.Prompt, _ ...llm.GenerateOption) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.reply, f.err
}

func (f *fakeLLM) SetOption(key string, value interface{}) {
	if f.options == nil {
		f.options = map[string]interface{}{}
	}
	f.options[key] = value
}

func TestGollmAdapterTranslateError(t *testing.T) {
	adapter := &GollmAdapter{provider: "openai"}

	tests := []struct {
		errMsg     string
		wantStatus int
	}{
		{"API error 401 Unauthorized", 401},
		{"invalid api key", 401},
		{"request failed with status 503", 503},
		{"rate limit exceeded", 429},
		{"dial tcp: connection refused", 0},
	}
	for _, tt := range tests {
		err := adapter.translateError(errors.New(tt.errMsg))
		require.Error(t, err, tt.errMsg)
		if tt.wantStatus == 0 {
			var ne *NetworkError
			assert.True(t, errors.As(err, &ne), "%q: expected NetworkError, got %T", tt.errMsg, err)
			continue
		}
		assert.Equal(t, tt.wantStatus, StatusCode(err), tt.errMsg)
	}
}

func TestGollmAdapterInitialize(t *testing.T) {
	assert.True(t, IsConfigurationError((&GollmAdapter{provider: "openai"}).Initialize()))
	assert.True(t, IsConfigurationError((&GollmAdapter{provider: "openai", apiKey: "k"}).Initialize()), "missing llm")
}

func TestParseToolCalls(t *testing.T) {
	calls, rest := parseToolCalls(`I'll write it.
[{"name": "write_file", "input": {"content": "print(1)"}}, {"name": "run_script"}]`)

	assert.Equal(t, "I'll write it.", rest)
	require.Len(t, calls, 2)
	assert.Equal(t, "write_file", calls[0].Name)
	assert.JSONEq(t, `{"content": "print(1)"}`, string(calls[0].Input))
	assert.NotEmpty(t, calls[0].ID)
	assert.JSONEq(t, `{}`, string(calls[1].Input))
}

func TestParseToolCallsPlainText(t *testing.T) {
	calls, rest := parseToolCalls("  just text [not json  ")
	assert.Empty(t, calls)
	assert.Equal(t, "just text [not json", rest)
}

func TestBuildResponseWithoutToolsKeepsText(t *testing.T) {
	adapter := &GollmAdapter{provider: "openai", model: "gpt-4o-mini"}
	resp := adapter.buildResponse(Request{Messages: []Message{UserMessage("hi")}}, `[{"name": "x"}]`)

	texts, calls := resp.Partition()
	assert.Empty(t, calls, "tool parsing only applies when tools were offered")
	assert.Equal(t, []string{`[{"name": "x"}]`}, texts)
	assert.Equal(t, "gpt-4o-mini", resp.Model)
}

func TestEstimateTokens(t *testing.T) {
	req := Request{Messages: []Message{UserMessage("Hello, world! This is a test message.")}}
	assert.Positive(t, estimateTokens(req))
	assert.Equal(t, 10, estimateTokens(Request{}))
}

func TestGollmAdapterCompleteWithToolCall(t *testing.T) {
	fake := &fakeLLM{reply: `Writing it now.
[{"name": "write_file", "input": {"content": "print(1)"}}]`}
	adapter := NewGollmAdapterFromLLM("openai", "sk-test", "gpt-4o-mini", fake)
	require.NoError(t, adapter.Initialize())

	resp, err := adapter.Complete(context.Background(), Request{
		Model:     "gpt-4o",
		MaxTokens: 512,
		System:    "You edit one file.",
		Messages: []Message{
			UserMessage("write it"),
			{Role: RoleAssistant, Content: []ContentPart{ToolUsePart("toolu_0", "read_file", json.RawMessage(`{"filepath":"main.py"}`))}},
			{Role: RoleUser, Content: []ContentPart{ToolResultPart("toolu_0", "File not found: main.py", true)}},
		},
		ToolDefs: []ToolDefinition{{Name: "write_file", Description: "write", Parameters: map[string]interface{}{"type": "object"}}},
	})
	require.NoError(t, err)

	require.Len(t, fake.prompts, 1)
	prompt := fake.prompts[0]
	assert.Contains(t, prompt.Input, "write it")
	assert.Contains(t, prompt.Input, "[Tool Call toolu_0]: read_file")
	assert.Contains(t, prompt.Input, "[Tool Error]: File not found: main.py")
	assert.Contains(t, prompt.SystemPrompt, "You edit one file.")
	assert.Contains(t, prompt.SystemPrompt, toolCallInstructions)
	require.Len(t, prompt.Tools, 1)
	assert.Equal(t, "write_file", prompt.Tools[0].Function.Name)
	assert.Equal(t, "gpt-4o", fake.options["model"])
	assert.Equal(t, 512, fake.options["max_tokens"])

	texts, calls := resp.Partition()
	assert.Equal(t, []string{"Writing it now."}, texts)
	require.Len(t, calls, 1)
	assert.Equal(t, "write_file", calls[0].Name)
	assert.JSONEq(t, `{"content": "print(1)"}`, string(calls[0].Input))
	assert.Equal(t, "tool_use", resp.StopReason)
	assert.Equal(t, "openai", resp.Provider)
	assert.Equal(t, "gpt-4o", resp.Model)
	assert.JSONEq(t, `{"text": "Writing it now.\n[{\"name\": \"write_file\", \"input\": {\"content\": \"print(1)\"}}]"}`, string(resp.Raw))
}

func TestGollmAdapterCompleteTranslatesErrors(t *testing.T) {
	fake := &fakeLLM{err: errors.New("API error 429: rate limit exceeded")}
	adapter := NewGollmAdapterFromLLM("groq", "gsk-test", "llama-3.1-8b-instant", fake)

	_, err := adapter.Complete(context.Background(), Request{Messages: []Message{UserMessage("hi")}})
	require.Error(t, err)
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, 429, te.StatusCode)
}

func TestGollmAdapterDefaultsModel(t *testing.T) {
	fake := &fakeLLM{reply: "hello"}
	adapter := NewGollmAdapterFromLLM("ollama", "", "llama3.1", fake)
	require.NoError(t, adapter.Initialize(), "local providers need no key")

	resp, err := adapter.Complete(context.Background(), Request{Messages: []Message{UserMessage("hi")}})
	require.NoError(t, err)
	assert.Equal(t, "llama3.1", resp.Model)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, "hello", resp.Text())
	_, set := fake.options["model"]
	assert.False(t, set, "model is only overridden per request")
}
