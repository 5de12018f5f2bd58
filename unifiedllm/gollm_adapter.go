package unifiedllm

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/teilomillet/gollm"
)

// GollmAdapter wraps a gollm.LLM instance and implements ProviderAdapter for
// providers without a native adapter (openai, groq, ollama, ...).
// gollm returns plain text, so tool calls are recovered from a JSON array of
// {"name", "input"} objects embedded in the reply.
type GollmAdapter struct {
	provider string
	apiKey   string
	llm      gollm.LLM
	model    string
}

// GollmAdapterOption configures a GollmAdapter.
type GollmAdapterOption func(*gollmAdapterConfig)

type gollmAdapterConfig struct {
	model       string
	maxTokens   int
	temperature float64
}

// WithModel sets the default model for the adapter.
func WithModel(model string) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.model = model
	}
}

// WithMaxTokens sets the default max tokens.
func WithMaxTokens(n int) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.maxTokens = n
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.temperature = t
	}
}

// NewGollmAdapter creates a new GollmAdapter for the given provider.
func NewGollmAdapter(provider string, apiKey string, opts ...GollmAdapterOption) (*GollmAdapter, error) {
	cfg := &gollmAdapterConfig{
		maxTokens:   4096,
		temperature: 0.7,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	model := cfg.model
	if model == "" {
		if info := GetLatestModel(provider, ""); info != nil {
			model = info.ID
		} else {
			model = "gpt-4o-mini"
		}
	}

	gollmOpts := []gollm.ConfigOption{
		gollm.SetProvider(provider),
		gollm.SetModel(model),
		gollm.SetMaxTokens(cfg.maxTokens),
		gollm.SetTemperature(cfg.temperature),
		gollm.SetMaxRetries(0), // the fixed pre-call delay is the only policy
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if apiKey != "" {
		gollmOpts = append(gollmOpts, gollm.SetAPIKey(apiKey))
	}

	llm, err := gollm.NewLLM(gollmOpts...)
	if err != nil {
		return nil, NewConfigurationError("failed to create gollm LLM for provider %s: %v", provider, err)
	}

	return &GollmAdapter{
		provider: provider,
		apiKey:   apiKey,
		llm:      llm,
		model:    model,
	}, nil
}

// NewGollmAdapterFromLLM wraps an already configured gollm.LLM. model is
// reported when a request leaves Model empty.
func NewGollmAdapterFromLLM(provider, apiKey, model string, llm gollm.LLM) *GollmAdapter {
	return &GollmAdapter{
		provider: provider,
		apiKey:   apiKey,
		llm:      llm,
		model:    model,
	}
}

// Name returns the provider identifier.
func (a *GollmAdapter) Name() string {
	return a.provider
}

// Initialize fails when a hosted provider has no credential. Local providers
// (ollama) need none.
func (a *GollmAdapter) Initialize() error {
	if a.llm == nil {
		return NewConfigurationError("provider %s has no model client", a.provider)
	}
	if a.provider != "ollama" && strings.TrimSpace(a.apiKey) == "" {
		return NewConfigurationError("API key for provider %s is not set", a.provider)
	}
	return nil
}

// RedactedHeaders describes the bearer header gollm sends.
func (a *GollmAdapter) RedactedHeaders() map[string]string {
	return map[string]string{
		"authorization": "Bearer " + RedactedPlaceholder,
	}
}

// Complete sends a blocking request and returns the full response.
func (a *GollmAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	prompt := a.translateRequest(req)
	a.applyRequestOptions(req)

	text, err := a.llm.Generate(ctx, prompt)
	if err != nil {
		return nil, a.translateError(err)
	}
	return a.buildResponse(req, text), nil
}

// translateRequest flattens the conversation into a single gollm Prompt.
func (a *GollmAdapter) translateRequest(req Request) *gollm.Prompt {
	var parts []string
	for _, msg := range req.Messages {
		for _, part := range msg.Content {
			switch part.Kind {
			case ContentText:
				if part.Text == "" {
					continue
				}
				if msg.Role == RoleAssistant {
					parts = append(parts, "[Assistant]: "+part.Text)
				} else {
					parts = append(parts, part.Text)
				}
			case ContentToolUse:
				if part.ToolUse != nil {
					parts = append(parts, fmt.Sprintf("[Tool Call %s]: %s %s", part.ToolUse.ID, part.ToolUse.Name, string(part.ToolUse.Input)))
				}
			case ContentToolResult:
				if part.ToolResult != nil {
					prefix := "[Tool Result]"
					if part.ToolResult.IsError {
						prefix = "[Tool Error]"
					}
					parts = append(parts, prefix+": "+part.ToolResult.Content)
				}
			}
		}
	}

	promptText := strings.Join(parts, "\n")
	if promptText == "" {
		promptText = "Hello"
	}

	var promptOpts []gollm.PromptOption
	system := req.System
	if len(req.ToolDefs) > 0 {
		system = strings.TrimSpace(system + "\n\n" + toolCallInstructions)
	}
	if system != "" {
		promptOpts = append(promptOpts, gollm.WithSystemPrompt(system, gollm.CacheTypeEphemeral))
	}
	if req.MaxTokens > 0 {
		promptOpts = append(promptOpts, gollm.WithMaxLength(req.MaxTokens))
	}
	if len(req.ToolDefs) > 0 {
		tools := make([]gollm.Tool, 0, len(req.ToolDefs))
		for _, t := range req.ToolDefs {
			tools = append(tools, gollm.Tool{
				Type: "function",
				Function: gollm.Function{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.Parameters,
				},
			})
		}
		promptOpts = append(promptOpts, gollm.WithTools(tools), gollm.WithToolChoice("auto"))
	}

	return gollm.NewPrompt(promptText, promptOpts...)
}

const toolCallInstructions = `To call a tool, end your reply with a JSON array such as [{"name": "read_file", "input": {"filepath": "main.py"}}].`

// applyRequestOptions applies request-level parameters to the gollm LLM.
func (a *GollmAdapter) applyRequestOptions(req Request) {
	if req.Model != "" {
		a.llm.SetOption("model", req.Model)
	}
	if req.MaxTokens > 0 {
		a.llm.SetOption("max_tokens", req.MaxTokens)
	}
}

// buildResponse constructs a unified Response from the generated text.
func (a *GollmAdapter) buildResponse(req Request, text string) *Response {
	model := req.Model
	if model == "" {
		model = a.model
	}

	var parts []ContentPart
	cleaned := text
	if len(req.ToolDefs) > 0 {
		var calls []ToolUseData
		calls, cleaned = parseToolCalls(text)
		for i := range calls {
			parts = append(parts, ContentPart{Kind: ContentToolUse, ToolUse: &calls[i]})
		}
	}
	if cleaned != "" {
		parts = append([]ContentPart{TextPart(cleaned)}, parts...)
	}

	stop := "end_turn"
	if len(parts) > 0 && parts[len(parts)-1].Kind == ContentToolUse {
		stop = "tool_use"
	}

	raw, _ := json.Marshal(map[string]string{"text": text})
	return &Response{
		ID:         "resp_" + uuid.New().String()[:8],
		Model:      model,
		Provider:   a.provider,
		Message:    Message{Role: RoleAssistant, Content: parts},
		StopReason: stop,
		Usage: Usage{
			// gollm does not expose usage; estimate from text length.
			InputTokens:  estimateTokens(req),
			OutputTokens: len(text) / 4,
			TotalTokens:  estimateTokens(req) + len(text)/4,
		},
		Raw: raw,
	}
}

// parseToolCalls extracts a trailing JSON array of tool calls from text and
// returns the calls plus the text before the array.
func parseToolCalls(text string) ([]ToolUseData, string) {
	start := strings.Index(text, `[{"name"`)
	if start == -1 {
		return nil, strings.TrimSpace(text)
	}

	var rawCalls []struct {
		Name  string          `json:"name"`
		Input json.RawMessage `json:"input"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(text[start:])), &rawCalls); err != nil {
		return nil, strings.TrimSpace(text)
	}

	calls := make([]ToolUseData, 0, len(rawCalls))
	for _, rc := range rawCalls {
		input := rc.Input
		if len(input) == 0 {
			input = json.RawMessage(`{}`)
		}
		calls = append(calls, ToolUseData{
			ID:    "toolu_" + uuid.New().String()[:8],
			Name:  rc.Name,
			Input: input,
		})
	}
	return calls, strings.TrimSpace(text[:start])
}

var statusPattern = regexp.MustCompile(`\b([45]\d\d)\b`)

// translateError converts a gollm error into the transport error hierarchy.
// gollm only surfaces messages, so the HTTP status is recovered from the text.
func (a *GollmAdapter) translateError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if m := statusPattern.FindStringSubmatch(msg); m != nil {
		code, _ := strconv.Atoi(m[1])
		return ErrorFromStatusCode(a.provider, code, msg)
	}
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "unauthorized") || strings.Contains(lower, "invalid api key"):
		return ErrorFromStatusCode(a.provider, 401, msg)
	case strings.Contains(lower, "rate limit"):
		return ErrorFromStatusCode(a.provider, 429, msg)
	default:
		return &NetworkError{SDKError: SDKError{Message: fmt.Sprintf("%s request failed", a.provider), Cause: err}}
	}
}

// estimateTokens provides a rough token count estimate from request messages.
func estimateTokens(req Request) int {
	total := 0
	for _, msg := range req.Messages {
		for _, part := range msg.Content {
			if part.Kind == ContentText {
				total += len(part.Text) / 4
			}
		}
	}
	if total == 0 {
		total = 10
	}
	return total
}
