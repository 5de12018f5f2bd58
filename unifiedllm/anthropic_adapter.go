package unifiedllm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const anthropicAPIVersion = "2023-06-01"

// AnthropicAdapter talks to the Anthropic Messages API through the official
// SDK. Content blocks map one to one, so tool_use and tool_result survive the
// round trip without text parsing.
type AnthropicAdapter struct {
	client      anthropic.Client
	httpClient  *http.Client
	apiKey      string
	model       string
	maxTokens   int
	temperature *float64
}

// AnthropicOption configures an AnthropicAdapter.
type AnthropicOption func(*anthropicConfig)

type anthropicConfig struct {
	baseURL    string
	model      string
	maxTokens   int
	temperature *float64
	httpClient  *http.Client
}

// WithBaseURL points the adapter at a different API endpoint.
func WithBaseURL(url string) AnthropicOption {
	return func(c *anthropicConfig) {
		c.baseURL = url
	}
}

// WithAnthropicModel sets the model used when a request leaves Model empty.
func WithAnthropicModel(model string) AnthropicOption {
	return func(c *anthropicConfig) {
		c.model = model
	}
}

// WithAnthropicMaxTokens sets the token budget used when a request leaves
// MaxTokens unset.
func WithAnthropicMaxTokens(n int) AnthropicOption {
	return func(c *anthropicConfig) {
		c.maxTokens = n
	}
}

// WithAnthropicTemperature sets the sampling temperature. Without it the
// API default applies.
func WithAnthropicTemperature(t float64) AnthropicOption {
	return func(c *anthropicConfig) {
		c.temperature = &t
	}
}

// WithHTTPClient overrides the HTTP client used by the SDK.
func WithHTTPClient(hc *http.Client) AnthropicOption {
	return func(c *anthropicConfig) {
		c.httpClient = hc
	}
}

// NewAnthropicAdapter creates an adapter. An empty apiKey is accepted here and
// reported by Initialize, so the failure happens per request rather than at
// startup.
func NewAnthropicAdapter(apiKey string, opts ...AnthropicOption) *AnthropicAdapter {
	cfg := &anthropicConfig{maxTokens: 4096}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.httpClient == nil {
		cfg.httpClient = &http.Client{}
	}
	if cfg.model == "" {
		if info := GetLatestModel("anthropic", "tools"); info != nil {
			cfg.model = info.ID
		}
	}

	// Retries stay off: the only rate-limit policy is the fixed pre-call delay.
	sdkOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
		option.WithHTTPClient(cfg.httpClient),
	}
	if cfg.baseURL != "" {
		sdkOpts = append(sdkOpts, option.WithBaseURL(cfg.baseURL))
	}

	return &AnthropicAdapter{
		client:      anthropic.NewClient(sdkOpts...),
		httpClient:  cfg.httpClient,
		apiKey:      apiKey,
		model:       cfg.model,
		maxTokens:   cfg.maxTokens,
		temperature: cfg.temperature,
	}
}

// Name returns the provider identifier.
func (a *AnthropicAdapter) Name() string { return "anthropic" }

// Initialize fails when no credential is configured.
func (a *AnthropicAdapter) Initialize() error {
	if strings.TrimSpace(a.apiKey) == "" {
		return NewConfigurationError("ANTHROPIC_API_KEY is not set")
	}
	return nil
}

// Close drops idle keep-alive connections.
func (a *AnthropicAdapter) Close() error {
	a.httpClient.CloseIdleConnections()
	return nil
}

// RedactedHeaders describes the authentication headers without the secret.
func (a *AnthropicAdapter) RedactedHeaders() map[string]string {
	return map[string]string{
		"x-api-key":         RedactedPlaceholder,
		"anthropic-version": anthropicAPIVersion,
		"content-type":      "application/json",
	}
}

// Complete sends one Messages API call.
func (a *AnthropicAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := a.Initialize(); err != nil {
		return nil, err
	}

	params := a.translateRequest(req)
	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, a.translateError(err)
	}
	return a.buildResponse(msg), nil
}

func (a *AnthropicAdapter) translateRequest(req Request) anthropic.MessageNewParams {
	model := req.Model
	if model == "" {
		model = a.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = a.maxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages:  toAnthropicMessages(req.Messages),
	}
	if a.temperature != nil {
		params.Temperature = anthropic.Float(*a.temperature)
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if len(req.ToolDefs) > 0 {
		params.Tools = toAnthropicTools(req.ToolDefs)
	}
	return params
}

func toAnthropicMessages(messages []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.Content))
		for _, part := range msg.Content {
			switch part.Kind {
			case ContentText:
				if part.Text != "" {
					blocks = append(blocks, anthropic.NewTextBlock(part.Text))
				}
			case ContentToolUse:
				if part.ToolUse == nil {
					continue
				}
				input := part.ToolUse.Input
				if len(input) == 0 {
					input = json.RawMessage(`{}`)
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(part.ToolUse.ID, input, part.ToolUse.Name))
			case ContentToolResult:
				if part.ToolResult == nil {
					continue
				}
				blocks = append(blocks, anthropic.NewToolResultBlock(
					part.ToolResult.ToolUseID, part.ToolResult.Content, part.ToolResult.IsError))
			}
		}
		if len(blocks) == 0 {
			continue
		}
		if msg.Role == RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		} else {
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
	}
	return out
}

func toAnthropicTools(defs []ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		param := anthropic.ToolParam{
			Name:        def.Name,
			Description: anthropic.String(def.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: def.Parameters["properties"],
				Required:   requiredFields(def.Parameters["required"]),
			},
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &param})
	}
	return out
}

func requiredFields(v interface{}) []string {
	switch typed := v.(type) {
	case []string:
		return typed
	case []interface{}:
		out := make([]string, 0, len(typed))
		for _, item := range typed {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func (a *AnthropicAdapter) buildResponse(msg *anthropic.Message) *Response {
	parts := make([]ContentPart, 0, len(msg.Content))
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			parts = append(parts, TextPart(block.Text))
		case "tool_use":
			input := json.RawMessage(block.Input)
			if len(input) == 0 {
				input = json.RawMessage(`{}`)
			}
			parts = append(parts, ToolUsePart(block.ID, block.Name, input))
		}
	}

	resp := &Response{
		ID:         msg.ID,
		Model:      string(msg.Model),
		Provider:   a.Name(),
		Message:    Message{Role: RoleAssistant, Content: parts},
		StopReason: string(msg.StopReason),
		Usage: Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
			TotalTokens:  int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}
	if raw := msg.RawJSON(); raw != "" && json.Valid([]byte(raw)) {
		resp.Raw = json.RawMessage(raw)
	}
	return resp
}

// translateError converts SDK errors into the transport error hierarchy.
func (a *AnthropicAdapter) translateError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		body := apiErr.RawJSON()
		if body == "" {
			body = apiErr.Error()
		}
		return ErrorFromStatusCode(a.Name(), apiErr.StatusCode, body)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &SDKError{Message: "request cancelled", Cause: err}
	}
	return &NetworkError{SDKError: SDKError{Message: "anthropic request failed", Cause: err}}
}
