// Package unifiedllm is the model transport used by the agent. It presents
// a provider-agnostic request/response shape built from content blocks (text,
// tool_use, tool_result) and routes each request to a registered adapter.
//
// # Architecture
//
//   - Shared types: Request, Response, Message and the ContentPart union
//   - Adapters: AnthropicAdapter (official SDK) and GollmAdapter (any
//     provider gollm supports)
//   - Client: provider routing, credential checks and middleware
//   - FixedDelay: the constant pre-call pause applied to every request
//
// # Usage
//
//	adapter := unifiedllm.NewAnthropicAdapter(os.Getenv("ANTHROPIC_API_KEY"))
//	client := unifiedllm.NewClient(
//	    unifiedllm.WithProvider("anthropic", adapter),
//	    unifiedllm.WithMiddleware(unifiedllm.FixedDelay(unifiedllm.DefaultRequestDelay)),
//	)
//
//	resp, err := client.Complete(ctx, unifiedllm.Request{
//	    Model:     "claude-sonnet-4-5",
//	    MaxTokens: 4096,
//	    Messages:  []unifiedllm.Message{unifiedllm.UserMessage("Hello")},
//	})
//	texts, calls := resp.Partition()
//
// # Errors
//
// A missing credential is reported as a ConfigurationError before any
// middleware runs. Non-success HTTP statuses become TransportError with the
// status and body; connection failures become NetworkError. Nothing retries.
//
// # Audit snapshots
//
// Client.Snapshot produces a RequestSnapshot whose headers come from the
// adapter's RedactedHeaders, so the credential value never reaches it.
package unifiedllm
