package unifiedllm

import "context"

// ProviderAdapter is the interface every provider backend must implement.
type ProviderAdapter interface {
	// Name returns the provider identifier (e.g. "anthropic", "openai").
	Name() string

	// Complete sends a blocking request and returns the full response.
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Optional adapter methods.

// Closer is implemented by adapters that hold resources.
type Closer interface {
	Close() error
}

// Initializer is implemented by adapters that validate their configuration
// (credentials, model) before any network traffic.
type Initializer interface {
	Initialize() error
}

// HeaderRedactor is implemented by adapters that can describe the headers
// they send with secrets replaced by RedactedPlaceholder.
type HeaderRedactor interface {
	RedactedHeaders() map[string]string
}

// RedactedPlaceholder replaces credential values in audit snapshots.
const RedactedPlaceholder = "[REDACTED]"
