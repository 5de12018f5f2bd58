package unifiedllm

import (
	"context"
	"sync"
	"time"
)

// CompleteFunc is one step of the request pipeline.
type CompleteFunc func(ctx context.Context, req Request) (*Response, error)

// Middleware wraps a provider call. Middleware registered first sees the
// request first and the response last.
type Middleware func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error)

// Client routes requests to registered adapters. Every request passes a
// credential check and then the middleware chain before it reaches the
// adapter.
type Client struct {
	mu              sync.RWMutex
	adapters        map[string]ProviderAdapter
	defaultProvider string
	middleware      []Middleware
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithProvider registers an adapter under name.
func WithProvider(name string, adapter ProviderAdapter) ClientOption {
	return func(c *Client) {
		c.adapters[name] = adapter
	}
}

// WithDefaultProvider selects the adapter used when a request names none.
func WithDefaultProvider(name string) ClientOption {
	return func(c *Client) {
		c.defaultProvider = name
	}
}

// WithMiddleware appends middleware to the chain.
func WithMiddleware(mw ...Middleware) ClientOption {
	return func(c *Client) {
		c.middleware = append(c.middleware, mw...)
	}
}

// NewClient creates a Client. With a single adapter and no explicit default,
// that adapter becomes the default.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{adapters: make(map[string]ProviderAdapter)}
	for _, opt := range opts {
		opt(c)
	}
	if c.defaultProvider == "" && len(c.adapters) == 1 {
		for name := range c.adapters {
			c.defaultProvider = name
		}
	}
	return c
}

// RegisterProvider adds an adapter after construction. The first adapter
// registered on an empty client becomes the default.
func (c *Client) RegisterProvider(name string, adapter ProviderAdapter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.adapters[name] = adapter
	if c.defaultProvider == "" {
		c.defaultProvider = name
	}
}

// route picks the adapter for req: the named provider, then the default,
// then the catalog entry of the model.
func (c *Client) route(req Request) (ProviderAdapter, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	name := req.Provider
	if name == "" {
		name = c.defaultProvider
	}
	if name == "" {
		if info := GetModelInfo(req.Model); info != nil {
			name = info.Provider
		}
	}
	if name == "" {
		return nil, NewConfigurationError("no provider specified and no default provider configured")
	}
	adapter, ok := c.adapters[name]
	if !ok {
		return nil, NewConfigurationError("provider %q is not registered", name)
	}
	return adapter, nil
}

// Complete sends req and returns the full response. A ConfigurationError
// from the adapter is returned before any middleware runs, so a missing
// credential never waits on the pre-call delay or reaches the network.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	adapter, err := c.route(req)
	if err != nil {
		return nil, err
	}
	if init, ok := adapter.(Initializer); ok {
		if err := init.Initialize(); err != nil {
			return nil, err
		}
	}
	if req.Provider == "" {
		req.Provider = adapter.Name()
	}
	return c.chain(adapter.Complete)(ctx, req)
}

// chain wraps final in the registered middleware.
func (c *Client) chain(final CompleteFunc) CompleteFunc {
	c.mu.RLock()
	mws := make([]Middleware, len(c.middleware))
	copy(mws, c.middleware)
	c.mu.RUnlock()

	handler := final
	for i := len(mws) - 1; i >= 0; i-- {
		mw, next := mws[i], handler
		handler = func(ctx context.Context, r Request) (*Response, error) {
			return mw(ctx, r, next)
		}
	}
	return handler
}

// Snapshot returns an audit-safe copy of req as it would be routed. Header
// values come from the adapter's HeaderRedactor and never include secrets.
// An unroutable request still yields a snapshot, without headers.
func (c *Client) Snapshot(req Request) RequestSnapshot {
	snap := RequestSnapshot{Provider: req.Provider, Body: req, SentAt: time.Now().UTC()}

	adapter, err := c.route(req)
	if err != nil {
		return snap
	}
	if snap.Provider == "" {
		snap.Provider = adapter.Name()
		snap.Body.Provider = adapter.Name()
	}
	if r, ok := adapter.(HeaderRedactor); ok {
		snap.Headers = r.RedactedHeaders()
	}
	return snap
}

// Close releases resources held by the adapters and returns the first error.
func (c *Client) Close() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var firstErr error
	for _, adapter := range c.adapters {
		closer, ok := adapter.(Closer)
		if !ok {
			continue
		}
		if err := closer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
