package tool

import "context"

// Descriptor advertises one callable tool to the model.
type Descriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
	Provider    string         `json:"-"`
}

// CallRequest is one tool invocation requested by the model.
type CallRequest struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// CallResult is the outcome of one invocation. Failures are data, not errors:
// the conversation loop feeds them back to the model.
type CallResult struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Success bool   `json:"success"`
	Content string `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

// AgentContext carries per-turn identity into tool execution.
type AgentContext struct {
	SessionID     string
	WalletAddress string
	Chain         string
}

// Transport is a live connection to a tool provider. Implementations are not
// required to be safe for concurrent use; the pool hands a transport to one
// caller at a time.
type Transport interface {
	// Invoke runs a tool call and returns its raw result value.
	Invoke(ctx context.Context, req CallRequest, actx AgentContext) (any, error)
	// Ping checks transport health before reuse.
	Ping(ctx context.Context) error
	// Close releases the connection.
	Close() error
}

// Provider owns a set of tools and knows how to open transports to them.
type Provider interface {
	// Key uniquely identifies the provider inside the pool.
	Key() string
	// Descriptors lists the tools this provider serves.
	Descriptors() []Descriptor
	// Dial opens a fresh transport.
	Dial(ctx context.Context) (Transport, error)
}
