package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	apperrors "ChainAgent/internal/errors"
	"ChainAgent/internal/tool"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is one tool invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// Message is one entry in the model transcript. Assistant messages may carry
// tool calls; tool messages carry the id of the call they answer.
type Message struct {
	Role       Role
	Content    string
	ToolCallID string
	ToolCalls  []ToolCall
}

// ChatRequest is a full model invocation: system prompt, transcript and the
// tools the model may call.
type ChatRequest struct {
	System   string
	Messages []Message
	Tools    []tool.Descriptor
}

// ChatResponse is the model's reply. An empty ToolCalls slice is the
// completion signal: the model produced a final answer.
type ChatResponse struct {
	Content   string
	ToolCalls []ToolCall
}

// Client is a chat-completion provider.
type Client interface {
	// Chat runs one model inference.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	// Name identifies the provider for logs.
	Name() string
}

// Options configures a provider built by New.
type Options struct {
	Provider string
	APIKey   string
	BaseURL  string
	Model    string
	Timeout  time.Duration
}

// Factory builds a client from options; the per-provider packages register
// themselves here so this package does not import its implementations.
type Factory func(Options) (Client, error)

var factories = map[string]Factory{}

// RegisterFactory makes a provider available to New. Called from provider
// package init functions.
func RegisterFactory(name string, f Factory) {
	factories[strings.ToLower(name)] = f
}

// New builds the configured provider.
func New(opts Options) (Client, error) {
	if opts.APIKey == "" {
		return nil, apperrors.New(apperrors.CodeInitialization, "llm api key is required")
	}
	factory, ok := factories[strings.ToLower(opts.Provider)]
	if !ok {
		return nil, apperrors.New(apperrors.CodeInitialization,
			fmt.Sprintf("unknown llm provider %q", opts.Provider))
	}
	return factory(opts)
}
