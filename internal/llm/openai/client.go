// Package openai serves every OpenAI-compatible chat endpoint: OpenAI itself
// plus DeepSeek and Qwen via their compatibility base URLs.
package openai

import (
	"context"
	"encoding/json"
	"time"

	gopenai "github.com/sashabaranov/go-openai"

	apperrors "ChainAgent/internal/errors"
	"ChainAgent/internal/llm"
	"ChainAgent/internal/tool"
)

func init() {
	llm.RegisterFactory("openai", func(opts llm.Options) (llm.Client, error) {
		return newClient(opts, "", "gpt-4o-mini")
	})
	llm.RegisterFactory("deepseek", func(opts llm.Options) (llm.Client, error) {
		return newClient(opts, "https://api.deepseek.com/v1", "deepseek-chat")
	})
	llm.RegisterFactory("qwen", func(opts llm.Options) (llm.Client, error) {
		return newClient(opts, "https://dashscope.aliyuncs.com/compatible-mode/v1", "qwen-plus")
	})
}

// Client speaks the OpenAI chat completion protocol.
type Client struct {
	name    string
	api     *gopenai.Client
	model   string
	timeout time.Duration
}

func newClient(opts llm.Options, defaultBaseURL, defaultModel string) (*Client, error) {
	cfg := gopenai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	} else if defaultBaseURL != "" {
		cfg.BaseURL = defaultBaseURL
	}
	model := opts.Model
	if model == "" {
		model = defaultModel
	}
	return &Client{
		name:    opts.Provider,
		api:     gopenai.NewClientWithConfig(cfg),
		model:   model,
		timeout: opts.Timeout,
	}, nil
}

func (c *Client) Name() string { return c.name }

func (c *Client) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	resp, err := c.api.CreateChatCompletion(ctx, gopenai.ChatCompletionRequest{
		Model:    c.model,
		Messages: toChatMessages(req),
		Tools:    toTools(req.Tools),
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeLLMFailure, err, "chat completion",
			apperrors.WithMetadata("provider", c.name))
	}
	if len(resp.Choices) == 0 {
		return nil, apperrors.New(apperrors.CodeLLMFailure, "model returned no choices")
	}
	return fromChoice(resp.Choices[0].Message)
}

func toChatMessages(req llm.ChatRequest) []gopenai.ChatCompletionMessage {
	out := make([]gopenai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		out = append(out, gopenai.ChatCompletionMessage{
			Role:    gopenai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, m := range req.Messages {
		msg := gopenai.ChatCompletionMessage{Content: m.Content}
		switch m.Role {
		case llm.RoleAssistant:
			msg.Role = gopenai.ChatMessageRoleAssistant
			for _, call := range m.ToolCalls {
				args, _ := json.Marshal(call.Arguments)
				msg.ToolCalls = append(msg.ToolCalls, gopenai.ToolCall{
					ID:   call.ID,
					Type: gopenai.ToolTypeFunction,
					Function: gopenai.FunctionCall{
						Name:      call.Name,
						Arguments: string(args),
					},
				})
			}
		case llm.RoleTool:
			msg.Role = gopenai.ChatMessageRoleTool
			msg.ToolCallID = m.ToolCallID
		case llm.RoleSystem:
			msg.Role = gopenai.ChatMessageRoleSystem
		default:
			msg.Role = gopenai.ChatMessageRoleUser
		}
		out = append(out, msg)
	}
	return out
}

func toTools(descriptors []tool.Descriptor) []gopenai.Tool {
	out := make([]gopenai.Tool, 0, len(descriptors))
	for _, d := range descriptors {
		out = append(out, gopenai.Tool{
			Type: gopenai.ToolTypeFunction,
			Function: &gopenai.FunctionDefinition{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.InputSchema,
			},
		})
	}
	return out
}

func fromChoice(msg gopenai.ChatCompletionMessage) (*llm.ChatResponse, error) {
	out := &llm.ChatResponse{Content: msg.Content}
	for _, call := range msg.ToolCalls {
		args := map[string]any{}
		if call.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
				return nil, apperrors.Wrap(apperrors.CodeLLMFailure, err, "decode tool call arguments",
					apperrors.WithMetadata("tool", call.Function.Name))
			}
		}
		out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: args,
		})
	}
	return out, nil
}
