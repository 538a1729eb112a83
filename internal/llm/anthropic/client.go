// Package anthropic serves Claude models through the Messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	apperrors "ChainAgent/internal/errors"
	"ChainAgent/internal/llm"
	"ChainAgent/internal/tool"
)

const defaultMaxTokens = 4096

func init() {
	llm.RegisterFactory("claude", New)
	llm.RegisterFactory("anthropic", New)
}

// Client talks to the Anthropic Messages API.
type Client struct {
	api     sdk.Client
	model   string
	timeout time.Duration
}

// New builds a Claude client from the shared options.
func New(opts llm.Options) (llm.Client, error) {
	requestOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
	if opts.BaseURL != "" {
		requestOpts = append(requestOpts, option.WithBaseURL(opts.BaseURL))
	}
	model := opts.Model
	if model == "" {
		model = "claude-3-5-sonnet-latest"
	}
	return &Client{
		api:     sdk.NewClient(requestOpts...),
		model:   model,
		timeout: opts.Timeout,
	}, nil
}

func (c *Client) Name() string { return "claude" }

func (c *Client) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	params := sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: defaultMaxTokens,
		Messages:  toMessages(req.Messages),
		Tools:     toTools(req.Tools),
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}

	msg, err := c.api.Messages.New(ctx, params)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeLLMFailure, err, "messages api call")
	}

	out := &llm.ChatResponse{}
	var text strings.Builder
	for _, cb := range msg.Content {
		switch block := cb.AsAny().(type) {
		case sdk.TextBlock:
			text.WriteString(block.Text)
		case sdk.ToolUseBlock:
			args := map[string]any{}
			if len(block.Input) > 0 {
				if err := json.Unmarshal(block.Input, &args); err != nil {
					return nil, apperrors.Wrap(apperrors.CodeLLMFailure, err, "decode tool input",
						apperrors.WithMetadata("tool", block.Name))
				}
			}
			out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: args,
			})
		}
	}
	out.Content = text.String()
	return out, nil
}

func toMessages(messages []llm.Message) []sdk.MessageParam {
	out := make([]sdk.MessageParam, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case llm.RoleAssistant:
			blocks := make([]sdk.ContentBlockParamUnion, 0, 1+len(m.ToolCalls))
			if m.Content != "" {
				blocks = append(blocks, sdk.NewTextBlock(m.Content))
			}
			for _, call := range m.ToolCalls {
				blocks = append(blocks, sdk.ContentBlockParamUnion{
					OfToolUse: &sdk.ToolUseBlockParam{
						ID:    call.ID,
						Name:  call.Name,
						Input: call.Arguments,
					},
				})
			}
			out = append(out, sdk.NewAssistantMessage(blocks...))
		case llm.RoleTool:
			out = append(out, sdk.NewUserMessage(sdk.ContentBlockParamUnion{
				OfToolResult: &sdk.ToolResultBlockParam{
					ToolUseID: m.ToolCallID,
					Content: []sdk.ToolResultBlockParamContentUnion{
						{OfText: &sdk.TextBlockParam{Text: m.Content}},
					},
				},
			}))
		default:
			out = append(out, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		}
	}
	return out
}

func toTools(descriptors []tool.Descriptor) []sdk.ToolUnionParam {
	out := make([]sdk.ToolUnionParam, 0, len(descriptors))
	for _, d := range descriptors {
		schema := sdk.ToolInputSchemaParam{}
		if d.InputSchema != nil {
			if props, ok := d.InputSchema["properties"]; ok {
				schema.Properties = props
			}
			if required, ok := d.InputSchema["required"].([]any); ok {
				for _, field := range required {
					if name, ok := field.(string); ok {
						schema.Required = append(schema.Required, name)
					}
				}
			}
		}
		out = append(out, sdk.ToolUnionParam{
			OfTool: &sdk.ToolParam{
				Name:        d.Name,
				Description: sdk.String(d.Description),
				InputSchema: schema,
			},
		})
	}
	return out
}
