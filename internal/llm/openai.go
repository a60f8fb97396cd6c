package llm

import (
	"context"
	"encoding/json"

	openai "github.com/sashabaranov/go-openai"
)

const defaultOpenAIModel = openai.GPT4oMini

// OpenAIProvider implements Provider over the OpenAI chat-completions API.
// A custom base URL supports OpenAI-compatible backends.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAI creates an OpenAI provider. baseURL may be empty for the default
// endpoint.
func NewOpenAI(apiKey, baseURL, model string) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAIProvider{client: openai.NewClientWithConfig(cfg), model: model}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	return p.CompleteWithTools(ctx, req, nil, nil)
}

func (p *OpenAIProvider) CompleteWithTools(ctx context.Context, req CompletionRequest, tools []ToolDefinition, toolMessages []ToolMessage) (*CompletionResponse, error) {
	var messages []openai.ChatCompletionMessage
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, toolMessagesToOpenAI(toolMessages)...)

	var oaTools []openai.Tool
	for _, t := range tools {
		oaTools = append(oaTools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters: map[string]any{
					"type":       "object",
					"properties": t.InputSchema,
				},
			},
		})
	}

	model := req.Model
	if model == "" {
		model = p.model
	}
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Tools:       oaTools,
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
	})
	if err != nil {
		return nil, &ProviderError{Message: err.Error(), Provider: p.Name()}
	}
	if len(resp.Choices) == 0 {
		return nil, &ProviderError{Message: "no completion choices returned", Provider: p.Name()}
	}

	choice := resp.Choices[0]
	out := &CompletionResponse{
		Content:      choice.Message.Content,
		Model:        resp.Model,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		StopReason:   string(choice.FinishReason),
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: json.RawMessage(tc.Function.Arguments),
		})
	}
	// Normalize the stop reason so the tool loop sees one spelling.
	if len(out.ToolCalls) > 0 {
		out.StopReason = "tool_use"
	}
	return out, nil
}

// toolMessagesToOpenAI flattens our provider-neutral tool conversation into
// OpenAI's message shape: assistant messages carry tool_calls, results become
// role=tool messages keyed by tool_call_id.
func toolMessagesToOpenAI(toolMessages []ToolMessage) []openai.ChatCompletionMessage {
	var out []openai.ChatCompletionMessage
	for _, tm := range toolMessages {
		switch tm.Role {
		case "assistant":
			msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant}
			for _, b := range tm.Content {
				switch b.Type {
				case "text":
					msg.Content += b.Text
				case "tool_use":
					if b.ToolCall == nil {
						continue
					}
					msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
						ID:   b.ToolCall.ID,
						Type: openai.ToolTypeFunction,
						Function: openai.FunctionCall{
							Name:      b.ToolCall.Name,
							Arguments: string(b.ToolCall.Input),
						},
					})
				}
			}
			out = append(out, msg)
		case "user":
			for _, b := range tm.Content {
				if b.Type != "tool_result" || b.ToolResult == nil {
					continue
				}
				out = append(out, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					ToolCallID: b.ToolResult.ToolCallID,
					Content:    b.ToolResult.Content,
				})
			}
		}
	}
	return out
}
