// Package llm abstracts the chat-completion providers the daemon falls back
// to when no intent rule matches. Providers receive a function catalog with
// JSON-schema parameters; the daemon consumes tool-call selections and
// dispatches them to its handlers.
package llm

import (
	"context"
	"encoding/json"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"` // user, assistant
	Content string `json:"content"`
}

// CompletionRequest holds parameters for a completion.
type CompletionRequest struct {
	Messages    []Message `json:"messages"`
	Model       string    `json:"model,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	System      string    `json:"system,omitempty"`
}

// CompletionResponse holds the provider's reply.
type CompletionResponse struct {
	Content      string     `json:"content"`
	Model        string     `json:"model"`
	InputTokens  int        `json:"input_tokens"`
	OutputTokens int        `json:"output_tokens"`
	StopReason   string     `json:"stop_reason"` // "tool_use" when ToolCalls is set
	ToolCalls    []ToolCall `json:"tool_calls,omitempty"`
}

// ToolDefinition describes a callable function with JSON-schema parameters.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// ToolCall is the provider requesting a function execution. Input carries the
// raw JSON arguments; per the provider contract they match the declared
// schema but are not independently validated here.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResult is the outcome of executing a requested function.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error"`
}

// ContentBlock is one element of a tool-conversation message.
type ContentBlock struct {
	Type       string      `json:"type"` // text, tool_use, tool_result
	Text       string      `json:"text,omitempty"`
	ToolCall   *ToolCall   `json:"tool_call,omitempty"`
	ToolResult *ToolResult `json:"tool_result,omitempty"`
}

// ToolMessage is one turn of the tool-use conversation appended after the
// initial messages.
type ToolMessage struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// Provider is a chat-completion backend with function calling.
type Provider interface {
	// Name returns the provider identifier ("anthropic", "openai").
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	CompleteWithTools(ctx context.Context, req CompletionRequest, tools []ToolDefinition, toolMessages []ToolMessage) (*CompletionResponse, error)
}

// ProviderError is a provider-level failure.
type ProviderError struct {
	Message    string
	StatusCode int
	Provider   string
}

func (e *ProviderError) Error() string {
	if e.Provider != "" {
		return e.Provider + ": " + e.Message
	}
	return e.Message
}
