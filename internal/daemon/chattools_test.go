package daemon

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/atrium-labs/atrium/internal/llm"
)

// scriptedProvider plays back a fixed sequence of completions.
type scriptedProvider struct {
	responses []*llm.CompletionResponse
	requests  []llm.CompletionRequest
	toolMsgs  [][]llm.ToolMessage
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return p.next(req, nil)
}

func (p *scriptedProvider) CompleteWithTools(_ context.Context, req llm.CompletionRequest, _ []llm.ToolDefinition, toolMessages []llm.ToolMessage) (*llm.CompletionResponse, error) {
	return p.next(req, toolMessages)
}

func (p *scriptedProvider) next(req llm.CompletionRequest, toolMessages []llm.ToolMessage) (*llm.CompletionResponse, error) {
	p.requests = append(p.requests, req)
	p.toolMsgs = append(p.toolMsgs, toolMessages)
	resp := p.responses[0]
	if len(p.responses) > 1 {
		p.responses = p.responses[1:]
	}
	return resp, nil
}

func TestRunToolLoopDirectAnswer(t *testing.T) {
	vendor := newFakeVendor()
	d := testDaemon(t, vendor)
	d.provider = &scriptedProvider{responses: []*llm.CompletionResponse{
		{Content: "Just an answer.", StopReason: "end_turn"},
	}}

	reply := d.fallbackLLM(context.Background(), "c1", "hello there")
	if reply != "Just an answer." {
		t.Errorf("reply = %q, want the provider's text", reply)
	}
}

func TestRunToolLoopExecutesTool(t *testing.T) {
	vendor := newFakeVendor()
	d := testDaemon(t, vendor)
	provider := &scriptedProvider{responses: []*llm.CompletionResponse{
		{
			StopReason: "tool_use",
			ToolCalls: []llm.ToolCall{{
				ID:    "call-1",
				Name:  "get_telemetry",
				Input: json.RawMessage(`{"location":"room 50 on floor 2","metric":"temperature"}`),
			}},
		},
		{Content: "It is 21.5 degrees.", StopReason: "end_turn"},
	}}
	d.provider = provider

	reply := d.fallbackLLM(context.Background(), "c1", "how warm is it in room 50?")
	if reply != "It is 21.5 degrees." {
		t.Fatalf("reply = %q", reply)
	}

	// Second call carries the assistant tool_use turn and the tool_result turn.
	last := provider.toolMsgs[len(provider.toolMsgs)-1]
	if len(last) != 2 {
		t.Fatalf("got %d tool messages, want 2", len(last))
	}
	if last[0].Role != "assistant" || last[1].Role != "user" {
		t.Errorf("tool message roles = %s/%s, want assistant/user", last[0].Role, last[1].Role)
	}
	result := last[1].Content[0].ToolResult
	if result == nil || result.IsError {
		t.Fatalf("tool result = %+v, want success", result)
	}
	if !strings.Contains(result.Content, "21.5") {
		t.Errorf("tool result %q does not carry the reading", result.Content)
	}
}

func TestRunToolLoopToolErrorFedBack(t *testing.T) {
	vendor := newFakeVendor()
	d := testDaemon(t, vendor)
	provider := &scriptedProvider{responses: []*llm.CompletionResponse{
		{
			StopReason: "tool_use",
			ToolCalls: []llm.ToolCall{{
				ID:    "call-1",
				Name:  "set_temperature",
				Input: json.RawMessage(`{"location":"room 50 on floor 2","value":40}`),
			}},
		},
		{Content: "That setpoint is out of range.", StopReason: "end_turn"},
	}}
	d.provider = provider

	reply := d.fallbackLLM(context.Background(), "c1", "crank room 50 to 40 degrees")
	if reply != "That setpoint is out of range." {
		t.Fatalf("reply = %q", reply)
	}

	last := provider.toolMsgs[len(provider.toolMsgs)-1]
	result := last[1].Content[0].ToolResult
	if result == nil || !result.IsError {
		t.Fatalf("tool result = %+v, want error", result)
	}
	if !strings.Contains(result.Content, "28") {
		t.Errorf("error result %q does not cite the violated bound", result.Content)
	}
	if len(vendor.writes) != 0 {
		t.Errorf("out-of-range tool call reached the vendor API: %v", vendor.writes)
	}
}

func TestRunToolLoopTurnBound(t *testing.T) {
	vendor := newFakeVendor()
	d := testDaemon(t, vendor)
	// A provider that never stops asking for tools.
	d.provider = &scriptedProvider{responses: []*llm.CompletionResponse{
		{
			StopReason: "tool_use",
			ToolCalls: []llm.ToolCall{{
				ID:    "call-loop",
				Name:  "list_devices",
				Input: json.RawMessage(`{}`),
			}},
		},
	}}

	reply := d.fallbackLLM(context.Background(), "c1", "loop forever")
	if !strings.Contains(reply, "didn't work") {
		t.Errorf("unbounded tool loop reply = %q, want a failure message", reply)
	}
}

func TestLLMRequestDefaults(t *testing.T) {
	req := llmRequest(LLMConfig{Model: "m"}, "system text", nil, "hi")
	if req.MaxTokens != defaultMaxTokens {
		t.Errorf("MaxTokens = %d, want default %d", req.MaxTokens, defaultMaxTokens)
	}
	if req.Temperature != defaultTemperature {
		t.Errorf("Temperature = %g, want default %g", req.Temperature, defaultTemperature)
	}
	if len(req.Messages) != 1 || req.Messages[0].Content != "hi" {
		t.Errorf("Messages = %+v", req.Messages)
	}
	if req.System != "system text" {
		t.Errorf("System = %q", req.System)
	}

	req = llmRequest(LLMConfig{MaxTokens: 99, Temperature: 0.1}, "", nil, "hi")
	if req.MaxTokens != 99 || req.Temperature != 0.1 {
		t.Errorf("configured values not honored: %+v", req)
	}
}

func TestHistoryWindowExcludesCurrentTurn(t *testing.T) {
	vendor := newFakeVendor()
	d := testDaemon(t, vendor)
	ctx := context.Background()

	d.appendTurn(ctx, "c1", "user", "earlier question")
	d.appendTurn(ctx, "c1", "assistant", "earlier answer")
	d.appendTurn(ctx, "c1", "user", "current question")

	window := d.historyWindow(ctx, "c1")
	if len(window) != 2 {
		t.Fatalf("window = %d messages, want 2", len(window))
	}
	if window[1].Content != "earlier answer" {
		t.Errorf("window ends with %q, want the prior assistant turn", window[1].Content)
	}
}
