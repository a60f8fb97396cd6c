package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/atrium-labs/atrium/internal/command"
	"github.com/atrium-labs/atrium/internal/intent"
	"github.com/atrium-labs/atrium/internal/llm"
)

const (
	// maxToolTurns bounds the completion/tool-execution loop per query.
	maxToolTurns = 5
	// maxToolLoopDuration bounds one whole fallback conversation.
	maxToolLoopDuration = 2 * time.Minute
	// maxSingleToolTimeout bounds each individual tool execution.
	maxSingleToolTimeout = 15 * time.Second

	defaultMaxTokens   = 1024
	defaultTemperature = 0.7
)

// fallbackPrompt primes the LLM for queries no intent rule matched. The tools
// expose the same operations the rule handlers perform.
const fallbackPrompt = `You are a building-management assistant. You answer questions about a live building: device telemetry (temperature, humidity, battery, fan speed, energy, air quality), active alarms, maintenance outlook, and you can adjust temperature setpoints and fan speeds.

Use the provided tools to fetch live data or perform changes; never invent readings. Temperature setpoints are limited to 16-28 °C and fan speeds to low/medium/high. When a tool reports an error, relay it to the user plainly. Keep answers short and concrete.`

// llmRequest assembles a completion request from configuration, applying the
// token and temperature defaults when unset.
func llmRequest(cfg LLMConfig, system string, history []llm.Message, userText string) llm.CompletionRequest {
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	temperature := cfg.Temperature
	if temperature <= 0 {
		temperature = defaultTemperature
	}
	messages := make([]llm.Message, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, llm.Message{Role: "user", Content: userText})
	return llm.CompletionRequest{
		Messages:    messages,
		Model:       cfg.Model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		System:      system,
	}
}

// fallbackLLM answers a query no rule matched by handing it to the LLM with
// the tool catalog and the recent conversation window.
func (d *Daemon) fallbackLLM(ctx context.Context, conversationID, message string) string {
	if d.provider == nil {
		return "I'm not sure how to help with that. I can check temperature, humidity, battery levels, fan speed, energy use, air quality and alarms, or change temperature setpoints and fan speeds — for example: \"show temperature in room 50 on floor 2\"."
	}

	history := d.historyWindow(ctx, conversationID)
	req := llmRequest(d.config.LLM, fallbackPrompt, history, message)

	reply, err := d.runToolLoop(ctx, req)
	if err != nil {
		slog.Warn("LLM fallback failed", "conversation", conversationID, "error", err)
		return describeError(err)
	}
	return reply
}

// historyWindow loads the bounded recent transcript, excluding the turn being
// answered (it was appended before dispatch).
func (d *Daemon) historyWindow(ctx context.Context, conversationID string) []llm.Message {
	turns, err := d.store.Recent(ctx, conversationID, d.config.History.MaxTurns)
	if err != nil {
		slog.Warn("history load failed", "conversation", conversationID, "error", err)
		return nil
	}
	if n := len(turns); n > 0 && turns[n-1].Role == "user" {
		turns = turns[:n-1]
	}
	out := make([]llm.Message, 0, len(turns))
	for _, t := range turns {
		out = append(out, llm.Message{Role: t.Role, Content: t.Content})
	}
	return out
}

// runToolLoop drives the completion/tool-execution cycle until the provider
// stops requesting tools or a bound is hit.
func (d *Daemon) runToolLoop(ctx context.Context, req llm.CompletionRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, maxToolLoopDuration)
	defer cancel()

	tools := d.toolCatalog()
	defs := make([]llm.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, t.definition)
	}

	var toolMessages []llm.ToolMessage
	for turn := 0; turn < maxToolTurns; turn++ {
		resp, err := d.provider.CompleteWithTools(ctx, req, defs, toolMessages)
		if err != nil {
			return "", fmt.Errorf("completion: %w", err)
		}

		if resp.StopReason != "tool_use" || len(resp.ToolCalls) == 0 {
			if resp.Content == "" {
				return "I couldn't put together an answer for that. Could you rephrase?", nil
			}
			return resp.Content, nil
		}

		assistantBlocks := make([]llm.ContentBlock, 0, len(resp.ToolCalls)+1)
		if resp.Content != "" {
			assistantBlocks = append(assistantBlocks, llm.ContentBlock{Type: "text", Text: resp.Content})
		}
		resultBlocks := make([]llm.ContentBlock, 0, len(resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			call := call
			assistantBlocks = append(assistantBlocks, llm.ContentBlock{Type: "tool_use", ToolCall: &call})
			result := d.executeToolCall(ctx, tools, call)
			resultBlocks = append(resultBlocks, llm.ContentBlock{Type: "tool_result", ToolResult: &result})
		}
		toolMessages = append(toolMessages,
			llm.ToolMessage{Role: "assistant", Content: assistantBlocks},
			llm.ToolMessage{Role: "user", Content: resultBlocks},
		)
	}
	return "", fmt.Errorf("tool loop exceeded %d turns without a final answer", maxToolTurns)
}

// executeToolCall runs one requested tool under its own timeout. Failures are
// reported back to the model as error results, not surfaced as Go errors.
func (d *Daemon) executeToolCall(ctx context.Context, tools []daemonTool, call llm.ToolCall) llm.ToolResult {
	var tool *daemonTool
	for i := range tools {
		if tools[i].definition.Name == call.Name {
			tool = &tools[i]
			break
		}
	}
	if tool == nil {
		return llm.ToolResult{ToolCallID: call.ID, Content: fmt.Sprintf("unknown tool %q", call.Name), IsError: true}
	}

	toolCtx, cancel := context.WithTimeout(ctx, maxSingleToolTimeout)
	defer cancel()

	start := time.Now()
	content, err := tool.run(toolCtx, call.Input)
	elapsed := time.Since(start).Round(time.Millisecond)
	if err != nil {
		slog.Warn("tool call failed", "tool", call.Name, "elapsed", elapsed, "error", err)
		return llm.ToolResult{ToolCallID: call.ID, Content: describeError(err), IsError: true}
	}
	slog.Info("tool call done", "tool", call.Name, "elapsed", elapsed, "len", len(content))
	return llm.ToolResult{ToolCallID: call.ID, Content: content}
}

// daemonTool pairs a tool definition with its executor.
type daemonTool struct {
	definition llm.ToolDefinition
	run        func(ctx context.Context, input json.RawMessage) (string, error)
}

func stringProp(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func numberProp(desc string) map[string]any {
	return map[string]any{"type": "number", "description": desc}
}

// toolCatalog exposes the rule handlers' operations as LLM-callable functions.
func (d *Daemon) toolCatalog() []daemonTool {
	return []daemonTool{
		{
			definition: llm.ToolDefinition{
				Name:        "get_telemetry",
				Description: "Read the latest value of one metric (temperature, humidity, battery, fan speed, energy, air quality) from a device or room.",
				InputSchema: map[string]any{
					"location": stringProp("Room or device phrase, e.g. \"room 50 on floor 2\""),
					"metric":   stringProp("Metric name: temperature, humidity, battery, fan speed, energy, air quality"),
				},
			},
			run: d.toolGetTelemetry,
		},
		{
			definition: llm.ToolDefinition{
				Name:        "set_temperature",
				Description: "Set the temperature setpoint (16-28 °C) for a room or device.",
				InputSchema: map[string]any{
					"location": stringProp("Room or device phrase"),
					"value":    numberProp("Target temperature in °C, between 16 and 28"),
				},
			},
			run: d.toolSetTemperature,
		},
		{
			definition: llm.ToolDefinition{
				Name:        "set_fan_speed",
				Description: "Set the fan speed for a room or device. Accepts low/medium/high or 0/1/2.",
				InputSchema: map[string]any{
					"location": stringProp("Room or device phrase"),
					"speed":    stringProp("Fan speed: low, medium, high, or 0-2"),
				},
			},
			run: d.toolSetFanSpeed,
		},
		{
			definition: llm.ToolDefinition{
				Name:        "list_devices",
				Description: "List the devices in the building directory with their types and IDs.",
				InputSchema: map[string]any{},
			},
			run: func(ctx context.Context, _ json.RawMessage) (string, error) {
				return d.inventorySummary(ctx)
			},
		},
		{
			definition: llm.ToolDefinition{
				Name:        "get_alarms",
				Description: "List active, unacknowledged alarms, optionally filtered by severity.",
				InputSchema: map[string]any{
					"severity": stringProp("Optional severity filter: CRITICAL, MAJOR, MINOR or WARNING"),
				},
			},
			run: d.toolGetAlarms,
		},
		{
			definition: llm.ToolDefinition{
				Name:        "predict_maintenance",
				Description: "Forecast which devices are likely to need maintenance, based on recent alarm history.",
				InputSchema: map[string]any{
					"system": stringProp("Optional system filter, e.g. hvac, chiller, pump"),
					"days":   numberProp("Forecast horizon in days (default 7)"),
				},
			},
			run: d.toolPredictMaintenance,
		},
	}
}

func (d *Daemon) toolGetTelemetry(ctx context.Context, input json.RawMessage) (string, error) {
	var args struct {
		Location string `json:"location"`
		Metric   string `json:"metric"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return "", fmt.Errorf("parse arguments: %w", err)
	}
	if args.Location == "" || args.Metric == "" {
		return "", fmt.Errorf("both location and metric are required")
	}
	logicalKey := strings.ToLower(strings.TrimSpace(args.Metric))
	if logicalKey == "fan speed" {
		logicalKey = command.KeyFanSpeed
	}
	device, err := d.resolveDevice(ctx, args.Location)
	if err != nil {
		return "", err
	}
	reading, err := d.executor.Read(ctx, device, logicalKey)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s on %s: %s%s (key %s, as of %s)",
		args.Metric, device.Name, reading.Value, unitFor(logicalKey), reading.Key,
		reading.TS.Format(time.RFC3339)), nil
}

func (d *Daemon) toolSetTemperature(ctx context.Context, input json.RawMessage) (string, error) {
	var args struct {
		Location string  `json:"location"`
		Value    float64 `json:"value"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return "", fmt.Errorf("parse arguments: %w", err)
	}
	if args.Location == "" {
		return "", fmt.Errorf("location is required")
	}
	if err := command.ValidateTemperature(args.Value); err != nil {
		return "", err
	}
	device, err := d.resolveDevice(ctx, args.Location)
	if err != nil {
		return "", err
	}
	return d.executor.WriteSetpoint(ctx, device, command.KeyTemperature, args.Value)
}

func (d *Daemon) toolSetFanSpeed(ctx context.Context, input json.RawMessage) (string, error) {
	var args struct {
		Location string `json:"location"`
		Speed    string `json:"speed"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return "", fmt.Errorf("parse arguments: %w", err)
	}
	if args.Location == "" {
		return "", fmt.Errorf("location is required")
	}
	speed, ok := intent.ParseFanSpeed(args.Speed)
	if !ok {
		return "", fmt.Errorf("invalid fan speed %q: use low, medium, high or 0-2", args.Speed)
	}
	dev, err := d.resolveDevice(ctx, args.Location)
	if err != nil {
		return "", err
	}
	return d.executor.WriteSetpoint(ctx, dev, command.KeyFanSpeed, float64(speed))
}

func (d *Daemon) toolGetAlarms(ctx context.Context, input json.RawMessage) (string, error) {
	var args struct {
		Severity string `json:"severity"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return "", fmt.Errorf("parse arguments: %w", err)
	}
	return d.alarmsSummary(ctx, strings.ToUpper(strings.TrimSpace(args.Severity)))
}

func (d *Daemon) toolPredictMaintenance(ctx context.Context, input json.RawMessage) (string, error) {
	var args struct {
		System string  `json:"system"`
		Days   float64 `json:"days"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return "", fmt.Errorf("parse arguments: %w", err)
	}
	days := int(args.Days)
	if days <= 0 {
		days = intent.DefaultForecastDays
	}
	return d.predictiveSummary(ctx, strings.ToLower(strings.TrimSpace(args.System)), days)
}
