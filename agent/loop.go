// Package agent orchestrates the conversation loop between a Provider and a ToolExecutor.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/fwojciec/mcpbridge"
)

// DefaultMaxTurns bounds the number of model queries in one Run.
const DefaultMaxTurns = 16

// Loop orchestrates the conversation between a Provider and a ToolExecutor.
type Loop struct {
	provider mcpbridge.Provider
	executor mcpbridge.ToolExecutor
	logger   *slog.Logger
}

// Option configures a [Loop].
type Option func(*Loop)

// WithLogger sets the logger used for turn diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(lp *Loop) { lp.logger = l }
}

// New creates a new Loop with the given provider and tool executor.
func New(provider mcpbridge.Provider, executor mcpbridge.ToolExecutor, opts ...Option) *Loop {
	l := &Loop{
		provider: provider,
		executor: executor,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// RunOption configures a single Run invocation.
type RunOption func(*runConfig)

type runConfig struct {
	onEvent     func(mcpbridge.Event)
	model       string
	maxTurns    int
	maxTokens   int
	temperature *float64
}

// WithEventHandler sets a callback that receives progress events during the
// run. If nil or not set, events are silently discarded.
func WithEventHandler(h func(mcpbridge.Event)) RunOption {
	return func(c *runConfig) {
		c.onEvent = h
	}
}

// WithModel sets the model ID for provider requests during this run.
// Empty string means the provider uses its default model.
func WithModel(model string) RunOption {
	return func(c *runConfig) {
		c.model = model
	}
}

// WithMaxTurns bounds the number of model queries. Zero means unbounded.
func WithMaxTurns(n int) RunOption {
	return func(c *runConfig) {
		c.maxTurns = n
	}
}

// WithMaxTokens sets the completion token limit for provider requests.
func WithMaxTokens(n int) RunOption {
	return func(c *runConfig) {
		c.maxTokens = n
	}
}

// WithTemperature sets the sampling temperature for provider requests.
func WithTemperature(t float64) RunOption {
	return func(c *runConfig) {
		c.temperature = &t
	}
}

// Run executes the agent loop. It sends the session's messages to the provider,
// executes any tool calls in the order the model listed them, and repeats until
// the assistant stops requesting tools. It appends all messages to
// session.Messages and returns the final assistant message.
//
// When the turn limit is reached with tool results still unseen by the model,
// Run returns the last assistant message together with an error wrapping
// [mcpbridge.ErrTurnLimit]. Every tool call in the session is answered at that
// point, so the conversation can be resumed. The same holds when an executor
// error or cancellation stops a turn: calls that did not run are answered
// with error results before Run returns.
func (l *Loop) Run(ctx context.Context, session *mcpbridge.Session, tools []mcpbridge.Tool, opts ...RunOption) (mcpbridge.AssistantMessage, error) {
	cfg := runConfig{maxTurns: DefaultMaxTurns}
	for _, opt := range opts {
		opt(&cfg)
	}
	var last mcpbridge.AssistantMessage
	for turn := 1; ; turn++ {
		if cfg.maxTurns > 0 && turn > cfg.maxTurns {
			l.logger.Warn("turn limit reached", "session", session.ID, "max_turns", cfg.maxTurns)
			return last, fmt.Errorf("agent: stopped after %d model queries: %w", cfg.maxTurns, mcpbridge.ErrTurnLimit)
		}
		msg, cont, err := l.turn(ctx, session, tools, &cfg)
		if err != nil {
			return last, err
		}
		last = msg
		l.logger.Debug("turn complete",
			"session", session.ID,
			"turn", turn,
			"stop_reason", msg.StopReason,
			"tool_calls", len(msg.ToolCalls()),
		)
		if !cont {
			return last, nil
		}
	}
}

// turn executes a single Query/Inspect/Execute cycle. It returns true if the
// loop should continue (tool calls were made), false if it should stop.
func (l *Loop) turn(ctx context.Context, session *mcpbridge.Session, tools []mcpbridge.Tool, cfg *runConfig) (mcpbridge.AssistantMessage, bool, error) {
	if err := ctx.Err(); err != nil {
		return mcpbridge.AssistantMessage{}, false, err
	}

	// Query.
	req := mcpbridge.Request{
		Model:        cfg.model,
		SystemPrompt: session.SystemPrompt,
		Messages:     session.Messages,
		Tools:        tools,
		MaxTokens:    cfg.maxTokens,
		Temperature:  cfg.temperature,
	}
	if err := req.Validate(); err != nil {
		return mcpbridge.AssistantMessage{}, false, fmt.Errorf("agent: %w", err)
	}

	msg, err := l.provider.Complete(ctx, req)
	if err != nil {
		return mcpbridge.AssistantMessage{}, false, err
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	session.Messages = append(session.Messages, msg)
	session.UpdatedAt = time.Now()
	emit(cfg, mcpbridge.EventAssistant{Message: msg})

	// Inspect.
	toolCalls := msg.ToolCalls()
	if len(toolCalls) == 0 {
		return msg, false, nil
	}

	// Execute each tool call and append results to the session. A run that
	// stops part way still answers every call of the turn, so the session
	// stays resumable.
	for i, tc := range toolCalls {
		if err := ctx.Err(); err != nil {
			l.abandon(session, cfg, toolCalls[i:], err)
			return msg, false, err
		}
		emit(cfg, mcpbridge.EventToolCall{Call: tc})

		var result *mcpbridge.ToolResult
		if args, err := decodeArguments(tc.Arguments); err != nil {
			result = mcpbridge.ErrorResult(fmt.Sprintf("%s: %v", tc.Name, err))
		} else {
			result, err = l.executor.Execute(ctx, tc.Name, args)
			if err != nil {
				l.abandon(session, cfg, toolCalls[i:], err)
				return msg, false, err
			}
		}
		appendResult(session, cfg, tc, result)
	}
	session.UpdatedAt = time.Now()

	return msg, true, nil
}

func appendResult(session *mcpbridge.Session, cfg *runConfig, tc mcpbridge.ToolCallBlock, result *mcpbridge.ToolResult) {
	trm := mcpbridge.ToolResultMessage{
		ToolCallID: tc.ID,
		ToolName:   tc.Name,
		Content:    result.Content,
		IsError:    result.IsError,
		Timestamp:  time.Now(),
	}
	session.Messages = append(session.Messages, trm)
	emit(cfg, mcpbridge.EventToolResult{
		ID:       tc.ID,
		ToolName: tc.Name,
		Content:  trm.Text(),
		IsError:  trm.IsError,
	})
}

// abandon answers calls that will not run with error results naming cause.
func (l *Loop) abandon(session *mcpbridge.Session, cfg *runConfig, calls []mcpbridge.ToolCallBlock, cause error) {
	l.logger.Warn("run stopped with pending tool calls", "session", session.ID, "pending", len(calls), "err", cause)
	for _, tc := range calls {
		appendResult(session, cfg, tc, mcpbridge.ErrorResult(fmt.Sprintf("not executed: %v", cause)))
	}
	session.UpdatedAt = time.Now()
}

func emit(cfg *runConfig, evt mcpbridge.Event) {
	if cfg.onEvent != nil {
		cfg.onEvent(evt)
	}
}

// decodeArguments checks that a tool call's argument blob is a JSON object.
// An empty blob stands for no arguments.
func decodeArguments(raw json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return json.RawMessage(`{}`), nil
	}
	var args map[string]any
	if err := json.Unmarshal(trimmed, &args); err != nil {
		return nil, fmt.Errorf("%w: %v", mcpbridge.ErrArgumentDecode, err)
	}
	if args == nil {
		return json.RawMessage(`{}`), nil
	}
	return trimmed, nil
}
