// Command mcpbridge answers a prompt with an LLM that can call the tools a
// gateway publishes in its manifest.
//
// Usage:
//
//	OPENAI_API_KEY=sk-... mcpbridge [flags] prompt...
//	echo "prompt" | mcpbridge [flags]
//	mcpbridge -list
//
// Flags:
//
//	-config string        Path to YAML config file
//	-provider string      Provider: openai, anthropic, gemini (default openai)
//	-model string         Model ID (default: provider default)
//	-url string           Tool gateway base URL (default http://localhost:5000)
//	-api-key string       API key (overrides provider's env var)
//	-session string       Path to session file to resume and save
//	-system-prompt string Path to system prompt file
//	-tools string         Comma-separated function name globs
//	-max-turns int        Maximum model queries per prompt (default 16)
//	-max-tokens int       Maximum tokens per reply
//	-temperature float    Sampling temperature in [0, 2]
//	-list                 List tools and actions and exit
//	-v                    Verbose logging
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/fwojciec/mcpbridge"
	"github.com/fwojciec/mcpbridge/agent"
	"github.com/fwojciec/mcpbridge/gateway"
	bridgejson "github.com/fwojciec/mcpbridge/json"
	"github.com/fwojciec/mcpbridge/manifest"
	"github.com/fwojciec/mcpbridge/markdown"
	"github.com/google/uuid"
)

const renderWidth = 100

func main() {
	if err := run(); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "mcpbridge: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	opts, err := parseOptions(os.Args[1:], os.Stderr)
	if err != nil {
		return err
	}

	// Env vars are read here and passed down as a lookup function.
	cfg, err := resolveConfig(opts, os.LookupEnv)
	if err != nil {
		return err
	}

	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	hc := &http.Client{Timeout: cfg.Timeout}
	gw := gateway.New(cfg.ServerURL, gateway.WithHTTPClient(hc), gateway.WithLogger(logger))
	theme := mcpbridge.DefaultTheme()

	if opts.list {
		return listTools(ctx, gw, os.Stdout, theme)
	}

	prompt, err := readPrompt(opts, os.Stdin)
	if err != nil {
		return err
	}

	provider, err := resolveProvider(ctx, cfg, hc)
	if err != nil {
		return err
	}

	tools, err := gw.Load(ctx)
	if err != nil {
		return err
	}
	if tools, err = manifest.Filter(tools, cfg.Tools); err != nil {
		return err
	}
	logger.Debug("tools selected", "count", len(tools))

	session, err := loadOrCreateSession(opts.sessionPath, cfg.SystemPrompt)
	if err != nil {
		return err
	}
	msg := mcpbridge.NewUserMessage(prompt)
	session.Messages = append(session.Messages, msg)
	session.UpdatedAt = msg.Timestamp

	loop := agent.New(provider, gw, agent.WithLogger(logger))
	runOpts := []agent.RunOption{
		agent.WithEventHandler(printEvent(os.Stderr, theme)),
		agent.WithMaxTurns(cfg.MaxTurns),
	}
	if cfg.Model != "" {
		runOpts = append(runOpts, agent.WithModel(cfg.Model))
	}
	if cfg.MaxTokens > 0 {
		runOpts = append(runOpts, agent.WithMaxTokens(cfg.MaxTokens))
	}
	if cfg.Temperature != nil {
		runOpts = append(runOpts, agent.WithTemperature(*cfg.Temperature))
	}

	err = converse(ctx, loop, &session, tools, opts.sessionPath, os.Stderr, runOpts...)
	// The session's latest reply also covers a run that failed after the
	// model answered. Replies from earlier prompts are not repeated.
	if reply, ok := session.LastAssistant(); ok && !reply.Timestamp.Before(msg.Timestamp) {
		if text := reply.Text(); text != "" {
			fmt.Println(markdown.Render(text, renderWidth, theme))
		}
	}
	return err
}

// converse runs the loop on session and saves the transcript to path, if
// set, even when the run fails. Reaching the turn limit is reported to
// stderr as a warning.
func converse(ctx context.Context, loop *agent.Loop, session *mcpbridge.Session, tools []mcpbridge.Tool, path string, stderr io.Writer, opts ...agent.RunOption) error {
	_, runErr := loop.Run(ctx, session, tools, opts...)
	if errors.Is(runErr, mcpbridge.ErrTurnLimit) {
		fmt.Fprintf(stderr, "mcpbridge: warning: %v\n", runErr)
		runErr = nil
	}
	if path != "" {
		if err := bridgejson.Save(path, *session); err != nil {
			return errors.Join(runErr, fmt.Errorf("save session: %w", err))
		}
	}
	return runErr
}

// loadOrCreateSession resumes the session at path, or starts a new one when
// no path is given or the file does not exist yet.
func loadOrCreateSession(path, systemPrompt string) (mcpbridge.Session, error) {
	if path != "" {
		s, err := bridgejson.Load(path)
		switch {
		case err == nil:
			return s, nil
		case !errors.Is(err, os.ErrNotExist):
			return mcpbridge.Session{}, fmt.Errorf("load session: %w", err)
		}
	}
	now := time.Now()
	return mcpbridge.Session{
		ID:           uuid.NewString(),
		SystemPrompt: systemPrompt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func printEvent(w io.Writer, theme mcpbridge.Theme) func(mcpbridge.Event) {
	return func(evt mcpbridge.Event) {
		switch e := evt.(type) {
		case mcpbridge.EventToolCall:
			fmt.Fprintln(w, markdown.ToolCall(e.Call, renderWidth, theme))
		case mcpbridge.EventToolResult:
			fmt.Fprintln(w, markdown.ToolResult(e.Content, e.IsError, renderWidth, theme))
		}
	}
}

// listTools prints every tool and its function names from a single manifest
// fetch.
func listTools(ctx context.Context, gw *gateway.Client, w io.Writer, theme mcpbridge.Theme) error {
	m, err := gw.Manifest(ctx)
	if err != nil {
		return err
	}
	toolStyle := lipgloss.NewStyle().Bold(true)
	mutedStyle := lipgloss.NewStyle().Foreground(lipgloss.ANSIColor(theme.Muted))
	for tp := m.Tools.Oldest(); tp != nil; tp = tp.Next() {
		fmt.Fprintln(w, toolStyle.Render(tp.Key))
		for ap := tp.Value.Actions.Oldest(); ap != nil; ap = ap.Next() {
			line := "  " + manifest.JoinName(tp.Key, ap.Key)
			if ap.Value.Description != "" {
				line += "  " + mutedStyle.Render(ap.Value.Description)
			}
			fmt.Fprintln(w, line)
		}
	}
	return nil
}
