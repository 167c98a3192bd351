package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/fwojciec/mcpbridge"
	"github.com/fwojciec/mcpbridge/manifest"
	"github.com/tidwall/gjson"
)

// Interface compliance check.
var _ mcpbridge.ToolExecutor = (*Client)(nil)

// Client talks to a tool gateway's manifest and gateway endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	mu     sync.RWMutex
	routes map[string]route // function name → (tool, action), set by Load
}

type route struct {
	tool   string
	action string
}

// Option configures a [Client].
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a [Client] for the gateway at baseURL. An empty baseURL means
// http://localhost:5000.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Manifest fetches and parses the tool manifest. Transport failures and
// non-2xx statuses fail with [mcpbridge.ErrNetwork]; malformed payloads with
// [mcpbridge.ErrSchema].
func (c *Client) Manifest(ctx context.Context) (*manifest.Manifest, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+manifestPath, nil)
	if err != nil {
		return nil, fmt.Errorf("gateway: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway: fetch manifest: %v: %w", err, mcpbridge.ErrNetwork)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("gateway: read manifest: %v: %w", err, mcpbridge.ErrNetwork)
	}
	c.logger.Debug("manifest fetched", "status", resp.StatusCode, "bytes", len(body), "elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("gateway: fetch manifest: HTTP %d: %s: %w", resp.StatusCode, truncate(body), mcpbridge.ErrNetwork)
	}

	m, err := manifest.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("gateway: %w", err)
	}
	return m, nil
}

// Load fetches the manifest and converts it into function schemas, one per
// (tool, action) pair. It also records the name table Execute and Invoke use
// to resolve function names, replacing any table from an earlier Load.
func (c *Client) Load(ctx context.Context) ([]mcpbridge.Tool, error) {
	m, err := c.Manifest(ctx)
	if err != nil {
		return nil, err
	}
	fns, err := m.Functions()
	if err != nil {
		return nil, fmt.Errorf("gateway: %w", err)
	}

	routes := make(map[string]route, len(fns))
	tools := make([]mcpbridge.Tool, len(fns))
	for i, fn := range fns {
		routes[fn.Name] = route{tool: fn.ToolName, action: fn.ActionName}
		tools[i] = fn.Tool
	}

	c.mu.Lock()
	c.routes = routes
	c.mu.Unlock()

	c.logger.Info("manifest loaded", "version", m.Version, "tools", m.Tools.Len(), "functions", len(fns))
	return tools, nil
}

// Tools returns the tool names the gateway serves, in manifest order.
func (c *Client) Tools(ctx context.Context) ([]string, error) {
	m, err := c.Manifest(ctx)
	if err != nil {
		return nil, err
	}
	return m.ToolNames(), nil
}

// Actions returns the actions of the named tool, in manifest order. An
// unknown tool fails with [mcpbridge.ErrToolNotFound].
func (c *Client) Actions(ctx context.Context, tool string) ([]*manifest.Action, error) {
	m, err := c.Manifest(ctx)
	if err != nil {
		return nil, err
	}
	t, err := m.Tool(tool)
	if err != nil {
		return nil, fmt.Errorf("gateway: %w", err)
	}
	actions := make([]*manifest.Action, 0, t.Actions.Len())
	for pair := t.Actions.Oldest(); pair != nil; pair = pair.Next() {
		actions = append(actions, pair.Value)
	}
	return actions, nil
}

// Resolve maps a function name to its (tool, action) pair. Names recorded by
// Load resolve exactly; other names are split on the first underscore.
func (c *Client) Resolve(name string) (tool, action string, err error) {
	c.mu.RLock()
	r, ok := c.routes[name]
	c.mu.RUnlock()
	if ok {
		return r.tool, r.action, nil
	}
	return manifest.SplitName(name)
}

// Invoke resolves a function name and calls the matching gateway action.
// Names that cannot be resolved fail with [mcpbridge.ErrInvalidName] before
// any network I/O.
func (c *Client) Invoke(ctx context.Context, name string, params map[string]any) (json.RawMessage, error) {
	tool, action, err := c.Resolve(name)
	if err != nil {
		return nil, fmt.Errorf("gateway: %w", err)
	}
	return c.Call(ctx, tool, action, params)
}

// Call posts a (tool, action, parameters) triple to the gateway and returns
// the result payload. It fails with [mcpbridge.ErrNetwork] on transport
// failure and with a [*mcpbridge.ToolExecutionError] when the gateway reports
// any status other than "success".
func (c *Client) Call(ctx context.Context, tool, action string, params map[string]any) (json.RawMessage, error) {
	if params == nil {
		params = map[string]any{}
	}
	body, err := json.Marshal(callRequest{Tool: tool, Action: action, Parameters: params})
	if err != nil {
		return nil, fmt.Errorf("gateway: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+gatewayPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gateway: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway: %s.%s: %v: %w", tool, action, err, mcpbridge.ErrNetwork)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("gateway: %s.%s: read response: %v: %w", tool, action, err, mcpbridge.ErrNetwork)
	}

	result, err := parseCallResponse(tool, action, resp.StatusCode, respBody)
	c.logger.Debug("gateway call",
		"tool", tool,
		"action", action,
		"http_status", resp.StatusCode,
		"elapsed", time.Since(start),
		"ok", err == nil,
	)
	if err != nil {
		return nil, fmt.Errorf("gateway: %w", err)
	}
	return result, nil
}

// parseCallResponse interprets a gateway response envelope. A non-2xx status
// whose body is still an envelope (the gateway answers failed actions with
// HTTP 500 and status "error") is reported as a tool failure; anything else
// outside 2xx is a network failure.
func parseCallResponse(tool, action string, code int, body []byte) (json.RawMessage, error) {
	ok2xx := code >= 200 && code <= 299
	env := gjson.ParseBytes(body)
	isEnvelope := gjson.ValidBytes(body) && env.IsObject() &&
		(env.Get("status").Exists() || env.Get("error").Exists())

	if !isEnvelope {
		if ok2xx {
			return nil, fmt.Errorf("%s.%s: malformed response: %s: %w", tool, action, truncate(body), mcpbridge.ErrNetwork)
		}
		return nil, fmt.Errorf("%s.%s: HTTP %d: %s: %w", tool, action, code, truncate(body), mcpbridge.ErrNetwork)
	}

	status := env.Get("status").String()
	if status == statusSuccess {
		result := env.Get("result")
		if !result.Exists() {
			return json.RawMessage("null"), nil
		}
		return json.RawMessage(result.Raw), nil
	}

	return nil, &mcpbridge.ToolExecutionError{
		Tool:    tool,
		Action:  action,
		Status:  status,
		Message: errorMessage(env.Get("error")),
	}
}

// errorMessage extracts the gateway error description, which is either a
// string or an object with type and message fields.
func errorMessage(e gjson.Result) string {
	switch {
	case !e.Exists() || e.Type == gjson.Null:
		return "unknown error"
	case e.Type == gjson.String:
		if e.Str == "" {
			return "unknown error"
		}
		return e.Str
	case e.IsObject():
		msg := e.Get("message").String()
		typ := e.Get("type").String()
		switch {
		case msg != "" && typ != "":
			return typ + ": " + msg
		case msg != "":
			return msg
		}
		return e.Raw
	default:
		return e.Raw
	}
}

// Execute implements [mcpbridge.ToolExecutor]. Gateway-reported failures and
// unresolvable names come back as IsError results so the model can react;
// network failures are returned as errors.
func (c *Client) Execute(ctx context.Context, name string, args json.RawMessage) (*mcpbridge.ToolResult, error) {
	params, err := decodeParams(args)
	if err != nil {
		return mcpbridge.ErrorResult(fmt.Sprintf("invalid arguments for %s: %v", name, err)), nil
	}

	result, err := c.Invoke(ctx, name, params)
	switch {
	case err == nil:
		return mcpbridge.TextResult(string(result)), nil
	case errors.Is(err, mcpbridge.ErrToolExecution), errors.Is(err, mcpbridge.ErrInvalidName):
		c.logger.Warn("tool call failed", "function", name, "err", err)
		return mcpbridge.ErrorResult(err.Error()), nil
	default:
		return nil, err
	}
}

func decodeParams(args json.RawMessage) (map[string]any, error) {
	trimmed := bytes.TrimSpace(args)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return map[string]any{}, nil
	}
	var params map[string]any
	if err := json.Unmarshal(trimmed, &params); err != nil {
		return nil, fmt.Errorf("%v: %w", err, mcpbridge.ErrArgumentDecode)
	}
	return params, nil
}

func truncate(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "..."
	}
	return s
}
