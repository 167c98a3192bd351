package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/fwojciec/mcpbridge"
)

// Interface compliance check.
var _ mcpbridge.Provider = (*Client)(nil)

// Client implements [mcpbridge.Provider] for the chat completions API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// Option configures a [Client].
type Option func(*Client)

// WithBaseURL sets the API base URL. Useful for testing with httptest and for
// OpenAI-compatible gateways.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a new [Client] with the given API key and options.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: http.DefaultClient,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Complete sends the conversation to the chat completions endpoint and maps
// choices[0].message into an [mcpbridge.AssistantMessage]. It fails with
// [mcpbridge.ErrNoChoices] when the reply has no choices.
func (c *Client) Complete(ctx context.Context, req mcpbridge.Request) (mcpbridge.AssistantMessage, error) {
	if err := req.Validate(); err != nil {
		return mcpbridge.AssistantMessage{}, fmt.Errorf("openai: %w", err)
	}
	if err := mcpbridge.ValidateConversation(req.Messages); err != nil {
		return mcpbridge.AssistantMessage{}, fmt.Errorf("openai: %w", err)
	}

	body, err := json.Marshal(buildRequest(req))
	if err != nil {
		return mcpbridge.AssistantMessage{}, fmt.Errorf("openai: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+completionsPath, bytes.NewReader(body))
	if err != nil {
		return mcpbridge.AssistantMessage{}, fmt.Errorf("openai: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return mcpbridge.AssistantMessage{}, fmt.Errorf("openai: %v: %w", err, mcpbridge.ErrNetwork)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return mcpbridge.AssistantMessage{}, parseHTTPError(resp)
	}

	var apiResp apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return mcpbridge.AssistantMessage{}, fmt.Errorf("openai: decode response: %v: %w", err, mcpbridge.ErrNetwork)
	}
	if len(apiResp.Choices) == 0 {
		return mcpbridge.AssistantMessage{}, fmt.Errorf("openai: %w", mcpbridge.ErrNoChoices)
	}
	return convertResponse(apiResp), nil
}

func buildRequest(req mcpbridge.Request) apiRequest {
	model := req.Model
	if model == "" {
		model = defaultModel
	}
	out := apiRequest{
		Model:       model,
		Messages:    convertMessages(req.SystemPrompt, req.Messages),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Tools:       convertTools(req.Tools),
	}
	if len(out.Tools) > 0 {
		out.ToolChoice = "auto"
	}
	return out
}

func convertMessages(system string, msgs []mcpbridge.Message) []apiMessage {
	result := make([]apiMessage, 0, len(msgs)+1)
	if system != "" {
		result = append(result, apiMessage{Role: "system", Content: &system})
	}
	for _, msg := range msgs {
		switch m := msg.(type) {
		case mcpbridge.UserMessage:
			text := m.Text()
			result = append(result, apiMessage{Role: "user", Content: &text})
		case mcpbridge.AssistantMessage:
			out := apiMessage{Role: "assistant"}
			if text := m.Text(); text != "" {
				out.Content = &text
			}
			for _, tc := range m.ToolCalls() {
				args := string(tc.Arguments)
				if args == "" {
					args = "{}"
				}
				out.ToolCalls = append(out.ToolCalls, apiToolCall{
					ID:   tc.ID,
					Type: "function",
					Function: apiFunctionCall{
						Name:      tc.Name,
						Arguments: args,
					},
				})
			}
			result = append(result, out)
		case mcpbridge.ToolResultMessage:
			text := m.Text()
			result = append(result, apiMessage{Role: "tool", Content: &text, ToolCallID: m.ToolCallID})
		}
	}
	return result
}

func convertTools(tools []mcpbridge.Tool) []apiTool {
	if len(tools) == 0 {
		return nil
	}
	result := make([]apiTool, len(tools))
	for i, t := range tools {
		var params any = json.RawMessage(`{"type":"object","properties":{}}`)
		if len(t.Parameters) > 0 {
			params = t.Parameters
		}
		result[i] = apiTool{
			Type: "function",
			Function: apiFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		}
	}
	return result
}

func convertResponse(resp apiResponse) mcpbridge.AssistantMessage {
	choice := resp.Choices[0]
	msg := mcpbridge.AssistantMessage{
		RawStopReason: choice.FinishReason,
		StopReason:    mapStopReason(choice.FinishReason),
		Usage:         convertUsage(resp.Usage),
	}
	if choice.Message.Content != nil && *choice.Message.Content != "" {
		msg.Content = append(msg.Content, mcpbridge.TextBlock{Text: *choice.Message.Content})
	}
	for _, tc := range choice.Message.ToolCalls {
		msg.Content = append(msg.Content, mcpbridge.ToolCallBlock{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	// Some compatible servers report "stop" alongside tool calls.
	if len(choice.Message.ToolCalls) > 0 {
		msg.StopReason = mcpbridge.StopToolUse
	}
	return msg
}

// convertUsage normalizes prompt tokens so that InputTokens excludes cached
// tokens.
func convertUsage(u apiUsage) mcpbridge.Usage {
	out := mcpbridge.Usage{
		InputTokens:  u.PromptTokens,
		OutputTokens: u.CompletionTokens,
	}
	if u.PromptTokensDetails != nil {
		out.CacheReadTokens = u.PromptTokensDetails.CachedTokens
		out.InputTokens = max(0, u.PromptTokens-u.PromptTokensDetails.CachedTokens)
	}
	return out
}

func mapStopReason(raw string) mcpbridge.StopReason {
	switch raw {
	case "stop":
		return mcpbridge.StopEndTurn
	case "length":
		return mcpbridge.StopLength
	case "tool_calls", "function_call":
		return mcpbridge.StopToolUse
	default:
		return mcpbridge.StopUnknown
	}
}

func parseHTTPError(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("openai: HTTP %d (failed to read body: %v): %w", resp.StatusCode, err, mcpbridge.ErrNetwork)
	}
	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err != nil || apiErr.Error.Message == "" {
		return fmt.Errorf("openai: HTTP %d: %s: %w", resp.StatusCode, strings.TrimSpace(string(body)), mcpbridge.ErrNetwork)
	}
	typ := apiErr.Error.Type
	if typ == "" {
		typ = fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	return fmt.Errorf("openai: %s: %s: %w", typ, apiErr.Error.Message, mcpbridge.ErrNetwork)
}
