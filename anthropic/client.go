package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/fwojciec/mcpbridge"
)

// Interface compliance check.
var _ mcpbridge.Provider = (*Client)(nil)

// Client implements [mcpbridge.Provider] for the Anthropic Messages API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// Option configures a [Client].
type Option func(*Client)

// WithBaseURL sets the API base URL. Useful for testing with httptest.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a new Anthropic [Client] with the given API key and options.
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

// Complete sends the conversation to the Messages API and returns the
// assistant reply. tool_use blocks in the reply become
// [mcpbridge.ToolCallBlock]s.
func (c *Client) Complete(ctx context.Context, req mcpbridge.Request) (mcpbridge.AssistantMessage, error) {
	if err := req.Validate(); err != nil {
		return mcpbridge.AssistantMessage{}, fmt.Errorf("anthropic: %w", err)
	}
	if err := mcpbridge.ValidateConversation(req.Messages); err != nil {
		return mcpbridge.AssistantMessage{}, fmt.Errorf("anthropic: %w", err)
	}

	body, err := json.Marshal(buildRequest(req))
	if err != nil {
		return mcpbridge.AssistantMessage{}, fmt.Errorf("anthropic: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+messagesPath, bytes.NewReader(body))
	if err != nil {
		return mcpbridge.AssistantMessage{}, fmt.Errorf("anthropic: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Api-Key", c.apiKey)
	httpReq.Header.Set("Anthropic-Version", apiVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return mcpbridge.AssistantMessage{}, fmt.Errorf("anthropic: %v: %w", err, mcpbridge.ErrNetwork)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return mcpbridge.AssistantMessage{}, parseHTTPError(resp)
	}

	var apiResp apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return mcpbridge.AssistantMessage{}, fmt.Errorf("anthropic: decode response: %v: %w", err, mcpbridge.ErrNetwork)
	}
	return convertResponse(apiResp), nil
}

func buildRequest(req mcpbridge.Request) apiRequest {
	model := req.Model
	if model == "" {
		model = defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}
	return apiRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		System:      req.SystemPrompt,
		Messages:    convertMessages(req.Messages),
		Tools:       convertTools(req.Tools),
		Temperature: req.Temperature,
	}
}

func convertMessages(msgs []mcpbridge.Message) []apiMessage {
	var result []apiMessage
	for _, msg := range msgs {
		switch m := msg.(type) {
		case mcpbridge.UserMessage:
			result = append(result, apiMessage{Role: "user", Content: convertContentBlocks(m.Content)})
		case mcpbridge.AssistantMessage:
			result = append(result, apiMessage{Role: "assistant", Content: convertContentBlocks(m.Content)})
		case mcpbridge.ToolResultMessage:
			block := apiContentBlock{
				Type:      "tool_result",
				ToolUseID: m.ToolCallID,
				Content:   convertContentBlocks(m.Content),
				IsError:   m.IsError,
			}
			// Consecutive tool results share one user message.
			if n := len(result); n > 0 && isToolResultMessage(result[n-1]) {
				result[n-1].Content = append(result[n-1].Content, block)
			} else {
				result = append(result, apiMessage{Role: "user", Content: []apiContentBlock{block}})
			}
		}
	}
	return result
}

func isToolResultMessage(msg apiMessage) bool {
	return msg.Role == "user" && len(msg.Content) > 0 && msg.Content[0].Type == "tool_result"
}

func convertContentBlocks(blocks []mcpbridge.ContentBlock) []apiContentBlock {
	result := make([]apiContentBlock, 0, len(blocks))
	for _, b := range blocks {
		switch bl := b.(type) {
		case mcpbridge.TextBlock:
			result = append(result, apiContentBlock{Type: "text", Text: bl.Text})
		case mcpbridge.ToolCallBlock:
			result = append(result, apiContentBlock{Type: "tool_use", ID: bl.ID, Name: bl.Name, Input: objectInput(bl.Arguments)})
		}
	}
	return result
}

// objectInput returns args when it is a JSON object and {} otherwise. The API
// rejects any other tool_use input; a malformed blob has already been
// answered with an error result by then.
func objectInput(args json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(args)
	if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed) {
		return json.RawMessage(`{}`)
	}
	return trimmed
}

// convertTools flattens function schemas into the API's tool shape and marks
// the last tool as a cache breakpoint, since tool definitions are stable
// across turns.
func convertTools(tools []mcpbridge.Tool) []apiTool {
	if len(tools) == 0 {
		return nil
	}
	result := make([]apiTool, len(tools))
	for i, t := range tools {
		result[i] = apiTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.Parameters,
		}
	}
	result[len(result)-1].CacheControl = &apiCacheControl{Type: "ephemeral"}
	return result
}

func convertResponse(resp apiResponse) mcpbridge.AssistantMessage {
	msg := mcpbridge.AssistantMessage{
		RawStopReason: resp.StopReason,
		StopReason:    mapStopReason(resp.StopReason),
		Usage: mcpbridge.Usage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		},
	}
	if resp.Usage.CacheReadInputTokens != nil {
		msg.Usage.CacheReadTokens = *resp.Usage.CacheReadInputTokens
	}
	for _, b := range resp.Content {
		switch b.Type {
		case "text":
			msg.Content = append(msg.Content, mcpbridge.TextBlock{Text: b.Text})
		case "tool_use":
			args := b.Input
			if len(args) == 0 {
				args = json.RawMessage(`{}`)
			}
			msg.Content = append(msg.Content, mcpbridge.ToolCallBlock{ID: b.ID, Name: b.Name, Arguments: args})
		}
	}
	return msg
}

func mapStopReason(raw string) mcpbridge.StopReason {
	switch raw {
	case "end_turn", "stop_sequence":
		return mcpbridge.StopEndTurn
	case "max_tokens":
		return mcpbridge.StopLength
	case "tool_use":
		return mcpbridge.StopToolUse
	default:
		return mcpbridge.StopUnknown
	}
}

func parseHTTPError(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("anthropic: HTTP %d (failed to read body: %v): %w", resp.StatusCode, err, mcpbridge.ErrNetwork)
	}
	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err != nil || apiErr.Error.Type == "" {
		return fmt.Errorf("anthropic: HTTP %d: %s: %w", resp.StatusCode, string(body), mcpbridge.ErrNetwork)
	}
	return fmt.Errorf("anthropic: %s: %s: %w", apiErr.Error.Type, apiErr.Error.Message, mcpbridge.ErrNetwork)
}
