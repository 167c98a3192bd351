package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/fwojciec/mcpbridge"
	"github.com/google/uuid"
	"google.golang.org/genai"
)

const (
	roleUser  = "user"
	roleModel = "model"
)

// Interface compliance check.
var _ mcpbridge.Provider = (*Client)(nil)

// Client implements [mcpbridge.Provider] for the Google Gemini API.
type Client struct {
	client *genai.Client
	model  string
}

// Option configures a [Client].
type Option func(*Client)

// WithModel sets the model ID used when a request names none.
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// New creates a new Gemini [Client] with the given API key and options.
func New(ctx context.Context, apiKey string, opts ...Option) (*Client, error) {
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	c := &Client{
		client: gc,
		model:  defaultModel,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Complete sends the conversation to GenerateContent and maps the first
// candidate into an [mcpbridge.AssistantMessage].
func (c *Client) Complete(ctx context.Context, req mcpbridge.Request) (mcpbridge.AssistantMessage, error) {
	if err := req.Validate(); err != nil {
		return mcpbridge.AssistantMessage{}, fmt.Errorf("gemini: %w", err)
	}
	if err := mcpbridge.ValidateConversation(req.Messages); err != nil {
		return mcpbridge.AssistantMessage{}, fmt.Errorf("gemini: %w", err)
	}

	model := req.Model
	if model == "" {
		model = c.model
	}

	resp, err := c.client.Models.GenerateContent(ctx, model, ConvertMessages(req.Messages), buildConfig(req))
	if err != nil {
		return mcpbridge.AssistantMessage{}, fmt.Errorf("gemini: %v: %w", err, mcpbridge.ErrNetwork)
	}
	return ConvertResponse(resp)
}

func buildConfig(req mcpbridge.Request) *genai.GenerateContentConfig {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	config := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(maxTokens),
		Tools:           ConvertTools(req.Tools),
	}

	if req.SystemPrompt != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.SystemPrompt}},
		}
	}

	if req.Temperature != nil {
		temp := float32(*req.Temperature)
		config.Temperature = &temp
	}

	return config
}

// ConvertMessages converts mcpbridge Messages to genai Contents.
// Exported for testing.
func ConvertMessages(msgs []mcpbridge.Message) []*genai.Content {
	var result []*genai.Content
	for _, msg := range msgs {
		switch m := msg.(type) {
		case mcpbridge.UserMessage:
			result = append(result, &genai.Content{
				Role:  roleUser,
				Parts: convertParts(m.Content),
			})
		case mcpbridge.AssistantMessage:
			result = append(result, &genai.Content{
				Role:  roleModel,
				Parts: convertParts(m.Content),
			})
		case mcpbridge.ToolResultMessage:
			part := &genai.Part{
				FunctionResponse: &genai.FunctionResponse{
					ID:       m.ToolCallID,
					Name:     m.ToolName,
					Response: responseMap(m),
				},
			}
			// Consecutive function responses answer one model turn.
			if n := len(result); n > 0 && isFunctionResponse(result[n-1]) {
				result[n-1].Parts = append(result[n-1].Parts, part)
			} else {
				result = append(result, &genai.Content{Role: roleUser, Parts: []*genai.Part{part}})
			}
		}
	}
	return result
}

func isFunctionResponse(c *genai.Content) bool {
	return c.Role == roleUser && len(c.Parts) > 0 && c.Parts[0].FunctionResponse != nil
}

// responseMap wraps a tool result for FunctionResponse. Gateway payloads are
// JSON, so a successful result is decoded when possible.
func responseMap(m mcpbridge.ToolResultMessage) map[string]any {
	text := m.Text()
	if m.IsError {
		return map[string]any{"error": text}
	}
	var output any
	if err := json.Unmarshal([]byte(text), &output); err != nil {
		output = text
	}
	return map[string]any{"output": output}
}

func convertParts(blocks []mcpbridge.ContentBlock) []*genai.Part {
	var parts []*genai.Part
	for _, b := range blocks {
		switch bl := b.(type) {
		case mcpbridge.TextBlock:
			parts = append(parts, &genai.Part{Text: bl.Text})
		case mcpbridge.ToolCallBlock:
			// Malformed arguments were answered with an error result; the
			// call is replayed without them.
			var args map[string]any
			_ = json.Unmarshal(bl.Arguments, &args)
			parts = append(parts, &genai.Part{
				FunctionCall: &genai.FunctionCall{
					ID:   bl.ID,
					Name: bl.Name,
					Args: args,
				},
			})
		}
	}
	return parts
}

// ConvertTools converts mcpbridge Tools to genai Tools.
// Exported for testing.
func ConvertTools(tools []mcpbridge.Tool) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, len(tools))
	for i, t := range tools {
		var schema map[string]any
		_ = json.Unmarshal(t.Parameters, &schema)
		decls[i] = &genai.FunctionDeclaration{
			Name:                 t.Name,
			Description:          t.Description,
			ParametersJsonSchema: schema,
		}
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// ConvertResponse maps the first candidate of a GenerateContent response.
// Function calls without an ID get a generated one so that results can be
// matched to them. Exported for testing.
func ConvertResponse(resp *genai.GenerateContentResponse) (mcpbridge.AssistantMessage, error) {
	if resp == nil {
		return mcpbridge.AssistantMessage{}, fmt.Errorf("gemini: empty response: %w", mcpbridge.ErrNoChoices)
	}
	if len(resp.Candidates) == 0 {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return mcpbridge.AssistantMessage{}, fmt.Errorf("gemini: prompt blocked: %s", resp.PromptFeedback.BlockReason)
		}
		return mcpbridge.AssistantMessage{}, fmt.Errorf("gemini: %w", mcpbridge.ErrNoChoices)
	}

	cand := resp.Candidates[0]
	msg := mcpbridge.AssistantMessage{
		RawStopReason: string(cand.FinishReason),
		StopReason:    mapStopReason(cand.FinishReason),
		Usage:         convertUsage(resp.UsageMetadata),
	}
	if cand.Content != nil {
		for _, p := range cand.Content.Parts {
			switch {
			case p == nil || p.Thought:
			case p.FunctionCall != nil:
				tc, err := convertFunctionCall(p.FunctionCall)
				if err != nil {
					return mcpbridge.AssistantMessage{}, err
				}
				msg.Content = append(msg.Content, tc)
			case p.Text != "":
				msg.Content = append(msg.Content, mcpbridge.TextBlock{Text: p.Text})
			}
		}
	}
	if len(msg.ToolCalls()) > 0 {
		msg.StopReason = mcpbridge.StopToolUse
	}
	return msg, nil
}

func convertFunctionCall(fc *genai.FunctionCall) (mcpbridge.ToolCallBlock, error) {
	id := fc.ID
	if id == "" {
		id = "call_" + uuid.NewString()
	}
	args := json.RawMessage(`{}`)
	if fc.Args != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(fc.Args); err != nil {
			return mcpbridge.ToolCallBlock{}, fmt.Errorf("gemini: invalid tool call arguments for %s: %w", fc.Name, err)
		}
		args = json.RawMessage(bytes.TrimSpace(buf.Bytes()))
	}
	return mcpbridge.ToolCallBlock{ID: id, Name: fc.Name, Arguments: args}, nil
}

// convertUsage normalizes token counts so that InputTokens excludes cached
// tokens, clamping at zero.
func convertUsage(u *genai.GenerateContentResponseUsageMetadata) mcpbridge.Usage {
	if u == nil {
		return mcpbridge.Usage{}
	}
	cached := int(u.CachedContentTokenCount)
	return mcpbridge.Usage{
		InputTokens:     max(0, int(u.PromptTokenCount)-cached),
		OutputTokens:    int(u.CandidatesTokenCount),
		CacheReadTokens: cached,
	}
}

func mapStopReason(r genai.FinishReason) mcpbridge.StopReason {
	switch r {
	case genai.FinishReasonStop, "":
		return mcpbridge.StopEndTurn
	case genai.FinishReasonMaxTokens:
		return mcpbridge.StopLength
	default:
		return mcpbridge.StopUnknown
	}
}
