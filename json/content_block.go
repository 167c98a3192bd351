package json

import (
	"encoding/json"
	"fmt"

	"github.com/fwojciec/mcpbridge"
)

// contentBlock is the JSON representation of a ContentBlock with a type
// discriminator. Tool call arguments that are not valid JSON are kept
// verbatim in RawArguments.
type contentBlock struct {
	Type         string           `json:"type"`
	Text         *string          `json:"text,omitempty"`
	ID           *string          `json:"id,omitempty"`
	Name         *string          `json:"name,omitempty"`
	Arguments    *json.RawMessage `json:"arguments,omitempty"`
	RawArguments *string          `json:"raw_arguments,omitempty"`
}

func marshalContentBlocks(blocks []mcpbridge.ContentBlock) ([]contentBlock, error) {
	result := make([]contentBlock, len(blocks))
	for i, b := range blocks {
		cb, err := marshalContentBlock(b)
		if err != nil {
			return nil, fmt.Errorf("content block %d: %w", i, err)
		}
		result[i] = cb
	}
	return result, nil
}

func marshalContentBlock(b mcpbridge.ContentBlock) (contentBlock, error) {
	switch v := b.(type) {
	case mcpbridge.TextBlock:
		return contentBlock{Type: "text", Text: &v.Text}, nil
	case mcpbridge.ToolCallBlock:
		cb := contentBlock{Type: "tool_call", ID: &v.ID, Name: &v.Name}
		switch {
		case len(v.Arguments) == 0:
		case json.Valid(v.Arguments):
			args := v.Arguments
			cb.Arguments = &args
		default:
			raw := string(v.Arguments)
			cb.RawArguments = &raw
		}
		return cb, nil
	default:
		return contentBlock{}, fmt.Errorf("unknown content block type: %T", b)
	}
}

func unmarshalContentBlocks(dtos []contentBlock) ([]mcpbridge.ContentBlock, error) {
	result := make([]mcpbridge.ContentBlock, len(dtos))
	for i, dto := range dtos {
		b, err := unmarshalContentBlock(dto)
		if err != nil {
			return nil, fmt.Errorf("content block %d: %w", i, err)
		}
		result[i] = b
	}
	return result, nil
}

func unmarshalContentBlock(dto contentBlock) (mcpbridge.ContentBlock, error) {
	switch dto.Type {
	case "text":
		var text string
		if dto.Text != nil {
			text = *dto.Text
		}
		return mcpbridge.TextBlock{Text: text}, nil
	case "tool_call":
		var id, name string
		if dto.ID != nil {
			id = *dto.ID
		}
		if dto.Name != nil {
			name = *dto.Name
		}
		var args json.RawMessage
		switch {
		case dto.Arguments != nil:
			args = *dto.Arguments
		case dto.RawArguments != nil:
			args = json.RawMessage(*dto.RawArguments)
		}
		return mcpbridge.ToolCallBlock{ID: id, Name: name, Arguments: args}, nil
	default:
		return nil, fmt.Errorf("unknown content block type: %q", dto.Type)
	}
}
