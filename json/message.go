package json

import (
	"fmt"
	"time"

	"github.com/fwojciec/mcpbridge"
)

// messageDTO is the JSON representation of a Message. Type holds the
// message role and discriminates the variants.
type messageDTO struct {
	Type          string         `json:"type"`
	Content       []contentBlock `json:"content"`
	Timestamp     time.Time      `json:"timestamp"`
	StopReason    string         `json:"stop_reason,omitempty"`
	RawStopReason string         `json:"raw_stop_reason,omitempty"`
	Usage         *usageDTO      `json:"usage,omitempty"`
	ToolCallID    string         `json:"tool_call_id,omitempty"`
	ToolName      string         `json:"tool_name,omitempty"`
	IsError       bool           `json:"is_error,omitempty"`
}

func marshalMessage(msg mcpbridge.Message) (messageDTO, error) {
	dto := messageDTO{Type: string(msg.Role())}
	var blocks []mcpbridge.ContentBlock
	switch m := msg.(type) {
	case mcpbridge.UserMessage:
		blocks = m.Content
		dto.Timestamp = m.Timestamp
	case mcpbridge.AssistantMessage:
		blocks = m.Content
		dto.Timestamp = m.Timestamp
		dto.StopReason = string(m.StopReason)
		dto.RawStopReason = m.RawStopReason
		dto.Usage = &usageDTO{
			InputTokens:     m.Usage.InputTokens,
			OutputTokens:    m.Usage.OutputTokens,
			CacheReadTokens: m.Usage.CacheReadTokens,
		}
	case mcpbridge.ToolResultMessage:
		blocks = m.Content
		dto.Timestamp = m.Timestamp
		dto.ToolCallID = m.ToolCallID
		dto.ToolName = m.ToolName
		dto.IsError = m.IsError
	default:
		return messageDTO{}, fmt.Errorf("unknown message type: %T", msg)
	}
	content, err := marshalContentBlocks(blocks)
	if err != nil {
		return messageDTO{}, err
	}
	dto.Content = content
	return dto, nil
}

func unmarshalMessage(dto messageDTO) (mcpbridge.Message, error) {
	blocks, err := unmarshalContentBlocks(dto.Content)
	if err != nil {
		return nil, err
	}
	switch mcpbridge.Role(dto.Type) {
	case mcpbridge.RoleUser:
		return mcpbridge.UserMessage{Content: blocks, Timestamp: dto.Timestamp}, nil
	case mcpbridge.RoleAssistant:
		msg := mcpbridge.AssistantMessage{
			Content:       blocks,
			StopReason:    mcpbridge.StopReason(dto.StopReason),
			RawStopReason: dto.RawStopReason,
			Timestamp:     dto.Timestamp,
		}
		if dto.Usage != nil {
			msg.Usage = mcpbridge.Usage{
				InputTokens:     dto.Usage.InputTokens,
				OutputTokens:    dto.Usage.OutputTokens,
				CacheReadTokens: dto.Usage.CacheReadTokens,
			}
		}
		return msg, nil
	case mcpbridge.RoleToolResult:
		return mcpbridge.ToolResultMessage{
			ToolCallID: dto.ToolCallID,
			ToolName:   dto.ToolName,
			Content:    blocks,
			IsError:    dto.IsError,
			Timestamp:  dto.Timestamp,
		}, nil
	default:
		return nil, fmt.Errorf("unknown message type: %q", dto.Type)
	}
}
