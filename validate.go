package mcpbridge

import "fmt"

// ValidateMessage checks that a message's content blocks are valid for its role.
func ValidateMessage(msg Message) error {
	switch m := msg.(type) {
	case UserMessage:
		return validateBlocks(m.Content, m.Role(), allowText)
	case AssistantMessage:
		return validateBlocks(m.Content, m.Role(), allowText|allowToolCall)
	case ToolResultMessage:
		if m.ToolCallID == "" {
			return fmt.Errorf("tool result without call id: %w", ErrValidation)
		}
		return validateBlocks(m.Content, m.Role(), allowText)
	default:
		return fmt.Errorf("unknown message type %T: %w", msg, ErrValidation)
	}
}

// ValidateConversation checks that every tool call is answered by exactly one
// tool result before the next assistant message, and that no tool result
// answers an unknown or already-answered call. Model endpoints reject
// conversations with unanswered calls, so providers validate before sending.
func ValidateConversation(msgs []Message) error {
	pending := map[string]bool{}
	for i, msg := range msgs {
		if err := ValidateMessage(msg); err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}
		switch m := msg.(type) {
		case AssistantMessage:
			if len(pending) > 0 {
				return fmt.Errorf("message %d: %d unanswered tool call(s): %w", i, len(pending), ErrValidation)
			}
			for _, tc := range m.ToolCalls() {
				if pending[tc.ID] {
					return fmt.Errorf("message %d: duplicate tool call id %q: %w", i, tc.ID, ErrValidation)
				}
				pending[tc.ID] = true
			}
		case ToolResultMessage:
			if !pending[m.ToolCallID] {
				return fmt.Errorf("message %d: result for unknown tool call %q: %w", i, m.ToolCallID, ErrValidation)
			}
			delete(pending, m.ToolCallID)
		case UserMessage:
			if len(pending) > 0 {
				return fmt.Errorf("message %d: %d unanswered tool call(s): %w", i, len(pending), ErrValidation)
			}
		}
	}
	if len(pending) > 0 {
		return fmt.Errorf("%d unanswered tool call(s): %w", len(pending), ErrValidation)
	}
	return nil
}

type blockAllow uint8

const (
	allowText blockAllow = 1 << iota
	allowToolCall
)

func validateBlocks(blocks []ContentBlock, role Role, allowed blockAllow) error {
	for _, b := range blocks {
		switch b.(type) {
		case TextBlock:
			if allowed&allowText == 0 {
				return fmt.Errorf("TextBlock not allowed in %s message: %w", role, ErrValidation)
			}
		case ToolCallBlock:
			if allowed&allowToolCall == 0 {
				return fmt.Errorf("ToolCallBlock not allowed in %s message: %w", role, ErrValidation)
			}
		default:
			return fmt.Errorf("unknown content block type %T in %s message: %w", b, role, ErrValidation)
		}
	}
	return nil
}
