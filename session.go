package mcpbridge

import "time"

// Session represents a conversation session. Messages is append-only: the
// loop never reorders or prunes it.
type Session struct {
	ID           string
	Messages     []Message
	SystemPrompt string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// LastAssistant returns the most recent assistant message, if any.
func (s *Session) LastAssistant() (AssistantMessage, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if am, ok := s.Messages[i].(AssistantMessage); ok {
			return am, true
		}
	}
	return AssistantMessage{}, false
}
