package mcpbridge

// Event is a sealed interface representing progress of a conversation run.
// Events are purely informational; failures come from the run's error return.
// The unexported marker method prevents external implementations.
type Event interface {
	event()
}

// EventAssistant carries a model reply as soon as it is appended.
type EventAssistant struct {
	Message AssistantMessage
}

func (EventAssistant) event() {}

// EventToolCall signals that a tool call is about to be executed.
type EventToolCall struct {
	Call ToolCallBlock
}

func (EventToolCall) event() {}

// EventToolResult carries the text of a tool result after it is appended.
type EventToolResult struct {
	ID       string
	ToolName string
	Content  string
	IsError  bool
}

func (EventToolResult) event() {}

// Interface compliance checks.
var (
	_ Event = EventAssistant{}
	_ Event = EventToolCall{}
	_ Event = EventToolResult{}
)
