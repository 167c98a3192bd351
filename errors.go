package mcpbridge

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes.
var (
	// ErrValidation indicates a request or message failed validation.
	ErrValidation = errors.New("validation error")

	// ErrNetwork indicates a transport failure or a non-2xx HTTP status.
	ErrNetwork = errors.New("network error")

	// ErrSchema indicates a manifest payload lacks the expected shape.
	ErrSchema = errors.New("schema error")

	// ErrInvalidName indicates a function name that cannot be resolved to a
	// (tool, action) pair.
	ErrInvalidName = errors.New("invalid function name")

	// ErrToolExecution indicates the gateway reported a failed tool action.
	ErrToolExecution = errors.New("tool execution failed")

	// ErrArgumentDecode indicates a tool call carried malformed JSON arguments.
	ErrArgumentDecode = errors.New("argument decode error")

	// ErrTurnLimit indicates the conversation loop stopped after reaching its
	// maximum number of model queries. The session is left consistent.
	ErrTurnLimit = errors.New("turn limit reached")

	// ErrToolNotFound indicates the requested tool does not exist.
	ErrToolNotFound = errors.New("tool not found")

	// ErrNoChoices indicates the model response carried no message.
	ErrNoChoices = errors.New("no choices in model response")
)

// ToolExecutionError carries the failure reported by the gateway for a single
// (tool, action) invocation. It matches ErrToolExecution with errors.Is.
type ToolExecutionError struct {
	Tool    string
	Action  string
	Status  string
	Message string
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("%s.%s: %s", e.Tool, e.Action, e.Message)
}

// Is reports whether target is ErrToolExecution.
func (e *ToolExecutionError) Is(target error) bool {
	return target == ErrToolExecution
}
