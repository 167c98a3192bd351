// Package gateway is the HTTP client for a tool gateway: it loads the tool
// manifest and dispatches (tool, action, parameters) calls.
//
// Client implements [mcpbridge.ToolExecutor]. Gateway-reported failures and
// unresolvable function names are returned to the model as error results;
// transport failures end the run.
package gateway

const (
	defaultBaseURL = "http://localhost:5000"
	manifestPath   = "/mcp/manifest"
	gatewayPath    = "/mcp/gateway"

	statusSuccess = "success"

	// maxErrorBody bounds how much of an unexpected response body is quoted
	// in error messages.
	maxErrorBody = 512
)

// callRequest is the JSON body posted to the gateway endpoint.
type callRequest struct {
	Tool       string         `json:"tool"`
	Action     string         `json:"action"`
	Parameters map[string]any `json:"parameters"`
}
