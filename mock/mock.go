// Package mock provides function-field test doubles for the mcpbridge
// interfaces. Calling a method whose function field is unset panics.
package mock

import (
	"context"
	"encoding/json"

	"github.com/fwojciec/mcpbridge"
)

// Interface compliance checks.
var (
	_ mcpbridge.Provider     = (*Provider)(nil)
	_ mcpbridge.ToolExecutor = (*ToolExecutor)(nil)
)

// Provider is a test double for mcpbridge.Provider.
type Provider struct {
	CompleteFn func(ctx context.Context, req mcpbridge.Request) (mcpbridge.AssistantMessage, error)
}

// Complete delegates to CompleteFn.
func (p *Provider) Complete(ctx context.Context, req mcpbridge.Request) (mcpbridge.AssistantMessage, error) {
	return p.CompleteFn(ctx, req)
}

// Replies returns a Provider that answers successive calls with msgs in
// order and records every request it receives in *requests, if non-nil.
// Calls beyond len(msgs) repeat the last message.
func Replies(requests *[]mcpbridge.Request, msgs ...mcpbridge.AssistantMessage) *Provider {
	i := 0
	return &Provider{
		CompleteFn: func(_ context.Context, req mcpbridge.Request) (mcpbridge.AssistantMessage, error) {
			if requests != nil {
				*requests = append(*requests, req)
			}
			msg := msgs[min(i, len(msgs)-1)]
			i++
			return msg, nil
		},
	}
}

// ToolExecutor is a test double for mcpbridge.ToolExecutor.
type ToolExecutor struct {
	ExecuteFn func(ctx context.Context, name string, args json.RawMessage) (*mcpbridge.ToolResult, error)
}

// Execute delegates to ExecuteFn.
func (e *ToolExecutor) Execute(ctx context.Context, name string, args json.RawMessage) (*mcpbridge.ToolResult, error) {
	return e.ExecuteFn(ctx, name, args)
}
