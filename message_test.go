package mcpbridge_test

import (
	"encoding/json"
	"testing"

	"github.com/fwojciec/mcpbridge"
	"github.com/stretchr/testify/assert"
)

func TestMessageTypeSwitch_Exhaustive(t *testing.T) {
	t.Parallel()
	messages := []mcpbridge.Message{
		mcpbridge.UserMessage{Content: []mcpbridge.ContentBlock{mcpbridge.TextBlock{Text: "hello"}}},
		mcpbridge.AssistantMessage{Content: []mcpbridge.ContentBlock{mcpbridge.TextBlock{Text: "hi"}}},
		mcpbridge.ToolResultMessage{ToolCallID: "tc_1", ToolName: "github_listRepos"},
	}
	roles := []mcpbridge.Role{mcpbridge.RoleUser, mcpbridge.RoleAssistant, mcpbridge.RoleToolResult}
	for i, msg := range messages {
		assert.Equal(t, roles[i], msg.Role())
	}
}

func TestAssistantMessage_ToolCalls(t *testing.T) {
	t.Parallel()
	msg := mcpbridge.AssistantMessage{Content: []mcpbridge.ContentBlock{
		mcpbridge.ToolCallBlock{ID: "tc_1", Name: "gmaps_geocode", Arguments: json.RawMessage(`{"address":"NYC"}`)},
		mcpbridge.TextBlock{Text: "looking up both"},
		mcpbridge.ToolCallBlock{ID: "tc_2", Name: "gmaps_reverseGeocode", Arguments: json.RawMessage(`{"lat":1,"lng":2}`)},
	}}

	calls := msg.ToolCalls()
	assert.Len(t, calls, 2)
	assert.Equal(t, "tc_1", calls[0].ID)
	assert.Equal(t, "tc_2", calls[1].ID)
	assert.Equal(t, "looking up both", msg.Text())
}

func TestAssistantMessage_NoToolCalls(t *testing.T) {
	t.Parallel()
	msg := mcpbridge.AssistantMessage{Content: []mcpbridge.ContentBlock{
		mcpbridge.TextBlock{Text: "line one"},
		mcpbridge.TextBlock{Text: "line two"},
	}}
	assert.Nil(t, msg.ToolCalls())
	assert.Equal(t, "line one\nline two", msg.Text())
}

func TestNewUserMessage(t *testing.T) {
	t.Parallel()
	msg := mcpbridge.NewUserMessage("list octocat's repos")
	assert.Equal(t, []mcpbridge.ContentBlock{mcpbridge.TextBlock{Text: "list octocat's repos"}}, msg.Content)
	assert.False(t, msg.Timestamp.IsZero())
}

func TestSession_LastAssistant(t *testing.T) {
	t.Parallel()
	s := &mcpbridge.Session{}
	_, ok := s.LastAssistant()
	assert.False(t, ok)

	s.Messages = []mcpbridge.Message{
		mcpbridge.NewUserMessage("hi"),
		mcpbridge.AssistantMessage{Content: []mcpbridge.ContentBlock{mcpbridge.TextBlock{Text: "first"}}},
		mcpbridge.ToolResultMessage{ToolCallID: "tc_1"},
	}
	am, ok := s.LastAssistant()
	assert.True(t, ok)
	assert.Equal(t, "first", am.Text())
}

func TestUsage_Add(t *testing.T) {
	t.Parallel()
	a := mcpbridge.Usage{InputTokens: 10, OutputTokens: 2}
	b := mcpbridge.Usage{InputTokens: 5, OutputTokens: 3, CacheReadTokens: 7}
	assert.Equal(t, mcpbridge.Usage{InputTokens: 15, OutputTokens: 5, CacheReadTokens: 7}, a.Add(b))
}

func TestToolResultHelpers(t *testing.T) {
	t.Parallel()
	ok := mcpbridge.TextResult(`{"lat":40.748}`)
	assert.False(t, ok.IsError)
	bad := mcpbridge.ErrorResult("rate limited")
	assert.True(t, bad.IsError)
	assert.Equal(t, "rate limited", mcpbridge.ToolResultMessage{Content: bad.Content}.Text())
}
