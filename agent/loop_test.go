package agent_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/fwojciec/mcpbridge"
	"github.com/fwojciec/mcpbridge/agent"
	"github.com/fwojciec/mcpbridge/gateway"
	"github.com/fwojciec/mcpbridge/gatewaytest"
	"github.com/fwojciec/mcpbridge/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func textReply(text string) mcpbridge.AssistantMessage {
	return mcpbridge.AssistantMessage{
		Content:    []mcpbridge.ContentBlock{mcpbridge.TextBlock{Text: text}},
		StopReason: mcpbridge.StopEndTurn,
	}
}

func toolReply(calls ...mcpbridge.ToolCallBlock) mcpbridge.AssistantMessage {
	blocks := make([]mcpbridge.ContentBlock, len(calls))
	for i, c := range calls {
		blocks[i] = c
	}
	return mcpbridge.AssistantMessage{Content: blocks, StopReason: mcpbridge.StopToolUse}
}

func failingExecutor(t *testing.T) *mock.ToolExecutor {
	return &mock.ToolExecutor{
		ExecuteFn: func(context.Context, string, json.RawMessage) (*mcpbridge.ToolResult, error) {
			t.Fatal("executor should not be called")
			return nil, nil
		},
	}
}

func newSession(prompt string) *mcpbridge.Session {
	return &mcpbridge.Session{
		ID:           "sess-1",
		SystemPrompt: "You are a helpful assistant with access to tools.",
		Messages:     []mcpbridge.Message{mcpbridge.NewUserMessage(prompt)},
	}
}

func TestLoop_Run(t *testing.T) {
	t.Parallel()

	t.Run("text response ends run", func(t *testing.T) {
		t.Parallel()
		provider := mock.Replies(nil, textReply("hello"))
		session := newSession("hi")

		final, err := agent.New(provider, failingExecutor(t)).Run(context.Background(), session, nil)
		require.NoError(t, err)
		assert.Equal(t, "hello", final.Text())
		require.Len(t, session.Messages, 2)
		assert.False(t, session.UpdatedAt.IsZero())
	})

	t.Run("single tool call", func(t *testing.T) {
		t.Parallel()
		var reqs []mcpbridge.Request
		provider := mock.Replies(&reqs,
			toolReply(mcpbridge.ToolCallBlock{ID: "call_1", Name: "memory_get", Arguments: json.RawMessage(`{"key":"k"}`)}),
			textReply("the value is v"),
		)

		var executedName string
		var executedArgs json.RawMessage
		executor := &mock.ToolExecutor{
			ExecuteFn: func(_ context.Context, name string, args json.RawMessage) (*mcpbridge.ToolResult, error) {
				executedName = name
				executedArgs = args
				return mcpbridge.TextResult(`{"key":"k","value":"v"}`), nil
			},
		}

		session := newSession("what is k?")
		final, err := agent.New(provider, executor).Run(context.Background(), session, nil)
		require.NoError(t, err)
		assert.Equal(t, "the value is v", final.Text())

		require.Len(t, session.Messages, 4)
		trm, ok := session.Messages[2].(mcpbridge.ToolResultMessage)
		require.True(t, ok)
		assert.Equal(t, "call_1", trm.ToolCallID)
		assert.Equal(t, "memory_get", trm.ToolName)
		assert.False(t, trm.IsError)
		assert.JSONEq(t, `{"key":"k","value":"v"}`, trm.Text())

		assert.Equal(t, "memory_get", executedName)
		assert.JSONEq(t, `{"key":"k"}`, string(executedArgs))

		// The second query carries the tool result.
		require.Len(t, reqs, 2)
		assert.Len(t, reqs[0].Messages, 1)
		assert.Len(t, reqs[1].Messages, 3)
		assert.NoError(t, mcpbridge.ValidateConversation(reqs[1].Messages))
	})

	t.Run("tool calls run in listed order", func(t *testing.T) {
		t.Parallel()
		provider := mock.Replies(nil,
			toolReply(
				mcpbridge.ToolCallBlock{ID: "c1", Name: "gmaps_geocode", Arguments: json.RawMessage(`{"address":"a"}`)},
				mcpbridge.ToolCallBlock{ID: "c2", Name: "gmaps_reverseGeocode", Arguments: json.RawMessage(`{"lat":1,"lng":2}`)},
				mcpbridge.ToolCallBlock{ID: "c3", Name: "memory_set", Arguments: json.RawMessage(`{"key":"k","value":"v"}`)},
			),
			textReply("done"),
		)

		var order []string
		executor := &mock.ToolExecutor{
			ExecuteFn: func(_ context.Context, name string, _ json.RawMessage) (*mcpbridge.ToolResult, error) {
				order = append(order, name)
				return mcpbridge.TextResult("ok"), nil
			},
		}

		session := newSession("go")
		_, err := agent.New(provider, executor).Run(context.Background(), session, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"gmaps_geocode", "gmaps_reverseGeocode", "memory_set"}, order)

		var ids []string
		for _, m := range session.Messages {
			if trm, ok := m.(mcpbridge.ToolResultMessage); ok {
				ids = append(ids, trm.ToolCallID)
			}
		}
		assert.Equal(t, []string{"c1", "c2", "c3"}, ids)
	})

	t.Run("malformed arguments become error result", func(t *testing.T) {
		t.Parallel()
		var reqs []mcpbridge.Request
		provider := mock.Replies(&reqs,
			toolReply(mcpbridge.ToolCallBlock{ID: "bad", Name: "github_listRepos", Arguments: json.RawMessage(`{"username": "octo`)}),
			textReply("sorry"),
		)

		session := newSession("list repos")
		_, err := agent.New(provider, failingExecutor(t)).Run(context.Background(), session, nil)
		require.NoError(t, err)

		trm := session.Messages[2].(mcpbridge.ToolResultMessage)
		assert.True(t, trm.IsError)
		assert.Equal(t, "bad", trm.ToolCallID)
		assert.Contains(t, trm.Text(), mcpbridge.ErrArgumentDecode.Error())
		assert.Len(t, reqs, 2)
	})

	t.Run("non-object arguments become error result", func(t *testing.T) {
		t.Parallel()
		provider := mock.Replies(nil,
			toolReply(mcpbridge.ToolCallBlock{ID: "arr", Name: "github_listRepos", Arguments: json.RawMessage(`["octocat"]`)}),
			textReply("sorry"),
		)
		session := newSession("list repos")
		_, err := agent.New(provider, failingExecutor(t)).Run(context.Background(), session, nil)
		require.NoError(t, err)
		assert.True(t, session.Messages[2].(mcpbridge.ToolResultMessage).IsError)
	})

	t.Run("empty arguments mean no parameters", func(t *testing.T) {
		t.Parallel()
		provider := mock.Replies(nil,
			toolReply(mcpbridge.ToolCallBlock{ID: "c1", Name: "memory_list"}),
			textReply("none"),
		)
		executor := &mock.ToolExecutor{
			ExecuteFn: func(_ context.Context, _ string, args json.RawMessage) (*mcpbridge.ToolResult, error) {
				assert.JSONEq(t, `{}`, string(args))
				return mcpbridge.TextResult(`{"items":[],"total":0}`), nil
			},
		}
		_, err := agent.New(provider, executor).Run(context.Background(), newSession("list"), nil)
		require.NoError(t, err)
	})

	t.Run("domain error fed back to model", func(t *testing.T) {
		t.Parallel()
		var reqs []mcpbridge.Request
		provider := mock.Replies(&reqs,
			toolReply(mcpbridge.ToolCallBlock{ID: "c1", Name: "gmaps_geocode", Arguments: json.RawMessage(`{"address":"x"}`)}),
			textReply("the geocoder is rate limited"),
		)
		executor := &mock.ToolExecutor{
			ExecuteFn: func(context.Context, string, json.RawMessage) (*mcpbridge.ToolResult, error) {
				return mcpbridge.ErrorResult("gmaps.geocode: rate limited"), nil
			},
		}

		session := newSession("where is x?")
		_, err := agent.New(provider, executor).Run(context.Background(), session, nil)
		require.NoError(t, err)
		trm := session.Messages[2].(mcpbridge.ToolResultMessage)
		assert.True(t, trm.IsError)
		assert.Equal(t, "gmaps.geocode: rate limited", trm.Text())
		assert.Len(t, reqs, 2)
	})

	t.Run("infrastructure error ends run with every call answered", func(t *testing.T) {
		t.Parallel()
		var reqs []mcpbridge.Request
		provider := mock.Replies(&reqs,
			toolReply(
				mcpbridge.ToolCallBlock{ID: "c1", Name: "gmaps_geocode", Arguments: json.RawMessage(`{}`)},
				mcpbridge.ToolCallBlock{ID: "c2", Name: "github_listRepos", Arguments: json.RawMessage(`{}`)},
			),
			textReply("unreachable"),
		)
		netErr := errors.Join(errors.New("dial tcp: connection refused"), mcpbridge.ErrNetwork)
		var executed int
		executor := &mock.ToolExecutor{
			ExecuteFn: func(context.Context, string, json.RawMessage) (*mcpbridge.ToolResult, error) {
				executed++
				return nil, netErr
			},
		}

		session := newSession("x")
		_, err := agent.New(provider, executor).Run(context.Background(), session, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, mcpbridge.ErrNetwork)
		assert.Len(t, reqs, 1)
		assert.Equal(t, 1, executed)

		require.NoError(t, mcpbridge.ValidateConversation(session.Messages))
		require.Len(t, session.Messages, 4)
		for i, id := range []string{"c1", "c2"} {
			trm, ok := session.Messages[2+i].(mcpbridge.ToolResultMessage)
			require.True(t, ok)
			assert.Equal(t, id, trm.ToolCallID)
			assert.True(t, trm.IsError)
			assert.Contains(t, trm.Text(), "not executed")
			assert.Contains(t, trm.Text(), "connection refused")
		}
	})

	t.Run("cancellation between calls answers the rest", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		provider := mock.Replies(nil,
			toolReply(
				mcpbridge.ToolCallBlock{ID: "c1", Name: "gmaps_geocode", Arguments: json.RawMessage(`{}`)},
				mcpbridge.ToolCallBlock{ID: "c2", Name: "gmaps_geocode", Arguments: json.RawMessage(`{}`)},
			),
		)
		executor := &mock.ToolExecutor{
			ExecuteFn: func(context.Context, string, json.RawMessage) (*mcpbridge.ToolResult, error) {
				cancel()
				return mcpbridge.TextResult(`{"lat":1}`), nil
			},
		}

		session := newSession("x")
		_, err := agent.New(provider, executor).Run(ctx, session, nil)
		require.ErrorIs(t, err, context.Canceled)
		require.NoError(t, mcpbridge.ValidateConversation(session.Messages))

		first, ok := session.Messages[2].(mcpbridge.ToolResultMessage)
		require.True(t, ok)
		assert.False(t, first.IsError)
		second, ok := session.Messages[3].(mcpbridge.ToolResultMessage)
		require.True(t, ok)
		assert.Equal(t, "c2", second.ToolCallID)
		assert.True(t, second.IsError)
	})

	t.Run("provider error", func(t *testing.T) {
		t.Parallel()
		wantErr := errors.New("openai: invalid_api_key: Incorrect API key provided")
		provider := &mock.Provider{
			CompleteFn: func(context.Context, mcpbridge.Request) (mcpbridge.AssistantMessage, error) {
				return mcpbridge.AssistantMessage{}, wantErr
			},
		}
		session := newSession("x")
		_, err := agent.New(provider, failingExecutor(t)).Run(context.Background(), session, nil)
		assert.ErrorIs(t, err, wantErr)
		assert.Len(t, session.Messages, 1)
	})

	t.Run("context cancellation", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		provider := &mock.Provider{
			CompleteFn: func(context.Context, mcpbridge.Request) (mcpbridge.AssistantMessage, error) {
				t.Fatal("provider should not be called")
				return mcpbridge.AssistantMessage{}, nil
			},
		}
		_, err := agent.New(provider, failingExecutor(t)).Run(ctx, newSession("x"), nil)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("turn limit is reported with consistent session", func(t *testing.T) {
		t.Parallel()
		var reqs []mcpbridge.Request
		provider := mock.Replies(&reqs,
			toolReply(mcpbridge.ToolCallBlock{ID: "loop", Name: "memory_list", Arguments: json.RawMessage(`{}`)}),
		)
		executor := &mock.ToolExecutor{
			ExecuteFn: func(context.Context, string, json.RawMessage) (*mcpbridge.ToolResult, error) {
				return mcpbridge.TextResult(`[]`), nil
			},
		}

		session := newSession("forever")
		final, err := agent.New(provider, executor).Run(context.Background(), session, nil, agent.WithMaxTurns(3))
		require.Error(t, err)
		assert.ErrorIs(t, err, mcpbridge.ErrTurnLimit)
		assert.Len(t, reqs, 3)
		assert.Equal(t, mcpbridge.StopToolUse, final.StopReason)
		// user + 3 × (assistant + tool result)
		assert.Len(t, session.Messages, 7)
	})

	t.Run("last allowed turn may finish", func(t *testing.T) {
		t.Parallel()
		provider := mock.Replies(nil,
			toolReply(mcpbridge.ToolCallBlock{ID: "c1", Name: "memory_list", Arguments: json.RawMessage(`{}`)}),
			textReply("done"),
		)
		executor := &mock.ToolExecutor{
			ExecuteFn: func(context.Context, string, json.RawMessage) (*mcpbridge.ToolResult, error) {
				return mcpbridge.TextResult(`[]`), nil
			},
		}
		final, err := agent.New(provider, executor).Run(context.Background(), newSession("x"), nil, agent.WithMaxTurns(2))
		require.NoError(t, err)
		assert.Equal(t, "done", final.Text())
	})

	t.Run("request carries run options", func(t *testing.T) {
		t.Parallel()
		var reqs []mcpbridge.Request
		provider := mock.Replies(&reqs, textReply("ok"))
		tools := []mcpbridge.Tool{{Name: "github_listRepos", Description: "List repositories", Parameters: json.RawMessage(`{"type":"object"}`)}}

		_, err := agent.New(provider, failingExecutor(t)).Run(context.Background(), newSession("x"), tools,
			agent.WithModel("gpt-4o"),
			agent.WithTemperature(0.7),
			agent.WithMaxTokens(512),
		)
		require.NoError(t, err)
		require.Len(t, reqs, 1)
		assert.Equal(t, "gpt-4o", reqs[0].Model)
		assert.Equal(t, "You are a helpful assistant with access to tools.", reqs[0].SystemPrompt)
		require.NotNil(t, reqs[0].Temperature)
		assert.InDelta(t, 0.7, *reqs[0].Temperature, 1e-9)
		assert.Equal(t, 512, reqs[0].MaxTokens)
		assert.Equal(t, tools, reqs[0].Tools)
	})

	t.Run("invalid temperature fails before query", func(t *testing.T) {
		t.Parallel()
		provider := &mock.Provider{
			CompleteFn: func(context.Context, mcpbridge.Request) (mcpbridge.AssistantMessage, error) {
				t.Fatal("provider should not be called")
				return mcpbridge.AssistantMessage{}, nil
			},
		}
		_, err := agent.New(provider, failingExecutor(t)).Run(context.Background(), newSession("x"), nil, agent.WithTemperature(3))
		assert.ErrorIs(t, err, mcpbridge.ErrValidation)
	})

	t.Run("events follow conversation order", func(t *testing.T) {
		t.Parallel()
		provider := mock.Replies(nil,
			toolReply(mcpbridge.ToolCallBlock{ID: "c1", Name: "memory_get", Arguments: json.RawMessage(`{"key":"k"}`)}),
			textReply("done"),
		)
		executor := &mock.ToolExecutor{
			ExecuteFn: func(context.Context, string, json.RawMessage) (*mcpbridge.ToolResult, error) {
				return mcpbridge.TextResult("v"), nil
			},
		}

		var events []mcpbridge.Event
		_, err := agent.New(provider, executor).Run(context.Background(), newSession("x"), nil,
			agent.WithEventHandler(func(e mcpbridge.Event) { events = append(events, e) }))
		require.NoError(t, err)

		require.Len(t, events, 4)
		assert.IsType(t, mcpbridge.EventAssistant{}, events[0])
		assert.Equal(t, "c1", events[1].(mcpbridge.EventToolCall).Call.ID)
		assert.Equal(t, mcpbridge.EventToolResult{ID: "c1", ToolName: "memory_get", Content: "v"}, events[2])
		assert.Equal(t, "done", events[3].(mcpbridge.EventAssistant).Message.Text())
	})
}

const reposManifest = `{"tools":{"github":{"actions":{
  "listRepos":{"description":"List repositories for a user","parameters":{
    "username":{"type":"string","description":"GitHub username"}}}}}}}`

func TestLoop_RunAgainstGateway(t *testing.T) {
	t.Parallel()

	srv := gatewaytest.NewServer(reposManifest)
	defer srv.Close()
	srv.Handle("github", "listRepos", func(params map[string]any) (any, error) {
		return []map[string]any{
			{"name": "Hello-World", "description": "My first repository"},
			{"name": "Spoon-Knife", "description": "Fork me"},
		}, nil
	})

	gw := gateway.New(srv.URL)
	tools, err := gw.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 1)

	var reqs []mcpbridge.Request
	provider := mock.Replies(&reqs,
		toolReply(mcpbridge.ToolCallBlock{ID: "call_abc", Name: "github_listRepos", Arguments: json.RawMessage(`{"username": "octocat"}`)}),
		textReply("octocat has 2 repositories: Hello-World and Spoon-Knife."),
	)

	session := newSession("Which repositories does octocat have?")
	final, err := agent.New(provider, gw).Run(context.Background(), session, tools)
	require.NoError(t, err)

	assert.Len(t, reqs, 2, "model queries")
	calls := srv.Calls()
	require.Len(t, calls, 1, "gateway calls")
	assert.Equal(t, "github", calls[0].Tool)
	assert.Equal(t, "listRepos", calls[0].Action)
	assert.Equal(t, map[string]any{"username": "octocat"}, calls[0].Parameters)

	require.Len(t, session.Messages, 4)
	trm := session.Messages[2].(mcpbridge.ToolResultMessage)
	assert.Equal(t, "call_abc", trm.ToolCallID)
	assert.False(t, trm.IsError)
	assert.JSONEq(t, `[{"name":"Hello-World","description":"My first repository"},{"name":"Spoon-Knife","description":"Fork me"}]`, trm.Text())

	assert.Equal(t, "octocat has 2 repositories: Hello-World and Spoon-Knife.", final.Text())
	assert.Equal(t, tools, reqs[1].Tools)
}
