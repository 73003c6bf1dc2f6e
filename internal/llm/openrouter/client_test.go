package openrouter

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danshapiro/newsroom/internal/llm"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Config{APIKey: "sk-test", BaseURL: srv.URL, Title: "newsroom"})
	require.NoError(t, err)
	return c
}

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := New(Config{})
	var cfgErr *llm.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestComplete_TranslatesRequestAndToolCalls(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "newsroom", r.Header.Get("X-Title"))
		b, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(b, &got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "gen-1",
			"object": "chat.completion",
			"model": "test/model",
			"choices": [{
				"index": 0,
				"finish_reason": "tool_calls",
				"message": {
					"role": "assistant",
					"content": "",
					"tool_calls": [{
						"id": "call_1",
						"type": "function",
						"function": {"name": "get_current_weather", "arguments": "{\"location\":\"Tokyo\"}"}
					}]
				}
			}]
		}`)
	})

	msg, err := c.Complete(context.Background(), llm.Request{
		Model:    "test/model",
		Messages: []llm.Message{llm.User("What's the weather like in Tokyo right now?")},
		Tools: []llm.ToolDefinition{{
			Name:        "get_current_weather",
			Description: "Get the current weather in a given location",
			Parameters:  map[string]any{"type": "object"},
		}},
	})
	require.NoError(t, err)

	assert.Equal(t, "test/model", got["model"])
	tools, ok := got["tools"].([]any)
	require.True(t, ok)
	assert.Len(t, tools, 1)

	assert.Equal(t, llm.RoleAssistant, msg.Role)
	require.Len(t, msg.ToolCalls, 1)
	assert.Equal(t, "call_1", msg.ToolCalls[0].ID)
	assert.Equal(t, "get_current_weather", msg.ToolCalls[0].Name)
	assert.JSONEq(t, `{"location":"Tokyo"}`, string(msg.ToolCalls[0].Arguments))
	assert.True(t, msg.HasToolCalls())
}

func TestComplete_RateLimitedCarriesRetryAfter(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"message":"Rate limit exceeded: free-models-per-min","code":429}}`)
	})

	_, err := c.Complete(context.Background(), llm.Request{Model: "m", Messages: []llm.Message{llm.User("hi")}})
	require.Error(t, err)

	var rl *llm.RateLimitError
	require.ErrorAs(t, err, &rl)
	assert.True(t, llm.IsRateLimited(err))
	ra := llm.RetryAfterOf(err)
	require.NotNil(t, ra)
	assert.Equal(t, 2*time.Second, *ra)
}

func TestComplete_ServerErrorIsNotRateLimited(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"No auth credentials found","code":401}}`)
	})

	_, err := c.Complete(context.Background(), llm.Request{Model: "m", Messages: []llm.Message{llm.User("hi")}})
	require.Error(t, err)
	assert.True(t, llm.IsAuthenticationError(err))
	assert.False(t, llm.IsRateLimited(err))
}

func TestToChatCompletionRequest_ToolResult(t *testing.T) {
	req := toChatCompletionRequest(llm.Request{Model: "m", Temperature: 0.7, Messages: []llm.Message{
		llm.ToolResult("call_1", "get_current_weather", `{"temperature":"10"}`),
	}})
	assert.InDelta(t, 0.7, req.Temperature, 1e-6)
	assert.Equal(t, "call_1", req.Messages[0].ToolCallID)
	assert.Equal(t, "tool", req.Messages[0].Role)
}

func TestComplete_SendsExplicitTemperature(t *testing.T) {
	var bodies []map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var got map[string]any
		b, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(b, &got))
		assert.EqualValues(t, len(b), r.ContentLength)
		bodies = append(bodies, got)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"choices":[{"index":0,"message":{"role":"assistant","content":"ok"}}]}`)
	})

	for _, temp := range []float64{0, 0.7} {
		msg, err := c.Complete(context.Background(), llm.Request{Model: "m", Temperature: temp, Messages: []llm.Message{llm.User("hi")}})
		require.NoError(t, err)
		assert.Equal(t, "ok", msg.Content)
	}

	require.Len(t, bodies, 2)
	require.Contains(t, bodies[0], "temperature")
	assert.Equal(t, float64(0), bodies[0]["temperature"])
	assert.Equal(t, "m", bodies[0]["model"])
	assert.InDelta(t, 0.7, bodies[1]["temperature"], 1e-6)
}
