package llm

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRetryAfter_Seconds(t *testing.T) {
	now := time.Date(2026, 2, 7, 0, 0, 0, 0, time.UTC)
	d := ParseRetryAfter("12", now)
	require.NotNil(t, d)
	assert.Equal(t, 12*time.Second, *d)
}

func TestParseRetryAfter_HTTPDate(t *testing.T) {
	now := time.Date(2026, 2, 7, 0, 0, 0, 0, time.UTC)
	d := ParseRetryAfter("Sat, 07 Feb 2026 00:00:10 GMT", now)
	require.NotNil(t, d)
	assert.Equal(t, 10*time.Second, *d)
}

func TestParseRetryAfter_Garbage(t *testing.T) {
	assert.Nil(t, ParseRetryAfter("", time.Now()))
	assert.Nil(t, ParseRetryAfter("soon", time.Now()))
}

func TestErrorFromHTTPStatus_MappingAndRetryable(t *testing.T) {
	cases := []struct {
		status    int
		want      string
		retryable bool
	}{
		{400, "*llm.InvalidRequestError", false},
		{401, "*llm.AuthenticationError", false},
		{402, "*llm.QuotaExceededError", false},
		{403, "*llm.AccessDeniedError", false},
		{404, "*llm.NotFoundError", false},
		{408, "*llm.RequestTimeoutError", true},
		{413, "*llm.ContextLengthError", false},
		{422, "*llm.InvalidRequestError", false},
		{429, "*llm.RateLimitError", true},
		{500, "*llm.ServerError", true},
		{503, "*llm.ServerError", true},
		{599, "*llm.UnknownHTTPError", true},
	}
	for _, tc := range cases {
		err := ErrorFromHTTPStatus("p", tc.status, "msg", nil)
		assert.Equal(t, tc.want, fmt.Sprintf("%T", err), "status %d", tc.status)

		var e Error
		require.True(t, errors.As(err, &e), "status %d: not an llm.Error", tc.status)
		assert.Equal(t, tc.retryable, e.Retryable(), "status %d", tc.status)
		assert.Equal(t, tc.status, e.StatusCode())
	}
}

func TestErrorFromHTTPStatus_MessageBasedClassification(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		message string
		want    string
	}{
		{"400 content filter", 400, "content filter policy violated", "*llm.ContentFilterError"},
		{"400 context length", 400, "context length exceeded", "*llm.ContextLengthError"},
		{"400 quota", 400, "quota exceeded for billing account", "*llm.QuotaExceededError"},
		{"400 not found", 400, "model does not exist", "*llm.NotFoundError"},
		{"400 unauthorized", 400, "invalid key", "*llm.AuthenticationError"},
		{"400 plain", 400, "bad request", "*llm.InvalidRequestError"},
		{"422 plain", 422, "invalid field", "*llm.InvalidRequestError"},
		{"429 always rate", 429, "quota exceeded", "*llm.RateLimitError"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ErrorFromHTTPStatus("p", tc.status, tc.message, nil)
			assert.Equal(t, tc.want, fmt.Sprintf("%T", err))
		})
	}
}

func TestIsRateLimited(t *testing.T) {
	ra := 3 * time.Second
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"typed 429", ErrorFromHTTPStatus("openrouter", 429, "slow down", &ra), true},
		{"wrapped 429", fmt.Errorf("writer: %w", ErrorFromHTTPStatus("openrouter", 429, "", nil)), true},
		{"typed 500", ErrorFromHTTPStatus("openrouter", 500, "rate limit mentioned", nil), false},
		{"typed 400 quota", ErrorFromHTTPStatus("openrouter", 400, "quota exceeded", nil), false},
		{"untyped 429 text", errors.New("error, status code: 429, message: busy"), true},
		{"untyped too many requests", errors.New("Too Many Requests"), true},
		{"untyped other", errors.New("connection refused"), false},
		{"configuration", &ConfigurationError{Message: "model is required"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsRateLimited(tc.err))
		})
	}
}

func TestRetryAfterOf(t *testing.T) {
	ra := 7 * time.Second
	err := fmt.Errorf("wrapped: %w", ErrorFromHTTPStatus("p", 429, "", &ra))
	got := RetryAfterOf(err)
	require.NotNil(t, got)
	assert.Equal(t, ra, *got)
	assert.Nil(t, RetryAfterOf(errors.New("plain")))
}

func TestMessageClone_DoesNotAliasToolCalls(t *testing.T) {
	m := Message{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "c1", Name: "get_current_weather", Arguments: []byte(`{"location":"Tokyo"}`)}}}
	c := m.Clone()
	c.ToolCalls[0].Arguments[2] = 'X'
	c.ToolCalls[0].ID = "changed"
	assert.Equal(t, "c1", m.ToolCalls[0].ID)
	assert.Equal(t, `{"location":"Tokyo"}`, string(m.ToolCalls[0].Arguments))
	assert.True(t, m.HasToolCalls())
	assert.False(t, User("hi").HasToolCalls())
}

func TestRequestValidate(t *testing.T) {
	require.NoError(t, Request{Model: "m", Messages: []Message{User("hi")}}.Validate())

	err := Request{Messages: []Message{User("hi")}}.Validate()
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)

	err = Request{Model: "m", Messages: []Message{{Role: "robot"}}}.Validate()
	require.Error(t, err)

	err = Request{Model: "m", Messages: []Message{User("hi")}, Tools: []ToolDefinition{{Name: "bad name"}}}.Validate()
	require.Error(t, err)
}
