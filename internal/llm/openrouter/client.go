// Package openrouter implements llm.Completer against an OpenAI-compatible
// chat completions endpoint (OpenRouter by default).
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/danshapiro/newsroom/internal/llm"
)

const (
	DefaultBaseURL = "https://openrouter.ai/api/v1"
	providerName   = "openrouter"

	defaultRequestTimeout = 2 * time.Minute
)

type Config struct {
	APIKey  string
	BaseURL string

	// Optional attribution headers understood by OpenRouter.
	Referer string
	Title   string

	// HTTPClient overrides the transport (tests). Its Transport is wrapped to
	// capture Retry-After hints.
	HTTPClient *http.Client
}

type Client struct {
	api *openai.Client
}

func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, &llm.ConfigurationError{Message: "openrouter api key is required"}
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: defaultRequestTimeout}
	}
	inner := hc.Transport
	if inner == nil {
		inner = http.DefaultTransport
	}
	wrapped := *hc
	wrapped.Transport = &hintTransport{next: inner, referer: cfg.Referer, title: cfg.Title}

	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = base
	oc.HTTPClient = &wrapped
	return &Client{api: openai.NewClientWithConfig(oc)}, nil
}

func (c *Client) Complete(ctx context.Context, req llm.Request) (llm.Message, error) {
	if err := req.Validate(); err != nil {
		return llm.Message{}, err
	}
	hint := &callHints{zeroTemperature: req.Temperature == 0}
	ctx = context.WithValue(ctx, callHintsKey{}, hint)

	resp, err := c.api.CreateChatCompletion(ctx, toChatCompletionRequest(req))
	if err != nil {
		return llm.Message{}, translateError(ctx, err, hint.after)
	}
	if len(resp.Choices) == 0 {
		return llm.Message{}, llm.ErrorFromHTTPStatus(providerName, http.StatusBadGateway, "completion returned no choices", nil)
	}
	return fromChatCompletionMessage(resp.Choices[0].Message), nil
}

func toChatCompletionRequest(req llm.Request) openai.ChatCompletionRequest {
	out := openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(req.Messages)),
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	}
	for _, m := range req.Messages {
		out.Messages = append(out.Messages, toChatCompletionMessage(m))
	}
	for _, t := range req.Tools {
		params := t.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out.Tools = append(out.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return out
}

func toChatCompletionMessage(m llm.Message) openai.ChatCompletionMessage {
	out := openai.ChatCompletionMessage{
		Role:       string(m.Role),
		Content:    m.Content,
		Name:       m.Name,
		ToolCallID: m.ToolCallID,
	}
	for _, tc := range m.ToolCalls {
		args := string(tc.Arguments)
		if strings.TrimSpace(args) == "" {
			args = "{}"
		}
		out.ToolCalls = append(out.ToolCalls, openai.ToolCall{
			ID:   tc.ID,
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionCall{
				Name:      tc.Name,
				Arguments: args,
			},
		})
	}
	return out
}

func fromChatCompletionMessage(m openai.ChatCompletionMessage) llm.Message {
	out := llm.Message{Role: llm.RoleAssistant, Content: m.Content}
	for _, tc := range m.ToolCalls {
		call := llm.ToolCall{ID: tc.ID, Name: tc.Function.Name}
		if args := strings.TrimSpace(tc.Function.Arguments); args != "" {
			call.Arguments = json.RawMessage(args)
		}
		out.ToolCalls = append(out.ToolCalls, call)
	}
	return out
}

func translateError(ctx context.Context, err error, retryAfter *time.Duration) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
		return llm.ErrorFromHTTPStatus(providerName, apiErr.HTTPStatusCode, apiErr.Message, retryAfter)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		msg := reqErr.HTTPStatus
		if reqErr.Err != nil {
			msg = reqErr.Err.Error()
		}
		return llm.ErrorFromHTTPStatus(providerName, reqErr.HTTPStatusCode, msg, retryAfter)
	}
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
		return llm.NewRequestTimeoutError(providerName, err.Error())
	}
	return err
}

type callHintsKey struct{}

// callHints travel with one Complete call through the transport.
type callHints struct {
	// zeroTemperature asks for an explicit "temperature": 0 in the body;
	// go-openai omits a zero temperature and providers then apply their own
	// default (usually 1).
	zeroTemperature bool
	after           *time.Duration
}

// hintTransport adds the attribution headers, pins a zero temperature in the
// request body and records the Retry-After header of throttled responses.
type hintTransport struct {
	next    http.RoundTripper
	referer string
	title   string
}

func (t *hintTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	hint, _ := req.Context().Value(callHintsKey{}).(*callHints)
	if hint != nil && hint.zeroTemperature && req.Body != nil {
		var err error
		if req, err = withZeroTemperature(req); err != nil {
			return nil, err
		}
	}
	if t.referer != "" || t.title != "" {
		req = req.Clone(req.Context())
		if t.referer != "" {
			req.Header.Set("HTTP-Referer", t.referer)
		}
		if t.title != "" {
			req.Header.Set("X-Title", t.title)
		}
	}
	resp, err := t.next.RoundTrip(req)
	if err != nil || resp == nil {
		return resp, err
	}
	if resp.StatusCode == http.StatusTooManyRequests && hint != nil {
		hint.after = llm.ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
	}
	return resp, nil
}

func withZeroTemperature(req *http.Request) (*http.Request, error) {
	raw, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, err
	}
	var body map[string]json.RawMessage
	if err := json.Unmarshal(raw, &body); err == nil {
		if _, set := body["temperature"]; !set {
			body["temperature"] = json.RawMessage("0")
			if b, err := json.Marshal(body); err == nil {
				raw = b
			}
		}
	}
	out := req.Clone(req.Context())
	out.Body = io.NopCloser(bytes.NewReader(raw))
	out.ContentLength = int64(len(raw))
	out.GetBody = func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(raw)), nil }
	return out, nil
}
