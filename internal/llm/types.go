package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	default:
		return false
	}
}

// ToolCall is a structured request, emitted by the model, to invoke a named tool.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Message is one turn of a conversation. Treat values as immutable once
// appended to a state; use Clone before modifying a copy.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// Set on tool results.
	ToolCallID string `json:"tool_call_id,omitempty"`
	Name       string `json:"name,omitempty"`

	// Set on assistant messages that request tool execution.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

func System(content string) Message    { return Message{Role: RoleSystem, Content: content} }
func User(content string) Message      { return Message{Role: RoleUser, Content: content} }
func Assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// ToolResult builds the tool-role message answering the call with the given id.
func ToolResult(callID, toolName, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: callID, Name: toolName}
}

// HasToolCalls reports whether the message declares pending tool invocations.
func (m Message) HasToolCalls() bool {
	return m.Role == RoleAssistant && len(m.ToolCalls) > 0
}

// Clone returns a deep copy of m.
func (m Message) Clone() Message {
	if len(m.ToolCalls) == 0 {
		m.ToolCalls = nil
		return m
	}
	calls := make([]ToolCall, len(m.ToolCalls))
	for i, c := range m.ToolCalls {
		if c.Arguments != nil {
			c.Arguments = append(json.RawMessage(nil), c.Arguments...)
		}
		calls[i] = c
	}
	m.ToolCalls = calls
	return m
}

// ToolDefinition describes a tool to the model. Parameters is a JSON schema object.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

var toolNameRE = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]{0,63}$`)

func ValidateToolName(name string) error {
	if !toolNameRE.MatchString(name) {
		return &ConfigurationError{Message: fmt.Sprintf("invalid tool name %q", name)}
	}
	return nil
}

// Request is a single chat completion request.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
	Tools       []ToolDefinition
}

func (r Request) Validate() error {
	if strings.TrimSpace(r.Model) == "" {
		return &ConfigurationError{Message: "model is required"}
	}
	if len(r.Messages) == 0 {
		return &ConfigurationError{Message: "at least one message is required"}
	}
	for i, m := range r.Messages {
		if !m.Role.Valid() {
			return &ConfigurationError{Message: fmt.Sprintf("messages[%d]: invalid role %q", i, m.Role)}
		}
	}
	for _, t := range r.Tools {
		if err := ValidateToolName(t.Name); err != nil {
			return err
		}
	}
	return nil
}

// Completer is the completion service boundary. Implementations return
// errors from the unified hierarchy in errors.go so callers can tell
// throttling apart from other failures.
type Completer interface {
	Complete(ctx context.Context, req Request) (Message, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, req Request) (Message, error)

func (f CompleterFunc) Complete(ctx context.Context, req Request) (Message, error) {
	return f(ctx, req)
}
