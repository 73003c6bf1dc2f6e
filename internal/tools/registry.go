// Package tools holds the typed tool registry and the graph node that executes
// tool calls declared by the model.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/oklog/ulid/v2"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/danshapiro/newsroom/internal/llm"
	"github.com/danshapiro/newsroom/internal/metrics"
)

// Tool is a capability the model may invoke by name.
type Tool interface {
	Definition() llm.ToolDefinition
	Invoke(ctx context.Context, args map[string]any) (string, error)
}

// Func adapts a definition and a function to Tool.
type Func struct {
	Def llm.ToolDefinition
	Fn  func(ctx context.Context, args map[string]any) (string, error)
}

func (f Func) Definition() llm.ToolDefinition { return f.Def }

func (f Func) Invoke(ctx context.Context, args map[string]any) (string, error) {
	return f.Fn(ctx, args)
}

// DefaultMaxOutputChars bounds the text returned to the model per call.
const DefaultMaxOutputChars = 20_000

type registered struct {
	tool   Tool
	schema *jsonschema.Schema
}

type Registry struct {
	mu             sync.RWMutex
	tools          map[string]registered
	MaxOutputChars int
}

func NewRegistry() *Registry {
	return &Registry{tools: map[string]registered{}, MaxOutputChars: DefaultMaxOutputChars}
}

// Register validates the tool's name and compiles its argument schema.
func (r *Registry) Register(t Tool) error {
	if t == nil {
		return fmt.Errorf("register: nil tool")
	}
	def := t.Definition()
	if err := llm.ValidateToolName(def.Name); err != nil {
		return err
	}
	s, err := compileSchema(def.Parameters)
	if err != nil {
		return fmt.Errorf("tool %s schema: %w", def.Name, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.tools[def.Name]; dup {
		return fmt.Errorf("tool %s already registered", def.Name)
	}
	r.tools[def.Name] = registered{tool: t, schema: s}
	return nil
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tools))
	for name := range r.tools {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Definitions returns the tool definitions to bind to a completion request,
// sorted by name.
func (r *Registry) Definitions() []llm.ToolDefinition {
	names := r.Names()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]llm.ToolDefinition, 0, len(names))
	for _, name := range names {
		out = append(out, r.tools[name].tool.Definition())
	}
	return out
}

// Subset returns a registry holding the tools whose names match any of the
// glob patterns (e.g. "get_*").
func (r *Registry) Subset(patterns ...string) (*Registry, error) {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid tool pattern %q", p)
		}
	}
	out := NewRegistry()
	out.MaxOutputChars = r.MaxOutputChars
	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, t := range r.tools {
		for _, p := range patterns {
			if ok, _ := doublestar.Match(p, name); ok {
				out.tools[name] = t
				break
			}
		}
	}
	return out, nil
}

// Result is the outcome of one tool call. Output is what the model sees.
type Result struct {
	ToolName string
	CallID   string
	Output   string
	IsError  bool
}

// Message converts the result into the tool-role message answering its call.
func (res Result) Message() llm.Message {
	return llm.ToolResult(res.CallID, res.ToolName, res.Output)
}

// Execute runs one call. It never returns an error: lookup, argument and
// execution failures are reported to the model as an error result.
func (r *Registry) Execute(ctx context.Context, call llm.ToolCall) Result {
	name := call.Name
	callID := strings.TrimSpace(call.ID)
	if callID == "" {
		callID = "call_" + strings.ToLower(ulid.Make().String())
	}

	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return r.failed(name, callID, fmt.Sprintf("unknown tool: %s", name))
	}

	var args map[string]any
	if len(call.Arguments) > 0 {
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			return r.failed(name, callID, fmt.Sprintf("invalid tool arguments JSON: %v", err))
		}
	}
	if args == nil {
		args = map[string]any{}
	}
	if err := t.schema.Validate(args); err != nil {
		return r.failed(name, callID, fmt.Sprintf("tool args schema validation failed: %v", err))
	}

	out, err := t.tool.Invoke(ctx, args)
	if err != nil {
		return r.failed(name, callID, err.Error())
	}
	metrics.ToolCallsTotal.WithLabelValues(name, "ok").Inc()
	return Result{ToolName: name, CallID: callID, Output: truncate(out, r.MaxOutputChars)}
}

func (r *Registry) failed(name, callID, msg string) Result {
	metrics.ToolCallsTotal.WithLabelValues(name, "error").Inc()
	return Result{
		ToolName: name,
		CallID:   callID,
		Output:   truncate("Error: "+msg, r.MaxOutputChars),
		IsError:  true,
	}
}

// truncate keeps the head and tail of s and marks the omitted middle.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	removed := len(s) - max
	head := max / 2
	tail := max - head
	marker := fmt.Sprintf("\n\n[WARNING: Tool output was truncated. %d characters were removed from the middle.]\n\n", removed)
	return s[:head] + marker + s[len(s)-tail:]
}

func compileSchema(params map[string]any) (*jsonschema.Schema, error) {
	if params == nil {
		params = map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		}
	}
	b, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", strings.NewReader(string(b))); err != nil {
		return nil, err
	}
	return c.Compile("schema.json")
}
