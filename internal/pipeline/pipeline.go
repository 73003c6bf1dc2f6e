// Package pipeline assembles the newsroom (researcher, writer, editor) and
// assistant (agent, tools) graphs.
package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/danshapiro/newsroom/internal/graph"
	"github.com/danshapiro/newsroom/internal/llm"
	"github.com/danshapiro/newsroom/internal/metrics"
	"github.com/danshapiro/newsroom/internal/observability"
	"github.com/danshapiro/newsroom/internal/retry"
	"github.com/danshapiro/newsroom/internal/search"
	"github.com/danshapiro/newsroom/internal/tools"
)

const (
	NodeResearcher = "researcher"
	NodeWriter     = "writer"
	NodeEditor     = "editor"
	NodeAgent      = "agent"
	NodeTools      = "tools"
)

type stages struct {
	llm      llm.Completer
	settings settings
}

// complete sends one request under the retry policy. Waits are logged,
// counted and recorded on the active span.
func (s *stages) complete(ctx context.Context, node string, req llm.Request) (llm.Message, error) {
	req.Model = s.settings.model
	req.Temperature = s.settings.temperature

	policy := s.settings.retry
	next := policy.OnRetry
	policy.OnRetry = func(ev retry.Event) {
		zerolog.Ctx(ctx).Warn().
			Err(ev.Err).
			Str("node", node).
			Int("attempt", ev.Attempt).
			Dur("wait", ev.Delay).
			Msg("rate limited, waiting before retry")
		metrics.RetryWaitsTotal.WithLabelValues(node).Inc()
		observability.AddRetryEvent(ctx, ev.Attempt, ev.Err.Error())
		if next != nil {
			next(ev)
		}
	}
	msg, err := retry.Completer(s.llm, policy).Complete(ctx, req)
	if err != nil {
		return llm.Message{}, err
	}
	msg.Role = llm.RoleAssistant
	return msg, nil
}

func researcher(p search.Provider) graph.Node {
	return graph.NodeFunc(func(ctx context.Context, state graph.State) (graph.State, error) {
		query := state.LastContent()
		text := search.NoResults
		results, err := p.Search(ctx, query)
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("query", query).Msg("search failed, continuing without results")
		} else {
			text = search.Format(results)
		}
		return graph.State{llm.User(FactsPrefix + text)}, nil
	})
}

func (s *stages) writer() graph.Node {
	return graph.NodeFunc(func(ctx context.Context, state graph.State) (graph.State, error) {
		last, _ := state.Last()
		msg, err := s.complete(ctx, NodeWriter, llm.Request{
			Messages: []llm.Message{llm.System(s.settings.writerPrompt), last},
		})
		if err != nil {
			if s.settings.fallback == "" || ctx.Err() != nil {
				return nil, err
			}
			zerolog.Ctx(ctx).Error().Err(err).Msg("writer failed, answering with fallback")
			return graph.State{llm.Assistant(s.settings.fallback)}, nil
		}
		zerolog.Ctx(ctx).Info().Int("words", graph.WordCount(msg.Content)).Msg("draft written")
		return graph.State{msg}, nil
	})
}

func (s *stages) editor() graph.Node {
	return graph.NodeFunc(func(ctx context.Context, state graph.State) (graph.State, error) {
		last, _ := state.Last()
		msg, err := s.complete(ctx, NodeEditor, llm.Request{
			Messages: []llm.Message{llm.System(EditorPrompt), last},
		})
		if err != nil {
			return nil, err
		}
		return graph.State{msg}, nil
	})
}

// Newsroom builds researcher -> writer -> editor, where the editor only runs
// for drafts longer than the word limit.
func Newsroom(c llm.Completer, p search.Provider, opts ...Option) (*graph.Graph, error) {
	if c == nil || p == nil {
		return nil, fmt.Errorf("newsroom pipeline needs a completer and a search provider")
	}
	s := &stages{llm: c, settings: defaultSettings()}
	for _, o := range opts {
		o(&s.settings)
	}

	b := graph.NewBuilder().
		AddNode(NodeResearcher, researcher(p)).
		AddNode(NodeWriter, s.writer()).
		SetEntry(NodeResearcher).
		AddEdge(NodeResearcher, NodeWriter)
	if s.settings.editor {
		b.AddNode(NodeEditor, s.editor()).
			AddConditionalEdges(NodeWriter, graph.WordLimit(s.settings.wordLimit, NodeEditor), NodeEditor).
			AddEdge(NodeEditor, graph.End)
	} else {
		b.AddEdge(NodeWriter, graph.End)
	}
	return b.Compile()
}

func (s *stages) agent(reg *tools.Registry) graph.Node {
	return graph.NodeFunc(func(ctx context.Context, state graph.State) (graph.State, error) {
		msgs := make([]llm.Message, 0, len(state)+1)
		if s.settings.systemPrompt != "" {
			msgs = append(msgs, llm.System(s.settings.systemPrompt))
		}
		msgs = append(msgs, state...)
		msg, err := s.complete(ctx, NodeAgent, llm.Request{
			Messages: msgs,
			Tools:    reg.Definitions(),
		})
		if err != nil {
			return nil, err
		}
		return graph.State{msg}, nil
	})
}

// Assistant builds the agent <-> tools loop: the agent answers or requests
// tools, the tools node runs them and hands control back.
func Assistant(c llm.Completer, reg *tools.Registry, opts ...Option) (*graph.Graph, error) {
	if c == nil || reg == nil {
		return nil, fmt.Errorf("assistant pipeline needs a completer and a tool registry")
	}
	s := &stages{llm: c, settings: defaultSettings()}
	for _, o := range opts {
		o(&s.settings)
	}
	return graph.NewBuilder().
		AddNode(NodeAgent, s.agent(reg)).
		AddNode(NodeTools, tools.Node(reg)).
		SetEntry(NodeAgent).
		AddConditionalEdges(NodeAgent, graph.ToolCalls(NodeTools), NodeTools).
		AddEdge(NodeTools, NodeAgent).
		Compile()
}

// FinalAnswer is the content of the last assistant message, or "".
func FinalAnswer(state graph.State) string {
	m, ok := state.LastOfRole(llm.RoleAssistant)
	if !ok {
		return ""
	}
	return m.Content
}
