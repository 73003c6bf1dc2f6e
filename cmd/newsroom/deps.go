package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/danshapiro/newsroom/internal/config"
	"github.com/danshapiro/newsroom/internal/graph"
	"github.com/danshapiro/newsroom/internal/llm"
	"github.com/danshapiro/newsroom/internal/llm/openrouter"
	"github.com/danshapiro/newsroom/internal/pipeline"
	"github.com/danshapiro/newsroom/internal/retry"
	"github.com/danshapiro/newsroom/internal/search"
	"github.com/danshapiro/newsroom/internal/session"
	"github.com/danshapiro/newsroom/internal/tools"
)

const searchCacheTTL = 10 * time.Minute

func newCompleter(cfg *config.Config) (llm.Completer, error) {
	if err := cfg.RequireAPIKey(); err != nil {
		return nil, err
	}
	return openrouter.New(openrouter.Config{
		APIKey:  cfg.OpenRouterAPIKey,
		BaseURL: cfg.OpenRouterBaseURL,
		Title:   cfg.ServiceName,
	})
}

func newSearch(cfg *config.Config) (search.Provider, error) {
	retries := cfg.SearchRetries
	if retries == 0 {
		retries = search.NoRetries
	}
	var p search.Provider = search.NewDuckDuckGo(search.DuckDuckGoConfig{
		BaseURL:     cfg.SearchURL,
		MinInterval: time.Second,
		Retries:     retries,
	})
	if cfg.SearchCacheSize == 0 {
		return p, nil
	}
	cached, err := search.NewCached(p, cfg.SearchCacheSize, searchCacheTTL)
	if err != nil {
		return nil, err
	}
	return cached, nil
}

func retryPolicy(cfg *config.Config) retry.Policy {
	delay := cfg.RetryBaseDelay
	if delay == 0 {
		delay = retry.NoWait
	}
	return retry.Policy{
		MaxAttempts:     cfg.RetryMaxAttempts,
		BaseDelay:       delay,
		HonorRetryAfter: cfg.RetryHonorRetryAfter,
	}
}

func pipelineOptions(cfg *config.Config, extra ...pipeline.Option) []pipeline.Option {
	opts := []pipeline.Option{
		pipeline.WithModel(cfg.Model),
		pipeline.WithTemperature(cfg.Temperature),
		pipeline.WithWordLimit(cfg.WordLimit),
		pipeline.WithEditor(cfg.Editor),
		pipeline.WithRetryPolicy(retryPolicy(cfg)),
	}
	return append(opts, extra...)
}

// chatOptions shape the newsroom behind the chat UI: a 200-word article
// brief, an apology instead of a failed turn, and no editor unless asked.
func chatOptions(editor bool) []pipeline.Option {
	return []pipeline.Option{
		pipeline.WithWriterPrompt(pipeline.ChatWriterPrompt),
		pipeline.WithEditor(editor),
		pipeline.WithFallback(pipeline.FallbackMessage),
	}
}

func runOptions(cfg *config.Config) []graph.Option {
	return []graph.Option{graph.WithMaxSteps(cfg.MaxSteps)}
}

func newNewsroom(cfg *config.Config, c llm.Completer, p search.Provider, extra ...pipeline.Option) (*graph.Graph, error) {
	return pipeline.Newsroom(c, p, pipelineOptions(cfg, extra...)...)
}

// newAssistant binds the builtin tools, narrowed to those matching patterns
// (or NEWSROOM_TOOLS when patterns is empty).
func newAssistant(cfg *config.Config, c llm.Completer, p search.Provider, patterns ...string) (*graph.Graph, error) {
	reg, err := tools.Builtins(p)
	if err != nil {
		return nil, err
	}
	if len(patterns) == 0 {
		patterns = cfg.Tools
	}
	if len(patterns) > 0 {
		if reg, err = reg.Subset(patterns...); err != nil {
			return nil, err
		}
		if len(reg.Names()) == 0 {
			return nil, fmt.Errorf("no tools match %s", strings.Join(patterns, ", "))
		}
	}
	return pipeline.Assistant(c, reg, pipelineOptions(cfg)...)
}

// newStore opens the session backend named by SESSION_BACKEND. The returned
// close function is never nil.
func (a *app) newStore(ctx context.Context) (session.Store, func() error, error) {
	noop := func() error { return nil }
	switch a.cfg.SessionBackend {
	case config.SessionMemory:
		return session.NewMemoryStore(), noop, nil
	case config.SessionFile:
		s, err := session.NewFileStore(a.cfg.SessionDir)
		if err != nil {
			return nil, nil, err
		}
		return s, noop, nil
	case config.SessionRedis:
		s, err := session.NewRedisStore(ctx, a.cfg.RedisURL, session.RedisOptions{}, a.log)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown session backend %q", a.cfg.SessionBackend)
	}
}
