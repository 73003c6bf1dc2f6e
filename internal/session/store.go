// Package session persists conversation state per thread across separate
// invocations.
package session

import (
	"context"
	"errors"
	"strings"

	"github.com/danshapiro/newsroom/internal/graph"
)

var (
	ErrInvalidThreadID = errors.New("invalid thread id")
	ErrCorrupt         = errors.New("corrupt session document")
)

// Unlock releases a thread lock. It is safe to call more than once.
type Unlock func()

// Store maps thread ids to their conversation state. Load of an unseen
// thread returns an empty state. Lock serializes invocations on one thread;
// different threads never contend.
type Store interface {
	Load(ctx context.Context, threadID string) (graph.State, error)
	Save(ctx context.Context, threadID string, state graph.State) error
	Lock(ctx context.Context, threadID string) (Unlock, error)
}

func normalizeThreadID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", ErrInvalidThreadID
	}
	return id, nil
}
