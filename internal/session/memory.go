package session

import (
	"context"
	"sync"

	"github.com/danshapiro/newsroom/internal/graph"
)

// MemoryStore keeps thread state in process memory. Nothing is evicted.
type MemoryStore struct {
	mu      sync.RWMutex
	threads map[string]graph.State
	locks   *keyedMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		threads: map[string]graph.State{},
		locks:   newKeyedMutex(),
	}
}

func (s *MemoryStore) Load(_ context.Context, threadID string) (graph.State, error) {
	id, err := normalizeThreadID(threadID)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.threads[id].Clone(), nil
}

func (s *MemoryStore) Save(_ context.Context, threadID string, state graph.State) error {
	id, err := normalizeThreadID(threadID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads[id] = state.Clone()
	return nil
}

func (s *MemoryStore) Lock(ctx context.Context, threadID string) (Unlock, error) {
	id, err := normalizeThreadID(threadID)
	if err != nil {
		return nil, err
	}
	return s.locks.Lock(ctx, id)
}

// Threads returns the number of threads stored.
func (s *MemoryStore) Threads() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.threads)
}
