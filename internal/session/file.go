package session

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"

	"github.com/danshapiro/newsroom/internal/graph"
	"github.com/danshapiro/newsroom/internal/llm"
)

const fileDocVersion = 2

type fileDoc struct {
	Version   int           `json:"version"`
	ThreadID  string        `json:"thread_id"`
	UpdatedAt time.Time     `json:"updated_at"`
	Digest    string        `json:"digest"`
	Messages  []fileMessage `json:"messages"`
}

// fileMessage mirrors llm.Message with tool arguments held as a string, so
// indenting the document cannot reformat them.
type fileMessage struct {
	Role       llm.Role       `json:"role"`
	Content    string         `json:"content"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Name       string         `json:"name,omitempty"`
	ToolCalls  []fileToolCall `json:"tool_calls,omitempty"`
}

type fileToolCall struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Arguments *string `json:"arguments,omitempty"`
}

func toFileMessages(state graph.State) []fileMessage {
	out := make([]fileMessage, len(state))
	for i, m := range state {
		fm := fileMessage{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID, Name: m.Name}
		for _, c := range m.ToolCalls {
			tc := fileToolCall{ID: c.ID, Name: c.Name}
			if c.Arguments != nil {
				args := string(c.Arguments)
				tc.Arguments = &args
			}
			fm.ToolCalls = append(fm.ToolCalls, tc)
		}
		out[i] = fm
	}
	return out
}

func fromFileMessages(msgs []fileMessage) graph.State {
	out := make(graph.State, len(msgs))
	for i, fm := range msgs {
		m := llm.Message{Role: fm.Role, Content: fm.Content, ToolCallID: fm.ToolCallID, Name: fm.Name}
		for _, tc := range fm.ToolCalls {
			c := llm.ToolCall{ID: tc.ID, Name: tc.Name}
			if tc.Arguments != nil {
				c.Arguments = json.RawMessage(*tc.Arguments)
			}
			m.ToolCalls = append(m.ToolCalls, c)
		}
		out[i] = m
	}
	return out
}

// FileStore writes one JSON document per thread under Dir. Each document
// carries a blake3 digest of its messages that Load verifies. Locks are
// in-process only.
type FileStore struct {
	dir   string
	locks *keyedMutex
	now   func() time.Time
}

func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("session dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	return &FileStore{dir: dir, locks: newKeyedMutex(), now: time.Now}, nil
}

// path names the file after a hash of the id so arbitrary ids are safe on disk.
func (s *FileStore) path(id string) string {
	sum := blake3.Sum256([]byte(id))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:16])+".json")
}

func digestMessages(msgs []fileMessage) (string, error) {
	b, err := json.Marshal(msgs)
	if err != nil {
		return "", err
	}
	sum := blake3.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

func (s *FileStore) Load(_ context.Context, threadID string) (graph.State, error) {
	id, err := normalizeThreadID(threadID)
	if err != nil {
		return nil, err
	}
	path := s.path(id)
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return graph.State{}, nil
		}
		return nil, err
	}
	var doc fileDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrCorrupt, path, err)
	}
	if doc.ThreadID != id {
		return nil, fmt.Errorf("%w: %s belongs to thread %q", ErrCorrupt, path, doc.ThreadID)
	}
	want, err := digestMessages(doc.Messages)
	if err != nil {
		return nil, err
	}
	if doc.Digest != want {
		return nil, fmt.Errorf("%w: %s digest mismatch", ErrCorrupt, path)
	}
	if doc.Version != fileDocVersion {
		return nil, fmt.Errorf("%w: %s has unsupported version %d", ErrCorrupt, path, doc.Version)
	}
	return fromFileMessages(doc.Messages), nil
}

func (s *FileStore) Save(_ context.Context, threadID string, state graph.State) error {
	id, err := normalizeThreadID(threadID)
	if err != nil {
		return err
	}
	msgs := toFileMessages(state)
	digest, err := digestMessages(msgs)
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(fileDoc{
		Version:   fileDocVersion,
		ThreadID:  id,
		UpdatedAt: s.now().UTC(),
		Digest:    digest,
		Messages:  msgs,
	}, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(s.path(id), b)
}

func (s *FileStore) Lock(ctx context.Context, threadID string) (Unlock, error) {
	id, err := normalizeThreadID(threadID)
	if err != nil {
		return nil, err
	}
	return s.locks.Lock(ctx, id)
}

func writeFileAtomic(dst string, b []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".session-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, dst)
}
