package graph

import (
	"strings"

	"github.com/danshapiro/newsroom/internal/llm"
)

// State is the ordered conversation history a run operates on. It only
// grows: nodes return deltas and the runner merges them with Merge.
type State []llm.Message

// Merge returns prior ++ delta as a fresh slice. Neither input is modified or
// aliased by the result; messages are deep-copied.
func Merge(prior, delta State) State {
	out := make(State, 0, len(prior)+len(delta))
	for _, m := range prior {
		out = append(out, m.Clone())
	}
	for _, m := range delta {
		out = append(out, m.Clone())
	}
	return out
}

func (s State) Clone() State {
	if s == nil {
		return nil
	}
	return Merge(nil, s)
}

// Last returns the most recent message, or false for an empty state.
func (s State) Last() (llm.Message, bool) {
	if len(s) == 0 {
		return llm.Message{}, false
	}
	return s[len(s)-1], true
}

// LastContent is the text of the most recent message ("" when empty).
func (s State) LastContent() string {
	m, _ := s.Last()
	return m.Content
}

// LastOfRole returns the most recent message with the given role.
func (s State) LastOfRole(role llm.Role) (llm.Message, bool) {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i].Role == role {
			return s[i], true
		}
	}
	return llm.Message{}, false
}

// WordCount counts whitespace-separated tokens.
func WordCount(text string) int {
	return len(strings.Fields(text))
}
