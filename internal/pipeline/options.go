package pipeline

import (
	"github.com/danshapiro/newsroom/internal/retry"
)

const (
	DefaultModel     = "google/gemini-2.0-flash-exp:free"
	DefaultWordLimit = 200
)

type settings struct {
	model        string
	temperature  float64
	wordLimit    int
	editor       bool
	writerPrompt string
	systemPrompt string
	fallback     string
	retry        retry.Policy
}

func defaultSettings() settings {
	return settings{
		model:        DefaultModel,
		wordLimit:    DefaultWordLimit,
		editor:       true,
		writerPrompt: WriterPrompt,
		retry:        retry.DefaultPolicy(),
	}
}

type Option func(*settings)

func WithModel(model string) Option {
	return func(s *settings) {
		if model != "" {
			s.model = model
		}
	}
}

func WithTemperature(t float64) Option {
	return func(s *settings) { s.temperature = t }
}

// WithWordLimit sets the draft length above which the editor runs.
func WithWordLimit(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.wordLimit = n
		}
	}
}

// WithEditor toggles the editor stage of the newsroom pipeline.
func WithEditor(enabled bool) Option {
	return func(s *settings) { s.editor = enabled }
}

func WithWriterPrompt(prompt string) Option {
	return func(s *settings) {
		if prompt != "" {
			s.writerPrompt = prompt
		}
	}
}

// WithSystemPrompt prepends a system message to every assistant turn.
func WithSystemPrompt(prompt string) Option {
	return func(s *settings) { s.systemPrompt = prompt }
}

// WithFallback makes the writer answer with msg instead of failing the run
// when the completion service errors.
func WithFallback(msg string) Option {
	return func(s *settings) { s.fallback = msg }
}

func WithRetryPolicy(p retry.Policy) Option {
	return func(s *settings) { s.retry = p }
}
