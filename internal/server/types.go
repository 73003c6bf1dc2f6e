package server

import (
	"time"

	"github.com/danshapiro/newsroom/internal/llm"
)

// Event types sent on a run's SSE stream.
const (
	EventStep  = "step"
	EventError = "error"
)

// Event is one entry of a run's progress stream.
type Event struct {
	ID      int       `json:"-"` // sent as the SSE id
	Type    string    `json:"type"`
	Node    string    `json:"node,omitempty"`
	Step    int       `json:"step,omitempty"` // 1-based
	Message string    `json:"message"`
	TS      time.Time `json:"ts"`
}

// Run states reported by GET /v1/runs/:id.
const (
	StateRunning   = "running"
	StateSucceeded = "succeeded"
	StateFailed    = "failed"
	StateCanceled  = "canceled"
)

// ChatRequest is the POST /v1/chat request body.
type ChatRequest struct {
	// ThreadID is optional. If empty, a new thread is started.
	ThreadID string `json:"thread_id,omitempty"`
	Message  string `json:"message" binding:"required"`
}

type ChatResponse struct {
	RunID    string `json:"run_id"`
	ThreadID string `json:"thread_id"`
}

// RunStatus is returned by GET /v1/runs/:id.
type RunStatus struct {
	RunID         string     `json:"run_id"`
	ThreadID      string     `json:"thread_id"`
	State         string     `json:"state"`
	CurrentNode   string     `json:"current_node,omitempty"`
	Steps         int        `json:"steps"`
	Answer        string     `json:"answer,omitempty"`
	FailureReason string     `json:"failure_reason,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

// ThreadResponse is returned by GET /v1/threads/:id.
type ThreadResponse struct {
	ThreadID string        `json:"thread_id"`
	Messages []llm.Message `json:"messages"`
}

// ErrorResponse is a standard error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
