package server

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"
)

// RunState tracks a single running or completed chat run.
type RunState struct {
	RunID       string
	ThreadID    string
	Broadcaster *Broadcaster
	Cancel      context.CancelCauseFunc
	StartedAt   time.Time

	mu         sync.Mutex
	answer     string
	err        error
	done       bool
	finishedAt time.Time
}

// SetResult records the terminal outcome of the run.
func (rs *RunState) SetResult(answer string, err error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.answer = answer
	rs.err = err
	rs.done = true
	rs.finishedAt = time.Now().UTC()
}

func (rs *RunState) finished() (time.Time, bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.finishedAt, rs.done
}

func (rs *RunState) Done() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.done
}

// Status returns the current run status for the HTTP API.
func (rs *RunState) Status() RunStatus {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	status := RunStatus{
		RunID:     rs.RunID,
		ThreadID:  rs.ThreadID,
		State:     StateRunning,
		StartedAt: rs.StartedAt,
	}

	if rs.Broadcaster != nil {
		history := rs.Broadcaster.History()
		for i := len(history) - 1; i >= 0; i-- {
			if history[i].Type == EventStep {
				status.CurrentNode = history[i].Node
				status.Steps = history[i].Step
				break
			}
		}
	}

	if rs.done {
		finished := rs.finishedAt
		status.FinishedAt = &finished
		status.CurrentNode = ""
		switch {
		case rs.err == nil:
			status.State = StateSucceeded
			status.Answer = rs.answer
		case errors.Is(rs.err, context.Canceled):
			status.State = StateCanceled
			status.FailureReason = rs.err.Error()
		default:
			status.State = StateFailed
			status.FailureReason = rs.err.Error()
		}
	}
	return status
}

// DefaultRetainFinished is how many finished runs a registry keeps around
// for status and event replay.
const DefaultRetainFinished = 256

// RunRegistry tracks the runs started by this server instance. Running runs
// are always kept; only the newest retain finished runs are.
type RunRegistry struct {
	mu     sync.RWMutex
	runs   map[string]*RunState
	retain int
}

// NewRunRegistry keeps at most retain finished runs; retain <= 0 means
// DefaultRetainFinished.
func NewRunRegistry(retain int) *RunRegistry {
	if retain <= 0 {
		retain = DefaultRetainFinished
	}
	return &RunRegistry{runs: make(map[string]*RunState), retain: retain}
}

// Register adds a run and evicts the oldest finished runs over the retention
// limit. Returns error if ID already exists.
func (r *RunRegistry) Register(rs *RunState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.runs[rs.RunID]; exists {
		return fmt.Errorf("run %s already exists", rs.RunID)
	}
	r.runs[rs.RunID] = rs
	r.prune()
	return nil
}

// prune must be called with r.mu held.
func (r *RunRegistry) prune() {
	type finished struct {
		id string
		at time.Time
	}
	var done []finished
	for id, rs := range r.runs {
		if at, ok := rs.finished(); ok {
			done = append(done, finished{id, at})
		}
	}
	if len(done) <= r.retain {
		return
	}
	slices.SortFunc(done, func(a, b finished) int { return a.at.Compare(b.at) })
	for _, f := range done[:len(done)-r.retain] {
		delete(r.runs, f.id)
	}
}

func (r *RunRegistry) Get(runID string) (*RunState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rs, ok := r.runs[runID]
	return rs, ok
}

func (r *RunRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.runs)
}

// Active counts runs that have not finished.
func (r *RunRegistry) Active() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, rs := range r.runs {
		if !rs.Done() {
			n++
		}
	}
	return n
}

// CancelAll cancels all running runs with the given reason.
func (r *RunRegistry) CancelAll(reason string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rs := range r.runs {
		if rs.Cancel != nil {
			rs.Cancel(errors.New(reason))
		}
	}
}
