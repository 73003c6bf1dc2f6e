package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"

	"github.com/danshapiro/newsroom/internal/graph"
	"github.com/danshapiro/newsroom/internal/llm"
	"github.com/danshapiro/newsroom/internal/pipeline"
	"github.com/danshapiro/newsroom/internal/session"
)

// validID matches ULIDs, UUIDs, and other safe identifiers.
var validID = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]{0,127}$`)

func newID() string { return strings.ToLower(ulid.Make().String()) }

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"runs":   s.registry.Len(),
		"active": s.registry.Active(),
	})
}

func (s *Server) handleIndex(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(chatPage))
}

func (s *Server) handleChat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body", err)
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		writeError(c, http.StatusBadRequest, "message is required", nil)
		return
	}

	threadID := strings.TrimSpace(req.ThreadID)
	if threadID == "" {
		threadID = newID()
	}
	if !validID.MatchString(threadID) {
		writeError(c, http.StatusBadRequest, "thread_id must be alphanumeric with dashes/underscores, 1-128 chars", nil)
		return
	}

	runID := newID()
	ctx, cancel := context.WithCancelCause(s.baseCtx)
	rs := &RunState{
		RunID:       runID,
		ThreadID:    threadID,
		Broadcaster: NewBroadcaster(),
		Cancel:      cancel,
		StartedAt:   time.Now().UTC(),
	}
	if err := s.registry.Register(rs); err != nil {
		cancel(nil)
		writeError(c, http.StatusConflict, err.Error(), nil)
		return
	}

	go s.execute(ctx, rs, req.Message)

	c.JSON(http.StatusAccepted, ChatResponse{RunID: runID, ThreadID: threadID})
}

// execute runs one chat turn on the thread and publishes each finished step.
func (s *Server) execute(ctx context.Context, rs *RunState, message string) {
	defer rs.Broadcaster.Close()
	defer rs.Cancel(nil)

	logger := s.logger.With().Str("run_id", rs.RunID).Str("thread_id", rs.ThreadID).Logger()
	ctx = logger.WithContext(ctx)

	opts := append(append([]graph.Option(nil), s.config.RunOptions...), graph.WithRunID(rs.RunID))
	var (
		state  graph.State
		runErr error
	)
	for step, err := range s.runner.Stream(ctx, rs.ThreadID, graph.State{llm.User(message)}, opts...) {
		if err != nil {
			runErr = err
			break
		}
		state = step.State
		rs.Broadcaster.Send(Event{
			Type:    EventStep,
			Node:    step.Node,
			Step:    step.Index + 1,
			Message: "Finished step: " + step.Node,
			TS:      time.Now().UTC(),
		})
	}

	if runErr != nil {
		logger.Error().Err(runErr).Msg("chat run failed")
		rs.Broadcaster.Send(Event{Type: EventError, Message: runErr.Error(), TS: time.Now().UTC()})
		rs.SetResult("", runErr)
		return
	}
	answer := pipeline.FinalAnswer(state)
	logger.Info().Int("messages", len(state)).Msg("chat run finished")
	rs.SetResult(answer, nil)
}

func (s *Server) lookupRun(c *gin.Context) (*RunState, bool) {
	runID := c.Param("id")
	rs, ok := s.registry.Get(runID)
	if !ok {
		writeError(c, http.StatusNotFound, fmt.Sprintf("run %s not found", runID), nil)
		return nil, false
	}
	return rs, true
}

func (s *Server) handleGetRun(c *gin.Context) {
	rs, ok := s.lookupRun(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, rs.Status())
}

func (s *Server) handleRunEvents(c *gin.Context) {
	rs, ok := s.lookupRun(c)
	if !ok {
		return
	}
	WriteSSE(c.Writer, c.Request, rs.Broadcaster)
}

func (s *Server) handleCancelRun(c *gin.Context) {
	rs, ok := s.lookupRun(c)
	if !ok {
		return
	}
	if rs.Done() {
		c.JSON(http.StatusOK, gin.H{"status": rs.Status().State})
		return
	}
	rs.Cancel(errors.New("canceled via HTTP API"))
	c.JSON(http.StatusOK, gin.H{"status": "canceling"})
}

func (s *Server) handleGetThread(c *gin.Context) {
	threadID := c.Param("id")
	if !validID.MatchString(threadID) {
		writeError(c, http.StatusBadRequest, "invalid thread id", nil)
		return
	}
	state, err := s.runner.Store().Load(c.Request.Context(), threadID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, session.ErrInvalidThreadID) {
			status = http.StatusBadRequest
		}
		writeError(c, status, "load thread", err)
		return
	}
	if len(state) == 0 {
		writeError(c, http.StatusNotFound, fmt.Sprintf("thread %s not found", threadID), nil)
		return
	}
	c.JSON(http.StatusOK, ThreadResponse{ThreadID: threadID, Messages: state})
}

func writeError(c *gin.Context, status int, msg string, err error) {
	resp := ErrorResponse{Error: msg}
	if err != nil {
		resp.Details = err.Error()
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, resp)
}
