package graph

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownRoute = errors.New("unknown route")
	ErrStepLimit    = errors.New("step limit reached")
	ErrInvalidGraph = errors.New("invalid graph")
)

// UnknownRouteError is returned when a router picks a node that its
// conditional edge did not declare (or that does not exist).
type UnknownRouteError struct {
	From  string
	Route Route
}

func (e *UnknownRouteError) Error() string {
	return fmt.Sprintf("node %s: router returned undeclared %s", e.From, e.Route)
}

func (e *UnknownRouteError) Unwrap() error { return ErrUnknownRoute }

// StepLimitError aborts a run that executed Limit nodes without terminating.
type StepLimitError struct {
	Limit int
	Next  string
}

func (e *StepLimitError) Error() string {
	return fmt.Sprintf("step limit %d reached before running %s", e.Limit, e.Next)
}

func (e *StepLimitError) Unwrap() error { return ErrStepLimit }

// NodeError wraps a failure returned by a node.
type NodeError struct {
	Node string
	Err  error
}

func (e *NodeError) Error() string { return fmt.Sprintf("node %s: %v", e.Node, e.Err) }

func (e *NodeError) Unwrap() error { return e.Err }

type validationError struct {
	problems []string
}

func (e *validationError) Error() string {
	if len(e.problems) == 1 {
		return "invalid graph: " + e.problems[0]
	}
	return fmt.Sprintf("invalid graph: %d problems: %v", len(e.problems), e.problems)
}

func (e *validationError) Unwrap() error { return ErrInvalidGraph }
