package graph

import "fmt"

// End is the terminal sentinel usable as a fixed edge target.
const End = "__end__"

// Route is the decision returned by a Router: either Goto(node) or
// Terminate(). The zero value is invalid and rejected at run time.
type Route struct {
	node     string
	terminal bool
}

func Goto(node string) Route { return Route{node: node} }

func Terminate() Route { return Route{terminal: true} }

func (r Route) IsTerminal() bool { return r.terminal }

// Node is the target node name; empty for Terminate.
func (r Route) Node() string { return r.node }

func (r Route) String() string {
	if r.terminal {
		return "terminate"
	}
	return fmt.Sprintf("goto(%s)", r.node)
}

// Router inspects the merged state after a node runs and picks the next hop.
type Router func(State) Route
