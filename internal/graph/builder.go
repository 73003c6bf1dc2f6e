package graph

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Node is one named step of a graph. Run receives the merged state so far and
// returns only the messages to append.
type Node interface {
	Run(ctx context.Context, state State) (State, error)
}

// NodeFunc adapts a function to Node.
type NodeFunc func(ctx context.Context, state State) (State, error)

func (f NodeFunc) Run(ctx context.Context, state State) (State, error) { return f(ctx, state) }

type edge struct {
	to     string // fixed target, or End
	router Router
	// routes are the node names a router may pick. Empty means any node of
	// the graph, checked at run time.
	routes map[string]struct{}
}

func (e edge) conditional() bool { return e.router != nil }

// Builder assembles a Graph. Problems are collected and reported together by
// Compile; builder methods never panic.
type Builder struct {
	nodes    map[string]Node
	order    []string
	edges    map[string]edge
	entry    string
	problems []string
}

func NewBuilder() *Builder {
	return &Builder{
		nodes: map[string]Node{},
		edges: map[string]edge{},
	}
}

func (b *Builder) problem(format string, args ...any) {
	b.problems = append(b.problems, fmt.Sprintf(format, args...))
}

func (b *Builder) AddNode(name string, n Node) *Builder {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		b.problem("node name is empty")
	case name == End:
		b.problem("node name %q is reserved", End)
	case n == nil:
		b.problem("node %s: nil implementation", name)
	default:
		if _, dup := b.nodes[name]; dup {
			b.problem("node %s: declared twice", name)
			return b
		}
		b.nodes[name] = n
		b.order = append(b.order, name)
	}
	return b
}

// SetEntry designates the node a run starts at.
func (b *Builder) SetEntry(name string) *Builder {
	b.entry = strings.TrimSpace(name)
	return b
}

// AddEdge adds a fixed transition. Use End as the target to terminate.
func (b *Builder) AddEdge(from, to string) *Builder {
	from, to = strings.TrimSpace(from), strings.TrimSpace(to)
	if _, dup := b.edges[from]; dup {
		b.problem("node %s: more than one outgoing edge definition", from)
		return b
	}
	b.edges[from] = edge{to: to}
	return b
}

// AddConditionalEdges lets router decide the hop after from. routes lists
// the nodes the router may pick; Terminate is always allowed.
func (b *Builder) AddConditionalEdges(from string, router Router, routes ...string) *Builder {
	from = strings.TrimSpace(from)
	if router == nil {
		b.problem("node %s: nil router", from)
		return b
	}
	if _, dup := b.edges[from]; dup {
		b.problem("node %s: more than one outgoing edge definition", from)
		return b
	}
	e := edge{router: router}
	if len(routes) > 0 {
		e.routes = make(map[string]struct{}, len(routes))
		for _, r := range routes {
			e.routes[strings.TrimSpace(r)] = struct{}{}
		}
	}
	b.edges[from] = e
	return b
}

// Compile validates the definition and returns an immutable Graph.
func (b *Builder) Compile() (*Graph, error) {
	problems := append([]string(nil), b.problems...)
	add := func(format string, args ...any) { problems = append(problems, fmt.Sprintf(format, args...)) }

	if b.entry == "" {
		add("entry node not set")
	} else if _, ok := b.nodes[b.entry]; !ok {
		add("entry node %s is not declared", b.entry)
	}

	froms := make([]string, 0, len(b.edges))
	for from := range b.edges {
		froms = append(froms, from)
	}
	sort.Strings(froms)
	for _, from := range froms {
		e := b.edges[from]
		if _, ok := b.nodes[from]; !ok {
			add("edge source %s is not declared", from)
		}
		if !e.conditional() {
			if e.to == "" {
				add("node %s: edge target is empty", from)
			} else if _, ok := b.nodes[e.to]; !ok && e.to != End {
				add("node %s: edge target %s is not declared", from, e.to)
			}
			continue
		}
		routes := make([]string, 0, len(e.routes))
		for r := range e.routes {
			routes = append(routes, r)
		}
		sort.Strings(routes)
		for _, r := range routes {
			if _, ok := b.nodes[r]; !ok && r != End {
				add("node %s: route %s is not declared", from, r)
			}
		}
	}
	for _, name := range b.order {
		if _, ok := b.edges[name]; !ok {
			add("node %s: no outgoing edge", name)
		}
	}
	if len(problems) > 0 {
		return nil, &validationError{problems: problems}
	}

	g := &Graph{
		nodes: make(map[string]Node, len(b.nodes)),
		edges: make(map[string]edge, len(b.edges)),
		order: append([]string(nil), b.order...),
		entry: b.entry,
	}
	for k, v := range b.nodes {
		g.nodes[k] = v
	}
	for k, v := range b.edges {
		g.edges[k] = v
	}
	return g, nil
}
