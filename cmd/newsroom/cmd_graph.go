package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/danshapiro/newsroom/internal/graph"
	"github.com/danshapiro/newsroom/internal/llm"
	"github.com/danshapiro/newsroom/internal/search"
)

// offline satisfies the pipeline constructors for commands that only inspect
// graph structure.
type offline struct{}

func (offline) Complete(context.Context, llm.Request) (llm.Message, error) {
	return llm.Message{}, errors.New("graph inspection does not call the model")
}

func (offline) Search(context.Context, string) ([]search.Result, error) { return nil, nil }

func newGraphCmd(a *app) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Print the nodes and edges of a pipeline",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				g   *graph.Graph
				err error
			)
			switch name {
			case "newsroom":
				g, err = newNewsroom(a.cfg, offline{}, offline{})
			case "assistant":
				g, err = newAssistant(a.cfg, offline{}, offline{})
			default:
				return fmt.Errorf("unknown pipeline %q (want newsroom or assistant)", name)
			}
			if err != nil {
				return err
			}
			printGraph(cmd.OutOrStdout(), g)
			return nil
		},
	}
	cmd.Flags().StringVarP(&name, "pipeline", "p", "newsroom", "pipeline to describe: newsroom or assistant")
	return cmd
}

func printGraph(w io.Writer, g *graph.Graph) {
	fmt.Fprintf(w, "entry: %s\n", g.Entry())
	fmt.Fprintf(w, "nodes: %s\n", strings.Join(g.Nodes(), ", "))
	for _, e := range g.Edges() {
		if !e.Conditional {
			fmt.Fprintf(w, "  %s -> %s\n", e.From, e.To)
			continue
		}
		routes := "any node"
		if len(e.Routes) > 0 {
			routes = strings.Join(e.Routes, " | ")
		}
		fmt.Fprintf(w, "  %s -?-> %s | %s\n", e.From, routes, graph.End)
	}
}
