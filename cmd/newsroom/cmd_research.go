package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/danshapiro/newsroom/internal/graph"
	"github.com/danshapiro/newsroom/internal/llm"
	"github.com/danshapiro/newsroom/internal/pipeline"
)

func newResearchCmd(a *app) *cobra.Command {
	var noEditor bool
	cmd := &cobra.Command{
		Use:   "research <topic>",
		Short: "Research a topic and write a short article",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			topic := strings.TrimSpace(strings.Join(args, " "))
			if topic == "" {
				return fmt.Errorf("topic must not be empty")
			}
			c, err := newCompleter(a.cfg)
			if err != nil {
				return err
			}
			var extra []pipeline.Option
			if noEditor {
				extra = append(extra, pipeline.WithEditor(false))
			}
			p, err := newSearch(a.cfg)
			if err != nil {
				return err
			}
			g, err := newNewsroom(a.cfg, c, p, extra...)
			if err != nil {
				return err
			}

			ctx := a.withLogger(cmd.Context())
			var state graph.State
			for step, err := range g.Stream(ctx, graph.State{llm.User(topic)}, runOptions(a.cfg)...) {
				if err != nil {
					return err
				}
				state = step.State
				fmt.Fprintf(cmd.ErrOrStderr(), "Finished step: %s\n", step.Node)
			}
			fmt.Fprintln(cmd.OutOrStdout(), pipeline.FinalAnswer(state))
			return nil
		},
	}
	cmd.Flags().BoolVar(&noEditor, "no-editor", false, "skip the editor even for long drafts")
	return cmd
}
