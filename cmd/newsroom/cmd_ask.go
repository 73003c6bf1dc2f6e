package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/danshapiro/newsroom/internal/graph"
	"github.com/danshapiro/newsroom/internal/llm"
	"github.com/danshapiro/newsroom/internal/pipeline"
	"github.com/danshapiro/newsroom/internal/session"
)

func newAskCmd(a *app) *cobra.Command {
	var (
		threadID string
		patterns []string
	)
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask the tool-using assistant; history is kept per thread",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.TrimSpace(strings.Join(args, " "))
			if question == "" {
				return fmt.Errorf("question must not be empty")
			}
			c, err := newCompleter(a.cfg)
			if err != nil {
				return err
			}
			p, err := newSearch(a.cfg)
			if err != nil {
				return err
			}
			g, err := newAssistant(a.cfg, c, p, patterns...)
			if err != nil {
				return err
			}

			ctx := a.withLogger(cmd.Context())
			store, closeStore, err := a.newStore(ctx)
			if err != nil {
				return err
			}
			defer func() {
				if err := closeStore(); err != nil {
					a.log.Warn().Err(err).Msg("close session store")
				}
			}()

			runner := session.NewRunner(store, g, runOptions(a.cfg)...)
			var state graph.State
			for step, err := range runner.Stream(ctx, threadID, graph.State{llm.User(question)}) {
				if err != nil {
					return err
				}
				state = step.State
				a.log.Debug().Str("node", step.Node).Int("step", step.Index).Msg("step finished")
			}
			fmt.Fprintln(cmd.OutOrStdout(), pipeline.FinalAnswer(state))
			return nil
		},
	}
	cmd.Flags().StringVarP(&threadID, "thread", "t", "default", "conversation thread id")
	cmd.Flags().StringSliceVar(&patterns, "tools", nil, `only bind tools matching these globs, e.g. "get_*" (default NEWSROOM_TOOLS or all)`)
	return cmd
}
