package main

import (
	"github.com/spf13/cobra"

	"github.com/danshapiro/newsroom/internal/server"
	"github.com/danshapiro/newsroom/internal/session"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		addr   string
		editor bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat UI and HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := newCompleter(a.cfg)
			if err != nil {
				return err
			}
			p, err := newSearch(a.cfg)
			if err != nil {
				return err
			}
			g, err := newNewsroom(a.cfg, c, p, chatOptions(editor)...)
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

			if addr == "" {
				addr = a.cfg.Addr()
			}
			srv := server.New(server.Config{
				Addr:            addr,
				ShutdownTimeout: a.cfg.ShutdownTimeout,
				RunOptions:      runOptions(a.cfg),
			}, session.NewRunner(store, g), a.log)
			return srv.ListenAndServe(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default :HTTP_PORT)")
	cmd.Flags().BoolVar(&editor, "editor", false, "condense chat articles over the word limit")
	return cmd
}
