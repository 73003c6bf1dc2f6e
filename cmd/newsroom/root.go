package main

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/danshapiro/newsroom/internal/config"
	"github.com/danshapiro/newsroom/internal/logger"
	"github.com/danshapiro/newsroom/internal/observability"
)

// app carries what every subcommand needs once the root command has loaded
// configuration.
type app struct {
	envFiles   []string
	configFile string
	model      string

	cfg      *config.Config
	log      zerolog.Logger
	shutdown func(context.Context) error
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "newsroom",
		Short: "AI newsroom: research, write and edit short articles with LLM agents",
		Long: `newsroom runs small agent pipelines against an OpenAI-compatible API
(OpenRouter by default).

Examples:
  newsroom research "The history of NVIDIA"
  newsroom ask --thread demo "What's the weather in Tokyo?"
  newsroom serve
  newsroom graph --pipeline assistant`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if a.shutdown == nil {
				return nil
			}
			return a.shutdown(context.WithoutCancel(cmd.Context()))
		},
	}

	flags := root.PersistentFlags()
	flags.StringSliceVar(&a.envFiles, "env-file", []string{".env"}, "dotenv files to load; existing environment wins")
	flags.StringVar(&a.configFile, "config", "", "YAML config file (overrides NEWSROOM_CONFIG)")
	flags.StringVar(&a.model, "model", "", "model id (overrides NEWSROOM_MODEL)")

	root.AddCommand(
		newResearchCmd(a),
		newAskCmd(a),
		newServeCmd(a),
		newGraphCmd(a),
	)
	return root
}

func (a *app) init(ctx context.Context) error {
	if err := config.LoadEnvFiles(a.envFiles...); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if a.configFile != "" {
		if err := cfg.ApplyFile(a.configFile); err != nil {
			return err
		}
	}
	if a.model != "" {
		cfg.Model = a.model
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	a.log = logger.New(cfg)

	shutdown, err := observability.Init(ctx, observability.Config{
		ServiceName:  cfg.ServiceName,
		Environment:  cfg.Environment,
		OTLPEndpoint: cfg.OTLPEndpoint,
	})
	if err != nil {
		return err
	}
	a.shutdown = shutdown
	return nil
}

// withLogger returns ctx carrying the app logger for zerolog.Ctx.
func (a *app) withLogger(ctx context.Context) context.Context {
	return a.log.WithContext(ctx)
}
