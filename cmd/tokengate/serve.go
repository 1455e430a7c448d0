package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/jonwraymond/tokengate/observe"
	"github.com/jonwraymond/tokengate/server"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"server", "start"},
		Short:   "Start the HTTP server",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.load(cmd)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			ctx := cmd.Context()
			srv, err := server.New(ctx, cfg, server.WithVersion(version), server.WithLogOutput(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			defer func() { _ = srv.Shutdown(context.WithoutCancel(ctx)) }()

			srv.Logger().Info(ctx, "starting tokengate",
				observe.F("version", version),
				observe.F("env", cfg.Env),
				observe.F("config", cfg.String()),
			)
			srv.Warm(ctx)
			return srv.ListenAndServe(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}
