package main

import (
	"github.com/spf13/cobra"

	"github.com/ChamsBouzaiene/stagehand/internal/server"
)

func newServeCmd(g *globalFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the protocol over websockets",
		Long: `Serve the protocol on /ws, one JSON message per frame, with
/healthz and Prometheus metrics on /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := loadApp(ctx, g, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if addr != "" {
				a.cfg.Server.Addr = addr
			}
			mgr, err := a.newManager(a.cfg.Sessions.IdleTTL)
			if err != nil {
				_ = a.Close()
				return err
			}
			a.watchConfig(ctx, mgr)

			srv := server.New(server.Config{
				Addr:     a.cfg.Server.Addr,
				Manager:  mgr,
				Store:    a.store,
				Gatherer: a.registry,
				Logger:   a.logger,
			})
			serveErr := srv.ListenAndServe(ctx)
			if err := a.shutdown(mgr); err != nil {
				a.logger.Warn().Err(err).Msg("shutdown")
			}
			return serveErr
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}
