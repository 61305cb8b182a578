package main

import (
	"github.com/spf13/cobra"

	"github.com/ChamsBouzaiene/stagehand/internal/protocol"
)

func newStdioCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stdio",
		Short: "Serve the NDJSON protocol on stdin and stdout",
		Long: `Serve the agent to an editor or UI process. Commands are read from stdin
and events written to stdout, one JSON object per line. Logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := loadApp(ctx, g, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			mgr, err := a.newManager(a.cfg.Sessions.IdleTTL)
			if err != nil {
				_ = a.Close()
				return err
			}
			a.watchConfig(ctx, mgr)

			st := protocol.NewStdio(cmd.InOrStdin(), cmd.OutOrStdout(), a.logger)
			h := protocol.NewHandler(mgr, a.store, st.Emit, a.logger)
			st.Emit(protocol.NewStatusEvent("", "engine_ready", "", "stdio protocol ready"))

			runErr := st.Run(ctx, h.HandleLine)
			// Sessions flush their final events before the writer stops.
			shutdownErr := a.shutdown(mgr)
			if err := st.Close(); err != nil {
				a.logger.Warn().Err(err).Msg("close stdout")
			}
			if runErr != nil {
				return runErr
			}
			return shutdownErr
		},
	}
}
