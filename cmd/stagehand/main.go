// Command stagehand runs the staged task agent from a terminal, over an
// NDJSON stdio bridge, or as a websocket server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

type globalFlags struct {
	configPath string
	logLevel   string
	workspace  string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "stagehand",
		Short: "An LLM agent that plans work in stages and executes it with tools",
		Long: `stagehand drives a language model through a plan-then-execute loop.
The model first splits the task into named stages, then works through them
with workspace tools, asking the user when it needs a decision.

Configuration is read from --config (default $XDG_CONFIG_HOME/stagehand/config.yaml),
then .env, then STAGEHAND_* environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&g.configPath, "config", "", "config file path")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	root.PersistentFlags().StringVar(&g.workspace, "workspace", "", "workspace root (default is the current directory)")

	root.AddCommand(
		newRunCmd(g),
		newStdioCmd(g),
		newServeCmd(g),
		newThreadsCmd(g),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "stagehand: %v\n", err)
		os.Exit(1)
	}
}
