package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ChamsBouzaiene/stagehand/internal/broker"
	"github.com/ChamsBouzaiene/stagehand/internal/events"
	"github.com/ChamsBouzaiene/stagehand/internal/runner"
)

func newRunCmd(g *globalFlags) *cobra.Command {
	var threadID string
	cmd := &cobra.Command{
		Use:   "run <task>",
		Short: "Run one task in the terminal",
		Long: `Run one task and print its progress. Questions from the agent are
answered on stdin. Pass --thread to continue an earlier conversation.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := loadApp(ctx, g, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			mgr, err := a.newManager(0)
			if err != nil {
				_ = a.Close()
				return err
			}
			defer func() {
				if err := a.shutdown(mgr); err != nil {
					a.logger.Warn().Err(err).Msg("shutdown")
				}
			}()

			s, err := mgr.Open(ctx, threadID)
			if err != nil {
				return err
			}
			prompts := make(chan events.InteractionRequest, 1)
			s.SetRenderer(&events.TerminalRenderer{W: cmd.OutOrStdout(), Prompts: prompts})
			go answerPrompts(ctx, cmd.InOrStdin(), prompts, s.Broker())

			res, err := s.Run(ctx, strings.Join(args, " "))
			fmt.Fprintf(cmd.ErrOrStderr(), "thread: %s\n", s.ThreadID())
			switch {
			case errors.Is(err, runner.ErrCancelled), errors.Is(err, context.Canceled):
				return nil
			case err != nil:
				return err
			case res.Outcome == events.OutcomeFailed:
				return fmt.Errorf("task failed: %w", res.Err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&threadID, "thread", "", "resume the thread with this id")
	return cmd
}

// answerPrompts reads one line from in per interaction request and resolves it.
func answerPrompts(ctx context.Context, in io.Reader, prompts <-chan events.InteractionRequest, b *broker.Broker) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case req := <-prompts:
			var line string
			select {
			case <-ctx.Done():
				return
			case l, ok := <-lines:
				if !ok {
					b.Resolve(req.RequestID, broker.StatusRejected, "")
					continue
				}
				line = l
			}
			status, value := resolutionFor(req.Kind, line)
			b.Resolve(req.RequestID, status, value)
		}
	}
}

// resolutionFor maps a typed answer to a broker resolution.
func resolutionFor(kind, line string) (broker.Status, string) {
	line = strings.TrimSpace(line)
	switch broker.Kind(kind) {
	case broker.KindConfirmation:
		switch strings.ToLower(line) {
		case "y", "yes":
			return broker.StatusApproved, ""
		}
		return broker.StatusRejected, ""
	case broker.KindHandoff:
		if strings.EqualFold(line, "abort") {
			return broker.StatusRejected, ""
		}
		return broker.StatusApproved, line
	default:
		if line == "" {
			return broker.StatusRejected, ""
		}
		return broker.StatusAnswered, line
	}
}
