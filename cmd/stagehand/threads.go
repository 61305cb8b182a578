package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var threadHeader = lipgloss.NewStyle().Bold(true)

func newThreadsCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "threads",
		Short: "Manage stored conversation threads",
	}
	cmd.AddCommand(newThreadsListCmd(g), newThreadsDeleteCmd(g))
	return cmd
}

func newThreadsListCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List threads, most recently updated first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd.Context(), g, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			threads, err := a.store.ListThreads(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(threads) == 0 {
				fmt.Fprintln(out, "No threads.")
				return nil
			}
			fmt.Fprintln(out, threadHeader.Render(fmt.Sprintf("%-36s  %-16s  %s", "ID", "UPDATED", "TITLE")))
			for _, t := range threads {
				fmt.Fprintf(out, "%-36s  %-16s  %s\n", t.ID, t.UpdatedAt.Local().Format("2006-01-02 15:04"), t.Title)
			}
			return nil
		},
	}
}

func newThreadsDeleteCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete threads",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context(), g, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			for _, id := range args {
				if err := a.store.DeleteThread(cmd.Context(), id); err != nil {
					return fmt.Errorf("delete %s: %w", id, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", id)
			}
			return nil
		},
	}
}
