package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/easel-ai/easel/internal/app"
)

func newSessionsCmd() *cobra.Command {
	sessionsCmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect persisted canvas sessions",
	}

	sessionsCmd.AddCommand(newSessionsListCmd())
	sessionsCmd.AddCommand(newSessionsShowCmd())
	sessionsCmd.AddCommand(newSessionsDeleteCmd())

	return sessionsCmd
}

func newSessionsListCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List persisted sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return runSessionsList(ctx, a, limit)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum number of sessions to list")
	return cmd
}

func newSessionsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <conversation-id>",
		Short: "Show a session's version history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return runSessionsShow(ctx, a, args[0])
			})
		},
	}
}

func newSessionsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <conversation-id>",
		Short: "Delete a persisted session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Remote.DeleteSession(ctx, args[0]); err != nil {
					return fmt.Errorf("deleting session: %w", err)
				}
				fmt.Printf("Deleted session %s\n", args[0])
				return nil
			})
		},
	}
}

func runSessionsList(ctx context.Context, a *app.App, limit int) error {
	sessions, err := a.Remote.ListSessions(ctx, limit)
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}

	if len(sessions) == 0 {
		fmt.Println("No sessions found.")
		return nil
	}

	for _, s := range sessions {
		fmt.Printf("%s  %q  %d versions  updated %s\n",
			s.ConversationID, s.Theme, s.VersionCount, formatTime(s.UpdatedAt))
	}
	return nil
}

func runSessionsShow(ctx context.Context, a *app.App, conversationID string) error {
	rec, err := a.Coordinator.LoadConversation(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("loading conversation: %w", err)
	}

	fmt.Printf("Conversation: %s\n", rec.ConversationID)
	fmt.Printf("Theme: %s\n", rec.Theme)
	fmt.Printf("Base prompt: %s\n", rec.BasePrompt)
	fmt.Printf("Versions: %d (%d completed)\n", rec.TotalVersions, rec.CompletedVersions)
	fmt.Println()

	for _, v := range rec.Versions {
		marker := " "
		if v.Selected {
			marker = "*"
		}
		fmt.Printf("%s #%d [%s] %s\n", marker, v.Number, v.Status, v.Prompt)
		if v.ImageURL != "" {
			fmt.Printf("     %s\n", v.ImageURL)
		}
		if v.ParentID != "" {
			fmt.Printf("     branched from %s\n", v.ParentID)
		}
	}
	return nil
}

// formatTime formats time in a human-readable relative format.
func formatTime(t time.Time) string {
	diff := time.Since(t)
	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return fmt.Sprintf("%d minutes ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%d hours ago", int(diff.Hours()))
	case diff < 7*24*time.Hour:
		return fmt.Sprintf("%d days ago", int(diff.Hours()/24))
	default:
		return t.Format("2006-01-02 15:04")
	}
}
