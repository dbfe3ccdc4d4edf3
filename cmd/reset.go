package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/easel-ai/easel/internal/app"
)

func newResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <conversation-id>",
		Short: "Remove a conversation everywhere: local graph, cache and durable store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				a.Coordinator.ResetConversation(ctx, args[0])
				fmt.Printf("Reset conversation %s\n", args[0])
				return nil
			})
		},
	}
}
