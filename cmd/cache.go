package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/easel-ai/easel/internal/app"
)

func newCacheCmd() *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the two-tier cache",
	}

	cacheCmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show cache hit/miss and residency statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				stats := a.Cache.Stats()
				fmt.Printf("L1 entries:  %d\n", stats.ResidentEntries)
				fmt.Printf("L1 bytes:    %d\n", stats.ResidentBytes)
				fmt.Printf("Hits:        %d\n", stats.Hits)
				fmt.Printf("Misses:      %d\n", stats.Misses)
				fmt.Printf("Evictions:   %d\n", stats.Evictions)
				return nil
			})
		},
	})

	cacheCmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Clear both cache tiers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				a.Cache.Clear(ctx)
				fmt.Println("Cache cleared.")
				return nil
			})
		},
	})

	return cacheCmd
}
