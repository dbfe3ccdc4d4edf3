package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/easel-ai/easel/db"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending durable store migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
				return fmt.Errorf("running migrations: %w", err)
			}
			fmt.Println("Migrations applied.")
			return nil
		},
	}
}
