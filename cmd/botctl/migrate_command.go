package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sbi-steve/backend/pkg/database"
)

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	var list bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if list {
				names, err := database.MigrationNames()
				if err != nil {
					return err
				}
				for _, name := range names {
					fmt.Fprintln(out, name)
				}
				return nil
			}

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger := ctx.logger()
			defer logger.Sync()

			pool, err := database.NewPostgresPool(cmd.Context(), cfg.Database.DSN(), database.PoolOptions{MaxConns: 2}, logger)
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := database.Migrate(cmd.Context(), pool, logger); err != nil {
				return err
			}
			fmt.Fprintln(out, "Migrations applied")
			return nil
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "List embedded migrations without applying them")
	return cmd
}
