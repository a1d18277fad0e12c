package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sbi-steve/backend/internal/auth"
	"github.com/sbi-steve/backend/internal/models"
)

func newTokenCommand(ctx *commandContext) *cobra.Command {
	var (
		userID string
		role   string
		guilds []string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a dashboard API token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			userID = strings.TrimSpace(userID)
			if userID == "" {
				return errors.New("--user is required")
			}
			r := models.Role(strings.ToLower(strings.TrimSpace(role)))
			if !r.Valid() {
				return fmt.Errorf("unknown role %q (want admin or viewer)", role)
			}
			if r == models.RoleViewer && len(guilds) == 0 {
				return errors.New("viewer tokens need at least one --guild")
			}
			svc := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
			token, err := svc.Generate(userID, r, guilds)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "Discord user ID the token is issued to")
	cmd.Flags().StringVar(&role, "role", string(models.RoleViewer), "Role: admin or viewer")
	cmd.Flags().StringSliceVar(&guilds, "guild", nil, "Guild ID the token may read (repeatable)")
	return cmd
}
