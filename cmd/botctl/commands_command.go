package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sbi-steve/backend/internal/discord"
)

func newCommandsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "commands",
		Short: "Inspect and register slash commands",
	}
	cmd.AddCommand(newCommandsListCommand())
	cmd.AddCommand(newCommandsSyncCommand(ctx))
	return cmd
}

func newCommandsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show the slash commands the bot registers",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, c := range discord.Commands() {
				fmt.Fprintf(out, "/%-14s %s\n", c.Name, c.Description)
			}
			return nil
		},
	}
}

func newCommandsSyncCommand(ctx *commandContext) *cobra.Command {
	var guilds []string
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Overwrite registered slash commands with the current set",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			dg, err := discord.NewSession(cfg.Discord.Token)
			if err != nil {
				return err
			}
			appID := cfg.Discord.ApplicationID
			if appID == "" {
				me, err := dg.User("@me")
				if err != nil {
					return fmt.Errorf("resolve application id: %w", err)
				}
				appID = me.ID
			}
			if appID == "" {
				return errors.New("DISCORD_APPLICATION_ID not set")
			}
			if len(guilds) == 0 {
				guilds = cfg.Discord.CommandGuildIDs
			}
			n, err := discord.SyncCommands(dg, appID, guilds)
			if err != nil {
				return err
			}
			scope := "globally"
			if len(guilds) > 0 {
				scope = fmt.Sprintf("in %d guild(s)", n)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %d commands %s\n", len(discord.Commands()), scope)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&guilds, "guild", nil, "Guild ID to register in (repeatable); default from config, else global")
	return cmd
}
