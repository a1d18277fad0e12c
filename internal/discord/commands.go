package discord

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// Slash command names.
const (
	CmdJoin        = "join"
	CmdStop        = "stop"
	CmdTranscript  = "transcript"
	CmdMeetings    = "meetings"
	CmdAddMember   = "add_member"
	CmdCheckMember = "check_member"
	CmdListMembers = "list_members"
	CmdHelp        = "help"
)

var adminPermission int64 = discordgo.PermissionAdministrator

// Commands returns the application commands the bot registers.
func Commands() []*discordgo.ApplicationCommand {
	dmOff := false
	return []*discordgo.ApplicationCommand{
		{Name: CmdJoin, Description: "Join the voice channel and start recording.", DMPermission: &dmOff},
		{Name: CmdStop, Description: "Stop the current recording", DMPermission: &dmOff},
		{
			Name:         CmdTranscript,
			Description:  "View the transcript of a meeting!",
			DMPermission: &dmOff,
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "id", Description: "Meeting ID", Required: true},
			},
		},
		{Name: CmdMeetings, Description: "List recent meetings recorded in this server", DMPermission: &dmOff},
		{
			Name:                     CmdAddMember,
			Description:              "Add SBI member to DB",
			DMPermission:             &dmOff,
			DefaultMemberPermissions: &adminPermission,
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionUser, Name: "member", Description: "Server member", Required: true},
				{Type: discordgo.ApplicationCommandOptionString, Name: "eid", Description: "Employee ID", Required: true},
				{Type: discordgo.ApplicationCommandOptionString, Name: "email", Description: "Email address", Required: true},
			},
		},
		{
			Name:                     CmdCheckMember,
			Description:              "Check if a member is in the DB",
			DMPermission:             &dmOff,
			DefaultMemberPermissions: &adminPermission,
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionUser, Name: "member", Description: "Server member", Required: true},
			},
		},
		{
			Name:                     CmdListMembers,
			Description:              "List current SBI members in DB",
			DMPermission:             &dmOff,
			DefaultMemberPermissions: &adminPermission,
		},
		{Name: CmdHelp, Description: "help command"},
	}
}

// commandAPI is the subset of *discordgo.Session used to register commands.
type commandAPI interface {
	ApplicationCommandBulkOverwrite(appID string, guildID string, commands []*discordgo.ApplicationCommand, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
}

// SyncCommands overwrites the registered commands in each guild, or globally
// when guildIDs is empty. It returns the number of scopes updated.
func SyncCommands(api commandAPI, appID string, guildIDs []string) (int, error) {
	if appID == "" {
		return 0, fmt.Errorf("sync commands: application id is required")
	}
	scopes := guildIDs
	if len(scopes) == 0 {
		scopes = []string{""}
	}
	cmds := Commands()
	for _, g := range scopes {
		if _, err := api.ApplicationCommandBulkOverwrite(appID, g, cmds); err != nil {
			if g == "" {
				g = "global"
			}
			return 0, fmt.Errorf("sync commands (%s): %w", g, err)
		}
	}
	return len(scopes), nil
}
