package discord

import (
	"errors"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBotLeftVoice(t *testing.T) {
	update := func(user, before, after string, hasBefore bool) *discordgo.VoiceStateUpdate {
		vs := &discordgo.VoiceStateUpdate{VoiceState: &discordgo.VoiceState{GuildID: "g1", UserID: user, ChannelID: after}}
		if hasBefore {
			vs.BeforeUpdate = &discordgo.VoiceState{GuildID: "g1", UserID: user, ChannelID: before}
		}
		return vs
	}

	assert.True(t, botLeftVoice("bot", update("bot", "v1", "", true)))
	assert.True(t, botLeftVoice("bot", update("bot", "", "", false)))
	assert.False(t, botLeftVoice("bot", update("bot", "v1", "v2", true)), "moved, not left")
	assert.False(t, botLeftVoice("bot", update("bot", "", "", true)), "was never in voice")
	assert.False(t, botLeftVoice("bot", update("someone", "v1", "", true)))
	assert.False(t, botLeftVoice("bot", nil))
}

type fakeCommands struct {
	scopes []string
	err    error
}

func (f *fakeCommands) ApplicationCommandBulkOverwrite(appID, guildID string, cmds []*discordgo.ApplicationCommand, _ ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.scopes = append(f.scopes, guildID)
	return cmds, nil
}

func TestSyncCommands(t *testing.T) {
	api := &fakeCommands{}
	n, err := SyncCommands(api, "app", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{""}, api.scopes)

	api = &fakeCommands{}
	n, err = SyncCommands(api, "app", []string{"g1", "g2"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"g1", "g2"}, api.scopes)

	_, err = SyncCommands(api, "", nil)
	require.Error(t, err)

	_, err = SyncCommands(&fakeCommands{err: errors.New("429")}, "app", nil)
	require.ErrorContains(t, err, "global")
}

func TestCommandsAreComplete(t *testing.T) {
	names := map[string]*discordgo.ApplicationCommand{}
	for _, c := range Commands() {
		names[c.Name] = c
	}
	for _, n := range []string{CmdJoin, CmdStop, CmdTranscript, CmdMeetings, CmdAddMember, CmdCheckMember, CmdListMembers, CmdHelp} {
		require.Contains(t, names, n)
	}
	require.NotNil(t, names[CmdAddMember].DefaultMemberPermissions)
	assert.EqualValues(t, discordgo.PermissionAdministrator, *names[CmdAddMember].DefaultMemberPermissions)
	assert.Nil(t, names[CmdJoin].DefaultMemberPermissions)
}
