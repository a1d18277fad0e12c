package discord

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/sbi-steve/backend/internal/session"
)

// messageAPI is the subset of *discordgo.Session used to post and edit messages.
type messageAPI interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEditComplex(m *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Notifier renders session views as embeds in text channels.
type Notifier struct {
	api messageAPI
}

// NewNotifier creates a notifier over a discordgo session. The session only
// needs a bot token; the gateway does not have to be open.
func NewNotifier(api messageAPI) *Notifier {
	return &Notifier{api: api}
}

// Publish posts v to the target channel.
func (n *Notifier) Publish(ctx context.Context, target session.Target, v session.View) (session.MessageRef, error) {
	if target.ChannelID == "" {
		return session.MessageRef{}, errors.New("publish: no channel")
	}
	msg, err := n.api.ChannelMessageSendComplex(target.ChannelID, &discordgo.MessageSend{
		Embeds:     []*discordgo.MessageEmbed{renderEmbed(v)},
		Components: renderComponents(v),
	}, discordgo.WithContext(ctx))
	if err != nil {
		return session.MessageRef{}, fmt.Errorf("send message: %w", err)
	}
	return session.MessageRef{TenantID: target.TenantID, ChannelID: msg.ChannelID, MessageID: msg.ID}, nil
}

// Update edits a message previously returned by Publish.
func (n *Notifier) Update(ctx context.Context, ref session.MessageRef, v session.View) error {
	embeds := []*discordgo.MessageEmbed{renderEmbed(v)}
	components := renderComponents(v)
	_, err := n.api.ChannelMessageEditComplex(&discordgo.MessageEdit{
		ID:         ref.MessageID,
		Channel:    ref.ChannelID,
		Embeds:     &embeds,
		Components: &components,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("edit message %s: %w", ref.MessageID, err)
	}
	return nil
}
