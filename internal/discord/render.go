package discord

import (
	"github.com/bwmarrin/discordgo"

	"github.com/sbi-steve/backend/internal/session"
)

// StopButtonID is the custom ID of the stop control on status messages.
const StopButtonID = "steve:stop"

const (
	colorRed     = 0xe74c3c
	colorOrange  = 0xe67e22
	colorGreen   = 0x2ecc71
	colorBlurple = 0x5865f2
)

func kindColor(k session.ViewKind) int {
	switch k {
	case session.KindSuccess:
		return colorGreen
	case session.KindWarning:
		return colorOrange
	case session.KindProgress:
		return colorBlurple
	default:
		return colorRed
	}
}

// renderEmbed converts a view into a Discord embed.
func renderEmbed(v session.View) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{
		Title:       v.Title,
		Description: v.Description,
		Color:       kindColor(v.Kind),
	}
	for _, f := range v.Fields {
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	if v.Footer != "" {
		e.Footer = &discordgo.MessageEmbedFooter{Text: v.Footer}
	}
	if !v.Timestamp.IsZero() {
		e.Timestamp = v.Timestamp.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	return e
}

// renderComponents returns the stop button row, or an empty slice so that
// edits clear a previous button.
func renderComponents(v session.View) []discordgo.MessageComponent {
	if !v.StopControl {
		return []discordgo.MessageComponent{}
	}
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    "⏹ Stop Recording",
					Style:    discordgo.DangerButton,
					CustomID: StopButtonID,
					Disabled: v.StopDisabled,
				},
			},
		},
	}
}
