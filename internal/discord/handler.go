package discord

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sbi-steve/backend/internal/meetings"
	"github.com/sbi-steve/backend/internal/models"
	"github.com/sbi-steve/backend/internal/people"
	"github.com/sbi-steve/backend/internal/session"
)

const recentMeetingsLimit = 10

// Sessions is the lifecycle manager as seen by the bot.
type Sessions interface {
	StartSession(ctx context.Context, req session.StartRequest) (*session.Session, error)
	RequestStop(ctx context.Context, tenant session.TenantID, trigger session.Trigger) error
	HandleExternalDisconnect(ctx context.Context, tenant session.TenantID) error
}

// MeetingReader looks up stored meetings.
type MeetingReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Meeting, error)
	ListByGuild(ctx context.Context, guildID string, limit int) ([]models.Meeting, error)
}

// PeopleStore manages the member directory.
type PeopleStore interface {
	Upsert(ctx context.Context, p *models.Person) error
	GetByDiscordID(ctx context.Context, discordID string) (*models.Person, error)
	List(ctx context.Context) ([]models.Person, error)
}

// interactionAPI is the subset of *discordgo.Session used to answer interactions.
type interactionAPI interface {
	InteractionRespond(i *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseEdit(i *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	FollowupMessageCreate(i *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// VoiceLocator returns the voice channel userID is in, or "".
type VoiceLocator func(guildID, userID string) string

// StateVoiceLocator reads voice channels from the gateway state cache.
func StateVoiceLocator(s *discordgo.Session) VoiceLocator {
	return func(guildID, userID string) string {
		if s.State == nil {
			return ""
		}
		vs, err := s.State.VoiceState(guildID, userID)
		if err != nil || vs == nil {
			return ""
		}
		return vs.ChannelID
	}
}

// Handler answers slash commands and the stop button.
type Handler struct {
	api      interactionAPI
	sessions Sessions
	meetings MeetingReader
	people   PeopleStore
	locate   VoiceLocator
	logger   *zap.Logger
}

// NewHandler creates an interaction handler. people may be nil, which
// disables the member commands.
func NewHandler(api interactionAPI, sessions Sessions, meetings MeetingReader, people PeopleStore, locate VoiceLocator, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{api: api, sessions: sessions, meetings: meetings, people: people, locate: locate, logger: logger}
}

// Handle processes one interaction to completion.
func (h *Handler) Handle(ctx context.Context, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		h.handleCommand(ctx, i)
	case discordgo.InteractionMessageComponent:
		if i.MessageComponentData().CustomID == StopButtonID {
			h.handleStopButton(ctx, i)
		}
	}
}

func (h *Handler) handleCommand(ctx context.Context, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	log := h.logger.With(zap.String("command", data.Name), zap.String("guild_id", i.GuildID), zap.String("user_id", userID(i)))

	if data.Name == CmdHelp {
		h.respond(i, log, helpText(), true)
		return
	}
	if i.GuildID == "" {
		h.respond(i, log, "This command only works in a server.", true)
		return
	}

	// Transcripts and meeting lists are shared with the channel, as they always were.
	ephemeral := data.Name != CmdTranscript && data.Name != CmdMeetings
	if err := h.deferResponse(i, ephemeral); err != nil {
		log.Warn("defer interaction", zap.Error(err))
		return
	}

	switch data.Name {
	case CmdJoin:
		h.join(ctx, i, log)
	case CmdStop:
		h.stop(ctx, i, log)
	case CmdTranscript:
		h.transcript(ctx, i, data, log)
	case CmdMeetings:
		h.listMeetings(ctx, i, log)
	case CmdAddMember:
		h.addMember(ctx, i, data, log)
	case CmdCheckMember:
		h.checkMember(ctx, i, data, log)
	case CmdListMembers:
		h.listMembers(ctx, i, log)
	default:
		h.editText(i, log, "Unknown command.")
	}
}

func (h *Handler) join(ctx context.Context, i *discordgo.InteractionCreate, log *zap.Logger) {
	voiceChannel := ""
	if h.locate != nil {
		voiceChannel = h.locate(i.GuildID, userID(i))
	}
	s, err := h.sessions.StartSession(ctx, session.StartRequest{
		TenantID:       session.TenantID(i.GuildID),
		VoiceChannelID: voiceChannel,
		TextChannelID:  i.ChannelID,
		RequestedBy:    userID(i),
	})
	if err != nil {
		h.editView(i, log, StartErrorView(err))
		return
	}
	h.editView(i, log, session.View{
		Kind:        session.KindSuccess,
		Title:       "Recording started",
		Description: fmt.Sprintf("Recording <#%s>. Use `/stop` or the button on the status message to finish.", s.VoiceChannelID()),
	})
}

func (h *Handler) stop(ctx context.Context, i *discordgo.InteractionCreate, log *zap.Logger) {
	if err := h.sessions.RequestStop(ctx, session.TenantID(i.GuildID), session.TriggerManual); err != nil {
		h.editView(i, log, StopErrorView(err))
		return
	}
	h.editText(i, log, "Recording stopped.")
}

func (h *Handler) handleStopButton(ctx context.Context, i *discordgo.InteractionCreate) {
	log := h.logger.With(zap.String("component", StopButtonID), zap.String("guild_id", i.GuildID), zap.String("user_id", userID(i)))
	err := h.api.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{Type: discordgo.InteractionResponseDeferredMessageUpdate})
	if err != nil {
		log.Warn("acknowledge stop button", zap.Error(err))
		return
	}
	if i.GuildID == "" {
		return
	}
	if err := h.sessions.RequestStop(ctx, session.TenantID(i.GuildID), session.TriggerManual); err != nil {
		v := StopErrorView(err)
		if _, ferr := h.api.FollowupMessageCreate(i.Interaction, false, &discordgo.WebhookParams{
			Embeds: []*discordgo.MessageEmbed{renderEmbed(v)},
			Flags:  discordgo.MessageFlagsEphemeral,
		}); ferr != nil {
			log.Warn("stop button followup", zap.Error(ferr))
		}
	}
}

func (h *Handler) transcript(ctx context.Context, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData, log *zap.Logger) {
	raw := optionString(data.Options, "id")
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		h.editText(i, log, "That is not a valid meeting ID.")
		return
	}
	m, err := h.meetings.GetByID(ctx, id)
	switch {
	case errors.Is(err, meetings.ErrNotFound):
		h.editText(i, log, "No transcript found for this meeting.")
		return
	case err != nil:
		log.Error("load meeting", zap.String("meeting_id", id.String()), zap.Error(err))
		h.editText(i, log, "Could not load that meeting right now.")
		return
	}
	// Meetings from other servers are invisible.
	if m.GuildID != i.GuildID || !m.HasTranscript() {
		h.editText(i, log, "No transcript found for this meeting.")
		return
	}

	chunks := chunkTranscript(m.Transcription)
	h.editText(i, log, chunks[0])
	for _, c := range chunks[1:] {
		if _, err := h.api.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{Content: c}); err != nil {
			log.Warn("send transcript chunk", zap.Error(err))
			return
		}
	}
}

func (h *Handler) listMeetings(ctx context.Context, i *discordgo.InteractionCreate, log *zap.Logger) {
	list, err := h.meetings.ListByGuild(ctx, i.GuildID, recentMeetingsLimit)
	if err != nil {
		log.Error("list meetings", zap.Error(err))
		h.editText(i, log, "Could not list meetings right now.")
		return
	}
	h.editView(i, log, meetingsView(list))
}

func meetingsView(list []models.Meeting) session.View {
	v := session.View{Kind: session.KindProgress, Title: "Recent meetings"}
	if len(list) == 0 {
		v.Description = "No meetings have been recorded in this server yet."
		return v
	}
	for _, m := range list {
		transcript := "no transcript"
		if m.HasTranscript() {
			transcript = "transcript ready"
		}
		duration := "in progress"
		if m.EndedAt != nil {
			duration = session.FormatDuration(m.Duration())
		}
		v.Fields = append(v.Fields, session.Field{
			Name:  fmt.Sprintf("<t:%d:f>", m.StartedAt.Unix()),
			Value: fmt.Sprintf("`%s`\n%s · %d speaker(s) · %s", m.ID, duration, len(m.Participants), transcript),
		})
	}
	return v
}

func (h *Handler) addMember(ctx context.Context, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData, log *zap.Logger) {
	if !h.requireAdmin(i, log) {
		return
	}
	memberID := optionString(data.Options, "member")
	member := resolvedMember(data, memberID)
	if member == nil || member.Nick == "" {
		h.editText(i, log, "Please make sure the member has their nickname set as their name!")
		return
	}
	p := &models.Person{
		DiscordID: memberID,
		Name:      member.Nick,
		EID:       optionString(data.Options, "eid"),
		Email:     optionString(data.Options, "email"),
	}
	if err := h.people.Upsert(ctx, p); err != nil {
		log.Error("upsert person", zap.Error(err))
		h.editText(i, log, "Could not save that member right now.")
		return
	}
	username := memberID
	if member.User != nil {
		username = member.User.Username
	}
	h.editText(i, log, fmt.Sprintf("Added %s (%s) to the SBI member's DB.", username, member.Nick))
}

func (h *Handler) checkMember(ctx context.Context, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData, log *zap.Logger) {
	if !h.requireAdmin(i, log) {
		return
	}
	memberID := optionString(data.Options, "member")
	p, err := h.people.GetByDiscordID(ctx, memberID)
	switch {
	case errors.Is(err, people.ErrNotFound):
		h.editText(i, log, fmt.Sprintf("<@%s> is not in the SBI member's DB.", memberID))
	case err != nil:
		log.Error("get person", zap.Error(err))
		h.editText(i, log, "Could not look up that member right now.")
	default:
		h.editText(i, log, fmt.Sprintf("<@%s> is %s (EID %s, %s).", memberID, p.Name, p.EID, p.Email))
	}
}

func (h *Handler) listMembers(ctx context.Context, i *discordgo.InteractionCreate, log *zap.Logger) {
	if !h.requireAdmin(i, log) {
		return
	}
	list, err := h.people.List(ctx)
	if err != nil {
		log.Error("list people", zap.Error(err))
		h.editText(i, log, "Could not list members right now.")
		return
	}
	if len(list) == 0 {
		h.editText(i, log, "No members in the DB yet.")
		return
	}
	lines := make([]string, 0, len(list))
	for _, p := range list {
		lines = append(lines, fmt.Sprintf("<@%s> %s (%s)", p.DiscordID, p.Name, p.EID))
	}
	h.editText(i, log, truncate(strings.Join(lines, "\n"), maxMessageLen))
}

func (h *Handler) requireAdmin(i *discordgo.InteractionCreate, log *zap.Logger) bool {
	if h.people == nil {
		h.editText(i, log, "The member directory is not configured.")
		return false
	}
	if i.Member == nil || i.Member.Permissions&discordgo.PermissionAdministrator == 0 {
		h.editText(i, log, "You need the Administrator permission to do that.")
		return false
	}
	return true
}

// StartErrorView maps a start failure to what the caller sees.
func StartErrorView(err error) session.View {
	switch {
	case errors.Is(err, session.ErrNotInVoiceChannel):
		return session.NotInVoiceChannelView()
	case errors.Is(err, session.ErrAlreadyActive):
		return session.AlreadyActiveView()
	case errors.Is(err, session.ErrConnectionTimeout):
		return session.ConnectionTimeoutView()
	default:
		return session.StartFailedView(err)
	}
}

// StopErrorView maps a manual stop failure to what the caller sees.
func StopErrorView(err error) session.View {
	if errors.Is(err, session.ErrNotRecording) {
		return session.NotRecordingView()
	}
	return session.StopFailedView(err)
}

func (h *Handler) deferResponse(i *discordgo.InteractionCreate, ephemeral bool) error {
	data := &discordgo.InteractionResponseData{}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	return h.api.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: data,
	})
}

func (h *Handler) respond(i *discordgo.InteractionCreate, log *zap.Logger, content string, ephemeral bool) {
	data := &discordgo.InteractionResponseData{Content: content}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	err := h.api.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	})
	if err != nil {
		log.Warn("respond to interaction", zap.Error(err))
	}
}

func (h *Handler) editText(i *discordgo.InteractionCreate, log *zap.Logger, content string) {
	if _, err := h.api.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &content}); err != nil {
		log.Warn("edit interaction response", zap.Error(err))
	}
}

func (h *Handler) editView(i *discordgo.InteractionCreate, log *zap.Logger, v session.View) {
	embeds := []*discordgo.MessageEmbed{renderEmbed(v)}
	if _, err := h.api.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Embeds: &embeds}); err != nil {
		log.Warn("edit interaction response", zap.Error(err))
	}
}

func helpText() string {
	return strings.Join([]string{
		"**Steve records your meetings.**",
		"`/join` start recording the voice channel you are in",
		"`/stop` stop recording and save the meeting",
		"`/transcript <id>` show a meeting's transcript",
		"`/meetings` list recent meetings in this server",
		"`/add_member`, `/check_member`, `/list_members` manage the member directory (admins)",
	}, "\n")
}

func userID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

func optionString(opts []*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	for _, o := range opts {
		if o.Name == name {
			if s, ok := o.Value.(string); ok {
				return s
			}
		}
	}
	return ""
}

func resolvedMember(data discordgo.ApplicationCommandInteractionData, id string) *discordgo.Member {
	if data.Resolved == nil {
		return nil
	}
	m, ok := data.Resolved.Members[id]
	if !ok || m == nil {
		return nil
	}
	if m.User == nil {
		m.User = data.Resolved.Users[id]
	}
	return m
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
