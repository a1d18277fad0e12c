package discord

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/sbi-steve/backend/internal/session"
)

// interactionTTL is how long Discord accepts edits to a deferred response.
const interactionTTL = 15 * time.Minute

// NewSession creates a discordgo session with the intents the bot needs.
// The gateway is not opened.
func NewSession(token string) (*discordgo.Session, error) {
	if token == "" {
		return nil, errors.New("discord token is required")
	}
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates
	return s, nil
}

// BotConfig holds command registration settings.
type BotConfig struct {
	ApplicationID   string
	CommandGuildIDs []string
	SyncCommands    bool
}

// Bot connects the gateway to the interaction handler and the session manager.
type Bot struct {
	s        *discordgo.Session
	cfg      BotConfig
	handler  *Handler
	sessions Sessions
	logger   *zap.Logger

	remove []func()
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewBot creates a bot.
func NewBot(s *discordgo.Session, cfg BotConfig, handler *Handler, sessions Sessions, logger *zap.Logger) *Bot {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Bot{s: s, cfg: cfg, handler: handler, sessions: sessions, logger: logger, ctx: ctx, cancel: cancel}
}

// Open registers handlers, connects the gateway and syncs commands.
func (b *Bot) Open() error {
	b.remove = append(b.remove,
		b.s.AddHandler(b.onReady),
		b.s.AddHandler(b.onInteraction),
		b.s.AddHandler(b.onVoiceStateUpdate),
	)
	if err := b.s.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}
	if !b.cfg.SyncCommands {
		return nil
	}
	appID := b.cfg.ApplicationID
	if appID == "" && b.s.State != nil && b.s.State.User != nil {
		appID = b.s.State.User.ID
	}
	n, err := SyncCommands(b.s, appID, b.cfg.CommandGuildIDs)
	if err != nil {
		return err
	}
	b.logger.Info("slash commands synced", zap.Int("scopes", n))
	return nil
}

// Close waits for in-flight interactions, bounded by ctx, then closes the gateway.
func (b *Bot) Close(ctx context.Context) error {
	for _, rm := range b.remove {
		rm()
	}
	b.remove = nil

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	var errs []error
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("waiting for interactions: %w", ctx.Err()))
	}
	b.cancel()
	if err := b.s.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close discord gateway: %w", err))
	}
	return errors.Join(errs...)
}

func (b *Bot) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	b.logger.Info("discord gateway ready", zap.String("user", r.User.Username), zap.Int("guilds", len(r.Guilds)))
}

// onInteraction hands work to its own goroutine so the gateway loop never blocks.
func (b *Bot) onInteraction(_ *discordgo.Session, i *discordgo.InteractionCreate) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("interaction handler panic", zap.Any("panic", r), zap.String("guild_id", i.GuildID))
			}
		}()
		ctx, cancel := context.WithTimeout(b.ctx, interactionTTL)
		defer cancel()
		b.handler.Handle(ctx, i)
	}()
}

func (b *Bot) onVoiceStateUpdate(s *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
	if s.State == nil || s.State.User == nil {
		return
	}
	if !botLeftVoice(s.State.User.ID, vs) {
		return
	}
	b.logger.Warn("bot left voice", zap.String("guild_id", vs.GuildID))
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		if err := b.sessions.HandleExternalDisconnect(b.ctx, session.TenantID(vs.GuildID)); err != nil {
			b.logger.Error("stop after voice disconnect", zap.String("guild_id", vs.GuildID), zap.Error(err))
		}
	}()
}

// botLeftVoice reports whether vs is the bot leaving a voice channel. Moves
// between channels do not count.
func botLeftVoice(botID string, vs *discordgo.VoiceStateUpdate) bool {
	if vs == nil || vs.VoiceState == nil || vs.UserID != botID || vs.ChannelID != "" {
		return false
	}
	// Without a previous state the leave cannot be ruled out.
	return vs.BeforeUpdate == nil || vs.BeforeUpdate.ChannelID != ""
}
