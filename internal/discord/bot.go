// Package discord provides the Discord bot layer for SumireVox. It owns
// the discordgo.Session lifecycle, routes slash command interactions to
// registered handlers, and checks who may change guild settings.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

// DefaultHandlerTimeout bounds a single interaction handler. Deferred
// interactions stay answerable for 15 minutes, so this only guards against
// stuck engine or storage calls.
const DefaultHandlerTimeout = 30 * time.Second

// Config holds Discord bot configuration.
type Config struct {
	// Token is the Discord bot token without the "Bot " prefix.
	Token string

	// GuildID scopes command registration to one guild. Empty registers
	// global commands.
	GuildID string

	// AdminRoleIDs are roles that may change settings without holding the
	// Manage Server permission.
	AdminRoleIDs []string

	// HandlerTimeout overrides [DefaultHandlerTimeout] when positive.
	HandlerTimeout time.Duration
}

// Bot owns the Discord gateway connection and routes interactions
// to registered command handlers.
type Bot struct {
	mu        sync.RWMutex
	session   *discordgo.Session
	router    *CommandRouter
	perms     *PermissionChecker
	guildID   string
	timeout   time.Duration
	commands  []*discordgo.ApplicationCommand
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// New creates a Bot, connects to Discord, and registers the interaction
// handler. Handlers run with a context derived from ctx.
func New(ctx context.Context, cfg Config) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds

	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("discord: open session: %w", err)
	}

	timeout := cfg.HandlerTimeout
	if timeout <= 0 {
		timeout = DefaultHandlerTimeout
	}

	bctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	b := &Bot{
		session: session,
		router:  NewCommandRouter(),
		perms:   NewPermissionChecker(cfg.AdminRoleIDs...),
		guildID: cfg.GuildID,
		timeout: timeout,
		ctx:     bctx,
		cancel:  cancel,
	}

	session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		hctx, hcancel := context.WithTimeout(b.ctx, b.timeout)
		defer hcancel()
		b.router.Handle(hctx, s, i)
	})

	return b, nil
}

// InstanceID returns the bot's own user id. Auto-join pairings are keyed by
// it so several bot instances can share one settings store.
func (b *Bot) InstanceID() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.session == nil || b.session.State == nil || b.session.State.User == nil {
		return ""
	}
	return b.session.State.User.ID
}

// GuildID returns the guild commands are registered in.
func (b *Bot) GuildID() string {
	return b.guildID
}

// Router returns the command router for registering handlers.
func (b *Bot) Router() *CommandRouter {
	return b.router
}

// Permissions returns the permission checker.
func (b *Bot) Permissions() *PermissionChecker {
	return b.perms
}

// Run registers slash commands with the Discord API and blocks until
// ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	appID := b.InstanceID()

	cmds := b.router.ApplicationCommands()
	if len(cmds) > 0 {
		registered, err := b.session.ApplicationCommandBulkOverwrite(appID, b.guildID, cmds, discordgo.WithContext(ctx))
		if err != nil {
			return fmt.Errorf("discord: register commands: %w", err)
		}
		b.mu.Lock()
		b.commands = registered
		b.mu.Unlock()
		slog.Info("discord commands registered", "count", len(registered), "guild_id", b.guildID)
	}

	<-ctx.Done()
	return ctx.Err()
}

// Close cancels in-flight handlers, unregisters guild commands, and
// disconnects from Discord. Global commands are left in place because
// Discord propagates their removal slowly.
func (b *Bot) Close() error {
	var closeErr error
	b.closeOnce.Do(func() {
		b.cancel()

		b.mu.Lock()
		defer b.mu.Unlock()

		if b.session != nil && b.guildID != "" && len(b.commands) > 0 {
			appID := b.session.State.User.ID
			for _, cmd := range b.commands {
				if err := b.session.ApplicationCommandDelete(appID, b.guildID, cmd.ID); err != nil {
					slog.Warn("discord: failed to delete command", "name", cmd.Name, "err", err)
				}
			}
		}

		if b.session != nil {
			if err := b.session.Close(); err != nil {
				closeErr = fmt.Errorf("discord: close session: %w", err)
			}
		}

		slog.Info("discord bot closed")
	})
	return closeErr
}
