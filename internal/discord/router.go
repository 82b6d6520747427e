package discord

import (
	"context"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// HandlerFunc is the signature for slash command and autocomplete handlers.
// ctx is cancelled when the bot shuts down or the handler budget is spent.
type HandlerFunc func(ctx context.Context, r Responder, i *discordgo.InteractionCreate)

type commandEntry struct {
	command *discordgo.ApplicationCommand
	handler HandlerFunc
}

// CommandRouter dispatches Discord interactions to registered handlers.
type CommandRouter struct {
	mu           sync.RWMutex
	commands     map[string]commandEntry // "command" or "command/subcommand"
	autocomplete map[string]HandlerFunc  // same keys as commands
}

// NewCommandRouter creates an empty router.
func NewCommandRouter() *CommandRouter {
	return &CommandRouter{
		commands:     make(map[string]commandEntry),
		autocomplete: make(map[string]HandlerFunc),
	}
}

// RegisterCommand registers a handler for a slash command. The key format is
// "command" or "command/subcommand" (e.g., "dict/add"). cmd is the top-level
// definition sent to Discord; subcommands are nested inside it.
func (r *CommandRouter) RegisterCommand(key string, cmd *discordgo.ApplicationCommand, handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[key] = commandEntry{command: cmd, handler: handler}
}

// RegisterHandler registers a handler for a key whose top-level command is
// registered separately.
func (r *CommandRouter) RegisterHandler(key string, handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[key] = commandEntry{handler: handler}
}

// RegisterAutocomplete registers an autocomplete handler.
func (r *CommandRouter) RegisterAutocomplete(key string, handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.autocomplete[key] = handler
}

// ApplicationCommands returns the deduplicated list of top-level command
// definitions for registration with the Discord API.
func (r *CommandRouter) ApplicationCommands() []*discordgo.ApplicationCommand {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var cmds []*discordgo.ApplicationCommand
	for _, entry := range r.commands {
		if entry.command != nil && !seen[entry.command.Name] {
			seen[entry.command.Name] = true
			cmds = append(cmds, entry.command)
		}
	}
	return cmds
}

// Handle dispatches an interaction to the appropriate handler.
func (r *CommandRouter) Handle(ctx context.Context, resp Responder, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		key := interactionKey(i.ApplicationCommandData())
		r.mu.RLock()
		entry, ok := r.commands[key]
		r.mu.RUnlock()
		if !ok {
			slog.Warn("discord: unknown command", "key", key)
			RespondEphemeral(resp, i, "不明なコマンドです。")
			return
		}
		entry.handler(ctx, resp, i)

	case discordgo.InteractionApplicationCommandAutocomplete:
		key := interactionKey(i.ApplicationCommandData())
		r.mu.RLock()
		handler, ok := r.autocomplete[key]
		r.mu.RUnlock()
		if !ok {
			slog.Debug("discord: no autocomplete handler", "key", key)
			RespondChoices(resp, i, nil)
			return
		}
		handler(ctx, resp, i)

	default:
		slog.Debug("discord: unhandled interaction type", "type", i.Type)
	}
}

// interactionKey builds a router key from an ApplicationCommand interaction.
func interactionKey(data discordgo.ApplicationCommandInteractionData) string {
	key := data.Name
	if len(data.Options) > 0 && data.Options[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		key += "/" + data.Options[0].Name
	}
	return key
}
