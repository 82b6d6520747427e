package commands

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/sumirevox/internal/discord"
	"github.com/MrWong99/sumirevox/internal/observe"
	"github.com/MrWong99/sumirevox/internal/reading"
	"github.com/MrWong99/sumirevox/internal/settings"
)

const (
	// maxChoices is the Discord limit for autocomplete results.
	maxChoices = 25

	// suggestThreshold is the Jaro-Winkler score a stored word needs to be
	// offered as "did you mean".
	suggestThreshold = 0.75

	maxSuggestions = 3

	// embedDescriptionLimit is Discord's cap on embed descriptions.
	embedDescriptionLimit = 4096
)

// Suggester proposes a reading for a word. *reading.Suggester satisfies it.
type Suggester interface {
	Suggest(text string) reading.Suggestion
}

var _ Suggester = (*reading.Suggester)(nil)

// DictCommands handles the /dict slash command group for guild-local word
// replacements.
type DictCommands struct {
	perms     *discord.PermissionChecker
	store     *settings.Store
	suggester Suggester
}

// NewDictCommands creates a DictCommands handler. suggester may be nil, in
// which case /dict add requires an explicit reading.
func NewDictCommands(perms *discord.PermissionChecker, store *settings.Store, suggester Suggester) *DictCommands {
	return &DictCommands{
		perms:     perms,
		store:     store,
		suggester: suggester,
	}
}

// Register registers all /dict subcommands with the router.
func (dc *DictCommands) Register(router *discord.CommandRouter) {
	def := dc.Definition()
	router.RegisterCommand("dict", def, func(_ context.Context, r discord.Responder, i *discordgo.InteractionCreate) {
		discord.RespondEphemeral(r, i, "サブコマンドを指定してください：`/dict add`, `/dict remove`, `/dict list`")
	})
	router.RegisterHandler("dict/add", dc.handleAdd)
	router.RegisterHandler("dict/remove", dc.handleRemove)
	router.RegisterHandler("dict/list", dc.handleList)

	router.RegisterAutocomplete("dict/remove", dc.handleAutocomplete)
}

// Definition returns the /dict ApplicationCommand for Discord registration.
func (dc *DictCommands) Definition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        "dict",
		Description: "サーバー辞書（読み替え）の管理",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Name:        "add",
				Description: "単語の読みを登録します",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Options: []*discordgo.ApplicationCommandOption{
					{
						Name:        "word",
						Description: "単語",
						Type:        discordgo.ApplicationCommandOptionString,
						Required:    true,
						MaxLength:   100,
					},
					{
						Name:        "reading",
						Description: "読み（省略すると自動推定）",
						Type:        discordgo.ApplicationCommandOptionString,
						MaxLength:   100,
					},
				},
			},
			{
				Name:        "remove",
				Description: "単語を削除します",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Options: []*discordgo.ApplicationCommandOption{
					{
						Name:         "word",
						Description:  "単語",
						Type:         discordgo.ApplicationCommandOptionString,
						Required:     true,
						Autocomplete: true,
					},
				},
			},
			{
				Name:        "list",
				Description: "登録されている単語を表示します",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
			},
		},
	}
}

// handleAdd handles /dict add <word> [reading]. The reply is deferred
// because a missing reading is derived with the morphological analyser.
func (dc *DictCommands) handleAdd(ctx context.Context, r discord.Responder, i *discordgo.InteractionCreate) {
	if !dc.perms.CanConfigure(i) {
		discord.RespondEphemeral(r, i, noPermissionMessage)
		return
	}
	guildID, ok := interactionGuildID(i)
	if !ok {
		discord.RespondEphemeral(r, i, "❌ このコマンドはサーバー内でのみ使用できます。")
		return
	}
	word := strings.TrimSpace(subcommandStringOption(i, "word"))
	yomi := strings.TrimSpace(subcommandStringOption(i, "reading"))

	discord.DeferReply(r, i)

	if yomi == "" {
		if dc.suggester == nil {
			discord.FollowUp(r, i, "⚠️ `reading` を指定してください。")
			return
		}
		s := dc.suggester.Suggest(word)
		if !s.Complete || s.Reading == "" {
			msg := "⚠️ 読みを推定できませんでした。`reading` を指定してください。"
			if s.Reading != "" {
				msg = fmt.Sprintf("⚠️ 読みを推定できませんでした（候補：`%s`）。`reading` を指定してください。", s.Reading)
			}
			discord.FollowUp(r, i, msg)
			return
		}
		yomi = s.Reading
	}

	w, err := dc.store.SetGuildWord(ctx, guildID, word, yomi)
	if err != nil {
		logFailure(ctx, "dict/add", err)
		discord.FollowUp(r, i, failureMessage(err))
		return
	}
	observe.Logger(ctx).Info("guild word set", "guild_id", guildID, "word", w.Word, "reading", w.Reading)
	discord.FollowUp(r, i, fmt.Sprintf("✅ **%s** を **%s** と読むように登録しました。", w.Word, w.Reading))
}

// handleRemove handles /dict remove <word>.
func (dc *DictCommands) handleRemove(ctx context.Context, r discord.Responder, i *discordgo.InteractionCreate) {
	if !dc.perms.CanConfigure(i) {
		discord.RespondEphemeral(r, i, noPermissionMessage)
		return
	}
	guildID, ok := interactionGuildID(i)
	if !ok {
		discord.RespondEphemeral(r, i, "❌ このコマンドはサーバー内でのみ使用できます。")
		return
	}
	word := strings.TrimSpace(subcommandStringOption(i, "word"))

	removed, err := dc.store.RemoveGuildWord(ctx, guildID, word)
	if err != nil {
		respondFailure(ctx, r, i, "dict/remove", err)
		return
	}
	if removed {
		observe.Logger(ctx).Info("guild word removed", "guild_id", guildID, "word", word)
		discord.RespondEphemeral(r, i, fmt.Sprintf("✅ **%s** を辞書から削除しました。", word))
		return
	}

	msg := fmt.Sprintf("⚠️ **%s** は辞書に登録されていません。", word)
	if words, err := dc.store.GuildWords(ctx, guildID); err == nil {
		if similar := similarWords(word, words); len(similar) > 0 {
			msg += "\nもしかして：`" + strings.Join(similar, "`, `") + "`"
		}
	}
	discord.RespondEphemeral(r, i, msg)
}

// handleList handles /dict list. Anyone in the guild may look.
func (dc *DictCommands) handleList(ctx context.Context, r discord.Responder, i *discordgo.InteractionCreate) {
	guildID, ok := interactionGuildID(i)
	if !ok {
		discord.RespondEphemeral(r, i, "❌ このコマンドはサーバー内でのみ使用できます。")
		return
	}
	words, err := dc.store.GuildWords(ctx, guildID)
	if err != nil {
		respondFailure(ctx, r, i, "dict/list", err)
		return
	}
	discord.RespondEmbed(r, i, wordsEmbed(words))
}

// handleAutocomplete offers stored words for /dict remove.
func (dc *DictCommands) handleAutocomplete(ctx context.Context, r discord.Responder, i *discordgo.InteractionCreate) {
	guildID, ok := interactionGuildID(i)
	if !ok {
		discord.RespondChoices(r, i, nil)
		return
	}
	var typed string
	if opt := focusedOption(i); opt != nil {
		typed = opt.StringValue()
	}
	words, err := dc.store.GuildWords(ctx, guildID)
	if err != nil {
		observe.Logger(ctx).Warn("discord: autocomplete lookup failed", "guild_id", guildID, "err", err)
		discord.RespondChoices(r, i, nil)
		return
	}
	discord.RespondChoices(r, i, wordChoices(typed, words))
}

// wordChoices returns up to [maxChoices] words containing typed, in stored
// order.
func wordChoices(typed string, words []settings.GuildWord) []*discordgo.ApplicationCommandOptionChoice {
	typed = strings.ToLower(strings.TrimSpace(typed))
	var choices []*discordgo.ApplicationCommandOptionChoice
	for _, w := range words {
		if typed != "" && !strings.Contains(strings.ToLower(w.Word), typed) {
			continue
		}
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{
			Name:  fmt.Sprintf("%s → %s", w.Word, w.Reading),
			Value: w.Word,
		})
		if len(choices) == maxChoices {
			break
		}
	}
	return choices
}

// similarWords returns the stored words closest to word by Jaro-Winkler
// similarity, best first.
func similarWords(word string, words []settings.GuildWord) []string {
	type scored struct {
		word  string
		score float64
	}
	var hits []scored
	for _, w := range words {
		if s := matchr.JaroWinkler(word, w.Word, false); s >= suggestThreshold {
			hits = append(hits, scored{w.Word, s})
		}
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].score > hits[b].score })
	if len(hits) > maxSuggestions {
		hits = hits[:maxSuggestions]
	}
	out := make([]string, len(hits))
	for n, h := range hits {
		out[n] = h.word
	}
	return out
}

// wordsEmbed lists guild words, truncated to what an embed can hold.
func wordsEmbed(words []settings.GuildWord) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title: "📖 サーバー辞書",
		Color: embedColor,
	}
	if len(words) == 0 {
		embed.Description = "登録されている単語はありません。"
		return embed
	}

	var b strings.Builder
	shown := 0
	for _, w := range words {
		line := fmt.Sprintf("`%s` → %s\n", w.Word, w.Reading)
		if utf8.RuneCountInString(b.String())+utf8.RuneCountInString(line) > embedDescriptionLimit-64 {
			break
		}
		b.WriteString(line)
		shown++
	}
	if shown < len(words) {
		fmt.Fprintf(&b, "…ほか %d 件", len(words)-shown)
	}
	embed.Description = strings.TrimRight(b.String(), "\n")
	embed.Footer = &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("%d 件", len(words))}
	return embed
}
