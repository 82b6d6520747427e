package commands

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/sumirevox/internal/discord"
	"github.com/MrWong99/sumirevox/internal/keylock"
	"github.com/MrWong99/sumirevox/internal/observe"
	"github.com/MrWong99/sumirevox/internal/settings"
)

// toggleItem is a boolean guild setting that /config toggle can flip.
type toggleItem struct {
	key   string
	label string
	field func(*settings.GuildSettings) *bool
}

var toggleItems = []toggleItem{
	{"auto_join", "自動接続", func(gs *settings.GuildSettings) *bool { return &gs.AutoJoin }},
	{"read_vc_status", "入退出の読み上げ", func(gs *settings.GuildSettings) *bool { return &gs.ReadVCStatus }},
	{"read_mention", "メンション読み上げ", func(gs *settings.GuildSettings) *bool { return &gs.ReadMention }},
	{"add_suffix", "さん付け", func(gs *settings.GuildSettings) *bool { return &gs.AddSuffix }},
	{"read_romaji", "ローマ字読み", func(gs *settings.GuildSettings) *bool { return &gs.ReadRomaji }},
	{"read_attachments", "添付ファイルの読み上げ", func(gs *settings.GuildSettings) *bool { return &gs.ReadAttachments }},
	{"skip_code_blocks", "コードブロックの省略", func(gs *settings.GuildSettings) *bool { return &gs.SkipCodeBlocks }},
	{"skip_urls", "URLの省略", func(gs *settings.GuildSettings) *bool { return &gs.SkipURLs }},
}

func lookupToggle(key string) (toggleItem, bool) {
	for _, it := range toggleItems {
		if it.key == key {
			return it, true
		}
	}
	return toggleItem{}, false
}

// ConfigCommands handles the /config slash command group.
type ConfigCommands struct {
	perms *discord.PermissionChecker
	store *settings.Store
	locks *keylock.Map[int64]

	// instanceID returns this bot's user id, the key of its auto-join
	// pairing.
	instanceID func() string
}

// NewConfigCommands creates a ConfigCommands handler. locks serialises
// writes per guild and should be shared with every other writer in the
// process.
func NewConfigCommands(perms *discord.PermissionChecker, store *settings.Store, locks *keylock.Map[int64], instanceID func() string) *ConfigCommands {
	return &ConfigCommands{
		perms:      perms,
		store:      store,
		locks:      locks,
		instanceID: instanceID,
	}
}

// Register registers all /config subcommands with the router.
func (cc *ConfigCommands) Register(router *discord.CommandRouter) {
	def := cc.Definition()
	router.RegisterCommand("config", def, func(_ context.Context, r discord.Responder, i *discordgo.InteractionCreate) {
		discord.RespondEphemeral(r, i, "サブコマンドを指定してください：`/config show`, `/config max_chars`, `/config toggle`, `/config autojoin`, `/config autojoin_clear`")
	})
	router.RegisterHandler("config/show", cc.handleShow)
	router.RegisterHandler("config/max_chars", cc.handleMaxChars)
	router.RegisterHandler("config/toggle", cc.handleToggle)
	router.RegisterHandler("config/autojoin", cc.handleAutoJoin)
	router.RegisterHandler("config/autojoin_clear", cc.handleAutoJoinClear)
}

// Definition returns the /config ApplicationCommand for Discord registration.
func (cc *ConfigCommands) Definition() *discordgo.ApplicationCommand {
	minChars := float64(settings.MinMaxChars)
	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(toggleItems))
	for _, it := range toggleItems {
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{Name: it.label, Value: it.key})
	}
	perm := int64(discordgo.PermissionManageGuild)

	return &discordgo.ApplicationCommand{
		Name:                     "config",
		Description:              "サーバーの読み上げ設定",
		DefaultMemberPermissions: &perm,
		Options: []*discordgo.ApplicationCommandOption{
			{
				Name:        "show",
				Description: "現在の設定を表示します",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
			},
			{
				Name:        "max_chars",
				Description: fmt.Sprintf("読み上げる最大文字数を設定します (%d-%d)", settings.MinMaxChars, settings.MaxMaxChars),
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Options: []*discordgo.ApplicationCommandOption{
					{
						Name:        "value",
						Description: "最大文字数",
						Type:        discordgo.ApplicationCommandOptionInteger,
						Required:    true,
						MinValue:    &minChars,
						MaxValue:    float64(settings.MaxMaxChars),
					},
				},
			},
			{
				Name:        "toggle",
				Description: "機能の有効・無効を切り替えます",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Options: []*discordgo.ApplicationCommandOption{
					{
						Name:        "item",
						Description: "設定項目",
						Type:        discordgo.ApplicationCommandOptionString,
						Required:    true,
						Choices:     choices,
					},
					{
						Name:        "enabled",
						Description: "有効にするか",
						Type:        discordgo.ApplicationCommandOptionBoolean,
						Required:    true,
					},
				},
			},
			{
				Name:        "autojoin",
				Description: "このBotが自動で参加するチャンネルを設定します",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Options: []*discordgo.ApplicationCommandOption{
					{
						Name:         "voice",
						Description:  "監視するボイスチャンネル",
						Type:         discordgo.ApplicationCommandOptionChannel,
						Required:     true,
						ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildVoice, discordgo.ChannelTypeGuildStageVoice},
					},
					{
						Name:         "text",
						Description:  "読み上げるテキストチャンネル",
						Type:         discordgo.ApplicationCommandOptionChannel,
						Required:     true,
						ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText},
					},
				},
			},
			{
				Name:        "autojoin_clear",
				Description: "このBotの自動接続設定を削除します",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
			},
		},
	}
}

// guard checks permission and resolves the guild. It answers the
// interaction itself when it returns false.
func (cc *ConfigCommands) guard(r discord.Responder, i *discordgo.InteractionCreate) (int64, bool) {
	if !cc.perms.CanConfigure(i) {
		discord.RespondEphemeral(r, i, noPermissionMessage)
		return 0, false
	}
	guildID, ok := interactionGuildID(i)
	if !ok {
		discord.RespondEphemeral(r, i, "❌ このコマンドはサーバー内でのみ使用できます。")
		return 0, false
	}
	return guildID, true
}

// handleShow handles /config show.
func (cc *ConfigCommands) handleShow(ctx context.Context, r discord.Responder, i *discordgo.InteractionCreate) {
	guildID, ok := cc.guard(r, i)
	if !ok {
		return
	}
	gs, err := cc.store.Get(ctx, guildID)
	if err != nil {
		respondFailure(ctx, r, i, "config/show", err)
		return
	}
	discord.RespondEmbed(r, i, settingsEmbed(gs, cc.instanceID()))
}

// settingsEmbed renders a guild document. self marks this bot's pairing.
func settingsEmbed(gs settings.GuildSettings, self string) *discordgo.MessageEmbed {
	fields := []*discordgo.MessageEmbedField{
		{Name: "文字数制限", Value: strconv.Itoa(gs.MaxChars), Inline: true},
	}
	for _, it := range toggleItems {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:   it.label,
			Value:  onOff(*it.field(&gs)),
			Inline: true,
		})
	}

	ids := make([]string, 0, len(gs.AutoJoinConfig))
	for id := range gs.AutoJoinConfig {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var pairs []string
	for _, id := range ids {
		p := gs.AutoJoinConfig[id]
		line := fmt.Sprintf("🔊 <#%d> ➡ 💬 <#%d>", p.VoiceChannelID, p.TextChannelID)
		if id == self {
			line += "（このBot）"
		} else {
			line += fmt.Sprintf("（<@%s>）", id)
		}
		pairs = append(pairs, line)
	}
	if len(pairs) == 0 {
		pairs = append(pairs, "未設定")
	}
	fields = append(fields, &discordgo.MessageEmbedField{
		Name:  "自動接続チャンネル",
		Value: strings.Join(pairs, "\n"),
	})

	return &discordgo.MessageEmbed{
		Title:  "⚙️ サーバー設定",
		Color:  embedColor,
		Fields: fields,
	}
}

// handleMaxChars handles /config max_chars <value>.
func (cc *ConfigCommands) handleMaxChars(ctx context.Context, r discord.Responder, i *discordgo.InteractionCreate) {
	guildID, ok := cc.guard(r, i)
	if !ok {
		return
	}
	value, _ := subcommandIntOption(i, "value")

	unlock := cc.locks.Lock(guildID)
	defer unlock()

	var old int
	_, err := cc.store.Update(ctx, guildID, func(gs *settings.GuildSettings) {
		old = gs.MaxChars
		gs.MaxChars = int(value)
	})
	if err != nil {
		respondFailure(ctx, r, i, "config/max_chars", err)
		return
	}
	observe.Logger(ctx).Info("guild setting changed", "guild_id", guildID, "key", "max_chars", "old", old, "new", value)
	discord.RespondEphemeral(r, i, fmt.Sprintf("✅ 設定を更新しました：`%d` ➡ **`%d`**", old, value))
}

// handleToggle handles /config toggle <item> <enabled>.
func (cc *ConfigCommands) handleToggle(ctx context.Context, r discord.Responder, i *discordgo.InteractionCreate) {
	guildID, ok := cc.guard(r, i)
	if !ok {
		return
	}
	item, found := lookupToggle(subcommandStringOption(i, "item"))
	if !found {
		discord.RespondEphemeral(r, i, "⚠️ 不明な設定項目です。")
		return
	}
	enabled, _ := subcommandBoolOption(i, "enabled")

	unlock := cc.locks.Lock(guildID)
	defer unlock()

	_, err := cc.store.Update(ctx, guildID, func(gs *settings.GuildSettings) {
		*item.field(gs) = enabled
	})
	if err != nil {
		respondFailure(ctx, r, i, "config/toggle", err)
		return
	}
	observe.Logger(ctx).Info("guild setting changed", "guild_id", guildID, "key", item.key, "new", enabled)
	discord.RespondEphemeral(r, i, fmt.Sprintf("✅ **%s** を **%s** に設定しました。", item.label, onOff(enabled)))
}

// handleAutoJoin handles /config autojoin <voice> <text>.
func (cc *ConfigCommands) handleAutoJoin(ctx context.Context, r discord.Responder, i *discordgo.InteractionCreate) {
	guildID, ok := cc.guard(r, i)
	if !ok {
		return
	}
	voiceID, verr := subcommandChannelOption(i, "voice")
	textID, terr := subcommandChannelOption(i, "text")
	if verr != nil || terr != nil {
		discord.RespondEphemeral(r, i, "❌ VCとTCの両方を選択してください。")
		return
	}

	unlock := cc.locks.Lock(guildID)
	defer unlock()

	if err := cc.store.SetAutoJoinPairing(ctx, guildID, cc.instanceID(), voiceID, textID); err != nil {
		respondFailure(ctx, r, i, "config/autojoin", err)
		return
	}
	discord.RespondEphemeral(r, i, fmt.Sprintf(
		"✅ このBotの自動接続設定を保存しました！\n次回から <#%d> への入室を検知して <#%d> で読み上げを開始します。",
		voiceID, textID,
	))
}

// handleAutoJoinClear handles /config autojoin_clear.
func (cc *ConfigCommands) handleAutoJoinClear(ctx context.Context, r discord.Responder, i *discordgo.InteractionCreate) {
	guildID, ok := cc.guard(r, i)
	if !ok {
		return
	}

	unlock := cc.locks.Lock(guildID)
	defer unlock()

	if err := cc.store.ClearAutoJoinPairing(ctx, guildID, cc.instanceID()); err != nil {
		respondFailure(ctx, r, i, "config/autojoin_clear", err)
		return
	}
	discord.RespondEphemeral(r, i, "✅ このBotの自動接続設定を削除しました。")
}
