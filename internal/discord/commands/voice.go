package commands

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/sumirevox/internal/discord"
	"github.com/MrWong99/sumirevox/internal/settings"
)

// VoiceCommands handles the /voice slash command group. Every user manages
// their own voice; no permission is required.
type VoiceCommands struct {
	store *settings.Store
}

// NewVoiceCommands creates a VoiceCommands handler.
func NewVoiceCommands(store *settings.Store) *VoiceCommands {
	return &VoiceCommands{store: store}
}

// Register registers all /voice subcommands with the router.
func (vc *VoiceCommands) Register(router *discord.CommandRouter) {
	def := vc.Definition()
	router.RegisterCommand("voice", def, func(_ context.Context, r discord.Responder, i *discordgo.InteractionCreate) {
		discord.RespondEphemeral(r, i, "サブコマンドを指定してください：`/voice show`, `/voice set`")
	})
	router.RegisterHandler("voice/show", vc.handleShow)
	router.RegisterHandler("voice/set", vc.handleSet)
}

// Definition returns the /voice ApplicationCommand for Discord registration.
func (vc *VoiceCommands) Definition() *discordgo.ApplicationCommand {
	minSpeaker := 0.0
	minSpeed := settings.MinSpeed
	minPitch := settings.MinPitch

	return &discordgo.ApplicationCommand{
		Name:        "voice",
		Description: "あなたの読み上げ音声の設定",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Name:        "show",
				Description: "現在の音声設定を表示します",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
			},
			{
				Name:        "set",
				Description: "音声設定を変更します",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Options: []*discordgo.ApplicationCommandOption{
					{
						Name:        "speaker",
						Description: "VOICEVOX の話者ID",
						Type:        discordgo.ApplicationCommandOptionInteger,
						MinValue:    &minSpeaker,
					},
					{
						Name:        "speed",
						Description: fmt.Sprintf("話速 (%.1f-%.1f)", settings.MinSpeed, settings.MaxSpeed),
						Type:        discordgo.ApplicationCommandOptionNumber,
						MinValue:    &minSpeed,
						MaxValue:    settings.MaxSpeed,
					},
					{
						Name:        "pitch",
						Description: fmt.Sprintf("音高 (%.2f-%.2f)", settings.MinPitch, settings.MaxPitch),
						Type:        discordgo.ApplicationCommandOptionNumber,
						MinValue:    &minPitch,
						MaxValue:    settings.MaxPitch,
					},
				},
			},
		},
	}
}

func voiceEmbed(v settings.UserVoice) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title: "🎙️ 音声設定",
		Color: embedColor,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "話者ID", Value: fmt.Sprintf("%d", v.Speaker), Inline: true},
			{Name: "話速", Value: fmt.Sprintf("%.2f", v.Speed), Inline: true},
			{Name: "音高", Value: fmt.Sprintf("%.2f", v.Pitch), Inline: true},
		},
	}
}

// handleShow handles /voice show.
func (vc *VoiceCommands) handleShow(ctx context.Context, r discord.Responder, i *discordgo.InteractionCreate) {
	userID, ok := interactionUserID(i)
	if !ok {
		discord.RespondEphemeral(r, i, "❌ ユーザーを特定できませんでした。")
		return
	}
	v, err := vc.store.UserVoice(ctx, userID)
	if err != nil {
		respondFailure(ctx, r, i, "voice/show", err)
		return
	}
	discord.RespondEmbed(r, i, voiceEmbed(v))
}

// handleSet handles /voice set [speaker] [speed] [pitch]. Omitted options
// keep their stored value.
func (vc *VoiceCommands) handleSet(ctx context.Context, r discord.Responder, i *discordgo.InteractionCreate) {
	userID, ok := interactionUserID(i)
	if !ok {
		discord.RespondEphemeral(r, i, "❌ ユーザーを特定できませんでした。")
		return
	}
	speaker, hasSpeaker := subcommandIntOption(i, "speaker")
	speed, hasSpeed := subcommandFloatOption(i, "speed")
	pitch, hasPitch := subcommandFloatOption(i, "pitch")
	if !hasSpeaker && !hasSpeed && !hasPitch {
		discord.RespondEphemeral(r, i, "⚠️ 変更する項目を指定してください。")
		return
	}

	v, err := vc.store.UserVoice(ctx, userID)
	if err != nil {
		respondFailure(ctx, r, i, "voice/set", err)
		return
	}
	if hasSpeaker {
		v.Speaker = int(speaker)
	}
	if hasSpeed {
		v.Speed = speed
	}
	if hasPitch {
		v.Pitch = pitch
	}
	if err := vc.store.SetUserVoice(ctx, v); err != nil {
		respondFailure(ctx, r, i, "voice/set", err)
		return
	}

	embed := voiceEmbed(v)
	embed.Title = "✅ 音声設定を更新しました"
	discord.RespondEmbed(r, i, embed)
}
