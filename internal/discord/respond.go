package discord

import (
	"log/slog"

	"github.com/bwmarrin/discordgo"
)

// Responder is the part of [discordgo.Session] used to answer interactions.
// Tests substitute mock.InteractionResponder.
type Responder interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

var _ Responder = (*discordgo.Session)(nil)

// RespondEphemeral sends an ephemeral text response to an interaction.
func RespondEphemeral(r Responder, i *discordgo.InteractionCreate, content string) {
	err := r.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		slog.Warn("discord: failed to send ephemeral response", "err", err)
	}
}

// RespondEmbed sends an ephemeral embed response to an interaction.
func RespondEmbed(r Responder, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) {
	err := r.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
			Flags:  discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		slog.Warn("discord: failed to send embed response", "err", err)
	}
}

// RespondChoices answers an autocomplete interaction.
func RespondChoices(r Responder, i *discordgo.InteractionCreate, choices []*discordgo.ApplicationCommandOptionChoice) {
	err := r.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{Choices: choices},
	})
	if err != nil {
		slog.Warn("discord: failed to send autocomplete choices", "err", err)
	}
}

// DeferReply acknowledges an interaction whose answer takes longer than the
// three seconds Discord allows. Answer with [FollowUp] or [FollowUpEmbed].
func DeferReply(r Responder, i *discordgo.InteractionCreate) {
	err := r.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Flags: discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		slog.Warn("discord: failed to defer reply", "err", err)
	}
}

// FollowUp sends a follow-up message after a deferred response.
func FollowUp(r Responder, i *discordgo.InteractionCreate, content string) {
	_, err := r.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
		Content: content,
		Flags:   discordgo.MessageFlagsEphemeral,
	})
	if err != nil {
		slog.Warn("discord: failed to send follow-up", "err", err)
	}
}

// FollowUpEmbed sends an embed follow-up message after a deferred response.
func FollowUpEmbed(r Responder, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) {
	_, err := r.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
		Embeds: []*discordgo.MessageEmbed{embed},
		Flags:  discordgo.MessageFlagsEphemeral,
	})
	if err != nil {
		slog.Warn("discord: failed to send embed follow-up", "err", err)
	}
}
