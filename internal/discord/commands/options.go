// Package commands implements the SumireVox slash commands: /config for
// guild reading settings, /dict for guild word replacements and /voice for
// per-user voice settings.
package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/sumirevox/internal/discord"
	"github.com/MrWong99/sumirevox/internal/observe"
	"github.com/MrWong99/sumirevox/internal/settings"
)

const embedColor = 0x9B59B6

const noPermissionMessage = "❌ この操作にはサーバー管理権限が必要です。"

// subcommandOptions returns the options of the invoked subcommand.
func subcommandOptions(i *discordgo.InteractionCreate) []*discordgo.ApplicationCommandInteractionDataOption {
	data := i.ApplicationCommandData()
	if len(data.Options) > 0 && data.Options[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		return data.Options[0].Options
	}
	return nil
}

func findOption(i *discordgo.InteractionCreate, name string) *discordgo.ApplicationCommandInteractionDataOption {
	for _, opt := range subcommandOptions(i) {
		if opt.Name == name {
			return opt
		}
	}
	return nil
}

// subcommandStringOption returns the named string option, or "" when it was
// not supplied.
func subcommandStringOption(i *discordgo.InteractionCreate, name string) string {
	if opt := findOption(i, name); opt != nil {
		return opt.StringValue()
	}
	return ""
}

func subcommandIntOption(i *discordgo.InteractionCreate, name string) (int64, bool) {
	if opt := findOption(i, name); opt != nil {
		return opt.IntValue(), true
	}
	return 0, false
}

func subcommandFloatOption(i *discordgo.InteractionCreate, name string) (float64, bool) {
	if opt := findOption(i, name); opt != nil {
		return opt.FloatValue(), true
	}
	return 0, false
}

func subcommandBoolOption(i *discordgo.InteractionCreate, name string) (bool, bool) {
	if opt := findOption(i, name); opt != nil {
		return opt.BoolValue(), true
	}
	return false, false
}

// subcommandChannelOption returns the snowflake of a channel option.
func subcommandChannelOption(i *discordgo.InteractionCreate, name string) (int64, error) {
	opt := findOption(i, name)
	if opt == nil {
		return 0, fmt.Errorf("option %q missing", name)
	}
	raw, ok := opt.Value.(string)
	if !ok {
		return 0, fmt.Errorf("option %q is not a channel", name)
	}
	return strconv.ParseInt(raw, 10, 64)
}

// focusedOption returns the option the user is typing into during
// autocomplete.
func focusedOption(i *discordgo.InteractionCreate) *discordgo.ApplicationCommandInteractionDataOption {
	for _, opt := range subcommandOptions(i) {
		if opt.Focused {
			return opt
		}
	}
	return nil
}

func interactionGuildID(i *discordgo.InteractionCreate) (int64, bool) {
	id, err := strconv.ParseInt(i.GuildID, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func interactionUserID(i *discordgo.InteractionCreate) (int64, bool) {
	var raw string
	switch {
	case i.Member != nil && i.Member.User != nil:
		raw = i.Member.User.ID
	case i.User != nil:
		raw = i.User.ID
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func onOff(v bool) string {
	if v {
		return "有効"
	}
	return "無効"
}

// failureMessage turns a store error into the text shown to the user.
func failureMessage(err error) string {
	var verr *settings.ValidationError
	switch {
	case errors.As(err, &verr):
		return fmt.Sprintf("⚠️ 入力値が不正です（%s）：%s", verr.Field, verr.Reason)
	case errors.Is(err, settings.ErrInvalidInput):
		return "⚠️ 入力が不正です。"
	case errors.Is(err, context.DeadlineExceeded):
		return "⌛ 処理がタイムアウトしました。時間をおいて再度お試しください。"
	case errors.Is(err, settings.ErrPersistence):
		return "❌ 設定の保存に失敗しました。時間をおいて再度お試しください。"
	default:
		return "❌ エラーが発生しました。"
	}
}

// logFailure logs a failed command. Validation problems are the user's and
// log at debug level.
func logFailure(ctx context.Context, command string, err error) {
	log := observe.Logger(ctx)
	if errors.Is(err, settings.ErrValidation) || errors.Is(err, settings.ErrInvalidInput) {
		log.Debug("discord: command rejected", "command", command, "err", err)
		return
	}
	log.Error("discord: command failed", "command", command, "err", err)
}

// respondFailure logs err and answers the interaction with an ephemeral
// explanation.
func respondFailure(ctx context.Context, r discord.Responder, i *discordgo.InteractionCreate, command string, err error) {
	logFailure(ctx, command, err)
	discord.RespondEphemeral(r, i, failureMessage(err))
}
