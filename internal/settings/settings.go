// Package settings stores per-guild reading settings, per-user voice settings
// and per-guild word replacements.
//
// Guild settings are one JSON document per guild. Several bot instances may
// serve the same guild and share the document; each instance owns only its
// own entry in [GuildSettings.AutoJoinConfig]. Writes are whole-document
// upserts after an in-memory merge. Keys this version does not model are
// written back unchanged. Concurrent read-merge-write cycles on
// the same guild can lose an update. [Store] does not lock; callers that need
// serialisation within a process use package keylock around the call.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strings"
)

// Bounds for [GuildSettings.MaxChars].
const (
	MinMaxChars = 10
	MaxMaxChars = 500
)

// Bounds for [UserVoice] parameters, matching what the VOICEVOX engine
// accepts for speedScale and pitchScale.
const (
	MinSpeed = 0.5
	MaxSpeed = 2.0
	MinPitch = -0.15
	MaxPitch = 0.15
)

var (
	// ErrNotFound is returned by a [Backend] when no row exists for a key.
	// [Store] translates it into defaults.
	ErrNotFound = errors.New("settings: not found")

	// ErrPersistence wraps every backend failure surfaced by [Store].
	ErrPersistence = errors.New("settings: persistence failure")

	// ErrValidation is matched by every [*ValidationError].
	ErrValidation = errors.New("settings: validation failed")

	// ErrInvalidInput is returned for caller-supplied identifiers or words
	// that are empty or zero. No I/O happens.
	ErrInvalidInput = errors.New("settings: invalid input")
)

// ValidationError describes a field whose value violates its constraint.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("settings: invalid %s=%v: %s", e.Field, e.Value, e.Reason)
}

// Is makes [errors.Is] match [ErrValidation].
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// AutoJoinPairing is the voice/text channel pair one bot instance joins
// automatically.
type AutoJoinPairing struct {
	VoiceChannelID int64 `json:"voice"`
	TextChannelID  int64 `json:"text"`
}

// GuildSettings is the per-guild settings document.
type GuildSettings struct {
	AutoJoin     bool `json:"auto_join"`
	MaxChars     int  `json:"max_chars"`
	ReadVCStatus bool `json:"read_vc_status"`
	ReadMention  bool `json:"read_mention"`
	AddSuffix    bool `json:"add_suffix"`

	ReadRomaji      bool `json:"read_romaji"`
	ReadAttachments bool `json:"read_attachments"`
	SkipCodeBlocks  bool `json:"skip_code_blocks"`
	SkipURLs        bool `json:"skip_urls"`

	// AutoJoinConfig maps a bot instance id to the channels that instance
	// joins. An instance only ever writes its own key.
	AutoJoinConfig map[string]AutoJoinPairing `json:"auto_join_config"`

	// Parts of the stored document this version does not model. They are
	// written back verbatim so other bot instances keep their data.
	extra           map[string]json.RawMessage
	pairingExtra    map[string]map[string]json.RawMessage
	foreignPairings map[string]json.RawMessage
}

// Defaults returns the settings of a guild that has never been configured.
func Defaults() GuildSettings {
	return GuildSettings{
		AutoJoin:        false,
		MaxChars:        50,
		ReadVCStatus:    false,
		ReadMention:     true,
		AddSuffix:       false,
		ReadRomaji:      false,
		ReadAttachments: true,
		SkipCodeBlocks:  true,
		SkipURLs:        true,
		AutoJoinConfig:  map[string]AutoJoinPairing{},
	}
}

// Clone returns a deep copy of s.
func (s GuildSettings) Clone() GuildSettings {
	out := s
	out.AutoJoinConfig = maps.Clone(s.AutoJoinConfig)
	if out.AutoJoinConfig == nil {
		out.AutoJoinConfig = map[string]AutoJoinPairing{}
	}
	out.extra = maps.Clone(s.extra)
	out.pairingExtra = maps.Clone(s.pairingExtra)
	out.foreignPairings = maps.Clone(s.foreignPairings)
	return out
}

// Validate returns a [*ValidationError] for the first constraint s violates.
// Channel ids of pairings are not checked here; other instances own them.
func (s GuildSettings) Validate() error {
	if s.MaxChars < MinMaxChars || s.MaxChars > MaxMaxChars {
		return &ValidationError{
			Field:  "max_chars",
			Value:  s.MaxChars,
			Reason: fmt.Sprintf("must be between %d and %d", MinMaxChars, MaxMaxChars),
		}
	}
	for id := range s.AutoJoinConfig {
		if strings.TrimSpace(id) == "" {
			return &ValidationError{Field: "auto_join_config", Value: id, Reason: "bot instance id must not be empty"}
		}
	}
	return nil
}

// UserVoice is a user's preferred VOICEVOX speaker and prosody.
type UserVoice struct {
	UserID  int64   `json:"user_id" db:"user_id"`
	Speaker int     `json:"speaker" db:"speaker"`
	Speed   float64 `json:"speed" db:"speed"`
	Pitch   float64 `json:"pitch" db:"pitch"`
}

// DefaultUserVoice returns the voice used for users without a stored row.
func DefaultUserVoice(userID int64) UserVoice {
	return UserVoice{UserID: userID, Speaker: 1, Speed: 1.0, Pitch: 0.0}
}

// Validate checks the speaker id and prosody ranges.
func (v UserVoice) Validate() error {
	switch {
	case v.Speaker < 0:
		return &ValidationError{Field: "speaker", Value: v.Speaker, Reason: "must not be negative"}
	case v.Speed < MinSpeed || v.Speed > MaxSpeed:
		return &ValidationError{Field: "speed", Value: v.Speed, Reason: fmt.Sprintf("must be between %.2f and %.2f", MinSpeed, MaxSpeed)}
	case v.Pitch < MinPitch || v.Pitch > MaxPitch:
		return &ValidationError{Field: "pitch", Value: v.Pitch, Reason: fmt.Sprintf("must be between %.2f and %.2f", MinPitch, MaxPitch)}
	}
	return nil
}

// GuildWord is a guild-local text replacement applied before synthesis.
type GuildWord struct {
	GuildID int64  `json:"guild_id" db:"guild_id"`
	Word    string `json:"word" db:"word"`
	Reading string `json:"reading" db:"reading"`
}
