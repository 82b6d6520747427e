package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/sumirevox/internal/observe"
)

// Backend is the relational storage behind a [Store]. Implementations return
// [ErrNotFound] when a point lookup finds no row; any other error is treated
// as a persistence fault.
//
// All methods must be safe for concurrent use.
type Backend interface {
	// LoadGuildSettings returns the raw JSON document stored for guildID.
	LoadGuildSettings(ctx context.Context, guildID int64) ([]byte, error)

	// SaveGuildSettings inserts or replaces the whole document for guildID.
	SaveGuildSettings(ctx context.Context, guildID int64, doc []byte) error

	// LoadUserVoice returns the stored voice of userID.
	LoadUserVoice(ctx context.Context, userID int64) (UserVoice, error)

	// SaveUserVoice inserts or replaces the voice keyed by v.UserID.
	SaveUserVoice(ctx context.Context, v UserVoice) error

	// ListGuildWords returns every word of guildID ordered by word.
	ListGuildWords(ctx context.Context, guildID int64) ([]GuildWord, error)

	// SaveGuildWord inserts or replaces the reading for (w.GuildID, w.Word).
	SaveGuildWord(ctx context.Context, w GuildWord) error

	// DeleteGuildWord removes one word and reports whether a row existed.
	DeleteGuildWord(ctx context.Context, guildID int64, word string) (bool, error)
}

// Option is a functional option for configuring a [Store].
type Option func(*Store)

// WithMetrics overrides the metrics instance. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// Store reads and writes settings through a [Backend].
type Store struct {
	backend Backend
	metrics *observe.Metrics
}

// NewStore creates a Store on top of backend.
func NewStore(backend Backend, opts ...Option) *Store {
	s := &Store{backend: backend}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Get returns the settings of guildID. A guild without a stored document gets
// [Defaults]. A stored document that is not a JSON object is logged and
// replaced by [Defaults] in the returned value. A single stored field that
// cannot be used is logged and keeps its default; the rest of the document is
// honoured. The row itself is left untouched until the next write.
func (s *Store) Get(ctx context.Context, guildID int64) (_ GuildSettings, err error) {
	defer func() { s.metrics.RecordSettingsOp(ctx, "get", err) }()

	doc, err := s.backend.LoadGuildSettings(ctx, guildID)
	if errors.Is(err, ErrNotFound) {
		return Defaults(), nil
	}
	if err != nil {
		return GuildSettings{}, fmt.Errorf("%w: load guild %d: %w", ErrPersistence, guildID, err)
	}
	return s.decode(ctx, guildID, doc), nil
}

func (s *Store) decode(ctx context.Context, guildID int64, doc []byte) GuildSettings {
	gs, faults, err := parseDocument(doc)
	if err != nil {
		s.recovered(ctx, guildID, "document", err)
		return Defaults()
	}
	for _, f := range faults {
		s.recovered(ctx, guildID, f.field, f.err)
	}
	return gs
}

func (s *Store) recovered(ctx context.Context, guildID int64, field string, err error) {
	s.metrics.SettingsRecovered.Add(ctx, 1)
	observe.Logger(ctx).Warn("stored guild setting ignored",
		"guild_id", guildID,
		"field", field,
		"err", err,
	)
}

// Set validates gs and stores it as the whole document of guildID.
// Nothing is written when validation fails.
func (s *Store) Set(ctx context.Context, guildID int64, gs GuildSettings) (err error) {
	defer func() { s.metrics.RecordSettingsOp(ctx, "set", err) }()

	if guildID == 0 {
		return fmt.Errorf("%w: guild id must not be zero", ErrInvalidInput)
	}
	if gs.AutoJoinConfig == nil {
		gs.AutoJoinConfig = map[string]AutoJoinPairing{}
	}
	if err := gs.Validate(); err != nil {
		return err
	}
	doc, err := gs.document()
	if err != nil {
		return fmt.Errorf("settings: encode guild %d: %w", guildID, err)
	}
	if err := s.backend.SaveGuildSettings(ctx, guildID, doc); err != nil {
		return fmt.Errorf("%w: save guild %d: %w", ErrPersistence, guildID, err)
	}
	observe.Logger(ctx).Debug("guild settings saved", "guild_id", guildID)
	return nil
}

// Update applies fn to the current settings of guildID and stores the
// result. It is a plain read-modify-write without locking.
func (s *Store) Update(ctx context.Context, guildID int64, fn func(*GuildSettings)) (GuildSettings, error) {
	gs, err := s.Get(ctx, guildID)
	if err != nil {
		return GuildSettings{}, err
	}
	gs = gs.Clone()
	fn(&gs)
	if err := s.Set(ctx, guildID, gs); err != nil {
		return GuildSettings{}, err
	}
	return gs, nil
}

// SetAutoJoinPairing records the channels botInstanceID joins in guildID and
// enables auto-join. Entries of other bot instances are preserved as read.
func (s *Store) SetAutoJoinPairing(ctx context.Context, guildID int64, botInstanceID string, voiceChannelID, textChannelID int64) error {
	botInstanceID = strings.TrimSpace(botInstanceID)
	if botInstanceID == "" {
		return fmt.Errorf("%w: bot instance id must not be empty", ErrInvalidInput)
	}
	if voiceChannelID <= 0 || textChannelID <= 0 {
		return fmt.Errorf("%w: channel ids must be positive", ErrInvalidInput)
	}

	_, err := s.Update(ctx, guildID, func(gs *GuildSettings) {
		delete(gs.foreignPairings, botInstanceID)
		gs.AutoJoinConfig[botInstanceID] = AutoJoinPairing{
			VoiceChannelID: voiceChannelID,
			TextChannelID:  textChannelID,
		}
		gs.AutoJoin = true
	})
	if err != nil {
		return err
	}
	observe.Logger(ctx).Info("auto-join pairing set",
		"guild_id", guildID,
		"bot_instance", botInstanceID,
		"voice_channel", voiceChannelID,
		"text_channel", textChannelID,
	)
	return nil
}

// ClearAutoJoinPairing removes the pairing of botInstanceID in guildID. The
// auto_join flag and other instances' pairings are left as they are.
// Clearing a missing pairing is not an error and performs no write.
func (s *Store) ClearAutoJoinPairing(ctx context.Context, guildID int64, botInstanceID string) error {
	botInstanceID = strings.TrimSpace(botInstanceID)
	if botInstanceID == "" {
		return fmt.Errorf("%w: bot instance id must not be empty", ErrInvalidInput)
	}

	gs, err := s.Get(ctx, guildID)
	if err != nil {
		return err
	}
	gs = gs.Clone()
	if !gs.dropPairing(botInstanceID) {
		return nil
	}
	return s.Set(ctx, guildID, gs)
}

// UserVoice returns the voice settings of userID, or the defaults when none
// are stored.
func (s *Store) UserVoice(ctx context.Context, userID int64) (_ UserVoice, err error) {
	defer func() { s.metrics.RecordSettingsOp(ctx, "get_user_voice", err) }()

	v, err := s.backend.LoadUserVoice(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return DefaultUserVoice(userID), nil
	}
	if err != nil {
		return UserVoice{}, fmt.Errorf("%w: load user %d: %w", ErrPersistence, userID, err)
	}
	return v, nil
}

// SetUserVoice validates and stores v.
func (s *Store) SetUserVoice(ctx context.Context, v UserVoice) (err error) {
	defer func() { s.metrics.RecordSettingsOp(ctx, "set_user_voice", err) }()

	if v.UserID == 0 {
		return fmt.Errorf("%w: user id must not be zero", ErrInvalidInput)
	}
	if err := v.Validate(); err != nil {
		return err
	}
	if err := s.backend.SaveUserVoice(ctx, v); err != nil {
		return fmt.Errorf("%w: save user %d: %w", ErrPersistence, v.UserID, err)
	}
	return nil
}

// GuildWords returns the word replacements of guildID ordered by word.
func (s *Store) GuildWords(ctx context.Context, guildID int64) (_ []GuildWord, err error) {
	defer func() { s.metrics.RecordSettingsOp(ctx, "list_words", err) }()

	words, err := s.backend.ListGuildWords(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("%w: list words of guild %d: %w", ErrPersistence, guildID, err)
	}
	return words, nil
}

// SetGuildWord inserts or replaces the reading of word in guildID.
func (s *Store) SetGuildWord(ctx context.Context, guildID int64, word, reading string) (_ GuildWord, err error) {
	defer func() { s.metrics.RecordSettingsOp(ctx, "set_word", err) }()

	w := GuildWord{
		GuildID: guildID,
		Word:    strings.TrimSpace(word),
		Reading: strings.TrimSpace(reading),
	}
	if w.GuildID == 0 || w.Word == "" || w.Reading == "" {
		return GuildWord{}, fmt.Errorf("%w: guild, word and reading are required", ErrInvalidInput)
	}
	if err := s.backend.SaveGuildWord(ctx, w); err != nil {
		return GuildWord{}, fmt.Errorf("%w: save word of guild %d: %w", ErrPersistence, guildID, err)
	}
	return w, nil
}

// RemoveGuildWord deletes word from guildID and reports whether it existed.
func (s *Store) RemoveGuildWord(ctx context.Context, guildID int64, word string) (_ bool, err error) {
	defer func() { s.metrics.RecordSettingsOp(ctx, "remove_word", err) }()

	word = strings.TrimSpace(word)
	if guildID == 0 || word == "" {
		return false, fmt.Errorf("%w: guild and word are required", ErrInvalidInput)
	}
	ok, err := s.backend.DeleteGuildWord(ctx, guildID, word)
	if err != nil {
		return false, fmt.Errorf("%w: delete word of guild %d: %w", ErrPersistence, guildID, err)
	}
	return ok, nil
}
