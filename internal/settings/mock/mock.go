// Package mock provides an in-memory test double for the settings.Backend
// interface.
//
// Guild documents are kept as raw bytes so tests can seed malformed JSON
// with SetRawGuildSettings. Errors can be injected per operation.
package mock

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/sumirevox/internal/settings"
)

var _ settings.Backend = (*Backend)(nil)

type wordKey struct {
	guildID int64
	word    string
}

// Backend is a mock implementation of settings.Backend.
type Backend struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// LoadErr, if non-nil, is returned by every Load and List method.
	LoadErr error

	// SaveErr, if non-nil, is returned by every Save and Delete method and
	// nothing is stored.
	SaveErr error

	// --- Call records ---

	// GuildSaves records every guild id passed to SaveGuildSettings in order.
	GuildSaves []int64

	guilds map[int64][]byte
	voices map[int64]settings.UserVoice
	words  map[wordKey]string
}

// New returns an empty Backend.
func New() *Backend {
	return &Backend{
		guilds: map[int64][]byte{},
		voices: map[int64]settings.UserVoice{},
		words:  map[wordKey]string{},
	}
}

// SetRawGuildSettings stores doc verbatim for guildID.
func (b *Backend) SetRawGuildSettings(guildID int64, doc []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.guilds[guildID] = slices.Clone(doc)
}

// RawGuildSettings returns the stored document of guildID.
func (b *Backend) RawGuildSettings(guildID int64) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	doc, ok := b.guilds[guildID]
	return slices.Clone(doc), ok
}

// LoadGuildSettings implements settings.Backend.
func (b *Backend) LoadGuildSettings(_ context.Context, guildID int64) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.LoadErr != nil {
		return nil, b.LoadErr
	}
	doc, ok := b.guilds[guildID]
	if !ok {
		return nil, settings.ErrNotFound
	}
	return slices.Clone(doc), nil
}

// SaveGuildSettings implements settings.Backend.
func (b *Backend) SaveGuildSettings(_ context.Context, guildID int64, doc []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.GuildSaves = append(b.GuildSaves, guildID)
	if b.SaveErr != nil {
		return b.SaveErr
	}
	b.guilds[guildID] = slices.Clone(doc)
	return nil
}

// LoadUserVoice implements settings.Backend.
func (b *Backend) LoadUserVoice(_ context.Context, userID int64) (settings.UserVoice, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.LoadErr != nil {
		return settings.UserVoice{}, b.LoadErr
	}
	v, ok := b.voices[userID]
	if !ok {
		return settings.UserVoice{}, settings.ErrNotFound
	}
	return v, nil
}

// SaveUserVoice implements settings.Backend.
func (b *Backend) SaveUserVoice(_ context.Context, v settings.UserVoice) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.SaveErr != nil {
		return b.SaveErr
	}
	b.voices[v.UserID] = v
	return nil
}

// ListGuildWords implements settings.Backend.
func (b *Backend) ListGuildWords(_ context.Context, guildID int64) ([]settings.GuildWord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.LoadErr != nil {
		return nil, b.LoadErr
	}
	out := []settings.GuildWord{}
	for k, reading := range b.words {
		if k.guildID == guildID {
			out = append(out, settings.GuildWord{GuildID: guildID, Word: k.word, Reading: reading})
		}
	}
	slices.SortFunc(out, func(a, b settings.GuildWord) int { return cmp.Compare(a.Word, b.Word) })
	return out, nil
}

// SaveGuildWord implements settings.Backend.
func (b *Backend) SaveGuildWord(_ context.Context, w settings.GuildWord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.SaveErr != nil {
		return b.SaveErr
	}
	b.words[wordKey{w.GuildID, w.Word}] = w.Reading
	return nil
}

// DeleteGuildWord implements settings.Backend.
func (b *Backend) DeleteGuildWord(_ context.Context, guildID int64, word string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.SaveErr != nil {
		return false, b.SaveErr
	}
	k := wordKey{guildID, word}
	if _, ok := b.words[k]; !ok {
		return false, nil
	}
	delete(b.words, k)
	return true, nil
}
