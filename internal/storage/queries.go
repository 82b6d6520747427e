// Package storage holds the SQL shared by the relational settings backends.
//
// Both backends use the same three tables:
//
//	guild_settings (guild_id PK, settings JSON document, updated_at)
//	user_settings  (user_id PK, speaker, speed, pitch)
//	guild_dict     (guild_id, word, reading; PK guild_id + word)
//
// Statements are built with squirrel and differ only in their placeholder
// format. Every write is a single-statement upsert keyed by the primary key.
package storage

import (
	sq "github.com/Masterminds/squirrel"
)

// Table names.
const (
	TableGuildSettings = "guild_settings"
	TableUserSettings  = "user_settings"
	TableGuildDict     = "guild_dict"
)

// Queries builds the statements of every backend operation.
type Queries struct {
	b sq.StatementBuilderType
}

// NewQueries returns a Queries using the given placeholder format
// ([sq.Dollar] for PostgreSQL, [sq.Question] for SQLite).
func NewQueries(ph sq.PlaceholderFormat) Queries {
	return Queries{b: sq.StatementBuilder.PlaceholderFormat(ph)}
}

// SelectGuildSettings reads the document of one guild.
func (q Queries) SelectGuildSettings(guildID int64) (string, []any, error) {
	return q.b.Select("settings").
		From(TableGuildSettings).
		Where(sq.Eq{"guild_id": guildID}).
		ToSql()
}

// UpsertGuildSettings replaces the whole document of one guild.
func (q Queries) UpsertGuildSettings(guildID int64, doc string) (string, []any, error) {
	return q.b.Insert(TableGuildSettings).
		Columns("guild_id", "settings").
		Values(guildID, doc).
		Suffix("ON CONFLICT (guild_id) DO UPDATE SET settings = EXCLUDED.settings, updated_at = CURRENT_TIMESTAMP").
		ToSql()
}

// SelectUserVoice reads the voice of one user.
func (q Queries) SelectUserVoice(userID int64) (string, []any, error) {
	return q.b.Select("user_id", "speaker", "speed", "pitch").
		From(TableUserSettings).
		Where(sq.Eq{"user_id": userID}).
		ToSql()
}

// UpsertUserVoice inserts or replaces the voice of one user.
func (q Queries) UpsertUserVoice(userID int64, speaker int, speed, pitch float64) (string, []any, error) {
	return q.b.Insert(TableUserSettings).
		Columns("user_id", "speaker", "speed", "pitch").
		Values(userID, speaker, speed, pitch).
		Suffix("ON CONFLICT (user_id) DO UPDATE SET speaker = EXCLUDED.speaker, speed = EXCLUDED.speed, pitch = EXCLUDED.pitch").
		ToSql()
}

// SelectGuildWords lists the words of one guild ordered by word.
func (q Queries) SelectGuildWords(guildID int64) (string, []any, error) {
	return q.b.Select("guild_id", "word", "reading").
		From(TableGuildDict).
		Where(sq.Eq{"guild_id": guildID}).
		OrderBy("word ASC").
		ToSql()
}

// UpsertGuildWord inserts or replaces the reading of one word.
func (q Queries) UpsertGuildWord(guildID int64, word, reading string) (string, []any, error) {
	return q.b.Insert(TableGuildDict).
		Columns("guild_id", "word", "reading").
		Values(guildID, word, reading).
		Suffix("ON CONFLICT (guild_id, word) DO UPDATE SET reading = EXCLUDED.reading").
		ToSql()
}

// DeleteGuildWord removes one word.
func (q Queries) DeleteGuildWord(guildID int64, word string) (string, []any, error) {
	return q.b.Delete(TableGuildDict).
		Where(sq.Eq{"guild_id": guildID, "word": word}).
		ToSql()
}
