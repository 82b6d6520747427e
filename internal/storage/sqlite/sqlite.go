// Package sqlite implements settings.Backend on an embedded SQLite database.
//
// It suits single-process deployments: a bot without a shared PostgreSQL
// server, local development and tests. The pure-Go modernc driver is used,
// so no cgo toolchain is needed.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/MrWong99/sumirevox/internal/settings"
	"github.com/MrWong99/sumirevox/internal/storage"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

//go:embed migrations/*.sql
var migrationsFS embed.FS

var _ settings.Backend = (*Store)(nil)

// Store is an SQLite-backed settings.Backend. It is safe for concurrent use.
type Store struct {
	db      *sql.DB
	queries storage.Queries
}

// Open opens (creating if needed) the database at path and applies all
// pending migrations. Use [MemoryPath] for a throwaway database.
func Open(ctx context.Context, path string) (*Store, error) {
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite store: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("sqlite store: open: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps an in-memory
	// database alive and shared.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite store: ping: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite store: migrate: %w", err)
	}
	return &Store{db: db, queries: storage.NewQueries(sq.Question)}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, sub)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// Ping verifies the database is usable. Used as a readiness check.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// LoadGuildSettings implements settings.Backend.
func (s *Store) LoadGuildSettings(ctx context.Context, guildID int64) ([]byte, error) {
	query, args, err := s.queries.SelectGuildSettings(guildID)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: build query: %w", err)
	}
	var doc []byte
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&doc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, settings.ErrNotFound
		}
		return nil, fmt.Errorf("sqlite store: load guild settings: %w", err)
	}
	return doc, nil
}

// SaveGuildSettings implements settings.Backend.
func (s *Store) SaveGuildSettings(ctx context.Context, guildID int64, doc []byte) error {
	query, args, err := s.queries.UpsertGuildSettings(guildID, string(doc))
	if err != nil {
		return fmt.Errorf("sqlite store: build query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("sqlite store: save guild settings: %w", err)
	}
	return nil
}

// LoadUserVoice implements settings.Backend.
func (s *Store) LoadUserVoice(ctx context.Context, userID int64) (settings.UserVoice, error) {
	query, args, err := s.queries.SelectUserVoice(userID)
	if err != nil {
		return settings.UserVoice{}, fmt.Errorf("sqlite store: build query: %w", err)
	}
	var v settings.UserVoice
	if err := sqlscan.Get(ctx, s.db, &v, query, args...); err != nil {
		if sqlscan.NotFound(err) {
			return settings.UserVoice{}, settings.ErrNotFound
		}
		return settings.UserVoice{}, fmt.Errorf("sqlite store: load user voice: %w", err)
	}
	return v, nil
}

// SaveUserVoice implements settings.Backend.
func (s *Store) SaveUserVoice(ctx context.Context, v settings.UserVoice) error {
	query, args, err := s.queries.UpsertUserVoice(v.UserID, v.Speaker, v.Speed, v.Pitch)
	if err != nil {
		return fmt.Errorf("sqlite store: build query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("sqlite store: save user voice: %w", err)
	}
	return nil
}

// ListGuildWords implements settings.Backend.
func (s *Store) ListGuildWords(ctx context.Context, guildID int64) ([]settings.GuildWord, error) {
	query, args, err := s.queries.SelectGuildWords(guildID)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: build query: %w", err)
	}
	words := []settings.GuildWord{}
	if err := sqlscan.Select(ctx, s.db, &words, query, args...); err != nil {
		return nil, fmt.Errorf("sqlite store: list guild words: %w", err)
	}
	return words, nil
}

// SaveGuildWord implements settings.Backend.
func (s *Store) SaveGuildWord(ctx context.Context, w settings.GuildWord) error {
	query, args, err := s.queries.UpsertGuildWord(w.GuildID, w.Word, w.Reading)
	if err != nil {
		return fmt.Errorf("sqlite store: build query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("sqlite store: save guild word: %w", err)
	}
	return nil
}

// DeleteGuildWord implements settings.Backend.
func (s *Store) DeleteGuildWord(ctx context.Context, guildID int64, word string) (bool, error) {
	query, args, err := s.queries.DeleteGuildWord(guildID, word)
	if err != nil {
		return false, fmt.Errorf("sqlite store: build query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("sqlite store: delete guild word: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite store: delete guild word: %w", err)
	}
	return n == 1, nil
}
