// Package postgres implements settings.Backend on PostgreSQL.
//
// It is the default backend: several bot processes that serve the same
// guilds share one database. The schema is managed by goose migrations
// embedded in the binary and applied by [New].
//
// Usage:
//
//	store, err := postgres.New(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
//	gs := settings.NewStore(store)
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/MrWong99/sumirevox/internal/settings"
	"github.com/MrWong99/sumirevox/internal/storage"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var _ settings.Backend = (*Store)(nil)

// Querier is the subset of [pgxpool.Pool] the store needs. It is satisfied by
// *pgxpool.Pool and by pgxmock pools in tests.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// Store is a PostgreSQL-backed settings.Backend. It is safe for concurrent
// use.
type Store struct {
	db      Querier
	pool    *pgxpool.Pool
	queries storage.Queries
}

// New connects to dsn, verifies the connection and applies all pending
// migrations.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	s := NewWithQuerier(pool)
	s.pool = pool
	return s, nil
}

// NewWithQuerier wraps an already prepared connection. The schema is
// expected to exist.
func NewWithQuerier(q Querier) *Store {
	return &Store{db: q, queries: storage.NewQueries(sq.Dollar)}
}

// Migrate applies the embedded goose migrations through pool.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, db, sub)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// Ping verifies the database is reachable. Used as a readiness check.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close releases the connection pool when the store owns one.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// LoadGuildSettings implements settings.Backend.
func (s *Store) LoadGuildSettings(ctx context.Context, guildID int64) ([]byte, error) {
	query, args, err := s.queries.SelectGuildSettings(guildID)
	if err != nil {
		return nil, fmt.Errorf("postgres store: build query: %w", err)
	}
	var doc []byte
	if err := s.db.QueryRow(ctx, query, args...).Scan(&doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, settings.ErrNotFound
		}
		return nil, fmt.Errorf("postgres store: load guild settings: %w", err)
	}
	return doc, nil
}

// SaveGuildSettings implements settings.Backend.
func (s *Store) SaveGuildSettings(ctx context.Context, guildID int64, doc []byte) error {
	query, args, err := s.queries.UpsertGuildSettings(guildID, string(doc))
	if err != nil {
		return fmt.Errorf("postgres store: build query: %w", err)
	}
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("postgres store: save guild settings: %w", err)
	}
	return nil
}

// LoadUserVoice implements settings.Backend.
func (s *Store) LoadUserVoice(ctx context.Context, userID int64) (settings.UserVoice, error) {
	query, args, err := s.queries.SelectUserVoice(userID)
	if err != nil {
		return settings.UserVoice{}, fmt.Errorf("postgres store: build query: %w", err)
	}
	var v settings.UserVoice
	if err := pgxscan.Get(ctx, s.db, &v, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return settings.UserVoice{}, settings.ErrNotFound
		}
		return settings.UserVoice{}, fmt.Errorf("postgres store: load user voice: %w", err)
	}
	return v, nil
}

// SaveUserVoice implements settings.Backend.
func (s *Store) SaveUserVoice(ctx context.Context, v settings.UserVoice) error {
	query, args, err := s.queries.UpsertUserVoice(v.UserID, v.Speaker, v.Speed, v.Pitch)
	if err != nil {
		return fmt.Errorf("postgres store: build query: %w", err)
	}
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("postgres store: save user voice: %w", err)
	}
	return nil
}

// ListGuildWords implements settings.Backend.
func (s *Store) ListGuildWords(ctx context.Context, guildID int64) ([]settings.GuildWord, error) {
	query, args, err := s.queries.SelectGuildWords(guildID)
	if err != nil {
		return nil, fmt.Errorf("postgres store: build query: %w", err)
	}
	words := []settings.GuildWord{}
	if err := pgxscan.Select(ctx, s.db, &words, query, args...); err != nil {
		return nil, fmt.Errorf("postgres store: list guild words: %w", err)
	}
	return words, nil
}

// SaveGuildWord implements settings.Backend.
func (s *Store) SaveGuildWord(ctx context.Context, w settings.GuildWord) error {
	query, args, err := s.queries.UpsertGuildWord(w.GuildID, w.Word, w.Reading)
	if err != nil {
		return fmt.Errorf("postgres store: build query: %w", err)
	}
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("postgres store: save guild word: %w", err)
	}
	return nil
}

// DeleteGuildWord implements settings.Backend.
func (s *Store) DeleteGuildWord(ctx context.Context, guildID int64, word string) (bool, error) {
	query, args, err := s.queries.DeleteGuildWord(guildID, word)
	if err != nil {
		return false, fmt.Errorf("postgres store: build query: %w", err)
	}
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("postgres store: delete guild word: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
