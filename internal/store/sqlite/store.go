// Package sqlite keeps game snapshots in a single-file SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"stratsim/internal/game"
)

const schema = `
CREATE TABLE IF NOT EXISTS games (
	id         TEXT PRIMARY KEY,
	version    INTEGER NOT NULL,
	phase      TEXT NOT NULL,
	round      INTEGER NOT NULL,
	snapshot   BLOB NOT NULL,
	updated_at INTEGER NOT NULL
);
`

type Store struct {
	sqlDB *sql.DB
}

// Open opens or creates the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.ExecContext(ctx, schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) Create(ctx context.Context, g *game.Game) error {
	data, err := game.EncodeGame(g)
	if err != nil {
		return err
	}
	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO games (id, version, phase, round, snapshot, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
`, g.ID, g.Version, string(g.Phase), g.Round, data, time.Now().UTC().UnixMilli())
	if isDuplicate(err) {
		return fmt.Errorf("create game %s: %w", g.ID, game.ErrGameExists)
	}
	if err != nil {
		return fmt.Errorf("create game %s: %w", g.ID, err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, id string) (*game.Game, error) {
	var data []byte
	err := s.sqlDB.QueryRowContext(ctx, `SELECT snapshot FROM games WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load game %s: %w", id, game.ErrGameNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load game %s: %w", id, err)
	}
	return game.DecodeGame(data)
}

func (s *Store) Save(ctx context.Context, g *game.Game) error {
	expected := g.Version
	g.Version++
	data, err := game.EncodeGame(g)
	if err != nil {
		g.Version = expected
		return err
	}
	res, err := s.sqlDB.ExecContext(ctx, `
UPDATE games SET snapshot = ?, version = ?, phase = ?, round = ?, updated_at = ?
WHERE id = ? AND version = ?
`, data, g.Version, string(g.Phase), g.Round, time.Now().UTC().UnixMilli(), g.ID, expected)
	if err != nil {
		g.Version = expected
		return fmt.Errorf("save game %s: %w", g.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		g.Version = expected
		return fmt.Errorf("save game %s: %w", g.ID, err)
	}
	if n == 1 {
		return nil
	}

	g.Version = expected
	var stored int64
	err = s.sqlDB.QueryRowContext(ctx, `SELECT version FROM games WHERE id = ?`, g.ID).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("save game %s: %w", g.ID, game.ErrGameNotFound)
	}
	if err != nil {
		return fmt.Errorf("save game %s: %w", g.ID, err)
	}
	return fmt.Errorf("save game %s at version %d, stored %d: %w", g.ID, expected, stored, game.ErrConflict)
}

func (s *Store) List(ctx context.Context) ([]string, error) {
	return s.ids(ctx, `SELECT id FROM games ORDER BY id`)
}

func (s *Store) ListOpen(ctx context.Context) ([]string, error) {
	return s.ids(ctx, `SELECT id FROM games WHERE phase <> ? ORDER BY id`, string(game.PhaseFinished))
}

func (s *Store) ids(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan game id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate games: %w", err)
	}
	return ids, nil
}

func isDuplicate(err error) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
		return true
	}
	return false
}

var _ game.Store = (*Store)(nil)
