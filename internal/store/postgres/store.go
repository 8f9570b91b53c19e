// Package postgres stores game snapshots as JSONB rows guarded by a version column.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"stratsim/internal/game"
)

const schema = `
CREATE TABLE IF NOT EXISTS stratsim_games (
	id          TEXT PRIMARY KEY,
	version     BIGINT NOT NULL,
	phase       TEXT NOT NULL,
	round       INTEGER NOT NULL,
	snapshot    JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS stratsim_games_phase_idx ON stratsim_games (phase);
`

type Store struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *Store) Create(ctx context.Context, g *game.Game) error {
	data, err := game.EncodeGame(g)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO stratsim_games (id, version, phase, round, snapshot)
		VALUES ($1, $2, $3, $4, $5)
	`, g.ID, g.Version, string(g.Phase), g.Round, data)
	if isUniqueViolation(err) {
		return fmt.Errorf("create game %s: %w", g.ID, game.ErrGameExists)
	}
	if err != nil {
		return fmt.Errorf("create game %s: %w", g.ID, err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, id string) (*game.Game, error) {
	var data []byte
	err := s.db.QueryRow(ctx, `SELECT snapshot FROM stratsim_games WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
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

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		g.Version = expected
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE stratsim_games
		SET snapshot = $1, version = $2, phase = $3, round = $4, updated_at = now()
		WHERE id = $5 AND version = $6
	`, data, g.Version, string(g.Phase), g.Round, g.ID, expected)
	if err != nil {
		g.Version = expected
		return fmt.Errorf("save game %s: %w", g.ID, err)
	}
	if tag.RowsAffected() == 0 {
		g.Version = expected
		var stored int64
		err := tx.QueryRow(ctx, `SELECT version FROM stratsim_games WHERE id = $1`, g.ID).Scan(&stored)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("save game %s: %w", g.ID, game.ErrGameNotFound)
		}
		if err != nil {
			return fmt.Errorf("save game %s: %w", g.ID, err)
		}
		return fmt.Errorf("save game %s at version %d, stored %d: %w", g.ID, expected, stored, game.ErrConflict)
	}
	if err := tx.Commit(ctx); err != nil {
		g.Version = expected
		return fmt.Errorf("save game %s: %w", g.ID, err)
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT id FROM stratsim_games ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	return ids, nil
}

// ListOpen returns games that still accept decisions, for the worker.
func (s *Store) ListOpen(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT id FROM stratsim_games WHERE phase <> $1 ORDER BY id`, string(game.PhaseFinished))
	if err != nil {
		return nil, fmt.Errorf("list open games: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list open games: %w", err)
	}
	return ids, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
