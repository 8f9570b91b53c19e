package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"stratsim/internal/game"
)

// Store keeps each game in a hash with "version" and "snapshot" fields and
// tracks ids in a set, with unfinished games also in an open set. Writes run
// inside WATCH transactions.
type Store struct {
	c *Client
}

func NewStore(c *Client) *Store {
	return &Store{c: c}
}

func (s *Store) gameKey(id string) string { return s.c.key("game", id) }

func (s *Store) indexKey() string { return s.c.key("games") }

func (s *Store) openKey() string { return s.c.key("games", "open") }

// trackOpen queues the open-set update matching g's phase.
func (s *Store) trackOpen(ctx context.Context, p redis.Pipeliner, g *game.Game) {
	if g.Finished() {
		p.SRem(ctx, s.openKey(), g.ID)
		return
	}
	p.SAdd(ctx, s.openKey(), g.ID)
}

func (s *Store) Create(ctx context.Context, g *game.Game) error {
	data, err := game.EncodeGame(g)
	if err != nil {
		return err
	}
	key := s.gameKey(g.ID)
	err = s.c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return game.ErrGameExists
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, key, "version", g.Version, "snapshot", data)
			p.SAdd(ctx, s.indexKey(), g.ID)
			s.trackOpen(ctx, p, g)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, game.ErrGameExists) || errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("create game %s: %w", g.ID, game.ErrGameExists)
	}
	if err != nil {
		return fmt.Errorf("create game %s: %w", g.ID, err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, id string) (*game.Game, error) {
	data, err := s.c.rdb.HGet(ctx, s.gameKey(id), "snapshot").Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("load game %s: %w", id, game.ErrGameNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load game %s: %w", id, err)
	}
	return game.DecodeGame(data)
}

func (s *Store) Save(ctx context.Context, g *game.Game) error {
	expected := g.Version
	key := s.gameKey(g.ID)
	err := s.c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		stored, err := tx.HGet(ctx, key, "version").Int64()
		if errors.Is(err, redis.Nil) {
			return game.ErrGameNotFound
		}
		if err != nil {
			return err
		}
		if stored != expected {
			return fmt.Errorf("save game %s at version %d, stored %d: %w", g.ID, expected, stored, game.ErrConflict)
		}
		g.Version = expected + 1
		data, err := game.EncodeGame(g)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, key, "version", g.Version, "snapshot", data)
			s.trackOpen(ctx, p, g)
			return nil
		})
		return err
	}, key)
	if err == nil {
		return nil
	}
	g.Version = expected
	switch {
	case errors.Is(err, game.ErrGameNotFound):
		return fmt.Errorf("save game %s: %w", g.ID, game.ErrGameNotFound)
	case errors.Is(err, game.ErrConflict):
		return err
	case errors.Is(err, redis.TxFailedErr):
		return fmt.Errorf("save game %s: concurrent write: %w", g.ID, game.ErrConflict)
	}
	return fmt.Errorf("save game %s: %w", g.ID, err)
}

func (s *Store) List(ctx context.Context) ([]string, error) {
	return s.members(ctx, s.indexKey())
}

// ListOpen returns the ids of games that are not finished.
func (s *Store) ListOpen(ctx context.Context) ([]string, error) {
	return s.members(ctx, s.openKey())
}

func (s *Store) members(ctx context.Context, key string) ([]string, error) {
	ids, err := s.c.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

var (
	_ game.Store      = (*Store)(nil)
	_ game.OpenLister = (*Store)(nil)
)
