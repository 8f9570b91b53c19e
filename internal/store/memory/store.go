// Package memory keeps encoded game snapshots in process memory.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"stratsim/internal/game"
)

type Store struct {
	mu    sync.RWMutex
	games map[string]record
}

type record struct {
	version  int64
	finished bool
	data     []byte
}

func New() *Store {
	return &Store{games: map[string]record{}}
}

func (s *Store) Create(_ context.Context, g *game.Game) error {
	data, err := game.EncodeGame(g)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.games[g.ID]; ok {
		return fmt.Errorf("create game %s: %w", g.ID, game.ErrGameExists)
	}
	s.games[g.ID] = record{version: g.Version, finished: g.Finished(), data: data}
	return nil
}

func (s *Store) Load(_ context.Context, id string) (*game.Game, error) {
	s.mu.RLock()
	rec, ok := s.games[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("load game %s: %w", id, game.ErrGameNotFound)
	}
	return game.DecodeGame(rec.data)
}

func (s *Store) Save(_ context.Context, g *game.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.games[g.ID]
	if !ok {
		return fmt.Errorf("save game %s: %w", g.ID, game.ErrGameNotFound)
	}
	if rec.version != g.Version {
		return fmt.Errorf("save game %s at version %d, stored %d: %w", g.ID, g.Version, rec.version, game.ErrConflict)
	}
	g.Version++
	data, err := game.EncodeGame(g)
	if err != nil {
		g.Version--
		return err
	}
	s.games[g.ID] = record{version: g.Version, finished: g.Finished(), data: data}
	return nil
}

func (s *Store) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.games))
	for id := range s.games {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) ListOpen(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, rec := range s.games {
		if !rec.finished {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

var _ game.Store = (*Store)(nil)
