// Package storetest holds the behaviour every game.Store implementation must share.
package storetest

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"stratsim/internal/game"
)

// NewGame returns a fresh two-team game with the given id.
func NewGame(id string) *game.Game {
	t := game.DefaultTuning()
	opened := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	g := &game.Game{
		ID:            id,
		Participants:  []string{"a", "b"},
		Round:         1,
		TotalRounds:   3,
		Phase:         game.PhaseAwaitingDecisions,
		Seed:          11,
		Companies:     map[string]*game.Company{},
		Market:        game.DefaultMarket(),
		Pending:       map[string]game.Decision{},
		UsedEvents:    map[string]int{},
		CreatedAt:     opened,
		RoundOpenedAt: opened,
	}
	for _, id := range g.Participants {
		g.Companies[id] = game.NewCompany(id, "Company "+id, t)
	}
	return g
}

// Run exercises create, load, save and list against a store built by open.
// Each subtest gets its own store.
func Run(t *testing.T, open func(t *testing.T) game.Store) {
	ctx := context.Background()

	t.Run("create and load", func(t *testing.T) {
		s := open(t)
		g := NewGame("g-1")
		if err := s.Create(ctx, g); err != nil {
			t.Fatalf("create: %v", err)
		}
		got, err := s.Load(ctx, "g-1")
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		want, _ := game.EncodeGame(g)
		have, _ := game.EncodeGame(got)
		if !bytes.Equal(want, have) {
			t.Fatalf("loaded snapshot differs from created one")
		}
		if err := s.Create(ctx, NewGame("g-1")); !errors.Is(err, game.ErrGameExists) {
			t.Fatalf("duplicate create: got %v", err)
		}
	})

	t.Run("missing game", func(t *testing.T) {
		s := open(t)
		if _, err := s.Load(ctx, "nope"); !errors.Is(err, game.ErrGameNotFound) {
			t.Fatalf("load missing: got %v", err)
		}
		if err := s.Save(ctx, NewGame("nope")); !errors.Is(err, game.ErrGameNotFound) {
			t.Fatalf("save missing: got %v", err)
		}
	})

	t.Run("save bumps version", func(t *testing.T) {
		s := open(t)
		if err := s.Create(ctx, NewGame("g-2")); err != nil {
			t.Fatalf("create: %v", err)
		}
		g, err := s.Load(ctx, "g-2")
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		g.Pending["a"] = game.Decision{RD: game.RDPlan{Budget: 5}}
		if err := s.Save(ctx, g); err != nil {
			t.Fatalf("save: %v", err)
		}
		if g.Version != 1 {
			t.Fatalf("version=%d want 1", g.Version)
		}
		back, err := s.Load(ctx, "g-2")
		if err != nil {
			t.Fatalf("reload: %v", err)
		}
		if back.Version != 1 || !reflect.DeepEqual(back.Pending, g.Pending) {
			t.Fatalf("saved state not visible: version=%d pending=%v", back.Version, back.Pending)
		}
	})

	t.Run("stale save conflicts", func(t *testing.T) {
		s := open(t)
		if err := s.Create(ctx, NewGame("g-3")); err != nil {
			t.Fatalf("create: %v", err)
		}
		first, _ := s.Load(ctx, "g-3")
		second, _ := s.Load(ctx, "g-3")
		if err := s.Save(ctx, first); err != nil {
			t.Fatalf("first save: %v", err)
		}
		second.Pending["b"] = game.Decision{}
		if err := s.Save(ctx, second); !errors.Is(err, game.ErrConflict) {
			t.Fatalf("stale save: got %v", err)
		}
		if second.Version != 0 {
			t.Fatalf("failed save changed version to %d", second.Version)
		}
		back, _ := s.Load(ctx, "g-3")
		if len(back.Pending) != 0 {
			t.Fatalf("stale write leaked: %v", back.Pending)
		}
	})

	t.Run("list", func(t *testing.T) {
		s := open(t)
		for _, id := range []string{"c", "a", "b"} {
			if err := s.Create(ctx, NewGame(id)); err != nil {
				t.Fatalf("create %s: %v", id, err)
			}
		}
		ids, err := s.List(ctx)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if !reflect.DeepEqual(ids, []string{"a", "b", "c"}) {
			t.Fatalf("ids=%v", ids)
		}
	})

	t.Run("load returns private copy", func(t *testing.T) {
		s := open(t)
		if err := s.Create(ctx, NewGame("g-4")); err != nil {
			t.Fatalf("create: %v", err)
		}
		g, _ := s.Load(ctx, "g-4")
		g.Companies["a"].Capital = -1
		again, _ := s.Load(ctx, "g-4")
		if again.Companies["a"].Capital == -1 {
			t.Fatalf("mutation of loaded game reached the store")
		}
	})
}
