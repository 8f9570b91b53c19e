package game_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"stratsim/internal/game"
	"stratsim/internal/store/memory"
)

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingHook struct {
	mu     sync.Mutex
	rounds []int
	err    error
}

func (h *recordingHook) OnRoundResolved(_ context.Context, _ *game.Game, r *game.RoundResult) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rounds = append(h.rounds, r.Round)
	return h.err
}

func newService(t *testing.T, opts ...game.Option) (*game.Service, *memory.Store, *fixedClock) {
	t.Helper()
	store := memory.New()
	clock := &fixedClock{now: time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)}
	opts = append([]game.Option{game.WithClock(clock.Now)}, opts...)
	svc, err := game.NewService(store, nil, opts...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, store, clock
}

func createGame(t *testing.T, svc *game.Service, teams, rounds int) *game.Game {
	t.Helper()
	seed := int64(2024)
	in := game.CreateGameInput{ID: "g1", TotalRounds: rounds, Seed: &seed}
	for i := 1; i <= teams; i++ {
		in.Teams = append(in.Teams, game.TeamInput{ID: fmt.Sprintf("t%d", i), Name: fmt.Sprintf("Team %d", i)})
	}
	g, err := svc.CreateGame(context.Background(), in)
	if err != nil {
		t.Fatalf("create game: %v", err)
	}
	return g
}

func TestCreateGameValidation(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	tests := []game.CreateGameInput{
		{TotalRounds: 5},
		{Teams: make([]game.TeamInput, game.MaxParticipants+1), TotalRounds: 5},
		{Teams: []game.TeamInput{{Name: "A"}}, TotalRounds: 0},
		{Teams: []game.TeamInput{{ID: "x"}, {ID: "x"}}, TotalRounds: 3},
	}
	for i, in := range tests {
		if _, err := svc.CreateGame(ctx, in); !errors.Is(err, game.ErrValidation) {
			t.Fatalf("case %d: got %v want validation error", i, err)
		}
	}

	g, err := svc.CreateGame(ctx, game.CreateGameInput{Teams: []game.TeamInput{{}, {}}, TotalRounds: 3})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if g.ID == "" || len(g.Participants) != 2 || g.Participants[0] != "team-1" || g.Companies["team-2"].Name != "Team 2" {
		t.Fatalf("defaults not applied: %+v", g.Participants)
	}
	if _, err := svc.CreateGame(ctx, game.CreateGameInput{ID: g.ID, Teams: []game.TeamInput{{}}, TotalRounds: 1}); !errors.Is(err, game.ErrGameExists) {
		t.Fatalf("duplicate id: got %v", err)
	}
}

func TestSubmitDecisionRules(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	createGame(t, svc, 2, 3)

	if err := svc.SubmitDecision(ctx, "g1", "t1", 2, game.Decision{}); !errors.Is(err, game.ErrValidation) {
		t.Fatalf("wrong round: got %v", err)
	}
	if err := svc.SubmitDecision(ctx, "g1", "nobody", 1, game.Decision{}); !errors.Is(err, game.ErrValidation) {
		t.Fatalf("unknown participant: got %v", err)
	}
	if err := svc.SubmitDecision(ctx, "missing", "t1", 1, game.Decision{}); !errors.Is(err, game.ErrGameNotFound) {
		t.Fatalf("unknown game: got %v", err)
	}
	if err := svc.SubmitRawDecision(ctx, "g1", "t1", 1, []byte(`{"r_d": {"budget": "lots"}}`)); !errors.Is(err, game.ErrValidation) {
		t.Fatalf("bad payload: got %v", err)
	}
	before, _ := svc.Snapshot(ctx, "g1")
	if err := svc.SubmitRawDecision(ctx, "g1", "t1", 1, []byte(`{"r_d": {"budget": 1000000, "focus": {"camera": 1}}}`)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := svc.SubmitDecision(ctx, "g1", "t1", 1, game.Decision{}); !errors.Is(err, game.ErrValidation) {
		t.Fatalf("duplicate: got %v", err)
	}
	after, _ := svc.Snapshot(ctx, "g1")
	if after.Version != before.Version+1 {
		t.Fatalf("version %d -> %d, want one save", before.Version, after.Version)
	}
	if after.Pending["t1"].RD.Budget != 1_000_000 {
		t.Fatalf("pending decision not stored: %+v", after.Pending)
	}
}

func TestAdvanceNotReadyThenForce(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	createGame(t, svc, 3, 4)

	if err := svc.SubmitDecision(ctx, "g1", "t1", 1, game.Decision{RD: game.RDPlan{Budget: 30_000_000}}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	for _, id := range []string{"t2", "t3"} {
		if err := svc.SubmitDecision(ctx, "g1", id, 1, game.Decision{}); err != nil {
			t.Fatalf("submit %s: %v", id, err)
		}
	}
	if _, err := svc.AdvanceRound(ctx, "g1", false); err != nil {
		t.Fatalf("advance round 1: %v", err)
	}

	if err := svc.SubmitDecision(ctx, "g1", "t2", 2, game.Decision{}); err != nil {
		t.Fatalf("submit round 2: %v", err)
	}
	_, err := svc.AdvanceRound(ctx, "g1", false)
	var notReady *game.NotReadyError
	if !errors.As(err, &notReady) || !errors.Is(err, game.ErrNotReady) {
		t.Fatalf("got %v want not ready", err)
	}
	if len(notReady.Missing) != 2 || notReady.Missing[0] != "t1" || notReady.Missing[1] != "t3" {
		t.Fatalf("missing=%v", notReady.Missing)
	}
	g, _ := svc.Snapshot(ctx, "g1")
	if g.Round != 2 || len(g.History) != 1 {
		t.Fatalf("not-ready advance changed the game: round=%d history=%d", g.Round, len(g.History))
	}

	result, err := svc.AdvanceRound(ctx, "g1", true)
	if err != nil {
		t.Fatalf("force advance: %v", err)
	}
	if len(result.CarriedFor) != 2 || result.CarriedFor[0] != "t1" {
		t.Fatalf("carried=%v", result.CarriedFor)
	}
	if got := result.Decisions["t1"].RD.Budget; got != 30_000_000 {
		t.Fatalf("t1 should replay its round 1 decision, r&d budget=%d", got)
	}
	g, _ = svc.Snapshot(ctx, "g1")
	if g.Round != 3 || len(g.Pending) != 0 {
		t.Fatalf("round=%d pending=%d", g.Round, len(g.Pending))
	}
}

func TestForceAdvanceWithoutHistoryHoldsPosition(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	created := createGame(t, svc, 2, 2)

	result, err := svc.AdvanceRound(ctx, "g1", true)
	if err != nil {
		t.Fatalf("force advance: %v", err)
	}
	d := result.Decisions["t1"]
	if d.RD.Budget != 0 || d.Capitalized() != 0 {
		t.Fatalf("no-change decision spent money: %+v", d)
	}
	if d.Products["mid_range"] != created.Companies["t1"].Products["mid_range"] {
		t.Fatalf("products changed: %+v", d.Products)
	}
}

func TestFinishedGameRejectsSubmissions(t *testing.T) {
	hook := &recordingHook{err: errors.New("webhook down")}
	svc, _, _ := newService(t, game.WithHooks(hook))
	ctx := context.Background()
	createGame(t, svc, 2, 1)

	result, err := svc.AdvanceRound(ctx, "g1", true)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if result.Round != 1 {
		t.Fatalf("result round=%d", result.Round)
	}
	g, _ := svc.Snapshot(ctx, "g1")
	if !g.Finished() || g.Phase != game.PhaseFinished {
		t.Fatalf("phase=%s want finished", g.Phase)
	}
	for _, round := range []int{1, 2} {
		if err := svc.SubmitDecision(ctx, "g1", "t1", round, game.Decision{}); !errors.Is(err, game.ErrValidation) {
			t.Fatalf("round %d after finish: got %v", round, err)
		}
	}
	if _, err := svc.AdvanceRound(ctx, "g1", true); !errors.Is(err, game.ErrFinished) {
		t.Fatalf("advance after finish: got %v", err)
	}
	if len(hook.rounds) != 1 || hook.rounds[0] != 1 {
		t.Fatalf("hook rounds=%v", hook.rounds)
	}
	ranks, err := svc.Rankings(ctx, "g1")
	if err != nil || len(ranks) != 2 {
		t.Fatalf("rankings after finish: %v %v", ranks, err)
	}
	if _, err := svc.Round(ctx, "g1", 1); err != nil {
		t.Fatalf("round lookup: %v", err)
	}
	if _, err := svc.Round(ctx, "g1", 2); !errors.Is(err, game.ErrRoundUnknown) {
		t.Fatalf("unknown round: got %v", err)
	}
}

func TestSnapshotIsIdempotent(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	createGame(t, svc, 2, 3)
	if _, err := svc.AdvanceRound(ctx, "g1", true); err != nil {
		t.Fatalf("advance: %v", err)
	}
	a, _ := svc.Snapshot(ctx, "g1")
	b, _ := svc.Snapshot(ctx, "g1")
	da, _ := game.EncodeGame(a)
	db, _ := game.EncodeGame(b)
	if !bytes.Equal(da, db) {
		t.Fatalf("snapshots differ")
	}
	a.Companies["t1"].Capital = 0
	c, _ := svc.Snapshot(ctx, "g1")
	if c.Companies["t1"].Capital == 0 {
		t.Fatalf("snapshot shares state with the store")
	}
}

func TestConcurrentSubmissions(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	createGame(t, svc, game.MaxParticipants, 3)

	var wg sync.WaitGroup
	errs := make(chan error, game.MaxParticipants*2)
	for i := 1; i <= game.MaxParticipants; i++ {
		id := fmt.Sprintf("t%d", i)
		for j := 0; j < 2; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- svc.SubmitDecision(ctx, "g1", id, 1, game.Decision{})
			}()
		}
	}
	wg.Wait()
	close(errs)

	var ok, dup int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, game.ErrValidation):
			dup++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != game.MaxParticipants || dup != game.MaxParticipants {
		t.Fatalf("accepted=%d duplicates=%d", ok, dup)
	}
	if _, err := svc.AdvanceRound(ctx, "g1", false); err != nil {
		t.Fatalf("advance with all submitted: %v", err)
	}
}

func TestResolutionFailureLeavesGameUntouched(t *testing.T) {
	svc, store, _ := newService(t)
	ctx := context.Background()
	created := createGame(t, svc, 2, 3)

	broken := *created
	broken.ID = "broken"
	broken.Companies = map[string]*game.Company{
		"t1": created.Companies["t1"],
		"t2": created.Companies["t2"],
	}
	created.Companies["t1"].Products["luxury"] = game.Product{Active: true, Price: 10}
	if err := store.Create(ctx, &broken); err != nil {
		t.Fatalf("seed broken game: %v", err)
	}

	_, err := svc.AdvanceRound(ctx, "broken", true)
	if !errors.Is(err, game.ErrResolution) {
		t.Fatalf("got %v want resolution error", err)
	}
	g, _ := svc.Snapshot(ctx, "broken")
	if g.Round != 1 || g.Phase != game.PhaseAwaitingDecisions || len(g.History) != 0 || g.Version != broken.Version {
		t.Fatalf("failed resolution changed the game: round=%d phase=%s version=%d", g.Round, g.Phase, g.Version)
	}
}

func TestAdvanceIfDue(t *testing.T) {
	svc, _, clock := newService(t)
	ctx := context.Background()
	createGame(t, svc, 2, 3)

	result, err := svc.AdvanceIfDue(ctx, "g1", time.Hour)
	if err != nil || result != nil {
		t.Fatalf("incomplete round before deadline: %v %v", result, err)
	}
	clock.Advance(2 * time.Hour)
	result, err = svc.AdvanceIfDue(ctx, "g1", time.Hour)
	if err != nil || result == nil || result.Round != 1 {
		t.Fatalf("overdue round: %v %v", result, err)
	}

	for _, id := range []string{"t1", "t2"} {
		if err := svc.SubmitDecision(ctx, "g1", id, 2, game.Decision{}); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	result, err = svc.AdvanceIfDue(ctx, "g1", 0)
	if err != nil || result == nil || result.Round != 2 {
		t.Fatalf("complete round: %v %v", result, err)
	}
}

func TestOversizedBudgetsCannotMintCapital(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	createGame(t, svc, 2, 3)

	raw := []byte(`{
		"operations": {"capacity_investment": 2e18, "quality_investment": 0},
		"corporate": {"brand_investment": 2e18, "sustainability_investment": 2e18, "csr_investment": 2e18, "employee_investment": 2e18}
	}`)
	if err := svc.SubmitRawDecision(ctx, "g1", "t1", 1, raw); !errors.Is(err, game.ErrValidation) {
		t.Fatalf("got %v want validation error", err)
	}
	if _, err := svc.AdvanceRound(ctx, "g1", true); err != nil {
		t.Fatalf("advance: %v", err)
	}
	g, err := svc.Snapshot(ctx, "g1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	ceiling := 10 * svc.Tuning().StartingCapital
	for id, c := range g.Companies {
		if c.Investments != 0 || c.Capital > ceiling {
			t.Fatalf("%s: capital=%d investments=%d", id, c.Capital, c.Investments)
		}
	}
}

// interleavingStore runs next right after the first Load that follows arming,
// standing in for another process acting between a read and the locked write.
type interleavingStore struct {
	*memory.Store
	next func()
}

func (s *interleavingStore) Load(ctx context.Context, id string) (*game.Game, error) {
	g, err := s.Store.Load(ctx, id)
	if f := s.next; f != nil {
		s.next = nil
		f()
	}
	return g, err
}

func TestAdvanceIfDueSkipsRoundAdvancedElsewhere(t *testing.T) {
	ctx := context.Background()
	clock := &fixedClock{now: time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)}
	shared := memory.New()
	store := &interleavingStore{Store: shared}
	worker, err := game.NewService(store, nil, game.WithClock(clock.Now))
	if err != nil {
		t.Fatalf("worker service: %v", err)
	}
	admin, err := game.NewService(shared, nil, game.WithClock(clock.Now))
	if err != nil {
		t.Fatalf("admin service: %v", err)
	}
	createGame(t, admin, 2, 3)
	for _, id := range []string{"t1", "t2"} {
		if err := admin.SubmitDecision(ctx, "g1", id, 1, game.Decision{}); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	clock.Advance(2 * time.Hour)

	store.next = func() {
		if _, err := admin.AdvanceRound(ctx, "g1", false); err != nil {
			t.Errorf("admin advance: %v", err)
		}
	}
	result, err := worker.AdvanceIfDue(ctx, "g1", time.Hour)
	if err != nil || result != nil {
		t.Fatalf("worker resolved a round that just opened: result=%+v err=%v", result, err)
	}

	g, err := admin.Snapshot(ctx, "g1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if g.Round != 2 || len(g.History) != 1 || g.Phase != game.PhaseAwaitingDecisions {
		t.Fatalf("round=%d history=%d phase=%s", g.Round, len(g.History), g.Phase)
	}
	if err := admin.SubmitDecision(ctx, "g1", "t1", 2, game.Decision{}); err != nil {
		t.Fatalf("round 2 should accept decisions: %v", err)
	}

	clock.Advance(30 * time.Minute)
	if result, err := worker.AdvanceIfDue(ctx, "g1", time.Hour); err != nil || result != nil {
		t.Fatalf("round 2 forced before its deadline: result=%+v err=%v", result, err)
	}
}

func TestParticipantView(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	createGame(t, svc, 3, 3)

	v, err := svc.ParticipantView(ctx, "g1", "t2")
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if v.PreviousResults != nil || len(v.Competitors) != 2 || v.Submitted {
		t.Fatalf("opening view: %+v", v)
	}
	if _, err := svc.AdvanceRound(ctx, "g1", true); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if err := svc.SubmitDecision(ctx, "g1", "t2", 2, game.Decision{}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	v, err = svc.ParticipantView(ctx, "g1", "t2")
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if !v.Submitted || v.PreviousResults == nil || v.PreviousResults.Round != 1 || v.PreviousResults.Rank == 0 {
		t.Fatalf("view after round 1: %+v", v)
	}
	for _, c := range v.Competitors {
		if c.ID == "t2" {
			t.Fatalf("participant listed as its own competitor")
		}
	}
	if v.Company.Decisions != nil {
		t.Fatalf("view must not expose decision history")
	}
	if _, err := svc.ParticipantView(ctx, "g1", "nobody"); !errors.Is(err, game.ErrValidation) {
		t.Fatalf("unknown participant: got %v", err)
	}
}
