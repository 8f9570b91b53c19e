package cli

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"stratsim/internal/api"
	"stratsim/internal/config"
	"stratsim/internal/game"
	"stratsim/internal/store/memory"
)

func newAPI(t *testing.T) *Client {
	t.Helper()
	svc, err := game.NewService(memory.New(), nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	srv := httptest.NewServer(api.New(config.Defaults().Server, nil, svc).Handler())
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", 5*time.Second)
}

func TestClientRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newAPI(t)
	seed := int64(5)
	g, err := c.CreateGame(ctx, game.CreateGameInput{
		ID:          "cli",
		TotalRounds: 3,
		Seed:        &seed,
		Teams:       []game.TeamInput{{ID: "a"}, {ID: "b"}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if g.ID != "cli" || len(g.Participants) != 2 {
		t.Fatalf("game=%+v", g)
	}

	_, err = c.Advance(ctx, "cli", false)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusConflict || len(apiErr.Missing) != 2 {
		t.Fatalf("advance not ready: %v", err)
	}
	if IsRejected(err) {
		t.Fatalf("not-ready should be retryable")
	}

	if err := c.SubmitDecision(ctx, "cli", "a", 1, json.RawMessage(`{"r_d": {"budget": 1000}}`)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	err = c.SubmitDecision(ctx, "cli", "a", 1, json.RawMessage(`{"r_d": {"budget": 1000}}`))
	if !IsRejected(err) {
		t.Fatalf("duplicate submit should be rejected: %v", err)
	}
	if !errors.As(err, &apiErr) || apiErr.Field != "round" {
		t.Fatalf("duplicate field: %v", err)
	}

	result, err := c.Advance(ctx, "cli", true)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if result.Round != 1 || len(result.CarriedFor) != 1 {
		t.Fatalf("result round=%d carried=%v", result.Round, result.CarriedFor)
	}

	rankings, err := c.Rankings(ctx, "cli")
	if err != nil || len(rankings) != 2 {
		t.Fatalf("rankings=%v err=%v", rankings, err)
	}
	view, err := c.View(ctx, "cli", "b")
	if err != nil || view.Round != 2 {
		t.Fatalf("view=%+v err=%v", view, err)
	}
	round, err := c.Round(ctx, "cli", 1)
	if err != nil || round.Round != 1 {
		t.Fatalf("round=%+v err=%v", round, err)
	}
	ids, err := c.ListGames(ctx)
	if err != nil || len(ids) != 1 {
		t.Fatalf("ids=%v err=%v", ids, err)
	}
	if _, err := c.Snapshot(ctx, "missing"); !IsRejected(err) {
		t.Fatalf("missing game: %v", err)
	}
}

func TestProfile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	p, err := LoadProfile()
	if err != nil || p != (Profile{}) {
		t.Fatalf("empty profile=%+v err=%v", p, err)
	}
	if _, _, err := p.Resolve("", ""); err == nil {
		t.Fatalf("resolve without game should fail")
	}
	if err := SaveProfile(Profile{GameID: "g1", ParticipantID: "a"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	p, err = LoadProfile()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	gameID, pid, err := p.Resolve("", "b")
	if err != nil || gameID != "g1" || pid != "b" {
		t.Fatalf("resolve=%s %s %v", gameID, pid, err)
	}
	if err := ClearProfile(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if p, _ := LoadProfile(); p.GameID != "" {
		t.Fatalf("profile survived clear: %+v", p)
	}
}
