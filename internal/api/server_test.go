package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"stratsim/internal/config"
	"stratsim/internal/game"
	"stratsim/internal/store/memory"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	svc, err := game.NewService(memory.New(), nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	srv := httptest.NewServer(New(config.Defaults().Server, nil, svc).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp.StatusCode
}

func createTestGame(t *testing.T, base string) {
	t.Helper()
	seed := int64(99)
	in := game.CreateGameInput{
		ID:          "g1",
		TotalRounds: 2,
		Seed:        &seed,
		Teams:       []game.TeamInput{{ID: "a", Name: "Alpha"}, {ID: "b", Name: "Beta"}},
	}
	if code := do(t, http.MethodPost, base+"/v1/games", in, nil); code != http.StatusCreated {
		t.Fatalf("create status=%d", code)
	}
}

const holdDecision = `{"round": 1, "decision": {"r_d": {"budget": 10000000, "focus": {"camera": 0.5}}}}`

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)
	var out map[string]any
	if code := do(t, http.MethodGet, srv.URL+"/healthz", nil, &out); code != http.StatusOK || out["ok"] != true {
		t.Fatalf("status=%d body=%v", code, out)
	}
}

func TestGameLifecycle(t *testing.T) {
	srv := newTestServer(t)
	base := srv.URL + "/v1/games/g1"
	createTestGame(t, srv.URL)

	var notReady map[string]any
	if code := do(t, http.MethodPost, base+"/advance", nil, &notReady); code != http.StatusConflict {
		t.Fatalf("advance without decisions status=%d", code)
	}
	if missing, _ := notReady["missing"].([]any); len(missing) != 2 {
		t.Fatalf("missing=%v", notReady["missing"])
	}

	for _, pid := range []string{"a", "b"} {
		if code := do(t, http.MethodPost, base+"/participants/"+pid+"/decisions", holdDecision, nil); code != http.StatusAccepted {
			t.Fatalf("submit %s status=%d", pid, code)
		}
	}

	var result game.RoundResult
	if code := do(t, http.MethodPost, base+"/advance", nil, &result); code != http.StatusOK {
		t.Fatalf("advance status=%d", code)
	}
	if result.Round != 1 || len(result.Rankings) != 2 {
		t.Fatalf("result=%+v", result)
	}

	var round game.RoundResult
	if code := do(t, http.MethodGet, base+"/rounds/1", nil, &round); code != http.StatusOK || round.Round != 1 {
		t.Fatalf("round lookup status=%d round=%d", code, round.Round)
	}
	if code := do(t, http.MethodGet, base+"/rounds/7", nil, nil); code != http.StatusNotFound {
		t.Fatalf("unknown round status=%d", code)
	}

	var view game.ParticipantView
	if code := do(t, http.MethodGet, base+"/participants/a", nil, &view); code != http.StatusOK {
		t.Fatalf("view status=%d", code)
	}
	if view.Round != 2 || view.PreviousResults == nil || len(view.Competitors) != 1 {
		t.Fatalf("view=%+v", view)
	}

	var forced game.RoundResult
	if code := do(t, http.MethodPost, base+"/advance", map[string]bool{"force": true}, &forced); code != http.StatusOK {
		t.Fatalf("forced advance status=%d", code)
	}
	if len(forced.CarriedFor) != 2 {
		t.Fatalf("carried=%v", forced.CarriedFor)
	}

	var snap game.Game
	if code := do(t, http.MethodGet, base, nil, &snap); code != http.StatusOK {
		t.Fatalf("snapshot status=%d", code)
	}
	if snap.Phase != game.PhaseFinished || len(snap.History) != 2 {
		t.Fatalf("phase=%s history=%d", snap.Phase, len(snap.History))
	}
	if code := do(t, http.MethodPost, base+"/advance", map[string]bool{"force": true}, nil); code != http.StatusConflict {
		t.Fatalf("advance finished game status=%d", code)
	}

	var rankings struct {
		Rankings []game.Ranking `json:"rankings"`
	}
	if code := do(t, http.MethodGet, base+"/rankings", nil, &rankings); code != http.StatusOK || len(rankings.Rankings) != 2 {
		t.Fatalf("rankings status=%d body=%+v", code, rankings)
	}
}

func TestSubmitDecisionErrors(t *testing.T) {
	srv := newTestServer(t)
	base := srv.URL + "/v1/games/g1/participants"
	createTestGame(t, srv.URL)

	tests := []struct {
		name  string
		pid   string
		body  string
		code  int
		field string
	}{
		{"malformed json", "a", `{"round": 1, "decision": `, http.StatusBadRequest, ""},
		{"unknown envelope field", "a", `{"round": 1, "decision": {}, "extra": 1}`, http.StatusBadRequest, ""},
		{"missing decision", "a", `{"round": 1}`, http.StatusBadRequest, ""},
		{"wrong round", "a", `{"round": 3, "decision": {}}`, http.StatusUnprocessableEntity, "round"},
		{"unknown participant", "zed", `{"round": 1, "decision": {}}`, http.StatusUnprocessableEntity, "participant_id"},
		{"non numeric price", "a", `{"round": 1, "decision": {"products": {"budget": {"active": true, "price": "cheap", "quality": 40, "features": 30, "production_volume": 1000, "marketing_budget": 0}}}}`, http.StatusUnprocessableEntity, ""},
		{"negative budget", "a", `{"round": 1, "decision": {"r_d": {"budget": -5}}}`, http.StatusUnprocessableEntity, "r_d.budget"},
	}
	for _, tc := range tests {
		var out map[string]any
		code := do(t, http.MethodPost, base+"/"+tc.pid+"/decisions", tc.body, &out)
		if code != tc.code {
			t.Fatalf("%s: status=%d want %d body=%v", tc.name, code, tc.code, out)
		}
		if tc.field != "" && out["field"] != tc.field {
			t.Fatalf("%s: field=%v want %s", tc.name, out["field"], tc.field)
		}
	}

	if code := do(t, http.MethodPost, base+"/a/decisions", holdDecision, nil); code != http.StatusAccepted {
		t.Fatalf("valid submit status=%d", code)
	}
	if code := do(t, http.MethodPost, base+"/a/decisions", holdDecision, nil); code != http.StatusUnprocessableEntity {
		t.Fatalf("duplicate submit status=%d", code)
	}
}

func TestUnknownGame(t *testing.T) {
	srv := newTestServer(t)
	for _, path := range []string{"/v1/games/nope", "/v1/games/nope/rankings", "/v1/games/nope/participants/a"} {
		if code := do(t, http.MethodGet, srv.URL+path, nil, nil); code != http.StatusNotFound {
			t.Fatalf("%s status=%d", path, code)
		}
	}
	createTestGame(t, srv.URL)
	var dup map[string]any
	seed := int64(1)
	in := game.CreateGameInput{ID: "g1", TotalRounds: 2, Seed: &seed, Teams: []game.TeamInput{{ID: "a"}}}
	if code := do(t, http.MethodPost, srv.URL+"/v1/games", in, &dup); code != http.StatusConflict {
		t.Fatalf("duplicate game status=%d", code)
	}
	var list struct {
		Games []string `json:"games"`
	}
	if code := do(t, http.MethodGet, srv.URL+"/v1/games", nil, &list); code != http.StatusOK || len(list.Games) != 1 {
		t.Fatalf("list status=%d games=%v", code, list.Games)
	}
}
