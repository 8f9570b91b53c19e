package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"stratsim/internal/game"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: timeout,
		},
	}
}

// APIError is a non-2xx answer from the API.
type APIError struct {
	Status  int      `json:"-"`
	Message string   `json:"error"`
	Field   string   `json:"field,omitempty"`
	Missing []string `json:"missing,omitempty"`
}

func (e *APIError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("api status %d: %s (waiting on %s)", e.Status, e.Message, strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
}

// Rejected reports whether resubmitting the same request can never succeed.
func (e *APIError) Rejected() bool {
	return e.Status == http.StatusBadRequest || e.Status == http.StatusUnprocessableEntity ||
		e.Status == http.StatusNotFound
}

// IsRejected reports whether err is an APIError the server will keep refusing.
func IsRejected(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Rejected()
}

func (c *Client) CreateGame(ctx context.Context, in game.CreateGameInput) (*game.Game, error) {
	var out game.Game
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/games", in, &out)
	return &out, err
}

func (c *Client) ListGames(ctx context.Context) ([]string, error) {
	var out struct {
		Games []string `json:"games"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/games", nil, &out)
	return out.Games, err
}

func (c *Client) Snapshot(ctx context.Context, gameID string) (*game.Game, error) {
	var out game.Game
	err := c.jsonRequest(ctx, http.MethodGet, gamePath(gameID), nil, &out)
	return &out, err
}

func (c *Client) Rankings(ctx context.Context, gameID string) ([]game.Ranking, error) {
	var out struct {
		Rankings []game.Ranking `json:"rankings"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, gamePath(gameID)+"/rankings", nil, &out)
	return out.Rankings, err
}

func (c *Client) View(ctx context.Context, gameID, participantID string) (*game.ParticipantView, error) {
	var out game.ParticipantView
	err := c.jsonRequest(ctx, http.MethodGet, gamePath(gameID)+"/participants/"+url.PathEscape(participantID), nil, &out)
	return &out, err
}

func (c *Client) Round(ctx context.Context, gameID string, round int) (*game.RoundResult, error) {
	var out game.RoundResult
	err := c.jsonRequest(ctx, http.MethodGet, fmt.Sprintf("%s/rounds/%d", gamePath(gameID), round), nil, &out)
	return &out, err
}

func (c *Client) Advance(ctx context.Context, gameID string, force bool) (*game.RoundResult, error) {
	var out game.RoundResult
	err := c.jsonRequest(ctx, http.MethodPost, gamePath(gameID)+"/advance", map[string]bool{"force": force}, &out)
	return &out, err
}

func (c *Client) SubmitDecision(ctx context.Context, gameID, participantID string, round int, decision json.RawMessage) error {
	return c.jsonRequest(ctx, http.MethodPost, gamePath(gameID)+"/participants/"+url.PathEscape(participantID)+"/decisions", map[string]any{
		"round":    round,
		"decision": decision,
	}, nil)
}

func gamePath(id string) string {
	return "/v1/games/" + url.PathEscape(id)
}

func (c *Client) jsonRequest(ctx context.Context, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.Unmarshal(raw, apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		apiErr.Status = resp.StatusCode
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
