package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"stratsim/internal/config"
	"stratsim/internal/game"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const maxBodyBytes = 1 << 20

type Server struct {
	cfg  config.ServerConfig
	log  *slog.Logger
	game *game.Service
	mux  *chi.Mux
}

func New(cfg config.ServerConfig, logger *slog.Logger, gameSvc *game.Service) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:  cfg,
		log:  logger,
		game: gameSvc,
		mux:  chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	timeout := s.cfg.RequestTimeout.Duration
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	r.Use(middleware.Timeout(timeout))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/games", s.handleListGames)
		r.Post("/games", s.handleCreateGame)
		r.Route("/games/{id}", func(r chi.Router) {
			r.Get("/", s.handleSnapshot)
			r.Get("/rankings", s.handleRankings)
			r.Post("/advance", s.handleAdvance)
			r.Get("/rounds/{round}", s.handleRound)
			r.Get("/participants/{pid}", s.handleParticipantView)
			r.Post("/participants/{pid}/decisions", s.handleSubmitDecision)
		})
	})
}

func (s *Server) handleListGames(w http.ResponseWriter, r *http.Request) {
	ids, err := s.game.ListGames(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"games": ids})
}

func (s *Server) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	var in game.CreateGameInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	g, err := s.game.CreateGame(r.Context(), in)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	g, err := s.game.Snapshot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleRankings(w http.ResponseWriter, r *http.Request) {
	out, err := s.game.Rankings(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rankings": out})
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Force bool `json:"force"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &in); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	result, err := s.game.AdvanceRound(r.Context(), chi.URLParam(r, "id"), in.Force)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleRound(w http.ResponseWriter, r *http.Request) {
	round, err := strconv.Atoi(chi.URLParam(r, "round"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "round must be an integer")
		return
	}
	result, err := s.game.Round(r.Context(), chi.URLParam(r, "id"), round)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleParticipantView(w http.ResponseWriter, r *http.Request) {
	v, err := s.game.ParticipantView(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "pid"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// SubmitRequest carries one decision. The decision body is decoded strictly
// by the engine so field errors come back as 422 responses.
type SubmitRequest struct {
	Round    int             `json:"round"`
	Decision json.RawMessage `json:"decision"`
}

func (s *Server) handleSubmitDecision(w http.ResponseWriter, r *http.Request) {
	var in SubmitRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(in.Decision) == 0 {
		writeError(w, http.StatusBadRequest, "decision is required")
		return
	}
	gameID, pid := chi.URLParam(r, "id"), chi.URLParam(r, "pid")
	if err := s.game.SubmitRawDecision(r.Context(), gameID, pid, in.Round, in.Decision); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"game_id":        gameID,
		"participant_id": pid,
		"round":          in.Round,
		"accepted":       true,
	})
}

func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr *game.ValidationError
		nerr *game.NotReadyError
	)
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error": verr.Error(),
			"field": verr.Field,
		})
	case errors.As(err, &nerr):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":   nerr.Error(),
			"round":   nerr.Round,
			"missing": nerr.Missing,
		})
	case errors.Is(err, game.ErrGameNotFound), errors.Is(err, game.ErrRoundUnknown):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, game.ErrGameExists), errors.Is(err, game.ErrConflict), errors.Is(err, game.ErrFinished):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.log.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message)})
}
