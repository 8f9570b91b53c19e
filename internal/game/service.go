package game

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Store persists game snapshots. Load returns a private copy; Save succeeds
// only when g.Version matches the stored version and then increments it.
type Store interface {
	Create(ctx context.Context, g *Game) error
	Load(ctx context.Context, id string) (*Game, error)
	Save(ctx context.Context, g *Game) error
	List(ctx context.Context) ([]string, error)
}

// RoundHook observes committed rounds. Hook errors are logged and never undo a round.
type RoundHook interface {
	OnRoundResolved(ctx context.Context, g *Game, result *RoundResult) error
}

type Service struct {
	store   Store
	locks   Locker
	catalog *Catalog
	tuning  Tuning
	hooks   []RoundHook
	log     *slog.Logger
	now     func() time.Time
	tracer  trace.Tracer
}

type Option func(*Service)

func WithLocker(l Locker) Option { return func(s *Service) { s.locks = l } }

func WithCatalog(c *Catalog) Option { return func(s *Service) { s.catalog = c } }

func WithTuning(t Tuning) Option { return func(s *Service) { s.tuning = t } }

func WithHooks(h ...RoundHook) Option { return func(s *Service) { s.hooks = append(s.hooks, h...) } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func NewService(store Store, logger *slog.Logger, opts ...Option) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:  store,
		locks:  NewLocalLocker(),
		tuning: DefaultTuning(),
		log:    logger,
		now:    time.Now,
		tracer: otel.Tracer("stratsim/internal/game"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.catalog == nil {
		cat, err := DefaultCatalog()
		if err != nil {
			return nil, err
		}
		s.catalog = cat
	}
	if err := s.tuning.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) Tuning() Tuning { return s.tuning }

func (s *Service) CreateGame(ctx context.Context, in CreateGameInput) (*Game, error) {
	if len(in.Teams) == 0 || len(in.Teams) > MaxParticipants {
		return nil, invalid("teams", "between 1 and %d teams are required", MaxParticipants)
	}
	if in.TotalRounds < 1 || in.TotalRounds > MaxRounds {
		return nil, invalid("total_rounds", "must be between 1 and %d", MaxRounds)
	}
	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = uuid.NewString()
	}
	seed := int64(0)
	if in.Seed != nil {
		seed = *in.Seed
	} else {
		var err error
		if seed, err = newSeed(); err != nil {
			return nil, err
		}
	}

	now := s.now().UTC()
	g := &Game{
		ID:            id,
		Round:         1,
		TotalRounds:   in.TotalRounds,
		Phase:         PhaseAwaitingDecisions,
		Seed:          seed,
		Companies:     map[string]*Company{},
		Market:        DefaultMarket(),
		Pending:       map[string]Decision{},
		UsedEvents:    map[string]int{},
		CreatedAt:     now,
		RoundOpenedAt: now,
	}
	for i, team := range in.Teams {
		tid := strings.TrimSpace(team.ID)
		if tid == "" {
			tid = fmt.Sprintf("team-%d", i+1)
		}
		name := strings.TrimSpace(team.Name)
		if name == "" {
			name = fmt.Sprintf("Team %d", i+1)
		}
		if _, dup := g.Companies[tid]; dup {
			return nil, invalid("teams", "duplicate team id %q", tid)
		}
		g.Participants = append(g.Participants, tid)
		g.Companies[tid] = NewCompany(tid, name, s.tuning)
	}

	if err := s.store.Create(ctx, g); err != nil {
		return nil, err
	}
	s.log.Info("game created", "game_id", g.ID, "teams", len(g.Participants), "rounds", g.TotalRounds)
	return g, nil
}

// SubmitRawDecision decodes a wire payload and submits it.
func (s *Service) SubmitRawDecision(ctx context.Context, gameID, participantID string, round int, raw []byte) error {
	d, err := DecodeDecision(raw)
	if err != nil {
		return err
	}
	return s.SubmitDecision(ctx, gameID, participantID, round, d)
}

// SubmitDecision records a participant's decision for the current round. The
// round, duplicate and bounds checks run under the game lock together with the save.
func (s *Service) SubmitDecision(ctx context.Context, gameID, participantID string, round int, d Decision) (err error) {
	ctx, span := s.tracer.Start(ctx, "game.SubmitDecision", trace.WithAttributes(
		attribute.String("game.id", gameID),
		attribute.String("participant.id", participantID),
		attribute.Int("round", round),
	))
	defer func() { endSpan(span, err) }()

	unlock, err := s.locks.Lock(ctx, gameID)
	if err != nil {
		return fmt.Errorf("lock game %s: %w", gameID, err)
	}
	defer unlock()

	g, err := s.store.Load(ctx, gameID)
	if err != nil {
		return err
	}
	c, ok := g.Companies[participantID]
	if !ok {
		return invalid("participant_id", "unknown participant %q", participantID)
	}
	if g.Finished() {
		return invalid("round", "game is finished")
	}
	if g.Phase != PhaseAwaitingDecisions {
		return invalid("round", "game is not accepting decisions")
	}
	if round != g.Round {
		return invalid("round", "round %d is not open, current round is %d", round, g.Round)
	}
	if _, dup := g.Pending[participantID]; dup {
		return invalid("round", "decision for round %d already submitted", round)
	}
	if err := ValidateDecision(d, c, g.Market, s.tuning); err != nil {
		return err
	}

	g.Pending[participantID] = d
	if err := s.store.Save(ctx, g); err != nil {
		return err
	}
	s.log.Info("decision submitted", "game_id", gameID, "participant_id", participantID, "round", round, "waiting_on", len(g.Missing()))
	return nil
}

// AdvanceRound resolves the current round. Without force every participant
// must have submitted; with force, missing participants replay their last
// affordable decision or hold their position.
func (s *Service) AdvanceRound(ctx context.Context, gameID string, force bool) (*RoundResult, error) {
	return s.resolveRound(ctx, gameID, advanceRequest{force: force})
}

// advanceRequest selects the round to resolve and when missing decisions
// may be carried over.
type advanceRequest struct {
	force bool
	// round, when set, must still be the open round once the lock is held.
	round int
	// deadline forces a round that has been open at least this long.
	deadline time.Duration
}

// resolveRound returns a nil result without error when req.round is no
// longer the open round.
func (s *Service) resolveRound(ctx context.Context, gameID string, req advanceRequest) (result *RoundResult, err error) {
	ctx, span := s.tracer.Start(ctx, "game.AdvanceRound", trace.WithAttributes(
		attribute.String("game.id", gameID),
		attribute.Bool("force", req.force),
		attribute.Int64("deadline_ms", req.deadline.Milliseconds()),
	))
	defer func() { endSpan(span, err) }()

	next, result, err := s.advance(ctx, gameID, req)
	if err != nil || result == nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("round", result.Round), attribute.Int("events", len(result.Events)))
	s.notify(ctx, next, result)
	return result, nil
}

func (s *Service) advance(ctx context.Context, gameID string, req advanceRequest) (*Game, *RoundResult, error) {
	unlock, err := s.locks.Lock(ctx, gameID)
	if err != nil {
		return nil, nil, fmt.Errorf("lock game %s: %w", gameID, err)
	}
	defer unlock()

	g, err := s.store.Load(ctx, gameID)
	if err != nil {
		return nil, nil, err
	}
	if req.round != 0 && (g.Round != req.round || g.Finished()) {
		s.log.Info("round already advanced", "game_id", gameID, "expected_round", req.round, "round", g.Round)
		return nil, nil, nil
	}
	if g.Finished() {
		return nil, nil, fmt.Errorf("advance game %s: %w", gameID, ErrFinished)
	}
	force := req.force || (req.deadline > 0 && s.now().Sub(g.RoundOpenedAt) >= req.deadline)
	missing := g.Missing()
	if len(missing) > 0 && !force {
		return nil, nil, &NotReadyError{Round: g.Round, Missing: missing}
	}

	decisions := make(map[string]Decision, len(g.Participants))
	for id, d := range g.Pending {
		decisions[id] = d
	}
	for _, id := range missing {
		decisions[id] = s.carryOver(g, id)
	}

	started := time.Now()
	next, result, err := Resolve(g, decisions, missing, s.catalog, s.tuning, s.now())
	if err != nil {
		s.log.Error("round resolution failed", "game_id", gameID, "round", g.Round, "error", err)
		return nil, nil, err
	}
	if err := s.store.Save(ctx, next); err != nil {
		return nil, nil, err
	}

	s.log.Info("round resolved",
		"game_id", gameID,
		"round", result.Round,
		"forced", len(missing) > 0,
		"carried", len(missing),
		"events", len(result.Events),
		"phase", next.Phase,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return next, result, nil
}

// carryOver picks the decision a silent participant is resolved with.
func (s *Service) carryOver(g *Game, participantID string) Decision {
	c := g.Companies[participantID]
	if prev, ok := c.Decisions[g.Round-1]; ok {
		if err := ValidateDecision(prev, c, g.Market, s.tuning); err == nil {
			return prev
		}
		s.log.Warn("previous decision no longer valid, holding position", "game_id", g.ID, "participant_id", participantID)
	}
	return NoChange(c)
}

// AdvanceIfDue resolves a round that is complete, or force-resolves one that
// has been open longer than deadline. A zero deadline never forces.
func (s *Service) AdvanceIfDue(ctx context.Context, gameID string, deadline time.Duration) (*RoundResult, error) {
	g, err := s.store.Load(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if g.Finished() {
		return nil, nil
	}
	result, err := s.resolveRound(ctx, gameID, advanceRequest{round: g.Round, deadline: deadline})
	if errors.Is(err, ErrNotReady) || errors.Is(err, ErrFinished) {
		return nil, nil
	}
	return result, err
}

func (s *Service) notify(ctx context.Context, g *Game, result *RoundResult) {
	for _, h := range s.hooks {
		if err := h.OnRoundResolved(ctx, g, result); err != nil {
			s.log.Warn("round hook failed", "game_id", g.ID, "round", result.Round, "error", err)
		}
	}
}

// Snapshot returns the stored game. Repeated calls without an advance return identical data.
func (s *Service) Snapshot(ctx context.Context, gameID string) (*Game, error) {
	return s.store.Load(ctx, gameID)
}

func (s *Service) ListGames(ctx context.Context) ([]string, error) {
	return s.store.List(ctx)
}

// OpenLister is implemented by stores that can skip finished games cheaply.
type OpenLister interface {
	ListOpen(ctx context.Context) ([]string, error)
}

// OpenGames lists games that may still advance. Stores without OpenLister
// return every game and AdvanceIfDue skips the finished ones.
func (s *Service) OpenGames(ctx context.Context) ([]string, error) {
	if ol, ok := s.store.(OpenLister); ok {
		return ol.ListOpen(ctx)
	}
	return s.store.List(ctx)
}

func (s *Service) Rankings(ctx context.Context, gameID string) ([]Ranking, error) {
	g, err := s.store.Load(ctx, gameID)
	if err != nil {
		return nil, err
	}
	return Rank(g), nil
}

func (s *Service) ParticipantView(ctx context.Context, gameID, participantID string) (*ParticipantView, error) {
	g, err := s.store.Load(ctx, gameID)
	if err != nil {
		return nil, err
	}
	return View(g, participantID)
}

func (s *Service) Round(ctx context.Context, gameID string, round int) (*RoundResult, error) {
	g, err := s.store.Load(ctx, gameID)
	if err != nil {
		return nil, err
	}
	for i := range g.History {
		if g.History[i].Round == round {
			return &g.History[i], nil
		}
	}
	return nil, fmt.Errorf("game %s round %d: %w", gameID, round, ErrRoundUnknown)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func newSeed() (int64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("generate seed: %w", err)
	}
	return int64(binary.LittleEndian.Uint64(b[:]) & math.MaxInt64), nil
}
