// Package worker advances games on a timer: complete rounds resolve at once
// and rounds past the deadline resolve with carried-over decisions.
package worker

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"stratsim/internal/game"
)

type Advancer interface {
	OpenGames(ctx context.Context) ([]string, error)
	AdvanceIfDue(ctx context.Context, gameID string, deadline time.Duration) (*game.RoundResult, error)
}

type Worker struct {
	svc         Advancer
	log         *slog.Logger
	deadline    time.Duration
	parallelism int
}

func New(svc Advancer, logger *slog.Logger, deadline time.Duration, parallelism int) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	if parallelism < 1 {
		parallelism = 1
	}
	return &Worker{svc: svc, log: logger, deadline: deadline, parallelism: parallelism}
}

// Tick checks every open game once and returns how many rounds resolved.
// A failing game is logged and does not stop the others.
func (w *Worker) Tick(ctx context.Context) (int, error) {
	ids, err := w.svc.OpenGames(ctx)
	if err != nil {
		return 0, err
	}
	var advanced atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.parallelism)
	for _, id := range ids {
		g.Go(func() error {
			result, err := w.svc.AdvanceIfDue(gctx, id, w.deadline)
			if err != nil {
				w.log.Error("advance failed", "game_id", id, "err", err)
				return nil
			}
			if result != nil {
				advanced.Add(1)
				w.log.Info("round advanced", "game_id", id, "round", result.Round, "carried", len(result.CarriedFor))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(advanced.Load()), err
	}
	return int(advanced.Load()), ctx.Err()
}

// Run ticks every interval until ctx is done.
func (w *Worker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.log.Info("worker started", "interval", interval.String(), "round_deadline", w.deadline.String(), "parallelism", w.parallelism)
	for {
		select {
		case <-ctx.Done():
			w.log.Info("worker shutdown")
			return
		case <-ticker.C:
			n, err := w.Tick(ctx)
			if err != nil {
				w.log.Error("tick failed", "err", err)
				continue
			}
			if n > 0 {
				w.log.Info("tick complete", "advanced", n)
			}
		}
	}
}
