package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sort"
	"strconv"

	"stratsim/internal/config"
	"stratsim/internal/game"
	"stratsim/internal/store/memory"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// strategy is a fixed playing style used by simulated teams.
type strategy struct {
	Name     string
	Segments []string
	// PricePosition places the price between a segment's floor (0) and ceiling (1).
	PricePosition float64
	Quality       float64
	Features      float64
	// Spend shares are fractions of current capital.
	MarketingShare float64
	RDShare        float64
	BrandShare     float64
	SocialShare    float64
	Focus          map[string]float64
}

var strategies = []strategy{
	{
		Name: "premium", Segments: []string{"premium", "mid_range"},
		PricePosition: 0.7, Quality: 85, Features: 85,
		MarketingShare: 0.02, RDShare: 0.06, BrandShare: 0.02, SocialShare: 0.005,
		Focus: map[string]float64{"camera": 0.4, "processor": 0.4},
	},
	{
		Name: "value", Segments: []string{"budget", "mid_range"},
		PricePosition: 0.2, Quality: 50, Features: 40,
		MarketingShare: 0.03, RDShare: 0.02, BrandShare: 0.01, SocialShare: 0.002,
		Focus: map[string]float64{"battery": 0.6},
	},
	{
		Name: "balanced", Segments: []string{"premium", "mid_range", "budget"},
		PricePosition: 0.45, Quality: 65, Features: 60,
		MarketingShare: 0.015, RDShare: 0.04, BrandShare: 0.015, SocialShare: 0.01,
		Focus: map[string]float64{"display": 0.3, "software": 0.3, "battery": 0.2},
	},
	{
		Name: "green", Segments: []string{"mid_range"},
		PricePosition: 0.55, Quality: 70, Features: 60,
		MarketingShare: 0.02, RDShare: 0.03, BrandShare: 0.01, SocialShare: 0.03,
		Focus: map[string]float64{"battery": 0.5, "software": 0.5},
	},
}

type simulateOptions struct {
	games    int
	teams    int
	rounds   int
	seed     int64
	parallel int
	verbose  bool
}

type simOutcome struct {
	gameID   string
	rankings []game.Ranking
	styles   map[string]string
}

func newSimulateCmd() *cobra.Command {
	opts := simulateOptions{}
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Play whole games locally with scripted teams",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.games < 1 || opts.teams < 1 || opts.rounds < 1 {
				return fmt.Errorf("games, teams and rounds must be positive")
			}
			level := "warn"
			if opts.verbose {
				level = "info"
			}
			outcomes, err := simulate(cmd.Context(), opts, config.NewLogger(level))
			if err != nil {
				return err
			}
			wins := map[string]int{}
			for _, o := range outcomes {
				accent.Printf("Game %s\n", o.gameID)
				renderRankings(o.rankings)
				if len(o.rankings) > 0 {
					wins[o.styles[o.rankings[0].ParticipantID]]++
				}
			}
			names := make([]string, 0, len(wins))
			for name := range wins {
				names = append(names, name)
			}
			sort.Slice(names, func(i, j int) bool {
				if wins[names[i]] != wins[names[j]] {
					return wins[names[i]] > wins[names[j]]
				}
				return names[i] < names[j]
			})
			for _, name := range names {
				printSuccess(fmt.Sprintf("%s won %d of %d", name, wins[name], len(outcomes)))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&opts.games, "games", 1, "number of games to play")
	cmd.Flags().IntVar(&opts.teams, "teams", len(strategies), "teams per game")
	cmd.Flags().IntVar(&opts.rounds, "rounds", 8, "rounds per game")
	cmd.Flags().Int64Var(&opts.seed, "seed", 1, "base seed; game i uses seed+i")
	cmd.Flags().IntVar(&opts.parallel, "parallel", 4, "games played at once")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "log each resolved round")
	return cmd
}

// simulate plays opts.games games on an in-memory service and returns the
// final standings in game order.
func simulate(ctx context.Context, opts simulateOptions, logger *slog.Logger) ([]simOutcome, error) {
	svc, err := game.NewService(memory.New(), logger)
	if err != nil {
		return nil, err
	}
	out := make([]simOutcome, opts.games)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(opts.parallel, 1))
	for i := range opts.games {
		g.Go(func() error {
			o, err := playGame(ctx, svc, "sim-"+strconv.Itoa(i+1), opts.seed+int64(i), opts.teams, opts.rounds)
			if err != nil {
				return err
			}
			out[i] = o
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func playGame(ctx context.Context, svc *game.Service, id string, seed int64, teams, rounds int) (simOutcome, error) {
	in := game.CreateGameInput{ID: id, TotalRounds: rounds, Seed: &seed}
	styles := make(map[string]string, teams)
	rngs := make(map[string]*rand.Rand, teams)
	for t := range teams {
		s := strategies[t%len(strategies)]
		pid := "t" + strconv.Itoa(t+1)
		in.Teams = append(in.Teams, game.TeamInput{ID: pid, Name: s.Name + "-" + strconv.Itoa(t+1)})
		styles[pid] = s.Name
		rngs[pid] = rand.New(rand.NewSource(seed*int64(len(strategies)+1) + int64(t)))
	}
	created, err := svc.CreateGame(ctx, in)
	if err != nil {
		return simOutcome{}, err
	}

	for !created.Finished() {
		force := false
		for t, pid := range created.Participants {
			view, err := svc.ParticipantView(ctx, id, pid)
			if err != nil {
				return simOutcome{}, err
			}
			s := strategies[t%len(strategies)]
			d := planDecision(s, &view.Company, view.Market, svc.Tuning(), rngs[pid])
			err = svc.SubmitDecision(ctx, id, pid, view.Round, d)
			var verr *game.ValidationError
			if errors.As(err, &verr) {
				// Nothing affordable: let the round carry this team over.
				force = true
				continue
			}
			if err != nil {
				return simOutcome{}, fmt.Errorf("%s round %d %s: %w", id, view.Round, pid, err)
			}
		}
		if _, err := svc.AdvanceRound(ctx, id, force); err != nil {
			return simOutcome{}, err
		}
		if created, err = svc.Snapshot(ctx, id); err != nil {
			return simOutcome{}, err
		}
	}
	return simOutcome{gameID: id, rankings: game.Rank(created), styles: styles}, nil
}

// planDecision turns a strategy into a concrete decision for c. Plans the
// company cannot afford fall back to keeping the current products.
func planDecision(s strategy, c *game.Company, m game.Market, t game.Tuning, rng *rand.Rand) game.Decision {
	if c.Capital <= 0 {
		return game.NoChange(c)
	}
	capital := float64(c.Capital)
	jitter := func(v, spread float64) float64 {
		return v * (1 + spread*(rng.Float64()*2-1))
	}

	d := game.Decision{Products: map[string]game.Product{}}
	targets := make([]string, 0, len(s.Segments))
	for _, seg := range s.Segments {
		if _, ok := m.Segments[seg]; ok {
			targets = append(targets, seg)
		}
	}
	for seg := range c.Products {
		if !contains(targets, seg) {
			p := c.Products[seg]
			p.Active = false
			d.Products[seg] = p
		}
	}
	if len(targets) > 0 {
		perSegment := c.ProductionCapacity / int64(len(targets))
		for _, seg := range targets {
			sd := m.Segments[seg]
			price := sd.PriceFloor + clampUnit(jitter(s.PricePosition, 0.1))*(sd.PriceCeiling-sd.PriceFloor)
			volume := min(perSegment, int64(sd.Size*m.TotalMarketSize/2))
			d.Products[seg] = game.Product{
				Active:           true,
				Price:            math.Round(math.Min(price, t.MaxPrice)*100) / 100,
				Quality:          math.Min(jitter(s.Quality, 0.05), game.ScaleMax),
				Features:         math.Min(jitter(s.Features, 0.05), game.ScaleMax),
				ProductionVolume: volume,
				MarketingBudget:  int64(capital * s.MarketingShare / float64(len(targets))),
			}
		}
	}
	d.RD = game.RDPlan{Budget: int64(capital * s.RDShare), Focus: s.Focus}
	d.Operations.QualityInvestment = int64(capital * s.RDShare / 4)
	d.Corporate = game.CorporatePlan{
		BrandInvestment:          int64(capital * s.BrandShare),
		SustainabilityInvestment: int64(capital * s.SocialShare),
		CSRInvestment:            int64(capital * s.SocialShare / 2),
		EmployeeInvestment:       int64(capital * s.SocialShare / 2),
	}

	if err := game.ValidateDecision(d, c, m, t); err != nil {
		return game.NoChange(c)
	}
	return d
}

func clampUnit(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
