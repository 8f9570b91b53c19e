package game

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Resolve computes the next state of g from a full decision set without
// touching g. decisions must hold an entry for every participant; carried
// names the participants whose decision was substituted on a forced advance.
func Resolve(g *Game, decisions map[string]Decision, carried []string, cat *Catalog, t Tuning, now time.Time) (next *Game, result *RoundResult, err error) {
	round := g.Round
	fail := func(step string, err error) (*Game, *RoundResult, error) {
		return nil, nil, &ResolutionError{Round: round, Step: step, Err: err}
	}
	defer func() {
		if r := recover(); r != nil {
			next, result, err = fail("panic", fmt.Errorf("%v", r))
		}
	}()

	if g.Finished() {
		return fail("start", errors.New("game is finished"))
	}
	next, err = cloneGame(g)
	if err != nil {
		return fail("clone", err)
	}
	next.Phase = PhaseResolving

	companies, err := next.roster()
	if err != nil {
		return fail("integrity", err)
	}
	for _, c := range companies {
		if _, ok := decisions[c.ID]; !ok {
			return fail("integrity", fmt.Errorf("no decision for participant %s", c.ID))
		}
	}

	rng := roundRand(next.Seed, round)
	events := DrawEvents(rng, cat, round, next.TotalRounds, next.UsedEvents, t)
	if err := applyMarketEvents(&next.Market, events); err != nil {
		return fail("events", err)
	}
	if err := applyCompanyEvents(companies, events, false, t); err != nil {
		return fail("events", err)
	}

	resolved := make(map[string]Decision, len(companies))
	for _, c := range companies {
		d := decisions[c.ID]
		before := c.Products
		c.Products = mergeProducts(c.Products, d.Products)
		fitCapacity(c.Products, c.ProductionCapacity)
		c.Launches = countLaunches(before, c.Products, t)
		d.Products = mergeProducts(c.Products, nil)
		resolved[c.ID] = d
		c.Decisions[round] = d
	}

	alloc := Allocate(next.Market, companies, t)
	firstRound := len(next.History) == 0
	for _, c := range companies {
		sales := alloc.Sales[c.ID]
		ledger := settle(c, next.Market, resolved[c.ID], sales, t)
		satisfy(c, next.Market, sales, alloc.Allocated[c.ID], t)
		develop(c, resolved[c.ID], ledger.Marketing, t)
		c.MarketShare = companyShare(c, sales, firstRound, t)
	}
	if err := applyCompanyEvents(companies, events, true, t); err != nil {
		return fail("events", err)
	}
	if err := checkShares(alloc); err != nil {
		return fail("allocation", err)
	}

	Score(companies, t)
	for _, ev := range events {
		next.UsedEvents[ev.CatalogID] = round
	}
	evolveMarket(&next.Market, round, rng, t)

	result = &RoundResult{
		Round:      round,
		Decisions:  resolved,
		CarriedFor: carried,
		Sales:      alloc.Sales,
		Segments:   alloc.Segments,
		Events:     events,
		Companies:  make(map[string]Company, len(companies)),
		Rankings:   Rank(next),
		ResolvedAt: now.UTC(),
	}
	for _, c := range companies {
		result.Companies[c.ID] = c.Snapshot()
	}

	next.History = append(next.History, *result)
	next.Pending = map[string]Decision{}
	if round >= next.TotalRounds {
		next.Phase = PhaseFinished
	} else {
		next.Round = round + 1
		next.Phase = PhaseAwaitingDecisions
		next.RoundOpenedAt = now.UTC()
	}
	return next, result, nil
}

// roster returns the companies in participant order after checking that
// every participant has a sound company.
func (g *Game) roster() ([]*Company, error) {
	if len(g.Market.Segments) == 0 {
		return nil, errors.New("market has no segments")
	}
	out := make([]*Company, 0, len(g.Participants))
	for _, id := range g.Participants {
		c, ok := g.Companies[id]
		if !ok || c == nil {
			return nil, fmt.Errorf("participant %s has no company", id)
		}
		if c.ID != id {
			return nil, fmt.Errorf("company %s is registered under participant %s", c.ID, id)
		}
		for seg := range c.Products {
			if _, ok := g.Market.Segments[seg]; !ok {
				return nil, fmt.Errorf("company %s has a product in unknown segment %q", id, seg)
			}
		}
		out = append(out, c)
	}
	return out, nil
}

func checkShares(a Allocation) error {
	for seg, outcome := range a.Segments {
		if outcome.Active == 0 {
			continue
		}
		var sum float64
		for _, bySeg := range a.Sales {
			if s, ok := bySeg[seg]; ok {
				sum += s.MarketShare
			}
		}
		if math.Abs(sum-1) > 1e-6 {
			return fmt.Errorf("segment %s shares sum to %f", seg, sum)
		}
	}
	return nil
}
