package game

import (
	"math"
	"reflect"
	"strings"
	"testing"
)

func TestDefaultCatalog(t *testing.T) {
	cat, err := DefaultCatalog()
	if err != nil {
		t.Fatalf("default catalog: %v", err)
	}
	if len(cat.Entries) != 12 {
		t.Fatalf("entries=%d want 12", len(cat.Entries))
	}
	late := 0
	for _, e := range cat.Entries {
		if e.LateGame {
			late++
		}
	}
	if late != 2 {
		t.Fatalf("late-game entries=%d want 2", late)
	}
}

func TestParseCatalogRejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"duplicate id", `
events:
  - {id: a, weight: 1, modifiers: [{target: market, attribute: total_market_size, op: mul, magnitude: 1.1}]}
  - {id: a, weight: 1, modifiers: [{target: market, attribute: total_market_size, op: mul, magnitude: 1.1}]}
`, "duplicate"},
		{"unknown attribute", `
events:
  - {id: a, weight: 1, modifiers: [{target: company, attribute: morale, op: add, magnitude: 1}]}
`, "unknown company attribute"},
		{"additive share", `
events:
  - {id: a, weight: 1, modifiers: [{target: company, attribute: market_share, op: add, magnitude: 0.05}]}
`, "market_share"},
		{"segment without id", `
events:
  - {id: a, weight: 1, modifiers: [{target: segment, attribute: size, op: add, magnitude: 0.1}]}
`, "segment is required"},
		{"zero weight", `
events:
  - {id: a, weight: 0, modifiers: [{target: market, attribute: total_market_size, op: mul, magnitude: 1.1}]}
`, "weight"},
		{"bad op", `
events:
  - {id: a, weight: 1, modifiers: [{target: market, attribute: total_market_size, op: pow, magnitude: 2}]}
`, "unknown op"},
	}
	for _, tc := range tests {
		_, err := ParseCatalog([]byte(tc.doc))
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: got %v want error containing %q", tc.name, err, tc.want)
		}
	}
}

func TestDrawEventsIsDeterministic(t *testing.T) {
	cat, _ := DefaultCatalog()
	tuning := DefaultTuning()
	for round := 1; round <= 10; round++ {
		a := DrawEvents(roundRand(99, round), cat, round, 10, map[string]int{}, tuning)
		b := DrawEvents(roundRand(99, round), cat, round, 10, map[string]int{}, tuning)
		if !reflect.DeepEqual(a, b) {
			t.Fatalf("round %d: draws differ: %v vs %v", round, a, b)
		}
	}
}

func TestDrawEventsOncePerGame(t *testing.T) {
	cat, _ := DefaultCatalog()
	tuning := DefaultTuning()
	for seed := int64(1); seed <= 25; seed++ {
		used := map[string]int{}
		for round := 1; round <= 10; round++ {
			events := DrawEvents(roundRand(seed, round), cat, round, 10, used, tuning)
			if len(events) > 2 {
				t.Fatalf("seed %d round %d drew %d events", seed, round, len(events))
			}
			seen := map[string]bool{}
			for _, ev := range events {
				if seen[ev.CatalogID] {
					t.Fatalf("seed %d round %d drew %s twice", seed, round, ev.CatalogID)
				}
				seen[ev.CatalogID] = true
				if _, fired := used[ev.CatalogID]; fired {
					t.Fatalf("seed %d round %d redrew %s", seed, round, ev.CatalogID)
				}
				if ev.Round != round {
					t.Fatalf("event round=%d want %d", ev.Round, round)
				}
				if round <= tuning.LateGameRound && (ev.CatalogID == "disruptive_competitor" || ev.CatalogID == "industry_consolidation") {
					t.Fatalf("late-game event %s drawn in round %d", ev.CatalogID, round)
				}
			}
			for _, ev := range events {
				used[ev.CatalogID] = round
			}
		}
	}
}

func TestDrawEventsRepeatable(t *testing.T) {
	cat := &Catalog{Entries: []CatalogEntry{{
		ID: "fad", Weight: 1, Repeatable: true,
		Modifiers: []Modifier{{Target: TargetMarket, Attribute: "total_market_size", Op: OpMultiplicative, Magnitude: 1}},
	}}}
	used := map[string]int{}
	fired := 0
	for round := 1; round <= 20; round++ {
		for _, ev := range DrawEvents(roundRand(5, round), cat, round, 20, used, DefaultTuning()) {
			used[ev.CatalogID] = round
			fired++
		}
	}
	if fired < 2 {
		t.Fatalf("repeatable event fired %d times", fired)
	}
}

func TestApplyMarketEventsRenormalizes(t *testing.T) {
	m := DefaultMarket()
	events := []Event{{
		ID: "e", Modifiers: []Modifier{
			{Target: TargetMarket, Attribute: "total_market_size", Op: OpMultiplicative, Magnitude: 0.9},
			{Target: TargetSegment, Segment: "budget", Attribute: "size", Op: OpAdditive, Magnitude: 0.15},
			{Target: TargetSegment, Segment: "premium", Attribute: "size", Op: OpAdditive, Magnitude: -0.1},
			{Target: TargetSegment, Segment: "unknown", Attribute: "size", Op: OpAdditive, Magnitude: 0.5},
		},
	}}
	if err := applyMarketEvents(&m, events); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if m.TotalMarketSize != 9_000_000 {
		t.Fatalf("market size=%f want 9000000", m.TotalMarketSize)
	}
	var sum float64
	for _, s := range m.Segments {
		sum += s.Size
	}
	if math.Abs(sum-1) > 1e-12 {
		t.Fatalf("segment sizes sum to %f", sum)
	}
	if m.Segments["budget"].Size <= m.Segments["premium"].Size {
		t.Fatalf("budget should outgrow premium: %+v", m.Segments)
	}
}

func TestApplyCompanyEventsSplitsOpeningAndOutcome(t *testing.T) {
	tuning := DefaultTuning()
	c := NewCompany("a", "A", tuning)
	events := []Event{{ID: "e", Modifiers: []Modifier{
		{Target: TargetCompany, Attribute: "brand_strength", Op: OpAdditive, Magnitude: -5},
		{Target: TargetCompany, Attribute: "customer_satisfaction", Op: OpAdditive, Magnitude: 5},
		{Target: TargetCompany, Attribute: "capital", Op: OpMultiplicative, Magnitude: 0.95},
	}}}
	if err := applyCompanyEvents([]*Company{c}, events, false, tuning); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if c.BrandStrength != 45 || c.CustomerSatisfaction != 50 || c.Capital != 475_000_000 {
		t.Fatalf("opening modifiers: brand=%f satisfaction=%f capital=%d", c.BrandStrength, c.CustomerSatisfaction, c.Capital)
	}
	if err := applyCompanyEvents([]*Company{c}, events, true, tuning); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if c.BrandStrength != 45 || c.CustomerSatisfaction != 55 {
		t.Fatalf("outcome modifiers: brand=%f satisfaction=%f", c.BrandStrength, c.CustomerSatisfaction)
	}
}

func TestEvolveMarketKeepsTrendsBounded(t *testing.T) {
	tuning := DefaultTuning()
	m := DefaultMarket()
	for round := 1; round <= 20; round++ {
		size := m.TotalMarketSize
		evolveMarket(&m, round, roundRand(3, round), tuning)
		if m.TotalMarketSize <= size {
			t.Fatalf("round %d: market did not grow", round)
		}
		for _, v := range []float64{m.Trends.InnovationPreference, m.Trends.SustainabilityImportance} {
			if v < 0.1 || v > 0.9 {
				t.Fatalf("round %d: trend %f out of bounds", round, v)
			}
		}
	}
	if m.Segments["premium"].Size <= 0.2 {
		t.Fatalf("premium share should grow late in the game, got %f", m.Segments["premium"].Size)
	}
}
