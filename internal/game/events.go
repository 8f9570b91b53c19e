package game

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/shopspring/decimal"
)

const roundSeedStride = 1_000_003

// roundRand derives the generator for one round from the game seed, so any
// round can be replayed from the seed alone.
func roundRand(seed int64, round int) *rand.Rand {
	return rand.New(rand.NewSource(seed + int64(round)*roundSeedStride))
}

// intensity runs from 0 in the first round to 1 in the last.
func intensity(round, total int) float64 {
	if total <= 1 {
		return 1
	}
	return clamp(float64(round-1)/float64(total-1), 0, 1)
}

// eventCount draws how many events fire: zero is likely early, two is likely late.
func eventCount(rng *rand.Rand, round, total int) int {
	i := intensity(round, total)
	pNone := 0.4 - 0.3*i
	pTwo := 0.1 + 0.4*i
	r := rng.Float64()
	switch {
	case r < pNone:
		return 0
	case r < 1-pTwo:
		return 1
	default:
		return 2
	}
}

// DrawEvents selects this round's events without replacement. Entries in used
// are skipped unless repeatable; late-game entries unlock after LateGameRound.
func DrawEvents(rng *rand.Rand, cat *Catalog, round, total int, used map[string]int, t Tuning) []Event {
	n := eventCount(rng, round, total)
	if n == 0 || cat == nil {
		return nil
	}
	i := intensity(round, total)

	type candidate struct {
		entry  CatalogEntry
		weight float64
	}
	var pool []candidate
	for _, e := range cat.Entries {
		if _, fired := used[e.ID]; fired && !e.Repeatable {
			continue
		}
		if e.LateGame && round <= t.LateGameRound {
			continue
		}
		w := e.Weight
		if e.Heavy {
			w *= 1 + t.HeavyEventBias*i
		}
		pool = append(pool, candidate{entry: e, weight: w})
	}

	var out []Event
	for len(out) < n && len(pool) > 0 {
		var sum float64
		for _, c := range pool {
			sum += c.weight
		}
		r := rng.Float64() * sum
		pick := len(pool) - 1
		for idx, c := range pool {
			if r < c.weight {
				pick = idx
				break
			}
			r -= c.weight
		}
		e := pool[pick].entry
		pool = append(pool[:pick], pool[pick+1:]...)
		mods := make([]Modifier, len(e.Modifiers))
		copy(mods, e.Modifiers)
		out = append(out, Event{
			ID:          fmt.Sprintf("%s-r%d", e.ID, round),
			CatalogID:   e.ID,
			Round:       round,
			Title:       e.Title,
			Description: e.Description,
			Modifiers:   mods,
		})
	}
	return out
}

func (m Modifier) apply(v float64) float64 {
	if m.Op == OpMultiplicative {
		return v * m.Magnitude
	}
	return v + m.Magnitude
}

// applyMarketEvents applies market modifiers, then segment modifiers, and
// renormalizes segment sizes when any of them moved.
func applyMarketEvents(m *Market, events []Event) error {
	for _, ev := range events {
		for _, mod := range ev.Modifiers {
			if mod.Target != TargetMarket {
				continue
			}
			switch mod.Attribute {
			case "total_market_size":
				m.TotalMarketSize = math.Max(0, mod.apply(m.TotalMarketSize))
			case "market_growth_rate":
				m.MarketGrowthRate = clamp(mod.apply(m.MarketGrowthRate), -0.5, 1)
			case "innovation_preference":
				m.Trends.InnovationPreference = clamp(mod.apply(m.Trends.InnovationPreference), 0.1, 0.9)
			case "sustainability_importance":
				m.Trends.SustainabilityImportance = clamp(mod.apply(m.Trends.SustainabilityImportance), 0.1, 0.9)
			default:
				return fmt.Errorf("event %s: unknown market attribute %q", ev.ID, mod.Attribute)
			}
		}
	}

	resized := false
	for _, ev := range events {
		for _, mod := range ev.Modifiers {
			if mod.Target != TargetSegment {
				continue
			}
			s, ok := m.Segments[mod.Segment]
			if !ok {
				continue
			}
			switch mod.Attribute {
			case "size":
				s.Size = math.Max(0.01, mod.apply(s.Size))
				resized = true
			case "price_sensitivity":
				s.PriceSensitivity = clamp(mod.apply(s.PriceSensitivity), 0, 1)
			case "quality_importance":
				s.QualityImportance = clamp(mod.apply(s.QualityImportance), 0, 1)
			case "feature_importance":
				s.FeatureImportance = clamp(mod.apply(s.FeatureImportance), 0, 1)
			case "brand_importance":
				s.BrandImportance = clamp(mod.apply(s.BrandImportance), 0, 1)
			case "base_unit_cost":
				s.BaseUnitCost = math.Max(0, mod.apply(s.BaseUnitCost))
			default:
				return fmt.Errorf("event %s: unknown segment attribute %q", ev.ID, mod.Attribute)
			}
			m.Segments[mod.Segment] = s
		}
	}
	if resized {
		m.normalizeSizes()
	}
	return nil
}

func (m *Market) normalizeSizes() {
	var total float64
	for _, id := range m.SegmentIDs() {
		total += m.Segments[id].Size
	}
	if total <= 0 {
		return
	}
	for _, id := range m.SegmentIDs() {
		s := m.Segments[id]
		s.Size /= total
		m.Segments[id] = s
	}
}

// outcomeAttributes are computed during resolution, so their modifiers
// perturb the result rather than the opening position.
var outcomeAttributes = map[string]bool{
	"customer_satisfaction": true,
	"market_share":          true,
}

// applyCompanyEvents applies company modifiers to every company. With
// outcomes false it touches opening-position attributes only; with outcomes
// true only the computed ones.
func applyCompanyEvents(companies []*Company, events []Event, outcomes bool, t Tuning) error {
	for _, ev := range events {
		for _, mod := range ev.Modifiers {
			if mod.Target != TargetCompany || outcomeAttributes[mod.Attribute] != outcomes {
				continue
			}
			for _, c := range companies {
				if err := applyCompanyModifier(c, mod, t); err != nil {
					return fmt.Errorf("event %s: %w", ev.ID, err)
				}
			}
		}
	}
	return nil
}

func applyCompanyModifier(c *Company, mod Modifier, t Tuning) error {
	scaled := func(v *float64) { *v = clamp(mod.apply(*v), ScaleMin, ScaleMax) }
	switch mod.Attribute {
	case "capital":
		c.Capital = decimal.NewFromFloat(mod.apply(float64(c.Capital))).Round(0).IntPart()
		c.Distressed = c.Capital < 0
	case "production_capacity":
		v := clamp(mod.apply(float64(c.ProductionCapacity)), 0, float64(t.MaxCapacity))
		c.ProductionCapacity = int64(math.Round(v))
	case "market_share":
		c.MarketShare = clamp(mod.apply(c.MarketShare), 0, 1)
	case "brand_strength":
		scaled(&c.BrandStrength)
	case "r_d_capability":
		scaled(&c.RDCapability)
	case "quality_control":
		scaled(&c.QualityControl)
	case "customer_satisfaction":
		scaled(&c.CustomerSatisfaction)
	case "innovation_index":
		scaled(&c.InnovationIndex)
	case "environmental_impact":
		scaled(&c.EnvironmentalImpact)
	case "csr_rating":
		scaled(&c.CSRRating)
	case "employee_satisfaction":
		scaled(&c.EmployeeSatisfaction)
	default:
		return fmt.Errorf("unknown company attribute %q", mod.Attribute)
	}
	return nil
}

// evolveMarket applies end-of-round growth, the late-game premium shift and
// seeded trend drift.
func evolveMarket(m *Market, round int, rng *rand.Rand, t Tuning) {
	m.TotalMarketSize *= 1 + m.MarketGrowthRate

	if round > t.LateGameRound {
		if s, ok := m.Segments["premium"]; ok {
			s.Size += t.PremiumShift
			m.Segments["premium"] = s
			m.normalizeSizes()
		}
	}
	if round > t.TrendRiseRound {
		m.Trends.InnovationPreference += t.TrendRise
		m.Trends.SustainabilityImportance += t.TrendRise
	}
	m.Trends.InnovationPreference = clamp(m.Trends.InnovationPreference+(rng.Float64()*2-1)*t.TrendDrift, 0.1, 0.9)
	m.Trends.SustainabilityImportance = clamp(m.Trends.SustainabilityImportance+(rng.Float64()*2-1)*t.TrendDrift, 0.1, 0.9)
}
