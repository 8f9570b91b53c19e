package game

import "math"

// Allocation is the outcome of splitting every segment's demand.
type Allocation struct {
	// Sales is keyed by company id, then segment id. Only active products appear.
	Sales    map[string]map[string]SegmentSales
	Segments map[string]SegmentOutcome
	// Allocated is the pre-cap unit demand each company attracted, for stockout accounting.
	Allocated map[string]map[string]float64
}

// SegmentDemand is the unit demand of one segment for the round.
func SegmentDemand(m Market, seg Segment) int64 {
	return int64(math.Round(m.TotalMarketSize * seg.Size * (1 + m.MarketGrowthRate)))
}

// Attractiveness scores one product in one segment. lo and hi are the lowest
// and highest prices among the segment's active products this round.
func Attractiveness(seg Segment, trends Trends, p Product, c *Company, lo, hi float64, t Tuning) float64 {
	w := seg.Weights

	relative := 1.0
	if hi > lo {
		relative = (hi - p.Price) / (hi - lo)
	}
	reference := 1.0
	if seg.PriceCeiling > seg.PriceFloor {
		reference = clamp((seg.PriceCeiling-p.Price)/(seg.PriceCeiling-seg.PriceFloor), 0, 1)
	}
	position := clamp(t.RelativePriceBlend*relative+(1-t.RelativePriceBlend)*reference, 0, 1)
	price := math.Pow(position, seg.PriceSensitivity)

	quality := math.Pow(clamp(p.Quality, ScaleMin, ScaleMax)/ScaleMax, seg.QualityImportance)
	features := math.Pow(clamp(p.Features, ScaleMin, ScaleMax)/ScaleMax, seg.FeatureImportance)
	brand := math.Pow(clamp(c.BrandStrength, ScaleMin, ScaleMax)/ScaleMax, seg.BrandImportance)
	marketing := math.Min(1, math.Log1p(float64(p.MarketingBudget)/t.MarketingScale)/math.Log1p(t.MarketingReference/t.MarketingScale))
	satisfaction := clamp(c.CustomerSatisfaction, ScaleMin, ScaleMax) / ScaleMax

	score := w.Price*price + w.Quality*quality + w.Features*features +
		w.Brand*brand + w.Marketing*marketing + w.Satisfaction*satisfaction
	score += t.InnovationBonus * c.InnovationIndex / ScaleMax * trends.InnovationPreference
	score += t.SustainabilityBonus * c.EnvironmentalImpact / ScaleMax * trends.SustainabilityImportance

	if math.IsNaN(score) || score < t.AttractivenessFloor {
		return t.AttractivenessFloor
	}
	return score
}

// Allocate splits each segment's demand among the companies active in it in
// proportion to attractiveness. Units sold are capped at production volume;
// demand nobody serves is forfeited.
func Allocate(m Market, companies []*Company, t Tuning) Allocation {
	out := Allocation{
		Sales:     make(map[string]map[string]SegmentSales, len(companies)),
		Segments:  make(map[string]SegmentOutcome, len(m.Segments)),
		Allocated: make(map[string]map[string]float64, len(companies)),
	}
	for _, c := range companies {
		out.Sales[c.ID] = map[string]SegmentSales{}
		out.Allocated[c.ID] = map[string]float64{}
	}

	for _, segID := range m.SegmentIDs() {
		seg := m.Segments[segID]
		demand := SegmentDemand(m, seg)

		var active []*Company
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, c := range companies {
			p, ok := c.Products[segID]
			if !ok || !p.Active {
				continue
			}
			active = append(active, c)
			lo = math.Min(lo, p.Price)
			hi = math.Max(hi, p.Price)
		}
		outcome := SegmentOutcome{Demand: demand, Active: len(active)}
		if len(active) == 0 {
			outcome.Forfeited = demand
			out.Segments[segID] = outcome
			continue
		}

		scores := make([]float64, len(active))
		var sum float64
		for i, c := range active {
			scores[i] = Attractiveness(seg, m.Trends, c.Products[segID], c, lo, hi, t)
			sum += scores[i]
		}
		for i, c := range active {
			p := c.Products[segID]
			share := scores[i] / sum
			allocated := share * float64(demand)
			sold := int64(math.Floor(allocated + 1e-9))
			if sold > p.ProductionVolume {
				sold = p.ProductionVolume
			}
			out.Sales[c.ID][segID] = SegmentSales{
				Demand:         demand,
				UnitsSold:      sold,
				MarketShare:    share,
				Attractiveness: scores[i],
			}
			out.Allocated[c.ID][segID] = allocated
			outcome.UnitsSold += sold
		}
		outcome.Forfeited = demand - outcome.UnitsSold
		out.Segments[segID] = outcome
	}
	return out
}

// companyShare is the fraction of contested demand a company converted into
// sales, smoothed against last round. A company with no active segment has no share.
func companyShare(c *Company, sales map[string]SegmentSales, firstRound bool, t Tuning) float64 {
	var sold, contested int64
	for _, s := range sales {
		sold += s.UnitsSold
		contested += s.Demand
	}
	if contested == 0 {
		return 0
	}
	raw := float64(sold) / float64(contested)
	if firstRound {
		return clamp(raw, 0, 1)
	}
	return clamp(t.ShareSmoothing*raw+(1-t.ShareSmoothing)*c.MarketShare, 0, 1)
}
