package game

// normalize maps each value onto 0..100 relative to the field. A field where
// everyone is equal scores 50 across the board.
func normalize(values []float64) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	for i, v := range values {
		if hi-lo < 1e-12 {
			out[i] = 50
			continue
		}
		out[i] = (v - lo) / (hi - lo) * ScaleMax
	}
	return out
}

type metric struct {
	weight float64
	value  func(*Company) float64
}

func blend(companies []*Company, metrics []metric) []float64 {
	out := make([]float64, len(companies))
	var total float64
	for _, m := range metrics {
		total += m.weight
	}
	if total == 0 {
		return out
	}
	for _, m := range metrics {
		raw := make([]float64, len(companies))
		for i, c := range companies {
			raw[i] = m.value(c)
		}
		for i, v := range normalize(raw) {
			out[i] += v * m.weight / total
		}
	}
	return out
}

// Score recomputes every company's balanced score from its post-round state.
// The result depends on the whole field, so all companies are scored together.
func Score(companies []*Company, t Tuning) {
	s := t.Scoring
	financial := blend(companies, []metric{
		{s.Revenue, func(c *Company) float64 { return float64(c.Revenue) }},
		{s.Margin, func(c *Company) float64 { return c.ProfitMargin }},
		{s.ROI, func(c *Company) float64 { return c.ROI }},
		{s.Reserve, func(c *Company) float64 { return float64(c.Capital) }},
	})
	market := blend(companies, []metric{
		{s.Share, func(c *Company) float64 { return c.MarketShare }},
		{s.Brand, func(c *Company) float64 { return c.BrandStrength }},
		{s.Satisfaction, func(c *Company) float64 { return c.CustomerSatisfaction }},
		{s.Breadth, func(c *Company) float64 { return float64(len(c.ActiveSegments())) }},
	})
	innovation := blend(companies, []metric{
		{s.RDCapability, func(c *Company) float64 { return c.RDCapability }},
		{s.Launches, func(c *Company) float64 { return float64(c.Launches) }},
		{s.Patents, func(c *Company) float64 { return c.PatentPortfolio }},
		{s.RDEffectiveness, func(c *Company) float64 { return c.RDEffectiveness }},
	})
	sustainability := blend(companies, []metric{
		{s.SocialInvestment, func(c *Company) float64 { return float64(c.CumulativeSustainability) }},
		{s.EnvironmentalImpact, func(c *Company) float64 { return c.EnvironmentalImpact }},
		{s.CSRRating, func(c *Company) float64 { return c.CSRRating }},
		{s.EmployeeSatisfaction, func(c *Company) float64 { return c.EmployeeSatisfaction }},
	})

	for i, c := range companies {
		c.Scores = Scores{
			Financial:      financial[i],
			Market:         market[i],
			Innovation:     innovation[i],
			Sustainability: sustainability[i],
		}
		c.Scores.Total = s.Financial*financial[i] + s.Market*market[i] +
			s.Innovation*innovation[i] + s.Sustainability*sustainability[i]
	}
}
