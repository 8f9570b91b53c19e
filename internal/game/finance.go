package game

import (
	"math"

	"github.com/shopspring/decimal"
)

// unitCost is the manufacturing cost of one unit. Richer specs cost more;
// R&D capability and quality control above the midpoint make production cheaper.
func unitCost(seg Segment, p Product, c *Company, t Tuning) decimal.Decimal {
	spec := (0.5 + p.Quality/ScaleMax) * (0.5 + p.Features/ScaleMax)
	rd := 1 - t.RDCostEffect*(c.RDCapability-50)/ScaleMax
	qc := 1 - t.QCCostEffect*(c.QualityControl-50)/ScaleMax
	return decimal.NewFromFloat(seg.BaseUnitCost * spec * rd * qc)
}

// Ledger is one company's money for the round.
type Ledger struct {
	Revenue       int64
	Manufacturing int64
	Marketing     int64
	Cost          int64
	Capitalized   int64
	Profit        int64
}

// settle prices the round's sales and spending and books the result into the company.
func settle(c *Company, m Market, d Decision, sales map[string]SegmentSales, t Tuning) Ledger {
	revenue := decimal.Zero
	manufacturing := decimal.Zero
	marketing := decimal.Zero
	for _, segID := range sortedKeys(c.Products) {
		p := c.Products[segID]
		if !p.Active {
			continue
		}
		seg := m.Segments[segID]
		s := sales[segID]
		r := decimal.NewFromInt(s.UnitsSold).Mul(decimal.NewFromFloat(p.Price)).Round(0)
		s.Revenue = r.IntPart()
		sales[segID] = s
		revenue = revenue.Add(r)
		manufacturing = manufacturing.Add(decimal.NewFromInt(p.ProductionVolume).Mul(unitCost(seg, p, c, t)))
		marketing = marketing.Add(decimal.NewFromInt(p.MarketingBudget))
	}
	manufacturing = manufacturing.Round(0)

	cost := manufacturing.Add(marketing).
		Add(decimal.NewFromInt(d.RD.Budget)).
		Add(decimal.NewFromInt(d.Operations.QualityInvestment)).
		Add(decimal.NewFromInt(t.FixedCost))
	capitalized := decimal.NewFromInt(d.Capitalized())
	profit := revenue.Sub(cost)

	l := Ledger{
		Revenue:       revenue.IntPart(),
		Manufacturing: manufacturing.IntPart(),
		Marketing:     marketing.IntPart(),
		Cost:          cost.IntPart(),
		Capitalized:   capitalized.IntPart(),
		Profit:        profit.IntPart(),
	}

	c.Revenue = l.Revenue
	c.Cost = l.Cost
	c.Investments = l.Capitalized
	c.Profit = l.Profit
	c.ProfitMargin = 0
	if !revenue.IsZero() {
		c.ProfitMargin = profit.Div(revenue).InexactFloat64()
	}
	c.ROI = 0
	if spent := cost.Add(capitalized); !spent.IsZero() {
		c.ROI = profit.Div(spent).InexactFloat64()
	}
	c.Capital = decimal.NewFromInt(c.Capital).Add(profit).Sub(capitalized).IntPart()
	c.Distressed = c.Capital < 0
	return l
}

// grow moves a 0..100 capability toward the top of the scale; each unit of
// spend buys less the closer the capability already is to 100.
func grow(current float64, spend int64, scale float64) float64 {
	if spend <= 0 {
		return clamp(current, ScaleMin, ScaleMax)
	}
	gain := (ScaleMax - current) * (1 - math.Exp(-float64(spend)/scale))
	return clamp(current+gain, ScaleMin, ScaleMax)
}

// develop updates operational, innovation and sustainability capabilities
// from the round's spending.
func develop(c *Company, d Decision, marketing int64, t Tuning) {
	var focusSum, focusSq float64
	for _, area := range sortedKeys(d.RD.Focus) {
		w := d.RD.Focus[area]
		focusSum += w
		focusSq += w * w
	}
	effective := int64(float64(d.RD.Budget) * (t.RDUnfocusedShare + (1-t.RDUnfocusedShare)*focusSum))
	c.RDCapability = grow(c.RDCapability, effective, t.RDScale)
	c.PatentPortfolio += float64(effective) / t.PatentCost * (c.RDEffectiveness / 50)
	if d.RD.Budget > 0 {
		concentration := 0.0
		if focusSum > 0 {
			concentration = focusSq / focusSum
		}
		target := 40 + 60*concentration
		c.RDEffectiveness = clamp(c.RDEffectiveness+0.2*(target-c.RDEffectiveness), ScaleMin, ScaleMax)
	}
	c.InnovationIndex = clamp(c.InnovationIndex+0.3*(c.RDCapability-c.InnovationIndex)+2*float64(c.Launches), ScaleMin, ScaleMax)

	c.QualityControl = grow(c.QualityControl, d.Operations.QualityInvestment, t.QualityScale)

	if d.Operations.CapacityInvestment > 0 && t.MaxCapacity > 0 {
		headroom := 1 - float64(c.ProductionCapacity)/float64(t.MaxCapacity)
		added := float64(d.Operations.CapacityInvestment) / t.CapacityUnitCost * math.Max(0, headroom)
		c.ProductionCapacity = int64(clamp(float64(c.ProductionCapacity)+math.Round(added), 0, float64(t.MaxCapacity)))
	}

	level := ScaleMax * (1 - math.Exp(-float64(marketing+d.Corporate.BrandInvestment)/t.BrandScale))
	target := 0.5*c.CustomerSatisfaction + 0.5*level
	c.BrandStrength = clamp(c.BrandStrength+t.BrandInertia*(target-c.BrandStrength), ScaleMin, ScaleMax)

	c.EnvironmentalImpact = grow(c.EnvironmentalImpact, d.Corporate.SustainabilityInvestment, t.SocialScale)
	c.CSRRating = grow(c.CSRRating, d.Corporate.CSRInvestment, t.SocialScale)
	c.EmployeeSatisfaction = grow(c.EmployeeSatisfaction, d.Corporate.EmployeeInvestment, t.SocialScale)
	c.CumulativeSustainability += d.Social()
}

// satisfy moves customer satisfaction toward what buyers experienced: spec
// versus segment expectations, price fairness and whether they could buy at all.
// Companies that sold into no segment keep their satisfaction.
func satisfy(c *Company, m Market, sales map[string]SegmentSales, allocated map[string]float64, t Tuning) {
	var weighted, weight float64
	for _, segID := range sortedKeys(sales) {
		p := c.Products[segID]
		seg := m.Segments[segID]
		gap := ((p.Quality - seg.ExpectedQuality) + (p.Features - seg.ExpectedFeatures)) / 2
		fairness := 0.5
		if seg.PriceCeiling > seg.PriceFloor {
			fairness = clamp((seg.PriceCeiling-p.Price)/(seg.PriceCeiling-seg.PriceFloor), 0, 1)
		}
		fill := 1.0
		if a := allocated[segID]; a >= 1 {
			fill = clamp(float64(sales[segID].UnitsSold)/a, 0, 1)
		}
		target := 50 + 0.8*gap + t.PriceFairnessWeight*(2*fairness-1) - t.StockoutPenalty*(1-fill)
		w := math.Max(1, allocated[segID])
		weighted += clamp(target, ScaleMin, ScaleMax) * w
		weight += w
	}
	if weight == 0 {
		return
	}
	target := weighted / weight
	c.CustomerSatisfaction = clamp(c.CustomerSatisfaction+t.SatisfactionInertia*(target-c.CustomerSatisfaction), ScaleMin, ScaleMax)
}

// countLaunches counts segments newly activated or materially respecified.
func countLaunches(before, after map[string]Product, t Tuning) int {
	n := 0
	for seg, p := range after {
		if !p.Active {
			continue
		}
		prev, ok := before[seg]
		if !ok || !prev.Active {
			n++
			continue
		}
		if math.Abs(p.Quality-prev.Quality) >= t.LaunchThreshold || math.Abs(p.Features-prev.Features) >= t.LaunchThreshold {
			n++
		}
	}
	return n
}

// fitCapacity scales active production volumes down proportionally when
// together they exceed the company's capacity.
func fitCapacity(products map[string]Product, capacity int64) {
	var total int64
	for _, p := range products {
		if p.Active {
			total += p.ProductionVolume
		}
	}
	if total <= capacity || total == 0 {
		return
	}
	ratio := float64(capacity) / float64(total)
	for _, seg := range sortedKeys(products) {
		p := products[seg]
		if !p.Active {
			continue
		}
		p.ProductionVolume = int64(math.Floor(float64(p.ProductionVolume) * ratio))
		products[seg] = p
	}
}
