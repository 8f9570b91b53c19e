package game

import (
	"math"
	"testing"
)

func TestSettleWithoutRevenue(t *testing.T) {
	tuning := DefaultTuning()
	c := company("a", onlyBudget(Product{Active: false}))
	d := Decision{RD: RDPlan{Budget: 5_000_000}, Corporate: CorporatePlan{BrandInvestment: 1_000_000}}

	l := settle(c, DefaultMarket(), d, map[string]SegmentSales{}, tuning)
	if l.Revenue != 0 || c.Revenue != 0 {
		t.Fatalf("revenue=%d want 0", c.Revenue)
	}
	if c.ProfitMargin != 0 {
		t.Fatalf("margin=%f want 0 without revenue", c.ProfitMargin)
	}
	wantCost := int64(5_000_000) + tuning.FixedCost
	if c.Cost != wantCost {
		t.Fatalf("cost=%d want %d", c.Cost, wantCost)
	}
	wantCapital := tuning.StartingCapital - wantCost - 1_000_000
	if c.Capital != wantCapital {
		t.Fatalf("capital=%d want %d", c.Capital, wantCapital)
	}
	if c.Investments != 1_000_000 {
		t.Fatalf("investments=%d want 1000000", c.Investments)
	}
}

func TestSettleRevenueAndDistress(t *testing.T) {
	tuning := DefaultTuning()
	c := company("a", onlyBudget(Product{Active: true, Price: 199, Quality: 40, Features: 30, ProductionVolume: 1000}))
	c.Capital = 1000
	sales := map[string]SegmentSales{"budget": {Demand: 5000, UnitsSold: 1000, MarketShare: 1}}

	settle(c, DefaultMarket(), Decision{}, sales, tuning)
	if c.Revenue != 199_000 || sales["budget"].Revenue != 199_000 {
		t.Fatalf("revenue=%d segment=%d want 199000", c.Revenue, sales["budget"].Revenue)
	}
	// 1000 units at 100 * 0.9 * 0.8 each.
	if want := 72_000 + tuning.FixedCost; c.Cost != want {
		t.Fatalf("cost=%d want %d", c.Cost, want)
	}
	if c.Profit != c.Revenue-c.Cost {
		t.Fatalf("profit=%d want %d", c.Profit, c.Revenue-c.Cost)
	}
	if !c.Distressed || c.Capital >= 0 {
		t.Fatalf("expected distress, capital=%d", c.Capital)
	}
	wantMargin := float64(c.Profit) / float64(c.Revenue)
	if math.Abs(c.ProfitMargin-wantMargin) > 1e-9 {
		t.Fatalf("margin=%f want %f", c.ProfitMargin, wantMargin)
	}
}

func TestUnitCostFallsWithCapability(t *testing.T) {
	tuning := DefaultTuning()
	seg := DefaultMarket().Segments["mid_range"]
	p := Product{Quality: 60, Features: 60}
	weak := NewCompany("a", "A", tuning)
	strong := NewCompany("b", "B", tuning)
	strong.RDCapability, strong.QualityControl = 90, 90
	if !unitCost(seg, p, strong, tuning).LessThan(unitCost(seg, p, weak, tuning)) {
		t.Fatalf("higher capability should make production cheaper")
	}
}

func TestGrowHasDiminishingReturns(t *testing.T) {
	const spend, scale = 50_000_000, 100_000_000
	low := grow(20, spend, scale) - 20
	high := grow(80, spend, scale) - 80
	if !(low > high && high > 0) {
		t.Fatalf("gain at 20=%f at 80=%f", low, high)
	}
	if got := grow(99, math.MaxInt64/4, scale); got > ScaleMax {
		t.Fatalf("grow exceeded scale: %f", got)
	}
	if got := grow(42, 0, scale); got != 42 {
		t.Fatalf("grow without spend=%f want 42", got)
	}
}

func TestDevelopClampsCapacity(t *testing.T) {
	tuning := DefaultTuning()
	c := NewCompany("a", "A", tuning)
	c.ProductionCapacity = tuning.MaxCapacity - 10
	develop(c, Decision{Operations: OperationsPlan{CapacityInvestment: 1_000_000_000_000}}, 0, tuning)
	if c.ProductionCapacity > tuning.MaxCapacity {
		t.Fatalf("capacity=%d above max %d", c.ProductionCapacity, tuning.MaxCapacity)
	}
}

func TestDevelopAccumulatesSustainability(t *testing.T) {
	tuning := DefaultTuning()
	c := NewCompany("a", "A", tuning)
	d := Decision{Corporate: CorporatePlan{SustainabilityInvestment: 5_000_000, CSRInvestment: 2_000_000, EmployeeInvestment: 1_000_000, BrandInvestment: 9_000_000}}
	develop(c, d, 0, tuning)
	if c.CumulativeSustainability != 8_000_000 {
		t.Fatalf("cumulative=%d want 8000000", c.CumulativeSustainability)
	}
	if c.EnvironmentalImpact <= 50 || c.CSRRating <= 50 || c.EmployeeSatisfaction <= 50 {
		t.Fatalf("ratings did not improve: %+v", c)
	}
}

func TestSatisfyWithoutSalesKeepsSatisfaction(t *testing.T) {
	c := NewCompany("a", "A", DefaultTuning())
	c.CustomerSatisfaction = 63
	satisfy(c, DefaultMarket(), map[string]SegmentSales{}, map[string]float64{}, DefaultTuning())
	if c.CustomerSatisfaction != 63 {
		t.Fatalf("satisfaction=%f want 63", c.CustomerSatisfaction)
	}
}

func TestSatisfyPenalizesStockouts(t *testing.T) {
	tuning := DefaultTuning()
	market := DefaultMarket()
	products := onlyBudget(Product{Active: true, Price: 199, Quality: 35, Features: 30})

	served := company("a", products)
	served.Products = products
	satisfy(served, market, map[string]SegmentSales{"budget": {UnitsSold: 1000}}, map[string]float64{"budget": 1000}, tuning)

	short := company("b", products)
	satisfy(short, market, map[string]SegmentSales{"budget": {UnitsSold: 100}}, map[string]float64{"budget": 1000}, tuning)

	if short.CustomerSatisfaction >= served.CustomerSatisfaction {
		t.Fatalf("stockout satisfaction %f should be below %f", short.CustomerSatisfaction, served.CustomerSatisfaction)
	}
}

func TestFitCapacity(t *testing.T) {
	products := map[string]Product{
		"premium":   {Active: true, ProductionVolume: 600_000},
		"mid_range": {Active: true, ProductionVolume: 400_000},
		"budget":    {Active: false, ProductionVolume: 1_000_000},
	}
	fitCapacity(products, 500_000)
	if products["premium"].ProductionVolume != 300_000 || products["mid_range"].ProductionVolume != 200_000 {
		t.Fatalf("scaled volumes %+v", products)
	}
	if products["budget"].ProductionVolume != 1_000_000 {
		t.Fatalf("inactive volume must be untouched")
	}
}

func TestCountLaunches(t *testing.T) {
	before := map[string]Product{
		"premium":   {Active: false},
		"mid_range": {Active: true, Quality: 60, Features: 60},
		"budget":    {Active: false},
	}
	after := map[string]Product{
		"premium":   {Active: false},
		"mid_range": {Active: true, Quality: 75, Features: 60},
		"budget":    {Active: true, Quality: 30, Features: 30},
	}
	if got := countLaunches(before, after, DefaultTuning()); got != 2 {
		t.Fatalf("launches=%d want 2", got)
	}
	if got := countLaunches(after, after, DefaultTuning()); got != 0 {
		t.Fatalf("unchanged portfolio launches=%d want 0", got)
	}
}
