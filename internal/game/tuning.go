package game

import (
	"fmt"
	"math"
)

// Tuning holds every coefficient of the round model. Zero values are not
// meaningful; start from DefaultTuning and override.
type Tuning struct {
	StartingCapital  int64   `toml:"starting_capital"`
	StartingCapacity int64   `toml:"starting_capacity"`
	MaxCapacity      int64   `toml:"max_capacity"`
	MaxPrice         float64 `toml:"max_price"`
	FixedCost        int64   `toml:"fixed_cost"`

	ShareSmoothing      float64 `toml:"share_smoothing"`
	AttractivenessFloor float64 `toml:"attractiveness_floor"`
	RelativePriceBlend  float64 `toml:"relative_price_blend"`
	MarketingScale      float64 `toml:"marketing_scale"`
	MarketingReference  float64 `toml:"marketing_reference"`
	InnovationBonus     float64 `toml:"innovation_bonus"`
	SustainabilityBonus float64 `toml:"sustainability_bonus"`

	RDScale          float64 `toml:"rd_scale"`
	RDUnfocusedShare float64 `toml:"rd_unfocused_share"`
	PatentCost       float64 `toml:"patent_cost"`
	QualityScale     float64 `toml:"quality_scale"`
	BrandScale       float64 `toml:"brand_scale"`
	BrandInertia     float64 `toml:"brand_inertia"`
	SocialScale      float64 `toml:"social_scale"`
	CapacityUnitCost float64 `toml:"capacity_unit_cost"`
	RDCostEffect     float64 `toml:"rd_cost_effect"`
	QCCostEffect     float64 `toml:"qc_cost_effect"`

	SatisfactionInertia float64 `toml:"satisfaction_inertia"`
	StockoutPenalty     float64 `toml:"stockout_penalty"`
	PriceFairnessWeight float64 `toml:"price_fairness_weight"`
	LaunchThreshold     float64 `toml:"launch_threshold"`

	LateGameRound  int     `toml:"late_game_round"`
	TrendRiseRound int     `toml:"trend_rise_round"`
	PremiumShift   float64 `toml:"premium_shift"`
	TrendRise      float64 `toml:"trend_rise"`
	TrendDrift     float64 `toml:"trend_drift"`
	HeavyEventBias float64 `toml:"heavy_event_bias"`

	Scoring ScoringTuning `toml:"scoring"`
}

type ScoringTuning struct {
	Financial      float64 `toml:"financial"`
	Market         float64 `toml:"market"`
	Innovation     float64 `toml:"innovation"`
	Sustainability float64 `toml:"sustainability"`

	Revenue float64 `toml:"revenue"`
	Margin  float64 `toml:"margin"`
	ROI     float64 `toml:"roi"`
	Reserve float64 `toml:"reserve"`

	Share        float64 `toml:"share"`
	Brand        float64 `toml:"brand"`
	Satisfaction float64 `toml:"satisfaction"`
	Breadth      float64 `toml:"breadth"`

	RDCapability    float64 `toml:"rd_capability"`
	Launches        float64 `toml:"launches"`
	Patents         float64 `toml:"patents"`
	RDEffectiveness float64 `toml:"rd_effectiveness"`

	SocialInvestment     float64 `toml:"social_investment"`
	EnvironmentalImpact  float64 `toml:"environmental_impact"`
	CSRRating            float64 `toml:"csr_rating"`
	EmployeeSatisfaction float64 `toml:"employee_satisfaction"`
}

func DefaultTuning() Tuning {
	return Tuning{
		StartingCapital:  500_000_000,
		StartingCapacity: 500_000,
		MaxCapacity:      5_000_000,
		MaxPrice:         5_000,
		FixedCost:        10_000_000,

		ShareSmoothing:      0.7,
		AttractivenessFloor: 1e-6,
		RelativePriceBlend:  0.5,
		MarketingScale:      5_000_000,
		MarketingReference:  50_000_000,
		InnovationBonus:     0.05,
		SustainabilityBonus: 0.05,

		RDScale:          475_000_000,
		RDUnfocusedShare: 0.6,
		PatentCost:       100_000_000,
		QualityScale:     95_000_000,
		BrandScale:       40_000_000,
		BrandInertia:     0.25,
		SocialScale:      47_500_000,
		CapacityUnitCost: 200,
		RDCostEffect:     0.2,
		QCCostEffect:     0.1,

		SatisfactionInertia: 0.5,
		StockoutPenalty:     20,
		PriceFairnessWeight: 10,
		LaunchThreshold:     10,

		LateGameRound:  5,
		TrendRiseRound: 8,
		PremiumShift:   0.01,
		TrendRise:      0.02,
		TrendDrift:     0.05,
		HeavyEventBias: 2,

		Scoring: ScoringTuning{
			Financial:      0.4,
			Market:         0.3,
			Innovation:     0.2,
			Sustainability: 0.1,

			Revenue: 0.3,
			Margin:  0.3,
			ROI:     0.2,
			Reserve: 0.2,

			Share:        0.4,
			Brand:        0.3,
			Satisfaction: 0.2,
			Breadth:      0.1,

			RDCapability:    0.3,
			Launches:        0.2,
			Patents:         0.3,
			RDEffectiveness: 0.2,

			SocialInvestment:     0.4,
			EnvironmentalImpact:  0.2,
			CSRRating:            0.2,
			EmployeeSatisfaction: 0.2,
		},
	}
}

func (t Tuning) Validate() error {
	positive := map[string]float64{
		"max_price":            t.MaxPrice,
		"attractiveness_floor": t.AttractivenessFloor,
		"marketing_scale":      t.MarketingScale,
		"marketing_reference":  t.MarketingReference,
		"rd_scale":             t.RDScale,
		"patent_cost":          t.PatentCost,
		"quality_scale":        t.QualityScale,
		"brand_scale":          t.BrandScale,
		"social_scale":         t.SocialScale,
		"capacity_unit_cost":   t.CapacityUnitCost,
	}
	for name, v := range positive {
		if !(v > 0) || math.IsInf(v, 0) {
			return fmt.Errorf("tuning %s must be positive", name)
		}
	}
	fractions := map[string]float64{
		"share_smoothing":      t.ShareSmoothing,
		"relative_price_blend": t.RelativePriceBlend,
		"rd_unfocused_share":   t.RDUnfocusedShare,
		"brand_inertia":        t.BrandInertia,
		"satisfaction_inertia": t.SatisfactionInertia,
	}
	for name, v := range fractions {
		if v < 0 || v > 1 || math.IsNaN(v) {
			return fmt.Errorf("tuning %s must be within 0..1", name)
		}
	}
	if t.StartingCapacity < 0 || t.MaxCapacity < t.StartingCapacity {
		return fmt.Errorf("tuning capacity bounds are inconsistent")
	}
	s := t.Scoring
	if sum := s.Financial + s.Market + s.Innovation + s.Sustainability; math.Abs(sum-1) > 1e-9 {
		return fmt.Errorf("tuning scoring category weights sum to %.4f, want 1", sum)
	}
	return nil
}

// DefaultMarket is the opening market every new game starts from.
func DefaultMarket() Market {
	return Market{
		TotalMarketSize:  10_000_000,
		MarketGrowthRate: 0.05,
		Trends: Trends{
			InnovationPreference:     0.5,
			SustainabilityImportance: 0.4,
		},
		Segments: map[string]Segment{
			"premium": {
				Size: 0.2, PriceSensitivity: 0.3, QualityImportance: 0.8, FeatureImportance: 0.9, BrandImportance: 0.7,
				PriceFloor: 699, PriceCeiling: 1499, BaseUnitCost: 300,
				ExpectedQuality: 80, ExpectedFeatures: 85,
				Weights: FactorWeights{Price: 0.15, Quality: 0.25, Features: 0.25, Brand: 0.15, Marketing: 0.10, Satisfaction: 0.10},
			},
			"mid_range": {
				Size: 0.5, PriceSensitivity: 0.6, QualityImportance: 0.6, FeatureImportance: 0.6, BrandImportance: 0.5,
				PriceFloor: 299, PriceCeiling: 699, BaseUnitCost: 200,
				ExpectedQuality: 60, ExpectedFeatures: 60,
				Weights: FactorWeights{Price: 0.25, Quality: 0.20, Features: 0.18, Brand: 0.12, Marketing: 0.13, Satisfaction: 0.12},
			},
			"budget": {
				Size: 0.3, PriceSensitivity: 0.9, QualityImportance: 0.4, FeatureImportance: 0.3, BrandImportance: 0.3,
				PriceFloor: 99, PriceCeiling: 299, BaseUnitCost: 100,
				ExpectedQuality: 35, ExpectedFeatures: 30,
				Weights: FactorWeights{Price: 0.40, Quality: 0.15, Features: 0.08, Brand: 0.07, Marketing: 0.15, Satisfaction: 0.15},
			},
		},
	}
}

// NewCompany returns the opening position of a participant.
func NewCompany(id, name string, t Tuning) *Company {
	return &Company{
		ID:                   id,
		Name:                 name,
		Capital:              t.StartingCapital,
		BrandStrength:        50,
		RDCapability:         50,
		ProductionCapacity:   t.StartingCapacity,
		QualityControl:       50,
		CustomerSatisfaction: 50,
		InnovationIndex:      50,
		RDEffectiveness:      50,
		EnvironmentalImpact:  50,
		CSRRating:            50,
		EmployeeSatisfaction: 50,
		Products: map[string]Product{
			"premium":   {Active: false, Price: 999, Quality: 80, Features: 80, ProductionVolume: 100_000},
			"mid_range": {Active: true, Price: 499, Quality: 60, Features: 60, ProductionVolume: 200_000, MarketingBudget: 20_000_000},
			"budget":    {Active: false, Price: 199, Quality: 40, Features: 30, ProductionVolume: 300_000},
		},
		Decisions: map[int]Decision{},
	}
}
