package game

import (
	"sort"
	"time"
)

const (
	MaxParticipants = 5
	MaxRounds       = 20

	ScaleMin = 0.0
	ScaleMax = 100.0
)

type Phase string

const (
	PhaseAwaitingDecisions Phase = "awaiting_decisions"
	PhaseResolving         Phase = "resolving"
	PhaseResolved          Phase = "resolved"
	PhaseFinished          Phase = "finished"
)

// Technology areas a company may focus R&D spending on.
var TechAreas = []string{"battery", "camera", "display", "processor", "software"}

type Game struct {
	ID            string              `json:"id"`
	Participants  []string            `json:"participants"`
	Round         int                 `json:"round"`
	TotalRounds   int                 `json:"total_rounds"`
	Phase         Phase               `json:"phase"`
	Seed          int64               `json:"seed"`
	Companies     map[string]*Company `json:"companies"`
	Market        Market              `json:"market"`
	Pending       map[string]Decision `json:"pending"`
	UsedEvents    map[string]int      `json:"used_events"`
	History       []RoundResult       `json:"history"`
	Version       int64               `json:"version"`
	CreatedAt     time.Time           `json:"created_at"`
	RoundOpenedAt time.Time           `json:"round_opened_at"`
}

func (g *Game) Finished() bool {
	return g.Phase == PhaseFinished
}

// Missing lists participants that have not submitted for the current round.
func (g *Game) Missing() []string {
	var out []string
	for _, id := range g.Participants {
		if _, ok := g.Pending[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// LastResult returns the most recent round record, or nil before the first resolution.
func (g *Game) LastResult() *RoundResult {
	if len(g.History) == 0 {
		return nil
	}
	return &g.History[len(g.History)-1]
}

type Company struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	Capital      int64   `json:"capital"`
	Revenue      int64   `json:"revenue"`
	Cost         int64   `json:"cost"`
	Investments  int64   `json:"investments"`
	Profit       int64   `json:"profit"`
	ProfitMargin float64 `json:"profit_margin"`
	ROI          float64 `json:"roi"`
	Distressed   bool    `json:"distressed"`

	BrandStrength      float64 `json:"brand_strength"`
	RDCapability       float64 `json:"r_d_capability"`
	ProductionCapacity int64   `json:"production_capacity"`
	QualityControl     float64 `json:"quality_control"`

	MarketShare          float64 `json:"market_share"`
	CustomerSatisfaction float64 `json:"customer_satisfaction"`

	PatentPortfolio float64 `json:"patent_portfolio"`
	InnovationIndex float64 `json:"innovation_index"`
	RDEffectiveness float64 `json:"r_d_effectiveness"`
	Launches        int     `json:"launches"`

	EnvironmentalImpact      float64 `json:"environmental_impact"`
	CSRRating                float64 `json:"csr_rating"`
	EmployeeSatisfaction     float64 `json:"employee_satisfaction"`
	CumulativeSustainability int64   `json:"cumulative_sustainability"`

	Products  map[string]Product `json:"products"`
	Scores    Scores             `json:"scores"`
	Decisions map[int]Decision   `json:"decisions"`
}

// ActiveSegments returns the sorted ids of segments with an active product.
func (c *Company) ActiveSegments() []string {
	var out []string
	for id, p := range c.Products {
		if p.Active {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Snapshot copies the company without its decision history, for round records.
func (c *Company) Snapshot() Company {
	out := *c
	out.Products = make(map[string]Product, len(c.Products))
	for k, v := range c.Products {
		out.Products[k] = v
	}
	out.Decisions = nil
	return out
}

type Product struct {
	Active           bool    `json:"active"`
	Price            float64 `json:"price"`
	Quality          float64 `json:"quality"`
	Features         float64 `json:"features"`
	ProductionVolume int64   `json:"production_volume"`
	MarketingBudget  int64   `json:"marketing_budget"`
}

type Scores struct {
	Financial      float64 `json:"financial"`
	Market         float64 `json:"market"`
	Innovation     float64 `json:"innovation"`
	Sustainability float64 `json:"sustainability"`
	Total          float64 `json:"total"`
}

type Market struct {
	TotalMarketSize  float64            `json:"total_market_size"`
	MarketGrowthRate float64            `json:"market_growth_rate"`
	Trends           Trends             `json:"trends"`
	Segments         map[string]Segment `json:"segments"`
}

// SegmentIDs returns segment ids in a stable order so float accumulation is reproducible.
func (m *Market) SegmentIDs() []string {
	ids := make([]string, 0, len(m.Segments))
	for id := range m.Segments {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type Trends struct {
	InnovationPreference     float64 `json:"innovation_preference"`
	SustainabilityImportance float64 `json:"sustainability_importance"`
}

type Segment struct {
	Size              float64       `json:"size"`
	PriceSensitivity  float64       `json:"price_sensitivity"`
	QualityImportance float64       `json:"quality_importance"`
	FeatureImportance float64       `json:"feature_importance"`
	BrandImportance   float64       `json:"brand_importance"`
	PriceFloor        float64       `json:"price_floor"`
	PriceCeiling      float64       `json:"price_ceiling"`
	BaseUnitCost      float64       `json:"base_unit_cost"`
	ExpectedQuality   float64       `json:"expected_quality"`
	ExpectedFeatures  float64       `json:"expected_features"`
	Weights           FactorWeights `json:"weights"`
}

// FactorWeights are the per-segment weights of each attractiveness factor.
type FactorWeights struct {
	Price        float64 `json:"price" toml:"price"`
	Quality      float64 `json:"quality" toml:"quality"`
	Features     float64 `json:"features" toml:"features"`
	Brand        float64 `json:"brand" toml:"brand"`
	Marketing    float64 `json:"marketing" toml:"marketing"`
	Satisfaction float64 `json:"satisfaction" toml:"satisfaction"`
}

type Event struct {
	ID          string     `json:"id"`
	CatalogID   string     `json:"catalog_id"`
	Round       int        `json:"round"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Modifiers   []Modifier `json:"modifiers"`
}

type Target string

const (
	TargetMarket  Target = "market"
	TargetSegment Target = "segment"
	TargetCompany Target = "company"
)

type Operation string

const (
	OpAdditive       Operation = "add"
	OpMultiplicative Operation = "mul"
)

type Modifier struct {
	Target    Target    `json:"target" yaml:"target"`
	Segment   string    `json:"segment,omitempty" yaml:"segment"`
	Attribute string    `json:"attribute" yaml:"attribute"`
	Op        Operation `json:"op" yaml:"op"`
	Magnitude float64   `json:"magnitude" yaml:"magnitude"`
}

type RoundResult struct {
	Round      int                                `json:"round"`
	Decisions  map[string]Decision                `json:"decisions"`
	CarriedFor []string                           `json:"carried_for"`
	Sales      map[string]map[string]SegmentSales `json:"sales"`
	Segments   map[string]SegmentOutcome          `json:"segments"`
	Events     []Event                            `json:"events"`
	Companies  map[string]Company                 `json:"companies"`
	Rankings   []Ranking                          `json:"rankings"`
	ResolvedAt time.Time                          `json:"resolved_at"`
}

type SegmentSales struct {
	Demand         int64   `json:"demand"`
	UnitsSold      int64   `json:"units_sold"`
	Revenue        int64   `json:"revenue"`
	MarketShare    float64 `json:"market_share"`
	Attractiveness float64 `json:"attractiveness"`
}

type SegmentOutcome struct {
	Demand    int64 `json:"demand"`
	UnitsSold int64 `json:"units_sold"`
	Forfeited int64 `json:"forfeited"`
	Active    int   `json:"active"`
}

type Ranking struct {
	Rank           int     `json:"rank"`
	ParticipantID  string  `json:"participant_id"`
	Name           string  `json:"name"`
	Total          float64 `json:"total"`
	Financial      float64 `json:"financial"`
	Market         float64 `json:"market"`
	Innovation     float64 `json:"innovation"`
	Sustainability float64 `json:"sustainability"`
}

// Rank orders companies by total score, ties broken by participant order.
func Rank(g *Game) []Ranking {
	out := make([]Ranking, 0, len(g.Participants))
	for _, id := range g.Participants {
		c, ok := g.Companies[id]
		if !ok {
			continue
		}
		out = append(out, Ranking{
			ParticipantID:  id,
			Name:           c.Name,
			Total:          c.Scores.Total,
			Financial:      c.Scores.Financial,
			Market:         c.Scores.Market,
			Innovation:     c.Scores.Innovation,
			Sustainability: c.Scores.Sustainability,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Total > out[j].Total })
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
