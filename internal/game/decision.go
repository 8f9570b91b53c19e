package game

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"math"
	"sort"

	"github.com/shopspring/decimal"
)

// Decision is one participant's plan for one round. Segments missing from
// Products keep last round's product unchanged.
type Decision struct {
	Products   map[string]Product `json:"products"`
	RD         RDPlan             `json:"r_d"`
	Operations OperationsPlan     `json:"operations"`
	Corporate  CorporatePlan      `json:"corporate"`
}

type RDPlan struct {
	Budget int64              `json:"budget"`
	Focus  map[string]float64 `json:"focus"`
}

type OperationsPlan struct {
	CapacityInvestment int64 `json:"capacity_investment"`
	QualityInvestment  int64 `json:"quality_investment"`
}

type CorporatePlan struct {
	BrandInvestment          int64 `json:"brand_investment"`
	SustainabilityInvestment int64 `json:"sustainability_investment"`
	CSRInvestment            int64 `json:"csr_investment"`
	EmployeeInvestment       int64 `json:"employee_investment"`
}

// MaxAmount bounds every currency field and production volume of a decision.
const MaxAmount int64 = 1_000_000_000_000_000

// Capitalized is spending deducted from capital outside the cost line.
func (d Decision) Capitalized() int64 {
	return d.Operations.CapacityInvestment + d.Corporate.BrandInvestment +
		d.Corporate.SustainabilityInvestment + d.Corporate.CSRInvestment + d.Corporate.EmployeeInvestment
}

// Social is the sustainability, CSR and employee share of Capitalized.
func (d Decision) Social() int64 {
	return d.Corporate.SustainabilityInvestment + d.Corporate.CSRInvestment + d.Corporate.EmployeeInvestment
}

type amount struct {
	field string
	v     int64
}

func (d Decision) budgets() []amount {
	return []amount{
		{"r_d.budget", d.RD.Budget},
		{"operations.capacity_investment", d.Operations.CapacityInvestment},
		{"operations.quality_investment", d.Operations.QualityInvestment},
		{"corporate.brand_investment", d.Corporate.BrandInvestment},
		{"corporate.sustainability_investment", d.Corporate.SustainabilityInvestment},
		{"corporate.csr_investment", d.Corporate.CSRInvestment},
		{"corporate.employee_investment", d.Corporate.EmployeeInvestment},
	}
}

type wireDecision struct {
	Products   map[string]*wireProduct `json:"products"`
	RD         *wireRD                 `json:"r_d"`
	Operations *wireOperations         `json:"operations"`
	Corporate  *wireCorporate          `json:"corporate"`
}

type wireProduct struct {
	Active           *bool    `json:"active"`
	Price            *float64 `json:"price"`
	Quality          *float64 `json:"quality"`
	Features         *float64 `json:"features"`
	ProductionVolume *float64 `json:"production_volume"`
	MarketingBudget  *float64 `json:"marketing_budget"`
}

type wireRD struct {
	Budget *float64           `json:"budget"`
	Focus  map[string]float64 `json:"focus"`
}

type wireOperations struct {
	CapacityInvestment *float64 `json:"capacity_investment"`
	QualityInvestment  *float64 `json:"quality_investment"`
}

type wireCorporate struct {
	BrandInvestment          *float64 `json:"brand_investment"`
	SustainabilityInvestment *float64 `json:"sustainability_investment"`
	CSRInvestment            *float64 `json:"csr_investment"`
	EmployeeInvestment       *float64 `json:"employee_investment"`
}

// DecodeDecision strictly parses a submitted payload. Unknown fields,
// non-numeric values and fields missing from a present section are rejected.
func DecodeDecision(raw []byte) (Decision, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var w wireDecision
	if err := dec.Decode(&w); err != nil {
		return Decision{}, decodeError(err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return Decision{}, invalid("", "payload must contain a single JSON object")
	}

	var d Decision
	if w.Products != nil {
		d.Products = make(map[string]Product, len(w.Products))
		for _, seg := range sortedKeys(w.Products) {
			p, err := w.Products[seg].product("products." + seg)
			if err != nil {
				return Decision{}, err
			}
			d.Products[seg] = p
		}
	}
	if w.RD != nil {
		budget, err := money("r_d.budget", w.RD.Budget)
		if err != nil {
			return Decision{}, err
		}
		d.RD = RDPlan{Budget: budget, Focus: w.RD.Focus}
	}
	if w.Operations != nil {
		var err error
		if d.Operations.CapacityInvestment, err = money("operations.capacity_investment", w.Operations.CapacityInvestment); err != nil {
			return Decision{}, err
		}
		if d.Operations.QualityInvestment, err = money("operations.quality_investment", w.Operations.QualityInvestment); err != nil {
			return Decision{}, err
		}
	}
	if w.Corporate != nil {
		c := w.Corporate
		fields := []struct {
			name string
			src  *float64
			dst  *int64
		}{
			{"corporate.brand_investment", c.BrandInvestment, &d.Corporate.BrandInvestment},
			{"corporate.sustainability_investment", c.SustainabilityInvestment, &d.Corporate.SustainabilityInvestment},
			{"corporate.csr_investment", c.CSRInvestment, &d.Corporate.CSRInvestment},
			{"corporate.employee_investment", c.EmployeeInvestment, &d.Corporate.EmployeeInvestment},
		}
		for _, f := range fields {
			v, err := money(f.name, f.src)
			if err != nil {
				return Decision{}, err
			}
			*f.dst = v
		}
	}
	return d, nil
}

func (w *wireProduct) product(field string) (Product, error) {
	if w == nil {
		return Product{}, invalid(field, "product must be an object")
	}
	if w.Active == nil {
		return Product{}, invalid(field+".active", "is required")
	}
	p := Product{Active: *w.Active}
	required := p.Active
	num := func(name string, v *float64) (float64, error) {
		if v == nil {
			if required {
				return 0, invalid(field+"."+name, "is required for an active product")
			}
			return 0, nil
		}
		return *v, nil
	}
	var err error
	if p.Price, err = num("price", w.Price); err != nil {
		return Product{}, err
	}
	if p.Quality, err = num("quality", w.Quality); err != nil {
		return Product{}, err
	}
	if p.Features, err = num("features", w.Features); err != nil {
		return Product{}, err
	}
	volume, err := num("production_volume", w.ProductionVolume)
	if err != nil {
		return Product{}, err
	}
	if volume < 0 || volume != math.Trunc(volume) || volume > float64(MaxAmount) {
		return Product{}, invalid(field+".production_volume", "must be a non-negative whole number")
	}
	p.ProductionVolume = int64(volume)
	marketing, err := num("marketing_budget", w.MarketingBudget)
	if err != nil {
		return Product{}, err
	}
	if p.MarketingBudget, err = money(field+".marketing_budget", &marketing); err != nil {
		return Product{}, err
	}
	return p, nil
}

// money rounds a currency amount to whole units.
func money(field string, v *float64) (int64, error) {
	if v == nil {
		return 0, invalid(field, "is required")
	}
	if *v < 0 {
		return 0, invalid(field, "must not be negative")
	}
	if *v > float64(MaxAmount) {
		return 0, invalid(field, "is out of range")
	}
	return decimal.NewFromFloat(*v).Round(0).IntPart(), nil
}

func decodeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return invalid(typeErr.Field, "must be a %s, got %s", typeErr.Type, typeErr.Value)
	}
	return invalid("", "malformed payload: %v", err)
}

// ValidateDecision checks a decision against the company's current position
// and the market it competes in.
func ValidateDecision(d Decision, c *Company, m Market, t Tuning) error {
	for _, seg := range sortedKeys(d.Products) {
		if _, ok := m.Segments[seg]; !ok {
			return invalid("products."+seg, "unknown segment")
		}
		if err := validateProduct("products."+seg, d.Products[seg], t); err != nil {
			return err
		}
	}

	for _, b := range d.budgets() {
		if b.v < 0 {
			return invalid(b.field, "must not be negative")
		}
		if b.v > MaxAmount {
			return invalid(b.field, "is out of range")
		}
	}

	var focusSum float64
	known := make(map[string]bool, len(TechAreas))
	for _, area := range TechAreas {
		known[area] = true
	}
	for _, area := range sortedKeys(d.RD.Focus) {
		w := d.RD.Focus[area]
		if !known[area] {
			return invalid("r_d.focus."+area, "unknown technology area")
		}
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return invalid("r_d.focus."+area, "must be a non-negative number")
		}
		focusSum += w
	}
	if focusSum > 1+1e-9 {
		return invalid("r_d.focus", "weights sum to %.4f, must not exceed 1", focusSum)
	}

	spend, err := PlannedSpend(d, c, m, t)
	if err != nil {
		return err
	}
	if spend.IsPositive() && spend.GreaterThan(decimal.NewFromInt(c.Capital)) {
		return invalid("", "planned spend %s exceeds available capital %d", spend.StringFixed(0), c.Capital)
	}
	return nil
}

func validateProduct(field string, p Product, t Tuning) error {
	for name, v := range map[string]float64{"price": p.Price, "quality": p.Quality, "features": p.Features} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return invalid(field+"."+name, "must be a finite number")
		}
	}
	if p.Active && p.Price <= 0 {
		return invalid(field+".price", "must be greater than 0")
	}
	if p.Price < 0 || p.Price > t.MaxPrice {
		return invalid(field+".price", "must be at most %.2f", t.MaxPrice)
	}
	if p.Quality < ScaleMin || p.Quality > ScaleMax {
		return invalid(field+".quality", "must be within %.0f..%.0f", ScaleMin, ScaleMax)
	}
	if p.Features < ScaleMin || p.Features > ScaleMax {
		return invalid(field+".features", "must be within %.0f..%.0f", ScaleMin, ScaleMax)
	}
	if p.ProductionVolume < 0 {
		return invalid(field+".production_volume", "must not be negative")
	}
	if p.ProductionVolume > MaxAmount {
		return invalid(field+".production_volume", "is out of range")
	}
	if p.MarketingBudget < 0 {
		return invalid(field+".marketing_budget", "must not be negative")
	}
	if p.MarketingBudget > MaxAmount {
		return invalid(field+".marketing_budget", "is out of range")
	}
	return nil
}

// PlannedSpend is the cash a decision commits: manufacturing and marketing
// for every product active after the decision, plus all budgets.
func PlannedSpend(d Decision, c *Company, m Market, t Tuning) (decimal.Decimal, error) {
	products := mergeProducts(c.Products, d.Products)
	total := decimal.Zero
	for _, b := range d.budgets() {
		total = total.Add(decimal.NewFromInt(b.v))
	}
	for _, seg := range sortedKeys(products) {
		p := products[seg]
		if !p.Active {
			continue
		}
		s, ok := m.Segments[seg]
		if !ok {
			return decimal.Zero, invalid("products."+seg, "unknown segment")
		}
		unit := unitCost(s, p, c, t)
		total = total.Add(decimal.NewFromInt(p.ProductionVolume).Mul(unit)).Add(decimal.NewFromInt(p.MarketingBudget))
	}
	return total, nil
}

// NoChange is the decision used for a participant with nothing usable on
// record: current products kept, no discretionary spending.
func NoChange(c *Company) Decision {
	return Decision{Products: mergeProducts(c.Products, nil)}
}

func mergeProducts(current, changes map[string]Product) map[string]Product {
	out := make(map[string]Product, len(current)+len(changes))
	for k, v := range current {
		out[k] = v
	}
	for k, v := range changes {
		out[k] = v
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
