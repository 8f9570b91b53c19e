package game

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed events.yaml
var defaultCatalog []byte

type CatalogEntry struct {
	ID          string     `yaml:"id"`
	Title       string     `yaml:"title"`
	Description string     `yaml:"description"`
	Weight      float64    `yaml:"weight"`
	Heavy       bool       `yaml:"heavy"`
	LateGame    bool       `yaml:"late_game"`
	Repeatable  bool       `yaml:"repeatable"`
	Modifiers   []Modifier `yaml:"modifiers"`
}

type Catalog struct {
	Entries []CatalogEntry `yaml:"events"`
}

var marketAttributes = map[string]bool{
	"total_market_size":         true,
	"market_growth_rate":        true,
	"innovation_preference":     true,
	"sustainability_importance": true,
}

var segmentAttributes = map[string]bool{
	"size":               true,
	"price_sensitivity":  true,
	"quality_importance": true,
	"feature_importance": true,
	"brand_importance":   true,
	"base_unit_cost":     true,
}

var companyAttributes = map[string]bool{
	"capital":               true,
	"brand_strength":        true,
	"r_d_capability":        true,
	"production_capacity":   true,
	"quality_control":       true,
	"customer_satisfaction": true,
	"market_share":          true,
	"innovation_index":      true,
	"environmental_impact":  true,
	"csr_rating":            true,
	"employee_satisfaction": true,
}

func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

// LoadCatalog reads a catalog file, falling back to the embedded one when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read event catalog: %w", err)
	}
	return ParseCatalog(data)
}

func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse event catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) Validate() error {
	seen := make(map[string]bool, len(c.Entries))
	for i, e := range c.Entries {
		if e.ID == "" {
			return fmt.Errorf("event catalog entry %d: id is required", i)
		}
		if seen[e.ID] {
			return fmt.Errorf("event catalog entry %q: duplicate id", e.ID)
		}
		seen[e.ID] = true
		if e.Weight <= 0 {
			return fmt.Errorf("event catalog entry %q: weight must be positive", e.ID)
		}
		if len(e.Modifiers) == 0 {
			return fmt.Errorf("event catalog entry %q: at least one modifier is required", e.ID)
		}
		for _, m := range e.Modifiers {
			if err := m.validate(); err != nil {
				return fmt.Errorf("event catalog entry %q: %w", e.ID, err)
			}
		}
	}
	return nil
}

func (m Modifier) validate() error {
	if m.Op != OpAdditive && m.Op != OpMultiplicative {
		return fmt.Errorf("modifier %s: unknown op %q", m.Attribute, m.Op)
	}
	if m.Op == OpMultiplicative && m.Magnitude < 0 {
		return fmt.Errorf("modifier %s: multiplicative magnitude must not be negative", m.Attribute)
	}
	switch m.Target {
	case TargetMarket:
		if !marketAttributes[m.Attribute] {
			return fmt.Errorf("modifier: unknown market attribute %q", m.Attribute)
		}
	case TargetSegment:
		if m.Segment == "" {
			return fmt.Errorf("modifier %s: segment is required", m.Attribute)
		}
		if !segmentAttributes[m.Attribute] {
			return fmt.Errorf("modifier: unknown segment attribute %q", m.Attribute)
		}
	case TargetCompany:
		if !companyAttributes[m.Attribute] {
			return fmt.Errorf("modifier: unknown company attribute %q", m.Attribute)
		}
		// Company share is a fraction of contested demand, so it may only shrink.
		if m.Attribute == "market_share" && (m.Op != OpMultiplicative || m.Magnitude > 1) {
			return fmt.Errorf("modifier market_share: only multiplicative magnitudes up to 1 are allowed")
		}
	default:
		return fmt.Errorf("modifier %s: unknown target %q", m.Attribute, m.Target)
	}
	return nil
}
