// Package catalog holds the fixed, weighted list of prizes the chest can reveal.
package catalog

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"chest/internal/models"

	"gopkg.in/yaml.v3"
)

var (
	ErrEmptyCatalog  = errors.New("catalog has no prizes")
	ErrMissingID     = errors.New("prize id is empty")
	ErrDuplicateID   = errors.New("prize id is not unique")
	ErrInvalidWeight = errors.New("prize weight must be a positive finite number")
)

// Catalog is immutable once built. The order of prizes is significant: it is
// the tie-break order of the weighted draw.
type Catalog struct {
	prizes []models.PrizeDefinition
	byID   map[string]int
	total  float64
}

// New validates prizes and returns a frozen catalog.
func New(prizes []models.PrizeDefinition) (*Catalog, error) {
	if len(prizes) == 0 {
		return nil, ErrEmptyCatalog
	}

	c := &Catalog{
		prizes: make([]models.PrizeDefinition, len(prizes)),
		byID:   make(map[string]int, len(prizes)),
	}
	copy(c.prizes, prizes)

	for i, p := range c.prizes {
		if strings.TrimSpace(p.ID) == "" {
			return nil, fmt.Errorf("prize #%d: %w", i, ErrMissingID)
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("prize %q: %w", p.ID, ErrDuplicateID)
		}
		if !(p.Weight > 0) || math.IsInf(p.Weight, 0) {
			return nil, fmt.Errorf("prize %q weight %v: %w", p.ID, p.Weight, ErrInvalidWeight)
		}
		c.byID[p.ID] = i
		c.total += p.Weight
	}
	if math.IsInf(c.total, 0) {
		return nil, fmt.Errorf("sum of weights overflows: %w", ErrInvalidWeight)
	}

	return c, nil
}

// MustNew is New for hardcoded catalogs; it panics on an invalid definition.
func MustNew(prizes []models.PrizeDefinition) *Catalog {
	c, err := New(prizes)
	if err != nil {
		panic(err)
	}
	return c
}

// All returns the prizes in catalog order.
func (c *Catalog) All() []models.PrizeDefinition {
	out := make([]models.PrizeDefinition, len(c.prizes))
	copy(out, c.prizes)
	return out
}

// Lookup resolves a persisted prize id.
func (c *Catalog) Lookup(id string) (models.PrizeDefinition, bool) {
	i, ok := c.byID[id]
	if !ok {
		return models.PrizeDefinition{}, false
	}
	return c.prizes[i], true
}

func (c *Catalog) Len() int { return len(c.prizes) }

// TotalWeight is the sum of all weights.
func (c *Catalog) TotalWeight() float64 { return c.total }

// Probability returns weight/total for id, or 0 for an unknown id.
func (c *Catalog) Probability(id string) float64 {
	p, ok := c.Lookup(id)
	if !ok {
		return 0
	}
	return p.Weight / c.total
}

type fileCatalog struct {
	Prizes []models.PrizeDefinition `yaml:"prizes"`
}

// Load reads a YAML catalog of the form
//
//	prizes:
//	  - id: BONO_100
//	    label: Bono del 100%
//	    weight: 40
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes a YAML catalog document.
func Parse(raw []byte) (*Catalog, error) {
	var doc fileCatalog
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return New(doc.Prizes)
}
