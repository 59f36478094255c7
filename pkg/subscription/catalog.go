package subscription

import (
	"fmt"
	"sort"
	"strings"

	"propman-be/internal/entity"
)

// Catalog is the read-only set of pricing tiers.
type Catalog struct {
	tiers map[string]entity.Tier
	free  entity.Tier
}

// NewCatalog validates the tier set: names must be unique and exactly one tier
// must be free and not trial eligible.
func NewCatalog(tiers ...entity.Tier) (*Catalog, error) {
	c := &Catalog{tiers: make(map[string]entity.Tier, len(tiers))}
	freeCount := 0
	for _, t := range tiers {
		key := strings.ToLower(strings.TrimSpace(t.Name))
		if key == "" {
			return nil, fmt.Errorf("tier name is required")
		}
		if _, exists := c.tiers[key]; exists {
			return nil, fmt.Errorf("duplicate tier %q", t.Name)
		}
		if t.IsFree() {
			if t.TrialEligible {
				return nil, fmt.Errorf("free tier %q cannot be trial eligible", t.Name)
			}
			freeCount++
			c.free = t
		}
		c.tiers[key] = t
	}
	if freeCount != 1 {
		return nil, fmt.Errorf("catalog must contain exactly one free tier, found %d", freeCount)
	}
	return c, nil
}

// DefaultCatalog returns the landlord pricing tiers. Prices are in KES.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(
		entity.Tier{
			Name:         "Free",
			Description:  "One property to get started",
			MonthlyPrice: 0,
			YearlyPrice:  0,
			Quotas: entity.Quotas{
				MaxProperties:      1,
				MaxRooms:           5,
				MaxVacancyListings: 1,
				MaxTopOffers:       0,
			},
			SortOrder: 0,
		},
		entity.Tier{
			Name:         "Bronze",
			Description:  "Small portfolios",
			MonthlyPrice: 1500,
			YearlyPrice:  15000,
			Quotas: entity.Quotas{
				MaxProperties:      3,
				MaxRooms:           30,
				MaxVacancyListings: 10,
				MaxTopOffers:       1,
			},
			TrialEligible: true,
			SortOrder:     1,
		},
		entity.Tier{
			Name:         "Silver",
			Description:  "Growing portfolios with featured listings",
			MonthlyPrice: 3000,
			YearlyPrice:  30000,
			Quotas: entity.Quotas{
				MaxProperties:      10,
				MaxRooms:           100,
				MaxVacancyListings: 30,
				MaxTopOffers:       5,
			},
			TrialEligible: true,
			SortOrder:     2,
		},
		entity.Tier{
			Name:         "Gold",
			Description:  "Agencies and large portfolios",
			MonthlyPrice: 6000,
			YearlyPrice:  60000,
			Quotas: entity.Quotas{
				MaxProperties:      entity.Unlimited,
				MaxRooms:           entity.Unlimited,
				MaxVacancyListings: entity.Unlimited,
				MaxTopOffers:       20,
			},
			TrialEligible: true,
			SortOrder:     3,
		},
	)
	if err != nil {
		panic(err)
	}
	return c
}

// Lookup finds a tier by name, ignoring case.
func (c *Catalog) Lookup(name string) (entity.Tier, bool) {
	t, ok := c.tiers[strings.ToLower(strings.TrimSpace(name))]
	return t, ok
}

// Find is like Lookup but returns an InvalidTierError for unknown names.
func (c *Catalog) Find(name string) (entity.Tier, error) {
	t, ok := c.Lookup(name)
	if !ok {
		return entity.Tier{}, &InvalidTierError{Tier: name, Reason: "unknown tier"}
	}
	return t, nil
}

func (c *Catalog) Free() entity.Tier {
	return c.free
}

// All returns every tier ordered for display.
func (c *Catalog) All() []entity.Tier {
	out := make([]entity.Tier, 0, len(c.tiers))
	for _, t := range c.tiers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].MonthlyPrice < out[j].MonthlyPrice
	})
	return out
}
