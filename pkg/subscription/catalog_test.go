package subscription

import (
	"testing"

	"propman-be/internal/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCatalog(t *testing.T) {
	free := entity.Tier{Name: "Free"}
	paid := entity.Tier{Name: "Pro", MonthlyPrice: 100, YearlyPrice: 1000, TrialEligible: true}

	tests := []struct {
		name    string
		tiers   []entity.Tier
		wantErr bool
	}{
		{name: "valid", tiers: []entity.Tier{free, paid}},
		{name: "no free tier", tiers: []entity.Tier{paid}, wantErr: true},
		{name: "two free tiers", tiers: []entity.Tier{free, {Name: "Basic"}}, wantErr: true},
		{name: "trial eligible free tier", tiers: []entity.Tier{{Name: "Free", TrialEligible: true}}, wantErr: true},
		{name: "duplicate names", tiers: []entity.Tier{free, paid, {Name: "pro", MonthlyPrice: 5}}, wantErr: true},
		{name: "blank name", tiers: []entity.Tier{free, {Name: " ", MonthlyPrice: 5}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCatalog(tt.tiers...)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()

	tier, ok := c.Lookup("  silver ")
	require.True(t, ok)
	assert.Equal(t, "Silver", tier.Name)
	assert.Equal(t, float64(3000), tier.PriceFor(entity.BillingCycleMonthly))
	assert.Equal(t, float64(30000), tier.PriceFor(entity.BillingCycleYearly))

	_, err := c.Find("platinum")
	assert.ErrorIs(t, err, ErrInvalidTier)

	all := c.All()
	require.Len(t, all, 4)
	assert.Equal(t, "Free", all[0].Name)
	assert.Equal(t, "Gold", all[3].Name)

	freeCount := 0
	for _, tr := range all {
		if tr.IsFree() {
			freeCount++
			assert.False(t, tr.TrialEligible)
		}
	}
	assert.Equal(t, 1, freeCount)
}
