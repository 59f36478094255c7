// FILE: internal/entity/subscription_entity.go
package entity

import (
	"time"

	"github.com/google/uuid"
)

type SubscriptionState string
type BillingCycle string

const (
	StateNoSubscription SubscriptionState = "no_subscription"
	StateFree           SubscriptionState = "free"
	StateTrialActive    SubscriptionState = "trial_active"
	StateTrialExpiring  SubscriptionState = "trial_expiring"
	StateTrialExpired   SubscriptionState = "trial_expired"
	StatePaidActive     SubscriptionState = "paid_active"
	StatePaidExpiring   SubscriptionState = "paid_expiring"
	StatePaidExpired    SubscriptionState = "paid_expired"

	BillingCycleMonthly BillingCycle = "monthly"
	BillingCycleYearly  BillingCycle = "yearly"
)

// Unlimited marks a quota without an upper bound.
const Unlimited = -1

// IsValid reports whether the cycle is one of the known billing cycles.
func (c BillingCycle) IsValid() bool {
	return c == BillingCycleMonthly || c == BillingCycleYearly
}

// Quotas are the feature allowances a tier grants.
type Quotas struct {
	MaxProperties      int
	MaxRooms           int
	MaxVacancyListings int
	MaxTopOffers       int
}

// Tier is an immutable, catalog-defined pricing plan.
type Tier struct {
	Name          string
	Description   string
	MonthlyPrice  float64
	YearlyPrice   float64
	Quotas        Quotas
	TrialEligible bool
	SortOrder     int
}

func (t Tier) IsFree() bool {
	return t.MonthlyPrice == 0 && t.YearlyPrice == 0
}

// PriceFor returns the charge for one billing cycle of the tier.
func (t Tier) PriceFor(cycle BillingCycle) float64 {
	if cycle == BillingCycleYearly {
		return t.YearlyPrice
	}
	return t.MonthlyPrice
}

// Subscription is one account's subscription record. Only one record per
// account is current; superseded records are kept for history.
type Subscription struct {
	Id                   uuid.UUID
	AccountId            uuid.UUID
	TierName             string
	BillingCycle         BillingCycle
	IsFreeTrial          bool
	TrialEndDate         *time.Time
	CycleStartDate       *time.Time
	CycleEndDate         *time.Time
	State                SubscriptionState // snapshot written by reconciliation
	IsActive             bool              // derived from State, cached for queries
	IsCurrent            bool
	SupersededAt         *time.Time
	LastPaymentAttemptId *uuid.UUID
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// HasPaidCycle reports whether the record carries paid cycle dates.
func (s Subscription) HasPaidCycle() bool {
	return s.CycleStartDate != nil && s.CycleEndDate != nil
}
