package dto

import (
	"time"

	"github.com/google/uuid"
)

// Field names follow the existing client contract (camelCase).

type CreateSubscriptionRequest struct {
	Tier                  string `json:"tier" validate:"required,max=64"`
	DurationKind          string `json:"durationKind" validate:"omitempty,oneof=monthly yearly"`
	FreeTrial             bool   `json:"freeTrial"`
	FreeTrialDurationDays int    `json:"freeTrialDurationDays" validate:"omitempty,min=0,max=365"`
}

type QuotasResponse struct {
	MaxProperties      int `json:"maxProperties"`
	MaxRooms           int `json:"maxRooms"`
	MaxVacancyListings int `json:"maxVacancyListings"`
	MaxTopOffers       int `json:"maxTopOffers"`
}

type TierResponse struct {
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	MonthlyPrice  float64        `json:"monthlyPrice"`
	YearlyPrice   float64        `json:"yearlyPrice"`
	TrialEligible bool           `json:"trialEligible"`
	Quotas        QuotasResponse `json:"quotas"`
}

type SubscriptionResponse struct {
	Id                   *uuid.UUID     `json:"id,omitempty"`
	AccountId            uuid.UUID      `json:"accountId"`
	Tier                 string         `json:"tier"`
	DurationKind         string         `json:"durationKind"`
	IsFreeTrial          bool           `json:"isFreeTrial"`
	TrialEndDate         *time.Time     `json:"trialEndDate"`
	CycleStartDate       *time.Time     `json:"cycleStartDate"`
	CycleEndDate         *time.Time     `json:"cycleEndDate"`
	GraceEndDate         *time.Time     `json:"graceEndDate,omitempty"`
	State                string         `json:"state"`
	IsActive             bool           `json:"isActive"`
	RequiresPayment      bool           `json:"requiresPayment"`
	Banner               string         `json:"banner"`
	RemainingSeconds     int64          `json:"remainingSeconds"`
	LastPaymentAttemptId *uuid.UUID     `json:"lastPaymentAttemptId,omitempty"`
	Quotas               QuotasResponse `json:"quotas"`
}
