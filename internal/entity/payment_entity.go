// FILE: internal/entity/payment_entity.go
package entity

import (
	"time"

	"github.com/google/uuid"
)

type PaymentStatus string

const (
	PaymentStatusInitiated PaymentStatus = "initiated"
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusSuccess   PaymentStatus = "success"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusTimedOut  PaymentStatus = "timed_out"

	PaymentPurposeSubscription = "subscription"
)

// IsTerminal reports whether no further polling may happen for the status.
// timed_out is final for the poller even though the gateway may still settle.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusSuccess || s == PaymentStatusFailed || s == PaymentStatusTimedOut
}

// PaymentAttempt tracks one mobile-money charge from initiation to outcome.
type PaymentAttempt struct {
	Id                uuid.UUID
	AccountId         uuid.UUID
	TierName          string
	BillingCycle      BillingCycle
	CheckoutRequestId string // empty only while Status is initiated
	Phone             string
	Amount            float64
	Purpose           string
	Status            PaymentStatus
	AttemptCount      int
	CustomerMessage   string
	Gateway           string
	Metadata          map[string]interface{}
	CreatedAt         time.Time
	UpdatedAt         time.Time
	CompletedAt       *time.Time
}
