package specification

import (
	"propman-be/internal/entity"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ByAccount filters records owned by an account.
type ByAccount struct {
	AccountID uuid.UUID
}

func (s ByAccount) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("account_id = ?", s.AccountID)
}

func (s ByAccount) MatchSubscription(sub *entity.Subscription) bool {
	return sub.AccountId == s.AccountID
}

func (s ByAccount) MatchAttempt(a *entity.PaymentAttempt) bool {
	return a.AccountId == s.AccountID
}

// CurrentOnly keeps the non-superseded subscription record.
type CurrentOnly struct{}

func (s CurrentOnly) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("is_current = ?", true)
}

func (s CurrentOnly) MatchSubscription(sub *entity.Subscription) bool {
	return sub.IsCurrent
}

// WithTrial keeps records that ever carried a trial.
type WithTrial struct{}

func (s WithTrial) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("trial_end_date IS NOT NULL")
}

func (s WithTrial) MatchSubscription(sub *entity.Subscription) bool {
	return sub.TrialEndDate != nil
}

// ByCheckoutRequestID looks up an attempt by its gateway correlation id.
type ByCheckoutRequestID struct {
	CheckoutRequestID string
}

func (s ByCheckoutRequestID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("checkout_request_id = ?", s.CheckoutRequestID)
}

func (s ByCheckoutRequestID) MatchAttempt(a *entity.PaymentAttempt) bool {
	return a.CheckoutRequestId == s.CheckoutRequestID
}

// ByPaymentStatus filters attempts in any of the given statuses.
type ByPaymentStatus struct {
	Statuses []entity.PaymentStatus
}

func (s ByPaymentStatus) Apply(db *gorm.DB) *gorm.DB {
	values := make([]string, len(s.Statuses))
	for i, st := range s.Statuses {
		values[i] = string(st)
	}
	return db.Where("status IN ?", values)
}

func (s ByPaymentStatus) MatchAttempt(a *entity.PaymentAttempt) bool {
	for _, st := range s.Statuses {
		if a.Status == st {
			return true
		}
	}
	return false
}
