package specification

import (
	"propman-be/internal/entity"

	"gorm.io/gorm"
)

// Specification defines the interface for query specifications
type Specification interface {
	Apply(db *gorm.DB) *gorm.DB
}

// SubscriptionMatcher lets the in-memory store evaluate a specification.
type SubscriptionMatcher interface {
	MatchSubscription(s *entity.Subscription) bool
}

// AttemptMatcher lets the in-memory store evaluate a specification.
type AttemptMatcher interface {
	MatchAttempt(a *entity.PaymentAttempt) bool
}
