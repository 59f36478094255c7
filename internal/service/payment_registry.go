package service

import (
	"sync"
	"time"

	"propman-be/internal/entity"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// attemptRegistry tracks charges this instance is confirming, and keeps
// recently settled ones around for status reads.
type attemptRegistry struct {
	mu       sync.Mutex
	inflight *cache.Cache // account id -> checkout request id
	recent   *cache.Cache // checkout request id -> entity.PaymentAttempt
}

func newAttemptRegistry(inflightTTL, recentTTL time.Duration) *attemptRegistry {
	return &attemptRegistry{
		inflight: cache.New(inflightTTL, time.Minute),
		recent:   cache.New(recentTTL, 5*time.Minute),
	}
}

func (r *attemptRegistry) track(attempt entity.PaymentAttempt) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inflight.SetDefault(attempt.AccountId.String(), attempt.CheckoutRequestId)
	r.recent.SetDefault(attempt.CheckoutRequestId, attempt)
}

func (r *attemptRegistry) complete(attempt entity.PaymentAttempt) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recent.SetDefault(attempt.CheckoutRequestId, attempt)
	if v, found := r.inflight.Get(attempt.AccountId.String()); found && v.(string) == attempt.CheckoutRequestId {
		r.inflight.Delete(attempt.AccountId.String())
	}
}

func (r *attemptRegistry) inflightFor(accountId uuid.UUID) string {
	if v, found := r.inflight.Get(accountId.String()); found {
		return v.(string)
	}
	return ""
}

func (r *attemptRegistry) get(checkoutRequestId string) (entity.PaymentAttempt, bool) {
	if v, found := r.recent.Get(checkoutRequestId); found {
		return v.(entity.PaymentAttempt), true
	}
	return entity.PaymentAttempt{}, false
}
