package payment

import (
	"sync"
	"time"

	"propman-be/internal/entity"

	"github.com/patrickmn/go-cache"
)

// CallbackResult is a gateway-pushed outcome for one checkout request.
type CallbackResult struct {
	CheckoutRequestId string
	Status            entity.PaymentStatus
	ResultCode        string
	ResultDesc        string
	ReceiptNumber     string
	Amount            float64
	ReceivedAt        time.Time
}

// CallbackStore keeps pushed outcomes as hints. A hint only wakes the poller
// for an early status query; the gateway's answer stays authoritative.
// Entries expire on their own.
type CallbackStore struct {
	cache *cache.Cache

	mu      sync.Mutex
	waiters map[string]chan struct{}
}

func NewCallbackStore(ttl time.Duration) *CallbackStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CallbackStore{
		cache:   cache.New(ttl, 2*ttl),
		waiters: make(map[string]chan struct{}),
	}
}

// Record stores a terminal result and wakes anyone waiting on it.
// Non-terminal and repeated results are ignored.
func (s *CallbackStore) Record(result CallbackResult) {
	if result.CheckoutRequestId == "" || !result.Status.IsTerminal() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, found := s.cache.Get(result.CheckoutRequestId); found {
		return
	}
	s.cache.SetDefault(result.CheckoutRequestId, result)
	if ch, ok := s.waiters[result.CheckoutRequestId]; ok {
		close(ch)
		delete(s.waiters, result.CheckoutRequestId)
	}
}

func (s *CallbackStore) Get(checkoutRequestId string) (CallbackResult, bool) {
	v, found := s.cache.Get(checkoutRequestId)
	if !found {
		return CallbackResult{}, false
	}
	return v.(CallbackResult), true
}

// Signal returns a channel closed once a result for checkoutRequestId has
// been recorded. Callers that stop waiting must call Forget.
func (s *CallbackStore) Signal(checkoutRequestId string) <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, found := s.cache.Get(checkoutRequestId); found {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	ch, ok := s.waiters[checkoutRequestId]
	if !ok {
		ch = make(chan struct{})
		s.waiters[checkoutRequestId] = ch
	}
	return ch
}

func (s *CallbackStore) Forget(checkoutRequestId string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.waiters, checkoutRequestId)
}
