package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"propman-be/internal/entity"
	"propman-be/internal/repository/contract"
	"propman-be/internal/repository/specification"
	"propman-be/internal/repository/unitofwork"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// Store keeps subscriptions and payment attempts in process. It backs
// STORE_DRIVER=memory and the service tests. Transactions are not isolated:
// writes are visible immediately and Rollback does not undo them.
type Store struct {
	mu            sync.RWMutex
	subscriptions *cache.Cache
	attempts      *cache.Cache
	now           func() time.Time
}

func NewStore() *Store {
	return &Store{
		subscriptions: cache.New(cache.NoExpiration, 0),
		attempts:      cache.New(cache.NoExpiration, 0),
		now:           time.Now,
	}
}

// NewRepositoryFactory exposes the store through the unit of work contract.
func (s *Store) NewRepositoryFactory() unitofwork.RepositoryFactory {
	return &repositoryFactory{store: s}
}

type repositoryFactory struct {
	store *Store
}

func (f *repositoryFactory) NewUnitOfWork(ctx context.Context) unitofwork.UnitOfWork {
	return &unitOfWork{store: f.store}
}

type unitOfWork struct {
	store *Store
	inTx  bool
}

func (u *unitOfWork) Begin(ctx context.Context) error {
	if u.inTx {
		return fmt.Errorf("transaction already started")
	}
	u.inTx = true
	return nil
}

func (u *unitOfWork) Commit() error {
	if !u.inTx {
		return fmt.Errorf("no transaction to commit")
	}
	u.inTx = false
	return nil
}

func (u *unitOfWork) Rollback() error {
	u.inTx = false
	return nil
}

func (u *unitOfWork) SubscriptionRepository() contract.SubscriptionRepository {
	return &subscriptionRepository{store: u.store}
}

func (u *unitOfWork) PaymentAttemptRepository() contract.PaymentAttemptRepository {
	return &paymentAttemptRepository{store: u.store}
}

type subscriptionRepository struct {
	store *Store
}

func (r *subscriptionRepository) Create(ctx context.Context, sub *entity.Subscription) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if sub.Id == uuid.Nil {
		sub.Id = uuid.New()
	}
	if _, found := r.store.subscriptions.Get(sub.Id.String()); found {
		return fmt.Errorf("subscription %s already exists", sub.Id)
	}
	now := r.store.now()
	sub.CreatedAt, sub.UpdatedAt = now, now
	r.store.subscriptions.Set(sub.Id.String(), *sub, cache.NoExpiration)
	return nil
}

func (r *subscriptionRepository) Update(ctx context.Context, sub *entity.Subscription) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	prev, found := r.store.subscriptions.Get(sub.Id.String())
	if !found {
		return fmt.Errorf("subscription %s not found", sub.Id)
	}
	sub.CreatedAt = prev.(entity.Subscription).CreatedAt
	sub.UpdatedAt = r.store.now()
	r.store.subscriptions.Set(sub.Id.String(), *sub, cache.NoExpiration)
	return nil
}

func (r *subscriptionRepository) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.Subscription, error) {
	all, err := r.FindAll(ctx, specs...)
	if err != nil || len(all) == 0 {
		return nil, err
	}
	return all[0], nil
}

func (r *subscriptionRepository) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Subscription, error) {
	r.store.mu.RLock()
	items := r.store.subscriptions.Items()
	r.store.mu.RUnlock()

	var out []*entity.Subscription
	for _, item := range items {
		sub := item.Object.(entity.Subscription)
		ok, err := matchAll(specs, func(spec specification.Specification) (bool, bool) {
			m, isMatcher := spec.(specification.SubscriptionMatcher)
			if !isMatcher {
				return false, false
			}
			return m.MatchSubscription(&sub), true
		})
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, &sub)
		}
	}
	desc := descending(specs)
	sort.Slice(out, func(i, j int) bool {
		return before(out[i].CreatedAt, out[i].Id, out[j].CreatedAt, out[j].Id, desc)
	})
	lo, hi := page(specs, len(out))
	return out[lo:hi], nil
}

type paymentAttemptRepository struct {
	store *Store
}

func (r *paymentAttemptRepository) Create(ctx context.Context, attempt *entity.PaymentAttempt) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if attempt.Id == uuid.Nil {
		attempt.Id = uuid.New()
	}
	if _, found := r.store.attempts.Get(attempt.Id.String()); found {
		return fmt.Errorf("payment attempt %s already exists", attempt.Id)
	}
	now := r.store.now()
	attempt.CreatedAt, attempt.UpdatedAt = now, now
	r.store.attempts.Set(attempt.Id.String(), *attempt, cache.NoExpiration)
	return nil
}

func (r *paymentAttemptRepository) Update(ctx context.Context, attempt *entity.PaymentAttempt) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	prev, found := r.store.attempts.Get(attempt.Id.String())
	if !found {
		return fmt.Errorf("payment attempt %s not found", attempt.Id)
	}
	stored := prev.(entity.PaymentAttempt)
	attempt.CreatedAt = stored.CreatedAt
	attempt.UpdatedAt = r.store.now()
	row := *attempt
	row.Metadata = stored.Metadata
	r.store.attempts.Set(attempt.Id.String(), row, cache.NoExpiration)
	return nil
}

func (r *paymentAttemptRepository) UpdateMetadata(ctx context.Context, id uuid.UUID, metadata map[string]interface{}) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	prev, found := r.store.attempts.Get(id.String())
	if !found {
		return fmt.Errorf("payment attempt %s not found", id)
	}
	row := prev.(entity.PaymentAttempt)
	row.Metadata = make(map[string]interface{}, len(metadata))
	for k, v := range metadata {
		row.Metadata[k] = v
	}
	row.UpdatedAt = r.store.now()
	r.store.attempts.Set(id.String(), row, cache.NoExpiration)
	return nil
}

func (r *paymentAttemptRepository) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.PaymentAttempt, error) {
	all, err := r.FindAll(ctx, specs...)
	if err != nil || len(all) == 0 {
		return nil, err
	}
	return all[0], nil
}

func (r *paymentAttemptRepository) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.PaymentAttempt, error) {
	r.store.mu.RLock()
	items := r.store.attempts.Items()
	r.store.mu.RUnlock()

	var out []*entity.PaymentAttempt
	for _, item := range items {
		attempt := item.Object.(entity.PaymentAttempt)
		ok, err := matchAll(specs, func(spec specification.Specification) (bool, bool) {
			m, isMatcher := spec.(specification.AttemptMatcher)
			if !isMatcher {
				return false, false
			}
			return m.MatchAttempt(&attempt), true
		})
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, &attempt)
		}
	}
	desc := descending(specs)
	sort.Slice(out, func(i, j int) bool {
		return before(out[i].CreatedAt, out[i].Id, out[j].CreatedAt, out[j].Id, desc)
	})
	lo, hi := page(specs, len(out))
	return out[lo:hi], nil
}

// matchAll evaluates filter specs. match reports (matched, supported);
// ordering and paging specs are handled separately.
func matchAll(specs []specification.Specification, match func(specification.Specification) (bool, bool)) (bool, error) {
	for _, spec := range specs {
		switch spec.(type) {
		case specification.OrderBy, specification.Pagination:
			continue
		}
		matched, supported := match(spec)
		if !supported {
			return false, fmt.Errorf("memory store: unsupported specification %T", spec)
		}
		if !matched {
			return false, nil
		}
	}
	return true, nil
}

// Results are ordered by created_at, ascending unless an OrderBy asks for
// descending. The id breaks ties so paging is deterministic.
func descending(specs []specification.Specification) bool {
	desc := false
	for _, spec := range specs {
		if o, ok := spec.(specification.OrderBy); ok {
			desc = o.Desc
		}
	}
	return desc
}

func before(ti time.Time, idi uuid.UUID, tj time.Time, idj uuid.UUID, desc bool) bool {
	if !ti.Equal(tj) {
		if desc {
			return ti.After(tj)
		}
		return ti.Before(tj)
	}
	if desc {
		return idi.String() > idj.String()
	}
	return idi.String() < idj.String()
}

func page(specs []specification.Specification, n int) (int, int) {
	lo, hi := 0, n
	for _, spec := range specs {
		if p, ok := spec.(specification.Pagination); ok {
			lo = p.Offset
			if p.Limit > 0 {
				hi = lo + p.Limit
			}
		}
	}
	if lo > n {
		lo = n
	}
	if hi > n {
		hi = n
	}
	return lo, hi
}
