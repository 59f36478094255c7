package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"propman-be/internal/dto"
	"propman-be/internal/entity"
	"propman-be/internal/pkg/logger"
	"propman-be/internal/repository/contract"
	"propman-be/internal/repository/specification"
	"propman-be/internal/repository/unitofwork"
	"propman-be/pkg/lock"
	"propman-be/pkg/payment"
	"propman-be/pkg/subscription"
	lifecycleEvents "propman-be/pkg/subscription/events"

	"github.com/google/uuid"
)

const (
	// rmwWorkTimeout bounds a single read-modify-write of a subscription
	// record. It stays below rmwLockTTL so the lock cannot lapse while the
	// work still runs.
	rmwWorkTimeout = 20 * time.Second
	rmwLockTTL     = rmwWorkTimeout + 10*time.Second

	// initiationAllowance is added to the poll budget for the in-flight
	// flag so a slow STK push cannot outlive its own lock.
	initiationAllowance = time.Minute

	recentAttemptTTL = 30 * time.Minute
	reconcilePage    = 100
)

// LifecycleService owns every subscription record mutation and drives
// payments from initiation to an applied outcome. It implements
// ISubscriptionService and IPaymentService.
type LifecycleService struct {
	uowFactory unitofwork.RepositoryFactory
	machine    *subscription.Machine
	gateway    payment.Gateway
	poller     *payment.Poller
	locker     lock.Locker
	publisher  *lifecycleEvents.Publisher
	callbacks  *payment.CallbackStore
	registry   *attemptRegistry
	logger     logger.ILogger
	now        func() time.Time

	wg           sync.WaitGroup
	baseCtx      context.Context
	cancelSettle context.CancelFunc
}

func NewLifecycleService(
	uowFactory unitofwork.RepositoryFactory,
	machine *subscription.Machine,
	gateway payment.Gateway,
	poller *payment.Poller,
	locker lock.Locker,
	publisher *lifecycleEvents.Publisher,
	callbacks *payment.CallbackStore,
	log logger.ILogger,
) *LifecycleService {
	baseCtx, cancel := context.WithCancel(context.Background())
	return &LifecycleService{
		uowFactory:   uowFactory,
		machine:      machine,
		gateway:      gateway,
		poller:       poller,
		locker:       locker,
		publisher:    publisher,
		callbacks:    callbacks,
		registry:     newAttemptRegistry(inflightTTL(poller), recentAttemptTTL),
		logger:       log,
		now:          time.Now,
		baseCtx:      baseCtx,
		cancelSettle: cancel,
	}
}

func inflightTTL(p *payment.Poller) time.Duration {
	return p.Config().Budget() + initiationAllowance
}

func inflightKey(accountId uuid.UUID) string {
	return "payment:inflight:" + accountId.String()
}

func rmwKey(accountId uuid.UUID) string {
	return "subscription:rmw:" + accountId.String()
}

// withAccount serialises read-modify-write work on one account's records.
// fn receives a context that ends before the lock TTL does.
func (s *LifecycleService) withAccount(ctx context.Context, accountId uuid.UUID, fn func(ctx context.Context) error) error {
	release, err := s.locker.Acquire(ctx, rmwKey(accountId), rmwLockTTL)
	if err != nil {
		return fmt.Errorf("lock subscription for %s: %w", accountId, err)
	}
	defer release()

	workCtx, cancel := context.WithTimeout(ctx, rmwWorkTimeout)
	defer cancel()
	return fn(workCtx)
}

func (s *LifecycleService) current(ctx context.Context, repo contract.SubscriptionRepository, accountId uuid.UUID) (*entity.Subscription, error) {
	sub, err := repo.FindOne(ctx,
		specification.ByAccount{AccountID: accountId},
		specification.CurrentOnly{},
		specification.OrderBy{Field: "created_at", Desc: true},
	)
	if err != nil {
		return nil, fmt.Errorf("load subscription for %s: %w", accountId, err)
	}
	return sub, nil
}

// replace supersedes current (if any) with next inside one transaction.
func (s *LifecycleService) replace(ctx context.Context, current *entity.Subscription, next *entity.Subscription, attempt *entity.PaymentAttempt) error {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return err
	}
	defer uow.Rollback()

	now := s.now()
	if current != nil {
		old := *current
		old.IsCurrent = false
		old.SupersededAt = &now
		if err := uow.SubscriptionRepository().Update(ctx, &old); err != nil {
			return fmt.Errorf("supersede subscription %s: %w", old.Id, err)
		}
	}

	next.Id = uuid.New()
	next.IsCurrent = true
	next.SupersededAt = nil
	if err := uow.SubscriptionRepository().Create(ctx, next); err != nil {
		return fmt.Errorf("create subscription: %w", err)
	}

	if attempt != nil {
		if err := uow.PaymentAttemptRepository().Update(ctx, attempt); err != nil {
			return fmt.Errorf("update payment attempt %s: %w", attempt.Id, err)
		}
	}

	return uow.Commit()
}

// Close waits for background confirmations. When ctx expires first the
// remaining polls are cancelled; their attempts stay pending in the log.
func (s *LifecycleService) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancelSettle()
		return nil
	case <-ctx.Done():
		s.cancelSettle()
		<-done
		return ctx.Err()
	}
}

func (s *LifecycleService) toSubscriptionResponse(accountId uuid.UUID, sub *entity.Subscription, now time.Time) *dto.SubscriptionResponse {
	state := s.machine.CurrentState(sub, now)
	res := &dto.SubscriptionResponse{
		AccountId:       accountId,
		Tier:            s.machine.Catalog().Free().Name,
		DurationKind:    string(entity.BillingCycleMonthly),
		State:           string(state),
		IsActive:        subscription.IsActive(state),
		RequiresPayment: subscription.RequiresPayment(state),
		Banner:          string(subscription.BannerFor(state)),
		Quotas:          toQuotasResponse(s.machine.Entitlements(sub, now)),
	}
	if sub == nil {
		return res
	}

	id := sub.Id
	res.Id = &id
	res.Tier = sub.TierName
	if sub.BillingCycle.IsValid() {
		res.DurationKind = string(sub.BillingCycle)
	}
	res.IsFreeTrial = sub.IsFreeTrial
	res.TrialEndDate = sub.TrialEndDate
	res.CycleStartDate = sub.CycleStartDate
	res.CycleEndDate = sub.CycleEndDate
	res.RemainingSeconds = int64(subscription.Remaining(sub, now) / time.Second)
	res.LastPaymentAttemptId = sub.LastPaymentAttemptId
	if state == entity.StatePaidExpired {
		res.GraceEndDate = subscription.GraceEnd(sub)
	}
	return res
}

func toQuotasResponse(q entity.Quotas) dto.QuotasResponse {
	return dto.QuotasResponse{
		MaxProperties:      q.MaxProperties,
		MaxRooms:           q.MaxRooms,
		MaxVacancyListings: q.MaxVacancyListings,
		MaxTopOffers:       q.MaxTopOffers,
	}
}

func toTierResponse(t entity.Tier) *dto.TierResponse {
	return &dto.TierResponse{
		Name:          t.Name,
		Description:   t.Description,
		MonthlyPrice:  t.MonthlyPrice,
		YearlyPrice:   t.YearlyPrice,
		TrialEligible: t.TrialEligible,
		Quotas:        toQuotasResponse(t.Quotas),
	}
}

func toAttemptResponse(a entity.PaymentAttempt) *dto.PaymentAttemptResponse {
	return &dto.PaymentAttemptResponse{
		Id:                a.Id,
		CheckoutRequestId: a.CheckoutRequestId,
		CustomerMessage:   a.CustomerMessage,
		Tier:              a.TierName,
		DurationKind:      string(a.BillingCycle),
		Amount:            a.Amount,
		Purpose:           a.Purpose,
		Status:            string(a.Status),
		AttemptCount:      a.AttemptCount,
		Guidance:          payment.Guidance(a.Status),
		Gateway:           a.Gateway,
		CreatedAt:         a.CreatedAt,
		CompletedAt:       a.CompletedAt,
	}
}
