package service

import (
	"context"
	"fmt"
	"strings"

	"propman-be/internal/dto"
	"propman-be/internal/entity"
	"propman-be/internal/repository/specification"
	"propman-be/pkg/subscription"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

type ISubscriptionService interface {
	ListTiers(ctx context.Context) []*dto.TierResponse
	GetCurrent(ctx context.Context, accountId uuid.UUID) (*dto.SubscriptionResponse, error)
	StartTrial(ctx context.Context, accountId uuid.UUID, tierName string) (*dto.SubscriptionResponse, error)
	RequestTierChange(ctx context.Context, accountId uuid.UUID, req *dto.CreateSubscriptionRequest) (*dto.SubscriptionResponse, error)
	Validate(ctx context.Context, accountId uuid.UUID) (*dto.SubscriptionResponse, error)
	Quotas(ctx context.Context, accountId uuid.UUID) (*dto.QuotasResponse, error)
	ReconcileAll(ctx context.Context) (int, error)
}

func (s *LifecycleService) ListTiers(ctx context.Context) []*dto.TierResponse {
	tiers := s.machine.Catalog().All()
	res := make([]*dto.TierResponse, 0, len(tiers))
	for _, t := range tiers {
		res = append(res, toTierResponse(t))
	}
	return res
}

// GetCurrent never writes: the state is computed for display only.
func (s *LifecycleService) GetCurrent(ctx context.Context, accountId uuid.UUID) (*dto.SubscriptionResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	sub, err := s.current(ctx, uow.SubscriptionRepository(), accountId)
	if err != nil {
		return nil, err
	}
	return s.toSubscriptionResponse(accountId, sub, s.now()), nil
}

func (s *LifecycleService) StartTrial(ctx context.Context, accountId uuid.UUID, tierName string) (*dto.SubscriptionResponse, error) {
	tier, err := s.machine.Catalog().Find(tierName)
	if err != nil {
		return nil, err
	}

	var created entity.Subscription
	err = s.withAccount(ctx, accountId, func(ctx context.Context) error {
		uow := s.uowFactory.NewUnitOfWork(ctx)
		repo := uow.SubscriptionRepository()

		current, err := s.current(ctx, repo, accountId)
		if err != nil {
			return err
		}
		next, err := s.machine.StartTrial(current, tier, s.now())
		if err != nil {
			return err
		}

		// Superseded records count too: one trial per account, ever.
		previous, err := repo.FindOne(ctx, specification.ByAccount{AccountID: accountId}, specification.WithTrial{})
		if err != nil {
			return fmt.Errorf("load trial history for %s: %w", accountId, err)
		}
		if previous != nil {
			return subscription.ErrTrialAlreadyUsed
		}

		next.AccountId = accountId
		if err := s.replace(ctx, current, &next, nil); err != nil {
			return err
		}
		created = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("SUBSCRIPTION", "Trial started", map[string]interface{}{
		"account_id":     accountId.String(),
		"tier":           created.TierName,
		"trial_end_date": created.TrialEndDate,
	})
	s.publisher.TrialStarted(ctx, created)
	return s.toSubscriptionResponse(accountId, &created, s.now()), nil
}

// RequestTierChange handles a tier selection. freeTrial delegates to
// StartTrial; the trial length is fixed, so freeTrialDurationDays is only
// logged when it disagrees.
func (s *LifecycleService) RequestTierChange(ctx context.Context, accountId uuid.UUID, req *dto.CreateSubscriptionRequest) (*dto.SubscriptionResponse, error) {
	if req.FreeTrial {
		if days := req.FreeTrialDurationDays; days != 0 && days != trialDays() {
			s.logger.Warn("SUBSCRIPTION", "Ignoring requested trial length", map[string]interface{}{
				"account_id":     accountId.String(),
				"requested_days": days,
				"applied_days":   trialDays(),
			})
		}
		return s.StartTrial(ctx, accountId, req.Tier)
	}

	tier, err := s.machine.Catalog().Find(req.Tier)
	if err != nil {
		return nil, err
	}
	cycle, err := parseCycle(req.DurationKind)
	if err != nil {
		return nil, err
	}

	var selected entity.Subscription
	changed := false
	err = s.withAccount(ctx, accountId, func(ctx context.Context) error {
		uow := s.uowFactory.NewUnitOfWork(ctx)
		current, err := s.current(ctx, uow.SubscriptionRepository(), accountId)
		if err != nil {
			return err
		}
		if current != nil && strings.EqualFold(current.TierName, tier.Name) && current.BillingCycle == cycle &&
			!current.HasPaidCycle() && current.TrialEndDate == nil {
			selected = *current
			return nil
		}
		if s.machine.AwaitsPayment(current, tier, s.now()) {
			// the chosen tier travels on the payment attempt instead
			selected = *current
			return nil
		}

		next, err := s.machine.SelectTier(current, tier, cycle, s.now())
		if err != nil {
			return err
		}
		next.AccountId = accountId
		if err := s.replace(ctx, current, &next, nil); err != nil {
			return err
		}
		selected = next
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.logger.Info("SUBSCRIPTION", "Tier selected", map[string]interface{}{
			"account_id": accountId.String(),
			"tier":       selected.TierName,
			"cycle":      string(selected.BillingCycle),
			"state":      string(selected.State),
		})
		s.publisher.TierSelected(ctx, selected)
	}
	return s.toSubscriptionResponse(accountId, &selected, s.now()), nil
}

// Validate persists the state computed at now when the stored snapshot is
// stale. Two calls at the same instant return the same record.
func (s *LifecycleService) Validate(ctx context.Context, accountId uuid.UUID) (*dto.SubscriptionResponse, error) {
	ctx, span := otel.Tracer("propman-be/service").Start(ctx, "subscription.validate")
	defer span.End()
	span.SetAttributes(attribute.String("account_id", accountId.String()))

	var result *entity.Subscription
	err := s.withAccount(ctx, accountId, func(ctx context.Context) error {
		sub, _, err := s.reconcile(ctx, accountId)
		result = sub
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.toSubscriptionResponse(accountId, result, s.now()), nil
}

// reconcile must run under the account lock.
func (s *LifecycleService) reconcile(ctx context.Context, accountId uuid.UUID) (*entity.Subscription, bool, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	repo := uow.SubscriptionRepository()

	current, err := s.current(ctx, repo, accountId)
	if err != nil || current == nil {
		return current, false, err
	}

	from := current.State
	next, changed := s.machine.Reconcile(*current, s.now())
	if !changed {
		return current, false, nil
	}
	if err := repo.Update(ctx, &next); err != nil {
		return nil, false, fmt.Errorf("persist state for %s: %w", accountId, err)
	}

	s.logger.Info("SUBSCRIPTION", "State changed", map[string]interface{}{
		"account_id": accountId.String(),
		"from":       string(from),
		"to":         string(next.State),
	})
	s.publisher.StateChanged(ctx, from, next)
	return &next, true, nil
}

func (s *LifecycleService) Quotas(ctx context.Context, accountId uuid.UUID) (*dto.QuotasResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)
	sub, err := s.current(ctx, uow.SubscriptionRepository(), accountId)
	if err != nil {
		return nil, err
	}
	q := toQuotasResponse(s.machine.Entitlements(sub, s.now()))
	return &q, nil
}

// ReconcileAll validates every current subscription and returns how many
// changed. A failing account is logged and skipped.
func (s *LifecycleService) ReconcileAll(ctx context.Context) (int, error) {
	changedCount := 0
	for offset := 0; ; offset += reconcilePage {
		if err := ctx.Err(); err != nil {
			return changedCount, err
		}

		uow := s.uowFactory.NewUnitOfWork(ctx)
		subs, err := uow.SubscriptionRepository().FindAll(ctx,
			specification.CurrentOnly{},
			specification.OrderBy{Field: "created_at", Desc: false},
			specification.Pagination{Limit: reconcilePage, Offset: offset},
		)
		if err != nil {
			return changedCount, fmt.Errorf("list subscriptions: %w", err)
		}

		for _, sub := range subs {
			accountId := sub.AccountId
			err := s.withAccount(ctx, accountId, func(ctx context.Context) error {
				_, changed, err := s.reconcile(ctx, accountId)
				if changed {
					changedCount++
				}
				return err
			})
			if err != nil {
				s.logger.Error("SUBSCRIPTION", "Reconcile failed", map[string]interface{}{
					"account_id": accountId.String(),
					"error":      err.Error(),
				})
			}
		}

		if len(subs) < reconcilePage {
			return changedCount, nil
		}
	}
}

func parseCycle(kind string) (entity.BillingCycle, error) {
	if kind == "" {
		return entity.BillingCycleMonthly, nil
	}
	cycle := entity.BillingCycle(strings.ToLower(kind))
	if !cycle.IsValid() {
		return "", subscription.ErrInvalidCycle
	}
	return cycle, nil
}

func trialDays() int {
	return int(subscription.TrialLength.Hours() / 24)
}
