package mapper

import (
	"propman-be/internal/entity"
	"propman-be/internal/model"
)

type SubscriptionMapper struct{}

func NewSubscriptionMapper() *SubscriptionMapper {
	return &SubscriptionMapper{}
}

func (m *SubscriptionMapper) ToEntity(s *model.Subscription) *entity.Subscription {
	if s == nil {
		return nil
	}
	return &entity.Subscription{
		Id:                   s.Id,
		AccountId:            s.AccountId,
		TierName:             s.TierName,
		BillingCycle:         entity.BillingCycle(s.BillingCycle),
		IsFreeTrial:          s.IsFreeTrial,
		TrialEndDate:         s.TrialEndDate,
		CycleStartDate:       s.CycleStartDate,
		CycleEndDate:         s.CycleEndDate,
		State:                entity.SubscriptionState(s.State),
		IsActive:             s.IsActive,
		IsCurrent:            s.IsCurrent,
		SupersededAt:         s.SupersededAt,
		LastPaymentAttemptId: s.LastPaymentAttemptId,
		CreatedAt:            s.CreatedAt,
		UpdatedAt:            s.UpdatedAt,
	}
}

func (m *SubscriptionMapper) ToModel(s *entity.Subscription) *model.Subscription {
	if s == nil {
		return nil
	}
	return &model.Subscription{
		Id:                   s.Id,
		AccountId:            s.AccountId,
		TierName:             s.TierName,
		BillingCycle:         string(s.BillingCycle),
		IsFreeTrial:          s.IsFreeTrial,
		TrialEndDate:         s.TrialEndDate,
		CycleStartDate:       s.CycleStartDate,
		CycleEndDate:         s.CycleEndDate,
		State:                string(s.State),
		IsActive:             s.IsActive,
		IsCurrent:            s.IsCurrent,
		SupersededAt:         s.SupersededAt,
		LastPaymentAttemptId: s.LastPaymentAttemptId,
		CreatedAt:            s.CreatedAt,
		UpdatedAt:            s.UpdatedAt,
	}
}
