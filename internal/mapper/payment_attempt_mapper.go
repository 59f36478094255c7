package mapper

import (
	"propman-be/internal/entity"
	"propman-be/internal/model"

	"gorm.io/datatypes"
)

type PaymentAttemptMapper struct{}

func NewPaymentAttemptMapper() *PaymentAttemptMapper {
	return &PaymentAttemptMapper{}
}

func (m *PaymentAttemptMapper) ToEntity(p *model.PaymentAttempt) *entity.PaymentAttempt {
	if p == nil {
		return nil
	}
	var metadata map[string]interface{}
	if len(p.Metadata) > 0 {
		metadata = map[string]interface{}(p.Metadata)
	}
	return &entity.PaymentAttempt{
		Id:                p.Id,
		AccountId:         p.AccountId,
		TierName:          p.TierName,
		BillingCycle:      entity.BillingCycle(p.BillingCycle),
		CheckoutRequestId: p.CheckoutRequestId,
		Phone:             p.Phone,
		Amount:            p.Amount,
		Purpose:           p.Purpose,
		Status:            entity.PaymentStatus(p.Status),
		AttemptCount:      p.AttemptCount,
		CustomerMessage:   p.CustomerMessage,
		Gateway:           p.Gateway,
		Metadata:          metadata,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
		CompletedAt:       p.CompletedAt,
	}
}

func (m *PaymentAttemptMapper) ToModel(p *entity.PaymentAttempt) *model.PaymentAttempt {
	if p == nil {
		return nil
	}
	var metadata datatypes.JSONMap
	if len(p.Metadata) > 0 {
		metadata = datatypes.JSONMap(p.Metadata)
	}
	return &model.PaymentAttempt{
		Id:                p.Id,
		AccountId:         p.AccountId,
		TierName:          p.TierName,
		BillingCycle:      string(p.BillingCycle),
		CheckoutRequestId: p.CheckoutRequestId,
		Phone:             p.Phone,
		Amount:            p.Amount,
		Purpose:           p.Purpose,
		Status:            string(p.Status),
		AttemptCount:      p.AttemptCount,
		CustomerMessage:   p.CustomerMessage,
		Gateway:           p.Gateway,
		Metadata:          metadata,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
		CompletedAt:       p.CompletedAt,
	}
}
