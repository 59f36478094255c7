package unitofwork

import (
	"context"

	"propman-be/internal/repository/contract"
)

type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	SubscriptionRepository() contract.SubscriptionRepository
	PaymentAttemptRepository() contract.PaymentAttemptRepository
}
