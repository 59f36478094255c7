package contract

import (
	"context"

	"propman-be/internal/entity"
	"propman-be/internal/repository/specification"

	"github.com/google/uuid"
)

// PaymentAttemptRepository is the charge log referenced by
// Subscription.LastPaymentAttemptId. Metadata belongs to callbacks: Update
// leaves it alone and UpdateMetadata touches nothing else.
type PaymentAttemptRepository interface {
	Create(ctx context.Context, attempt *entity.PaymentAttempt) error
	Update(ctx context.Context, attempt *entity.PaymentAttempt) error
	UpdateMetadata(ctx context.Context, id uuid.UUID, metadata map[string]interface{}) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.PaymentAttempt, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.PaymentAttempt, error)
}
