package memory

import (
	"context"
	"testing"
	"time"

	"propman-be/internal/entity"
	"propman-be/internal/repository/specification"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestSubscriptionRepository(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	tick := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}
	uow := store.NewRepositoryFactory().NewUnitOfWork(ctx)
	repo := uow.SubscriptionRepository()

	account := uuid.New()
	old := &entity.Subscription{AccountId: account, TierName: "Free", IsCurrent: false}
	current := &entity.Subscription{AccountId: account, TierName: "Silver", IsCurrent: true}
	other := &entity.Subscription{AccountId: uuid.New(), TierName: "Gold", IsCurrent: true}
	for _, s := range []*entity.Subscription{old, current, other} {
		require.NoError(t, repo.Create(ctx, s))
		require.NotEqual(t, uuid.Nil, s.Id)
	}

	got, err := repo.FindOne(ctx, specification.ByAccount{AccountID: account}, specification.CurrentOnly{})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, current.Id, got.Id)

	history, err := repo.FindAll(ctx, specification.ByAccount{AccountID: account}, specification.OrderBy{Field: "created_at", Desc: true})
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, current.Id, history[0].Id)

	missing, err := repo.FindOne(ctx, specification.ByAccount{AccountID: uuid.New()})
	require.NoError(t, err)
	assert.Nil(t, missing)

	got.TierName = "Gold"
	require.NoError(t, repo.Update(ctx, got))
	reread, _ := repo.FindOne(ctx, specification.ByID{ID: current.Id})
	assert.Equal(t, "Gold", reread.TierName)
	assert.Equal(t, current.CreatedAt, reread.CreatedAt)

	reread.TierName = "Changed"
	again, _ := repo.FindOne(ctx, specification.ByID{ID: current.Id})
	assert.Equal(t, "Gold", again.TierName, "results are copies")

	page1, _ := repo.FindAll(ctx, specification.Pagination{Limit: 2, Offset: 0})
	page2, _ := repo.FindAll(ctx, specification.Pagination{Limit: 2, Offset: 2})
	assert.Len(t, page1, 2)
	assert.Len(t, page2, 1)
}

type rawSpec struct{}

func (rawSpec) Apply(db *gorm.DB) *gorm.DB { return db }

func TestUnsupportedSpecification(t *testing.T) {
	repo := NewStore().NewRepositoryFactory().NewUnitOfWork(context.Background()).PaymentAttemptRepository()
	_, err := repo.FindAll(context.Background(), rawSpec{})
	assert.Error(t, err)
}

func TestPaymentAttemptRepository(t *testing.T) {
	ctx := context.Background()
	uow := NewStore().NewRepositoryFactory().NewUnitOfWork(ctx)
	require.NoError(t, uow.Begin(ctx))
	defer uow.Rollback()

	repo := uow.PaymentAttemptRepository()
	attempt := &entity.PaymentAttempt{CheckoutRequestId: "ws_1", Status: entity.PaymentStatusPending}
	require.NoError(t, repo.Create(ctx, attempt))
	require.NoError(t, uow.Commit())

	got, err := repo.FindOne(ctx, specification.ByCheckoutRequestID{CheckoutRequestID: "ws_1"})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, attempt.Id, got.Id)

	pending, _ := repo.FindAll(ctx, specification.ByPaymentStatus{Statuses: []entity.PaymentStatus{entity.PaymentStatusPending}})
	assert.Len(t, pending, 1)

	assert.Error(t, repo.Update(ctx, &entity.PaymentAttempt{Id: uuid.New()}))
}

func TestPaymentAttemptRepository_MetadataIsolation(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().NewRepositoryFactory().NewUnitOfWork(ctx).PaymentAttemptRepository()

	attempt := &entity.PaymentAttempt{CheckoutRequestId: "ws_1", Status: entity.PaymentStatusPending}
	require.NoError(t, repo.Create(ctx, attempt))
	stale := *attempt

	require.NoError(t, repo.UpdateMetadata(ctx, attempt.Id, map[string]interface{}{"receipt_number": "NLJ7RT61SV"}))

	got, err := repo.FindOne(ctx, specification.ByID{ID: attempt.Id})
	require.NoError(t, err)
	assert.Equal(t, entity.PaymentStatusPending, got.Status, "metadata writes leave other columns alone")
	assert.Equal(t, "NLJ7RT61SV", got.Metadata["receipt_number"])

	stale.Status = entity.PaymentStatusSuccess
	stale.AttemptCount = 2
	require.NoError(t, repo.Update(ctx, &stale))

	got, err = repo.FindOne(ctx, specification.ByID{ID: attempt.Id})
	require.NoError(t, err)
	assert.Equal(t, entity.PaymentStatusSuccess, got.Status)
	assert.Equal(t, 2, got.AttemptCount)
	assert.Equal(t, "NLJ7RT61SV", got.Metadata["receipt_number"], "a stale row must not drop callback metadata")

	assert.Error(t, repo.UpdateMetadata(ctx, uuid.New(), map[string]interface{}{}))
}
