package implementation

import (
	"context"
	"errors"
	"fmt"

	"propman-be/internal/entity"
	"propman-be/internal/mapper"
	"propman-be/internal/model"
	"propman-be/internal/repository/contract"
	"propman-be/internal/repository/specification"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type PaymentAttemptRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.PaymentAttemptMapper
}

func NewPaymentAttemptRepository(db *gorm.DB) contract.PaymentAttemptRepository {
	return &PaymentAttemptRepositoryImpl{
		db:     db,
		mapper: mapper.NewPaymentAttemptMapper(),
	}
}

func (r *PaymentAttemptRepositoryImpl) Create(ctx context.Context, attempt *entity.PaymentAttempt) error {
	m := r.mapper.ToModel(attempt)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*attempt = *r.mapper.ToEntity(m)
	return nil
}

func (r *PaymentAttemptRepositoryImpl) Update(ctx context.Context, attempt *entity.PaymentAttempt) error {
	m := r.mapper.ToModel(attempt)
	if err := r.db.WithContext(ctx).Omit("metadata").Save(m).Error; err != nil {
		return err
	}
	*attempt = *r.mapper.ToEntity(m)
	return nil
}

func (r *PaymentAttemptRepositoryImpl) UpdateMetadata(ctx context.Context, id uuid.UUID, metadata map[string]interface{}) error {
	res := r.db.WithContext(ctx).
		Model(&model.PaymentAttempt{}).
		Where("id = ?", id).
		Update("metadata", datatypes.JSONMap(metadata))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("payment attempt %s not found", id)
	}
	return nil
}

func (r *PaymentAttemptRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.PaymentAttempt, error) {
	var m model.PaymentAttempt
	query := applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ToEntity(&m), nil
}

func (r *PaymentAttemptRepositoryImpl) FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.PaymentAttempt, error) {
	var models []*model.PaymentAttempt
	query := applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	entities := make([]*entity.PaymentAttempt, len(models))
	for i, m := range models {
		entities[i] = r.mapper.ToEntity(m)
	}
	return entities, nil
}
