package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type PaymentAttempt struct {
	Id                uuid.UUID         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	AccountId         uuid.UUID         `gorm:"type:uuid;not null;index"`
	TierName          string            `gorm:"type:varchar(64);not null"`
	BillingCycle      string            `gorm:"type:varchar(16);not null"`
	CheckoutRequestId string            `gorm:"type:varchar(128);index"`
	Phone             string            `gorm:"type:varchar(20);not null"`
	Amount            float64           `gorm:"type:decimal(12,2);not null"`
	Purpose           string            `gorm:"type:varchar(32);not null"`
	Status            string            `gorm:"type:varchar(16);not null;index"`
	AttemptCount      int               `gorm:"default:0"`
	CustomerMessage   string            `gorm:"type:text"`
	Gateway           string            `gorm:"type:varchar(32);not null"`
	Metadata          datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt         time.Time         `gorm:"autoCreateTime"`
	UpdatedAt         time.Time         `gorm:"autoUpdateTime"`
	CompletedAt       *time.Time
}

func (PaymentAttempt) TableName() string {
	return "payment_attempts"
}
