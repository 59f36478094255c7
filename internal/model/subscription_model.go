package model

import (
	"time"

	"github.com/google/uuid"
)

type Subscription struct {
	Id                   uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	AccountId            uuid.UUID  `gorm:"type:uuid;not null;index:idx_subscriptions_account_current,priority:1"`
	TierName             string     `gorm:"type:varchar(64);not null"`
	BillingCycle         string     `gorm:"type:varchar(16);not null;default:monthly"`
	IsFreeTrial          bool       `gorm:"default:false"`
	TrialEndDate         *time.Time `gorm:"index"`
	CycleStartDate       *time.Time
	CycleEndDate         *time.Time `gorm:"index"`
	State                string     `gorm:"type:varchar(32);not null"`
	IsActive             bool       `gorm:"default:false"`
	IsCurrent            bool       `gorm:"default:true;index:idx_subscriptions_account_current,priority:2"`
	SupersededAt         *time.Time
	LastPaymentAttemptId *uuid.UUID `gorm:"type:uuid"`
	CreatedAt            time.Time  `gorm:"autoCreateTime"`
	UpdatedAt            time.Time  `gorm:"autoUpdateTime"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}
