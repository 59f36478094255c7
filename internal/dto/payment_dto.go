package dto

import (
	"time"

	"github.com/google/uuid"
)

type PaySubscriptionRequest struct {
	Phone        string  `json:"phone" validate:"required,msisdn"`
	Amount       float64 `json:"amount" validate:"gte=0"`
	Type         string  `json:"type" validate:"required,max=64"` // tier name
	DurationKind string  `json:"durationKind" validate:"omitempty,oneof=monthly yearly"`
}

type PaySubscriptionResponse struct {
	CheckoutRequestId string `json:"checkoutRequestId"`
	CustomerMessage   string `json:"customerMessage"`
}

type PaymentAttemptResponse struct {
	Id                uuid.UUID  `json:"id"`
	CheckoutRequestId string     `json:"checkoutRequestId"`
	CustomerMessage   string     `json:"customerMessage"`
	Tier              string     `json:"tier"`
	DurationKind      string     `json:"durationKind"`
	Amount            float64    `json:"amount"`
	Purpose           string     `json:"purpose"`
	Status            string     `json:"status"`
	AttemptCount      int        `json:"attemptCount"`
	Guidance          string     `json:"guidance"`
	Gateway           string     `json:"gateway"`
	CreatedAt         time.Time  `json:"createdAt"`
	CompletedAt       *time.Time `json:"completedAt,omitempty"`
}

type PaymentStatusResponse struct {
	CheckoutRequestId string `json:"checkoutRequestId"`
	Status            string `json:"status"`
	Terminal          bool   `json:"terminal"`
	Guidance          string `json:"guidance"`
}

// MpesaCallbackAck is the body Daraja expects back from the callback URL.
type MpesaCallbackAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}
