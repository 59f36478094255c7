package subscription

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrInvalidTier       = errors.New("invalid tier")
	ErrAlreadySubscribed = errors.New("account already has an unexpired subscription")
	ErrTrialAlreadyUsed  = errors.New("free trial already used for this account")
	ErrPaymentInProgress = errors.New("a payment is already in progress for this account")
	ErrNoPaymentRequired = errors.New("tier does not require payment")
	ErrInvalidCycle      = errors.New("invalid billing cycle")
)

// InvalidTierError is returned when a tier is unknown or cannot be used for
// the requested operation.
type InvalidTierError struct {
	Tier   string
	Reason string
}

func (e *InvalidTierError) Error() string {
	return fmt.Sprintf("invalid tier %q: %s", e.Tier, e.Reason)
}

func (e *InvalidTierError) Is(target error) bool {
	return target == ErrInvalidTier
}

// PaymentInProgressError carries the charge already in flight so callers can
// surface its status instead of starting another one.
type PaymentInProgressError struct {
	AccountId         uuid.UUID
	CheckoutRequestId string
}

func (e *PaymentInProgressError) Error() string {
	if e.CheckoutRequestId == "" {
		return ErrPaymentInProgress.Error()
	}
	return fmt.Sprintf("%s (checkout request %s)", ErrPaymentInProgress.Error(), e.CheckoutRequestId)
}

func (e *PaymentInProgressError) Is(target error) bool {
	return target == ErrPaymentInProgress
}
