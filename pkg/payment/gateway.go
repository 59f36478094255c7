package payment

import (
	"context"
	"errors"
	"fmt"

	"propman-be/internal/entity"
)

var (
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrGatewayRejected    = errors.New("payment gateway rejected the request")
	ErrInvalidPhone       = errors.New("invalid phone number")
	ErrAttemptNotFound    = errors.New("payment attempt not found")
	ErrCallbackMismatch   = errors.New("callback does not match the payment attempt")
)

// Gateway is the mobile-money provider boundary. It is the only component
// that talks to a third party; confirmation is never synchronous.
type Gateway interface {
	Name() string

	// Initiate pushes a charge request to the payer's handset and returns the
	// gateway correlation id.
	Initiate(ctx context.Context, phone string, amount float64, purpose string) (checkoutRequestId, customerMessage string, err error)

	// QueryStatus returns pending, success or failed for a charge.
	QueryStatus(ctx context.Context, checkoutRequestId string) (entity.PaymentStatus, error)
}

// GatewayUnavailableError is a transport level failure. It is retryable.
type GatewayUnavailableError struct {
	Gateway string
	Op      string
	Err     error
}

func (e *GatewayUnavailableError) Error() string {
	return fmt.Sprintf("%s %s: gateway unavailable: %v", e.Gateway, e.Op, e.Err)
}

func (e *GatewayUnavailableError) Unwrap() error {
	return e.Err
}

func (e *GatewayUnavailableError) Is(target error) bool {
	return target == ErrGatewayUnavailable
}

// GatewayRejectedError is a business-rule rejection such as a malformed phone
// number. No charge exists when Initiate returns it.
type GatewayRejectedError struct {
	Gateway string
	Code    string
	Message string
}

func (e *GatewayRejectedError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("%s rejected request: %s", e.Gateway, e.Message)
	}
	return fmt.Sprintf("%s rejected request (%s): %s", e.Gateway, e.Code, e.Message)
}

func (e *GatewayRejectedError) Is(target error) bool {
	return target == ErrGatewayRejected
}
