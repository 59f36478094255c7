package controller

import (
	"context"
	"errors"

	"propman-be/internal/pkg/serverutils"
	"propman-be/pkg/payment"
	"propman-be/pkg/payment/mpesa"
	"propman-be/pkg/subscription"

	"github.com/gofiber/fiber/v2"
)

// respondError maps domain errors onto status codes. Anything unmapped goes
// to the error middleware as a 500.
func respondError(ctx *fiber.Ctx, err error) error {
	var inProgress *subscription.PaymentInProgressError
	if errors.As(err, &inProgress) {
		return ctx.Status(fiber.StatusConflict).JSON(serverutils.ErrorResponseWithData(fiber.StatusConflict, err.Error(), fiber.Map{
			"checkoutRequestId": inProgress.CheckoutRequestId,
		}))
	}

	status := statusFor(err)
	if status == 0 {
		return err
	}
	return ctx.Status(status).JSON(serverutils.ErrorResponse(status, err.Error()))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, subscription.ErrInvalidTier),
		errors.Is(err, subscription.ErrInvalidCycle),
		errors.Is(err, subscription.ErrNoPaymentRequired),
		errors.Is(err, payment.ErrInvalidPhone),
		errors.Is(err, mpesa.ErrMalformedCallback):
		return fiber.StatusBadRequest
	case errors.Is(err, payment.ErrAttemptNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, subscription.ErrAlreadySubscribed),
		errors.Is(err, subscription.ErrTrialAlreadyUsed):
		return fiber.StatusConflict
	case errors.Is(err, payment.ErrGatewayRejected):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, payment.ErrGatewayUnavailable):
		return fiber.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout
	}
	return 0
}
