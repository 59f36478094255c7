package payment

import "propman-be/internal/entity"

// Guidance is the user-facing instruction for a payment outcome. failed and
// timed_out must read differently: a timed out charge may still land.
func Guidance(status entity.PaymentStatus) string {
	switch status {
	case entity.PaymentStatusSuccess:
		return "Payment received. Your subscription is now active."
	case entity.PaymentStatusFailed:
		return "The payment did not go through. Check your M-Pesa balance and PIN, then try again."
	case entity.PaymentStatusTimedOut:
		return "We did not receive a confirmation in time. Check your phone or your M-Pesa statement before trying again, the charge may still complete."
	case entity.PaymentStatusPending, entity.PaymentStatusInitiated:
		return "Enter your M-Pesa PIN on your phone to complete the payment."
	}
	return ""
}
