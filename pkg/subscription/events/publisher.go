package events

import (
	"context"
	"time"

	"propman-be/internal/entity"
	"propman-be/internal/pkg/logger"
	pkgEvents "propman-be/pkg/events"
)

const (
	TypeTrialStarted     = "SUBSCRIPTION_TRIAL_STARTED"
	TypeTierSelected     = "SUBSCRIPTION_TIER_SELECTED"
	TypeStateChanged     = "SUBSCRIPTION_STATE_CHANGED"
	TypePaymentInitiated = "PAYMENT_INITIATED"
	TypePaymentSucceeded = "PAYMENT_SUCCEEDED"
	TypePaymentFailed    = "PAYMENT_FAILED"
	TypePaymentTimedOut  = "PAYMENT_TIMED_OUT"
)

// Publisher emits lifecycle events. Publishing is best effort: failures are
// logged and never returned to the operation that triggered them.
type Publisher struct {
	bus    pkgEvents.Bus
	logger logger.ILogger
	now    func() time.Time
}

// New returns a Publisher over bus. A nil bus drops every event.
func New(bus pkgEvents.Bus, log logger.ILogger) *Publisher {
	return &Publisher{bus: bus, logger: log, now: time.Now}
}

func (p *Publisher) TrialStarted(ctx context.Context, sub entity.Subscription) {
	p.publish(ctx, TypeTrialStarted, subscriptionData(sub))
}

func (p *Publisher) TierSelected(ctx context.Context, sub entity.Subscription) {
	p.publish(ctx, TypeTierSelected, subscriptionData(sub))
}

func (p *Publisher) StateChanged(ctx context.Context, from entity.SubscriptionState, sub entity.Subscription) {
	data := subscriptionData(sub)
	data["from_state"] = string(from)
	p.publish(ctx, TypeStateChanged, data)
}

func (p *Publisher) PaymentInitiated(ctx context.Context, attempt entity.PaymentAttempt) {
	p.publish(ctx, TypePaymentInitiated, attemptData(attempt))
}

// PaymentSettled publishes the event matching the attempt's terminal
// status. Non-terminal attempts are ignored.
func (p *Publisher) PaymentSettled(ctx context.Context, attempt entity.PaymentAttempt) {
	var eventType string
	switch attempt.Status {
	case entity.PaymentStatusSuccess:
		eventType = TypePaymentSucceeded
	case entity.PaymentStatusFailed:
		eventType = TypePaymentFailed
	case entity.PaymentStatusTimedOut:
		eventType = TypePaymentTimedOut
	default:
		return
	}
	p.publish(ctx, eventType, attemptData(attempt))
}

func (p *Publisher) publish(ctx context.Context, eventType string, data map[string]interface{}) {
	if p == nil || p.bus == nil {
		return
	}
	evt := pkgEvents.BaseEvent{
		Type:       eventType,
		Data:       data,
		OccurredAt: p.now(),
	}
	if err := p.bus.Publish(ctx, evt); err != nil {
		p.logger.Warn("EVENTS", "Failed to publish event", map[string]interface{}{
			"type":  eventType,
			"error": err.Error(),
		})
	}
}

func subscriptionData(sub entity.Subscription) map[string]interface{} {
	data := map[string]interface{}{
		"subscription_id": sub.Id.String(),
		"account_id":      sub.AccountId.String(),
		"tier":            sub.TierName,
		"billing_cycle":   string(sub.BillingCycle),
		"state":           string(sub.State),
		"is_free_trial":   sub.IsFreeTrial,
	}
	if sub.TrialEndDate != nil {
		data["trial_end_date"] = sub.TrialEndDate.Format(time.RFC3339)
	}
	if sub.CycleEndDate != nil {
		data["cycle_end_date"] = sub.CycleEndDate.Format(time.RFC3339)
	}
	return data
}

func attemptData(attempt entity.PaymentAttempt) map[string]interface{} {
	return map[string]interface{}{
		"payment_attempt_id":  attempt.Id.String(),
		"account_id":          attempt.AccountId.String(),
		"checkout_request_id": attempt.CheckoutRequestId,
		"tier":                attempt.TierName,
		"amount":              attempt.Amount,
		"status":              string(attempt.Status),
		"attempt_count":       attempt.AttemptCount,
		"gateway":             attempt.Gateway,
	}
}
