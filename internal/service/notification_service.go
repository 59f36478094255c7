package service

import (
	"context"
	"strings"

	"propman-be/internal/pkg/logger"
	"propman-be/pkg/events"
	lifecycleEvents "propman-be/pkg/subscription/events"

	"github.com/google/uuid"
)

// NotificationDelivery pushes real-time updates to an account's clients.
// Implemented by the websocket hub.
type NotificationDelivery interface {
	Notify(ctx context.Context, accountId uuid.UUID, eventType string, data map[string]interface{})
}

// NotificationService forwards payment outcomes and state changes to the
// clients of the account they belong to. Events reach it through the
// consumer service.
type NotificationService struct {
	delivery NotificationDelivery
	logger   logger.ILogger
}

func NewNotificationService(delivery NotificationDelivery, log logger.ILogger) *NotificationService {
	return &NotificationService{
		delivery: delivery,
		logger:   log,
	}
}

var pushedEvents = map[string]bool{
	lifecycleEvents.TypePaymentInitiated: true,
	lifecycleEvents.TypePaymentSucceeded: true,
	lifecycleEvents.TypePaymentFailed:    true,
	lifecycleEvents.TypePaymentTimedOut:  true,
	lifecycleEvents.TypeStateChanged:     true,
	lifecycleEvents.TypeTrialStarted:     true,
}

// HandleEvent never fails: an undeliverable push is not worth a redelivery.
func (s *NotificationService) HandleEvent(ctx context.Context, event events.Event) error {
	eventType := strings.TrimPrefix(event.EventType(), "events.")
	if !pushedEvents[eventType] || s.delivery == nil {
		return nil
	}

	raw, _ := event.Payload()["account_id"].(string)
	accountId, err := uuid.Parse(raw)
	if err != nil {
		s.logger.Warn("NOTIFICATION", "Event without account id", map[string]interface{}{"type": eventType})
		return nil
	}

	s.delivery.Notify(ctx, accountId, eventType, event.Payload())
	return nil
}
