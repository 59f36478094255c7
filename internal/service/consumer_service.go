package service

import (
	"context"

	"propman-be/internal/pkg/logger"
	"propman-be/pkg/events"
	pktNats "propman-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// EventHandler processes one decoded lifecycle event.
type EventHandler func(ctx context.Context, event events.Event) error

// IConsumerService drains lifecycle events into the audit log and hands
// them to downstream handlers.
type IConsumerService interface {
	Consume(ctx context.Context) error
	Handle(ctx context.Context, event events.Event) error
}

type consumerService struct {
	pubSub     *gochannel.GoChannel
	topicName  string
	subscriber *pktNats.Subscriber
	forward    []EventHandler
	logger     logger.ILogger
}

// NewConsumerService consumes from the in-process topic when pubSub is set,
// and from the broker when subscriber is set. Either may be nil.
func NewConsumerService(
	pubSub *gochannel.GoChannel,
	topicName string,
	subscriber *pktNats.Subscriber,
	log logger.ILogger,
	forward ...EventHandler,
) IConsumerService {
	return &consumerService{
		pubSub:     pubSub,
		topicName:  topicName,
		subscriber: subscriber,
		forward:    forward,
		logger:     log,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	if cs.subscriber != nil {
		if err := cs.subscriber.Subscribe(ctx, pktNats.Subject(">"), "audit-worker", cs.Handle); err != nil {
			return err
		}
	}
	if cs.pubSub == nil {
		return nil
	}

	messages, err := cs.pubSub.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(ctx, msg)
		}
	}()

	return nil
}

func (cs *consumerService) processMessage(ctx context.Context, msg *message.Message) {
	event, err := events.Decode(msg.Payload)
	if err != nil {
		cs.logger.Error("AUDIT", "Dropping undecodable event", map[string]interface{}{
			"message_id": msg.UUID,
			"error":      err.Error(),
		})
		msg.Ack() // never redeliver a poison message
		return
	}

	if err := cs.Handle(ctx, event); err != nil {
		msg.Nack()
		return
	}
	msg.Ack()
}

func (cs *consumerService) Handle(ctx context.Context, event events.Event) error {
	details := make(map[string]interface{}, len(event.Payload())+2)
	for k, v := range event.Payload() {
		details[k] = v
	}
	details["event_type"] = event.EventType()
	details["occurred_at"] = event.Timestamp()
	cs.logger.Info("AUDIT", "Lifecycle event", details)

	for _, handle := range cs.forward {
		if err := handle(ctx, event); err != nil {
			return err
		}
	}
	return nil
}
