package events

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// ChannelBus publishes onto an in-process watermill topic. It is the
// fallback when no broker is configured.
type ChannelBus struct {
	pubSub *gochannel.GoChannel
	topic  string
}

func NewChannelBus(pubSub *gochannel.GoChannel, topic string) *ChannelBus {
	return &ChannelBus{pubSub: pubSub, topic: topic}
}

func (b *ChannelBus) Topic() string {
	return b.topic
}

func (b *ChannelBus) Publish(ctx context.Context, event Event) error {
	payload, err := Encode(event)
	if err != nil {
		return err
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("event_type", event.EventType())
	return b.pubSub.Publish(b.topic, msg)
}
