package eventbus

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/arionlabs/arion/pkg/events"
)

type WatermillEventBus struct {
	publisher     message.Publisher
	subscriber    message.Subscriber
	subscriptions map[events.EventType]EventHandler
}

func NewWatermillEventBus(pub message.Publisher, sub message.Subscriber) EventBus {
	return &WatermillEventBus{
		publisher:     pub,
		subscriber:    sub,
		subscriptions: make(map[events.EventType]EventHandler),
	}
}

func (eb *WatermillEventBus) GenerateID() string {
	return watermill.NewULID()
}

func (eb *WatermillEventBus) Publish(_ context.Context, key string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := message.NewMessage("msg-"+eb.GenerateID(), payload)
	msg.Metadata.Set(events.EventMetadataKey, key)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))

	return eb.publisher.Publish(topicFor(event.GetType()), msg)
}

func topicFor(eventType events.EventType) string {
	switch eventType {
	case events.DefinitionPublishedEvent, events.DefinitionUnpublishedEvent:
		return events.DefinitionTopic
	default:
		return events.ExecutionTopic
	}
}

func (eb *WatermillEventBus) Subscribe(ctx context.Context) error {
	messages, err := eb.subscriber.Subscribe(ctx, events.ExecutionTopic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			var event any

			eventType := events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))

			handler, exists := eb.subscriptions[eventType]
			if !exists {
				msg.Ack()

				continue
			}

			switch eventType {
			case events.ExecutionStartedEvent:
				event = &events.ExecutionStarted{}
			case events.ExecutionSuspendedEvent:
				event = &events.ExecutionSuspended{}
			case events.ExecutionResumedEvent:
				event = &events.ExecutionResumed{}
			case events.ExecutionCompletedEvent:
				event = &events.ExecutionCompleted{}
			case events.ExecutionFailedEvent:
				event = &events.ExecutionFailed{}
			case events.ExecutionCancelledEvent:
				event = &events.ExecutionCancelled{}
			case events.ApprovalRequestedEvent:
				event = &events.ApprovalRequested{}
			case events.ApprovalDecidedEvent:
				event = &events.ApprovalDecided{}
			case events.DefinitionPublishedEvent:
				event = &events.DefinitionPublished{}
			case events.DefinitionUnpublishedEvent:
				event = &events.DefinitionUnpublished{}
			default:
				msg.Nack()

				continue
			}

			err := json.Unmarshal(msg.Payload, event)
			if err != nil {
				msg.Nack()

				continue
			}

			err = handler(ctx, event)
			if err != nil {
				msg.Nack()

				continue
			}

			msg.Ack()
		}
	}()

	return nil
}

func (eb *WatermillEventBus) Handle(eventType events.EventType, handler EventHandler) error {
	eb.subscriptions[eventType] = handler

	return nil
}

func (eb *WatermillEventBus) Close() error {
	err := eb.publisher.Close()
	if err != nil {
		return err
	}

	return eb.subscriber.Close()
}
