package ports

import (
	"context"
)

// Message is one publish/subscribe message.
type Message struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

// MessageHandler receives inbound messages. It is called on the transport's
// delivery goroutine and must return quickly.
type MessageHandler func(Message)

// Subscriber delivers messages matching a topic filter.
type Subscriber interface {
	// Subscribe registers handler for topic. Subscriptions survive reconnects.
	Subscribe(ctx context.Context, topic string, qos byte, handler MessageHandler) error

	// Unsubscribe removes the subscription for topic.
	Unsubscribe(ctx context.Context, topic string) error
}

// Publisher sends messages.
type Publisher interface {
	// Publish sends msg and waits for the transport to accept it.
	Publish(ctx context.Context, msg Message) error
}

// Transport is a connected publish/subscribe channel.
type Transport interface {
	Subscriber
	Publisher

	// Connect establishes the session. Failure is a BrokerConnectError.
	Connect(ctx context.Context) error

	// Close disconnects. Safe to call more than once.
	Close(ctx context.Context) error
}
