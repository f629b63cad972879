// Package notify publishes compute node change events to a message
// broker. NATS JetStream is the default transport; Redis Streams, Kafka
// and an in-process queue are also available.
package notify

import "context"

// Publisher publishes messages to a queue
type Publisher interface {
	// Publish publishes a message to a subject/topic
	Publish(ctx context.Context, subject string, data []byte) error

	// Close closes the connection
	Close() error
}

// Subscriber consumes messages from a queue
type Subscriber interface {
	// Subscribe subscribes to a subject/topic with a handler
	Subscribe(subject string, handler MessageHandler) error

	// Unsubscribe unsubscribes from a subject/topic
	Unsubscribe(subject string) error

	// Close closes the connection
	Close() error
}

// MessageHandler handles incoming messages. A returned error leaves the
// message unacknowledged where the transport supports redelivery.
type MessageHandler func(data []byte) error

// Queue combines Publisher and Subscriber
type Queue interface {
	Publisher
	Subscriber
}
