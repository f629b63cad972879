package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSQueue publishes to a JetStream stream that captures <prefix>.>
type NATSQueue struct {
	conn          *nats.Conn
	js            nats.JetStreamContext
	stream        string
	subscriptions map[string]*nats.Subscription
	mu            sync.Mutex
}

func newNATSQueue(url, prefix string) (*NATSQueue, error) {
	conn, err := nats.Connect(url, nats.Name("nodeledger"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	q, err := newNATSQueueWithConn(conn, prefix)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return q, nil
}

func newNATSQueueWithConn(conn *nats.Conn, prefix string) (*NATSQueue, error) {
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	q := &NATSQueue{
		conn:          conn,
		js:            js,
		stream:        strings.ToUpper(sanitizeName(prefix)),
		subscriptions: make(map[string]*nats.Subscription),
	}
	if err := q.ensureStream(prefix); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *NATSQueue) ensureStream(prefix string) error {
	if _, err := q.js.StreamInfo(q.stream); err == nil {
		return nil
	}
	_, err := q.js.AddStream(&nats.StreamConfig{
		Name:     q.stream,
		Subjects: []string{prefix + ".>"},
		Storage:  nats.FileStorage,
		MaxAge:   24 * time.Hour,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream %s: %w", q.stream, err)
	}
	return nil
}

// Publish waits for the JetStream ack
func (q *NATSQueue) Publish(ctx context.Context, subject string, data []byte) error {
	if _, err := q.js.Publish(subject, data, nats.Context(ctx)); err != nil {
		return fmt.Errorf("failed to publish to subject %s: %w", subject, err)
	}
	return nil
}

// Subscribe attaches a durable consumer with manual acks
func (q *NATSQueue) Subscribe(subject string, handler MessageHandler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.subscriptions[subject]; exists {
		return fmt.Errorf("already subscribed to subject: %s", subject)
	}

	sub, err := q.js.Subscribe(subject, func(msg *nats.Msg) {
		if err := handler(msg.Data); err != nil {
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	},
		nats.Durable("consumer-"+sanitizeName(subject)),
		nats.ManualAck(),
		nats.AckWait(30*time.Second),
		nats.MaxDeliver(3),
		nats.DeliverAll(),
	)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", subject, err)
	}

	q.subscriptions[subject] = sub
	return nil
}

// Unsubscribe unsubscribes from a subject
func (q *NATSQueue) Unsubscribe(subject string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	sub, exists := q.subscriptions[subject]
	if !exists {
		return fmt.Errorf("not subscribed to subject: %s", subject)
	}
	delete(q.subscriptions, subject)
	return sub.Unsubscribe()
}

// Close drains subscriptions and closes the connection
func (q *NATSQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for subject, sub := range q.subscriptions {
		_ = sub.Unsubscribe()
		delete(q.subscriptions, subject)
	}
	q.conn.Close()
	return nil
}

// sanitizeName maps a subject onto the characters JetStream allows in
// stream and consumer names
func sanitizeName(subject string) string {
	result := make([]byte, 0, len(subject))
	for i := 0; i < len(subject); i++ {
		c := subject[i]
		if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '-' || c == '_' {
			result = append(result, c)
		} else {
			result = append(result, '_')
		}
	}
	return string(result)
}
