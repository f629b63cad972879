package notify

import (
	"context"
	"fmt"
	"sync"
)

// MemoryQueue delivers messages in-process. Messages published before a
// subscriber attaches are buffered per subject.
type MemoryQueue struct {
	channels      map[string]chan []byte
	subscriptions map[string]context.CancelFunc
	mu            sync.Mutex
	closed        bool
}

// NewMemoryQueue creates an in-memory queue
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		channels:      make(map[string]chan []byte),
		subscriptions: make(map[string]context.CancelFunc),
	}
}

func (q *MemoryQueue) channelLocked(subject string) (chan []byte, error) {
	if q.closed {
		return nil, fmt.Errorf("memory queue closed")
	}
	ch, ok := q.channels[subject]
	if !ok {
		ch = make(chan []byte, 1024)
		q.channels[subject] = ch
	}
	return ch, nil
}

// Publish copies data onto the subject's buffer
func (q *MemoryQueue) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := make([]byte, len(data))
	copy(msg, data)

	q.mu.Lock()
	defer q.mu.Unlock()

	ch, err := q.channelLocked(subject)
	if err != nil {
		return err
	}
	select {
	case ch <- msg:
		return nil
	default:
		return fmt.Errorf("channel full for subject: %s", subject)
	}
}

// Subscribe consumes the subject's buffer in a goroutine
func (q *MemoryQueue) Subscribe(subject string, handler MessageHandler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	ch, err := q.channelLocked(subject)
	if err != nil {
		return err
	}
	if _, exists := q.subscriptions[subject]; exists {
		return fmt.Errorf("already subscribed to subject: %s", subject)
	}
	ctx, cancel := context.WithCancel(context.Background())
	q.subscriptions[subject] = cancel

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case data, ok := <-ch:
				if !ok {
					return
				}
				_ = handler(data)
			}
		}
	}()
	return nil
}

// Unsubscribe unsubscribes from a subject
func (q *MemoryQueue) Unsubscribe(subject string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	cancel, exists := q.subscriptions[subject]
	if !exists {
		return fmt.Errorf("not subscribed to subject: %s", subject)
	}
	cancel()
	delete(q.subscriptions, subject)
	return nil
}

// Pending returns the number of undelivered messages for a subject
func (q *MemoryQueue) Pending(subject string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	if ch, ok := q.channels[subject]; ok {
		return len(ch)
	}
	return 0
}

// Close stops subscribers and drops buffered messages
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	for subject, cancel := range q.subscriptions {
		cancel()
		delete(q.subscriptions, subject)
	}
	for subject, ch := range q.channels {
		close(ch)
		delete(q.channels, subject)
	}
	return nil
}
