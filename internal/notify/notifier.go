package notify

import (
	"context"
	"fmt"

	"github.com/nodeledger/nodeledger/internal/logging"
)

// Notifier publishes change events as envelopes on <prefix>.<event>. It
// satisfies objects.Notifier.
type Notifier struct {
	pub         Publisher
	prefix      string
	publisherID string
	compress    bool
	logger      *logging.Logger
}

// NewNotifier wraps a publisher
func NewNotifier(pub Publisher, prefix, publisherID string, compress bool, logger *logging.Logger) *Notifier {
	if prefix == "" {
		prefix = "nodeledger"
	}
	return &Notifier{
		pub:         pub,
		prefix:      prefix,
		publisherID: publisherID,
		compress:    compress,
		logger:      logger,
	}
}

// Subject returns the subject an event is published on
func (n *Notifier) Subject(event string) string {
	return n.prefix + "." + event
}

// Notify implements objects.Notifier
func (n *Notifier) Notify(ctx context.Context, event string, payload interface{}) error {
	env, err := NewEnvelope(event, n.publisherID, payload)
	if err != nil {
		return err
	}
	data, err := env.Encode(n.compress)
	if err != nil {
		return err
	}

	subject := n.Subject(event)
	if err := n.pub.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("failed to publish %s: %w", event, err)
	}

	n.logger.Debug("Event published",
		"subject", subject,
		"message_id", env.MessageID,
		"bytes", len(data))
	return nil
}

// Close closes the underlying publisher
func (n *Notifier) Close() error {
	return n.pub.Close()
}
