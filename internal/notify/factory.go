package notify

import (
	"fmt"
	"strings"

	"github.com/nodeledger/nodeledger/internal/config"
	"github.com/nodeledger/nodeledger/internal/logging"
)

// Transport types
const (
	TypeNATS   = "nats"
	TypeRedis  = "redis"
	TypeKafka  = "kafka"
	TypeMemory = "memory"
	TypeNone   = "none"
)

// NewPublisher creates a Publisher based on configuration. NATS is the
// default; "none" returns a nil publisher.
func NewPublisher(cfg config.NotificationsConfig) (Publisher, error) {
	switch strings.ToLower(cfg.Type) {
	case "", TypeNATS:
		return newNATSQueue(cfg.URL, subjectPrefix(cfg))

	case TypeRedis:
		return newRedisQueue(RedisConfig{
			URL:      cfg.URL,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Stream:   cfg.RedisStream,
		})

	case TypeKafka:
		return newKafkaQueue(KafkaConfig{Brokers: cfg.KafkaBrokers})

	case TypeMemory:
		return NewMemoryQueue(), nil

	case TypeNone:
		return nil, nil

	default:
		return nil, fmt.Errorf("unsupported notification type: %s (supported: nats, redis, kafka, memory, none)", cfg.Type)
	}
}

// New builds a Notifier from configuration, nil when notifications are
// disabled
func New(cfg config.NotificationsConfig, publisherID string, logger *logging.Logger) (*Notifier, error) {
	pub, err := NewPublisher(cfg)
	if err != nil {
		return nil, err
	}
	if pub == nil {
		logger.Info("Compute node notifications disabled")
		return nil, nil
	}

	logger.Info("Compute node notifications enabled",
		"type", strings.ToLower(cfg.Type),
		"subject", subjectPrefix(cfg),
		"compress", cfg.Compress)
	return NewNotifier(pub, subjectPrefix(cfg), publisherID, cfg.Compress, logger), nil
}

func subjectPrefix(cfg config.NotificationsConfig) string {
	if cfg.Subject == "" {
		return "nodeledger"
	}
	return cfg.Subject
}
