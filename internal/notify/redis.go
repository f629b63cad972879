package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig represents Redis Streams configuration
type RedisConfig struct {
	URL      string // redis://localhost:6379 or host:port
	Password string
	DB       int
	Stream   string // stream key prefix (default: "nodeledger")
	MaxLen   int64  // approximate stream cap (default: 10000)
}

// RedisQueue appends events to one stream per subject
type RedisQueue struct {
	client *redis.Client
	config RedisConfig
}

func newRedisQueue(cfg RedisConfig) (*RedisQueue, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		opts = &redis.Options{
			Addr:     cfg.URL,
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if cfg.Stream == "" {
		cfg.Stream = "nodeledger"
	}
	if cfg.MaxLen == 0 {
		cfg.MaxLen = 10000
	}
	return &RedisQueue{client: client, config: cfg}, nil
}

func (q *RedisQueue) streamName(subject string) string {
	return q.config.Stream + ":" + subject
}

// Publish appends a message to the subject's stream
func (q *RedisQueue) Publish(ctx context.Context, subject string, data []byte) error {
	stream := q.streamName(subject)
	err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: q.config.MaxLen,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{"data": data},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish to Redis stream %s: %w", stream, err)
	}
	return nil
}

// Close closes the Redis connection
func (q *RedisQueue) Close() error {
	return q.client.Close()
}
