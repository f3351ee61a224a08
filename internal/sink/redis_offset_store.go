package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/leon4s4/httpsource/internal/logger"
)

// RedisOffsetStore persists cursors under "<namespace>:offset:<partitionKey>"
// keys, connection-tuned the same way the teacher's
// core.NewRedisRegistryWithNamespace dials its client (pool sizing,
// dial/read/write timeouts, a bounded ping-with-backoff health check at
// construction time) so that an endpoint worker restarting doesn't drop its
// cursor the way an in-memory-only deployment would.
type RedisOffsetStore struct {
	client    *redis.Client
	namespace string
	logger    logger.Logger
}

// NewRedisOffsetStore dials redisURL and verifies connectivity before
// returning, the same fail-fast contract as the teacher's registry
// constructor.
func NewRedisOffsetStore(redisURL, namespace string, log logger.Logger) (*RedisOffsetStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opt.PoolSize = 10
	opt.MinIdleConns = 2
	opt.DialTimeout = 5 * time.Second
	opt.ReadTimeout = 5 * time.Second
	opt.WriteTimeout = 5 * time.Second

	client := redis.NewClient(opt)

	var pingErr error
	for i := 0; i < 3; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		pingErr = client.Ping(ctx).Err()
		cancel()
		if pingErr == nil {
			break
		}
		time.Sleep(time.Duration(i+1) * time.Second)
	}
	if pingErr != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", pingErr)
	}

	if namespace == "" {
		namespace = "httpsource"
	}
	if log == nil {
		log = logger.NewDefaultLogger()
	}
	return &RedisOffsetStore{client: client, namespace: namespace, logger: log}, nil
}

func (r *RedisOffsetStore) key(partitionKey string) string {
	return fmt.Sprintf("%s:offset:%s", r.namespace, partitionKey)
}

func (r *RedisOffsetStore) Load(ctx context.Context, partitionKey string) (string, bool, error) {
	val, err := r.client.Get(ctx, r.key(partitionKey)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		r.logger.Error("offset load failed", map[string]interface{}{"partition": partitionKey, "error": err.Error()})
		return "", false, fmt.Errorf("load offset for %s: %w", partitionKey, err)
	}
	return val, true, nil
}

func (r *RedisOffsetStore) Save(ctx context.Context, partitionKey string, cursor string) error {
	if err := r.client.Set(ctx, r.key(partitionKey), cursor, 0).Err(); err != nil {
		r.logger.Error("offset save failed", map[string]interface{}{"partition": partitionKey, "error": err.Error()})
		return fmt.Errorf("save offset for %s: %w", partitionKey, err)
	}
	return nil
}

// Close releases the underlying Redis connection pool.
func (r *RedisOffsetStore) Close() error {
	return r.client.Close()
}
