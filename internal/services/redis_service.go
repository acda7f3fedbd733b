package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisService provides the optional Redis layer: unlock event publishing
// and cross-instance per-user locks. A nil *RedisService is valid and turns
// every operation into a no-op, so single-instance deployments run without
// Redis at all.
type RedisService struct {
	client *redis.Client
}

// UnlockEventChannel carries achievement unlock notifications.
const UnlockEventChannel = "reverie:achievements"

// NewRedisService connects to Redis. Returns an error only on a malformed
// URL or unreachable server; callers treat both as "run without Redis".
func NewRedisService(redisURL string) (*RedisService, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.PoolSize = 10
	opts.MinIdleConns = 2
	opts.MaxRetries = 3
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Println("✅ Redis connection established")
	return &RedisService{client: client}, nil
}

// Close closes the Redis connection
func (r *RedisService) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}

// Ping checks the connection health.
func (r *RedisService) Ping(ctx context.Context) error {
	if r == nil || r.client == nil {
		return fmt.Errorf("redis not configured")
	}
	return r.client.Ping(ctx).Err()
}

// PublishUnlock broadcasts an achievement unlock event. Failures are logged
// and swallowed; notifications are best-effort.
func (r *RedisService) PublishUnlock(ctx context.Context, userID, achievementKey string) {
	if r == nil || r.client == nil {
		return
	}

	payload, err := json.Marshal(map[string]string{
		"user_id":         userID,
		"achievement_key": achievementKey,
		"unlocked_at":     time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return
	}

	if err := r.client.Publish(ctx, UnlockEventChannel, payload).Err(); err != nil {
		log.Printf("⚠️ [REDIS] Failed to publish unlock event: %v", err)
	}
}

// Subscribe returns a subscription to the given channels.
func (r *RedisService) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Subscribe(ctx, channels...)
}

// AcquireUserLock takes the cross-instance turn lock for a user. Returns
// true when this process holds the lock. Without Redis the in-process keyed
// mutex is the only serialization, which is correct for one instance.
func (r *RedisService) AcquireUserLock(ctx context.Context, userID string, ttl time.Duration) (bool, error) {
	if r == nil || r.client == nil {
		return true, nil
	}
	return r.client.SetNX(ctx, "reverie:turnlock:"+userID, 1, ttl).Result()
}

// ReleaseUserLock drops the cross-instance turn lock.
func (r *RedisService) ReleaseUserLock(ctx context.Context, userID string) {
	if r == nil || r.client == nil {
		return
	}
	if err := r.client.Del(ctx, "reverie:turnlock:"+userID).Err(); err != nil {
		log.Printf("⚠️ [REDIS] Failed to release turn lock for %s: %v", userID, err)
	}
}
