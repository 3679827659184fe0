package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dembrane/agentic/pkg/config"
)

// refreshLeaseScript extends the lease TTL only if the current value
// matches the caller's owner token — ported from the original runtime's
// Lua script so the compare-and-extend is atomic against the Redis server.
const refreshLeaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("expire", KEYS[1], ARGV[2])
else
    return 0
end
`

// releaseLeaseScript deletes the lease only if the current value matches
// the caller's owner token.
const releaseLeaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
else
    return 0
end
`

// RedisCoordinator is the Redis-backed Coordinator implementation.
type RedisCoordinator struct {
	client        *redis.Client
	refreshScript *redis.Script
	releaseScript *redis.Script
}

// NewRedisCoordinator dials cfg and returns a ready Coordinator.
func NewRedisCoordinator(cfg config.RedisConfig) *RedisCoordinator {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisCoordinator{
		client:        client,
		refreshScript: redis.NewScript(refreshLeaseScript),
		releaseScript: redis.NewScript(releaseLeaseScript),
	}
}

// AcquireLease implements Coordinator.
func (c *RedisCoordinator) AcquireLease(ctx context.Context, runID string, turnSeq int, owner string, ttlSeconds int) (bool, error) {
	ok, err := c.client.SetNX(ctx, TurnLeaseKey(runID, turnSeq), owner, ttlDuration(ttlSeconds)).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lease: %w", err)
	}
	return ok, nil
}

// RefreshLease implements Coordinator.
func (c *RedisCoordinator) RefreshLease(ctx context.Context, runID string, turnSeq int, owner string, ttlSeconds int) (bool, error) {
	result, err := c.refreshScript.Run(ctx, c.client, []string{TurnLeaseKey(runID, turnSeq)}, owner, ttlSeconds).Result()
	if err != nil {
		return false, fmt.Errorf("refresh lease: %w", err)
	}
	return toBool(result), nil
}

// ReleaseLease implements Coordinator.
func (c *RedisCoordinator) ReleaseLease(ctx context.Context, runID string, turnSeq int, owner string) (bool, error) {
	result, err := c.releaseScript.Run(ctx, c.client, []string{TurnLeaseKey(runID, turnSeq)}, owner).Result()
	if err != nil {
		return false, fmt.Errorf("release lease: %w", err)
	}
	return toBool(result), nil
}

// GetLeaseOwner implements Coordinator.
func (c *RedisCoordinator) GetLeaseOwner(ctx context.Context, runID string, turnSeq int) (string, error) {
	owner, err := c.client.Get(ctx, TurnLeaseKey(runID, turnSeq)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get lease owner: %w", err)
	}
	return owner, nil
}

// RequestCancel implements Coordinator.
func (c *RedisCoordinator) RequestCancel(ctx context.Context, runID string, turnSeq int, ttlSeconds int) error {
	if err := c.client.Set(ctx, TurnCancelKey(runID, turnSeq), "1", ttlDuration(ttlSeconds)).Err(); err != nil {
		return fmt.Errorf("request cancel: %w", err)
	}
	return nil
}

// IsCancelRequested implements Coordinator.
func (c *RedisCoordinator) IsCancelRequested(ctx context.Context, runID string, turnSeq int) (bool, error) {
	n, err := c.client.Exists(ctx, TurnCancelKey(runID, turnSeq)).Result()
	if err != nil {
		return false, fmt.Errorf("check cancel: %w", err)
	}
	return n > 0, nil
}

// ClearCancel implements Coordinator.
func (c *RedisCoordinator) ClearCancel(ctx context.Context, runID string, turnSeq int) error {
	if err := c.client.Del(ctx, TurnCancelKey(runID, turnSeq)).Err(); err != nil {
		return fmt.Errorf("clear cancel: %w", err)
	}
	return nil
}

// PublishLiveEvent implements Coordinator.
func (c *RedisCoordinator) PublishLiveEvent(ctx context.Context, runID string, payload string) error {
	if err := c.client.Publish(ctx, LiveEventChannel(runID), payload).Err(); err != nil {
		return fmt.Errorf("publish live event: %w", err)
	}
	return nil
}

// SubscribeLiveEvents implements Coordinator.
func (c *RedisCoordinator) SubscribeLiveEvents(ctx context.Context, runID string) (Subscription, error) {
	pubsub := c.client.Subscribe(ctx, LiveEventChannel(runID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe live events: %w", err)
	}
	return &redisSubscription{pubsub: pubsub}, nil
}

// Close implements Coordinator.
func (c *RedisCoordinator) Close() error {
	return c.client.Close()
}

// Ping reports whether Redis is reachable, for health checks.
func (c *RedisCoordinator) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func ttlDuration(seconds int) time.Duration {
	if seconds < 1 {
		seconds = 1
	}
	return time.Duration(seconds) * time.Second
}

func toBool(v any) bool {
	switch n := v.(type) {
	case int64:
		return n != 0
	case bool:
		return n
	default:
		return false
	}
}

type redisSubscription struct {
	pubsub *redis.PubSub
}

func (s *redisSubscription) Read(ctx context.Context) (string, bool, error) {
	msg, err := s.pubsub.ReceiveMessage(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read live event: %w", err)
	}
	return msg.Payload, true, nil
}

func (s *redisSubscription) Close() error {
	return s.pubsub.Close()
}
