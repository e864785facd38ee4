package chatws

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Presence answers whether a user holds a joined socket on any instance.
type Presence interface {
	Join(ctx context.Context, userID uuid.UUID) error
	Leave(ctx context.Context, userID uuid.UUID) error
	Online(ctx context.Context, userID uuid.UUID) (bool, error)
	Refresh(ctx context.Context, userIDs []uuid.UUID) error
}

type LocalPresence struct {
	mu     sync.Mutex
	counts map[uuid.UUID]int
}

func NewLocalPresence() *LocalPresence {
	return &LocalPresence{counts: make(map[uuid.UUID]int)}
}

func (p *LocalPresence) Join(_ context.Context, userID uuid.UUID) error {
	p.mu.Lock()
	p.counts[userID]++
	p.mu.Unlock()
	return nil
}

func (p *LocalPresence) Leave(_ context.Context, userID uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.counts[userID] <= 1 {
		delete(p.counts, userID)
		return nil
	}
	p.counts[userID]--
	return nil
}

func (p *LocalPresence) Online(_ context.Context, userID uuid.UUID) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts[userID] > 0, nil
}

func (p *LocalPresence) Refresh(context.Context, []uuid.UUID) error {
	return nil
}

// RedisPresence keeps a per-user socket counter with a TTL. Live instances
// refresh the TTL for the users they hold, so counters left behind by a
// crashed instance expire on their own.
type RedisPresence struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisPresence(client *redis.Client, ttl time.Duration) *RedisPresence {
	return &RedisPresence{client: client, ttl: ttl}
}

func presenceKey(userID uuid.UUID) string {
	return "presence:" + userID.String()
}

func (p *RedisPresence) Join(ctx context.Context, userID uuid.UUID) error {
	key := presenceKey(userID)
	pipe := p.client.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, p.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (p *RedisPresence) Leave(ctx context.Context, userID uuid.UUID) error {
	key := presenceKey(userID)
	remaining, err := p.client.Decr(ctx, key).Result()
	if err != nil {
		return err
	}
	if remaining <= 0 {
		return p.client.Del(ctx, key).Err()
	}
	return nil
}

func (p *RedisPresence) Online(ctx context.Context, userID uuid.UUID) (bool, error) {
	count, err := p.client.Get(ctx, presenceKey(userID)).Int64()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (p *RedisPresence) Refresh(ctx context.Context, userIDs []uuid.UUID) error {
	if len(userIDs) == 0 {
		return nil
	}
	pipe := p.client.Pipeline()
	for _, userID := range userIDs {
		pipe.Expire(ctx, presenceKey(userID), p.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}
