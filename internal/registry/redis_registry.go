package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisRegistry mirrors the teacher's storage.RedisStorage: a prefixed
// key per stationId holding the owning ownerId, with a TTL so a crashed
// owner's claim eventually expires.
type RedisRegistry struct {
	Client *redis.Client
	Prefix string
	TTL    time.Duration
}

// NewRedisRegistry dials Redis and verifies connectivity with a Ping, the
// same way the teacher's NewRedisStorage does.
func NewRedisRegistry(addr, password string, db int, ttl time.Duration) (*RedisRegistry, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}

	return &RedisRegistry{Client: client, Prefix: "station-owner:", TTL: ttl}, nil
}

func (r *RedisRegistry) key(stationID string) string {
	return r.Prefix + stationID
}

// Claim uses SETNX semantics (SetNX) so a station already owned by a
// different principal is rejected; re-claiming by the same owner refreshes
// the TTL idempotently.
func (r *RedisRegistry) Claim(ctx context.Context, stationID, ownerID string) (bool, error) {
	key := r.key(stationID)

	ok, err := r.Client.SetNX(ctx, key, ownerID, r.TTL).Result()
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", stationID, err)
	}
	if ok {
		return true, nil
	}

	current, err := r.Client.Get(ctx, key).Result()
	if err != nil && err != redis.Nil {
		return false, fmt.Errorf("claim %s: %w", stationID, err)
	}
	if current == ownerID {
		if err := r.Client.Expire(ctx, key, r.TTL).Err(); err != nil {
			return false, fmt.Errorf("refresh claim %s: %w", stationID, err)
		}
		return true, nil
	}
	return false, nil
}

func (r *RedisRegistry) Release(ctx context.Context, stationID, ownerID string) error {
	key := r.key(stationID)

	current, err := r.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("release %s: %w", stationID, err)
	}
	if current != ownerID {
		return nil
	}
	return r.Client.Del(ctx, key).Err()
}

func (r *RedisRegistry) OwnerOf(ctx context.Context, stationID string) (string, error) {
	val, err := r.Client.Get(ctx, r.key(stationID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("owner of %s: %w", stationID, err)
	}
	return val, nil
}

func (r *RedisRegistry) Close() error {
	return r.Client.Close()
}
