// Package redisreg provides a Redis-backed presence registry for
// multi-instance deployments. It honours the same last-writer-wins and
// conditional-delete contract as the in-memory registry.
package redisreg

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const keyPrefix = "presence:"

// compareAndDelete deletes the presence key only while it still holds the
// disconnecting connection id, keeping the stale-disconnect guarantee
// across instances.
const compareAndDelete = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// redisClient defines the interface we need from go-redis.
type redisClient interface {
	SetArgs(ctx context.Context, key string, value interface{}, a redis.SetArgs) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
	Close() error
}

// Registry implements relay.Registry on Redis, one key per user identity.
type Registry struct {
	client redisClient
	logger zerolog.Logger
}

// New is the constructor for the Redis registry.
func New(client redisClient, logger zerolog.Logger) (*Registry, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client cannot be nil")
	}
	return &Registry{
		client: client,
		logger: logger.With().Str("component", "RedisRegistry").Logger(),
	}, nil
}

func userKey(userID string) string {
	return keyPrefix + userID
}

// Set installs the mapping with SET ... GET, returning the displaced
// connection id in a single round trip.
func (r *Registry) Set(ctx context.Context, userID, connID string) (string, error) {
	prev, err := r.client.SetArgs(ctx, userKey(userID), connID, redis.SetArgs{Get: true}).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to set presence for %q: %w", userID, err)
	}
	if prev == connID {
		return "", nil
	}
	return prev, nil
}

// Remove conditionally deletes the mapping via a compare-and-delete script.
func (r *Registry) Remove(ctx context.Context, userID, connID string) (bool, error) {
	deleted, err := r.client.Eval(ctx, compareAndDelete, []string{userKey(userID)}, connID).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to remove presence for %q: %w", userID, err)
	}
	return deleted > 0, nil
}

// Lookup returns the active connection id for userID.
func (r *Registry) Lookup(ctx context.Context, userID string) (string, bool, error) {
	connID, err := r.client.Get(ctx, userKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to look up presence for %q: %w", userID, err)
	}
	return connID, true, nil
}

// Users scans the presence keyspace and returns the registered identities.
func (r *Registry) Users(ctx context.Context) ([]string, error) {
	var (
		users  []string
		cursor uint64
	)
	for {
		keys, next, err := r.client.Scan(ctx, cursor, keyPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan presence keys: %w", err)
		}
		for _, key := range keys {
			users = append(users, key[len(keyPrefix):])
		}
		cursor = next
		if cursor == 0 {
			return users, nil
		}
	}
}

// Close releases the underlying client.
func (r *Registry) Close() error {
	return r.client.Close()
}
