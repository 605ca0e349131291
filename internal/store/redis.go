package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis wraps redis client.
type Redis struct {
	Client *redis.Client
}

// NewRedis connects to redis with short timeouts.
func NewRedis(addr string) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
	return &Redis{Client: client}
}

// Healthy verifies redis connectivity.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.Client == nil {
		return false
	}
	return r.Client.Ping(ctx).Err() == nil
}

// Close closes the client.
func (r *Redis) Close() error {
	if r == nil || r.Client == nil {
		return nil
	}
	return r.Client.Close()
}

// RedisKV stores KV entries as plain redis strings under a key prefix.
type RedisKV struct {
	client *redis.Client
	prefix string
}

// NewRedisKV builds a KV over client. Keys are stored as prefix+key.
func NewRedisKV(client *redis.Client, prefix string) *RedisKV {
	if prefix == "" {
		prefix = "smartattend:"
	}
	return &RedisKV{client: client, prefix: prefix}
}

// Get returns the value for key.
func (k *RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := k.client.Get(ctx, k.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return v, err
}

// Set writes value with no expiry.
func (k *RedisKV) Set(ctx context.Context, key string, value []byte) error {
	return k.client.Set(ctx, k.prefix+key, value, 0).Err()
}

// Delete removes key.
func (k *RedisKV) Delete(ctx context.Context, key string) error {
	return k.client.Del(ctx, k.prefix+key).Err()
}

// Ping checks the connection.
func (k *RedisKV) Ping(ctx context.Context) error {
	return k.client.Ping(ctx).Err()
}
