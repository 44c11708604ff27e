// Package redis implements store.Store against a real Redis (or
// Redis-compatible) server via github.com/redis/go-redis/v9.
//
// This package takes an already-constructed redis.UniversalClient so it
// works unmodified against standalone Redis, Redis Cluster, and Redis
// Sentinel; connection construction, pooling, TLS, and auth are the
// caller's concern.
package redis

import (
	"context"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"slidewin/ratelimit/store"
)

// Store adapts a redis.UniversalClient to store.Store.
type Store struct {
	client goredis.UniversalClient
}

// New wraps an already-constructed client.
func New(client goredis.UniversalClient) *Store {
	return &Store{client: client}
}

var _ store.Store = (*Store)(nil)

// noscriptPrefix is the reply Redis sends when EVALSHA names a digest it
// doesn't have cached. go-redis surfaces it as a plain *redis.Error, so the
// only discriminant available is the message prefix, same as redis-cli.
const noscriptPrefix = "NOSCRIPT"

func toArgs(args []string) []interface{} {
	out := make([]interface{}, len(args))
	for i, a := range args {
		out[i] = a
	}
	return out
}

func (s *Store) EvalByHash(ctx context.Context, sha1Hex string, keys []string, args []string) (int64, error) {
	n, err := s.client.EvalSha(ctx, sha1Hex, keys, toArgs(args)...).Int64()
	if err != nil {
		if strings.HasPrefix(err.Error(), noscriptPrefix) {
			return 0, store.ErrUnknownScript
		}
		return 0, err
	}
	return n, nil
}

func (s *Store) EvalByBody(ctx context.Context, body string, keys []string, args []string) (int64, error) {
	return s.client.Eval(ctx, body, keys, toArgs(args)...).Int64()
}

func (s *Store) HGet(ctx context.Context, hashKey, field string) (int64, bool, error) {
	n, err := s.client.HGet(ctx, hashKey, field).Int64()
	if err == goredis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}

func (s *Store) Keys(ctx context.Context, pattern string) ([]string, error) {
	return s.client.Keys(ctx, pattern).Result()
}

func (s *Store) SAdd(ctx context.Context, set, member string) error {
	return s.client.SAdd(ctx, set, member).Err()
}

func (s *Store) SRem(ctx context.Context, set, member string) error {
	return s.client.SRem(ctx, set, member).Err()
}
