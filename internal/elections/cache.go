package elections

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const resultsKeyPrefix = "campus:results"

// RedisResultsCache stores results of completed elections under a versioned
// key. Concurrent misses for one election share a single load.
type RedisResultsCache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewRedisResultsCache instantiates the cache helper. A nil client disables
// caching and every Fetch calls the loader.
func NewRedisResultsCache(client *redis.Client, ttl time.Duration) *RedisResultsCache {
	return &RedisResultsCache{client: client, ttl: ttl}
}

func versionKey(electionID string) string {
	return strings.Join([]string{resultsKeyPrefix, electionID, "version"}, ":")
}

// version returns the current key version, reading a missing counter as 0.
func (c *RedisResultsCache) version(ctx context.Context, electionID string) (int64, error) {
	ver, err := c.client.Get(ctx, versionKey(electionID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return ver, err
}

func (c *RedisResultsCache) key(ctx context.Context, electionID string) (string, error) {
	ver, err := c.version(ctx, electionID)
	if err != nil {
		return "", fmt.Errorf("results cache version: %w", err)
	}
	return fmt.Sprintf("%s:%s:%d", resultsKeyPrefix, electionID, ver), nil
}

// Fetch returns cached results or populates them using loader.
func (c *RedisResultsCache) Fetch(ctx context.Context, electionID string, loader func(context.Context) (Results, error)) (Results, error) {
	if loader == nil {
		return Results{}, errors.New("results cache: loader required")
	}
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	key, err := c.key(ctx, electionID)
	if err != nil {
		return Results{}, err
	}
	if payload, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var cached Results
		if err := json.Unmarshal(payload, &cached); err == nil {
			return cached, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		return Results{}, fmt.Errorf("results cache get: %w", err)
	}

	ch := c.group.DoChan(key, func() (interface{}, error) {
		value, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			return nil, fmt.Errorf("results cache set: %w", err)
		}
		return value, nil
	})
	select {
	case <-ctx.Done():
		return Results{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Results{}, res.Err
		}
		return res.Val.(Results), nil
	}
}

// Invalidate bumps the election's version so the next Fetch reloads.
func (c *RedisResultsCache) Invalidate(ctx context.Context, electionID string) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, versionKey(electionID)).Err()
}
