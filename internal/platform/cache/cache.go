// Package cache keeps extraction results in Redis, keyed by a hash of the
// document text, so re-uploads of the same document skip extraction.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/medreports/medreports/internal/extraction"
)

// DefaultTTL applies when no TTL is configured.
const DefaultTTL = 24 * time.Hour

// NewClient connects to the Redis server at url and pings it.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// ResultCache implements extraction.ResultCache on Redis.
type ResultCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewResultCache wraps client.
func NewResultCache(client redis.Cmdable, ttl time.Duration) *ResultCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ResultCache{client: client, ttl: ttl}
}

// Get returns the cached result for key. A miss is (nil, false, nil).
func (c *ResultCache) Get(ctx context.Context, key string) (*extraction.Result, bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, false, fmt.Errorf("decode cached result: %w", err)
	}
	if e.Result == nil {
		return nil, false, nil
	}
	if e.Result.MedicalInfo != nil {
		e.Result.MedicalInfo.LabResults.RestoreTexts(e.LabTexts)
	}
	return e.Result, true, nil
}

// Set stores res under key with the configured TTL.
func (c *ResultCache) Set(ctx context.Context, key string, res *extraction.Result) error {
	data, err := encodeEntry(res)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// entry is the stored form of a result. Lab texts travel next to it so a
// cached hit persists the same raw values as a fresh extraction.
type entry struct {
	Result   *extraction.Result          `json:"result"`
	LabTexts map[extraction.Field]string `json:"labTexts,omitempty"`
}

func encodeEntry(res *extraction.Result) ([]byte, error) {
	e := entry{Result: res}
	if res != nil && res.MedicalInfo != nil {
		e.LabTexts = res.MedicalInfo.LabResults.Texts()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return data, nil
}
