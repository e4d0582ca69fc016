package projection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	cacheVersionKey = "projection:version"
	bumpChannel     = "projection.bump"
)

// Cache wraps Redis based caching with versioning controls. A nil Cache (or
// nil client) degrades to pass-through so the service works without Redis.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Version returns the current cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if err == redis.Nil {
		if err := c.client.Set(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	if ver <= 0 {
		ver = 1
		if err := c.client.Set(ctx, cacheVersionKey, ver, 0).Err(); err != nil {
			return 0, err
		}
	}
	return ver, nil
}

// BuildKey composes the cache key with the current version.
func (c *Cache) BuildKey(ctx context.Context, parts ...string) (string, error) {
	if c == nil || c.client == nil {
		return strings.Join(parts, ":"), nil
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d", strings.Join(parts, ":"), ver), nil
}

// FetchJSON loads a cached value or populates it using the loader.
func (c *Cache) FetchJSON(ctx context.Context, key string, dest interface{}, loader func(context.Context) (interface{}, error)) error {
	if loader == nil {
		return errors.New("projection: cache loader required")
	}
	if c == nil || c.client == nil {
		value, err := loader(ctx)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return err
		}
		return json.Unmarshal(raw, dest)
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		return json.Unmarshal(payload, dest)
	}
	if err != redis.Nil {
		return err
	}
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

// Bump invalidates every cached projection by incrementing the global
// version and publishing the new value, so sibling processes follow.
func (c *Cache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	ver, err := c.client.Incr(ctx, cacheVersionKey).Result()
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, bumpChannel, strconv.FormatInt(ver, 10)).Err()
}

// ListenForInvalidation subscribes to version bump notifications.
func (c *Cache) ListenForInvalidation(ctx context.Context, channel string) error {
	if c == nil || c.client == nil {
		return nil
	}
	if channel == "" {
		channel = bumpChannel
	}
	pubsub := c.client.Subscribe(ctx, channel)
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if msg.Payload != "" {
					if ver, err := strconv.ParseInt(msg.Payload, 10, 64); err == nil {
						_ = c.client.Set(ctx, cacheVersionKey, ver, 0).Err()
						continue
					}
				}
				_ = c.client.Incr(ctx, cacheVersionKey).Err()
			}
		}
	}()
	return nil
}

func keyTimeline(q Query) string {
	return strings.Join([]string{"projection", "timeline", scopeToken(q), rangeToken(q), flagToken(q)}, ":")
}

func keyRates(q Query) string {
	return strings.Join([]string{"projection", "rates", scopeToken(q), q.Today.Format("2006-01-02"), strconv.Itoa(q.LookbackDays)}, ":")
}

func keySummary(q Query) string {
	return strings.Join([]string{"projection", "summary", scopeToken(q), q.Today.Format("2006-01-02")}, ":")
}

func keyValuation(q Query) string {
	return strings.Join([]string{"projection", "valuation", scopeToken(q), strconv.FormatFloat(q.CostPerUnit, 'f', 4, 64)}, ":")
}

func scopeToken(q Query) string {
	return strings.Join(q.Centers, ",") + "|" + strings.Join(q.Items, ",")
}

func rangeToken(q Query) string {
	return strings.Join([]string{
		q.Start.Format("2006-01-02"),
		q.End.Format("2006-01-02"),
		q.Today.Format("2006-01-02"),
		strconv.Itoa(q.HorizonDays),
		strconv.Itoa(q.LagDays),
	}, ",")
}

func flagToken(q Query) string {
	if !q.WithForecast {
		return "raw"
	}
	token := "fc," + strconv.Itoa(q.LookbackDays)
	for _, ev := range q.Events {
		token += fmt.Sprintf(",%s~%s~%.4f", ev.Start.Format("2006-01-02"), ev.End.Format("2006-01-02"), ev.Uplift)
	}
	return token
}
