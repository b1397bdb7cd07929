package query

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisResultCache backs both the query result cache (Get/Set) and the
// per-field index generation counters a cache key is qualified by. Unlike a
// single source-wide version, each indexed field carries its own counter:
// a diff-driven update only bumps the fields its entries actually touched
// (see indexer.GenerationBumper), so a cached page for a query that never
// reads the changed field survives the update untouched.
type RedisResultCache struct {
	client *redis.Client
}

// NewRedisResultCache dials url and pings it once so a misconfigured
// address fails at startup rather than on the first query.
func NewRedisResultCache(url string) (*RedisResultCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return &RedisResultCache{client: client}, nil
}

// Get satisfies resultCacheStore. A missing key is not an error: it reads
// as a cache miss.
func (c *RedisResultCache) Get(ctx context.Context, key string) (string, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	return val, err
}

// Set satisfies resultCacheStore.
func (c *RedisResultCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

// Close releases the underlying connection pool.
func (c *RedisResultCache) Close() error {
	return c.client.Close()
}

func generationsKey(source string) string {
	return "idxgen:" + source
}

// FieldGenerations reads the current generation counter of each of fields
// for source in one round trip. A field never bumped reads as generation 0,
// so a freshly added index caches normally from its first build rather than
// erroring.
func (c *RedisResultCache) FieldGenerations(ctx context.Context, source string, fields []string) (map[string]int64, error) {
	out := make(map[string]int64, len(fields))
	if len(fields) == 0 {
		return out, nil
	}

	vals, err := c.client.HMGet(ctx, generationsKey(source), fields...).Result()
	if err != nil {
		return nil, err
	}
	for i, f := range fields {
		s, ok := vals[i].(string)
		if !ok || s == "" {
			out[f] = 0
			continue
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse generation for field %q: %w", f, err)
		}
		out[f] = n
	}
	return out, nil
}

// BumpFields increments the generation counter of every entry in fields for
// source in a single pipeline. A full index build bumps every indexed
// field; an incremental update bumps only the fields its diff entries
// touched.
func (c *RedisResultCache) BumpFields(ctx context.Context, source string, fields []string) error {
	if len(fields) == 0 {
		return nil
	}
	key := generationsKey(source)
	pipe := c.client.Pipeline()
	for _, f := range fields {
		pipe.HIncrBy(ctx, key, f, 1)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// queryCacheKey derives one query's cache key from its shape (everything
// but the source, which is folded into the key separately) and the
// generation of every field it reads, sorted so field iteration order never
// changes the key.
func queryCacheKey(source, shape string, generations map[string]int64) string {
	fields := make([]string, 0, len(generations))
	for f := range generations {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var gen strings.Builder
	for _, f := range fields {
		fmt.Fprintf(&gen, "%s=%d;", f, generations[f])
	}

	h := sha256.Sum256([]byte(shape))
	return fmt.Sprintf("query:%s:%x:%s", source, h[:8], gen.String())
}
