package query

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryCacheKeyStableForSameShapeAndGenerations(t *testing.T) {
	gens := map[string]int64{"slug": 1, "category": 3}
	key := queryCacheKey("recipes", "slug|asc||20|after|[]|[]", gens)
	key2 := queryCacheKey("recipes", "slug|asc||20|after|[]|[]", gens)
	assert.Equal(t, key, key2)
}

func TestQueryCacheKeyDiffersOnShape(t *testing.T) {
	gens := map[string]int64{"slug": 1}
	a := queryCacheKey("recipes", "slug|asc||20|after|[]|[]", gens)
	b := queryCacheKey("recipes", "slug|desc||20|after|[]|[]", gens)
	assert.NotEqual(t, a, b)
}

func TestQueryCacheKeyDiffersWhenAnyFieldGenerationChanges(t *testing.T) {
	shape := "slug|asc||20|after|[]|[]"
	a := queryCacheKey("recipes", shape, map[string]int64{"slug": 1, "category": 3})
	b := queryCacheKey("recipes", shape, map[string]int64{"slug": 1, "category": 4})
	assert.NotEqual(t, a, b, "bumping category's generation must change the key even though slug's did not move")
}

func TestQueryCacheKeyIgnoresFieldIterationOrder(t *testing.T) {
	shape := "slug|asc||20|after|[]|[]"
	a := queryCacheKey("recipes", shape, map[string]int64{"slug": 1, "category": 3})
	b := queryCacheKey("recipes", shape, map[string]int64{"category": 3, "slug": 1})
	assert.Equal(t, a, b)
}

func newTestRedisResultCache(t *testing.T) *RedisResultCache {
	t.Helper()
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379"
	}
	c, err := NewRedisResultCache(redisURL)
	if err != nil {
		t.Skip("redis not available")
	}
	return c
}

func TestRedisResultCacheGetSet(t *testing.T) {
	c := newTestRedisResultCache(t)
	ctx := context.Background()
	key := "test:query:abc123"

	require.NoError(t, c.Set(ctx, key, `{"data":[]}`, time.Minute))
	got, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, `{"data":[]}`, got)
}

func TestRedisResultCacheGetMissingKeyIsEmptyNotError(t *testing.T) {
	c := newTestRedisResultCache(t)
	got, err := c.Get(context.Background(), "test:query:does-not-exist")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRedisResultCacheBumpFieldsOnlyAffectsNamedFields(t *testing.T) {
	c := newTestRedisResultCache(t)
	ctx := context.Background()
	source := "test-source-generations"

	require.NoError(t, c.client.Del(ctx, generationsKey(source)).Err())

	before, err := c.FieldGenerations(ctx, source, []string{"slug", "category"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), before["slug"])
	assert.Equal(t, int64(0), before["category"])

	require.NoError(t, c.BumpFields(ctx, source, []string{"category"}))

	after, err := c.FieldGenerations(ctx, source, []string{"slug", "category"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), after["slug"], "bumping category must not move slug's generation")
	assert.Equal(t, int64(1), after["category"])

	require.NoError(t, c.client.Del(ctx, generationsKey(source)).Err())
}
