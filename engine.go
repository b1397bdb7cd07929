// Package staticql wires together the config resolver, storage repository,
// parser registry, validator, indexer, loader, relation resolver, and query
// engine into the single entry point external callers construct once per
// process and reuse across requests for the lifetime of the loader's parse
// cache.
package staticql

import (
	"context"
	"time"

	"github.com/staticql/staticql/internal/config"
	"github.com/staticql/staticql/internal/indexer"
	"github.com/staticql/staticql/internal/loader"
	"github.com/staticql/staticql/internal/metrics"
	"github.com/staticql/staticql/internal/parser"
	"github.com/staticql/staticql/internal/query"
	"github.com/staticql/staticql/internal/relation"
	"github.com/staticql/staticql/internal/repository"
	"github.com/staticql/staticql/internal/validate"
)

// Engine is the top-level handle for a resolved config bound to a
// repository: it builds/updates indexes and answers queries.
type Engine struct {
	Config     *config.Resolver
	Repo       repository.Repository
	Parsers    *parser.Registry
	Validator  *validate.Validator
	Indexer    *indexer.Indexer
	Query      *query.Engine
}

// Open loads configPath and wires an Engine bound to repo. A fresh loader
// (and hence a fresh parse cache) is created per Open call; long-lived
// processes that want the cache to survive multiple queries should keep the
// returned Engine and its Query builders around rather than re-calling Open.
func Open(configPath string, repo repository.Repository) (*Engine, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	repo.SetResolver(cfg)

	parsers := parser.NewRegistry()
	validator := validate.New(repo)
	idx := indexer.New(cfg, repo, parsers, validator)
	ld := loader.New(cfg, repo, parsers)
	rel := relation.New(cfg, idx, ld)
	qe := query.New(cfg, idx, ld, rel)

	return &Engine{
		Config:    cfg,
		Repo:      repo,
		Parsers:   parsers,
		Validator: validator,
		Indexer:   idx,
		Query:     qe,
	}, nil
}

// From starts a query builder bound to source.
func (e *Engine) From(source string) *query.Builder {
	return e.Query.From(source)
}

// WithResultCache attaches a Redis-backed result cache to the query
// engine, so Exec can skip the plan/materialize pass on a hit. ttl bounds
// how long a cached page survives even without a build bumping the field
// it reads. Pass the same *query.RedisResultCache to WithCacheInvalidation
// so builds and updates keep the cache's per-field generations current.
func (e *Engine) WithResultCache(redisCache *query.RedisResultCache, ttl time.Duration) *Engine {
	e.Query.WithCache(query.NewResultCache(redisCache, ttl, redisCache.FieldGenerations))
	return e
}

// WithCacheInvalidation wires redisCache into the indexer so Build and
// ApplyDiff bump exactly the field generations they touch, keeping the
// result cache's invalidation scope tight without a separate manual step.
func (e *Engine) WithCacheInvalidation(redisCache *query.RedisResultCache) *Engine {
	e.Indexer.WithCacheInvalidation(redisCache)
	return e
}

// WithMetrics attaches a JSONL metrics logger to both the indexer and the
// query engine, so builds, updates, queries, and rejections all land in one
// durable event log for internal/metrics.Analyzer to aggregate.
func (e *Engine) WithMetrics(logger *metrics.Logger) *Engine {
	e.Indexer.WithMetrics(logger)
	e.Query.WithMetrics(logger)
	return e
}

// InvalidateCache force-bumps every indexed field's generation for source,
// expiring every cached page for it. Use for out-of-band invalidation (a
// manual re-sync outside the indexer); Build and ApplyDiff keep the
// generations current on their own when WithCacheInvalidation is attached.
func (e *Engine) InvalidateCache(ctx context.Context, cacheStore *query.RedisResultCache, source string) error {
	src, err := e.Config.Source(source)
	if err != nil {
		return err
	}
	fields := make([]string, 0, len(src.Indexes))
	for f := range src.Indexes {
		fields = append(fields, f)
	}
	return cacheStore.BumpFields(ctx, source, fields)
}
