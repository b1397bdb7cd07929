// Package query implements the query builder and executor: a fluent
// from/where/join/orderBy/cursor/pageSize surface over the
// index tree, planned in one of three regimes (direct slug lookup, indexed
// narrowing, or streaming scan) and materialized through the relation
// resolver and external loader.
package query

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/staticql/staticql/internal/config"
	"github.com/staticql/staticql/internal/indexcodec"
	"github.com/staticql/staticql/internal/indexer"
	"github.com/staticql/staticql/internal/pager"
	"github.com/staticql/staticql/internal/relation"
	"github.com/staticql/staticql/internal/staticqlerr"
	"github.com/staticql/staticql/internal/value"
)

// Op enumerates the filter operators.
type Op string

const (
	Eq         Op = "eq"
	StartsWith Op = "startsWith"
	In         Op = "in"
)

// Filter is one accumulated where() clause.
type Filter struct {
	Field  string
	Op     Op
	Value  string   // set for Eq, StartsWith
	Values []string // set for In
}

// IndexFinder is the subset of the indexer the planner needs.
type IndexFinder interface {
	FindEqual(ctx context.Context, source, fieldName, value string) ([]indexcodec.Line, error)
	FindStartsWith(ctx context.Context, source, fieldName, prefix string) ([]indexcodec.Line, error)
	ReadForwardPrefixIndexLines(ctx context.Context, source, orderField string, limit int, cursor *indexer.ScanCursor, descending bool) ([]indexcodec.Line, error)
	ReadBackwardPrefixIndexLines(ctx context.Context, source, orderField string, limit int, cursor *indexer.ScanCursor, descending bool) ([]indexcodec.Line, error)
}

// Loader fetches full records by slug for the materialization pass.
type Loader interface {
	LoadBySlugs(ctx context.Context, source string, slugs []string) (map[string]value.Value, error)
}

// MetricsLogger receives query timing and rejection events, satisfied by
// *metrics.Logger.
type MetricsLogger interface {
	LogQuery(source, orderBy string, resultCount int, latencyMs int64, cacheHit bool)
	LogError(operation, message string)
}

// ResultCache wraps a resultCacheStore (the narrow surface
// *RedisResultCache satisfies) and is used to cache Exec's materialized page keyed by source, filter/order/cursor
// state, and the generation of every field the query reads. A cache miss
// or a nil cache on the Engine is not an error: Exec always falls through
// to the normal plan/materialize path.
type ResultCache struct {
	store       resultCacheStore
	ttl         time.Duration
	generations func(ctx context.Context, source string, fields []string) (map[string]int64, error)
}

type resultCacheStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// NewResultCache wraps a cache store (satisfied by *RedisResultCache) with
// the TTL to apply on writes and the per-field generation lookup used to
// qualify cache keys, so a build or incremental update invalidates exactly
// the cached pages that read one of the fields it touched.
func NewResultCache(store resultCacheStore, ttl time.Duration, generations func(ctx context.Context, source string, fields []string) (map[string]int64, error)) *ResultCache {
	return &ResultCache{store: store, ttl: ttl, generations: generations}
}

// Builder accumulates a query against one source before exec/peek/find.
type Builder struct {
	cfg      *config.Resolver
	index    IndexFinder
	loader   Loader
	relation *relation.Resolver
	cache    *ResultCache
	metrics  MetricsLogger

	source    string
	filters   []Filter
	joins     []string
	orderBy   string
	direction pager.Direction
	cursorRaw string
	pageSize  int
	descOrder bool
}

// Engine wires the shared collaborators every Builder needs; From creates a
// per-query Builder bound to one source.
type Engine struct {
	cfg      *config.Resolver
	index    IndexFinder
	loader   Loader
	relation *relation.Resolver
	cache    *ResultCache
	metrics  MetricsLogger
}

// New creates an Engine.
func New(cfg *config.Resolver, index IndexFinder, loader Loader, rel *relation.Resolver) *Engine {
	return &Engine{cfg: cfg, index: index, loader: loader, relation: rel}
}

// WithCache attaches a result cache; Exec consults and populates it. A nil
// argument disables caching.
func (e *Engine) WithCache(c *ResultCache) *Engine {
	e.cache = c
	return e
}

// WithMetrics attaches a metrics logger; Exec records a query event on
// every call, and an error event on every rejection.
func (e *Engine) WithMetrics(m MetricsLogger) *Engine {
	e.metrics = m
	return e
}

// From starts a query against source.
func (e *Engine) From(source string) *Builder {
	return &Builder{
		cfg:       e.cfg,
		index:     e.index,
		loader:    e.loader,
		relation:  e.relation,
		cache:     e.cache,
		metrics:   e.metrics,
		source:    source,
		orderBy:   "slug",
		direction: pager.After,
		pageSize:  20,
	}
}

// Where accumulates an eq/startsWith filter.
func (b *Builder) Where(field string, op Op, val string) *Builder {
	b.filters = append(b.filters, Filter{Field: field, Op: op, Value: val})
	return b
}

// WhereIn accumulates an `in` filter.
func (b *Builder) WhereIn(field string, values []string) *Builder {
	b.filters = append(b.filters, Filter{Field: field, Op: In, Values: values})
	return b
}

// Join appends a relation key to materialize alongside the page.
func (b *Builder) Join(relationKey string) *Builder {
	b.joins = append(b.joins, relationKey)
	return b
}

// OrderBy sets the sort field and direction (ascending by default;
// descending=true reverses).
func (b *Builder) OrderBy(field string, descending bool) *Builder {
	b.orderBy = field
	b.descOrder = descending
	return b
}

// Cursor sets the opaque page cursor and direction.
func (b *Builder) Cursor(raw string, direction pager.Direction) *Builder {
	b.cursorRaw = raw
	b.direction = direction
	return b
}

// PageSize sets the page size (must be positive; non-positive values are
// replaced by the default of 20).
func (b *Builder) PageSize(n int) *Builder {
	if n <= 0 {
		n = 20
	}
	b.pageSize = n
	return b
}

// PageResult is the result envelope of Exec.
type PageResult struct {
	Data     []value.Value
	PageInfo pager.PageInfo
}

// PeekResult is the result envelope of Peek: index lines only, no record
// load.
type PeekResult struct {
	Page     []indexcodec.Line
	PageInfo pager.PageInfo
}

// Find bypasses the index path entirely: a direct record load by slug, with
// joins applied if requested.
func (b *Builder) Find(ctx context.Context, slug string) (value.Value, bool, error) {
	src, err := b.cfg.Source(b.source)
	if err != nil {
		return value.Null, false, err
	}
	loaded, err := b.loader.LoadBySlugs(ctx, b.source, []string{slug})
	if err != nil {
		return value.Null, false, err
	}
	rec, ok := loaded[slug]
	if !ok {
		return value.Null, false, nil
	}
	recs, err := b.applyJoins(ctx, src, []value.Value{rec})
	if err != nil {
		return value.Null, false, err
	}
	return recs[0], true, nil
}

// Exec plans, narrows, orders, paginates, and materializes the query.
func (b *Builder) Exec(ctx context.Context) (PageResult, error) {
	start := time.Now()

	src, err := b.cfg.Source(b.source)
	if err != nil {
		b.logError(err)
		return PageResult{}, err
	}
	if err := b.validateFilters(src); err != nil {
		b.logError(err)
		return PageResult{}, err
	}
	if !src.HasIndex(b.orderBy) {
		err := &staticqlerr.MissingIndexError{Source: b.source, Field: b.orderBy, Reason: "orderby need index: " + b.orderBy}
		b.logError(err)
		return PageResult{}, err
	}

	cacheKey, cacheable := b.cacheKey(ctx)
	if cacheable {
		if result, ok := b.cacheGet(ctx, cacheKey); ok {
			b.logQuery(result, start, true)
			return result, nil
		}
	}

	result, err := b.exec(ctx, src)
	if err != nil {
		b.logError(err)
		return PageResult{}, err
	}
	if cacheable {
		b.cacheSet(ctx, cacheKey, result)
	}
	b.logQuery(result, start, false)
	return result, nil
}

func (b *Builder) logQuery(result PageResult, start time.Time, cacheHit bool) {
	if b.metrics == nil {
		return
	}
	b.metrics.LogQuery(b.source, b.orderBy, len(result.Data), time.Since(start).Milliseconds(), cacheHit)
}

func (b *Builder) logError(err error) {
	if b.metrics == nil {
		return
	}
	b.metrics.LogError("query", err.Error())
}

func (b *Builder) exec(ctx context.Context, src config.Source) (PageResult, error) {
	lines, err := b.plan(ctx, src)
	if err != nil {
		return PageResult{}, err
	}

	if err := sortLines(lines, b.orderBy, b.descOrder); err != nil {
		return PageResult{}, err
	}

	cursor, err := b.decodeCursor()
	if err != nil {
		return PageResult{}, err
	}

	startIdx, err := pager.GetStartIdx(lines, cursor, b.orderBy)
	if err != nil {
		return PageResult{}, err
	}

	page := pager.GetPageSlice(lines, startIdx, b.pageSize, b.direction, cursor != nil)
	info, err := pager.CreatePageInfo(lines, page, startIdx, b.pageSize, b.direction, cursor != nil, b.orderBy)
	if err != nil {
		return PageResult{}, err
	}

	slugs := slugsOf(page)
	loaded, err := b.loader.LoadBySlugs(ctx, b.source, slugs)
	if err != nil {
		return PageResult{}, err
	}

	data := make([]value.Value, 0, len(slugs))
	for _, s := range slugs {
		rec, ok := loaded[s]
		if !ok {
			return PageResult{}, &staticqlerr.IOError{Op: "loadBySlugs", Path: s, Err: fmt.Errorf("record for slug %q not found", s)}
		}
		data = append(data, rec)
	}

	data, err = b.applyJoins(ctx, src, data)
	if err != nil {
		return PageResult{}, err
	}

	return PageResult{Data: data, PageInfo: info}, nil
}

// cacheableResult is the JSON shape persisted to the result cache; it
// mirrors PageResult but with exported field names stable across releases.
type cacheableResult struct {
	Data     []value.Value  `json:"data"`
	PageInfo pager.PageInfo `json:"pageInfo"`
}

// cacheKey derives this query's cache key, qualified by the generation of
// every field the query reads (the order-by field plus every filter
// field). Returns cacheable=false if no cache is attached or the
// generation lookup fails — caching is best-effort and never blocks a
// query.
func (b *Builder) cacheKey(ctx context.Context) (string, bool) {
	if b.cache == nil {
		return "", false
	}
	generations, err := b.cache.generations(ctx, b.source, b.cacheFields())
	if err != nil {
		return "", false
	}
	shape := strings.Join([]string{
		b.orderBy, fmt.Sprint(b.descOrder), b.cursorRaw,
		fmt.Sprint(b.pageSize), string(b.direction), fmt.Sprint(b.filters), fmt.Sprint(b.joins),
	}, "|")
	return queryCacheKey(b.source, shape, generations), true
}

// cacheFields lists every field this query actually reads: the order-by
// field and every filter field, deduplicated. Only these fields'
// generations can invalidate this query's cached pages.
func (b *Builder) cacheFields() []string {
	fields := []string{b.orderBy}
	seen := map[string]struct{}{b.orderBy: {}}
	for _, f := range b.filters {
		if _, ok := seen[f.Field]; ok {
			continue
		}
		seen[f.Field] = struct{}{}
		fields = append(fields, f.Field)
	}
	return fields
}

func (b *Builder) cacheGet(ctx context.Context, key string) (PageResult, bool) {
	raw, err := b.cache.store.Get(ctx, key)
	if err != nil || raw == "" {
		return PageResult{}, false
	}
	var cached cacheableResult
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		return PageResult{}, false
	}
	return PageResult{Data: cached.Data, PageInfo: cached.PageInfo}, true
}

func (b *Builder) cacheSet(ctx context.Context, key string, result PageResult) {
	raw, err := json.Marshal(cacheableResult{Data: result.Data, PageInfo: result.PageInfo})
	if err != nil {
		return
	}
	_ = b.cache.store.Set(ctx, key, string(raw), b.cache.ttl)
}

// Peek runs the same plan/order/paginate pipeline as Exec but stops short
// of materializing records.
func (b *Builder) Peek(ctx context.Context) (PeekResult, error) {
	src, err := b.cfg.Source(b.source)
	if err != nil {
		return PeekResult{}, err
	}
	if err := b.validateFilters(src); err != nil {
		return PeekResult{}, err
	}
	if !src.HasIndex(b.orderBy) {
		return PeekResult{}, &staticqlerr.MissingIndexError{Source: b.source, Field: b.orderBy, Reason: "orderby need index: " + b.orderBy}
	}

	lines, err := b.plan(ctx, src)
	if err != nil {
		return PeekResult{}, err
	}
	if err := sortLines(lines, b.orderBy, b.descOrder); err != nil {
		return PeekResult{}, err
	}

	cursor, err := b.decodeCursor()
	if err != nil {
		return PeekResult{}, err
	}
	startIdx, err := pager.GetStartIdx(lines, cursor, b.orderBy)
	if err != nil {
		return PeekResult{}, err
	}
	page := pager.GetPageSlice(lines, startIdx, b.pageSize, b.direction, cursor != nil)
	info, err := pager.CreatePageInfo(lines, page, startIdx, b.pageSize, b.direction, cursor != nil, b.orderBy)
	if err != nil {
		return PeekResult{}, err
	}
	return PeekResult{Page: page, PageInfo: info}, nil
}

func (b *Builder) decodeCursor() (*pager.Cursor, error) {
	if b.cursorRaw == "" {
		return nil, nil
	}
	c, err := pager.Decode(b.cursorRaw)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (b *Builder) applyJoins(ctx context.Context, src config.Source, records []value.Value) ([]value.Value, error) {
	for _, key := range b.joins {
		rel, ok := src.Relations[key]
		if !ok {
			return nil, &staticqlerr.ConfigError{Source: b.source, Reason: "unknown relation key: " + key}
		}
		joined, err := b.relation.Resolve(ctx, b.source, rel, records)
		if err != nil {
			return nil, err
		}
		records = joined
	}
	return records, nil
}

// validateFilters rejects fallback filters: every filter's field must be
// slug or a member of the resolved index set.
func (b *Builder) validateFilters(src config.Source) error {
	var fallback []string
	for _, f := range b.filters {
		if !src.HasIndex(f.Field) {
			fallback = append(fallback, f.Field)
			continue
		}
		if f.Op == StartsWith && len(f.Value) < 2 {
			return &staticqlerr.ConfigError{Source: b.source, Reason: "startsWith filter on " + f.Field + " requires a value of length >= 2"}
		}
	}
	if len(fallback) > 0 {
		return &staticqlerr.MissingIndexError{Source: b.source, Field: strings.Join(fallback, ", "), Reason: "needs index: " + strings.Join(fallback, ", ")}
	}
	return nil
}

func slugsOf(lines []indexcodec.Line) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, l := range lines {
		for slug := range l.Ref {
			if _, ok := seen[slug]; !ok {
				seen[slug] = struct{}{}
				out = append(out, slug)
			}
		}
	}
	return out
}

func sortLines(lines []indexcodec.Line, orderField string, desc bool) error {
	if orderField != "slug" {
		for _, l := range lines {
			if _, err := orderValue(l, orderField); err != nil {
				return err
			}
		}
	}
	sort.SliceStable(lines, func(i, j int) bool {
		vi, _ := orderValue(lines[i], orderField)
		vj, _ := orderValue(lines[j], orderField)
		if desc {
			return vi > vj
		}
		return vi < vj
	})
	return nil
}

// orderValue resolves line's value at orderField. A line with no ref entry
// carrying orderField means the order-by field lacks an index on the
// record the line came from.
func orderValue(l indexcodec.Line, orderField string) (string, error) {
	if orderField == "slug" {
		return l.V, nil
	}
	for _, fields := range l.Ref {
		if vs := fields[orderField]; len(vs) > 0 {
			return vs[0], nil
		}
	}
	return "", &staticqlerr.MissingIndexError{Field: orderField, Reason: "orderby need index: " + orderField}
}
