// Package loader implements the external record loader the query and
// relation packages depend on: given a source and a set of slugs, fetch and
// parse the corresponding files. A per-instance cache keyed by file path
// avoids re-parsing a file touched by more than one lookup in the same
// request: a parse cache scoped to one loader instance.
package loader

import (
	"context"
	"sync"

	"github.com/staticql/staticql/internal/config"
	"github.com/staticql/staticql/internal/parser"
	"github.com/staticql/staticql/internal/pathslug"
	"github.com/staticql/staticql/internal/repository"
	"github.com/staticql/staticql/internal/staticqlerr"
	"github.com/staticql/staticql/internal/value"
)

type cacheEntry struct {
	records []value.Value
	raw     []byte
}

// Loader fetches records by slug, parsing (and caching) the backing files
// on demand. The cache is never evicted and lives as long as the Loader
// itself; an Engine hands one Loader to all of its queries, so they share
// the cache.
type Loader struct {
	cfg     *config.Resolver
	repo    repository.Repository
	parsers *parser.Registry

	mu    sync.Mutex
	cache map[string]cacheEntry // file path -> parsed records
	// bySlug indexes already-loaded records by (source, slug) so repeated
	// lookups for the same slug across different calls in one request don't
	// re-scan a multi-record file.
	bySlug map[string]map[string]value.Value
}

// New creates a Loader with an empty parse cache.
func New(cfg *config.Resolver, repo repository.Repository, parsers *parser.Registry) *Loader {
	return &Loader{
		cfg:     cfg,
		repo:    repo,
		parsers: parsers,
		cache:   make(map[string]cacheEntry),
		bySlug:  make(map[string]map[string]value.Value),
	}
}

// LoadBySlugs fetches every requested slug from source, skipping (not
// failing on) any that cannot be found or whose file fails to parse; a
// listing or read error from the repository still fails the call. Callers
// that need a hard
// failure for an unresolved primary-path slug check the returned map's
// completeness themselves (the primary materialization pass
// treats a missing slug as fatal; relation resolution treats it as a drop).
func (l *Loader) LoadBySlugs(ctx context.Context, source string, slugs []string) (map[string]value.Value, error) {
	src, err := l.cfg.Source(source)
	if err != nil {
		return nil, err
	}

	if err := l.ensureIndexed(ctx, src); err != nil {
		return nil, err
	}

	l.mu.Lock()
	known := l.bySlug[source]
	l.mu.Unlock()

	out := make(map[string]value.Value, len(slugs))
	for _, s := range slugs {
		if rec, ok := known[s]; ok {
			out[s] = rec
		}
	}
	return out, nil
}

// ensureIndexed lazily parses every file of src once per Loader instance,
// populating bySlug[source]. A file that fails to parse contributes no
// records. Subsequent calls for the same source are no-ops.
func (l *Loader) ensureIndexed(ctx context.Context, src config.Source) error {
	l.mu.Lock()
	_, done := l.bySlug[src.Name]
	l.mu.Unlock()
	if done {
		return nil
	}

	paths, err := l.repo.ListFiles(ctx, src.Pattern)
	if err != nil {
		return err
	}

	hasWildcard := pathslug.HasWildcard(src.Pattern)
	bySlug := make(map[string]value.Value)

	for _, p := range paths {
		records, err := l.parseFile(ctx, src, p)
		if err != nil {
			if _, unparsable := err.(*staticqlerr.SchemaError); unparsable {
				continue
			}
			return err
		}
		for _, rec := range records {
			slug := recordSlug(src.Pattern, p, hasWildcard, rec)
			if slug != "" {
				bySlug[slug] = rec
			}
		}
	}

	l.mu.Lock()
	l.bySlug[src.Name] = bySlug
	l.mu.Unlock()
	return nil
}

func (l *Loader) parseFile(ctx context.Context, src config.Source, path string) ([]value.Value, error) {
	l.mu.Lock()
	entry, ok := l.cache[path]
	l.mu.Unlock()
	if ok {
		return entry.records, nil
	}

	raw, err := l.repo.ReadFile(ctx, path)
	if err != nil {
		return nil, err
	}
	records, err := l.parsers.Parse(src.Type, raw)
	if err != nil {
		return nil, &staticqlerr.SchemaError{Source: src.Name, Path: path, Reason: err.Error()}
	}

	l.mu.Lock()
	l.cache[path] = cacheEntry{records: records, raw: raw}
	l.mu.Unlock()
	return records, nil
}

func recordSlug(pattern, path string, hasWildcard bool, rec value.Value) string {
	if hasWildcard {
		return pathslug.SlugFromPath(pattern, path)
	}
	v, ok := rec.Field("slug")
	if !ok {
		return ""
	}
	s, ok := v.StringValue()
	if !ok {
		return ""
	}
	return s
}

// LoadOne is a convenience wrapper around LoadBySlugs for the builder's
// find(slug) bypass path.
func (l *Loader) LoadOne(ctx context.Context, source, slug string) (value.Value, bool, error) {
	m, err := l.LoadBySlugs(ctx, source, []string{slug})
	if err != nil {
		return value.Null, false, err
	}
	rec, ok := m[slug]
	return rec, ok, nil
}
