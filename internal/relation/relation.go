// Package relation implements the relation resolver: given a
// result set and a relation declaration, it produces joined objects by
// reusing the index layer for key-to-slug lookup rather than a full scan.
package relation

import (
	"context"
	"sort"

	"github.com/staticql/staticql/internal/config"
	"github.com/staticql/staticql/internal/field"
	"github.com/staticql/staticql/internal/indexcodec"
	"github.com/staticql/staticql/internal/staticqlerr"
	"github.com/staticql/staticql/internal/value"
)

// IndexFinder is the subset of the indexer the resolver needs: an equality
// lookup that returns every line whose value equals probeValue, used for
// belongsTo* and through-relation reverse lookups.
type IndexFinder interface {
	FindEqual(ctx context.Context, source, fieldName, value string) ([]indexcodec.Line, error)
}

// Loader fetches full records by slug. A failed individual slug is dropped
// from the result rather than failing the whole call, matching the
// "partial materialization" error kind: relation joins degrade
// gracefully when a target record is missing.
type Loader interface {
	LoadBySlugs(ctx context.Context, source string, slugs []string) (map[string]value.Value, error)
}

// Resolver attaches joined fields to a result set for one declared relation
// at a time.
type Resolver struct {
	cfg    *config.Resolver
	index  IndexFinder
	loader Loader
}

// New creates a relation Resolver.
func New(cfg *config.Resolver, index IndexFinder, loader Loader) *Resolver {
	return &Resolver{cfg: cfg, index: index, loader: loader}
}

// Resolve attaches rel.Key to every record in records, sourced from
// sourceName's declared relation rel.
func (r *Resolver) Resolve(ctx context.Context, sourceName string, rel config.Relation, records []value.Value) ([]value.Value, error) {
	switch {
	case rel.Kind.IsThrough():
		return r.resolveThrough(ctx, rel, records)
	case rel.Kind == config.HasOne || rel.Kind == config.HasMany:
		return r.resolveDirect(ctx, rel, records)
	case rel.Kind == config.BelongsTo || rel.Kind == config.BelongsToMany:
		return r.resolveBelongsTo(ctx, rel, records)
	default:
		return nil, &staticqlerr.ConfigError{Source: sourceName, Reason: "relation " + rel.Key + " has unresolvable kind"}
	}
}

// resolveDirect handles hasOne/hasMany: rel.localKey's value(s) on each
// record are treated directly as target slugs.
func (r *Resolver) resolveDirect(ctx context.Context, rel config.Relation, records []value.Value) ([]value.Value, error) {
	allSlugs := collectSlugs(records, rel.LocalKey)
	loaded, err := r.loader.LoadBySlugs(ctx, rel.To, allSlugs)
	if err != nil {
		return nil, err
	}

	out := make([]value.Value, len(records))
	for i, rec := range records {
		slugs := field.Resolve(rec, rel.LocalKey)
		out[i] = attach(rec, rel, gather(loaded, slugs))
	}
	return out, nil
}

// resolveBelongsTo handles belongsTo/belongsToMany: the target's index on
// rel.ForeignKey is queried for each local value, and the loaded targets are
// filtered so their foreignKey value list actually intersects the local
// value (the index lookup itself may be coarser than exact equality across
// multi-valued fields).
func (r *Resolver) resolveBelongsTo(ctx context.Context, rel config.Relation, records []value.Value) ([]value.Value, error) {
	localValues := collectSlugs(records, rel.LocalKey)

	targetSlugs := make(map[string]struct{})
	for _, lv := range localValues {
		lines, err := r.index.FindEqual(ctx, rel.To, rel.ForeignKey, lv)
		if err != nil {
			return nil, err
		}
		for _, l := range lines {
			for slug := range l.Ref {
				targetSlugs[slug] = struct{}{}
			}
		}
	}

	loaded, err := r.loader.LoadBySlugs(ctx, rel.To, setToSlice(targetSlugs))
	if err != nil {
		return nil, err
	}

	out := make([]value.Value, len(records))
	for i, rec := range records {
		local := field.Resolve(rec, rel.LocalKey)
		matches := filterByForeignKey(loaded, rel.ForeignKey, local)
		out[i] = attach(rec, rel, matches)
	}
	return out, nil
}

// resolveThrough handles hasOneThrough/hasManyThrough: an intermediate
// lookup on the through source, followed by a target lookup keyed on the
// intermediates' throughLocalKey values.
func (r *Resolver) resolveThrough(ctx context.Context, rel config.Relation, records []value.Value) ([]value.Value, error) {
	out := make([]value.Value, len(records))
	for i, rec := range records {
		sourceValues := field.Resolve(rec, rel.SourceLocalKey)

		intermediateSlugs := make(map[string]struct{})
		for _, sv := range sourceValues {
			lines, err := r.index.FindEqual(ctx, rel.Through, rel.ThroughForeignKey, sv)
			if err != nil {
				return nil, err
			}
			for _, l := range lines {
				for slug := range l.Ref {
					intermediateSlugs[slug] = struct{}{}
				}
			}
		}

		intermediates, err := r.loader.LoadBySlugs(ctx, rel.Through, setToSlice(intermediateSlugs))
		if err != nil {
			return nil, err
		}

		throughValues := make(map[string]struct{})
		for _, iv := range intermediates {
			for _, v := range field.Resolve(iv, rel.ThroughLocalKey) {
				throughValues[v] = struct{}{}
			}
		}

		targetSlugs := make(map[string]struct{})
		for v := range throughValues {
			lines, err := r.index.FindEqual(ctx, rel.To, rel.TargetForeignKey, v)
			if err != nil {
				return nil, err
			}
			for _, l := range lines {
				for slug := range l.Ref {
					targetSlugs[slug] = struct{}{}
				}
			}
		}

		targets, err := r.loader.LoadBySlugs(ctx, rel.To, setToSlice(targetSlugs))
		if err != nil {
			return nil, err
		}

		out[i] = attach(rec, rel, allValues(targets))
	}
	return out, nil
}

// attach sets rel.Key on rec to either a single object (hasOne/belongsTo) or
// an array (hasMany/belongsToMany/through variants). Attach order follows
// scan order, not input order.
func attach(rec value.Value, rel config.Relation, matches []value.Value) value.Value {
	single := rel.Kind == config.HasOne || rel.Kind == config.BelongsTo || rel.Kind == config.HasOneThrough
	if single {
		if len(matches) == 0 {
			return value.SetField(rec, rel.Key, value.Null)
		}
		return value.SetField(rec, rel.Key, matches[0])
	}
	return value.SetField(rec, rel.Key, value.Array(matches))
}

func collectSlugs(records []value.Value, localKey string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, rec := range records {
		for _, v := range field.Resolve(rec, localKey) {
			if _, ok := seen[v]; !ok {
				seen[v] = struct{}{}
				out = append(out, v)
			}
		}
	}
	return out
}

func gather(loaded map[string]value.Value, slugs []string) []value.Value {
	out := make([]value.Value, 0, len(slugs))
	for _, s := range slugs {
		if v, ok := loaded[s]; ok {
			out = append(out, v)
		}
	}
	return out
}

func filterByForeignKey(loaded map[string]value.Value, foreignKey string, localValues []string) []value.Value {
	wanted := make(map[string]struct{}, len(localValues))
	for _, v := range localValues {
		wanted[v] = struct{}{}
	}
	var out []value.Value
	for _, rec := range loaded {
		for _, fv := range field.Resolve(rec, foreignKey) {
			if _, ok := wanted[fv]; ok {
				out = append(out, rec)
				break
			}
		}
	}
	return out
}

func allValues(m map[string]value.Value) []value.Value {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]value.Value, len(keys))
	for i, k := range keys {
		out[i] = m[k]
	}
	return out
}

func setToSlice(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
