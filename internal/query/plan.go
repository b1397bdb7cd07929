package query

import (
	"context"
	"math"

	"github.com/staticql/staticql/internal/config"
	"github.com/staticql/staticql/internal/indexcodec"
	"github.com/staticql/staticql/internal/staticqlerr"
)

// plan implements the three planning regimes, evaluated
// in order: a slug filter takes the direct-lookup path regardless of
// position in b.filters; otherwise the first remaining filter seeds the
// candidate set and every subsequent filter narrows it by slug membership;
// with no filters at all the order-by index is streamed in full.
func (b *Builder) plan(ctx context.Context, src config.Source) ([]indexcodec.Line, error) {
	if slugFilter, rest, ok := extractSlugFilter(b.filters); ok {
		lines, err := b.directSlugLookup(ctx, src, slugFilter)
		if err != nil {
			return nil, err
		}
		return b.narrow(ctx, src, lines, rest)
	}

	if len(b.filters) == 0 {
		return b.streamAll(ctx, src)
	}

	first := b.filters[0]
	lines, err := b.materialize(ctx, src, first)
	if err != nil {
		return nil, err
	}
	return b.narrow(ctx, src, lines, b.filters[1:])
}

// extractSlugFilter pulls out the first slug-field filter, if any, per
// regime 1: any filter is slug eq <s> or slug in [s...].
func extractSlugFilter(filters []Filter) (Filter, []Filter, bool) {
	for i, f := range filters {
		if f.Field == "slug" && (f.Op == Eq || f.Op == In) {
			rest := make([]Filter, 0, len(filters)-1)
			rest = append(rest, filters[:i]...)
			rest = append(rest, filters[i+1:]...)
			return f, rest, true
		}
	}
	return Filter{}, nil, false
}

// directSlugLookup resolves a slug filter straight through the slug index,
// which is always present, rather than deriving the slug's shard path by
// hand — this keeps slug routed through the same index path as any other
// field, and gives the synthesized lines real ref data for ordering by a
// non-slug field.
func (b *Builder) directSlugLookup(ctx context.Context, src config.Source, f Filter) ([]indexcodec.Line, error) {
	slugs := f.Values
	if f.Op == Eq {
		slugs = []string{f.Value}
	}

	var out []indexcodec.Line
	seen := make(map[string]struct{})
	for _, s := range slugs {
		lines, err := b.index.FindEqual(ctx, b.source, "slug", s)
		if err != nil {
			return nil, err
		}
		for _, l := range lines {
			if _, ok := l.Ref[s]; !ok {
				continue
			}
			if _, dup := seen[l.V]; dup {
				continue
			}
			seen[l.V] = struct{}{}
			out = append(out, l)
		}
	}
	return out, nil
}

// materialize resolves one filter into its candidate line set.
func (b *Builder) materialize(ctx context.Context, src config.Source, f Filter) ([]indexcodec.Line, error) {
	switch f.Op {
	case Eq:
		return b.index.FindEqual(ctx, b.source, f.Field, f.Value)
	case StartsWith:
		return b.index.FindStartsWith(ctx, b.source, f.Field, f.Value)
	case In:
		var out []indexcodec.Line
		seen := make(map[string]struct{})
		for _, v := range f.Values {
			lines, err := b.index.FindEqual(ctx, b.source, f.Field, v)
			if err != nil {
				return nil, err
			}
			for _, l := range lines {
				if _, dup := seen[l.V]; dup {
					continue
				}
				seen[l.V] = struct{}{}
				out = append(out, l)
			}
		}
		return out, nil
	default:
		return nil, &staticqlerr.ConfigError{Source: b.source, Reason: "unknown filter operator"}
	}
}

// narrow applies every remaining AND filter by re-materializing it and
// intersecting on slug membership with the already-materialized candidate
// set (regime 2's slug-membership branch; a shard-prefix short-circuit for
// filter values shorter than the index depth is a pure read-volume
// optimization this planner does not need for correctness).
func (b *Builder) narrow(ctx context.Context, src config.Source, candidates []indexcodec.Line, filters []Filter) ([]indexcodec.Line, error) {
	for _, f := range filters {
		matchLines, err := b.materialize(ctx, src, f)
		if err != nil {
			return nil, err
		}
		matchSlugs := make(map[string]struct{})
		for _, l := range matchLines {
			for slug := range l.Ref {
				matchSlugs[slug] = struct{}{}
			}
		}
		candidates = intersectBySlug(candidates, matchSlugs)
	}
	return candidates, nil
}

func intersectBySlug(lines []indexcodec.Line, keep map[string]struct{}) []indexcodec.Line {
	out := lines[:0]
	for _, l := range lines {
		filtered := make(map[string]map[string][]string, len(l.Ref))
		for slug, fields := range l.Ref {
			if _, ok := keep[slug]; ok {
				filtered[slug] = fields
			}
		}
		if len(filtered) > 0 {
			l.Ref = filtered
			out = append(out, l)
		}
	}
	return out
}

// streamAll implements regime 3: with no filters, the order-by index is
// streamed from the start in ascending code-point order. Exec's generic
// sort/cursor/slice pipeline then operates uniformly across all three
// regimes; a tighter per-page-plus-one read for an unfiltered scan is left
// for a future streaming Exec path.
func (b *Builder) streamAll(ctx context.Context, src config.Source) ([]indexcodec.Line, error) {
	return b.index.ReadForwardPrefixIndexLines(ctx, b.source, b.orderBy, math.MaxInt32, nil, false)
}
