package relation_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/staticql/staticql/internal/config"
	"github.com/staticql/staticql/internal/indexcodec"
	"github.com/staticql/staticql/internal/relation"
	"github.com/staticql/staticql/internal/value"
)

// fakeIndex answers FindEqual from a fixed table of (source, field, value)
// -> slugs, the shape the belongsTo* and through resolvers need without
// standing up a real index tree.
type fakeIndex struct {
	table map[string]map[string][]string // source.field -> value -> slugs
}

func (f *fakeIndex) FindEqual(_ context.Context, source, fieldName, v string) ([]indexcodec.Line, error) {
	slugs := f.table[source+"."+fieldName][v]
	if len(slugs) == 0 {
		return nil, nil
	}
	ref := make(map[string]map[string][]string, len(slugs))
	for _, s := range slugs {
		ref[s] = map[string][]string{"slug": {s}}
	}
	return []indexcodec.Line{{V: v, Ref: ref}}, nil
}

// fakeLoader answers LoadBySlugs from an in-memory record table, dropping
// slugs that are not present rather than erroring.
type fakeLoader struct {
	records map[string]map[string]value.Value // source -> slug -> record
}

func (f *fakeLoader) LoadBySlugs(_ context.Context, source string, slugs []string) (map[string]value.Value, error) {
	out := make(map[string]value.Value, len(slugs))
	for _, s := range slugs {
		if rec, ok := f.records[source][s]; ok {
			out[s] = rec
		}
	}
	return out, nil
}

func rec(fields map[string]value.Value) value.Value {
	return value.Object(fields)
}

func TestResolveHasOneAttachesSingleObjectOrNull(t *testing.T) {
	loader := &fakeLoader{records: map[string]map[string]value.Value{
		"herbs": {
			"arctium-lappa": rec(map[string]value.Value{"slug": value.String("arctium-lappa"), "name": value.String("ゴボウ")}),
		},
	}}
	r := relation.New(nil, &fakeIndex{}, loader)

	rel := config.Relation{Key: "herb", To: "herbs", Kind: config.HasOne, LocalKey: "herbSlug"}
	records := []value.Value{
		rec(map[string]value.Value{"slug": value.String("r1"), "herbSlug": value.String("arctium-lappa")}),
		rec(map[string]value.Value{"slug": value.String("r2"), "herbSlug": value.String("missing-slug")}),
	}

	out, err := r.Resolve(context.Background(), "recipes", rel, records)
	require.NoError(t, err)
	require.Len(t, out, 2)

	herb, ok := out[0].Field("herb")
	require.True(t, ok)
	name, _ := herb.Field("name")
	s, _ := name.StringValue()
	require.Equal(t, "ゴボウ", s)

	missing, ok := out[1].Field("herb")
	require.True(t, ok)
	require.True(t, missing.IsNull(), "a hasOne relation with no matching target attaches null")
}

func TestResolveHasManyAttachesArray(t *testing.T) {
	loader := &fakeLoader{records: map[string]map[string]value.Value{
		"herbs": {
			"a": rec(map[string]value.Value{"slug": value.String("a")}),
			"b": rec(map[string]value.Value{"slug": value.String("b")}),
		},
	}}
	r := relation.New(nil, &fakeIndex{}, loader)

	rel := config.Relation{Key: "herbs", To: "herbs", Kind: config.HasMany, LocalKey: "herbSlugs"}
	records := []value.Value{
		rec(map[string]value.Value{"slug": value.String("r1"), "herbSlugs": value.Array([]value.Value{value.String("a"), value.String("b")})}),
	}

	out, err := r.Resolve(context.Background(), "recipes", rel, records)
	require.NoError(t, err)

	herbs, ok := out[0].Field("herbs")
	require.True(t, ok)
	arr, ok := herbs.Array()
	require.True(t, ok)
	require.Len(t, arr, 2)
}

func TestResolveBelongsToFiltersByForeignKeyIntersection(t *testing.T) {
	idx := &fakeIndex{table: map[string]map[string][]string{
		"recipes.herbSlug": {"arctium-lappa": {"r1", "r2"}},
	}}
	loader := &fakeLoader{records: map[string]map[string]value.Value{
		"recipes": {
			"r1": rec(map[string]value.Value{"slug": value.String("r1"), "herbSlug": value.String("arctium-lappa")}),
			"r2": rec(map[string]value.Value{"slug": value.String("r2"), "herbSlug": value.String("centella-asiatica")}),
		},
	}}
	r := relation.New(nil, idx, loader)

	rel := config.Relation{Key: "recipe", To: "recipes", Kind: config.BelongsTo, LocalKey: "slug", ForeignKey: "herbSlug"}
	records := []value.Value{
		rec(map[string]value.Value{"slug": value.String("arctium-lappa")}),
	}

	out, err := r.Resolve(context.Background(), "herbs", rel, records)
	require.NoError(t, err)

	recipe, ok := out[0].Field("recipe")
	require.True(t, ok)
	slug, _ := recipe.Field("slug")
	s, _ := slug.StringValue()
	require.Equal(t, "r1", s, "r2's herbSlug does not intersect the local value, so it is filtered out")
}

func TestResolveBelongsToManyAttachesAllMatches(t *testing.T) {
	idx := &fakeIndex{table: map[string]map[string][]string{
		"recipes.herbSlug": {"arctium-lappa": {"r1", "r2"}},
	}}
	loader := &fakeLoader{records: map[string]map[string]value.Value{
		"recipes": {
			"r1": rec(map[string]value.Value{"slug": value.String("r1"), "herbSlug": value.String("arctium-lappa")}),
			"r2": rec(map[string]value.Value{"slug": value.String("r2"), "herbSlug": value.String("arctium-lappa")}),
		},
	}}
	r := relation.New(nil, idx, loader)

	rel := config.Relation{Key: "recipes", To: "recipes", Kind: config.BelongsToMany, LocalKey: "slug", ForeignKey: "herbSlug"}
	records := []value.Value{
		rec(map[string]value.Value{"slug": value.String("arctium-lappa")}),
	}

	out, err := r.Resolve(context.Background(), "herbs", rel, records)
	require.NoError(t, err)

	recipes, ok := out[0].Field("recipes")
	require.True(t, ok)
	arr, ok := recipes.Array()
	require.True(t, ok)
	require.Len(t, arr, 2)
}
