package indexer_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/staticql/staticql/internal/config"
	"github.com/staticql/staticql/internal/indexer"
	"github.com/staticql/staticql/internal/loader"
	"github.com/staticql/staticql/internal/pager"
	"github.com/staticql/staticql/internal/parser"
	"github.com/staticql/staticql/internal/query"
	"github.com/staticql/staticql/internal/relation"
	"github.com/staticql/staticql/internal/repository"
)

const herbsYAML = `
output_dir: ./index-build
sources:
  herbs:
    pattern: "herbs/*.md"
    type: markdown
    index:
      name:
        depth: 2
`

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
}

func newEngine(t *testing.T, root, cfgYAML string) (*config.Resolver, *indexer.Indexer, *query.Engine) {
	t.Helper()
	cfgPath := filepath.Join(root, "staticql.yaml")
	writeFile(t, root, "staticql.yaml", cfgYAML)
	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)

	repo := repository.NewLocal(root)
	repo.SetResolver(cfg)

	parsers := parser.NewRegistry()
	idx := indexer.New(cfg, repo, parsers, nil)
	ld := loader.New(cfg, repo, parsers)
	rel := relation.New(cfg, idx, ld)
	qe := query.New(cfg, idx, ld, rel)
	return cfg, idx, qe
}

func setupHerbs(t *testing.T) (string, *indexer.Indexer, *query.Engine) {
	root := t.TempDir()
	writeFile(t, root, "herbs/arctium-lappa.md", "---\nname: ゴボウ\n---\n")
	writeFile(t, root, "herbs/centella-asiatica.md", "---\nname: アマチャヅル\n---\n")
	writeFile(t, root, "herbs/cymbopogon-citratus.md", "---\nname: レモングラス\n---\n")

	_, idx, qe := newEngine(t, root, herbsYAML)
	ctx := context.Background()
	stats, err := idx.Build(ctx, "herbs")
	require.NoError(t, err)
	require.Equal(t, 3, stats.RecordsIndexed)
	return root, idx, qe
}

func TestBuildAndOrderBySlugAscending(t *testing.T) {
	_, _, qe := setupHerbs(t)
	ctx := context.Background()

	result, err := qe.From("herbs").OrderBy("slug", false).PageSize(20).Exec(ctx)
	require.NoError(t, err)
	require.Len(t, result.Data, 3)

	var slugs []string
	for _, rec := range result.Data {
		s, _ := rec.Field("slug")
		str, _ := s.StringValue()
		slugs = append(slugs, str)
	}
	require.Equal(t, []string{"arctium-lappa", "centella-asiatica", "cymbopogon-citratus"}, slugs)
	require.False(t, result.PageInfo.HasNextPage)
	require.False(t, result.PageInfo.HasPreviousPage)
}

func TestWhereSlugEqReturnsJapaneseName(t *testing.T) {
	_, _, qe := setupHerbs(t)
	ctx := context.Background()

	result, err := qe.From("herbs").Where("slug", query.Eq, "arctium-lappa").Exec(ctx)
	require.NoError(t, err)
	require.Len(t, result.Data, 1)

	name, _ := result.Data[0].Field("name")
	str, _ := name.StringValue()
	require.Equal(t, "ゴボウ", str)
}

func TestOrderByNameWithCursorPagination(t *testing.T) {
	_, _, qe := setupHerbs(t)
	ctx := context.Background()

	page1, err := qe.From("herbs").OrderBy("name", false).PageSize(2).Exec(ctx)
	require.NoError(t, err)
	require.Len(t, page1.Data, 2)

	slug0, _ := page1.Data[0].Field("slug")
	s0, _ := slug0.StringValue()
	slug1, _ := page1.Data[1].Field("slug")
	s1, _ := slug1.StringValue()
	require.Equal(t, "centella-asiatica", s0)
	require.Equal(t, "arctium-lappa", s1)
	require.True(t, page1.PageInfo.HasNextPage)
	require.False(t, page1.PageInfo.HasPreviousPage)

	page2, err := qe.From("herbs").OrderBy("name", false).PageSize(2).
		Cursor(page1.PageInfo.EndCursor, pager.After).Exec(ctx)
	require.NoError(t, err)
	require.Len(t, page2.Data, 1)
	slug2, _ := page2.Data[0].Field("slug")
	s2, _ := slug2.StringValue()
	require.Equal(t, "cymbopogon-citratus", s2)
	require.False(t, page2.PageInfo.HasNextPage)
	require.True(t, page2.PageInfo.HasPreviousPage)
}

func TestQueryOnUnindexedFieldReturnsMissingIndexError(t *testing.T) {
	_, _, qe := setupHerbs(t)
	ctx := context.Background()

	_, err := qe.From("herbs").Where("overview", query.Eq, "anything").Exec(ctx)
	require.Error(t, err)
	require.Contains(t, err.Error(), "needs index")
	require.Contains(t, err.Error(), "overview")
}

func TestIncrementalRebuildAddAndRemove(t *testing.T) {
	root, idx, qe := setupHerbs(t)
	ctx := context.Background()

	writeFile(t, root, "herbs/rosmarinus-officinalis.md", "---\nname: ローズマリー\n---\n")
	_, err := idx.Build(ctx, "herbs")
	require.NoError(t, err)

	result, err := qe.From("herbs").Where("name", query.StartsWith, "ロー").Exec(ctx)
	require.NoError(t, err)
	require.Len(t, result.Data, 1)
	s, _ := result.Data[0].Field("slug")
	str, _ := s.StringValue()
	require.Equal(t, "rosmarinus-officinalis", str)

	require.NoError(t, os.Remove(filepath.Join(root, "herbs", "rosmarinus-officinalis.md")))
	_, err = idx.Build(ctx, "herbs")
	require.NoError(t, err)

	result, err = qe.From("herbs").Where("name", query.StartsWith, "ロー").Exec(ctx)
	require.NoError(t, err)
	require.Len(t, result.Data, 0)
}

const recipesYAML = `
output_dir: ./index-build
sources:
  herbs:
    pattern: "herbs/*.md"
    type: markdown
    index:
      name:
        depth: 2
  recipeGroups:
    pattern: "recipe-groups/*.md"
    type: markdown
    index:
      recipeSlug:
        depth: 2
  recipes:
    pattern: "recipes/*.md"
    type: markdown
    relations:
      herbs:
        to: herbs
        kind: hasManyThrough
        through: recipeGroups
        throughForeignKey: recipeSlug
        throughLocalKey: herbSlug
        targetForeignKey: slug
`

func TestThroughRelationJoin(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "herbs/arctium-lappa.md", "---\nname: ゴボウ\n---\n")
	writeFile(t, root, "herbs/centella-asiatica.md", "---\nname: アマチャヅル\n---\n")
	writeFile(t, root, "herbs/cymbopogon-citratus.md", "---\nname: レモングラス\n---\n")
	writeFile(t, root, "recipes/tomato-soup.md", "---\ntitle: Tomato soup\n---\n")
	writeFile(t, root, "recipes/herbal-tea.md", "---\ntitle: Herbal tea\n---\n")
	writeFile(t, root, "recipe-groups/tomato-soup-centella.md", "---\nrecipeSlug: tomato-soup\nherbSlug: centella-asiatica\n---\n")
	writeFile(t, root, "recipe-groups/tomato-soup-cymbopogon.md", "---\nrecipeSlug: tomato-soup\nherbSlug: cymbopogon-citratus\n---\n")
	writeFile(t, root, "recipe-groups/herbal-tea-arctium.md", "---\nrecipeSlug: herbal-tea\nherbSlug: arctium-lappa\n---\n")

	_, idx, qe := newEngine(t, root, recipesYAML)
	ctx := context.Background()

	_, err := idx.Build(ctx, "herbs")
	require.NoError(t, err)
	_, err = idx.Build(ctx, "recipeGroups")
	require.NoError(t, err)
	_, err = idx.Build(ctx, "recipes")
	require.NoError(t, err)

	result, err := qe.From("recipes").Join("herbs").PageSize(20).Exec(ctx)
	require.NoError(t, err)
	require.Len(t, result.Data, 2)

	for _, rec := range result.Data {
		recSlugV, _ := rec.Field("slug")
		recSlug, _ := recSlugV.StringValue()
		if recSlug != "tomato-soup" {
			continue
		}
		herbsField, ok := rec.Field("herbs")
		require.True(t, ok)
		arr, ok := herbsField.Array()
		require.True(t, ok)
		require.Len(t, arr, 2)

		var slugs []string
		for _, h := range arr {
			sv, _ := h.Field("slug")
			s, _ := sv.StringValue()
			slugs = append(slugs, s)
		}
		require.Contains(t, slugs, "centella-asiatica")
		require.Contains(t, slugs, "cymbopogon-citratus")
	}
}
