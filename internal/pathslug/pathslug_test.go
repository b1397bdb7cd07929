package pathslug_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/staticql/staticql/internal/pathslug"
)

func TestSlugFromPathRoundTrip(t *testing.T) {
	// P4: slugFromPath(pattern, pathsFromSlugs(pattern, [s])[0]) == s for
	// every slug conforming to the pattern.
	cases := []struct {
		pattern string
		slug    string
	}{
		{"herbs/*.md", "arctium-lappa"},
		{"docs/**/*.md", "guide--getting-started"},
	}
	for _, c := range cases {
		paths := pathslug.PathsFromSlugs(c.pattern, []string{c.slug}, ".md")
		require.Len(t, paths, 1, "pattern=%s slug=%s", c.pattern, c.slug)
		got := pathslug.SlugFromPath(c.pattern, paths[0])
		require.Equal(t, c.slug, got)
	}
}

func TestSlugFromPathStripsBaseAndExt(t *testing.T) {
	require.Equal(t, "arctium-lappa", pathslug.SlugFromPath("herbs/*.md", "herbs/arctium-lappa.md"))
	require.Equal(t, "a--b", pathslug.SlugFromPath("docs/**/*.md", "docs/a/b.md"))
}

func TestPathFromSlugInverse(t *testing.T) {
	require.Equal(t, "herbs/arctium-lappa.md", pathslug.PathFromSlug("herbs/*.md", "arctium-lappa", ".md"))
	require.Equal(t, "docs/a/b.md", pathslug.PathFromSlug("docs/**/*.md", "a--b", ".md"))
}

func TestPathsFromSlugsFixedPatternSingleSlug(t *testing.T) {
	paths := pathslug.PathsFromSlugs("config.yaml", []string{"config"}, "")
	require.Equal(t, []string{"config.yaml"}, paths)
}

func TestPathsFromSlugsFixedPatternMultipleDistinctSlugs(t *testing.T) {
	// No wildcard, multiple slugs distinct from the fixed path: empty.
	paths := pathslug.PathsFromSlugs("config.yaml", []string{"config", "other"}, "")
	require.Empty(t, paths)
}

func TestPathsFromSlugsDropsNonConforming(t *testing.T) {
	paths := pathslug.PathsFromSlugs("herbs/*.md", []string{"arctium-lappa", "../etc/passwd"}, ".md")
	require.Equal(t, []string{"herbs/arctium-lappa.md"}, paths)
}

func TestPatternTest(t *testing.T) {
	require.True(t, pathslug.PatternTest("herbs/*.md", "herbs/arctium-lappa.md"))
	require.False(t, pathslug.PatternTest("herbs/*.md", "recipes/tomato-soup.md"))
	require.True(t, pathslug.PatternTest("docs/**/*.md", "docs/a/b/c.md"))
}

func TestHasWildcard(t *testing.T) {
	require.True(t, pathslug.HasWildcard("herbs/*.md"))
	require.True(t, pathslug.HasWildcard("docs/**/*.md"))
	require.False(t, pathslug.HasWildcard("config.yaml"))
}
