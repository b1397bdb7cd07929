// Package pathslug converts between file paths and slugs, and derives the
// fixed base directory and membership regex from a source's glob pattern.
//
// Grounded on the pack's slugconv-style path<->slug regex conversion and the
// prefix-derivation approach used to scope a glob to its non-wildcard base.
package pathslug

import (
	"path"
	"regexp"
	"strings"
)

// baseDir returns the prefix of pattern up to (not including) the first `*`
// segment boundary, i.e. the last `/` before any wildcard. Patterns with no
// wildcard return the full pattern's directory.
func baseDir(pattern string) string {
	idx := strings.IndexByte(pattern, '*')
	if idx == -1 {
		return path.Dir(pattern)
	}
	prefix := pattern[:idx]
	if i := strings.LastIndexByte(prefix, '/'); i >= 0 {
		return prefix[:i]
	}
	return ""
}

// slugRegex synthesizes a regex matching a pattern's slug form: `*` becomes
// a single path-segment class, `**` a repeated-segment class joined by `--`.
func slugRegex(pattern string) *regexp.Regexp {
	base := baseDir(pattern)
	rest := strings.TrimPrefix(pattern, base)
	rest = strings.TrimPrefix(rest, "/")

	var b strings.Builder
	segments := strings.Split(rest, "/")
	for i, seg := range segments {
		if i > 0 {
			b.WriteString("--")
		}
		stripped := strings.TrimSuffix(seg, pathExt(seg))
		switch stripped {
		case "**":
			b.WriteString(`([\w-]+(--)?)*`)
		case "*":
			b.WriteString(`[\w-]+`)
		default:
			b.WriteString(regexp.QuoteMeta(stripped))
		}
	}
	return regexp.MustCompile("^" + b.String() + "$")
}

func pathExt(seg string) string {
	if i := strings.LastIndexByte(seg, '.'); i > 0 {
		return seg[i:]
	}
	return ""
}

// HasWildcard reports whether pattern contains a `*` segment (file-per-record
// source) as opposed to a single-file-many-records source.
func HasWildcard(pattern string) bool {
	return strings.ContainsRune(pattern, '*')
}

// SlugFromPath strips pattern's base directory and extension from filePath
// and substitutes `/` for `--`, producing the canonical slug.
func SlugFromPath(pattern, filePath string) string {
	base := baseDir(pattern)
	rel := strings.TrimPrefix(filePath, base)
	rel = strings.TrimPrefix(rel, "/")
	rel = strings.TrimSuffix(rel, path.Ext(rel))
	return strings.ReplaceAll(rel, "/", "--")
}

// PathFromSlug is the inverse of SlugFromPath for a single slug, using ext
// as the file extension to restore (including the leading dot).
func PathFromSlug(pattern, slug, ext string) string {
	base := baseDir(pattern)
	rel := strings.ReplaceAll(slug, "--", "/")
	if base == "" {
		return rel + ext
	}
	return base + "/" + rel + ext
}

// PathsFromSlugs is the inverse of SlugFromPath for a batch of slugs,
// validated against the pattern's membership regex. Slugs that do not
// conform are dropped rather than producing a malformed path. When pattern
// has no wildcard and the caller passed multiple slugs distinct from the
// fixed path, PathsFromSlugs returns an empty list.
func PathsFromSlugs(pattern string, slugs []string, ext string) []string {
	if !HasWildcard(pattern) {
		fixedSlug := SlugFromPath(pattern, pattern)
		for _, s := range slugs {
			if len(slugs) > 1 && s != fixedSlug {
				return nil
			}
		}
		return []string{pattern}
	}

	re := slugRegex(pattern)
	paths := make([]string, 0, len(slugs))
	for _, s := range slugs {
		if !re.MatchString(s) {
			continue
		}
		paths = append(paths, PathFromSlug(pattern, s, ext))
	}
	return paths
}

// PatternTest reports whether filePath is a member of pattern, by converting
// it to slug form and testing against the same regex PathsFromSlugs uses.
func PatternTest(pattern, filePath string) bool {
	if !HasWildcard(pattern) {
		return filePath == pattern
	}
	slug := SlugFromPath(pattern, filePath)
	return slugRegex(pattern).MatchString(slug)
}
