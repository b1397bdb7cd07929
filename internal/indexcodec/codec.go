// Package indexcodec defines the on-disk JSONL index format: the
// PrefixIndexLine schema, the prefix-shard directory layout, the
// prefix-manifest file, and their encode/decode.
package indexcodec

import (
	"encoding/json"
	"sort"
	"strings"
)

// ManifestFile and IndexFile are the reserved filenames at every shard
// level.
const (
	ManifestFile = "_prefixes.jsonl"
	IndexFile    = "_index.jsonl"
)

// Line is the unit of storage in the index: the indexed value, its shard
// prefix, and a mapping from slug to that record's ordering-field values.
type Line struct {
	V   string                       `json:"v"`
	VS  string                       `json:"vs"`
	Ref map[string]map[string][]string `json:"ref"`
}

// Encode serializes a Line to a single compact JSON line (no trailing
// newline; callers join with "\n").
func Encode(l Line) ([]byte, error) {
	return json.Marshal(l)
}

// Decode parses a single physical line into a Line.
func Decode(raw []byte) (Line, error) {
	var l Line
	if err := json.Unmarshal(raw, &l); err != nil {
		return Line{}, err
	}
	return l, nil
}

// ShardPath computes the directory segments routing value v at the given
// depth: the first `depth` characters of v, lowercased, one character per
// segment. Values shorter than depth route at their actual length; an
// empty value routes to the directory root (no segments).
func ShardPath(v string, depth int) []string {
	lower := strings.ToLower(v)
	runes := []rune(lower)
	n := depth
	if len(runes) < n {
		n = len(runes)
	}
	segments := make([]string, n)
	for i := 0; i < n; i++ {
		segments[i] = string(runes[i])
	}
	return segments
}

// IndexRoot returns the root directory for a (source, field) index, rooted
// at outputDir.
func IndexRoot(outputDir, source, field string) string {
	return join(outputDir, "index", source+"."+field)
}

// ShardDir joins an index root with shard segments to form a directory
// path.
func ShardDir(root string, segments []string) string {
	return join(append([]string{root}, segments...)...)
}

func join(parts ...string) string {
	nonEmpty := parts[:0]
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, "/")
}

// EncodeManifest renders shard segments, sorted, as the newline-separated
// (non-JSON-wrapped) _prefixes.jsonl body. It does not deduplicate: a
// repeated segment is written once per occurrence.
func EncodeManifest(segments []string) []byte {
	sorted := append([]string(nil), segments...)
	sort.Strings(sorted)
	return []byte(strings.Join(sorted, "\n"))
}

// DecodeManifest parses a _prefixes.jsonl body into its segment list.
func DecodeManifest(raw []byte) []string {
	s := strings.TrimSpace(string(raw))
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// EncodeIndexFile renders a set of lines, already sorted ascending by V
// under Unicode code-point order, as the _index.jsonl body.
func EncodeIndexFile(lines []Line) ([]byte, error) {
	var b strings.Builder
	for i, l := range lines {
		raw, err := Encode(l)
		if err != nil {
			return nil, err
		}
		if i > 0 {
			b.WriteByte('\n')
		}
		b.Write(raw)
	}
	return []byte(b.String()), nil
}

// SortLines sorts lines ascending by V under Unicode code-point order
// (ascending Unicode code-point order).
func SortLines(lines []Line) {
	sort.Slice(lines, func(i, j int) bool { return lines[i].V < lines[j].V })
}
