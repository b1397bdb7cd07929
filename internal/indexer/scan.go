package indexer

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/staticql/staticql/internal/indexcodec"
	"github.com/staticql/staticql/internal/staticqlerr"
)

// FindIndexLines descends the (source, field) shard tree by the routing
// segments of probeValue, then applies pred to the candidate lines. When
// exact is true only the leaf directory's own lines are scanned (used for
// equality lookups, where the searched value's shard path is the unique
// destination); when false the entire subtree rooted at that directory is
// collected first (used for startsWith and custom predicates, since every
// value under that subtree shares probeValue as a prefix).
func (idx *Indexer) FindIndexLines(ctx context.Context, source, fieldName, probeValue string, exact bool, pred func(indexValue string) bool) ([]indexcodec.Line, error) {
	src, err := idx.cfg.Source(source)
	if err != nil {
		return nil, err
	}
	spec, ok := src.Indexes[fieldName]
	if !ok {
		return nil, &staticqlerr.MissingIndexError{Source: source, Field: fieldName, Reason: "field is not indexed"}
	}

	root := indexRoot(idx.cfg.OutputDir, src, fieldName)
	segs := indexcodec.ShardPath(probeValue, spec.Depth)

	dirPath, found, err := idx.descend(ctx, root, segs)
	if err != nil || !found {
		return nil, err
	}

	var lines []indexcodec.Line
	if exact {
		lines, err = idx.readIndexFile(ctx, dirPath)
	} else {
		lines, err = idx.collectSubtree(ctx, dirPath)
	}
	if err != nil {
		return nil, err
	}

	out := lines[:0]
	for _, l := range lines {
		if pred(l.V) {
			out = append(out, l)
		}
	}
	return out, nil
}

// FindEqual is FindIndexLines specialised to exact equality (default match).
func (idx *Indexer) FindEqual(ctx context.Context, source, fieldName, value string) ([]indexcodec.Line, error) {
	return idx.FindIndexLines(ctx, source, fieldName, value, true, func(iv string) bool { return iv == value })
}

// FindStartsWith is FindIndexLines specialised to prefix matching.
func (idx *Indexer) FindStartsWith(ctx context.Context, source, fieldName, prefix string) ([]indexcodec.Line, error) {
	return idx.FindIndexLines(ctx, source, fieldName, prefix, false, func(iv string) bool { return strings.HasPrefix(iv, prefix) })
}

// descend walks dir/seg0/seg1/.../segN-1, verifying at each level that the
// parent's _prefixes.jsonl lists the next segment. Returns found=false (no
// error) when a manifest simply does not list that segment — absence of
// matching data, not a fault.
func (idx *Indexer) descend(ctx context.Context, root string, segments []string) (dirPath string, found bool, err error) {
	cur := root
	for _, seg := range segments {
		manifest, err := idx.readManifest(ctx, cur)
		if err != nil {
			return "", false, err
		}
		if !containsSegment(manifest, seg) {
			return "", false, nil
		}
		next := joinPath(cur, seg)
		if err := idx.verifyShardPresent(ctx, next); err != nil {
			return "", false, err
		}
		cur = next
	}
	return cur, true, nil
}

// verifyShardPresent enforces that a shard listed by its parent manifest
// actually has content: either its own index file or a non-empty manifest
// of its own. An empty shard with neither is an inconsistent index
// (surfaced as an inconsistent-index error).
func (idx *Indexer) verifyShardPresent(ctx context.Context, dirPath string) error {
	hasIndex, err := idx.repo.Exists(ctx, joinPath(dirPath, indexcodec.IndexFile))
	if err != nil {
		return err
	}
	if hasIndex {
		return nil
	}
	hasManifest, err := idx.repo.Exists(ctx, joinPath(dirPath, indexcodec.ManifestFile))
	if err != nil {
		return err
	}
	if hasManifest {
		return nil
	}
	return &staticqlerr.InconsistentIndexError{Path: dirPath, Reason: "shard listed by parent manifest but has no index file or children"}
}

func containsSegment(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (idx *Indexer) readManifest(ctx context.Context, dirPath string) ([]string, error) {
	path := joinPath(dirPath, indexcodec.ManifestFile)
	exists, err := idx.repo.Exists(ctx, path)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	raw, err := idx.repo.ReadFile(ctx, path)
	if err != nil {
		return nil, err
	}
	return indexcodec.DecodeManifest(raw), nil
}

func (idx *Indexer) readIndexFile(ctx context.Context, dirPath string) ([]indexcodec.Line, error) {
	path := joinPath(dirPath, indexcodec.IndexFile)
	exists, err := idx.repo.Exists(ctx, path)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	rc, err := idx.repo.OpenFileStream(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var lines []indexcodec.Line
	offset := 0
	for scanner.Scan() {
		raw := scanner.Bytes()
		n := len(raw)
		if len(bytes.TrimSpace(raw)) == 0 {
			offset += n + 1
			continue
		}
		l, err := indexcodec.Decode(raw)
		if err != nil {
			return nil, &staticqlerr.InconsistentIndexError{Path: path, Reason: fmt.Sprintf("malformed line at byte offset %d: %v", offset, err)}
		}
		lines = append(lines, l)
		offset += n + 1
	}
	if err := scanner.Err(); err != nil {
		return nil, &staticqlerr.IOError{Op: "scan", Path: path, Err: err}
	}
	return lines, nil
}

// collectSubtree gathers every line in dirPath and all of its descendant
// shards, in ascending order. Used for prefix scans, where the whole
// subtree is known to share the searched prefix.
func (idx *Indexer) collectSubtree(ctx context.Context, dirPath string) ([]indexcodec.Line, error) {
	lines, err := idx.readIndexFile(ctx, dirPath)
	if err != nil {
		return nil, err
	}
	children, err := idx.readManifest(ctx, dirPath)
	if err != nil {
		return nil, err
	}
	sorted := append([]string(nil), children...)
	sort.Strings(sorted)
	for _, seg := range sorted {
		childLines, err := idx.collectSubtree(ctx, joinPath(dirPath, seg))
		if err != nil {
			return nil, err
		}
		lines = append(lines, childLines...)
	}
	return lines, nil
}

// visit is the depth-first emitter shared by ReadForwardPrefixIndexLines and
// ReadBackwardPrefixIndexLines. It walks one shard directory at a time
// (O(fan-out) lines held at once per level, O(depth) levels on the call
// stack), calling emit for every line until emit returns false.
//
// Ascending order within a node is: the node's own lines (already sorted),
// then each child subtree in ascending segment order — shorter values that
// terminate at a node always sort before the longer values in its children
// (a prefix is lexicographically smaller than any string it prefixes).
// Descending order reverses both axes.
func (idx *Indexer) visit(ctx context.Context, dirPath string, descending bool, emit func(indexcodec.Line) bool) (bool, error) {
	ownLines, err := idx.readIndexFile(ctx, dirPath)
	if err != nil {
		return false, err
	}
	if descending {
		for i, j := 0, len(ownLines)-1; i < j; i, j = i+1, j-1 {
			ownLines[i], ownLines[j] = ownLines[j], ownLines[i]
		}
	}

	children, err := idx.readManifest(ctx, dirPath)
	if err != nil {
		return false, err
	}
	sorted := append([]string(nil), children...)
	sort.Strings(sorted)
	if descending {
		for i, j := 0, len(sorted)-1; i < j; i, j = i+1, j-1 {
			sorted[i], sorted[j] = sorted[j], sorted[i]
		}
	}

	if !descending {
		for _, l := range ownLines {
			if !emit(l) {
				return false, nil
			}
		}
	}

	for _, seg := range sorted {
		cont, err := idx.visit(ctx, joinPath(dirPath, seg), descending, emit)
		if err != nil {
			return false, err
		}
		if !cont {
			return false, nil
		}
	}

	if descending {
		for _, l := range ownLines {
			if !emit(l) {
				return false, nil
			}
		}
	}

	return true, nil
}

// ScanCursor anchors a streaming scan: the line identified by (slug,
// orderValue at orderField) and every line before it in scan order are
// skipped.
type ScanCursor struct {
	Slug       string
	OrderValue string
}

// ReadForwardPrefixIndexLines streams lines from the (source, orderField)
// index directory in ascending order, skipping up to and including the
// cursor line, stopping once limit lines have been yielded.
func (idx *Indexer) ReadForwardPrefixIndexLines(ctx context.Context, source, orderField string, limit int, cursor *ScanCursor, descending bool) ([]indexcodec.Line, error) {
	return idx.readPrefixIndexLines(ctx, source, orderField, limit, cursor, descending)
}

// ReadBackwardPrefixIndexLines streams the same shard tree in the opposite
// direction. Callers reverse the result for ascending presentation.
func (idx *Indexer) ReadBackwardPrefixIndexLines(ctx context.Context, source, orderField string, limit int, cursor *ScanCursor, descending bool) ([]indexcodec.Line, error) {
	return idx.readPrefixIndexLines(ctx, source, orderField, limit, cursor, !descending)
}

func (idx *Indexer) readPrefixIndexLines(ctx context.Context, source, orderField string, limit int, cursor *ScanCursor, descending bool) ([]indexcodec.Line, error) {
	src, err := idx.cfg.Source(source)
	if err != nil {
		return nil, err
	}
	if _, ok := src.Indexes[orderField]; !ok {
		return nil, &staticqlerr.MissingIndexError{Source: source, Field: orderField, Reason: "order field is not indexed"}
	}
	root := indexRoot(idx.cfg.OutputDir, src, orderField)

	var out []indexcodec.Line
	skipping := cursor != nil
	_, err = idx.visit(ctx, root, descending, func(l indexcodec.Line) bool {
		if ctx.Err() != nil {
			return false
		}
		if skipping {
			if l.V == cursor.OrderValue {
				if _, hasSlug := l.Ref[cursor.Slug]; hasSlug {
					skipping = false
				}
			}
			return true
		}
		out = append(out, l)
		return len(out) < limit
	})
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return out, nil
}
