package indexer

import (
	"context"
	"sort"

	"github.com/staticql/staticql/internal/indexcodec"
)

// shardNode is the in-memory shard tree built during a full index write: one
// node per directory, holding the lines that terminate exactly at that
// directory (values whose shard path has that exact length, per
// indexcodec.ShardPath) plus child nodes for deeper shards.
type shardNode struct {
	lines    map[string]*indexcodec.Line // v -> line
	children map[string]*shardNode
}

func newShardNode() *shardNode {
	return &shardNode{lines: make(map[string]*indexcodec.Line), children: make(map[string]*shardNode)}
}

// insert adds value v (with its shard-routing segments and per-slug ref
// contribution) into the tree, merging into an existing line for v if one
// already terminates at the same node.
func (n *shardNode) insert(segments []string, v string, slug string, ref map[string][]string) {
	cur := n
	for _, seg := range segments {
		child, ok := cur.children[seg]
		if !ok {
			child = newShardNode()
			cur.children[seg] = child
		}
		cur = child
	}
	line, ok := cur.lines[v]
	if !ok {
		line = &indexcodec.Line{V: v, VS: joinSegments(segments), Ref: map[string]map[string][]string{}}
		cur.lines[v] = line
	}
	line.Ref[slug] = ref
}

func joinSegments(segs []string) string {
	out := make([]byte, 0, len(segs))
	for _, s := range segs {
		out = append(out, s...)
	}
	return string(out)
}

// nonEmpty reports whether this node or any descendant holds at least one
// line (a shard segment is manifested only when its
// subtree is non-empty).
func (n *shardNode) nonEmpty() bool {
	if len(n.lines) > 0 {
		return true
	}
	for _, c := range n.children {
		if c.nonEmpty() {
			return true
		}
	}
	return false
}

// write persists this node's _index.jsonl and _prefixes.jsonl (if non-empty)
// and recurses into non-empty children, under root/dirPath segments.
func (n *shardNode) write(ctx context.Context, repo writer, root string, dirSegments []string) error {
	dirPath := indexcodec.ShardDir(root, dirSegments)

	if len(n.lines) > 0 {
		lines := make([]indexcodec.Line, 0, len(n.lines))
		for _, l := range n.lines {
			lines = append(lines, *l)
		}
		indexcodec.SortLines(lines)
		raw, err := indexcodec.EncodeIndexFile(lines)
		if err != nil {
			return err
		}
		if err := repo.WriteFile(ctx, joinPath(dirPath, indexcodec.IndexFile), raw); err != nil {
			return err
		}
	}

	var present []string
	for seg, child := range n.children {
		if child.nonEmpty() {
			present = append(present, seg)
		}
	}
	if len(present) > 0 {
		sort.Strings(present)
		if err := repo.WriteFile(ctx, joinPath(dirPath, indexcodec.ManifestFile), indexcodec.EncodeManifest(present)); err != nil {
			return err
		}
	}

	for _, seg := range present {
		if err := n.children[seg].write(ctx, repo, root, append(append([]string{}, dirSegments...), seg)); err != nil {
			return err
		}
	}
	return nil
}

func joinPath(dir, file string) string {
	if dir == "" {
		return file
	}
	return dir + "/" + file
}

// writer is the narrow subset of repository.Repository the trie writer
// needs.
type writer interface {
	WriteFile(ctx context.Context, path string, data []byte) error
}
