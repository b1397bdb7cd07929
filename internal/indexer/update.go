package indexer

import (
	"context"
	"sort"
	"time"

	"github.com/staticql/staticql/internal/config"
	"github.com/staticql/staticql/internal/indexcodec"
)

// updateCounts tallies one source's diff entries by status, for the
// LogUpdate event ApplyDiff emits after applying a batch.
type updateCounts struct {
	added, modified, deleted int
}

// DiffStatus classifies one record-level change in an incremental update.
type DiffStatus string

const (
	Added    DiffStatus = "A"
	Modified DiffStatus = "M"
	Deleted  DiffStatus = "D"
)

// DiffEntry is one record-level change to apply to the index. For Added and
// Modified, Fields holds the newly computed indexed-field values for the
// record; for Deleted, Fields holds the last-seen values whose lines are
// removed. PrevFields holds the last-seen values, required for Modified so
// the indexer can remove the stale lines before inserting the new ones.
type DiffEntry struct {
	Status     DiffStatus
	Source     string
	Slug       string
	Fields     map[string][]string
	PrevFields map[string][]string
}

// ApplyDiff applies an ordered batch of DiffEntry values to the on-disk
// index tree, touching only the shards implied by each entry, then bumps
// the generation of exactly the fields those entries touched per source —
// an incremental update that only changes one field's values never expires
// cached pages for queries that read other fields.
func (idx *Indexer) ApplyDiff(ctx context.Context, entries []DiffEntry) error {
	start := time.Now()
	touched := make(map[string]map[string]struct{})
	counts := make(map[string]*updateCounts)

	for _, e := range entries {
		if err := idx.applyOne(ctx, e); err != nil {
			if idx.metrics != nil {
				idx.metrics.LogError("update", err.Error())
			}
			return err
		}

		fields := touched[e.Source]
		if fields == nil {
			fields = make(map[string]struct{})
			touched[e.Source] = fields
		}
		for f := range e.Fields {
			fields[f] = struct{}{}
		}
		for f := range e.PrevFields {
			fields[f] = struct{}{}
		}

		c := counts[e.Source]
		if c == nil {
			c = &updateCounts{}
			counts[e.Source] = c
		}
		switch e.Status {
		case Added:
			c.added++
		case Modified:
			c.modified++
		case Deleted:
			c.deleted++
		}
	}

	if idx.metrics != nil {
		latency := time.Since(start).Milliseconds()
		for source, c := range counts {
			idx.metrics.LogUpdate(source, c.added, c.modified, c.deleted, latency)
		}
	}

	if idx.cacheGen == nil {
		return nil
	}
	for source, fields := range touched {
		names := make([]string, 0, len(fields))
		for f := range fields {
			names = append(names, f)
		}
		if err := idx.cacheGen.BumpFields(ctx, source, names); err != nil {
			return err
		}
	}
	return nil
}

func (idx *Indexer) applyOne(ctx context.Context, e DiffEntry) error {
	src, err := idx.cfg.Source(e.Source)
	if err != nil {
		return err
	}

	switch e.Status {
	case Added:
		return idx.insertRecord(ctx, src, e.Slug, e.Fields)
	case Deleted:
		return idx.removeRecord(ctx, src, e.Slug, e.Fields)
	case Modified:
		if err := idx.removeRecord(ctx, src, e.Slug, e.PrevFields); err != nil {
			return err
		}
		return idx.insertRecord(ctx, src, e.Slug, e.Fields)
	default:
		return &indexErrUnknownStatus{status: e.Status}
	}
}

type indexErrUnknownStatus struct{ status DiffStatus }

func (e *indexErrUnknownStatus) Error() string { return "indexer: unknown diff status " + string(e.status) }

// insertRecord adds or merges slug's fields into every per-field index,
// creating ancestor manifest entries as needed.
func (idx *Indexer) insertRecord(ctx context.Context, src config.Source, slug string, fields map[string][]string) error {
	for fieldName, values := range fields {
		spec, ok := src.Indexes[fieldName]
		if !ok {
			continue
		}
		root := indexRoot(idx.cfg.OutputDir, src, fieldName)
		for _, v := range values {
			segs := indexcodec.ShardPath(v, spec.Depth)
			if err := idx.insertLine(ctx, root, segs, v, slug, fields); err != nil {
				return err
			}
		}
	}
	return nil
}

// insertLine merges (v, slug, ref) into the _index.jsonl at root/segments,
// rewriting that one shard file and threading the segment chain into every
// ancestor's _prefixes.jsonl.
func (idx *Indexer) insertLine(ctx context.Context, root string, segments []string, v, slug string, ref map[string][]string) error {
	dirPath := indexcodec.ShardDir(root, segments)
	lines, err := idx.readIndexFile(ctx, dirPath)
	if err != nil {
		return err
	}

	found := false
	for i := range lines {
		if lines[i].V == v {
			if lines[i].Ref == nil {
				lines[i].Ref = map[string]map[string][]string{}
			}
			lines[i].Ref[slug] = ref
			found = true
			break
		}
	}
	if !found {
		lines = append(lines, indexcodec.Line{V: v, VS: joinSegments(segments), Ref: map[string]map[string][]string{slug: ref}})
	}
	indexcodec.SortLines(lines)

	raw, err := indexcodec.EncodeIndexFile(lines)
	if err != nil {
		return err
	}
	if err := idx.repo.WriteFile(ctx, joinPath(dirPath, indexcodec.IndexFile), raw); err != nil {
		return err
	}

	return idx.ensureManifestChain(ctx, root, segments)
}

// ensureManifestChain makes sure every ancestor of root/segments lists the
// next segment in its _prefixes.jsonl, inserting and re-sorting as needed.
func (idx *Indexer) ensureManifestChain(ctx context.Context, root string, segments []string) error {
	cur := root
	for _, seg := range segments {
		manifest, err := idx.readManifest(ctx, cur)
		if err != nil {
			return err
		}
		if !containsSegment(manifest, seg) {
			manifest = append(manifest, seg)
			sort.Strings(manifest)
			if err := idx.repo.WriteFile(ctx, joinPath(cur, indexcodec.ManifestFile), indexcodec.EncodeManifest(manifest)); err != nil {
				return err
			}
		}
		cur = joinPath(cur, seg)
	}
	return nil
}

// removeRecord drops slug from every ref map it appears in across fields,
// deleting now-empty lines and pruning now-empty shards from ancestor
// manifests.
func (idx *Indexer) removeRecord(ctx context.Context, src config.Source, slug string, fields map[string][]string) error {
	for fieldName, values := range fields {
		spec, ok := src.Indexes[fieldName]
		if !ok {
			continue
		}
		root := indexRoot(idx.cfg.OutputDir, src, fieldName)
		for _, v := range values {
			segs := indexcodec.ShardPath(v, spec.Depth)
			if err := idx.removeLine(ctx, root, segs, v, slug); err != nil {
				return err
			}
		}
	}
	return nil
}

func (idx *Indexer) removeLine(ctx context.Context, root string, segments []string, v, slug string) error {
	dirPath := indexcodec.ShardDir(root, segments)
	lines, err := idx.readIndexFile(ctx, dirPath)
	if err != nil {
		return err
	}

	kept := lines[:0]
	for _, l := range lines {
		if l.V == v {
			delete(l.Ref, slug)
			if len(l.Ref) == 0 {
				continue // drop the now-empty line entirely
			}
		}
		kept = append(kept, l)
	}

	if len(kept) == 0 {
		if err := idx.repo.RemoveFile(ctx, joinPath(dirPath, indexcodec.IndexFile)); err != nil {
			return err
		}
	} else {
		indexcodec.SortLines(kept)
		raw, err := indexcodec.EncodeIndexFile(kept)
		if err != nil {
			return err
		}
		if err := idx.repo.WriteFile(ctx, joinPath(dirPath, indexcodec.IndexFile), raw); err != nil {
			return err
		}
	}

	return idx.pruneManifestChain(ctx, root, segments)
}

// pruneManifestChain walks root/segments from the leaf upward, removing any
// shard segment whose subtree has become empty from its parent's
// _prefixes.jsonl.
func (idx *Indexer) pruneManifestChain(ctx context.Context, root string, segments []string) error {
	for i := len(segments); i > 0; i-- {
		dir := indexcodec.ShardDir(root, segments[:i])
		hasIndex, err := idx.repo.Exists(ctx, joinPath(dir, indexcodec.IndexFile))
		if err != nil {
			return err
		}
		manifest, err := idx.readManifest(ctx, dir)
		if err != nil {
			return err
		}
		if hasIndex || len(manifest) > 0 {
			return nil // this shard is still non-empty; ancestors are unaffected
		}

		parent := indexcodec.ShardDir(root, segments[:i-1])
		parentManifest, err := idx.readManifest(ctx, parent)
		if err != nil {
			return err
		}
		pruned := parentManifest[:0]
		for _, s := range parentManifest {
			if s != segments[i-1] {
				pruned = append(pruned, s)
			}
		}
		if len(pruned) == 0 {
			if err := idx.repo.RemoveFile(ctx, joinPath(parent, indexcodec.ManifestFile)); err != nil {
				return err
			}
		} else {
			sort.Strings(pruned)
			if err := idx.repo.WriteFile(ctx, joinPath(parent, indexcodec.ManifestFile), indexcodec.EncodeManifest(pruned)); err != nil {
				return err
			}
		}
	}
	return nil
}
