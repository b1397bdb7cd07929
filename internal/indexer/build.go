package indexer

import (
	"context"
	"time"

	"github.com/staticql/staticql/internal/indexcodec"
)

// Build performs a full build of every configured index for sourceName:
// enumerate and parse every file, resolve every indexed field for every
// record, route values into the prefix-shard tree, and write the tree
// top-down (each node's own files before its children's).
func (idx *Indexer) Build(ctx context.Context, sourceName string) (*BuildStats, error) {
	start := time.Now()
	src, err := idx.cfg.Source(sourceName)
	if err != nil {
		idx.logBuildError(err)
		return nil, err
	}

	records, err := idx.loadRecords(ctx, src)
	if err != nil {
		idx.logBuildError(err)
		return nil, err
	}

	refBySlug := make(map[string]map[string][]string, len(records))
	for _, r := range records {
		refBySlug[r.Slug] = recordFields(src, r)
	}

	stats := &BuildStats{RecordsIndexed: len(records)}
	fieldNames := indexedFieldNames(src)

	for _, fieldName := range fieldNames {
		depth := src.Indexes[fieldName].Depth
		root := newShardNode()

		for _, r := range records {
			values := refBySlug[r.Slug][fieldName]
			for _, v := range values {
				segments := indexcodec.ShardPath(v, depth)
				root.insert(segments, v, r.Slug, refBySlug[r.Slug])
			}
		}

		outRoot := indexRoot(idx.cfg.OutputDir, src, fieldName)

		if !root.nonEmpty() {
			if fieldName == "slug" {
				// An empty source still
				// produces an empty slug index file, since it doubles as
				// the source's canonical record roster.
				empty, err := indexcodec.EncodeIndexFile(nil)
				if err != nil {
					idx.logBuildError(err)
					return nil, err
				}
				if err := idx.repo.WriteFile(ctx, joinPath(outRoot, indexcodec.IndexFile), empty); err != nil {
					idx.logBuildError(err)
					return nil, err
				}
			}
			continue
		}

		if err := root.write(ctx, idx.repo, outRoot, nil); err != nil {
			idx.logBuildError(err)
			return nil, err
		}
		stats.FieldsWritten++
	}

	if idx.cacheGen != nil {
		// A full build rewrites every field's shard tree regardless of
		// which values actually changed, so every field's generation
		// bumps, not just the ones with FieldsWritten > 0.
		if err := idx.cacheGen.BumpFields(ctx, sourceName, fieldNames); err != nil {
			idx.logBuildError(err)
			return nil, err
		}
	}

	if idx.metrics != nil {
		idx.metrics.LogBuild(sourceName, stats.RecordsIndexed, stats.FieldsWritten, time.Since(start).Milliseconds())
	}

	return stats, nil
}

func (idx *Indexer) logBuildError(err error) {
	if idx.metrics != nil {
		idx.metrics.LogError("build", err.Error())
	}
}

// BuildAll runs Build for every source in cfg, in name order.
func (idx *Indexer) BuildAll(ctx context.Context) (map[string]*BuildStats, error) {
	out := make(map[string]*BuildStats)
	for _, src := range idx.cfg.Sources() {
		stats, err := idx.Build(ctx, src.Name)
		if err != nil {
			return out, err
		}
		out[src.Name] = stats
	}
	return out, nil
}
