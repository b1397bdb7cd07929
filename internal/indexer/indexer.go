// Package indexer builds and maintains the prefix-sharded JSONL index tree:
// full builds from a source's files, diff-driven incremental updates, and
// the streaming scans the query planner relies on.
package indexer

import (
	"context"
	"log/slog"
	"sort"

	"github.com/staticql/staticql/internal/config"
	"github.com/staticql/staticql/internal/field"
	"github.com/staticql/staticql/internal/indexcodec"
	"github.com/staticql/staticql/internal/parser"
	"github.com/staticql/staticql/internal/pathslug"
	"github.com/staticql/staticql/internal/repository"
	"github.com/staticql/staticql/internal/security"
	"github.com/staticql/staticql/internal/staticqlerr"
	"github.com/staticql/staticql/internal/value"
)

// Validator checks a parsed record against a named schema. Satisfied
// structurally by internal/validate.Validator; kept as a narrow interface
// here to avoid a dependency cycle.
type Validator interface {
	Validate(ctx context.Context, schema string, rec value.Value) error
}

// GenerationBumper receives the indexed field names a build or incremental
// update touched, so an attached query result cache can expire exactly the
// cached pages that read one of those fields rather than the whole source.
type GenerationBumper interface {
	BumpFields(ctx context.Context, source string, fields []string) error
}

// MetricsLogger receives build and update events for durable analytics,
// satisfied by *metrics.Logger.
type MetricsLogger interface {
	LogBuild(source string, recordsIndexed, fieldsWritten int, latencyMs int64)
	LogUpdate(source string, added, modified, deleted int, latencyMs int64)
	LogError(operation, message string)
}

// Indexer builds and updates the index tree for every configured source.
type Indexer struct {
	cfg       *config.Resolver
	repo      repository.Repository
	parsers   *parser.Registry
	validator Validator
	logger    *slog.Logger
	secrets   *security.SecretDetector
	cacheGen  GenerationBumper
	metrics   MetricsLogger
}

// New creates an Indexer. validator may be nil, in which case schema
// validation is skipped (useful for sources with no declared schema). A
// secret-scanning pass is enabled by default; see WithoutSecretScan.
func New(cfg *config.Resolver, repo repository.Repository, parsers *parser.Registry, validator Validator) *Indexer {
	return &Indexer{
		cfg:       cfg,
		repo:      repo,
		parsers:   parsers,
		validator: validator,
		logger:    slog.Default(),
		secrets:   security.NewSecretDetector(),
	}
}

// WithLogger overrides the default logger.
func (idx *Indexer) WithLogger(logger *slog.Logger) *Indexer {
	idx.logger = logger
	return idx
}

// WithoutSecretScan disables the non-fatal secret-scanning warning pass.
func (idx *Indexer) WithoutSecretScan() *Indexer {
	idx.secrets = nil
	return idx
}

// WithCacheInvalidation attaches a generation bumper so Build and ApplyDiff
// keep a query result cache's per-field generations current on their own,
// without a separate manual invalidation step.
func (idx *Indexer) WithCacheInvalidation(b GenerationBumper) *Indexer {
	idx.cacheGen = b
	return idx
}

// WithMetrics attaches a metrics logger so Build and ApplyDiff record their
// timing and record/field counts for later analysis.
func (idx *Indexer) WithMetrics(m MetricsLogger) *Indexer {
	idx.metrics = m
	return idx
}

// Record is a parsed, slug-identified record from a source file.
type Record struct {
	Slug  string
	Value value.Value
	Path  string
}

// BuildStats summarizes a full or incremental build run.
type BuildStats struct {
	RecordsIndexed int
	FieldsWritten  int
	Errors         []error
}

// loadRecords enumerates and parses every record of source, assigning and
// validating slugs.
func (idx *Indexer) loadRecords(ctx context.Context, src config.Source) ([]Record, error) {
	paths, err := idx.repo.ListFiles(ctx, src.Pattern)
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	hasWildcard := pathslug.HasWildcard(src.Pattern)

	var out []Record
	for _, p := range paths {
		raw, err := idx.repo.ReadFile(ctx, p)
		if err != nil {
			return nil, err
		}
		if idx.secrets != nil {
			idx.secrets.ScanRecord(idx.logger, src.Name, p, raw)
		}
		recs, err := idx.parsers.Parse(src.Type, raw)
		if err != nil {
			return nil, &staticqlerr.SchemaError{Source: src.Name, Path: p, Reason: err.Error()}
		}

		for _, rv := range recs {
			rec, err := idx.assignSlug(src, p, hasWildcard, rv)
			if err != nil {
				return nil, err
			}
			if idx.validator != nil && src.Schema != "" {
				if err := idx.validator.Validate(ctx, src.Schema, rec.Value); err != nil {
					return nil, &staticqlerr.SchemaError{Source: src.Name, Path: p, Reason: err.Error()}
				}
			}
			out = append(out, rec)
		}
	}
	return out, nil
}

func (idx *Indexer) assignSlug(src config.Source, path string, hasWildcard bool, rv value.Value) (Record, error) {
	embedded, hasEmbedded := fieldString(rv, "slug")

	if hasWildcard {
		derived := pathslug.SlugFromPath(src.Pattern, path)
		if hasEmbedded && embedded != "" && embedded != derived {
			return Record{}, &staticqlerr.SlugMismatchError{Source: src.Name, Path: path, DerivedSlug: derived, EmbeddedSlug: embedded}
		}
		return Record{Slug: derived, Value: rv, Path: path}, nil
	}

	if !hasEmbedded || embedded == "" {
		return Record{}, &staticqlerr.SchemaError{Source: src.Name, Path: path, Reason: "record missing required slug field"}
	}
	return Record{Slug: embedded, Value: rv, Path: path}, nil
}

func fieldString(v value.Value, key string) (string, bool) {
	vals := field.Resolve(v, key)
	if len(vals) == 0 {
		return "", false
	}
	return vals[0], true
}

// recordFields computes, for one record, the resolved value set of every
// indexed field of its source. This map is embedded verbatim as the `ref`
// entry for that slug across every one of the source's per-field indexes,
// letting the planner order by any indexed field without a record load
// (the ref embeds the order-field value).
func recordFields(src config.Source, rec Record) map[string][]string {
	out := make(map[string][]string, len(src.Indexes))
	for f := range src.Indexes {
		if f == "slug" {
			out[f] = []string{rec.Slug}
			continue
		}
		out[f] = field.Resolve(rec.Value, f)
	}
	return out
}

func indexedFieldNames(src config.Source) []string {
	names := make([]string, 0, len(src.Indexes))
	for f := range src.Indexes {
		names = append(names, f)
	}
	sort.Strings(names)
	return names
}

func indexRoot(outputDir string, src config.Source, fieldName string) string {
	return indexcodec.IndexRoot(outputDir, src.Name, fieldName)
}
