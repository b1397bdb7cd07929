// Package config resolves a user-authored source declaration file into the
// canonical per-source form the rest of the engine consumes: pattern,
// schema reference, relations, and the full index set (including
// synthesized reverse-lookup indexes for inbound relations).
// Sources, schema paths, and relations are all declared in YAML.
package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/staticql/staticql/internal/staticqlerr"
)

// RelationKind enumerates the direct and through relation variants.
type RelationKind string

const (
	HasOne         RelationKind = "hasOne"
	HasMany        RelationKind = "hasMany"
	BelongsTo      RelationKind = "belongsTo"
	BelongsToMany  RelationKind = "belongsToMany"
	HasOneThrough  RelationKind = "hasOneThrough"
	HasManyThrough RelationKind = "hasManyThrough"
)

// IsThrough reports whether kind is one of the two through-relation
// variants.
func (k RelationKind) IsThrough() bool {
	return k == HasOneThrough || k == HasManyThrough
}

// Relation is the resolved form of a declared relation: direct fields are
// populated for Direct variants, through fields for Through variants.
type Relation struct {
	Key  string
	To   string
	Kind RelationKind

	// Direct
	LocalKey   string
	ForeignKey string

	// Through
	Through           string
	SourceLocalKey    string
	ThroughForeignKey string
	ThroughLocalKey   string
	TargetForeignKey  string
}

// IndexSpec configures a single field's shard depth.
type IndexSpec struct {
	Depth int
}

const defaultDepth = 2

// Source is the resolved, canonical form of one source declaration.
type Source struct {
	Name      string
	Pattern   string
	Type      string // markdown | yaml | json
	Schema    string
	Relations map[string]Relation
	Indexes   map[string]IndexSpec // fieldName -> spec; always includes "slug"
}

// rawConfig mirrors the on-disk YAML shape.
type rawConfig struct {
	OutputDir string               `yaml:"output_dir"`
	Sources   map[string]rawSource `yaml:"sources"`
}

type rawSource struct {
	Pattern   string                  `yaml:"pattern"`
	Type      string                  `yaml:"type"`
	Schema    string                  `yaml:"schema"`
	Index     map[string]rawIndexSpec `yaml:"index"`
	Relations map[string]rawRelation  `yaml:"relations"`
}

type rawIndexSpec struct {
	Depth int `yaml:"depth"`
}

type rawRelation struct {
	To                string `yaml:"to"`
	Kind              string `yaml:"kind"`
	LocalKey          string `yaml:"localKey"`
	ForeignKey        string `yaml:"foreignKey"`
	Through           string `yaml:"through"`
	SourceLocalKey    string `yaml:"sourceLocalKey"`
	ThroughForeignKey string `yaml:"throughForeignKey"`
	ThroughLocalKey   string `yaml:"throughLocalKey"`
	TargetForeignKey  string `yaml:"targetForeignKey"`
}

// Resolver holds the resolved, memoized configuration for every source.
// Resolution is pure and performed once at construction; a Resolver is
// immutable after Load returns.
type Resolver struct {
	OutputDir string
	sources   map[string]Source
}

// Load reads and resolves a config file from path.
func Load(path string) (*Resolver, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &staticqlerr.ConfigError{Reason: fmt.Sprintf("read %s: %v", path, err)}
	}
	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &staticqlerr.ConfigError{Reason: fmt.Sprintf("parse %s: %v", path, err)}
	}
	return resolve(raw)
}

func resolve(raw rawConfig) (*Resolver, error) {
	sources := make(map[string]Source, len(raw.Sources))

	// First pass: resolve each source's own declared fields, without the
	// synthesized reverse-lookup indexes (those require seeing every
	// source's relations first).
	for name, rs := range raw.Sources {
		if rs.Pattern == "" {
			return nil, &staticqlerr.ConfigError{Source: name, Reason: "missing pattern"}
		}
		src := Source{
			Name:      name,
			Pattern:   rs.Pattern,
			Type:      rs.Type,
			Schema:    rs.Schema,
			Relations: make(map[string]Relation, len(rs.Relations)),
			Indexes:   make(map[string]IndexSpec),
		}
		src.Indexes["slug"] = IndexSpec{Depth: defaultDepth}

		for fname, fspec := range rs.Index {
			depth := fspec.Depth
			if depth <= 0 {
				depth = defaultDepth
			}
			src.Indexes[fname] = IndexSpec{Depth: depth}
		}

		for key, rr := range rs.Relations {
			rel, err := resolveRelation(name, key, rr)
			if err != nil {
				return nil, err
			}
			src.Relations[key] = rel
		}

		sources[name] = src
	}

	// Validate relation targets exist.
	for name, src := range sources {
		for key, rel := range src.Relations {
			if _, ok := sources[rel.To]; !ok {
				return nil, &staticqlerr.ConfigError{Source: name, Reason: fmt.Sprintf("relation %q targets unknown source %q", key, rel.To)}
			}
			if rel.Kind.IsThrough() {
				if _, ok := sources[rel.Through]; !ok {
					return nil, &staticqlerr.ConfigError{Source: name, Reason: fmt.Sprintf("relation %q through unknown source %q", key, rel.Through)}
				}
			}
		}
	}

	// Second pass: synthesize reverse-lookup indexes on the target of every
	// relation, keyed on the foreign key field, unless it is already slug.
	for _, src := range sources {
		for _, rel := range src.Relations {
			target := sources[rel.To]
			fk := rel.ForeignKey
			if rel.Kind.IsThrough() {
				fk = rel.TargetForeignKey
			}
			if fk == "" || fk == "slug" {
				continue
			}
			if _, exists := target.Indexes[fk]; !exists {
				target.Indexes[fk] = IndexSpec{Depth: defaultDepth}
			}
			sources[rel.To] = target
		}
	}

	return &Resolver{
		OutputDir: fallback(raw.OutputDir, "./index-build"),
		sources:   sources,
	}, nil
}

func resolveRelation(sourceName, key string, rr rawRelation) (Relation, error) {
	kind := RelationKind(rr.Kind)
	rel := Relation{
		Key:               key,
		To:                rr.To,
		Kind:              kind,
		LocalKey:          rr.LocalKey,
		ForeignKey:        rr.ForeignKey,
		Through:           rr.Through,
		SourceLocalKey:    rr.SourceLocalKey,
		ThroughForeignKey: rr.ThroughForeignKey,
		ThroughLocalKey:   rr.ThroughLocalKey,
		TargetForeignKey:  rr.TargetForeignKey,
	}
	if rel.To == "" {
		return Relation{}, &staticqlerr.ConfigError{Source: sourceName, Reason: fmt.Sprintf("relation %q missing 'to'", key)}
	}
	switch kind {
	case HasOne, HasMany:
		if rel.LocalKey == "" {
			return Relation{}, &staticqlerr.ConfigError{Source: sourceName, Reason: fmt.Sprintf("relation %q missing localKey", key)}
		}
	case BelongsTo, BelongsToMany:
		if rel.LocalKey == "" || rel.ForeignKey == "" {
			return Relation{}, &staticqlerr.ConfigError{Source: sourceName, Reason: fmt.Sprintf("relation %q missing localKey/foreignKey", key)}
		}
	case HasOneThrough, HasManyThrough:
		if rel.Through == "" || rel.ThroughForeignKey == "" || rel.ThroughLocalKey == "" || rel.TargetForeignKey == "" {
			return Relation{}, &staticqlerr.ConfigError{Source: sourceName, Reason: fmt.Sprintf("relation %q missing through-relation fields", key)}
		}
		if rel.SourceLocalKey == "" {
			rel.SourceLocalKey = "slug"
		}
	default:
		return Relation{}, &staticqlerr.ConfigError{Source: sourceName, Reason: fmt.Sprintf("relation %q has unknown kind %q", key, rr.Kind)}
	}
	return rel, nil
}

func fallback(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// Source returns the resolved form of a named source.
func (r *Resolver) Source(name string) (Source, error) {
	s, ok := r.sources[name]
	if !ok {
		return Source{}, &staticqlerr.ConfigError{Reason: fmt.Sprintf("unknown source %q", name)}
	}
	return s, nil
}

// Sources returns every resolved source, sorted by name for deterministic
// iteration (used by full build and doc generation).
func (r *Resolver) Sources() []Source {
	names := make([]string, 0, len(r.sources))
	for n := range r.sources {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]Source, len(names))
	for i, n := range names {
		out[i] = r.sources[n]
	}
	return out
}

// HasIndex reports whether field is indexed (or is the always-present slug
// roster) for source.
func (s Source) HasIndex(field string) bool {
	if field == "slug" {
		return true
	}
	_, ok := s.Indexes[field]
	return ok
}

// IndexDir implements repository.ConfigResolver: it lets a listing-less
// backend locate the slug index (or any other index) without directory
// enumeration.
func (r *Resolver) IndexDir(source, field string) (string, bool) {
	s, ok := r.sources[source]
	if !ok {
		return "", false
	}
	if !s.HasIndex(field) {
		return "", false
	}
	return r.OutputDir + "/index/" + source + "." + field, true
}
