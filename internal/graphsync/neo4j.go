// Package graphsync optionally exports resolved relation edges to Neo4j
// for external graph tooling. It is additive: nothing in
// internal/relation or internal/query depends on it, and a query never
// touches the graph — export runs after a build or update, on request.
package graphsync

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Node labels.
const (
	NodeSource = "Source"
	NodeRecord = "Record"
)

// RecordNode is one indexed record, identified by source and slug.
type RecordNode struct {
	Source string
	Slug   string
}

// Edge is one resolved relation instance between two records.
type Edge struct {
	RelationKey string
	FromSource  string
	FromSlug    string
	ToSource    string
	ToSlug      string
}

// Store wraps a Neo4j driver for relation-graph export.
type Store struct {
	driver neo4j.DriverWithContext
}

// New creates a Store, verifying connectivity against uri.
func New(uri, username, password string) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("connect to neo4j: %w", err)
	}

	return &Store{driver: driver}, nil
}

// Close closes the underlying driver.
func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// EnsureSchema creates the uniqueness constraint backing record upserts.
func (s *Store) EnsureSchema(ctx context.Context) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.Run(ctx,
		"CREATE CONSTRAINT record_slug IF NOT EXISTS FOR (r:Record) REQUIRE (r.source, r.slug) IS UNIQUE",
		nil)
	return err
}

// UpsertRecord creates or confirms a record node.
func (s *Store) UpsertRecord(ctx context.Context, rec RecordNode) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.Run(ctx, `
		MERGE (r:Record {source: $source, slug: $slug})
	`, map[string]interface{}{
		"source": rec.Source,
		"slug":   rec.Slug,
	})
	return err
}

// SyncEdges replaces every edge of relationKey out of fromSource with the
// set given in edges, so a re-sync after an incremental update leaves no
// stale edges behind.
func (s *Store) SyncEdges(ctx context.Context, fromSource, relationKey string, edges []Edge) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.Run(ctx, `
		MATCH (from:Record {source: $fromSource})-[rel:RELATES {key: $key}]->()
		DELETE rel
	`, map[string]interface{}{
		"fromSource": fromSource,
		"key":        relationKey,
	})
	if err != nil {
		return fmt.Errorf("clear stale edges: %w", err)
	}

	for _, e := range edges {
		_, err := session.Run(ctx, `
			MERGE (from:Record {source: $fromSource, slug: $fromSlug})
			MERGE (to:Record {source: $toSource, slug: $toSlug})
			MERGE (from)-[rel:RELATES {key: $key}]->(to)
		`, map[string]interface{}{
			"fromSource": e.FromSource,
			"fromSlug":   e.FromSlug,
			"toSource":   e.ToSource,
			"toSlug":     e.ToSlug,
			"key":        e.RelationKey,
		})
		if err != nil {
			return fmt.Errorf("upsert edge %s/%s -[%s]-> %s/%s: %w", e.FromSource, e.FromSlug, e.RelationKey, e.ToSource, e.ToSlug, err)
		}
	}
	return nil
}

// DeleteSource removes every record node (and its edges) for source, used
// when a source is dropped from the config.
func (s *Store) DeleteSource(ctx context.Context, source string) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.Run(ctx, `
		MATCH (r:Record {source: $source})
		DETACH DELETE r
	`, map[string]interface{}{
		"source": source,
	})
	return err
}
