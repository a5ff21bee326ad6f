package store

import (
	"go.uber.org/zap"

	"github.com/graphkv/kvcore/kv"
	"github.com/graphkv/kvcore/kv/config"
)

// Table names pre-registered by the three polymorphic store constructors
// (SPEC_FULL.md §D "Polymorphic store kinds"). The counter table is common
// to every kind so Session.Increase has somewhere to target regardless of
// which constructor built the store.
const (
	TableCounters = "__counters"

	tableVertices  = "vertices"
	tableEdges     = "edges"
	tablePropIndex = "property_index"
	tableSchema    = "schema_meta"
	tableSystem    = "system"
)

func reserveCounterTable(s *Store) {
	s.CreateTable(TableCounters, kv.KindCounter, kv.Hashed)
}

// NewSchemaStore builds a Store pre-registered with the schema-metadata
// table kind plus the shared counter table (SPEC_FULL.md §D). Intended for
// the graph layer's DDL/catalog component.
func NewSchemaStore(cfg config.Config, log *zap.Logger) *Store {
	s := New(cfg, log)
	s.CreateTable(tableSchema, kv.KindSchemaMeta, kv.Ordered)
	reserveCounterTable(s)
	return s
}

// NewGraphStore builds a Store pre-registered with the vertex, edge, and
// property-index table kinds plus the shared counter table. This is the
// kind a graph database's primary data path would use.
func NewGraphStore(cfg config.Config, log *zap.Logger) *Store {
	s := New(cfg, log)
	s.CreateTable(tableVertices, kv.KindVertex, kv.Ordered)
	s.CreateTable(tableEdges, kv.KindEdge, kv.Ordered)
	s.CreateTable(tablePropIndex, kv.KindPropertyIndex, kv.Ordered)
	reserveCounterTable(s)
	return s
}

// NewSystemStore builds a Store pre-registered with the system table kind
// plus the shared counter table. Intended for engine-internal bookkeeping
// that sits alongside the graph data rather than inside it.
func NewSystemStore(cfg config.Config, log *zap.Logger) *Store {
	s := New(cfg, log)
	s.CreateTable(tableSystem, kv.KindSystem, kv.Hashed)
	reserveCounterTable(s)
	return s
}
