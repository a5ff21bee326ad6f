package kv

import (
	"sort"
	"strconv"
)

// PartitionKind distinguishes tables that support ordered range scans from
// tables that only need point operations (spec §3 "Table").
type PartitionKind uint8

const (
	// Ordered tables preserve caller iteration order on range scans.
	Ordered PartitionKind = iota
	// Hashed tables support point ops only; range scans are permitted but
	// may not preserve caller ordering (spec §3).
	Hashed
)

func (p PartitionKind) String() string {
	if p == Hashed {
		return "HASHED"
	}
	return "ORDERED"
}

// Table-kind roster (spec §9 "Polymorphic store kinds"): the byte prefix
// identifying what a key belongs to. The three store constructors in
// kv/store each pre-register a subset of this roster; the registry itself
// is agnostic to what a kind "means".
const (
	KindVertex TableKind = iota
	KindEdge
	KindPropertyIndex
	KindSchemaMeta
	KindSystem
	KindCounter
	// KindReserved marks the start of the caller-assignable range; callers
	// constructing a store with extra table kinds should start here.
	KindReserved TableKind = 16
)

// kindNames gives a human name for the built-in roster; read by KindName.
var kindNames = map[TableKind]string{
	KindVertex:        "vertex",
	KindEdge:          "edge",
	KindPropertyIndex: "property_index",
	KindSchemaMeta:    "schema_meta",
	KindSystem:        "system",
	KindCounter:       "counter",
}

// KindName returns the registered name for a table kind, or "kind_<n>" if
// the kind was never named.
func KindName(k TableKind) string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "kind_" + strconv.Itoa(int(k))
}

// TableCfgItem is the per-table static configuration the registry records
// at Create time (adapted from the teacher's erigon-lib/kv TableCfgItem,
// narrowed to what this core actually interprets).
type TableCfgItem struct {
	Kind      TableKind
	Partition PartitionKind
}

// TableCfg maps a caller-visible table name to its static configuration.
type TableCfg map[string]TableCfgItem

// SortedNames returns cfg's table names in ascending order, giving a
// deterministic roster.
func (cfg TableCfg) SortedNames() []string {
	names := make([]string, 0, len(cfg))
	for n := range cfg {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
