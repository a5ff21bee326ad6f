package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/graphkv/kvcore/kv"
	"github.com/graphkv/kvcore/kv/config"
)

func TestNewGraphStorePreRegistersRoster(t *testing.T) {
	s := NewGraphStore(config.Default(), nil)
	require.True(t, s.HasTable(tableVertices))
	require.True(t, s.HasTable(tableEdges))
	require.True(t, s.HasTable(tablePropIndex))
	require.True(t, s.HasTable(TableCounters))

	kinds := s.Registry.ListKinds()
	require.Contains(t, kinds, kv.KindVertex)
	require.Contains(t, kinds, kv.KindEdge)
	require.Contains(t, kinds, kv.KindPropertyIndex)
	require.Contains(t, kinds, kv.KindCounter)
}

func TestNewSchemaStorePreRegistersSchemaMeta(t *testing.T) {
	s := NewSchemaStore(config.Default(), nil)
	require.True(t, s.HasTable(tableSchema))
	require.True(t, s.HasTable(TableCounters))
}

func TestNewSystemStorePreRegistersSystem(t *testing.T) {
	s := NewSystemStore(config.Default(), nil)
	require.True(t, s.HasTable(tableSystem))
	require.True(t, s.HasTable(TableCounters))
}
