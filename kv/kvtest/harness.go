// Package kvtest provides a small declarative scenario harness (adapted
// from the teacher's tests/state_test_util.go fixture shape) for driving a
// fresh *store.Store through a sequence of operations and asserting on the
// result, used by the end-to-end scenario tests in this package.
package kvtest

import (
	"go.uber.org/zap"

	"github.com/graphkv/kvcore/kv"
	"github.com/graphkv/kvcore/kv/config"
	"github.com/graphkv/kvcore/kv/store"
)

// NewStore builds an isolated *store.Store with a single ordered table
// named "t" pre-created, matching the table every §8 scenario operates on.
func NewStore() *store.Store {
	s := store.New(config.Default(), zap.NewNop())
	s.CreateTable("t", kv.KindVertex, kv.Ordered)
	return s
}

// Row is one key/value pair, as used by scenario assertions.
type Row struct {
	Key, Value string
}

// CollectStrings converts a []kv.KV into []Row for readable test assertions.
func CollectStrings(rows []kv.KV) []Row {
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = Row{Key: string(r.Key), Value: string(r.Value)}
	}
	return out
}
