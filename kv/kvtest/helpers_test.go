package kvtest

import (
	"testing"

	"go.uber.org/zap"

	"github.com/graphkv/kvcore/kv/session"
	"github.com/graphkv/kvcore/kv/store"
)

// newTestPool builds a session.Pool over s and registers it to roll back
// any still-open session when the test ends.
func newTestPool(t *testing.T, s *store.Store) *session.Pool {
	t.Helper()
	pool := session.NewPool(s, zap.NewNop())
	t.Cleanup(func() { _ = pool.Close() })
	return pool
}
