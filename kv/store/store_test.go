package store

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/graphkv/kvcore/kv"
	"github.com/graphkv/kvcore/kv/config"
	"github.com/graphkv/kvcore/kv/txn"
)

func newTestStore() *Store {
	return New(config.Default(), nil)
}

func TestCreateTableIdempotent(t *testing.T) {
	s := newTestStore()
	h1 := s.CreateTable("t", kv.KindVertex, kv.Ordered)
	h2 := s.CreateTable("t", kv.KindVertex, kv.Ordered)
	require.Equal(t, h1, h2)
}

func TestAutoCommitPutGetDelete(t *testing.T) {
	s := newTestStore()
	s.CreateTable("t", kv.KindVertex, kv.Ordered)

	require.NoError(t, s.Put("t", []byte("k"), []byte("v")))
	v, found, err := s.Get("t", []byte("k"))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "v", string(v))

	require.NoError(t, s.Delete("t", []byte("k")))
	_, found, err = s.Get("t", []byte("k"))
	require.NoError(t, err)
	require.False(t, found)
}

func TestGetPopulatesCacheOnFirstRead(t *testing.T) {
	s := New(config.Config{CacheMaxEntries: 16}, nil)
	s.CreateTable("t", kv.KindVertex, kv.Ordered)
	require.NoError(t, s.Put("t", []byte("k"), []byte("v")))

	_, _, err := s.Get("t", []byte("k"))
	require.NoError(t, err)
	require.Equal(t, 1, s.Cache.Len())
}

func TestCommitInvalidatesCacheForWrittenKeys(t *testing.T) {
	s := New(config.Config{CacheMaxEntries: 16}, nil)
	s.CreateTable("t", kv.KindVertex, kv.Ordered)
	require.NoError(t, s.Put("t", []byte("k"), []byte("v1")))
	_, _, err := s.Get("t", []byte("k"))
	require.NoError(t, err)

	tx := s.BeginTx()
	require.NoError(t, s.TxPut(tx, "t", []byte("k"), []byte("v2")))
	require.NoError(t, s.CommitTx(tx))

	v, found, err := s.Get("t", []byte("k"))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "v2", string(v))
}

func TestDropTableThenOpenFails(t *testing.T) {
	s := newTestStore()
	s.CreateTable("t", kv.KindVertex, kv.Ordered)
	require.NoError(t, s.DropTable("t"))
	require.False(t, s.HasTable("t"))

	_, err := s.Get("t", []byte("k"))
	require.Error(t, err)
	require.True(t, kv.IsCode(err, kv.CodeNotFound))
}

func TestActiveTxnsGaugeTracksOpenTransactions(t *testing.T) {
	s := newTestStore()
	s.CreateTable("t", kv.KindVertex, kv.Ordered)

	tx := s.BeginTx()
	require.Equal(t, float64(1), testutil.ToFloat64(s.Metrics().ActiveTxns))

	require.NoError(t, s.TxPut(tx, "t", []byte("k"), []byte("v")))
	require.NoError(t, s.CommitTx(tx))
	require.Equal(t, float64(0), testutil.ToFloat64(s.Metrics().ActiveTxns))
	require.Equal(t, 1, testutil.CollectAndCount(s.Metrics().CommitLatency))
}

func TestActiveTxnsGaugeDecrementsOnAbort(t *testing.T) {
	s := newTestStore()
	s.CreateTable("t", kv.KindVertex, kv.Ordered)

	tx := s.BeginTxOpts(txn.Snapshot, false)
	s.AbortTx(tx)
	require.Equal(t, float64(0), testutil.ToFloat64(s.Metrics().ActiveTxns))
}

func TestShutdownIsIdempotent(t *testing.T) {
	s := newTestStore()
	s.CreateTable("t", kv.KindVertex, kv.Ordered)
	s.Shutdown()
	s.Shutdown()
	require.False(t, s.HasTable("t"))
}
