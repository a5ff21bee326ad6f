package session

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/graphkv/kvcore/kv"
	"github.com/graphkv/kvcore/kv/config"
	"github.com/graphkv/kvcore/kv/query"
	"github.com/graphkv/kvcore/kv/store"
)

func newTestStore() *store.Store {
	s := store.New(config.Default(), nil)
	s.CreateTable("t", kv.KindVertex, kv.Ordered)
	s.CreateTable("counters", kv.KindCounter, kv.Hashed)
	return s
}

func TestPutBuffersWithoutTouchingEngine(t *testing.T) {
	s := newTestStore()
	sess := newSession(s, nil)

	sess.Put("t", []byte("k"), []byte("v"))
	require.True(t, sess.HasChanges())

	_, found, err := s.Get("t", []byte("k"))
	require.NoError(t, err)
	require.False(t, found) // nothing reached the engine yet
}

func TestCommitFlushesBufferInOrder(t *testing.T) {
	s := newTestStore()
	sess := newSession(s, nil)

	sess.Put("t", []byte("k"), []byte("v1"))
	sess.Put("t", []byte("k"), []byte("v2"))
	require.NoError(t, sess.Commit())
	require.False(t, sess.HasChanges())

	v, found, err := s.Get("t", []byte("k"))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "v2", string(v))
}

func TestRollbackDropsBufferedWrites(t *testing.T) {
	s := newTestStore()
	sess := newSession(s, nil)

	sess.Begin()
	sess.Put("t", []byte("k"), []byte("v"))
	sess.Rollback()

	_, found, err := s.Get("t", []byte("k"))
	require.NoError(t, err)
	require.False(t, found)
}

func TestDeletePrefixExpandsAtCommit(t *testing.T) {
	s := newTestStore()
	require.NoError(t, s.Put("t", []byte("pfx_a"), []byte("1")))
	require.NoError(t, s.Put("t", []byte("pfx_b"), []byte("2")))
	require.NoError(t, s.Put("t", []byte("other"), []byte("3")))

	sess := newSession(s, nil)
	sess.DeletePrefix("t", []byte("pfx"))
	require.NoError(t, sess.Commit())

	_, found, err := s.Get("t", []byte("pfx_a"))
	require.NoError(t, err)
	require.False(t, found)
	_, found, err = s.Get("t", []byte("other"))
	require.NoError(t, err)
	require.True(t, found)
}

func TestGetThroughExplicitTransactionSeesOwnPendingWrite(t *testing.T) {
	s := newTestStore()
	sess := newSession(s, nil)

	tx := sess.Begin()
	require.NoError(t, s.TxPut(tx, "t", []byte("k"), []byte("v")))

	v, found, err := sess.Get("t", []byte("k"))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "v", string(v))
	require.NoError(t, sess.Commit())
}

func TestIncreaseFromAbsent(t *testing.T) {
	s := newTestStore()
	sess := newSession(s, nil)

	v, err := sess.Increase("counters", []byte("ctr"), 5)
	require.NoError(t, err)
	require.EqualValues(t, 5, v)

	v, err = sess.Increase("counters", []byte("ctr"), -2)
	require.NoError(t, err)
	require.EqualValues(t, 3, v)
}

func TestIncreaseRejectsNonCounterTable(t *testing.T) {
	s := newTestStore()
	sess := newSession(s, nil)

	_, err := sess.Increase("t", []byte("ctr"), 1)
	require.Error(t, err)
	require.True(t, kv.IsCode(err, kv.CodeInvalidState))
}

func TestEncodeDecodeCounterBytesRoundTrip(t *testing.T) {
	for _, endian := range []config.CounterEndianness{config.EndiannessLittle, config.EndiannessBig} {
		encoded := encodeCounterBytes(0x0102030405060708, endian)
		var acc uint256.Int
		acc.SetBytes(decodeCounterBytes(encoded, endian))
		require.EqualValues(t, 0x0102030405060708, acc.Uint64())
	}
}

func TestCloseRollsBackUnflushedSession(t *testing.T) {
	s := newTestStore()
	sess := newSession(s, nil)

	sess.Put("t", []byte("k"), []byte("v"))
	sess.Close()

	require.False(t, sess.HasChanges())
	_, found, err := s.Get("t", []byte("k"))
	require.NoError(t, err)
	require.False(t, found)
}

func TestScanReturnsIterator(t *testing.T) {
	s := newTestStore()
	require.NoError(t, s.Put("t", []byte("a"), []byte("1")))
	require.NoError(t, s.Put("t", []byte("b"), []byte("2")))

	sess := newSession(s, nil)
	it, err := sess.Scan("t", query.Query{Kind: query.FullScan})
	require.NoError(t, err)

	var got []string
	for it.Next() {
		got = append(got, string(it.KV().Key))
	}
	require.Equal(t, []string{"a", "b"}, got)
}
