package txn

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/graphkv/kvcore/kv"
	"github.com/graphkv/kvcore/kv/engine"
)

func newManager() (*Manager, kv.Handle) {
	eng := engine.New()
	h := kv.Handle(1)
	eng.CreateTable(h, kv.Ordered)
	return New(eng, nil), h
}

func TestCommitMakesWritesVisible(t *testing.T) {
	m, h := newManager()
	tx := m.Begin(Snapshot, false)
	require.NoError(t, m.Put(tx, h, []byte("k"), []byte("v")))
	require.NoError(t, m.Commit(tx))

	reader := m.Begin(Snapshot, true)
	v, found, err := m.Get(reader, h, []byte("k"))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "v", string(v))
}

func TestAbortDiscardsWrites(t *testing.T) {
	m, h := newManager()
	tx := m.Begin(Snapshot, false)
	require.NoError(t, m.Put(tx, h, []byte("k"), []byte("v")))
	m.Abort(tx)

	reader := m.Begin(Snapshot, true)
	_, found, err := m.Get(reader, h, []byte("k"))
	require.NoError(t, err)
	require.False(t, found)
}

func TestReadOnlyTxRejectsWrite(t *testing.T) {
	m, h := newManager()
	tx := m.Begin(Snapshot, true)
	err := m.Put(tx, h, []byte("k"), []byte("v"))
	require.Error(t, err)
	require.True(t, kv.IsCode(err, kv.CodeReadOnlyViolation))
}

func TestWriteWriteConflictOnOverlappingKey(t *testing.T) {
	m, h := newManager()
	tx1 := m.Begin(Snapshot, false)
	tx2 := m.Begin(Snapshot, false)

	require.NoError(t, m.Put(tx1, h, []byte("k"), []byte("1")))
	require.NoError(t, m.Put(tx2, h, []byte("k"), []byte("2")))

	require.NoError(t, m.Commit(tx1))

	err := m.Commit(tx2)
	require.Error(t, err)
	require.True(t, kv.IsCode(err, kv.CodeWriteConflict))

	reader := m.Begin(Snapshot, true)
	v, found, err := m.Get(reader, h, []byte("k"))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "1", string(v))
}

func TestCommitTwiceFails(t *testing.T) {
	m, h := newManager()
	tx := m.Begin(Snapshot, false)
	require.NoError(t, m.Put(tx, h, []byte("k"), []byte("v")))
	require.NoError(t, m.Commit(tx))

	err := m.Commit(tx)
	require.Error(t, err)
	require.True(t, kv.IsCode(err, kv.CodeInvalidState))
}

func TestActiveCountTracksOpenTransactions(t *testing.T) {
	m, h := newManager()
	require.Equal(t, 0, m.ActiveCount())
	tx := m.Begin(Snapshot, false)
	require.Equal(t, 1, m.ActiveCount())
	require.NoError(t, m.Put(tx, h, []byte("k"), []byte("v")))
	require.NoError(t, m.Commit(tx))
	require.Equal(t, 0, m.ActiveCount())
}

func TestWriteSetReflectsStagedKeys(t *testing.T) {
	m, h := newManager()
	tx := m.Begin(Snapshot, false)
	require.NoError(t, m.Put(tx, h, []byte("a"), []byte("1")))
	require.NoError(t, m.Put(tx, h, []byte("b"), []byte("2")))

	ws := tx.WriteSet()
	require.Len(t, ws, 2)
	require.Equal(t, "a", string(ws[0].Key))
	require.Equal(t, "b", string(ws[1].Key))
}
