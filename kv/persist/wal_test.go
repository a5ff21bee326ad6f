package persist

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/graphkv/kvcore/kv"
)

func TestWriterReaderRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")

	w, err := OpenWriter(path)
	require.NoError(t, err)

	entries := []Entry{
		{CommitTS: 1, Handle: kv.Handle(1), Key: []byte("k1"), Value: []byte("v1")},
		{CommitTS: 2, Handle: kv.Handle(1), Key: []byte("k2"), Tomb: true},
		{CommitTS: 3, Handle: kv.Handle(2), Key: []byte(""), Value: []byte("")},
	}
	for _, e := range entries {
		require.NoError(t, w.Append(e))
	}
	require.NoError(t, w.Close())

	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	var got []Entry
	err = r.Replay(func(e Entry) error {
		got = append(got, e)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, uint64(1), got[0].CommitTS)
	require.Equal(t, "k1", string(got[0].Key))
	require.Equal(t, "v1", string(got[0].Value))
	require.True(t, got[1].Tomb)
	require.Equal(t, "k2", string(got[1].Key))
}

func TestSecondWriterFailsToLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")

	w1, err := OpenWriter(path)
	require.NoError(t, err)
	defer w1.Close()

	_, err = OpenWriter(path)
	require.Error(t, err)
	require.True(t, kv.IsCode(err, kv.CodeInvalidState))
}

func TestReplayEmptyLogIsNoOp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")
	w, err := OpenWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	called := false
	err = r.Replay(func(Entry) error { called = true; return nil })
	require.NoError(t, err)
	require.False(t, called)
}
