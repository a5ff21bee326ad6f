package kv

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeKeyRoundTrip(t *testing.T) {
	cases := [][]byte{
		nil,
		{},
		[]byte("hello"),
		{0x00, 0x00, 0xFF},
	}
	for _, id := range cases {
		enc := EncodeKey(TableKind(7), id)
		kind, gotID, err := DecodeKey(enc)
		require.NoError(t, err)
		require.Equal(t, TableKind(7), kind)
		// nil and empty ids encode to the same bytes; both decode to an empty slice.
		require.Equal(t, append([]byte{}, id...), gotID)
	}
}

func TestDecodeKeyEmptyInput(t *testing.T) {
	_, _, err := DecodeKey(nil)
	require.Error(t, err)
	require.True(t, IsCode(err, CodeMalformedKey))
}

func TestPrefixEnd(t *testing.T) {
	require.Equal(t, []byte("abd"), PrefixEnd([]byte("abc")))
	require.Equal(t, []byte{0x01}, PrefixEnd([]byte{0x00}))
	require.Nil(t, PrefixEnd([]byte{0xFF, 0xFF}))
	require.Equal(t, []byte{0x01}, PrefixEnd([]byte{0x00, 0xFF}))
}

func TestScanStartEnd(t *testing.T) {
	require.Equal(t, []byte{5}, ScanStart(TableKind(5), nil))
	require.Equal(t, []byte{6}, ScanEnd(TableKind(5), nil))
	require.Nil(t, ScanEnd(TableKind(0xFF), nil))

	id := []byte("id")
	require.Equal(t, EncodeKey(TableKind(5), id), ScanStart(TableKind(5), id))
	require.Equal(t, EncodeKey(TableKind(5), id), ScanEnd(TableKind(5), id))
}
