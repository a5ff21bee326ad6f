package kv

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeValueRoundTrip(t *testing.T) {
	cases := [][]Column{
		nil,
		{},
		{{Name: "a", Value: []byte("1")}},
		{{Name: "a", Value: []byte("1")}, {Name: "b", Value: nil}},
		{{Name: "", Value: []byte{}}},
	}
	for _, cols := range cases {
		enc := EncodeValue(cols)
		got, err := DecodeValue(enc)
		require.NoError(t, err)
		require.Equal(t, len(cols), len(got))
		for i := range cols {
			require.Equal(t, cols[i].Name, got[i].Name)
			require.Equal(t, len(cols[i].Value), len(got[i].Value))
		}
	}
}

func TestDecodeValueTruncated(t *testing.T) {
	enc := EncodeValue([]Column{{Name: "a", Value: []byte("1")}})
	_, err := DecodeValue(enc[:len(enc)-1])
	require.Error(t, err)
	require.True(t, IsCode(err, CodeMalformedValue))
}
