package query

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/graphkv/kvcore/kv"
)

func TestPlanByPrefix(t *testing.T) {
	p, err := Plan(Query{Kind: ByPrefix, Prefix: []byte("abc")})
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), p.Lo)
	require.Equal(t, []byte("abd"), p.Hi)
}

func TestPlanByRangeHalfOpen(t *testing.T) {
	p, err := Plan(Query{Kind: ByRange, Lo: []byte("b"), Hi: []byte("d"), LoInclusive: true, HiInclusive: false})
	require.NoError(t, err)
	require.Equal(t, []byte("b"), p.Lo)
	require.Equal(t, []byte("d"), p.Hi)
}

func TestPlanByRangeInclusiveUpper(t *testing.T) {
	p, err := Plan(Query{Kind: ByRange, Lo: []byte("b"), Hi: []byte("d"), LoInclusive: true, HiInclusive: true})
	require.NoError(t, err)
	require.Equal(t, []byte("d\x00"), p.Hi)
}

func TestPlanFullScanUnbounded(t *testing.T) {
	p, err := Plan(Query{Kind: FullScan})
	require.NoError(t, err)
	require.Nil(t, p.Lo)
	require.Nil(t, p.Hi)
}

func TestPlanZeroLimitDoesNotPeek(t *testing.T) {
	p, err := Plan(Query{Kind: FullScan, Limit: 0})
	require.NoError(t, err)
	require.Equal(t, 0, p.Limit)
	require.False(t, p.HasMore(0))
}

func TestPlanLimitTranslatesToPeekPlusOne(t *testing.T) {
	p, err := Plan(Query{Kind: FullScan, Limit: 2})
	require.NoError(t, err)
	require.Equal(t, 3, p.Limit)
	require.True(t, p.HasMore(3))
	require.False(t, p.HasMore(2))
	require.Equal(t, 2, p.VisibleLimit(3))
}

func TestPlanRejectsPageBeforeLowerBound(t *testing.T) {
	_, err := Plan(Query{Kind: ByPrefix, Prefix: []byte("abc"), Page: []byte("aaa")})
	require.Error(t, err)
	require.True(t, kv.IsCode(err, kv.CodeInvalidPage))
}

func TestPlanAcceptsPageWithinBounds(t *testing.T) {
	p, err := Plan(Query{Kind: ByPrefix, Prefix: []byte("abc"), Page: []byte("abc_1")})
	require.NoError(t, err)
	require.Equal(t, []byte("abc_1\x00"), p.Lo)
}

func TestPlanRejectsFlagMismatch(t *testing.T) {
	_, err := Plan(Query{Kind: ByPrefix, Prefix: []byte("abc"), Flags: kv.FlagGTBegin})
	require.Error(t, err)
}

func TestBoundsForIdsBelowThresholdStaysPointLookup(t *testing.T) {
	ids := [][]byte{{0, 0, 0, 1}, {0, 0, 0, 2}}
	flags, lo, hi, err := boundsForIds(ids)
	require.NoError(t, err)
	require.Nil(t, lo)
	require.Nil(t, hi)
	require.Equal(t, kv.FlagAny, flags)
}

func TestBoundsForIdsDenseContiguousRunConvertsToRange(t *testing.T) {
	ids := make([][]byte, 0, 10)
	for i := uint32(10); i < 20; i++ {
		ids = append(ids, be32(i))
	}
	flags, lo, hi, err := boundsForIds(ids)
	require.NoError(t, err)
	require.Equal(t, be32(10), lo)
	require.Equal(t, be32(20), hi)
	require.True(t, flags&kv.FlagGTEBegin != 0)
}

func TestBoundsForIdsNonContiguousStaysPointLookup(t *testing.T) {
	ids := make([][]byte, 0, 10)
	for i := uint32(0); i < 10; i++ {
		ids = append(ids, be32(i*2))
	}
	_, lo, hi, err := boundsForIds(ids)
	require.NoError(t, err)
	require.Nil(t, lo)
	require.Nil(t, hi)
}
