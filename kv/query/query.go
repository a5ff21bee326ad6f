// Package query implements the scan/query dispatcher (spec §4.7): query
// variant normalization, scan-flag bound derivation, the ById-to-range
// conversion for dense id sets, limit translation for paging, and page
// cursor validation.
package query

import (
	"bytes"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/graphkv/kvcore/internal/mathutil"
	"github.com/graphkv/kvcore/kv"
)

// Kind selects which query variant Query carries (spec §4.7 "Query shapes").
type Kind int

const (
	ById Kind = iota
	ByPrefix
	ByRange
	FullScan
)

// byIDToRangeThreshold is the minimum id-set size at which a dense, sorted
// run of ids is worth converting into a single range scan instead of issuing
// one point lookup per id (SPEC_FULL.md §C, RoaringBitmap/roaring/v2 binding).
const byIDToRangeThreshold = 8

// Query describes one caller-issued scan or id lookup before it is lowered
// to an engine-level [lo, hi) range (spec §4.7).
type Query struct {
	Kind Kind

	// Ids is used by Kind == ById; each entry is a raw row id (not yet
	// kind-prefixed).
	Ids [][]byte

	// Prefix is used by Kind == ByPrefix.
	Prefix []byte

	// Lo, Hi and their inclusivity flags are used by Kind == ByRange. Hi
	// may be nil to mean "unbounded above".
	Lo, Hi           []byte
	LoInclusive      bool
	HiInclusive      bool

	// Flags carries the scan-type bitmask a caller asserts it wants;
	// Dispatch cross-checks it against the flags the shape actually implies
	// (spec §4.7 "Scan-flag cross-check").
	Flags kv.ScanFlags

	// Limit is the caller-visible logical row limit; 0 means unbounded.
	Limit int

	// Page, if non-nil, resumes a previous scan strictly after this key
	// (spec §4.7 "Paging").
	Page []byte
}

// Plan is the engine-ready lowering of a Query: a half-open byte range plus
// the peek-adjusted limit (spec §4.7 "limit translation").
type Plan struct {
	Lo, Hi   []byte
	Limit    int
	peekOne  bool
}

// HasMore reports whether rows, as returned by a scan run with p.Limit, hold
// one more row than the caller's original logical limit — i.e. there are
// more rows beyond the page (spec §4.7 "L -> L+1").
func (p *Plan) HasMore(rows int) bool {
	return p.peekOne && rows >= p.Limit
}

// VisibleLimit is the caller's original logical limit (pre peek-adjustment).
func (p *Plan) VisibleLimit(rows int) int {
	if p.peekOne && rows > 0 {
		return rows - 1
	}
	return rows
}

// Plan normalizes q into engine-level bounds. It validates the scan-flag
// cross-check and the paging invariant, then derives [Lo, Hi) and the
// peek-adjusted limit.
func Plan(q Query) (*Plan, error) {
	impliedFlags, lo, hi, err := bounds(q)
	if err != nil {
		return nil, err
	}
	if q.Flags != 0 && !kv.Matches(q.Flags.Normalize(), impliedFlags.Normalize()) {
		return nil, kv.Wrap(kv.ErrInvalidState, "query.Plan", errFlagMismatch{want: q.Flags, have: impliedFlags})
	}

	if q.Page != nil {
		if err := validatePage(q, lo, q.Page); err != nil {
			return nil, err
		}
		lo = nextAfter(q.Page)
	}

	plan := &Plan{Lo: lo, Hi: hi}
	if q.Limit > 0 {
		peeked := mathutil.IncLimitForPeek(uint64(q.Limit))
		plan.Limit = int(peeked)
		plan.peekOne = peeked != 0 && peeked != uint64(q.Limit)
	}
	return plan, nil
}

func bounds(q Query) (kv.ScanFlags, []byte, []byte, error) {
	switch q.Kind {
	case ById:
		return boundsForIds(q.Ids)
	case ByPrefix:
		flags := kv.FlagPrefixBegin | kv.FlagPrefixEnd
		end := kv.PrefixEnd(q.Prefix)
		return flags, q.Prefix, end, nil
	case ByRange:
		flags := kv.FlagAny
		lo := q.Lo
		if q.LoInclusive {
			flags |= kv.FlagGTEBegin
		} else if lo != nil {
			flags |= kv.FlagGTBegin
			lo = nextAfter(lo)
		}
		hi := q.Hi
		if q.HiInclusive && hi != nil {
			flags |= kv.FlagLTEEnd
			hi = nextAfter(hi)
		} else if hi != nil {
			flags |= kv.FlagLTEnd
		}
		return flags, lo, hi, nil
	case FullScan:
		return kv.FlagAny, nil, nil, nil
	default:
		return 0, nil, nil, kv.Wrap(kv.ErrInvalidState, "query.Plan", errUnknownKind{int(q.Kind)})
	}
}

// boundsForIds converts a dense, sorted-contiguous id set of at least
// byIDToRangeThreshold members into a single [min,max] range (spec §4.7
// "dense sorted-run detection"); otherwise it returns a nil range, leaving
// point-by-point lookups to the caller (kv/session issues one Get per id).
func boundsForIds(ids [][]byte) (kv.ScanFlags, []byte, []byte, error) {
	if len(ids) == 0 {
		return kv.FlagAny, nil, nil, nil
	}
	if len(ids) < byIDToRangeThreshold {
		return kv.FlagAny, nil, nil, nil
	}

	nums := make([]uint32, 0, len(ids))
	for _, id := range ids {
		n, ok := asUint32(id)
		if !ok {
			return kv.FlagAny, nil, nil, nil
		}
		nums = append(nums, n)
	}

	bm := roaring.New()
	bm.AddMany(nums)
	if int(bm.GetCardinality()) != len(nums) {
		// duplicate ids: not a clean run, fall back to point lookups
		return kv.FlagAny, nil, nil, nil
	}

	sorted := append([]uint32(nil), nums...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	if uint64(sorted[len(sorted)-1]-sorted[0]) != uint64(len(sorted)-1) {
		// not contiguous: point lookups are cheaper than scanning the gaps
		return kv.FlagAny, nil, nil, nil
	}

	lo := be32(sorted[0])
	hi := be32(sorted[len(sorted)-1] + 1)
	return kv.FlagAny | kv.FlagGTEBegin | kv.FlagLTEnd, lo, hi, nil
}

func asUint32(id []byte) (uint32, bool) {
	if len(id) != 4 {
		return 0, false
	}
	return uint32(id[0])<<24 | uint32(id[1])<<16 | uint32(id[2])<<8 | uint32(id[3]), true
}

func be32(v uint32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

// nextAfter returns the smallest byte string strictly greater than b,
// appending a zero byte (spec glossary "Immediate successor").
func nextAfter(b []byte) []byte {
	out := make([]byte, len(b)+1)
	copy(out, b)
	return out
}

// validatePage enforces spec §4.7 "a page cursor must lie at or after the
// query's own logical lower bound": page < lo is rejected with ErrInvalidPage.
func validatePage(q Query, lo, page []byte) error {
	if lo == nil {
		return nil
	}
	if bytes.Compare(page, lo) < 0 {
		return kv.Wrap(kv.ErrInvalidPage, "query.Plan", errPageBeforeLowerBound{})
	}
	return nil
}

type errFlagMismatch struct{ want, have kv.ScanFlags }

func (e errFlagMismatch) Error() string { return "query: asserted scan flags are not implied by the query shape" }

type errUnknownKind struct{ k int }

func (e errUnknownKind) Error() string { return "query: unknown query kind" }

type errPageBeforeLowerBound struct{}

func (errPageBeforeLowerBound) Error() string { return "query: page cursor precedes the query's lower bound" }
