package session

import (
	"github.com/google/uuid"

	"github.com/graphkv/kvcore/kv"
)

// Iterator walks the rows a Session.Scan returned, in ascending key order.
// It holds a materialized snapshot slice rather than a live engine cursor:
// the underlying scan already ran to completion against a fixed read
// timestamp, so there is nothing further to coordinate with writers. Each
// Iterator is tagged with a UUID purely so a log line can correlate a scan's
// rows across calls; it is never used as a key or handle.
type Iterator struct {
	rows []kv.KV
	pos  int
	id   uuid.UUID
}

func newIterator(rows []kv.KV) *Iterator {
	return &Iterator{rows: rows, id: uuid.New()}
}

// CursorID identifies this iterator instance for log correlation.
func (it *Iterator) CursorID() uuid.UUID { return it.id }

// Next advances the iterator and reports whether a row is available.
func (it *Iterator) Next() bool {
	if it.pos >= len(it.rows) {
		return false
	}
	it.pos++
	return true
}

// KV returns the row at the iterator's current position. Valid only after a
// call to Next returned true.
func (it *Iterator) KV() kv.KV {
	return it.rows[it.pos-1]
}

// Len reports the total number of rows the scan produced.
func (it *Iterator) Len() int { return len(it.rows) }

// LastKey returns the key of the final row, used by callers as the next
// page's cursor. Returns nil, false if the iterator yielded no rows.
func (it *Iterator) LastKey() ([]byte, bool) {
	if len(it.rows) == 0 {
		return nil, false
	}
	return it.rows[len(it.rows)-1].Key, true
}
