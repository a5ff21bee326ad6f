// Package session implements the per-caller Session handle (spec §4.6):
// buffered writes, auto-commit vs explicit transaction dispatch, the
// atomic counter path, and scan-iterator production.
package session

import (
	"bytes"
	"encoding/binary"
	"sort"
	"sync"
	"sync/atomic"

	arc "github.com/hashicorp/golang-lru/arc/v2"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/graphkv/kvcore/kv"
	"github.com/graphkv/kvcore/kv/config"
	"github.com/graphkv/kvcore/kv/query"
	"github.com/graphkv/kvcore/kv/store"
	"github.com/graphkv/kvcore/kv/txn"
)

type opKind uint8

const (
	opPut opKind = iota
	opDelete
	opDeletePrefix
	opDeleteRange
)

type bufferedOp struct {
	kind  opKind
	table string
	key   []byte // put/delete key, or deletePrefix/deleteRange lower bound
	value []byte // put value
	hi    []byte // deleteRange upper bound (exclusive)
}

var sessionSeq uint64

// Session owns a write buffer and at most one active transaction
// (spec §3 "Session"). Exclusively owned by a single caller goroutine; two
// goroutines must not share a Session (spec §5).
type Session struct {
	id    uint64
	store *store.Store
	cfg   config.Config
	log   *zap.Logger

	mu       sync.Mutex
	buf      []bufferedOp
	activeTx *txn.Txn // non-nil only between an explicit Begin and its Commit/Rollback

	// handleCache is a per-session table name -> handle cache (SPEC_FULL.md
	// §C). It is allocated in newSession, but no Session method reads or
	// fills it: every operation resolves its table through the store's
	// registry.
	handleCache *arc.ARCCache[string, kv.Handle]
}

func newSession(s *store.Store, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	cache, _ := arc.NewARC[string, kv.Handle](64)
	return &Session{
		id:          atomic.AddUint64(&sessionSeq, 1),
		store:       s,
		cfg:         s.Config(),
		log:         log,
		handleCache: cache,
	}
}

// ID returns the session's process-local identifier, used only for logging.
func (s *Session) ID() uint64 { return s.id }

// HasChanges reports whether the write buffer holds any unflushed operation.
func (s *Session) HasChanges() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf) > 0
}

// Put buffers a write without touching the engine (spec §4.6).
func (s *Session) Put(table string, key, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = append(s.buf, bufferedOp{kind: opPut, table: table, key: cloneBytes(key), value: cloneBytes(value)})
}

// Delete buffers a point delete.
func (s *Session) Delete(table string, key []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = append(s.buf, bufferedOp{kind: opDelete, table: table, key: cloneBytes(key)})
}

// DeletePrefix buffers a prefix delete. It is expanded at commit time: the
// replay enumerates matching keys via a scan within the replay transaction
// and deletes each, satisfying atomicity (spec §4.6).
func (s *Session) DeletePrefix(table string, prefix []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = append(s.buf, bufferedOp{kind: opDeletePrefix, table: table, key: cloneBytes(prefix)})
}

// DeleteRange buffers a [lo, hi) delete, expanded the same way as
// DeletePrefix at commit time.
func (s *Session) DeleteRange(table string, lo, hi []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = append(s.buf, bufferedOp{kind: opDeleteRange, table: table, key: cloneBytes(lo), hi: cloneBytes(hi)})
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Begin starts an explicit transaction that Get/Scan will read through and
// that Commit will replay the write buffer into, instead of allocating an
// ephemeral one (spec §3 "a reference to its current transaction").
func (s *Session) Begin() *txn.Txn {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeTx == nil {
		s.activeTx = s.store.BeginTx()
	}
	return s.activeTx
}

// Get executes immediately (reads are never buffered): through the active
// explicit transaction if one is open, otherwise auto-commit (spec §4.6
// "session.get").
func (s *Session) Get(table string, key []byte) ([]byte, bool, error) {
	s.mu.Lock()
	tx := s.activeTx
	s.mu.Unlock()
	if tx != nil {
		return s.store.TxGet(tx, table, key)
	}
	return s.store.Get(table, key)
}

// Scan dispatches q through query.Plan and reads the resulting bounds
// through the active explicit transaction if one is open, else auto-commit.
func (s *Session) Scan(table string, q query.Query) (*Iterator, error) {
	plan, err := query.Plan(q)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	tx := s.activeTx
	s.mu.Unlock()

	var rows []kv.KV
	switch {
	case q.Kind == query.ById && plan.Lo == nil && len(q.Ids) > 0:
		// Plan left the ids as point lookups: one Get per id.
		for _, id := range q.Ids {
			v, found, gerr := s.Get(table, id)
			if gerr != nil {
				return nil, gerr
			}
			if found {
				rows = append(rows, kv.KV{Key: cloneBytes(id), Value: v})
			}
		}
		sort.Slice(rows, func(i, j int) bool { return bytes.Compare(rows[i].Key, rows[j].Key) < 0 })
	case tx != nil:
		rows, err = s.store.TxScan(tx, table, plan.Lo, plan.Hi, plan.Limit)
	default:
		rows, err = s.store.Scan(table, plan.Lo, plan.Hi, plan.Limit)
	}
	if err != nil {
		return nil, err
	}
	return newIterator(rows), nil
}

// Commit replays the buffer in insertion order inside the session's active
// transaction if one is open, else inside a freshly allocated one, then
// commits it and clears the buffer. A no-op on an empty buffer. On failure
// the transaction is aborted and the buffer is still cleared, with the
// error propagated (spec §4.6 "commit").
func (s *Session) Commit() error {
	s.mu.Lock()
	buf := s.buf
	s.buf = nil
	tx := s.activeTx
	allocatedHere := tx == nil
	s.mu.Unlock()

	if len(buf) == 0 {
		if allocatedHere {
			return nil
		}
		// An explicit transaction with nothing buffered: still commit it,
		// since the caller's Begin/Commit pair is the unit of work.
		err := s.store.CommitTx(tx)
		s.mu.Lock()
		s.activeTx = nil
		s.mu.Unlock()
		return err
	}

	if allocatedHere {
		tx = s.store.BeginTxOpts(txn.Snapshot, false)
	}

	if err := s.replay(tx, buf); err != nil {
		s.store.AbortTx(tx)
		s.mu.Lock()
		s.activeTx = nil
		s.mu.Unlock()
		return err
	}

	err := s.store.CommitTx(tx)
	s.mu.Lock()
	s.activeTx = nil
	s.mu.Unlock()
	return err
}

func (s *Session) replay(tx *txn.Txn, buf []bufferedOp) error {
	for _, op := range buf {
		switch op.kind {
		case opPut:
			if err := s.store.TxPut(tx, op.table, op.key, op.value); err != nil {
				return err
			}
		case opDelete:
			if err := s.store.TxDelete(tx, op.table, op.key); err != nil {
				return err
			}
		case opDeletePrefix:
			end := kv.PrefixEnd(op.key)
			rows, err := s.store.TxScan(tx, op.table, op.key, end, 0)
			if err != nil {
				return err
			}
			for _, row := range rows {
				if err := s.store.TxDelete(tx, op.table, row.Key); err != nil {
					return err
				}
			}
		case opDeleteRange:
			rows, err := s.store.TxScan(tx, op.table, op.key, op.hi, 0)
			if err != nil {
				return err
			}
			for _, row := range rows {
				if err := s.store.TxDelete(tx, op.table, row.Key); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// Rollback clears the buffer and, if a transaction was started outside the
// commit path (via Begin), aborts it (spec §4.6 "rollback").
func (s *Session) Rollback() {
	s.mu.Lock()
	s.buf = nil
	tx := s.activeTx
	s.activeTx = nil
	s.mu.Unlock()
	if tx != nil {
		s.store.AbortTx(tx)
	}
}

// Close releases the session. A session closed with a non-empty write
// buffer or a still-active transaction logs a warning naming the session
// id, the number of buffered ops, and the transaction handle, then rolls
// back rather than silently discarding the caller's unflushed work (spec §3
// "Session": "closing with a non-empty buffer or active transaction logs a
// warning and rolls back").
func (s *Session) Close() {
	s.mu.Lock()
	bufLen := len(s.buf)
	tx := s.activeTx
	s.mu.Unlock()

	if bufLen > 0 || tx != nil {
		var txHandle kv.TxID
		if tx != nil {
			txHandle = tx.ID()
		}
		s.log.Warn("session closed with unflushed work; rolling back",
			zap.Uint64("session", s.id),
			zap.Int("buffered_ops", bufLen),
			zap.Uint64("tx", uint64(txHandle)))
	}
	s.Rollback()
}

// counterWidth is the fixed byte width of an encoded counter value.
const counterWidth = 8

// Increase performs an atomic counter increment (spec §4.6 "increase",
// §9 "Counter semantics"): it flushes the pending buffer first so the
// read-modify-write observes the latest committed state, then runs a
// standalone transaction that decodes the counter, adds delta, and writes
// it back, retrying on WriteConflict up to CounterRetryAttempts times
// (SPEC_FULL.md §D).
func (s *Session) Increase(table string, key []byte, delta int64) (int64, error) {
	if err := s.checkCounterTable(table); err != nil {
		return 0, err
	}
	if err := s.Commit(); err != nil {
		return 0, err
	}

	attempts := s.cfg.CounterRetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		val, err := s.tryIncrease(table, key, delta)
		if err == nil {
			return val, nil
		}
		if !kv.IsCode(err, kv.CodeWriteConflict) {
			return 0, err
		}
		lastErr = err
	}
	return 0, lastErr
}

// checkCounterTable enforces that Increase only ever targets a table
// registered as kv.KindCounter, preventing accidental counter semantics on a
// vertex/edge table (SPEC_FULL.md §D "Reserved counter table per store").
func (s *Session) checkCounterTable(table string) error {
	h, err := s.store.Registry.Open(table)
	if err != nil {
		return err
	}
	kind, err := s.store.Registry.Kind(h)
	if err != nil {
		return err
	}
	if kind != kv.KindCounter {
		return kv.Wrap(kv.ErrInvalidState, "Session.Increase", errNotACounterTable{table})
	}
	return nil
}

type errNotACounterTable struct{ table string }

func (e errNotACounterTable) Error() string {
	return "session: table is not registered as a counter table: " + e.table
}

func (s *Session) tryIncrease(table string, key []byte, delta int64) (int64, error) {
	tx := s.store.BeginTxOpts(txn.Snapshot, false)

	cur, found, err := s.store.TxGet(tx, table, key)
	if err != nil {
		s.store.AbortTx(tx)
		return 0, err
	}

	var acc uint256.Int
	if found {
		acc.SetBytes(decodeCounterBytes(cur, s.cfg.CounterEndianness))
	}

	var delta256 uint256.Int
	if delta >= 0 {
		delta256.SetUint64(uint64(delta))
		acc.Add(&acc, &delta256)
	} else {
		delta256.SetUint64(uint64(-delta))
		acc.Sub(&acc, &delta256)
	}

	next := acc.Uint64()
	encoded := encodeCounterBytes(next, s.cfg.CounterEndianness)
	if err := s.store.TxPut(tx, table, key, encoded); err != nil {
		s.store.AbortTx(tx)
		return 0, err
	}
	if err := s.store.CommitTx(tx); err != nil {
		return 0, err
	}
	return int64(next), nil
}

func encodeCounterBytes(v uint64, endian config.CounterEndianness) []byte {
	buf := make([]byte, counterWidth)
	if endian == config.EndiannessBig {
		binary.BigEndian.PutUint64(buf, v)
	} else {
		binary.LittleEndian.PutUint64(buf, v)
	}
	return buf
}

// decodeCounterBytes returns b reinterpreted as big-endian, the byte order
// uint256.Int.SetBytes expects, regardless of how the counter was stored
// on disk.
func decodeCounterBytes(b []byte, endian config.CounterEndianness) []byte {
	buf := make([]byte, counterWidth)
	copy(buf, b)
	if endian == config.EndiannessBig {
		return buf
	}
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return buf
}
