// Package txn implements the transaction manager (spec §4.5): allocation,
// snapshot isolation, write-write conflict detection, and atomic
// commit/abort on top of the engine's version chains.
package txn

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/tidwall/btree"
	"go.uber.org/zap"

	"github.com/graphkv/kvcore/kv"
	"github.com/graphkv/kvcore/kv/engine"
)

// State is a transaction's position in its ACTIVE -> {COMMITTED, ABORTED}
// state machine (spec §4.5, §3 "Transaction"). Terminal states are sticky.
type State uint8

const (
	Active State = iota
	Committed
	Aborted
)

// Isolation is the configured isolation level (spec §6 "isolation_level").
// Serializable upgrades read-set validation on top of the snapshot-isolation
// write-write check; this core defaults to Snapshot.
type Isolation uint8

const (
	Snapshot Isolation = iota
	Serializable
)

type writeOp struct {
	value []byte
	tomb  bool
}

type tableKey struct {
	handle kv.Handle
	key    string
}

// Txn is one allocated transaction: its snapshot, read/write sets, and
// terminal state (spec §3 "Transaction").
type Txn struct {
	id         kv.TxID
	isolation  Isolation
	readOnly   bool
	snapshot   uint64
	mu         sync.Mutex
	state      State
	writes     map[tableKey]writeOp
	writeOrder []tableKey // insertion order, for deterministic per-table iteration
	reads      map[tableKey]struct{}
}

// ID returns the transaction's handle.
func (t *Txn) ID() kv.TxID { return t.id }

// WriteRef identifies one key in a transaction's write set.
type WriteRef struct {
	Handle kv.Handle
	Key    []byte
}

// WriteSet returns the (handle,key) pairs tx has staged, in insertion
// order. Used by callers (e.g. kv/cache) that need to react to exactly the
// keys a commit touched.
func (t *Txn) WriteSet() []WriteRef {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]WriteRef, len(t.writeOrder))
	for i, k := range t.writeOrder {
		out[i] = WriteRef{Handle: k.handle, Key: []byte(k.key)}
	}
	return out
}

// Snapshot returns the logical point-in-time this transaction reads from.
func (t *Txn) Snapshot() uint64 { return t.snapshot }

// State returns the transaction's current state.
func (t *Txn) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// RecordRead notes that tx observed (handle,key) at its snapshot, for
// serializable-mode validation (spec §3 "read set").
func (t *Txn) RecordRead(h kv.Handle, key []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.reads == nil {
		t.reads = make(map[tableKey]struct{})
	}
	t.reads[tableKey{h, string(key)}] = struct{}{}
}

// stageWrite records tx's intended write/delete for commit-time replay.
func (t *Txn) stageWrite(h kv.Handle, key []byte, op writeOp) {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := tableKey{h, string(key)}
	if _, exists := t.writes[k]; !exists {
		t.writeOrder = append(t.writeOrder, k)
	}
	t.writes[k] = op
}

// Manager owns the commit clock and the set of active transactions
// (spec §4.5 "State").
type Manager struct {
	eng   *engine.Engine
	log   *zap.Logger
	clock uint64 // atomic monotonic commit clock

	mu          sync.Mutex
	active      map[kv.TxID]*Txn
	nextID      uint64
	snapshotRef *btree.Map[uint64, int] // snapshot ts -> count of txns pinned there
}

// New creates a transaction manager over eng. log may be nil, in which case
// a no-op logger is used.
func New(eng *engine.Engine, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Manager{
		eng:         eng,
		log:         log,
		active:      make(map[kv.TxID]*Txn),
		snapshotRef: btree.NewMap[uint64, int](0),
	}
	return m
}

// Begin allocates a fresh transaction at the current commit clock value
// (spec §4.5 "begin").
func (m *Manager) Begin(isolation Isolation, readOnly bool) *Txn {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	snap := atomic.LoadUint64(&m.clock)
	tx := &Txn{
		id:        kv.TxID(m.nextID),
		isolation: isolation,
		readOnly:  readOnly,
		snapshot:  snap,
		writes:    make(map[tableKey]writeOp),
	}
	m.active[tx.id] = tx
	m.pinSnapshotLocked(snap)
	return tx
}

func (m *Manager) pinSnapshotLocked(ts uint64) {
	n, _ := m.snapshotRef.Get(ts)
	m.snapshotRef.Set(ts, n+1)
}

func (m *Manager) unpinSnapshotLocked(ts uint64) {
	n, ok := m.snapshotRef.Get(ts)
	if !ok {
		return
	}
	if n <= 1 {
		m.snapshotRef.Delete(ts)
		return
	}
	m.snapshotRef.Set(ts, n-1)
}

// oldestLiveSnapshotLocked returns the lowest snapshot timestamp any active
// transaction still pins, or the current clock value if none are active.
func (m *Manager) oldestLiveSnapshotLocked() uint64 {
	if ts, _, ok := m.snapshotRef.Min(); ok {
		return ts
	}
	return atomic.LoadUint64(&m.clock)
}

// Get reads (handle,key) at tx's snapshot and records it in tx's read set.
func (m *Manager) Get(tx *Txn, h kv.Handle, key []byte) ([]byte, bool, error) {
	if tx.State() != Active {
		return nil, false, kv.Wrap(kv.ErrInvalidState, "Manager.Get", errTerminalTx{tx.id})
	}
	v, ok, err := m.eng.Get(h, key, tx.snapshot, tx.id)
	if err != nil {
		return nil, false, err
	}
	tx.RecordRead(h, key)
	return v, ok, nil
}

// Scan reads [lo,hi) at tx's snapshot; see engine.Scan for bound semantics.
func (m *Manager) Scan(tx *Txn, h kv.Handle, lo, hi []byte, limit int) ([]kv.KV, error) {
	if tx.State() != Active {
		return nil, kv.Wrap(kv.ErrInvalidState, "Manager.Scan", errTerminalTx{tx.id})
	}
	out, err := m.eng.Scan(h, lo, hi, limit, tx.snapshot, tx.id)
	if err != nil {
		return nil, err
	}
	for _, kvp := range out {
		tx.RecordRead(h, kvp.Key)
	}
	return out, nil
}

// Put stages a write in tx's write set and in the engine's pending chain
// (spec §4.4 "put"). Read-only transactions fail immediately, not at commit
// (spec §4.5 "Writes by a read-only transaction yield ReadOnlyViolation at
// the put/delete call").
func (m *Manager) Put(tx *Txn, h kv.Handle, key, value []byte) error {
	if err := m.checkWritable(tx); err != nil {
		return err
	}
	if err := m.eng.StagePut(h, key, value, tx.id); err != nil {
		return err
	}
	tx.stageWrite(h, key, writeOp{value: append([]byte(nil), value...)})
	return nil
}

// Delete is Put's tombstone counterpart (spec §4.4 "delete").
func (m *Manager) Delete(tx *Txn, h kv.Handle, key []byte) error {
	if err := m.checkWritable(tx); err != nil {
		return err
	}
	if err := m.eng.StageDelete(h, key, tx.id); err != nil {
		return err
	}
	tx.stageWrite(h, key, writeOp{tomb: true})
	return nil
}

func (m *Manager) checkWritable(tx *Txn) error {
	if tx.State() != Active {
		return kv.Wrap(kv.ErrInvalidState, "Manager", errTerminalTx{tx.id})
	}
	if tx.readOnly {
		return kv.Wrap(kv.ErrReadOnlyViolation, "Manager", errReadOnly{tx.id})
	}
	return nil
}

// Commit validates tx's write set against committed history, then
// atomically publishes every staged write and deregisters tx
// (spec §4.5 "commit"). A transaction with an empty write set commits
// trivially. Read-only transactions skip validation entirely.
func (m *Manager) Commit(tx *Txn) error {
	tx.mu.Lock()
	if tx.state != Active {
		tx.mu.Unlock()
		return kv.Wrap(kv.ErrInvalidState, "Manager.Commit", errTerminalTx{tx.id})
	}
	writeOrder := tx.writeOrder
	tx.mu.Unlock()

	if !tx.readOnly && len(writeOrder) > 0 {
		if err := m.validate(tx, writeOrder); err != nil {
			m.Abort(tx)
			return err
		}
	}

	// Per-table write latches are acquired in ascending handle order to
	// avoid deadlock against a concurrently committing transaction whose
	// write set overlaps tx's (spec §5 "Commit acquires per-table write
	// latches in deterministic order by table-handle value").
	publishOrder := append([]tableKey(nil), writeOrder...)
	sort.Slice(publishOrder, func(i, j int) bool {
		if publishOrder[i].handle != publishOrder[j].handle {
			return publishOrder[i].handle < publishOrder[j].handle
		}
		return publishOrder[i].key < publishOrder[j].key
	})

	newClock := atomic.AddUint64(&m.clock, 1)
	oldest := m.oldestLiveSnapshot()
	for _, k := range publishOrder {
		if err := m.eng.Publish(k.handle, []byte(k.key), tx.id, newClock, oldest); err != nil {
			m.log.Error("publish failed after validation passed; engine state is now suspect",
				zap.Uint64("tx", uint64(tx.id)), zap.Error(err))
			m.Abort(tx)
			return kv.Wrap(kv.ErrFatal, "Manager.Commit", err)
		}
	}

	tx.mu.Lock()
	tx.state = Committed
	tx.mu.Unlock()
	m.deregister(tx)
	return nil
}

// validate implements spec §4.5 commit step (a): for each key in tx's write
// set, verify no other committed transaction has published a newer version
// than tx's snapshot. A Serializable tx has its read set checked the same
// way.
func (m *Manager) validate(tx *Txn, writeOrder []tableKey) error {
	for _, k := range writeOrder {
		ts, found := m.eng.LatestCommittedTS(k.handle, []byte(k.key))
		if found && ts > tx.snapshot {
			return kv.Wrap(kv.ErrWriteConflict, "Manager.validate", errConflict{handle: k.handle})
		}
	}
	if tx.isolation == Serializable {
		tx.mu.Lock()
		reads := make([]tableKey, 0, len(tx.reads))
		for k := range tx.reads {
			reads = append(reads, k)
		}
		tx.mu.Unlock()
		for _, k := range reads {
			ts, found := m.eng.LatestCommittedTS(k.handle, []byte(k.key))
			if found && ts > tx.snapshot {
				return kv.Wrap(kv.ErrWriteConflict, "Manager.validate", errConflict{handle: k.handle})
			}
		}
	}
	return nil
}

func (m *Manager) oldestLiveSnapshot() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.oldestLiveSnapshotLocked()
}

// Abort discards every pending write tx staged and deregisters it. Never
// fails (spec §4.5 "abort").
func (m *Manager) Abort(tx *Txn) {
	tx.mu.Lock()
	if tx.state != Active {
		tx.mu.Unlock()
		return
	}
	writeOrder := tx.writeOrder
	tx.state = Aborted
	tx.mu.Unlock()

	for _, k := range writeOrder {
		m.eng.DiscardPending(k.handle, []byte(k.key), tx.id)
	}
	m.deregister(tx)
}

func (m *Manager) deregister(tx *Txn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.active[tx.id]; !ok {
		return
	}
	delete(m.active, tx.id)
	m.unpinSnapshotLocked(tx.snapshot)
}

// ActiveCount reports the number of currently active transactions (for
// metrics/shutdown draining).
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

type errTerminalTx struct{ id kv.TxID }

func (e errTerminalTx) Error() string { return "transaction handle is not active" }

type errReadOnly struct{ id kv.TxID }

func (e errReadOnly) Error() string { return "mutation attempted under a read-only transaction" }

type errConflict struct{ handle kv.Handle }

func (e errConflict) Error() string {
	return "a newer committed version exists for a key the transaction validated"
}
