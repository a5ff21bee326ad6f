// Package engine implements the per-table ordered version-chain store
// (spec §4.4): point get/put/delete and bounded ordered range scans under a
// transaction snapshot. It knows nothing about transaction lifecycle or
// validation; the txn package orchestrates those by calling into here.
package engine

import (
	"bytes"
	"sync"

	"github.com/google/btree"

	"github.com/graphkv/kvcore/kv"
)

// version is one committed entry in a key's version chain, newest first
// (spec §4.4 "Storage engine").
type version struct {
	commitTS uint64
	tomb     bool
	value    []byte
}

// row is one key's committed version chain plus the set of writes still
// pending from active transactions, and its fine-grained latch (spec §5
// "per-table map: fine-grained per-key version-chain latch for updates").
// Multiple transactions may hold a pending write for the same key at once
// (spec §8 scenario 6: tx2.put succeeds while tx1's write on the same key is
// still pending; only commit(tx2) can fail, at validation time) — pending
// writes are indexed by owning tx rather than occupying a single front slot,
// so concurrent pending writers never collide with each other at put/delete
// time. Only the same transaction overwriting its own pending write
// collapses in place.
type row struct {
	key     []byte
	mu      sync.Mutex
	chain   []version // committed, newest first
	pending map[kv.TxID]version
}

type table struct {
	handle    kv.Handle
	partition kv.PartitionKind

	// mu is the table-wide latch acquired for the duration of a single
	// Publish call, giving commit-publish its documented short critical
	// section (spec §5). Point reads and scans only take mu.RLock to walk
	// committed versions lock-free with respect to each other.
	mu   sync.RWMutex
	tree *btree.BTreeG[*row]
}

func newTable(h kv.Handle, p kv.PartitionKind) *table {
	return &table{
		handle:    h,
		partition: p,
		tree: btree.NewG(32, func(a, b *row) bool {
			return bytes.Compare(a.key, b.key) < 0
		}),
	}
}

// Engine holds every live table's version-chain store, keyed by handle.
type Engine struct {
	mu     sync.RWMutex
	tables map[kv.Handle]*table
}

func New() *Engine {
	return &Engine{tables: make(map[kv.Handle]*table)}
}

func (e *Engine) CreateTable(h kv.Handle, partition kv.PartitionKind) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tables[h] = newTable(h, partition)
}

func (e *Engine) DropTable(h kv.Handle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.tables, h)
}

func (e *Engine) tableFor(h kv.Handle) (*table, error) {
	e.mu.RLock()
	t, ok := e.tables[h]
	e.mu.RUnlock()
	if !ok {
		return nil, kv.Wrap(kv.ErrInvalidHandle, "Engine", errUnknownHandle{h})
	}
	return t, nil
}

type errUnknownHandle struct{ h kv.Handle }

func (e errUnknownHandle) Error() string { return "unknown table handle" }

// visible returns the newest entry visible at readTS, preferring the reading
// transaction's own still-pending write over the committed chain.
func visible(r *row, readTS uint64, owner kv.TxID) (version, bool) {
	if owner != 0 {
		if v, ok := r.pending[owner]; ok {
			return v, true
		}
	}
	for _, v := range r.chain {
		if v.commitTS <= readTS {
			return v, true
		}
	}
	return version{}, false
}

// Get returns the newest committed (or tx-own-pending) value visible at
// readTS, or found=false if the newest such entry is a tombstone or there is
// no entry at all (spec §4.4 "get").
func (e *Engine) Get(h kv.Handle, key []byte, readTS uint64, owner kv.TxID) ([]byte, bool, error) {
	t, err := e.tableFor(h)
	if err != nil {
		return nil, false, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.tree.Get(&row{key: key})
	if !ok {
		return nil, false, nil
	}
	r.mu.Lock()
	v, ok := visible(r, readTS, owner)
	r.mu.Unlock()
	if !ok || v.tomb {
		return nil, false, nil
	}
	return v.value, true, nil
}

// Scan yields visible entries in [lo, hi) (half-open; callers translate
// inclusive bounds before calling) in ascending key order, up to limit
// entries (0 = unbounded). lo == nil means unbounded below; hi == nil means
// unbounded above (spec §4.4 "scan").
func (e *Engine) Scan(h kv.Handle, lo, hi []byte, limit int, readTS uint64, owner kv.TxID) ([]kv.KV, error) {
	t, err := e.tableFor(h)
	if err != nil {
		return nil, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []kv.KV
	visit := func(r *row) bool {
		if hi != nil && bytes.Compare(r.key, hi) >= 0 {
			return false
		}
		r.mu.Lock()
		v, ok := visible(r, readTS, owner)
		r.mu.Unlock()
		if ok && !v.tomb {
			out = append(out, kv.KV{Key: append([]byte(nil), r.key...), Value: append([]byte(nil), v.value...)})
		}
		return limit == 0 || len(out) < limit
	}

	if lo == nil {
		t.tree.Ascend(visit)
	} else {
		t.tree.AscendGreaterOrEqual(&row{key: lo}, visit)
	}
	return out, nil
}

// StagePut records a pending write owned by tx, independent of any other
// active transaction's pending write on the same key (spec §4.4 "put"; spec
// §8 scenario 6). Conflicts between concurrent writers are detected at
// commit time (Manager.validate), not here.
func (e *Engine) StagePut(h kv.Handle, key, value []byte, tx kv.TxID) error {
	return e.stage(h, key, tx, version{value: append([]byte(nil), value...)})
}

// StageDelete is StagePut's tombstone counterpart (spec §4.4 "delete").
func (e *Engine) StageDelete(h kv.Handle, key []byte, tx kv.TxID) error {
	return e.stage(h, key, tx, version{tomb: true})
}

func (e *Engine) stage(h kv.Handle, key []byte, tx kv.TxID, pending version) error {
	t, err := e.tableFor(h)
	if err != nil {
		return err
	}
	t.mu.RLock()
	r, ok := t.tree.Get(&row{key: key})
	if !ok {
		r = &row{key: append([]byte(nil), key...), pending: make(map[kv.TxID]version)}
		// Upgrading to a write lock to insert a brand new row; re-check
		// after acquiring it in case of a racing insert.
		t.mu.RUnlock()
		t.mu.Lock()
		if existing, ok := t.tree.Get(r); ok {
			r = existing
		} else {
			t.tree.ReplaceOrInsert(r)
		}
		t.mu.Unlock()
		t.mu.RLock()
	}
	defer t.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending == nil {
		r.pending = make(map[kv.TxID]version)
	}
	r.pending[tx] = pending
	return nil
}

// DiscardPending removes the pending entry owned by tx at key, if any
// (spec §4.5 "abort": "Discards all pending writes belonging to tx").
func (e *Engine) DiscardPending(h kv.Handle, key []byte, tx kv.TxID) {
	t, err := e.tableFor(h)
	if err != nil {
		return
	}
	t.mu.RLock()
	r, ok := t.tree.Get(&row{key: key})
	t.mu.RUnlock()
	if !ok {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, tx)
}

// LatestCommittedTS reports the commit timestamp of the newest committed
// version at key, used by the transaction manager's validation step
// (spec §4.5 "verify no other committed transaction has published a newer
// version than tx's snapshot").
func (e *Engine) LatestCommittedTS(h kv.Handle, key []byte) (uint64, bool) {
	t, err := e.tableFor(h)
	if err != nil {
		return 0, false
	}
	t.mu.RLock()
	r, ok := t.tree.Get(&row{key: key})
	t.mu.RUnlock()
	if !ok {
		return 0, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.chain) == 0 {
		return 0, false
	}
	return r.chain[0].commitTS, true
}

// Publish promotes the pending entry owned by tx at key to committed at
// commitTS, trimming committed versions that no reader at or after the
// oldest live snapshot can still see, so history never grows unbounded
// (spec §4.4 "Commit protocol"). A missing pending entry is a no-op: the key may not have been
// touched by tx in this table.
func (e *Engine) Publish(h kv.Handle, key []byte, tx kv.TxID, commitTS, oldestLiveSnapshot uint64) error {
	t, err := e.tableFor(h)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.tree.Get(&row{key: key})
	if !ok {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	pending, ok := r.pending[tx]
	if !ok {
		return nil
	}
	delete(r.pending, tx)
	pending.commitTS = commitTS
	r.chain = append([]version{pending}, r.chain...)

	// Trim: keep every version newer than oldestLiveSnapshot, plus the
	// single newest version at or below it (the one a reader pinned at
	// oldestLiveSnapshot resolves to).
	keep := 0
	seenBelowFloor := false
	for i, v := range r.chain {
		if v.commitTS > oldestLiveSnapshot {
			keep = i + 1
			continue
		}
		if !seenBelowFloor {
			keep = i + 1
			seenBelowFloor = true
			continue
		}
		break
	}
	r.chain = r.chain[:keep]
	return nil
}
