// Package registry implements the table registry (spec §4.3): name <->
// handle mapping, creation/drop idempotence, and the live-name invariant
// (spec §3 I1).
package registry

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/graphkv/kvcore/kv"
)

type entry struct {
	name      string
	handle    kv.Handle
	kind      kv.TableKind
	partition kv.PartitionKind
}

// Registry maps caller-visible table names to internal handles. Mutations
// are serialized under a single coarse writer lock; readers proceed under
// its shared mode (spec §4.3 "Concurrency").
type Registry struct {
	log  *zap.Logger
	mu   sync.RWMutex
	byName   map[string]*entry
	byHandle map[kv.Handle]*entry
	nextHandle uint64
}

func New(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		log:      log,
		byName:   make(map[string]*entry),
		byHandle: make(map[kv.Handle]*entry),
	}
}

// Create returns name's handle, allocating a fresh one and registering a
// new table if name is not already live. Idempotent at the caller level
// (spec §4.3 "create"): recreating a dropped name never reuses its old
// handle (spec §3 I1), but calling Create twice on a still-live name
// returns the same handle both times.
func (r *Registry) Create(name string, kind kv.TableKind, partition kv.PartitionKind) (kv.Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.byName[name]; ok {
		return e.handle, false
	}
	r.nextHandle++
	e := &entry{name: name, handle: kv.Handle(r.nextHandle), kind: kind, partition: partition}
	r.byName[name] = e
	r.byHandle[e.handle] = e
	r.log.Debug("table created", zap.String("name", name), zap.Uint64("handle", uint64(e.handle)))
	return e.handle, true
}

// Drop removes handle and its name mapping; subsequent lookups by either
// fail with ErrInvalidHandle / ErrNotFound (spec §4.3 "drop").
func (r *Registry) Drop(h kv.Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byHandle[h]
	if !ok {
		return kv.Wrap(kv.ErrNotFound, "Registry.Drop", errNoSuchHandle{h})
	}
	delete(r.byHandle, h)
	delete(r.byName, e.name)
	r.log.Debug("table dropped", zap.String("name", e.name), zap.Uint64("handle", uint64(h)))
	return nil
}

// Exists reports whether name currently maps to a live handle.
func (r *Registry) Exists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byName[name]
	return ok
}

// Open resolves name to its live handle (spec §4.3 "open").
func (r *Registry) Open(name string) (kv.Handle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byName[name]
	if !ok {
		return 0, kv.Wrap(kv.ErrNotFound, "Registry.Open", errNoSuchName{name})
	}
	return e.handle, nil
}

// Kind reports the table kind registered for handle.
func (r *Registry) Kind(h kv.Handle) (kv.TableKind, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byHandle[h]
	if !ok {
		return 0, kv.Wrap(kv.ErrInvalidHandle, "Registry.Kind", errNoSuchHandle{h})
	}
	return e.kind, nil
}

// Partition reports the partition kind registered for handle.
func (r *Registry) Partition(h kv.Handle) (kv.PartitionKind, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byHandle[h]
	if !ok {
		return 0, kv.Wrap(kv.ErrInvalidHandle, "Registry.Partition", errNoSuchHandle{h})
	}
	return e.partition, nil
}

// NameOf reverse-resolves a handle; used by logging and diagnostics.
func (r *Registry) NameOf(h kv.Handle) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byHandle[h]
	if !ok {
		return "", false
	}
	return e.name, true
}

// NamedHandle is one row of Registry.List's output.
type NamedHandle struct {
	Name   string
	Handle kv.Handle
}

// List returns every live (name, handle) pair in ascending name order
// (spec §4.3 "list").
func (r *Registry) List() []NamedHandle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]NamedHandle, 0, len(r.byName))
	for name, e := range r.byName {
		out = append(out, NamedHandle{Name: name, Handle: e.handle})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ListKinds returns the distinct table kinds currently in use, sorted by
// value (SPEC_FULL.md §D "Table-kind roster introspection"); after one of
// the three store constructors in kv/store runs, it reports that store's
// pre-registered roster.
func (r *Registry) ListKinds() []kv.TableKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[kv.TableKind]struct{})
	for _, e := range r.byHandle {
		seen[e.kind] = struct{}{}
	}
	out := make([]kv.TableKind, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// HandleCount is used by tests and metrics to assert on registry size
// without leaking internal map iteration order.
func (r *Registry) HandleCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byHandle)
}

type errNoSuchHandle struct{ h kv.Handle }

func (e errNoSuchHandle) Error() string { return "no table registered for this handle" }

type errNoSuchName struct{ name string }

func (e errNoSuchName) Error() string { return "no table registered under this name: " + e.name }
