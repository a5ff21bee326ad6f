// Package store provides the facade spec §6 "EXTERNAL INTERFACES" describes:
// init/shutdown, table lifecycle, and tx-scoped get/put/delete/scan, wiring
// together the registry, engine, and transaction manager. Sessions
// (kv/session) sit on top of Store and add write buffering.
package store

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/graphkv/kvcore/kv"
	"github.com/graphkv/kvcore/kv/cache"
	"github.com/graphkv/kvcore/kv/config"
	"github.com/graphkv/kvcore/kv/engine"
	"github.com/graphkv/kvcore/kv/metrics"
	"github.com/graphkv/kvcore/kv/registry"
	"github.com/graphkv/kvcore/kv/txn"
)

// Store is the long-lived engine instance constructed by Init and consumed
// by Shutdown (spec §9 "Static/global engine state": "model the engine as a
// single long-lived object... Initialization uses a one-shot latch").
type Store struct {
	cfg     config.Config
	log     *zap.Logger
	metrics *metrics.Metrics

	Registry *registry.Registry
	Engine   *engine.Engine
	Txns     *txn.Manager
	Cache    *cache.Cache

	closeOnce sync.Once
}

var (
	initOnce     sync.Once
	sharedInit   *Store
	sharedInitMu sync.Mutex
)

// Init constructs a Store. A process is expected to call Init once; a
// second call returns the already-constructed instance rather than
// re-initializing (spec §9 "re-initialization is a no-op that returns the
// existing instance", spec §5 "exactly one initialization is permitted
// before first use").
func Init(cfg config.Config, log *zap.Logger) *Store {
	sharedInitMu.Lock()
	defer sharedInitMu.Unlock()
	initOnce.Do(func() {
		if log == nil {
			log = zap.NewNop()
		}
		eng := engine.New()
		sharedInit = &Store{
			cfg:      cfg,
			log:      log,
			metrics:  metrics.New(),
			Registry: registry.New(log),
			Engine:   eng,
			Txns:     txn.New(eng, log),
			Cache:    cache.New(cfg.CacheMaxEntries, time.Duration(cfg.CacheTTLMS)*time.Millisecond),
		}
	})
	return sharedInit
}

// New constructs an independent Store outside the process-wide Init latch;
// used by tests and by callers that intentionally run multiple isolated
// engines in one process (e.g. kvtest scenarios).
func New(cfg config.Config, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	eng := engine.New()
	return &Store{
		cfg:      cfg,
		log:      log,
		metrics:  metrics.New(),
		Registry: registry.New(log),
		Engine:   eng,
		Txns:     txn.New(eng, log),
		Cache:    cache.New(cfg.CacheMaxEntries, time.Duration(cfg.CacheTTLMS)*time.Millisecond),
	}
}

// Config returns the store's engine configuration.
func (s *Store) Config() config.Config { return s.cfg }

// Metrics returns the store's Prometheus collectors.
func (s *Store) Metrics() *metrics.Metrics { return s.metrics }

// Shutdown drops every table from the registry and the engine. Idempotent
// (spec §6 "shutdown()"). It does not abort transactions that are still
// active; they stay registered with Txns.
func (s *Store) Shutdown() {
	s.closeOnce.Do(func() {
		for _, nh := range s.Registry.List() {
			_ = s.Registry.Drop(nh.Handle)
			s.Engine.DropTable(nh.Handle)
		}
		s.log.Info("store shutdown complete")
	})
}

// CreateTable registers name (idempotent per spec §4.3) and mirrors it into
// the engine.
func (s *Store) CreateTable(name string, kind kv.TableKind, partition kv.PartitionKind) kv.Handle {
	h, created := s.Registry.Create(name, kind, partition)
	if created {
		s.Engine.CreateTable(h, partition)
		s.metrics.TablesCreated.Inc()
	}
	return h
}

// DropTable removes name from the registry and its data from the engine.
func (s *Store) DropTable(name string) error {
	h, err := s.Registry.Open(name)
	if err != nil {
		return err
	}
	if err := s.Registry.Drop(h); err != nil {
		return err
	}
	s.Engine.DropTable(h)
	s.metrics.TablesDropped.Inc()
	return nil
}

// HasTable reports whether name is currently live.
func (s *Store) HasTable(name string) bool { return s.Registry.Exists(name) }

// BeginTx allocates a fresh read-write transaction at the configured
// isolation level: Serializable when cfg.IsolationLevel is "serializable",
// Snapshot otherwise.
func (s *Store) BeginTx() *txn.Txn {
	isolation := txn.Snapshot
	if s.cfg.IsolationLevel == config.IsolationSerializable {
		isolation = txn.Serializable
	}
	tx := s.Txns.Begin(isolation, false)
	s.metrics.TxBegun.Inc()
	s.metrics.ActiveTxns.Inc()
	return tx
}

// BeginTxOpts allocates a transaction with an explicit isolation level and
// read-only flag (spec §4.5 "begin(isolation, read_only)").
func (s *Store) BeginTxOpts(isolation txn.Isolation, readOnly bool) *txn.Txn {
	tx := s.Txns.Begin(isolation, readOnly)
	s.metrics.TxBegun.Inc()
	s.metrics.ActiveTxns.Inc()
	return tx
}

// CommitTx commits tx, then invalidates the cache entries for exactly the
// keys tx wrote (spec §9 "Query cache": invalidated by write-set key, not
// whole-table). CommitLatency observes the wall-clock time spent validating
// and publishing, win or lose (spec §9, mirroring the teacher's
// db_commit_seconds{phase=...} summaries).
func (s *Store) CommitTx(tx *txn.Txn) error {
	writes := tx.WriteSet()
	start := time.Now()
	err := s.Txns.Commit(tx)
	s.metrics.CommitLatency.Observe(time.Since(start).Seconds())
	s.metrics.ActiveTxns.Dec()
	if err != nil {
		if kv.IsCode(err, kv.CodeWriteConflict) {
			s.metrics.TxConflicts.Inc()
		}
		if !kv.IsCode(err, kv.CodeInvalidState) {
			// Txns.Commit aborts tx itself on a validation or publish failure.
			s.metrics.TxAborted.Inc()
		}
		return err
	}
	s.metrics.TxCommitted.Inc()
	for _, w := range writes {
		s.Cache.Invalidate(w.Handle, w.Key)
	}
	return nil
}

// AbortTx aborts tx; infallible (spec §6 "abort_tx").
func (s *Store) AbortTx(tx *txn.Txn) {
	s.Txns.Abort(tx)
	s.metrics.TxAborted.Inc()
	s.metrics.ActiveTxns.Dec()
}

// withTx runs f inside an ephemeral auto-commit transaction when id is
// kv.AutoCommit (spec §4.4 "tx = 0 denotes auto-commit"): the transaction is
// aborted if f fails, otherwise committed, and the cache entries for the
// keys it wrote are invalidated. Any other id fails with ErrInvalidHandle.
func (s *Store) withTx(id kv.TxID, f func(tx *txn.Txn) error) error {
	if id != kv.AutoCommit {
		return kv.Wrap(kv.ErrInvalidHandle, "Store", errExplicitTxNotSupportedHere{})
	}
	tx := s.Txns.Begin(txn.Snapshot, false)
	if err := f(tx); err != nil {
		s.Txns.Abort(tx)
		return err
	}
	writes := tx.WriteSet()
	if err := s.Txns.Commit(tx); err != nil {
		return err
	}
	for _, w := range writes {
		s.Cache.Invalidate(w.Handle, w.Key)
	}
	return nil
}

type errExplicitTxNotSupportedHere struct{}

func (errExplicitTxNotSupportedHere) Error() string {
	return "use TxGet/TxPut/TxDelete/TxScan for an explicit transaction handle"
}

// Get serves spec §6 get(tx, table, key) for tx == kv.AutoCommit, checking
// the query-result cache first.
func (s *Store) Get(table string, key []byte) ([]byte, bool, error) {
	h, err := s.Registry.Open(table)
	if err != nil {
		return nil, false, err
	}
	if v, found, hit := s.Cache.Get(h, key); hit {
		return v, found, nil
	}
	tx := s.Txns.Begin(txn.Snapshot, true)
	defer s.Txns.Abort(tx) // read-only: abort is equivalent to commit and always succeeds
	v, found, err := s.Txns.Get(tx, h, key)
	if err != nil {
		return nil, false, err
	}
	s.Cache.Put(h, key, v, found)
	return v, found, nil
}

// Put serves spec §6 put(tx, table, key, value) for tx == kv.AutoCommit.
func (s *Store) Put(table string, key, value []byte) error {
	h, err := s.Registry.Open(table)
	if err != nil {
		return err
	}
	return s.withTx(kv.AutoCommit, func(tx *txn.Txn) error {
		return s.Txns.Put(tx, h, key, value)
	})
}

// Delete serves spec §6 delete(tx, table, key) for tx == kv.AutoCommit.
func (s *Store) Delete(table string, key []byte) error {
	h, err := s.Registry.Open(table)
	if err != nil {
		return err
	}
	return s.withTx(kv.AutoCommit, func(tx *txn.Txn) error {
		return s.Txns.Delete(tx, h, key)
	})
}

// Scan serves spec §6 scan(tx, table, lo, hi, lo_inc, hi_inc, limit) for
// tx == kv.AutoCommit. Bound normalization (inclusive/exclusive, prefix
// mode) lives in kv/query; this method takes already-normalized [lo,hi).
func (s *Store) Scan(table string, lo, hi []byte, limit int) ([]kv.KV, error) {
	h, err := s.Registry.Open(table)
	if err != nil {
		return nil, err
	}
	tx := s.Txns.Begin(txn.Snapshot, true)
	defer s.Txns.Abort(tx)
	return s.Txns.Scan(tx, h, lo, hi, limit)
}

// TxGet/TxPut/TxDelete/TxScan are the explicit-transaction counterparts,
// used when the caller already holds a *txn.Txn from BeginTx.

func (s *Store) TxGet(tx *txn.Txn, table string, key []byte) ([]byte, bool, error) {
	h, err := s.Registry.Open(table)
	if err != nil {
		return nil, false, err
	}
	return s.Txns.Get(tx, h, key)
}

func (s *Store) TxPut(tx *txn.Txn, table string, key, value []byte) error {
	h, err := s.Registry.Open(table)
	if err != nil {
		return err
	}
	return s.Txns.Put(tx, h, key, value)
}

func (s *Store) TxDelete(tx *txn.Txn, table string, key []byte) error {
	h, err := s.Registry.Open(table)
	if err != nil {
		return err
	}
	return s.Txns.Delete(tx, h, key)
}

func (s *Store) TxScan(tx *txn.Txn, table string, lo, hi []byte, limit int) ([]kv.KV, error) {
	h, err := s.Registry.Open(table)
	if err != nil {
		return nil, err
	}
	return s.Txns.Scan(tx, h, lo, hi, limit)
}
