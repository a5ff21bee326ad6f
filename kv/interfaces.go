package kv

// Getter, Putter, Deleter, and Scanner describe the narrow capability every
// layer above the engine actually depends on, following the teacher's
// interfaces-in-the-root, implementations-in-subpackages split
// (erigon-lib/kv/kv_interface.go). kv/store.Store satisfies Tx/RwTx
// structurally; callers that only need to read a table should accept
// Getter/Scanner rather than a concrete *store.Store. kv/session.Session
// buffers writes and scans through kv/query.Query instead, by design (spec
// §4.6), so it is not itself an RwTx.
type Getter interface {
	Get(table string, key []byte) (value []byte, found bool, err error)
}

type Putter interface {
	Put(table string, key, value []byte) error
}

type Deleter interface {
	Delete(table string, key []byte) error
}

type Scanner interface {
	Scan(table string, lo, hi []byte, limit int) ([]KV, error)
}

// Tx is the read side of a table-scoped transaction handle.
type Tx interface {
	Getter
	Scanner
}

// RwTx extends Tx with the mutating operations a read-write transaction
// exposes.
type RwTx interface {
	Tx
	Putter
	Deleter
}
