// Package persist implements the optional write-ahead log hook (spec §6
// "Persisted-state layout", §9 design notes): a sequential, append-only
// stream of committed writes a caller can replay on startup to rebuild
// engine state. The core itself never calls this package; a caller's
// Store.Txns.Commit-adjacent code is expected to call Writer.Append after
// each successful commit if it wants durability across restarts.
package persist

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"
	"sync"

	"github.com/edsrzf/mmap-go"
	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/graphkv/kvcore/kv"
)

// Entry is one committed write, as it appears in the log (spec §6
// "(commit_ts, table_handle, key, value_or_tombstone)").
type Entry struct {
	CommitTS uint64
	Handle   kv.Handle
	Key      []byte
	Value    []byte // nil when Tomb is true
	Tomb     bool
}

// recordHeader is the fixed-size prefix of every record: commit_ts(8) ||
// handle(8) || tomb(1) || key_len(4) || value_len(4).
const recordHeaderSize = 8 + 8 + 1 + 4 + 4

// Writer appends Entry records to a log file, holding an exclusive
// process-wide lock on a sibling ".lock" file for the life of the Writer
// (spec §9 "a single writer owns the log at a time"; gofrs/flock mirrors
// the teacher's datadir-lock use in erigon-lib).
type Writer struct {
	mu        sync.Mutex
	file      *os.File
	buf       *bufio.Writer
	lock      *flock.Flock
	segmentID uuid.UUID
}

// OpenWriter opens (creating if necessary) the log file at path for
// appending, after acquiring path+".lock" exclusively. Returns
// ErrInvalidState if another Writer already holds the lock. Each Writer
// instance is tagged with a fresh segment id, available from SegmentID;
// the id is not written into the log records.
func OpenWriter(path string) (*Writer, error) {
	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, kv.Wrap(kv.ErrFatal, "persist.OpenWriter", err)
	}
	if !locked {
		return nil, kv.Wrap(kv.ErrInvalidState, "persist.OpenWriter", errAlreadyLocked{path})
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		_ = lock.Unlock()
		return nil, kv.Wrap(kv.ErrFatal, "persist.OpenWriter", err)
	}

	return &Writer{file: f, buf: bufio.NewWriter(f), lock: lock, segmentID: uuid.New()}, nil
}

// SegmentID identifies this Writer instance's run, independent of the
// underlying file path.
func (w *Writer) SegmentID() uuid.UUID { return w.segmentID }

// Append encodes e and writes it to the log. Callers that need a durability
// boundary (e.g. after a batch of commits) should follow with Flush.
func (w *Writer) Append(e Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var hdr [recordHeaderSize]byte
	binary.LittleEndian.PutUint64(hdr[0:8], e.CommitTS)
	binary.LittleEndian.PutUint64(hdr[8:16], uint64(e.Handle))
	if e.Tomb {
		hdr[16] = 1
	}
	binary.LittleEndian.PutUint32(hdr[17:21], uint32(len(e.Key)))
	binary.LittleEndian.PutUint32(hdr[21:25], uint32(len(e.Value)))

	if _, err := w.buf.Write(hdr[:]); err != nil {
		return kv.Wrap(kv.ErrFatal, "persist.Writer.Append", err)
	}
	if _, err := w.buf.Write(e.Key); err != nil {
		return kv.Wrap(kv.ErrFatal, "persist.Writer.Append", err)
	}
	if !e.Tomb {
		if _, err := w.buf.Write(e.Value); err != nil {
			return kv.Wrap(kv.ErrFatal, "persist.Writer.Append", err)
		}
	}
	return nil
}

// Flush forces buffered records to the underlying file.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.buf.Flush(); err != nil {
		return kv.Wrap(kv.ErrFatal, "persist.Writer.Flush", err)
	}
	return w.file.Sync()
}

// Close flushes, closes the file, and releases the lock.
func (w *Writer) Close() error {
	if err := w.Flush(); err != nil {
		_ = w.file.Close()
		_ = w.lock.Unlock()
		return err
	}
	cerr := w.file.Close()
	if err := w.lock.Unlock(); err != nil && cerr == nil {
		cerr = err
	}
	return cerr
}

// Reader replays a log file written by Writer via a read-only memory map, so
// a large replay on startup doesn't require reading the whole file into a
// Go-managed buffer up front.
type Reader struct {
	file *os.File
	data mmap.MMap
}

// OpenReader maps path read-only for replay.
func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, kv.Wrap(kv.ErrFatal, "persist.OpenReader", err)
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, kv.Wrap(kv.ErrFatal, "persist.OpenReader", err)
	}
	if fi.Size() == 0 {
		return &Reader{file: f, data: nil}, nil
	}
	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		_ = f.Close()
		return nil, kv.Wrap(kv.ErrFatal, "persist.OpenReader", err)
	}
	return &Reader{file: f, data: data}, nil
}

// Replay calls fn once per Entry in the log, in the order they were
// appended. It stops and returns fn's error as soon as fn returns one (if
// that error is io.EOF, it stops and returns nil), or ErrMalformedValue if
// the log is truncated mid-record.
func (r *Reader) Replay(fn func(Entry) error) error {
	off := 0
	for off < len(r.data) {
		if off+recordHeaderSize > len(r.data) {
			return kv.Wrap(kv.ErrMalformedValue, "persist.Reader.Replay", errTruncatedRecord{})
		}
		hdr := r.data[off : off+recordHeaderSize]
		commitTS := binary.LittleEndian.Uint64(hdr[0:8])
		handle := binary.LittleEndian.Uint64(hdr[8:16])
		tomb := hdr[16] != 0
		keyLen := binary.LittleEndian.Uint32(hdr[17:21])
		valLen := binary.LittleEndian.Uint32(hdr[21:25])
		off += recordHeaderSize

		if off+int(keyLen) > len(r.data) {
			return kv.Wrap(kv.ErrMalformedValue, "persist.Reader.Replay", errTruncatedRecord{})
		}
		key := append([]byte(nil), r.data[off:off+int(keyLen)]...)
		off += int(keyLen)

		var value []byte
		if !tomb {
			if off+int(valLen) > len(r.data) {
				return kv.Wrap(kv.ErrMalformedValue, "persist.Reader.Replay", errTruncatedRecord{})
			}
			value = append([]byte(nil), r.data[off:off+int(valLen)]...)
			off += int(valLen)
		}

		if err := fn(Entry{CommitTS: commitTS, Handle: kv.Handle(handle), Key: key, Value: value, Tomb: tomb}); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
	return nil
}

// Close unmaps the log and closes the file.
func (r *Reader) Close() error {
	var err error
	if r.data != nil {
		err = r.data.Unmap()
	}
	if cerr := r.file.Close(); err == nil {
		err = cerr
	}
	return err
}

type errAlreadyLocked struct{ path string }

func (e errAlreadyLocked) Error() string { return "persist: log already locked by another writer: " + e.path }

type errTruncatedRecord struct{}

func (errTruncatedRecord) Error() string { return "persist: log ends mid-record" }
