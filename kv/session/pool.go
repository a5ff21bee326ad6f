package session

import (
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/graphkv/kvcore/kv/store"
)

// Pool maps caller-supplied session keys (one per calling goroutine) to
// Session instances (spec §2 "Session pool", §4.6). A Pool is the intended
// entry point for multi-goroutine callers; each Session it hands out is
// still exclusively owned by whichever goroutine holds its key.
type Pool struct {
	store *store.Store
	log   *zap.Logger

	mu       sync.Mutex
	sessions map[uint64]*Session
}

// NewPool constructs a Pool backed by s.
func NewPool(s *store.Store, log *zap.Logger) *Pool {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pool{
		store:    s,
		log:      log,
		sessions: make(map[uint64]*Session),
	}
}

// Get returns the Session for key, creating one on first use.
func (p *Pool) Get(key uint64) *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	if sess, ok := p.sessions[key]; ok {
		return sess
	}
	sess := newSession(p.store, p.log)
	p.sessions[key] = sess
	p.store.Metrics().ActiveSessions.Inc()
	return sess
}

// Release closes key's session (logging a warning and rolling back if it
// still holds unflushed work, spec §3 "Session") and removes it from the
// pool. A no-op if key has no open session.
func (p *Pool) Release(key uint64) {
	p.mu.Lock()
	sess, ok := p.sessions[key]
	if ok {
		delete(p.sessions, key)
	}
	p.mu.Unlock()
	if !ok {
		return
	}
	sess.Close()
	p.store.Metrics().ActiveSessions.Dec()
}

// Close closes every open session concurrently (logging a warning and
// rolling back any that still hold unflushed work) and empties the pool.
// Individual session closes cannot fail (Session.Close is infallible), so
// the errgroup here exists purely to parallelize the drain rather than to
// propagate errors; it sets no concurrency limit.
func (p *Pool) Close() error {
	p.mu.Lock()
	sessions := make([]*Session, 0, len(p.sessions))
	for _, sess := range p.sessions {
		sessions = append(sessions, sess)
	}
	p.sessions = make(map[uint64]*Session)
	p.mu.Unlock()

	var g errgroup.Group
	for _, sess := range sessions {
		sess := sess
		g.Go(func() error {
			sess.Close()
			p.store.Metrics().ActiveSessions.Dec()
			return nil
		})
	}
	return g.Wait()
}

// Len reports the number of currently open sessions.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}
