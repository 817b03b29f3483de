package session

import (
	"errors"
	"sync"
)

// ErrSessionNotFound indicates an unknown session ID.
var ErrSessionNotFound = errors.New("session: not found")

// MemoryStore keeps active sessions in memory. Each session additionally
// carries its own mutex so concurrent calls on the same session
// serialize without blocking other sessions.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*lockedSession
}

type lockedSession struct {
	mu      sync.Mutex
	session *Session
}

// NewMemoryStore creates an empty session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*lockedSession)}
}

// Put registers a new session.
func (st *MemoryStore) Put(s *Session) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sessions[s.ID] = &lockedSession{session: s}
}

// WithSession runs fn with exclusive access to the session.
func (st *MemoryStore) WithSession(id string, fn func(*Session) error) error {
	st.mu.RLock()
	ls, ok := st.sessions[id]
	st.mu.RUnlock()
	if !ok {
		return ErrSessionNotFound
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()
	return fn(ls.session)
}

// ForEach runs fn over every session, each under its own lock. Used by
// the learning loop to scan finished sessions; fn must not retain the
// session past the call.
func (st *MemoryStore) ForEach(fn func(*Session)) {
	st.mu.RLock()
	all := make([]*lockedSession, 0, len(st.sessions))
	for _, ls := range st.sessions {
		all = append(all, ls)
	}
	st.mu.RUnlock()

	for _, ls := range all {
		ls.mu.Lock()
		fn(ls.session)
		ls.mu.Unlock()
	}
}

// Len returns the number of stored sessions.
func (st *MemoryStore) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}
