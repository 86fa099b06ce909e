package sessions

import (
	"sync"
	"time"
)

// Store is the process-wide registry of active call sessions. Map-level
// mutations take the store lock; message appends for one call are serialized
// by that session's lock, so events for different calls never contend.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// GetOrCreate returns the session for callSID, creating and registering an
// empty one if none exists. An existing session is returned unchanged except
// for a refreshed last-activity time, which makes duplicate call-started
// webhooks idempotent.
//
// An empty callSID is a bug in the calling layer and panics.
func (st *Store) GetOrCreate(callSID, from, to string) *Session {
	if callSID == "" {
		panic("sessions: call SID is required")
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	now := time.Now()
	if s, ok := st.sessions[callSID]; ok {
		s.touch(now)
		return s
	}

	s := newSession(callSID, from, to, now)
	st.sessions[callSID] = s
	return s
}

// Get looks up a session without refreshing its activity time.
func (st *Store) Get(callSID string) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	s, ok := st.sessions[callSID]
	return s, ok
}

// End removes and returns the session for callSID. Removing a session that
// does not exist is not an error; duplicate terminal status webhooks are
// expected.
func (st *Store) End(callSID string) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.sessions[callSID]
	if !ok {
		return nil, false
	}
	delete(st.sessions, callSID)
	return s, true
}

// SweepExpired removes every session whose last activity is strictly older
// than now minus threshold and returns the number removed. A session idle for
// exactly the threshold survives the sweep.
func (st *Store) SweepExpired(now time.Time, threshold time.Duration) int {
	st.mu.Lock()
	defer st.mu.Unlock()

	removed := 0
	for sid, s := range st.sessions {
		if s.idleSince(now) > threshold {
			delete(st.sessions, sid)
			removed++
		}
	}
	return removed
}

// Len returns the number of active sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}
