// Package session assigns monotonically increasing positions to the
// records of one logical conversation.
//
// State is scoped to a session id: concurrent invocations in the same
// session serialize through a per-session lease, while different sessions
// never contend with each other. Sequence numbers are only consumed when a
// lease is committed, which callers do strictly after the record has been
// durably written — an aborted lease leaves the session exactly as it was,
// so the sequence run has no gaps on the success path.
package session

import "sync"

// FirstSequence is the position assigned to a session's first record.
const FirstSequence = 1

type state struct {
	mu     sync.Mutex
	next   int
	lastID string
}

// Tracker holds sequencing state for every active session.
type Tracker struct {
	mu       sync.Mutex
	sessions map[string]*state
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{sessions: make(map[string]*state)}
}

// Lease is an exclusive claim on one session's next position. Exactly one
// of Commit or Abort must be called; both release the session.
type Lease struct {
	SessionID string
	// Sequence is the position the next record will take.
	Sequence int
	// PrecedingID is the id of the session's latest committed record,
	// or "" before the first commit.
	PrecedingID string

	st   *state
	done bool
}

// Begin claims the session's next position, creating session state on
// first use. It blocks while another invocation in the same session holds
// the lease.
func (t *Tracker) Begin(sessionID string) *Lease {
	t.mu.Lock()
	st, ok := t.sessions[sessionID]
	if !ok {
		st = &state{next: FirstSequence}
		t.sessions[sessionID] = st
	}
	t.mu.Unlock()

	st.mu.Lock()
	return &Lease{
		SessionID:   sessionID,
		Sequence:    st.next,
		PrecedingID: st.lastID,
		st:          st,
	}
}

// Commit records that the leased position was consumed by recordID and
// releases the session. Call only after the record is durably written.
func (l *Lease) Commit(recordID string) {
	if l.done {
		return
	}
	l.done = true
	l.st.next++
	l.st.lastID = recordID
	l.st.mu.Unlock()
}

// Abort releases the session without consuming the position. Used when
// the write failed or was never acknowledged.
func (l *Lease) Abort() {
	if l.done {
		return
	}
	l.done = true
	l.st.mu.Unlock()
}

// End tears down a session's state. Subsequent invocations for the same
// id start a fresh sequence run.
func (t *Tracker) End(sessionID string) {
	t.mu.Lock()
	delete(t.sessions, sessionID)
	t.mu.Unlock()
}
