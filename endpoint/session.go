// Package endpoint implements the Session Manager (C7) and Dual-Carrier
// Endpoint (C6): binding stream and datagram listeners on one address,
// demultiplexing datagrams into per-session state keyed by a 16-bit
// session_id, and sweeping idle sessions. Grounded on XTLS-Xray-core's
// transport/internet accept-loop/handler shape, generalized from a single
// TCP listener to the spec's simultaneous stream+datagram bind.
package endpoint

import (
	"net"
	"sync"
	"time"

	"github.com/0xinf0/nooshdaroo-sub001/frame"
	"github.com/0xinf0/nooshdaroo-sub001/internal/coreerr"
	"github.com/0xinf0/nooshdaroo-sub001/internal/signal"
	"github.com/0xinf0/nooshdaroo-sub001/internal/task"
	"github.com/0xinf0/nooshdaroo-sub001/noisepsf"
)

// SessionID is the 16-bit datagram session identifier (spec §3 "Session
// (datagram)").
type SessionID uint16

// Session is one datagram client's state bundle (spec §3): Noise state,
// PSF frame adapter state, client address (diagnostics only — spec §4.7
// "must not be used as an additional key"), and an idle timer.
type Session struct {
	ID         SessionID
	ClientAddr net.Addr
	Noise      *noisepsf.Session
	Adapter    *frame.Adapter

	activity *signal.ActivityTimer

	outboundMu    sync.Mutex
	outboundQueue [][]byte
	dropCount     uint64

	mu sync.Mutex
}

// OutboundQueueDepth is the spec §4.6 default ("an outbound queue
// (default 64 entries) drops oldest when full").
const OutboundQueueDepth = 64

// Enqueue appends an outbound datagram to the session's back-pressure
// queue, dropping the oldest entry and incrementing the drop counter if
// the queue is already at capacity (spec §4.6).
func (s *Session) Enqueue(datagram []byte) {
	s.outboundMu.Lock()
	defer s.outboundMu.Unlock()
	if len(s.outboundQueue) >= OutboundQueueDepth {
		s.outboundQueue = s.outboundQueue[1:]
		s.dropCount++
	}
	s.outboundQueue = append(s.outboundQueue, datagram)
}

// Drain removes and returns every currently queued outbound datagram.
func (s *Session) Drain() [][]byte {
	s.outboundMu.Lock()
	defer s.outboundMu.Unlock()
	out := s.outboundQueue
	s.outboundQueue = nil
	return out
}

// DropCount reports how many outbound datagrams this session has dropped
// due to back-pressure.
func (s *Session) DropCount() uint64 {
	s.outboundMu.Lock()
	defer s.outboundMu.Unlock()
	return s.dropCount
}

// Touch records activity, resetting the idle timer (spec §4.7 "touch").
func (s *Session) Touch() {
	if s.activity != nil {
		s.activity.Update()
	}
}

// SessionManager creates, looks up, touches, and expires datagram
// sessions (spec §4.7). Sessions are keyed by id alone.
type SessionManager struct {
	mu          sync.Mutex
	sessions    map[SessionID]*Session
	idleTimeout time.Duration
	sweep       *task.Periodic
	onExpire    func(*Session)
}

// NewSessionManager constructs a manager with the given idle timeout and
// sweep interval (spec §4.7 defaults: 60 s idle, 30 s sweep). onExpire, if
// non-nil, is invoked (outside the manager's lock) for every session the
// periodic sweep removes.
func NewSessionManager(idleTimeout, sweepInterval time.Duration, onExpire func(*Session)) *SessionManager {
	sm := &SessionManager{
		sessions:    map[SessionID]*Session{},
		idleTimeout: idleTimeout,
		onExpire:    onExpire,
	}
	sm.sweep = &task.Periodic{
		Interval: sweepInterval,
		Execute: func() error {
			sm.Sweep()
			return nil
		},
	}
	return sm
}

// Start begins the periodic sweep task.
func (sm *SessionManager) Start() error { return sm.sweep.Start() }

// Close stops the periodic sweep task.
func (sm *SessionManager) Close() error { return sm.sweep.Close() }

// GetOrCreate returns the existing session for id, or creates one via
// newSession if none exists yet (spec §4.7 "get_or_create").
func (sm *SessionManager) GetOrCreate(id SessionID, clientAddr net.Addr, newSession func() (*noisepsf.Session, *frame.Adapter)) *Session {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if s, ok := sm.sessions[id]; ok {
		return s
	}
	noiseSess, adapter := newSession()
	s := &Session{
		ID:         id,
		ClientAddr: clientAddr,
		Noise:      noiseSess,
		Adapter:    adapter,
	}
	s.activity = signal.NewActivityTimer(sm.idleTimeout, func() {
		sm.remove(id, s)
	})
	sm.sessions[id] = s
	return s
}

// Lookup returns the session for id, if any (spec §4.7 "lookup").
func (sm *SessionManager) Lookup(id SessionID) (*Session, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	s, ok := sm.sessions[id]
	return s, ok
}

// Replace destroys any existing session for id and installs a new one,
// used when decryption under the existing session fails for a first
// datagram whose id collides with a live session (spec §4.7
// "Collisions").
func (sm *SessionManager) Replace(id SessionID, clientAddr net.Addr, newSession func() (*noisepsf.Session, *frame.Adapter)) *Session {
	sm.mu.Lock()
	if old, ok := sm.sessions[id]; ok {
		old.Noise.Terminate()
		delete(sm.sessions, id)
	}
	sm.mu.Unlock()
	return sm.GetOrCreate(id, clientAddr, newSession)
}

func (sm *SessionManager) remove(id SessionID, expected *Session) {
	sm.mu.Lock()
	s, ok := sm.sessions[id]
	if ok && s == expected {
		delete(sm.sessions, id)
	}
	sm.mu.Unlock()
	if ok && s == expected {
		s.Noise.Terminate()
		if sm.onExpire != nil {
			sm.onExpire(s)
		}
	}
}

// Sweep removes every session past its idle timeout (spec §4.7 "Sweep
// runs periodically ... or on demand", P5). It is safe to call
// concurrently with GetOrCreate/Lookup.
func (sm *SessionManager) Sweep() {
	sm.mu.Lock()
	expired := make([]*Session, 0)
	for id, s := range sm.sessions {
		if s.activity.Expired() {
			expired = append(expired, s)
			delete(sm.sessions, id)
		}
	}
	sm.mu.Unlock()

	for _, s := range expired {
		s.Noise.Terminate()
		if sm.onExpire != nil {
			sm.onExpire(s)
		}
	}
}

// Len reports the number of live sessions.
func (sm *SessionManager) Len() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.sessions)
}

// Destroy removes and terminates a session explicitly, e.g. after a fatal
// DecryptFail/NonceRegression/PsfMatchError per spec §4.10's propagation
// policy ("destroy the session").
func (sm *SessionManager) Destroy(id SessionID) {
	sm.mu.Lock()
	s, ok := sm.sessions[id]
	if ok {
		delete(sm.sessions, id)
	}
	sm.mu.Unlock()
	if ok {
		s.Noise.Terminate()
		if sm.onExpire != nil {
			sm.onExpire(s)
		}
	}
}

var errBypass = coreerr.New("endpoint: refusing to forward without a completed handshake").WithKind(coreerr.Bypass)

// ErrBypass is the process-level, fail-closed error of spec §4.10/§7
// ("the core never silently falls back to unencrypted transport"). Any
// code path that would dial the target before a session's Noise state
// reaches Transport must return this instead.
func ErrBypass() error { return errBypass }
