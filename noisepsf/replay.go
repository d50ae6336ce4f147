package noisepsf

import (
	"sync"

	cuckoo "github.com/seiflotfy/cuckoofilter"
)

// ReplayGuard probabilistically rejects a first handshake message the
// endpoint has already seen, so a captured NK/KK message-1 cannot be
// replayed to spin up unbounded half-open sessions before the real Noise
// authentication check would reject it anyway. False positives only cost
// a legitimate client one extra retry; false negatives are caught
// downstream by the handshake's own cryptographic checks, so an
// approximate filter is an acceptable trade for O(1) memory.
type ReplayGuard struct {
	mu     sync.Mutex
	filter *cuckoo.Filter
}

// NewReplayGuard sizes the filter for capacity expected distinct
// handshake-message-1s to track before the oldest entries are evicted by
// the filter's own capacity pressure.
func NewReplayGuard(capacity uint) *ReplayGuard {
	return &ReplayGuard{filter: cuckoo.NewFilter(capacity)}
}

// Seen reports whether msg has been observed before and records it if
// not, atomically with respect to other callers.
func (g *ReplayGuard) Seen(msg []byte) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.filter.Lookup(msg) {
		return true
	}
	g.filter.InsertUnique(msg)
	return false
}

// Reset clears all tracked messages. Only tests call it; the session
// manager's sweep does not reset the guard.
func (g *ReplayGuard) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.filter.Reset()
}
