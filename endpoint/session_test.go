package endpoint_test

import (
	"crypto/rand"
	"sync"
	"testing"
	"time"

	"github.com/flynn/noise"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xinf0/nooshdaroo-sub001/endpoint"
	"github.com/0xinf0/nooshdaroo-sub001/frame"
	"github.com/0xinf0/nooshdaroo-sub001/noisepsf"
)

func dummyNewSession(t *testing.T) func() (*noisepsf.Session, *frame.Adapter) {
	return func() (*noisepsf.Session, *frame.Adapter) {
		kp, err := noise.DH25519.GenerateKeypair(rand.Reader)
		require.NoError(t, err)
		var priv, pub [32]byte
		copy(priv[:], kp.Private)
		copy(pub[:], kp.Public)
		sess, err := noisepsf.NewSession(noisepsf.Config{
			Pattern:    noisepsf.PatternNK,
			Initiator:  false,
			StaticPriv: priv,
			StaticPub:  pub,
			RNG:        rand.Reader,
		})
		require.NoError(t, err)
		return sess, nil
	}
}

type stubAddr string

func (a stubAddr) Network() string { return "udp" }
func (a stubAddr) String() string  { return string(a) }

func TestGetOrCreateReturnsSameSessionForSameID(t *testing.T) {
	sm := endpoint.NewSessionManager(time.Hour, time.Hour, nil)
	defer sm.Close()

	s1 := sm.GetOrCreate(1, stubAddr("1.2.3.4:5"), dummyNewSession(t))
	s2 := sm.GetOrCreate(1, stubAddr("1.2.3.4:5"), dummyNewSession(t))
	assert.Same(t, s1, s2)
	assert.Equal(t, 1, sm.Len())
}

func TestLookupReportsMissingSession(t *testing.T) {
	sm := endpoint.NewSessionManager(time.Hour, time.Hour, nil)
	defer sm.Close()

	_, ok := sm.Lookup(42)
	assert.False(t, ok)
}

func TestReplaceTerminatesOldSessionAndInstallsNew(t *testing.T) {
	sm := endpoint.NewSessionManager(time.Hour, time.Hour, nil)
	defer sm.Close()

	old := sm.GetOrCreate(7, stubAddr("a"), dummyNewSession(t))
	replaced := sm.Replace(7, stubAddr("b"), dummyNewSession(t))

	assert.NotSame(t, old, replaced)
	assert.Equal(t, noisepsf.Terminated, old.Noise.State())
	assert.Equal(t, 1, sm.Len())
}

// TestIdleTimerExpiresIdleSessions covers spec §4.7's idle expiry (P5): a
// session with no Touch() calls within its idle timeout is removed by its
// activity timer, without any Sweep call, its Noise state is terminated,
// and onExpire is invoked.
func TestIdleTimerExpiresIdleSessions(t *testing.T) {
	var expiredIDs []endpoint.SessionID
	var mu sync.Mutex
	sm := endpoint.NewSessionManager(20*time.Millisecond, time.Hour, func(s *endpoint.Session) {
		mu.Lock()
		expiredIDs = append(expiredIDs, s.ID)
		mu.Unlock()
	})
	defer sm.Close()

	s := sm.GetOrCreate(9, stubAddr("c"), dummyNewSession(t))
	require.Equal(t, 1, sm.Len())

	require.Eventually(t, func() bool {
		return s.Noise.State() == noisepsf.Terminated
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 0, sm.Len())
	mu.Lock()
	assert.Contains(t, expiredIDs, endpoint.SessionID(9))
	mu.Unlock()
}

func TestDestroyRemovesAndTerminatesSession(t *testing.T) {
	sm := endpoint.NewSessionManager(time.Hour, time.Hour, nil)
	defer sm.Close()

	s := sm.GetOrCreate(3, stubAddr("d"), dummyNewSession(t))
	sm.Destroy(3)

	assert.Equal(t, 0, sm.Len())
	assert.Equal(t, noisepsf.Terminated, s.Noise.State())
}

func TestEnqueueDropsOldestWhenFull(t *testing.T) {
	s := &endpoint.Session{}
	for i := 0; i < endpoint.OutboundQueueDepth+5; i++ {
		s.Enqueue([]byte{byte(i)})
	}
	drained := s.Drain()
	assert.Len(t, drained, endpoint.OutboundQueueDepth)
	assert.Equal(t, uint64(5), s.DropCount())
	// Oldest 5 entries (bytes 0..4) should have been dropped; the first
	// surviving entry is byte 5.
	assert.Equal(t, byte(5), drained[0][0])
}
