package noisepsf

import (
	"sync"

	"github.com/0xinf0/nooshdaroo-sub001/external"
	"github.com/0xinf0/nooshdaroo-sub001/internal/coreerr"
)

// SecretStore is the process-wide holder of static keypairs (spec §3
// "Noise keys live in a process-wide secrets store; each session borrows
// a handle and zeroizes derived key material on destruction"). It wraps
// an external.Keystore collaborator (the real key-file I/O is out of
// scope, spec §1) and caches the derived pair so repeated handshakes
// don't re-hit the collaborator.
type SecretStore struct {
	mu       sync.RWMutex
	backing  external.Keystore
	priv     [32]byte
	pub      [32]byte
	loaded   bool
}

// NewSecretStore wraps an external.Keystore collaborator.
func NewSecretStore(backing external.Keystore) *SecretStore {
	return &SecretStore{backing: backing}
}

// StaticKeypair returns the process's static X25519 keypair, loading and
// caching it from the backing Keystore on first use.
func (ss *SecretStore) StaticKeypair() (priv, pub [32]byte, err error) {
	ss.mu.RLock()
	if ss.loaded {
		priv, pub = ss.priv, ss.pub
		ss.mu.RUnlock()
		return priv, pub, nil
	}
	ss.mu.RUnlock()

	ss.mu.Lock()
	defer ss.mu.Unlock()
	if ss.loaded {
		return ss.priv, ss.pub, nil
	}
	p, pb, err := ss.backing.StaticKeypair()
	if err != nil {
		return [32]byte{}, [32]byte{}, coreerr.New("keystore: load static keypair").Base(err).WithKind(coreerr.Unclassified)
	}
	ss.priv, ss.pub, ss.loaded = p, pb, true
	return ss.priv, ss.pub, nil
}

// IsKnownPeer delegates to the backing Keystore (KK/XX peer pinning).
func (ss *SecretStore) IsKnownPeer(pub [32]byte) bool {
	return ss.backing.IsKnownPeer(pub)
}

// Zeroize overwrites the cached private key with zero bytes. Called once
// at process shutdown; per-session derived key material is dropped by
// Session.Terminate rather than zeroized in place, since flynn/noise does
// not expose its internal key buffer for wiping (see Session.Terminate).
func (ss *SecretStore) Zeroize() {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	for i := range ss.priv {
		ss.priv[i] = 0
	}
	ss.loaded = false
}
