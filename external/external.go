// Package external declares the interfaces the core consumes from, but
// does not implement, its embedding application (spec §6 "Surface the
// core consumes from external collaborators"). SOCKS5/HTTP command
// parsing, CLI flag parsing, log sink setup, key-file I/O, mobile
// tunnel drivers, and the dial-to-target step are all out of scope for
// this module (spec §1) and are reachable only through these seams.
package external

import (
	"context"
	"io"
	"net"
	"time"
)

// TargetDialer dials the final destination after a connection has
// authenticated and decrypted successfully. isUDP selects a datagram vs.
// stream duplex channel.
type TargetDialer interface {
	Dial(ctx context.Context, host string, port uint16, isUDP bool) (net.Conn, error)
}

// Clock supplies monotonic seconds (for session idle accounting) and wall
// seconds (for PSF TIMESTAMP fields). Kept as an interface so tests can
// substitute a fake clock without sleeping.
type Clock interface {
	MonotonicSeconds() int64
	WallSeconds() int64
}

// EntropySource returns cryptographically secure random bytes, the sole
// source the PSF interpreter and Noise session draw RANDOM/key material
// from. io.Reader is deliberately the whole contract: crypto/rand.Reader
// satisfies it directly, and tests can substitute a seeded deterministic
// reader for reproducible fixtures (spec §4.2 "Determinism").
type EntropySource interface {
	io.Reader
}

// Keystore returns this process's static keypairs and verifies peer public
// keys, per the Noise pattern in use (spec §6).
type Keystore interface {
	// StaticKeypair returns this side's long-term X25519 keypair.
	StaticKeypair() (priv, pub [32]byte, err error)
	// IsKnownPeer reports whether pub is an authorized peer static key.
	// No code in this module calls it.
	IsKnownPeer(pub [32]byte) bool
}

// SystemClock is the default Clock, backed by the standard library.
type SystemClock struct{}

// processStart anchors MonotonicSeconds; time.Since uses the monotonic
// clock reading, so the result never goes backwards when wall time jumps.
var processStart = time.Now()

func (SystemClock) MonotonicSeconds() int64 { return int64(time.Since(processStart) / time.Second) }
func (SystemClock) WallSeconds() int64      { return time.Now().Unix() }
