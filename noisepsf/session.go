// Package noisepsf wraps the Noise Protocol Framework (NK/XX/KK patterns)
// over a byte carrier, producing post-handshake AEAD frames keyed by a
// monotonically increasing per-direction nonce (spec §4.4). The handshake
// state machine itself is delegated to github.com/flynn/noise, the way
// opd-ai-toxcore's crypto.NoiseHandshake wraps noise.HandshakeState rather
// than reimplementing X25519/ChaCha20-Poly1305/BLAKE2s by hand.
package noisepsf

import (
	"encoding/binary"
	"time"

	"github.com/flynn/noise"

	"github.com/0xinf0/nooshdaroo-sub001/external"
	"github.com/0xinf0/nooshdaroo-sub001/internal/coreerr"
)

// Pattern enumerates the three handshake recipes the core supports
// (spec §4.4, GLOSSARY "Noise pattern").
type Pattern int

const (
	PatternNK Pattern = iota
	PatternXX
	PatternKK
)

func (p Pattern) String() string {
	switch p {
	case PatternNK:
		return "NK"
	case PatternXX:
		return "XX"
	case PatternKK:
		return "KK"
	default:
		return "unknown"
	}
}

func (p Pattern) noisePattern() noise.HandshakePattern {
	switch p {
	case PatternXX:
		return noise.HandshakeXX
	case PatternKK:
		return noise.HandshakeKK
	default:
		return noise.HandshakeNK
	}
}

// MessageCount is the number of handshake messages a pattern requires
// (spec §4.4): NK and KK complete in two, XX in three.
func (p Pattern) MessageCount() int {
	if p == PatternXX {
		return 3
	}
	return 2
}

// State is the Noise Session's lifecycle (spec §4.4).
type State int

const (
	Uninitialized State = iota
	HandshakeInProgress
	Transport
	Terminated
)

var cipherSuite = noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashBLAKE2s)

// MaxPlaintext is the largest plaintext a single AEAD frame may carry
// (spec §3 "max plaintext per frame = 65535 − 16").
const MaxPlaintext = 65535 - 16

// Session drives one Noise conversation from handshake through transport.
// It is owned by exactly one task/session and is not safe for concurrent
// use from multiple goroutines without external synchronization (spec §5
// "per-session state is accessed exclusively by its owning task").
type Session struct {
	pattern   Pattern
	initiator bool
	state     State
	hs        *noise.HandshakeState

	sendCipher *noise.CipherState
	recvCipher *noise.CipherState
	sendNonce  uint64
	recvMax    uint64
	recvSeen   bool

	handshakeHash []byte
	rng           external.EntropySource
}

// Config carries everything needed to start a handshake (spec §3 "Noise
// Session. Holds: the pattern, static keypair(s), and known remote public
// key(s)").
type Config struct {
	Pattern     Pattern
	Initiator   bool
	StaticPriv  [32]byte
	StaticPub   [32]byte
	PeerStatic  []byte // required for NK (as initiator) and KK
	Prologue    []byte
	RNG         external.EntropySource
}

// NewSession constructs a Session ready to exchange its first handshake
// message (spec §4.4 "Uninitialized → HandshakeInProgress").
func NewSession(cfg Config) (*Session, error) {
	hsCfg := noise.Config{
		CipherSuite: cipherSuite,
		Random:      cfg.RNG,
		Pattern:     cfg.Pattern.noisePattern(),
		Initiator:   cfg.Initiator,
		Prologue:    cfg.Prologue,
		StaticKeypair: noise.DHKey{
			Private: cfg.StaticPriv[:],
			Public:  cfg.StaticPub[:],
		},
	}
	if len(cfg.PeerStatic) > 0 {
		hsCfg.PeerStatic = cfg.PeerStatic
	}

	hs, err := noise.NewHandshakeState(hsCfg)
	if err != nil {
		return nil, coreerr.New("noise: constructing handshake state").Base(err).WithKind(coreerr.HandshakeMismatch)
	}

	return &Session{
		pattern:   cfg.Pattern,
		initiator: cfg.Initiator,
		state:     HandshakeInProgress,
		hs:        hs,
		rng:       cfg.RNG,
	}, nil
}

// State reports the session's current lifecycle stage.
func (s *Session) State() State { return s.state }

// WriteHandshakeMessage produces the next outbound handshake message,
// optionally carrying a handshake payload (spec §4.4).
func (s *Session) WriteHandshakeMessage(payload []byte) ([]byte, error) {
	if s.state != HandshakeInProgress {
		return nil, coreerr.New("noise: handshake not in progress").WithKind(coreerr.HandshakeMismatch)
	}
	msg, cs1, cs2, err := s.hs.WriteMessage(nil, payload)
	if err != nil {
		return nil, coreerr.New("noise: write handshake message").Base(err).WithKind(coreerr.HandshakeMismatch)
	}
	s.maybeComplete(cs1, cs2)
	return msg, nil
}

// ReadHandshakeMessage consumes an inbound handshake message and returns
// any handshake payload it carried (spec §4.4).
func (s *Session) ReadHandshakeMessage(msg []byte) ([]byte, error) {
	if s.state != HandshakeInProgress {
		return nil, coreerr.New("noise: handshake not in progress").WithKind(coreerr.HandshakeMismatch)
	}
	payload, cs1, cs2, err := s.hs.ReadMessage(nil, msg)
	if err != nil {
		return nil, coreerr.New("noise: read handshake message").Base(err).WithKind(coreerr.HandshakeMismatch)
	}
	s.maybeComplete(cs1, cs2)
	return payload, nil
}

func (s *Session) maybeComplete(cs1, cs2 *noise.CipherState) {
	if cs1 == nil || cs2 == nil {
		return
	}
	s.state = Transport
	s.handshakeHash = s.hs.ChannelBinding()
	if s.initiator {
		s.sendCipher, s.recvCipher = cs1, cs2
	} else {
		s.sendCipher, s.recvCipher = cs2, cs1
	}
}

// HandshakeHash returns the Noise channel-binding value once the
// handshake has completed; Export derives its keys from the same value.
func (s *Session) HandshakeHash() []byte { return s.handshakeHash }

func nonceBytes(counter uint64) [12]byte {
	var n [12]byte
	binary.BigEndian.PutUint64(n[4:], counter)
	return n
}

// Seal encrypts plaintext under the current send nonce and advances it
// (spec §4.4 "64-bit monotonically increasing counter per direction").
func (s *Session) Seal(plaintext []byte) ([]byte, error) {
	if s.state != Transport {
		return nil, coreerr.New("noise: session not in transport state").WithKind(coreerr.HandshakeMismatch)
	}
	if len(plaintext) > MaxPlaintext {
		return nil, coreerr.New("noise: plaintext exceeds frame maximum").WithKind(coreerr.PayloadTooLarge)
	}
	ad := nonceBytes(s.sendNonce)
	ct, err := s.sendCipher.Encrypt(nil, ad[:], plaintext)
	if err != nil {
		return nil, coreerr.New("noise: seal").Base(err).WithKind(coreerr.DecryptFail)
	}
	s.sendNonce++
	return ct, nil
}

// Open decrypts ciphertext under the next expected recv nonce, enforcing
// strict monotonicity (spec §4.4, P4: "reject any frame with nonce ≤
// max-seen"). The expected nonce is derived purely from recvMax/recvSeen,
// not carried on the wire, because flynn/noise's CipherState advances its
// own internal nonce counter by one on every Decrypt call regardless of
// what is passed as associated data: there is no supported way to make a
// single CipherState decrypt frame N+2 before frame N+1 has been consumed.
// Both datagram and stream carriers therefore get the same guarantee Open
// has always provided — a dropped or reordered datagram desynchronizes the
// counter and every frame after it fails to decrypt, so the UDP carrier
// tolerates no datagram loss or reordering once a session is past its
// first exchange (see DESIGN.md).
func (s *Session) Open(ciphertext []byte) ([]byte, error) {
	if s.state != Transport {
		return nil, coreerr.New("noise: session not in transport state").WithKind(coreerr.HandshakeMismatch)
	}
	next := s.recvMax
	if s.recvSeen {
		next = s.recvMax + 1
	}
	ad := nonceBytes(next)
	pt, err := s.recvCipher.Decrypt(nil, ad[:], ciphertext)
	if err != nil {
		return nil, coreerr.New("noise: open").Base(err).WithKind(coreerr.DecryptFail)
	}
	s.recvMax = next
	s.recvSeen = true
	return pt, nil
}

// Terminate transitions the session to Terminated and drops its directional
// key material (spec §5 "Cancellation ... zeroizes the Noise directional
// keys"). The flynn/noise CipherState does not expose its key buffer for
// in-place wiping, so Terminate drops the references instead and relies
// on the garbage collector; the pointers are nilled eagerly so no later
// code path can accidentally keep encrypting/decrypting on a "terminated"
// session.
func (s *Session) Terminate() {
	s.state = Terminated
	s.sendCipher = nil
	s.recvCipher = nil
	s.hs = nil
}

// HandshakeDeadline returns the wall-clock deadline for completing the
// handshake given clock c and the configured timeout (spec §5 "Handshake
// 5 s").
func HandshakeDeadline(c external.Clock, timeout time.Duration) int64 {
	return c.WallSeconds() + int64(timeout/time.Second)
}
