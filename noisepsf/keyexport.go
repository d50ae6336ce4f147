package noisepsf

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/0xinf0/nooshdaroo-sub001/internal/coreerr"
)

// ExportedKeys is the nQUIC-style keying material derived from a completed
// handshake (spec §4.4 "Key derivation requirement"). It must never reuse
// the Noise transport keys themselves.
type ExportedKeys struct {
	ClientHandshake [32]byte
	ServerHandshake [32]byte
	ClientApp       [32]byte
	ServerApp       [32]byte
}

// Export derives nQUIC-compatible application keys from a completed
// session's handshake hash.
//
// flynn/noise does not expose the Noise chaining key (ck) to callers —
// only the handshake hash via ChannelBinding() — so unlike the spec's
// description of the source's "risky-raw-split" escape hatch into raw
// chaining-key bytes, this adapter uses the handshake hash as both salt
// and input keying material, distinguishing the four outputs purely by
// HKDF info label. This is the "thin adapter... from the exposed
// handshake hash" the design notes call for when chaining output isn't
// reachable.
func (s *Session) Export() (ExportedKeys, error) {
	if s.state != Transport || len(s.handshakeHash) == 0 {
		return ExportedKeys{}, coreerr.New("noise: cannot export keys before transport state").WithKind(coreerr.HandshakeMismatch)
	}
	var out ExportedKeys
	labels := [][]byte{[]byte("client hs"), []byte("server hs"), []byte("client ap"), []byte("server ap")}
	dests := []*[32]byte{&out.ClientHandshake, &out.ServerHandshake, &out.ClientApp, &out.ServerApp}
	for i, label := range labels {
		r := hkdf.New(sha256.New, s.handshakeHash, s.handshakeHash, label)
		if _, err := io.ReadFull(r, dests[i][:]); err != nil {
			return ExportedKeys{}, coreerr.New("noise: hkdf-expand").Base(err).WithKind(coreerr.HandshakeMismatch)
		}
	}
	return out, nil
}
