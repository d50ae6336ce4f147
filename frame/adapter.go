// Package frame implements the Frame Adapter (C5): it bridges Noise's
// sealed/opened byte frames and the PSF Interpreter's phase-driven
// envelope, deciding per (carrier, protocol) whether an extra length
// prefix is needed before the PSF PAYLOAD field, and enforcing the
// datagram MTU-like ceiling (spec §4.5).
package frame

import (
	"encoding/binary"

	"github.com/0xinf0/nooshdaroo-sub001/external"
	"github.com/0xinf0/nooshdaroo-sub001/internal/coreerr"
	"github.com/0xinf0/nooshdaroo-sub001/psf"
	"github.com/0xinf0/nooshdaroo-sub001/psf/interp"
)

// Carrier is the transport beneath the PSF envelope (GLOSSARY "Carrier").
type Carrier int

const (
	Stream Carrier = iota
	Datagram
)

// DefaultMaxDatagramSize is the spec §6 configuration default.
const DefaultMaxDatagramSize = 1232

// Adapter binds a PSF runtime State to a carrier kind and enforces the
// framing rules of spec §4.5.
type Adapter struct {
	State           *interp.State
	Carrier         Carrier
	MaxDatagramSize int
	RNG             external.EntropySource
	Clock           external.Clock
}

// NewAdapter constructs an Adapter over proto for the given carrier.
func NewAdapter(proto *psf.Protocol, carrier Carrier, rng external.EntropySource, clock external.Clock) *Adapter {
	return &Adapter{
		State:           interp.NewState(proto),
		Carrier:         carrier,
		MaxDatagramSize: DefaultMaxDatagramSize,
		RNG:             rng,
		Clock:           clock,
	}
}

// selfDescribing reports whether f's PAYLOAD field already has a LENGTH
// field targeting it, per spec §4.5 item 2 ("PSF's own ACTIVE/DATA format
// is expected to include its own LENGTH field; Frame Adapter MUST NOT add
// a second length prefix").
func selfDescribing(f *psf.Format) bool {
	pf := f.PayloadField()
	if pf == nil {
		return false
	}
	for _, fld := range f.Fields {
		if fld.Semantic == psf.SemanticLength && fld.LengthTarget == pf.Name {
			return true
		}
	}
	return false
}

// EmitFrame wraps innerBytes (a Noise handshake message or sealed
// ciphertext) in the PSF envelope currently due for role, adding the
// Frame-level 2-byte length prefix only when the target format cannot
// self-describe its payload length (spec §3 "Frame", §4.5).
func (a *Adapter) EmitFrame(role psf.RoleKind, innerBytes []byte) ([]byte, error) {
	f, _, err := a.State.CurrentFormat(role)
	if err != nil {
		return nil, err
	}

	payload := innerBytes
	if a.Carrier == Stream && !selfDescribing(f) {
		if len(innerBytes) > 0xFFFF {
			return nil, coreerr.New("frame: inner message exceeds u16 length prefix").WithKind(coreerr.PayloadTooLarge)
		}
		prefixed := make([]byte, 2+len(innerBytes))
		binary.BigEndian.PutUint16(prefixed, uint16(len(innerBytes)))
		copy(prefixed[2:], innerBytes)
		payload = prefixed
	}

	if a.Carrier == Datagram && len(payload) > a.MaxDatagramSize {
		return nil, coreerr.New("frame: payload exceeds max_datagram_size").WithKind(coreerr.PayloadTooLarge)
	}

	return interp.Emit(a.State, role, payload, a.RNG, a.Clock)
}

// AbsorbFrame parses an inbound carrier message against the PSF envelope
// currently due for role (the peer's role) and returns the inner Noise
// bytes, reversing whatever framing EmitFrame applied.
func (a *Adapter) AbsorbFrame(role psf.RoleKind, data []byte) ([]byte, error) {
	if a.Carrier == Datagram && len(data) > a.MaxDatagramSize {
		return nil, coreerr.New("frame: inbound datagram exceeds max_datagram_size").WithKind(coreerr.PayloadTooLarge)
	}

	f, _, err := a.State.CurrentFormat(role)
	if err != nil {
		return nil, err
	}

	payload, err := interp.Absorb(a.State, role, data)
	if err != nil {
		return nil, err
	}

	if a.Carrier == Stream && !selfDescribing(f) {
		if len(payload) < 2 {
			return nil, coreerr.New("frame: truncated length prefix").WithKind(coreerr.PsfMatchError)
		}
		n := int(binary.BigEndian.Uint16(payload))
		if 2+n != len(payload) {
			return nil, coreerr.New("frame: length prefix mismatch").WithKind(coreerr.PsfMatchError)
		}
		return payload[2 : 2+n], nil
	}
	return payload, nil
}
