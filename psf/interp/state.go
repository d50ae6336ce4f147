package interp

import "github.com/0xinf0/nooshdaroo-sub001/psf"

// roleCursor is the per-role runtime state of spec §3 "PSF runtime state":
// current phase and step within it.
type roleCursor struct {
	active        bool // true once the HANDSHAKE phase has been exhausted
	handshakeStep int  // next index into the HANDSHAKE phase's FormatRefs
	activeStep    int  // cycling index into the ACTIVE phase's FormatRefs
}

// State tracks, for one connection, both roles' progress through their
// protocol's phases. One State is shared by a connection's Emit calls (for
// its own role) and Absorb calls (for the peer's role), so HANDSHAKE
// message counting stays in sync on both sides of the conversation.
type State struct {
	Proto    *psf.Protocol
	cursors  map[psf.RoleKind]*roleCursor
}

// NewState creates runtime state for proto, both roles starting at the
// first HANDSHAKE message.
func NewState(proto *psf.Protocol) *State {
	return &State{
		Proto: proto,
		cursors: map[psf.RoleKind]*roleCursor{
			psf.RoleClient: {},
			psf.RoleServer: {},
		},
	}
}

// formatFor returns the Format currently due for role without advancing
// the role's cursor: callers must call advance after a successful
// Emit/Absorb using this format.
func (s *State) formatFor(role psf.RoleKind) (*psf.Format, psf.PhaseKind, error) {
	r := s.Proto.Roles[role]
	if r == nil {
		return nil, 0, errNoRole(role)
	}
	c := s.cursors[role]

	if !c.active {
		hp := r.PhaseByKind(psf.PhaseHandshake)
		if hp != nil && c.handshakeStep < len(hp.FormatRefs) {
			name := hp.FormatRefs[c.handshakeStep]
			f := s.Proto.FormatByName(name)
			if f == nil {
				return nil, 0, errUnknownFormat(name)
			}
			return f, psf.PhaseHandshake, nil
		}
		c.active = true
	}

	ap := r.PhaseByKind(psf.PhaseActive)
	if ap == nil || len(ap.FormatRefs) == 0 {
		return nil, 0, errNoActivePhase(role)
	}
	name := ap.FormatRefs[c.activeStep%len(ap.FormatRefs)]
	f := s.Proto.FormatByName(name)
	if f == nil {
		return nil, 0, errUnknownFormat(name)
	}
	return f, psf.PhaseActive, nil
}

// advance moves role's cursor to the next message after a successful
// Emit/Absorb against the format formatFor returned.
func (s *State) advance(role psf.RoleKind, phase psf.PhaseKind) {
	c := s.cursors[role]
	if phase == psf.PhaseHandshake {
		c.handshakeStep++
		r := s.Proto.Roles[role]
		if hp := r.PhaseByKind(psf.PhaseHandshake); hp == nil || c.handshakeStep >= len(hp.FormatRefs) {
			c.active = true
		}
		return
	}
	c.activeStep++
}

// Phase reports role's current phase, for diagnostics and tests.
func (s *State) Phase(role psf.RoleKind) psf.PhaseKind {
	if s.cursors[role].active {
		return psf.PhaseActive
	}
	return psf.PhaseHandshake
}

// CurrentFormat exposes the Format that the next Emit/Absorb for role will
// use, without mutating the cursor. The Frame Adapter (C5) needs this to
// decide whether a format already self-describes its payload length
// before deciding whether to add its own length prefix.
func (s *State) CurrentFormat(role psf.RoleKind) (*psf.Format, psf.PhaseKind, error) {
	return s.formatFor(role)
}
