// Package interp evaluates a psf.Protocol AST against byte buffers: Emit
// produces outbound wire bytes for a role's current phase, and Absorb
// parses/validates inbound bytes, extracting the PAYLOAD (spec §4.2).
package interp

import (
	"fmt"

	"github.com/0xinf0/nooshdaroo-sub001/internal/coreerr"
	"github.com/0xinf0/nooshdaroo-sub001/psf"
)

func errNoRole(role psf.RoleKind) error {
	return coreerr.New("protocol has no ", role.String(), " role").WithKind(coreerr.PsfParseError)
}

func errUnknownFormat(name string) error {
	return coreerr.New("reference to undefined format ", name).WithKind(coreerr.PsfParseError)
}

func errNoActivePhase(role psf.RoleKind) error {
	return coreerr.New("role ", role.String(), " has no ACTIVE/DATA phase").WithKind(coreerr.PsfParseError)
}

// MatchErrorKind enumerates Absorb's failure modes (spec §4.2).
type MatchErrorKind int

const (
	Mismatch MatchErrorKind = iota
	TrailingGarbage
	Truncated
	PayloadTooLarge
	UndefinedTarget
)

func (k MatchErrorKind) String() string {
	switch k {
	case Mismatch:
		return "Mismatch"
	case TrailingGarbage:
		return "TrailingGarbage"
	case Truncated:
		return "Truncated"
	case PayloadTooLarge:
		return "PayloadTooLarge"
	case UndefinedTarget:
		return "UndefinedTarget"
	default:
		return "Unknown"
	}
}

// MatchError is raised by Absorb/Emit. It never carries the offending
// bytes themselves (spec §7: "never leak ... absorbed mismatch bytes to
// error text"), only a field name and byte count.
type MatchError struct {
	Kind  MatchErrorKind
	Field string
	N     int
}

func (e *MatchError) Error() string {
	return fmt.Sprintf("psf: %s at field %q (%d bytes)", e.Kind, e.Field, e.N)
}

// AsCoreError maps a MatchError onto the §4.10 taxonomy Kind for
// propagation-policy dispatch.
func (e *MatchError) AsCoreError() *coreerr.Error {
	k := coreerr.PsfMatchError
	if e.Kind == PayloadTooLarge {
		k = coreerr.PayloadTooLarge
	}
	return coreerr.New(e.Error()).WithKind(k).Base(e)
}
