package interp

import (
	"bytes"

	"github.com/0xinf0/nooshdaroo-sub001/psf"
)

// Absorb parses data against the format currently due for role (the
// conversation peer's message, from this side's point of view), validates
// FIXED_VALUE/FIXED_BYTES fields, and returns the PAYLOAD field's bytes if
// the format has one (spec §4.2 "Absorb"). It then advances role's phase
// cursor in lockstep with Emit.
func Absorb(s *State, role psf.RoleKind, data []byte) ([]byte, error) {
	f, phase, err := s.formatFor(role)
	if err != nil {
		return nil, err
	}
	payload, err := absorbFormat(f, data)
	if err != nil {
		return nil, err
	}
	s.advance(role, phase)
	return payload, nil
}

func absorbFormat(f *psf.Format, data []byte) ([]byte, error) {
	pos := 0
	lengthValues := map[string]int{}
	var payload []byte
	sawPayload := false

	for _, fld := range f.Fields {
		switch fld.Semantic {
		case psf.SemanticFixedValue, psf.SemanticFixedBytes:
			w := fld.Width
			if w == 0 {
				w = len(fld.Literal)
			}
			if pos+w > len(data) {
				return nil, &MatchError{Kind: Truncated, Field: fld.Name, N: len(data) - pos}
			}
			chunk := data[pos : pos+w]
			if !bytes.Equal(chunk, fld.Literal) {
				return nil, &MatchError{Kind: Mismatch, Field: fld.Name, N: w}
			}
			pos += w

		case psf.SemanticLength:
			w := fld.Width
			if pos+w > len(data) {
				return nil, &MatchError{Kind: Truncated, Field: fld.Name, N: len(data) - pos}
			}
			lengthValues[fld.LengthTarget] = int(getUintBE(data[pos : pos+w]))
			pos += w

		case psf.SemanticRandom, psf.SemanticTimestamp:
			w := fld.Width
			if pos+w > len(data) {
				return nil, &MatchError{Kind: Truncated, Field: fld.Name, N: len(data) - pos}
			}
			pos += w

		case psf.SemanticPayload:
			sawPayload = true
			w, declared := lengthValues[fld.Name]
			if !declared {
				w = len(data) - pos
			}
			if pos+w > len(data) {
				return nil, &MatchError{Kind: Truncated, Field: fld.Name, N: len(data) - pos}
			}
			payload = data[pos : pos+w]
			pos += w

		default:
			w := fld.Width
			if w == 0 && fld.HasLiteral {
				w = len(fld.Literal)
			}
			if pos+w > len(data) {
				return nil, &MatchError{Kind: Truncated, Field: fld.Name, N: len(data) - pos}
			}
			if fld.HasLiteral && !bytes.Equal(data[pos:pos+w], fld.Literal) {
				return nil, &MatchError{Kind: Mismatch, Field: fld.Name, N: w}
			}
			pos += w
		}
	}

	if pos < len(data) {
		return payload, &MatchError{Kind: TrailingGarbage, Field: f.Name, N: len(data) - pos}
	}
	_ = sawPayload
	return payload, nil
}
