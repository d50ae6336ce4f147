package interp

import (
	"encoding/binary"

	"github.com/0xinf0/nooshdaroo-sub001/external"
	"github.com/0xinf0/nooshdaroo-sub001/psf"
)

type lengthPatch struct {
	offset int
	width  int
	target string
}

// Emit walks the format currently due for role and produces its wire
// bytes, splicing payload into the PAYLOAD field if the format has one
// (spec §4.2 "Emit"). It then advances role's phase cursor.
func Emit(s *State, role psf.RoleKind, payload []byte, rng external.EntropySource, clock external.Clock) ([]byte, error) {
	f, phase, err := s.formatFor(role)
	if err != nil {
		return nil, err
	}
	out, err := emitFormat(f, payload, rng, clock)
	if err != nil {
		return nil, err
	}
	s.advance(role, phase)
	return out, nil
}

func emitFormat(f *psf.Format, payload []byte, rng external.EntropySource, clock external.Clock) ([]byte, error) {
	hasTimestamp := false
	for _, fld := range f.Fields {
		if fld.Semantic == psf.SemanticTimestamp {
			hasTimestamp = true
		}
	}

	var out []byte
	fieldLens := map[string]int{}
	var patches []lengthPatch

	for _, fld := range f.Fields {
		start := len(out)
		switch fld.Semantic {
		case psf.SemanticFixedValue, psf.SemanticFixedBytes:
			out = append(out, fld.Literal...)

		case psf.SemanticLength:
			out = append(out, make([]byte, fld.Width)...)
			patches = append(patches, lengthPatch{offset: start, width: fld.Width, target: fld.LengthTarget})

		case psf.SemanticRandom:
			b := make([]byte, fld.Width)
			if _, err := rng.Read(b); err != nil {
				return nil, err
			}
			if fld.Width >= 16 && hasTimestamp {
				jitter := make([]byte, 12)
				binary.BigEndian.PutUint64(jitter[:8], uint64(clock.WallSeconds()))
				copy(jitter[8:], b[len(b)-4:]) // keep 4 random bytes of jitter
				copy(b[len(b)-12:], jitter)
			}
			out = append(out, b...)

		case psf.SemanticPayload:
			if maxLen, ok := maxLengthFor(f, fld.Name); ok && len(payload) > maxLen {
				return nil, &MatchError{Kind: PayloadTooLarge, Field: fld.Name, N: len(payload)}
			}
			out = append(out, payload...)

		case psf.SemanticTimestamp:
			w := fld.Width
			if w == 0 {
				w = 4
			}
			ts := make([]byte, w)
			putUintBE(ts, uint64(clock.WallSeconds()))
			out = append(out, ts...)

		default:
			if fld.HasLiteral {
				out = append(out, fld.Literal...)
			} else {
				out = append(out, make([]byte, fld.Width)...)
			}
		}
		fieldLens[fld.Name] = len(out) - start
	}

	for _, p := range patches {
		targetLen, ok := fieldLens[p.target]
		if !ok {
			return nil, &MatchError{Kind: UndefinedTarget, Field: p.target}
		}
		maxVal := maxUintForWidth(p.width)
		if uint64(targetLen) > maxVal {
			return nil, &MatchError{Kind: PayloadTooLarge, Field: p.target, N: targetLen}
		}
		putUintBE(out[p.offset:p.offset+p.width], uint64(targetLen))
	}

	return out, nil
}

// maxLengthFor returns the maximum encodable length for fieldName if some
// LENGTH field in f targets it, per spec §4.2 "if payload.len() exceeds the
// maximum possible LENGTH encoding, fail PayloadTooLarge".
func maxLengthFor(f *psf.Format, fieldName string) (int, bool) {
	for _, fld := range f.Fields {
		if fld.Semantic == psf.SemanticLength && fld.LengthTarget == fieldName {
			return int(maxUintForWidth(fld.Width)), true
		}
	}
	return 0, false
}

func maxUintForWidth(width int) uint64 {
	if width >= 8 {
		return ^uint64(0)
	}
	return (uint64(1) << (8 * uint(width))) - 1
}

func putUintBE(b []byte, v uint64) {
	for i := len(b) - 1; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}

func getUintBE(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = (v << 8) | uint64(c)
	}
	return v
}
