package interp_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xinf0/nooshdaroo-sub001/internal/dice"
	"github.com/0xinf0/nooshdaroo-sub001/psf"
	"github.com/0xinf0/nooshdaroo-sub001/psf/interp"
)

const echoProto = `
protocol echo_v1 {
	name = "Echo";
	default_port = 7000;
	transport = "TCP";
	detection_score { commonality = 0.5; suspicion = 0.1; }
	ROLE CLIENT {
		PHASE HANDSHAKE { FORMAT Hello; }
		PHASE DATA { FORMAT Frame; }
	}
	ROLE SERVER {
		PHASE HANDSHAKE { FORMAT HelloAck; }
		PHASE DATA { FORMAT Frame; }
	}
	FORMAT Hello {
		FIELD magic:4=0xCAFEBABE SEMANTIC:FIXED_BYTES;
		FIELD nonce:8 SEMANTIC:RANDOM;
	}
	FORMAT HelloAck {
		FIELD magic:4=0xCAFEBABE SEMANTIC:FIXED_BYTES;
	}
	FORMAT Frame {
		FIELD length:2 SEMANTIC:LENGTH target=payload;
		FIELD payload:var SEMANTIC:PAYLOAD;
	}
}
`

type fakeEntropy struct{ dd *dice.DeterministicDice }

func (f fakeEntropy) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(f.dd.Intn(256))
	}
	return len(p), nil
}

type fakeClock struct{ wall int64 }

func (c fakeClock) MonotonicSeconds() int64 { return c.wall }
func (c fakeClock) WallSeconds() int64      { return c.wall }

func mustParse(t *testing.T, src string) *psf.Protocol {
	t.Helper()
	proto, errs := psf.Parse("echo.psf", src)
	require.Empty(t, errs)
	require.NotNil(t, proto)
	return proto
}

// TestEmitAbsorbRoundTrip exercises P1 (wire-format round trip): Emit
// produces bytes that Absorb parses back into the same payload on the
// other side, across both HANDSHAKE and DATA phases.
func TestEmitAbsorbRoundTrip(t *testing.T) {
	proto := mustParse(t, echoProto)
	rng := fakeEntropy{dice.NewDeterministicDice(1)}
	clock := fakeClock{wall: 1000}

	clientState := interp.NewState(proto)
	serverState := interp.NewState(proto)

	// HANDSHAKE: client -> server
	helloWire, err := interp.Emit(clientState, psf.RoleClient, nil, rng, clock)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xCA, 0xFE, 0xBA, 0xBE}, helloWire[:4])

	helloPayload, err := interp.Absorb(serverState, psf.RoleClient, helloWire)
	require.NoError(t, err)
	assert.Empty(t, helloPayload)

	// HANDSHAKE: server -> client
	ackWire, err := interp.Emit(serverState, psf.RoleServer, nil, rng, clock)
	require.NoError(t, err)
	_, err = interp.Absorb(clientState, psf.RoleServer, ackWire)
	require.NoError(t, err)

	// DATA: client -> server, carrying an arbitrary payload.
	msg := []byte("hello from the client")
	frameWire, err := interp.Emit(clientState, psf.RoleClient, msg, rng, clock)
	require.NoError(t, err)

	got, err := interp.Absorb(serverState, psf.RoleClient, frameWire)
	require.NoError(t, err)
	assert.Equal(t, msg, got)

	// Both states should now agree they're in the ACTIVE phase for CLIENT.
	assert.Equal(t, psf.PhaseActive, clientState.Phase(psf.RoleClient))
	assert.Equal(t, psf.PhaseActive, serverState.Phase(psf.RoleClient))
}

// TestAbsorbRejectsMismatchedFixedField exercises the PSF Mismatch error
// path: a HANDSHAKE message whose fixed field doesn't match the literal
// must fail closed, never silently pass through.
func TestAbsorbRejectsMismatchedFixedField(t *testing.T) {
	proto := mustParse(t, echoProto)
	state := interp.NewState(proto)

	bogus := []byte{0x00, 0x00, 0x00, 0x00, 1, 2, 3, 4, 5, 6, 7, 8}
	_, err := interp.Absorb(state, psf.RoleClient, bogus)
	require.Error(t, err)

	var matchErr *interp.MatchError
	require.ErrorAs(t, err, &matchErr)
	assert.Equal(t, interp.Mismatch, matchErr.Kind)
}

// TestAbsorbRejectsTruncatedMessage covers the Truncated error path.
func TestAbsorbRejectsTruncatedMessage(t *testing.T) {
	proto := mustParse(t, echoProto)
	state := interp.NewState(proto)

	truncated := []byte{0xCA, 0xFE, 0xBA, 0xBE, 1, 2}
	_, err := interp.Absorb(state, psf.RoleClient, truncated)
	require.Error(t, err)

	var matchErr *interp.MatchError
	require.ErrorAs(t, err, &matchErr)
	assert.Equal(t, interp.Truncated, matchErr.Kind)
}

// TestEmitPayloadTooLargeForLengthField ensures a payload that can't be
// represented by its LENGTH field's width fails PayloadTooLarge instead of
// silently truncating/overflowing.
func TestEmitPayloadTooLargeForLengthField(t *testing.T) {
	const tinyLenProto = `
protocol tiny_len {
	name = "Tiny";
	default_port = 1;
	transport = "TCP";
	detection_score { commonality = 0.1; suspicion = 0.1; }
	ROLE CLIENT { PHASE HANDSHAKE { FORMAT F; } PHASE DATA { FORMAT F; } }
	ROLE SERVER { PHASE HANDSHAKE { FORMAT F; } PHASE DATA { FORMAT F; } }
	FORMAT F {
		FIELD length:1 SEMANTIC:LENGTH target=payload;
		FIELD payload:var SEMANTIC:PAYLOAD;
	}
}
`
	proto := mustParse(t, tinyLenProto)
	state := interp.NewState(proto)
	rng := fakeEntropy{dice.NewDeterministicDice(2)}
	clock := fakeClock{}

	oversized := make([]byte, 300) // exceeds a 1-byte LENGTH field's 255 max
	_, err := interp.Emit(state, psf.RoleClient, oversized, rng, clock)
	require.Error(t, err)

	var matchErr *interp.MatchError
	require.ErrorAs(t, err, &matchErr)
	assert.Equal(t, interp.PayloadTooLarge, matchErr.Kind)
}
