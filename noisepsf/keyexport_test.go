package noisepsf_test

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xinf0/nooshdaroo-sub001/noisepsf"
)

// TestExportDerivesDistinctAgreeingKeys covers the spec §4.4 key
// derivation requirement: both sides of a completed handshake must
// derive identical keys, and the four derived keys must differ from each
// other.
func TestExportDerivesDistinctAgreeingKeys(t *testing.T) {
	serverPriv, serverPub := genKeypair(t)
	client, server := completeHandshake(t, serverPriv, serverPub)

	clientKeys, err := client.Export()
	require.NoError(t, err)
	serverKeys, err := server.Export()
	require.NoError(t, err)

	assert.Equal(t, clientKeys, serverKeys)
	assert.NotEqual(t, clientKeys.ClientHandshake, clientKeys.ServerHandshake)
	assert.NotEqual(t, clientKeys.ClientHandshake, clientKeys.ClientApp)
	assert.NotEqual(t, clientKeys.ServerHandshake, clientKeys.ServerApp)
	assert.NotEqual(t, clientKeys.ClientApp, clientKeys.ServerApp)
}

func TestExportRejectsPreTransportSession(t *testing.T) {
	_, serverPub := genKeypair(t)
	client, err := noisepsf.NewSession(noisepsf.Config{
		Pattern:    noisepsf.PatternNK,
		Initiator:  true,
		PeerStatic: serverPub[:],
		RNG:        rand.Reader,
	})
	require.NoError(t, err)

	_, err = client.Export()
	require.Error(t, err)
}

func TestReplayGuardRejectsRepeatedMessage(t *testing.T) {
	g := noisepsf.NewReplayGuard(1024)
	msg := []byte("handshake-message-1-bytes")

	assert.False(t, g.Seen(msg))
	assert.True(t, g.Seen(msg))

	g.Reset()
	assert.False(t, g.Seen(msg))
}
