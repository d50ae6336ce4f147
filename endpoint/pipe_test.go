package endpoint

import (
	"context"
	"crypto/rand"
	"io"
	"io/fs"
	"net"
	"testing"
	"time"

	"github.com/flynn/noise"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xinf0/nooshdaroo-sub001/config"
	"github.com/0xinf0/nooshdaroo-sub001/external"
	"github.com/0xinf0/nooshdaroo-sub001/frame"
	"github.com/0xinf0/nooshdaroo-sub001/noisepsf"
	"github.com/0xinf0/nooshdaroo-sub001/psf"
	"github.com/0xinf0/nooshdaroo-sub001/psf/builtin"
	"github.com/0xinf0/nooshdaroo-sub001/psf/library"
)

type fixedKeystore struct{ priv, pub [32]byte }

func (k fixedKeystore) StaticKeypair() (priv, pub [32]byte, err error) { return k.priv, k.pub, nil }
func (k fixedKeystore) IsKnownPeer(pub [32]byte) bool                  { return true }

type pipeDialer struct{ conn net.Conn }

func (d pipeDialer) Dial(ctx context.Context, host string, port uint16, isUDP bool) (net.Conn, error) {
	return d.conn, nil
}

// TestStreamHandshakeAndCopyOverRealProtocols drives a full client/server
// Noise handshake and a round trip of forwarded application data across
// an in-memory net.Pipe, using the real embedded PSF protocols (not a
// synthetic test-only format) over the production accept path
// (handleStreamConn -> runServerHandshake -> copyLoop, via readPSFMessage
// against the actual wire shapes in psf/builtin/protocols). A protocol
// whose handshake format can't be read back off the wire or has nowhere
// to carry the Noise bytes it's asked to emit (as ssh.psf's bannerless
// preamble once did) fails here instead of only in production.
func TestStreamHandshakeAndCopyOverRealProtocols(t *testing.T) {
	for _, protocolID := range []string{"https_google_com", "ssh"} {
		protocolID := protocolID
		t.Run(protocolID, func(t *testing.T) {
			protoFS, err := fs.Sub(builtin.Protocols, "protocols")
			require.NoError(t, err)
			lib, parseErrs := library.Load(protoFS)
			require.Empty(t, parseErrs)
			proto, err := lib.Get(protocolID)
			require.NoError(t, err)

			serverKP, err := noise.DH25519.GenerateKeypair(rand.Reader)
			require.NoError(t, err)
			var serverPriv, serverPub [32]byte
			copy(serverPriv[:], serverKP.Private)
			copy(serverPub[:], serverKP.Public)
			secrets := noisepsf.NewSecretStore(fixedKeystore{priv: serverPriv, pub: serverPub})

			targetServer, targetClient := net.Pipe()
			defer targetClient.Close()

			cfg := config.EndpointConfig{
				Carrier:            config.CarrierTCP,
				Pattern:            config.PatternNK,
				Protocol:           protocolID,
				Strategy:           config.StrategyParams{Kind: config.StrategyFixed, FixedProtocol: protocolID},
				MaxDatagramSize:    1232,
				IdleTimeout:        time.Minute,
				HandshakeTimeout:   5 * time.Second,
				SweepInterval:      time.Minute,
				OutboundQueueDepth: 64,
				BufferCeilingBytes: 1 << 20,
			}
			ep, err := NewEndpoint(cfg, lib, pipeDialer{conn: targetServer}, external.SystemClock{}, rand.Reader, secrets, nil)
			require.NoError(t, err)

			serverConn, clientConn := net.Pipe()
			defer clientConn.Close()
			go ep.handleStreamConn(context.Background(), serverConn)

			clientNoise, err := noisepsf.NewSession(noisepsf.Config{
				Pattern:    noisepsf.PatternNK,
				Initiator:  true,
				PeerStatic: serverPub[:],
				RNG:        rand.Reader,
			})
			require.NoError(t, err)
			clientAdapter := frame.NewAdapter(proto, frame.Stream, rand.Reader, external.SystemClock{})

			out, err := clientNoise.WriteHandshakeMessage(nil)
			require.NoError(t, err)
			wire, err := clientAdapter.EmitFrame(psf.RoleClient, out)
			require.NoError(t, err)
			_, err = clientConn.Write(wire)
			require.NoError(t, err)

			reply, err := readPSFMessage(clientConn, clientAdapter.State, psf.RoleServer)
			require.NoError(t, err)
			inner, err := clientAdapter.AbsorbFrame(psf.RoleServer, reply)
			require.NoError(t, err)
			_, err = clientNoise.ReadHandshakeMessage(inner)
			require.NoError(t, err)

			require.Equal(t, noisepsf.Transport, clientNoise.State())

			plaintext := []byte("GET /forwarded HTTP/1.1")
			ct, err := clientNoise.Seal(plaintext)
			require.NoError(t, err)
			wire, err = clientAdapter.EmitFrame(psf.RoleClient, ct)
			require.NoError(t, err)
			_, err = clientConn.Write(wire)
			require.NoError(t, err)

			got := make([]byte, len(plaintext))
			require.NoError(t, targetClient.SetReadDeadline(time.Now().Add(5*time.Second)))
			_, err = io.ReadFull(targetClient, got)
			require.NoError(t, err)
			assert.Equal(t, plaintext, got)

			response := []byte("HTTP/1.1 200 OK")
			_, err = targetClient.Write(response)
			require.NoError(t, err)

			wire, err = readPSFMessage(clientConn, clientAdapter.State, psf.RoleServer)
			require.NoError(t, err)
			inner, err = clientAdapter.AbsorbFrame(psf.RoleServer, wire)
			require.NoError(t, err)
			pt, err := clientNoise.Open(inner)
			require.NoError(t, err)
			assert.Equal(t, response, pt)
		})
	}
}
