package endpoint

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/miekg/dns"
	"golang.org/x/sync/errgroup"

	"github.com/0xinf0/nooshdaroo-sub001/config"
	"github.com/0xinf0/nooshdaroo-sub001/external"
	"github.com/0xinf0/nooshdaroo-sub001/frame"
	"github.com/0xinf0/nooshdaroo-sub001/internal/buf"
	"github.com/0xinf0/nooshdaroo-sub001/internal/coreerr"
	"github.com/0xinf0/nooshdaroo-sub001/internal/corelog"
	"github.com/0xinf0/nooshdaroo-sub001/noisepsf"
	"github.com/0xinf0/nooshdaroo-sub001/psf"
	"github.com/0xinf0/nooshdaroo-sub001/psf/interp"
	"github.com/0xinf0/nooshdaroo-sub001/strategy"
)

// ProtocolSource is the subset of the Protocol Library the Endpoint needs
// (spec §4.3): resolving a protocol_id to its AST.
type ProtocolSource interface {
	Get(id string) (*psf.Protocol, error)
}

// Endpoint is the Dual-Carrier Endpoint (C6): it binds a stream listener
// and/or a datagram socket on one address, runs the Noise handshake
// through the Frame Adapter for every inbound connection/session, and
// forwards decrypted bytes to an external.TargetDialer (spec §4.6).
type Endpoint struct {
	cfg     config.EndpointConfig
	lib     ProtocolSource
	proto   *psf.Protocol
	dialer  external.TargetDialer
	clock   external.Clock
	rng     external.EntropySource
	secrets *noisepsf.SecretStore
	replay  *noisepsf.ReplayGuard
	ceiling *buf.Ceiling
	strat   *strategy.Strategy

	sessions *SessionManager

	// addrHints maps a UDP client address to the last session_id observed
	// from it. Never used as a key (spec §4.7 invariant) — only to pick
	// which format/session to try first when a generic (non-DNS) PSF
	// embeds the session_id inside its PAYLOAD region, which cannot be
	// located without already knowing the phase (see DESIGN.md).
	addrHintsMu sync.Mutex
	addrHints   map[string]SessionID
}

// NewEndpoint constructs an Endpoint for cfg, resolving its configured
// protocol from lib.
func NewEndpoint(cfg config.EndpointConfig, lib ProtocolSource, dialer external.TargetDialer, clock external.Clock, rng external.EntropySource, secrets *noisepsf.SecretStore, strat *strategy.Strategy) (*Endpoint, error) {
	if err := cfg.Validate(libAdapter{lib}); err != nil {
		return nil, err
	}
	proto, err := lib.Get(cfg.Protocol)
	if err != nil {
		return nil, err
	}
	e := &Endpoint{
		cfg:       cfg,
		lib:       lib,
		proto:     proto,
		dialer:    dialer,
		clock:     clock,
		rng:       rng,
		secrets:   secrets,
		replay:    noisepsf.NewReplayGuard(4096),
		ceiling:   buf.NewCeiling(cfg.BufferCeilingBytes),
		strat:     strat,
		addrHints: map[string]SessionID{},
	}
	e.sessions = NewSessionManager(cfg.IdleTimeout, cfg.SweepInterval, nil)
	return e, nil
}

type libAdapter struct{ lib ProtocolSource }

func (a libAdapter) Get(id string) (any, error) { return a.lib.Get(id) }

// ListenAndServe binds the carrier(s) configured in cfg.Carrier on
// address and runs their accept/receive loops until ctx is cancelled.
func (e *Endpoint) ListenAndServe(ctx context.Context, address string) error {
	if err := e.sessions.Start(); err != nil {
		return err
	}
	defer e.sessions.Close()

	lc := net.ListenConfig{Control: reusePortControl}
	g, gctx := errgroup.WithContext(ctx)

	if e.cfg.Carrier == config.CarrierTCP || e.cfg.Carrier == config.CarrierBoth {
		ln, err := lc.Listen(ctx, "tcp", address)
		if err != nil {
			return coreerr.New("endpoint: bind tcp ", address).Base(err).WithKind(coreerr.Unclassified)
		}
		g.Go(func() error { return e.serveStream(gctx, ln) })
		g.Go(func() error { <-gctx.Done(); return ln.Close() })
	}
	if e.cfg.Carrier == config.CarrierUDP || e.cfg.Carrier == config.CarrierBoth {
		pc, err := lc.ListenPacket(ctx, "udp", address)
		if err != nil {
			return coreerr.New("endpoint: bind udp ", address).Base(err).WithKind(coreerr.Unclassified)
		}
		g.Go(func() error { return e.serveDatagram(gctx, pc) })
		g.Go(func() error { <-gctx.Done(); return pc.Close() })
	}

	return g.Wait()
}

// --- stream carrier ---

func (e *Endpoint) serveStream(ctx context.Context, ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return coreerr.New("endpoint: accept").Base(err).WithKind(coreerr.Unclassified)
		}
		go e.handleStreamConn(ctx, conn)
	}
}

func (e *Endpoint) handleStreamConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	const reserved = 2 * buf.Size
	if err := e.ceiling.Reserve(reserved); err != nil {
		corelog.Record(&corelog.GeneralMessage{Severity: corelog.SeverityWarning, Content: err})
		return
	}
	defer e.ceiling.Release(reserved)

	adapter := frame.NewAdapter(e.proto, frame.Stream, e.rng, e.clock)
	noiseSess, err := e.newServerNoiseSession()
	if err != nil {
		corelog.Record(&corelog.GeneralMessage{Severity: corelog.SeverityError, Content: coreerr.New("endpoint: noise init").Base(err)})
		return
	}

	hctx, cancel := context.WithTimeout(ctx, e.cfg.HandshakeTimeout)
	defer cancel()
	if err := e.runServerHandshake(hctx, conn, adapter, noiseSess); err != nil {
		corelog.Record(&corelog.GeneralMessage{Severity: corelog.SeverityWarning, Content: coreerr.New("endpoint: handshake failed").Base(err)})
		if e.strat != nil {
			e.strat.Report(e.proto.ID, strategy.Fail)
		}
		return
	}
	if e.strat != nil {
		e.strat.Report(e.proto.ID, strategy.Ok)
	}
	defer noiseSess.Terminate()

	e.copyLoop(ctx, conn, adapter, noiseSess)
}

// runServerHandshake drives the responder side of the pattern's message
// exchange (spec §4.4 message counts): odd messages are the
// initiator/client's, even messages the responder/server's.
func (e *Endpoint) runServerHandshake(ctx context.Context, conn net.Conn, adapter *frame.Adapter, noiseSess *noisepsf.Session) error {
	count := patternFor(e.cfg.Pattern).MessageCount()
	for i := 1; i <= count; i++ {
		if ctx.Err() != nil {
			return coreerr.New("endpoint: handshake timeout").WithKind(coreerr.HandshakeTimeout)
		}
		if i%2 == 1 {
			wire, err := readPSFMessage(conn, adapter.State, psf.RoleClient)
			if err != nil {
				return err
			}
			inner, err := adapter.AbsorbFrame(psf.RoleClient, wire)
			if err != nil {
				return coreerr.New("endpoint: absorb handshake message").Base(err).WithKind(coreerr.PsfMatchError)
			}
			if e.replay.Seen(inner) {
				return coreerr.New("endpoint: replayed handshake message").WithKind(coreerr.HandshakeMismatch)
			}
			if _, err := noiseSess.ReadHandshakeMessage(inner); err != nil {
				return err
			}
		} else {
			out, err := noiseSess.WriteHandshakeMessage(nil)
			if err != nil {
				return err
			}
			wire, err := adapter.EmitFrame(psf.RoleServer, out)
			if err != nil {
				return err
			}
			if _, err := conn.Write(wire); err != nil {
				return coreerr.New("endpoint: write handshake message").Base(err).WithKind(coreerr.HandshakeMismatch)
			}
		}
	}
	return nil
}

func (e *Endpoint) copyLoop(ctx context.Context, conn net.Conn, adapter *frame.Adapter, noiseSess *noisepsf.Session) {
	target, err := e.dialer.Dial(ctx, "", 0, false)
	if err != nil {
		corelog.Record(&corelog.GeneralMessage{Severity: corelog.SeverityError, Content: coreerr.New("endpoint: dial target").Base(err)})
		return
	}
	defer target.Close()

	errCh := make(chan error, 2)
	go func() {
		for {
			wire, err := readPSFMessage(conn, adapter.State, psf.RoleClient)
			if err != nil {
				errCh <- err
				return
			}
			ct, err := adapter.AbsorbFrame(psf.RoleClient, wire)
			if err != nil {
				errCh <- coreerr.New("endpoint: absorb frame").Base(err).WithKind(coreerr.PsfMatchError)
				return
			}
			pt, err := noiseSess.Open(ct)
			if err != nil {
				errCh <- err
				return
			}
			if _, err := target.Write(pt); err != nil {
				errCh <- err
				return
			}
		}
	}()
	go func() {
		rbuf := make([]byte, noisepsf.MaxPlaintext)
		for {
			n, err := target.Read(rbuf)
			if n > 0 {
				ct, err := noiseSess.Seal(rbuf[:n])
				if err != nil {
					errCh <- err
					return
				}
				wire, err := adapter.EmitFrame(psf.RoleServer, ct)
				if err != nil {
					errCh <- err
					return
				}
				if _, err := conn.Write(wire); err != nil {
					errCh <- err
					return
				}
			}
			if err != nil {
				errCh <- err
				return
			}
		}
	}()

	<-errCh
}

// --- datagram carrier ---

func (e *Endpoint) serveDatagram(ctx context.Context, pc net.PacketConn) error {
	buf := make([]byte, e.cfg.MaxDatagramSize)
	for {
		n, addr, err := pc.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return coreerr.New("endpoint: datagram read").Base(err).WithKind(coreerr.Unclassified)
		}
		datagram := append([]byte(nil), buf[:n]...)
		go e.handleDatagram(ctx, pc, addr, datagram)
	}
}

func (e *Endpoint) handleDatagram(ctx context.Context, pc net.PacketConn, addr net.Addr, datagram []byte) {
	sessionID, ok := e.extractSessionID(addr, datagram)
	if !ok {
		corelog.Record(&corelog.GeneralMessage{Severity: corelog.SeverityWarning, Content: coreerr.New("endpoint: could not determine session_id").WithKind(coreerr.PsfMatchError)})
		return
	}

	sess := e.sessions.GetOrCreate(sessionID, addr, func() (*noisepsf.Session, *frame.Adapter) {
		ns, _ := e.newServerNoiseSession()
		return ns, frame.NewAdapter(e.proto, frame.Datagram, e.rng, e.clock)
	})
	sess.Touch()
	e.rememberHint(addr, sessionID)

	inner, err := sess.Adapter.AbsorbFrame(psf.RoleClient, datagram)
	if err != nil {
		e.sessions.Destroy(sessionID)
		corelog.Record(&corelog.GeneralMessage{Severity: corelog.SeverityWarning, Content: coreerr.New("endpoint: absorb datagram").Base(err).WithKind(coreerr.PsfMatchError)})
		return
	}

	if sess.Noise.State() != noisepsf.Transport {
		if e.replay.Seen(inner) {
			e.sessions.Destroy(sessionID)
			return
		}
		if _, err := sess.Noise.ReadHandshakeMessage(inner); err != nil {
			e.sessions.Destroy(sessionID)
			return
		}
		if sess.Noise.State() != noisepsf.Transport {
			out, err := sess.Noise.WriteHandshakeMessage(nil)
			if err != nil {
				e.sessions.Destroy(sessionID)
				return
			}
			wire, err := sess.Adapter.EmitFrame(psf.RoleServer, out)
			if err != nil {
				return
			}
			pc.WriteTo(wire, addr)
		}
		return
	}

	pt, err := sess.Noise.Open(inner)
	if err != nil {
		e.sessions.Destroy(sessionID)
		return
	}

	target, err := e.dialer.Dial(ctx, "", 0, true)
	if err != nil {
		return
	}
	defer target.Close()
	if _, err := target.Write(pt); err != nil {
		return
	}
	reply := make([]byte, e.cfg.MaxDatagramSize)
	target.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := target.Read(reply)
	if err != nil {
		return
	}
	ct, err := sess.Noise.Seal(reply[:n])
	if err != nil {
		return
	}
	wire, err := sess.Adapter.EmitFrame(psf.RoleServer, ct)
	if err != nil {
		if coreerr.Is(err, coreerr.PayloadTooLarge) {
			sess.Enqueue(wire)
		}
		return
	}
	pc.WriteTo(wire, addr)
}

// extractSessionID implements spec §4.6's two session_id mechanisms.
func (e *Endpoint) extractSessionID(addr net.Addr, datagram []byte) (SessionID, bool) {
	if isDNSProtocol(e.proto.ID) {
		if len(datagram) < 2 {
			return 0, false
		}
		if !validDNSMessage(datagram) {
			return 0, false
		}
		return SessionID(binary.BigEndian.Uint16(datagram[:2])), true
	}

	// Generic PSFs: the session_id is the first two bytes of the PAYLOAD
	// region (spec §4.6 option a). Locating PAYLOAD requires knowing the
	// phase, which requires knowing the session — resolved with an
	// address-keyed hint (diagnostics only, never an authoritative key:
	// spec §4.7) that picks which state to try first, falling back to a
	// fresh HANDSHAKE-start parse for genuinely new sessions.
	if hint, ok := e.hintFor(addr); ok {
		if sess, ok := e.sessions.Lookup(hint); ok {
			if payload, err := sess.Adapter.AbsorbFrame(psf.RoleClient, datagram); err == nil && len(payload) >= 2 {
				return SessionID(binary.BigEndian.Uint16(payload[:2])), true
			}
		}
	}

	scratch := frame.NewAdapter(e.proto, frame.Datagram, e.rng, e.clock)
	payload, err := scratch.AbsorbFrame(psf.RoleClient, datagram)
	if err != nil || len(payload) < 2 {
		return 0, false
	}
	return SessionID(binary.BigEndian.Uint16(payload[:2])), true
}

func (e *Endpoint) hintFor(addr net.Addr) (SessionID, bool) {
	e.addrHintsMu.Lock()
	defer e.addrHintsMu.Unlock()
	id, ok := e.addrHints[addr.String()]
	return id, ok
}

func (e *Endpoint) rememberHint(addr net.Addr, id SessionID) {
	e.addrHintsMu.Lock()
	defer e.addrHintsMu.Unlock()
	e.addrHints[addr.String()] = id
}

func isDNSProtocol(id string) bool {
	return strings.Contains(strings.ToLower(id), "dns")
}

// validDNSMessage implements the spec's recommended Open-Question policy:
// reject datagrams whose bytes don't parse as a structurally valid DNS
// message (spec §9 "recommended policy is to reject, treating it as
// PsfMatchError").
func validDNSMessage(datagram []byte) bool {
	msg := new(dns.Msg)
	return msg.Unpack(datagram) == nil
}

func (e *Endpoint) newServerNoiseSession() (*noisepsf.Session, error) {
	priv, pub, err := e.secrets.StaticKeypair()
	if err != nil {
		return nil, err
	}
	return noisepsf.NewSession(noisepsf.Config{
		Pattern:    patternFor(e.cfg.Pattern),
		Initiator:  false,
		StaticPriv: priv,
		StaticPub:  pub,
		RNG:        e.rng,
	})
}

func patternFor(p config.Pattern) noisepsf.Pattern {
	switch p {
	case config.PatternXX:
		return noisepsf.PatternXX
	case config.PatternKK:
		return noisepsf.PatternKK
	default:
		return noisepsf.PatternNK
	}
}

// readPSFMessage reads exactly one wire message for the format currently
// due for role from conn: the fixed-width prefix up to and including the
// LENGTH field that targets PAYLOAD, then the payload, then any
// fixed-width fields declared after PAYLOAD (e.g. SSHPacket's trailing
// padding). Stream carriers therefore require a self-describing format
// (spec §4.5 item 2); see frame.selfDescribing.
func readPSFMessage(conn io.Reader, state *interp.State, role psf.RoleKind) ([]byte, error) {
	f, _, err := state.CurrentFormat(role)
	if err != nil {
		return nil, err
	}
	prefixLen, lenOffset, lenWidth, suffixLen, ok := prefixLayout(f)
	if !ok {
		return nil, coreerr.New("endpoint: format ", f.Name, " has no LENGTH-qualified PAYLOAD; unusable on a stream carrier").WithKind(coreerr.PsfMatchError)
	}

	prefix := make([]byte, prefixLen)
	if _, err := io.ReadFull(conn, prefix); err != nil {
		return nil, coreerr.New("endpoint: read frame prefix").Base(err).WithKind(coreerr.Unclassified)
	}
	payloadLen := beUint(prefix[lenOffset : lenOffset+lenWidth])
	rest := make([]byte, payloadLen+suffixLen)
	if len(rest) > 0 {
		if _, err := io.ReadFull(conn, rest); err != nil {
			return nil, coreerr.New("endpoint: read frame payload").Base(err).WithKind(coreerr.Unclassified)
		}
	}
	return append(prefix, rest...), nil
}

// prefixLayout computes, for format f, the byte length of everything
// before its PAYLOAD field, the offset/width of the LENGTH field that
// targets PAYLOAD, and the byte length of everything declared after
// PAYLOAD (e.g. SSHPacket's trailing padding field), if a LENGTH-qualified
// PAYLOAD exists.
func prefixLayout(f *psf.Format) (prefixLen, lenOffset, lenWidth, suffixLen int, ok bool) {
	pf := f.PayloadField()
	if pf == nil {
		return 0, 0, 0, 0, false
	}
	offset := 0
	pastPayload := false
	for _, fld := range f.Fields {
		if fld.Name == pf.Name {
			pastPayload = true
			continue
		}
		w := fld.Width
		if w == 0 && fld.HasLiteral {
			w = len(fld.Literal)
		}
		if pastPayload {
			suffixLen += w
			continue
		}
		if fld.Semantic == psf.SemanticLength && fld.LengthTarget == pf.Name {
			lenOffset, lenWidth, ok = offset, w, true
		}
		offset += w
	}
	return offset, lenOffset, lenWidth, suffixLen, ok
}

func beUint(b []byte) int {
	var v int
	for _, c := range b {
		v = v<<8 | int(c)
	}
	return v
}
