// Command tunneld is a minimal embedding of the tunnel core: it loads an
// endpoint configuration, the built-in protocol library, a file-backed
// keystore, and runs ListenAndServe. Everything this binary does beyond
// that wiring — SOCKS5/HTTP command parsing, log sink selection, richer
// config formats — belongs to a real embedding application, not the core.
package main

import (
	"context"
	"crypto/rand"
	"flag"
	"io/fs"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/0xinf0/nooshdaroo-sub001/config"
	"github.com/0xinf0/nooshdaroo-sub001/endpoint"
	"github.com/0xinf0/nooshdaroo-sub001/external"
	"github.com/0xinf0/nooshdaroo-sub001/internal/coreerr"
	"github.com/0xinf0/nooshdaroo-sub001/internal/corelog"
	"github.com/0xinf0/nooshdaroo-sub001/noisepsf"
	"github.com/0xinf0/nooshdaroo-sub001/psf/builtin"
	"github.com/0xinf0/nooshdaroo-sub001/psf/library"
	"github.com/0xinf0/nooshdaroo-sub001/strategy"
)

func main() {
	addr := flag.String("listen", "127.0.0.1:8443", "address to bind")
	configPath := flag.String("config", "", "path to a TOML endpoint config (defaults applied if empty)")
	keyPath := flag.String("keyfile", "tunneld.key", "path to a 32-byte X25519 static private key, created if absent")
	flag.Parse()

	corelog.RegisterHandler(corelog.NewWriterHandler(os.Stderr))

	cfg := config.DefaultEndpointConfig()
	if *configPath != "" {
		loaded, err := config.LoadFile(*configPath)
		if err != nil {
			fatal(err)
		}
		cfg = loaded
	}

	protoFS, err := fs.Sub(builtin.Protocols, "protocols")
	if err != nil {
		fatal(err)
	}
	lib, parseErrs := library.Load(protoFS)
	for _, e := range parseErrs {
		corelog.Record(&corelog.GeneralMessage{Severity: corelog.SeverityWarning, Content: e})
	}
	if lib.Len() == 0 {
		fatal(coreerr.New("tunneld: no protocols loaded"))
	}

	ks, err := newFileKeystore(*keyPath)
	if err != nil {
		fatal(err)
	}
	secrets := noisepsf.NewSecretStore(ks)

	var strat *strategy.Strategy
	switch cfg.Strategy.Kind {
	case config.StrategyRandom:
		strat, err = strategy.NewRandom(cfg.Strategy.Pool, cfg.Strategy.Ratios, nil)
	case config.StrategyVolumeAdaptive:
		strat = strategy.NewVolumeAdaptive(cfg.Strategy.RotateEveryNBytes, cfg.Strategy.Pool)
	case config.StrategyAdaptiveLearning:
		strat = strategy.NewAdaptiveLearning(cfg.Strategy.Pool)
	case config.StrategyTemporal:
		strat = strategy.NewTemporal(cfg.Strategy.Schedule, strategy.FromWallClock(external.SystemClock{}))
	default:
		strat = strategy.NewFixed(cfg.Strategy.FixedProtocol)
	}
	if err != nil {
		fatal(err)
	}

	ep, err := endpoint.NewEndpoint(cfg, lib, directDialer{}, external.SystemClock{}, rand.Reader, secrets, strat)
	if err != nil {
		fatal(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	corelog.Record(&corelog.GeneralMessage{Severity: corelog.SeverityInfo, Content: "tunneld listening on " + *addr})
	if err := ep.ListenAndServe(ctx, *addr); err != nil && ctx.Err() == nil {
		fatal(err)
	}
}

func fatal(err error) {
	corelog.Record(&corelog.GeneralMessage{Severity: corelog.SeverityError, Content: err})
	os.Exit(1)
}

// directDialer is the simplest possible external.TargetDialer: it dials
// whatever host:port it's given directly, with no SOCKS/HTTP CONNECT
// negotiation (that negotiation is explicitly out of this module's scope;
// a real embedding replaces this with one that parses the client's
// requested destination from the decrypted stream).
type directDialer struct{}

func (directDialer) Dial(ctx context.Context, host string, port uint16, isUDP bool) (net.Conn, error) {
	network := "tcp"
	if isUDP {
		network = "udp"
	}
	var d net.Dialer
	return d.DialContext(ctx, network, net.JoinHostPort(host, strconv.Itoa(int(port))))
}
