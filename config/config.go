// Package config defines the shape and validation of endpoint
// configuration (spec §6 "Endpoint configuration"): the struct, its
// defaults and its Validate rule, plus LoadFile (load.go), which reads the
// same options from a TOML file. Flag parsing is not done here.
package config

import (
	"time"

	"github.com/0xinf0/nooshdaroo-sub001/internal/coreerr"
)

// Carrier selects which transport(s) the endpoint binds (spec §6).
type Carrier string

const (
	CarrierTCP  Carrier = "tcp"
	CarrierUDP  Carrier = "udp"
	CarrierBoth Carrier = "both"
)

// Pattern selects the Noise handshake recipe (spec §6).
type Pattern string

const (
	PatternNK Pattern = "nk"
	PatternXX Pattern = "xx"
	PatternKK Pattern = "kk"
)

// StrategyKind selects the shape-shift strategy variant (spec §4.8, §6).
type StrategyKind string

const (
	StrategyFixed           StrategyKind = "fixed"
	StrategyRandom          StrategyKind = "random"
	StrategyTemporal        StrategyKind = "temporal"
	StrategyVolumeAdaptive  StrategyKind = "volume_adaptive"
	StrategyAdaptiveLearning StrategyKind = "adaptive_learning"
)

// StrategyParams carries every variant's parameters; only the fields
// relevant to Kind are consulted (spec §4.8).
type StrategyParams struct {
	Kind StrategyKind

	// Fixed
	FixedProtocol string

	// Random
	Pool   []string
	Ratios []float64

	// Temporal: hour-of-day (0-23) -> protocol_id
	Schedule map[int]string

	// VolumeAdaptive
	RotateEveryNBytes uint64

	// AdaptiveLearning
	Alpha       float64
	Temperature float64
	Decay       float64
}

// EndpointConfig is the enumerated option set of spec §6.
type EndpointConfig struct {
	Carrier               Carrier
	Pattern               Pattern
	Protocol              string
	Strategy              StrategyParams
	MaxDatagramSize       int
	IdleTimeout           time.Duration
	HandshakeTimeout      time.Duration
	PathTestTimeout       time.Duration
	OutboundConnectTimeout time.Duration
	SweepInterval         time.Duration
	OutboundQueueDepth    int
	BufferCeilingBytes    int64
}

// DefaultEndpointConfig returns the documented defaults (spec §5, §6).
func DefaultEndpointConfig() EndpointConfig {
	return EndpointConfig{
		Carrier:                CarrierTCP,
		Pattern:                PatternNK,
		Protocol:               "https",
		Strategy:               StrategyParams{Kind: StrategyFixed, FixedProtocol: "https"},
		MaxDatagramSize:        1232,
		IdleTimeout:            60 * time.Second,
		HandshakeTimeout:       5 * time.Second,
		PathTestTimeout:        2 * time.Second,
		OutboundConnectTimeout: 8 * time.Second,
		SweepInterval:          30 * time.Second,
		OutboundQueueDepth:     64,
		BufferCeilingBytes:     1 << 30,
	}
}

// ProtocolChecker is satisfied by the Protocol Library; Validate uses it
// to confirm the configured protocol(s) actually exist, surfacing
// UnknownProtocol at config time (spec §4.10 "UnknownProtocol | C3 |
// surface at config validation").
type ProtocolChecker interface {
	Get(id string) (any, error)
}

// Validate checks internal consistency and, if lib is non-nil, that every
// protocol_id the configuration references is loaded.
func (c EndpointConfig) Validate(lib ProtocolChecker) error {
	switch c.Carrier {
	case CarrierTCP, CarrierUDP, CarrierBoth:
	default:
		return coreerr.New("config: invalid carrier ", string(c.Carrier)).WithKind(coreerr.UnknownProtocol)
	}
	switch c.Pattern {
	case PatternNK, PatternXX, PatternKK:
	default:
		return coreerr.New("config: invalid pattern ", string(c.Pattern)).WithKind(coreerr.UnknownProtocol)
	}
	if c.MaxDatagramSize <= 0 {
		return coreerr.New("config: max_datagram_size must be positive").WithKind(coreerr.UnknownProtocol)
	}
	if c.IdleTimeout <= 0 || c.HandshakeTimeout <= 0 {
		return coreerr.New("config: timeouts must be positive").WithKind(coreerr.UnknownProtocol)
	}

	protocols := c.referencedProtocols()
	if lib != nil {
		for _, id := range protocols {
			if _, err := lib.Get(id); err != nil {
				return coreerr.New("config: unknown protocol ", id).Base(err).WithKind(coreerr.UnknownProtocol)
			}
		}
	}

	switch c.Strategy.Kind {
	case StrategyFixed:
		if c.Strategy.FixedProtocol == "" {
			return coreerr.New("config: fixed strategy requires a protocol").WithKind(coreerr.UnknownProtocol)
		}
	case StrategyRandom:
		if len(c.Strategy.Pool) == 0 || len(c.Strategy.Pool) != len(c.Strategy.Ratios) {
			return coreerr.New("config: random strategy requires matching pool/ratios").WithKind(coreerr.UnknownProtocol)
		}
	case StrategyTemporal:
		if len(c.Strategy.Schedule) == 0 {
			return coreerr.New("config: temporal strategy requires a schedule").WithKind(coreerr.UnknownProtocol)
		}
	case StrategyVolumeAdaptive:
		if c.Strategy.RotateEveryNBytes == 0 || len(c.Strategy.Pool) == 0 {
			return coreerr.New("config: volume_adaptive strategy requires rotate_every_n_bytes and a pool").WithKind(coreerr.UnknownProtocol)
		}
	case StrategyAdaptiveLearning:
		if len(c.Strategy.Pool) == 0 {
			return coreerr.New("config: adaptive_learning strategy requires a pool").WithKind(coreerr.UnknownProtocol)
		}
	default:
		return coreerr.New("config: invalid strategy ", string(c.Strategy.Kind)).WithKind(coreerr.UnknownProtocol)
	}

	return nil
}

// referencedProtocols collects every protocol_id this configuration
// mentions, across the base protocol and every strategy variant's pool.
func (c EndpointConfig) referencedProtocols() []string {
	set := map[string]struct{}{c.Protocol: {}}
	if c.Strategy.FixedProtocol != "" {
		set[c.Strategy.FixedProtocol] = struct{}{}
	}
	for _, p := range c.Strategy.Pool {
		set[p] = struct{}{}
	}
	for _, p := range c.Strategy.Schedule {
		set[p] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}
