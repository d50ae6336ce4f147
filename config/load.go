package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml"

	"github.com/0xinf0/nooshdaroo-sub001/internal/coreerr"
)

// fileConfig mirrors EndpointConfig's shape with primitive field types
// TOML can decode directly (durations and the carrier/pattern/strategy
// enums are strings on the wire, converted after decode).
type fileConfig struct {
	Carrier                string            `toml:"carrier"`
	Pattern                string            `toml:"pattern"`
	Protocol               string            `toml:"protocol"`
	MaxDatagramSize        int               `toml:"max_datagram_size"`
	IdleTimeoutSeconds      int64            `toml:"idle_timeout_seconds"`
	HandshakeTimeoutSeconds int64            `toml:"handshake_timeout_seconds"`
	PathTestTimeoutSeconds  int64            `toml:"path_test_timeout_seconds"`
	OutboundConnectSeconds  int64            `toml:"outbound_connect_timeout_seconds"`
	SweepIntervalSeconds    int64            `toml:"sweep_interval_seconds"`
	OutboundQueueDepth      int              `toml:"outbound_queue_depth"`
	BufferCeilingBytes      int64            `toml:"buffer_ceiling_bytes"`

	Strategy struct {
		Kind              string            `toml:"kind"`
		FixedProtocol     string            `toml:"fixed_protocol"`
		Pool              []string          `toml:"pool"`
		Ratios            []float64         `toml:"ratios"`
		Schedule          map[string]string `toml:"schedule"`
		RotateEveryNBytes uint64            `toml:"rotate_every_n_bytes"`
	} `toml:"strategy"`
}

// LoadFile reads a TOML endpoint configuration from path, overlaying it
// onto DefaultEndpointConfig() (spec §6 "Endpoint configuration" — every
// field optional, defaulting per §5). Grounded on Xray-core's TOML-backed
// configuration loading (github.com/pelletier/go-toml), the pack's only
// example of a config library this core can reuse as-is: flag/env parsing
// and hierarchical JSON merging are the embedding application's job (spec
// §1 Non-goals), but reading one declarative file into this struct is
// squarely this package's concern.
func LoadFile(path string) (EndpointConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return EndpointConfig{}, coreerr.New("config: read ", path).Base(err).WithKind(coreerr.Unclassified)
	}

	var fc fileConfig
	if err := toml.Unmarshal(raw, &fc); err != nil {
		return EndpointConfig{}, coreerr.New("config: parse ", path).Base(err).WithKind(coreerr.Unclassified)
	}

	cfg := DefaultEndpointConfig()
	if fc.Carrier != "" {
		cfg.Carrier = Carrier(fc.Carrier)
	}
	if fc.Pattern != "" {
		cfg.Pattern = Pattern(fc.Pattern)
	}
	if fc.Protocol != "" {
		cfg.Protocol = fc.Protocol
	}
	if fc.MaxDatagramSize != 0 {
		cfg.MaxDatagramSize = fc.MaxDatagramSize
	}
	if fc.IdleTimeoutSeconds != 0 {
		cfg.IdleTimeout = secondsToDuration(fc.IdleTimeoutSeconds)
	}
	if fc.HandshakeTimeoutSeconds != 0 {
		cfg.HandshakeTimeout = secondsToDuration(fc.HandshakeTimeoutSeconds)
	}
	if fc.PathTestTimeoutSeconds != 0 {
		cfg.PathTestTimeout = secondsToDuration(fc.PathTestTimeoutSeconds)
	}
	if fc.OutboundConnectSeconds != 0 {
		cfg.OutboundConnectTimeout = secondsToDuration(fc.OutboundConnectSeconds)
	}
	if fc.SweepIntervalSeconds != 0 {
		cfg.SweepInterval = secondsToDuration(fc.SweepIntervalSeconds)
	}
	if fc.OutboundQueueDepth != 0 {
		cfg.OutboundQueueDepth = fc.OutboundQueueDepth
	}
	if fc.BufferCeilingBytes != 0 {
		cfg.BufferCeilingBytes = fc.BufferCeilingBytes
	}

	if fc.Strategy.Kind != "" {
		cfg.Strategy = StrategyParams{
			Kind:              StrategyKind(fc.Strategy.Kind),
			FixedProtocol:     fc.Strategy.FixedProtocol,
			Pool:              fc.Strategy.Pool,
			Ratios:            fc.Strategy.Ratios,
			RotateEveryNBytes: fc.Strategy.RotateEveryNBytes,
		}
		if len(fc.Strategy.Schedule) > 0 {
			cfg.Strategy.Schedule = make(map[int]string, len(fc.Strategy.Schedule))
			for hourStr, proto := range fc.Strategy.Schedule {
				hour, err := parseHour(hourStr)
				if err != nil {
					return EndpointConfig{}, coreerr.New("config: schedule key ", hourStr).Base(err).WithKind(coreerr.Unclassified)
				}
				cfg.Strategy.Schedule[hour] = proto
			}
		}
	}

	return cfg, nil
}

func secondsToDuration(s int64) (d time.Duration) {
	return time.Duration(s) * time.Second
}

func parseHour(s string) (int, error) {
	var hour int
	_, err := fmt.Sscanf(s, "%d", &hour)
	if err != nil {
		return 0, err
	}
	if hour < 0 || hour > 23 {
		return 0, coreerr.New("config: hour out of range: ", s).WithKind(coreerr.Unclassified)
	}
	return hour, nil
}
