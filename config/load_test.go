package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xinf0/nooshdaroo-sub001/config"
)

const sampleTOML = `
carrier = "both"
pattern = "xx"
protocol = "dns_google_com"
max_datagram_size = 900
idle_timeout_seconds = 120

[strategy]
kind = "temporal"
[strategy.schedule]
9 = "https_google_com"
22 = "dns_google_com"
`

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "endpoint.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFileOverlaysOntoDefaults(t *testing.T) {
	path := writeTemp(t, sampleTOML)
	cfg, err := config.LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, config.CarrierBoth, cfg.Carrier)
	assert.Equal(t, config.PatternXX, cfg.Pattern)
	assert.Equal(t, "dns_google_com", cfg.Protocol)
	assert.Equal(t, 900, cfg.MaxDatagramSize)
	assert.Equal(t, 120*time.Second, cfg.IdleTimeout)

	// Fields the TOML doesn't set fall back to DefaultEndpointConfig's values.
	def := config.DefaultEndpointConfig()
	assert.Equal(t, def.HandshakeTimeout, cfg.HandshakeTimeout)
	assert.Equal(t, def.BufferCeilingBytes, cfg.BufferCeilingBytes)

	assert.Equal(t, config.StrategyTemporal, cfg.Strategy.Kind)
	require.Len(t, cfg.Strategy.Schedule, 2)
	assert.Equal(t, "https_google_com", cfg.Strategy.Schedule[9])
	assert.Equal(t, "dns_google_com", cfg.Strategy.Schedule[22])
}

func TestLoadFileRejectsMissingFile(t *testing.T) {
	_, err := config.LoadFile(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}

func TestLoadFileRejectsOutOfRangeScheduleHour(t *testing.T) {
	path := writeTemp(t, `
[strategy]
kind = "temporal"
[strategy.schedule]
99 = "https_google_com"
`)
	_, err := config.LoadFile(path)
	require.Error(t, err)
}
