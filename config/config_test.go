package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xinf0/nooshdaroo-sub001/config"
	"github.com/0xinf0/nooshdaroo-sub001/internal/coreerr"
)

type fakeChecker struct{ known map[string]struct{} }

func (f fakeChecker) Get(id string) (any, error) {
	if _, ok := f.known[id]; !ok {
		return nil, coreerr.New("unknown").WithKind(coreerr.UnknownProtocol)
	}
	return struct{}{}, nil
}

func TestDefaultConfigValidates(t *testing.T) {
	cfg := config.DefaultEndpointConfig()
	lib := fakeChecker{known: map[string]struct{}{"https": {}}}
	require.NoError(t, cfg.Validate(lib))
}

func TestValidateRejectsUnknownCarrier(t *testing.T) {
	cfg := config.DefaultEndpointConfig()
	cfg.Carrier = "carrier_pigeon"
	err := cfg.Validate(nil)
	require.Error(t, err)
}

func TestValidateRejectsUnknownPattern(t *testing.T) {
	cfg := config.DefaultEndpointConfig()
	cfg.Pattern = "yy"
	require.Error(t, cfg.Validate(nil))
}

func TestValidateRejectsNonPositiveMaxDatagramSize(t *testing.T) {
	cfg := config.DefaultEndpointConfig()
	cfg.MaxDatagramSize = 0
	require.Error(t, cfg.Validate(nil))
}

func TestValidateSurfacesUnknownProtocolAgainstLibrary(t *testing.T) {
	cfg := config.DefaultEndpointConfig()
	cfg.Protocol = "not_loaded"
	lib := fakeChecker{known: map[string]struct{}{"https": {}}}
	err := cfg.Validate(lib)
	require.Error(t, err)
	assert.True(t, coreerr.Is(err, coreerr.UnknownProtocol))
}

func TestValidateRandomStrategyRequiresMatchingPoolAndRatios(t *testing.T) {
	cfg := config.DefaultEndpointConfig()
	cfg.Strategy = config.StrategyParams{Kind: config.StrategyRandom, Pool: []string{"a", "b"}, Ratios: []float64{1}}
	require.Error(t, cfg.Validate(nil))
}

func TestValidateVolumeAdaptiveRequiresRotateAndPool(t *testing.T) {
	cfg := config.DefaultEndpointConfig()
	cfg.Strategy = config.StrategyParams{Kind: config.StrategyVolumeAdaptive}
	require.Error(t, cfg.Validate(nil))

	cfg.Strategy.RotateEveryNBytes = 1000
	cfg.Strategy.Pool = []string{"a"}
	require.NoError(t, cfg.Validate(nil))
}

func TestValidateRejectsUnknownStrategyKind(t *testing.T) {
	cfg := config.DefaultEndpointConfig()
	cfg.Strategy = config.StrategyParams{Kind: "nonexistent"}
	require.Error(t, cfg.Validate(nil))
}
