package strategy_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xinf0/nooshdaroo-sub001/internal/dice"
	"github.com/0xinf0/nooshdaroo-sub001/strategy"
)

// TestFixedAlwaysSelectsItsProtocol covers P7 (determinism) for the
// simplest variant.
func TestFixedAlwaysSelectsItsProtocol(t *testing.T) {
	s := strategy.NewFixed("https_google_com")
	for i := 0; i < 5; i++ {
		got, err := s.Select()
		require.NoError(t, err)
		assert.Equal(t, "https_google_com", got)
	}
}

// TestRandomIsReproducibleUnderADeterministicSource covers P7: with a
// seeded dice.DeterministicDice, two independently constructed strategies
// must draw the identical sequence.
func TestRandomIsReproducibleUnderADeterministicSource(t *testing.T) {
	pool := []string{"a", "b", "c"}
	ratios := []float64{1, 1, 1}

	s1, err := strategy.NewRandom(pool, ratios, dice.NewDeterministicDice(42))
	require.NoError(t, err)
	s2, err := strategy.NewRandom(pool, ratios, dice.NewDeterministicDice(42))
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		a, err := s1.Select()
		require.NoError(t, err)
		b, err := s2.Select()
		require.NoError(t, err)
		assert.Equal(t, a, b)
	}
}

func TestRandomRejectsMismatchedPoolAndRatios(t *testing.T) {
	_, err := strategy.NewRandom([]string{"a", "b"}, []float64{1}, nil)
	require.Error(t, err)
}

type fixedHourClock int

func (h fixedHourClock) HourOfDay() int { return int(h) }

func TestTemporalLooksUpScheduleByHour(t *testing.T) {
	schedule := map[int]string{9: "https_google_com", 22: "dns_google_com"}
	s := strategy.NewTemporal(schedule, fixedHourClock(9))
	got, err := s.Select()
	require.NoError(t, err)
	assert.Equal(t, "https_google_com", got)
}

func TestTemporalFallsBackLexicographicallyOnMiss(t *testing.T) {
	schedule := map[int]string{9: "zzz_protocol", 22: "aaa_protocol"}
	s := strategy.NewTemporal(schedule, fixedHourClock(3))
	got, err := s.Select()
	require.NoError(t, err)
	assert.Equal(t, "aaa_protocol", got)
}

// TestVolumeAdaptiveRotatesEveryNBytes covers S5: select() should cycle
// through the pool as ObserveBytes crosses each rotate_every_n_bytes
// boundary.
func TestVolumeAdaptiveRotatesEveryNBytes(t *testing.T) {
	pool := []string{"p0", "p1", "p2"}
	s := strategy.NewVolumeAdaptive(1000, pool)

	got, err := s.Select()
	require.NoError(t, err)
	assert.Equal(t, "p0", got)

	s.ObserveBytes(1000)
	got, err = s.Select()
	require.NoError(t, err)
	assert.Equal(t, "p1", got)

	s.ObserveBytes(1999) // crosses one more boundary (2999 total / 1000 = 2)
	got, err = s.Select()
	require.NoError(t, err)
	assert.Equal(t, "p2", got)
}

// TestAdaptiveLearningFavorsTheMoreSuccessfulProtocol exercises the
// report/select feedback loop of spec §4.8.
func TestAdaptiveLearningFavorsTheMoreSuccessfulProtocol(t *testing.T) {
	pool := []string{"reliable", "flaky"}
	s := strategy.NewAdaptiveLearning(pool)

	for i := 0; i < 20; i++ {
		s.Report("reliable", strategy.Ok)
		s.Report("flaky", strategy.Fail)
	}

	got, err := s.Select()
	require.NoError(t, err)
	assert.Equal(t, "reliable", got)
}
