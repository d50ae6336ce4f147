// Package strategy implements the Shape-Shift Strategy (C8): choosing
// which protocol signature to use per connection or time tick, and
// rotating it according to one of five variants (spec §4.8). Grounded on
// the teacher's tagged-sum guidance in spec §9 ("express as a tagged sum
// with a single select(&self, ctx) operation, avoiding inheritance
// hierarchies") — mirrored here as one Strategy struct with a Kind tag and
// variant-specific fields, rather than an interface hierarchy.
package strategy

import (
	"math"
	"sort"
	"sync"

	"github.com/0xinf0/nooshdaroo-sub001/internal/coreerr"
	"github.com/0xinf0/nooshdaroo-sub001/internal/dice"
)

// Kind tags which variant a Strategy implements (spec §4.8).
type Kind int

const (
	Fixed Kind = iota
	Random
	Temporal
	VolumeAdaptive
	AdaptiveLearning
)

// Outcome is reported back to an AdaptiveLearning strategy after a
// connection using protocol p succeeds or fails its handshake (spec
// §4.8 "report(protocol, outcome)").
type Outcome int

const (
	Ok Outcome = iota
	Fail
)

// Clock abstracts wall-clock hour-of-day lookups for Temporal (kept
// separate from external.Clock so this package has no dependency on the
// carrier-facing interfaces).
type Clock interface {
	HourOfDay() int
}

// wallClock is the minimal surface FromWallClock needs from an
// external.Clock without importing that package here.
type wallClock interface {
	WallSeconds() int64
}

type wallClockAdapter struct{ wallClock }

func (a wallClockAdapter) HourOfDay() int {
	return int((a.WallSeconds() / 3600) % 24)
}

// FromWallClock adapts anything with WallSeconds() (e.g. external.Clock)
// into a strategy.Clock for NewTemporal.
func FromWallClock(c wallClock) Clock { return wallClockAdapter{c} }

const (
	adaptiveAlpha       = 0.05
	adaptiveTemperature = 1.0
	adaptiveDecay       = 0.98
)

type counters struct {
	success float64
	failure float64
}

// Strategy is a tagged sum over the five variants of spec §4.8. The zero
// value is not useful; construct with one of the New* functions.
type Strategy struct {
	kind Kind

	// Fixed
	fixedProtocol string

	// Random
	pool   []string
	ratios []float64
	rng    dice.Source

	// Temporal
	schedule map[int]string
	clock    Clock

	// VolumeAdaptive
	rotateEveryN uint64
	vaPool       []string
	byteCounter  uint64

	// AdaptiveLearning
	mu       sync.Mutex
	counters map[string]*counters
}

// NewFixed implements Fixed(p): select() always returns p (spec §4.8, P7).
func NewFixed(protocol string) *Strategy {
	return &Strategy{kind: Fixed, fixedProtocol: protocol}
}

// NewRandom implements Random(pool, ratios): ratios need not already sum
// to 1, select() normalizes at draw time.
func NewRandom(pool []string, ratios []float64, rng dice.Source) (*Strategy, error) {
	if len(pool) == 0 || len(pool) != len(ratios) {
		return nil, coreerr.New("strategy: random requires matching pool/ratios").WithKind(coreerr.Unclassified)
	}
	if rng == nil {
		rng = dice.Default
	}
	return &Strategy{kind: Random, pool: pool, ratios: ratios, rng: rng}, nil
}

// NewTemporal implements Temporal(schedule): select() looks up the
// current hour-of-day (taken modulo 24) in schedule; when that hour has
// no entry it returns the lexicographically smallest protocol_id in the
// schedule (spec §4.8).
func NewTemporal(schedule map[int]string, clock Clock) *Strategy {
	return &Strategy{kind: Temporal, schedule: schedule, clock: clock}
}

// NewVolumeAdaptive implements VolumeAdaptive(n, pool): every n bytes
// observed, cycle to the next pool entry (spec §4.8, S5).
func NewVolumeAdaptive(n uint64, pool []string) *Strategy {
	return &Strategy{kind: VolumeAdaptive, rotateEveryN: n, vaPool: pool}
}

// NewAdaptiveLearning implements AdaptiveLearning over pool, with
// per-protocol success/failure counters starting at zero (spec §4.8).
func NewAdaptiveLearning(pool []string) *Strategy {
	c := make(map[string]*counters, len(pool))
	for _, p := range pool {
		c[p] = &counters{}
	}
	return &Strategy{kind: AdaptiveLearning, pool: pool, counters: c}
}

// Kind reports which variant this Strategy implements.
func (s *Strategy) Kind() Kind { return s.kind }

// Select chooses the protocol_id for the next connection (spec §4.8
// "select() → protocol_id"). Once chosen for a connection, the caller
// must pin it for the connection's lifetime (spec §4.8 "Ordering
// guarantee"); Select itself is stateless per call except for the
// rotation variants' internal counters.
func (s *Strategy) Select() (string, error) {
	switch s.kind {
	case Fixed:
		return s.fixedProtocol, nil

	case Random:
		return s.selectRandom(), nil

	case Temporal:
		return s.selectTemporal(), nil

	case VolumeAdaptive:
		if len(s.vaPool) == 0 {
			return "", coreerr.New("strategy: volume_adaptive has an empty pool").WithKind(coreerr.Unclassified)
		}
		idx := (s.byteCounter / max1(s.rotateEveryN)) % uint64(len(s.vaPool))
		return s.vaPool[idx], nil

	case AdaptiveLearning:
		return s.selectAdaptive(), nil

	default:
		return "", coreerr.New("strategy: unknown kind").WithKind(coreerr.Unclassified)
	}
}

func max1(n uint64) uint64 {
	if n == 0 {
		return 1
	}
	return n
}

func (s *Strategy) selectRandom() string {
	total := 0.0
	for _, r := range s.ratios {
		total += r
	}
	if total <= 0 {
		return s.pool[0]
	}
	draw := float64(s.rng.RollUint16()) / 65536.0 * total
	acc := 0.0
	for i, r := range s.ratios {
		acc += r
		if draw < acc {
			return s.pool[i]
		}
	}
	return s.pool[len(s.pool)-1]
}

func (s *Strategy) selectTemporal() string {
	hour := s.clock.HourOfDay() % 24
	if p, ok := s.schedule[hour]; ok {
		return p
	}
	// Tie-break: no exact hour entry, fall back to the lexicographically
	// smallest protocol_id in the schedule (deterministic, per P7).
	keys := make([]string, 0, len(s.schedule))
	for _, p := range s.schedule {
		keys = append(keys, p)
	}
	sort.Strings(keys)
	return keys[0]
}

func (s *Strategy) selectAdaptive() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	weights := make([]float64, len(s.pool))
	var denom float64
	for i, p := range s.pool {
		c := s.counters[p]
		rate := c.success / (c.success + c.failure + adaptiveAlpha)
		w := math.Exp(rate / adaptiveTemperature)
		weights[i] = w
		denom += w
	}
	if denom == 0 {
		return s.pool[0]
	}
	// Deterministic argmax over the softmax weights keeps Select() pure
	// and reproducible for a given counter state (no RNG dependency),
	// consistent with Fixed/Temporal's determinism (P7); true randomized
	// sampling from the softmax distribution is left to Random.
	best := 0
	for i := 1; i < len(weights); i++ {
		if weights[i] > weights[best] {
			best = i
		}
	}
	return s.pool[best]
}

// Report records a connection outcome for protocol p, updating its
// success/failure counters and decaying all counters by γ (spec §4.8
// "report(protocol, outcome) ... counters decay by multiplicative factor
// γ=0.98 per update"). Only meaningful for AdaptiveLearning strategies.
func (s *Strategy) Report(protocol string, outcome Outcome) {
	if s.kind != AdaptiveLearning {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.counters {
		c.success *= adaptiveDecay
		c.failure *= adaptiveDecay
	}
	c, ok := s.counters[protocol]
	if !ok {
		c = &counters{}
		s.counters[protocol] = c
	}
	if outcome == Ok {
		c.success++
	} else {
		c.failure++
	}
}

// ObserveBytes advances a VolumeAdaptive strategy's byte counter (spec
// §4.8 "keep byte counter"). No-op for other variants.
func (s *Strategy) ObserveBytes(n uint64) {
	if s.kind == VolumeAdaptive {
		s.byteCounter += n
	}
}
