// Package pathtest implements the Path Tester & Risk Scorer (C9): for a
// client, probe candidate (protocol, host, port) paths and compute a
// composite score from latency, loss, throughput, and detection risk
// (spec §4.9). Grounded on the three-trial probing shape and exact
// scoring formulas of spec §4.9, S6.
package pathtest

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Candidate is an untested path (spec §3 "Path candidate").
type Candidate struct {
	ProtocolID string
	Host       string
	Port       uint16
	// DefaultPort is the protocol's own default_port (from the Library),
	// used for the "port == protocol.default_port" bonus in detection_risk.
	DefaultPort uint16
	// EvasionScore is commonality*(1-suspicion) from the Library.
	EvasionScore float64
}

// Measurement is the raw result of probing a Candidate three times (spec
// §4.9 "Inputs").
type Measurement struct {
	Candidate      Candidate
	TrialID        uuid.UUID
	RTTMillis      float64
	Loss           float64
	ThroughputBps  float64
	Reachable      bool
	DetectionRisk  float64
	Score          float64
}

// Prober is the external collaborator that actually dials a candidate and
// performs the calibration read (dialing itself is out of scope, spec §1;
// this interface is the seam the core consumes, analogous to
// external.TargetDialer but host-facing rather than target-facing).
type Prober interface {
	// Probe attempts one round-trip against host:port using protocol,
	// returning the observed latency and a calibration throughput
	// estimate, or an error if the attempt failed/timed out.
	Probe(ctx context.Context, protocolID, host string, port uint16) (rtt time.Duration, throughputBps float64, err error)
}

const trialsPerCandidate = 3

// Run probes every candidate three times (spec §4.9) and returns them
// sorted descending by score, tie-broken lexicographically by
// protocol_id (spec §4.9 "Ordering tie-break").
func Run(ctx context.Context, candidates []Candidate, prober Prober, trialTimeout time.Duration) []Measurement {
	out := make([]Measurement, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, probeCandidate(ctx, c, prober, trialTimeout))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Candidate.ProtocolID < out[j].Candidate.ProtocolID
	})
	return out
}

func probeCandidate(ctx context.Context, c Candidate, prober Prober, trialTimeout time.Duration) Measurement {
	var rttSum time.Duration
	var successes int
	var throughput float64

	for i := 0; i < trialsPerCandidate; i++ {
		trialCtx, cancel := context.WithTimeout(ctx, trialTimeout)
		rtt, tput, err := prober.Probe(trialCtx, c.ProtocolID, c.Host, c.Port)
		cancel()
		if err == nil {
			successes++
			rttSum += rtt
			throughput = tput
		}
	}

	m := Measurement{
		Candidate: c,
		TrialID:   uuid.New(),
		Loss:      1 - float64(successes)/float64(trialsPerCandidate),
		Reachable: successes > 0,
	}
	if successes > 0 {
		m.RTTMillis = float64(rttSum/time.Millisecond) / float64(successes)
		m.ThroughputBps = throughput
	}
	m.DetectionRisk = detectionRisk(c)
	m.Score = score(m)
	return m
}

// detectionRisk implements spec §4.9's formula exactly.
func detectionRisk(c Candidate) float64 {
	risk := 0.5*(1-c.EvasionScore) + 0.5*portRisk(c.Port)
	if c.Port == c.DefaultPort {
		risk -= 0.3
	}
	if risk < 0 {
		risk = 0
	}
	if risk > 1 {
		risk = 1
	}
	return risk
}

// portRisk implements spec §4.9's enumerated port buckets.
func portRisk(port uint16) float64 {
	switch port {
	case 53, 80, 443:
		return 0.1
	case 22:
		return 0.2
	}
	if port >= 1024 && port <= 49151 {
		return 0.3
	}
	return 0.5
}

const tenMiBPerSec = 10 * 1024 * 1024

// score implements spec §4.9's composite formula exactly.
func score(m Measurement) float64 {
	rttTerm := m.RTTMillis
	if rttTerm > 500 {
		rttTerm = 500
	}
	tputTerm := m.ThroughputBps / tenMiBPerSec
	if tputTerm > 1 {
		tputTerm = 1
	}
	return 0.50*(1-m.DetectionRisk) +
		0.20*(1-m.Loss) +
		0.20*(1-rttTerm/500) +
		0.10*tputTerm
}

// TopK returns the first k measurements (already sorted by Run), for
// populating a VolumeAdaptive/Random strategy's pool (spec §4.9 "The
// Strategy's pool is populated from the top-k (default k=3)").
func TopK(measurements []Measurement, k int) []Measurement {
	if k <= 0 || k > len(measurements) {
		k = len(measurements)
	}
	return measurements[:k]
}

// DefaultTopK is spec §4.9's default k.
const DefaultTopK = 3
