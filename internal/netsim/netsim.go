// Package netsim models the network path between an order generator and
// the engine: latency with jitter, packet drop, and reorder, all drawn
// from the simulator's seeded PRNG so runs stay reproducible.
package netsim

import "github.com/wessimpson/lobsim/internal/clock"

// Model holds the four network-simulation parameters.
type Model struct {
	BaseLatencyNS uint64
	JitterNS      uint64
	DropProb      float64
	ReorderProb   float64
}

// Default provides a mild, realistic network profile: 100us base
// latency, ±50us jitter, 0.1% drop, 1% reorder.
func Default() Model {
	return Model{
		BaseLatencyNS: 100_000,
		JitterNS:      50_000,
		DropProb:      0.001,
		ReorderProb:   0.01,
	}
}

// SampleLatency draws base_latency_ns ± U(jitter_ns), clamped at zero.
func (m Model) SampleLatency(rng *clock.RNG) uint64 {
	if m.JitterNS == 0 {
		return m.BaseLatencyNS
	}
	jitter := rng.UniformInt64(-int64(m.JitterNS), int64(m.JitterNS))
	latency := int64(m.BaseLatencyNS) + jitter
	if latency < 0 {
		return 0
	}
	return uint64(latency)
}

// ShouldDrop draws Bernoulli(drop_prob).
func (m Model) ShouldDrop(rng *clock.RNG) bool {
	return rng.Bernoulli(m.DropProb)
}

// ShouldReorder draws Bernoulli(reorder_prob). Reorder is advisory: the
// caller decides whether and how to act on it.
func (m Model) ShouldReorder(rng *clock.RNG) bool {
	return rng.Bernoulli(m.ReorderProb)
}
