package sim

import "github.com/wessimpson/lobsim/internal/price"

// LevelWire is one depth-snapshot row on the wire: price, resting qty,
// and the milliseconds of logical time since the level's oldest resting
// order arrived.
type LevelWire struct {
	Price     price.Ticks `json:"price"`
	Qty       uint64      `json:"qty"`
	LatencyMS float64     `json:"latency_ms"`
}

// MetricsWire mirrors Metrics with JSON tags for the wire payload.
type MetricsWire struct {
	Inventory int64 `json:"inventory"`
	Cash      int64 `json:"cash"`
	PnL       int64 `json:"pnl"`
}

// SpreadPointWire is one [ts, spread] pair.
type SpreadPointWire [2]int64

// Snapshot is the full depth-snapshot wire payload broadcast after each
// simulator step.
type Snapshot struct {
	TS            int64             `json:"ts"`
	BestBid       *price.Ticks      `json:"best_bid"`
	BestAsk       *price.Ticks      `json:"best_ask"`
	Spread        *int64            `json:"spread"`
	Mid           *float64          `json:"mid"`
	Bids          []LevelWire       `json:"bids"`
	Asks          []LevelWire       `json:"asks"`
	Metrics       MetricsWire       `json:"metrics"`
	RecentSpreads []SpreadPointWire `json:"recent_spreads"`
}

// Snapshot materializes the book's top N levels per side plus the
// simulator's metrics and bounded spread history, at the simulator's
// current logical time.
func (s *Simulator) Snapshot(topN int) Snapshot {
	depth := s.Engine.Snapshot(topN, s.currentTime)

	bids := make([]LevelWire, len(depth.Bids))
	for i, l := range depth.Bids {
		bids[i] = LevelWire{Price: l.Price, Qty: l.Qty, LatencyMS: l.LatencyMS}
	}
	asks := make([]LevelWire, len(depth.Asks))
	for i, l := range depth.Asks {
		asks[i] = LevelWire{Price: l.Price, Qty: l.Qty, LatencyMS: l.LatencyMS}
	}

	spreads := make([]SpreadPointWire, len(s.RecentSpreads))
	for i, sp := range s.RecentSpreads {
		spreads[i] = SpreadPointWire{sp.TS, sp.Spread}
	}

	return Snapshot{
		TS:      depth.TS,
		BestBid: depth.BestBid,
		BestAsk: depth.BestAsk,
		Spread:  depth.Spread,
		Mid:     depth.Mid,
		Bids:    bids,
		Asks:    asks,
		Metrics: MetricsWire{
			Inventory: s.Metrics.Inventory,
			Cash:      s.Metrics.Cash,
			PnL:       s.Metrics.PnL,
		},
		RecentSpreads: spreads,
	}
}
