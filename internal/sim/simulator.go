// Package sim implements the market simulator: synthetic market-maker and
// taker order flow, historical event replay, network-latency/drop
// modeling, and inventory/cash/pnl metrics with a bounded spread-history
// buffer.
package sim

import (
	"github.com/rs/zerolog/log"

	"github.com/wessimpson/lobsim/internal/book"
	"github.com/wessimpson/lobsim/internal/clock"
	"github.com/wessimpson/lobsim/internal/datasource"
	"github.com/wessimpson/lobsim/internal/events"
	"github.com/wessimpson/lobsim/internal/netsim"
	"github.com/wessimpson/lobsim/internal/price"
)

const maxSpreadHistory = 400

// SpreadPoint is one (timestamp, spread-in-ticks) sample.
type SpreadPoint struct {
	TS     int64
	Spread int64
}

// Simulator owns an engine and drives it with either synthetic flow,
// historical replay, or a blend of both. Every exported method is
// expected to be called from a single goroutine (the step driver's gate,
// the); Simulator applies no internal locking of its own.
type Simulator struct {
	Engine *book.OrderBook
	RNG    *clock.RNG
	Net    netsim.Model

	Metrics       Metrics
	RecentSpreads []SpreadPoint

	Mode           Mode
	MMConfig       MarketMakerConfig
	OrderGenConfig OrderGenerationConfig

	DataSource datasource.Source

	RecoverableErrors int

	nextOrderID uint64
	currentTime int64
}

// Option configures a Simulator at construction time.
type Option func(*Simulator)

func WithNetModel(m netsim.Model) Option            { return func(s *Simulator) { s.Net = m } }
func WithMarketMakerConfig(c MarketMakerConfig) Option {
	return func(s *Simulator) { s.MMConfig = c }
}
func WithOrderGenerationConfig(c OrderGenerationConfig) Option {
	return func(s *Simulator) { s.OrderGenConfig = c }
}
func WithMode(m Mode) Option { return func(s *Simulator) { s.Mode = m } }

// WithDataSource attaches a historical source and switches to Historical
// mode, matching the reference's with_data_source builder.
func WithDataSource(src datasource.Source) Option {
	return func(s *Simulator) {
		s.DataSource = src
		s.Mode = ModeHistorical
	}
}

// New constructs a Simulator seeded for deterministic replay, starting
// its logical clock at startTS (nanoseconds). Determinism requires the
// caller to supply this rather than reading the wall clock.
func New(engine *book.OrderBook, seed int64, startTS int64, opts ...Option) *Simulator {
	s := &Simulator{
		Engine:         engine,
		RNG:            clock.NewRNG(seed),
		Net:            netsim.Default(),
		Mode:           ModeSynthetic,
		MMConfig:       DefaultMarketMakerConfig(),
		OrderGenConfig: DefaultOrderGenerationConfig(),
		nextOrderID:    1,
		currentTime:    startTS,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Simulator) allocOrderID() uint64 {
	id := s.nextOrderID
	s.nextOrderID++
	return id
}

// CurrentTime returns the simulator's logical clock.
func (s *Simulator) CurrentTime() int64 { return s.currentTime }

func (s *Simulator) simulateNetworkLatency() {
	s.currentTime += int64(s.Net.SampleLatency(s.RNG))
}

// Step advances the logical clock and dispatches one round of order
// generation/replay according to Mode
func (s *Simulator) Step() ([]book.Trade, error) {
	mean := int64(s.OrderGenConfig.MeanOrderIntervalNS)
	if mean <= 0 {
		mean = 1
	}
	s.currentTime += s.RNG.UniformInt64(mean/2, mean*2)

	var trades []book.Trade
	var err error

	switch s.Mode {
	case ModeHistorical:
		trades, err = s.stepHistorical()
	case ModeHybrid:
		trades, err = s.stepHybrid()
	default:
		trades, err = s.stepSynthetic()
	}
	if err != nil {
		return trades, err
	}

	if len(trades) > 0 {
		s.recordSpread()
	}
	return trades, nil
}

func (s *Simulator) stepHistorical() ([]book.Trade, error) {
	if s.DataSource == nil {
		return nil, nil
	}
	ev, err := s.DataSource.NextEvent()
	if err != nil {
		log.Warn().Err(err).Msg("historical data source error, switching to synthetic mode")
		s.RecoverableErrors++
		s.Mode = ModeSynthetic
		return nil, nil
	}
	if ev == nil {
		return nil, nil
	}
	s.currentTime = ev.Timestamp()
	return s.processMarketEvent(ev)
}

func (s *Simulator) stepSynthetic() ([]book.Trade, error) {
	var trades []book.Trade

	for _, o := range s.generateMarketMakingOrders() {
		s.simulateNetworkLatency()
		if s.Net.ShouldDrop(s.RNG) {
			continue
		}
		t, err := s.placeAndUpdate(o)
		trades = append(trades, t...)
		if err != nil {
			return trades, err
		}
	}

	if o, ok := s.generateMarketTakerOrder(); ok {
		s.simulateNetworkLatency()
		if !s.Net.ShouldDrop(s.RNG) {
			t, err := s.placeAndUpdate(*o)
			trades = append(trades, t...)
			if err != nil {
				return trades, err
			}
		}
	}

	return trades, nil
}

func (s *Simulator) stepHybrid() ([]book.Trade, error) {
	var trades []book.Trade

	if s.DataSource != nil {
		ev, err := s.DataSource.NextEvent()
		if err != nil {
			log.Warn().Err(err).Msg("hybrid mode: data source error")
			s.RecoverableErrors++
		} else if ev != nil {
			s.currentTime = ev.Timestamp()
			t, err := s.processMarketEvent(ev)
			trades = append(trades, t...)
			if err != nil {
				return trades, err
			}
		}
	}

	if s.RNG.Bernoulli(0.5) {
		for _, o := range s.generateMarketMakingOrders() {
			s.simulateNetworkLatency()
			if s.Net.ShouldDrop(s.RNG) {
				continue
			}
			t, err := s.placeAndUpdate(o)
			trades = append(trades, t...)
			if err != nil {
				return trades, err
			}
		}
	}

	return trades, nil
}

// processMarketEvent forwards a replayed event to the engine, with one
// deliberate deviation from a naive replay: re-entering a historical
// Trade as a synthetic market order is ambiguous, since it may produce a
// different fill than the original trade depending on current book
// state. This implementation instead applies a Trade event as a direct
// bookkeeping update (metrics only), bypassing the matching engine
// entirely.
func (s *Simulator) processMarketEvent(ev events.Event) ([]book.Trade, error) {
	switch v := ev.(type) {
	case events.OrderPlacementEvent:
		o := book.Order{ID: v.OrderID, Side: v.Side, Kind: v.OrderKind, Price: v.Price, Qty: v.Qty, TS: v.TS}
		return s.placeAndUpdate(o)

	case events.OrderCancellationEvent:
		if _, err := s.Engine.Cancel(v.OrderID); err != nil {
			s.RecoverableErrors++
		}
		return nil, nil

	case events.OrderModificationEvent:
		if err := s.Engine.Modify(v.OrderID, v.NewQty, v.NewPrice, v.TS); err != nil {
			s.RecoverableErrors++
		}
		return nil, nil

	case events.TradeEvent:
		s.Metrics.UpdateTrade(v.Side, v.Qty, v.Price)
		s.recalculatePnL()
		return []book.Trade{{MakerID: 0, TakerID: 0, Price: v.Price, Qty: v.Qty, TS: v.TS}}, nil

	default:
		return nil, nil
	}
}

// placeAndUpdate submits an order, folding a recoverable engine error
// into the error counter (per the propagation policy) while
// still crediting any trades that did execute; a non-recoverable error
// propagates to the caller, which aborts the step.
func (s *Simulator) placeAndUpdate(o book.Order) ([]book.Trade, error) {
	trades, err := s.Engine.Place(o)
	if err != nil {
		ee, ok := book.AsEngineError(err)
		if !ok || !ee.Kind.Recoverable() {
			return trades, err
		}
		log.Warn().Err(err).Uint64("order_id", o.ID).Msg("recoverable order placement error")
		s.RecoverableErrors++
	}
	if len(trades) > 0 {
		s.Metrics.UpdateTrade(o.Side, sumQty(trades), avgPrice(trades))
		s.recalculatePnL()
	}
	return trades, nil
}

func (s *Simulator) recalculatePnL() {
	if mid, ok := s.Engine.MidPrice(); ok {
		v := int64(mid)
		s.Metrics.RecalculatePnL(&v)
		return
	}
	s.Metrics.RecalculatePnL(nil)
}

func (s *Simulator) recordSpread() {
	spread, ok := s.Engine.Spread()
	if !ok {
		return
	}
	s.RecentSpreads = append(s.RecentSpreads, SpreadPoint{TS: s.currentTime, Spread: spread})
	if len(s.RecentSpreads) > maxSpreadHistory {
		s.RecentSpreads = s.RecentSpreads[len(s.RecentSpreads)-maxSpreadHistory:]
	}
}

func sumQty(trades []book.Trade) uint64 {
	var total uint64
	for _, t := range trades {
		total += t.Qty
	}
	return total
}

// avgPrice is a qty-weighted average, used only to feed the aggregate
// metrics update for a batch of trades from one order.
func avgPrice(trades []book.Trade) price.Ticks {
	var notional, qty int64
	for _, t := range trades {
		notional += int64(t.Qty) * int64(t.Price)
		qty += int64(t.Qty)
	}
	if qty == 0 {
		return 0
	}
	return price.Ticks(notional / qty)
}

// PlaceOrder injects an order outside the normal generation flow, used by
// the control channel's place_test_order command.
func (s *Simulator) PlaceOrder(o book.Order) ([]book.Trade, error) {
	return s.placeAndUpdate(o)
}

// ResetMetrics zeroes metrics and spread history, used by the control
// channel's reset_metrics command.
func (s *Simulator) ResetMetrics() {
	s.Metrics = Metrics{}
	s.RecentSpreads = nil
}
