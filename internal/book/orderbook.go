// Package book implements the price-time-priority limit order book: two
// sorted price ladders, an order-id index for O(1) cancel lookup, and the
// matching loop that walks the opposing ladder until a taker is filled or
// liquidity runs out. It generalizes a single btree-backed OrderBook with
// an ad hoc []*Order per level into an engine that is agnostic to the
// per-level queue discipline (see queue.go).
package book

import (
	"github.com/rs/zerolog/log"
	"github.com/tidwall/btree"

	"github.com/wessimpson/lobsim/internal/price"
)

// PriceLevel is the aggregate of resting orders at one price on one side.
// Its sort position in the ladder is governed entirely by Price; the
// ordering of orders within the level is delegated to Queue.
type PriceLevel struct {
	Price price.Ticks
	Queue QueueDiscipline
}

type ladder = btree.BTreeG[*PriceLevel]

type orderLocation struct {
	Side  Side
	Price price.Ticks
}

// SelfTradeCheck, when installed via WithSelfTradeCheck, reports whether a
// prospective maker/taker pair share an owner identity. The base engine
// does not enforce self-trade prevention: this is the
// reserved extension point an embedder can wire up.
type SelfTradeCheck func(makerID, takerID uint64) bool

// OrderBook is a single-instrument limit order book. It is not safe for
// concurrent use; callers serialize access externally, typically behind a
// single step driver's gate.
type OrderBook struct {
	bids *ladder
	asks *ladder

	index map[uint64]orderLocation

	newQueue  func() QueueDiscipline
	selfTrade SelfTradeCheck
}

// Option configures an OrderBook at construction time.
type Option func(*OrderBook)

// WithQueueFactory overrides the per-level queue discipline constructor.
// The default is FIFO (NewFIFOQueue); overriding it allows pro-rata or
// size-priority disciplines as long as they satisfy QueueDiscipline.
func WithQueueFactory(f func() QueueDiscipline) Option {
	return func(b *OrderBook) { b.newQueue = f }
}

// WithSelfTradeCheck installs the optional self-trade policy.
func WithSelfTradeCheck(check SelfTradeCheck) Option {
	return func(b *OrderBook) { b.selfTrade = check }
}

// New constructs an empty order book with descending-price bids and
// ascending-price asks.
func New(opts ...Option) *OrderBook {
	b := &OrderBook{
		bids:     btree.NewBTreeG(func(a, b *PriceLevel) bool { return a.Price > b.Price }),
		asks:     btree.NewBTreeG(func(a, b *PriceLevel) bool { return a.Price < b.Price }),
		index:    make(map[uint64]orderLocation),
		newQueue: func() QueueDiscipline { return NewFIFOQueue() },
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *OrderBook) ladderFor(s Side) *ladder {
	if s == Buy {
		return b.bids
	}
	return b.asks
}

// Place validates, matches, and (for limit orders with residual qty) rests
// an incoming order, following a validate/match/rest contract.
func (b *OrderBook) Place(o Order) ([]Trade, error) {
	if o.Qty == 0 {
		return nil, ErrInvalidQty
	}
	if o.Kind == Limit && !o.Price.Valid() {
		return nil, ErrInvalidPrice
	}
	if _, resting := b.index[o.ID]; resting {
		return nil, ErrDuplicateID
	}

	opposite := b.ladderFor(o.Side.Opposite())

	if b.selfTrade != nil {
		if lvl, ok := opposite.Min(); ok {
			if makerID, ok := lvl.Queue.OldestOrderID(); ok && b.selfTrade(makerID, o.ID) {
				return nil, ErrSelfTradePolicy
			}
		}
	}

	var trades []Trade
	remaining := o.Qty

	for remaining > 0 {
		lvl, ok := opposite.Min()
		if !ok {
			break
		}
		if o.Kind == Limit {
			if o.Side == Buy && lvl.Price > o.Price {
				break
			}
			if o.Side == Sell && lvl.Price < o.Price {
				break
			}
		}

		left, lvlTrades, filledIDs := lvl.Queue.MatchAgainst(o.ID, o.Side, remaining, lvl.Price, o.TS)
		for _, id := range filledIDs {
			delete(b.index, id)
		}
		trades = append(trades, lvlTrades...)
		remaining = left

		if lvl.Queue.IsEmpty() {
			opposite.Delete(lvl)
		}
	}

	if remaining > 0 && o.Kind == Market {
		if len(trades) == 0 {
			return trades, ErrNoLiquidity
		}
		// Partial fill: residual discarded, reported as a soft
		// insufficient-liquidity outcome alongside the trades that did
		// execute.
		return trades, ErrNoLiquidity
	}

	if remaining > 0 && o.Kind == Limit {
		resting := o
		resting.Qty = remaining
		same := b.ladderFor(o.Side)
		lvl, ok := same.Get(&PriceLevel{Price: o.Price})
		if !ok {
			lvl = &PriceLevel{Price: o.Price, Queue: b.newQueue()}
			same.Set(lvl)
		}
		lvl.Queue.Enqueue(&resting)
		b.index[o.ID] = orderLocation{Side: o.Side, Price: o.Price}
	}

	return trades, nil
}

// Cancel removes a resting order by id.
func (b *OrderBook) Cancel(orderID uint64) (uint64, error) {
	loc, ok := b.index[orderID]
	if !ok {
		return 0, ErrUnknownOrder
	}
	l := b.ladderFor(loc.Side)
	lvl, ok := l.Get(&PriceLevel{Price: loc.Price})
	if !ok {
		log.Error().Uint64("order_id", orderID).Msg("id index points at a missing price level")
		delete(b.index, orderID)
		return 0, newErr(KindInternal, "index/ladder divergence")
	}
	qty := lvl.Queue.Cancel(orderID)
	delete(b.index, orderID)
	if lvl.Queue.IsEmpty() {
		l.Delete(lvl)
	}
	return qty, nil
}

// Modify changes a resting order's qty and/or price. A strict size
// decrease with no price change keeps queue priority; any price change or
// size increase re-enqueues at the tail of the destination level. ts is
// the modification's logical timestamp, used as the new order's arrival
// time when priority is lost.
func (b *OrderBook) Modify(orderID uint64, newQty *uint64, newPrice *price.Ticks, ts int64) error {
	loc, ok := b.index[orderID]
	if !ok {
		return ErrUnknownOrder
	}
	l := b.ladderFor(loc.Side)
	lvl, ok := l.Get(&PriceLevel{Price: loc.Price})
	if !ok {
		return newErr(KindInternal, "index/ladder divergence")
	}

	priceChanged := newPrice != nil && *newPrice != loc.Price
	sizeIncrease := false
	if newQty != nil {
		if cur, found := lvl.Queue.Lookup(orderID); found && *newQty > cur.Qty {
			sizeIncrease = true
		}
	}

	if !priceChanged && !sizeIncrease {
		if newQty == nil {
			return nil
		}
		if *newQty == 0 {
			return ErrInvalidQty
		}
		if !lvl.Queue.AdjustQty(orderID, *newQty) {
			return ErrUnknownOrder
		}
		return nil
	}

	removed, ok := lvl.Queue.Remove(orderID)
	if !ok {
		return ErrUnknownOrder
	}
	if lvl.Queue.IsEmpty() {
		l.Delete(lvl)
	}

	destPrice := loc.Price
	if newPrice != nil {
		destPrice = *newPrice
	}
	destQty := removed.Qty
	if newQty != nil {
		destQty = *newQty
	}
	if destQty == 0 {
		return ErrInvalidQty
	}
	if !destPrice.Valid() {
		return ErrInvalidPrice
	}

	removed.Price = destPrice
	removed.Qty = destQty
	removed.TS = ts

	destLvl, ok := l.Get(&PriceLevel{Price: destPrice})
	if !ok {
		destLvl = &PriceLevel{Price: destPrice, Queue: b.newQueue()}
		l.Set(destLvl)
	}
	destLvl.Queue.Enqueue(removed)
	b.index[orderID] = orderLocation{Side: loc.Side, Price: destPrice}
	return nil
}

// BestBid returns the highest resting bid price, if any.
func (b *OrderBook) BestBid() (price.Ticks, bool) {
	lvl, ok := b.bids.Min()
	if !ok {
		return 0, false
	}
	return lvl.Price, true
}

// BestAsk returns the lowest resting ask price, if any.
func (b *OrderBook) BestAsk() (price.Ticks, bool) {
	lvl, ok := b.asks.Min()
	if !ok {
		return 0, false
	}
	return lvl.Price, true
}

// Spread returns ask-bid when both sides are present.
func (b *OrderBook) Spread() (int64, bool) {
	bid, okb := b.BestBid()
	ask, oka := b.BestAsk()
	if !okb || !oka {
		return 0, false
	}
	return int64(ask) - int64(bid), true
}

// MidPrice returns the arithmetic mean of best bid and ask, when both
// exist.
func (b *OrderBook) MidPrice() (float64, bool) {
	bid, okb := b.BestBid()
	ask, oka := b.BestAsk()
	if !okb || !oka {
		return 0, false
	}
	return (float64(bid) + float64(ask)) / 2, true
}

// LevelView is one row of a depth snapshot: a pure value, never aliasing
// book internals.
type LevelView struct {
	Price     price.Ticks
	Qty       uint64
	LatencyMS float64
}

// DepthSnapshot is the book-only portion of the depth snapshot
// (timestamp, top-of-book, top-N levels each side). The simulator layers
// metrics and spread history on top (see internal/sim.Snapshot).
type DepthSnapshot struct {
	TS      int64
	BestBid *price.Ticks
	BestAsk *price.Ticks
	Spread  *int64
	Mid     *float64
	Bids    []LevelView
	Asks    []LevelView
}

// Snapshot materializes the top N levels of each side. nowNS is used to
// compute the latency-since-oldest-order observability field.
func (b *OrderBook) Snapshot(topN int, nowNS int64) DepthSnapshot {
	snap := DepthSnapshot{TS: nowNS}

	if bid, ok := b.BestBid(); ok {
		v := bid
		snap.BestBid = &v
	}
	if ask, ok := b.BestAsk(); ok {
		v := ask
		snap.BestAsk = &v
	}
	if spread, ok := b.Spread(); ok {
		snap.Spread = &spread
	}
	if mid, ok := b.MidPrice(); ok {
		snap.Mid = &mid
	}

	snap.Bids = collectLevels(b.bids, topN, nowNS)
	snap.Asks = collectLevels(b.asks, topN, nowNS)
	return snap
}

func collectLevels(l *ladder, topN int, nowNS int64) []LevelView {
	views := make([]LevelView, 0, topN)
	l.Scan(func(lvl *PriceLevel) bool {
		if len(views) >= topN {
			return false
		}
		latencyMS := 0.0
		if oldest, ok := lvl.Queue.OldestOrderTS(); ok && nowNS > oldest {
			latencyMS = float64(nowNS-oldest) / 1e6
		}
		views = append(views, LevelView{
			Price:     lvl.Price,
			Qty:       lvl.Queue.TotalQty(),
			LatencyMS: latencyMS,
		})
		return true
	})
	return views
}

// TotalRestingQty sums total_qty across every level on side, used by
// property tests to check the book-wide qty invariant.
func (b *OrderBook) TotalRestingQty(s Side) uint64 {
	var sum uint64
	b.ladderFor(s).Scan(func(lvl *PriceLevel) bool {
		sum += lvl.Queue.TotalQty()
		return true
	})
	return sum
}

// OrderCount returns the number of currently-resting orders across the
// whole book.
func (b *OrderBook) OrderCount() int {
	return len(b.index)
}
