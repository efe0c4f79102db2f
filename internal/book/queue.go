package book

import "github.com/wessimpson/lobsim/internal/price"

// QueueDiscipline encapsulates the intra-level matching policy so the
// engine is agnostic to FIFO vs. pro-rata vs. size-priority. The
// capability set covers enqueue, match against a taker, cancel, and a
// handful of observers. The engine never assumes anything about ordering
// beyond what these methods promise.
type QueueDiscipline interface {
	// Enqueue adds a resting order to the level.
	Enqueue(o *Order)

	// MatchAgainst consumes resting orders against an incoming taker of
	// the given id/side/qty at this level's price. It returns the
	// taker's unfilled remainder, the trades generated, and the ids of
	// any maker orders that were fully consumed (so the engine can drop
	// them from its id index), in the order the discipline chooses to
	// consume makers (time priority for FIFO).
	MatchAgainst(takerID uint64, takerSide Side, takerQty uint64, levelPrice price.Ticks, ts int64) (remaining uint64, trades []Trade, filledOrderIDs []uint64)

	// Cancel removes a resting order by id. Returns 0 (not an error) if
	// the id is not present at this level.
	Cancel(orderID uint64) (cancelledQty uint64)

	// Remove extracts a resting order by id for relocation (used by
	// modify when priority is lost: the order is pulled from here and
	// re-enqueued at the tail of its destination level).
	Remove(orderID uint64) (*Order, bool)

	// AdjustQty reduces a resting order's qty in place without moving
	// it, preserving its queue position (modify: strict size decrease).
	AdjustQty(orderID uint64, newQty uint64) bool

	// Lookup returns the resting order by id without removing it, used
	// by modify to decide whether a qty change is an increase or a
	// decrease.
	Lookup(orderID uint64) (*Order, bool)

	// OldestOrderID returns the id of the order at the front of the
	// queue, used by the optional self-trade check to peek at who it
	// would match against before committing to it.
	OldestOrderID() (uint64, bool)

	TotalQty() uint64
	IsEmpty() bool
	OrderCount() int
	OldestOrderTS() (int64, bool)
	LastActivityTS() int64
}
