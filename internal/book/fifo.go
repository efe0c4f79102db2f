package book

import "github.com/wessimpson/lobsim/internal/price"

// FIFOQueue is the default queue discipline: strict time priority within a
// level. It generalizes a plain ad hoc order slice into the
// QueueDiscipline capability set, so the engine can be built against the
// interface instead of a concrete slice.
type FIFOQueue struct {
	orders     []*Order
	totalQty   uint64
	lastActive int64
}

// NewFIFOQueue constructs an empty FIFO level queue.
func NewFIFOQueue() *FIFOQueue {
	return &FIFOQueue{}
}

func (q *FIFOQueue) Enqueue(o *Order) {
	q.orders = append(q.orders, o)
	q.totalQty += o.Qty
	if o.TS > q.lastActive {
		q.lastActive = o.TS
	}
}

// MatchAgainst walks the level in enqueue order, filling the taker from the
// oldest resting order forward, returning the trade list instead of
// calling into the engine directly.
func (q *FIFOQueue) MatchAgainst(takerID uint64, takerSide Side, takerQty uint64, levelPrice price.Ticks, ts int64) (uint64, []Trade, []uint64) {
	var trades []Trade
	var filled []uint64
	consumed := 0

	for consumed < len(q.orders) && takerQty > 0 {
		maker := q.orders[consumed]
		fillQty := min(maker.Qty, takerQty)

		maker.Qty -= fillQty
		takerQty -= fillQty
		q.totalQty -= fillQty

		trades = append(trades, Trade{
			MakerID: maker.ID,
			TakerID: takerID,
			Price:   levelPrice,
			Qty:     fillQty,
			TS:      ts,
		})

		if maker.Qty == 0 {
			filled = append(filled, maker.ID)
			consumed++
		}
	}

	if consumed > 0 {
		q.orders = q.orders[consumed:]
	}
	if len(trades) > 0 {
		q.lastActive = ts
	}
	return takerQty, trades, filled
}

func (q *FIFOQueue) Cancel(orderID uint64) uint64 {
	for i, o := range q.orders {
		if o.ID == orderID {
			q.totalQty -= o.Qty
			q.orders = append(q.orders[:i], q.orders[i+1:]...)
			return o.Qty
		}
	}
	return 0
}

func (q *FIFOQueue) Remove(orderID uint64) (*Order, bool) {
	for i, o := range q.orders {
		if o.ID == orderID {
			q.totalQty -= o.Qty
			q.orders = append(q.orders[:i], q.orders[i+1:]...)
			return o, true
		}
	}
	return nil, false
}

func (q *FIFOQueue) AdjustQty(orderID uint64, newQty uint64) bool {
	for _, o := range q.orders {
		if o.ID == orderID {
			delta := int64(newQty) - int64(o.Qty)
			o.Qty = newQty
			q.totalQty = uint64(int64(q.totalQty) + delta)
			return true
		}
	}
	return false
}

func (q *FIFOQueue) TotalQty() uint64 { return q.totalQty }
func (q *FIFOQueue) IsEmpty() bool    { return len(q.orders) == 0 }
func (q *FIFOQueue) OrderCount() int  { return len(q.orders) }

func (q *FIFOQueue) OldestOrderTS() (int64, bool) {
	if len(q.orders) == 0 {
		return 0, false
	}
	return q.orders[0].TS, true
}

func (q *FIFOQueue) LastActivityTS() int64 { return q.lastActive }

func (q *FIFOQueue) Lookup(orderID uint64) (*Order, bool) {
	for _, o := range q.orders {
		if o.ID == orderID {
			return o, true
		}
	}
	return nil, false
}

func (q *FIFOQueue) OldestOrderID() (uint64, bool) {
	if len(q.orders) == 0 {
		return 0, false
	}
	return q.orders[0].ID, true
}
