package book

import "github.com/wessimpson/lobsim/internal/price"

// Side identifies which side of the book an order rests on or crosses.
type Side int8

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// Opposite returns the other side, used when walking the opposing ladder
// during matching.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Kind distinguishes limit orders (which may rest) from market orders
// (which never rest: unfilled residual is discarded).
type Kind int8

const (
	Limit Kind = iota
	Market
)

// Order is the engine's unit of intent. Qty decrements monotonically to
// zero as the order is matched; an Order is never mutated after it reaches
// a terminal state (fully filled or cancelled).
type Order struct {
	ID    uint64
	Side  Side
	Kind  Kind
	Price price.Ticks // zero for Market orders
	Qty   uint64
	TS    int64 // nanoseconds since epoch, order arrival time
}

// Trade is an immutable record of one match. MakerID names the order that
// was resting; TakerID names the order that crossed into it.
type Trade struct {
	MakerID uint64
	TakerID uint64
	Price   price.Ticks
	Qty     uint64
	TS      int64
}
