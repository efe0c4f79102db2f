// Package events defines the market-event tagged union consumed by the
// historical data source (internal/datasource) and fed into the
// simulator's historical-mode step, expressed as a Go interface with one
// implementation per variant instead of a sum type.
package events

import (
	"fmt"

	"github.com/wessimpson/lobsim/internal/book"
	"github.com/wessimpson/lobsim/internal/price"
)

// Kind tags which MarketEvent variant an Event carries.
type Kind int8

const (
	KindTrade Kind = iota
	KindQuote
	KindOrderPlacement
	KindOrderCancellation
	KindOrderModification
	KindMarketStatus
	KindBestBidOffer
)

func (k Kind) String() string {
	switch k {
	case KindTrade:
		return "trade"
	case KindQuote:
		return "quote"
	case KindOrderPlacement:
		return "order"
	case KindOrderCancellation:
		return "cancel"
	case KindOrderModification:
		return "modify"
	case KindMarketStatus:
		return "status"
	case KindBestBidOffer:
		return "bbo"
	}
	return "unknown"
}

// AffectsBook reports whether events of this kind must be forwarded to the
// order book engine during replay; the rest are observational.
func (k Kind) AffectsBook() bool {
	switch k {
	case KindTrade, KindOrderPlacement, KindOrderCancellation, KindOrderModification:
		return true
	default:
		return false
	}
}

// Event is implemented by every market-event variant. Validate is a pure
// function of the variant's fields, never touching engine or I/O state.
type Event interface {
	Kind() Kind
	Timestamp() int64
	Validate() error
}

// ErrInvalidEvent is the sentinel wrapped by every Validate failure, so
// callers can distinguish "malformed event" from other error classes with
// errors.Is.
var ErrInvalidEvent = fmt.Errorf("events: invalid event")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidEvent, fmt.Sprintf(format, args...))
}

// Status enumerates the market-status values a MarketStatusEvent may carry.
type Status int8

const (
	StatusOpen Status = iota
	StatusClosed
	StatusHalted
	StatusPremarket
	StatusAfterhours
	StatusAuction
)

func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusClosed:
		return "closed"
	case StatusHalted:
		return "halted"
	case StatusPremarket:
		return "premarket"
	case StatusAfterhours:
		return "afterhours"
	case StatusAuction:
		return "auction"
	}
	return "unknown"
}

// Status tags are parsed case-insensitively by internal/datasource
// (parseStatus); this package only defines the enum and its String.

// TradeEvent reports a trade that occurred in the historical feed.
type TradeEvent struct {
	TS      int64
	Price   price.Ticks
	Qty     uint64
	Side    book.Side
	TradeID string // optional, empty if absent
}

func (e TradeEvent) Kind() Kind      { return KindTrade }
func (e TradeEvent) Timestamp() int64 { return e.TS }
func (e TradeEvent) Validate() error {
	if e.Qty == 0 {
		return invalid("trade: qty must be > 0")
	}
	if !e.Price.Valid() {
		return invalid("trade: price must be > 0")
	}
	return nil
}

// QuoteEvent reports a two-sided quote; either side may be absent.
type QuoteEvent struct {
	TS     int64
	Bid    *price.Ticks
	Ask    *price.Ticks
	BidQty *uint64
	AskQty *uint64
}

func (e QuoteEvent) Kind() Kind       { return KindQuote }
func (e QuoteEvent) Timestamp() int64 { return e.TS }
func (e QuoteEvent) Validate() error {
	if e.Bid != nil && e.Ask != nil && *e.Bid >= *e.Ask {
		return invalid("quote: bid %s must be < ask %s", e.Bid, e.Ask)
	}
	if e.BidQty != nil && *e.BidQty == 0 {
		return invalid("quote: bid_qty must be > 0 when present")
	}
	if e.AskQty != nil && *e.AskQty == 0 {
		return invalid("quote: ask_qty must be > 0 when present")
	}
	return nil
}

// OrderPlacementEvent mirrors a new resting or aggressing order observed
// in the historical feed.
type OrderPlacementEvent struct {
	TS        int64
	OrderID   uint64
	Side      book.Side
	Qty       uint64
	Price     price.Ticks // zero for market orders
	OrderKind book.Kind
}

func (e OrderPlacementEvent) Kind() Kind       { return KindOrderPlacement }
func (e OrderPlacementEvent) Timestamp() int64 { return e.TS }
func (e OrderPlacementEvent) Validate() error {
	if e.Qty == 0 {
		return invalid("order: qty must be > 0")
	}
	if e.OrderKind == book.Limit && !e.Price.Valid() {
		return invalid("order: limit price must be > 0")
	}
	return nil
}

// OrderCancellationEvent reports a historical cancellation.
type OrderCancellationEvent struct {
	TS      int64
	OrderID uint64
	Reason  string
}

func (e OrderCancellationEvent) Kind() Kind       { return KindOrderCancellation }
func (e OrderCancellationEvent) Timestamp() int64 { return e.TS }
func (e OrderCancellationEvent) Validate() error  { return nil }

// OrderModificationEvent reports a historical qty/price amendment.
type OrderModificationEvent struct {
	TS       int64
	OrderID  uint64
	NewQty   *uint64
	NewPrice *price.Ticks
}

func (e OrderModificationEvent) Kind() Kind       { return KindOrderModification }
func (e OrderModificationEvent) Timestamp() int64 { return e.TS }
func (e OrderModificationEvent) Validate() error {
	if e.NewQty != nil && *e.NewQty == 0 {
		return invalid("modify: new_qty must be > 0 when present")
	}
	if e.NewPrice != nil && !e.NewPrice.Valid() {
		return invalid("modify: new_price must be > 0 when present")
	}
	return nil
}

// MarketStatusEvent reports a venue-level status change; observational.
type MarketStatusEvent struct {
	TS      int64
	Status  Status
	Message string
}

func (e MarketStatusEvent) Kind() Kind       { return KindMarketStatus }
func (e MarketStatusEvent) Timestamp() int64 { return e.TS }
func (e MarketStatusEvent) Validate() error  { return nil }

// BestBidOfferEvent reports a standalone top-of-book update; observational.
type BestBidOfferEvent struct {
	TS       int64
	BestBid  *price.Ticks
	BestAsk  *price.Ticks
	BidQty   *uint64
	AskQty   *uint64
}

func (e BestBidOfferEvent) Kind() Kind       { return KindBestBidOffer }
func (e BestBidOfferEvent) Timestamp() int64 { return e.TS }
func (e BestBidOfferEvent) Validate() error {
	if e.BestBid != nil && e.BestAsk != nil && *e.BestBid >= *e.BestAsk {
		return invalid("bbo: best_bid %s must be < best_ask %s", e.BestBid, e.BestAsk)
	}
	if e.BidQty != nil && *e.BidQty == 0 {
		return invalid("bbo: bid_qty must be > 0 when present")
	}
	if e.AskQty != nil && *e.AskQty == 0 {
		return invalid("bbo: ask_qty must be > 0 when present")
	}
	return nil
}
