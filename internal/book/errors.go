package book

import "errors"

// Kind classifies an engine error by recoverability, so
// callers (the simulator step, the control channel) can decide whether to
// log-and-continue or abort.
type Kind int

const (
	KindUnknownOrder Kind = iota
	KindInvalidPrice
	KindInvalidQty
	KindReject
	KindNoLiquidity
	KindSelfTrade
	KindQtyTooLarge
	KindPriceOutOfRange
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindUnknownOrder:
		return "unknown_order"
	case KindInvalidPrice:
		return "invalid_price"
	case KindInvalidQty:
		return "invalid_qty"
	case KindReject:
		return "reject"
	case KindNoLiquidity:
		return "no_liquidity"
	case KindSelfTrade:
		return "self_trade"
	case KindQtyTooLarge:
		return "qty_too_large"
	case KindPriceOutOfRange:
		return "price_out_of_range"
	case KindInternal:
		return "internal"
	}
	return "unknown"
}

// Recoverable reports whether the simulator step should swallow this error
// and continue, or propagate it to the driver as fatal
// (error/critical-severity kinds).
func (k Kind) Recoverable() bool {
	switch k {
	case KindUnknownOrder, KindReject, KindNoLiquidity, KindSelfTrade:
		return true
	default:
		return false
	}
}

// EngineError wraps a Kind with a human-readable detail, matching the
// sentinel-error style common across the package (ErrNotEnoughLiquidity,
// ErrRejection) generalized to carry a reason string for rejection cases.
type EngineError struct {
	Kind   Kind
	Detail string
}

func (e *EngineError) Error() string {
	if e.Detail == "" {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Detail
}

func newErr(k Kind, detail string) *EngineError {
	return &EngineError{Kind: k, Detail: detail}
}

var (
	ErrUnknownOrder    = newErr(KindUnknownOrder, "order id not resting")
	ErrInvalidPrice    = newErr(KindInvalidPrice, "limit price must be > 0")
	ErrInvalidQty      = newErr(KindInvalidQty, "qty must be > 0")
	ErrNoLiquidity     = newErr(KindNoLiquidity, "no opposite-side liquidity")
	ErrDuplicateID     = newErr(KindInternal, "order id already resting")
	ErrSelfTradePolicy = newErr(KindSelfTrade, "self-trade policy rejected order")
)

// AsEngineError unwraps err into an *EngineError if possible.
func AsEngineError(err error) (*EngineError, bool) {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee, true
	}
	return nil, false
}
