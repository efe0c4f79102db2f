package control

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/wessimpson/lobsim/internal/book"
	"github.com/wessimpson/lobsim/internal/price"
)

// maxMessageBytes rejects oversized control messages
const maxMessageBytes = 10 * 1024

var (
	ErrEmptyMessage    = errors.New("control: empty message")
	ErrMessageTooLarge = errors.New("control: message exceeds 10KB limit")
	ErrUnknownCommand  = errors.New("control: unknown command")
	ErrMalformed       = errors.New("control: malformed payload")
)

// request is the wire shape of every inbound control message, a flat
// struct covering the union of fields across the four supported
// commands, parsed then dispatched by the Command field, JSON rather
// than fixed-width binary since these are free-form named operations
// rather than a small closed set of trade messages.
type request struct {
	Command string   `json:"command"`
	Speed   *float64 `json:"speed,omitempty"`
	Side    *string  `json:"side,omitempty"`
	Qty     *uint64  `json:"qty,omitempty"`
	Price   *string  `json:"price,omitempty"`
}

// response is the wire shape of every reply. CorrelationID is a
// human-readable request id distinct from the engine's numeric order id,
// minted with uuid.New().String() so a client can track a request
// independently of any internal sequence number.
type response struct {
	OK            bool   `json:"ok"`
	Command       string `json:"command,omitempty"`
	Error         string `json:"error,omitempty"`
	Health        any    `json:"health,omitempty"`
	Trades        any    `json:"trades,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

func parseRequest(raw []byte) (request, error) {
	if len(raw) == 0 {
		return request{}, ErrEmptyMessage
	}
	if len(raw) > maxMessageBytes {
		return request{}, ErrMessageTooLarge
	}
	var req request
	if err := json.Unmarshal(raw, &req); err != nil {
		return request{}, fmt.Errorf("%w: %s", ErrMalformed, err)
	}
	return req, nil
}

func errResponse(cmd string, err error) response {
	return response{OK: false, Command: cmd, Error: err.Error()}
}

func okResponse(cmd string) response {
	return response{OK: true, Command: cmd}
}

// marshalResponse encodes a response as a newline-terminated JSON line,
// matching the request framing.
func marshalResponse(resp response) ([]byte, error) {
	b, err := json.Marshal(resp)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// parseTestOrder builds a book.Order from a place_test_order request,
// nextID supplying the order's engine-visible identity. A nil Price means
// a market order, matching the "market order if price omitted".
func parseTestOrder(req request, nextID uint64, ts int64) (book.Order, error) {
	if req.Side == nil || req.Qty == nil {
		return book.Order{}, fmt.Errorf("%w: place_test_order requires side and qty", ErrMalformed)
	}
	var side book.Side
	switch *req.Side {
	case "buy", "Buy", "BUY":
		side = book.Buy
	case "sell", "Sell", "SELL":
		side = book.Sell
	default:
		return book.Order{}, fmt.Errorf("%w: invalid side %q", ErrMalformed, *req.Side)
	}
	if *req.Qty == 0 {
		return book.Order{}, fmt.Errorf("%w: qty must be > 0", ErrMalformed)
	}

	o := book.Order{ID: nextID, Side: side, Qty: *req.Qty, TS: ts}
	if req.Price == nil {
		o.Kind = book.Market
		return o, nil
	}
	px, err := price.FromDecimalString(*req.Price)
	if err != nil {
		return book.Order{}, fmt.Errorf("%w: invalid price: %s", ErrMalformed, err)
	}
	o.Kind = book.Limit
	o.Price = px
	return o, nil
}
