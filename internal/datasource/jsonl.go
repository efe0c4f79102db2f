package datasource

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/wessimpson/lobsim/internal/book"
	"github.com/wessimpson/lobsim/internal/clock"
	"github.com/wessimpson/lobsim/internal/events"
	"github.com/wessimpson/lobsim/internal/price"
)

// jsonRecord is the flat wire shape for every JSON-lines event: one
// object per line, discriminated by Type, with unused fields simply
// absent. Prices stay decimal strings (matching the CSV format) so both
// ingest paths round half-to-even through the same price.FromDecimalString
// path instead of diverging on float-vs-string precision.
type jsonRecord struct {
	Type      string  `json:"type"`
	TS        uint64  `json:"ts"`
	Price     *string `json:"price,omitempty"`
	Qty       *uint64 `json:"qty,omitempty"`
	Side      *string `json:"side,omitempty"`
	TradeID   *string `json:"trade_id,omitempty"`
	Bid       *string `json:"bid,omitempty"`
	Ask       *string `json:"ask,omitempty"`
	BidQty    *uint64 `json:"bid_qty,omitempty"`
	AskQty    *uint64 `json:"ask_qty,omitempty"`
	OrderID   *uint64 `json:"order_id,omitempty"`
	OrderType *string `json:"order_type,omitempty"`
	Reason    *string `json:"reason,omitempty"`
	NewQty    *uint64 `json:"new_qty,omitempty"`
	NewPrice  *string `json:"new_price,omitempty"`
	Status    *string `json:"status,omitempty"`
	Message   *string `json:"message,omitempty"`
	BestBid   *string `json:"best_bid,omitempty"`
	BestAsk   *string `json:"best_ask,omitempty"`
}

// JSONLSource reads one MarketEvent object per line.
type JSONLSource struct {
	path     string
	file     *os.File
	scanner  *bufio.Scanner
	pb       *playback
	pos      Position
	finished bool
	pending  string
	pendLine int
}

// NewJSONLSource opens path for line-delimited JSON replay.
func NewJSONLSource(path string, c clock.Source) (*JSONLSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, newDataErr(ErrKindFormat, path, 0, err.Error(), err)
	}
	return &JSONLSource{
		path:    path,
		file:    f,
		scanner: bufio.NewScanner(f),
		pb:      newPlayback(c),
	}, nil
}

func (s *JSONLSource) readRaw() (line string, lineNo int, ok bool, err error) {
	if s.pending != "" {
		return s.pending, s.pendLine, true, nil
	}
	for s.scanner.Scan() {
		s.pos.RecordIndex++
		text := strings.TrimSpace(s.scanner.Text())
		if text == "" {
			continue
		}
		s.pending = text
		s.pendLine = s.pos.RecordIndex
		return text, s.pendLine, true, nil
	}
	if err := s.scanner.Err(); err != nil {
		return "", 0, false, newDataErr(ErrKindParse, s.path, s.pos.RecordIndex, err.Error(), err)
	}
	return "", 0, false, nil
}

func (s *JSONLSource) NextEvent() (events.Event, error) {
	if s.finished {
		return nil, nil
	}
	raw, line, ok, err := s.readRaw()
	if err != nil {
		return nil, err
	}
	if !ok {
		s.finished = true
		return nil, nil
	}

	ev, err := decodeJSONRecord(raw, line, s.path)
	if err != nil {
		return nil, err
	}
	if verr := ev.Validate(); verr != nil {
		return nil, newDataErr(ErrKindValidation, s.path, line, verr.Error(), verr)
	}

	s.pending = ""
	ts := ev.Timestamp()
	s.pb.wait(ts)
	s.pos.LastTS = ts
	return ev, nil
}

func (s *JSONLSource) SeekToTime(t int64) error {
	if err := s.Reset(); err != nil {
		return err
	}
	for {
		raw, _, ok, err := s.readRaw()
		if err != nil {
			return err
		}
		if !ok {
			return newDataErr(ErrKindSeek, s.path, 0, fmt.Sprintf("no event with ts >= %d", t), nil)
		}
		var rec jsonRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return newDataErr(ErrKindParse, s.path, 0, err.Error(), err)
		}
		if int64(rec.TS) >= t {
			s.pos.LastTS = int64(rec.TS)
			s.pb.reset()
			return nil
		}
		s.pending = ""
	}
}

func (s *JSONLSource) SetPlaybackSpeed(m float64) error { return s.pb.setSpeed(m) }
func (s *JSONLSource) SetPaused(paused bool)            { s.pb.setPaused(paused) }

func (s *JSONLSource) Reset() error {
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return newDataErr(ErrKindFormat, s.path, 0, err.Error(), err)
	}
	s.scanner = bufio.NewScanner(s.file)
	s.pos = Position{}
	s.pending = ""
	s.finished = false
	s.pb.reset()
	return nil
}

func (s *JSONLSource) IsFinished() bool          { return s.finished }
func (s *JSONLSource) CurrentPosition() Position { return s.pos }

func (s *JSONLSource) Metadata() Metadata {
	var size *int64
	if fi, err := s.file.Stat(); err == nil {
		v := fi.Size()
		size = &v
	}
	return Metadata{Name: s.path, SourceType: "jsonl", FileSizeB: size}
}

func decodeJSONRecord(raw string, line int, source string) (events.Event, error) {
	var rec jsonRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, newDataErr(ErrKindParse, source, line, err.Error(), err)
	}
	tag := strings.ToLower(strings.TrimSpace(rec.Type))
	ts := int64(rec.TS)

	reqStr := func(v *string, name string) (string, error) {
		if v == nil || *v == "" {
			return "", newDataErr(ErrKindParse, source, line, fmt.Sprintf("%s field is required for %s", name, tag), nil)
		}
		return *v, nil
	}
	reqU64 := func(v *uint64, name string) (uint64, error) {
		if v == nil {
			return 0, newDataErr(ErrKindParse, source, line, fmt.Sprintf("%s field is required for %s", name, tag), nil)
		}
		return *v, nil
	}
	optPrice := func(v *string) (*price.Ticks, error) {
		if v == nil || *v == "" {
			return nil, nil
		}
		p, err := parsePrice(*v, line, source)
		if err != nil {
			return nil, err
		}
		return &p, nil
	}

	switch tag {
	case "trade":
		priceStr, err := reqStr(rec.Price, "price")
		if err != nil {
			return nil, err
		}
		qty, err := reqU64(rec.Qty, "qty")
		if err != nil {
			return nil, err
		}
		sideStr, err := reqStr(rec.Side, "side")
		if err != nil {
			return nil, err
		}
		p, err := parsePrice(priceStr, line, source)
		if err != nil {
			return nil, err
		}
		side, err := parseSide(sideStr, line, source)
		if err != nil {
			return nil, err
		}
		tradeID := ""
		if rec.TradeID != nil {
			tradeID = *rec.TradeID
		}
		return events.TradeEvent{TS: ts, Price: p, Qty: qty, Side: side, TradeID: tradeID}, nil

	case "quote":
		bid, err := optPrice(rec.Bid)
		if err != nil {
			return nil, err
		}
		ask, err := optPrice(rec.Ask)
		if err != nil {
			return nil, err
		}
		return events.QuoteEvent{TS: ts, Bid: bid, Ask: ask, BidQty: rec.BidQty, AskQty: rec.AskQty}, nil

	case "order":
		id, err := reqU64(rec.OrderID, "order_id")
		if err != nil {
			return nil, err
		}
		sideStr, err := reqStr(rec.Side, "side")
		if err != nil {
			return nil, err
		}
		qty, err := reqU64(rec.Qty, "qty")
		if err != nil {
			return nil, err
		}
		typeStr, err := reqStr(rec.OrderType, "order_type")
		if err != nil {
			return nil, err
		}
		side, err := parseSide(sideStr, line, source)
		if err != nil {
			return nil, err
		}
		kind, err := parseOrderType(typeStr, line, source)
		if err != nil {
			return nil, err
		}
		var p price.Ticks
		if kind == book.Limit {
			priceStr, err := reqStr(rec.Price, "price")
			if err != nil {
				return nil, err
			}
			p, err = parsePrice(priceStr, line, source)
			if err != nil {
				return nil, err
			}
		}
		return events.OrderPlacementEvent{TS: ts, OrderID: id, Side: side, Qty: qty, Price: p, OrderKind: kind}, nil

	case "cancel":
		id, err := reqU64(rec.OrderID, "order_id")
		if err != nil {
			return nil, err
		}
		reason := ""
		if rec.Reason != nil {
			reason = *rec.Reason
		}
		return events.OrderCancellationEvent{TS: ts, OrderID: id, Reason: reason}, nil

	case "modify":
		id, err := reqU64(rec.OrderID, "order_id")
		if err != nil {
			return nil, err
		}
		newPrice, err := optPrice(rec.NewPrice)
		if err != nil {
			return nil, err
		}
		return events.OrderModificationEvent{TS: ts, OrderID: id, NewQty: rec.NewQty, NewPrice: newPrice}, nil

	case "status":
		statusStr, err := reqStr(rec.Status, "status")
		if err != nil {
			return nil, err
		}
		status, err := parseStatus(statusStr, line, source)
		if err != nil {
			return nil, err
		}
		message := ""
		if rec.Message != nil {
			message = *rec.Message
		}
		return events.MarketStatusEvent{TS: ts, Status: status, Message: message}, nil

	case "bbo":
		bestBid, err := optPrice(rec.BestBid)
		if err != nil {
			return nil, err
		}
		bestAsk, err := optPrice(rec.BestAsk)
		if err != nil {
			return nil, err
		}
		return events.BestBidOfferEvent{TS: ts, BestBid: bestBid, BestAsk: bestAsk, BidQty: rec.BidQty, AskQty: rec.AskQty}, nil

	default:
		return nil, newDataErr(ErrKindParse, source, line, fmt.Sprintf("unknown event type %q", tag), nil)
	}
}
