package datasource

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/wessimpson/lobsim/internal/book"
	"github.com/wessimpson/lobsim/internal/clock"
	"github.com/wessimpson/lobsim/internal/events"
	"github.com/wessimpson/lobsim/internal/price"
)

// CSVSource reads the header-plus-tagged-record CSV layout from the control-channel design
// §6. encoding/csv is the stdlib reader; no third-party CSV package
// appears anywhere in the retrieval pack, so there is no ecosystem
// library to prefer over it here.
type CSVSource struct {
	path     string
	file     *os.File
	reader   *csv.Reader
	header   []string
	pb       *playback
	pos      Position
	finished bool
	pending  []string
	pendLine int
}

// NewCSVSource opens path and reads its header row.
func NewCSVSource(path string, c clock.Source) (*CSVSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, newDataErr(ErrKindFormat, path, 0, err.Error(), err)
	}
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		f.Close()
		return nil, newDataErr(ErrKindFormat, path, 1, "missing header row", err)
	}
	return &CSVSource{
		path:   path,
		file:   f,
		reader: r,
		header: header,
		pb:     newPlayback(c),
	}, nil
}

func (s *CSVSource) readRaw() (rec []string, lineNo int, ok bool, err error) {
	if s.pending != nil {
		return s.pending, s.pendLine, true, nil
	}
	rec, err = s.reader.Read()
	if err == io.EOF {
		return nil, 0, false, nil
	}
	if err != nil {
		return nil, 0, false, newDataErr(ErrKindParse, s.path, s.pos.RecordIndex+2, err.Error(), err)
	}
	s.pos.RecordIndex++
	s.pending = rec
	s.pendLine = s.pos.RecordIndex + 1
	return rec, s.pendLine, true, nil
}

// NextEvent implements Source.
func (s *CSVSource) NextEvent() (events.Event, error) {
	if s.finished {
		return nil, nil
	}
	rec, line, ok, err := s.readRaw()
	if err != nil {
		return nil, err
	}
	if !ok {
		s.finished = true
		return nil, nil
	}

	ev, err := decodeCSVRecord(rec, line, s.path)
	if err != nil {
		return nil, err
	}
	if verr := ev.Validate(); verr != nil {
		return nil, newDataErr(ErrKindValidation, s.path, line, verr.Error(), verr)
	}

	s.pending = nil
	ts := ev.Timestamp()
	s.pb.wait(ts)
	s.pos.LastTS = ts
	return ev, nil
}

func (s *CSVSource) SeekToTime(t int64) error {
	if err := s.Reset(); err != nil {
		return err
	}
	for {
		rec, line, ok, err := s.readRaw()
		if err != nil {
			return err
		}
		if !ok {
			return newDataErr(ErrKindSeek, s.path, 0, fmt.Sprintf("no event with ts >= %d", t), nil)
		}
		ev, err := decodeCSVRecord(rec, line, s.path)
		if err != nil {
			return err
		}
		if ev.Timestamp() >= t {
			s.pos.LastTS = ev.Timestamp()
			s.pb.reset()
			return nil
		}
		s.pending = nil
	}
}

func (s *CSVSource) SetPlaybackSpeed(m float64) error { return s.pb.setSpeed(m) }
func (s *CSVSource) SetPaused(paused bool)            { s.pb.setPaused(paused) }

func (s *CSVSource) Reset() error {
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return newDataErr(ErrKindFormat, s.path, 0, err.Error(), err)
	}
	s.reader = csv.NewReader(s.file)
	s.reader.FieldsPerRecord = -1
	if _, err := s.reader.Read(); err != nil {
		return newDataErr(ErrKindFormat, s.path, 1, "missing header row", err)
	}
	s.pos = Position{}
	s.pending = nil
	s.finished = false
	s.pb.reset()
	return nil
}

func (s *CSVSource) IsFinished() bool            { return s.finished }
func (s *CSVSource) CurrentPosition() Position   { return s.pos }

func (s *CSVSource) Metadata() Metadata {
	var size *int64
	if fi, err := s.file.Stat(); err == nil {
		v := fi.Size()
		size = &v
	}
	return Metadata{Name: s.path, SourceType: "csv", FileSizeB: size}
}

func decodeCSVRecord(rec []string, line int, source string) (events.Event, error) {
	if len(rec) == 0 {
		return nil, newDataErr(ErrKindParse, source, line, "empty record", nil)
	}
	tag := strings.ToLower(strings.TrimSpace(rec[0]))
	fields := rec[1:]

	get := func(i int) string {
		if i < len(fields) {
			return strings.TrimSpace(fields[i])
		}
		return ""
	}
	required := func(i int, name string) (string, error) {
		v := get(i)
		if v == "" {
			return "", newDataErr(ErrKindParse, source, line, fmt.Sprintf("%s field is required for %s", name, tag), nil)
		}
		return v, nil
	}

	switch tag {
	case "trade":
		tsStr, err := required(0, "ts")
		if err != nil {
			return nil, err
		}
		priceStr, err := required(1, "price")
		if err != nil {
			return nil, err
		}
		qtyStr, err := required(2, "qty")
		if err != nil {
			return nil, err
		}
		sideStr, err := required(3, "side")
		if err != nil {
			return nil, err
		}
		ts, err := parseTS(tsStr, line, source)
		if err != nil {
			return nil, err
		}
		p, err := parsePrice(priceStr, line, source)
		if err != nil {
			return nil, err
		}
		qty, err := parseUint64(qtyStr, line, source)
		if err != nil {
			return nil, err
		}
		side, err := parseSide(sideStr, line, source)
		if err != nil {
			return nil, err
		}
		return events.TradeEvent{TS: ts, Price: p, Qty: qty, Side: side, TradeID: get(4)}, nil

	case "quote":
		tsStr, err := required(0, "ts")
		if err != nil {
			return nil, err
		}
		ts, err := parseTS(tsStr, line, source)
		if err != nil {
			return nil, err
		}
		bid, err := parseOptionalPrice(get(1), line, source)
		if err != nil {
			return nil, err
		}
		ask, err := parseOptionalPrice(get(2), line, source)
		if err != nil {
			return nil, err
		}
		bidQty, err := parseOptionalUint64(get(3), line, source)
		if err != nil {
			return nil, err
		}
		askQty, err := parseOptionalUint64(get(4), line, source)
		if err != nil {
			return nil, err
		}
		return events.QuoteEvent{TS: ts, Bid: bid, Ask: ask, BidQty: bidQty, AskQty: askQty}, nil

	case "order":
		tsStr, err := required(0, "ts")
		if err != nil {
			return nil, err
		}
		idStr, err := required(1, "order_id")
		if err != nil {
			return nil, err
		}
		sideStr, err := required(2, "side")
		if err != nil {
			return nil, err
		}
		qtyStr, err := required(3, "qty")
		if err != nil {
			return nil, err
		}
		typeStr, err := required(5, "order_type")
		if err != nil {
			return nil, err
		}
		ts, err := parseTS(tsStr, line, source)
		if err != nil {
			return nil, err
		}
		id, err := parseUint64(idStr, line, source)
		if err != nil {
			return nil, err
		}
		side, err := parseSide(sideStr, line, source)
		if err != nil {
			return nil, err
		}
		qty, err := parseUint64(qtyStr, line, source)
		if err != nil {
			return nil, err
		}
		kind, err := parseOrderType(typeStr, line, source)
		if err != nil {
			return nil, err
		}
		var p price.Ticks
		if kind == book.Limit {
			priceStr, err := required(4, "price")
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
		tsStr, err := required(0, "ts")
		if err != nil {
			return nil, err
		}
		idStr, err := required(1, "order_id")
		if err != nil {
			return nil, err
		}
		ts, err := parseTS(tsStr, line, source)
		if err != nil {
			return nil, err
		}
		id, err := parseUint64(idStr, line, source)
		if err != nil {
			return nil, err
		}
		return events.OrderCancellationEvent{TS: ts, OrderID: id, Reason: get(2)}, nil

	case "modify":
		tsStr, err := required(0, "ts")
		if err != nil {
			return nil, err
		}
		idStr, err := required(1, "order_id")
		if err != nil {
			return nil, err
		}
		ts, err := parseTS(tsStr, line, source)
		if err != nil {
			return nil, err
		}
		id, err := parseUint64(idStr, line, source)
		if err != nil {
			return nil, err
		}
		newQty, err := parseOptionalUint64(get(2), line, source)
		if err != nil {
			return nil, err
		}
		newPrice, err := parseOptionalPrice(get(3), line, source)
		if err != nil {
			return nil, err
		}
		return events.OrderModificationEvent{TS: ts, OrderID: id, NewQty: newQty, NewPrice: newPrice}, nil

	case "status":
		tsStr, err := required(0, "ts")
		if err != nil {
			return nil, err
		}
		statusStr, err := required(1, "status")
		if err != nil {
			return nil, err
		}
		ts, err := parseTS(tsStr, line, source)
		if err != nil {
			return nil, err
		}
		status, err := parseStatus(statusStr, line, source)
		if err != nil {
			return nil, err
		}
		return events.MarketStatusEvent{TS: ts, Status: status, Message: get(2)}, nil

	case "bbo":
		tsStr, err := required(0, "ts")
		if err != nil {
			return nil, err
		}
		ts, err := parseTS(tsStr, line, source)
		if err != nil {
			return nil, err
		}
		bestBid, err := parseOptionalPrice(get(1), line, source)
		if err != nil {
			return nil, err
		}
		bestAsk, err := parseOptionalPrice(get(2), line, source)
		if err != nil {
			return nil, err
		}
		bidQty, err := parseOptionalUint64(get(3), line, source)
		if err != nil {
			return nil, err
		}
		askQty, err := parseOptionalUint64(get(4), line, source)
		if err != nil {
			return nil, err
		}
		return events.BestBidOfferEvent{TS: ts, BestBid: bestBid, BestAsk: bestAsk, BidQty: bidQty, AskQty: askQty}, nil

	default:
		return nil, newDataErr(ErrKindParse, source, line, fmt.Sprintf("unknown event tag %q", tag), nil)
	}
}

func parseTS(s string, line int, source string) (int64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, newDataErr(ErrKindParse, source, line, fmt.Sprintf("invalid ts %q", s), err)
	}
	return int64(v), nil
}

func parseUint64(s string, line int, source string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, newDataErr(ErrKindParse, source, line, fmt.Sprintf("invalid integer %q", s), err)
	}
	return v, nil
}

func parseOptionalUint64(s string, line int, source string) (*uint64, error) {
	if isAbsent(s) {
		return nil, nil
	}
	v, err := parseUint64(s, line, source)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func parsePrice(s string, line int, source string) (price.Ticks, error) {
	p, err := price.FromDecimalString(s)
	if err != nil {
		return 0, newDataErr(ErrKindParse, source, line, err.Error(), err)
	}
	return p, nil
}

func parseOptionalPrice(s string, line int, source string) (*price.Ticks, error) {
	if isAbsent(s) {
		return nil, nil
	}
	p, err := parsePrice(s, line, source)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func parseSide(s string, line int, source string) (book.Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy", "b":
		return book.Buy, nil
	case "sell", "s":
		return book.Sell, nil
	}
	return 0, newDataErr(ErrKindParse, source, line, fmt.Sprintf("invalid side %q", s), nil)
}

func parseOrderType(s string, line int, source string) (book.Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "limit":
		return book.Limit, nil
	case "market":
		return book.Market, nil
	}
	return 0, newDataErr(ErrKindParse, source, line, fmt.Sprintf("invalid order_type %q", s), nil)
}

func parseStatus(s string, line int, source string) (events.Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "open":
		return events.StatusOpen, nil
	case "closed":
		return events.StatusClosed, nil
	case "halted":
		return events.StatusHalted, nil
	case "premarket":
		return events.StatusPremarket, nil
	case "afterhours":
		return events.StatusAfterhours, nil
	case "auction":
		return events.StatusAuction, nil
	}
	return 0, newDataErr(ErrKindParse, source, line, fmt.Sprintf("invalid status %q", s), nil)
}

func isAbsent(s string) bool {
	return s == "" || strings.EqualFold(s, "null")
}
