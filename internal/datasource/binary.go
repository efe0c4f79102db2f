package datasource

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/wessimpson/lobsim/internal/clock"
	"github.com/wessimpson/lobsim/internal/events"
)

// Binary wire format: a fixed header followed by a stream of
// length-prefixed JSON-encoded jsonRecord payloads (reusing the JSON-lines
// decoder so the two formats never drift on field semantics): a header
// carrying the event count and time range, then each record prefixed by
// its byte length.
const binaryMagic uint32 = 0x4c4f4231 // "LOB1"

type binaryHeader struct {
	Magic      uint32
	EventCount uint32
	MinTS      int64
	MaxTS      int64
}

const binaryHeaderSize = 4 + 4 + 8 + 8

// WriteBinaryFile encodes events into the binary format at path, computing
// the header's count and time range from the slice. Used by tests and by
// offline conversion tooling; the simulator itself only ever reads.
func WriteBinaryFile(path string, evs []events.Event) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var minTS, maxTS int64
	for i, e := range evs {
		ts := e.Timestamp()
		if i == 0 || ts < minTS {
			minTS = ts
		}
		if i == 0 || ts > maxTS {
			maxTS = ts
		}
	}

	hdr := binaryHeader{Magic: binaryMagic, EventCount: uint32(len(evs)), MinTS: minTS, MaxTS: maxTS}
	if err := binary.Write(f, binary.LittleEndian, hdr); err != nil {
		return err
	}
	for _, e := range evs {
		payload, err := marshalEventJSON(e)
		if err != nil {
			return err
		}
		if err := binary.Write(f, binary.LittleEndian, uint32(len(payload))); err != nil {
			return err
		}
		if _, err := f.Write(payload); err != nil {
			return err
		}
	}
	return nil
}

// marshalEventJSON re-flattens a typed Event back into the jsonRecord wire
// shape, the inverse of decodeJSONRecord, so binary and JSON-lines share
// one encoding.
func marshalEventJSON(e events.Event) ([]byte, error) {
	rec := jsonRecord{TS: uint64(e.Timestamp())}
	switch v := e.(type) {
	case events.TradeEvent:
		rec.Type = "trade"
		s := v.Price.String()
		rec.Price = &s
		rec.Qty = &v.Qty
		side := v.Side.String()
		rec.Side = &side
		if v.TradeID != "" {
			rec.TradeID = &v.TradeID
		}
	case events.QuoteEvent:
		rec.Type = "quote"
		if v.Bid != nil {
			s := v.Bid.String()
			rec.Bid = &s
		}
		if v.Ask != nil {
			s := v.Ask.String()
			rec.Ask = &s
		}
		rec.BidQty = v.BidQty
		rec.AskQty = v.AskQty
	case events.OrderPlacementEvent:
		rec.Type = "order"
		rec.OrderID = &v.OrderID
		side := v.Side.String()
		rec.Side = &side
		rec.Qty = &v.Qty
		typeStr := "market"
		if v.OrderKind == 0 {
			typeStr = "limit"
			s := v.Price.String()
			rec.Price = &s
		}
		rec.OrderType = &typeStr
	case events.OrderCancellationEvent:
		rec.Type = "cancel"
		rec.OrderID = &v.OrderID
		if v.Reason != "" {
			rec.Reason = &v.Reason
		}
	case events.OrderModificationEvent:
		rec.Type = "modify"
		rec.OrderID = &v.OrderID
		rec.NewQty = v.NewQty
		if v.NewPrice != nil {
			s := v.NewPrice.String()
			rec.NewPrice = &s
		}
	case events.MarketStatusEvent:
		rec.Type = "status"
		s := v.Status.String()
		rec.Status = &s
		if v.Message != "" {
			rec.Message = &v.Message
		}
	case events.BestBidOfferEvent:
		rec.Type = "bbo"
		if v.BestBid != nil {
			s := v.BestBid.String()
			rec.BestBid = &s
		}
		if v.BestAsk != nil {
			s := v.BestAsk.String()
			rec.BestAsk = &s
		}
		rec.BidQty = v.BidQty
		rec.AskQty = v.AskQty
	default:
		return nil, fmt.Errorf("datasource: unknown event implementation %T", e)
	}
	return json.Marshal(rec)
}

// BinarySource reads the length-prefixed binary format.
type BinarySource struct {
	path     string
	file     *os.File
	header   binaryHeader
	pb       *playback
	pos      Position
	finished bool
	dataOff  int64 // file offset just past the header
	pending  []byte
	pendIdx  int
}

// NewBinarySource opens path and reads its fixed header.
func NewBinarySource(path string, c clock.Source) (*BinarySource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, newDataErr(ErrKindFormat, path, 0, err.Error(), err)
	}
	var hdr binaryHeader
	if err := binary.Read(f, binary.LittleEndian, &hdr); err != nil {
		f.Close()
		return nil, newDataErr(ErrKindFormat, path, 0, "truncated or missing header", err)
	}
	if hdr.Magic != binaryMagic {
		f.Close()
		return nil, newDataErr(ErrKindFormat, path, 0, "bad magic number", nil)
	}
	return &BinarySource{path: path, file: f, header: hdr, pb: newPlayback(c), dataOff: binaryHeaderSize}, nil
}

// readRaw returns the next length-prefixed record. If a prior call decoded
// a record that then failed validation, that record's bytes are cached in
// s.pending and replayed here instead of being re-read from the file, so
// a validation failure does not silently skip past the bad record.
func (s *BinarySource) readRaw() ([]byte, int, bool, error) {
	if s.pending != nil {
		return s.pending, s.pendIdx, true, nil
	}
	var length uint32
	if err := binary.Read(s.file, binary.LittleEndian, &length); err != nil {
		if err == io.EOF {
			return nil, 0, false, nil
		}
		return nil, 0, false, newDataErr(ErrKindParse, s.path, s.pos.RecordIndex+1, err.Error(), err)
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(s.file, buf); err != nil {
		return nil, 0, false, newDataErr(ErrKindParse, s.path, s.pos.RecordIndex+1, "truncated record", err)
	}
	s.pos.RecordIndex++
	s.pending = buf
	s.pendIdx = s.pos.RecordIndex
	return buf, s.pendIdx, true, nil
}

func (s *BinarySource) NextEvent() (events.Event, error) {
	if s.finished {
		return nil, nil
	}
	raw, idx, ok, err := s.readRaw()
	if err != nil {
		return nil, err
	}
	if !ok {
		s.finished = true
		return nil, nil
	}

	ev, err := decodeJSONRecord(string(raw), idx, s.path)
	if err != nil {
		return nil, err
	}
	if verr := ev.Validate(); verr != nil {
		return nil, newDataErr(ErrKindValidation, s.path, idx, verr.Error(), verr)
	}

	s.pending = nil
	ts := ev.Timestamp()
	s.pb.wait(ts)
	s.pos.LastTS = ts
	return ev, nil
}

func (s *BinarySource) SeekToTime(t int64) error {
	if t > s.header.MaxTS {
		return newDataErr(ErrKindSeek, s.path, 0, fmt.Sprintf("no event with ts >= %d", t), nil)
	}
	if err := s.Reset(); err != nil {
		return err
	}
	for {
		raw, idx, ok, err := s.readRaw()
		if err != nil {
			return err
		}
		if !ok {
			return newDataErr(ErrKindSeek, s.path, 0, fmt.Sprintf("no event with ts >= %d", t), nil)
		}
		var rec jsonRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return newDataErr(ErrKindParse, s.path, idx, err.Error(), err)
		}
		if int64(rec.TS) >= t {
			// leave s.pending set so the next NextEvent call replays this
			// record instead of reading past it
			s.pos.LastTS = int64(rec.TS)
			s.pb.reset()
			return nil
		}
		s.pending = nil
	}
}

func (s *BinarySource) SetPlaybackSpeed(m float64) error { return s.pb.setSpeed(m) }
func (s *BinarySource) SetPaused(paused bool)            { s.pb.setPaused(paused) }

func (s *BinarySource) Reset() error {
	if _, err := s.file.Seek(s.dataOff, io.SeekStart); err != nil {
		return newDataErr(ErrKindFormat, s.path, 0, err.Error(), err)
	}
	s.pos = Position{}
	s.pending = nil
	s.finished = false
	s.pb.reset()
	return nil
}

func (s *BinarySource) IsFinished() bool          { return s.finished }
func (s *BinarySource) CurrentPosition() Position { return s.pos }

func (s *BinarySource) Metadata() Metadata {
	var size *int64
	if fi, err := s.file.Stat(); err == nil {
		v := fi.Size()
		size = &v
	}
	count := int(s.header.EventCount)
	minTS, maxTS := s.header.MinTS, s.header.MaxTS
	return Metadata{
		Name: s.path, SourceType: "binary", FileSizeB: size,
		EventCount: &count, MinTS: &minTS, MaxTS: &maxTS,
	}
}
