// Package datasource implements the format-agnostic historical event
// reader: forward iteration, timestamp seek, playback pacing, pause, and
// reset, over CSV, JSON-lines, or length-prefixed binary files.
package datasource

import (
	"errors"
	"fmt"
	"time"

	"github.com/wessimpson/lobsim/internal/clock"
	"github.com/wessimpson/lobsim/internal/events"
)

func durationNS(ns int64) time.Duration { return time.Duration(ns) * time.Nanosecond }

// ErrorKind classifies a data-source failure
// Data(parse/format/seek/validation) error family.
type ErrorKind int8

const (
	ErrKindParse ErrorKind = iota
	ErrKindFormat
	ErrKindSeek
	ErrKindValidation
)

func (k ErrorKind) String() string {
	switch k {
	case ErrKindParse:
		return "parse"
	case ErrKindFormat:
		return "format"
	case ErrKindSeek:
		return "seek"
	case ErrKindValidation:
		return "validation"
	}
	return "unknown"
}

// DataError carries enough context to pin a malformed record down: the
// source name, the 1-indexed line/record number, and a human reason.
type DataError struct {
	Kind   ErrorKind
	Source string
	Line   int
	Reason string
	Err    error
}

func (e *DataError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("datasource: %s:%d: %s: %s", e.Source, e.Line, e.Kind, e.Reason)
	}
	return fmt.Sprintf("datasource: %s: %s: %s", e.Source, e.Kind, e.Reason)
}

func (e *DataError) Unwrap() error { return e.Err }

func newDataErr(kind ErrorKind, source string, line int, reason string, cause error) *DataError {
	return &DataError{Kind: kind, Source: source, Line: line, Reason: reason, Err: cause}
}

// AsDataError unwraps err into a *DataError if possible.
func AsDataError(err error) (*DataError, bool) {
	var de *DataError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// Metadata describes a data source without requiring it to be opened
// twice; the lists it as one of the source's observers.
type Metadata struct {
	Name       string
	SourceType string // "csv", "jsonl", "binary"
	FileSizeB  *int64
	EventCount *int // known upfront for binary; nil for streamed formats
	MinTS      *int64
	MaxTS      *int64
}

// Position describes where the iterator currently sits, for
// current_position.
type Position struct {
	RecordIndex int
	LastTS      int64
}

// Source is the format-agnostic contract every concrete reader satisfies.
// None of its methods are safe for concurrent use; callers serialize
// access the same way they serialize engine access.
type Source interface {
	// NextEvent returns the next validated event, or (nil, nil) at
	// end-of-stream. It sleeps to honor playback pacing unless paused. A
	// validation failure is returned without advancing the cursor past
	// the bad record.
	NextEvent() (events.Event, error)

	// SeekToTime repositions so the next NextEvent call returns an event
	// with ts >= t. Resets the playback clock anchor.
	SeekToTime(t int64) error

	// SetPlaybackSpeed sets the wall-clock wait multiplier; m must be > 0.
	SetPlaybackSpeed(m float64) error

	// SetPaused toggles pause. Resuming resets the clock anchor so
	// subsequent waits are computed relative to resume time.
	SetPaused(paused bool)

	// Reset reopens the source from the beginning.
	Reset() error

	IsFinished() bool
	CurrentPosition() Position
	Metadata() Metadata
}

// playback factors the pacing/pause/speed state shared by every format
// implementation, so CSV/JSONL/binary differ only in how they decode
// records.
type playback struct {
	clock   clock.Source
	speed   float64
	paused  bool
	lastTS  *int64
	anchor  int64 // wall-clock ns at which the anchor ts was returned
	hasAnchor bool
}

func newPlayback(c clock.Source) *playback {
	return &playback{clock: c, speed: 1.0}
}

func (p *playback) setSpeed(m float64) error {
	if m <= 0 {
		return fmt.Errorf("datasource: playback speed must be > 0, got %v", m)
	}
	p.speed = m
	return nil
}

func (p *playback) setPaused(paused bool) {
	wasPaused := p.paused
	p.paused = paused
	if wasPaused && !paused {
		p.hasAnchor = false
	}
}

func (p *playback) reset() {
	p.lastTS = nil
	p.hasAnchor = false
}

// wait sleeps the portion of (ts-lastTS)/speed not already elapsed since
// the anchor was set, then advances lastTS/anchor to ts.
func (p *playback) wait(ts int64) {
	defer func() {
		t := ts
		p.lastTS = &t
	}()

	if p.paused || p.speed <= 0 || p.lastTS == nil {
		p.anchor = p.clock.NowNS()
		p.hasAnchor = true
		return
	}

	if !p.hasAnchor {
		p.anchor = p.clock.NowNS()
		p.hasAnchor = true
	}

	deltaNS := float64(ts-*p.lastTS) / p.speed
	if deltaNS <= 0 {
		return
	}
	target := p.anchor + int64(deltaNS)
	now := p.clock.NowNS()
	if wait := target - now; wait > 0 {
		p.clock.Sleep(durationNS(wait))
	}
	p.anchor = target
}
