// Package control implements the TCP/JSON control channel: get_health,
// reset_metrics, set_simulation_speed, and place_test_order, one JSON
// object per line over a listener backed by a tomb.Tomb-supervised
// worker pool, one request/response exchange per connection (see
// DESIGN.md for the framing rationale).
package control

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"github.com/wessimpson/lobsim/internal/book"
	"github.com/wessimpson/lobsim/internal/driver"
)

const (
	defaultWorkers     = 10
	connReadTimeout    = 10 * time.Second
	maxSimulationSpeed = 100.0
)

// Engine is the subset of *driver.Driver the control channel needs,
// narrowed to an interface so server tests can substitute a fake.
type Engine interface {
	Health() driver.Health
	ResetMetrics()
	SetSimulationSpeed(speed float64) error
	PlaceOrder(o book.Order) ([]book.Trade, error)
}

// Server accepts control-channel connections and dispatches one JSON
// command per line.
type Server struct {
	address string
	port    int
	engine  Engine
	pool    workerPool

	activeConns int64
	nextOrderID uint64

	cancel   context.CancelFunc
	listener net.Listener
}

// New constructs a control Server bound to address:port, driving engine.
func New(address string, port int, engine Engine) *Server {
	return &Server{
		address: address,
		port:    port,
		engine:  engine,
		pool:    newWorkerPool(defaultWorkers),
	}
}

// ActiveConnections reports the current connection count, fed into the
// driver's OVERLOADED threshold.
func (s *Server) ActiveConnections() int { return int(atomic.LoadInt64(&s.activeConns)) }

// Shutdown cancels the server's run context and closes the listener,
// unblocking Run's Accept loop immediately rather than waiting for the
// next connection attempt.
func (s *Server) Shutdown() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.listener != nil {
		s.listener.Close()
	}
}

// Run listens until ctx is cancelled or Shutdown closes the listener. It
// returns without waiting for in-flight connections to finish.
func (s *Server) Run(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)
	t, ctx := tomb.WithContext(ctx)

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", fmt.Sprintf("%s:%d", s.address, s.port))
	if err != nil {
		return fmt.Errorf("control: listen failed: %w", err)
	}
	s.listener = listener
	defer listener.Close()

	t.Go(func() error {
		s.pool.setup(t, s.handleConnection)
		return nil
	})

	log.Info().Str("addr", listener.Addr().String()).Msg("control: channel listening")

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			conn, err := listener.Accept()
			if err != nil {
				if errors.Is(ctx.Err(), context.Canceled) || isClosedListenerError(err) {
					return nil
				}
				log.Warn().Err(err).Msg("control: accept failed")
				continue
			}
			s.pool.addTask(conn)
		}
	}
}

func isClosedListenerError(err error) bool {
	return errors.Is(err, net.ErrClosed)
}

// handleConnection services exactly one JSON-line request/response
// exchange per accepted connection, then closes it: the control channel
// is request/response, not a persistent session, matching the
// framing of these as discrete subscriber messages.
func (s *Server) handleConnection(t *tomb.Tomb, task any) error {
	conn, ok := task.(net.Conn)
	if !ok {
		return fmt.Errorf("control: unexpected task type %T", task)
	}
	atomic.AddInt64(&s.activeConns, 1)
	defer atomic.AddInt64(&s.activeConns, -1)
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(connReadTimeout))

	reader := bufio.NewReaderSize(conn, maxMessageBytes+1)
	line, err := reader.ReadBytes('\n')
	if err != nil && len(line) == 0 {
		log.Warn().Err(err).Str("addr", conn.RemoteAddr().String()).Msg("control: read failed")
		return nil
	}

	req, perr := parseRequest(line)
	if perr != nil {
		s.writeResponse(conn, errResponse("", perr))
		return nil
	}

	resp := s.dispatch(req)
	s.writeResponse(conn, resp)
	return nil
}

func (s *Server) dispatch(req request) response {
	switch req.Command {
	case "get_health":
		h := s.engine.Health()
		return response{OK: true, Command: req.Command, Health: h}

	case "reset_metrics":
		s.engine.ResetMetrics()
		return okResponse(req.Command)

	case "set_simulation_speed":
		if req.Speed == nil || *req.Speed <= 0 || *req.Speed > maxSimulationSpeed {
			return errResponse(req.Command, fmt.Errorf("%w: speed must be in (0, %v]", ErrMalformed, maxSimulationSpeed))
		}
		if err := s.engine.SetSimulationSpeed(*req.Speed); err != nil {
			return errResponse(req.Command, err)
		}
		return okResponse(req.Command)

	case "place_test_order":
		id := atomic.AddUint64(&s.nextOrderID, 1)
		order, err := parseTestOrder(req, id, time.Now().UnixNano())
		if err != nil {
			return errResponse(req.Command, err)
		}
		trades, err := s.engine.PlaceOrder(order)
		if err != nil {
			ee, ok := book.AsEngineError(err)
			if !ok || !ee.Kind.Recoverable() {
				return errResponse(req.Command, err)
			}
			log.Warn().Err(err).Msg("control: place_test_order recoverable error")
		}
		return response{OK: true, Command: req.Command, Trades: trades, CorrelationID: uuid.New().String()}

	default:
		return errResponse(req.Command, fmt.Errorf("%w: %q", ErrUnknownCommand, req.Command))
	}
}

func (s *Server) writeResponse(conn net.Conn, resp response) {
	payload, err := marshalResponse(resp)
	if err != nil {
		log.Error().Err(err).Msg("control: marshal response failed")
		return
	}
	conn.SetWriteDeadline(time.Now().Add(connReadTimeout))
	if _, err := conn.Write(payload); err != nil {
		log.Warn().Err(err).Msg("control: write response failed")
	}
}
