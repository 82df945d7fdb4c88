// Package server exposes the matching engine over a stream socket.
//
// Each connection is handled by one goroutine running a strict
// request/response loop: read one frame, perform the operation, write one
// frame, repeat until the client disconnects or sends something
// undecodable. Network I/O happens outside the engine's critical
// section; within a connection requests are processed in arrival order,
// and across connections the engine's lock order defines the global
// serialization order.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rishav/order-book/internal/clearing"
	"github.com/rishav/order-book/internal/marketdata"
	"github.com/rishav/order-book/internal/matching"
	"github.com/rishav/order-book/internal/metrics"
	"github.com/rishav/order-book/internal/orderbook"
	"github.com/rishav/order-book/internal/orders"
	"github.com/rishav/order-book/internal/risk"
	"github.com/rishav/order-book/internal/wire"
)

// Config holds server configuration.
type Config struct {
	// Listen is the address of the order entry socket.
	Listen string `json:"listen"`

	// AdminListen is the address of the HTTP admin listener (/metrics,
	// /healthz, /clearing, /ws/marketdata). Empty disables it.
	AdminListen string `json:"admin_listen"`

	// Risk holds the optional pre-trade caps.
	Risk risk.Config `json:"risk"`
}

// Server accepts connections and drives the engine.
type Server struct {
	cfg       Config
	engine    *matching.Engine
	publisher *marketdata.Publisher
	house     *clearing.House
	checker   *risk.Checker
	metrics   *metrics.Collector
	log       zerolog.Logger

	listener  net.Listener
	admin     *http.Server
	adminAddr string
	wg        sync.WaitGroup

	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool
}

// New creates a server. publisher and house may be nil when market data
// or the clearing surface are not wanted.
func New(cfg Config, engine *matching.Engine, publisher *marketdata.Publisher, house *clearing.House, log zerolog.Logger) *Server {
	return &Server{
		cfg:       cfg,
		engine:    engine,
		publisher: publisher,
		house:     house,
		checker:   risk.NewChecker(cfg.Risk),
		metrics:   metrics.GetCollector(),
		log:       log,
		conns:     make(map[net.Conn]struct{}),
	}
}

// Start binds the order entry socket and begins accepting. It does not
// block; use Shutdown to stop.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return err
	}
	s.listener = listener
	s.log.Info().Str("addr", listener.Addr().String()).Msg("order entry listening")

	s.wg.Add(1)
	go s.acceptLoop()

	if s.cfg.AdminListen != "" {
		if err := s.startAdmin(); err != nil {
			listener.Close()
			return err
		}
	}
	return nil
}

// Addr returns the bound order entry address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// AdminAddr returns the bound admin address, empty when disabled.
func (s *Server) AdminAddr() string {
	return s.adminAddr
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return
			}
			s.log.Warn().Err(err).Msg("accept failed")
			continue
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// handleConn runs the request/response loop for one connection. A decode
// failure terminates the connection silently: the client observes a
// closed socket.
func (s *Server) handleConn(conn net.Conn) {
	s.metrics.ConnectionsActive.Inc()
	defer func() {
		s.metrics.ConnectionsActive.Dec()
		conn.Close()
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		s.wg.Done()
	}()

	for {
		payload, err := wire.ReadFrame(conn)
		if err != nil {
			return
		}
		req, err := wire.DecodeRequest(payload)
		if err != nil {
			s.log.Debug().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("undecodable request, closing connection")
			return
		}

		resp, ok := s.dispatch(req)
		if !ok {
			s.log.Debug().Str("type", req.Type).Str("remote", conn.RemoteAddr().String()).Msg("unknown request type, closing connection")
			return
		}

		out, err := wire.EncodeResponse(resp)
		if err != nil {
			s.log.Error().Err(err).Msg("response encode failed")
			return
		}
		if err := wire.WriteFrame(conn, out); err != nil {
			return
		}
	}
}

func (s *Server) dispatch(req wire.Request) (wire.Response, bool) {
	switch req.Type {
	case wire.TypePlaceOrder:
		return s.handlePlace(req.PlaceOrder), true
	case wire.TypeCancelOrder:
		return s.handleCancel(req.CancelOrder), true
	case wire.TypeViewL2Book:
		return s.handleViewL2(), true
	default:
		return wire.Response{}, false
	}
}

func (s *Server) handlePlace(args *wire.PlaceOrderArgs) wire.Response {
	start := time.Now()
	defer func() {
		s.metrics.RequestDuration.WithLabelValues("place").Observe(time.Since(start).Seconds())
	}()

	if args == nil {
		return wire.Response{Type: wire.TypePlaceErr}
	}
	side, err := wire.ParseSide(args.Side)
	if err != nil {
		s.log.Debug().Err(err).Msg("place with bad side")
		return wire.Response{Type: wire.TypePlaceErr}
	}
	if err := s.checker.Check(side, args.Price, args.Quantity); err != nil {
		s.log.Info().Err(err).Msg("place rejected by pre-trade checks")
		s.metrics.OrdersTotal.WithLabelValues(side.String(), "rejected").Inc()
		return wire.Response{Type: wire.TypePlaceErr}
	}

	id, fills, err := s.engine.PlaceOrder(side, args.Price, args.Quantity)
	if err != nil {
		s.metrics.OrdersTotal.WithLabelValues(side.String(), "rejected").Inc()
		return wire.Response{Type: wire.TypePlaceErr}
	}

	var filled uint32
	for _, fill := range fills {
		filled += fill.Quantity
		s.metrics.TradesTotal.Inc()
		s.metrics.TradedVolume.Add(float64(fill.Quantity))
	}
	outcome := "rested"
	if filled == args.Quantity {
		outcome = "filled"
	} else if filled > 0 {
		outcome = "partial"
	}
	s.metrics.OrdersTotal.WithLabelValues(side.String(), outcome).Inc()

	s.publishAfterPlace(fills)
	s.observeBook()

	return wire.Response{Type: wire.TypePlaceOk, PlaceOk: &wire.PlaceOkBody{OrderID: id.String()}}
}

func (s *Server) handleCancel(args *wire.CancelOrderArgs) wire.Response {
	start := time.Now()
	defer func() {
		s.metrics.RequestDuration.WithLabelValues("cancel").Observe(time.Since(start).Seconds())
	}()

	if args == nil {
		return wire.Response{Type: wire.TypeCancelErr}
	}
	id, err := uuid.Parse(args.OrderID)
	if err != nil {
		s.log.Debug().Err(err).Str("order_id", args.OrderID).Msg("cancel with bad id")
		s.metrics.CancelsTotal.WithLabelValues("bad_id").Inc()
		return wire.Response{Type: wire.TypeCancelErr}
	}

	switch err := s.engine.CancelOrder(id); {
	case err == nil:
		s.metrics.CancelsTotal.WithLabelValues("ok").Inc()
		s.observeBook()
		return wire.Response{Type: wire.TypeCancelOk}
	case errors.Is(err, orderbook.ErrAlreadyGone):
		s.metrics.CancelsTotal.WithLabelValues("already_gone").Inc()
		return wire.Response{Type: wire.TypeCancelErr}
	default:
		s.metrics.CancelsTotal.WithLabelValues("unknown").Inc()
		return wire.Response{Type: wire.TypeCancelErr}
	}
}

func (s *Server) handleViewL2() wire.Response {
	start := time.Now()
	defer func() {
		s.metrics.RequestDuration.WithLabelValues("view_l2").Observe(time.Since(start).Seconds())
	}()

	snapshot := s.engine.SnapshotL2()
	return wire.Response{Type: wire.TypeL2BookOk, L2Book: wire.L2BookFromSnapshot(snapshot)}
}

// publishAfterPlace routes fills and a fresh snapshot to market data
// subscribers. Runs outside the write lock; publishing never blocks.
func (s *Server) publishAfterPlace(fills []orders.Fill) {
	if s.publisher == nil || len(fills) == 0 {
		return
	}
	for _, fill := range fills {
		s.publisher.PublishTrade(marketdata.TradeReport{
			Seq:           fill.Seq,
			Price:         fill.Price,
			Quantity:      fill.Quantity,
			AggressorSide: fill.AggressorSide.String(),
			Timestamp:     fill.Timestamp,
		})
	}
	s.publisher.PublishL2(s.engine.SnapshotL2())
}

func (s *Server) observeBook() {
	stats := s.engine.Stats()
	s.metrics.RestingOrders.Set(float64(stats.RestingOrders))
	s.metrics.PriceLevels.WithLabelValues(orders.SideBid.String()).Set(float64(stats.BidLevels))
	s.metrics.PriceLevels.WithLabelValues(orders.SideAsk.String()).Set(float64(stats.AskLevels))
}

// Shutdown stops accepting, closes open connections, and waits for
// handlers to drain.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	if adminErr := s.stopAdmin(ctx); err == nil {
		err = adminErr
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}
