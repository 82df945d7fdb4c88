// Package matching wraps the order book with the engine's concurrency and
// reporting discipline.
//
// The book is a single-writer data structure behind a readers-writer
// lock: PlaceOrder and CancelOrder take the write lock and run to
// completion, SnapshotL2 takes the read lock. There are no suspension
// points inside a critical section, so the book is never observable in a
// half-applied state. The order of lock acquisition defines the global
// serialization order across connections.
package matching

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rishav/order-book/internal/clearing"
	"github.com/rishav/order-book/internal/orderbook"
	"github.com/rishav/order-book/internal/orders"
)

// Config configures the engine.
type Config struct {
	// TombstoneCap bounds tombstone retention; <= 0 selects the default.
	TombstoneCap int

	// Reporter receives fill records in walk order. Nil means discard.
	Reporter clearing.FillReporter

	Logger zerolog.Logger
}

// Engine is the single-instrument matching engine.
type Engine struct {
	mu       sync.RWMutex
	book     *orderbook.Book
	fillSeq  uint64
	reporter clearing.FillReporter
	log      zerolog.Logger
}

// NewEngine creates an engine over an empty book.
func NewEngine(cfg Config) *Engine {
	reporter := cfg.Reporter
	if reporter == nil {
		reporter = clearing.Nop{}
	}
	return &Engine{
		book:     orderbook.NewBook(cfg.TombstoneCap),
		reporter: reporter,
		log:      cfg.Logger,
	}
}

// PlaceOrder matches an incoming order against the book and rests any
// remainder. Fills are stamped with their engine-lifetime sequence
// numbers and pushed to the reporter, contiguously and in walk order,
// before the call returns. The returned id is valid whether the order
// rested, matched entirely, or both.
func (e *Engine) PlaceOrder(side orders.Side, price, quantity uint32) (uuid.UUID, []orders.Fill, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id, fills, err := e.book.Place(side, price, quantity)
	if err != nil {
		e.log.Debug().
			Str("side", side.String()).
			Uint32("price", price).
			Uint32("quantity", quantity).
			Err(err).
			Msg("place rejected")
		return uuid.Nil, nil, err
	}

	now := orders.Now()
	for i := range fills {
		e.fillSeq++
		fills[i].Seq = e.fillSeq
		fills[i].Timestamp = now
		e.reporter.Report(fills[i])
	}

	e.log.Debug().
		Str("order_id", id.String()).
		Str("side", side.String()).
		Uint32("price", price).
		Uint32("quantity", quantity).
		Int("fills", len(fills)).
		Msg("place accepted")
	return id, fills, nil
}

// CancelOrder removes a resting order by id. The two failure modes are
// distinguished here (and logged) even though the wire collapses them.
func (e *Engine) CancelOrder(id uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	err := e.book.Cancel(id)
	switch {
	case err == nil:
		e.log.Debug().Str("order_id", id.String()).Msg("cancel ok")
	case errors.Is(err, orderbook.ErrAlreadyGone):
		e.log.Debug().Str("order_id", id.String()).Msg("cancel of departed order")
	case errors.Is(err, orderbook.ErrUnknownOrder):
		e.log.Debug().Str("order_id", id.String()).Msg("cancel of unknown order")
	}
	return err
}

// SnapshotL2 returns the aggregated book under the read lock: concurrent
// snapshots proceed in parallel and observe only fully-applied states.
func (e *Engine) SnapshotL2() orders.L2Book {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.book.SnapshotL2()
}

// Stats is a point-in-time summary of engine state.
type Stats struct {
	RestingOrders int
	BidLevels     int
	AskLevels     int
	Fills         uint64
}

// Stats returns engine counters under the read lock.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Stats{
		RestingOrders: e.book.RestingOrders(),
		BidLevels:     e.book.BidLevels(),
		AskLevels:     e.book.AskLevels(),
		Fills:         e.fillSeq,
	}
}
