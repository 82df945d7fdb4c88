// Package orders defines the core order types and related data structures
// for the limit order book engine.
//
// Key Design Decisions:
//
// 1. Integer Ticks: Prices and quantities are unsigned 32-bit tick counts.
//    There is no fractional arithmetic anywhere in the engine, so integer
//    ticks give exact accounting with no rounding to reason about.
//
// 2. UUID Order IDs: Every order receives a 128-bit identifier minted at
//    construction. IDs are globally unique across restarts, so clients can
//    correlate fills and cancels without coordinating with the server.
//
// 3. Fill Sequence Numbers: Every fill carries a monotonically increasing
//    sequence number owned by the engine. This gives a total order over
//    fill reports across all connections.
package orders

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Side represents the side of an order (bid or ask).
type Side int

const (
	SideBid Side = iota
	SideAsk
)

func (s Side) String() string {
	switch s {
	case SideBid:
		return "Bid"
	case SideAsk:
		return "Ask"
	default:
		return "Unknown"
	}
}

// Opposite returns the opposite side.
func (s Side) Opposite() Side {
	if s == SideBid {
		return SideAsk
	}
	return SideBid
}

// Order represents a single order resting in (or entering) the book.
//
// Price is immutable once the order is created. Quantity is the remaining
// quantity: it only ever decreases (partial fills) and the order is
// destroyed when it reaches zero.
type Order struct {
	// ID is the unique identifier for this order, minted at construction.
	ID uuid.UUID

	// Price in ticks. Always > 0 for an accepted order.
	Price uint32

	// Quantity is the remaining quantity in ticks. Always > 0 while the
	// order rests on the book.
	Quantity uint32

	// CreatedAt is the construction time. Audit/debug only: time priority
	// is carried by queue position, never by this field.
	CreatedAt time.Time
}

// NewOrder mints an order with a fresh id.
func NewOrder(price, quantity uint32) Order {
	return Order{
		ID:        uuid.New(),
		Price:     price,
		Quantity:  quantity,
		CreatedAt: time.Now(),
	}
}

// String returns a human-readable representation of the order.
func (o Order) String() string {
	return fmt.Sprintf("Order{ID:%s, %d@%d}", o.ID, o.Quantity, o.Price)
}

// Fill represents a single execution between an incoming (aggressor) order
// and a resting order. One Fill is emitted per resting order consumed,
// fully or partially.
type Fill struct {
	// Seq is the engine-lifetime sequence number, monotonically increasing
	// across all fills. Assigned under the engine's write lock.
	Seq uint64

	// AggressorSide is the side of the incoming order.
	AggressorSide Side

	// AggressorID is the id of the incoming order.
	AggressorID uuid.UUID

	// RestingID is the id of the resting order that was consumed.
	RestingID uuid.UUID

	// Price is the trade price: always the resting order's price.
	Price uint32

	// Quantity is the traded quantity.
	Quantity uint32

	// Timestamp is when the fill occurred, in nanoseconds since epoch.
	Timestamp int64
}

// String returns a human-readable representation of the fill.
func (f Fill) String() string {
	return fmt.Sprintf("Fill{Seq:%d, %s %d@%d, Aggressor:%s, Resting:%s}",
		f.Seq, f.AggressorSide, f.Quantity, f.Price, f.AggressorID, f.RestingID)
}

// L2Entry is one aggregated price level in a Level-2 view.
type L2Entry struct {
	Price         uint32
	TotalQuantity uint32
	NumOrders     int
}

// L2Book is an aggregated snapshot of resting liquidity. Bids are ordered
// best-first (descending price), asks best-first (ascending price).
type L2Book struct {
	Bids []L2Entry
	Asks []L2Entry
}

// Now returns the current time in nanoseconds since epoch.
func Now() int64 {
	return time.Now().UnixNano()
}
