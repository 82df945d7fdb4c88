package orderbook

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/rishav/order-book/internal/orders"
)

var (
	// ErrRejected is returned by Place for a zero price or quantity.
	ErrRejected = errors.New("price and quantity must be positive")

	// ErrAlreadyGone is returned by Cancel for an id that matched or was
	// cancelled earlier.
	ErrAlreadyGone = errors.New("order already left the book")

	// ErrUnknownOrder is returned by Cancel for an id the book has never
	// seen (or whose tombstone has been evicted).
	ErrUnknownOrder = errors.New("unknown order")
)

type indexEntry struct {
	side   orders.Side
	handle OrderHandle
}

// Book owns one bid ladder and one ask ladder, the id index used to
// cancel by identifier, and the tombstone set of departed ids.
//
// Invariants linking the containers:
//   - the id index domain is exactly the set of resting orders;
//   - the index and the tombstone set are disjoint;
//   - every indexed handle dereferences to an order with that id.
//
// Book is not safe for concurrent use; the matching engine serializes
// access behind a readers-writer lock.
type Book struct {
	bids       Ladder
	asks       Ladder
	index      map[uuid.UUID]indexEntry
	tombstones *Tombstones
}

// NewBook creates an empty book. tombstoneCap bounds tombstone retention;
// <= 0 selects the default.
func NewBook(tombstoneCap int) *Book {
	return &Book{
		bids:       NewLadder(),
		asks:       NewLadder(),
		index:      make(map[uuid.UUID]indexEntry),
		tombstones: NewTombstones(tombstoneCap),
	}
}

// ladders maps an aggressor side to (ladder to match against, ladder to
// rest on). Matching and resting always select opposite ladders; keeping
// the selection in one place prevents matching against the wrong side.
func (b *Book) ladders(aggressor orders.Side) (match, rest *Ladder) {
	if aggressor == orders.SideBid {
		return &b.asks, &b.bids
	}
	return &b.bids, &b.asks
}

type fullMatch struct {
	id     uuid.UUID
	handle OrderHandle
}

type matchOutcome struct {
	remaining  uint32
	full       []fullMatch
	partial    *OrderHandle
	partialQty uint32 // resting order's quantity after the partial fill
	fills      []orders.Fill
}

// Place runs the matching algorithm for an incoming order and rests any
// unfilled remainder.
//
// The walk visits the opposite ladder in aggressor-favourable order
// (ascending asks for a bid, descending bids for an ask), stops at the
// first level whose price is unacceptable (strictly worse than the
// incoming price; equal prices cross), and consumes each level oldest
// first. Fills are collected in walk order; removals and the at-most-one
// partial-quantity update are applied afterwards, so the queue iterators
// are never invalidated mid-walk.
//
// The returned fills carry no sequence numbers; the engine stamps them
// under its write lock. The id is returned whether the order rested,
// matched entirely, or both.
func (b *Book) Place(side orders.Side, price, quantity uint32) (uuid.UUID, []orders.Fill, error) {
	if price == 0 || quantity == 0 {
		return uuid.Nil, nil, ErrRejected
	}

	incoming := orders.NewOrder(price, quantity)
	outcome := b.findMatches(incoming, side)

	match, rest := b.ladders(side)
	for _, fm := range outcome.full {
		if _, err := match.RemoveOrder(fm.handle); err != nil {
			panic(fmt.Sprintf("orderbook: fully matched order %s vanished mid-place: %v", fm.id, err))
		}
		delete(b.index, fm.id)
		b.tombstones.Add(fm.id)
	}
	if outcome.partial != nil {
		if err := match.UpdateOrderQuantity(*outcome.partial, outcome.partialQty); err != nil {
			panic(fmt.Sprintf("orderbook: partially matched order vanished mid-place: %v", err))
		}
	}

	if outcome.remaining > 0 {
		incoming.Quantity = outcome.remaining
		h := rest.InsertOrder(incoming)
		b.index[incoming.ID] = indexEntry{side: side, handle: h}
	} else {
		b.tombstones.Add(incoming.ID)
	}

	return incoming.ID, outcome.fills, nil
}

// findMatches walks the opposite ladder and computes, without mutating
// anything, the set of resting orders the incoming order consumes.
func (b *Book) findMatches(incoming orders.Order, aggressor orders.Side) matchOutcome {
	outcome := matchOutcome{remaining: incoming.Quantity}
	match, _ := b.ladders(aggressor)

	visit := func(slot int, pn *PriceNode) bool {
		// Strict comparison for rejection: an equal price crosses.
		if aggressor == orders.SideBid && pn.Price() > incoming.Price {
			return false
		}
		if aggressor == orders.SideAsk && pn.Price() < incoming.Price {
			return false
		}

		for h := pn.Front(); h != NilHandle; h = pn.Next(h) {
			resting := pn.Order(h)
			key := OrderHandle{priceSlot: slot, order: h}

			if resting.Quantity <= outcome.remaining {
				outcome.fills = append(outcome.fills, orders.Fill{
					AggressorSide: aggressor,
					AggressorID:   incoming.ID,
					RestingID:     resting.ID,
					Price:         resting.Price,
					Quantity:      resting.Quantity,
				})
				outcome.remaining -= resting.Quantity
				outcome.full = append(outcome.full, fullMatch{id: resting.ID, handle: key})
			} else {
				outcome.fills = append(outcome.fills, orders.Fill{
					AggressorSide: aggressor,
					AggressorID:   incoming.ID,
					RestingID:     resting.ID,
					Price:         resting.Price,
					Quantity:      outcome.remaining,
				})
				outcome.partial = &key
				outcome.partialQty = resting.Quantity - outcome.remaining
				outcome.remaining = 0
			}

			if outcome.remaining == 0 {
				return false
			}
		}
		return true
	}

	if aggressor == orders.SideBid {
		match.Ascend(visit)
	} else {
		match.Descend(visit)
	}
	return outcome
}

// Cancel removes the resting order with the given id.
//
// Returns nil on success, ErrAlreadyGone when the id is tombstoned
// (matched or cancelled earlier), and ErrUnknownOrder otherwise.
func (b *Book) Cancel(id uuid.UUID) error {
	if b.tombstones.Contains(id) {
		return ErrAlreadyGone
	}
	entry, ok := b.index[id]
	if !ok {
		return ErrUnknownOrder
	}

	ladder := &b.bids
	if entry.side == orders.SideAsk {
		ladder = &b.asks
	}
	if _, err := ladder.RemoveOrder(entry.handle); err != nil {
		panic(fmt.Sprintf("orderbook: indexed order %s missing from ladder: %v", id, err))
	}
	delete(b.index, id)
	b.tombstones.Add(id)
	return nil
}

// SnapshotL2 produces the aggregated Level-2 view: bids descending by
// price (best first), asks ascending (best first).
// Time complexity: O(P) over price levels.
func (b *Book) SnapshotL2() orders.L2Book {
	book := orders.L2Book{
		Bids: make([]orders.L2Entry, 0, b.bids.Len()),
		Asks: make([]orders.L2Entry, 0, b.asks.Len()),
	}
	b.bids.Descend(func(_ int, pn *PriceNode) bool {
		book.Bids = append(book.Bids, orders.L2Entry{
			Price:         pn.Price(),
			TotalQuantity: pn.TotalQuantity(),
			NumOrders:     pn.NumOrders(),
		})
		return true
	})
	b.asks.Ascend(func(_ int, pn *PriceNode) bool {
		book.Asks = append(book.Asks, orders.L2Entry{
			Price:         pn.Price(),
			TotalQuantity: pn.TotalQuantity(),
			NumOrders:     pn.NumOrders(),
		})
		return true
	})
	return book
}

// RestingOrders returns the number of orders currently on either ladder.
func (b *Book) RestingOrders() int {
	return len(b.index)
}

// BidLevels returns the number of distinct bid price levels.
func (b *Book) BidLevels() int {
	return b.bids.Len()
}

// AskLevels returns the number of distinct ask price levels.
func (b *Book) AskLevels() int {
	return b.asks.Len()
}
