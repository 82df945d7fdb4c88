package orderbook

import (
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rishav/order-book/internal/orders"
)

// checkInvariants verifies the cross-container invariants the book must
// preserve after every operation.
func checkInvariants(t *testing.T, b *Book) {
	t.Helper()

	resting := make(map[uuid.UUID]bool)
	walk := func(l *Ladder) {
		l.Ascend(func(_ int, pn *PriceNode) bool {
			require.Positive(t, pn.NumOrders(), "empty price node at %d", pn.Price())
			var sum uint32
			var count int
			for h := pn.Front(); h != NilHandle; h = pn.Next(h) {
				o := pn.Order(h)
				require.NotNil(t, o)
				require.Equal(t, pn.Price(), o.Price)
				require.Positive(t, o.Quantity)
				sum += o.Quantity
				count++
				resting[o.ID] = true
			}
			require.Equal(t, pn.TotalQuantity(), sum, "aggregate quantity at %d", pn.Price())
			require.Equal(t, pn.NumOrders(), count, "aggregate count at %d", pn.Price())
			return true
		})
	}
	walk(&b.bids)
	walk(&b.asks)

	// Index domain is exactly the resting set, and every entry
	// dereferences to an order with the matching id.
	require.Equal(t, len(resting), len(b.index))
	for id, entry := range b.index {
		require.True(t, resting[id], "indexed id %s not on a ladder", id)
		ladder := &b.bids
		if entry.side == orders.SideAsk {
			ladder = &b.asks
		}
		o := ladder.Order(entry.handle)
		require.NotNil(t, o, "index entry for %s is stale", id)
		require.Equal(t, id, o.ID)
		// The index and tombstones are disjoint.
		require.False(t, b.tombstones.Contains(id), "id %s both resting and tombstoned", id)
	}

	// Snapshot monotonicity and no crossed book.
	snap := b.SnapshotL2()
	for i := 1; i < len(snap.Bids); i++ {
		require.Greater(t, snap.Bids[i-1].Price, snap.Bids[i].Price)
	}
	for i := 1; i < len(snap.Asks); i++ {
		require.Less(t, snap.Asks[i-1].Price, snap.Asks[i].Price)
	}
	if len(snap.Bids) > 0 && len(snap.Asks) > 0 {
		require.Less(t, snap.Bids[0].Price, snap.Asks[0].Price, "crossed book after matching")
	}
}

func TestPlaceRestsOnEmptyBook(t *testing.T) {
	b := NewBook(0)

	id, fills, err := b.Place(orders.SideAsk, 100, 10)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, id)
	assert.Empty(t, fills)

	snap := b.SnapshotL2()
	assert.Empty(t, snap.Bids)
	require.Len(t, snap.Asks, 1)
	assert.Equal(t, orders.L2Entry{Price: 100, TotalQuantity: 10, NumOrders: 1}, snap.Asks[0])
	checkInvariants(t, b)
}

func TestFullCross(t *testing.T) {
	b := NewBook(0)
	askID, _, err := b.Place(orders.SideAsk, 100, 10)
	require.NoError(t, err)

	bidID, fills, err := b.Place(orders.SideBid, 100, 10)
	require.NoError(t, err)
	require.Len(t, fills, 1)
	assert.Equal(t, orders.SideBid, fills[0].AggressorSide)
	assert.Equal(t, bidID, fills[0].AggressorID)
	assert.Equal(t, askID, fills[0].RestingID)
	assert.Equal(t, uint32(100), fills[0].Price)
	assert.Equal(t, uint32(10), fills[0].Quantity)

	snap := b.SnapshotL2()
	assert.Empty(t, snap.Bids)
	assert.Empty(t, snap.Asks)

	// Both ids are tombstoned: the resting order matched away, the
	// aggressor never rested.
	assert.ErrorIs(t, b.Cancel(askID), ErrAlreadyGone)
	assert.ErrorIs(t, b.Cancel(bidID), ErrAlreadyGone)
	checkInvariants(t, b)
}

func TestPartialCrossRemainderRests(t *testing.T) {
	b := NewBook(0)
	askID, _, err := b.Place(orders.SideAsk, 100, 10)
	require.NoError(t, err)

	// Small bid partially consumes the ask.
	bidID, fills, err := b.Place(orders.SideBid, 100, 4)
	require.NoError(t, err)
	require.Len(t, fills, 1)
	assert.Equal(t, bidID, fills[0].AggressorID)
	assert.Equal(t, askID, fills[0].RestingID)
	assert.Equal(t, uint32(4), fills[0].Quantity)

	snap := b.SnapshotL2()
	assert.Empty(t, snap.Bids)
	require.Len(t, snap.Asks, 1)
	assert.Equal(t, orders.L2Entry{Price: 100, TotalQuantity: 6, NumOrders: 1}, snap.Asks[0])
	checkInvariants(t, b)

	// Larger bid consumes the rest and rests its remainder.
	bigBidID, fills, err := b.Place(orders.SideBid, 100, 10)
	require.NoError(t, err)
	require.Len(t, fills, 1)
	assert.Equal(t, askID, fills[0].RestingID)
	assert.Equal(t, uint32(6), fills[0].Quantity)

	snap = b.SnapshotL2()
	assert.Empty(t, snap.Asks)
	require.Len(t, snap.Bids, 1)
	assert.Equal(t, orders.L2Entry{Price: 100, TotalQuantity: 4, NumOrders: 1}, snap.Bids[0])

	// The remainder is cancellable; the consumed ask is gone.
	assert.ErrorIs(t, b.Cancel(askID), ErrAlreadyGone)
	require.NoError(t, b.Cancel(bigBidID))
	checkInvariants(t, b)
}

func TestPriceTimePriorityAcrossLevels(t *testing.T) {
	b := NewBook(0)
	aID, _, err := b.Place(orders.SideAsk, 100, 5)
	require.NoError(t, err)
	bID, _, err := b.Place(orders.SideAsk, 100, 5)
	require.NoError(t, err)
	cID, _, err := b.Place(orders.SideAsk, 101, 5)
	require.NoError(t, err)

	dID, fills, err := b.Place(orders.SideBid, 101, 8)
	require.NoError(t, err)
	require.Len(t, fills, 2)

	// Oldest order at the best price fills first and entirely.
	assert.Equal(t, aID, fills[0].RestingID)
	assert.Equal(t, uint32(100), fills[0].Price)
	assert.Equal(t, uint32(5), fills[0].Quantity)
	assert.Equal(t, dID, fills[0].AggressorID)

	// The second order at that price takes the remainder.
	assert.Equal(t, bID, fills[1].RestingID)
	assert.Equal(t, uint32(100), fills[1].Price)
	assert.Equal(t, uint32(3), fills[1].Quantity)

	snap := b.SnapshotL2()
	assert.Empty(t, snap.Bids)
	require.Len(t, snap.Asks, 2)
	assert.Equal(t, orders.L2Entry{Price: 100, TotalQuantity: 2, NumOrders: 1}, snap.Asks[0])
	assert.Equal(t, orders.L2Entry{Price: 101, TotalQuantity: 5, NumOrders: 1}, snap.Asks[1])

	// The untouched level is still cancellable.
	require.NoError(t, b.Cancel(cID))
	checkInvariants(t, b)
}

func TestWalkStopsAtUnacceptablePrice(t *testing.T) {
	b := NewBook(0)
	_, _, err := b.Place(orders.SideAsk, 101, 5)
	require.NoError(t, err)

	_, fills, err := b.Place(orders.SideBid, 100, 5)
	require.NoError(t, err)
	assert.Empty(t, fills)

	snap := b.SnapshotL2()
	require.Len(t, snap.Bids, 1)
	require.Len(t, snap.Asks, 1)
	assert.Equal(t, orders.L2Entry{Price: 100, TotalQuantity: 5, NumOrders: 1}, snap.Bids[0])
	assert.Equal(t, orders.L2Entry{Price: 101, TotalQuantity: 5, NumOrders: 1}, snap.Asks[0])
	checkInvariants(t, b)
}

func TestAskAggressorWalksBidsDescending(t *testing.T) {
	b := NewBook(0)
	lowID, _, err := b.Place(orders.SideBid, 98, 5)
	require.NoError(t, err)
	highID, _, err := b.Place(orders.SideBid, 100, 5)
	require.NoError(t, err)

	_, fills, err := b.Place(orders.SideAsk, 97, 8)
	require.NoError(t, err)
	require.Len(t, fills, 2)

	// Best (highest) bid first, then the lower one.
	assert.Equal(t, highID, fills[0].RestingID)
	assert.Equal(t, uint32(100), fills[0].Price)
	assert.Equal(t, uint32(5), fills[0].Quantity)
	assert.Equal(t, lowID, fills[1].RestingID)
	assert.Equal(t, uint32(98), fills[1].Price)
	assert.Equal(t, uint32(3), fills[1].Quantity)
	checkInvariants(t, b)
}

func TestPlaceRejectsZeroPriceOrQuantity(t *testing.T) {
	b := NewBook(0)

	_, _, err := b.Place(orders.SideBid, 0, 5)
	assert.ErrorIs(t, err, ErrRejected)
	_, _, err = b.Place(orders.SideBid, 10, 0)
	assert.ErrorIs(t, err, ErrRejected)

	// A rejected place does not alter state.
	snap := b.SnapshotL2()
	assert.Empty(t, snap.Bids)
	assert.Empty(t, snap.Asks)
	checkInvariants(t, b)
}

func TestCancelSemantics(t *testing.T) {
	b := NewBook(0)

	assert.ErrorIs(t, b.Cancel(uuid.New()), ErrUnknownOrder)

	id, _, err := b.Place(orders.SideBid, 50, 5)
	require.NoError(t, err)

	require.NoError(t, b.Cancel(id))
	assert.ErrorIs(t, b.Cancel(id), ErrAlreadyGone)

	snap := b.SnapshotL2()
	assert.Empty(t, snap.Bids)
	checkInvariants(t, b)
}

func TestMatchSpansManyOrdersAndLevels(t *testing.T) {
	b := NewBook(0)
	for _, o := range []struct {
		price, qty uint32
	}{{100, 2}, {100, 3}, {101, 4}, {102, 5}} {
		_, _, err := b.Place(orders.SideAsk, o.price, o.qty)
		require.NoError(t, err)
	}

	// Consumes 100/2, 100/3, 101/4 and part of 102/5, then rests nothing.
	_, fills, err := b.Place(orders.SideBid, 102, 12)
	require.NoError(t, err)
	require.Len(t, fills, 4)

	var traded uint32
	for _, f := range fills {
		traded += f.Quantity
	}
	assert.Equal(t, uint32(12), traded)
	assert.Equal(t, uint32(3), fills[3].Quantity) // partial on the last ask

	snap := b.SnapshotL2()
	assert.Empty(t, snap.Bids)
	require.Len(t, snap.Asks, 1)
	assert.Equal(t, orders.L2Entry{Price: 102, TotalQuantity: 2, NumOrders: 1}, snap.Asks[0])
	checkInvariants(t, b)
}

// TestRandomisedInvariants drives the book with a random request stream
// and verifies the §8-style properties after every operation.
func TestRandomisedInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	b := NewBook(0)

	var known []uuid.UUID
	for i := 0; i < 3000; i++ {
		switch {
		case rng.Intn(5) == 0 && len(known) > 0:
			id := known[rng.Intn(len(known))]
			err := b.Cancel(id)
			if err != nil {
				assert.ErrorIs(t, err, ErrAlreadyGone)
			}
		case rng.Intn(50) == 0:
			assert.ErrorIs(t, b.Cancel(uuid.New()), ErrUnknownOrder)
		default:
			side := orders.SideBid
			if rng.Intn(2) == 0 {
				side = orders.SideAsk
			}
			price := uint32(rng.Intn(20) + 90)
			qty := uint32(rng.Intn(50) + 1)

			id, fills, err := b.Place(side, price, qty)
			require.NoError(t, err)
			known = append(known, id)

			// Conservation: traded + rested = incoming.
			var traded uint32
			for _, f := range fills {
				traded += f.Quantity
			}
			require.LessOrEqual(t, traded, qty)
			if entry, resting := b.index[id]; resting {
				ladder := &b.bids
				if entry.side == orders.SideAsk {
					ladder = &b.asks
				}
				require.Equal(t, qty-traded, ladder.Order(entry.handle).Quantity)
			} else {
				require.Equal(t, qty, traded)
			}

			// Price-time priority: the fill trace is monotone in price
			// preference for the aggressor.
			for j := 1; j < len(fills); j++ {
				if side == orders.SideBid {
					require.GreaterOrEqual(t, fills[j].Price, fills[j-1].Price)
				} else {
					require.LessOrEqual(t, fills[j].Price, fills[j-1].Price)
				}
			}
			// Every fill price is acceptable to the aggressor.
			for _, f := range fills {
				if side == orders.SideBid {
					require.LessOrEqual(t, f.Price, price)
				} else {
					require.GreaterOrEqual(t, f.Price, price)
				}
			}
		}

		if i%50 == 0 {
			checkInvariants(t, b)
		}
	}
	checkInvariants(t, b)
}

func TestTombstoneEvictionDegradesToUnknown(t *testing.T) {
	b := NewBook(4)

	var ids []uuid.UUID
	for i := 0; i < 6; i++ {
		id, _, err := b.Place(orders.SideBid, uint32(10+i), 1)
		require.NoError(t, err)
		require.NoError(t, b.Cancel(id))
		ids = append(ids, id)
	}

	// The two oldest tombstones were evicted.
	assert.ErrorIs(t, b.Cancel(ids[0]), ErrUnknownOrder)
	assert.ErrorIs(t, b.Cancel(ids[1]), ErrUnknownOrder)
	assert.ErrorIs(t, b.Cancel(ids[5]), ErrAlreadyGone)
}
