package orderbook

import (
	"errors"

	"github.com/google/btree"

	"github.com/rishav/order-book/internal/orders"
)

// ErrNotFound is returned by ladder operations when a handle no longer
// refers to a live order.
var ErrNotFound = errors.New("order not found")

// PriceNode owns the time-ordered queue of resting orders at one price,
// plus running aggregates over that queue.
//
// Invariants: TotalQuantity equals the sum of remaining quantities over
// the queue, NumOrders equals the queue length, and the queue is never
// empty while the node exists. A node is created with its first order and
// destroyed with its last.
type PriceNode struct {
	price         uint32
	queue         Queue[orders.Order]
	totalQuantity uint32
}

// Price returns the node's price.
func (pn *PriceNode) Price() uint32 {
	return pn.price
}

// TotalQuantity returns the sum of remaining quantities at this price.
func (pn *PriceNode) TotalQuantity() uint32 {
	return pn.totalQuantity
}

// NumOrders returns the number of resting orders at this price.
func (pn *PriceNode) NumOrders() int {
	return pn.queue.Len()
}

// Front returns the handle of the oldest resting order.
func (pn *PriceNode) Front() Handle {
	return pn.queue.Front()
}

// Next returns the handle after h in time-priority order.
func (pn *PriceNode) Next(h Handle) Handle {
	return pn.queue.Next(h)
}

// Order returns the order at h within this node, or nil when h is stale.
func (pn *PriceNode) Order(h Handle) *orders.Order {
	return pn.queue.Get(h)
}

// OrderHandle is the opaque composite handle to a resting order: the
// price-node's slot in the ladder plus the order's handle in that node's
// queue. It is valid from insertion until the order is removed and must
// not be used afterwards.
type OrderHandle struct {
	priceSlot int
	order     Handle
}

// priceRef is the ladder's ordered-index entry: price → price-node slot.
type priceRef struct {
	price uint32
	slot  int
}

// Ladder is the ordered mapping price → price-node for one side of the
// book. The B-tree orders prices; price-nodes live in a slab arena so the
// composite handles stay stable across arbitrary mid-ladder mutation.
type Ladder struct {
	index *btree.BTreeG[priceRef]
	nodes arena[PriceNode]
}

const ladderDegree = 16

// NewLadder creates an empty ladder.
func NewLadder() Ladder {
	return Ladder{
		index: btree.NewG(ladderDegree, func(a, b priceRef) bool {
			return a.price < b.price
		}),
		nodes: newArena[PriceNode](),
	}
}

// InsertOrder appends o to the queue at o.Price, creating the price-node
// when this is the first order at that price. Returns the composite
// handle.
// Time complexity: O(log P) for a new price, O(log P) lookup otherwise.
func (l *Ladder) InsertOrder(o orders.Order) OrderHandle {
	if ref, ok := l.index.Get(priceRef{price: o.Price}); ok {
		pn := l.nodes.get(ref.slot)
		pn.totalQuantity += o.Quantity
		h := pn.queue.PushBack(o)
		return OrderHandle{priceSlot: ref.slot, order: h}
	}

	pn := PriceNode{price: o.Price, queue: NewQueue[orders.Order](), totalQuantity: o.Quantity}
	h := pn.queue.PushBack(o)
	slot := l.nodes.alloc(pn)
	l.index.ReplaceOrInsert(priceRef{price: o.Price, slot: slot})
	return OrderHandle{priceSlot: slot, order: h}
}

// RemoveOrder removes the order at h, decrements the node's aggregates,
// and destroys the node when its queue becomes empty. Returns the removed
// order, or ErrNotFound when either sub-handle is no longer live.
// Time complexity: O(1), plus O(log P) when the price level empties.
func (l *Ladder) RemoveOrder(h OrderHandle) (orders.Order, error) {
	pn := l.nodes.get(h.priceSlot)
	if pn == nil {
		return orders.Order{}, ErrNotFound
	}
	o, ok := pn.queue.Remove(h.order)
	if !ok {
		return orders.Order{}, ErrNotFound
	}
	if pn.queue.IsEmpty() {
		price := pn.price
		l.nodes.release(h.priceSlot)
		l.index.Delete(priceRef{price: price})
	} else {
		pn.totalQuantity -= o.Quantity
	}
	return o, nil
}

// UpdateOrderQuantity reduces the quantity of the order at h to newQty and
// adjusts the node's aggregate by the same delta. Quantity is only ever
// reduced by matching: the precondition is 0 < newQty < current, and a
// caller asking to grow an order is a bug.
func (l *Ladder) UpdateOrderQuantity(h OrderHandle, newQty uint32) error {
	pn := l.nodes.get(h.priceSlot)
	if pn == nil {
		return ErrNotFound
	}
	o := pn.queue.Get(h.order)
	if o == nil {
		return ErrNotFound
	}
	if newQty == 0 || newQty >= o.Quantity {
		panic("orderbook: quantity update must strictly reduce a positive quantity")
	}
	pn.totalQuantity -= o.Quantity - newQty
	o.Quantity = newQty
	return nil
}

// Order returns the order at h, or nil when h is stale. The pointer is
// valid until the next ladder mutation.
func (l *Ladder) Order(h OrderHandle) *orders.Order {
	pn := l.nodes.get(h.priceSlot)
	if pn == nil {
		return nil
	}
	return pn.queue.Get(h.order)
}

// Ascend walks price-nodes in ascending price order, stopping early when
// fn returns false.
func (l *Ladder) Ascend(fn func(slot int, pn *PriceNode) bool) {
	l.index.Ascend(func(ref priceRef) bool {
		return fn(ref.slot, l.nodes.get(ref.slot))
	})
}

// Descend walks price-nodes in descending price order.
func (l *Ladder) Descend(fn func(slot int, pn *PriceNode) bool) {
	l.index.Descend(func(ref priceRef) bool {
		return fn(ref.slot, l.nodes.get(ref.slot))
	})
}

// Len returns the number of price levels.
func (l *Ladder) Len() int {
	return l.index.Len()
}
