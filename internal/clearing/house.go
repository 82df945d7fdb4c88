package clearing

import (
	"sync"

	"github.com/rishav/order-book/internal/orders"
)

// House is a thin in-memory clearing sink: it tallies the trades routed to
// it and exposes the running totals for the admin surface. Durable
// settlement is downstream; the house only records.
type House struct {
	mu           sync.RWMutex
	trades       uint64
	volume       uint64
	lastPrice    uint32
	lastSeq      uint64
	volumeBySide [2]uint64 // indexed by aggressor side
}

// NewHouse creates an empty clearing house.
func NewHouse() *House {
	return &House{}
}

// Report implements FillReporter.
func (h *House) Report(fill orders.Fill) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.trades++
	h.volume += uint64(fill.Quantity)
	h.lastPrice = fill.Price
	h.lastSeq = fill.Seq
	h.volumeBySide[fill.AggressorSide] += uint64(fill.Quantity)
}

// Stats is a read-side snapshot of the house tallies.
type Stats struct {
	Trades        uint64 `json:"trades"`
	Volume        uint64 `json:"volume"`
	LastPrice     uint32 `json:"last_price"`
	LastSeq       uint64 `json:"last_seq"`
	BidTakeVolume uint64 `json:"bid_take_volume"`
	AskTakeVolume uint64 `json:"ask_take_volume"`
}

// Stats returns the current tallies.
func (h *House) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return Stats{
		Trades:        h.trades,
		Volume:        h.volume,
		LastPrice:     h.lastPrice,
		LastSeq:       h.lastSeq,
		BidTakeVolume: h.volumeBySide[orders.SideBid],
		AskTakeVolume: h.volumeBySide[orders.SideAsk],
	}
}
