package clearing

import (
	"sync"
	"sync/atomic"

	"github.com/rishav/order-book/internal/orders"
)

// Buffered decouples the engine's synchronous Report call from a slow
// sink. Fills land in a fixed-capacity buffer and a single drain
// goroutine forwards them in order; when the buffer is full the fill is
// dropped and counted rather than blocking the matching path.
type Buffered struct {
	next    FillReporter
	ch      chan orders.Fill
	dropped atomic.Uint64
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

// NewBuffered wraps next with a buffer of the given capacity and starts
// the drain goroutine. capacity <= 0 selects 4096.
func NewBuffered(next FillReporter, capacity int) *Buffered {
	if capacity <= 0 {
		capacity = 4096
	}
	b := &Buffered{
		next: next,
		ch:   make(chan orders.Fill, capacity),
		done: make(chan struct{}),
	}
	b.wg.Add(1)
	go b.drain()
	return b
}

// Report implements FillReporter. Never blocks: a full buffer drops the
// fill and increments the drop counter.
func (b *Buffered) Report(fill orders.Fill) {
	select {
	case b.ch <- fill:
	default:
		b.dropped.Add(1)
	}
}

func (b *Buffered) drain() {
	defer b.wg.Done()
	for {
		select {
		case fill := <-b.ch:
			b.next.Report(fill)
		case <-b.done:
			// Forward whatever is still buffered before exiting.
			for {
				select {
				case fill := <-b.ch:
					b.next.Report(fill)
				default:
					return
				}
			}
		}
	}
}

// Dropped returns the number of fills discarded because the buffer was
// full.
func (b *Buffered) Dropped() uint64 {
	return b.dropped.Load()
}

// Close stops the drain goroutine after flushing the buffer.
func (b *Buffered) Close() {
	b.once.Do(func() {
		close(b.done)
	})
	b.wg.Wait()
}
