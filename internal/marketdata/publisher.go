// Package marketdata distributes trade reports and L2 snapshots to
// subscribers. Publishing is non-blocking: a slow subscriber loses
// updates rather than slowing the request path.
package marketdata

import (
	"sync"

	"github.com/rishav/order-book/internal/orders"
)

// TradeReport is the public view of an execution.
type TradeReport struct {
	Seq           uint64 `json:"seq"`
	Price         uint32 `json:"price"`
	Quantity      uint32 `json:"quantity"`
	AggressorSide string `json:"aggressor_side"`
	Timestamp     int64  `json:"timestamp"`
}

// Publisher fans trade reports and L2 snapshots out to channel
// subscribers.
type Publisher struct {
	mu         sync.RWMutex
	tradeSubs  []chan TradeReport
	l2Subs     []chan orders.L2Book
	bufferSize int
	closed     bool
}

// NewPublisher creates a publisher whose subscriber channels buffer
// bufferSize updates. bufferSize <= 0 selects 100.
func NewPublisher(bufferSize int) *Publisher {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &Publisher{bufferSize: bufferSize}
}

// SubscribeTrades returns a channel receiving every published trade.
func (p *Publisher) SubscribeTrades() <-chan TradeReport {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch := make(chan TradeReport, p.bufferSize)
	if p.closed {
		close(ch)
		return ch
	}
	p.tradeSubs = append(p.tradeSubs, ch)
	return ch
}

// SubscribeL2 returns a channel receiving book snapshots.
func (p *Publisher) SubscribeL2() <-chan orders.L2Book {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch := make(chan orders.L2Book, p.bufferSize)
	if p.closed {
		close(ch)
		return ch
	}
	p.l2Subs = append(p.l2Subs, ch)
	return ch
}

// PublishTrade sends a trade report to subscribers.
// Non-blocking: drops the update for any subscriber whose channel is full.
func (p *Publisher) PublishTrade(trade TradeReport) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	for _, ch := range p.tradeSubs {
		select {
		case ch <- trade:
		default:
			// Subscriber is slow; drop.
		}
	}
}

// PublishL2 sends a book snapshot to subscribers.
func (p *Publisher) PublishL2(book orders.L2Book) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	for _, ch := range p.l2Subs {
		select {
		case ch <- book:
		default:
		}
	}
}

// Close closes all subscriber channels. Further publishes are no-ops and
// further subscriptions return closed channels.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for _, ch := range p.tradeSubs {
		close(ch)
	}
	for _, ch := range p.l2Subs {
		close(ch)
	}
	p.tradeSubs = nil
	p.l2Subs = nil
}
