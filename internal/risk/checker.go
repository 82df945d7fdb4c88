// Package risk implements optional pre-trade caps.
//
// Checks run before an order reaches the engine; they protect against fat
// finger errors without touching book state. Both caps are disabled when
// zero, so an unconfigured server accepts everything the engine would.
package risk

import (
	"fmt"

	"github.com/rishav/order-book/internal/orders"
)

// Config configures the checker. Zero values disable a check.
type Config struct {
	// MaxOrderQty caps the quantity of a single order.
	MaxOrderQty uint32 `json:"max_order_qty"`

	// MaxOrderNotional caps price×quantity of a single order.
	MaxOrderNotional uint64 `json:"max_order_notional"`
}

// Checker performs pre-trade checks.
type Checker struct {
	cfg Config
}

// NewChecker creates a checker.
func NewChecker(cfg Config) *Checker {
	return &Checker{cfg: cfg}
}

// Check returns nil when the order passes every configured cap, or a
// descriptive error for the first cap it violates.
func (c *Checker) Check(side orders.Side, price, quantity uint32) error {
	if c.cfg.MaxOrderQty > 0 && quantity > c.cfg.MaxOrderQty {
		return fmt.Errorf("%s quantity %d exceeds cap %d", side, quantity, c.cfg.MaxOrderQty)
	}
	if c.cfg.MaxOrderNotional > 0 {
		notional := uint64(price) * uint64(quantity)
		if notional > c.cfg.MaxOrderNotional {
			return fmt.Errorf("%s notional %d exceeds cap %d", side, notional, c.cfg.MaxOrderNotional)
		}
	}
	return nil
}
