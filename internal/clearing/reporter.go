// Package clearing provides the fill sinks fed by the matching engine.
//
// The engine pushes one fill record per match, in walk order, and treats
// the sink as a side-effectful call that must not fail: implementations
// buffer or drop at their own discretion and never propagate errors back.
// Routing fills onward (durable settlement, a downstream clearing
// service) is this package's concern, not the engine's.
package clearing

import (
	"github.com/rs/zerolog"

	"github.com/rishav/order-book/internal/orders"
)

// FillReporter consumes fill records as matching progresses. Report is
// called under the engine's write lock and must return promptly.
type FillReporter interface {
	Report(fill orders.Fill)
}

// Nop discards every fill.
type Nop struct{}

// Report implements FillReporter.
func (Nop) Report(orders.Fill) {}

// LogReporter writes one structured log event per fill.
type LogReporter struct {
	log zerolog.Logger
}

// NewLogReporter creates a reporter logging at info level on log.
func NewLogReporter(log zerolog.Logger) *LogReporter {
	return &LogReporter{log: log}
}

// Report implements FillReporter.
func (r *LogReporter) Report(fill orders.Fill) {
	r.log.Info().
		Uint64("seq", fill.Seq).
		Str("aggressor_side", fill.AggressorSide.String()).
		Str("aggressor_id", fill.AggressorID.String()).
		Str("resting_id", fill.RestingID.String()).
		Uint32("price", fill.Price).
		Uint32("quantity", fill.Quantity).
		Msg("fill")
}

// Multi fans a fill out to several reporters in order.
type Multi []FillReporter

// Report implements FillReporter.
func (m Multi) Report(fill orders.Fill) {
	for _, r := range m {
		r.Report(fill)
	}
}
