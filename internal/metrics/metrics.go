// Package metrics exposes the engine's prometheus collector.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	collector     *Collector
	collectorOnce sync.Once
)

// Collector holds the engine metrics.
type Collector struct {
	OrdersTotal       *prometheus.CounterVec
	CancelsTotal      *prometheus.CounterVec
	TradesTotal       prometheus.Counter
	TradedVolume      prometheus.Counter
	RestingOrders     prometheus.Gauge
	PriceLevels       *prometheus.GaugeVec
	ConnectionsActive prometheus.Gauge
	RequestDuration   *prometheus.HistogramVec
}

// GetCollector returns the process-wide collector, registering it on
// first use.
func GetCollector() *Collector {
	collectorOnce.Do(func() {
		collector = newCollector()
	})
	return collector
}

func newCollector() *Collector {
	c := &Collector{}

	c.OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "orderbook",
			Subsystem: "orders",
			Name:      "total",
			Help:      "Orders submitted, by side and outcome.",
		},
		[]string{"side", "outcome"},
	)

	c.CancelsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "orderbook",
			Subsystem: "orders",
			Name:      "cancels_total",
			Help:      "Cancel requests, by outcome.",
		},
		[]string{"outcome"},
	)

	c.TradesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "orderbook",
			Subsystem: "trades",
			Name:      "total",
			Help:      "Fills generated by the matching engine.",
		},
	)

	c.TradedVolume = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "orderbook",
			Subsystem: "trades",
			Name:      "volume_total",
			Help:      "Total traded quantity.",
		},
	)

	c.RestingOrders = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "orderbook",
			Subsystem: "book",
			Name:      "resting_orders",
			Help:      "Orders currently resting on either ladder.",
		},
	)

	c.PriceLevels = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "orderbook",
			Subsystem: "book",
			Name:      "price_levels",
			Help:      "Distinct price levels per side.",
		},
		[]string{"side"},
	)

	c.ConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "orderbook",
			Subsystem: "server",
			Name:      "connections_active",
			Help:      "Open client connections.",
		},
	)

	c.RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "orderbook",
			Subsystem: "server",
			Name:      "request_duration_seconds",
			Help:      "Request handling latency, by operation.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 12),
		},
		[]string{"op"},
	)

	prometheus.MustRegister(
		c.OrdersTotal,
		c.CancelsTotal,
		c.TradesTotal,
		c.TradedVolume,
		c.RestingOrders,
		c.PriceLevels,
		c.ConnectionsActive,
		c.RequestDuration,
	)
	return c
}

// Handler returns the scrape endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
