// Package metrics exposes Prometheus instrumentation for the trading engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	orderTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "breakout_order_total",
			Help: "Total number of orders placed",
		},
		[]string{"mode", "side", "status"},
	)

	orderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "breakout_order_duration_seconds",
			Help:    "Order placement latency in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
		},
		[]string{"mode", "side"},
	)

	entryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "breakout_entry_total",
			Help: "Total number of breakout entries",
		},
		[]string{"kind"},
	)

	exitTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "breakout_exit_total",
			Help: "Total number of closed trades by exit reason",
		},
		[]string{"reason"},
	)

	pnlRealized = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "breakout_pnl_realized",
			Help: "Realized P&L for the session in INR",
		},
	)

	pnlUnrealized = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "breakout_pnl_unrealized",
			Help: "Unrealized P&L of open positions in INR",
		},
	)

	openPositions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "breakout_open_positions",
			Help: "Number of open positions",
		},
	)

	tickTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "breakout_tick_total",
			Help: "Total number of monitor ticks processed",
		},
	)

	tickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "breakout_tick_duration_seconds",
			Help:    "Tick processing duration in seconds including the price fetch",
			Buckets: prometheus.DefBuckets,
		},
	)

	quoteUnavailableTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "breakout_quote_unavailable_total",
			Help: "Instruments skipped because no usable quote was available",
		},
	)

	apiCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "breakout_api_call_duration_seconds",
			Help:    "Broker API call duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
		},
		[]string{"endpoint", "status"},
	)

	monitorState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "breakout_monitor_state",
			Help: "Current monitor state (1 for the active state)",
		},
		[]string{"state"},
	)

	publishDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "breakout_publish_dropped_total",
			Help: "Snapshots dropped because a subscriber was slow",
		},
	)

	websocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "breakout_websocket_clients",
			Help: "Connected WebSocket clients",
		},
	)
)

func status(err error) string {
	if err != nil {
		return "failed"
	}
	return "success"
}

// RecordOrder counts an order attempt and its latency.
func RecordOrder(mode, side string, duration time.Duration, err error) {
	orderTotal.WithLabelValues(mode, side, status(err)).Inc()
	orderDuration.WithLabelValues(mode, side).Observe(duration.Seconds())
}

// RecordEntry counts a breakout entry.
func RecordEntry(kind string) {
	entryTotal.WithLabelValues(kind).Inc()
}

// RecordExit counts a closed trade.
func RecordExit(reason string) {
	exitTotal.WithLabelValues(reason).Inc()
}

// SetPnL updates the session P&L gauges.
func SetPnL(realized, unrealized float64, open int) {
	pnlRealized.Set(realized)
	pnlUnrealized.Set(unrealized)
	openPositions.Set(float64(open))
}

// RecordTick counts a processed tick.
func RecordTick(duration time.Duration, unavailable int) {
	tickTotal.Inc()
	tickDuration.Observe(duration.Seconds())
	quoteUnavailableTotal.Add(float64(unavailable))
}

// RecordAPICall records a broker API call.
func RecordAPICall(endpoint string, duration time.Duration, err error) {
	apiCallDuration.WithLabelValues(endpoint, status(err)).Observe(duration.Seconds())
}

// SetMonitorState marks state as the active monitor state.
func SetMonitorState(state string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		monitorState.WithLabelValues(s).Set(v)
	}
}

// RecordPublishDropped counts a snapshot dropped for a slow subscriber.
func RecordPublishDropped() {
	publishDroppedTotal.Inc()
}

// SetWebSocketClients sets the connected client gauge.
func SetWebSocketClients(n int) {
	websocketClients.Set(float64(n))
}
