// Package metrics provides Prometheus instrumentation for the margin engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PositionsOpened counts successful opens, partitioned by kind
	// ("new" or "merge").
	PositionsOpened = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "margind_positions_opened_total",
		Help: "Successful position opens",
	}, []string{"kind"})

	// PositionsClosed counts voluntary closes, partitioned by outcome
	// ("profit" or "loss").
	PositionsClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "margind_positions_closed_total",
		Help: "Successful position closes",
	}, []string{"outcome"})

	// PositionsLiquidated counts forced closes by keepers.
	PositionsLiquidated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "margind_positions_liquidated_total",
		Help: "Positions forcibly closed by liquidation",
	})

	// OpsRejected counts aborted calls by operation and failure kind.
	OpsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "margind_ops_rejected_total",
		Help: "Engine calls aborted by a failed precondition",
	}, []string{"op", "reason"})

	// PoolBalance tracks the current pooled settlement-asset balance.
	PoolBalance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "margind_pool_balance",
		Help: "Current liquidity pool balance",
	})

	// OraclePrice tracks the last committed oracle price.
	OraclePrice = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "margind_oracle_price",
		Help: "Last committed oracle price (1e6 fixed-point)",
	})

	// WebSocketClients tracks connected event-stream subscribers.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "margind_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
