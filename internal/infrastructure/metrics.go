package infrastructure

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DataFetchLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "data_fetch_latency_seconds",
		Help: "Latency of upstream market data calls",
	}, []string{"exchange", "service"})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "data_cache_hits_total",
		Help: "Total cache hits by service",
	}, []string{"service"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "data_cache_misses_total",
		Help: "Total cache misses by service",
	}, []string{"service"})

	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
	}, []string{"service"})

	TicksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_ticks_total",
		Help: "Total bars processed by the execution engine",
	}, []string{"mode"})

	TradesExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_trades_total",
		Help: "Total trades executed",
	}, []string{"symbol", "action"})

	RiskEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_risk_events_total",
		Help: "Risk rule triggers by rule name",
	}, []string{"rule"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ws_connections_total",
		Help: "Total number of active WebSocket connections",
	})
)
