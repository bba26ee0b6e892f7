// Package metrics exposes the runtime's Prometheus counters and gauges,
// registered in init() on the default Prometheus registry (no HTTP handler
// in this repository exposes it), following the same
// naming/registration convention as chidi150c-coinbase's metrics.go:
// *_total counters labeled by outcome, plain gauges for point-in-time
// state, and small exported helper functions instead of exposing the raw
// prometheus handles.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	SignalsEmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradecore_signals_emitted_total",
			Help: "Signals emitted by strategies, labeled by strategy and type.",
		},
		[]string{"strategy", "type"},
	)

	RouterAdmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradecore_router_admissions_total",
			Help: "Router admission outcomes, labeled by result (admitted|rejected) and reason.",
		},
		[]string{"result", "reason"},
	)

	ExecutionFillsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradecore_execution_fills_total",
			Help: "Orders filled, labeled by platform and side.",
		},
		[]string{"platform", "side"},
	)

	ExecutionSlippageBps = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tradecore_execution_slippage_bps",
			Help: "Most recent fill slippage in basis points, labeled by platform.",
		},
		[]string{"platform"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tradecore_circuit_breaker_state",
			Help: "Circuit breaker state per platform: 0=closed, 1=half_open, 2=open.",
		},
		[]string{"platform"},
	)

	OpenPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tradecore_open_positions",
			Help: "Current number of open positions.",
		},
	)

	PortfolioValueUSD = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tradecore_portfolio_value_usd",
			Help: "Current portfolio value (free cash plus position notional).",
		},
	)

	PositionClosesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradecore_position_closes_total",
			Help: "Position closes, labeled by kind (sweep for a full close, tp_ladder for a partial take-profit rung).",
		},
		[]string{"reason"},
	)

	MarketMakingQuotesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradecore_mm_quotes_total",
			Help: "Market-making quote ladders generated, labeled by market.",
		},
		[]string{"market"},
	)

	MarketMakingHaltedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradecore_mm_halted_total",
			Help: "Market-making halt events, labeled by reason.",
		},
		[]string{"reason"},
	)

	BacktestRunsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tradecore_backtest_runs_total",
			Help: "Number of backtest runs completed.",
		},
	)

	BacktestFinalEquityUSD = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tradecore_backtest_final_equity_usd",
			Help: "Final equity of the most recently completed backtest run.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		SignalsEmittedTotal,
		RouterAdmissionsTotal,
		ExecutionFillsTotal,
		ExecutionSlippageBps,
		CircuitBreakerState,
		OpenPositions,
		PortfolioValueUSD,
		PositionClosesTotal,
		MarketMakingQuotesTotal,
		MarketMakingHaltedTotal,
		BacktestRunsTotal,
		BacktestFinalEquityUSD,
	)
}

// RecordSignal increments the per-strategy signal counter.
func RecordSignal(strategyName, signalType string) {
	SignalsEmittedTotal.WithLabelValues(strategyName, signalType).Inc()
}

// RecordAdmission increments the router admission counter. reason is empty
// for admitted signals.
func RecordAdmission(admitted bool, reason string) {
	result := "admitted"
	if !admitted {
		result = "rejected"
	}
	RouterAdmissionsTotal.WithLabelValues(result, reason).Inc()
}

// RecordFill increments the fill counter and sets the slippage gauge for a
// platform.
func RecordFill(platform, side string, slippageBps float64) {
	ExecutionFillsTotal.WithLabelValues(platform, side).Inc()
	ExecutionSlippageBps.WithLabelValues(platform).Set(slippageBps)
}

// SetCircuitBreakerState encodes a circuit breaker state string into the
// gauge's numeric convention.
func SetCircuitBreakerState(platform, state string) {
	var v float64
	switch state {
	case "half_open":
		v = 1
	case "open":
		v = 2
	}
	CircuitBreakerState.WithLabelValues(platform).Set(v)
}

// RecordPositionClose increments the close-reason counter.
func RecordPositionClose(reason string) {
	PositionClosesTotal.WithLabelValues(reason).Inc()
}

// RecordMarketMakingQuote increments the per-market quote counter.
func RecordMarketMakingQuote(market string) {
	MarketMakingQuotesTotal.WithLabelValues(market).Inc()
}

// RecordMarketMakingHalt increments the per-reason halt counter.
func RecordMarketMakingHalt(reason string) {
	MarketMakingHaltedTotal.WithLabelValues(reason).Inc()
}

// RecordBacktestRun increments the backtest-run counter and sets the final
// equity gauge.
func RecordBacktestRun(finalEquityUSD float64) {
	BacktestRunsTotal.Inc()
	BacktestFinalEquityUSD.Set(finalEquityUSD)
}
