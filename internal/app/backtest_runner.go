package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/teamnova/tradecore/internal/backtest"
	"github.com/teamnova/tradecore/internal/domain"
	"github.com/teamnova/tradecore/internal/metrics"
	"github.com/teamnova/tradecore/internal/strategy"
)

// tradeFeedStrategy replays a recorded domain.Trade history into an
// event-driven Strategy (wrapped as an EventToPolling) one trade per tick,
// so the same arb/flash-crash/mean-reversion strategies TradeMode runs live
// can also be driven deterministically by backtest.Engine.
type tradeFeedStrategy struct {
	inner  *strategy.EventToPolling
	trades []domain.Trade
	idx    int
}

func (t *tradeFeedStrategy) Name() string { return t.inner.Name() }

func (t *tradeFeedStrategy) Init(ctx context.Context) error { return t.inner.Init(ctx) }

func (t *tradeFeedStrategy) Evaluate(ctx context.Context, sc *strategy.StrategyContext) ([]strategy.Signal, error) {
	if t.idx < len(t.trades) {
		if err := t.inner.FeedTrade(ctx, t.trades[t.idx]); err != nil {
			return nil, err
		}
		t.idx++
	}
	return t.inner.Evaluate(ctx, sc)
}

// BacktestMode replays a market's recorded trade history through the
// configured strategy using internal/backtest.Engine, logs the resulting
// performance metrics, and runs a Monte Carlo resample over the realized
// trade sequence when MonteCarloRuns > 0.
func (a *App) BacktestMode(ctx context.Context, deps *Dependencies) error {
	if deps.TradeStore == nil {
		return fmt.Errorf("backtest mode: trade store not configured")
	}
	if a.cfg.Backtest.MarketID == "" {
		return fmt.Errorf("backtest mode: backtest.market_id is required")
	}

	history, err := deps.TradeStore.ListByMarket(ctx, a.cfg.Backtest.MarketID, domain.ListOpts{Limit: 100000})
	if err != nil {
		return fmt.Errorf("backtest mode: load trade history: %w", err)
	}
	if len(history) < 2 {
		return fmt.Errorf("backtest mode: market %q has insufficient trade history (%d trades)", a.cfg.Backtest.MarketID, len(history))
	}

	sd := a.buildStrategyDeps(deps)
	reg := a.newStrategyRegistry(deps, sd)
	strategyName := a.cfg.Backtest.StrategyName
	if strategyName == "" {
		strategyName = a.cfg.Strategy.Name
	}
	strat, err := reg.Get(strategyName)
	if err != nil {
		return fmt.Errorf("backtest mode: %w", err)
	}
	if err := strat.Init(ctx); err != nil {
		return fmt.Errorf("backtest mode: strategy init: %w", err)
	}

	ticks := make([]domain.Tick, len(history))
	prev := history[0].Price
	for i, tr := range history {
		ticks[i] = domain.Tick{Time: tr.Timestamp, Price: tr.Price, PrevPrice: prev}
		prev = tr.Price
	}

	feeder := &tradeFeedStrategy{inner: strategy.NewEventToPolling(strat), trades: history}

	cfg := backtest.Config{
		InitialCashUSD: decimal.NewFromFloat(a.cfg.Backtest.InitialCashUSD),
		CommissionBps:  a.cfg.Backtest.CommissionBps,
		SlippageBps:    a.cfg.Backtest.SlippageBps,
		AllowShort:     a.cfg.Backtest.AllowShort,
	}
	engine := backtest.New(cfg, feeder)
	result, err := engine.Run(ctx, ticks)
	if err != nil {
		return fmt.Errorf("backtest mode: run: %w", err)
	}

	finalEquity, _ := result.Metrics.FinalEquity.Float64()
	metrics.RecordBacktestRun(finalEquity)
	a.logger.InfoContext(ctx, "backtest complete",
		slog.String("market_id", a.cfg.Backtest.MarketID),
		slog.String("strategy", strategyName),
		slog.Int("ticks", len(ticks)),
		slog.Int("trades", result.Metrics.TotalTrades),
		slog.Float64("total_return_pct", result.Metrics.TotalReturnPct),
		slog.Float64("win_rate", result.Metrics.WinRate),
		slog.Float64("profit_factor", result.Metrics.ProfitFactor),
		slog.Float64("max_drawdown_pct", result.Metrics.MaxDrawdownPct),
		slog.Float64("sharpe_ratio", result.Metrics.SharpeRatio),
		slog.Float64("sortino_ratio", result.Metrics.SortinoRatio),
		slog.Float64("calmar_ratio", result.Metrics.CalmarRatio),
		slog.Float64("final_equity_usd", finalEquity),
	)

	if runs := a.cfg.Backtest.MonteCarloRuns; runs > 0 && len(result.Trades) > 0 {
		seed := int64(len(result.Trades))
		draw := func(n int) int {
			seed = (seed*1103515245 + 12345) & 0x7fffffff
			return int(seed) % n
		}
		outcomes := backtest.MonteCarlo(decimal.NewFromFloat(a.cfg.Backtest.InitialCashUSD), result.Trades, runs, draw)
		median := outcomes[len(outcomes)/2]
		medianF, _ := median.Float64()
		a.logger.InfoContext(ctx, "backtest monte carlo",
			slog.Int("runs", runs),
			slog.Float64("median_final_equity_usd", medianF),
		)
	}

	return nil
}
