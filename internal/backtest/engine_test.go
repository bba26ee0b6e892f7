package backtest

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamnova/tradecore/internal/domain"
	"github.com/teamnova/tradecore/internal/strategy"
)

// scriptedStrategy emits one canned Signal per tick index, wrapping around
// once exhausted.
type scriptedStrategy struct {
	script []strategy.Signal
	calls  int
}

func (s *scriptedStrategy) Name() string                        { return "scripted" }
func (s *scriptedStrategy) Init(context.Context) error          { return nil }
func (s *scriptedStrategy) Cleanup() error                       { return nil }
func (s *scriptedStrategy) OnTrade(context.Context, strategy.TradeView) error { return nil }

func (s *scriptedStrategy) Evaluate(_ context.Context, _ *strategy.StrategyContext) ([]strategy.Signal, error) {
	if s.calls >= len(s.script) {
		s.calls++
		return nil, nil
	}
	sig := s.script[s.calls]
	s.calls++
	if sig.Type == "" {
		return nil, nil
	}
	return []strategy.Signal{sig}, nil
}

func ticksFromPrices(prices []float64) []domain.Tick {
	out := make([]domain.Tick, len(prices))
	prev := prices[0]
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, p := range prices {
		out[i] = domain.Tick{Time: base.Add(time.Duration(i) * time.Minute), Price: p, PrevPrice: prev}
		prev = p
	}
	return out
}

func TestEngineBuyThenSellRealizesPnL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CommissionBps = 0
	cfg.SlippageBps = 0

	strat := &scriptedStrategy{script: []strategy.Signal{
		{Type: strategy.SignalBuy, Platform: "polymarket", MarketID: "m1", Outcome: "yes", Price: decimal.NewFromFloat(0.40), Size: decimal.NewFromInt(10)},
		{},
		{Type: strategy.SignalSell, Platform: "polymarket", MarketID: "m1", Outcome: "yes", Price: decimal.NewFromFloat(0.50), Size: decimal.NewFromInt(10)},
	}}
	e := New(cfg, strat)

	result, err := e.Run(context.Background(), ticksFromPrices([]float64{0.40, 0.45, 0.50}))
	require.NoError(t, err)

	require.Len(t, result.Trades, 2)
	assert.True(t, result.Trades[1].RealizedPnL.Equal(decimal.NewFromFloat(1.0)), "expected 10*(0.50-0.40)=1.0 realized PnL, got %s", result.Trades[1].RealizedPnL)
	assert.True(t, result.FinalCashUSD.GreaterThan(cfg.InitialCashUSD))
}

func TestEngineRejectsBuyBeyondCash(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InitialCashUSD = decimal.NewFromInt(1)

	strat := &scriptedStrategy{script: []strategy.Signal{
		{Type: strategy.SignalBuy, Platform: "polymarket", MarketID: "m1", Outcome: "yes", Price: decimal.NewFromFloat(0.90), Size: decimal.NewFromInt(100)},
	}}
	e := New(cfg, strat)

	result, err := e.Run(context.Background(), ticksFromPrices([]float64{0.90}))
	require.NoError(t, err)
	assert.Empty(t, result.Trades)
	assert.True(t, result.FinalCashUSD.Equal(cfg.InitialCashUSD))
}

func TestEngineCommissionAndSlippageAccrue(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CommissionBps = 100 // 1%
	cfg.SlippageBps = 100   // 1%

	strat := &scriptedStrategy{script: []strategy.Signal{
		{Type: strategy.SignalBuy, Platform: "polymarket", MarketID: "m1", Outcome: "yes", Price: decimal.NewFromFloat(0.50), Size: decimal.NewFromInt(10)},
	}}
	e := New(cfg, strat)

	result, err := e.Run(context.Background(), ticksFromPrices([]float64{0.50}))
	require.NoError(t, err)
	require.Len(t, result.Trades, 1)

	assert.True(t, result.Trades[0].FillPrice.GreaterThan(decimal.NewFromFloat(0.50)), "buy should fill above reference price under positive slippage")
	assert.True(t, result.Metrics.TotalCommission.GreaterThan(decimal.Zero))
	assert.True(t, result.Metrics.TotalSlippage.GreaterThan(decimal.Zero))
}

func TestComputeMetricsWinRateAndDrawdown(t *testing.T) {
	curve := []EquityPoint{
		{Equity: decimal.NewFromInt(100)},
		{Equity: decimal.NewFromInt(120)},
		{Equity: decimal.NewFromInt(90)},
		{Equity: decimal.NewFromInt(110)},
	}
	trades := []Trade{
		{FillPrice: decimal.NewFromInt(1), RequestedSize: decimal.NewFromInt(10), RealizedPnL: decimal.NewFromInt(5)},
		{FillPrice: decimal.NewFromInt(1), RequestedSize: decimal.NewFromInt(10), RealizedPnL: decimal.NewFromInt(-2)},
	}
	m := computeMetrics(decimal.NewFromInt(100), trades, curve, decimal.Zero, decimal.Zero)

	assert.InDelta(t, 0.5, m.WinRate, 0.001)
	assert.InDelta(t, 10.0, m.TotalReturnPct, 0.001)
	assert.Greater(t, m.MaxDrawdownPct, 0.0)
	assert.Equal(t, 2, m.TotalTrades)
}

func TestMonteCarloResamplesTradeSequence(t *testing.T) {
	trades := []Trade{
		{FillPrice: decimal.NewFromInt(1), RequestedSize: decimal.NewFromInt(1), RealizedPnL: decimal.NewFromInt(10)},
		{FillPrice: decimal.NewFromInt(1), RequestedSize: decimal.NewFromInt(1), RealizedPnL: decimal.NewFromInt(-5)},
	}
	calls := 0
	draw := func(n int) int {
		calls++
		return calls % n
	}
	finals := MonteCarlo(decimal.NewFromInt(100), trades, 50, draw)
	require.Len(t, finals, 50)
	for i := 1; i < len(finals); i++ {
		assert.True(t, finals[i].GreaterThanOrEqual(finals[i-1]), "expected finals sorted ascending")
	}
}
