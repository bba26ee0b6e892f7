// Package backtest implements the deterministic tick-replay engine of spec
// section 4.H: it drives a PollingStrategy directly against a recorded tick
// stream (bypassing the scheduler, since replay is not cadence-driven),
// accounts fills with commission and slippage the way
// GoPolymarket-polymarket-trader's internal/paper.Simulator accounts paper
// fills, and reduces the resulting equity curve into the win/loss and
// risk-adjusted metrics chidi150c-coinbase's backtest.go computes over its
// train/test step-forward loop.
package backtest

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/teamnova/tradecore/internal/domain"
	"github.com/teamnova/tradecore/internal/strategy"
)

// Config tunes fill accounting for a backtest run.
type Config struct {
	InitialCashUSD decimal.Decimal
	CommissionBps  float64 // charged on notional at every fill
	SlippageBps    float64 // adverse price adjustment applied at every fill
	AllowShort     bool
}

// DefaultConfig mirrors the paper simulator's defaults.
func DefaultConfig() Config {
	return Config{
		InitialCashUSD: decimal.NewFromInt(1000),
		CommissionBps:  10,
		SlippageBps:    5,
		AllowShort:     false,
	}
}

// Trade is one completed fill during replay.
type Trade struct {
	Time          domain.Tick
	Key           string
	Side          domain.OrderSide
	RequestedSize decimal.Decimal
	FillPrice     decimal.Decimal
	CommissionUSD decimal.Decimal
	RealizedPnL   decimal.Decimal // zero on opening trades; set on the trade that closes/reduces a position
}

// EquityPoint is one sample of the equity curve, recorded after each tick.
type EquityPoint struct {
	Time   domain.Tick
	Equity decimal.Decimal
}

// Result is the full output of one Run: the trade ledger, equity curve, and
// derived performance metrics.
type Result struct {
	Trades       []Trade
	EquityCurve  []EquityPoint
	Metrics      Metrics
	FinalCashUSD decimal.Decimal
}

// Metrics are the summary statistics computed from one Result's equity
// curve and trade ledger, generalizing the win/loss counting and equity
// gauge chidi150c-coinbase's runBacktest reports at completion.
type Metrics struct {
	TotalReturnPct   float64
	WinRate          float64
	ProfitFactor     float64
	AvgTradePct      float64
	AvgWinPct        float64
	AvgLossPct       float64
	MaxDrawdownPct   float64
	MaxDrawdownTicks int
	SharpeRatio      float64
	SortinoRatio     float64
	CalmarRatio      float64
	TotalCommission  decimal.Decimal
	TotalSlippage    decimal.Decimal
	FinalEquity      decimal.Decimal
	TotalTrades      int
}

// position tracks one open market position during replay.
type position struct {
	side       domain.OrderSide
	size       decimal.Decimal // always positive
	entryPrice decimal.Decimal
}

// Engine replays a tick stream through a strategy and a single in-process
// market, converting accepted Signal values into Trades via the same
// buy-at-ask/sell-at-bid-plus-slippage accounting the paper simulator uses,
// keyed per-instrument the way the router keys live admission.
type Engine struct {
	cfg      Config
	strat    strategy.PollingStrategy
	cash     decimal.Decimal
	open     map[string]*position
	trades   []Trade
	curve    []EquityPoint
	totalFee decimal.Decimal
	totalSlp decimal.Decimal
}

// New creates an Engine for one strategy instance, which must already be
// initialized by the caller (Run does not call Init/Cleanup, mirroring the
// paper simulator's separation of wiring from execution).
func New(cfg Config, strat strategy.PollingStrategy) *Engine {
	if cfg.InitialCashUSD.IsZero() {
		cfg.InitialCashUSD = DefaultConfig().InitialCashUSD
	}
	return &Engine{
		cfg:   cfg,
		strat: strat,
		cash:  cfg.InitialCashUSD,
		open:  make(map[string]*position),
	}
}

// Run replays ticks in the given, strictly nondecreasing-by-Time order,
// calling strat.Evaluate once per tick with a synthetic StrategyContext and
// converting every returned Signal into a fill at the tick's price adjusted
// for slippage. It stops early if ctx is canceled.
func (e *Engine) Run(ctx context.Context, ticks []domain.Tick) (Result, error) {
	for i, tick := range ticks {
		select {
		case <-ctx.Done():
			return e.result(), ctx.Err()
		default:
		}

		sctx := e.buildContext(tick)
		signals, err := e.strat.Evaluate(ctx, &sctx)
		if err != nil {
			return e.result(), fmt.Errorf("evaluate at tick %d: %w", i, err)
		}
		for _, sig := range signals {
			if sig.Type == strategy.SignalHold {
				continue
			}
			if err := e.applySignal(tick, sig); err != nil {
				continue // a rejected fill (e.g. insufficient cash) simply produces no trade
			}
		}
		e.curve = append(e.curve, EquityPoint{Time: tick, Equity: e.equity(tick.Price)})
	}
	return e.result(), nil
}

// buildContext assembles a minimal StrategyContext for one tick. Replay does
// not maintain the scheduler's full price-history ring; strategies that need
// history should derive it from domain.Tick.PrevPrice or hold their own
// window internally across Evaluate calls.
func (e *Engine) buildContext(tick domain.Tick) strategy.StrategyContext {
	positions := make(map[string]strategy.PositionView, len(e.open))
	for key, pos := range e.open {
		positions[key] = strategy.PositionView{
			EntryPrice:   pos.entryPrice,
			CurrentPrice: decimal.NewFromFloat(tick.Price),
			Size:         pos.size,
			Side:         pos.side,
		}
	}
	t := tick
	return strategy.StrategyContext{
		PortfolioValue: e.equity(tick.Price),
		FreeCash:       e.cash,
		Positions:      positions,
		IsBacktest:     true,
		CurrentTick:    &t,
		Timestamp:      tick.Time,
	}.Clone()
}

// applySignal fills a buy/sell signal against the tick price, charging
// commission and slippage exactly like the paper simulator's fill():
// slippage moves the execution price against the trader, commission is a
// flat bps charge on notional, and a buy must be fully funded by cash.
func (e *Engine) applySignal(tick domain.Tick, sig strategy.Signal) error {
	key := sig.Key()
	price := decimal.NewFromFloat(tick.Price)
	size := sig.Size
	if size.IsZero() {
		return fmt.Errorf("signal %s has no size", key)
	}

	side := domain.OrderSideBuy
	if sig.Type == strategy.SignalSell {
		side = domain.OrderSideSell
	}

	execPrice := applySlippage(price, side, e.cfg.SlippageBps)
	notional := execPrice.Mul(size)
	commission := notional.Mul(decimal.NewFromFloat(e.cfg.CommissionBps / 10000))

	var realized decimal.Decimal
	cur := e.open[key]

	switch side {
	case domain.OrderSideBuy:
		if notional.Add(commission).GreaterThan(e.cash) {
			return fmt.Errorf("insufficient cash")
		}
		e.cash = e.cash.Sub(notional).Sub(commission)
		if cur != nil && cur.side == domain.OrderSideSell {
			realized = cur.entryPrice.Sub(execPrice).Mul(decimal.Min(size, cur.size))
			e.reduce(key, cur, size)
		} else {
			e.openOrAdd(key, domain.OrderSideBuy, size, execPrice)
		}
	case domain.OrderSideSell:
		if cur == nil || cur.side != domain.OrderSideBuy {
			if !e.cfg.AllowShort {
				return fmt.Errorf("shorting disabled")
			}
			e.cash = e.cash.Add(notional).Sub(commission)
			e.openOrAdd(key, domain.OrderSideSell, size, execPrice)
		} else {
			realized = execPrice.Sub(cur.entryPrice).Mul(decimal.Min(size, cur.size))
			e.cash = e.cash.Add(notional).Sub(commission)
			e.reduce(key, cur, size)
		}
	}

	e.totalFee = e.totalFee.Add(commission)
	e.totalSlp = e.totalSlp.Add(execPrice.Sub(price).Abs().Mul(size))
	e.trades = append(e.trades, Trade{
		Time:          tick,
		Key:           key,
		Side:          side,
		RequestedSize: size,
		FillPrice:     execPrice,
		CommissionUSD: commission,
		RealizedPnL:   realized,
	})
	return nil
}

func (e *Engine) openOrAdd(key string, side domain.OrderSide, size, price decimal.Decimal) {
	cur, ok := e.open[key]
	if !ok {
		e.open[key] = &position{side: side, size: size, entryPrice: price}
		return
	}
	// Adding to a same-direction position: recompute a size-weighted entry.
	totalSize := cur.size.Add(size)
	cur.entryPrice = cur.entryPrice.Mul(cur.size).Add(price.Mul(size)).Div(totalSize)
	cur.size = totalSize
}

func (e *Engine) reduce(key string, cur *position, size decimal.Decimal) {
	remaining := cur.size.Sub(size)
	if remaining.Sign() <= 0 {
		delete(e.open, key)
		return
	}
	cur.size = remaining
}

// equity marks every open position to lastPrice and adds free cash,
// mirroring Snapshot()'s balance accounting generalized to mark-to-market.
func (e *Engine) equity(lastPrice float64) decimal.Decimal {
	total := e.cash
	mark := decimal.NewFromFloat(lastPrice)
	for _, pos := range e.open {
		notional := pos.size.Mul(mark)
		if pos.side == domain.OrderSideBuy {
			total = total.Add(notional)
		} else {
			unrealized := pos.entryPrice.Sub(mark).Mul(pos.size)
			total = total.Add(unrealized)
		}
	}
	return total
}

func applySlippage(price decimal.Decimal, side domain.OrderSide, bps float64) decimal.Decimal {
	if bps <= 0 {
		return price
	}
	mult := decimal.NewFromFloat(bps / 10000)
	if side == domain.OrderSideBuy {
		return price.Mul(decimal.NewFromInt(1).Add(mult))
	}
	return price.Mul(decimal.NewFromInt(1).Sub(mult))
}

func (e *Engine) result() Result {
	return Result{
		Trades:       e.trades,
		EquityCurve:  e.curve,
		Metrics:      computeMetrics(e.cfg.InitialCashUSD, e.trades, e.curve, e.totalFee, e.totalSlp),
		FinalCashUSD: e.cash,
	}
}

// computeMetrics reduces an equity curve and trade ledger into summary
// statistics: return, win rate, profit factor, average trade/win/loss
// percent, max drawdown (magnitude and duration in ticks), Sharpe/Sortino
// (using per-tick equity returns, annualization left to the caller since
// tick cadence varies by market), and Calmar (return over max drawdown).
func computeMetrics(initial decimal.Decimal, trades []Trade, curve []EquityPoint, fee, slippage decimal.Decimal) Metrics {
	m := Metrics{TotalCommission: fee, TotalSlippage: slippage, TotalTrades: len(trades)}
	if len(curve) == 0 {
		return m
	}
	finalEquity := curve[len(curve)-1].Equity
	m.FinalEquity = finalEquity
	if !initial.IsZero() {
		m.TotalReturnPct = finalEquity.Sub(initial).Div(initial).InexactFloat64() * 100
	}

	var wins, losses int
	var winPctSum, lossPctSum, tradePctSum float64
	var grossWin, grossLoss decimal.Decimal
	for _, t := range trades {
		if t.RealizedPnL.IsZero() {
			continue
		}
		pct := t.RealizedPnL.Div(t.FillPrice.Mul(t.RequestedSize)).InexactFloat64() * 100
		tradePctSum += pct
		if t.RealizedPnL.Sign() > 0 {
			wins++
			winPctSum += pct
			grossWin = grossWin.Add(t.RealizedPnL)
		} else if t.RealizedPnL.Sign() < 0 {
			losses++
			lossPctSum += pct
			grossLoss = grossLoss.Add(t.RealizedPnL.Abs())
		}
	}
	closedTrades := wins + losses
	if closedTrades > 0 {
		m.WinRate = float64(wins) / float64(closedTrades)
		m.AvgTradePct = tradePctSum / float64(closedTrades)
	}
	if wins > 0 {
		m.AvgWinPct = winPctSum / float64(wins)
	}
	if losses > 0 {
		m.AvgLossPct = lossPctSum / float64(losses)
	}
	if !grossLoss.IsZero() {
		m.ProfitFactor = grossWin.Div(grossLoss).InexactFloat64()
	} else if !grossWin.IsZero() {
		m.ProfitFactor = math.Inf(1)
	}

	m.MaxDrawdownPct, m.MaxDrawdownTicks = maxDrawdown(curve)

	returns := tickReturns(curve)
	m.SharpeRatio = sharpe(returns)
	m.SortinoRatio = sortino(returns)
	if m.MaxDrawdownPct > 0 {
		m.CalmarRatio = m.TotalReturnPct / m.MaxDrawdownPct
	}
	return m
}

func tickReturns(curve []EquityPoint) []float64 {
	if len(curve) < 2 {
		return nil
	}
	out := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev.IsZero() {
			continue
		}
		out = append(out, curve[i].Equity.Sub(prev).Div(prev).InexactFloat64())
	}
	return out
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stddev(xs []float64, mu float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var sumSq float64
	for _, x := range xs {
		d := x - mu
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(xs)-1))
}

func sharpe(returns []float64) float64 {
	mu := mean(returns)
	sd := stddev(returns, mu)
	if sd == 0 {
		return 0
	}
	return mu / sd
}

func sortino(returns []float64) float64 {
	mu := mean(returns)
	var downside []float64
	for _, r := range returns {
		if r < 0 {
			downside = append(downside, r)
		}
	}
	dd := stddev(downside, 0)
	if dd == 0 {
		return 0
	}
	return mu / dd
}

// maxDrawdown returns the largest peak-to-trough decline (as a positive
// percent) and the number of ticks it spanned.
func maxDrawdown(curve []EquityPoint) (float64, int) {
	if len(curve) == 0 {
		return 0, 0
	}
	peak := curve[0].Equity
	peakIdx := 0
	var maxDD float64
	var maxDuration int
	for i, p := range curve {
		if p.Equity.GreaterThan(peak) {
			peak = p.Equity
			peakIdx = i
		}
		if peak.IsZero() {
			continue
		}
		dd := peak.Sub(p.Equity).Div(peak).InexactFloat64() * 100
		if dd > maxDD {
			maxDD = dd
			maxDuration = i - peakIdx
		}
	}
	return maxDD, maxDuration
}

// MonteCarlo resamples a completed Result's per-trade realized-PnL
// sequence with replacement runs times, rebuilding an equity path from each
// resampled order to estimate the distribution of outcomes the observed
// trade sequence could have produced. draw must return a uniform index in
// [0,n); callers typically pass a seeded math/rand.Rand's Intn.
func MonteCarlo(initial decimal.Decimal, trades []Trade, runs int, draw func(n int) int) []decimal.Decimal {
	var pnls []decimal.Decimal
	for _, t := range trades {
		if !t.RealizedPnL.IsZero() {
			pnls = append(pnls, t.RealizedPnL)
		}
	}
	if len(pnls) == 0 || runs <= 0 {
		return nil
	}

	finals := make([]decimal.Decimal, runs)
	for r := 0; r < runs; r++ {
		equity := initial
		for range pnls {
			idx := draw(len(pnls))
			equity = equity.Add(pnls[idx])
		}
		finals[r] = equity
	}
	sort.Slice(finals, func(i, j int) bool { return finals[i].LessThan(finals[j]) })
	return finals
}
