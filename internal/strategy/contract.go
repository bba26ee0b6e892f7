package strategy

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/teamnova/tradecore/internal/domain"
)

// SignalType describes the directional intent of a Signal.
type SignalType string

const (
	SignalBuy  SignalType = "buy"
	SignalSell SignalType = "sell"
	SignalHold SignalType = "hold"
)

// Signal is the venue-agnostic trading intent emitted by a PollingStrategy's
// Evaluate call. It is distinct from domain.TradeSignal, which already
// carries venue order-placement detail (fixed-point ticks, expiry); the
// router translates an accepted Signal into a domain.TradeSignal when it
// dispatches to execution.
type Signal struct {
	Type       SignalType
	Platform   string
	MarketID   string
	Outcome    string
	Price      decimal.Decimal
	Size       decimal.Decimal // zero means "let the router derive size"
	Confidence float64         // 0..1
	Reason     string
	Metadata   map[string]string
}

// Key returns the admission/cooldown key "platform:marketId:outcome" used by
// the router and position manager to identify a tradeable instrument.
func (s Signal) Key() string {
	return s.Platform + ":" + s.MarketID + ":" + s.Outcome
}

// PositionView is the read-only snapshot of an open position exposed inside a
// StrategyContext. It intentionally omits mutation methods: ctx is a
// snapshot and must never let a strategy mutate runtime state.
type PositionView struct {
	Platform      string
	MarketID      string
	Outcome       string
	Side          domain.OrderSide
	Size          decimal.Decimal
	EntryPrice    decimal.Decimal
	CurrentPrice  decimal.Decimal
	UnrealizedPnL decimal.Decimal
	OpenedAt      time.Time
}

// TradeView is a bounded, read-only view of one recently executed trade.
type TradeView struct {
	Platform  string
	MarketID  string
	Outcome   string
	Side      domain.OrderSide
	Price     decimal.Decimal
	Size      decimal.Decimal
	Timestamp time.Time
}

// PricePoint is one observation in a market's bounded price-history ring.
type PricePoint struct {
	Price     decimal.Decimal
	Timestamp time.Time
}

// StrategyContext is the read-only snapshot built by the scheduler for each
// Evaluate call. Copying it (see Clone) must never let a strategy observe or
// mutate scheduler-owned state: every slice/map field is a private copy.
type StrategyContext struct {
	PortfolioValue decimal.Decimal
	FreeCash       decimal.Decimal
	Positions      map[string]PositionView // keyed by platform:marketId:outcome
	RecentTrades   []TradeView              // bounded window, most recent last
	PriceHistory   map[string][]PricePoint  // keyed by platform:marketId:outcome

	// Tick-replay-only fields; both are nil/zero in live mode.
	IsBacktest    bool
	CurrentTick   *domain.Tick
	Orderbook     *domain.OrderbookSnapshot

	Timestamp time.Time
}

// Clone returns a deep copy safe to hand to a strategy: mutating the
// returned context must never affect the scheduler's internal state.
func (c StrategyContext) Clone() StrategyContext {
	out := c
	if c.Positions != nil {
		out.Positions = make(map[string]PositionView, len(c.Positions))
		for k, v := range c.Positions {
			out.Positions[k] = v
		}
	}
	if c.RecentTrades != nil {
		out.RecentTrades = append([]TradeView(nil), c.RecentTrades...)
	}
	if c.PriceHistory != nil {
		out.PriceHistory = make(map[string][]PricePoint, len(c.PriceHistory))
		for k, v := range c.PriceHistory {
			out.PriceHistory[k] = append([]PricePoint(nil), v...)
		}
	}
	if c.CurrentTick != nil {
		tick := *c.CurrentTick
		out.CurrentTick = &tick
	}
	if c.Orderbook != nil {
		book := *c.Orderbook
		out.Orderbook = &book
	}
	return out
}

// PollingStrategy is the pure, venue-agnostic strategy contract of
// spec section 4.C: init/evaluate/onTrade/cleanup lifecycle hooks driven by
// a cadence scheduler rather than by feed events directly. Evaluate must be
// fast and must not block the scheduler for other strategies; ctx is
// read-only and must not be retained across calls.
type PollingStrategy interface {
	Name() string
	Init(ctx context.Context) error
	Evaluate(ctx context.Context, sctx *StrategyContext) ([]Signal, error)
	OnTrade(ctx context.Context, trade TradeView) error
	Cleanup() error
}

// EventToPolling adapts an event-driven Strategy (the teacher's original
// contract, still used by the arbitrage/liquidity-provider family) into a
// PollingStrategy: incoming book/price/trade events are buffered and
// translated into Signal values returned from the next Evaluate call,
// letting both strategy families run under one scheduler.
type EventToPolling struct {
	inner   Strategy
	pending []Signal
}

// NewEventToPolling wraps an event-driven Strategy for cadence-based polling.
func NewEventToPolling(inner Strategy) *EventToPolling {
	return &EventToPolling{inner: inner}
}

func (e *EventToPolling) Name() string { return e.inner.Name() }

func (e *EventToPolling) Init(ctx context.Context) error { return e.inner.Init(ctx) }

// Evaluate drains the signals accumulated since the last call. The wrapped
// Strategy only reacts to feed events pushed via Feed*; a scheduler using
// this adapter must forward those events independently and call Evaluate on
// its own cadence purely to flush what has accumulated.
func (e *EventToPolling) Evaluate(_ context.Context, _ *StrategyContext) ([]Signal, error) {
	out := e.pending
	e.pending = nil
	return out, nil
}

// FeedTrade lets the scheduler forward a domain.Trade into the wrapped
// strategy and capture any resulting domain.TradeSignal as a Signal.
func (e *EventToPolling) FeedTrade(ctx context.Context, trade domain.Trade) error {
	sigs, err := e.inner.OnTrade(ctx, trade)
	if err != nil {
		return err
	}
	e.absorb(sigs)
	return nil
}

// FeedBookUpdate forwards an orderbook snapshot.
func (e *EventToPolling) FeedBookUpdate(ctx context.Context, snap domain.OrderbookSnapshot) error {
	sigs, err := e.inner.OnBookUpdate(ctx, snap)
	if err != nil {
		return err
	}
	e.absorb(sigs)
	return nil
}

func (e *EventToPolling) absorb(tradeSignals []domain.TradeSignal) {
	for _, ts := range tradeSignals {
		sigType := SignalBuy
		if ts.Side == domain.OrderSideSell {
			sigType = SignalSell
		}
		e.pending = append(e.pending, Signal{
			Type:       sigType,
			Platform:   "polymarket",
			MarketID:   ts.MarketID,
			Outcome:    ts.TokenID,
			Price:      decimal.NewFromFloat(ts.Price()),
			Size:       decimal.NewFromFloat(ts.Size()),
			Confidence: 1,
			Reason:     ts.Reason,
			Metadata:   ts.Metadata,
		})
	}
}

func (e *EventToPolling) OnTrade(_ context.Context, _ TradeView) error { return nil }

func (e *EventToPolling) Cleanup() error { return e.inner.Close() }

var _ PollingStrategy = (*EventToPolling)(nil)
