// Package marketmaking implements the quoting engine of spec section 4.G:
// an inventory-skewed two-sided quote ladder driven by a smoothed fair
// value, with requote-discipline and a loss/inventory halt. It generalizes
// the Avellaneda-Stoikov reservation-price/optimal-spread formulas from
// 0xtitan6-polymarket-mm's internal/strategy/maker.go (gamma/sigma/k/T risk
// model) and reuses the teacher's liquidity_provider.go requote-threshold
// idiom for deciding when to replace resting quotes.
package marketmaking

import (
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/teamnova/tradecore/internal/domain"
)

// Config tunes the quoting engine for one market.
type Config struct {
	Gamma float64 // risk aversion
	Sigma float64 // estimated volatility
	K     float64 // order arrival intensity
	T     float64 // time horizon

	MinSpreadBps  float64
	LadderLevels  int     // number of quote rungs per side, >=1
	LadderStepBps float64 // additional spread added per rung beyond the first

	RequoteThresholdBps float64       // requote when fair value moves by more than this
	RequoteInterval     time.Duration // or at least this often, whichever comes first

	EMAAlpha float64 // fair-value smoothing factor, 0..1; 0 disables smoothing

	MaxInventory decimal.Decimal // absolute unit cap; non-positive disables the gate
	MaxLossUSD   decimal.Decimal // cumulative realized loss cap; non-positive disables
}

// DefaultConfig mirrors the teacher's liquidity_provider.go defaults,
// generalized with a single ladder rung.
func DefaultConfig() Config {
	return Config{
		Gamma:               0.1,
		Sigma:               0.02,
		K:                   1.5,
		T:                   1.0,
		MinSpreadBps:        20,
		LadderLevels:        1,
		LadderStepBps:       15,
		RequoteThresholdBps: 10,
		RequoteInterval:     5 * time.Second,
		EMAAlpha:            0.3,
	}
}

// Quote is one rung of the generated ladder.
type Quote struct {
	Side  domain.OrderSide
	Price decimal.Decimal
	Size  decimal.Decimal
}

// Engine tracks fair value, inventory, and PnL for one market and produces
// quote ladders on demand. It is safe for concurrent use.
type Engine struct {
	cfg Config

	mu            sync.Mutex
	fairValue     float64
	haveFairValue bool
	lastQuotedAt  time.Time
	lastQuotedFV  float64
	inventory     decimal.Decimal
	realizedPnL   decimal.Decimal
	halted        bool
	haltReason    string
}

// New creates an Engine for one market with the given config.
func New(cfg Config) *Engine {
	if cfg.LadderLevels <= 0 {
		cfg.LadderLevels = 1
	}
	return &Engine{cfg: cfg}
}

// UpdateFairValue computes the fair value from an orderbook snapshot as the
// microprice (size-weighted mid, falling back to plain mid when depth is
// unavailable) and applies exponential smoothing against the previous
// estimate. It returns the smoothed fair value.
func (e *Engine) UpdateFairValue(book domain.OrderbookSnapshot) decimal.Decimal {
	raw := microprice(book)

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.haveFairValue || e.cfg.EMAAlpha <= 0 {
		e.fairValue = raw
		e.haveFairValue = true
	} else {
		e.fairValue = e.cfg.EMAAlpha*raw + (1-e.cfg.EMAAlpha)*e.fairValue
	}
	return decimal.NewFromFloat(e.fairValue)
}

// microprice weights the best bid/ask by the opposite side's resting size,
// which leans the estimate toward the side with less standing liquidity
// (the side more likely to be taken next). Falls back to the snapshot's
// plain MidPrice when either side has no depth.
func microprice(book domain.OrderbookSnapshot) float64 {
	if len(book.Bids) == 0 || len(book.Asks) == 0 {
		return book.MidPrice
	}
	bidSize := book.Bids[0].Size
	askSize := book.Asks[0].Size
	if bidSize+askSize <= 0 {
		return book.MidPrice
	}
	return (book.BestBid*askSize + book.BestAsk*bidSize) / (bidSize + askSize)
}

// UpdateInventory sets the engine's tracked inventory (positive = long).
func (e *Engine) UpdateInventory(units decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inventory = units
}

// RecordRealizedPnL accumulates realized PnL toward the loss-halt gate.
func (e *Engine) RecordRealizedPnL(delta decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.realizedPnL = e.realizedPnL.Add(delta)
}

// ShouldRequote reports whether resting quotes should be replaced: either
// the fair value has moved beyond RequoteThresholdBps since the last quote,
// or RequoteInterval has elapsed, whichever comes first (teacher's
// liquidity_provider.go requote-threshold idiom, generalized with a time
// fallback so a static book still eventually refreshes quote age).
func (e *Engine) ShouldRequote(now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.lastQuotedAt.IsZero() {
		return true
	}
	if e.cfg.RequoteInterval > 0 && now.Sub(e.lastQuotedAt) >= e.cfg.RequoteInterval {
		return true
	}
	if e.lastQuotedFV == 0 {
		return true
	}
	movedBps := math.Abs(e.fairValue-e.lastQuotedFV) / e.lastQuotedFV * 10000
	return movedBps >= e.cfg.RequoteThresholdBps
}

// MarkQuoted records that a fresh ladder was just generated, resetting the
// requote clock and reference fair value.
func (e *Engine) MarkQuoted(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastQuotedAt = now
	e.lastQuotedFV = e.fairValue
}

// CheckHalt evaluates the inventory and loss caps and latches halted/
// haltReason if either is breached. Once latched, Halted stays true until
// ResetHalt is called explicitly (a halt is an operator-acknowledged event,
// not something that silently clears on the next good tick).
func (e *Engine) CheckHalt() (bool, string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.halted {
		return true, e.haltReason
	}

	if !e.cfg.MaxInventory.IsZero() && e.inventory.Abs().GreaterThan(e.cfg.MaxInventory) {
		e.halted = true
		e.haltReason = "inventory_limit"
		return true, e.haltReason
	}
	if !e.cfg.MaxLossUSD.IsZero() && e.realizedPnL.Negate().GreaterThanOrEqual(e.cfg.MaxLossUSD) {
		e.halted = true
		e.haltReason = "loss_limit"
		return true, e.haltReason
	}
	return false, ""
}

// ResetHalt clears a latched halt, e.g. after operator intervention.
func (e *Engine) ResetHalt() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.halted = false
	e.haltReason = ""
}

// GenerateQuotes builds a two-sided ladder around the engine's current fair
// value, skewed by inventory (the Avellaneda-Stoikov reservation-price
// shift: r = fairValue - q*gamma*sigma^2*T) and widened per rung by
// LadderStepBps. rungSize is the notional size, in base units, quoted at
// each rung. It returns nothing (nil) when the engine is halted.
func (e *Engine) GenerateQuotes(rungSize decimal.Decimal) []Quote {
	e.mu.Lock()
	fairValue := e.fairValue
	inventory, _ := e.inventory.Float64()
	halted := e.halted
	cfg := e.cfg
	e.mu.Unlock()

	if halted || fairValue <= 0 {
		return nil
	}

	reservation := fairValue - inventory*cfg.Gamma*cfg.Sigma*cfg.Sigma*cfg.T
	baseSpread := math.Max(cfg.Gamma*cfg.Sigma*cfg.Sigma*cfg.T+(2/cfg.Gamma)*math.Log(1+cfg.Gamma/cfg.K), cfg.MinSpreadBps/10000)

	quotes := make([]Quote, 0, cfg.LadderLevels*2)
	for i := 0; i < cfg.LadderLevels; i++ {
		widen := float64(i) * cfg.LadderStepBps / 10000
		halfSpread := baseSpread/2 + widen

		bid := clampProbability(reservation - halfSpread)
		ask := clampProbability(reservation + halfSpread)

		quotes = append(quotes,
			Quote{Side: domain.OrderSideBuy, Price: decimal.NewFromFloat(bid), Size: rungSize},
			Quote{Side: domain.OrderSideSell, Price: decimal.NewFromFloat(ask), Size: rungSize},
		)
	}
	return quotes
}

// clampProbability keeps a binary-market price inside the open (0,1)
// interval with a small buffer, mirroring the teacher's tick-size clamp.
func clampProbability(p float64) float64 {
	const epsilon = 0.001
	if p < epsilon {
		return epsilon
	}
	if p > 1-epsilon {
		return 1 - epsilon
	}
	return p
}
