// Package router implements the signal admission pipeline of spec
// section 4.E: every strategy.Signal passes through a fixed sequence of
// gates (allowlist, strength, kill switch, daily-stop, position cap,
// exposure, cooldown) before it is sized and dispatched to
// internal/execution. Rejections are
// always a typed domain sentinel error so callers and metrics can
// discriminate the reason without string matching.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/teamnova/tradecore/internal/domain"
	"github.com/teamnova/tradecore/internal/strategy"
)

// Dispatcher is the subset of execution.Service the router drives; kept as
// an interface so tests and the backtest engine can supply a fake.
type Dispatcher interface {
	BuyLimit(ctx context.Context, req DispatchRequest) (domain.OrderResult, error)
	SellLimit(ctx context.Context, req DispatchRequest) (domain.OrderResult, error)
}

// DispatchRequest mirrors execution.OrderRequest; the router depends on
// this local shape rather than importing internal/execution directly so the
// two packages can evolve independently and the backtest engine can satisfy
// Dispatcher without pulling in live-venue plumbing.
type DispatchRequest struct {
	Platform      string
	MarketID      string
	TokenID       string
	Price         decimal.Decimal
	Size          decimal.Decimal
	Source        string
	ClientOrderID string
}

// Config tunes the admission pipeline. Zero-value fields disable that gate.
type Config struct {
	AllowedTypes     map[strategy.SignalType]bool
	MinConfidence    float64
	MaxPositions     int
	CooldownPerKey   time.Duration
	DailyLossLimit   decimal.Decimal // non-positive disables the gate
	MaxExposure      decimal.Decimal // total notional cap across open positions; non-positive disables
	DefaultSizeUSD   decimal.Decimal // used when a Signal carries no explicit size
}

// DefaultConfig matches the defaults implied by the specification's router
// scenarios: buy/sell allowed, hold never dispatched, no minimum confidence,
// no position cap, no cooldown.
func DefaultConfig() Config {
	return Config{
		AllowedTypes:  map[strategy.SignalType]bool{strategy.SignalBuy: true, strategy.SignalSell: true},
		MinConfidence: 0,
		MaxPositions:  0,
		CooldownPerKey: 0,
	}
}

// ExecutionRecord is one entry in the router's bounded admission ledger,
// used for audit trails and the HTTP control surface's history endpoint.
type ExecutionRecord struct {
	Signal    strategy.Signal
	Admitted  bool
	Rejection error
	OrderID   string
	Timestamp time.Time
}

// Router is the admission pipeline. It is safe for concurrent use: sizing
// and dispatch run under the LockManager's per-key lock when one is
// configured, else under a single in-process mutex shared by all keys, so
// two signals for the same key can never race through sizing/dispatch.
type Router struct {
	cfg        Config
	dispatcher Dispatcher
	positions  domain.PositionStore
	locks      domain.LockManager
	logger     *slog.Logger

	mu          sync.Mutex
	lastSignal  map[string]time.Time // key -> last admitted timestamp, for cooldown
	killSwitch  bool
	dailyPnL    decimal.Decimal
	records     []ExecutionRecord
	maxRecords  int

	// fallbackMu serializes Admit calls end-to-end when no distributed
	// LockManager is configured. It is intentionally separate from mu
	// (which guards short bookkeeping sections) since Admit holds it across
	// sizing and dispatch.
	fallbackMu sync.Mutex
}

// Option configures a Router at construction time.
type Option func(*Router)

func WithMaxRecords(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.maxRecords = n
		}
	}
}

// WithLockManager supplies a distributed lock manager (e.g. Redis-backed)
// for cross-process FIFO-per-key serialization; without one the router
// falls back to its own in-process mutex, which is sufficient for a single
// scheduler instance.
func WithLockManager(lm domain.LockManager) Option {
	return func(r *Router) { r.locks = lm }
}

// New creates a Router. positions is used for the max-concurrent-positions
// gate and exposure computation.
func New(cfg Config, dispatcher Dispatcher, positions domain.PositionStore, logger *slog.Logger, opts ...Option) *Router {
	r := &Router{
		cfg:        cfg,
		dispatcher: dispatcher,
		positions:  positions,
		logger:     logger.With(slog.String("component", "router")),
		lastSignal: make(map[string]time.Time),
		maxRecords: 5000,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetKillSwitch engages or disengages the global kill switch. While
// engaged, every signal is rejected with domain.ErrKillSwitch regardless of
// the other gates.
func (r *Router) SetKillSwitch(engaged bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.killSwitch = engaged
}

// KillSwitchEngaged reports the current kill-switch state.
func (r *Router) KillSwitchEngaged() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.killSwitch
}

// RecordRealizedPnL accumulates realized PnL toward the daily-loss gate.
// The router does not learn of position closes by itself; the gate sees
// only the PnL passed here, and the accumulator is not reset at a day
// boundary unless ResetDailyPnL is called.
func (r *Router) RecordRealizedPnL(delta decimal.Decimal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dailyPnL = r.dailyPnL.Add(delta)
}

// ResetDailyPnL zeroes the accumulated daily PnL, e.g. at a UTC-day roll.
func (r *Router) ResetDailyPnL() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dailyPnL = decimal.Zero
}

// Admit runs sig through the admission pipeline for the given wallet and,
// if every gate passes, dispatches an order through the Dispatcher. It
// always returns an ExecutionRecord, whether or not the signal was
// admitted, so callers get a uniform audit trail.
func (r *Router) Admit(ctx context.Context, sig strategy.Signal, wallet string) ExecutionRecord {
	rec := ExecutionRecord{Signal: sig, Timestamp: time.Now().UTC()}

	if err := r.checkGates(ctx, sig, wallet); err != nil {
		rec.Rejection = err
		r.appendRecord(rec)
		r.logger.Debug("signal rejected", slog.String("key", sig.Key()), slog.String("reason", err.Error()))
		return rec
	}

	unlock := r.lockKey(ctx, sig.Key())
	defer unlock()

	// Re-check the cooldown gate inside the lock: two signals for the same
	// key can both pass the outer check before either is admitted.
	if err := r.checkCooldown(sig.Key()); err != nil {
		rec.Rejection = err
		r.appendRecord(rec)
		return rec
	}

	size := sig.Size
	if size.IsZero() {
		size = r.deriveSize(sig)
	}

	req := DispatchRequest{
		Platform:      sig.Platform,
		MarketID:      sig.MarketID,
		TokenID:       sig.Outcome,
		Price:         sig.Price,
		Size:          size,
		Source:        sig.Reason,
		ClientOrderID: uuid.New().String(),
	}

	var result domain.OrderResult
	var err error
	switch sig.Type {
	case strategy.SignalBuy:
		result, err = r.dispatcher.BuyLimit(ctx, req)
	case strategy.SignalSell:
		result, err = r.dispatcher.SellLimit(ctx, req)
	default:
		err = fmt.Errorf("router: unsupported signal type %q", sig.Type)
	}

	if err != nil {
		rec.Rejection = err
		r.appendRecord(rec)
		return rec
	}

	r.mu.Lock()
	r.lastSignal[sig.Key()] = time.Now().UTC()
	r.mu.Unlock()

	rec.Admitted = true
	rec.OrderID = result.OrderID
	r.appendRecord(rec)
	r.logger.Info("signal admitted", slog.String("key", sig.Key()), slog.String("order_id", result.OrderID))
	return rec
}

// checkGates runs every gate that does not require the per-key lock: type
// allowlist, confidence threshold, kill switch, daily loss, max positions,
// and exposure cap, followed by a first cooldown check (Admit repeats the
// cooldown check under the lock).
func (r *Router) checkGates(ctx context.Context, sig strategy.Signal, wallet string) error {
	if sig.Type == strategy.SignalHold {
		return fmt.Errorf("router: hold signals are never dispatched: %w", domain.ErrNotAllowlisted)
	}
	if allowed, ok := r.cfg.AllowedTypes[sig.Type]; !ok || !allowed {
		return fmt.Errorf("router: signal type %q not allowlisted: %w", sig.Type, domain.ErrNotAllowlisted)
	}
	if r.cfg.MinConfidence > 0 && sig.Confidence < r.cfg.MinConfidence {
		return fmt.Errorf("router: confidence %.3f below minimum %.3f: %w", sig.Confidence, r.cfg.MinConfidence, domain.ErrBelowMinStrength)
	}

	if r.KillSwitchEngaged() {
		return fmt.Errorf("router: %w", domain.ErrKillSwitch)
	}

	if !r.cfg.DailyLossLimit.IsZero() {
		r.mu.Lock()
		pnl := r.dailyPnL
		r.mu.Unlock()
		if pnl.Negate().GreaterThanOrEqual(r.cfg.DailyLossLimit) {
			return fmt.Errorf("router: daily loss %s reached limit %s: %w", pnl.String(), r.cfg.DailyLossLimit.String(), domain.ErrDailyLossLimit)
		}
	}

	if sig.Type == strategy.SignalBuy && r.cfg.MaxPositions > 0 {
		open, err := r.positions.GetOpen(ctx, wallet)
		if err != nil {
			return fmt.Errorf("router: get open positions: %w", err)
		}
		if len(open) >= r.cfg.MaxPositions {
			return fmt.Errorf("router: %d/%d open positions: %w", len(open), r.cfg.MaxPositions, domain.ErrMaxPositions)
		}
	}

	if !r.cfg.MaxExposure.IsZero() {
		exposure, err := r.currentExposure(ctx, wallet)
		if err != nil {
			return fmt.Errorf("router: compute exposure: %w", err)
		}
		incremental := sig.Price.Mul(sig.Size)
		if sig.Type == strategy.SignalBuy && exposure.Add(incremental).GreaterThan(r.cfg.MaxExposure) {
			return fmt.Errorf("router: exposure %s + %s exceeds cap %s: %w", exposure.String(), incremental.String(), r.cfg.MaxExposure.String(), domain.ErrExposureCap)
		}
	}

	return r.checkCooldown(sig.Key())
}

func (r *Router) checkCooldown(key string) error {
	if r.cfg.CooldownPerKey <= 0 {
		return nil
	}
	r.mu.Lock()
	last, ok := r.lastSignal[key]
	r.mu.Unlock()
	if ok && time.Since(last) < r.cfg.CooldownPerKey {
		return fmt.Errorf("router: key %q in cooldown for %s more: %w", key, r.cfg.CooldownPerKey-time.Since(last), domain.ErrCooldown)
	}
	return nil
}

func (r *Router) currentExposure(ctx context.Context, wallet string) (decimal.Decimal, error) {
	open, err := r.positions.GetOpen(ctx, wallet)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, p := range open {
		total = total.Add(decimal.NewFromFloat(p.CurrentPrice).Mul(decimal.NewFromFloat(p.Size)))
	}
	return total, nil
}

// deriveSize returns the configured default USD-notional size converted to
// a token quantity at the signal's price, when the strategy did not specify
// one explicitly.
func (r *Router) deriveSize(sig strategy.Signal) decimal.Decimal {
	if r.cfg.DefaultSizeUSD.IsZero() || sig.Price.IsZero() {
		return decimal.Zero
	}
	return r.cfg.DefaultSizeUSD.Div(sig.Price)
}

// lockKey acquires the distributed lock for key if a LockManager is
// configured, else falls back to the router's single fallbackMu, which
// serializes admissions for all keys (sufficient for single-instance
// deployments).
func (r *Router) lockKey(ctx context.Context, key string) (unlock func()) {
	if r.locks != nil {
		fn, err := r.locks.Acquire(ctx, "router:"+key, 5*time.Second)
		if err == nil {
			return fn
		}
		r.logger.Warn("lock manager acquire failed, falling back to local lock", slog.String("key", key), slog.String("error", err.Error()))
	}
	r.fallbackMu.Lock()
	return r.fallbackMu.Unlock
}

func (r *Router) appendRecord(rec ExecutionRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	if len(r.records) > r.maxRecords {
		r.records = r.records[len(r.records)-r.maxRecords:]
	}
}

// GetRecords returns a copy of the bounded admission ledger.
func (r *Router) GetRecords() []ExecutionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ExecutionRecord, len(r.records))
	copy(out, r.records)
	return out
}
