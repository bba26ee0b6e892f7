// Package scheduler implements the bot manager of spec section 4.D: a
// cadence-driven runner for strategy.PollingStrategy implementations,
// generalizing the teacher's event-driven internal/strategy.Engine.RunAll
// (one errgroup goroutine per strategy) into per-strategy ticker loops with
// jitter, non-overlapping evaluation, context assembly from live position
// and price state, and a 3-consecutive-error auto-pause.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/teamnova/tradecore/internal/domain"
	"github.com/teamnova/tradecore/internal/router"
	"github.com/teamnova/tradecore/internal/strategy"
)

// BotState is the operational state of one scheduled strategy.
type BotState string

const (
	BotStateStopped BotState = "stopped"
	BotStateRunning BotState = "running"
	BotStatePaused  BotState = "paused"
	BotStateError   BotState = "error"
)

const maxConsecutiveErrors = 3

// BotConfig registers a strategy with the scheduler.
type BotConfig struct {
	Name           string
	Strategy       strategy.PollingStrategy
	Cadence        time.Duration
	JitterFraction float64 // 0..1; each tick is delayed by up to ±JitterFraction*Cadence
}

// BotStatus is a snapshot of one bot's runtime state, returned by
// GetBotStatus/GetAllBotStatuses for the HTTP control surface.
type BotStatus struct {
	Name              string
	State             BotState
	ConsecutiveErrors int
	LastEvaluatedAt   time.Time
	LastError         string
	LastSignalCount   int
}

type botRuntime struct {
	cfg    BotConfig
	cancel context.CancelFunc
	done   chan struct{}

	mu                sync.Mutex
	state             BotState
	consecutiveErrors int
	lastEvaluatedAt   time.Time
	lastErr           error
	lastSignalCount   int
	inFlight          bool
}

// Manager runs strategies on independent cadences, builds each one a
// read-only StrategyContext snapshot, and forwards the signals it returns to
// a router.Router for admission. It is safe for concurrent use.
type Manager struct {
	positions domain.PositionStore
	router    *router.Router
	wallet    string
	logger    *slog.Logger

	mu              sync.Mutex
	bots            map[string]*botRuntime
	priceHistory    map[string][]strategy.PricePoint
	historyWindow   time.Duration
	recentTrades    []strategy.TradeView
	maxRecentTrades int
	freeCash        decimal.Decimal
}

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithHistoryWindow sets how far back the price-history ring extends
// (default 5 minutes, matching the teacher's PriceTracker default).
func WithHistoryWindow(d time.Duration) Option {
	return func(m *Manager) { m.historyWindow = d }
}

// WithMaxRecentTrades bounds the recent-trades window exposed in context
// (default 200).
func WithMaxRecentTrades(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxRecentTrades = n
		}
	}
}

// New creates a Manager.
func New(positions domain.PositionStore, r *router.Router, wallet string, logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		positions:       positions,
		router:          r,
		wallet:          wallet,
		logger:          logger.With(slog.String("component", "scheduler")),
		bots:            make(map[string]*botRuntime),
		priceHistory:    make(map[string][]strategy.PricePoint),
		historyWindow:   5 * time.Minute,
		maxRecentTrades: 200,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetFreeCash updates the free-cash figure surfaced in every StrategyContext.
func (m *Manager) SetFreeCash(cash decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.freeCash = cash
}

// PushPrice records a price observation for key (typically
// "platform:marketId:outcome") into the bounded history ring, following the
// same cutoff-based trim idiom as the teacher's strategy.PriceTracker.
func (m *Manager) PushPrice(key string, price decimal.Decimal, ts time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pts := append(m.priceHistory[key], strategy.PricePoint{Price: price, Timestamp: ts})
	cutoff := ts.Add(-m.historyWindow)
	i := 0
	for i < len(pts) && pts[i].Timestamp.Before(cutoff) {
		i++
	}
	m.priceHistory[key] = pts[i:]
}

// RecordTrade appends to the bounded recent-trades window and forwards the
// trade to every running bot's OnTrade hook.
func (m *Manager) RecordTrade(ctx context.Context, tv strategy.TradeView) {
	m.mu.Lock()
	m.recentTrades = append(m.recentTrades, tv)
	if overflow := len(m.recentTrades) - m.maxRecentTrades; overflow > 0 {
		m.recentTrades = append([]strategy.TradeView(nil), m.recentTrades[overflow:]...)
	}
	bots := make([]*botRuntime, 0, len(m.bots))
	for _, b := range m.bots {
		bots = append(bots, b)
	}
	m.mu.Unlock()

	for _, b := range bots {
		b.mu.Lock()
		running := b.state == BotStateRunning
		b.mu.Unlock()
		if !running {
			continue
		}
		if err := b.cfg.Strategy.OnTrade(ctx, tv); err != nil {
			m.logger.Warn("bot OnTrade failed", slog.String("bot", b.cfg.Name), slog.String("error", err.Error()))
		}
	}
}

// RegisterStrategy adds a bot in the stopped state. Call StartBot to begin
// its cadence loop.
func (m *Manager) RegisterStrategy(cfg BotConfig) error {
	if cfg.Name == "" {
		return fmt.Errorf("scheduler: bot name is required")
	}
	if cfg.Cadence <= 0 {
		return fmt.Errorf("scheduler: bot %q: cadence must be positive", cfg.Name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.bots[cfg.Name]; exists {
		return fmt.Errorf("scheduler: bot %q already registered", cfg.Name)
	}
	m.bots[cfg.Name] = &botRuntime{cfg: cfg, state: BotStateStopped}
	return nil
}

// UnregisterStrategy stops (if running) and removes a bot.
func (m *Manager) UnregisterStrategy(name string) error {
	_ = m.StopBot(name)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.bots[name]; !exists {
		return fmt.Errorf("scheduler: bot %q not found", name)
	}
	delete(m.bots, name)
	return nil
}

func (m *Manager) get(name string) (*botRuntime, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bots[name]
	if !ok {
		return nil, fmt.Errorf("scheduler: bot %q not found", name)
	}
	return b, nil
}

// StartBot initializes the strategy and launches its cadence loop.
func (m *Manager) StartBot(ctx context.Context, name string) error {
	b, err := m.get(name)
	if err != nil {
		return err
	}

	b.mu.Lock()
	if b.state == BotStateRunning || b.state == BotStatePaused {
		b.mu.Unlock()
		return fmt.Errorf("scheduler: bot %q already started", name)
	}
	b.mu.Unlock()

	if err := b.cfg.Strategy.Init(ctx); err != nil {
		return fmt.Errorf("scheduler: bot %q init failed: %w", name, err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	b.mu.Lock()
	b.cancel = cancel
	b.state = BotStateRunning
	b.consecutiveErrors = 0
	b.done = make(chan struct{})
	b.mu.Unlock()

	go m.runLoop(loopCtx, b)
	return nil
}

// StopBot cancels the cadence loop and runs the strategy's Cleanup hook.
func (m *Manager) StopBot(name string) error {
	b, err := m.get(name)
	if err != nil {
		return err
	}
	b.mu.Lock()
	if b.state == BotStateStopped {
		b.mu.Unlock()
		return nil
	}
	cancel := b.cancel
	done := b.done
	b.state = BotStateStopped
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	if err := b.cfg.Strategy.Cleanup(); err != nil {
		m.logger.Warn("bot cleanup failed", slog.String("bot", name), slog.String("error", err.Error()))
	}
	return nil
}

// PauseBot stops cadence evaluation without cancelling the loop or running
// Cleanup, so ResumeBot can restart evaluation cheaply.
func (m *Manager) PauseBot(name string) error {
	b, err := m.get(name)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != BotStateRunning {
		return fmt.Errorf("scheduler: bot %q is not running", name)
	}
	b.state = BotStatePaused
	return nil
}

// ResumeBot resumes cadence evaluation for a paused bot.
func (m *Manager) ResumeBot(name string) error {
	b, err := m.get(name)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != BotStatePaused {
		return fmt.Errorf("scheduler: bot %q is not paused", name)
	}
	b.state = BotStateRunning
	b.consecutiveErrors = 0
	return nil
}

// EvaluateNow forces one immediate evaluation outside the normal cadence,
// regardless of pause state. It does not reset the cadence timer.
func (m *Manager) EvaluateNow(ctx context.Context, name string) ([]strategy.Signal, error) {
	b, err := m.get(name)
	if err != nil {
		return nil, err
	}
	return m.evaluateOnce(ctx, b)
}

// GetBotStatus returns the current status of a single bot.
func (m *Manager) GetBotStatus(name string) (BotStatus, error) {
	b, err := m.get(name)
	if err != nil {
		return BotStatus{}, err
	}
	return b.snapshot(), nil
}

// GetAllBotStatuses returns the status of every registered bot.
func (m *Manager) GetAllBotStatuses() []BotStatus {
	m.mu.Lock()
	bots := make([]*botRuntime, 0, len(m.bots))
	for _, b := range m.bots {
		bots = append(bots, b)
	}
	m.mu.Unlock()

	out := make([]BotStatus, 0, len(bots))
	for _, b := range bots {
		out = append(out, b.snapshot())
	}
	return out
}

func (b *botRuntime) snapshot() BotStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := BotStatus{
		Name:              b.cfg.Name,
		State:             b.state,
		ConsecutiveErrors: b.consecutiveErrors,
		LastEvaluatedAt:   b.lastEvaluatedAt,
		LastSignalCount:   b.lastSignalCount,
	}
	if b.lastErr != nil {
		s.LastError = b.lastErr.Error()
	}
	return s
}

// runLoop is the per-bot cadence goroutine: it ticks at cfg.Cadence plus
// jitter, skipping (not queueing) a tick if the previous evaluation has not
// finished yet.
func (m *Manager) runLoop(ctx context.Context, b *botRuntime) {
	defer close(b.done)

	timer := time.NewTimer(jittered(b.cfg.Cadence, b.cfg.JitterFraction))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			b.mu.Lock()
			state := b.state
			inFlight := b.inFlight
			if !inFlight {
				b.inFlight = true
			}
			b.mu.Unlock()

			if state == BotStateRunning && !inFlight {
				if _, err := m.evaluateOnce(ctx, b); err != nil {
					m.logger.Warn("bot evaluation failed", slog.String("bot", b.cfg.Name), slog.String("error", err.Error()))
				}
				b.mu.Lock()
				b.inFlight = false
				b.mu.Unlock()
			}

			timer.Reset(jittered(b.cfg.Cadence, b.cfg.JitterFraction))
		}
	}
}

func jittered(base time.Duration, fraction float64) time.Duration {
	if fraction <= 0 {
		return base
	}
	delta := time.Duration(float64(base) * fraction)
	offset := time.Duration(rand.Int63n(int64(2*delta+1))) - delta
	d := base + offset
	if d <= 0 {
		d = base
	}
	return d
}

// evaluateOnce builds a context, calls Evaluate, dispatches any signals to
// the router, and applies the 3-consecutive-error auto-pause rule.
func (m *Manager) evaluateOnce(ctx context.Context, b *botRuntime) ([]strategy.Signal, error) {
	sctx, err := m.buildContext(ctx)
	if err != nil {
		m.recordError(b, err)
		return nil, err
	}

	signals, err := b.cfg.Strategy.Evaluate(ctx, sctx)

	b.mu.Lock()
	b.lastEvaluatedAt = time.Now().UTC()
	b.lastSignalCount = len(signals)
	b.mu.Unlock()

	if err != nil {
		m.recordError(b, err)
		return nil, err
	}

	b.mu.Lock()
	b.consecutiveErrors = 0
	b.lastErr = nil
	b.mu.Unlock()

	for _, sig := range signals {
		if m.router != nil {
			m.router.Admit(ctx, sig, m.wallet)
		}
	}
	return signals, nil
}

func (m *Manager) recordError(b *botRuntime, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveErrors++
	b.lastErr = err
	if b.consecutiveErrors >= maxConsecutiveErrors && b.state == BotStateRunning {
		b.state = BotStateError
		m.logger.Error("bot auto-paused after consecutive errors",
			slog.String("bot", b.cfg.Name),
			slog.Int("consecutive_errors", b.consecutiveErrors),
		)
	}
}

// buildContext assembles a read-only StrategyContext snapshot from current
// position and price-history state, cloning everything so the returned
// value can never alias scheduler-internal state.
func (m *Manager) buildContext(ctx context.Context) (*strategy.StrategyContext, error) {
	openPositions, err := m.positions.GetOpen(ctx, m.wallet)
	if err != nil {
		return nil, fmt.Errorf("scheduler: get open positions: %w", err)
	}

	positions := make(map[string]strategy.PositionView, len(openPositions))
	exposure := decimal.Zero
	for _, p := range openPositions {
		pv := strategy.PositionView{
			MarketID:      p.MarketID,
			Outcome:       p.TokenID,
			Side:          p.Direction,
			Size:          decimal.NewFromFloat(p.Size),
			EntryPrice:    decimal.NewFromFloat(p.EntryPrice),
			CurrentPrice:  decimal.NewFromFloat(p.CurrentPrice),
			UnrealizedPnL: decimal.NewFromFloat(p.UnrealizedPnL),
			OpenedAt:      p.OpenedAt,
		}
		positions[p.MarketID+":"+p.TokenID] = pv
		exposure = exposure.Add(pv.CurrentPrice.Mul(pv.Size))
	}

	m.mu.Lock()
	freeCash := m.freeCash
	history := make(map[string][]strategy.PricePoint, len(m.priceHistory))
	for k, v := range m.priceHistory {
		history[k] = append([]strategy.PricePoint(nil), v...)
	}
	trades := append([]strategy.TradeView(nil), m.recentTrades...)
	m.mu.Unlock()

	sctx := &strategy.StrategyContext{
		PortfolioValue: freeCash.Add(exposure),
		FreeCash:       freeCash,
		Positions:      positions,
		RecentTrades:   trades,
		PriceHistory:   history,
		Timestamp:      time.Now().UTC(),
	}
	clone := sctx.Clone()
	return &clone, nil
}
