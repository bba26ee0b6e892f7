// Package position extends the teacher's position-lifecycle service with the
// trigger machinery from spec section 4.F: trailing stops, partial
// take-profit ladders, and a periodic sweep that closes positions through a
// pluggable Closer instead of requiring the caller to poll
// CheckStopLoss/CheckTakeProfit manually.
package position

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teamnova/tradecore/internal/domain"
)

// Closer executes the opposite-side order that closes (or partially closes)
// a position. It is satisfied by a thin wrapper over internal/execution's
// Service; kept as a local interface so this package does not import
// execution directly, mirroring internal/router's Dispatcher pattern.
type Closer interface {
	ClosePosition(ctx context.Context, pos domain.Position, closeSize float64) (domain.OrderResult, error)
}

// Notifier is the subset of notify.Notifier the position manager uses to
// alert operators when a stop-loss, take-profit, or trailing stop fires.
// Kept as a local interface so this package does not import notify.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// TrailingStop configures a tightening-only stop that follows the position's
// best-seen price by TrailPct. The reference price persists across partial
// closes: it is keyed to the position ID, not to remaining size.
type TrailingStop struct {
	TrailPct float64 // e.g. 0.05 for a 5% trail
	best     float64 // highest price seen for a long, lowest for a short
}

// LadderRung is one step of a partial take-profit ladder: when the
// position's unrealized return reaches TriggerPct, ClosePct of the
// *original* size is closed. Each rung fires at most once.
type LadderRung struct {
	TriggerPct float64
	ClosePct   float64
	fired      bool
}

type tracked struct {
	mu           sync.Mutex // at-most-once close guard for this position
	closed       bool
	trailing     *TrailingStop
	ladder       []LadderRung
	originalSize float64
}

// Manager wraps the teacher's position service with trigger extensions. It
// is safe for concurrent use.
type Manager struct {
	positions domain.PositionStore
	prices    domain.PriceCache
	closer    Closer
	notifier  Notifier
	logger    *slog.Logger

	mu       sync.Mutex
	tracking map[string]*tracked // position ID -> trigger state
}

// New creates a Manager. positions and prices are the same store/cache
// interfaces the teacher's service.PositionService already depends on.
func New(positions domain.PositionStore, prices domain.PriceCache, closer Closer, logger *slog.Logger) *Manager {
	return &Manager{
		positions: positions,
		prices:    prices,
		closer:    closer,
		logger:    logger.With(slog.String("component", "position_manager")),
		tracking:  make(map[string]*tracked),
	}
}

// WithNotifier attaches an operator-alert sink for triggered closes. Nil is
// a valid no-op default; call before Run/Sweep start.
func (m *Manager) WithNotifier(n Notifier) *Manager {
	m.notifier = n
	return m
}

// Track registers trailing-stop and/or partial-TP-ladder triggers for an
// already-open position. Either argument may be nil/empty to skip that
// trigger family.
func (m *Manager) Track(posID string, originalSize float64, trailing *TrailingStop, ladder []LadderRung) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracking[posID] = &tracked{
		trailing:     trailing,
		ladder:       append([]LadderRung(nil), ladder...),
		originalSize: originalSize,
	}
}

// Untrack stops trigger evaluation for a position, e.g. after it fully
// closes.
func (m *Manager) Untrack(posID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tracking, posID)
}

func (m *Manager) stateFor(posID string) *tracked {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tracking[posID]
}

// Sweep evaluates stop-loss, take-profit, trailing-stop, and partial-TP
// triggers for every open position of wallet and executes closes through
// the configured Closer. It returns the positions it fully or partially
// closed this pass.
func (m *Manager) Sweep(ctx context.Context, wallet string) ([]domain.Position, error) {
	open, err := m.positions.GetOpen(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("position: sweep: get open positions: %w", err)
	}

	var acted []domain.Position
	for _, pos := range open {
		price, _, err := m.prices.GetPrice(ctx, pos.TokenID)
		if err != nil || price <= 0 {
			continue
		}

		if m.evaluate(ctx, pos, price) {
			acted = append(acted, pos)
		}
	}
	return acted, nil
}

// Run starts a periodic sweep loop at the given interval until ctx is
// cancelled. This generalizes the teacher's service layer (which exposed
// CheckStopLoss/CheckTakeProfit for the caller to poll) into a self-driving
// loop, matching the cadence idiom used by internal/scheduler.
func (m *Manager) Run(ctx context.Context, wallet string, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := m.Sweep(ctx, wallet); err != nil {
				m.logger.Warn("sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

// evaluate checks and, if triggered, executes the close/partial-close
// decision for one position at the given current price. It returns true if
// an order was placed.
func (m *Manager) evaluate(ctx context.Context, pos domain.Position, price float64) bool {
	st := m.stateFor(pos.ID)

	// Hard stop-loss / take-profit (teacher's fixed-level triggers).
	if hit, reason := fixedLevelHit(pos, price); hit {
		m.closeOnce(ctx, pos, pos.Size, reason)
		m.Untrack(pos.ID)
		return true
	}

	if st == nil {
		return false
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed {
		return false
	}

	if st.trailing != nil {
		if trail := st.trailing; checkTrailingStop(pos, price, trail) {
			m.closeOnceLocked(ctx, pos, pos.Size, "trailing_stop")
			st.closed = true
			return true
		}
	}

	acted := false
	for i := range st.ladder {
		rung := &st.ladder[i]
		if rung.fired {
			continue
		}
		if returnPct(pos, price) >= rung.TriggerPct {
			closeSize := st.originalSize * rung.ClosePct
			if closeSize > pos.Size {
				closeSize = pos.Size
			}
			if closeSize <= 0 {
				rung.fired = true
				continue
			}
			m.closeOnceLocked(ctx, pos, closeSize, fmt.Sprintf("tp_ladder_rung_%d", i))
			rung.fired = true
			acted = true
		}
	}
	return acted
}

func fixedLevelHit(pos domain.Position, price float64) (bool, string) {
	if pos.StopLoss != nil {
		sl := *pos.StopLoss
		if (pos.Direction == domain.OrderSideBuy && price <= sl) ||
			(pos.Direction == domain.OrderSideSell && price >= sl) {
			return true, "stop_loss"
		}
	}
	if pos.TakeProfit != nil {
		tp := *pos.TakeProfit
		if (pos.Direction == domain.OrderSideBuy && price >= tp) ||
			(pos.Direction == domain.OrderSideSell && price <= tp) {
			return true, "take_profit"
		}
	}
	return false, ""
}

// checkTrailingStop updates trail.best with the new high/low watermark and
// reports whether the trail has been breached. The watermark only ever
// tightens toward the current price, never loosens.
func checkTrailingStop(pos domain.Position, price float64, trail *TrailingStop) bool {
	if trail.best == 0 {
		trail.best = price
		return false
	}

	switch pos.Direction {
	case domain.OrderSideBuy:
		if price > trail.best {
			trail.best = price
		}
		stop := trail.best * (1 - trail.TrailPct)
		return price <= stop
	case domain.OrderSideSell:
		if price < trail.best {
			trail.best = price
		}
		stop := trail.best * (1 + trail.TrailPct)
		return price >= stop
	}
	return false
}

func returnPct(pos domain.Position, price float64) float64 {
	if pos.EntryPrice <= 0 {
		return 0
	}
	switch pos.Direction {
	case domain.OrderSideBuy:
		return (price - pos.EntryPrice) / pos.EntryPrice
	case domain.OrderSideSell:
		return (pos.EntryPrice - price) / pos.EntryPrice
	}
	return 0
}

// closeOnce acquires the per-position guard before closing; used by the
// fixed stop-loss/take-profit path, which may run without a tracked state.
func (m *Manager) closeOnce(ctx context.Context, pos domain.Position, size float64, reason string) {
	st := m.stateFor(pos.ID)
	if st != nil {
		st.mu.Lock()
		defer st.mu.Unlock()
		if st.closed {
			return
		}
		m.closeOnceLocked(ctx, pos, size, reason)
		st.closed = true
		return
	}
	m.doClose(ctx, pos, size, reason)
}

// closeOnceLocked performs the close; the caller must already hold st.mu
// when a tracked state exists for this position, guaranteeing at most one
// in-flight close per position.
func (m *Manager) closeOnceLocked(ctx context.Context, pos domain.Position, size float64, reason string) {
	m.doClose(ctx, pos, size, reason)
}

func (m *Manager) doClose(ctx context.Context, pos domain.Position, size float64, reason string) {
	result, err := m.closer.ClosePosition(ctx, pos, size)
	if err != nil {
		m.logger.Error("close order failed",
			slog.String("position_id", pos.ID),
			slog.String("reason", reason),
			slog.String("error", err.Error()),
		)
		return
	}
	m.logger.Info("position close triggered",
		slog.String("position_id", pos.ID),
		slog.String("reason", reason),
		slog.Float64("size", size),
		slog.String("order_id", result.OrderID),
	)
	if m.notifier == nil {
		return
	}
	msg := fmt.Sprintf("position %s closed %.4f units on %s", pos.ID, size, reason)
	if nerr := m.notifier.Notify(ctx, "position_closed", "Position closed", msg); nerr != nil {
		m.logger.Error("notify: position close alert failed", slog.String("error", nerr.Error()))
	}
}
