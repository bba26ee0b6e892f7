package execution

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/teamnova/tradecore/internal/domain"
)

// OrderRequest is the venue-agnostic order intent the router and position
// manager build from a strategy.Signal or a manual command before handing it
// to the execution Service.
type OrderRequest struct {
	Platform      string
	MarketID      string
	TokenID       string
	Side          domain.OrderSide
	Price         decimal.Decimal
	Size          decimal.Decimal
	Source        string // strategy name or "manual"
	ClientOrderID string // caller-supplied idempotency key; generated if empty
	ExpiresAt     time.Time
}

// Fill is a tracked execution result kept in the service's bounded
// in-memory ring, independent of whatever persistent OrderStore the
// platform-layer OrderPlacer writes to.
type Fill struct {
	OrderID     string
	Platform    string
	MarketID    string
	TokenID     string
	Side        domain.OrderSide
	RequestedPrice decimal.Decimal
	FilledPrice    decimal.Decimal
	Size           decimal.Decimal
	SlippageBps    float64
	Timestamp      time.Time
}

// Notifier is the subset of notify.Notifier the execution service uses to
// alert operators when a venue's circuit breaker trips. Kept as a local
// interface so this package does not depend on internal/notify directly.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// orderPlacer is the subset of service.OrderService this package depends on
// (already idempotent per TradeSignal.ID, already signs/persists/audits).
type orderPlacer interface {
	PlaceOrder(ctx context.Context, sig domain.TradeSignal) (domain.OrderResult, error)
	CancelOrder(ctx context.Context, orderID string) error
	GetOrder(ctx context.Context, id string) (domain.Order, error)
	ListOpen(ctx context.Context, wallet string) ([]domain.Order, error)
}

// Service is the venue-agnostic execution contract of spec section 4.B. It
// sends every request, whatever its Platform, to the one orderPlacer it was
// built with, guarded by a circuit breaker kept per OrderRequest.Platform; it
// does not use VenueAdapter. It de-duplicates concurrent identical submissions with
// singleflight, and keeps a bounded fill history for slippage reporting.
type Service struct {
	placer   orderPlacer
	book     domain.OrderbookCache
	wallet   string
	logger   *slog.Logger
	notifier Notifier

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
	fills    []Fill
	maxFills int

	sf singleflight.Group
}

// Option configures a Service at construction time.
type Option func(*Service)

// WithOrderbookCache supplies the book used by EstimateSlippage and
// protected-order price checks.
func WithOrderbookCache(book domain.OrderbookCache) Option {
	return func(s *Service) { s.book = book }
}

// WithMaxTrackedFills bounds the in-memory fill ring (default 1000).
func WithMaxTrackedFills(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxFills = n
		}
	}
}

// WithNotifier attaches an operator-alert sink. When set, a venue's circuit
// breaker tripping into CircuitOpen sends a notification; nil is a valid
// no-op default.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// NewService builds an execution Service. placer is typically a
// *service.OrderService already wired with a signer and CLOB poster; wallet
// is the address used for ListOpen/CancelAll scoping.
func NewService(placer orderPlacer, wallet string, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		placer:   placer,
		wallet:   wallet,
		logger:   logger.With(slog.String("component", "execution")),
		breakers: make(map[string]*CircuitBreaker),
		maxFills: 1000,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) breakerFor(platform string) *CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	cb, ok := s.breakers[platform]
	if !ok {
		cb = NewCircuitBreaker(DefaultCircuitBreakerConfig())
		s.breakers[platform] = cb
	}
	return cb
}

// GetCircuitBreakerState reports the current breaker state for a platform.
func (s *Service) GetCircuitBreakerState(platform string) CircuitState {
	return s.breakerFor(platform).State()
}

// BuyLimit submits a resting GTC buy limit order.
func (s *Service) BuyLimit(ctx context.Context, req OrderRequest) (domain.OrderResult, error) {
	req.Side = domain.OrderSideBuy
	return s.submit(ctx, req, false)
}

// SellLimit submits a resting GTC sell limit order.
func (s *Service) SellLimit(ctx context.Context, req OrderRequest) (domain.OrderResult, error) {
	req.Side = domain.OrderSideSell
	return s.submit(ctx, req, false)
}

// MakerBuy submits a post-only buy: it is rejected locally with
// ErrWouldCross without reaching the venue if req.Price would cross the
// current best ask.
func (s *Service) MakerBuy(ctx context.Context, req OrderRequest) (domain.OrderResult, error) {
	req.Side = domain.OrderSideBuy
	if err := s.checkWouldCross(ctx, req); err != nil {
		return domain.OrderResult{}, err
	}
	return s.submit(ctx, req, false)
}

// MakerSell submits a post-only sell, symmetric to MakerBuy.
func (s *Service) MakerSell(ctx context.Context, req OrderRequest) (domain.OrderResult, error) {
	req.Side = domain.OrderSideSell
	if err := s.checkWouldCross(ctx, req); err != nil {
		return domain.OrderResult{}, err
	}
	return s.submit(ctx, req, false)
}

func (s *Service) checkWouldCross(ctx context.Context, req OrderRequest) error {
	if s.book == nil {
		return nil
	}
	snap, err := s.book.GetSnapshot(ctx, req.TokenID)
	if err != nil {
		return nil // no book data yet: let the venue enforce post-only
	}
	price, _ := req.Price.Float64()
	if req.Side == domain.OrderSideBuy && snap.BestAsk > 0 && price >= snap.BestAsk {
		return fmt.Errorf("execution: maker buy at %.6f crosses best ask %.6f: %w", price, snap.BestAsk, domain.ErrWouldCross)
	}
	if req.Side == domain.OrderSideSell && snap.BestBid > 0 && price <= snap.BestBid {
		return fmt.Errorf("execution: maker sell at %.6f crosses best bid %.6f: %w", price, snap.BestBid, domain.ErrWouldCross)
	}
	return nil
}

// ProtectedBuy submits a market-style buy (GTC at an aggressive price) but
// rejects it with ErrSlippageExceeded when the estimated slippage against
// the current book exceeds maxSlippageBps.
func (s *Service) ProtectedBuy(ctx context.Context, req OrderRequest, maxSlippageBps float64) (domain.OrderResult, error) {
	req.Side = domain.OrderSideBuy
	return s.submitProtected(ctx, req, maxSlippageBps)
}

// ProtectedSell is the sell-side counterpart of ProtectedBuy.
func (s *Service) ProtectedSell(ctx context.Context, req OrderRequest, maxSlippageBps float64) (domain.OrderResult, error) {
	req.Side = domain.OrderSideSell
	return s.submitProtected(ctx, req, maxSlippageBps)
}

func (s *Service) submitProtected(ctx context.Context, req OrderRequest, maxSlippageBps float64) (domain.OrderResult, error) {
	estBps, err := s.EstimateSlippage(ctx, req.TokenID, req.Side, req.Size)
	if err == nil && maxSlippageBps > 0 && estBps > maxSlippageBps {
		return domain.OrderResult{}, fmt.Errorf("execution: estimated slippage %.1fbps exceeds max %.1fbps: %w", estBps, maxSlippageBps, domain.ErrSlippageExceeded)
	}
	return s.submit(ctx, req, true)
}

// EstimateSlippage walks the cached orderbook on the opposite side of the
// trade and returns the volume-weighted slippage in basis points relative
// to the current mid/best price, the way risk_service's slippage-bps check
// is computed but generalized to full book depth instead of a single level.
func (s *Service) EstimateSlippage(ctx context.Context, tokenID string, side domain.OrderSide, size decimal.Decimal) (float64, error) {
	if s.book == nil {
		return 0, nil
	}
	snap, err := s.book.GetSnapshot(ctx, tokenID)
	if err != nil {
		return 0, err
	}

	levels := snap.Asks
	reference := snap.BestAsk
	if side == domain.OrderSideSell {
		levels = snap.Bids
		reference = snap.BestBid
	}
	if reference <= 0 {
		return 0, fmt.Errorf("execution: no reference price for %s", tokenID)
	}

	remaining, _ := size.Float64()
	var notional, filled float64
	for _, lvl := range levels {
		take := lvl.Size
		if take > remaining {
			take = remaining
		}
		notional += take * lvl.Price
		filled += take
		remaining -= take
		if remaining <= 0 {
			break
		}
	}
	if filled <= 0 {
		return 0, fmt.Errorf("execution: empty book depth for %s", tokenID)
	}
	vwap := notional / filled
	return (vwap - reference) / reference * 10000 * sign(side), nil
}

func sign(side domain.OrderSide) float64 {
	if side == domain.OrderSideSell {
		return -1
	}
	return 1
}

// submit runs an OrderRequest through the circuit breaker and idempotency
// dedup, then dispatches to the placer once (there is no retry). The bool
// parameter (protected) is accepted but unused: every recorded fill gets its
// slippage computed the same way.
func (s *Service) submit(ctx context.Context, req OrderRequest, _ bool) (domain.OrderResult, error) {
	cb := s.breakerFor(req.Platform)
	allowed, _ := cb.Allow()
	if !allowed {
		return domain.OrderResult{}, fmt.Errorf("execution: %s: %w", req.Platform, domain.ErrCircuitOpen)
	}

	if req.ClientOrderID == "" {
		req.ClientOrderID = uuid.New().String()
	}

	sfKey := req.Platform + ":" + req.ClientOrderID
	v, err, _ := s.sf.Do(sfKey, func() (any, error) {
		sig := domain.TradeSignal{
			ID:         req.ClientOrderID,
			Source:     req.Source,
			MarketID:   req.MarketID,
			TokenID:    req.TokenID,
			Side:       req.Side,
			PriceTicks: toTicks(req.Price),
			SizeUnits:  toTicks(req.Size),
			Reason:     req.Source,
			CreatedAt:  time.Now().UTC(),
			ExpiresAt:  req.ExpiresAt,
		}
		return s.placer.PlaceOrder(ctx, sig)
	})

	result, _ := v.(domain.OrderResult)

	// A permanent rejection is the caller's fault, not the venue's, so it
	// counts as a healthy response for breaker accounting.
	class := classify(err)
	if tripped := cb.RecordResult(err == nil || class == ClassPermanent); tripped {
		s.notifyBreakerTripped(ctx, req.Platform)
	}

	if err != nil {
		return result, err
	}

	s.recordFill(req, result)
	return result, nil
}

// notifyBreakerTripped alerts operators the moment a venue's breaker opens.
// Best-effort: a notify failure is logged, never returned to the caller
// whose order submission already failed for its own reason.
func (s *Service) notifyBreakerTripped(ctx context.Context, platform string) {
	s.logger.WarnContext(ctx, "circuit breaker tripped", slog.String("platform", platform))
	if s.notifier == nil {
		return
	}
	msg := fmt.Sprintf("execution: circuit breaker for %s tripped open after repeated failures", platform)
	if err := s.notifier.Notify(ctx, "circuit_breaker_open", "Circuit breaker open", msg); err != nil {
		s.logger.ErrorContext(ctx, "notify: circuit breaker alert failed", slog.String("error", err.Error()))
	}
}

func toTicks(d decimal.Decimal) int64 {
	return d.Mul(decimal.NewFromInt(1_000_000)).Round(0).IntPart()
}

func (s *Service) recordFill(req OrderRequest, result domain.OrderResult) {
	requested, _ := req.Price.Float64()
	var slippageBps float64
	if result.FilledPrice > 0 && requested > 0 {
		slippageBps = (result.FilledPrice - requested) / requested * 10000 * sign(req.Side)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.fills = append(s.fills, Fill{
		OrderID:        result.OrderID,
		Platform:       req.Platform,
		MarketID:       req.MarketID,
		TokenID:        req.TokenID,
		Side:           req.Side,
		RequestedPrice: req.Price,
		FilledPrice:    decimal.NewFromFloat(result.FilledPrice),
		Size:           req.Size,
		SlippageBps:    slippageBps,
		Timestamp:      time.Now().UTC(),
	})
	if len(s.fills) > s.maxFills {
		s.fills = s.fills[len(s.fills)-s.maxFills:]
	}
}

// GetTrackedFills returns a copy of the bounded in-memory fill history.
func (s *Service) GetTrackedFills() []Fill {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Fill, len(s.fills))
	copy(out, s.fills)
	return out
}

// CancelOrder cancels a single resting order.
func (s *Service) CancelOrder(ctx context.Context, orderID string) error {
	return s.placer.CancelOrder(ctx, orderID)
}

// CancelAllOrders cancels every open order for the configured wallet.
func (s *Service) CancelAllOrders(ctx context.Context) error {
	open, err := s.placer.ListOpen(ctx, s.wallet)
	if err != nil {
		return fmt.Errorf("execution: list open orders: %w", err)
	}
	var firstErr error
	for _, o := range open {
		if err := s.placer.CancelOrder(ctx, o.ID); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// GetOrder returns the current state of a single order.
func (s *Service) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	return s.placer.GetOrder(ctx, orderID)
}

// GetOpenOrders returns every open order for the configured wallet.
func (s *Service) GetOpenOrders(ctx context.Context) ([]domain.Order, error) {
	return s.placer.ListOpen(ctx, s.wallet)
}
