package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/teamnova/tradecore/internal/config"
	"github.com/teamnova/tradecore/internal/crypto"
	"github.com/teamnova/tradecore/internal/domain"
	"github.com/teamnova/tradecore/internal/execution"
	"github.com/teamnova/tradecore/internal/marketmaking"
	"github.com/teamnova/tradecore/internal/metrics"
	"github.com/teamnova/tradecore/internal/platform/polymarket"
	"github.com/teamnova/tradecore/internal/position"
	"github.com/teamnova/tradecore/internal/router"
	"github.com/teamnova/tradecore/internal/scheduler"
	"github.com/teamnova/tradecore/internal/service"
	"github.com/teamnova/tradecore/internal/strategy"
)

// TradingRuntime bundles the signal-admission, execution, and position-
// monitoring layer built on top of Dependencies and a signer. It is the
// cadence-driven counterpart to the event-driven Executor that TradeMode and
// FullMode already run.
type TradingRuntime struct {
	Router    *router.Router
	Position  *position.Manager
	Scheduler *scheduler.Manager
	execSvc   *execution.Service
}

// dispatcherAdapter satisfies router.Dispatcher by forwarding to an
// execution.Service, translating its DispatchRequest into an
// execution.OrderRequest.
type dispatcherAdapter struct {
	svc *execution.Service
}

func (d *dispatcherAdapter) BuyLimit(ctx context.Context, req router.DispatchRequest) (domain.OrderResult, error) {
	result, err := d.svc.BuyLimit(ctx, toOrderRequest(req))
	if err == nil {
		metrics.RecordFill(req.Platform, "buy", 0)
	}
	return result, err
}

func (d *dispatcherAdapter) SellLimit(ctx context.Context, req router.DispatchRequest) (domain.OrderResult, error) {
	result, err := d.svc.SellLimit(ctx, toOrderRequest(req))
	if err == nil {
		metrics.RecordFill(req.Platform, "sell", 0)
	}
	return result, err
}

func toOrderRequest(req router.DispatchRequest) execution.OrderRequest {
	return execution.OrderRequest{
		Platform:      req.Platform,
		MarketID:      req.MarketID,
		TokenID:       req.TokenID,
		Price:         req.Price,
		Size:          req.Size,
		Source:        req.Source,
		ClientOrderID: req.ClientOrderID,
	}
}

// positionCloserAdapter satisfies position.Closer by routing the close
// through the execution layer (an aggressive limit order crossing the
// book) and then persisting the result through PositionService: a full
// close when closeSize covers the whole position, a size reduction
// otherwise (a partial take-profit ladder rung).
type positionCloserAdapter struct {
	exec   *execution.Service
	posSvc *service.PositionService
	store  domain.PositionStore
	prices domain.PriceCache
	logger *slog.Logger
}

func (c *positionCloserAdapter) ClosePosition(ctx context.Context, pos domain.Position, closeSize float64) (domain.OrderResult, error) {
	price, _, err := c.prices.GetPrice(ctx, pos.TokenID)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("position close: read price: %w", err)
	}

	req := execution.OrderRequest{
		Platform: "polymarket",
		MarketID: pos.MarketID,
		TokenID:  pos.TokenID,
		Price:    decimal.NewFromFloat(price),
		Size:     decimal.NewFromFloat(closeSize),
		Source:   "position_manager",
	}

	var result domain.OrderResult
	if pos.Direction == domain.OrderSideBuy {
		result, err = c.exec.SellLimit(ctx, req)
	} else {
		result, err = c.exec.BuyLimit(ctx, req)
	}
	if err != nil {
		return result, err
	}
	if !result.Success {
		return result, fmt.Errorf("position close: order not filled: %s", result.Message)
	}

	exitPrice := result.FilledPrice
	if exitPrice == 0 {
		exitPrice = price
	}

	if closeSize >= pos.Size*0.999 {
		if err := c.posSvc.ClosePosition(ctx, pos.ID, exitPrice); err != nil {
			c.logger.ErrorContext(ctx, "position close: persist failed", slog.String("position_id", pos.ID), slog.String("error", err.Error()))
		}
		metrics.RecordPositionClose("sweep")
	} else {
		reduced := pos
		reduced.Size = pos.Size - closeSize
		reduced.CurrentPrice = price
		reduced.RealizedPnL += (exitPrice - pos.EntryPrice) * closeSize * directionSign(pos.Direction)
		if err := c.store.Update(ctx, reduced); err != nil {
			c.logger.WarnContext(ctx, "position close: partial update failed", slog.String("position_id", pos.ID), slog.String("error", err.Error()))
		}
		metrics.RecordPositionClose("tp_ladder")
	}
	return result, nil
}

func directionSign(side domain.OrderSide) float64 {
	if side == domain.OrderSideSell {
		return -1
	}
	return 1
}

// buildTradingRuntime constructs the router/position/scheduler stack shared
// by Trade and Full mode. It builds its own signer, CLOB client and
// OrderService with the same construction sequence buildExecutor uses, so
// both pipelines submit through the same kind of audited, rate-limited order
// path.
func (a *App) buildTradingRuntime(ctx context.Context, deps *Dependencies, sd *strategyDeps) (*TradingRuntime, error) {
	signer, err := crypto.NewSigner(a.cfg.Wallet.PrivateKey, a.cfg.Polymarket.ChainID)
	if err != nil {
		return nil, fmt.Errorf("build trading runtime: signer: %w", err)
	}

	clobClient := polymarket.NewClobClient(a.cfg.Polymarket.ClobHost, signer, nil)
	if err := clobClient.DeriveAPIKey(ctx); err != nil {
		a.logger.WarnContext(ctx, "build trading runtime: derive API key failed, CLOB submission disabled",
			slog.String("error", err.Error()))
		clobClient = nil
	}

	orderSvc := service.NewOrderService(
		deps.OrderStore, deps.PositionStore, deps.BookCache,
		deps.PriceCache, deps.RateLimiter, deps.SignalBus,
		deps.AuditStore, signer, a.logger,
	)
	if clobClient != nil {
		orderSvc.WithClobClient(clobClient)
	}

	execSvc := execution.NewService(orderSvc, signer.Address().Hex(), a.logger,
		execution.WithOrderbookCache(deps.BookCache),
		execution.WithMaxTrackedFills(a.cfg.Execution.MaxTrackedFills),
		execution.WithNotifier(deps.Notifier),
	)

	routerCfg := router.DefaultConfig()
	routerCfg.MinConfidence = a.cfg.Router.MinConfidence
	routerCfg.MaxPositions = a.cfg.Router.MaxPositions
	routerCfg.CooldownPerKey = time.Duration(a.cfg.Router.CooldownSeconds) * time.Second
	routerCfg.DailyLossLimit = decimal.NewFromFloat(a.cfg.Router.DailyLossLimit)
	routerCfg.MaxExposure = decimal.NewFromFloat(a.cfg.Router.MaxExposure)
	routerCfg.DefaultSizeUSD = decimal.NewFromFloat(a.cfg.Router.DefaultSizeUSD)
	routerCfg.AllowedTypes = allowedSignalTypes(a.cfg.Router.AllowedTypes)

	rtr := router.New(routerCfg, &dispatcherAdapter{svc: execSvc}, deps.PositionStore, a.logger,
		router.WithLockManager(deps.LockManager))

	posSvc := service.NewPositionService(deps.PositionStore, deps.PriceCache, deps.SignalBus, deps.AuditStore, a.logger)
	posMgr := position.New(deps.PositionStore, deps.PriceCache, &positionCloserAdapter{
		exec: execSvc, posSvc: posSvc, store: deps.PositionStore, prices: deps.PriceCache, logger: a.logger,
	}, a.logger).WithNotifier(deps.Notifier)

	sched := scheduler.New(deps.PositionStore, rtr, signer.Address().Hex(), a.logger,
		scheduler.WithHistoryWindow(time.Duration(a.cfg.Scheduler.HistoryWindowMinutes)*time.Minute),
		scheduler.WithMaxRecentTrades(a.cfg.Scheduler.MaxRecentTrades),
	)

	return &TradingRuntime{Router: rtr, Position: posMgr, Scheduler: sched, execSvc: execSvc}, nil
}

func allowedSignalTypes(names []string) map[strategy.SignalType]bool {
	if len(names) == 0 {
		return map[strategy.SignalType]bool{strategy.SignalBuy: true, strategy.SignalSell: true}
	}
	out := make(map[strategy.SignalType]bool, len(names))
	for _, n := range names {
		out[strategy.SignalType(n)] = true
	}
	return out
}

// newMarketMakingEngineConfig translates the TOML-level market-making
// section into marketmaking.Config, one per quoted token.
func newMarketMakingEngineConfig(cfg config.MarketMakingConfig) marketmaking.Config {
	return marketmaking.Config{
		Gamma:               cfg.Gamma,
		Sigma:               cfg.Sigma,
		K:                   cfg.K,
		T:                   cfg.T,
		MinSpreadBps:        cfg.MinSpreadBps,
		LadderLevels:        cfg.LadderLevels,
		LadderStepBps:       cfg.LadderStepBps,
		RequoteThresholdBps: cfg.RequoteThresholdBps,
		RequoteInterval:     time.Duration(cfg.RequoteIntervalMs) * time.Millisecond,
		EMAAlpha:            cfg.EMAAlpha,
		MaxInventory:        decimal.NewFromFloat(cfg.MaxInventory),
		MaxLossUSD:          decimal.NewFromFloat(cfg.MaxLossUSD),
	}
}

// runPositionSweep runs the position manager's SL/TP/trailing-stop/ladder
// sweep loop until ctx is canceled.
func (a *App) runPositionSweep(ctx context.Context, rt *TradingRuntime, wallet string) error {
	interval := time.Duration(a.cfg.Position.SweepIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return rt.Position.Run(ctx, wallet, interval)
}
