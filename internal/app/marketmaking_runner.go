package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/teamnova/tradecore/internal/domain"
	"github.com/teamnova/tradecore/internal/execution"
	"github.com/teamnova/tradecore/internal/marketmaking"
	"github.com/teamnova/tradecore/internal/metrics"
)

// marketMaker runs one marketmaking.Engine against one token's orderbook,
// replacing resting quotes on the requote-discipline schedule the engine
// itself decides (threshold-or-interval). It cancels all resting orders for
// the token before placing the fresh ladder, mirroring
// 0xtitan6-polymarket-mm's maker.reconcileOrders cancel-then-replace cycle
// rather than attempting in-place amends.
type marketMaker struct {
	engine   *marketmaking.Engine
	exec     *execution.Service
	book     domain.OrderbookCache
	platform string
	marketID string
	tokenID  string
	rungSize decimal.Decimal
	logger   *slog.Logger
}

func newMarketMaker(cfg marketmaking.Config, exec *execution.Service, book domain.OrderbookCache, platform, marketID, tokenID string, rungSize decimal.Decimal, logger *slog.Logger) *marketMaker {
	return &marketMaker{
		engine:   marketmaking.New(cfg),
		exec:     exec,
		book:     book,
		platform: platform,
		marketID: marketID,
		tokenID:  tokenID,
		rungSize: rungSize,
		logger:   logger.With(slog.String("component", "market_maker"), slog.String("token_id", tokenID)),
	}
}

// run polls the orderbook cache at pollInterval and requotes whenever the
// engine decides a fresh ladder is warranted. It blocks until ctx is
// canceled.
func (m *marketMaker) run(ctx context.Context, pollInterval time.Duration) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *marketMaker) tick(ctx context.Context) {
	snap, err := m.book.GetSnapshot(ctx, m.tokenID)
	if err != nil {
		m.logger.WarnContext(ctx, "requote skipped: orderbook unavailable", slog.String("error", err.Error()))
		return
	}
	m.engine.UpdateFairValue(snap)

	if halted, reason := m.engine.CheckHalt(); halted {
		m.logger.WarnContext(ctx, "market maker halted", slog.String("reason", reason))
		metrics.RecordMarketMakingHalt(reason)
		return
	}
	if !m.engine.ShouldRequote(time.Now()) {
		return
	}

	if err := m.exec.CancelAllOrders(ctx); err != nil {
		m.logger.WarnContext(ctx, "requote: cancel resting orders failed", slog.String("error", err.Error()))
	}

	quotes := m.engine.GenerateQuotes(m.rungSize)
	for _, q := range quotes {
		req := execution.OrderRequest{
			Platform: m.platform,
			MarketID: m.marketID,
			TokenID:  m.tokenID,
			Price:    q.Price,
			Size:     q.Size,
			Source:   "market_maker",
		}
		var placeErr error
		if q.Side == domain.OrderSideBuy {
			_, placeErr = m.exec.MakerBuy(ctx, req)
		} else {
			_, placeErr = m.exec.MakerSell(ctx, req)
		}
		if placeErr != nil {
			m.logger.WarnContext(ctx, "requote: place rung failed", slog.String("side", string(q.Side)), slog.String("error", placeErr.Error()))
		}
	}
	m.engine.MarkQuoted(time.Now())
	metrics.RecordMarketMakingQuote(m.marketID)
}
