package strategy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/teamnova/tradecore/internal/domain"
)

// LiquidityEdgeConfig tunes the two single-snapshot checks LiquidityEdge
// runs against every active market's orderbook each cycle.
type LiquidityEdgeConfig struct {
	MinSpreadBps    float64 // spread check: minimum bid-ask spread in bps to consider
	MinSize         float64 // spread check: minimum size resting at best bid/ask
	RatioThreshold  float64 // imbalance check: bid_vol/ask_vol or its inverse must exceed this
	MinTotalVolume  float64 // imbalance check: minimum bid+ask notional to consider
	EdgeBpsPerRatio float64 // imbalance check: gross edge in bps per unit ratio above 1.0
	EstFeeBps       float64
	EstSlippageBps  float64
	EstLatencyBps   float64
	SizePerTrade    float64
	MaxMarkets      int
}

// LiquidityEdge is a cadence-driven PollingStrategy that scans every active
// market's current orderbook snapshot for two single-snapshot edges: a
// bid-ask spread wide enough to profitably post inside, and a bid/ask
// volume imbalance signaling directional pressure. Both checks only need
// the latest snapshot, so they run once per Evaluate call per market rather
// than reacting to a stream of book-update events.
type LiquidityEdge struct {
	cfg     LiquidityEdgeConfig
	markets domain.MarketStore
	books   domain.OrderbookCache
	logger  *slog.Logger
}

// NewLiquidityEdge creates a LiquidityEdge strategy.
func NewLiquidityEdge(cfg LiquidityEdgeConfig, markets domain.MarketStore, books domain.OrderbookCache, logger *slog.Logger) *LiquidityEdge {
	if cfg.MaxMarkets <= 0 {
		cfg.MaxMarkets = 100
	}
	return &LiquidityEdge{
		cfg:     cfg,
		markets: markets,
		books:   books,
		logger:  logger.With(slog.String("strategy", "liquidity_edge")),
	}
}

func (l *LiquidityEdge) Name() string { return "liquidity_edge" }

func (l *LiquidityEdge) Init(context.Context) error { return nil }

func (l *LiquidityEdge) Cleanup() error { return nil }

// OnTrade is a no-op: both checks this strategy runs only need the current
// orderbook snapshot, not the trade tape.
func (l *LiquidityEdge) OnTrade(context.Context, TradeView) error { return nil }

// Evaluate scans up to MaxMarkets active markets' current orderbook
// snapshots and emits a Signal for every market/token where the spread or
// imbalance check clears its net-of-cost edge threshold.
func (l *LiquidityEdge) Evaluate(ctx context.Context, _ *StrategyContext) ([]Signal, error) {
	if l.markets == nil || l.books == nil {
		return nil, nil
	}
	active, err := l.markets.ListActive(ctx, domain.ListOpts{Limit: l.cfg.MaxMarkets})
	if err != nil {
		return nil, fmt.Errorf("liquidity_edge: list active markets: %w", err)
	}

	var out []Signal
	for _, mkt := range active {
		for _, tokenID := range mkt.TokenIDs {
			if tokenID == "" {
				continue
			}
			snap, err := l.books.GetSnapshot(ctx, tokenID)
			if err != nil || snap.AssetID == "" {
				continue
			}
			if sig, ok := l.evalSpread(mkt, snap); ok {
				out = append(out, sig)
			}
			if sig, ok := l.evalImbalance(mkt, snap); ok {
				out = append(out, sig)
			}
		}
	}
	return out, nil
}

// evalSpread fires when the bid-ask spread is wide enough to profitably post
// a resting order inside it after estimated fees, slippage, and latency.
// The signal buys just above best bid, mirroring a passive liquidity-capture
// entry rather than crossing the spread.
func (l *LiquidityEdge) evalSpread(mkt domain.Market, snap domain.OrderbookSnapshot) (Signal, bool) {
	if snap.BestBid <= 0 || snap.BestAsk <= 0 || len(snap.Bids) == 0 || len(snap.Asks) == 0 {
		return Signal{}, false
	}
	spread := snap.BestAsk - snap.BestBid
	mid := (snap.BestBid + snap.BestAsk) / 2
	if spread <= 0 || mid <= 0 {
		return Signal{}, false
	}
	spreadBps := spread / mid * 10_000
	if spreadBps < l.cfg.MinSpreadBps {
		return Signal{}, false
	}
	minSize := snap.Bids[0].Size
	if snap.Asks[0].Size < minSize {
		minSize = snap.Asks[0].Size
	}
	if minSize < l.cfg.MinSize {
		return Signal{}, false
	}
	netEdgeBps := spreadBps - l.cfg.EstFeeBps - l.cfg.EstSlippageBps - l.cfg.EstLatencyBps
	if netEdgeBps <= 0 {
		return Signal{}, false
	}

	l.logger.DebugContext(context.Background(), "spread edge detected",
		slog.String("market_id", mkt.ID), slog.Float64("spread_bps", spreadBps), slog.Float64("net_edge_bps", netEdgeBps))

	return Signal{
		Type:       SignalBuy,
		Platform:   "polymarket",
		MarketID:   mkt.ID,
		Outcome:    snap.AssetID,
		Price:      decimal.NewFromFloat(snap.BestBid),
		Size:       decimal.NewFromFloat(l.cfg.SizePerTrade),
		Confidence: confidenceFromEdge(netEdgeBps),
		Reason:     fmt.Sprintf("spread %.1fbps clears %.1fbps net of cost", spreadBps, netEdgeBps),
	}, true
}

// evalImbalance fires when resting bid/ask notional is skewed past
// RatioThreshold: heavier bid-side volume signals buying pressure (and vice
// versa), each netted against the same cost estimate as the spread check.
func (l *LiquidityEdge) evalImbalance(mkt domain.Market, snap domain.OrderbookSnapshot) (Signal, bool) {
	var bidVol, askVol float64
	for _, lvl := range snap.Bids {
		bidVol += lvl.Price * lvl.Size
	}
	for _, lvl := range snap.Asks {
		askVol += lvl.Price * lvl.Size
	}
	if bidVol <= 0 || askVol <= 0 || bidVol+askVol < l.cfg.MinTotalVolume {
		return Signal{}, false
	}

	ratio := bidVol / askVol
	var sigType SignalType
	var grossEdgeBps float64
	switch {
	case ratio >= l.cfg.RatioThreshold:
		sigType = SignalBuy
		grossEdgeBps = (ratio - 1.0) * l.cfg.EdgeBpsPerRatio
	case 1.0/ratio >= l.cfg.RatioThreshold:
		sigType = SignalSell
		grossEdgeBps = (1.0/ratio - 1.0) * l.cfg.EdgeBpsPerRatio
	default:
		return Signal{}, false
	}
	netEdgeBps := grossEdgeBps - l.cfg.EstFeeBps - l.cfg.EstSlippageBps - l.cfg.EstLatencyBps
	if netEdgeBps <= 0 {
		return Signal{}, false
	}
	price := snap.MidPrice
	if price <= 0 {
		price = (snap.BestBid + snap.BestAsk) / 2
	}
	if price <= 0 {
		return Signal{}, false
	}

	l.logger.DebugContext(context.Background(), "imbalance edge detected",
		slog.String("market_id", mkt.ID), slog.String("side", string(sigType)),
		slog.Float64("ratio", ratio), slog.Float64("net_edge_bps", netEdgeBps))

	return Signal{
		Type:       sigType,
		Platform:   "polymarket",
		MarketID:   mkt.ID,
		Outcome:    snap.AssetID,
		Price:      decimal.NewFromFloat(price),
		Size:       decimal.NewFromFloat(l.cfg.SizePerTrade),
		Confidence: confidenceFromEdge(netEdgeBps),
		Reason:     fmt.Sprintf("book ratio %.2f clears %.1fbps net of cost", ratio, netEdgeBps),
	}, true
}

// confidenceFromEdge maps a net edge in bps onto (0,1], saturating at 100bps
// so a single outsized reading cannot alone clear the router's confidence gate.
func confidenceFromEdge(netEdgeBps float64) float64 {
	c := netEdgeBps / 100
	if c > 1 {
		return 1
	}
	return c
}

var _ PollingStrategy = (*LiquidityEdge)(nil)
