package strategy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamnova/tradecore/internal/domain"
)

type fakeMarketStore struct {
	active []domain.Market
	err    error
}

func (f *fakeMarketStore) Upsert(context.Context, domain.Market) error      { return nil }
func (f *fakeMarketStore) UpsertBatch(context.Context, []domain.Market) error { return nil }
func (f *fakeMarketStore) GetByID(context.Context, string) (domain.Market, error) {
	return domain.Market{}, nil
}
func (f *fakeMarketStore) GetByTokenID(context.Context, string) (domain.Market, error) {
	return domain.Market{}, nil
}
func (f *fakeMarketStore) GetBySlug(context.Context, string) (domain.Market, error) {
	return domain.Market{}, nil
}
func (f *fakeMarketStore) ListActive(context.Context, domain.ListOpts) ([]domain.Market, error) {
	return f.active, f.err
}
func (f *fakeMarketStore) Count(context.Context) (int64, error) { return int64(len(f.active)), nil }

var _ domain.MarketStore = (*fakeMarketStore)(nil)

type fakeBookCache struct {
	snaps map[string]domain.OrderbookSnapshot
}

func (f *fakeBookCache) SetSnapshot(context.Context, string, domain.OrderbookSnapshot) error {
	return nil
}
func (f *fakeBookCache) GetSnapshot(_ context.Context, assetID string) (domain.OrderbookSnapshot, error) {
	snap, ok := f.snaps[assetID]
	if !ok {
		return domain.OrderbookSnapshot{}, nil
	}
	return snap, nil
}
func (f *fakeBookCache) UpdateLevel(context.Context, string, string, float64, float64) error {
	return nil
}
func (f *fakeBookCache) GetBBO(_ context.Context, assetID string) (float64, float64, error) {
	snap := f.snaps[assetID]
	return snap.BestBid, snap.BestAsk, nil
}

var _ domain.OrderbookCache = (*fakeBookCache)(nil)

func silentLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func testMarket(tokenID string) domain.Market {
	return domain.Market{ID: "m1", TokenIDs: [2]string{tokenID, ""}}
}

func baseCfg() LiquidityEdgeConfig {
	return LiquidityEdgeConfig{
		MinSpreadBps:    30,
		MinSize:         5,
		RatioThreshold:  1.5,
		MinTotalVolume:  20,
		EdgeBpsPerRatio: 20,
		EstFeeBps:       0,
		EstSlippageBps:  5,
		EstLatencyBps:   2,
		SizePerTrade:    5,
		MaxMarkets:      10,
	}
}

func TestLiquidityEdgeSpreadEdgeFires(t *testing.T) {
	mkt := testMarket("tok1")
	books := &fakeBookCache{snaps: map[string]domain.OrderbookSnapshot{
		"tok1": {
			AssetID: "tok1",
			Bids:    []domain.PriceLevel{{Price: 0.50, Size: 10}},
			Asks:    []domain.PriceLevel{{Price: 0.55, Size: 10}},
			BestBid: 0.50,
			BestAsk: 0.55,
		},
	}}
	edge := NewLiquidityEdge(baseCfg(), &fakeMarketStore{active: []domain.Market{mkt}}, books, silentLogger())

	sigs, err := edge.Evaluate(context.Background(), nil)
	require.NoError(t, err)
	require.NotEmpty(t, sigs)
	assert.Equal(t, SignalBuy, sigs[0].Type)
	assert.Equal(t, "tok1", sigs[0].Outcome)
}

func TestLiquidityEdgeSpreadBelowThresholdProducesNoSignal(t *testing.T) {
	mkt := testMarket("tok1")
	books := &fakeBookCache{snaps: map[string]domain.OrderbookSnapshot{
		"tok1": {
			AssetID: "tok1",
			Bids:    []domain.PriceLevel{{Price: 0.500, Size: 10}},
			Asks:    []domain.PriceLevel{{Price: 0.501, Size: 10}},
			BestBid: 0.500,
			BestAsk: 0.501,
		},
	}}
	edge := NewLiquidityEdge(baseCfg(), &fakeMarketStore{active: []domain.Market{mkt}}, books, silentLogger())

	sigs, err := edge.Evaluate(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, sigs)
}

func TestLiquidityEdgeImbalanceFiresBuyAndSell(t *testing.T) {
	cfg := baseCfg()
	cfg.MinSpreadBps = 1e9 // disable the spread check so only imbalance fires

	buyBooks := &fakeBookCache{snaps: map[string]domain.OrderbookSnapshot{
		"tok1": {
			AssetID:  "tok1",
			Bids:     []domain.PriceLevel{{Price: 0.50, Size: 100}},
			Asks:     []domain.PriceLevel{{Price: 0.55, Size: 10}},
			BestBid:  0.50,
			BestAsk:  0.55,
			MidPrice: 0.525,
		},
	}}
	edge := NewLiquidityEdge(cfg, &fakeMarketStore{active: []domain.Market{testMarket("tok1")}}, buyBooks, silentLogger())
	sigs, err := edge.Evaluate(context.Background(), nil)
	require.NoError(t, err)
	require.NotEmpty(t, sigs)
	assert.Equal(t, SignalBuy, sigs[0].Type)

	sellBooks := &fakeBookCache{snaps: map[string]domain.OrderbookSnapshot{
		"tok1": {
			AssetID:  "tok1",
			Bids:     []domain.PriceLevel{{Price: 0.50, Size: 10}},
			Asks:     []domain.PriceLevel{{Price: 0.55, Size: 100}},
			BestBid:  0.50,
			BestAsk:  0.55,
			MidPrice: 0.525,
		},
	}}
	edge = NewLiquidityEdge(cfg, &fakeMarketStore{active: []domain.Market{testMarket("tok1")}}, sellBooks, silentLogger())
	sigs, err = edge.Evaluate(context.Background(), nil)
	require.NoError(t, err)
	require.NotEmpty(t, sigs)
	assert.Equal(t, SignalSell, sigs[0].Type)
}

func TestLiquidityEdgeImbalanceBelowThresholdProducesNoSignal(t *testing.T) {
	cfg := baseCfg()
	cfg.MinSpreadBps = 1e9

	books := &fakeBookCache{snaps: map[string]domain.OrderbookSnapshot{
		"tok1": {
			AssetID:  "tok1",
			Bids:     []domain.PriceLevel{{Price: 0.50, Size: 20}},
			Asks:     []domain.PriceLevel{{Price: 0.55, Size: 18}},
			BestBid:  0.50,
			BestAsk:  0.55,
			MidPrice: 0.525,
		},
	}}
	edge := NewLiquidityEdge(cfg, &fakeMarketStore{active: []domain.Market{testMarket("tok1")}}, books, silentLogger())

	sigs, err := edge.Evaluate(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, sigs)
}

func TestLiquidityEdgeListErrorReturnsError(t *testing.T) {
	edge := NewLiquidityEdge(baseCfg(), &fakeMarketStore{err: errors.New("boom")}, &fakeBookCache{}, silentLogger())

	sigs, err := edge.Evaluate(context.Background(), nil)
	require.Error(t, err)
	assert.Empty(t, sigs)
}

func TestLiquidityEdgeNilStoresProduceNoSignalsNoError(t *testing.T) {
	edge := NewLiquidityEdge(baseCfg(), nil, nil, silentLogger())

	sigs, err := edge.Evaluate(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, sigs)
}
