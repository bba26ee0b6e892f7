package execution

import (
	"context"
	"errors"
	"log/slog"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamnova/tradecore/internal/domain"
)

type fakePlacer struct {
	placeFn  func(ctx context.Context, sig domain.TradeSignal) (domain.OrderResult, error)
	cancelled []string
	open      []domain.Order
}

func (f *fakePlacer) PlaceOrder(ctx context.Context, sig domain.TradeSignal) (domain.OrderResult, error) {
	return f.placeFn(ctx, sig)
}

func (f *fakePlacer) CancelOrder(_ context.Context, orderID string) error {
	f.cancelled = append(f.cancelled, orderID)
	return nil
}

func (f *fakePlacer) GetOrder(_ context.Context, id string) (domain.Order, error) {
	return domain.Order{ID: id}, nil
}

func (f *fakePlacer) ListOpen(context.Context, string) ([]domain.Order, error) {
	return f.open, nil
}

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeNotifier struct {
	events []string
}

func (f *fakeNotifier) Notify(_ context.Context, event, _, _ string) error {
	f.events = append(f.events, event)
	return nil
}

func TestServiceBuyLimitRecordsFill(t *testing.T) {
	placer := &fakePlacer{
		placeFn: func(_ context.Context, sig domain.TradeSignal) (domain.OrderResult, error) {
			return domain.OrderResult{Success: true, OrderID: "o1", Status: domain.OrderStatusOpen, FilledPrice: sig.Price()}, nil
		},
	}
	svc := NewService(placer, "0xwallet", silentLogger())

	res, err := svc.BuyLimit(context.Background(), OrderRequest{
		Platform: "polymarket",
		MarketID: "m1",
		TokenID:  "t1",
		Price:    decimal.NewFromFloat(0.55),
		Size:     decimal.NewFromInt(10),
		Source:   "test",
	})
	require.NoError(t, err)
	assert.True(t, res.Success)

	fills := svc.GetTrackedFills()
	require.Len(t, fills, 1)
	assert.Equal(t, "polymarket", fills[0].Platform)
	assert.Equal(t, domain.OrderSideBuy, fills[0].Side)
}

func TestServiceCircuitBreakerOpensAfterFailures(t *testing.T) {
	callCount := 0
	placer := &fakePlacer{
		placeFn: func(context.Context, domain.TradeSignal) (domain.OrderResult, error) {
			callCount++
			return domain.OrderResult{}, errors.New("boom")
		},
	}
	svc := NewService(placer, "0xwallet", silentLogger())

	req := func() OrderRequest {
		return OrderRequest{
			Platform:      "polymarket",
			MarketID:      "m1",
			TokenID:       "t1",
			Price:         decimal.NewFromFloat(0.5),
			Size:          decimal.NewFromInt(1),
			Source:        "test",
			ClientOrderID: "", // force unique id per attempt below
		}
	}

	for i := 0; i < DefaultCircuitBreakerConfig().FailureThreshold; i++ {
		r := req()
		r.ClientOrderID = "order-" + string(rune('a'+i))
		_, err := svc.BuyLimit(context.Background(), r)
		assert.Error(t, err)
	}

	assert.Equal(t, CircuitOpen, svc.GetCircuitBreakerState("polymarket"))

	r := req()
	r.ClientOrderID = "order-blocked"
	_, err := svc.BuyLimit(context.Background(), r)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCircuitOpen)
	assert.Equal(t, DefaultCircuitBreakerConfig().FailureThreshold, callCount)
}

func TestServiceNotifiesOnceWhenBreakerTrips(t *testing.T) {
	placer := &fakePlacer{
		placeFn: func(context.Context, domain.TradeSignal) (domain.OrderResult, error) {
			return domain.OrderResult{}, errors.New("boom")
		},
	}
	notifier := &fakeNotifier{}
	svc := NewService(placer, "0xwallet", silentLogger(), WithNotifier(notifier))

	for i := 0; i < DefaultCircuitBreakerConfig().FailureThreshold+3; i++ {
		req := OrderRequest{
			Platform:      "polymarket",
			MarketID:      "m1",
			TokenID:       "t1",
			Price:         decimal.NewFromFloat(0.5),
			Size:          decimal.NewFromInt(1),
			Source:        "test",
			ClientOrderID: "order-" + string(rune('a'+i)),
		}
		_, _ = svc.BuyLimit(context.Background(), req)
	}

	assert.Equal(t, []string{"circuit_breaker_open"}, notifier.events)
}

func TestServiceMakerBuyRejectsCrossingOrder(t *testing.T) {
	placer := &fakePlacer{
		placeFn: func(context.Context, domain.TradeSignal) (domain.OrderResult, error) {
			t.Fatal("should not reach the venue on a crossing maker order")
			return domain.OrderResult{}, nil
		},
	}
	book := &fakeOrderbookCache{
		snap: domain.OrderbookSnapshot{BestBid: 0.48, BestAsk: 0.50},
	}
	svc := NewService(placer, "0xwallet", silentLogger(), WithOrderbookCache(book))

	_, err := svc.MakerBuy(context.Background(), OrderRequest{
		Platform: "polymarket",
		TokenID:  "t1",
		Price:    decimal.NewFromFloat(0.52), // crosses best ask of 0.50
		Size:     decimal.NewFromInt(1),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrWouldCross)
}

func TestServiceProtectedBuyRejectsExcessiveSlippage(t *testing.T) {
	placer := &fakePlacer{
		placeFn: func(context.Context, domain.TradeSignal) (domain.OrderResult, error) {
			t.Fatal("should not reach the venue when slippage exceeds the cap")
			return domain.OrderResult{}, nil
		},
	}
	book := &fakeOrderbookCache{
		snap: domain.OrderbookSnapshot{
			BestAsk: 0.50,
			Asks: []domain.PriceLevel{
				{Price: 0.50, Size: 1},
				{Price: 0.60, Size: 100},
			},
		},
	}
	svc := NewService(placer, "0xwallet", silentLogger(), WithOrderbookCache(book))

	_, err := svc.ProtectedBuy(context.Background(), OrderRequest{
		Platform: "polymarket",
		TokenID:  "t1",
		Price:    decimal.NewFromFloat(0.60),
		Size:     decimal.NewFromInt(10),
	}, 100) // 100bps cap, book implies much more
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSlippageExceeded)
}

func TestEstimateSlippageNoBookReturnsZero(t *testing.T) {
	placer := &fakePlacer{}
	svc := NewService(placer, "0xwallet", silentLogger())
	bps, err := svc.EstimateSlippage(context.Background(), "t1", domain.OrderSideBuy, decimal.NewFromInt(1))
	require.NoError(t, err)
	assert.Zero(t, bps)
}

type fakeOrderbookCache struct {
	snap domain.OrderbookSnapshot
}

func (f *fakeOrderbookCache) SetSnapshot(context.Context, string, domain.OrderbookSnapshot) error {
	return nil
}

func (f *fakeOrderbookCache) GetSnapshot(context.Context, string) (domain.OrderbookSnapshot, error) {
	return f.snap, nil
}

func (f *fakeOrderbookCache) UpdateLevel(context.Context, string, string, float64, float64) error {
	return nil
}

func (f *fakeOrderbookCache) GetBBO(context.Context, string) (float64, float64, error) {
	return f.snap.BestBid, f.snap.BestAsk, nil
}

var _ domain.OrderbookCache = (*fakeOrderbookCache)(nil)

func TestCircuitBreakerHalfOpenAfterCooldown(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, Cooldown: 10 * time.Millisecond})
	allowed, probe := cb.Allow()
	require.True(t, allowed)
	require.False(t, probe)
	cb.RecordResult(false)
	assert.Equal(t, CircuitOpen, cb.State())

	time.Sleep(15 * time.Millisecond)
	assert.Equal(t, CircuitHalfOpen, cb.State())

	allowed, probe = cb.Allow()
	require.True(t, allowed)
	require.True(t, probe)
	cb.RecordResult(true)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreakerRecordResultReportsTrippedOnce(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 2, Cooldown: time.Minute})

	assert.False(t, cb.RecordResult(false), "first failure should not trip a threshold-2 breaker")
	assert.True(t, cb.RecordResult(false), "second consecutive failure should trip the breaker")
	assert.False(t, cb.RecordResult(false), "breaker already open: no repeat trip notification")
}
