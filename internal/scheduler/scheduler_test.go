package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamnova/tradecore/internal/domain"
	"github.com/teamnova/tradecore/internal/router"
	"github.com/teamnova/tradecore/internal/strategy"
)

type fakePositionStore struct{}

func (f *fakePositionStore) Create(context.Context, domain.Position) error { return nil }
func (f *fakePositionStore) Update(context.Context, domain.Position) error { return nil }
func (f *fakePositionStore) Close(context.Context, string, float64) error  { return nil }
func (f *fakePositionStore) GetOpen(context.Context, string) ([]domain.Position, error) {
	return nil, nil
}
func (f *fakePositionStore) GetByID(context.Context, string) (domain.Position, error) {
	return domain.Position{}, nil
}
func (f *fakePositionStore) ListHistory(context.Context, string, domain.ListOpts) ([]domain.Position, error) {
	return nil, nil
}

var _ domain.PositionStore = (*fakePositionStore)(nil)

type countingStrategy struct {
	evaluateCount atomic.Int32
	fail          bool
}

func (s *countingStrategy) Name() string                        { return "counting" }
func (s *countingStrategy) Init(context.Context) error           { return nil }
func (s *countingStrategy) Cleanup() error                       { return nil }
func (s *countingStrategy) OnTrade(context.Context, strategy.TradeView) error { return nil }

func (s *countingStrategy) Evaluate(context.Context, *strategy.StrategyContext) ([]strategy.Signal, error) {
	s.evaluateCount.Add(1)
	if s.fail {
		return nil, assertErr
	}
	return nil, nil
}

var assertErr = assertError("boom")

type assertError string

func (e assertError) Error() string { return string(e) }

func silentLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestSchedulerRunsOnCadence(t *testing.T) {
	m := New(&fakePositionStore{}, nil, "0xwallet", silentLogger())
	strat := &countingStrategy{}
	require.NoError(t, m.RegisterStrategy(BotConfig{Name: "s1", Strategy: strat, Cadence: 20 * time.Millisecond}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, m.StartBot(ctx, "s1"))

	time.Sleep(90 * time.Millisecond)
	require.NoError(t, m.StopBot("s1"))

	assert.GreaterOrEqual(t, strat.evaluateCount.Load(), int32(2))
}

func TestSchedulerAutoPausesAfterConsecutiveErrors(t *testing.T) {
	m := New(&fakePositionStore{}, nil, "0xwallet", silentLogger())
	strat := &countingStrategy{fail: true}
	require.NoError(t, m.RegisterStrategy(BotConfig{Name: "s1", Strategy: strat, Cadence: 10 * time.Millisecond}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, m.StartBot(ctx, "s1"))

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		status, err := m.GetBotStatus("s1")
		require.NoError(t, err)
		if status.State == BotStateError {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	status, err := m.GetBotStatus("s1")
	require.NoError(t, err)
	assert.Equal(t, BotStateError, status.State)
	assert.GreaterOrEqual(t, status.ConsecutiveErrors, maxConsecutiveErrors)

	require.NoError(t, m.StopBot("s1"))
}

func TestSchedulerEvaluateNow(t *testing.T) {
	m := New(&fakePositionStore{}, nil, "0xwallet", silentLogger())
	strat := &countingStrategy{}
	require.NoError(t, m.RegisterStrategy(BotConfig{Name: "s1", Strategy: strat, Cadence: time.Hour}))

	_, err := m.EvaluateNow(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, int32(1), strat.evaluateCount.Load())
}

func TestSchedulerPauseResume(t *testing.T) {
	m := New(&fakePositionStore{}, nil, "0xwallet", silentLogger())
	strat := &countingStrategy{}
	require.NoError(t, m.RegisterStrategy(BotConfig{Name: "s1", Strategy: strat, Cadence: 10 * time.Millisecond}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, m.StartBot(ctx, "s1"))
	require.NoError(t, m.PauseBot("s1"))

	time.Sleep(40 * time.Millisecond)
	countAfterPause := strat.evaluateCount.Load()

	require.NoError(t, m.ResumeBot("s1"))
	time.Sleep(40 * time.Millisecond)
	require.NoError(t, m.StopBot("s1"))

	assert.Greater(t, strat.evaluateCount.Load(), countAfterPause)
}

func TestSchedulerRouterIntegration(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	r := router.New(router.DefaultConfig(), dispatcher, &fakePositionStore{}, silentLogger())
	m := New(&fakePositionStore{}, r, "0xwallet", silentLogger())

	strat := &signalingStrategy{}
	require.NoError(t, m.RegisterStrategy(BotConfig{Name: "s1", Strategy: strat, Cadence: time.Hour}))

	_, err := m.EvaluateNow(context.Background(), "s1")
	require.NoError(t, err)
	assert.Len(t, dispatcher.calls, 1)
}

type recordingDispatcher struct {
	calls []router.DispatchRequest
}

func (d *recordingDispatcher) BuyLimit(_ context.Context, req router.DispatchRequest) (domain.OrderResult, error) {
	d.calls = append(d.calls, req)
	return domain.OrderResult{Success: true, OrderID: "o1"}, nil
}

func (d *recordingDispatcher) SellLimit(ctx context.Context, req router.DispatchRequest) (domain.OrderResult, error) {
	return d.BuyLimit(ctx, req)
}

type signalingStrategy struct{}

func (s *signalingStrategy) Name() string              { return "signaling" }
func (s *signalingStrategy) Init(context.Context) error { return nil }
func (s *signalingStrategy) Cleanup() error             { return nil }
func (s *signalingStrategy) OnTrade(context.Context, strategy.TradeView) error { return nil }

func (s *signalingStrategy) Evaluate(context.Context, *strategy.StrategyContext) ([]strategy.Signal, error) {
	return []strategy.Signal{{
		Type:       strategy.SignalBuy,
		Platform:   "polymarket",
		MarketID:   "m1",
		Outcome:    "yes",
		Price:      decimalOf(0.5),
		Size:       decimalOf(10),
		Confidence: 1,
	}}, nil
}

func decimalOf(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }
