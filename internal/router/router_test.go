package router

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamnova/tradecore/internal/domain"
	"github.com/teamnova/tradecore/internal/strategy"
)

type fakeDispatcher struct {
	calls []DispatchRequest
	err   error
}

func (f *fakeDispatcher) BuyLimit(_ context.Context, req DispatchRequest) (domain.OrderResult, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return domain.OrderResult{}, f.err
	}
	return domain.OrderResult{Success: true, OrderID: "o-" + req.ClientOrderID}, nil
}

func (f *fakeDispatcher) SellLimit(ctx context.Context, req DispatchRequest) (domain.OrderResult, error) {
	return f.BuyLimit(ctx, req)
}

type fakePositionStore struct {
	open []domain.Position
}

func (f *fakePositionStore) Create(context.Context, domain.Position) error { return nil }
func (f *fakePositionStore) Update(context.Context, domain.Position) error { return nil }
func (f *fakePositionStore) Close(context.Context, string, float64) error  { return nil }
func (f *fakePositionStore) GetOpen(context.Context, string) ([]domain.Position, error) {
	return f.open, nil
}
func (f *fakePositionStore) GetByID(context.Context, string) (domain.Position, error) {
	return domain.Position{}, nil
}
func (f *fakePositionStore) ListHistory(context.Context, string, domain.ListOpts) ([]domain.Position, error) {
	return nil, nil
}

var _ domain.PositionStore = (*fakePositionStore)(nil)

func silentLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func buySignal() strategy.Signal {
	return strategy.Signal{
		Type:       strategy.SignalBuy,
		Platform:   "polymarket",
		MarketID:   "m1",
		Outcome:    "yes",
		Price:      decimal.NewFromFloat(0.5),
		Size:       decimal.NewFromInt(10),
		Confidence: 0.9,
	}
}

func TestRouterAdmitsWithinLimits(t *testing.T) {
	d := &fakeDispatcher{}
	r := New(DefaultConfig(), d, &fakePositionStore{}, silentLogger())

	rec := r.Admit(context.Background(), buySignal(), "0xwallet")
	assert.True(t, rec.Admitted)
	assert.NoError(t, rec.Rejection)
	require.Len(t, d.calls, 1)
}

func TestRouterRejectsHoldSignal(t *testing.T) {
	d := &fakeDispatcher{}
	r := New(DefaultConfig(), d, &fakePositionStore{}, silentLogger())

	sig := buySignal()
	sig.Type = strategy.SignalHold
	rec := r.Admit(context.Background(), sig, "0xwallet")
	assert.False(t, rec.Admitted)
	assert.ErrorIs(t, rec.Rejection, domain.ErrNotAllowlisted)
	assert.Empty(t, d.calls)
}

func TestRouterRejectsBelowMinConfidence(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinConfidence = 0.95
	d := &fakeDispatcher{}
	r := New(cfg, d, &fakePositionStore{}, silentLogger())

	rec := r.Admit(context.Background(), buySignal(), "0xwallet")
	assert.False(t, rec.Admitted)
	assert.ErrorIs(t, rec.Rejection, domain.ErrBelowMinStrength)
}

func TestRouterKillSwitchBlocksAll(t *testing.T) {
	d := &fakeDispatcher{}
	r := New(DefaultConfig(), d, &fakePositionStore{}, silentLogger())
	r.SetKillSwitch(true)

	rec := r.Admit(context.Background(), buySignal(), "0xwallet")
	assert.False(t, rec.Admitted)
	assert.ErrorIs(t, rec.Rejection, domain.ErrKillSwitch)
}

func TestRouterMaxPositionsGate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPositions = 1
	d := &fakeDispatcher{}
	store := &fakePositionStore{open: []domain.Position{{ID: "p1"}}}
	r := New(cfg, d, store, silentLogger())

	rec := r.Admit(context.Background(), buySignal(), "0xwallet")
	assert.False(t, rec.Admitted)
	assert.ErrorIs(t, rec.Rejection, domain.ErrMaxPositions)
}

func TestRouterCooldownGate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CooldownPerKey = time.Hour
	d := &fakeDispatcher{}
	r := New(cfg, d, &fakePositionStore{}, silentLogger())

	first := r.Admit(context.Background(), buySignal(), "0xwallet")
	require.True(t, first.Admitted)

	second := r.Admit(context.Background(), buySignal(), "0xwallet")
	assert.False(t, second.Admitted)
	assert.ErrorIs(t, second.Rejection, domain.ErrCooldown)
}

func TestRouterDailyLossLimitGate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DailyLossLimit = decimal.NewFromInt(100)
	d := &fakeDispatcher{}
	r := New(cfg, d, &fakePositionStore{}, silentLogger())
	r.RecordRealizedPnL(decimal.NewFromInt(-150))

	rec := r.Admit(context.Background(), buySignal(), "0xwallet")
	assert.False(t, rec.Admitted)
	assert.ErrorIs(t, rec.Rejection, domain.ErrDailyLossLimit)
}

func TestRouterExposureCapGate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxExposure = decimal.NewFromInt(10)
	d := &fakeDispatcher{}
	store := &fakePositionStore{open: []domain.Position{{CurrentPrice: 0.5, Size: 10}}} // exposure 5
	r := New(cfg, d, store, silentLogger())

	// incremental 0.5*10=5, total 10, not > 10: should pass
	rec := r.Admit(context.Background(), buySignal(), "0xwallet")
	assert.True(t, rec.Admitted)
}

func TestRouterRecordsLedger(t *testing.T) {
	d := &fakeDispatcher{}
	r := New(DefaultConfig(), d, &fakePositionStore{}, silentLogger())
	r.Admit(context.Background(), buySignal(), "0xwallet")
	recs := r.GetRecords()
	require.Len(t, recs, 1)
	assert.True(t, recs[0].Admitted)
}
