package position

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamnova/tradecore/internal/domain"
)

type fakeCloser struct {
	closes []closeCall
}

type closeCall struct {
	posID string
	size  float64
}

func (f *fakeCloser) ClosePosition(_ context.Context, pos domain.Position, size float64) (domain.OrderResult, error) {
	f.closes = append(f.closes, closeCall{posID: pos.ID, size: size})
	return domain.OrderResult{Success: true, OrderID: "close-" + pos.ID}, nil
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

// fakePriceCache is a minimal domain.PriceCache backed by an in-memory map.
type fakePriceCache struct {
	prices map[string]float64
}

func (f *fakePriceCache) SetPrice(_ context.Context, assetID string, price float64, _ time.Time) error {
	f.prices[assetID] = price
	return nil
}

func (f *fakePriceCache) GetPrice(_ context.Context, assetID string) (float64, time.Time, error) {
	return f.prices[assetID], time.Time{}, nil
}

func (f *fakePriceCache) GetPrices(_ context.Context, assetIDs []string) (map[string]float64, error) {
	out := make(map[string]float64, len(assetIDs))
	for _, id := range assetIDs {
		out[id] = f.prices[id]
	}
	return out, nil
}

var _ domain.PriceCache = (*fakePriceCache)(nil)

func silentLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fakeNotifier struct {
	events []string
}

func (f *fakeNotifier) Notify(_ context.Context, event, _, _ string) error {
	f.events = append(f.events, event)
	return nil
}

func slPtr(v float64) *float64 { return &v }

func TestManagerFixedStopLossTriggers(t *testing.T) {
	store := &fakePositionStore{open: []domain.Position{
		{ID: "p1", TokenID: "t1", Direction: domain.OrderSideBuy, EntryPrice: 1.0, Size: 10, StopLoss: slPtr(0.9)},
	}}
	closer := &fakeCloser{}
	prices := &fakePriceCache{prices: map[string]float64{"t1": 0.85}}
	m := New(store, prices, closer, silentLogger())

	acted, err := m.Sweep(context.Background(), "wallet")
	require.NoError(t, err)
	require.Len(t, acted, 1)
	require.Len(t, closer.closes, 1)
	assert.Equal(t, "p1", closer.closes[0].posID)
	assert.Equal(t, 10.0, closer.closes[0].size)
}

func TestManagerNotifiesOnTriggeredClose(t *testing.T) {
	store := &fakePositionStore{open: []domain.Position{
		{ID: "p1", TokenID: "t1", Direction: domain.OrderSideBuy, EntryPrice: 1.0, Size: 10, StopLoss: slPtr(0.9)},
	}}
	closer := &fakeCloser{}
	prices := &fakePriceCache{prices: map[string]float64{"t1": 0.85}}
	notifier := &fakeNotifier{}
	m := New(store, prices, closer, silentLogger()).WithNotifier(notifier)

	_, err := m.Sweep(context.Background(), "wallet")
	require.NoError(t, err)
	assert.Equal(t, []string{"position_closed"}, notifier.events)
}

func TestManagerTrailingStopTightensOnly(t *testing.T) {
	store := &fakePositionStore{open: []domain.Position{
		{ID: "p1", TokenID: "t1", Direction: domain.OrderSideBuy, EntryPrice: 1.0, Size: 10},
	}}
	prices := &fakePriceCache{prices: map[string]float64{"t1": 1.0}}
	closer := &fakeCloser{}
	m := New(store, prices, closer, silentLogger())
	m.Track("p1", 10, &TrailingStop{TrailPct: 0.05}, nil)

	// Price rises: watermark should move up, no close yet.
	prices.prices["t1"] = 1.10
	_, err := m.Sweep(context.Background(), "wallet")
	require.NoError(t, err)
	assert.Empty(t, closer.closes)

	// Price pulls back less than 5% off the new high: still no close.
	prices.prices["t1"] = 1.06
	_, err = m.Sweep(context.Background(), "wallet")
	require.NoError(t, err)
	assert.Empty(t, closer.closes)

	// Price falls through the trail (1.10 * 0.95 = 1.045): triggers.
	prices.prices["t1"] = 1.04
	_, err = m.Sweep(context.Background(), "wallet")
	require.NoError(t, err)
	require.Len(t, closer.closes, 1)
}

func TestManagerPartialTPLadderFiresOncePerRung(t *testing.T) {
	store := &fakePositionStore{open: []domain.Position{
		{ID: "p1", TokenID: "t1", Direction: domain.OrderSideBuy, EntryPrice: 1.0, Size: 10},
	}}
	prices := &fakePriceCache{prices: map[string]float64{"t1": 1.0}}
	closer := &fakeCloser{}
	m := New(store, prices, closer, silentLogger())
	m.Track("p1", 10, nil, []LadderRung{
		{TriggerPct: 0.10, ClosePct: 0.5},
		{TriggerPct: 0.20, ClosePct: 0.5},
	})

	prices.prices["t1"] = 1.11 // +11%: first rung fires
	_, err := m.Sweep(context.Background(), "wallet")
	require.NoError(t, err)
	require.Len(t, closer.closes, 1)
	assert.Equal(t, 5.0, closer.closes[0].size)

	// Sweeping again at the same price must not re-fire the rung.
	_, err = m.Sweep(context.Background(), "wallet")
	require.NoError(t, err)
	assert.Len(t, closer.closes, 1)
}
