package marketmaking

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamnova/tradecore/internal/domain"
)

func sampleBook() domain.OrderbookSnapshot {
	return domain.OrderbookSnapshot{
		Bids:     []domain.PriceLevel{{Price: 0.48, Size: 100}},
		Asks:     []domain.PriceLevel{{Price: 0.52, Size: 100}},
		BestBid:  0.48,
		BestAsk:  0.52,
		MidPrice: 0.50,
	}
}

func TestUpdateFairValueSmoothsWithEMA(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EMAAlpha = 0.5
	e := New(cfg)

	fv1 := e.UpdateFairValue(sampleBook())
	assert.InDelta(t, 0.50, fv1.InexactFloat64(), 0.001)

	skewed := sampleBook()
	skewed.Bids[0].Size = 300 // microprice should shift toward ask now
	fv2 := e.UpdateFairValue(skewed)
	assert.Greater(t, fv2.InexactFloat64(), fv1.InexactFloat64())
}

func TestShouldRequoteOnFirstCallAndOnThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RequoteThresholdBps = 5
	cfg.RequoteInterval = time.Hour
	e := New(cfg)

	assert.True(t, e.ShouldRequote(time.Now()))

	e.UpdateFairValue(sampleBook())
	e.MarkQuoted(time.Now())
	assert.False(t, e.ShouldRequote(time.Now()))

	moved := sampleBook()
	moved.Bids[0].Price = 0.40
	moved.BestBid = 0.40
	moved.MidPrice = 0.46
	e.UpdateFairValue(moved)
	assert.True(t, e.ShouldRequote(time.Now()))
}

func TestShouldRequoteOnIntervalElapsed(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RequoteThresholdBps = 10000 // effectively disable threshold gate
	cfg.RequoteInterval = 10 * time.Millisecond
	e := New(cfg)
	e.UpdateFairValue(sampleBook())
	e.MarkQuoted(time.Now())

	assert.False(t, e.ShouldRequote(time.Now()))
	time.Sleep(15 * time.Millisecond)
	assert.True(t, e.ShouldRequote(time.Now()))
}

func TestGenerateQuotesSkewsWithInventory(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LadderLevels = 2
	e := New(cfg)
	e.UpdateFairValue(sampleBook())

	flat := e.GenerateQuotes(decimal.NewFromInt(100))
	require.Len(t, flat, 4)

	e.UpdateInventory(decimal.NewFromInt(50)) // long inventory should push reservation price down
	long := e.GenerateQuotes(decimal.NewFromInt(100))
	require.Len(t, long, 4)

	assert.True(t, long[0].Price.LessThan(flat[0].Price), "long inventory should lower the bid/ask midpoint")
}

func TestHaltOnLossLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxLossUSD = decimal.NewFromInt(100)
	e := New(cfg)
	e.UpdateFairValue(sampleBook())

	e.RecordRealizedPnL(decimal.NewFromInt(-150))
	halted, reason := e.CheckHalt()
	assert.True(t, halted)
	assert.Equal(t, "loss_limit", reason)

	quotes := e.GenerateQuotes(decimal.NewFromInt(10))
	assert.Nil(t, quotes)

	e.ResetHalt()
	halted, _ = e.CheckHalt()
	assert.False(t, halted)
}

func TestHaltOnInventoryLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxInventory = decimal.NewFromInt(100)
	e := New(cfg)
	e.UpdateInventory(decimal.NewFromInt(150))

	halted, reason := e.CheckHalt()
	assert.True(t, halted)
	assert.Equal(t, "inventory_limit", reason)
}
