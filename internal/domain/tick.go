package domain

import "time"

// Tick is a single recorded price observation used by the backtest engine's
// tick-replay loop. Streams of Tick values are sorted strictly nondecreasing
// by Time; PrevPrice lets a strategy compute an instantaneous return without
// re-reading the price history ring.
type Tick struct {
	Time      time.Time
	Price     float64
	PrevPrice float64
}
