package trading

import (
	"fmt"

	"breakout-trader/internal/models"
)

// BreakoutMultiplier is applied to the reference candle high to get the entry level.
const BreakoutMultiplier = 1.01

// BreakoutLevels holds the entry threshold for every watchlist instrument.
// Levels are fixed at construction and never change during a session.
type BreakoutLevels struct {
	levels map[models.InstrumentKey]float64
}

// NewBreakoutLevels computes candle high × 1.01 for both legs of every entry.
func NewBreakoutLevels(watchlist []models.WatchlistEntry) *BreakoutLevels {
	levels := make(map[models.InstrumentKey]float64, len(watchlist)*2)
	for _, w := range watchlist {
		for _, kind := range models.OptionKinds {
			levels[w.Key(kind)] = w.Leg(kind).Candle.High * BreakoutMultiplier
		}
	}
	return &BreakoutLevels{levels: levels}
}

// LevelFor returns the breakout level for key. Asking for an unknown key is a
// programming error and panics.
func (b *BreakoutLevels) LevelFor(key models.InstrumentKey) float64 {
	level, ok := b.levels[key]
	if !ok {
		panic(fmt.Sprintf("no breakout level for %s", key))
	}
	return level
}

// Lookup returns the level for key without panicking.
func (b *BreakoutLevels) Lookup(key models.InstrumentKey) (float64, bool) {
	level, ok := b.levels[key]
	return level, ok
}
