package scanner

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"breakout-trader/internal/errors"
	"breakout-trader/internal/logging"
	"breakout-trader/internal/models"
)

// Kite historical intervals used for the breakout candle.
const (
	Interval3Minute = "3minute"
	Interval1Minute = "minute"
)

// QuoteSource serves the spot, option and candle data needed to resolve legs.
type QuoteSource interface {
	SpotPrices(ctx context.Context, symbols []string) (map[string]float64, error)
	GetLastPrices(ctx context.Context, instruments []models.Instrument) (models.Prices, error)
	Candles(ctx context.Context, token uint32, interval string, from, to time.Time) ([]models.Candle, error)
}

// ChainSource lists option contracts from the instrument master.
type ChainSource interface {
	OptionContracts(ctx context.Context, underlying string, expiry time.Time) ([]models.OptionContract, error)
}

// WatchlistConfig holds configuration for the watchlist builder.
type WatchlistConfig struct {
	Quotes      QuoteSource
	Chain       ChainSource
	Interval    string
	Lookback    time.Duration
	Concurrency int
	Clock       func() time.Time
	Logger      zerolog.Logger
}

// WatchlistBuilder resolves candidates into ATM call/put legs with the last
// completed candle of each leg. Underlyings are resolved concurrently; one that
// fails is dropped without affecting the others.
type WatchlistBuilder struct {
	cfg    WatchlistConfig
	logger zerolog.Logger
}

// NewWatchlistBuilder creates a watchlist builder.
func NewWatchlistBuilder(cfg WatchlistConfig) *WatchlistBuilder {
	if cfg.Interval == "" {
		cfg.Interval = Interval3Minute
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = 15 * time.Minute
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &WatchlistBuilder{
		cfg:    cfg,
		logger: logging.WithOperation(cfg.Logger, "watchlist"),
	}
}

type resolved struct {
	index int
	entry models.WatchlistEntry
}

// Build resolves every candidate for expiry and returns the entries in
// candidate order. It fails with ErrNoCandidates when nothing resolves.
func (b *WatchlistBuilder) Build(ctx context.Context, candidates []models.Candidate, expiry time.Time) ([]models.WatchlistEntry, error) {
	if len(candidates) == 0 {
		return nil, errors.ErrNoCandidates
	}

	symbols := make([]string, len(candidates))
	for i, c := range candidates {
		symbols[i] = c.Symbol
	}
	spots, err := b.cfg.Quotes.SpotPrices(ctx, symbols)
	if err != nil {
		b.logger.Warn().Err(err).Msg("Spot prices unavailable, using scanner LTPs")
		spots = map[string]float64{}
	}

	p := pool.NewWithResults[*resolved]().WithMaxGoroutines(b.cfg.Concurrency)
	for i, c := range candidates {
		spot := spots[c.Symbol]
		if spot <= 0 {
			spot = c.LTP
		}
		p.Go(func() *resolved {
			entry, err := b.Resolve(ctx, c.Symbol, spot, expiry)
			if err != nil {
				l := logging.WithSymbol(b.logger, c.Symbol)
				l.Warn().Err(err).Msg("Skipping underlying")
				return nil
			}
			return &resolved{index: i, entry: entry}
		})
	}

	var results []*resolved
	for _, r := range p.Wait() {
		if r != nil {
			results = append(results, r)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].index < results[j].index })

	watchlist := make([]models.WatchlistEntry, len(results))
	for i, r := range results {
		watchlist[i] = r.entry
	}
	if len(watchlist) == 0 {
		return nil, errors.Wrap(errors.ErrNoCandidates, "no underlying resolved to an option pair")
	}
	return watchlist, nil
}

// Resolve builds the watchlist entry for one underlying at the given spot.
func (b *WatchlistBuilder) Resolve(ctx context.Context, symbol string, spot float64, expiry time.Time) (models.WatchlistEntry, error) {
	if spot <= 0 {
		return models.WatchlistEntry{}, errors.Wrapf(errors.ErrQuoteUnavailable, "%s spot", symbol)
	}

	contracts, err := b.cfg.Chain.OptionContracts(ctx, symbol, expiry)
	if err != nil {
		return models.WatchlistEntry{}, err
	}
	call, put, err := atmPair(contracts, spot)
	if err != nil {
		return models.WatchlistEntry{}, errors.Wrap(err, symbol)
	}
	if call.LotSize <= 0 {
		return models.WatchlistEntry{}, fmt.Errorf("%s: missing lot size", symbol)
	}

	entry := models.WatchlistEntry{
		Symbol:  symbol,
		Spot:    spot,
		Strike:  call.Strike,
		LotSize: call.LotSize,
		Expiry:  FormatExpiry(expiry),
		Call:    models.OptionLeg{Symbol: call.Symbol, Token: call.Token},
		Put:     models.OptionLeg{Symbol: put.Symbol, Token: put.Token},
	}

	for _, kind := range models.OptionKinds {
		leg := entry.Leg(kind)
		candle, err := b.breakoutCandle(ctx, leg.Token)
		if err != nil {
			return models.WatchlistEntry{}, errors.Wrapf(err, "%s candle", leg.Symbol)
		}
		if candle.High <= 0 {
			return models.WatchlistEntry{}, errors.Wrapf(errors.ErrQuoteUnavailable, "%s candle high %.2f", leg.Symbol, candle.High)
		}
		leg.Candle = candle
		leg.CandleTime = candle.Timestamp
		if kind == models.Put {
			entry.Put = leg
		} else {
			entry.Call = leg
		}
	}

	prices, err := b.cfg.Quotes.GetLastPrices(ctx, []models.Instrument{
		entry.Instrument(models.Call), entry.Instrument(models.Put),
	})
	if err == nil {
		entry.Call.LTP, _ = prices.Get(entry.Key(models.Call))
		entry.Put.LTP, _ = prices.Get(entry.Key(models.Put))
	}

	b.logger.Info().
		Str("symbol", symbol).
		Float64("spot", spot).
		Float64("strike", entry.Strike).
		Int("lot", entry.LotSize).
		Float64("ce_high", entry.Call.Candle.High).
		Float64("pe_high", entry.Put.Candle.High).
		Time("candle_time", entry.Call.CandleTime).
		Msg("ATM resolved")

	return entry, nil
}

// atmPair picks the strike nearest to spot that lists both a call and a put.
// Ties go to the lower strike.
func atmPair(contracts []models.OptionContract, spot float64) (models.OptionContract, models.OptionContract, error) {
	calls := make(map[float64]models.OptionContract)
	puts := make(map[float64]models.OptionContract)
	for _, c := range contracts {
		if c.Kind == models.Put {
			puts[c.Strike] = c
		} else {
			calls[c.Strike] = c
		}
	}

	best, found := 0.0, false
	for strike := range calls {
		if _, ok := puts[strike]; !ok {
			continue
		}
		d, bd := math.Abs(strike-spot), math.Abs(best-spot)
		if !found || d < bd || (d == bd && strike < best) {
			best, found = strike, true
		}
	}
	if !found {
		return models.OptionContract{}, models.OptionContract{}, errors.Wrap(errors.ErrInstrumentNotFound, "no strike with both CE and PE")
	}
	return calls[best], puts[best], nil
}

// breakoutCandle returns the last completed candle of the configured interval.
// The newest candle is still forming, so the second newest is used. When too
// few exist it aggregates the completed one-minute candles of the last ten
// minutes, at most three.
func (b *WatchlistBuilder) breakoutCandle(ctx context.Context, token uint32) (models.Candle, error) {
	now := b.cfg.Clock()

	candles, err := b.cfg.Quotes.Candles(ctx, token, b.cfg.Interval, now.Add(-b.cfg.Lookback), now)
	if err == nil && len(candles) >= 2 {
		return candles[len(candles)-2], nil
	}
	if ctx.Err() != nil {
		return models.Candle{}, ctx.Err()
	}

	minute, err := b.cfg.Quotes.Candles(ctx, token, Interval1Minute, now.Add(-10*time.Minute), now)
	if err != nil {
		return models.Candle{}, err
	}
	if len(minute) < 3 {
		return models.Candle{}, errors.NewDataError("candles", fmt.Sprint(token), "not enough candles", nil)
	}
	return aggregate(minute[max(len(minute)-4, 0) : len(minute)-1]), nil
}

func aggregate(candles []models.Candle) models.Candle {
	out := models.Candle{
		Timestamp: candles[len(candles)-1].Timestamp,
		Open:      candles[0].Open,
		High:      candles[0].High,
		Low:       candles[0].Low,
		Close:     candles[len(candles)-1].Close,
	}
	for _, c := range candles {
		out.High = math.Max(out.High, c.High)
		out.Low = math.Min(out.Low, c.Low)
		out.Volume += c.Volume
	}
	return out
}
