package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	kitemodels "github.com/zerodha/gokiteconnect/v4/models"
	kiteticker "github.com/zerodha/gokiteconnect/v4/ticker"

	"breakout-trader/internal/logging"
	"breakout-trader/internal/models"
	"breakout-trader/internal/trading"
)

// StreamingQuotesConfig holds configuration for the websocket quote cache.
type StreamingQuotesConfig struct {
	APIKey      string
	AccessToken string

	// Fallback serves instruments that have no fresh streamed price.
	Fallback trading.MarketDataClient
	// MaxAge is how long a streamed price stays usable.
	MaxAge time.Duration

	Logger zerolog.Logger
	Clock  func() time.Time
}

type streamedPrice struct {
	ltp float64
	at  time.Time
}

// StreamingQuotes serves last prices from a Kite ticker subscription in LTP
// mode. Instruments it has not yet seen, or whose last tick is stale, are
// fetched through the REST fallback.
type StreamingQuotes struct {
	cfg    StreamingQuotesConfig
	ticker *kiteticker.Ticker
	logger zerolog.Logger

	connected  bool
	prices     map[uint32]streamedPrice
	subscribed map[uint32]bool

	mu      sync.RWMutex
	writeMu sync.Mutex
}

// NewStreamingQuotes creates a quote cache. Call Connect to start streaming.
func NewStreamingQuotes(cfg StreamingQuotesConfig) *StreamingQuotes {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 10 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &StreamingQuotes{
		cfg:        cfg,
		logger:     logging.WithOperation(cfg.Logger, "ticker"),
		prices:     make(map[uint32]streamedPrice),
		subscribed: make(map[uint32]bool),
	}
}

// Connect opens the websocket and waits for the first connection.
func (s *StreamingQuotes) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.ticker != nil {
		s.mu.Unlock()
		return nil
	}
	s.ticker = kiteticker.New(s.cfg.APIKey, s.cfg.AccessToken)
	s.mu.Unlock()

	connectedCh := make(chan struct{}, 1)

	s.ticker.OnConnect(func() {
		s.mu.Lock()
		s.connected = true
		s.mu.Unlock()
		s.logger.Info().Msg("Ticker connected")

		// Resubscribe after kiteticker's own reconnects.
		s.resubscribe()

		select {
		case connectedCh <- struct{}{}:
		default:
		}
	})

	s.ticker.OnClose(func(code int, reason string) {
		s.mu.Lock()
		s.connected = false
		s.mu.Unlock()
		s.logger.Warn().Int("code", code).Str("reason", reason).Msg("Ticker closed")
	})

	s.ticker.OnError(func(err error) {
		s.logger.Warn().Err(err).Msg("Ticker error")
	})

	s.ticker.OnReconnect(func(attempt int, delay time.Duration) {
		s.logger.Info().Int("attempt", attempt).Dur("delay", delay).Msg("Ticker reconnecting")
	})

	s.ticker.OnTick(s.handleTick)

	go s.ticker.Serve()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-connectedCh:
		return nil
	case <-time.After(30 * time.Second):
		return fmt.Errorf("ticker connection timeout")
	}
}

// Close stops the websocket.
func (s *StreamingQuotes) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ticker != nil {
		s.ticker.Close()
		s.connected = false
	}
	return nil
}

// IsConnected returns whether the websocket is currently up.
func (s *StreamingQuotes) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// GetLastPrices returns streamed prices where fresh, subscribes the rest and
// fetches them through the fallback.
func (s *StreamingQuotes) GetLastPrices(ctx context.Context, instruments []models.Instrument) (models.Prices, error) {
	now := s.cfg.Clock()
	prices := make(models.Prices, len(instruments))
	var misses []models.Instrument
	var fresh []uint32

	s.mu.RLock()
	for _, inst := range instruments {
		p, ok := s.prices[inst.Token]
		if ok && p.ltp > 0 && now.Sub(p.at) <= s.cfg.MaxAge {
			prices[inst.Key] = p.ltp
			continue
		}
		misses = append(misses, inst)
		if !s.subscribed[inst.Token] {
			fresh = append(fresh, inst.Token)
		}
	}
	s.mu.RUnlock()

	if len(fresh) > 0 {
		if err := s.subscribe(fresh); err != nil {
			s.logger.Debug().Err(err).Int("tokens", len(fresh)).Msg("Ticker subscribe deferred")
		}
	}

	if len(misses) == 0 || s.cfg.Fallback == nil {
		return prices, nil
	}

	fallback, err := s.cfg.Fallback.GetLastPrices(ctx, misses)
	for k, v := range fallback {
		prices[k] = v
	}
	if err != nil && len(prices) == 0 {
		return nil, err
	}
	return prices, nil
}

func (s *StreamingQuotes) handleTick(tick kitemodels.Tick) {
	if tick.LastPrice <= 0 {
		return
	}
	s.mu.Lock()
	s.prices[tick.InstrumentToken] = streamedPrice{ltp: tick.LastPrice, at: s.cfg.Clock()}
	s.mu.Unlock()
}

// subscribe marks tokens as wanted and, when connected, sends them in LTP mode.
func (s *StreamingQuotes) subscribe(tokens []uint32) error {
	s.mu.Lock()
	for _, t := range tokens {
		s.subscribed[t] = true
	}
	connected := s.connected
	ticker := s.ticker
	s.mu.Unlock()

	if !connected || ticker == nil {
		return fmt.Errorf("not connected")
	}
	return s.send(ticker, tokens)
}

func (s *StreamingQuotes) resubscribe() {
	s.mu.RLock()
	tokens := make([]uint32, 0, len(s.subscribed))
	for t := range s.subscribed {
		tokens = append(tokens, t)
	}
	ticker := s.ticker
	s.mu.RUnlock()

	if len(tokens) == 0 || ticker == nil {
		return
	}
	if err := s.send(ticker, tokens); err != nil {
		s.logger.Warn().Err(err).Msg("Ticker resubscribe failed")
	}
}

func (s *StreamingQuotes) send(ticker *kiteticker.Ticker, tokens []uint32) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := ticker.Subscribe(tokens); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	if err := ticker.SetMode(kiteticker.ModeLTP, tokens); err != nil {
		return fmt.Errorf("failed to set mode: %w", err)
	}
	return nil
}

var _ trading.MarketDataClient = (*StreamingQuotes)(nil)
