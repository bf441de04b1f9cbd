package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	kiteconnect "github.com/zerodha/gokiteconnect/v4"
	"golang.org/x/time/rate"

	"breakout-trader/internal/errors"
	"breakout-trader/internal/logging"
	"breakout-trader/internal/metrics"
	"breakout-trader/internal/models"
	"breakout-trader/internal/security"
	"breakout-trader/pkg/utils"
)

// ZerodhaConfig holds configuration for the Kite Connect client.
type ZerodhaConfig struct {
	APIKey      string
	APISecret   string
	AccessToken string
	UserID      string
	SessionPath string

	OrdersPerSecond float64
	QuotesPerSecond float64
	QuoteBatchSize  int
	QuoteRetries    int

	Logger zerolog.Logger
}

// Zerodha is the live Kite Connect adapter. It serves batched last prices,
// market orders, historical candles and the instrument master.
type Zerodha struct {
	api    kiteAPI
	cfg    ZerodhaConfig
	logger zerolog.Logger

	orderLimiter *rate.Limiter
	quoteLimiter *rate.Limiter

	authenticated bool
	accessToken   string
	mu            sync.RWMutex
}

// NewZerodha creates a Kite Connect client and restores any saved session.
func NewZerodha(cfg ZerodhaConfig) *Zerodha {
	return newZerodha(kiteconnect.New(cfg.APIKey), cfg)
}

func newZerodha(api kiteAPI, cfg ZerodhaConfig) *Zerodha {
	if cfg.OrdersPerSecond <= 0 {
		cfg.OrdersPerSecond = 10
	}
	if cfg.QuotesPerSecond <= 0 {
		cfg.QuotesPerSecond = 1
	}
	if cfg.QuoteBatchSize <= 0 || cfg.QuoteBatchSize > maxLTPBatch {
		cfg.QuoteBatchSize = maxLTPBatch
	}
	if cfg.QuoteRetries < 0 {
		cfg.QuoteRetries = 0
	}
	if cfg.SessionPath == "" {
		home, _ := os.UserHomeDir()
		cfg.SessionPath = filepath.Join(home, ".config", "breakout-trader", "session.json")
	}

	z := &Zerodha{
		api:          api,
		cfg:          cfg,
		logger:       logging.WithOperation(cfg.Logger, "kite"),
		orderLimiter: rate.NewLimiter(rate.Limit(cfg.OrdersPerSecond), int(cfg.OrdersPerSecond)+1),
		quoteLimiter: rate.NewLimiter(rate.Limit(cfg.QuotesPerSecond), 1),
	}

	if cfg.AccessToken != "" {
		z.setToken(cfg.AccessToken)
	} else {
		_ = z.loadSession()
	}
	return z
}

// sessionData represents persisted session data.
type sessionData struct {
	AccessToken string    `json:"access_token"`
	UserID      string    `json:"user_id"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// LoginURL returns the Kite login page that issues a request token.
func (z *Zerodha) LoginURL() string {
	return z.api.GetLoginURL()
}

// Authenticate verifies the current access token against the profile endpoint.
func (z *Zerodha) Authenticate(ctx context.Context) error {
	if !z.IsAuthenticated() {
		return errors.Wrapf(errors.ErrNotAuthenticated, "visit %s and run 'auth complete <request_token>'", z.LoginURL())
	}
	start := time.Now()
	profile, err := z.api.GetUserProfile()
	z.observe("profile", start, err)
	if err != nil {
		z.mu.Lock()
		z.authenticated = false
		z.mu.Unlock()
		return errors.Wrap(errors.ErrSessionExpired, err.Error())
	}
	z.logger.Info().Str("user_id", profile.UserID).Msg("Kite session verified")
	return nil
}

// CompleteLogin exchanges a request token for an access token and persists it.
func (z *Zerodha) CompleteLogin(ctx context.Context, requestToken string) error {
	session, err := z.api.GenerateSession(requestToken, z.cfg.APISecret)
	if err != nil {
		return errors.NewBrokerError("SESSION", "failed to generate session", err)
	}
	z.setToken(session.AccessToken)
	z.logger.Info().
		Str("user_id", session.UserID).
		Str("access_token", security.MaskCredential(session.AccessToken)).
		Msg("Kite session created")

	if err := z.saveSession(session.AccessToken, session.UserID); err != nil {
		z.logger.Warn().Err(err).Msg("Failed to persist session")
	}
	return nil
}

// IsAuthenticated returns whether an access token is loaded.
func (z *Zerodha) IsAuthenticated() bool {
	z.mu.RLock()
	defer z.mu.RUnlock()
	return z.authenticated
}

func (z *Zerodha) setToken(token string) {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.api.SetAccessToken(token)
	z.accessToken = token
	z.authenticated = true
}

// AccessToken returns the current session token, for the ticker.
func (z *Zerodha) AccessToken() string {
	z.mu.RLock()
	defer z.mu.RUnlock()
	return z.accessToken
}

func (z *Zerodha) loadSession() error {
	data, err := os.ReadFile(z.cfg.SessionPath)
	if err != nil {
		return err
	}

	var session sessionData
	if err := json.Unmarshal(data, &session); err != nil {
		return err
	}

	// Kite tokens expire at 6 AM IST the next day
	if time.Now().After(session.ExpiresAt) {
		return errors.ErrSessionExpired
	}

	z.setToken(session.AccessToken)
	return nil
}

func (z *Zerodha) saveSession(accessToken, userID string) error {
	if err := os.MkdirAll(filepath.Dir(z.cfg.SessionPath), 0700); err != nil {
		return err
	}

	now := time.Now().In(utils.IndiaLocation)
	session := sessionData{
		AccessToken: accessToken,
		UserID:      userID,
		ExpiresAt:   time.Date(now.Year(), now.Month(), now.Day()+1, 6, 0, 0, 0, utils.IndiaLocation),
	}

	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return os.WriteFile(z.cfg.SessionPath, data, 0600)
}

// GetLastPrices fetches LTPs in as few calls as the batch limit allows.
// Instruments absent from the response are simply missing from the result.
func (z *Zerodha) GetLastPrices(ctx context.Context, instruments []models.Instrument) (models.Prices, error) {
	if !z.IsAuthenticated() {
		return nil, errors.ErrNotAuthenticated
	}

	prices := make(models.Prices, len(instruments))
	byName := make(map[string]models.InstrumentKey, len(instruments))
	names := make([]string, 0, len(instruments))
	for _, inst := range instruments {
		name := inst.ExchangeSymbol()
		byName[name] = inst.Key
		names = append(names, name)
	}

	for start := 0; start < len(names); start += z.cfg.QuoteBatchSize {
		end := min(start+z.cfg.QuoteBatchSize, len(names))
		batch := names[start:end]

		quotes, err := z.ltp(ctx, batch)
		if err != nil {
			return prices, err
		}
		for name, q := range quotes {
			if key, ok := byName[name]; ok && q.LastPrice > 0 {
				prices[key] = q.LastPrice
			}
		}
	}
	return prices, nil
}

// SpotPrices returns NSE cash LTPs keyed by symbol.
func (z *Zerodha) SpotPrices(ctx context.Context, symbols []string) (map[string]float64, error) {
	if !z.IsAuthenticated() {
		return nil, errors.ErrNotAuthenticated
	}
	names := make([]string, len(symbols))
	for i, s := range symbols {
		names[i] = string(models.NSE) + ":" + s
	}
	quotes, err := z.ltp(ctx, names)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(symbols))
	for i, name := range names {
		if q, ok := quotes[name]; ok && q.LastPrice > 0 {
			out[symbols[i]] = q.LastPrice
		}
	}
	return out, nil
}

func (z *Zerodha) ltp(ctx context.Context, names []string) (kiteconnect.QuoteLTP, error) {
	retry := utils.DefaultRetryConfig()
	retry.MaxAttempts = z.cfg.QuoteRetries + 1
	retry.Retryable = func(err error) bool { return ctx.Err() == nil }

	return utils.RetryWithResult(ctx, retry, func() (kiteconnect.QuoteLTP, error) {
		if err := z.quoteLimiter.Wait(ctx); err != nil {
			return nil, errors.Wrap(errors.ErrRateLimited, err.Error())
		}
		start := time.Now()
		quotes, err := z.api.GetLTP(names...)
		z.observe("ltp", start, err)
		if err != nil {
			return nil, errors.NewBrokerError("LTP", fmt.Sprintf("%d instruments", len(names)), err)
		}
		return quotes, nil
	})
}

// PlaceOrder sends an intraday market order to NFO. Any failure unwraps to
// errors.ErrOrderRejected.
func (z *Zerodha) PlaceOrder(ctx context.Context, req models.OrderRequest) (*models.OrderResult, error) {
	if !z.IsAuthenticated() {
		return nil, errors.NewOrderError(req.Symbol, string(req.Side), "not authenticated", errors.ErrNotAuthenticated)
	}
	if err := z.orderLimiter.Wait(ctx); err != nil {
		return nil, errors.NewOrderError(req.Symbol, string(req.Side), "rate limiter", err)
	}

	exchange := req.Exchange
	if exchange == "" {
		exchange = models.NFO
	}
	params := kiteconnect.OrderParams{
		Exchange:        string(exchange),
		Tradingsymbol:   req.Symbol,
		TransactionType: string(req.Side),
		OrderType:       string(models.OrderTypeMarket),
		Product:         string(models.ProductMIS),
		Quantity:        req.Quantity,
		Validity:        validityDay,
		Tag:             req.Tag,
	}

	start := time.Now()
	resp, err := z.api.PlaceOrder(kiteconnect.VarietyRegular, params)
	z.observe("place_order", start, err)
	if err != nil {
		return nil, errors.NewOrderError(req.Symbol, string(req.Side), "kite rejected order", err)
	}

	return &models.OrderResult{
		OrderID:  resp.OrderID,
		Status:   "PLACED",
		Price:    req.Price,
		Mode:     models.ModeLive,
		PlacedAt: time.Now(),
		Message:  "Order placed successfully",
	}, nil
}

// Orders returns today's order book.
func (z *Zerodha) Orders(ctx context.Context) ([]models.Order, error) {
	if !z.IsAuthenticated() {
		return nil, errors.ErrNotAuthenticated
	}

	start := time.Now()
	orders, err := z.api.GetOrders()
	z.observe("orders", start, err)
	if err != nil {
		return nil, errors.NewBrokerError("ORDERS", "failed to get orders", err)
	}

	result := make([]models.Order, len(orders))
	for i, o := range orders {
		result[i] = models.Order{
			ID:           o.OrderID,
			Symbol:       o.TradingSymbol,
			Exchange:     models.Exchange(o.Exchange),
			Side:         models.OrderSide(o.TransactionType),
			Type:         models.OrderType(o.OrderType),
			Product:      models.ProductType(o.Product),
			Quantity:     int(o.Quantity),
			Status:       o.Status,
			AveragePrice: o.AveragePrice,
			PlacedAt:     o.OrderTimestamp.Time,
		}
	}
	return result, nil
}

// Candles fetches historical OHLCV candles for an instrument token.
func (z *Zerodha) Candles(ctx context.Context, token uint32, interval string, from, to time.Time) ([]models.Candle, error) {
	if !z.IsAuthenticated() {
		return nil, errors.ErrNotAuthenticated
	}
	if err := z.quoteLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	data, err := z.api.GetHistoricalData(int(token), interval, from, to, false, false)
	z.observe("historical", start, err)
	if err != nil {
		return nil, errors.NewDataError("candles", fmt.Sprint(token), "failed to get historical data", err)
	}

	candles := make([]models.Candle, len(data))
	for i, d := range data {
		candles[i] = models.Candle{
			Timestamp: d.Date.Time,
			Open:      d.Open,
			High:      d.High,
			Low:       d.Low,
			Close:     d.Close,
			Volume:    int64(d.Volume),
		}
	}
	return candles, nil
}

// instruments downloads the instrument master for one exchange.
func (z *Zerodha) instruments(ctx context.Context, exchange models.Exchange) (kiteconnect.Instruments, error) {
	if !z.IsAuthenticated() {
		return nil, errors.ErrNotAuthenticated
	}
	start := time.Now()
	list, err := z.api.GetInstrumentsByExchange(string(exchange))
	z.observe("instruments", start, err)
	if err != nil {
		return nil, errors.NewBrokerError("INSTRUMENTS", "failed to get instruments", err)
	}
	return list, nil
}

func (z *Zerodha) observe(endpoint string, start time.Time, err error) {
	d := time.Since(start)
	metrics.RecordAPICall(endpoint, d, err)
	logging.LogAPICall(z.logger, "GET", endpoint, d, err)
}
