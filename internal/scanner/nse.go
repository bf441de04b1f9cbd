// Package scanner selects long build-up underlyings and resolves their ATM
// option legs into the watchlist the monitor trades.
package scanner

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"breakout-trader/internal/logging"
	"breakout-trader/internal/models"
)

// CandidateSource produces the underlyings to watch for a session.
type CandidateSource interface {
	Candidates(ctx context.Context) ([]models.Candidate, error)
}

const (
	defaultNSEHome = "https://www.nseindia.com"
	defaultNSEURL  = "https://www.nseindia.com/api/equity-stockIndices?index=SECURITIES%20IN%20F%26O"
	userAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Index rows published alongside stocks in the F&O feed.
var skipSymbols = map[string]bool{
	"NIFTY":      true,
	"BANKNIFTY":  true,
	"FINNIFTY":   true,
	"MIDCPNIFTY": true,
}

// Source names which selection path produced the candidates.
type Source string

const (
	SourceBuildUp  Source = "long_buildup"
	SourceGainers  Source = "top_gainers"
	SourceFallback Source = "static"
)

// NSEConfig holds configuration for the NSE scanner.
type NSEConfig struct {
	HomeURL      string
	URL          string
	MinChangePct float64
	MinVolume    int64
	MinPrice     float64
	MaxResults   int
	Timeout      time.Duration
	HTTPClient   *http.Client
	Logger       zerolog.Logger
}

// NSEScanner reads the NSE "SECURITIES IN F&O" index feed and ranks stocks
// showing long build-up (price up on volume).
type NSEScanner struct {
	cfg    NSEConfig
	client *http.Client
	logger zerolog.Logger
	source Source
}

// NewNSEScanner creates a scanner. Zero values fall back to the NSE endpoints
// and the long build-up thresholds.
func NewNSEScanner(cfg NSEConfig) *NSEScanner {
	if cfg.HomeURL == "" {
		cfg.HomeURL = defaultNSEHome
	}
	if cfg.URL == "" {
		cfg.URL = defaultNSEURL
	}
	if cfg.MinChangePct == 0 {
		cfg.MinChangePct = 0.2
	}
	if cfg.MinVolume == 0 {
		cfg.MinVolume = 100000
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	client := cfg.HTTPClient
	if client == nil {
		// NSE rejects API calls without the cookies set by its home page.
		jar, _ := cookiejar.New(nil)
		client = &http.Client{Timeout: cfg.Timeout, Jar: jar}
	}

	return &NSEScanner{
		cfg:    cfg,
		client: client,
		logger: logging.WithOperation(cfg.Logger, "scanner"),
	}
}

// LastSource reports which path produced the most recent Candidates result.
func (s *NSEScanner) LastSource() Source {
	return s.source
}

// Candidates returns the top long build-up stocks. When none qualify it falls
// back to positive gainers, and when the feed is unreachable to a static list.
// Only context cancellation is returned as an error.
func (s *NSEScanner) Candidates(ctx context.Context) ([]models.Candidate, error) {
	rows, err := s.fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warn().Err(err).Msg("NSE feed unavailable, using static selection")
		s.source = SourceFallback
		return s.static(), nil
	}

	candidates := s.buildUp(rows)
	s.source = SourceBuildUp
	if len(candidates) == 0 {
		s.logger.Info().Float64("min_price", s.cfg.MinPrice).Msg("No long build-up stocks, using top gainers")
		candidates = s.gainers(rows)
		s.source = SourceGainers
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })
	if len(candidates) > s.cfg.MaxResults {
		candidates = candidates[:s.cfg.MaxResults]
	}

	for i, c := range candidates {
		s.logger.Info().
			Int("rank", i+1).
			Str("symbol", c.Symbol).
			Float64("change_pct", c.PriceChangePct).
			Float64("ltp", c.LTP).
			Float64("score", c.Score).
			Str("source", string(s.source)).
			Msg("Candidate selected")
	}
	return candidates, nil
}

func (s *NSEScanner) buildUp(rows []nseRow) []models.Candidate {
	var out []models.Candidate
	for _, r := range rows {
		if skipSymbols[r.Symbol] {
			continue
		}
		if float64(r.PChange) > s.cfg.MinChangePct &&
			int64(r.TotalTradedVolume) > s.cfg.MinVolume &&
			float64(r.LastPrice) > s.cfg.MinPrice {
			out = append(out, r.candidate(float64(r.PChange)*float64(r.TotalTradedVolume)/1e6))
		}
	}
	return out
}

func (s *NSEScanner) gainers(rows []nseRow) []models.Candidate {
	var out []models.Candidate
	for _, r := range rows {
		if skipSymbols[r.Symbol] {
			continue
		}
		if r.PChange > 0 && float64(r.LastPrice) > s.cfg.MinPrice {
			out = append(out, r.candidate(float64(r.PChange)))
		}
	}
	return out
}

// staticCandidates is served when the NSE feed cannot be read.
var staticCandidates = []models.Candidate{
	{Symbol: "RELIANCE", PriceChangePct: 0.8, Score: 3.3, LTP: 1285.50, Volume: 5000000},
	{Symbol: "INFY", PriceChangePct: 0.6, Score: 2.6, LTP: 1850.30, Volume: 3000000},
	{Symbol: "SBIN", PriceChangePct: 0.9, Score: 3.9, LTP: 825.40, Volume: 8000000},
	{Symbol: "HDFCBANK", PriceChangePct: 0.5, Score: 2.3, LTP: 1745.60, Volume: 4000000},
	{Symbol: "TATAMOTORS", PriceChangePct: 1.2, Score: 4.7, LTP: 945.80, Volume: 6000000},
}

func (s *NSEScanner) static() []models.Candidate {
	var out []models.Candidate
	for _, c := range staticCandidates {
		if c.LTP > s.cfg.MinPrice {
			out = append(out, c)
		}
		if len(out) == s.cfg.MaxResults {
			break
		}
	}
	return out
}

type nseResponse struct {
	Data []nseRow `json:"data"`
}

type nseRow struct {
	Symbol            string   `json:"symbol"`
	LastPrice         nseFloat `json:"lastPrice"`
	PChange           nseFloat `json:"pChange"`
	TotalTradedVolume nseFloat `json:"totalTradedVolume"`
	PreviousClose     nseFloat `json:"previousClose"`
}

func (r nseRow) candidate(score float64) models.Candidate {
	return models.Candidate{
		Symbol:         r.Symbol,
		PriceChangePct: float64(r.PChange),
		Score:          score,
		LTP:            float64(r.LastPrice),
		Volume:         int64(r.TotalTradedVolume),
		PrevClose:      float64(r.PreviousClose),
	}
}

// nseFloat accepts both JSON numbers and numeric strings; anything else is 0.
type nseFloat float64

func (f *nseFloat) UnmarshalJSON(b []byte) error {
	raw := strings.Trim(string(b), `"`)
	v, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64)
	if err != nil {
		*f = 0
		return nil
	}
	*f = nseFloat(v)
	return nil
}

func (s *NSEScanner) fetch(ctx context.Context) ([]nseRow, error) {
	// Warm-up request; its only purpose is the cookie jar.
	if resp, err := s.get(ctx, s.cfg.HomeURL); err == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}

	resp, err := s.get(ctx, s.cfg.URL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		return nil, fmt.Errorf("nse http %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var body nseResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding nse response: %w", err)
	}
	if len(body.Data) == 0 {
		return nil, fmt.Errorf("no data received from nse")
	}
	return body.Data, nil
}

func (s *NSEScanner) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Referer", defaultNSEHome+"/")
	return s.client.Do(req)
}
