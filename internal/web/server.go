// Package web serves the live dashboard: a snapshot websocket, a small JSON
// API over the trade record and the Prometheus scrape endpoint.
package web

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"breakout-trader/internal/logging"
	"breakout-trader/internal/metrics"
	"breakout-trader/internal/models"
	"breakout-trader/internal/resilience"
	"breakout-trader/internal/store"
	"breakout-trader/pkg/utils"
)

// SnapshotSource is the part of the snapshot hub the server reads.
type SnapshotSource interface {
	Latest() (models.Snapshot, bool)
	Subscribe(id string) <-chan models.Snapshot
	Unsubscribe(ch <-chan models.Snapshot)
}

// TradeQuerier reads the trade record.
type TradeQuerier interface {
	Trades(ctx context.Context, filter store.TradeFilter) ([]models.Trade, error)
}

// HealthReporter runs the component health checks.
type HealthReporter interface {
	Check(ctx context.Context) resilience.Report
}

// ServerConfig wires a Server.
type ServerConfig struct {
	Addr      string
	Snapshots SnapshotSource
	Trades    TradeQuerier   // optional
	Health    HealthReporter // optional
	Debug     bool
	Clock     func() time.Time
	Logger    zerolog.Logger
}

// Server is the HTTP/WebSocket front end.
type Server struct {
	cfg     ServerConfig
	engine  *gin.Engine
	server  *http.Server
	logger  zerolog.Logger
	clients atomic.Int64
}

// NewServer builds the router. Nothing listens until Start.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:    cfg,
		logger: logging.WithOperation(cfg.Logger, "web"),
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.logger, cfg.Debug))
	s.routes(r)
	s.engine = r

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) routes(r *gin.Engine) {
	r.GET("/", s.index)
	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws/trading", s.handleWebSocket)

	api := r.Group("/api")
	{
		api.GET("/snapshot", s.snapshot)
		api.GET("/trades", s.trades)
	}
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start listens in the background and shuts down when ctx is cancelled.
// The returned channel reports a listen failure, if any, and is closed when
// the server stops.
func (s *Server) Start(ctx context.Context) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		s.logger.Info().Str("addr", s.cfg.Addr).Msg("Web server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Web server failed")
			errCh <- err
		}
	}()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return errCh
}

// Stop shuts the server down, waiting up to five seconds for requests.
func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Web server shutdown")
	}
}

// Clients returns the number of connected websocket clients.
func (s *Server) Clients() int {
	return int(s.clients.Load())
}

func (s *Server) index(c *gin.Context) {
	page, err := staticFiles.ReadFile("static/index.html")
	if err != nil {
		c.String(http.StatusNotFound, "dashboard not found")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", page)
}

func (s *Server) health(c *gin.Context) {
	resp := gin.H{
		"status":  "ok",
		"time":    s.now().In(utils.IndiaLocation).Format(time.RFC3339),
		"clients": s.Clients(),
	}
	if snap, ok := s.cfg.Snapshots.Latest(); ok {
		resp["state"] = snap.State
		resp["tick"] = snap.Tick
	}

	code := http.StatusOK
	if s.cfg.Health != nil {
		report := s.cfg.Health.Check(c.Request.Context())
		resp["components"] = report.Components
		resp["uptime"] = report.Uptime.Truncate(time.Second).String()
		switch report.Status {
		case resilience.HealthStatusDegraded:
			resp["status"] = "degraded"
		case resilience.HealthStatusUnhealthy:
			resp["status"] = "unhealthy"
			code = http.StatusServiceUnavailable
		}
	}
	c.JSON(code, resp)
}

func (s *Server) snapshot(c *gin.Context) {
	snap, ok := s.cfg.Snapshots.Latest()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no snapshot yet"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// trades serves GET /api/trades?date=YYYY-MM-DD&symbol=SBIN&mode=paper.
// Without a date it returns today's trades.
func (s *Server) trades(c *gin.Context) {
	if s.cfg.Trades == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "trade record disabled"})
		return
	}

	day := utils.StartOfDay(s.now(), utils.IndiaLocation)
	if d := c.Query("date"); d != "" {
		parsed, err := time.ParseInLocation("2006-01-02", d, utils.IndiaLocation)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}
		day = parsed
	}

	filter := store.TradeFilter{
		Underlying: c.Query("symbol"),
		Mode:       models.TradingMode(c.Query("mode")),
		From:       day,
		To:         day.AddDate(0, 0, 1),
	}
	trades, err := s.cfg.Trades.Trades(c.Request.Context(), filter)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "trade query failed"})
		return
	}

	var realized float64
	for _, t := range trades {
		realized += t.RealizedPnL
	}
	c.JSON(http.StatusOK, gin.H{
		"date":         day.Format("2006-01-02"),
		"count":        len(trades),
		"realized_pnl": realized,
		"trades":       trades,
	})
}

func (s *Server) now() time.Time {
	return s.cfg.Clock()
}

func (s *Server) clientDelta(d int64) {
	n := s.clients.Add(d)
	metrics.SetWebSocketClients(int(n))
}
