package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"breakout-trader/internal/models"
	"breakout-trader/pkg/id"
	"breakout-trader/pkg/utils"
)

// SQLiteStore implements TradeStore using SQLite. Rows are only ever
// inserted; a trade id that already exists is an error.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// Times are stored as unix nanoseconds so range filters compare integers.
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS trades (
		id TEXT PRIMARY KEY,
		instrument_key TEXT NOT NULL,
		tradingsymbol TEXT NOT NULL,
		token INTEGER NOT NULL,
		exchange TEXT NOT NULL,
		underlying TEXT NOT NULL,
		strike REAL NOT NULL,
		option_type TEXT NOT NULL,
		lot_size INTEGER NOT NULL,
		mode TEXT NOT NULL,
		strategy TEXT,
		entry_price REAL NOT NULL,
		entry_time INTEGER NOT NULL,
		order_id TEXT,
		stop_loss REAL,
		peak_pnl REAL,
		exit_price REAL,
		exit_time INTEGER,
		realized_pnl REAL,
		exit_reason TEXT,
		exit_order_id TEXT,
		recorded_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_trades_entry_time ON trades(entry_time);
	CREATE INDEX IF NOT EXISTS idx_trades_underlying ON trades(underlying);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		mode TEXT NOT NULL,
		state TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		ended_at INTEGER NOT NULL,
		ticks INTEGER NOT NULL,
		total_trades INTEGER NOT NULL,
		closed_trades INTEGER NOT NULL,
		winning_trades INTEGER NOT NULL,
		realized_pnl REAL NOT NULL,
		error TEXT
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Ping checks the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// RecordTrade appends a closed trade. Open trades are rejected: the record
// only holds final results.
func (s *SQLiteStore) RecordTrade(ctx context.Context, trade *models.Trade) error {
	if trade == nil {
		return fmt.Errorf("record trade: nil trade")
	}
	if trade.IsOpen() {
		return fmt.Errorf("record trade %s: trade is still open", trade.Key)
	}
	tradeID := trade.ID
	if tradeID == "" {
		tradeID = id.NewAt(trade.EntryTime)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trades (id, instrument_key, tradingsymbol, token, exchange, underlying, strike, option_type, lot_size, mode, strategy,
			entry_price, entry_time, order_id, stop_loss, peak_pnl, exit_price, exit_time, realized_pnl, exit_reason, exit_order_id, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, tradeID, string(trade.Key), trade.TradingSymbol, trade.Token, string(trade.Exchange), trade.Underlying, trade.Strike,
		string(trade.Kind), trade.LotSize, string(trade.Mode), trade.Strategy,
		trade.EntryPrice, unixNano(trade.EntryTime), trade.OrderID, trade.StopLoss, trade.PeakPnL,
		trade.ExitPrice, unixNano(trade.ExitTime), trade.RealizedPnL, string(trade.ExitReason), trade.ExitOrderID,
		time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to record trade %s: %w", trade.Key, err)
	}
	return nil
}

// Trades returns recorded trades ordered by entry time, oldest first.
func (s *SQLiteStore) Trades(ctx context.Context, filter TradeFilter) ([]models.Trade, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.Underlying != "" {
		where = append(where, "underlying = ?")
		args = append(args, strings.ToUpper(filter.Underlying))
	}
	if filter.Mode != "" {
		where = append(where, "mode = ?")
		args = append(args, string(filter.Mode))
	}
	if !filter.From.IsZero() {
		where = append(where, "entry_time >= ?")
		args = append(args, filter.From.UnixNano())
	}
	if !filter.To.IsZero() {
		where = append(where, "entry_time < ?")
		args = append(args, filter.To.UnixNano())
	}

	query := `SELECT id, instrument_key, tradingsymbol, token, exchange, underlying, strike, option_type, lot_size, mode, strategy,
		entry_price, entry_time, order_id, stop_loss, peak_pnl, exit_price, exit_time, realized_pnl, exit_reason, exit_order_id
		FROM trades`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY entry_time ASC, id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []models.Trade
	for rows.Next() {
		var (
			t                   models.Trade
			key, exch, kind     string
			mode, reason        string
			strategy, orderID   sql.NullString
			exitOrderID         sql.NullString
			entryNs, exitNs     int64
			stopLoss, peak      sql.NullFloat64
			exitPrice, realized sql.NullFloat64
		)
		if err := rows.Scan(&t.ID, &key, &t.TradingSymbol, &t.Token, &exch, &t.Underlying, &t.Strike, &kind, &t.LotSize, &mode, &strategy,
			&t.EntryPrice, &entryNs, &orderID, &stopLoss, &peak, &exitPrice, &exitNs, &realized, &reason, &exitOrderID); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		t.Key = models.InstrumentKey(key)
		t.Exchange = models.Exchange(exch)
		t.Kind = models.OptionKind(kind)
		t.Mode = models.TradingMode(mode)
		t.Strategy = strategy.String
		t.Status = models.TradeClosed
		t.EntryTime = fromUnixNano(entryNs)
		t.OrderID = orderID.String
		t.StopLoss = stopLoss.Float64
		t.PeakPnL = peak.Float64
		t.ExitPrice = exitPrice.Float64
		t.ExitTime = fromUnixNano(exitNs)
		t.RealizedPnL = realized.Float64
		t.PnL = realized.Float64
		t.LTP = exitPrice.Float64
		t.ExitReason = models.ExitReason(reason)
		t.ExitOrderID = exitOrderID.String
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// RecordSession appends a session report.
func (s *SQLiteStore) RecordSession(ctx context.Context, session SessionRecord) error {
	if session.ID == "" {
		session.ID = id.NewAt(session.StartedAt)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, mode, state, started_at, ended_at, ticks, total_trades, closed_trades, winning_trades, realized_pnl, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, session.ID, string(session.Mode), session.State, unixNano(session.StartedAt), unixNano(session.EndedAt),
		session.Ticks, session.TotalTrades, session.ClosedTrades, session.WinningTrades, session.RealizedPnL, session.Error)
	if err != nil {
		return fmt.Errorf("failed to record session: %w", err)
	}
	return nil
}

// Sessions returns the most recent sessions, newest first.
func (s *SQLiteStore) Sessions(ctx context.Context, limit int) ([]SessionRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, mode, state, started_at, ended_at, ticks, total_trades, closed_trades, winning_trades, realized_pnl, error
		FROM sessions ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []SessionRecord
	for rows.Next() {
		var (
			rec            SessionRecord
			mode           string
			startNs, endNs int64
			errText        sql.NullString
		)
		if err := rows.Scan(&rec.ID, &mode, &rec.State, &startNs, &endNs, &rec.Ticks, &rec.TotalTrades,
			&rec.ClosedTrades, &rec.WinningTrades, &rec.RealizedPnL, &errText); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		rec.Mode = models.TradingMode(mode)
		rec.StartedAt = fromUnixNano(startNs)
		rec.EndedAt = fromUnixNano(endNs)
		rec.Error = errText.String
		sessions = append(sessions, rec)
	}
	return sessions, rows.Err()
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).In(utils.IndiaLocation)
}

var _ TradeStore = (*SQLiteStore)(nil)
