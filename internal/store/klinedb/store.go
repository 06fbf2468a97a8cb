package klinedb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"candler/internal/market"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// Store persists candles in a single SQLite file keyed by
// (symbol, interval, open_time). Writes are insert-or-ignore so re-fetching
// an overlapping window never rewrites history.
type Store struct {
	db *sql.DB
}

func New(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("candle db path is required")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func ensureSchema(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS candles (
		symbol                 TEXT NOT NULL,
		interval               TEXT NOT NULL,
		open_time              INTEGER NOT NULL,
		close_time             INTEGER NOT NULL,
		open                   TEXT NOT NULL,
		high                   TEXT NOT NULL,
		low                    TEXT NOT NULL,
		close                  TEXT NOT NULL,
		volume                 TEXT NOT NULL,
		quote_volume           TEXT NOT NULL DEFAULT '0',
		trades                 INTEGER NOT NULL DEFAULT 0,
		taker_buy_base_volume  TEXT NOT NULL DEFAULT '0',
		taker_buy_quote_volume TEXT NOT NULL DEFAULT '0',
		inserted_at            INTEGER NOT NULL DEFAULT (strftime('%s','now') * 1000),
		PRIMARY KEY (symbol, interval, open_time)
	);`)
	return err
}

// InsertIgnore writes candles in one transaction and returns how many rows
// were actually inserted. Rows whose key already exists are skipped. The
// batch is all-or-nothing: any failure rolls the whole write back.
func (s *Store) InsertIgnore(ctx context.Context, candles []market.Candle) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("candle store not initialized")
	}
	if len(candles) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO candles (symbol, interval, open_time, close_time,
			open, high, low, close, volume, quote_volume, trades,
			taker_buy_base_volume, taker_buy_quote_volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, interval, open_time) DO NOTHING`)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	defer stmt.Close()
	inserted := 0
	for _, c := range candles {
		res, err := stmt.ExecContext(ctx,
			strings.ToUpper(c.Symbol), c.Interval, c.OpenTime, c.CloseTime,
			c.Open.String(), c.High.String(), c.Low.String(), c.Close.String(),
			c.Volume.String(), c.QuoteVolume.String(), c.Trades,
			c.TakerBuyBaseVolume.String(), c.TakerBuyQuoteVolume.String())
		if err != nil {
			_ = tx.Rollback()
			return 0, err
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

// MaxOpenTime returns the newest stored open_time for a pair, 0 when the
// pair has no rows yet.
func (s *Store) MaxOpenTime(ctx context.Context, symbol, interval string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("candle store not initialized")
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(open_time), 0) FROM candles WHERE symbol = ? AND interval = ?`,
		strings.ToUpper(symbol), interval)
	var ts int64
	if err := row.Scan(&ts); err != nil {
		return 0, err
	}
	return ts, nil
}

// Count returns the number of stored candles for a pair.
func (s *Store) Count(ctx context.Context, symbol, interval string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("candle store not initialized")
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM candles WHERE symbol = ? AND interval = ?`,
		strings.ToUpper(symbol), interval)
	var n int64
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Recent returns the newest limit candles for a pair, ascending by open_time.
func (s *Store) Recent(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("candle store not initialized")
	}
	if limit <= 0 {
		limit = 200
	}
	if limit > 2000 {
		limit = 2000
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, interval, open_time, close_time, open, high, low, close,
			volume, quote_volume, trades, taker_buy_base_volume, taker_buy_quote_volume
		FROM candles WHERE symbol = ? AND interval = ?
		ORDER BY open_time DESC LIMIT ?`,
		strings.ToUpper(symbol), interval, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list, err := scanCandles(rows)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(list)-1; i < j; i, j = i+1, j-1 {
		list[i], list[j] = list[j], list[i]
	}
	return list, nil
}

// Range returns candles with open_time in [start, end], ascending.
func (s *Store) Range(ctx context.Context, symbol, interval string, start, end int64) ([]market.Candle, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("candle store not initialized")
	}
	if start > 0 && end > 0 && end < start {
		start, end = end, start
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, interval, open_time, close_time, open, high, low, close,
			volume, quote_volume, trades, taker_buy_base_volume, taker_buy_quote_volume
		FROM candles WHERE symbol = ? AND interval = ? AND open_time BETWEEN ? AND ?
		ORDER BY open_time ASC`,
		strings.ToUpper(symbol), interval, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCandles(rows)
}

func scanCandles(rows *sql.Rows) ([]market.Candle, error) {
	var list []market.Candle
	for rows.Next() {
		var c market.Candle
		var open, high, low, closeP, volume, quoteVol, takerBase, takerQuote string
		if err := rows.Scan(&c.Symbol, &c.Interval, &c.OpenTime, &c.CloseTime,
			&open, &high, &low, &closeP, &volume, &quoteVol, &c.Trades,
			&takerBase, &takerQuote); err != nil {
			return nil, err
		}
		var err error
		if c.Open, err = parseStored(open); err != nil {
			return nil, err
		}
		if c.High, err = parseStored(high); err != nil {
			return nil, err
		}
		if c.Low, err = parseStored(low); err != nil {
			return nil, err
		}
		if c.Close, err = parseStored(closeP); err != nil {
			return nil, err
		}
		if c.Volume, err = parseStored(volume); err != nil {
			return nil, err
		}
		if c.QuoteVolume, err = parseStored(quoteVol); err != nil {
			return nil, err
		}
		if c.TakerBuyBaseVolume, err = parseStored(takerBase); err != nil {
			return nil, err
		}
		if c.TakerBuyQuoteVolume, err = parseStored(takerQuote); err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

func parseStored(v string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("corrupt decimal %q in candle store: %w", v, err)
	}
	return d, nil
}
