package gormstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	storemodel "candler/internal/store/model"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

type (
	cursorModel    = storemodel.CursorModel
	runLogModel    = storemodel.RunLogModel
	tokenModel     = storemodel.TokenModel
	indicatorModel = storemodel.IndicatorModel
)

type (
	CursorStatus = storemodel.CursorStatus
	RunType      = storemodel.RunType
)

const (
	CursorStatusActive = storemodel.CursorStatusActive
	CursorStatusError  = storemodel.CursorStatusError
	RunTypeSingle      = storemodel.RunTypeSingle
	RunTypeGapFill     = storemodel.RunTypeGapFill
)

// Cursor is one pair's collection position.
type Cursor struct {
	Symbol        string
	Interval      string
	LastCollected *int64
	Status        CursorStatus
	ErrorCount    int
	LastError     string
	UpdatedAt     time.Time
}

// RunLog is the audit record of one collection invocation.
type RunLog struct {
	RunID       string
	Symbol      string
	Interval    string
	RunType     RunType
	StartTime   int64
	EndTime     int64
	Records     int
	Status      string
	ErrorMsg    string
	ExecutionMS int64
	CreatedAt   time.Time
}

// Token is one exchange symbol from the imported catalog.
type Token struct {
	Symbol      string
	BaseAsset   string
	QuoteAsset  string
	Status      string
	SpotAllowed bool
	Filters     []byte
}

// GormStore implements the control-plane tables (cursors, run logs, token
// catalog, indicator rows) on Gorm + SQLite.
type GormStore struct {
	db *gorm.DB
}

func New(path string) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: db path is required")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(&sqlite.Dialector{DriverName: "sqlite", DSN: dsn}, &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	models := []interface{}{
		&cursorModel{},
		&runLogModel{},
		&tokenModel{},
		&indicatorModel{},
	}
	if err := db.AutoMigrate(models...); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: allow a little parallelism for the monitor's reads
	// while keeping lock contention low.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &GormStore{db: db}, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func (s *GormStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SQLDB exposes the underlying *sql.DB for shared connections.
func (s *GormStore) SQLDB() (*sql.DB, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store not initialized")
	}
	return s.db.DB()
}

// --------------------- collection_control -------------------------

// AdvanceCursor records a successful collection: the cursor moves to
// lastOpenTime, the status resets to active and the error streak clears.
func (s *GormStore) AdvanceCursor(ctx context.Context, symbol, interval string, lastOpenTime int64) error {
	ts := lastOpenTime
	return s.upsertCursor(ctx, cursorModel{
		Symbol:        strings.ToUpper(symbol),
		Interval:      interval,
		LastCollected: &ts,
		Status:        storemodel.CursorStatusActive,
		ErrorCount:    0,
		LastError:     "",
		UpdatedAtUnix: time.Now().Unix(),
	})
}

// ResetCursorStatus marks a pair active without moving its position. Used
// after an empty-but-successful run so a prior error streak clears.
func (s *GormStore) ResetCursorStatus(ctx context.Context, symbol, interval string) error {
	return s.upsertCursor(ctx, cursorModel{
		Symbol:        strings.ToUpper(symbol),
		Interval:      interval,
		LastCollected: nil,
		Status:        storemodel.CursorStatusActive,
		ErrorCount:    0,
		LastError:     "",
		UpdatedAtUnix: time.Now().Unix(),
	})
}

// MarkCursorError records a failed collection. The position is preserved
// and the consecutive error count grows by one.
func (s *GormStore) MarkCursorError(ctx context.Context, symbol, interval, msg string) error {
	return s.upsertCursor(ctx, cursorModel{
		Symbol:        strings.ToUpper(symbol),
		Interval:      interval,
		LastCollected: nil,
		Status:        storemodel.CursorStatusError,
		ErrorCount:    1,
		LastError:     msg,
		UpdatedAtUnix: time.Now().Unix(),
	})
}

func (s *GormStore) upsertCursor(ctx context.Context, m cursorModel) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm store not initialized")
	}
	if m.Symbol == "" || m.Interval == "" {
		return fmt.Errorf("cursor upsert requires symbol and interval")
	}
	// NULL last_collected_time in the incoming row means "keep what is
	// there"; only a success carries a new position. The error streak is
	// computed in SQL so concurrent writers cannot lose increments.
	updates := clause.Assignments(map[string]interface{}{
		"last_collected_time": gorm.Expr("COALESCE(excluded.last_collected_time, collection_control.last_collected_time)"),
		"status":              gorm.Expr("excluded.status"),
		"error_count":         gorm.Expr("CASE WHEN excluded.status = 'error' THEN collection_control.error_count + 1 ELSE 0 END"),
		"last_error":          gorm.Expr("excluded.last_error"),
		"updated_at":          gorm.Expr("excluded.updated_at"),
	})
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}, {Name: "interval_type"}},
			DoUpdates: updates,
		}).
		Create(&m).Error
}

// Cursor loads one pair's cursor. The bool reports whether a row exists.
func (s *GormStore) Cursor(ctx context.Context, symbol, interval string) (Cursor, bool, error) {
	if s == nil || s.db == nil {
		return Cursor{}, false, fmt.Errorf("gorm store not initialized")
	}
	var m cursorModel
	err := s.db.WithContext(ctx).
		Where("symbol = ? AND interval_type = ?", strings.ToUpper(symbol), interval).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Cursor{}, false, nil
	}
	if err != nil {
		return Cursor{}, false, err
	}
	return cursorFromModel(m), true, nil
}

// ListCursors returns every cursor ordered by pair.
func (s *GormStore) ListCursors(ctx context.Context) ([]Cursor, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store not initialized")
	}
	var models []cursorModel
	if err := s.db.WithContext(ctx).
		Order("symbol, interval_type").
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]Cursor, 0, len(models))
	for _, m := range models {
		out = append(out, cursorFromModel(m))
	}
	return out, nil
}

func cursorFromModel(m cursorModel) Cursor {
	return Cursor{
		Symbol:        m.Symbol,
		Interval:      m.Interval,
		LastCollected: m.LastCollected,
		Status:        m.Status,
		ErrorCount:    m.ErrorCount,
		LastError:     m.LastError,
		UpdatedAt:     time.Unix(m.UpdatedAtUnix, 0),
	}
}

// --------------------- collection_logs -------------------------

// AppendRunLog writes one audit row. Run logs are append-only.
func (s *GormStore) AppendRunLog(ctx context.Context, rec RunLog) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm store not initialized")
	}
	if rec.Symbol == "" || rec.Interval == "" {
		return fmt.Errorf("run log requires symbol and interval")
	}
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	m := runLogModel{
		RunID:       rec.RunID,
		Symbol:      strings.ToUpper(rec.Symbol),
		Interval:    rec.Interval,
		RunType:     rec.RunType,
		StartTime:   rec.StartTime,
		EndTime:     rec.EndTime,
		Records:     rec.Records,
		Status:      rec.Status,
		ErrorMsg:    rec.ErrorMsg,
		ExecutionMS: rec.ExecutionMS,
		CreatedAt:   created.Unix(),
	}
	return s.db.WithContext(ctx).Create(&m).Error
}

// RecentRunLogs returns the newest limit rows, newest first.
func (s *GormStore) RecentRunLogs(ctx context.Context, limit int) ([]RunLog, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store not initialized")
	}
	if limit <= 0 {
		limit = 50
	}
	var models []runLogModel
	if err := s.db.WithContext(ctx).
		Order("id DESC").Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]RunLog, 0, len(models))
	for _, m := range models {
		out = append(out, RunLog{
			RunID:       m.RunID,
			Symbol:      m.Symbol,
			Interval:    m.Interval,
			RunType:     m.RunType,
			StartTime:   m.StartTime,
			EndTime:     m.EndTime,
			Records:     m.Records,
			Status:      m.Status,
			ErrorMsg:    m.ErrorMsg,
			ExecutionMS: m.ExecutionMS,
			CreatedAt:   time.Unix(m.CreatedAt, 0),
		})
	}
	return out, nil
}

// --------------------- tokens -------------------------

// UpsertTokens refreshes the symbol catalog from exchangeInfo.
func (s *GormStore) UpsertTokens(ctx context.Context, tokens []Token) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm store not initialized")
	}
	if len(tokens) == 0 {
		return nil
	}
	now := time.Now().Unix()
	models := make([]tokenModel, 0, len(tokens))
	for _, t := range tokens {
		sym := strings.ToUpper(strings.TrimSpace(t.Symbol))
		if sym == "" {
			continue
		}
		filters := t.Filters
		if len(filters) == 0 {
			filters = []byte("[]")
		}
		models = append(models, tokenModel{
			Symbol:        sym,
			BaseAsset:     strings.ToUpper(t.BaseAsset),
			QuoteAsset:    strings.ToUpper(t.QuoteAsset),
			Status:        t.Status,
			SpotAllowed:   t.SpotAllowed,
			Filters:       datatypes.JSON(filters),
			CreatedAtUnix: now,
			UpdatedAtUnix: now,
		})
	}
	if len(models) == 0 {
		return nil
	}
	updates := clause.Assignments(map[string]interface{}{
		"base_asset":   gorm.Expr("excluded.base_asset"),
		"quote_asset":  gorm.Expr("excluded.quote_asset"),
		"status":       gorm.Expr("excluded.status"),
		"spot_allowed": gorm.Expr("excluded.spot_allowed"),
		"filters":      gorm.Expr("excluded.filters"),
		"updated_at":   gorm.Expr("excluded.updated_at"),
	})
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}},
			DoUpdates: updates,
		}).
		CreateInBatches(&models, 200).Error
}

// ActiveSymbols lists tradeable catalog symbols quoted in quote, ordered.
func (s *GormStore) ActiveSymbols(ctx context.Context, quote string) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store not initialized")
	}
	quote = strings.ToUpper(strings.TrimSpace(quote))
	if quote == "" {
		quote = "USDT"
	}
	var symbols []string
	err := s.db.WithContext(ctx).
		Model(&tokenModel{}).
		Where("status = ? AND spot_allowed = ? AND quote_asset = ?", "TRADING", true, quote).
		Order("symbol").
		Pluck("symbol", &symbols).Error
	return symbols, err
}

// --------------------- technical_indicators -------------------------

// IndicatorRow is one computed row keyed by pair and candle open time.
// Nil fields mean the indicator had insufficient history at that candle.
type IndicatorRow struct {
	Symbol    string
	Interval  string
	Timestamp int64

	SMA20, SMA50               *float64
	EMA12, EMA26               *float64
	RSI14                      *float64
	MACD, MACDSignal, MACDHist *float64
	BBUpper, BBMid, BBLower    *float64
	StochK, StochD             *float64
	VolumeSMA20, VolumeRatio   *float64
	Support, Resistance        *float64
}

// UpsertIndicators writes or refreshes computed rows.
func (s *GormStore) UpsertIndicators(ctx context.Context, rows []IndicatorRow) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm store not initialized")
	}
	if len(rows) == 0 {
		return nil
	}
	now := time.Now().Unix()
	models := make([]indicatorModel, 0, len(rows))
	for _, r := range rows {
		if r.Symbol == "" || r.Interval == "" || r.Timestamp <= 0 {
			continue
		}
		models = append(models, indicatorModel{
			Symbol:        strings.ToUpper(r.Symbol),
			Interval:      r.Interval,
			Timestamp:     r.Timestamp,
			SMA20:         r.SMA20,
			SMA50:         r.SMA50,
			EMA12:         r.EMA12,
			EMA26:         r.EMA26,
			RSI14:         r.RSI14,
			MACD:          r.MACD,
			Signal:        r.MACDSignal,
			Hist:          r.MACDHist,
			BBUpper:       r.BBUpper,
			BBMid:         r.BBMid,
			BBLower:       r.BBLower,
			StochK:        r.StochK,
			StochD:        r.StochD,
			VolumeSMA20:   r.VolumeSMA20,
			VolumeRatio:   r.VolumeRatio,
			Support:       r.Support,
			Resistance:    r.Resistance,
			CreatedAtUnix: now,
			UpdatedAtUnix: now,
		})
	}
	if len(models) == 0 {
		return nil
	}
	updates := clause.Assignments(map[string]interface{}{
		"sma_20":           gorm.Expr("excluded.sma_20"),
		"sma_50":           gorm.Expr("excluded.sma_50"),
		"ema_12":           gorm.Expr("excluded.ema_12"),
		"ema_26":           gorm.Expr("excluded.ema_26"),
		"rsi_14":           gorm.Expr("excluded.rsi_14"),
		"macd":             gorm.Expr("excluded.macd"),
		"macd_signal":      gorm.Expr("excluded.macd_signal"),
		"macd_histogram":   gorm.Expr("excluded.macd_histogram"),
		"bb_upper":         gorm.Expr("excluded.bb_upper"),
		"bb_middle":        gorm.Expr("excluded.bb_middle"),
		"bb_lower":         gorm.Expr("excluded.bb_lower"),
		"stoch_k":          gorm.Expr("excluded.stoch_k"),
		"stoch_d":          gorm.Expr("excluded.stoch_d"),
		"volume_sma_20":    gorm.Expr("excluded.volume_sma_20"),
		"volume_ratio":     gorm.Expr("excluded.volume_ratio"),
		"support_level":    gorm.Expr("excluded.support_level"),
		"resistance_level": gorm.Expr("excluded.resistance_level"),
		"updated_at":       gorm.Expr("excluded.updated_at"),
	})
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}, {Name: "interval_type"}, {Name: "timestamp"}},
			DoUpdates: updates,
		}).
		CreateInBatches(&models, 100).Error
}

// LatestIndicators returns the newest row per symbol for an interval.
func (s *GormStore) LatestIndicators(ctx context.Context, interval string) ([]IndicatorRow, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store not initialized")
	}
	var models []indicatorModel
	err := s.db.WithContext(ctx).
		Where("interval_type = ? AND timestamp IN (SELECT MAX(timestamp) FROM technical_indicators t2 WHERE t2.symbol = technical_indicators.symbol AND t2.interval_type = ?)",
			interval, interval).
		Order("symbol").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]IndicatorRow, 0, len(models))
	for _, m := range models {
		out = append(out, IndicatorRow{
			Symbol:      m.Symbol,
			Interval:    m.Interval,
			Timestamp:   m.Timestamp,
			SMA20:       m.SMA20,
			SMA50:       m.SMA50,
			EMA12:       m.EMA12,
			EMA26:       m.EMA26,
			RSI14:       m.RSI14,
			MACD:        m.MACD,
			MACDSignal:  m.Signal,
			MACDHist:    m.Hist,
			BBUpper:     m.BBUpper,
			BBMid:       m.BBMid,
			BBLower:     m.BBLower,
			StochK:      m.StochK,
			StochD:      m.StochD,
			VolumeSMA20: m.VolumeSMA20,
			VolumeRatio: m.VolumeRatio,
			Support:     m.Support,
			Resistance:  m.Resistance,
		})
	}
	return out, nil
}
