package model

import "gorm.io/datatypes"

// CursorStatus mirrors the status column on collection_control rows.
type CursorStatus string

const (
	CursorStatusActive CursorStatus = "active"
	CursorStatusError  CursorStatus = "error"
)

// RunType distinguishes what produced a collection_logs row.
type RunType string

const (
	RunTypeSingle  RunType = "single"
	RunTypeGapFill RunType = "gap_fill"
)

// CursorModel tracks the incremental collection position of one pair.
// last_collected_time is the open_time of the newest durably stored candle;
// NULL means the pair has never collected successfully.
type CursorModel struct {
	ID            int64        `gorm:"column:id;primaryKey"`
	Symbol        string       `gorm:"column:symbol;uniqueIndex:idx_collection_control,priority:1"`
	Interval      string       `gorm:"column:interval_type;uniqueIndex:idx_collection_control,priority:2"`
	LastCollected *int64       `gorm:"column:last_collected_time"`
	Status        CursorStatus `gorm:"column:status"`
	ErrorCount    int          `gorm:"column:error_count"`
	LastError     string       `gorm:"column:last_error"`
	UpdatedAtUnix int64        `gorm:"column:updated_at"`
}

func (CursorModel) TableName() string { return "collection_control" }

// RunLogModel is one append-only audit row per collection invocation.
type RunLogModel struct {
	ID          int64   `gorm:"column:id;primaryKey"`
	RunID       string  `gorm:"column:run_id;index"`
	Symbol      string  `gorm:"column:symbol;index:idx_collection_logs_pair,priority:1"`
	Interval    string  `gorm:"column:interval_type;index:idx_collection_logs_pair,priority:2"`
	RunType     RunType `gorm:"column:collection_type"`
	StartTime   int64   `gorm:"column:start_time"`
	EndTime     int64   `gorm:"column:end_time"`
	Records     int     `gorm:"column:records_collected"`
	Status      string  `gorm:"column:status"`
	ErrorMsg    string  `gorm:"column:error_message"`
	ExecutionMS int64   `gorm:"column:execution_ms"`
	CreatedAt   int64   `gorm:"column:created_at"`
}

func (RunLogModel) TableName() string { return "collection_logs" }

// TokenModel is one exchange symbol imported from exchangeInfo.
type TokenModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	Symbol        string         `gorm:"column:symbol;uniqueIndex"`
	BaseAsset     string         `gorm:"column:base_asset"`
	QuoteAsset    string         `gorm:"column:quote_asset"`
	Status        string         `gorm:"column:status"`
	SpotAllowed   bool           `gorm:"column:spot_allowed"`
	Filters       datatypes.JSON `gorm:"column:filters;type:TEXT"`
	CreatedAtUnix int64          `gorm:"column:created_at"`
	UpdatedAtUnix int64          `gorm:"column:updated_at"`
}

func (TokenModel) TableName() string { return "tokens" }

// IndicatorModel holds one computed indicator row per pair and candle.
type IndicatorModel struct {
	ID        int64  `gorm:"column:id;primaryKey"`
	Symbol    string `gorm:"column:symbol;uniqueIndex:idx_technical_indicators,priority:1"`
	Interval  string `gorm:"column:interval_type;uniqueIndex:idx_technical_indicators,priority:2"`
	Timestamp int64  `gorm:"column:timestamp;uniqueIndex:idx_technical_indicators,priority:3"`

	SMA20  *float64 `gorm:"column:sma_20"`
	SMA50  *float64 `gorm:"column:sma_50"`
	EMA12  *float64 `gorm:"column:ema_12"`
	EMA26  *float64 `gorm:"column:ema_26"`
	RSI14  *float64 `gorm:"column:rsi_14"`
	MACD   *float64 `gorm:"column:macd"`
	Signal *float64 `gorm:"column:macd_signal"`
	Hist   *float64 `gorm:"column:macd_histogram"`

	BBUpper *float64 `gorm:"column:bb_upper"`
	BBMid   *float64 `gorm:"column:bb_middle"`
	BBLower *float64 `gorm:"column:bb_lower"`
	StochK  *float64 `gorm:"column:stoch_k"`
	StochD  *float64 `gorm:"column:stoch_d"`

	VolumeSMA20 *float64 `gorm:"column:volume_sma_20"`
	VolumeRatio *float64 `gorm:"column:volume_ratio"`
	Support     *float64 `gorm:"column:support_level"`
	Resistance  *float64 `gorm:"column:resistance_level"`

	CreatedAtUnix int64 `gorm:"column:created_at"`
	UpdatedAtUnix int64 `gorm:"column:updated_at"`
}

func (IndicatorModel) TableName() string { return "technical_indicators" }
