package models

import (
	"time"
)

// Recommendation statuses
const (
	StatusActive = "ACTIVE"
	StatusClosed = "CLOSED"
)

// Outcome statuses
const (
	OutcomeOpen   = "OPEN"
	OutcomeClosed = "CLOSED"
)

// Exit reasons
const (
	ExitTargetReached = "TARGET_REACHED"
	ExitStopLoss      = "STOP_LOSS"
	ExitSessionEnd    = "SESSION_END"
	ExitSessionEnd8H  = "SESSION_END_8H"
	ExitManual        = "MANUAL"
	ExitSellSignal    = "SELL_SIGNAL"
)

// MaxCheckpointHour is the last hourly checkpoint of a recommendation
const MaxCheckpointHour = 8

// Company is one listed ticker of the scan universe.
// Rows are maintained by the external universe loader.
type Company struct {
	ID     int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Ticker string `gorm:"size:10;uniqueIndex;not null" json:"ticker"`
	Name   string `gorm:"size:200" json:"name"`
	Active bool   `gorm:"not null;default:true;index" json:"active"`
}

// TableName specifies the table name for Company
func (Company) TableName() string {
	return "companies"
}

// PriceBar is one daily OHLCV bar. The scraper keeps today's bar updated
// intraday, so the latest bar's Close is the current price.
type PriceBar struct {
	CompanyID int64     `gorm:"primaryKey" json:"company_id"`
	Date      time.Time `gorm:"type:date;primaryKey" json:"date"`
	Open      float64   `gorm:"type:decimal(15,2);not null" json:"open"`
	High      float64   `gorm:"type:decimal(15,2);not null" json:"high"`
	Low       float64   `gorm:"type:decimal(15,2);not null" json:"low"`
	Close     float64   `gorm:"type:decimal(15,2);not null" json:"close"`
	Volume    float64   `gorm:"type:decimal(20,2);not null" json:"volume"`
}

// TableName specifies the table name for PriceBar
func (PriceBar) TableName() string {
	return "price_bars"
}

// NewsItem is a scraped headline used for news impact scoring
type NewsItem struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Ticker      string    `gorm:"size:10;index:idx_news_ticker_time;not null" json:"ticker"`
	Headline    string    `gorm:"type:text;not null" json:"headline"`
	Summary     string    `gorm:"type:text" json:"summary"`
	PublishedAt time.Time `gorm:"index:idx_news_ticker_time;not null" json:"published_at"`
}

// TableName specifies the table name for NewsItem
func (NewsItem) TableName() string {
	return "news_items"
}

// Recommendation is a persisted BUY or SELL recommendation.
// Target and stop are fixed at creation. Rows are never deleted.
//
// Key Fields:
//   - State: BUY or SELL (HOLD/WAIT are never persisted)
//   - Status: ACTIVE until the outcome tracker closes it, then CLOSED
//   - SignalsJSON / ConfigJSON: audit snapshot of the evaluation
type Recommendation struct {
	ID             int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Ticker         string     `gorm:"size:10;index;not null;uniqueIndex:idx_recommendations_active,where:status = 'ACTIVE'" json:"ticker"`
	CompanyID      int64      `gorm:"index" json:"company_id"`
	State          string     `gorm:"size:4;not null;uniqueIndex:idx_recommendations_active,where:status = 'ACTIVE'" json:"state"`
	EntryPrice     float64    `gorm:"type:decimal(15,4);not null" json:"entry_price"`
	TargetPrice    float64    `gorm:"type:decimal(15,4);not null" json:"target_price"`
	StopPrice      float64    `gorm:"type:decimal(15,4);not null" json:"stop_price"`
	BuyConfidence  float64    `gorm:"type:decimal(10,4)" json:"buy_confidence"`
	SellConfidence float64    `gorm:"type:decimal(10,4)" json:"sell_confidence"`
	SignalsJSON    string     `gorm:"column:signals_json;type:jsonb" json:"signals"`
	ConfigJSON     string     `gorm:"column:config_json;type:jsonb" json:"config"`
	ConfigName     string     `gorm:"size:100;index" json:"config_name"`
	ConfigVersion  int        `json:"config_version"`
	NewsImpact     float64    `gorm:"type:decimal(10,4)" json:"news_impact"`
	ExitProfile    string     `gorm:"size:10" json:"exit_profile"`
	ScanID         string     `gorm:"size:36;index" json:"scan_id,omitempty"`
	CreatedAt      time.Time  `gorm:"index;not null" json:"created_at"`
	SessionDate    time.Time  `gorm:"type:date;index;not null" json:"session_date"`
	Status         string     `gorm:"size:10;index;not null;default:ACTIVE" json:"status"`
	ClosedAt       *time.Time `json:"closed_at,omitempty"`
}

// TableName specifies the table name for Recommendation
func (Recommendation) TableName() string {
	return "recommendations"
}

// IsBuy reports the direction of the recommendation
func (r Recommendation) IsBuy() bool {
	return r.State == "BUY"
}

// TimeCheckpointEvaluation is the re-pricing of a recommendation N hours after creation.
// Append-only; only IsOptimalExit is ever rewritten.
type TimeCheckpointEvaluation struct {
	ID               int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	RecommendationID int64     `gorm:"not null;uniqueIndex:idx_checkpoint_rec_hour" json:"recommendation_id"`
	Hour             int       `gorm:"not null;uniqueIndex:idx_checkpoint_rec_hour" json:"hour"`
	Price            float64   `gorm:"type:decimal(15,4);not null" json:"price"`
	PnlPct           float64   `gorm:"type:decimal(10,4);not null" json:"pnl_pct"`
	PnlAbs           float64   `gorm:"type:decimal(15,4);not null" json:"pnl_abs"`
	Volume           float64   `gorm:"type:decimal(20,2)" json:"volume"`
	RSI              float64   `gorm:"type:decimal(8,4)" json:"rsi"`
	IsOptimalExit    bool      `gorm:"not null;default:false" json:"is_optimal_exit"`
	CreatedAt        time.Time `gorm:"index;not null" json:"created_at"`
}

// TableName specifies the table name for TimeCheckpointEvaluation
func (TimeCheckpointEvaluation) TableName() string {
	return "time_checkpoint_evaluations"
}

// OutcomeResult is the single outcome row of a recommendation,
// upserted while OPEN and closed exactly once.
type OutcomeResult struct {
	ID               int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	RecommendationID int64      `gorm:"uniqueIndex;not null" json:"recommendation_id"`
	ExitPrice        float64    `gorm:"type:decimal(15,4)" json:"exit_price"`
	ExitTime         *time.Time `gorm:"index" json:"exit_time,omitempty"`
	DurationMinutes  int        `json:"duration_minutes"`
	PnlPct           float64    `gorm:"type:decimal(10,4)" json:"pnl_pct"`
	PnlAbs           float64    `gorm:"type:decimal(15,4)" json:"pnl_abs"`
	Status           string     `gorm:"size:10;not null;index" json:"status"`
	ExitReason       string     `gorm:"size:20" json:"exit_reason,omitempty"`
	Success          bool       `json:"success"`
	PriceStale       bool       `gorm:"not null;default:false" json:"price_stale,omitempty"` // expiry close priced without a fresh snapshot
	UpdatedAt        time.Time  `json:"updated_at"`
}

// TableName specifies the table name for OutcomeResult
func (OutcomeResult) TableName() string {
	return "outcome_results"
}

// DailyStats summarises one calendar day of closed outcomes.
// Always recomputed from the day's outcomes, never incremented.
type DailyStats struct {
	ID                 int64     `gorm:"primaryKey;autoIncrement" json:"-"`
	Date               time.Time `gorm:"type:date;uniqueIndex;not null" json:"date"`
	Total              int       `gorm:"not null;default:0" json:"total"`
	Successful         int       `gorm:"not null;default:0" json:"successful"`
	Failed             int       `gorm:"not null;default:0" json:"failed"`
	SuccessRate        float64   `gorm:"type:decimal(6,2)" json:"success_rate"`
	AvgProfit          float64   `gorm:"type:decimal(10,4)" json:"avg_profit"`
	AvgLoss            float64   `gorm:"type:decimal(10,4)" json:"avg_loss"`
	Best               float64   `gorm:"type:decimal(10,4)" json:"best"`
	Worst              float64   `gorm:"type:decimal(10,4)" json:"worst"`
	AvgDurationMinutes float64   `gorm:"type:decimal(10,2)" json:"avg_duration_minutes"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// TableName specifies the table name for DailyStats
func (DailyStats) TableName() string {
	return "daily_stats"
}

// TrackingUpdate is everything one tracker pass writes for one recommendation.
// Stores apply it atomically.
type TrackingUpdate struct {
	RecommendationID int64
	Checkpoints      []TimeCheckpointEvaluation
	Outcome          *OutcomeResult
	// Close requests the ACTIVE -> CLOSED transition; ignored if already closed
	Close    bool
	ClosedAt time.Time
	// OptimalHour, when > 0, becomes the only checkpoint flagged as optimal exit
	OptimalHour int
}

// ConfigOutcome pairs a closed outcome with the configuration that produced it
type ConfigOutcome struct {
	ConfigName    string
	ConfigVersion int
	Success       bool
	PnlPct        float64
}
