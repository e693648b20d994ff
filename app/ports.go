package app

import (
	"context"
	"time"

	models "intraday-advisor/database/models_pkg"
	"intraday-advisor/signals"
)

// Store persists recommendations, checkpoints, outcomes and daily statistics.
// Implemented by database/recommendations (postgres) and database/memory.
type Store interface {
	CreateRecommendation(ctx context.Context, rec *models.Recommendation) error
	GetRecommendation(ctx context.Context, id int64) (*models.Recommendation, error)
	ListActiveRecommendations(ctx context.Context) ([]models.Recommendation, error)
	HasActiveRecommendation(ctx context.Context, ticker, state string) (bool, error)
	GetCheckpoints(ctx context.Context, recommendationID int64) ([]models.TimeCheckpointEvaluation, error)
	ApplyTrackingUpdate(ctx context.Context, u models.TrackingUpdate) (bool, error)
	GetOutcome(ctx context.Context, recommendationID int64) (*models.OutcomeResult, error)
	ListClosedOutcomes(ctx context.Context, from, to time.Time) ([]models.OutcomeResult, error)
	UpsertDailyStats(ctx context.Context, stats *models.DailyStats) error
	GetDailyStats(ctx context.Context, since time.Time) ([]models.DailyStats, error)
	ListCheckpointsSince(ctx context.Context, since time.Time) ([]models.TimeCheckpointEvaluation, error)
	ListConfigOutcomes(ctx context.Context, since time.Time) ([]models.ConfigOutcome, error)
}

// Universe lists the scannable tickers
type Universe interface {
	ListTickers(ctx context.Context) ([]string, error)
	GetCompanyID(ctx context.Context, ticker string) (int64, error)
}

// SnapshotProvider returns the current technical snapshot of a ticker.
// Insufficient history wraps snapshot.ErrNoData; fetch problems are
// *snapshot.TransientFetchError.
type SnapshotProvider interface {
	GetSnapshot(ctx context.Context, ticker string) (signals.TechnicalSnapshot, error)
}

// Classifier is the optional statistical model
type Classifier interface {
	Predict(ctx context.Context, snap signals.TechnicalSnapshot) signals.ClassifierResult
}

// NewsSource returns a confidence modifier; zero and an empty note are neutral
type NewsSource interface {
	NewsImpact(ctx context.Context, ticker string, windowHours int) (float64, string)
}

// Broadcaster pushes events to realtime subscribers
type Broadcaster interface {
	Broadcast(event string, payload interface{})
}

// PositionCloser closes an ACTIVE recommendation at a known price
type PositionCloser interface {
	CloseAt(ctx context.Context, rec models.Recommendation, price float64, reason string) (*models.OutcomeResult, error)
}
