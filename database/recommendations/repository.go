package recommendations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"intraday-advisor/database"
	models "intraday-advisor/database/models_pkg"
)

// Repository handles database operations for recommendations, checkpoints,
// outcomes and daily statistics
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new recommendations repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// CreateRecommendation persists a new recommendation. The partial unique
// index idx_recommendations_active turns a concurrent duplicate ACTIVE insert
// into database.ErrDuplicateActive.
func (r *Repository) CreateRecommendation(ctx context.Context, rec *models.Recommendation) error {
	if rec.Status == "" {
		rec.Status = models.StatusActive
	}
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		if isUniqueViolation(err) {
			return database.ErrDuplicateActive
		}
		return database.Wrap("CreateRecommendation", fmt.Errorf("CreateRecommendation: %w", err))
	}
	return nil
}

// uniqueViolation is the Postgres SQLSTATE for unique_violation
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// GetRecommendation retrieves a recommendation by ID; nil when missing
func (r *Repository) GetRecommendation(ctx context.Context, id int64) (*models.Recommendation, error) {
	var rec models.Recommendation
	err := r.db.WithContext(ctx).First(&rec, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, database.Wrap("GetRecommendation", fmt.Errorf("GetRecommendation: %w", err))
	}
	return &rec, nil
}

// ListActiveRecommendations returns every ACTIVE recommendation, oldest first
func (r *Repository) ListActiveRecommendations(ctx context.Context) ([]models.Recommendation, error) {
	var recs []models.Recommendation
	err := r.db.WithContext(ctx).
		Where("status = ?", models.StatusActive).
		Order("created_at ASC, id ASC").
		Find(&recs).Error
	if err != nil {
		return nil, database.Wrap("ListActiveRecommendations", fmt.Errorf("ListActiveRecommendations: %w", err))
	}
	return recs, nil
}

// HasActiveRecommendation reports whether ticker already has an ACTIVE
// recommendation with the given state
func (r *Repository) HasActiveRecommendation(ctx context.Context, ticker, state string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Recommendation{}).
		Where("ticker = ? AND state = ? AND status = ?", ticker, state, models.StatusActive).
		Count(&count).Error
	if err != nil {
		return false, database.Wrap("HasActiveRecommendation", fmt.Errorf("HasActiveRecommendation: %w", err))
	}
	return count > 0, nil
}

// GetCheckpoints returns the checkpoints of one recommendation in hour order
func (r *Repository) GetCheckpoints(ctx context.Context, recommendationID int64) ([]models.TimeCheckpointEvaluation, error) {
	var cps []models.TimeCheckpointEvaluation
	err := r.db.WithContext(ctx).
		Where("recommendation_id = ?", recommendationID).
		Order("hour ASC").
		Find(&cps).Error
	if err != nil {
		return nil, database.Wrap("GetCheckpoints", fmt.Errorf("GetCheckpoints: %w", err))
	}
	return cps, nil
}

// ApplyTrackingUpdate writes one tracker pass for one recommendation in a single
// transaction. The recommendation row is locked first; an already CLOSED
// recommendation is left untouched. It reports whether this call performed
// the ACTIVE -> CLOSED transition.
func (r *Repository) ApplyTrackingUpdate(ctx context.Context, u models.TrackingUpdate) (bool, error) {
	closed := false

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec models.Recommendation
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&rec, u.RecommendationID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return database.NewNotFoundErrorWithID("recommendation", u.RecommendationID)
			}
			return fmt.Errorf("lock recommendation: %w", err)
		}
		if rec.Status != models.StatusActive {
			return nil
		}

		if len(u.Checkpoints) > 0 {
			cps := make([]models.TimeCheckpointEvaluation, len(u.Checkpoints))
			copy(cps, u.Checkpoints)
			for i := range cps {
				cps[i].ID = 0
				cps[i].RecommendationID = u.RecommendationID
			}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "recommendation_id"}, {Name: "hour"}},
				DoNothing: true,
			}).Create(&cps).Error
			if err != nil {
				return fmt.Errorf("insert checkpoints: %w", err)
			}
		}

		if u.Close {
			res := tx.Model(&models.Recommendation{}).
				Where("id = ? AND status = ?", u.RecommendationID, models.StatusActive).
				Updates(map[string]interface{}{
					"status":    models.StatusClosed,
					"closed_at": u.ClosedAt,
				})
			if res.Error != nil {
				return fmt.Errorf("close recommendation: %w", res.Error)
			}
			closed = res.RowsAffected == 1
		}

		if u.Outcome != nil {
			out := *u.Outcome
			out.ID = 0
			out.RecommendationID = u.RecommendationID
			out.UpdatedAt = time.Now()
			err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "recommendation_id"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"exit_price", "exit_time", "duration_minutes", "pnl_pct", "pnl_abs",
					"status", "exit_reason", "success", "price_stale", "updated_at",
				}),
			}).Create(&out).Error
			if err != nil {
				return fmt.Errorf("upsert outcome: %w", err)
			}
		}

		if u.OptimalHour > 0 {
			err := tx.Model(&models.TimeCheckpointEvaluation{}).
				Where("recommendation_id = ?", u.RecommendationID).
				Update("is_optimal_exit", gorm.Expr("hour = ?", u.OptimalHour)).Error
			if err != nil {
				return fmt.Errorf("flag optimal exit: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		if database.IsNotFound(err) {
			return false, err
		}
		return false, database.Wrap("ApplyTrackingUpdate", fmt.Errorf("ApplyTrackingUpdate(%d): %w", u.RecommendationID, err))
	}
	return closed, nil
}

// GetOutcome returns the outcome row of a recommendation; nil when missing
func (r *Repository) GetOutcome(ctx context.Context, recommendationID int64) (*models.OutcomeResult, error) {
	var out models.OutcomeResult
	err := r.db.WithContext(ctx).Where("recommendation_id = ?", recommendationID).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, database.Wrap("GetOutcome", fmt.Errorf("GetOutcome: %w", err))
	}
	return &out, nil
}

// ListClosedOutcomes returns CLOSED outcomes whose exit time falls in [from, to)
func (r *Repository) ListClosedOutcomes(ctx context.Context, from, to time.Time) ([]models.OutcomeResult, error) {
	var outs []models.OutcomeResult
	err := r.db.WithContext(ctx).
		Where("status = ? AND exit_time >= ? AND exit_time < ?", models.OutcomeClosed, from, to).
		Order("exit_time ASC").
		Find(&outs).Error
	if err != nil {
		return nil, database.Wrap("ListClosedOutcomes", fmt.Errorf("ListClosedOutcomes: %w", err))
	}
	return outs, nil
}

// UpsertDailyStats replaces the statistics row of stats.Date
func (r *Repository) UpsertDailyStats(ctx context.Context, stats *models.DailyStats) error {
	row := *stats
	row.ID = 0
	row.UpdatedAt = time.Now()
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"total", "successful", "failed", "success_rate", "avg_profit", "avg_loss",
			"best", "worst", "avg_duration_minutes", "updated_at",
		}),
	}).Create(&row).Error
	if err != nil {
		return database.Wrap("UpsertDailyStats", fmt.Errorf("UpsertDailyStats: %w", err))
	}
	return nil
}

// GetDailyStats returns daily statistics on or after since, newest first
func (r *Repository) GetDailyStats(ctx context.Context, since time.Time) ([]models.DailyStats, error) {
	var stats []models.DailyStats
	err := r.db.WithContext(ctx).
		Where("date >= ?", since).
		Order("date DESC").
		Find(&stats).Error
	if err != nil {
		return nil, database.Wrap("GetDailyStats", fmt.Errorf("GetDailyStats: %w", err))
	}
	return stats, nil
}

// ListCheckpointsSince returns the checkpoints of recommendations created on or after since
func (r *Repository) ListCheckpointsSince(ctx context.Context, since time.Time) ([]models.TimeCheckpointEvaluation, error) {
	var cps []models.TimeCheckpointEvaluation
	err := r.db.WithContext(ctx).
		Joins("JOIN recommendations ON recommendations.id = time_checkpoint_evaluations.recommendation_id").
		Where("recommendations.created_at >= ?", since).
		Order("time_checkpoint_evaluations.recommendation_id ASC, time_checkpoint_evaluations.hour ASC").
		Find(&cps).Error
	if err != nil {
		return nil, database.Wrap("ListCheckpointsSince", fmt.Errorf("ListCheckpointsSince: %w", err))
	}
	return cps, nil
}

// ListConfigOutcomes pairs CLOSED outcomes since the given time with the
// configuration that produced their recommendation
func (r *Repository) ListConfigOutcomes(ctx context.Context, since time.Time) ([]models.ConfigOutcome, error) {
	var rows []models.ConfigOutcome
	err := r.db.WithContext(ctx).
		Table("outcome_results AS o").
		Select("r.config_name AS config_name, r.config_version AS config_version, o.success AS success, o.pnl_pct AS pnl_pct").
		Joins("JOIN recommendations AS r ON r.id = o.recommendation_id").
		Where("o.status = ? AND o.exit_time >= ?", models.OutcomeClosed, since).
		Scan(&rows).Error
	if err != nil {
		return nil, database.Wrap("ListConfigOutcomes", fmt.Errorf("ListConfigOutcomes: %w", err))
	}
	return rows, nil
}
