// Package database provides database connection management for the intraday advisor.
//
// This package includes:
//   - A pooled lib/pq connection handed to GORM
//   - Schema migration for recommendation and outcome tables
//   - Typed persistence errors
//
// Data Models:
//
//	All data models (Recommendation, TimeCheckpointEvaluation, OutcomeResult, DailyStats, ...)
//	are defined in the models_pkg package to avoid circular import dependencies.
package database

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	models "intraday-advisor/database/models_pkg"
)

// Database holds the GORM database connection and provides access to the underlying DB instance.
type Database struct {
	db  *gorm.DB
	log *logrus.Logger
}

// DB returns the underlying GORM database instance
func (d *Database) DB() *gorm.DB {
	return d.db
}

// Connect opens the lib/pq pool and establishes the GORM session on top of it
func Connect(ctx context.Context, cfg Config, log *logrus.Logger) (*Database, error) {
	sqlDB, err := openPool(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &Database{db: db, log: log}, nil
}

// InitSchema migrates every table the advisor owns or reads
func (d *Database) InitSchema() error {
	d.log.Info("🔄 Starting database schema initialization...")

	err := d.db.AutoMigrate(
		&Company{},
		&PriceBar{},
		&NewsItem{},
		&Recommendation{},
		&TimeCheckpointEvaluation{},
		&OutcomeResult{},
		&DailyStats{},
	)
	if err != nil {
		return fmt.Errorf("auto-migration failed: %w", err)
	}

	d.log.Info("✅ Database schema initialized")
	return nil
}

// Ping checks if the database connection is alive
func (d *Database) Ping(ctx context.Context) error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection
func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	d.log.Info("📡 Closing database connection...")
	return sqlDB.Close()
}

// Type aliases so callers can use the models through the database package

type Company = models.Company
type PriceBar = models.PriceBar
type NewsItem = models.NewsItem
type Recommendation = models.Recommendation
type TimeCheckpointEvaluation = models.TimeCheckpointEvaluation
type OutcomeResult = models.OutcomeResult
type DailyStats = models.DailyStats
