package marketdata

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"intraday-advisor/database"
	models "intraday-advisor/database/models_pkg"
)

// Repository reads the scraper-owned tables: companies, price_bars and news_items
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new market data repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// ListTickers returns the active universe in ticker order
func (r *Repository) ListTickers(ctx context.Context) ([]string, error) {
	var tickers []string
	err := r.db.WithContext(ctx).Model(&models.Company{}).
		Where("active = ?", true).
		Order("ticker ASC").
		Pluck("ticker", &tickers).Error
	if err != nil {
		return nil, database.Wrap("ListTickers", fmt.Errorf("ListTickers: %w", err))
	}
	return tickers, nil
}

// GetCompanyID resolves a ticker; unknown tickers return a NotFoundError
func (r *Repository) GetCompanyID(ctx context.Context, ticker string) (int64, error) {
	var company models.Company
	err := r.db.WithContext(ctx).
		Where("ticker = ?", strings.ToUpper(ticker)).
		First(&company).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, database.NewNotFoundErrorWithID("company", ticker)
	}
	if err != nil {
		return 0, database.Wrap("GetCompanyID", fmt.Errorf("GetCompanyID: %w", err))
	}
	return company.ID, nil
}

// GetRecentBars returns up to limit most recent daily bars, oldest first
func (r *Repository) GetRecentBars(ctx context.Context, companyID int64, limit int) ([]models.PriceBar, error) {
	var bars []models.PriceBar
	err := r.db.WithContext(ctx).
		Where("company_id = ?", companyID).
		Order("date DESC").
		Limit(limit).
		Find(&bars).Error
	if err != nil {
		return nil, database.Wrap("GetRecentBars", fmt.Errorf("GetRecentBars: %w", err))
	}

	// Reverse to chronological order for indicator calculation
	for i, j := 0, len(bars)-1; i < j; i, j = i+1, j-1 {
		bars[i], bars[j] = bars[j], bars[i]
	}
	return bars, nil
}

// GetRecentNews returns headlines for ticker published on or after since, newest first
func (r *Repository) GetRecentNews(ctx context.Context, ticker string, since time.Time) ([]models.NewsItem, error) {
	var items []models.NewsItem
	err := r.db.WithContext(ctx).
		Where("ticker = ? AND published_at >= ?", strings.ToUpper(ticker), since).
		Order("published_at DESC").
		Limit(20).
		Find(&items).Error
	if err != nil {
		return nil, database.Wrap("GetRecentNews", fmt.Errorf("GetRecentNews: %w", err))
	}
	return items, nil
}
