// Package memory provides an in-memory test double with the same semantics as
// the gorm repositories, including failure injection for tracker tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"intraday-advisor/database"
	models "intraday-advisor/database/models_pkg"
)

// Store is an in-memory implementation of the recommendation and market data repositories
type Store struct {
	mu sync.RWMutex

	nextRecID int64
	nextCpID  int64
	nextOutID int64

	recs        map[int64]*models.Recommendation
	checkpoints map[int64][]models.TimeCheckpointEvaluation // keyed by recommendation id
	outcomes    map[int64]*models.OutcomeResult             // keyed by recommendation id
	daily       map[string]*models.DailyStats               // keyed by YYYY-MM-DD

	companies map[string]models.Company
	bars      map[int64][]models.PriceBar
	news      map[string][]models.NewsItem

	applyErrs map[int64]error
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		recs:        make(map[int64]*models.Recommendation),
		checkpoints: make(map[int64][]models.TimeCheckpointEvaluation),
		outcomes:    make(map[int64]*models.OutcomeResult),
		daily:       make(map[string]*models.DailyStats),
		companies:   make(map[string]models.Company),
		bars:        make(map[int64][]models.PriceBar),
		news:        make(map[string][]models.NewsItem),
		applyErrs:   make(map[int64]error),
	}
}

// AddCompany registers a ticker and returns its id
func (s *Store) AddCompany(ticker string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	ticker = strings.ToUpper(ticker)
	if c, ok := s.companies[ticker]; ok {
		return c.ID
	}
	c := models.Company{ID: int64(len(s.companies) + 1), Ticker: ticker, Active: true}
	s.companies[ticker] = c
	return c.ID
}

// SetBars replaces the daily bars of a company; bars must be oldest first
func (s *Store) SetBars(companyID int64, bars []models.PriceBar) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bars[companyID] = append([]models.PriceBar(nil), bars...)
}

// AddNews appends a headline
func (s *Store) AddNews(item models.NewsItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := strings.ToUpper(item.Ticker)
	s.news[t] = append(s.news[t], item)
}

// FailApply makes ApplyTrackingUpdate fail for one recommendation
func (s *Store) FailApply(recommendationID int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.applyErrs, recommendationID)
		return
	}
	s.applyErrs[recommendationID] = err
}

// ListTickers returns the active universe in ticker order
func (s *Store) ListTickers(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var tickers []string
	for t, c := range s.companies {
		if c.Active {
			tickers = append(tickers, t)
		}
	}
	sort.Strings(tickers)
	return tickers, nil
}

// GetCompanyID resolves a ticker; unknown tickers return a NotFoundError
func (s *Store) GetCompanyID(_ context.Context, ticker string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.companies[strings.ToUpper(ticker)]
	if !ok {
		return 0, database.NewNotFoundErrorWithID("company", ticker)
	}
	return c.ID, nil
}

// GetRecentBars returns up to limit most recent bars, oldest first
func (s *Store) GetRecentBars(_ context.Context, companyID int64, limit int) ([]models.PriceBar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bars := s.bars[companyID]
	if limit > 0 && len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	return append([]models.PriceBar(nil), bars...), nil
}

// GetRecentNews returns headlines published on or after since, newest first
func (s *Store) GetRecentNews(_ context.Context, ticker string, since time.Time) ([]models.NewsItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var items []models.NewsItem
	for _, n := range s.news[strings.ToUpper(ticker)] {
		if !n.PublishedAt.Before(since) {
			items = append(items, n)
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].PublishedAt.After(items[j].PublishedAt)
	})
	return items, nil
}

// CreateRecommendation assigns an id and stores a copy. Like the partial
// unique index of the database, it rejects a second ACTIVE recommendation
// for the same ticker and state with database.ErrDuplicateActive.
func (s *Store) CreateRecommendation(_ context.Context, rec *models.Recommendation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.Status == "" || rec.Status == models.StatusActive {
		for _, existing := range s.recs {
			if existing.Ticker == rec.Ticker && existing.State == rec.State && existing.Status == models.StatusActive {
				return database.ErrDuplicateActive
			}
		}
	}

	s.nextRecID++
	rec.ID = s.nextRecID
	if rec.Status == "" {
		rec.Status = models.StatusActive
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	recCopy := *rec
	s.recs[rec.ID] = &recCopy
	return nil
}

// GetRecommendation returns a copy; nil when missing
func (s *Store) GetRecommendation(_ context.Context, id int64) (*models.Recommendation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.recs[id]
	if !ok {
		return nil, nil
	}
	recCopy := *rec
	return &recCopy, nil
}

// ListActiveRecommendations returns ACTIVE recommendations, oldest first
func (s *Store) ListActiveRecommendations(_ context.Context) ([]models.Recommendation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Recommendation
	for _, rec := range s.recs {
		if rec.Status == models.StatusActive {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// HasActiveRecommendation reports whether ticker has an ACTIVE recommendation with state
func (s *Store) HasActiveRecommendation(_ context.Context, ticker, state string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.recs {
		if rec.Ticker == ticker && rec.State == state && rec.Status == models.StatusActive {
			return true, nil
		}
	}
	return false, nil
}

// GetCheckpoints returns the checkpoints of one recommendation in hour order
func (s *Store) GetCheckpoints(_ context.Context, recommendationID int64) ([]models.TimeCheckpointEvaluation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.TimeCheckpointEvaluation(nil), s.checkpoints[recommendationID]...), nil
}

// ApplyTrackingUpdate applies one tracker pass atomically: either every part
// of the update is written or none is
func (s *Store) ApplyTrackingUpdate(_ context.Context, u models.TrackingUpdate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err, ok := s.applyErrs[u.RecommendationID]; ok {
		return false, database.Wrap("ApplyTrackingUpdate", err)
	}

	rec, ok := s.recs[u.RecommendationID]
	if !ok {
		return false, database.NewNotFoundErrorWithID("recommendation", u.RecommendationID)
	}
	if rec.Status != models.StatusActive {
		return false, nil
	}

	cps := s.checkpoints[u.RecommendationID]
	have := make(map[int]bool, len(cps))
	for _, cp := range cps {
		have[cp.Hour] = true
	}
	for _, cp := range u.Checkpoints {
		if have[cp.Hour] {
			continue
		}
		s.nextCpID++
		cp.ID = s.nextCpID
		cp.RecommendationID = u.RecommendationID
		cps = append(cps, cp)
		have[cp.Hour] = true
	}
	sort.Slice(cps, func(i, j int) bool { return cps[i].Hour < cps[j].Hour })

	if u.OptimalHour > 0 {
		for i := range cps {
			cps[i].IsOptimalExit = cps[i].Hour == u.OptimalHour
		}
	}
	s.checkpoints[u.RecommendationID] = cps

	closed := false
	if u.Close {
		rec.Status = models.StatusClosed
		closedAt := u.ClosedAt
		rec.ClosedAt = &closedAt
		closed = true
	}

	if u.Outcome != nil {
		out := *u.Outcome
		out.RecommendationID = u.RecommendationID
		out.UpdatedAt = time.Now()
		if existing, ok := s.outcomes[u.RecommendationID]; ok {
			out.ID = existing.ID
		} else {
			s.nextOutID++
			out.ID = s.nextOutID
		}
		s.outcomes[u.RecommendationID] = &out
	}
	return closed, nil
}

// GetOutcome returns the outcome of a recommendation; nil when missing
func (s *Store) GetOutcome(_ context.Context, recommendationID int64) (*models.OutcomeResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out, ok := s.outcomes[recommendationID]
	if !ok {
		return nil, nil
	}
	outCopy := *out
	return &outCopy, nil
}

// ListClosedOutcomes returns CLOSED outcomes with exit time in [from, to)
func (s *Store) ListClosedOutcomes(_ context.Context, from, to time.Time) ([]models.OutcomeResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var outs []models.OutcomeResult
	for _, out := range s.outcomes {
		if out.Status != models.OutcomeClosed || out.ExitTime == nil {
			continue
		}
		if out.ExitTime.Before(from) || !out.ExitTime.Before(to) {
			continue
		}
		outs = append(outs, *out)
	}
	sort.Slice(outs, func(i, j int) bool { return outs[i].ExitTime.Before(*outs[j].ExitTime) })
	return outs, nil
}

// UpsertDailyStats replaces the row of stats.Date
func (s *Store) UpsertDailyStats(_ context.Context, stats *models.DailyStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := *stats
	row.UpdatedAt = time.Now()
	key := row.Date.Format("2006-01-02")
	if existing, ok := s.daily[key]; ok {
		row.ID = existing.ID
	} else {
		row.ID = int64(len(s.daily) + 1)
	}
	s.daily[key] = &row
	return nil
}

// GetDailyStats returns rows dated on or after since, newest first
func (s *Store) GetDailyStats(_ context.Context, since time.Time) ([]models.DailyStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sinceKey := since.Format("2006-01-02")
	var out []models.DailyStats
	for key, row := range s.daily {
		if key >= sinceKey {
			out = append(out, *row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

// ListCheckpointsSince returns checkpoints of recommendations created on or after since
func (s *Store) ListCheckpointsSince(_ context.Context, since time.Time) ([]models.TimeCheckpointEvaluation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []int64
	for id, rec := range s.recs {
		if !rec.CreatedAt.Before(since) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var out []models.TimeCheckpointEvaluation
	for _, id := range ids {
		out = append(out, s.checkpoints[id]...)
	}
	return out, nil
}

// ListConfigOutcomes pairs CLOSED outcomes since the given time with their configuration
func (s *Store) ListConfigOutcomes(_ context.Context, since time.Time) ([]models.ConfigOutcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.ConfigOutcome
	for recID, o := range s.outcomes {
		if o.Status != models.OutcomeClosed || o.ExitTime == nil || o.ExitTime.Before(since) {
			continue
		}
		rec, ok := s.recs[recID]
		if !ok {
			continue
		}
		out = append(out, models.ConfigOutcome{
			ConfigName:    rec.ConfigName,
			ConfigVersion: rec.ConfigVersion,
			Success:       o.Success,
			PnlPct:        o.PnlPct,
		})
	}
	return out, nil
}
