package app

import (
	"context"
	"strings"
	"time"

	"intraday-advisor/config"
	"intraday-advisor/market"
	"intraday-advisor/signals"
)

// Evaluator produces one EvaluationResult from a snapshot, the optional
// classifier and the optional news source
type Evaluator struct {
	snapshots  SnapshotProvider
	classifier Classifier
	news       NewsSource
	session    *market.Session
	now        func() time.Time
}

// NewEvaluator creates a new evaluator. classifier and news may be nil.
func NewEvaluator(snapshots SnapshotProvider, classifier Classifier, news NewsSource, session *market.Session) *Evaluator {
	return &Evaluator{
		snapshots:  snapshots,
		classifier: classifier,
		news:       news,
		session:    session,
		now:        time.Now,
	}
}

// Evaluate fetches the snapshot of ticker and runs rules, classifier and news
// through the integrator with cfg. entryPrice marks an open position.
func (e *Evaluator) Evaluate(ctx context.Context, ticker string, cfg config.RuleConfig, entryPrice *float64, entryTime *time.Time) (signals.EvaluationResult, error) {
	snap, err := e.snapshots.GetSnapshot(ctx, strings.ToUpper(ticker))
	if err != nil {
		return signals.EvaluationResult{}, err
	}

	in := signals.Input{
		Snapshot: snap,
		Buy:      signals.EvaluateBuy(snap, cfg),
		Sell:     signals.EvaluateSell(snap, cfg, entryPrice, entryTime, e.sessionState()),
	}

	if e.classifier != nil {
		pred := e.classifier.Predict(ctx, snap)
		in.Classifier = &pred
	}

	if e.news != nil && cfg.Ensemble.NewsWindowHours > 0 {
		modifier, note := e.news.NewsImpact(ctx, snap.Ticker, cfg.Ensemble.NewsWindowHours)
		if modifier != 0 || note != "" {
			in.News = &signals.NewsResult{Modifier: modifier, Note: note}
		}
	}

	if entryPrice != nil {
		pos := &signals.Position{EntryPrice: *entryPrice}
		if entryTime != nil {
			pos.EntryTime = *entryTime
		}
		in.Position = pos
	}

	result := signals.Integrate(in, cfg)
	if entryTime == nil {
		result.EntryTime = nil
	}
	return result, nil
}

func (e *Evaluator) sessionState() signals.SessionState {
	if e.session == nil {
		return signals.SessionState{MinutesToClose: -1}
	}
	minutes := e.session.MinutesToClose(e.now())
	return signals.SessionState{Open: minutes >= 0, MinutesToClose: minutes}
}
