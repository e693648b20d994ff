package signals

import (
	"fmt"
	"math"
	"time"

	"intraday-advisor/config"
)

// Position describes an open position being re-evaluated
type Position struct {
	EntryPrice float64
	EntryTime  time.Time
}

// Input bundles everything Integrate needs for one ticker
type Input struct {
	Snapshot   TechnicalSnapshot
	Buy        SignalSet
	Sell       SignalSet
	Classifier *ClassifierResult // nil when no classifier is configured
	News       *NewsResult       // nil when news input is disabled
	Position   *Position         // nil when no position is held
}

// Evaluate runs both rule sides and integrates them in one call
func Evaluate(snap TechnicalSnapshot, cfg config.RuleConfig, session SessionState, pos *Position, cls *ClassifierResult, news *NewsResult) EvaluationResult {
	var entryPrice *float64
	var entryTime *time.Time
	if pos != nil {
		p, t := pos.EntryPrice, pos.EntryTime
		entryPrice, entryTime = &p, &t
	}

	return Integrate(Input{
		Snapshot:   snap,
		Buy:        EvaluateBuy(snap, cfg),
		Sell:       EvaluateSell(snap, cfg, entryPrice, entryTime, session),
		Classifier: cls,
		News:       news,
		Position:   pos,
	}, cfg)
}

// RuleRecommendation derives the rules-only view used by the decision table
func RuleRecommendation(buy, sell SignalSet, ens config.EnsembleConfig) string {
	switch {
	case buy.TotalConfidence >= ens.BuyThreshold && buy.TotalConfidence > sell.TotalConfidence:
		return Buy
	case sell.TotalConfidence >= ens.SellThreshold:
		return Sell
	default:
		return Wait
	}
}

// ClassifierRecommendation is BUY only for an available classifier voting buy
func ClassifierRecommendation(cls *ClassifierResult) string {
	if cls != nil && cls.Available && cls.Buy {
		return Buy
	}
	return Wait
}

// Integrate blends rule, classifier and news input into one recommendation.
// The classifier only ever contributes to the buy side.
func Integrate(in Input, cfg config.RuleConfig) EvaluationResult {
	ens := cfg.Ensemble

	result := EvaluationResult{
		Ticker:             in.Snapshot.Ticker,
		Snapshot:           in.Snapshot,
		Buy:                copySet(in.Buy),
		Sell:               copySet(in.Sell),
		RuleRecommendation: RuleRecommendation(in.Buy, in.Sell, ens),
		HasPosition:        in.Position != nil,
		ConfigName:         cfg.Name,
		ConfigVersion:      cfg.Version,
	}
	if in.Position != nil {
		p, t := in.Position.EntryPrice, in.Position.EntryTime
		result.EntryPrice, result.EntryTime = &p, &t
	}

	buy := in.Buy.TotalConfidence
	clsRec := ClassifierRecommendation(in.Classifier)

	if in.Classifier != nil && in.Classifier.Available {
		scaled := 0.0
		if in.Classifier.Buy {
			scaled = clamp01(in.Classifier.Confidence) * ens.ClassifierScale
		}
		weighted := scaled * ens.ClassifierWeight
		buy = in.Buy.TotalConfidence*ens.RuleWeight + weighted
		result.Classifier = &ClassifierContribution{
			Available:      true,
			Recommendation: clsRec,
			RawConfidence:  in.Classifier.Confidence,
			Scaled:         scaled,
			Weighted:       weighted,
		}
	} else if in.Classifier != nil {
		result.Classifier = &ClassifierContribution{Recommendation: Wait}
	}

	sell := in.Sell.TotalConfidence

	if in.News != nil && (in.News.Modifier != 0 || in.News.Note != "") {
		news := *in.News
		result.News = &news
		buy += news.Modifier
		sell += news.Modifier

		sig := Signal{
			Rule:        NewsImpact,
			Label:       "News impact",
			Value:       news.Modifier,
			Confidence:  news.Modifier,
			Explanation: newsExplanation(news),
		}
		result.Buy.add(sig)
		result.Sell.add(sig)
	}

	result.BuyConfidence = math.Max(buy, 0)
	result.SellConfidence = math.Max(sell, 0)
	result.Recommendation = decide(result.RuleRecommendation, clsRec, result.BuyConfidence, result.SellConfidence, in.Position != nil, ens)

	return result
}

func decide(ruleRec, clsRec string, buy, sell float64, hasPosition bool, ens config.EnsembleConfig) string {
	if hasPosition {
		if sell >= ens.SellThreshold {
			return Sell
		}
		return Hold
	}

	switch {
	case ruleRec == Buy && (clsRec == Buy || clsRec == Wait) && buy >= ens.BuyThreshold:
		return Buy
	case clsRec == Buy && (ruleRec == Buy || ruleRec == Wait) && buy >= ens.ClassifierSupportFactor*ens.BuyThreshold:
		return Buy
	case sell >= ens.SellThreshold:
		// refuse to buy into sell pressure
		return Wait
	default:
		return Wait
	}
}

func copySet(s SignalSet) SignalSet {
	out := SignalSet{TotalConfidence: s.TotalConfidence}
	if len(s.Signals) > 0 {
		out.Signals = append([]Signal(nil), s.Signals...)
	}
	return out
}

func newsExplanation(n NewsResult) string {
	if n.Note != "" {
		return n.Note
	}
	return fmt.Sprintf("news modifier %+.2f", n.Modifier)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
