package app

import (
	"time"

	"github.com/sirupsen/logrus"

	"intraday-advisor/cache"
	"intraday-advisor/market"
	"intraday-advisor/notifications"
	"intraday-advisor/observability"
)

// Deps are the collaborators shared by the scanner, tracker and advisor.
// Classifier and News are optional; the rest default to no-op versions.
type Deps struct {
	Store      Store
	Universe   Universe
	Snapshots  SnapshotProvider
	Classifier Classifier
	News       NewsSource
	Notifier   notifications.Notifier
	Broker     Broadcaster
	Cache      *cache.AdvisorCache
	Metrics    *observability.Metrics
	Session    *market.Session
	Log        *logrus.Logger

	// Now overrides the wall clock in tests
	Now func() time.Time
}

type nopBroadcaster struct{}

func (nopBroadcaster) Broadcast(string, interface{}) {}

func (d Deps) withDefaults() Deps {
	if d.Log == nil {
		d.Log = observability.NewNopLogger()
	}
	if d.Metrics == nil {
		d.Metrics = observability.NewMetrics("")
	}
	if d.Notifier == nil {
		d.Notifier = notifications.NewMulti()
	}
	if d.Broker == nil {
		d.Broker = nopBroadcaster{}
	}
	if d.Cache == nil {
		d.Cache = cache.NewAdvisorCache(nil)
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}
