// Package notifications delivers recommendation and outcome events to
// outbound channels. Delivery is fire-and-forget: failures are logged and
// never reach the caller.
package notifications

import (
	"context"
	"sync"
)

// Notifier sends one human-readable notification
type Notifier interface {
	Notify(ctx context.Context, title, body, ticker string, metadata map[string]interface{})
}

// Multi fans a notification out to every configured channel
type Multi struct {
	notifiers []Notifier
}

// NewMulti creates a fan-out notifier; nil entries are skipped
func NewMulti(notifiers ...Notifier) *Multi {
	m := &Multi{}
	for _, n := range notifiers {
		if n != nil {
			m.notifiers = append(m.notifiers, n)
		}
	}
	return m
}

// Notify implements Notifier
func (m *Multi) Notify(ctx context.Context, title, body, ticker string, metadata map[string]interface{}) {
	for _, n := range m.notifiers {
		n.Notify(ctx, title, body, ticker, metadata)
	}
}

// Len returns the number of channels
func (m *Multi) Len() int {
	return len(m.notifiers)
}

// Wait blocks until in-flight deliveries of every channel finish
func (m *Multi) Wait() {
	for _, n := range m.notifiers {
		if w, ok := n.(interface{ Wait() }); ok {
			w.Wait()
		}
	}
}

// inflight tracks background deliveries so shutdown and tests can wait for them
type inflight struct {
	wg sync.WaitGroup
}

func (f *inflight) goDeliver(fn func()) {
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		fn()
	}()
}

// Wait blocks until every started delivery returns
func (f *inflight) Wait() {
	f.wg.Wait()
}
