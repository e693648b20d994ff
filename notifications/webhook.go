package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// WebhookPayload represents the JSON payload sent to webhooks
type WebhookPayload struct {
	Title    string                 `json:"title"`
	Message  string                 `json:"message"`
	Ticker   string                 `json:"ticker"`
	SentAt   time.Time              `json:"sent_at"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// WebhookNotifier posts notifications to a fixed list of URLs with retries
type WebhookNotifier struct {
	inflight
	urls       []string
	maxRetries int
	retryDelay time.Duration
	client     *http.Client
	log        *logrus.Logger
}

// NewWebhookNotifier creates a webhook notifier; maxRetries <= 0 means one attempt
func NewWebhookNotifier(urls []string, maxRetries int, log *logrus.Logger) *WebhookNotifier {
	if maxRetries <= 0 {
		maxRetries = 1
	}
	return &WebhookNotifier{
		urls:       urls,
		maxRetries: maxRetries,
		retryDelay: 2 * time.Second,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		log: log,
	}
}

// Notify implements Notifier. Each URL is delivered in the background.
func (w *WebhookNotifier) Notify(_ context.Context, title, body, ticker string, metadata map[string]interface{}) {
	if len(w.urls) == 0 {
		return
	}

	payload, err := json.Marshal(WebhookPayload{
		Title:    title,
		Message:  body,
		Ticker:   ticker,
		SentAt:   time.Now(),
		Metadata: metadata,
	})
	if err != nil {
		w.log.WithError(err).Warn("⚠️  Failed to marshal webhook payload")
		return
	}

	for _, url := range w.urls {
		url := url
		w.goDeliver(func() { w.deliver(url, payload) })
	}
}

func (w *WebhookNotifier) deliver(url string, payload []byte) {
	var lastErr error

	for attempt := 1; attempt <= w.maxRetries; attempt++ {
		lastErr = w.post(url, payload)
		if lastErr == nil {
			w.log.WithFields(logrus.Fields{"url": url, "attempt": attempt}).Debug("🔹 Webhook delivered")
			return
		}

		if attempt < w.maxRetries {
			time.Sleep(w.retryDelay * time.Duration(attempt))
		}
	}

	w.log.WithError(lastErr).WithFields(logrus.Fields{"url": url, "attempts": w.maxRetries}).
		Warn("⚠️  Webhook delivery failed")
}

func (w *WebhookNotifier) post(url string, payload []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), w.client.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Intraday-Advisor/1.0")

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
