package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/i474232898/forecast-cache/internal/logger"
	"github.com/i474232898/forecast-cache/internal/weather"
)

// LogSignal reports fresh weather through the application log.
type LogSignal struct {
	Location weather.Location
}

func (s LogSignal) NotifyNewWeather() {
	logger.Infof("alerts: new weather available for %s", s.Location.Key())
}

// WebhookSignal POSTs a small JSON event to a URL. Delivery happens on its own
// goroutine and failures are only logged.
type WebhookSignal struct {
	url      string
	client   *http.Client
	location weather.Location
	now      func() time.Time

	wg sync.WaitGroup
}

type webhookEvent struct {
	Event    string `json:"event"`
	Location string `json:"location"`
	SentAt   string `json:"sentAt"`
}

func NewWebhookSignal(url string, client *http.Client, loc weather.Location) *WebhookSignal {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &WebhookSignal{
		url:      url,
		client:   client,
		location: loc,
		now:      time.Now,
	}
}

func (s *WebhookSignal) NotifyNewWeather() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.post(ctx); err != nil {
			logger.Warnf("alerts: webhook delivery failed: %v", err)
		}
	}()
}

// Wait blocks until in-flight deliveries have finished.
func (s *WebhookSignal) Wait() {
	s.wg.Wait()
}

func (s *WebhookSignal) post(ctx context.Context) error {
	body, err := json.Marshal(webhookEvent{
		Event:    "new_weather",
		Location: s.location.Key(),
		SentAt:   s.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}
	return nil
}

var (
	_ weather.NotificationSignal = LogSignal{}
	_ weather.NotificationSignal = (*WebhookSignal)(nil)
)
