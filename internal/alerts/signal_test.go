package alerts

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/forecast-cache/internal/weather"
)

func TestWebhookSignal_PostsEvent(t *testing.T) {
	received := make(chan webhookEvent, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var ev webhookEvent
		require.NoError(t, json.NewDecoder(r.Body).Decode(&ev))
		received <- ev
	}))
	defer srv.Close()

	s := NewWebhookSignal(srv.URL, srv.Client(), weather.Location{City: "Oslo", Country: "NO"})
	s.NotifyNewWeather()
	s.Wait()

	ev := <-received
	assert.Equal(t, "new_weather", ev.Event)
	assert.Equal(t, "Oslo:NO", ev.Location)
	assert.NotEmpty(t, ev.SentAt)
}

func TestWebhookSignal_FailureIsSwallowed(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := NewWebhookSignal(srv.URL, nil, weather.Location{City: "Oslo"})
	assert.NotPanics(t, func() {
		s.NotifyNewWeather()
		s.Wait()
	})
	assert.EqualValues(t, 1, calls.Load())
}

func TestLogSignal(t *testing.T) {
	assert.NotPanics(t, LogSignal{Location: weather.Location{City: "Oslo"}}.NotifyNewWeather)
}
