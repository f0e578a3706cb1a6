package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/forecast-cache/internal/notify"
	"github.com/i474232898/forecast-cache/internal/query"
	"github.com/i474232898/forecast-cache/internal/store"
	"github.com/i474232898/forecast-cache/internal/weather"
)

type fakeSyncer struct {
	accept bool
	status weather.SyncStatus
}

func (f *fakeSyncer) Trigger(context.Context) bool { return f.accept }
func (f *fakeSyncer) Status() weather.SyncStatus { return f.status }

// brokenStore fails every read as an unreachable database would.
type brokenStore struct{ weather.Store }

func (brokenStore) Query(context.Context, weather.Filter, weather.SortOrder) (weather.ResultSet, error) {
	return nil, &weather.StorageError{Op: "query", Err: errors.New("unable to open database file"), Unavailable: true}
}

type listResponse struct {
	Locator string      `json:"locator"`
	Count   int         `json:"count"`
	Records []recordDTO `json:"records"`
}

func newTestApp(t *testing.T, syncer SyncController) (*fiber.App, *store.MemoryStore, *notify.Notifier) {
	t.Helper()

	n := notify.New()
	s := store.NewMemoryStore(n)
	app := fiber.New()
	RegisterRoutes(app, query.New(s, n, nil), syncer)
	return app, s, n
}

// seedAround stores one record per day from today-before to today+after.
func seedAround(t *testing.T, s weather.Store, before, after int) int64 {
	t.Helper()

	today := weather.DateOf(time.Now())
	var records []weather.ForecastRecord
	for i := -before; i <= after; i++ {
		records = append(records, weather.ForecastRecord{
			Date:        today + int64(i)*weather.DayMillis,
			ConditionID: 800,
			MinTemp:     float64(i),
			MaxTemp:     float64(i) + 8,
		})
	}
	if _, err := s.ReplaceAll(context.Background(), records); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return today
}

func doRequest(t *testing.T, app *fiber.App, method, target string) (*http.Response, []byte) {
	t.Helper()

	resp, err := app.Test(httptest.NewRequest(method, target, nil), 5000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, body
}

func TestListWeather(t *testing.T) {
	app, s, _ := newTestApp(t, &fakeSyncer{})
	today := seedAround(t, s, 2, 4)

	resp, body := doRequest(t, app, http.MethodGet, "/api/v1/weather")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	var all listResponse
	if err := json.Unmarshal(body, &all); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if all.Count != 7 || len(all.Records) != 7 {
		t.Fatalf("expected 7 records, got %d", all.Count)
	}
	for i := 1; i < len(all.Records); i++ {
		if all.Records[i-1].Date >= all.Records[i].Date {
			t.Fatalf("records not in ascending date order: %v", all.Records)
		}
	}

	resp, body = doRequest(t, app, http.MethodGet, "/api/v1/weather?from=today")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	var upcoming listResponse
	if err := json.Unmarshal(body, &upcoming); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if upcoming.Count != 5 {
		t.Fatalf("expected 5 records from today onwards, got %d", upcoming.Count)
	}
	if upcoming.Records[0].Date != today {
		t.Fatalf("expected first record to be today (%d), got %d", today, upcoming.Records[0].Date)
	}
	if upcoming.Records[0].Day != weather.FormatDate(today) || upcoming.Records[0].Condition != weather.ConditionClear {
		t.Fatalf("unexpected record rendering: %+v", upcoming.Records[0])
	}
}

func TestListWeatherFromValidation(t *testing.T) {
	app, s, _ := newTestApp(t, &fakeSyncer{})
	today := seedAround(t, s, 0, 3)

	target := "/api/v1/weather?from=" + weather.FormatDate(today+2*weather.DayMillis)
	resp, body := doRequest(t, app, http.MethodGet, target)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	var got listResponse
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Count != 2 {
		t.Fatalf("expected 2 records, got %d", got.Count)
	}

	for _, bad := range []string{"yesterday", "2024-02-30", "12abc"} {
		resp, _ := doRequest(t, app, http.MethodGet, "/api/v1/weather?from="+bad)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("from=%s: expected status %d, got %d", bad, http.StatusBadRequest, resp.StatusCode)
		}
	}
}

func TestGetDay(t *testing.T) {
	app, s, _ := newTestApp(t, &fakeSyncer{})
	today := seedAround(t, s, 0, 2)
	tomorrow := today + weather.DayMillis

	for _, key := range []string{weather.FormatDate(tomorrow), strconv.FormatInt(tomorrow, 10)} {
		resp, body := doRequest(t, app, http.MethodGet, "/api/v1/weather/"+key)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: expected status %d, got %d", key, http.StatusOK, resp.StatusCode)
		}
		var rec recordDTO
		if err := json.Unmarshal(body, &rec); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if rec.Date != tomorrow {
			t.Fatalf("expected date %d, got %d", tomorrow, rec.Date)
		}
	}

	tests := []struct {
		path string
		want int
	}{
		{"/api/v1/weather/" + weather.FormatDate(today+30*weather.DayMillis), http.StatusNotFound},
		{"/api/v1/weather/not-a-date", http.StatusBadRequest},
		{"/api/v1/weather/" + strconv.FormatInt(tomorrow+1, 10), http.StatusBadRequest},
	}
	for _, tt := range tests {
		resp, _ := doRequest(t, app, http.MethodGet, tt.path)
		if resp.StatusCode != tt.want {
			t.Fatalf("%s: expected status %d, got %d", tt.path, tt.want, resp.StatusCode)
		}
	}
}

func TestStorageUnavailable(t *testing.T) {
	app := fiber.New()
	RegisterRoutes(app, query.New(brokenStore{}, notify.New(), nil), &fakeSyncer{})

	resp, _ := doRequest(t, app, http.MethodGet, "/api/v1/weather")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected status %d, got %d", http.StatusServiceUnavailable, resp.StatusCode)
	}
}

func TestTriggerSync(t *testing.T) {
	syncer := &fakeSyncer{accept: true}
	app, _, _ := newTestApp(t, syncer)

	resp, _ := doRequest(t, app, http.MethodPost, "/api/v1/sync")
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected status %d, got %d", http.StatusAccepted, resp.StatusCode)
	}

	syncer.accept = false
	resp, _ = doRequest(t, app, http.MethodPost, "/api/v1/sync")
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected status %d, got %d", http.StatusConflict, resp.StatusCode)
	}
}

func TestSyncStatus(t *testing.T) {
	syncer := &fakeSyncer{status: weather.SyncStatus{Attempts: 3, Failures: 1, LastState: weather.StateSynced, LastInserted: 14}}
	app, _, _ := newTestApp(t, syncer)

	resp, body := doRequest(t, app, http.MethodGet, "/api/v1/sync/status")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	var got weather.SyncStatus
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Attempts != 3 || got.LastInserted != 14 || got.LastState != weather.StateSynced {
		t.Fatalf("unexpected status: %+v", got)
	}
}

func TestWatchWeatherSendsSnapshot(t *testing.T) {
	app, s, n := newTestApp(t, &fakeSyncer{})
	seedAround(t, s, 0, 1)

	resp, body := doRequest(t, app, http.MethodGet, "/api/v1/watch/weather?events=1")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("expected event stream, got %q", ct)
	}
	if got := strings.Count(string(body), "event: forecast"); got != 1 {
		t.Fatalf("expected 1 event, got %d:\n%s", got, body)
	}
	if n.Len() != 0 {
		t.Fatalf("subscription leaked after stream closed")
	}
}

func TestWatchDayStreamsChanges(t *testing.T) {
	app, s, n := newTestApp(t, &fakeSyncer{})
	today := seedAround(t, s, 0, 1)

	go func() {
		deadline := time.Now().Add(3 * time.Second)
		for n.Len() == 0 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		records := []weather.ForecastRecord{{Date: today, ConditionID: 511}}
		if _, err := s.ReplaceAll(context.Background(), records); err != nil {
			t.Errorf("replace: %v", err)
		}
	}()

	target := "/api/v1/watch/weather/" + weather.FormatDate(today) + "?events=2"
	resp, body := doRequest(t, app, http.MethodGet, target)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	if got := strings.Count(string(body), "event: forecast"); got != 2 {
		t.Fatalf("expected 2 events, got %d:\n%s", got, body)
	}
	if !strings.Contains(string(body), `"conditionId":511`) {
		t.Fatalf("expected the replaced row in the stream:\n%s", body)
	}
}

func TestWatchRejectsBadDate(t *testing.T) {
	app, _, n := newTestApp(t, &fakeSyncer{})

	resp, _ := doRequest(t, app, http.MethodGet, "/api/v1/watch/weather/someday")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.StatusCode)
	}
	if n.Len() != 0 {
		t.Fatalf("no subscription expected for a rejected request")
	}
}
