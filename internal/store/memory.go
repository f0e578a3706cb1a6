package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/i474232898/forecast-cache/internal/weather"
)

// MemoryStore is a concurrency-safe in-memory implementation of weather.Store.
// Nothing survives a restart.
type MemoryStore struct {
	mu sync.RWMutex

	// key: normalized date
	rows         map[int64]weather.ForecastRecord
	lastReplaced time.Time

	pub weather.ChangePublisher
	now func() time.Time
}

// NewMemoryStore creates an empty MemoryStore. pub may be nil.
func NewMemoryStore(pub weather.ChangePublisher) *MemoryStore {
	return &MemoryStore{
		rows: make(map[int64]weather.ForecastRecord),
		pub:  pub,
		now:  time.Now,
	}
}

// ReplaceAll swaps in a freshly built table. The new map is complete before
// the swap, so readers see either the old or the new contents.
func (s *MemoryStore) ReplaceAll(ctx context.Context, records []weather.ForecastRecord) (int, error) {
	if err := weather.ValidateRecords(records); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, storageError("begin", err)
	}

	next := make(map[int64]weather.ForecastRecord, len(records))
	after := make([]int64, 0, len(records))
	for _, r := range records {
		next[r.Date] = r
		after = append(after, r.Date)
	}

	s.mu.Lock()
	before := s.datesLocked()
	s.rows = next
	s.lastReplaced = s.now().UTC()
	s.mu.Unlock()

	publish(s.pub, weather.Change{Dates: unionDates(before, after)})
	return len(next), nil
}

// DeleteAll removes every row.
func (s *MemoryStore) DeleteAll(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, storageError("begin", err)
	}

	s.mu.Lock()
	before := s.datesLocked()
	s.rows = make(map[int64]weather.ForecastRecord)
	s.mu.Unlock()

	publish(s.pub, weather.Change{Dates: before})
	return len(before), nil
}

// Query returns the rows matching filter.
func (s *MemoryStore) Query(ctx context.Context, filter weather.Filter, order weather.SortOrder) (weather.ResultSet, error) {
	if err := filter.Validate(order); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rs := weather.ResultSet{}
	if filter.Kind == weather.FilterExact {
		if r, ok := s.rows[filter.Date]; ok {
			rs = append(rs, r)
		}
		return rs, nil
	}

	for _, r := range s.rows {
		if filter.MinDate != nil && r.Date < *filter.MinDate {
			continue
		}
		rs = append(rs, r)
	}
	sort.Slice(rs, func(i, j int) bool {
		if order == weather.SortDescending {
			return rs[i].Date > rs[j].Date
		}
		return rs[i].Date < rs[j].Date
	})
	return rs, nil
}

// LastReplaced returns when ReplaceAll last ran, or the zero time.
func (s *MemoryStore) LastReplaced(ctx context.Context) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastReplaced, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) datesLocked() []int64 {
	dates := make([]int64, 0, len(s.rows))
	for d := range s.rows {
		dates = append(dates, d)
	}
	return dates
}

var (
	_ weather.Store = (*MemoryStore)(nil)
	_ weather.Store = (*SQLiteStore)(nil)
)
