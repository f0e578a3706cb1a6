package weather

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/i474232898/forecast-cache/internal/logger"
	"github.com/i474232898/forecast-cache/internal/metrics"
)

// NotificationInterval is the minimum time between two new-weather signals.
const NotificationInterval = 24 * time.Hour

// SyncState is the terminal state of one sync attempt.
type SyncState string

const (
	StateSynced    SyncState = "synced"
	StateFailed    SyncState = "failed"
	StateCoalesced SyncState = "coalesced"
)

// SyncResult describes how a single attempt ended. Err is informational;
// the engine never escalates feed or storage failures past this boundary.
type SyncResult struct {
	ID         string
	State      SyncState
	Inserted   int
	Notified   bool
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// SyncStatus is the observable history of the engine.
type SyncStatus struct {
	Running      bool      `json:"running"`
	LastAttempt  time.Time `json:"lastAttempt"`
	LastSuccess  time.Time `json:"lastSuccess"`
	LastState    SyncState `json:"lastState,omitempty"`
	LastError    string    `json:"lastError,omitempty"`
	LastInserted int       `json:"lastInserted"`
	Attempts     int       `json:"attempts"`
	Failures     int       `json:"failures"`
	Coalesced    int       `json:"coalesced"`
}

// SyncerConfig wires the engine to its collaborators. Preferences, Signal and
// Recorder are optional.
type SyncerConfig struct {
	Store       Store
	Fetcher     Fetcher
	Decoder     Decoder
	Preferences Preferences
	Signal      NotificationSignal
	Location    Location
	Recorder    *metrics.Recorder
	Now         func() time.Time
}

// Syncer refreshes the store from the remote feed. At most one attempt runs
// at a time; requests made while one is active are merged into it.
type Syncer struct {
	cfg SyncerConfig

	running atomic.Bool
	wg      sync.WaitGroup

	mu     sync.RWMutex
	status SyncStatus
}

// NewSyncer creates a Syncer. The last successful sync time is seeded from the
// store so it survives restarts.
func NewSyncer(cfg SyncerConfig) *Syncer {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	s := &Syncer{cfg: cfg}

	if cfg.Store != nil {
		last, err := cfg.Store.LastReplaced(context.Background())
		if err != nil {
			logger.Warnf("sync: could not read last replace time: %v", err)
		} else {
			s.status.LastSuccess = last
		}
	}
	return s
}

// RunOnce performs one fetch, decode, commit and notify cycle on the calling
// goroutine. If another attempt is active it returns StateCoalesced at once.
func (s *Syncer) RunOnce(ctx context.Context) SyncResult {
	if !s.running.CompareAndSwap(false, true) {
		return s.coalesce()
	}
	defer s.running.Store(false)
	return s.run(ctx)
}

// Trigger starts an attempt on a background goroutine and returns
// immediately. It returns false when an attempt is already active.
func (s *Syncer) Trigger(ctx context.Context) bool {
	if !s.running.CompareAndSwap(false, true) {
		s.coalesce()
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)
		s.run(ctx)
	}()
	return true
}

// Wait blocks until every attempt started by Trigger has finished.
func (s *Syncer) Wait() {
	s.wg.Wait()
}

// Status returns a snapshot of the sync history.
func (s *Syncer) Status() SyncStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.status
	st.Running = s.running.Load()
	return st
}

func (s *Syncer) coalesce() SyncResult {
	s.mu.Lock()
	s.status.Coalesced++
	s.mu.Unlock()
	logger.Debugf("sync: attempt already in progress; request merged")
	return SyncResult{State: StateCoalesced, Err: ErrSyncInProgress}
}

func (s *Syncer) run(ctx context.Context) SyncResult {
	res := SyncResult{
		ID:        uuid.NewString(),
		StartedAt: s.cfg.Now(),
	}
	logger.Debugf("sync[%s]: starting for %s", res.ID, s.cfg.Location.Key())

	records, err := s.fetchAndDecode(ctx)
	if err != nil {
		return s.finish(res, StateFailed, err)
	}

	inserted, err := s.cfg.Store.ReplaceAll(ctx, records)
	if err != nil {
		return s.finish(res, StateFailed, err)
	}
	res.Inserted = inserted
	res.Notified = s.maybeNotify(res.ID)

	return s.finish(res, StateSynced, nil)
}

func (s *Syncer) fetchAndDecode(ctx context.Context) ([]ForecastRecord, error) {
	if s.cfg.Fetcher == nil || s.cfg.Decoder == nil || s.cfg.Store == nil {
		return nil, errors.New("sync engine is not fully configured")
	}

	payload, err := s.cfg.Fetcher.Fetch(ctx, s.cfg.Location)
	if err != nil {
		if !errors.Is(err, ErrFetch) {
			err = &FetchError{Provider: s.cfg.Fetcher.Name(), Err: err}
		}
		return nil, err
	}

	records, err := s.cfg.Decoder.Decode(payload)
	if err != nil {
		if !errors.Is(err, ErrDecode) {
			err = &DecodeError{Provider: s.cfg.Fetcher.Name(), Err: err}
		}
		return nil, err
	}

	// Never wipe good data for an empty response.
	if len(records) == 0 {
		return nil, ErrEmptyForecast
	}

	if err := ValidateRecords(records); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Syncer) maybeNotify(id string) bool {
	prefs := s.cfg.Preferences
	if prefs == nil || s.cfg.Signal == nil {
		return false
	}
	if !prefs.NotificationsEnabled() {
		return false
	}
	if prefs.TimeSinceLastNotification() < NotificationInterval {
		logger.Debugf("sync[%s]: notified less than %s ago; skipping", id, NotificationInterval)
		return false
	}

	s.cfg.Signal.NotifyNewWeather()
	s.cfg.Recorder.RecordNotification()
	if err := prefs.RecordNotificationShown(s.cfg.Now()); err != nil {
		logger.Warnf("sync[%s]: could not record notification time: %v", id, err)
	}
	return true
}

func (s *Syncer) finish(res SyncResult, state SyncState, err error) SyncResult {
	res.State = state
	res.Err = err
	res.FinishedAt = s.cfg.Now()

	s.mu.Lock()
	s.status.Attempts++
	s.status.LastAttempt = res.FinishedAt
	s.status.LastState = state
	if err != nil {
		s.status.Failures++
		s.status.LastError = err.Error()
	} else {
		s.status.LastError = ""
		s.status.LastSuccess = res.FinishedAt
		s.status.LastInserted = res.Inserted
	}
	s.mu.Unlock()

	s.cfg.Recorder.RecordSync(string(state), res.FinishedAt.Sub(res.StartedAt))
	if err != nil {
		logger.Warnf("sync[%s]: failed for %s; keeping existing data: %v", res.ID, s.cfg.Location.Key(), err)
	} else {
		s.cfg.Recorder.RecordRows(res.Inserted)
		logger.Infof("sync[%s]: stored %d records for %s (notified=%t)", res.ID, res.Inserted, s.cfg.Location.Key(), res.Notified)
	}
	return res
}
