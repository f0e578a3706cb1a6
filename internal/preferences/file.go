// Package preferences holds the user-owned notification settings the sync
// engine consults before signalling fresh weather.
//
// Settings are kept in a small YAML document:
//
//	notifications_enabled: true
//	last_notification: 2024-05-01T06:00:00Z
//
// A FileStore created with an empty path keeps everything in memory.
package preferences

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/i474232898/forecast-cache/internal/weather"
)

type document struct {
	NotificationsEnabled bool      `yaml:"notifications_enabled"`
	LastNotification     time.Time `yaml:"last_notification,omitempty"`
}

// FileStore implements weather.Preferences.
type FileStore struct {
	mu   sync.RWMutex
	path string
	doc  document
	now  func() time.Time
}

// NewFileStore loads preferences from path. A missing file yields the defaults
// and is created on the first write.
func NewFileStore(path string, defaultEnabled bool, now func() time.Time) (*FileStore, error) {
	if now == nil {
		now = time.Now
	}
	s := &FileStore{
		path: path,
		doc:  document{NotificationsEnabled: defaultEnabled},
		now:  now,
	}
	if path == "" {
		return s, nil
	}

	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read preferences %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &s.doc); err != nil {
		return nil, fmt.Errorf("parse preferences %s: %w", path, err)
	}
	return s, nil
}

func (s *FileStore) NotificationsEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.NotificationsEnabled
}

// SetNotificationsEnabled updates and persists the enabled flag.
func (s *FileStore) SetNotificationsEnabled(enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.NotificationsEnabled = enabled
	return s.saveLocked()
}

// TimeSinceLastNotification reports the elapsed time since the last signal.
// If none was ever shown the result is effectively infinite.
func (s *FileStore) TimeSinceLastNotification() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.doc.LastNotification.IsZero() {
		return time.Duration(math.MaxInt64)
	}
	return s.now().Sub(s.doc.LastNotification)
}

func (s *FileStore) RecordNotificationShown(now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.LastNotification = now.UTC()
	return s.saveLocked()
}

func (s *FileStore) saveLocked() error {
	if s.path == "" {
		return nil
	}
	raw, err := yaml.Marshal(s.doc)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create preferences dir: %w", err)
		}
	}

	// write-then-rename so a crash never leaves a truncated file
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write preferences: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("write preferences: %w", err)
	}
	return nil
}

var _ weather.Preferences = (*FileStore)(nil)
