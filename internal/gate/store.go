// Package gate decides, per user and day, whether a scheduled reminder
// should fire, and persists that state to reminder-tracking.json.
package gate

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nhle/mail-assistant/internal/model"
)

// defaultDebounce collapses bursts of mutations into one disk write.
const defaultDebounce = 5 * time.Second

// TrackingStore persists reminder records as a pretty-printed JSON map of
// "{userId}_{date}" keys, rewritten wholesale on each flush. Writes are
// debounced; deletions flush immediately, since losing a deletion is
// worse than an extra write.
type TrackingStore struct {
	path     string
	debounce time.Duration
	log      *slog.Logger

	mu      sync.Mutex
	records map[string]*model.ReminderRecord
	timer   *time.Timer
}

// NewTrackingStore loads (or initializes) the tracking file at path. A
// corrupt file is backed up with a .corrupt suffix and replaced with an
// empty state; availability wins over unreadable history.
func NewTrackingStore(
	path string,
	debounce time.Duration,
	log *slog.Logger,
) (*TrackingStore, error) {
	if debounce <= 0 {
		debounce = defaultDebounce
	}

	s := &TrackingStore{
		path:     path,
		debounce: debounce,
		log:      log,
		records:  make(map[string]*model.ReminderRecord),
	}

	if err := s.load(); err != nil {
		return nil, err
	}

	return s, nil
}

// load reads the tracking file into memory.
func (s *TrackingStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading tracking file %s: %w", s.path, err)
	}

	var records map[string]*model.ReminderRecord
	if err := json.Unmarshal(data, &records); err != nil {
		backup := s.path + ".corrupt"
		if renameErr := os.Rename(s.path, backup); renameErr == nil {
			s.log.Error("tracking file corrupt, starting empty",
				"path", s.path,
				"backup", backup,
				"error", err,
			)
		} else {
			s.log.Error("tracking file corrupt and backup failed, starting empty",
				"path", s.path,
				"error", err,
			)
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		return s.flushLocked()
	}

	s.mu.Lock()
	s.records = records
	if s.records == nil {
		s.records = make(map[string]*model.ReminderRecord)
	}
	s.mu.Unlock()

	return nil
}

// Get returns a copy of the record for key, if present.
func (s *TrackingStore) Get(key string) (*model.ReminderRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return nil, false
	}
	cp := *rec
	return &cp, true
}

// Put upserts a record and schedules a debounced flush.
func (s *TrackingStore) Put(key string, rec *model.ReminderRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *rec
	s.records[key] = &cp
	s.scheduleFlushLocked()
}

// Delete removes the given keys and flushes immediately.
func (s *TrackingStore) Delete(keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := false
	for _, key := range keys {
		if _, ok := s.records[key]; ok {
			delete(s.records, key)
			removed = true
		}
	}
	if !removed {
		return nil
	}

	s.cancelTimerLocked()
	return s.flushLocked()
}

// Keys returns all record keys.
func (s *TrackingStore) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.records))
	for k := range s.records {
		keys = append(keys, k)
	}
	return keys
}

// Flush writes any pending state to disk now.
func (s *TrackingStore) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelTimerLocked()
	return s.flushLocked()
}

// Close flushes pending state.
func (s *TrackingStore) Close() error {
	return s.Flush()
}

// scheduleFlushLocked arms the debounce timer. A timer already pending
// absorbs the new mutation; that is the point of the debounce window.
func (s *TrackingStore) scheduleFlushLocked() {
	if s.timer != nil {
		return
	}
	s.timer = time.AfterFunc(s.debounce, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.timer = nil
		if err := s.flushLocked(); err != nil {
			s.log.Error("flushing tracking file", "error", err)
		}
	})
}

func (s *TrackingStore) cancelTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// flushLocked writes the full record map atomically (temp file + rename).
func (s *TrackingStore) flushLocked() error {
	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding tracking records: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating data directory %s: %w", dir, err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing tracking file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing tracking file: %w", err)
	}

	return nil
}
