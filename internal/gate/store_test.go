package gate

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mail-assistant/internal/model"
)

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(model.DateLayout, s)
	require.NoError(t, err)
	return d
}

func TestTrackingStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reminder-tracking.json")

	s, err := NewTrackingStore(path, time.Millisecond, discardLogger())
	require.NoError(t, err)

	rec := model.NewReminderRecord("admin", day(t, "2026-03-01"))
	rec.MorningSent = true
	s.Put(model.RecordKey("admin", day(t, "2026-03-01")), rec)
	require.NoError(t, s.Close())

	reloaded, err := NewTrackingStore(path, time.Millisecond, discardLogger())
	require.NoError(t, err)
	defer reloaded.Close()

	got, ok := reloaded.Get("admin_2026-03-01")
	require.True(t, ok)
	assert.True(t, got.MorningSent)
	assert.Equal(t, "admin", got.UserID)
	assert.Equal(t, "2026-03-01", got.Date)
}

func TestTrackingStoreGetReturnsCopy(t *testing.T) {
	s := newTestStore(t)

	key := model.RecordKey("admin", day(t, "2026-03-01"))
	s.Put(key, model.NewReminderRecord("admin", day(t, "2026-03-01")))

	got, ok := s.Get(key)
	require.True(t, ok)
	got.MorningSent = true

	again, ok := s.Get(key)
	require.True(t, ok)
	assert.False(t, again.MorningSent, "mutating a copy does not leak into the store")
}

func TestTrackingStoreMissingFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.json")

	s, err := NewTrackingStore(path, time.Millisecond, discardLogger())
	require.NoError(t, err)
	defer s.Close()

	assert.Empty(t, s.Keys())
}

func TestTrackingStoreCorruptFileBackedUp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reminder-tracking.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	s, err := NewTrackingStore(path, time.Millisecond, discardLogger())
	require.NoError(t, err, "corrupt file is not fatal")
	defer s.Close()

	assert.Empty(t, s.Keys())

	backup, err := os.ReadFile(path + ".corrupt")
	require.NoError(t, err)
	assert.Equal(t, "{not json", string(backup))

	// The live file was rewritten as valid empty state.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var m map[string]*model.ReminderRecord
	assert.NoError(t, json.Unmarshal(data, &m))
}

func TestTrackingStoreDebouncedFlush(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reminder-tracking.json")

	s, err := NewTrackingStore(path, 50*time.Millisecond, discardLogger())
	require.NoError(t, err)
	defer s.Close()

	s.Put("admin_2026-03-01", model.NewReminderRecord("admin", day(t, "2026-03-01")))

	// Not on disk yet inside the debounce window.
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))

	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, time.Second, 10*time.Millisecond, "debounced write lands after the window")
}

func TestTrackingStoreDeleteFlushesImmediately(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reminder-tracking.json")

	s, err := NewTrackingStore(path, time.Hour, discardLogger())
	require.NoError(t, err)
	defer s.Close()

	s.Put("admin_2026-03-01", model.NewReminderRecord("admin", day(t, "2026-03-01")))
	s.Put("admin_2026-03-02", model.NewReminderRecord("admin", day(t, "2026-03-02")))

	require.NoError(t, s.Delete("admin_2026-03-01"))

	// The delete flushed everything despite the hour-long debounce.
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var m map[string]*model.ReminderRecord
	require.NoError(t, json.Unmarshal(data, &m))
	assert.NotContains(t, m, "admin_2026-03-01")
	assert.Contains(t, m, "admin_2026-03-02")
}

func TestTrackingStoreDeleteMissingKeyNoFlush(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reminder-tracking.json")

	s, err := NewTrackingStore(path, time.Hour, discardLogger())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Delete("nope"))

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "no-op delete writes nothing")
}

func TestTrackingStoreFilePrettyPrinted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reminder-tracking.json")

	s, err := NewTrackingStore(path, time.Millisecond, discardLogger())
	require.NoError(t, err)

	s.Put("admin_2026-03-01", model.NewReminderRecord("admin", day(t, "2026-03-01")))
	require.NoError(t, s.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  \"admin_2026-03-01\"")
}
