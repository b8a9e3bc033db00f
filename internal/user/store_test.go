package user

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mail-assistant/internal/model"
)

func TestNewStoreMissingFileIsEmpty(t *testing.T) {
	s, err := NewStore(filepath.Join(t.TempDir(), "users.json"))
	require.NoError(t, err)
	assert.Empty(t, s.Users())
}

func TestNewStoreCorruptFileIsFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	require.NoError(t, os.WriteFile(path, []byte("[broken"), 0o644))

	_, err := NewStore(path)
	assert.Error(t, err, "corrupt users file must not silently drop users")
}

func TestUpsertPersistsAcrossReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")

	s, err := NewStore(path)
	require.NoError(t, err)

	require.NoError(t, s.Upsert(model.User{
		ID:    "admin",
		Email: "admin@example.com",
		Name:  "Admin",
		Schedule: model.UserSchedule{
			MorningTime: "07:30",
			EveningTime: "21:00",
		},
	}))

	reloaded, err := NewStore(path)
	require.NoError(t, err)

	u, ok := reloaded.Get("admin")
	require.True(t, ok)
	assert.Equal(t, "admin@example.com", u.Email)
	assert.Equal(t, "07:30", u.Schedule.MorningTime)
}

func TestUpsertReplacesExisting(t *testing.T) {
	s, err := NewStore(filepath.Join(t.TempDir(), "users.json"))
	require.NoError(t, err)

	require.NoError(t, s.Upsert(model.User{ID: "admin", Email: "old@example.com"}))
	require.NoError(t, s.Upsert(model.User{ID: "admin", Email: "new@example.com"}))

	require.Len(t, s.Users(), 1)
	u, ok := s.Get("admin")
	require.True(t, ok)
	assert.Equal(t, "new@example.com", u.Email)
}

func TestFindByEmailCaseInsensitive(t *testing.T) {
	s, err := NewStore(filepath.Join(t.TempDir(), "users.json"))
	require.NoError(t, err)

	require.NoError(t, s.Upsert(model.User{ID: "admin", Email: "Admin@Example.com"}))

	u, ok := s.FindByEmail("  admin@example.COM ")
	require.True(t, ok)
	assert.Equal(t, "admin", u.ID)

	_, ok = s.FindByEmail("other@example.com")
	assert.False(t, ok)
}

func TestRemindersActive(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	active := model.User{ID: "a"}
	assert.True(t, active.RemindersActive(now))

	paused := model.User{ID: "b", ReminderPaused: true}
	assert.False(t, paused.RemindersActive(now))

	resumeTomorrow := now.AddDate(0, 0, 1)
	pausedUntil := model.User{ID: "c", ReminderPaused: true, ResumeDate: &resumeTomorrow}
	assert.False(t, pausedUntil.RemindersActive(now))
	assert.True(t, pausedUntil.RemindersActive(resumeTomorrow))
}
