package model

import (
	"strings"
	"time"
)

// UserSchedule holds the per-user reminder send times as "HH:MM" strings
// in the process's local time zone.
type UserSchedule struct {
	MorningTime string `json:"morningTime"`
	EveningTime string `json:"eveningTime"`
}

// User is a reminder recipient.
type User struct {
	ID       string       `json:"id"`
	Email    string       `json:"email"`
	Name     string       `json:"name"`
	Schedule UserSchedule `json:"schedule"`

	// ReminderPaused suspends all reminders for this user. When
	// ResumeDate is set, reminders resume automatically on that day.
	ReminderPaused bool       `json:"reminderPaused"`
	ResumeDate     *time.Time `json:"resumeDate,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// RemindersActive reports whether reminders should fire for this user at
// the given time, taking the pause flag and resume date into account.
func (u *User) RemindersActive(now time.Time) bool {
	if !u.ReminderPaused {
		return true
	}
	if u.ResumeDate == nil {
		return false
	}
	return !now.Before(*u.ResumeDate)
}

// MatchesEmail reports whether addr is this user's address, compared
// case-insensitively.
func (u *User) MatchesEmail(addr string) bool {
	return strings.EqualFold(strings.TrimSpace(addr), u.Email)
}
