package model

import (
	"fmt"
	"time"
)

// DateLayout is the calendar-day format used in reminder record keys.
const DateLayout = "2006-01-02"

// SkipReasons records why a reminder was deliberately not sent. An empty
// field means no skip was recorded for that slot.
type SkipReasons struct {
	Morning string `json:"morning,omitempty"`
	Evening string `json:"evening,omitempty"`
}

// ReminderRecord is the per-user, per-day reminder state. MorningSent and
// EveningSent are monotonic: once true they are never reset except by an
// explicit admin or test action.
type ReminderRecord struct {
	UserID string `json:"userId"`
	Date   string `json:"date"`

	MorningSent        bool `json:"morningSent"`
	EveningSent        bool `json:"eveningSent"`
	WorkReportReceived bool `json:"workReportReceived"`
	ScheduleRequested  bool `json:"scheduleRequested"`

	SkipReasons SkipReasons `json:"skipReasons"`

	MorningSentAt        *time.Time `json:"morningSentAt,omitempty"`
	EveningSentAt        *time.Time `json:"eveningSentAt,omitempty"`
	WorkReportReceivedAt *time.Time `json:"workReportReceivedAt,omitempty"`
	ScheduleRequestedAt  *time.Time `json:"scheduleRequestedAt,omitempty"`
}

// RecordKey builds the tracking-store key for a user and day.
func RecordKey(userID string, day time.Time) string {
	return fmt.Sprintf("%s_%s", userID, day.Format(DateLayout))
}

// NewReminderRecord creates an empty record for a user and day.
func NewReminderRecord(userID string, day time.Time) *ReminderRecord {
	return &ReminderRecord{
		UserID: userID,
		Date:   day.Format(DateLayout),
	}
}

// Day parses the record's date. A zero time is returned for a malformed
// date so callers can treat the record as expired.
func (r *ReminderRecord) Day() time.Time {
	day, err := time.Parse(DateLayout, r.Date)
	if err != nil {
		return time.Time{}
	}
	return day
}
