package model

import "time"

// Classification labels an inbound message by what the assistant should
// do with it.
type Classification string

const (
	// ClassificationWorkReport is a reply carrying a daily work summary.
	ClassificationWorkReport Classification = "work_report"

	// ClassificationScheduleResponse is mail about the day's schedule
	// or reminders.
	ClassificationScheduleResponse Classification = "schedule_response"

	// ClassificationAdminCommand is a slash-command subject sent by the
	// owner from their own address.
	ClassificationAdminCommand Classification = "admin_command"

	// ClassificationGeneral is anything that matched no other rule.
	ClassificationGeneral Classification = "general"
)

// InboundMessage is a fully parsed inbound email. It is immutable once
// produced by the inbox poller.
type InboundMessage struct {
	MessageID      string
	UID            uint32
	Subject        string
	From           string
	To             []string
	Date           time.Time
	TextBody       string
	HTMLBody       string
	InReplyTo      string
	References     []string
	IsReply        bool
	IsFromOwner    bool
	Classification Classification
}

// Body returns the plain-text body, falling back to the HTML body when
// no text part was present.
func (m *InboundMessage) Body() string {
	if m.TextBody != "" {
		return m.TextBody
	}
	return m.HTMLBody
}
