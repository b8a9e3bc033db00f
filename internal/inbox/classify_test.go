package inbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mail-assistant/internal/model"
)

func TestClassifyAdminCommand(t *testing.T) {
	msg := &model.InboundMessage{
		Subject:     "/pause admin",
		IsFromOwner: true,
	}
	assert.Equal(t, model.ClassificationAdminCommand, Classify(msg))
}

func TestClassifySlashFromStrangerIsNotCommand(t *testing.T) {
	msg := &model.InboundMessage{
		Subject:     "/pause admin",
		IsFromOwner: false,
	}
	assert.NotEqual(t, model.ClassificationAdminCommand, Classify(msg))
}

func TestClassifyWorkReport(t *testing.T) {
	msg := &model.InboundMessage{
		Subject:     "Re: Your evening check-in",
		TextBody:    "Completed today: shipped the billing fix and reviewed two PRs.",
		IsReply:     true,
		IsFromOwner: true,
	}
	assert.Equal(t, model.ClassificationWorkReport, Classify(msg))
}

func TestClassifyWorkReportKeywordsWithoutReplyMarker(t *testing.T) {
	// Report keywords alone do not qualify; the mail must be a reply.
	msg := &model.InboundMessage{
		Subject:  "progress",
		TextBody: "work summary attached",
	}
	assert.NotEqual(t, model.ClassificationWorkReport, Classify(msg))
}

func TestClassifyScheduleResponse(t *testing.T) {
	msg := &model.InboundMessage{
		Subject:  "What's on my schedule?",
		TextBody: "Can you send me today's agenda?",
	}
	assert.Equal(t, model.ClassificationScheduleResponse, Classify(msg))
}

func TestClassifyCommandBeatsKeywords(t *testing.T) {
	// A slash subject wins even when the body is full of schedule talk.
	msg := &model.InboundMessage{
		Subject:     "/schedule show",
		TextBody:    "schedule reminder agenda",
		IsFromOwner: true,
	}
	assert.Equal(t, model.ClassificationAdminCommand, Classify(msg))
}

func TestClassifyGeneral(t *testing.T) {
	msg := &model.InboundMessage{
		Subject:  "Lunch on Friday?",
		TextBody: "Want to grab lunch?",
	}
	assert.Equal(t, model.ClassificationGeneral, Classify(msg))
}

func TestClassifyHTMLOnlyBody(t *testing.T) {
	msg := &model.InboundMessage{
		Subject:  "Re: check-in",
		HTMLBody: "<p>Here is my daily report.</p>",
		IsReply:  true,
	}
	assert.Equal(t, model.ClassificationWorkReport, Classify(msg))
}

func TestIsReply(t *testing.T) {
	assert.True(t, IsReply("Re: hello", "", nil))
	assert.True(t, IsReply("re: hello", "", nil))
	assert.True(t, IsReply("hello", "<parent@example.com>", nil))
	assert.True(t, IsReply("hello", "", []string{"<root@example.com>"}))
	assert.False(t, IsReply("hello", "", nil))
	assert.False(t, IsReply("Regarding hello", "", nil))
}

func TestParseCommand(t *testing.T) {
	name, args, ok := ParseCommand("/pause admin until 2026-03-15")
	require.True(t, ok)
	assert.Equal(t, "pause", name)
	assert.Equal(t, []string{"admin", "until", "2026-03-15"}, args)
}

func TestParseCommandNoArgs(t *testing.T) {
	name, args, ok := ParseCommand("  /status  ")
	require.True(t, ok)
	assert.Equal(t, "status", name)
	assert.Empty(t, args)
}

func TestParseCommandRejectsNonCommands(t *testing.T) {
	_, _, ok := ParseCommand("hello")
	assert.False(t, ok)

	_, _, ok = ParseCommand("/")
	assert.False(t, ok)

	_, _, ok = ParseCommand("")
	assert.False(t, ok)
}
