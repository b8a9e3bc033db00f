package inbox

import (
	"strings"

	"github.com/nhle/mail-assistant/internal/model"
)

// workReportKeywords mark a reply as a daily work summary.
var workReportKeywords = []string{
	"work report",
	"daily report",
	"work summary",
	"progress",
	"standup",
	"accomplished",
	"completed today",
	"done today",
}

// scheduleKeywords mark mail about the day's schedule or reminders.
var scheduleKeywords = []string{
	"schedule",
	"reminder",
	"agenda",
	"today's plan",
	"plan for today",
	"upcoming",
}

// Classify assigns a classification to the message. Rules are applied in
// priority order: owner slash-commands first, then work reports (reply
// markers plus report keywords), then schedule mail, then general.
func Classify(msg *model.InboundMessage) model.Classification {
	subject := strings.ToLower(strings.TrimSpace(msg.Subject))

	if msg.IsFromOwner && strings.HasPrefix(strings.TrimSpace(msg.Subject), "/") {
		return model.ClassificationAdminCommand
	}

	text := subject + "\n" + strings.ToLower(msg.Body())

	if msg.IsReply && containsAny(text, workReportKeywords) {
		return model.ClassificationWorkReport
	}

	if containsAny(text, scheduleKeywords) {
		return model.ClassificationScheduleResponse
	}

	return model.ClassificationGeneral
}

// IsReply reports whether the message carries any reply marker: an "Re:"
// subject prefix, an In-Reply-To header, or a References chain.
func IsReply(subject, inReplyTo string, references []string) bool {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(subject)), "re:") {
		return true
	}
	if inReplyTo != "" {
		return true
	}
	return len(references) > 0
}

// ParseCommand splits an admin-command subject of the form
// "/name arg1 arg2" into its command name and arguments. There is no
// quoting support; arguments are space-delimited. ok is false when the
// subject is not a command.
func ParseCommand(subject string) (name string, args []string, ok bool) {
	trimmed := strings.TrimSpace(subject)
	if !strings.HasPrefix(trimmed, "/") {
		return "", nil, false
	}

	fields := strings.Fields(strings.TrimPrefix(trimmed, "/"))
	if len(fields) == 0 {
		return "", nil, false
	}

	return fields[0], fields[1:], true
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
