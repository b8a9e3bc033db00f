package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nhle/mail-assistant/internal/ai"
	"github.com/nhle/mail-assistant/internal/gate"
	"github.com/nhle/mail-assistant/internal/model"
)

const analyzerSystemPrompt = `You analyze an email sent to a personal ` +
	`assistant and answer with a single JSON object, nothing else:
{
  "skip_morning": bool,      // the sender asked not to be reminded this morning
  "skip_evening": bool,      // the sender asked not to be reminded this evening
  "skip_reason": string,     // short reason, empty if no skip
  "skip_confidence": number, // 0..1
  "is_work_report": bool,    // the mail summarizes work the sender did today
  "work_report_confidence": number,
  "is_schedule_request": bool, // the mail describes or asks about today's schedule
  "schedule_request_confidence": number
}`

// ContentAnalyzer derives gate recommendations from inbound mail using
// the text generator. Responses that are not valid JSON are reported as
// errors; the gate treats that as no recommendation.
type ContentAnalyzer struct {
	provider ContentProvider
}

// NewContentAnalyzer wraps provider as a gate analyzer.
func NewContentAnalyzer(provider ContentProvider) *ContentAnalyzer {
	return &ContentAnalyzer{provider: provider}
}

type analyzerResponse struct {
	SkipMorning    bool    `json:"skip_morning"`
	SkipEvening    bool    `json:"skip_evening"`
	SkipReason     string  `json:"skip_reason"`
	SkipConfidence float64 `json:"skip_confidence"`

	IsWorkReport         bool    `json:"is_work_report"`
	WorkReportConfidence float64 `json:"work_report_confidence"`

	IsScheduleRequest         bool    `json:"is_schedule_request"`
	ScheduleRequestConfidence float64 `json:"schedule_request_confidence"`
}

// Analyze asks the generator to score the message and maps the reply
// onto a gate.Analysis.
func (a *ContentAnalyzer) Analyze(
	ctx context.Context, msg model.InboundMessage,
) (gate.Analysis, error) {
	prompt := fmt.Sprintf("Subject: %s\n\n%s", msg.Subject, msg.Body())

	text, err := a.provider.Generate(ctx, analyzerSystemPrompt, prompt, ai.Options{})
	if err != nil {
		return gate.Analysis{}, fmt.Errorf("analyzing message content: %w", err)
	}

	var resp analyzerResponse
	if err := json.Unmarshal([]byte(extractJSON(text)), &resp); err != nil {
		return gate.Analysis{}, fmt.Errorf("parsing analysis response: %w", err)
	}

	return gate.Analysis{
		SkipMorning:               resp.SkipMorning,
		SkipEvening:               resp.SkipEvening,
		SkipReason:                resp.SkipReason,
		Confidence:                clamp01(resp.SkipConfidence),
		IsWorkReport:              resp.IsWorkReport,
		WorkReportConfidence:      clamp01(resp.WorkReportConfidence),
		IsScheduleRequest:         resp.IsScheduleRequest,
		ScheduleRequestConfidence: clamp01(resp.ScheduleRequestConfidence),
	}, nil
}

// extractJSON trims any prose the model wraps around the JSON object.
func extractJSON(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return text
	}
	return text[start : end+1]
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
