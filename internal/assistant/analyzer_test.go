package assistant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mail-assistant/internal/ai"
	"github.com/nhle/mail-assistant/internal/model"
)

type cannedProvider struct {
	response string
	prompt   string
}

func (p *cannedProvider) Generate(_ context.Context, _, userPrompt string, _ ai.Options) (string, error) {
	p.prompt = userPrompt
	return p.response, nil
}

func TestAnalyzeParsesResponse(t *testing.T) {
	provider := &cannedProvider{response: `{
		"skip_morning": true,
		"skip_reason": "on vacation this week",
		"skip_confidence": 0.85,
		"is_work_report": false,
		"work_report_confidence": 0.1
	}`}
	a := NewContentAnalyzer(provider)

	analysis, err := a.Analyze(context.Background(), model.InboundMessage{
		Subject:  "Out of office",
		TextBody: "I'm on vacation until Friday, no reminders please.",
	})

	require.NoError(t, err)
	assert.True(t, analysis.SkipMorning)
	assert.Equal(t, "on vacation this week", analysis.SkipReason)
	assert.InDelta(t, 0.85, analysis.Confidence, 0.001)
	assert.False(t, analysis.IsWorkReport)
	assert.Contains(t, provider.prompt, "Out of office")
}

func TestAnalyzeStripsSurroundingProse(t *testing.T) {
	provider := &cannedProvider{response: "Here is the analysis:\n" +
		`{"is_work_report": true, "work_report_confidence": 0.9}` +
		"\nLet me know if you need anything else."}
	a := NewContentAnalyzer(provider)

	analysis, err := a.Analyze(context.Background(), model.InboundMessage{})

	require.NoError(t, err)
	assert.True(t, analysis.IsWorkReport)
	assert.InDelta(t, 0.9, analysis.WorkReportConfidence, 0.001)
}

func TestAnalyzeRejectsNonJSON(t *testing.T) {
	provider := &cannedProvider{response: "I could not analyze that."}
	a := NewContentAnalyzer(provider)

	_, err := a.Analyze(context.Background(), model.InboundMessage{})
	assert.Error(t, err)
}

func TestAnalyzeClampsConfidence(t *testing.T) {
	provider := &cannedProvider{response: `{
		"is_work_report": true,
		"work_report_confidence": 1.7,
		"is_schedule_request": true,
		"schedule_request_confidence": -0.3
	}`}
	a := NewContentAnalyzer(provider)

	analysis, err := a.Analyze(context.Background(), model.InboundMessage{})

	require.NoError(t, err)
	assert.Equal(t, 1.0, analysis.WorkReportConfidence)
	assert.Equal(t, 0.0, analysis.ScheduleRequestConfidence)
}
