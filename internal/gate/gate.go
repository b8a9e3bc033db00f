package gate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nhle/mail-assistant/internal/model"
)

// Confidence thresholds for inbound-content analysis. Skip-reason
// inference is a softer signal than a definitive work-report or
// schedule-request classification, so the two thresholds differ.
const (
	skipReasonConfidence = 0.6
	definitiveConfidence = 0.7
)

// DefaultRetention is how long reminder records are kept before the
// sweep removes them.
const DefaultRetention = 30 * 24 * time.Hour

// HistoryChecker looks up whether a qualifying work summary exists for a
// user on a given day. The message history store implements it.
type HistoryChecker interface {
	HasWorkSummary(ctx context.Context, userID string, day time.Time) (bool, error)
}

// Analysis is a confidence-scored recommendation from the inbound
// content analyzer.
type Analysis struct {
	SkipMorning bool
	SkipEvening bool
	SkipReason  string
	Confidence  float64

	IsWorkReport         bool
	WorkReportConfidence float64

	IsScheduleRequest         bool
	ScheduleRequestConfidence float64
}

// Analyzer inspects an inbound message and recommends gate updates.
type Analyzer interface {
	Analyze(ctx context.Context, msg model.InboundMessage) (Analysis, error)
}

// Gate is the per-user, per-day reminder state machine. ShouldSend*
// are pure queries; detection side effects live in the explicitly named
// DetectAndRecordWorkReport, which callers invoke before the evening
// query.
type Gate struct {
	store    *TrackingStore
	history  HistoryChecker
	analyzer Analyzer
	log      *slog.Logger

	now func() time.Time
}

// New creates a gate over the given tracking store. history and analyzer
// may be nil, disabling work-summary detection and content analysis
// respectively.
func New(
	store *TrackingStore,
	history HistoryChecker,
	analyzer Analyzer,
	log *slog.Logger,
) *Gate {
	return &Gate{
		store:    store,
		history:  history,
		analyzer: analyzer,
		log:      log,
		now:      time.Now,
	}
}

// todayKey returns the tracking key for userID on the current day.
func (g *Gate) todayKey(userID string) string {
	return model.RecordKey(userID, g.now())
}

// upsert loads today's record for userID, creating it if absent, applies
// mutate, and persists the result.
func (g *Gate) upsert(userID string, mutate func(rec *model.ReminderRecord)) {
	key := g.todayKey(userID)
	rec, ok := g.store.Get(key)
	if !ok {
		rec = model.NewReminderRecord(userID, g.now())
	}
	mutate(rec)
	g.store.Put(key, rec)
}

// ShouldSendMorning reports whether the morning reminder should fire for
// userID today. A user who already asked for their schedule today does
// not also get the templated reminder.
func (g *Gate) ShouldSendMorning(userID string) bool {
	rec, ok := g.store.Get(g.todayKey(userID))
	if !ok {
		return true
	}
	return !rec.MorningSent &&
		rec.SkipReasons.Morning == "" &&
		!rec.ScheduleRequested
}

// ShouldSendEvening reports whether the evening reminder should fire for
// userID today. It is a pure query; call DetectAndRecordWorkReport first
// to pick up work summaries not yet flagged on the record.
func (g *Gate) ShouldSendEvening(userID string) bool {
	rec, ok := g.store.Get(g.todayKey(userID))
	if !ok {
		return true
	}
	return !rec.EveningSent &&
		rec.SkipReasons.Evening == "" &&
		!rec.WorkReportReceived
}

// DetectAndRecordWorkReport checks the message history for a qualifying
// work summary dated today and, if one exists, marks the record. This is
// the detection step that used to hide inside the evening query.
func (g *Gate) DetectAndRecordWorkReport(ctx context.Context, userID string) error {
	if g.history == nil {
		return nil
	}

	rec, ok := g.store.Get(g.todayKey(userID))
	if ok && rec.WorkReportReceived {
		return nil
	}

	found, err := g.history.HasWorkSummary(ctx, userID, g.now())
	if err != nil {
		return fmt.Errorf("checking work-report history for %s: %w", userID, err)
	}
	if found {
		g.MarkWorkReportReceived(userID)
	}
	return nil
}

// MarkMorningSent records that the morning reminder was accepted for
// delivery today. Idempotent.
func (g *Gate) MarkMorningSent(userID string) {
	g.upsert(userID, func(rec *model.ReminderRecord) {
		if rec.MorningSent {
			return
		}
		rec.MorningSent = true
		now := g.now()
		rec.MorningSentAt = &now
	})
}

// MarkEveningSent records that the evening reminder was accepted for
// delivery today. Idempotent.
func (g *Gate) MarkEveningSent(userID string) {
	g.upsert(userID, func(rec *model.ReminderRecord) {
		if rec.EveningSent {
			return
		}
		rec.EveningSent = true
		now := g.now()
		rec.EveningSentAt = &now
	})
}

// MarkWorkReportReceived records that a work report arrived today.
// Idempotent.
func (g *Gate) MarkWorkReportReceived(userID string) {
	g.upsert(userID, func(rec *model.ReminderRecord) {
		if rec.WorkReportReceived {
			return
		}
		rec.WorkReportReceived = true
		now := g.now()
		rec.WorkReportReceivedAt = &now
	})
}

// MarkScheduleRequested records that the user proactively asked for
// their schedule today. Idempotent.
func (g *Gate) MarkScheduleRequested(userID string) {
	g.upsert(userID, func(rec *model.ReminderRecord) {
		if rec.ScheduleRequested {
			return
		}
		rec.ScheduleRequested = true
		now := g.now()
		rec.ScheduleRequestedAt = &now
	})
}

// AnalyzeAndUpdate runs the content analyzer over an inbound message and
// applies its recommendations: skip reasons above the soft threshold,
// definitive work-report and schedule-request flags above the strict one.
func (g *Gate) AnalyzeAndUpdate(
	ctx context.Context,
	userID string,
	msg model.InboundMessage,
) error {
	if g.analyzer == nil {
		return nil
	}

	analysis, err := g.analyzer.Analyze(ctx, msg)
	if err != nil {
		return fmt.Errorf("analyzing message %s: %w", msg.MessageID, err)
	}

	if analysis.Confidence > skipReasonConfidence {
		if analysis.SkipMorning || analysis.SkipEvening {
			g.upsert(userID, func(rec *model.ReminderRecord) {
				if analysis.SkipMorning && rec.SkipReasons.Morning == "" {
					rec.SkipReasons.Morning = analysis.SkipReason
				}
				if analysis.SkipEvening && rec.SkipReasons.Evening == "" {
					rec.SkipReasons.Evening = analysis.SkipReason
				}
			})
			g.log.Info("skip reason recorded",
				"user", userID,
				"reason", analysis.SkipReason,
				"confidence", analysis.Confidence,
			)
		}
	}

	if analysis.IsWorkReport && analysis.WorkReportConfidence > definitiveConfidence {
		g.MarkWorkReportReceived(userID)
	}
	if analysis.IsScheduleRequest && analysis.ScheduleRequestConfidence > definitiveConfidence {
		g.MarkScheduleRequested(userID)
	}

	return nil
}

// ResetDay clears the record for userID on the given day. This is the
// explicit admin/test action; nothing else ever resets sent flags.
func (g *Gate) ResetDay(userID string, day time.Time) error {
	return g.store.Delete(model.RecordKey(userID, day))
}

// Sweep removes records older than the retention window. Deletions are
// flushed immediately by the store.
func (g *Gate) Sweep(retention time.Duration) error {
	if retention <= 0 {
		retention = DefaultRetention
	}
	cutoff := g.now().Add(-retention)

	var expired []string
	for _, key := range g.store.Keys() {
		rec, ok := g.store.Get(key)
		if !ok {
			continue
		}
		if rec.Day().Before(cutoff) {
			expired = append(expired, key)
		}
	}

	if len(expired) == 0 {
		return nil
	}

	g.log.Info("sweeping expired reminder records", "count", len(expired))
	return g.store.Delete(expired...)
}
