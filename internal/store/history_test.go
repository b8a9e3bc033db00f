package store_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mail-assistant/internal/model"
	"github.com/nhle/mail-assistant/tests/testutil"
)

func inboundMessage(id string, class model.Classification, date time.Time) model.InboundMessage {
	return model.InboundMessage{
		MessageID:      id,
		UID:            42,
		Subject:        "Re: check-in",
		From:           "admin@example.com",
		Date:           date,
		TextBody:       "today I finished the report",
		IsReply:        true,
		Classification: class,
	}
}

func TestSaveAndListMessages(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		msg := inboundMessage(
			fmt.Sprintf("<m%d@example.com>", i),
			model.ClassificationGeneral,
			base.Add(time.Duration(i)*time.Hour),
		)
		require.NoError(t, s.SaveMessage(ctx, "admin", msg))
	}

	records, err := s.RecentMessages(ctx, "admin", 10)
	require.NoError(t, err)
	require.Len(t, records, 3)

	// Most recent first.
	assert.Equal(t, "<m2@example.com>", records[0].ID)
	assert.Equal(t, "<m0@example.com>", records[2].ID)
	assert.Equal(t, "admin", records[0].UserID)
	assert.Equal(t, "today I finished the report", records[0].Body)
	assert.Equal(t, "2026-03-01", records[0].ReceivedDay)
}

func TestSaveMessageOverwritesSameID(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	date := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	msg := inboundMessage("<m1@example.com>", model.ClassificationGeneral, date)
	require.NoError(t, s.SaveMessage(ctx, "admin", msg))

	msg.Classification = model.ClassificationWorkReport
	require.NoError(t, s.SaveMessage(ctx, "admin", msg))

	records, err := s.RecentMessages(ctx, "admin", 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, string(model.ClassificationWorkReport), records[0].Classification)
}

func TestHasWorkSummaryMatchesDay(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	reportDay := time.Date(2026, 3, 1, 18, 30, 0, 0, time.UTC)
	msg := inboundMessage("<r1@example.com>", model.ClassificationWorkReport, reportDay)
	require.NoError(t, s.SaveMessage(ctx, "admin", msg))

	found, err := s.HasWorkSummary(ctx, "admin", reportDay)
	require.NoError(t, err)
	assert.True(t, found)

	// A different day, a different user, or a non-report classification
	// does not count.
	found, err = s.HasWorkSummary(ctx, "admin", reportDay.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.False(t, found)

	found, err = s.HasWorkSummary(ctx, "someone-else", reportDay)
	require.NoError(t, err)
	assert.False(t, found)

	general := inboundMessage("<g1@example.com>", model.ClassificationGeneral, reportDay)
	require.NoError(t, s.SaveMessage(ctx, "other", general))
	found, err = s.HasWorkSummary(ctx, "other", reportDay)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPruneBefore(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	old := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	recent := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveMessage(ctx, "admin",
		inboundMessage("<old@example.com>", model.ClassificationGeneral, old)))
	require.NoError(t, s.SaveMessage(ctx, "admin",
		inboundMessage("<new@example.com>", model.ClassificationGeneral, recent)))

	require.NoError(t, s.PruneBefore(ctx, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)))

	records, err := s.RecentMessages(ctx, "admin", 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "<new@example.com>", records[0].ID)
}

func TestZeroDateDefaultsToNow(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	msg := inboundMessage("<m1@example.com>", model.ClassificationGeneral, time.Time{})
	require.NoError(t, s.SaveMessage(ctx, "admin", msg))

	records, err := s.RecentMessages(ctx, "admin", 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.WithinDuration(t, time.Now(), records[0].ReceivedAt, time.Minute)
}
