package store

import (
	"context"
	"fmt"
	"time"

	"github.com/nhle/mail-assistant/internal/model"
)

// MessageRecord is a row of the message history. ReceivedDay is the
// calendar day of ReceivedAt in UTC, stored pre-formatted so day
// lookups compare plain strings instead of relying on how the driver
// serializes timestamps.
type MessageRecord struct {
	ID             string    `db:"id"`
	UserID         string    `db:"user_id"`
	UID            uint32    `db:"uid"`
	Subject        string    `db:"subject"`
	Sender         string    `db:"sender"`
	Classification string    `db:"classification"`
	Body           string    `db:"body"`
	IsReply        bool      `db:"is_reply"`
	ReceivedAt     time.Time `db:"received_at"`
	ReceivedDay    string    `db:"received_day"`
	RecordedAt     time.Time `db:"recorded_at"`
}

// SaveMessage records a processed inbound message attributed to userID.
// Saving the same message id twice overwrites the earlier row.
func (s *MessageStore) SaveMessage(
	ctx context.Context,
	userID string,
	msg model.InboundMessage,
) error {
	receivedAt := msg.Date
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO messages
			(id, user_id, uid, subject, sender, classification, body, is_reply, received_at, received_day, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.MessageID,
		userID,
		msg.UID,
		msg.Subject,
		msg.From,
		string(msg.Classification),
		msg.Body(),
		msg.IsReply,
		receivedAt.UTC(),
		receivedAt.UTC().Format(model.DateLayout),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("saving message %s: %w", msg.MessageID, err)
	}
	return nil
}

// HasWorkSummary reports whether a work-report message exists for userID
// on the given calendar day.
func (s *MessageStore) HasWorkSummary(
	ctx context.Context,
	userID string,
	day time.Time,
) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM messages
		WHERE user_id = ?
		  AND classification = ?
		  AND received_day = ?`,
		userID,
		string(model.ClassificationWorkReport),
		day.UTC().Format(model.DateLayout),
	)
	if err != nil {
		return false, fmt.Errorf("querying work summaries: %w", err)
	}
	return count > 0, nil
}

// RecentMessages returns the newest messages for userID, most recent
// first.
func (s *MessageStore) RecentMessages(
	ctx context.Context,
	userID string,
	limit int,
) ([]MessageRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	var records []MessageRecord
	err := s.db.SelectContext(ctx, &records, `
		SELECT id, user_id, uid, subject, sender, classification, body, is_reply, received_at, received_day, recorded_at
		FROM messages
		WHERE user_id = ?
		ORDER BY received_at DESC
		LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing messages for %s: %w", userID, err)
	}
	return records, nil
}

// PruneBefore removes history rows received before the cutoff's
// calendar day. Retention is day-granular, matching the tracking sweep.
func (s *MessageStore) PruneBefore(ctx context.Context, cutoff time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM messages WHERE received_day < ?",
		cutoff.UTC().Format(model.DateLayout),
	)
	if err != nil {
		return fmt.Errorf("pruning message history: %w", err)
	}
	return nil
}
