// Package queue holds outbound messages that failed immediate delivery
// and retries them with exponential backoff.
package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/mail-assistant/internal/mail"
)

// Deliverer attempts delivery of a single message. In production this is
// the breaker-guarded mail.Sender.
type Deliverer interface {
	Send(ctx context.Context, msg *mail.OutgoingMessage) error
}

// QueuedMessage is an outbound message awaiting retry. It is owned
// exclusively by the queue and mutated only by the drain loop.
type QueuedMessage struct {
	ID          string
	Message     *mail.OutgoingMessage
	Attempts    int
	MaxAttempts int
	NextRetryAt time.Time
	EnqueuedAt  time.Time
}

// RetryQueue retries failed sends on a fixed interval with exponential
// backoff. An item is dropped after a successful delivery or after
// exhausting its attempt budget; a permanent failure is logged, never
// silently lost.
type RetryQueue struct {
	deliverer Deliverer
	baseDelay time.Duration
	interval  time.Duration
	log       *slog.Logger

	mu       sync.Mutex
	items    []*QueuedMessage
	draining bool
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}

	now func() time.Time
}

// New creates a retry queue. baseDelay is the backoff unit (the delay
// after the first failed retry attempt); interval is how often the drain
// loop fires once started.
func New(
	deliverer Deliverer,
	baseDelay, interval time.Duration,
	log *slog.Logger,
) *RetryQueue {
	if baseDelay <= 0 {
		baseDelay = 30 * time.Second
	}
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &RetryQueue{
		deliverer: deliverer,
		baseDelay: baseDelay,
		interval:  interval,
		log:       log,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
		now:       time.Now,
	}
}

// Enqueue adds a message that failed immediate delivery. The first retry
// is due on the next drain cycle.
func (q *RetryQueue) Enqueue(msg *mail.OutgoingMessage, maxAttempts int) {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	item := &QueuedMessage{
		ID:          uuid.NewString(),
		Message:     msg,
		Attempts:    0,
		MaxAttempts: maxAttempts,
		NextRetryAt: q.now(),
		EnqueuedAt:  q.now(),
	}

	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()

	q.log.Info("message queued for retry",
		"id", item.ID,
		"to", msg.To,
		"max_attempts", maxAttempts,
	)
}

// Len returns the number of items currently queued.
func (q *RetryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Snapshot returns a copy of the queued items for inspection.
func (q *RetryQueue) Snapshot() []QueuedMessage {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]QueuedMessage, 0, len(q.items))
	for _, item := range q.items {
		out = append(out, *item)
	}
	return out
}

// Drain attempts delivery of every due item. The queue contents are
// swapped out at the start so items enqueued mid-drain wait for the next
// cycle. A drain that finds another drain in flight returns immediately;
// a slow cycle is skipped rather than overlapped.
func (q *RetryQueue) Drain(ctx context.Context) {
	q.drain(ctx, false)
}

// drain implements Drain. When force is set, backoff deadlines are
// ignored and every item gets a delivery attempt; this is the shutdown
// path, where waiting out a backoff window is not an option.
func (q *RetryQueue) drain(ctx context.Context, force bool) {
	q.mu.Lock()
	if q.draining {
		q.mu.Unlock()
		q.log.Debug("drain already in progress, skipping")
		return
	}
	q.draining = true
	batch := q.items
	q.items = nil
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.draining = false
		q.mu.Unlock()
	}()

	now := q.now()
	var requeue []*QueuedMessage

	for _, item := range batch {
		if !force && now.Before(item.NextRetryAt) {
			// Not yet due; put back unchanged.
			requeue = append(requeue, item)
			continue
		}

		err := q.deliverer.Send(ctx, item.Message)
		if err == nil {
			q.log.Info("retry delivery succeeded",
				"id", item.ID,
				"to", item.Message.To,
				"attempts", item.Attempts+1,
			)
			continue
		}

		item.Attempts++
		if item.Attempts >= item.MaxAttempts {
			q.log.Error("permanent delivery failure, dropping message",
				"id", item.ID,
				"to", item.Message.To,
				"subject", item.Message.Subject,
				"attempts", item.Attempts,
				"error", err,
			)
			continue
		}

		delay := q.baseDelay << (item.Attempts - 1)
		item.NextRetryAt = now.Add(delay)
		requeue = append(requeue, item)

		q.log.Warn("retry delivery failed",
			"id", item.ID,
			"to", item.Message.To,
			"attempt", item.Attempts,
			"next_retry_in", delay.String(),
			"error", err,
		)
	}

	if len(requeue) > 0 {
		q.mu.Lock()
		// Items enqueued during the drain go behind the requeued batch.
		q.items = append(requeue, q.items...)
		q.mu.Unlock()
	}
}

// Start runs the periodic drain loop until Stop is called or the context
// is cancelled.
func (q *RetryQueue) Start(ctx context.Context) {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return
	}
	q.running = true
	q.mu.Unlock()

	go func() {
		defer close(q.doneCh)

		ticker := time.NewTicker(q.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-q.stopCh:
				return
			case <-ticker.C:
				q.Drain(ctx)
			}
		}
	}()
}

// Stop halts the drain loop and performs one final drain so an orderly
// shutdown does not silently abandon queued mail.
func (q *RetryQueue) Stop(ctx context.Context) {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	q.mu.Unlock()

	close(q.stopCh)
	<-q.doneCh

	q.drain(ctx, true)
}
