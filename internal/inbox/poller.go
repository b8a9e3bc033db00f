// Package inbox polls the mailbox for unseen messages, deduplicates
// them, classifies them, and fans them out to registered handlers.
package inbox

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nhle/mail-assistant/internal/mail"
	"github.com/nhle/mail-assistant/internal/model"
)

// fetchTimeout is the maximum time allowed for a single poll cycle.
const fetchTimeout = 30 * time.Second

// Mailbox is the subset of IMAP operations the poller needs.
type Mailbox interface {
	FetchUnseenSince(ctx context.Context, since time.Time) ([]mail.Envelope, error)
	FetchMessage(ctx context.Context, uid uint32) (*mail.ParsedMessage, error)
	MarkSeen(ctx context.Context, uid uint32) error
}

// Handler consumes a classified inbound message. A handler's panic is
// recovered and logged; it never prevents the other handlers from
// running.
type Handler func(msg model.InboundMessage)

// Poller periodically queries the mailbox for unseen mail since
// yesterday, skips already-processed message ids via the dedup cache,
// and emits classified messages. Mail from the owner goes to the owner
// handlers; everyone else's mail goes to the forward handlers.
type Poller struct {
	mailbox  Mailbox
	owner    string
	interval time.Duration
	dedup    *DedupCache
	log      *slog.Logger

	mu        sync.Mutex
	onOwner   []Handler
	onForward []Handler
	polling   bool
	running   bool
	stopCh    chan struct{}
	doneCh    chan struct{}

	now func() time.Time
}

// New creates a poller for the given mailbox. owner is the address whose
// mail is processed rather than forwarded.
func New(
	mailbox Mailbox,
	owner string,
	interval time.Duration,
	dedup *DedupCache,
	log *slog.Logger,
) *Poller {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if dedup == nil {
		dedup = NewDedupCache(DefaultDedupCapacity)
	}
	return &Poller{
		mailbox:  mailbox,
		owner:    owner,
		interval: interval,
		dedup:    dedup,
		log:      log,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		now:      time.Now,
	}
}

// OnOwnerMessage registers a handler for mail from the owner's address.
func (p *Poller) OnOwnerMessage(h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onOwner = append(p.onOwner, h)
}

// OnForward registers a handler for mail from unrecognized senders.
func (p *Poller) OnForward(h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onForward = append(p.onForward, h)
}

// Start begins the polling loop, doing an initial poll immediately.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.mu.Unlock()

	go func() {
		defer close(p.doneCh)

		p.Tick(ctx)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-p.stopCh:
				return
			case <-ticker.C:
				p.Tick(ctx)
			}
		}
	}()
}

// Stop halts the polling loop and waits for any in-flight cycle.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	close(p.stopCh)
	<-p.doneCh
}

// Tick performs a single poll cycle. A tick that finds another cycle in
// flight returns immediately; slow cycles are skipped, not overlapped.
func (p *Poller) Tick(ctx context.Context) {
	p.mu.Lock()
	if p.polling {
		p.mu.Unlock()
		p.log.Debug("poll already in progress, skipping")
		return
	}
	p.polling = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.polling = false
		p.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	since := p.now().AddDate(0, 0, -1)

	envelopes, err := p.mailbox.FetchUnseenSince(ctx, since)
	if err != nil {
		p.log.Error("fetching unseen messages", "error", err)
		return
	}

	for _, env := range envelopes {
		p.process(ctx, env)
	}
}

// process fetches, deduplicates, classifies, and emits one message.
// The source message is marked read only after a successful emit, so a
// crash in between causes reprocessing rather than a lost message.
func (p *Poller) process(ctx context.Context, env mail.Envelope) {
	parsed, err := p.mailbox.FetchMessage(ctx, env.UID)
	if err != nil {
		// Likely transient; leave unseen so the next tick retries.
		p.log.Error("fetching message body", "uid", env.UID, "error", err)
		return
	}
	if parsed == nil {
		// Unparseable altogether; mark read to avoid reprocessing forever.
		p.log.Warn("skipping unparseable message", "uid", env.UID)
		p.markSeen(ctx, env.UID)
		return
	}

	id := parsed.Envelope.MessageID
	if id == "" {
		id = fmt.Sprintf("uid-%d", env.UID)
	}

	if p.dedup.Seen(id) {
		// Already handled; still mark read so it drops out of the
		// unseen search.
		p.markSeen(ctx, env.UID)
		return
	}
	p.dedup.Add(id)

	msg := model.InboundMessage{
		MessageID:  id,
		UID:        env.UID,
		Subject:    parsed.Envelope.Subject,
		From:       parsed.Envelope.From,
		To:         parsed.Envelope.To,
		Date:       parsed.Envelope.Date,
		TextBody:   parsed.TextBody,
		HTMLBody:   parsed.HTMLBody,
		InReplyTo:  parsed.InReplyTo,
		References: parsed.References,
	}
	msg.IsReply = IsReply(msg.Subject, msg.InReplyTo, msg.References)
	msg.IsFromOwner = strings.EqualFold(strings.TrimSpace(msg.From), p.owner)
	msg.Classification = Classify(&msg)

	p.mu.Lock()
	var handlers []Handler
	if msg.IsFromOwner {
		handlers = append(handlers, p.onOwner...)
	} else {
		handlers = append(handlers, p.onForward...)
	}
	p.mu.Unlock()

	p.emit(handlers, msg)
	p.markSeen(ctx, env.UID)
}

// emit runs each handler, isolating failures so one handler cannot
// prevent the others from seeing the message.
func (p *Poller) emit(handlers []Handler, msg model.InboundMessage) {
	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					p.log.Error("inbound handler panicked",
						"message_id", msg.MessageID,
						"classification", string(msg.Classification),
						"panic", r,
					)
				}
			}()
			h(msg)
		}()
	}
}

func (p *Poller) markSeen(ctx context.Context, uid uint32) {
	if err := p.mailbox.MarkSeen(ctx, uid); err != nil {
		p.log.Warn("marking message read", "uid", uid, "error", err)
	}
}
