// Package assistant wires the reminder gate, mail transport, retry
// queue, and inbox poller into the scheduled send/receive loop.
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nhle/mail-assistant/internal/ai"
	"github.com/nhle/mail-assistant/internal/gate"
	"github.com/nhle/mail-assistant/internal/inbox"
	"github.com/nhle/mail-assistant/internal/mail"
	"github.com/nhle/mail-assistant/internal/model"
	"github.com/nhle/mail-assistant/internal/queue"
	"github.com/nhle/mail-assistant/internal/store"
	"github.com/nhle/mail-assistant/internal/user"
)

// Sender delivers a message immediately; the breaker-guarded mail.Sender
// implements it.
type Sender interface {
	Send(ctx context.Context, msg *mail.OutgoingMessage) error
}

// ContentProvider generates reminder bodies. A nil provider or any
// provider error falls back to the static templates.
type ContentProvider interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string, opts ai.Options) (string, error)
}

// History records processed messages, serves recent mail as reply
// context for content generation, and supports retention pruning.
type History interface {
	SaveMessage(ctx context.Context, userID string, msg model.InboundMessage) error
	RecentMessages(ctx context.Context, userID string, limit int) ([]store.MessageRecord, error)
	PruneBefore(ctx context.Context, cutoff time.Time) error
}

// replyContextLimit caps how much recent mail is fed to the content
// provider per reminder.
const replyContextLimit = 5

// CommandHandler executes an admin command parsed from an owner email.
// Command execution itself is outside the pipeline; this hook is where
// it plugs in.
type CommandHandler func(ctx context.Context, name string, args []string, msg model.InboundMessage)

// Config holds the orchestrator's scheduling parameters.
type Config struct {
	OwnerAddress string
	OwnerUserID  string

	// Default reminder times for users without their own schedule,
	// as "HH:MM" in local time.
	MorningTime string
	EveningTime string

	MaxAttempts int
	Retention   time.Duration
}

// Orchestrator drives the reminder schedule: on each minute tick it
// consults the gate for every user, sends due reminders through the
// breaker-guarded sender with failures routed to the retry queue, and
// marks records once a message is accepted for delivery.
type Orchestrator struct {
	cfg     Config
	users   *user.Store
	gate    *gate.Gate
	sender  Sender
	queue   *queue.RetryQueue
	poller  *inbox.Poller
	history History
	content ContentProvider
	log     *slog.Logger

	onCommand CommandHandler

	mu           sync.Mutex
	lastSweepDay string

	now func() time.Time
}

// New creates an orchestrator. poller, queue, history, and content may
// be nil in tests that exercise individual triggers.
func New(
	cfg Config,
	users *user.Store,
	g *gate.Gate,
	sender Sender,
	q *queue.RetryQueue,
	poller *inbox.Poller,
	history History,
	content ContentProvider,
	log *slog.Logger,
) *Orchestrator {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Retention <= 0 {
		cfg.Retention = gate.DefaultRetention
	}
	if cfg.MorningTime == "" {
		cfg.MorningTime = "08:00"
	}
	if cfg.EveningTime == "" {
		cfg.EveningTime = "20:00"
	}

	return &Orchestrator{
		cfg:     cfg,
		users:   users,
		gate:    g,
		sender:  sender,
		queue:   q,
		poller:  poller,
		history: history,
		content: content,
		log:     log,
		now:     time.Now,
	}
}

// OnCommand registers the admin-command hook.
func (o *Orchestrator) OnCommand(h CommandHandler) {
	o.onCommand = h
}

// Run starts the queue drain loop, the inbox poller, and the reminder
// tick loop, then blocks until the context is cancelled. On shutdown the
// poller stops first, then the queue performs its final drain.
func (o *Orchestrator) Run(ctx context.Context) error {
	if o.poller != nil {
		o.poller.OnOwnerMessage(o.HandleOwnerMessage)
		o.poller.OnForward(o.HandleForward)
		o.poller.Start(ctx)
	}
	if o.queue != nil {
		o.queue.Start(ctx)
	}

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	o.log.Info("orchestrator running",
		"owner", o.cfg.OwnerAddress,
		"users", len(o.users.Users()),
	)

	for {
		select {
		case <-ctx.Done():
			o.shutdown()
			return ctx.Err()
		case <-ticker.C:
			now := o.now()
			o.ReminderTick(ctx, now)
			o.maybeSweep(ctx, now)
		}
	}
}

// shutdown stops the timers and flushes the queue so an orderly exit
// does not silently drop queued mail.
func (o *Orchestrator) shutdown() {
	if o.poller != nil {
		o.poller.Stop()
	}
	if o.queue != nil {
		// Fresh context: the run context is already cancelled.
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		o.queue.Stop(stopCtx)
	}
	o.log.Info("orchestrator stopped")
}

// ReminderTick fires the morning/evening triggers for every user whose
// schedule matches the current minute.
func (o *Orchestrator) ReminderTick(ctx context.Context, now time.Time) {
	hhmm := now.Format("15:04")

	for _, u := range o.users.Users() {
		if !u.RemindersActive(now) {
			continue
		}

		morning := u.Schedule.MorningTime
		if morning == "" {
			morning = o.cfg.MorningTime
		}
		evening := u.Schedule.EveningTime
		if evening == "" {
			evening = o.cfg.EveningTime
		}

		if hhmm == morning {
			o.TriggerMorning(ctx, u)
		}
		if hhmm == evening {
			o.TriggerEvening(ctx, u)
		}
	}
}

// TriggerMorning sends the morning reminder to u if the gate allows it.
// The record is marked once the message is accepted for delivery: either
// sent immediately or enqueued for retry.
func (o *Orchestrator) TriggerMorning(ctx context.Context, u model.User) {
	if !o.gate.ShouldSendMorning(u.ID) {
		o.log.Debug("morning reminder gated", "user", u.ID)
		return
	}

	body := o.buildContent(ctx, u, "morning")
	msg := &mail.OutgoingMessage{
		To:      u.Email,
		Subject: "Your morning reminder",
		Body:    body,
	}

	o.deliver(ctx, msg)
	o.gate.MarkMorningSent(u.ID)
}

// TriggerEvening runs work-report detection, then sends the evening
// reminder to u if the gate still allows it.
func (o *Orchestrator) TriggerEvening(ctx context.Context, u model.User) {
	if err := o.gate.DetectAndRecordWorkReport(ctx, u.ID); err != nil {
		o.log.Warn("work-report detection failed", "user", u.ID, "error", err)
	}

	if !o.gate.ShouldSendEvening(u.ID) {
		o.log.Debug("evening reminder gated", "user", u.ID)
		return
	}

	body := o.buildContent(ctx, u, "evening")
	msg := &mail.OutgoingMessage{
		To:      u.Email,
		Subject: "Your evening check-in",
		Body:    body,
	}

	o.deliver(ctx, msg)
	o.gate.MarkEveningSent(u.ID)
}

// deliver sends immediately, routing failures to the retry queue. Either
// way the message has been accepted for delivery.
func (o *Orchestrator) deliver(ctx context.Context, msg *mail.OutgoingMessage) {
	err := o.sender.Send(ctx, msg)
	if err == nil {
		o.log.Info("reminder sent", "to", msg.To, "subject", msg.Subject)
		return
	}

	o.log.Warn("immediate send failed, queueing for retry",
		"to", msg.To,
		"error", err,
	)
	if o.queue != nil {
		o.queue.Enqueue(msg, o.cfg.MaxAttempts)
	}
}

// buildContent asks the content provider for a reminder body and falls
// back to a static template on any error or empty result.
func (o *Orchestrator) buildContent(
	ctx context.Context, u model.User, slot string,
) string {
	if o.content == nil {
		return fallbackTemplate(u, slot)
	}

	system := "You are a personal email assistant. Write a short, warm, " +
		"practical reminder email body in plain text. No subject line, " +
		"no signature."
	prompt := fmt.Sprintf(
		"Write the %s reminder for %s. Morning reminders ask about the "+
			"day's plan; evening reminders ask for a brief work summary.",
		slot, displayName(u),
	)
	prompt += o.replyContext(ctx, u.ID)

	text, err := o.content.Generate(ctx, system, prompt, ai.Options{})
	if err != nil || strings.TrimSpace(text) == "" {
		o.log.Warn("content generation failed, using template",
			"user", u.ID,
			"slot", slot,
			"error", err,
		)
		return fallbackTemplate(u, slot)
	}
	return text
}

// replyContext summarizes the user's recent mail for the content
// provider so generated reminders can reference what they already wrote.
func (o *Orchestrator) replyContext(ctx context.Context, userID string) string {
	if o.history == nil {
		return ""
	}

	recent, err := o.history.RecentMessages(ctx, userID, replyContextLimit)
	if err != nil {
		o.log.Debug("reply context unavailable", "user", userID, "error", err)
		return ""
	}
	if len(recent) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n\nTheir recent mail, newest first:\n")
	for _, r := range recent {
		fmt.Fprintf(&b, "- [%s] %s\n", r.Classification, r.Subject)
	}
	return b.String()
}

// HandleOwnerMessage processes classified mail from the owner: it is
// recorded in the history, routed to the admin-command hook when it is a
// command, and fed to the gate's analyzer otherwise.
func (o *Orchestrator) HandleOwnerMessage(msg model.InboundMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	userID := o.resolveUserID(msg.From)

	if o.history != nil {
		if err := o.history.SaveMessage(ctx, userID, msg); err != nil {
			o.log.Error("recording inbound message",
				"message_id", msg.MessageID,
				"error", err,
			)
		}
	}

	switch msg.Classification {
	case model.ClassificationAdminCommand:
		name, args, ok := inbox.ParseCommand(msg.Subject)
		if !ok {
			o.log.Warn("malformed admin command", "subject", msg.Subject)
			return
		}
		o.log.Info("admin command received", "command", name, "args", args)
		if o.onCommand != nil {
			o.onCommand(ctx, name, args, msg)
		}
		return

	case model.ClassificationWorkReport:
		o.gate.MarkWorkReportReceived(userID)
	case model.ClassificationScheduleResponse:
		o.gate.MarkScheduleRequested(userID)
	}

	if err := o.gate.AnalyzeAndUpdate(ctx, userID, msg); err != nil {
		o.log.Warn("content analysis failed",
			"message_id", msg.MessageID,
			"error", err,
		)
	}
}

// HandleForward relays mail from unrecognized senders to the owner.
func (o *Orchestrator) HandleForward(msg model.InboundMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	subject := msg.Subject
	if !strings.HasPrefix(strings.ToLower(subject), "fwd:") {
		subject = "Fwd: " + subject
	}

	var body strings.Builder
	body.WriteString(fmt.Sprintf("From: %s\n", msg.From))
	if !msg.Date.IsZero() {
		body.WriteString(fmt.Sprintf("Date: %s\n", msg.Date.Format(time.RFC1123Z)))
	}
	body.WriteString(fmt.Sprintf("Subject: %s\n\n", msg.Subject))
	body.WriteString(msg.Body())

	o.deliver(ctx, &mail.OutgoingMessage{
		To:      o.cfg.OwnerAddress,
		Subject: subject,
		Body:    body.String(),
	})
}

// resolveUserID maps a sender address to a user record, defaulting to
// the configured owner user.
func (o *Orchestrator) resolveUserID(from string) string {
	if u, ok := o.users.FindByEmail(from); ok {
		return u.ID
	}
	return o.cfg.OwnerUserID
}

// maybeSweep runs the retention sweep once per calendar day.
func (o *Orchestrator) maybeSweep(ctx context.Context, now time.Time) {
	day := now.Format(model.DateLayout)

	o.mu.Lock()
	if o.lastSweepDay == day {
		o.mu.Unlock()
		return
	}
	o.lastSweepDay = day
	o.mu.Unlock()

	if err := o.gate.Sweep(o.cfg.Retention); err != nil {
		o.log.Error("sweeping reminder records", "error", err)
	}
	if o.history != nil {
		cutoff := now.Add(-o.cfg.Retention)
		if err := o.history.PruneBefore(ctx, cutoff); err != nil {
			o.log.Error("pruning message history", "error", err)
		}
	}
}

func fallbackTemplate(u model.User, slot string) string {
	name := displayName(u)
	if slot == "morning" {
		return fmt.Sprintf(
			"Good morning, %s!\n\n"+
				"What does your day look like? Reply with your plan and "+
				"I'll keep track of it.\n",
			name,
		)
	}
	return fmt.Sprintf(
		"Good evening, %s!\n\n"+
			"How did today go? Reply with a short summary of what you "+
			"worked on.\n",
		name,
	)
}

func displayName(u model.User) string {
	if u.Name != "" {
		return u.Name
	}
	return u.ID
}
