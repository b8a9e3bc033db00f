package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nhle/mail-assistant/internal/ai"
	"github.com/nhle/mail-assistant/internal/assistant"
	"github.com/nhle/mail-assistant/internal/credential"
	"github.com/nhle/mail-assistant/internal/gate"
	"github.com/nhle/mail-assistant/internal/inbox"
	"github.com/nhle/mail-assistant/internal/logger"
	"github.com/nhle/mail-assistant/internal/mail"
	"github.com/nhle/mail-assistant/internal/model"
	"github.com/nhle/mail-assistant/internal/queue"
	"github.com/nhle/mail-assistant/internal/store"
	"github.com/nhle/mail-assistant/internal/user"
)

const (
	envIMAPPassword = "MAIL_ASSISTANT_IMAP_PASSWORD"
	envSMTPPassword = "MAIL_ASSISTANT_SMTP_PASSWORD"
	envAPIKey       = "ANTHROPIC_API_KEY"
)

func main() {
	configPath := flag.String("config", model.DefaultConfigPath(), "path to config.yaml")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "mail-assistant: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := model.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", configPath, err)
	}

	log := logger.New(cfg.LogLevel)
	log.Info("starting mail assistant", "config", configPath)

	imapPass, err := credential.GetWithEnv(credential.KeyIMAPPassword, envIMAPPassword)
	if err != nil {
		return fmt.Errorf("imap password: %w", err)
	}
	smtpPass, err := credential.GetWithEnv(credential.KeySMTPPassword, envSMTPPassword)
	if err != nil {
		return fmt.Errorf("smtp password: %w", err)
	}
	// The API key is optional; without it reminders use the static
	// templates and content analysis is disabled.
	apiKey, err := credential.GetWithEnv(credential.KeyAPIKey, envAPIKey)
	if err != nil {
		log.Warn("no API key found, content generation disabled", "error", err)
		apiKey = ""
	}

	dataDir := cfg.Storage.DataDir
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory %s: %w", dataDir, err)
	}

	history, err := store.NewMessageStore(filepath.Join(dataDir, "messages.db"))
	if err != nil {
		return fmt.Errorf("opening message history: %w", err)
	}
	defer history.Close()

	tracking, err := gate.NewTrackingStore(
		filepath.Join(dataDir, "reminder-tracking.json"), 0, log,
	)
	if err != nil {
		return fmt.Errorf("opening tracking store: %w", err)
	}
	defer tracking.Close()

	users, err := user.NewStore(filepath.Join(dataDir, "users.json"))
	if err != nil {
		return fmt.Errorf("opening user store: %w", err)
	}

	var content assistant.ContentProvider
	var analyzer gate.Analyzer
	if apiKey != "" {
		gen := ai.New(apiKey, cfg.AI.Model, cfg.AI.MaxTokens)
		content = gen
		analyzer = assistant.NewContentAnalyzer(gen)
	}

	reminderGate := gate.New(tracking, history, analyzer, log)

	transport := mail.NewSMTPTransport(mail.SMTPConfig{
		Host:     cfg.Mail.SMTPHost,
		Port:     cfg.Mail.SMTPPort,
		Username: cfg.Mail.Username,
		Password: smtpPass,
		TLS:      cfg.Mail.TLS,
	})
	sender := mail.NewSender(transport, mail.BreakerSettings{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		ResetTimeout:     time.Duration(cfg.Breaker.ResetTimeoutSec) * time.Second,
	}, log)

	retryQueue := queue.New(
		sender,
		time.Duration(cfg.Retry.BaseDelaySec)*time.Second,
		cfg.DrainInterval(),
		log,
	)

	mailbox := mail.NewIMAPClient(
		cfg.Mail.IMAPHost,
		cfg.Mail.IMAPPort,
		cfg.Mail.Username,
		imapPass,
		cfg.Mail.TLS,
	)
	poller := inbox.New(
		mailbox,
		cfg.Mail.OwnerAddress,
		cfg.PollInterval(),
		inbox.NewDedupCache(inbox.DefaultDedupCapacity),
		log,
	)

	orch := assistant.New(
		assistant.Config{
			OwnerAddress: cfg.Mail.OwnerAddress,
			OwnerUserID:  cfg.Mail.OwnerUserID,
			MorningTime:  cfg.Schedule.MorningTime,
			EveningTime:  cfg.Schedule.EveningTime,
			MaxAttempts:  cfg.Retry.MaxAttempts,
		},
		users, reminderGate, sender, retryQueue, poller, history, content, log,
	)
	orch.OnCommand(func(ctx context.Context, name string, args []string, _ model.InboundMessage) {
		// Commands beyond pause/resume are logged and ignored.
		handleCommand(ctx, log, users, name, args)
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return orch.Run(ctx)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		log.Info("shutdown complete")
		return nil
	}
	return err
}

// handleCommand applies the admin commands that manage reminder pausing.
// "/pause <userId> [until YYYY-MM-DD]" and "/resume <userId>" update the
// user store; anything else is only logged.
func handleCommand(
	_ context.Context,
	log *slog.Logger,
	users *user.Store,
	name string,
	args []string,
) {
	switch name {
	case "pause":
		if len(args) < 1 {
			log.Warn("pause command missing user id")
			return
		}
		u, ok := users.Get(args[0])
		if !ok {
			log.Warn("pause command for unknown user", "user", args[0])
			return
		}
		u.ReminderPaused = true
		u.ResumeDate = nil
		if len(args) >= 2 {
			if t, err := time.ParseInLocation(model.DateLayout, args[len(args)-1], time.Local); err == nil {
				u.ResumeDate = &t
			}
		}
		if err := users.Upsert(*u); err != nil {
			log.Warn("saving paused user", "user", u.ID, "error", err)
			return
		}
		log.Info("reminders paused", "user", u.ID)

	case "resume":
		if len(args) < 1 {
			log.Warn("resume command missing user id")
			return
		}
		u, ok := users.Get(args[0])
		if !ok {
			log.Warn("resume command for unknown user", "user", args[0])
			return
		}
		u.ReminderPaused = false
		u.ResumeDate = nil
		if err := users.Upsert(*u); err != nil {
			log.Warn("saving resumed user", "user", u.ID, "error", err)
			return
		}
		log.Info("reminders resumed", "user", u.ID)

	default:
		log.Info("unhandled admin command", "command", name, "args", args)
	}
}
