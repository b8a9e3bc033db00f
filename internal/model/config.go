package model

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// MailConfig holds the IMAP/SMTP server settings and the owner identity.
// Passwords are not stored here; they come from the credential store.
type MailConfig struct {
	IMAPHost string `mapstructure:"imap_host" yaml:"imap_host"`
	IMAPPort string `mapstructure:"imap_port" yaml:"imap_port"`
	SMTPHost string `mapstructure:"smtp_host" yaml:"smtp_host"`
	SMTPPort string `mapstructure:"smtp_port" yaml:"smtp_port"`
	Username string `mapstructure:"username" yaml:"username"`
	TLS      bool   `mapstructure:"tls" yaml:"tls"`

	// OwnerAddress is the address whose mail drives the assistant.
	// Mail from anyone else is forwarded rather than processed.
	OwnerAddress string `mapstructure:"owner_address" yaml:"owner_address"`

	// OwnerUserID is the user record the owner's mail is attributed to.
	OwnerUserID string `mapstructure:"owner_user_id" yaml:"owner_user_id"`
}

// ScheduleConfig holds the timer intervals and default reminder times.
type ScheduleConfig struct {
	MorningTime      string `mapstructure:"morning_time" yaml:"morning_time"`
	EveningTime      string `mapstructure:"evening_time" yaml:"evening_time"`
	PollIntervalSec  int    `mapstructure:"poll_interval_sec" yaml:"poll_interval_sec"`
	DrainIntervalSec int    `mapstructure:"drain_interval_sec" yaml:"drain_interval_sec"`
}

// RetryConfig controls the outbound retry queue.
type RetryConfig struct {
	MaxAttempts  int `mapstructure:"max_attempts" yaml:"max_attempts"`
	BaseDelaySec int `mapstructure:"base_delay_sec" yaml:"base_delay_sec"`
}

// BreakerConfig controls the circuit breaker guarding the mail transport.
type BreakerConfig struct {
	FailureThreshold int `mapstructure:"failure_threshold" yaml:"failure_threshold"`
	ResetTimeoutSec  int `mapstructure:"reset_timeout_sec" yaml:"reset_timeout_sec"`
}

// AIConfig holds settings for the reminder content generator.
type AIConfig struct {
	Model     string `mapstructure:"model" yaml:"model"`
	MaxTokens int    `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// StorageConfig locates the persisted state files.
type StorageConfig struct {
	// DataDir holds reminder-tracking.json, users.json, and the
	// message history database.
	DataDir string `mapstructure:"data_dir" yaml:"data_dir"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Mail     MailConfig     `mapstructure:"mail" yaml:"mail"`
	Schedule ScheduleConfig `mapstructure:"schedule" yaml:"schedule"`
	Retry    RetryConfig    `mapstructure:"retry" yaml:"retry"`
	Breaker  BreakerConfig  `mapstructure:"breaker" yaml:"breaker"`
	AI       AIConfig       `mapstructure:"ai" yaml:"ai"`
	Storage  StorageConfig  `mapstructure:"storage" yaml:"storage"`
	LogLevel string         `mapstructure:"log_level" yaml:"log_level"`
}

// PollInterval returns the inbox poll interval as a duration.
func (c *AppConfig) PollInterval() time.Duration {
	return time.Duration(c.Schedule.PollIntervalSec) * time.Second
}

// DrainInterval returns the retry queue drain interval as a duration.
func (c *AppConfig) DrainInterval() time.Duration {
	return time.Duration(c.Schedule.DrainIntervalSec) * time.Second
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/mailassistant/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "mailassistant", "config.yaml")
}

// defaultDataDir returns the default directory for persisted state.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "data")
	}
	return filepath.Join(home, ".local", "share", "mailassistant")
}

// defaultAppConfig returns a sensible default configuration. Mail server
// settings have no defaults; they must be configured explicitly.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		Mail: MailConfig{
			IMAPPort: "993",
			SMTPPort: "465",
			TLS:      true,
		},
		Schedule: ScheduleConfig{
			MorningTime:      "08:00",
			EveningTime:      "20:00",
			PollIntervalSec:  30,
			DrainIntervalSec: 60,
		},
		Retry: RetryConfig{
			MaxAttempts:  3,
			BaseDelaySec: 30,
		},
		Breaker: BreakerConfig{
			FailureThreshold: 3,
			ResetTimeoutSec:  60,
		},
		AI: AIConfig{
			Model:     "claude-sonnet-4-20250514",
			MaxTokens: 1024,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		LogLevel: "info",
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Set defaults so missing keys resolve to sensible values.
	v.SetDefault("mail.imap_port", "993")
	v.SetDefault("mail.smtp_port", "465")
	v.SetDefault("mail.tls", true)
	v.SetDefault("schedule.morning_time", "08:00")
	v.SetDefault("schedule.evening_time", "20:00")
	v.SetDefault("schedule.poll_interval_sec", 30)
	v.SetDefault("schedule.drain_interval_sec", 60)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay_sec", 30)
	v.SetDefault("breaker.failure_threshold", 3)
	v.SetDefault("breaker.reset_timeout_sec", 60)
	v.SetDefault("ai.model", "claude-sonnet-4-20250514")
	v.SetDefault("ai.max_tokens", 1024)
	v.SetDefault("storage.data_dir", defaultDataDir())
	v.SetDefault("log_level", "info")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return defaultAppConfig(), nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaultAppConfig(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks that the settings required at startup are present.
func (c *AppConfig) Validate() error {
	if c.Mail.IMAPHost == "" {
		return fmt.Errorf("mail.imap_host is required")
	}
	if c.Mail.SMTPHost == "" {
		return fmt.Errorf("mail.smtp_host is required")
	}
	if c.Mail.Username == "" {
		return fmt.Errorf("mail.username is required")
	}
	if c.Mail.OwnerAddress == "" {
		return fmt.Errorf("mail.owner_address is required")
	}
	if c.Mail.OwnerUserID == "" {
		return fmt.Errorf("mail.owner_user_id is required")
	}
	return nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("mail", cfg.Mail)
	v.Set("schedule", cfg.Schedule)
	v.Set("retry", cfg.Retry)
	v.Set("breaker", cfg.Breaker)
	v.Set("ai", cfg.AI)
	v.Set("storage", cfg.Storage)
	v.Set("log_level", cfg.LogLevel)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
