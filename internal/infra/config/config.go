package config

import (
	"fmt"
	"os"
	"strconv"
	"strings" // For LogLevel normalization
	"time"

	"speaker_scheduler/internal/clock"

	"github.com/joho/godotenv"
)

// MaxReminderWindow is the exclusive upper bound for REMINDER_WINDOW: the
// shortest reminder lead.
const MaxReminderWindow = 6 * time.Hour

// AppConfig holds all configuration for the application
type AppConfig struct {
	DatabaseURL string
	LogLevel    string
	Environment string
	Location    *time.Location

	EventName         string
	EventWeekday      time.Weekday
	SlotTimes         []string // recurring times of day, in insertion order
	HorizonWeeks      int
	DigestHorizonDays int
	DigestGroups      int

	CronSpecMaterialize  string
	CronSpecDigest       string
	ReminderPollInterval time.Duration
	ReminderWindow       time.Duration // width of each reminder window; must cover one poll
	JobTimeout           time.Duration

	AdminEmail string
	AppName    string
	AppURL     string

	SMTPHost  string
	SMTPPort  int
	SMTPUser  string
	SMTPPass  string
	FromEmail string

	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string

	TelegramToken      string // optional; enables the operator console
	OperatorTelegramID int64
}

// SMSConfigured reports whether all Twilio credentials are present.
func (c *AppConfig) SMSConfigured() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioFromNumber != ""
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	var err error

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	cfg.LogLevel = strings.ToLower(getenvDefault("LOG_LEVEL", "info"))
	cfg.Environment = strings.ToLower(getenvDefault("ENVIRONMENT", "development"))

	tzName := getenvDefault("LOCAL_TIMEZONE", "Local")
	cfg.Location, err = time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("invalid LOCAL_TIMEZONE %q: %w", tzName, err)
	}

	cfg.EventName = getenvDefault("EVENT_NAME", "Jumuah")
	cfg.EventWeekday, err = clock.ParseWeekday(getenvDefault("EVENT_WEEKDAY", "friday"))
	if err != nil {
		return nil, fmt.Errorf("invalid EVENT_WEEKDAY: %w", err)
	}

	cfg.SlotTimes, err = parseSlotTimes(getenvDefault("SLOT_TIMES", "14:00,14:45"))
	if err != nil {
		return nil, fmt.Errorf("invalid SLOT_TIMES: %w", err)
	}

	if cfg.HorizonWeeks, err = positiveIntEnv("HORIZON_WEEKS", 12); err != nil {
		return nil, err
	}
	if cfg.DigestHorizonDays, err = positiveIntEnv("DIGEST_HORIZON_DAYS", 21); err != nil {
		return nil, err
	}
	if cfg.DigestGroups, err = positiveIntEnv("DIGEST_GROUPS", 3); err != nil {
		return nil, err
	}

	cfg.CronSpecMaterialize = getenvDefault("CRON_SPEC_MATERIALIZE", "0 3 * * *") // Default: 3 AM daily
	cfg.CronSpecDigest = getenvDefault("CRON_SPEC_DIGEST", "0 8 * * 1,3,5")       // Default: 8 AM Mon/Wed/Fri

	if cfg.ReminderPollInterval, err = durationEnv("REMINDER_POLL_INTERVAL", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.ReminderWindow, err = durationEnv("REMINDER_WINDOW", time.Hour); err != nil {
		return nil, err
	}
	// A window narrower than the poll interval lets a slot pass through it unobserved.
	if cfg.ReminderWindow < cfg.ReminderPollInterval {
		return nil, fmt.Errorf("REMINDER_WINDOW (%s) must not be shorter than REMINDER_POLL_INTERVAL (%s)", cfg.ReminderWindow, cfg.ReminderPollInterval)
	}
	// The day-of reminder leads by 6h; a wider window would fire after the event starts.
	if cfg.ReminderWindow >= MaxReminderWindow {
		return nil, fmt.Errorf("REMINDER_WINDOW (%s) must be shorter than %s", cfg.ReminderWindow, MaxReminderWindow)
	}
	if cfg.JobTimeout, err = durationEnv("JOB_TIMEOUT", 2*time.Minute); err != nil {
		return nil, err
	}

	cfg.AdminEmail = getenvDefault("ADMIN_EMAIL", "admin@example.org")
	cfg.AppName = getenvDefault("APP_NAME", "Speaker Scheduling")
	cfg.AppURL = os.Getenv("APP_URL")

	cfg.SMTPHost = os.Getenv("SMTP_HOST")
	if cfg.SMTPPort, err = positiveIntEnv("SMTP_PORT", 587); err != nil {
		return nil, err
	}
	cfg.SMTPUser = os.Getenv("SMTP_USER")
	cfg.SMTPPass = os.Getenv("SMTP_PASS")
	cfg.FromEmail = getenvDefault("FROM_EMAIL", "no-reply@example.org")

	cfg.TwilioAccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	cfg.TwilioAuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	cfg.TwilioFromNumber = os.Getenv("TWILIO_FROM_NUMBER")

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	if operatorIDStr := os.Getenv("OPERATOR_TELEGRAM_ID"); operatorIDStr != "" {
		cfg.OperatorTelegramID, err = strconv.ParseInt(operatorIDStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid OPERATOR_TELEGRAM_ID: %w", err)
		}
	}
	if cfg.TelegramToken != "" && cfg.OperatorTelegramID == 0 {
		return nil, fmt.Errorf("OPERATOR_TELEGRAM_ID is required when TELEGRAM_TOKEN is set")
	}

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func positiveIntEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive, got %d", key, n)
	}
	return n, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive, got %s", key, d)
	}
	return d, nil
}

func parseSlotTimes(raw string) ([]string, error) {
	seen := make(map[string]bool)
	var times []string
	for _, part := range strings.Split(raw, ",") {
		t := strings.TrimSpace(part)
		if t == "" {
			continue
		}
		if _, _, err := clock.ParseTimeOfDay(t); err != nil {
			return nil, err
		}
		if seen[t] {
			return nil, fmt.Errorf("duplicate time %s", t)
		}
		seen[t] = true
		times = append(times, t)
	}
	if len(times) == 0 {
		return nil, fmt.Errorf("at least one time is required")
	}
	return times, nil
}
