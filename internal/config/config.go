package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port           string        `mapstructure:"PORT"`
	Env            string        `mapstructure:"ENV"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32         `mapstructure:"DB_MIN_CONNS"`
	RedisURL       string        `mapstructure:"REDIS_URL"`
	JWTSecret      string        `mapstructure:"JWT_SECRET"`
	JWTTTL         time.Duration `mapstructure:"JWT_TTL"`
	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`

	RateLimitRPS       float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst     int     `mapstructure:"RATE_LIMIT_BURST"`
	AuthRateLimitRPS   float64 `mapstructure:"AUTH_RATE_LIMIT_RPS"`
	AuthRateLimitBurst int     `mapstructure:"AUTH_RATE_LIMIT_BURST"`

	SlotDuration time.Duration `mapstructure:"SLOT_DURATION"`
	Timezone     string        `mapstructure:"TIMEZONE"`

	NotifyWorkers        int           `mapstructure:"NOTIFY_WORKERS"`
	NotifyQueueSize      int           `mapstructure:"NOTIFY_QUEUE_SIZE"`
	NotifyEnqueueTimeout time.Duration `mapstructure:"NOTIFY_ENQUEUE_TIMEOUT"`
	NotifyMaxAttempts    int           `mapstructure:"NOTIFY_MAX_ATTEMPTS"`

	SendGridAPIKey    string `mapstructure:"SENDGRID_API_KEY"`
	SendGridFromEmail string `mapstructure:"SENDGRID_FROM_EMAIL"`
	SendGridFromName  string `mapstructure:"SENDGRID_FROM_NAME"`

	TwilioAccountSID string `mapstructure:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken  string `mapstructure:"TWILIO_AUTH_TOKEN"`
	TwilioFromNumber string `mapstructure:"TWILIO_FROM_NUMBER"`
	SMSCountryCode   string `mapstructure:"SMS_COUNTRY_CODE"`

	OTPTTL time.Duration `mapstructure:"OTP_TTL"`

	ReminderSchedule   string `mapstructure:"REMINDER_SCHEDULE"`
	CompletionSchedule string `mapstructure:"COMPLETION_SCHEDULE"`
}

var keys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "REDIS_URL",
	"JWT_SECRET", "JWT_TTL", "CORS_ORIGINS", "REQUEST_TIMEOUT",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "AUTH_RATE_LIMIT_RPS", "AUTH_RATE_LIMIT_BURST",
	"SLOT_DURATION", "TIMEZONE",
	"NOTIFY_WORKERS", "NOTIFY_QUEUE_SIZE", "NOTIFY_ENQUEUE_TIMEOUT", "NOTIFY_MAX_ATTEMPTS",
	"SENDGRID_API_KEY", "SENDGRID_FROM_EMAIL", "SENDGRID_FROM_NAME",
	"TWILIO_ACCOUNT_SID", "TWILIO_AUTH_TOKEN", "TWILIO_FROM_NUMBER", "SMS_COUNTRY_CODE",
	"OTP_TTL", "REMINDER_SCHEDULE", "COMPLETION_SCHEDULE",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("JWT_TTL", "720h")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("REQUEST_TIMEOUT", "15s")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("AUTH_RATE_LIMIT_RPS", 1)
	v.SetDefault("AUTH_RATE_LIMIT_BURST", 5)
	v.SetDefault("SLOT_DURATION", "30m")
	v.SetDefault("TIMEZONE", "UTC")
	v.SetDefault("NOTIFY_WORKERS", 4)
	v.SetDefault("NOTIFY_QUEUE_SIZE", 256)
	v.SetDefault("NOTIFY_ENQUEUE_TIMEOUT", "100ms")
	v.SetDefault("NOTIFY_MAX_ATTEMPTS", 3)
	v.SetDefault("SENDGRID_FROM_NAME", "Medicall")
	v.SetDefault("SMS_COUNTRY_CODE", "+91")
	v.SetDefault("OTP_TTL", "5m")
	v.SetDefault("REMINDER_SCHEDULE", "0 * * * *")
	v.SetDefault("COMPLETION_SCHEDULE", "*/15 * * * *")

	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// A missing .env file is fine; the environment still applies.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) <= 1 {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = splitList(origins)
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Location resolves TIMEZONE, the single location in which weekdays and
// opening hours are interpreted.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// SendGridEnabled reports whether email delivery credentials are present.
func (c *Config) SendGridEnabled() bool {
	return c.SendGridAPIKey != "" && c.SendGridFromEmail != ""
}

// TwilioEnabled reports whether SMS delivery credentials are present.
func (c *Config) TwilioEnabled() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioFromNumber != ""
}

// Validate checks that the configuration is safe to run. Outside development
// a JWT secret of at least 32 bytes is required.
func (c *Config) Validate() error {
	if !c.IsDev() && len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters when ENV=%q", c.Env)
	}
	if c.JWTTTL <= 0 {
		return fmt.Errorf("JWT_TTL must be positive, got %s", c.JWTTTL)
	}
	if c.SlotDuration < time.Minute || c.SlotDuration%time.Minute != 0 {
		return fmt.Errorf("SLOT_DURATION must be a whole number of minutes, got %s", c.SlotDuration)
	}
	if c.SlotDuration > 24*time.Hour {
		return fmt.Errorf("SLOT_DURATION must not exceed 24h, got %s", c.SlotDuration)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.NotifyWorkers <= 0 {
		return fmt.Errorf("NOTIFY_WORKERS must be positive, got %d", c.NotifyWorkers)
	}
	if c.NotifyQueueSize <= 0 {
		return fmt.Errorf("NOTIFY_QUEUE_SIZE must be positive, got %d", c.NotifyQueueSize)
	}
	if c.NotifyMaxAttempts <= 0 {
		return fmt.Errorf("NOTIFY_MAX_ATTEMPTS must be positive, got %d", c.NotifyMaxAttempts)
	}
	if c.OTPTTL <= 0 {
		return fmt.Errorf("OTP_TTL must be positive, got %s", c.OTPTTL)
	}
	if c.SendGridAPIKey != "" && c.SendGridFromEmail == "" {
		return fmt.Errorf("SENDGRID_FROM_EMAIL is required when SENDGRID_API_KEY is set")
	}
	return nil
}
