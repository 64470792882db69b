package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration values.
type Config struct {
	BotToken    string
	StaffChatID int64
	PublicURL   string
	Port        string

	WebAppURL     string
	MenuURL       string
	BookingAPIURL string
	PendingAPIURL string

	Establishments []string
	PhonePrefix    string
	PhoneDigits    int

	SessionTTL        time.Duration
	SubmitTimeout     time.Duration
	SubmitMaxAttempts int
	PendingTTL        time.Duration

	// Redis configuration. An empty address keeps sessions and pending
	// selections in memory.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JournalFile       string
	AllowedOrigins    []string
	MaxRequestsPerMin int

	Env      string
	LogLevel string
}

// DefaultEstablishments are offered when ESTABLISHMENTS is not set.
var DefaultEstablishments = []string{"вул. Антоновича, 157", "пр-т. Тичини, 8"}

// Load reads .env when present, then the environment and an optional
// config.yaml. Missing required values are reported together.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("MENU_URL", "https://gustouapp.com/menu")
	v.SetDefault("PHONE_PREFIX", "380")
	v.SetDefault("PHONE_DIGITS", 12)
	v.SetDefault("SESSION_TTL", "30m")
	v.SetDefault("SUBMIT_TIMEOUT", "10s")
	v.SetDefault("SUBMIT_MAX_ATTEMPTS", 3)
	v.SetDefault("PENDING_TTL", "1h")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("ALLOWED_ORIGINS", "*")
	v.SetDefault("MAX_REQUESTS_PER_MIN", 100)
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		BotToken:          first(v, "BOT_TOKEN", "TELEGRAM_BOT_TOKEN"),
		PublicURL:         strings.TrimRight(first(v, "PUBLIC_URL", "WEBHOOK_URL"), "/"),
		Port:              v.GetString("PORT"),
		WebAppURL:         v.GetString("WEB_APP_URL"),
		MenuURL:           v.GetString("MENU_URL"),
		BookingAPIURL:     first(v, "BOOKING_API_URL", "API_URL"),
		PendingAPIURL:     v.GetString("PENDING_API_URL"),
		Establishments:    splitList(v.GetString("ESTABLISHMENTS"), ";"),
		PhonePrefix:       v.GetString("PHONE_PREFIX"),
		PhoneDigits:       v.GetInt("PHONE_DIGITS"),
		SessionTTL:        v.GetDuration("SESSION_TTL"),
		SubmitTimeout:     v.GetDuration("SUBMIT_TIMEOUT"),
		SubmitMaxAttempts: v.GetInt("SUBMIT_MAX_ATTEMPTS"),
		PendingTTL:        v.GetDuration("PENDING_TTL"),
		RedisAddr:         v.GetString("REDIS_ADDR"),
		RedisPassword:     v.GetString("REDIS_PASSWORD"),
		RedisDB:           v.GetInt("REDIS_DB"),
		JournalFile:       v.GetString("JOURNAL_FILE"),
		AllowedOrigins:    splitList(v.GetString("ALLOWED_ORIGINS"), ","),
		MaxRequestsPerMin: v.GetInt("MAX_REQUESTS_PER_MIN"),
		Env:               v.GetString("ENV"),
		LogLevel:          v.GetString("LOG_LEVEL"),
	}
	if len(cfg.Establishments) == 0 {
		cfg.Establishments = append([]string(nil), DefaultEstablishments...)
	}

	var problems []string
	if cfg.BotToken == "" {
		problems = append(problems, "BOT_TOKEN is required")
	}
	staff := first(v, "STAFF_CHAT_ID", "GROUP_CHAT_ID", "ADMIN_CHAT_ID")
	if staff == "" {
		problems = append(problems, "STAFF_CHAT_ID is required")
	} else if id, err := strconv.ParseInt(staff, 10, 64); err != nil {
		problems = append(problems, "STAFF_CHAT_ID must be an integer chat id")
	} else {
		cfg.StaffChatID = id
	}
	if cfg.WebAppURL == "" {
		problems = append(problems, "WEB_APP_URL is required")
	}
	if cfg.PhoneDigits <= len(cfg.PhonePrefix) {
		problems = append(problems, "PHONE_DIGITS must exceed the length of PHONE_PREFIX")
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return cfg, nil
}

// Webhook reports whether updates arrive by webhook rather than polling.
func (c *Config) Webhook() bool {
	return c.PublicURL != ""
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func first(v *viper.Viper, keys ...string) string {
	for _, k := range keys {
		if s := strings.TrimSpace(v.GetString(k)); s != "" {
			return s
		}
	}
	return ""
}

func splitList(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
