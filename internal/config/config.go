package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config keeps runtime settings for the planner.
type Config struct {
	TelegramToken    string        `yaml:"telegram_token"`
	DatabaseURL      string        `yaml:"database_url"`
	Timezone         string        `yaml:"timezone"`
	TickInterval     time.Duration `yaml:"tick_interval"`
	ViewTTL          time.Duration `yaml:"view_ttl"`
	DigestAt         string        `yaml:"digest_at"`
	RemindersEnabled bool          `yaml:"reminders_enabled"`
	LogLevel         string        `yaml:"log_level"`
	LogFormat        string        `yaml:"log_format"`
	LogFile          string        `yaml:"log_file"`
	MetricsAddr      string        `yaml:"metrics_addr"`

	location *time.Location
}

func defaults() Config {
	return Config{
		DatabaseURL:      "task_planner.db",
		TickInterval:     time.Second,
		ViewTTL:          15 * time.Minute,
		DigestAt:         "00:00",
		RemindersEnabled: true,
		LogLevel:         "info",
		LogFormat:        "console",
	}
}

// Load reads configuration from an optional YAML file (CONFIG_FILE), an
// optional .env file and environment variables, in increasing priority.
func Load() (Config, error) {
	cfg := defaults()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return cfg, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, cfg.finish()
}

func (c *Config) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config file %q: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.TelegramToken, "TELEGRAM_TOKEN")
	setString(&c.DatabaseURL, "DATABASE_URL")
	setString(&c.Timezone, "TIMEZONE")
	setString(&c.DigestAt, "DIGEST_AT")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.LogFormat, "LOG_FORMAT")
	setString(&c.LogFile, "LOG_FILE")
	setString(&c.MetricsAddr, "METRICS_ADDR")

	if err := setDuration(&c.TickInterval, "TICK_INTERVAL"); err != nil {
		return err
	}
	if err := setDuration(&c.ViewTTL, "VIEW_TTL"); err != nil {
		return err
	}
	if raw := strings.TrimSpace(os.Getenv("REMINDERS_ENABLED")); raw != "" {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("REMINDERS_ENABLED: %w", err)
		}
		c.RemindersEnabled = enabled
	}
	return nil
}

func (c *Config) finish() error {
	if c.DatabaseURL == "" {
		c.DatabaseURL = "task_planner.db"
	}
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	if c.ViewTTL <= 0 {
		c.ViewTTL = 15 * time.Minute
	}

	c.location = time.Local
	if c.Timezone != "" {
		loc, err := time.LoadLocation(c.Timezone)
		if err != nil {
			return fmt.Errorf("TIMEZONE: %w", err)
		}
		c.location = loc
	}

	if _, err := time.Parse("15:04", c.DigestAt); err != nil {
		return fmt.Errorf("DIGEST_AT %q: expected HH:MM", c.DigestAt)
	}

	if c.TelegramToken == "" {
		return fmt.Errorf("TELEGRAM_TOKEN is required")
	}
	return nil
}

// Location is the zone used for every calendar computation.
func (c Config) Location() *time.Location {
	if c.location == nil {
		return time.Local
	}
	return c.location
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}
