package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	alarms "solar-dashboard/internal/alarms/domain"
)

const (
	StoreFile     = "file"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config is the process configuration.
type Config struct {
	HTTPAddr    string `yaml:"http_addr"`
	DataDir     string `yaml:"data_dir"`
	StoreDriver string `yaml:"store_driver"`
	DatabaseURL string `yaml:"database_url"`
	LogDebug    bool   `yaml:"log_debug"`

	Auth       AuthConfig         `yaml:"auth"`
	Ingest     IngestConfig       `yaml:"ingest"`
	Forecast   ForecastConfig     `yaml:"forecast"`
	SMTP       SMTPConfig         `yaml:"smtp"`
	Alerts     AlertsConfig       `yaml:"alerts"`
	Kafka      KafkaConfig        `yaml:"kafka"`
	AlarmRules []alarms.AlarmRule `yaml:"alarm_rules"`
}

type AuthConfig struct {
	DBPath      string        `yaml:"db_path"`
	JWTSecret   string        `yaml:"jwt_secret"`
	TokenTTL    time.Duration `yaml:"token_ttl"`
	DefaultRole string        `yaml:"default_role"`
}

type IngestConfig struct {
	HMACSecret          string        `yaml:"hmac_secret"`
	MaxSkew             time.Duration `yaml:"max_skew"`
	HistoryDefaultLimit int           `yaml:"history_default_limit"`
}

type ForecastConfig struct {
	CSVPath       string `yaml:"csv_path"`
	MinDaySamples int    `yaml:"min_day_samples"`
}

type SMTPConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	User string `yaml:"user"`
	Pass string `yaml:"pass"`
	From string `yaml:"from"`
}

// Enabled reports whether an SMTP relay is configured.
func (c SMTPConfig) Enabled() bool {
	return c.Host != ""
}

type AlertsConfig struct {
	To           []string      `yaml:"to"`
	Cooldown     time.Duration `yaml:"cooldown"`
	WebhookURL   string        `yaml:"webhook_url"`
	DashboardURL string        `yaml:"dashboard_url"`
	Escalation   time.Duration `yaml:"escalation"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// Enabled reports whether event forwarding is configured.
func (c KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

// Load reads configuration from the environment and, when DASHBOARD_CONFIG is
// set, overlays the named YAML file.
func Load() (Config, error) {
	dataDir := getenvDefault("DATA_DIR", "data")
	cfg := Config{
		HTTPAddr:    getenvDefault("HTTP_ADDR", ":8080"),
		DataDir:     dataDir,
		StoreDriver: getenvDefault("STORE_DRIVER", StoreFile),
		DatabaseURL: getenvDefault("DATABASE_URL", ""),
		LogDebug:    getenvBool("LOG_DEBUG", false),
		Auth: AuthConfig{
			DBPath:      getenvDefault("AUTH_DB_PATH", filepath.Join(dataDir, "auth.db")),
			JWTSecret:   getenvDefault("AUTH_JWT_SECRET", ""),
			TokenTTL:    getenvDuration("AUTH_TOKEN_TTL", 12*time.Hour),
			DefaultRole: getenvDefault("AUTH_DEFAULT_ROLE", "viewer"),
		},
		Ingest: IngestConfig{
			HMACSecret:          getenvDefault("INGEST_HMAC_SECRET", ""),
			MaxSkew:             time.Duration(getenvIntDefault("INGEST_MAX_SKEW_SECONDS", 300)) * time.Second,
			HistoryDefaultLimit: getenvIntDefault("HISTORY_DEFAULT_LIMIT", 1000),
		},
		Forecast: ForecastConfig{
			CSVPath:       getenvDefault("FORECAST_CSV", ""),
			MinDaySamples: getenvIntDefault("FORECAST_MIN_DAY_SAMPLES", 20),
		},
		SMTP: SMTPConfig{
			Host: getenvDefault("SMTP_HOST", ""),
			Port: getenvIntDefault("SMTP_PORT", 587),
			User: getenvDefault("SMTP_USER", ""),
			Pass: getenvDefault("SMTP_PASS", ""),
			From: getenvDefault("ALERT_FROM", ""),
		},
		Alerts: AlertsConfig{
			To:           splitCSV(getenvDefault("ALERT_TO", "")),
			Cooldown:     getenvDuration("ALERT_COOLDOWN", 30*time.Minute),
			WebhookURL:   getenvDefault("ALERT_WEBHOOK_URL", ""),
			DashboardURL: getenvDefault("ALERT_DASHBOARD_URL", ""),
			Escalation:   getenvDuration("ALERT_ESCALATION_AFTER", 0),
		},
		Kafka: KafkaConfig{
			Brokers: splitCSV(getenvDefault("KAFKA_BROKERS", "")),
			Topic:   getenvDefault("KAFKA_TOPIC", "solar.telemetry"),
		},
	}

	if path := os.Getenv("DASHBOARD_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if cfg.SMTP.From == "" {
		cfg.SMTP.From = cfg.SMTP.User
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	switch c.StoreDriver {
	case StoreFile:
		if c.DataDir == "" {
			return errors.New("config: DATA_DIR required for file store")
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL required for postgres store")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("config: unknown store driver %q", c.StoreDriver)
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("config: AUTH_JWT_SECRET is required")
	}
	if c.Ingest.HistoryDefaultLimit <= 0 {
		return errors.New("config: history default limit must be positive")
	}
	seen := make(map[string]struct{}, len(c.AlarmRules))
	for _, rule := range c.AlarmRules {
		if err := rule.Validate(); err != nil {
			return fmt.Errorf("config: alarm rule %q: %w", rule.ID, err)
		}
		if _, ok := seen[rule.ID]; ok {
			return fmt.Errorf("config: duplicate alarm rule %q", rule.ID)
		}
		seen[rule.ID] = struct{}{}
	}
	return nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	var result []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}
