// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Ledger backends.
const (
	LedgerSQLite = "sqlite"
	LedgerSheets = "sheets"
)

// Config holds all application configuration.
type Config struct {
	Port           string
	GRPCPort       string
	LogLevel       slog.Level
	SessionTTL     time.Duration
	NotifyInterval time.Duration
	BridgeToken    string
	RestaurantPath string

	Ledger          LedgerConfig
	Agent           AgentConfig
	RateLimit       RateLimitConfig
	ConversationLog ConversationLogConfig
}

// LedgerConfig selects and configures the order ledger.
type LedgerConfig struct {
	Backend         string
	DBPath          string
	SpreadsheetID   string
	SheetTab        string
	CredentialsFile string
}

// AgentConfig configures the chat completion client.
type AgentConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// RateLimitConfig bounds inbound messages per customer.
type RateLimitConfig struct {
	Messages int
	Window   time.Duration
}

// ConversationLogConfig controls JSON conversation logging.
type ConversationLogConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
	MaxSizeMB     int
	MaxBackups    int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		GRPCPort:       getEnv("GRPC_PORT", "9090"),
		LogLevel:       getEnvLevel("LOG_LEVEL", slog.LevelInfo),
		SessionTTL:     getEnvDuration("SESSION_TTL", 6*time.Hour),
		NotifyInterval: getEnvDuration("NOTIFY_INTERVAL", 20*time.Second),
		BridgeToken:    getEnv("BRIDGE_TOKEN", ""),
		RestaurantPath: getEnv("RESTAURANT_CONFIG", "./restaurants/default/restaurant.yaml"),
		Ledger: LedgerConfig{
			Backend:         strings.ToLower(getEnv("LEDGER_BACKEND", LedgerSQLite)),
			DBPath:          getEnv("DB_PATH", "./data/orders.db"),
			SpreadsheetID:   getEnv("SHEETS_SPREADSHEET_ID", ""),
			SheetTab:        getEnv("SHEETS_TAB", "STATUS DO PEDIDO"),
			CredentialsFile: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
		},
		Agent: AgentConfig{
			APIKey:  getEnv("OPENAI_API_KEY", ""),
			Model:   getEnv("OPENAI_MODEL", "gpt-4.1-mini"),
			BaseURL: getEnv("OPENAI_BASE_URL", ""),
			Timeout: getEnvDuration("AGENT_TIMEOUT", 60*time.Second),
		},
		RateLimit: RateLimitConfig{
			Messages: getEnvInt("RATE_LIMIT_MESSAGES", 20),
			Window:   getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		ConversationLog: ConversationLogConfig{
			Enabled:       getEnvBool("CONVERSATION_LOG_ENABLED", true),
			Dir:           getEnv("CONVERSATION_LOG_DIR", "./data/logs/conversations"),
			GlobalEnabled: getEnvBool("CONVERSATION_LOG_GLOBAL_ENABLED", false),
			GlobalPath:    getEnv("CONVERSATION_LOG_GLOBAL_PATH", "./data/logs/conversations/all.ndjson"),
			QueueSize:     queueSize,
			MaxSizeMB:     getEnvInt("CONVERSATION_LOG_MAX_SIZE_MB", 50),
			MaxBackups:    getEnvInt("CONVERSATION_LOG_MAX_BACKUPS", 5),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	switch c.Ledger.Backend {
	case LedgerSQLite:
		if c.Ledger.DBPath == "" {
			return fmt.Errorf("DB_PATH cannot be empty")
		}
	case LedgerSheets:
		if c.Ledger.SpreadsheetID == "" {
			return fmt.Errorf("SHEETS_SPREADSHEET_ID is required when LEDGER_BACKEND=sheets")
		}
	default:
		return fmt.Errorf("LEDGER_BACKEND must be %q or %q, got %q", LedgerSQLite, LedgerSheets, c.Ledger.Backend)
	}
	if c.Agent.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY cannot be empty")
	}
	if c.BridgeToken == "" {
		return fmt.Errorf("BRIDGE_TOKEN cannot be empty")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be > 0")
	}
	if c.NotifyInterval <= 0 {
		return fmt.Errorf("NOTIFY_INTERVAL must be > 0")
	}
	if c.RateLimit.Messages <= 0 || c.RateLimit.Window <= 0 {
		return fmt.Errorf("RATE_LIMIT_MESSAGES and RATE_LIMIT_WINDOW must be > 0")
	}
	if c.ConversationLog.Dir == "" {
		return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty")
	}
	if c.ConversationLog.GlobalPath == "" {
		return fmt.Errorf("CONVERSATION_LOG_GLOBAL_PATH cannot be empty")
	}
	if c.ConversationLog.QueueSize <= 0 {
		return fmt.Errorf("CONVERSATION_LOG_QUEUE_SIZE must be > 0")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func getEnvLevel(key string, fallback slog.Level) slog.Level {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return fallback
	}
	return level
}
