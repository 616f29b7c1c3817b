package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the full application configuration surface.
type Config struct {
	Server    ServerConfig
	MongoDB   MongoDBConfig
	AI        AIConfig
	Matching  MatchingConfig
	WhatsApp  WhatsAppConfig
	Sheets    SheetsConfig
	Reporting ReportingConfig
	LogLevel  string
}

// ServerConfig holds HTTP server related options.
type ServerConfig struct {
	Port string
}

// MongoDBConfig holds settings for MongoDB.
type MongoDBConfig struct {
	URI    string
	DBName string
}

// AIConfig holds provider credentials, the ordered model list and generation controls.
type AIConfig struct {
	GeminiKey         string
	AnthropicKey      string
	Models            []string
	Temperature       float64
	TopK              int
	TopP              float64
	MaxTokens         int
	RequestsPerSecond float64
}

// MatchingConfig tunes the orchestrator, its retry policy and the trigger paths.
type MatchingConfig struct {
	MaxAttempts       int
	BackoffInitial    time.Duration
	BackoffMultiplier float64
	BackoffMax        time.Duration
	CallTimeout       time.Duration
	Budget            time.Duration
	WriteReserve      time.Duration
	// Write* bound the retries of the paired match/batch writes.
	WriteAttempts          int
	WriteBackoffInitial    time.Duration
	WriteBackoffMultiplier float64
	WriteBackoffMax        time.Duration
	DefaultRegion          string
	DefaultLat             float64
	DefaultLng             float64
	AgentName              string
	WatchEnabled           bool
	Concurrency            int
	SweepSchedule          string
	StaleAfter             time.Duration
}

// WhatsAppConfig contains credentials for the Meta WhatsApp Cloud API. Optional.
type WhatsAppConfig struct {
	AccessToken    string
	PhoneNumberID  string
	BaseURL        string
	APIVersion     string
	OperatorNumber string
}

// Enabled reports whether outbound messages can be sent.
func (w WhatsAppConfig) Enabled() bool {
	return w.AccessToken != "" && w.PhoneNumberID != ""
}

// SheetsConfig points at the match ledger spreadsheet. Optional.
type SheetsConfig struct {
	CredentialsPath string
	SpreadsheetID   string
}

// Enabled reports whether the ledger should be written.
func (s SheetsConfig) Enabled() bool {
	return s.CredentialsPath != "" && s.SpreadsheetID != ""
}

// ReportingConfig holds scheduler-related settings.
type ReportingConfig struct {
	CronSchedule string
	Timezone     string
}

// Load reads environment variables (optionally from the provided file) and
// materializes a Config instance.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed loading env file %s: %w", envFile, err)
			}
		}
	} else {
		// Missing .env files are fine when configuration comes from the environment.
		_ = godotenv.Load()
	}

	p := &envParser{}
	cfg := &Config{
		Server: ServerConfig{
			Port: getenvWithDefault("APP_PORT", "8080"),
		},
		MongoDB: MongoDBConfig{
			URI:    getenvWithDefault("MONGODB_URI", "mongodb://localhost:27017"),
			DBName: getenvWithDefault("MONGODB_DB_NAME", "agrimatch"),
		},
		AI: AIConfig{
			GeminiKey:         os.Getenv("GEMINI_API_KEY"),
			AnthropicKey:      os.Getenv("ANTHROPIC_API_KEY"),
			Models:            splitList(getenvWithDefault("MATCH_MODELS", "gemini-2.0-flash,gemini-1.5-flash")),
			Temperature:       p.getFloat("AI_TEMPERATURE", 0.3),
			TopK:              p.getInt("AI_TOP_K", 40),
			TopP:              p.getFloat("AI_TOP_P", 0.95),
			MaxTokens:         p.getInt("AI_MAX_TOKENS", 8192),
			RequestsPerSecond: p.getFloat("AI_REQUESTS_PER_SECOND", 2),
		},
		Matching: MatchingConfig{
			MaxAttempts:            p.getInt("MATCH_MAX_ATTEMPTS", 3),
			BackoffInitial:         p.getDuration("MATCH_BACKOFF_INITIAL", time.Second),
			BackoffMultiplier:      p.getFloat("MATCH_BACKOFF_MULTIPLIER", 2),
			BackoffMax:             p.getDuration("MATCH_BACKOFF_MAX", 8*time.Second),
			CallTimeout:            p.getDuration("MATCH_CALL_TIMEOUT", 30*time.Second),
			Budget:                 p.getDuration("MATCH_BUDGET", 110*time.Second),
			WriteReserve:           p.getDuration("MATCH_WRITE_RESERVE", 10*time.Second),
			WriteAttempts:          p.getInt("MATCH_WRITE_ATTEMPTS", 3),
			WriteBackoffInitial:    p.getDuration("MATCH_WRITE_BACKOFF_INITIAL", 200*time.Millisecond),
			WriteBackoffMultiplier: p.getFloat("MATCH_WRITE_BACKOFF_MULTIPLIER", 2),
			WriteBackoffMax:        p.getDuration("MATCH_WRITE_BACKOFF_MAX", 2*time.Second),
			DefaultRegion:          getenvWithDefault("DEFAULT_REGION", "Punjab"),
			DefaultLat:             p.getFloat("DEFAULT_ORIGIN_LAT", 30.9010),
			DefaultLng:             p.getFloat("DEFAULT_ORIGIN_LNG", 75.8573),
			AgentName:              getenvWithDefault("AGENT_NAME", "ECOX Punjab Agent v1.0"),
			WatchEnabled:           p.getBool("MATCH_WATCH_ENABLED", true),
			Concurrency:            p.getInt("MATCH_CONCURRENCY", 4),
			SweepSchedule:          getenvWithDefault("MATCH_SWEEP_SCHEDULE", "@every 5m"),
			StaleAfter:             p.getDuration("MATCH_STALE_AFTER", 5*time.Minute),
		},
		WhatsApp: WhatsAppConfig{
			AccessToken:    os.Getenv("WHATSAPP_TOKEN"),
			PhoneNumberID:  os.Getenv("WHATSAPP_PHONE_NUMBER_ID"),
			BaseURL:        getenvWithDefault("WHATSAPP_BASE_URL", "https://graph.facebook.com"),
			APIVersion:     getenvWithDefault("WHATSAPP_API_VERSION", "v20.0"),
			OperatorNumber: os.Getenv("WHATSAPP_OPERATOR_NUMBER"),
		},
		Sheets: SheetsConfig{
			CredentialsPath: os.Getenv("GOOGLE_SHEETS_CREDENTIALS_PATH"),
			SpreadsheetID:   os.Getenv("GOOGLE_SHEET_LEDGER_ID"),
		},
		Reporting: ReportingConfig{
			CronSchedule: getenvWithDefault("REPORT_CRON_SCHEDULE", "0 20 * * *"),
			Timezone:     getenvWithDefault("TIMEZONE", "Asia/Kolkata"),
		},
		LogLevel: getenvWithDefault("LOG_LEVEL", "info"),
	}

	if p.err != nil {
		return nil, p.err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures that required configuration fields are populated.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	if c.Server.Port == "" {
		return errors.New("APP_PORT must be provided")
	}
	if c.MongoDB.URI == "" || c.MongoDB.DBName == "" {
		return errors.New("MONGODB_URI and MONGODB_DB_NAME must be provided")
	}

	if c.AI.GeminiKey == "" && c.AI.AnthropicKey == "" {
		return errors.New("GEMINI_API_KEY or ANTHROPIC_API_KEY must be provided")
	}
	if len(c.AI.Models) == 0 {
		return errors.New("MATCH_MODELS must list at least one model")
	}
	for _, model := range c.AI.Models {
		switch ProviderFor(model) {
		case ProviderGemini:
			if c.AI.GeminiKey == "" {
				return fmt.Errorf("model %s requires GEMINI_API_KEY", model)
			}
		case ProviderAnthropic:
			if c.AI.AnthropicKey == "" {
				return fmt.Errorf("model %s requires ANTHROPIC_API_KEY", model)
			}
		default:
			return fmt.Errorf("model %s has no known provider", model)
		}
	}

	switch {
	case c.Matching.MaxAttempts < 1:
		return errors.New("MATCH_MAX_ATTEMPTS must be at least 1")
	case c.Matching.BackoffMultiplier < 1:
		return errors.New("MATCH_BACKOFF_MULTIPLIER must be at least 1")
	case c.Matching.WriteAttempts < 1:
		return errors.New("MATCH_WRITE_ATTEMPTS must be at least 1")
	case c.Matching.WriteBackoffMultiplier < 1:
		return errors.New("MATCH_WRITE_BACKOFF_MULTIPLIER must be at least 1")
	case c.Matching.Budget <= c.Matching.WriteReserve:
		return errors.New("MATCH_BUDGET must exceed MATCH_WRITE_RESERVE")
	case c.Matching.Concurrency < 1:
		return errors.New("MATCH_CONCURRENCY must be at least 1")
	case c.Matching.DefaultRegion == "":
		return errors.New("DEFAULT_REGION must not be empty")
	}

	if c.Reporting.CronSchedule == "" {
		return errors.New("REPORT_CRON_SCHEDULE must be provided")
	}
	if _, err := time.LoadLocation(c.Reporting.Timezone); err != nil {
		return fmt.Errorf("TIMEZONE %q: %w", c.Reporting.Timezone, err)
	}

	return nil
}

// Provider names the backend serving a model identifier.
type Provider string

const (
	ProviderGemini    Provider = "gemini"
	ProviderAnthropic Provider = "claude"
	ProviderUnknown   Provider = ""
)

// ProviderFor maps a model identifier to its provider by prefix.
func ProviderFor(model string) Provider {
	m := strings.ToLower(strings.TrimSpace(model))
	switch {
	case strings.HasPrefix(m, string(ProviderGemini)):
		return ProviderGemini
	case strings.HasPrefix(m, string(ProviderAnthropic)):
		return ProviderAnthropic
	}
	return ProviderUnknown
}

func getenvWithDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// envParser reads typed values and keeps the first parse failure.
type envParser struct {
	err error
}

func (p *envParser) fail(key, value string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s=%q: %w", key, value, err)
	}
}

func (p *envParser) getInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.fail(key, raw, err)
		return fallback
	}
	return v
}

func (p *envParser) getFloat(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.fail(key, raw, err)
		return fallback
	}
	return v
}

func (p *envParser) getDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		p.fail(key, raw, err)
		return fallback
	}
	return v
}

func (p *envParser) getBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		p.fail(key, raw, err)
		return fallback
	}
	return v
}
