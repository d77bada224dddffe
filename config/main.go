// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderGroq   = "groq"
)

type Config struct {
	Port       string
	Production bool

	TelegramBotToken string
	TelegramDebug    bool

	YouTubeAPIKey string

	ModelProvider   string
	OpenAISecretKey string
	OpenAIModel     string
	OpenAIBaseURL   string
	GeminiSecretKey string
	GeminiModel     string
	GroqSecretKey   string
	GroqModel       string

	// Optional. Voice notes are ignored without it.
	DeepgramAPIKey string

	Postgres PostgresConfig

	SessionIdleTTL     time.Duration
	GenerationTimeout  time.Duration
	LookupTimeout      time.Duration
	TranslationTimeout time.Duration
	LookupConcurrency  int
	RepairAttempts     int
}

// PostgresConfig is optional; the plan archive is disabled when Host is empty.
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

func (p PostgresConfig) Enabled() bool {
	return p.Host != ""
}

// Load reads a .env file if present, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

func FromEnv() (*Config, error) {
	cfg := &Config{
		Port:       getEnv("PORT", "80"),
		Production: os.Getenv("PRODUCTION") != "",

		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramDebug:    getEnvBool("TELEGRAM_DEBUG", false),

		YouTubeAPIKey: os.Getenv("YOUTUBE_API_KEY"),

		ModelProvider:   strings.ToLower(getEnv("MODEL_PROVIDER", ProviderOpenAI)),
		OpenAISecretKey: os.Getenv("OPENAI_SECRET_KEY"),
		OpenAIModel:     getEnv("OPENAI_MODEL", "gpt-4o"),
		OpenAIBaseURL:   os.Getenv("OPENAI_BASE_URL"),
		GeminiSecretKey: os.Getenv("GEMINI_SECRET_KEY"),
		GeminiModel:     getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		GroqSecretKey:   os.Getenv("GROQ_SECRET_KEY"),
		GroqModel:       getEnv("GROQ_MODEL", "moonshotai/kimi-k2-instruct"),

		DeepgramAPIKey: os.Getenv("DEEPGRAM_API_KEY"),

		Postgres: PostgresConfig{
			Host:     os.Getenv("POSTGRES_DB_HOST"),
			Port:     getEnv("POSTGRES_DB_PORT", "5432"),
			User:     os.Getenv("POSTGRES_DB_USER"),
			Password: os.Getenv("POSTGRES_DB_PASS"),
			Name:     os.Getenv("POSTGRES_DB_NAME"),
		},

		SessionIdleTTL:     getEnvDuration("SESSION_IDLE_TTL", 0),
		GenerationTimeout:  getEnvDuration("GENERATION_TIMEOUT", 90*time.Second),
		LookupTimeout:      getEnvDuration("LOOKUP_TIMEOUT", 10*time.Second),
		TranslationTimeout: getEnvDuration("TRANSLATION_TIMEOUT", 20*time.Second),
		LookupConcurrency:  getEnvInt("LOOKUP_CONCURRENCY", 4),
		RepairAttempts:     getEnvInt("WORKOUT_REPAIR_ATTEMPTS", 0),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate rejects a configuration that is missing a required credential.
func (c *Config) Validate() error {
	if c.TelegramBotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN must be set")
	}
	if c.YouTubeAPIKey == "" {
		return fmt.Errorf("YOUTUBE_API_KEY must be set")
	}

	switch c.ModelProvider {
	case ProviderOpenAI:
		if c.OpenAISecretKey == "" {
			return fmt.Errorf("OPENAI_SECRET_KEY must be set when MODEL_PROVIDER=%s", c.ModelProvider)
		}
	case ProviderGemini:
		if c.GeminiSecretKey == "" {
			return fmt.Errorf("GEMINI_SECRET_KEY must be set when MODEL_PROVIDER=%s", c.ModelProvider)
		}
	case ProviderGroq:
		if c.GroqSecretKey == "" {
			return fmt.Errorf("GROQ_SECRET_KEY must be set when MODEL_PROVIDER=%s", c.ModelProvider)
		}
	default:
		return fmt.Errorf("unknown MODEL_PROVIDER %q", c.ModelProvider)
	}

	if c.LookupConcurrency <= 0 {
		return fmt.Errorf("LOOKUP_CONCURRENCY must be > 0")
	}
	if c.RepairAttempts < 0 {
		return fmt.Errorf("WORKOUT_REPAIR_ATTEMPTS must be >= 0")
	}
	if c.SessionIdleTTL < 0 {
		return fmt.Errorf("SESSION_IDLE_TTL must be >= 0")
	}
	if c.Postgres.Enabled() && (c.Postgres.User == "" || c.Postgres.Name == "") {
		return fmt.Errorf("POSTGRES_DB_USER and POSTGRES_DB_NAME must be set when POSTGRES_DB_HOST is set")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
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
