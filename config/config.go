package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	LLMProvider    string `env:"LLM_PROVIDER" envDefault:"gemini"` // gemini, openai, ollama, anthropic
	LLMModel       string `env:"LLM_MODEL"`
	LLMBaseURL     string `env:"LLM_BASE_URL"`
	GeminiKey      string `env:"GEMINI_API_KEY"`
	OpenAIKey      string `env:"OPENAI_API_KEY"`
	AnthropicKey   string `env:"ANTHROPIC_API_KEY"`    // API key (X-Api-Key header)
	AnthropicToken string `env:"ANTHROPIC_AUTH_TOKEN"` // OAuth token (Authorization: Bearer header)
	OllamaBaseURL  string `env:"OLLAMA_BASE_URL" envDefault:"http://localhost:11434/v1"`

	EmbeddingProvider string `env:"EMBEDDING_PROVIDER" envDefault:"local"` // local, openai, ollama, gemini
	EmbeddingModel    string `env:"EMBEDDING_MODEL"`

	DatabasePath string `env:"DATABASE_PATH" envDefault:"./copilot.db"`
	MemoryPath   string `env:"MEMORY_PATH" envDefault:"./memory"`
	StorageURL   string `env:"STORAGE_URL" envDefault:"file://./uploads"`

	MaxContextTokens  int           `env:"MAX_CONTEXT_TOKENS" envDefault:"100000"`
	MaxToolIterations int           `env:"MAX_TOOL_ITERATIONS" envDefault:"5"`
	HistoryLimit      int           `env:"HISTORY_LIMIT" envDefault:"20"`
	AgentTimeout      time.Duration `env:"AGENT_TIMEOUT" envDefault:"2m"`

	DiscordToken     string `env:"DISCORD_BOT_TOKEN"`
	OverdueSweepCron string `env:"OVERDUE_SWEEP_CRON" envDefault:"0 * * * *"`

	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	DefaultUserID string `env:"DEFAULT_USER_ID" envDefault:"local"`
}

// ConfigDir is the per-user directory holding the service configuration.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".copilot"
	}
	return filepath.Join(home, ".copilot")
}

// ConfigFile is the env-format file read after .env.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config")
}

// Load reads .env and then ~/.copilot/config (either may be missing) into the
// process environment and parses it. Variables already set win.
func Load() (*Config, error) {
	for _, f := range []string{".env", ConfigFile()} {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reading %s: %w", f, err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if cfg.MaxToolIterations < 1 {
		cfg.MaxToolIterations = 1
	}
	if cfg.HistoryLimit < 0 {
		cfg.HistoryLimit = 0
	}
	return cfg, nil
}

// APIKey returns the credential for the configured chat provider.
func (c *Config) APIKey() string {
	switch c.LLMProvider {
	case "openai":
		return c.OpenAIKey
	case "anthropic":
		return c.AnthropicKey
	case "ollama":
		return "ollama"
	default:
		return c.GeminiKey
	}
}

// ChatBaseURL returns the endpoint override for the chat provider.
func (c *Config) ChatBaseURL() string {
	if c.LLMProvider == "ollama" && c.LLMBaseURL == "" {
		return c.OllamaBaseURL
	}
	return c.LLMBaseURL
}

// EmbeddingAPIKey returns the credential for the embedding provider.
func (c *Config) EmbeddingAPIKey() string {
	switch strings.ToLower(c.EmbeddingProvider) {
	case "openai":
		return c.OpenAIKey
	case "gemini":
		return c.GeminiKey
	default:
		return ""
	}
}

func (c *Config) EmbeddingBaseURL() string {
	if strings.ToLower(c.EmbeddingProvider) == "ollama" {
		return c.OllamaBaseURL
	}
	return ""
}

// SlogLevel maps LOG_LEVEL onto a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds the process logger on stderr.
func (c *Config) NewLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: c.SlogLevel()}))
}
