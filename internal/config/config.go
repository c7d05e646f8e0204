// Package config loads application configuration from the environment
// and validates it.
package config

import (
	"crypto/subtle"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/rootcauseai/rootcause-go/internal/ai"
)

// CLIOptions holds command-line argument overrides.
type CLIOptions struct {
	Port        int    // -port: HTTP listen port
	DotenvPath  string // -env: path to a .env file
	ShowHelp    bool   // -help: show usage
	ShowVersion bool   // -version: show version
}

// ParseCLI parses command-line arguments and returns CLIOptions.
func ParseCLI() *CLIOptions {
	opts := &CLIOptions{}

	flag.IntVar(&opts.Port, "port", 0, "HTTP listen port (overrides PORT)")
	flag.StringVar(&opts.DotenvPath, "env", "", "Path to a .env file")
	flag.BoolVar(&opts.ShowHelp, "help", false, "Show usage information")
	flag.BoolVar(&opts.ShowVersion, "version", false, "Show version information")

	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "RootCause - AI-assisted log root cause analysis service\n\n")
		_, _ = fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		_, _ = fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		_, _ = fmt.Fprintf(os.Stderr, "\nEnvironment variables can be set in .env file or exported directly.\n")
		_, _ = fmt.Fprintf(os.Stderr, "CLI arguments override environment variables.\n")
	}

	flag.Parse()
	return opts
}

// PrintUsage prints the command-line usage information.
func PrintUsage() {
	flag.Usage()
}

// Config holds all application configuration.
type Config struct {
	// HTTP
	Port         int
	MaxLogSizeMB int

	// LLM Provider Selection
	LLMProvider string // "anthropic" (default), "ollama", or "lmstudio"

	// Anthropic/Claude Settings (used when LLMProvider = "anthropic")
	AnthropicAPIKey string
	ClaudeModel     string

	// Ollama Settings (used when LLMProvider = "ollama")
	OllamaBaseURL string // e.g., "http://localhost:11434"
	OllamaModel   string // e.g., "llama3.3:latest"

	// LM Studio Settings (used when LLMProvider = "lmstudio")
	LMStudioBaseURL string // e.g., "http://localhost:1234"
	LMStudioModel   string // e.g., "local-model"

	// AI Settings
	AITimeoutSeconds int
	AIMaxTokens      int
	LLMTemperature   float64
	LLMMaxRetries    int

	// Chunking
	ChunkSize    int
	ChunkOverlap int

	// Concurrency
	MaxConcurrentRequests int

	// Cache
	EnableCache     bool
	CacheMaxEntries int
	CacheTTLHours   int

	// Rate limits (model calls per window; 0 disables a window)
	RateLimitPerMinute int
	RateLimitPerHour   int
	RateLimitPerDay    int

	// Preprocessing
	PreprocessLogs bool
	FilterDebug    bool
	FilterInfo     bool
	MinLogSeverity string

	// Application
	LogLevel       string
	EnableDatabase bool
	DatabasePath   string

	// Telegram (optional)
	TelegramBotToken       string
	TelegramArchiveChannel int64
	TelegramAlertsChannel  int64

	// Proxy
	HTTPProxy  string
	HTTPSProxy string
}

// Load loads configuration from .env file and environment variables.
// Priority: .env file > OS environment variables.
// For CLI overrides, use LoadWithCLI instead.
func Load() (*Config, error) {
	return LoadWithCLI(nil)
}

// LoadWithCLI loads configuration with CLI argument overrides.
// Priority: CLI args > .env file > OS environment variables.
func LoadWithCLI(cli *CLIOptions) (*Config, error) {
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// godotenv.Load() sets OS env vars from .env, which viper then reads
	if cli != nil && cli.DotenvPath != "" {
		if err := godotenv.Load(cli.DotenvPath); err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", cli.DotenvPath, err)
		}
	} else {
		_ = godotenv.Load()
	}

	setDefaults()

	config := &Config{
		Port:         viper.GetInt("PORT"),
		MaxLogSizeMB: viper.GetInt("MAX_LOG_SIZE_MB"),

		LLMProvider:     viper.GetString("LLM_PROVIDER"),
		AnthropicAPIKey: viper.GetString("ANTHROPIC_API_KEY"),
		ClaudeModel:     viper.GetString("CLAUDE_MODEL"),
		OllamaBaseURL:   viper.GetString("OLLAMA_BASE_URL"),
		OllamaModel:     viper.GetString("OLLAMA_MODEL"),
		LMStudioBaseURL: viper.GetString("LMSTUDIO_BASE_URL"),
		LMStudioModel:   viper.GetString("LMSTUDIO_MODEL"),

		AITimeoutSeconds: viper.GetInt("AI_TIMEOUT_SECONDS"),
		AIMaxTokens:      viper.GetInt("AI_MAX_TOKENS"),
		LLMTemperature:   viper.GetFloat64("LLM_TEMPERATURE"),
		LLMMaxRetries:    viper.GetInt("LLM_MAX_RETRIES"),

		ChunkSize:    viper.GetInt("CHUNK_SIZE"),
		ChunkOverlap: viper.GetInt("CHUNK_OVERLAP"),

		MaxConcurrentRequests: viper.GetInt("MAX_CONCURRENT_REQUESTS"),

		EnableCache:     viper.GetBool("ENABLE_CACHE"),
		CacheMaxEntries: viper.GetInt("CACHE_MAX_ENTRIES"),
		CacheTTLHours:   viper.GetInt("CACHE_TTL_HOURS"),

		RateLimitPerMinute: viper.GetInt("RATE_LIMIT_PER_MINUTE"),
		RateLimitPerHour:   viper.GetInt("RATE_LIMIT_PER_HOUR"),
		RateLimitPerDay:    viper.GetInt("RATE_LIMIT_PER_DAY"),

		PreprocessLogs: viper.GetBool("PREPROCESS_LOGS"),
		FilterDebug:    viper.GetBool("FILTER_DEBUG"),
		FilterInfo:     viper.GetBool("FILTER_INFO"),
		MinLogSeverity: viper.GetString("MIN_LOG_SEVERITY"),

		LogLevel:       viper.GetString("LOG_LEVEL"),
		EnableDatabase: viper.GetBool("ENABLE_DATABASE"),
		DatabasePath:   viper.GetString("DATABASE_PATH"),

		TelegramBotToken:       viper.GetString("TELEGRAM_BOT_TOKEN"),
		TelegramArchiveChannel: viper.GetInt64("TELEGRAM_CHANNEL_ARCHIVE_ID"),
		TelegramAlertsChannel:  viper.GetInt64("TELEGRAM_CHANNEL_ALERTS_ID"),

		HTTPProxy:  viper.GetString("HTTP_PROXY"),
		HTTPSProxy: viper.GetString("HTTPS_PROXY"),
	}

	if cli != nil && cli.Port != 0 {
		config.Port = cli.Port
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// setDefaults sets default configuration values.
func setDefaults() {
	viper.SetDefault("PORT", 8000)
	viper.SetDefault("MAX_LOG_SIZE_MB", 10)

	viper.SetDefault("LLM_PROVIDER", "anthropic")
	viper.SetDefault("CLAUDE_MODEL", "claude-sonnet-4-20250514")
	viper.SetDefault("OLLAMA_BASE_URL", "http://localhost:11434")
	viper.SetDefault("OLLAMA_MODEL", "llama3.3:latest")
	viper.SetDefault("LMSTUDIO_BASE_URL", "http://localhost:1234")
	viper.SetDefault("LMSTUDIO_MODEL", "local-model")

	viper.SetDefault("AI_TIMEOUT_SECONDS", 120)
	viper.SetDefault("AI_MAX_TOKENS", 8000)
	viper.SetDefault("LLM_TEMPERATURE", 0.2)
	viper.SetDefault("LLM_MAX_RETRIES", 3)

	viper.SetDefault("CHUNK_SIZE", 2000)
	viper.SetDefault("CHUNK_OVERLAP", 200)

	viper.SetDefault("MAX_CONCURRENT_REQUESTS", 5)

	viper.SetDefault("ENABLE_CACHE", true)
	viper.SetDefault("CACHE_MAX_ENTRIES", 1000)
	viper.SetDefault("CACHE_TTL_HOURS", 24)

	viper.SetDefault("RATE_LIMIT_PER_MINUTE", 10)
	viper.SetDefault("RATE_LIMIT_PER_HOUR", 100)
	viper.SetDefault("RATE_LIMIT_PER_DAY", 1000)

	viper.SetDefault("PREPROCESS_LOGS", true)
	viper.SetDefault("FILTER_DEBUG", true)
	viper.SetDefault("FILTER_INFO", false)
	viper.SetDefault("MIN_LOG_SEVERITY", "WARN")

	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("ENABLE_DATABASE", true)
	viper.SetDefault("DATABASE_PATH", "./data/rootcause.db")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.validateLLMProvider(); err != nil {
		return err
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535")
	}
	if c.MaxLogSizeMB < 1 || c.MaxLogSizeMB > 100 {
		return fmt.Errorf("MAX_LOG_SIZE_MB must be between 1 and 100")
	}

	if c.ChunkSize < 100 {
		return fmt.Errorf("CHUNK_SIZE must be at least 100")
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP must satisfy 0 <= overlap < CHUNK_SIZE")
	}

	if c.MaxConcurrentRequests < 1 || c.MaxConcurrentRequests > 64 {
		return fmt.Errorf("MAX_CONCURRENT_REQUESTS must be between 1 and 64")
	}

	if c.CacheMaxEntries < 0 {
		return fmt.Errorf("CACHE_MAX_ENTRIES must not be negative")
	}
	if c.CacheTTLHours < 0 {
		return fmt.Errorf("CACHE_TTL_HOURS must not be negative")
	}

	if c.RateLimitPerMinute < 0 || c.RateLimitPerHour < 0 || c.RateLimitPerDay < 0 {
		return fmt.Errorf("rate limits must not be negative")
	}

	validSeverities := map[string]bool{
		"DEBUG": true,
		"INFO":  true,
		"WARN":  true,
		"ERROR": true,
		"FATAL": true,
	}
	if !validSeverities[strings.ToUpper(c.MinLogSeverity)] {
		return fmt.Errorf("MIN_LOG_SEVERITY must be one of: DEBUG, INFO, WARN, ERROR, FATAL")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error")
	}

	if c.AITimeoutSeconds < 30 || c.AITimeoutSeconds > 600 {
		return fmt.Errorf("AI_TIMEOUT_SECONDS must be between 30 and 600")
	}
	if c.AIMaxTokens < 1000 || c.AIMaxTokens > 16000 {
		return fmt.Errorf("AI_MAX_TOKENS must be between 1000 and 16000")
	}
	if c.LLMTemperature < 0 || c.LLMTemperature > 2 {
		return fmt.Errorf("LLM_TEMPERATURE must be between 0 and 2")
	}
	if c.LLMMaxRetries < 1 || c.LLMMaxRetries > 10 {
		return fmt.Errorf("LLM_MAX_RETRIES must be between 1 and 10")
	}

	if err := c.validateTelegram(); err != nil {
		return err
	}

	return nil
}

// constantTimePrefixMatch checks if s starts with prefix using
// constant-time comparison, so validation never leaks key content
// through timing. Returns false if s is shorter than prefix.
func constantTimePrefixMatch(s, prefix string) bool {
	if len(s) < len(prefix) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(s[:len(prefix)]), []byte(prefix)) == 1
}

// validateLLMProvider validates LLM provider configuration.
func (c *Config) validateLLMProvider() error {
	if !ai.IsValidProviderType(c.LLMProvider) {
		return fmt.Errorf("LLM_PROVIDER must be 'anthropic', 'ollama', or 'lmstudio' (got: %s)", c.LLMProvider)
	}

	switch c.LLMProvider {
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required when LLM_PROVIDER=anthropic")
		}
		if !constantTimePrefixMatch(c.AnthropicAPIKey, "sk-ant-") {
			return fmt.Errorf("ANTHROPIC_API_KEY must start with 'sk-ant-'")
		}
		if c.ClaudeModel == "" {
			return fmt.Errorf("CLAUDE_MODEL is required when LLM_PROVIDER=anthropic")
		}

	case "ollama":
		if c.OllamaModel == "" {
			return fmt.Errorf("OLLAMA_MODEL is required when LLM_PROVIDER=ollama")
		}
		if c.OllamaBaseURL == "" {
			return fmt.Errorf("OLLAMA_BASE_URL is required when LLM_PROVIDER=ollama")
		}
		if !strings.HasPrefix(c.OllamaBaseURL, "http://") && !strings.HasPrefix(c.OllamaBaseURL, "https://") {
			return fmt.Errorf("OLLAMA_BASE_URL must start with 'http://' or 'https://'")
		}

	case "lmstudio":
		if c.LMStudioBaseURL == "" {
			return fmt.Errorf("LMSTUDIO_BASE_URL is required when LLM_PROVIDER=lmstudio")
		}
		if !strings.HasPrefix(c.LMStudioBaseURL, "http://") && !strings.HasPrefix(c.LMStudioBaseURL, "https://") {
			return fmt.Errorf("LMSTUDIO_BASE_URL must start with 'http://' or 'https://'")
		}
		// Model is optional for LM Studio (defaults to "local-model")
	}

	return nil
}

// validateTelegram validates the optional Telegram settings.
func (c *Config) validateTelegram() error {
	if c.TelegramBotToken == "" {
		if c.TelegramArchiveChannel != 0 || c.TelegramAlertsChannel != 0 {
			return fmt.Errorf("TELEGRAM_BOT_TOKEN is required when Telegram channels are configured")
		}
		return nil
	}

	if c.TelegramArchiveChannel == 0 {
		return fmt.Errorf("TELEGRAM_CHANNEL_ARCHIVE_ID is required when TELEGRAM_BOT_TOKEN is set")
	}
	if c.TelegramArchiveChannel > -100 {
		return fmt.Errorf("TELEGRAM_CHANNEL_ARCHIVE_ID must be a supergroup/channel ID (starts with -100)")
	}
	if c.TelegramAlertsChannel != 0 && c.TelegramAlertsChannel > -100 {
		return fmt.Errorf("TELEGRAM_CHANNEL_ALERTS_ID must be a supergroup/channel ID (starts with -100)")
	}
	return nil
}

// HasTelegram returns true if Telegram notification is configured.
func (c *Config) HasTelegram() bool {
	return c.TelegramBotToken != ""
}

// GetProxyURL returns the appropriate proxy URL for HTTP/HTTPS requests.
func (c *Config) GetProxyURL(isHTTPS bool) string {
	if isHTTPS && c.HTTPSProxy != "" {
		return c.HTTPSProxy
	}
	if c.HTTPProxy != "" {
		return c.HTTPProxy
	}
	return ""
}

// IsAnthropic returns true if the LLM provider is Anthropic.
func (c *Config) IsAnthropic() bool {
	return c.LLMProvider == "anthropic"
}

// IsOllama returns true if the LLM provider is Ollama.
func (c *Config) IsOllama() bool {
	return c.LLMProvider == "ollama"
}

// IsLMStudio returns true if the LLM provider is LM Studio.
func (c *Config) IsLMStudio() bool {
	return c.LLMProvider == "lmstudio"
}

// GetLLMModel returns the model name for the current LLM provider.
func (c *Config) GetLLMModel() string {
	switch c.LLMProvider {
	case "ollama":
		return c.OllamaModel
	case "lmstudio":
		return c.LMStudioModel
	default:
		return c.ClaudeModel
	}
}

// MaxLogSizeBytes returns the upload size cap in bytes.
func (c *Config) MaxLogSizeBytes() int64 {
	return int64(c.MaxLogSizeMB) * 1024 * 1024
}
