package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rootcauseai/rootcause-go/internal/ai"
	"github.com/rootcauseai/rootcause-go/internal/cache"
	"github.com/rootcauseai/rootcause-go/internal/chunk"
	"github.com/rootcauseai/rootcause-go/internal/config"
	"github.com/rootcauseai/rootcause-go/internal/cost"
	internalerrors "github.com/rootcauseai/rootcause-go/internal/errors"
	"github.com/rootcauseai/rootcause-go/internal/logging"
	"github.com/rootcauseai/rootcause-go/internal/notification"
	"github.com/rootcauseai/rootcause-go/internal/pipeline"
	"github.com/rootcauseai/rootcause-go/internal/preprocess"
	"github.com/rootcauseai/rootcause-go/internal/ratelimit"
	"github.com/rootcauseai/rootcause-go/internal/storage"
	"github.com/rootcauseai/rootcause-go/internal/web"
	"github.com/rootcauseai/rootcause-go/pkg/logger"
)

const (
	exitSuccess = 0
	exitFailure = 1
)

// retentionDays is how long run and cost history is kept.
const retentionDays = 90

// Version information - injected at build time via ldflags
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Parse CLI arguments first
	cli := config.ParseCLI()

	if cli.ShowHelp {
		config.PrintUsage()
		return exitSuccess
	}

	if cli.ShowVersion {
		fmt.Printf("rootcause-server %s\n", version)
		if gitCommit != "unknown" {
			fmt.Printf("  commit: %s\n", gitCommit)
		}
		if buildTime != "unknown" {
			fmt.Printf("  built:  %s\n", buildTime)
		}
		return exitSuccess
	}

	// Setup signal handling for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Load configuration with CLI overrides
	cfg, err := config.LoadWithCLI(cli)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return exitFailure
	}

	// Initialize logger with credential sanitization
	baseLog := logger.New(logger.Config{
		Level:      cfg.LogLevel,
		LogDir:     "./logs",
		MaxSizeMB:  10,
		MaxBackups: 5,
		Console:    true,
	})
	log := logging.NewSecure(baseLog.Logger)

	log.Info().
		Str("version", version).
		Str("provider", cfg.LLMProvider).
		Str("model", cfg.GetLLMModel()).
		Msg("Starting RootCause analysis server")
	if cfg.IsAnthropic() {
		log.Info().Str("api_key", internalerrors.MaskCredential(cfg.AnthropicAPIKey)).Msg("Anthropic credentials loaded")
	}

	if err := runServer(ctx, cfg, baseLog, log); err != nil {
		log.Error().Err(err).Msg("Server failed")
		return exitFailure
	}

	log.Info().Msg("Server stopped")
	return exitSuccess
}

func runServer(ctx context.Context, cfg *config.Config, baseLog *logger.Logger, log *logging.SecureLogger) error {
	// 1. Storage (if enabled); it also receives every cost record
	var store *storage.Storage
	var costOpts []cost.Option

	if cfg.EnableDatabase {
		var err error
		store, err = storage.New(cfg.DatabasePath)
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close database")
			}
		}()
		costOpts = append(costOpts, cost.WithSink(store))
		log.Info().Str("path", cfg.DatabasePath).Msg("Database initialized")

		deleted, err := store.CleanupOldRuns(retentionDays)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to cleanup old runs")
		} else if deleted > 0 {
			log.Info().Int64("deleted", deleted).Msg("Old runs cleaned up")
		}
	}

	// 2. LLM provider
	provider, err := createProvider(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize LLM provider: %w", err)
	}
	log.Info().Str("name", provider.Name()).Str("model", provider.Model()).Msg("LLM provider initialized")

	// Local backends are checked before we accept traffic so a dead
	// daemon fails startup instead of the first analysis.
	if cfg.IsOllama() {
		if oc, ok := provider.(*ai.OllamaClient); ok {
			checkCtx, checkCancel := context.WithTimeout(ctx, 10*time.Second)
			err := oc.CheckConnection(checkCtx)
			checkCancel()
			if err != nil {
				return fmt.Errorf("ollama connection check failed: %w", err)
			}
			log.Info().Str("base_url", cfg.OllamaBaseURL).Msg("Ollama connection verified")
		}
	}
	if cfg.IsLMStudio() {
		log.Info().Str("base_url", cfg.LMStudioBaseURL).Msg("Using local LM Studio backend")
	}

	// 3. Pipeline collaborators
	chunker, err := chunk.New(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return fmt.Errorf("failed to create chunker: %w", err)
	}

	var resultCache *cache.Cache
	if cfg.EnableCache {
		resultCache = cache.New(
			cache.WithMaxEntries(cfg.CacheMaxEntries),
			cache.WithTTL(time.Duration(cfg.CacheTTLHours)*time.Hour),
		)
	}

	limiter := ratelimit.New(cfg.RateLimitPerMinute, cfg.RateLimitPerHour, cfg.RateLimitPerDay)
	accountant := cost.New(costOpts...)

	engine, err := pipeline.New(pipeline.Config{
		Provider:   provider,
		Chunker:    chunker,
		Cache:      resultCache,
		Limiter:    limiter,
		Accountant: accountant,
		Workers:    cfg.MaxConcurrentRequests,
		MaxRetries: cfg.LLMMaxRetries,
		Preprocess: cfg.PreprocessLogs,
		PreprocessOpts: preprocess.Options{
			FilterDebug: cfg.FilterDebug,
			FilterInfo:  cfg.FilterInfo,
			MinSeverity: cfg.MinLogSeverity,
		},
		Logger: baseLog.Logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	// 4. Telegram notifications (optional)
	var telegramClient *notification.TelegramClient
	if cfg.HasTelegram() {
		telegramClient, err = notification.NewTelegramClient(
			cfg.TelegramBotToken,
			cfg.TelegramArchiveChannel,
			cfg.TelegramAlertsChannel,
		)
		if err != nil {
			return fmt.Errorf("failed to initialize Telegram client: %w", err)
		}
		defer func() {
			if err := telegramClient.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close Telegram client")
			}
		}()
		log.Info().Msg("Telegram notifications enabled")
	}

	// 5. HTTP layer
	var runStore web.RunStore
	if store != nil {
		runStore = store
	}

	handler := web.NewHandler(web.HandlerConfig{
		Analyzer:   engine,
		Cache:      resultCache,
		Limiter:    limiter,
		Accountant: accountant,
		Store:      runStore,
		MaxBytes:   cfg.MaxLogSizeBytes(),
		Version:    version,
		Logger:     baseLog.Logger,
		OnReport: func(report *pipeline.Report) {
			persistReport(store, report, log)
			if telegramClient != nil {
				go func() {
					if err := telegramClient.SendReport(report); err != nil {
						log.Warn().Err(err).Msg("Failed to send Telegram report")
					}
				}()
			}
		},
	})

	server := web.NewServer(cfg.Port, handler, baseLog.Logger)
	return server.Start(ctx)
}

// persistReport saves a completed analysis to the run history.
func persistReport(store *storage.Storage, report *pipeline.Report, log *logging.SecureLogger) {
	if store == nil {
		return
	}

	run := &storage.Run{
		Timestamp:    time.Now().UTC(),
		Format:       string(report.Format),
		Complexity:   string(report.Complexity),
		Variant:      string(report.Variant),
		Segments:     report.Segments,
		Cached:       report.Cached,
		Deduplicated: report.Deduplicated,
		Failed:       report.Failed,
		InputTokens:  report.InputTokens,
		OutputTokens: report.OutputTokens,
		CostUSD:      report.CostUSD,
	}
	if err := store.SaveRun(run); err != nil {
		log.Warn().Err(err).Msg("Failed to save run")
	}
}

// createProvider builds the configured LLM backend.
func createProvider(cfg *config.Config) (ai.Provider, error) {
	switch {
	case cfg.IsAnthropic():
		return ai.NewAnthropicClient(ai.AnthropicConfig{
			APIKey:         cfg.AnthropicAPIKey,
			Model:          cfg.ClaudeModel,
			ProxyURL:       cfg.GetProxyURL(true),
			TimeoutSeconds: cfg.AITimeoutSeconds,
			MaxTokens:      cfg.AIMaxTokens,
			Temperature:    cfg.LLMTemperature,
		})

	case cfg.IsOllama():
		return ai.NewOllamaClient(ai.OllamaConfig{
			BaseURL:        cfg.OllamaBaseURL,
			Model:          cfg.OllamaModel,
			TimeoutSeconds: cfg.AITimeoutSeconds,
			MaxTokens:      cfg.AIMaxTokens,
			Temperature:    cfg.LLMTemperature,
		})

	case cfg.IsLMStudio():
		return ai.NewLMStudioClient(ai.LMStudioConfig{
			BaseURL:        cfg.LMStudioBaseURL,
			Model:          cfg.LMStudioModel,
			TimeoutSeconds: cfg.AITimeoutSeconds,
			MaxTokens:      cfg.AIMaxTokens,
			Temperature:    cfg.LLMTemperature,
		})

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}
}
