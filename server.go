package main

import (
	"context"
	"errors"
	"fitcoachdev/config"
	"fitcoachdev/database/postgres"
	"fitcoachdev/dialogue"
	"fitcoachdev/health"
	"fitcoachdev/logger"
	"fitcoachdev/modelapi"
	"fitcoachdev/modelapi/deepgramapi"
	"fitcoachdev/modelapi/geminiapi"
	"fitcoachdev/modelapi/groqapi"
	"fitcoachdev/modelapi/openaiapi"
	"fitcoachdev/modelapi/youtubeapi"
	"fitcoachdev/session"
	"fitcoachdev/telegram"
	"fitcoachdev/translator"
	"fitcoachdev/workout"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/hyperdxio/opentelemetry-logs-go/exporters/otlp/otlplogs"
	sdk "github.com/hyperdxio/opentelemetry-logs-go/sdk/logs"
	"github.com/hyperdxio/otel-config-go/otelconfig"
)

const sweepInterval = time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Error loading configuration - %v", err)
	}

	otelShutdown, err := otelconfig.ConfigureOpenTelemetry()
	if err != nil {
		log.Fatalf("Error setting up OTel SDK - %v", err)
	}
	defer otelShutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logExporter, _ := otlplogs.NewExporter(ctx)
	loggerProvider := sdk.NewLoggerProvider(sdk.WithBatcher(logExporter))
	defer loggerProvider.Shutdown(context.Background())

	LogMiddleware := logger.Connect(logger.LoggerConnectProps{Production: cfg.Production, LoggerProvider: loggerProvider})
	defer LogMiddleware.Sync()

	Logger := LogMiddleware.Logger(ctx)

	model, err := connectModel(ctx, cfg, LogMiddleware)
	if err != nil {
		Logger.Fatal("[Server] Could not connect model provider", zap.Error(err))
	}

	youtubeClient, err := youtubeapi.Connect(ctx, youtubeapi.YouTubeConnectProps{Logger: LogMiddleware, APIKey: cfg.YouTubeAPIKey})
	if err != nil {
		Logger.Fatal("[Server] Could not connect YouTube", zap.Error(err))
	}

	translatorClient, err := translator.Connect(ctx, translator.TranslatorConnectProps{
		Logger:  LogMiddleware,
		Model:   model,
		Timeout: cfg.TranslationTimeout,
	})
	if err != nil {
		Logger.Fatal("[Server] Could not start translator", zap.Error(err))
	}

	generator := workout.NewGenerator(workout.GeneratorConnectProps{
		Logger:            LogMiddleware,
		Model:             model,
		Videos:            youtubeClient,
		GenerationTimeout: cfg.GenerationTimeout,
		LookupTimeout:     cfg.LookupTimeout,
		LookupConcurrency: cfg.LookupConcurrency,
		RepairAttempts:    cfg.RepairAttempts,
	})

	store := session.NewStore(session.WithIdleTTL(cfg.SessionIdleTTL))
	store.StartSweeper(ctx, sweepInterval, func(removed int) {
		if removed > 0 {
			Logger.Info("[Server] Evicted idle sessions", zap.Int("removed", removed))
		}
	})

	var recorder dialogue.PlanRecorder
	var db *postgres.Database
	if cfg.Postgres.Enabled() {
		db, err = postgres.Connect(ctx, postgres.DatabaseConnectProps{Logger: LogMiddleware, Config: cfg.Postgres})
		if err != nil {
			Logger.Fatal("[Server] Could not connect plan archive", zap.Error(err))
		}
		defer db.Close()
		recorder = db
	}

	var transcriber telegram.Transcriber
	if cfg.DeepgramAPIKey != "" {
		transcriber = deepgramapi.Connect(deepgramapi.DeepgramConnectProps{Logger: LogMiddleware, APIKey: cfg.DeepgramAPIKey})
	}

	telegramBot, err := telegram.Connect(ctx, telegram.TelegramConnectProps{
		Logger:      LogMiddleware,
		Token:       cfg.TelegramBotToken,
		Debug:       cfg.TelegramDebug,
		Transcriber: transcriber,
	})
	if err != nil {
		Logger.Fatal("[Server] Could not connect Telegram", zap.Error(err))
	}

	engine := dialogue.NewEngine(dialogue.EngineConnectProps{
		Logger:     LogMiddleware,
		Store:      store,
		Generator:  generator,
		Translator: translatorClient,
		Sender:     telegramBot,
		Recorder:   recorder,
	})

	healthHandler := health.HealthConnectProps{Logger: LogMiddleware, Sessions: store}
	if db != nil {
		healthHandler.Database = db
	}

	r := chi.NewRouter()
	r.Use(requestLoggerMiddleware(LogMiddleware))
	health.NewHealth(healthHandler).RegisterRoutes(r)

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     otelhttp.NewHandler(r, "fitcoach"),
		ReadTimeout: 10 * time.Second,
	}

	go func() {
		Logger.Info("[Server] Health endpoint listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			Logger.Error("[Server] Health endpoint failed", zap.Error(err))
		}
	}()

	if cfg.Production {
		Logger.Info("[Telegram] Bot starting in production mode", zap.String("provider", cfg.ModelProvider))
	} else {
		Logger.Info("[Telegram] Bot starting in development mode", zap.String("provider", cfg.ModelProvider))
	}

	// Blocks until a shutdown signal arrives and in-flight chats finish.
	telegramBot.Listen(ctx, engine)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		Logger.Error("[Server] Health endpoint forced to shutdown", zap.Error(err))
	}

	Logger.Info("[Server] Stopped")
}

func connectModel(ctx context.Context, cfg *config.Config, LogMiddleware *logger.LogMiddleware) (modelapi.Completer, error) {
	switch cfg.ModelProvider {
	case config.ProviderOpenAI:
		return openaiapi.Connect(ctx, openaiapi.OpenAIConnectProps{
			Logger:    LogMiddleware,
			SecretKey: cfg.OpenAISecretKey,
			Model:     cfg.OpenAIModel,
			BaseURL:   cfg.OpenAIBaseURL,
		}), nil
	case config.ProviderGemini:
		return geminiapi.Connect(ctx, geminiapi.GeminiConnectProps{
			Logger:    LogMiddleware,
			SecretKey: cfg.GeminiSecretKey,
			Model:     cfg.GeminiModel,
		})
	case config.ProviderGroq:
		return groqapi.Connect(ctx, groqapi.GroqConnectProps{
			Logger:    LogMiddleware,
			SecretKey: cfg.GroqSecretKey,
			Model:     cfg.GroqModel,
		}), nil
	}
	return nil, fmt.Errorf("unknown model provider %q", cfg.ModelProvider)
}

func requestLoggerMiddleware(logger *logger.LogMiddleware) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			logger.Logger(ctx).Info("Request Received", zap.String("url", r.URL.Path), zap.String("method", r.Method))
			next.ServeHTTP(w, r)
			logger.Logger(ctx).Info("Request Completed", zap.String("path", r.URL.Path), zap.String("method", r.Method))
		})
	}
}
