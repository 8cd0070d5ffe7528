package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/windfall/jamtalk_service/internal/client"
	"github.com/windfall/jamtalk_service/internal/config"
	"github.com/windfall/jamtalk_service/internal/handler/http"
	"github.com/windfall/jamtalk_service/internal/handler/ws"
	"github.com/windfall/jamtalk_service/internal/logger"
	"github.com/windfall/jamtalk_service/internal/narration"
	"github.com/windfall/jamtalk_service/internal/server"
	"github.com/windfall/jamtalk_service/internal/service"
	"github.com/windfall/jamtalk_service/internal/usage"
	"github.com/windfall/jamtalk_service/migrations"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize logger
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	log.Info().Str("env", cfg.Environment).Msg("Starting jamtalk_service")

	catalog, err := config.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		panic("failed to load catalog: " + err.Error())
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize AI clients
	var openaiClient *client.OpenAIClient
	if cfg.OpenAIAPIKey != "" {
		openaiClient = client.NewOpenAIClient(cfg.OpenAIAPIKey).
			WithModel(cfg.OpenAIModel).
			WithSpeechModel(cfg.NarrationModel)
		log.Info().Str("model", cfg.OpenAIModel).Msg("OpenAI client initialized")
	} else {
		log.Warn().Msg("OPENAI_API_KEY not set, skipping OpenAI initialization")
	}

	var geminiClient *client.GeminiClient
	if cfg.GeminiAPIKey != "" || cfg.GCPProject != "" {
		geminiClient, err = client.NewGeminiClient(ctx, cfg.GCPProject, cfg.GCPLocation, cfg.GeminiAPIKey)
		if err != nil {
			log.Error().Err(err).Msg("Failed to initialize Gemini client")
			geminiClient = nil
		} else {
			geminiClient = geminiClient.WithModel(cfg.GeminiModel)
			log.Info().Str("model", cfg.GeminiModel).Msg("Gemini client initialized")
		}
	}

	aiService := service.NewAIService(openaiClient, geminiClient, cfg.FeedbackProvider)
	if !aiService.Configured() {
		log.Warn().Msg("No AI provider configured, feedback will fall back")
	}

	// Initialize Redis client
	var redisClient *client.RedisClient
	if cfg.RedisURL != "" {
		redisClient, err = client.NewRedisClient(cfg.RedisURL)
		if err != nil {
			log.Error().Err(err).Msg("Failed to initialize Redis client")
			redisClient = nil
		} else {
			log.Info().Msg("Redis client initialized")
		}
	}

	// Initialize Postgres client
	var postgresClient *client.PostgresClient
	if cfg.DatabaseURL != "" {
		postgresClient, err = client.NewPostgresClient(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error().Err(err).Msg("Failed to initialize Postgres client")
			postgresClient = nil
		} else {
			log.Info().Msg("Postgres client initialized")
			if cfg.IsDevelopment() {
				if err := migrations.Up(ctx, postgresClient.DB()); err != nil {
					log.Error().Err(err).Msg("Failed to migrate usage schema")
				}
			}
		}
	}

	// Initialize Cloudflare R2 client (using S3 protocol)
	var objectStore service.ObjectStore
	if cfg.CloudflareAccessKeyID != "" && cfg.CloudflareSecretKey != "" && cfg.CloudflareR2Endpoint != "" && cfg.CloudflareBucketName != "" {
		cloudflareClient, err := client.NewCloudflareClient(ctx,
			cfg.CloudflareAccessKeyID,
			cfg.CloudflareSecretKey,
			cfg.CloudflareR2Endpoint,
			cfg.CloudflareBucketName,
			cfg.CloudflarePublicURL,
		)
		if err != nil {
			log.Error().Err(err).Msg("Failed to initialize Cloudflare client")
		} else {
			objectStore = cloudflareClient
			log.Info().Msg("Cloudflare R2 client initialized")
		}
	} else {
		log.Warn().Msg("Cloudflare configuration missing, narration rendering disabled")
	}

	// Initialize Stripe client
	var checkout service.CheckoutProvider
	stripeKey := cfg.StripeSecretKey
	if cfg.CheckoutTestMode() && cfg.StripeTestSecretKey != "" {
		stripeKey = cfg.StripeTestSecretKey
	}
	if stripeKey != "" {
		checkout = client.NewStripeClient(stripeKey)
		log.Info().Bool("test_mode", cfg.CheckoutTestMode()).Msg("Stripe client initialized")
	} else {
		log.Warn().Msg("Stripe key not set, checkout disabled")
	}

	// Usage store
	tracker := usage.NewTracker(flagStore(cfg, redisClient, postgresClient, log), cfg.UsageResetEnabled(), logger.Component(log, "usage"))

	// Narration voice
	synth, audioType := narrationVoice(cfg, openaiClient, log)

	var transcriber service.Transcriber
	if openaiClient != nil {
		transcriber = openaiClient
	}

	// Initialize services
	feedbackService := service.NewFeedbackService(aiService, logger.Component(log, "feedback"))
	scriptService := service.NewScriptService(aiService, logger.Component(log, "script"))
	practiceService := service.NewPracticeService(tracker, feedbackService, scriptService, synth, catalog, cfg.CaptureSeconds(), logger.Component(log, "practice"))
	narrationService := service.NewNarrationService(synth, objectStore, audioType, logger.Component(log, "narration"))
	billingService := service.NewBillingService(checkout, tracker, service.BillingConfig{
		BaseURL:     cfg.PublicBaseURL,
		PriceID:     cfg.StripePriceID,
		TestPriceID: cfg.StripeTestPriceID,
		TestMode:    cfg.CheckoutTestMode(),
	}, logger.Component(log, "billing"))

	// WebSocket hub
	hub := server.NewWebSocketHub(logger.Component(log, "ws"), cfg.CORSAllowedOrigins)
	go hub.Run(ctx)

	// Readiness checks
	checks := map[string]http.Check{}
	if redisClient != nil {
		checks["redis"] = redisClient.Ping
	}
	if postgresClient != nil {
		checks["postgres"] = postgresClient.Ping
	}

	// Initialize handlers
	handlers := server.Handlers{
		Health:    http.NewHealthHandler(checks, hub.ClientCount),
		Practice:  http.NewPracticeHandler(log, practiceService),
		Narration: http.NewNarrationHandler(log, practiceService, narrationService),
		Billing:   http.NewBillingHandler(log, billingService),
		Practices: ws.NewHandler(logger.Component(log, "ws"), practiceService, transcriber, audioType),
	}

	// Initialize HTTP server
	httpServer := server.NewHTTPServer(cfg, log, handlers, hub)

	// Start servers
	go func() {
		if err := httpServer.Start(); err != nil {
			log.Error().Err(err).Msg("HTTP server error")
			cancel()
		}
	}()

	log.Info().
		Str("http_addr", cfg.HTTPAddress()).
		Int("capture_seconds", cfg.CaptureSeconds()).
		Msg("Servers started")

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info().Msg("Shutdown signal received")
	case <-ctx.Done():
		log.Info().Msg("Context cancelled")
	}

	// Graceful shutdown
	log.Info().Msg("Shutting down servers...")
	handlers.Health.SetReady(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}
	cancel()

	// Close clients
	if redisClient != nil {
		redisClient.Close()
	}
	if postgresClient != nil {
		postgresClient.Close()
	}

	log.Info().Msg("Server stopped")
}

func flagStore(cfg *config.Config, redisClient *client.RedisClient, postgresClient *client.PostgresClient, log zerolog.Logger) usage.FlagStore {
	switch cfg.UsageStore {
	case "redis":
		if redisClient != nil {
			return redisClient
		}
		log.Warn().Msg("USAGE_STORE=redis but Redis is unavailable, using memory")
	case "postgres":
		if postgresClient != nil {
			return postgresClient
		}
		log.Warn().Msg("USAGE_STORE=postgres but Postgres is unavailable, using memory")
	case "memory", "":
	default:
		log.Warn().Str("store", cfg.UsageStore).Msg("Unknown USAGE_STORE, using memory")
	}
	return usage.NewMemoryStore()
}

func narrationVoice(cfg *config.Config, openaiClient *client.OpenAIClient, log zerolog.Logger) (narration.Synthesizer, string) {
	switch cfg.NarrationProvider {
	case "local":
		v := service.NewLocalVoice(cfg.LocalVoiceBinary, cfg.LocalVoiceRate, log)
		log.Info().Stringer("voice", v).Msg("Using local narration voice")
		return v, v.ContentType()
	case "openai":
		if openaiClient != nil {
			v := service.NewCloudVoice(openaiClient, log)
			return v, v.ContentType()
		}
		log.Warn().Msg("NARRATION_PROVIDER=openai but OpenAI is not configured, narration disabled")
	default:
		log.Warn().Str("provider", cfg.NarrationProvider).Msg("Unknown NARRATION_PROVIDER, narration disabled")
	}
	return nil, "audio/mpeg"
}
