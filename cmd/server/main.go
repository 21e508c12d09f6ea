package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryfiber "github.com/getsentry/sentry-go/fiber"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gvargas9/smartterapist/internal/ai"
	"github.com/gvargas9/smartterapist/internal/behavior"
	"github.com/gvargas9/smartterapist/internal/config"
	"github.com/gvargas9/smartterapist/internal/conversation"
	"github.com/gvargas9/smartterapist/internal/database"
	"github.com/gvargas9/smartterapist/internal/handlers"
	"github.com/gvargas9/smartterapist/internal/logging"
	"github.com/gvargas9/smartterapist/internal/middleware"
	"github.com/gvargas9/smartterapist/internal/routes"
	"github.com/gvargas9/smartterapist/internal/sentiment"
	"github.com/gvargas9/smartterapist/internal/services"
	"github.com/gvargas9/smartterapist/internal/store"
	"github.com/gvargas9/smartterapist/internal/summary"
	"github.com/gvargas9/smartterapist/internal/voice"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Structured logging (JSON to stdout)
	logging.Setup()

	cfg := config.Load()

	if cfg.JWTSecret == "" {
		slog.Error("JWT_SECRET environment variable is required")
		os.Exit(1)
	}
	if cfg.DBPassword == "" {
		slog.Error("DB_PASSWORD environment variable is required")
		os.Exit(1)
	}

	// Database
	db, err := database.Connect(cfg)
	if err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}

	if err := database.Migrate(db); err != nil {
		slog.Error("migration failed", "error", err)
		os.Exit(1)
	}

	// PostgreSQL log handler (ERROR+ async batch)
	pgLogHandler := logging.NewPGHandler(db)
	slog.SetDefault(slog.New(logging.NewMultiHandler(
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		pgLogHandler,
	)))

	// Log cleanup (30-day retention)
	cleanupDone := make(chan struct{})
	logging.StartCleanup(db, cleanupDone)

	st := store.New(db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis: behavior cache + cross-instance event mirror (optional)
	var rdb *redis.Client
	var behaviorCache *behavior.Cache
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Error("redis connection failed", "addr", cfg.RedisAddr, "error", err)
			os.Exit(1)
		}
		behaviorCache = behavior.NewCache(rdb, cfg.BehaviorCacheTTL)
		mirror := st.EnableMirror(rdb)
		go func() {
			if err := mirror.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("event mirror stopped", "error", err)
			}
		}()
		slog.Info("redis connected", "addr", cfg.RedisAddr)
	}

	// Domain services
	scorer := sentiment.NewKeywordScorer()

	var inner ai.Generator
	if cfg.OpenAIAPIKey != "" {
		inner = ai.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIModel)
		slog.Info("assistant provider configured", "model", cfg.OpenAIModel)
	} else {
		inner = ai.NewRuleGenerator(scorer)
		slog.Warn("OPENAI_API_KEY not set, replies use the rule-based responder")
	}
	gen := ai.NewResilient(inner, cfg.AITimeout, cfg.AIRetryBackoff)

	resolver := behavior.NewResolver(st, behaviorCache)
	resolver.WatchInvalidations(ctx)

	synth := summary.NewSynthesizer(st, cfg.SummaryTimeout)
	manager := conversation.NewManager(st, resolver, scorer, gen, synth)

	voiceAdapter := voice.New(cfg.VoiceSTTURL, cfg.VoiceTTSURL, cfg.VoiceAPIKey, cfg.VoiceTimeout)
	if !voiceAdapter.Enabled() {
		slog.Warn("VOICE_API_KEY not set, voice endpoints will reject requests")
	}

	directoryService := services.NewDirectoryService(st)
	sessionService := services.NewSessionService(st)
	messagingService := services.NewMessagingService(st)

	// Handlers
	healthHandler := handlers.NewHealthHandler(db, rdb)
	conversationHandler := handlers.NewConversationHandler(manager, st)
	voiceHandler := handlers.NewVoiceHandler(voiceAdapter, manager)
	behaviorHandler := handlers.NewBehaviorHandler(resolver, st)
	directoryHandler := handlers.NewDirectoryHandler(directoryService, st)
	sessionHandler := handlers.NewSessionHandler(sessionService, st)
	messagingHandler := handlers.NewMessagingHandler(messagingService)
	eventsHandler := handlers.NewEventsHandler(st)

	// Sentry error tracking
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              dsn,
			EnableTracing:    true,
			TracesSampleRate: 0.2,
			Environment:      os.Getenv("APP_ENV"),
		}); err != nil {
			slog.Error("sentry init failed", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	// Fiber app; audio uploads on voice turns push past the default 4MB
	app := fiber.New(fiber.Config{
		BodyLimit:    32 * 1024 * 1024,
		ErrorHandler: customErrorHandler,
	})

	// Sentry middleware
	app.Use(sentryfiber.New(sentryfiber.Options{
		Repanic:         true,
		WaitForDelivery: false,
	}))

	// Global middleware
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} | ${status} | ${latency} | ${ip} | ${method} | ${path}\n",
	}))
	app.Use(middleware.CORS(cfg))
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("X-XSS-Protection", "1; mode=block")
		return c.Next()
	})

	// Routes
	routes.Setup(app, cfg, st, healthHandler, conversationHandler, voiceHandler, behaviorHandler, directoryHandler, sessionHandler, messagingHandler, eventsHandler)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "port", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-quit
	slog.Info("shutting down server...")

	if err := app.Shutdown(); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	// Drain background summaries before closing the database.
	manager.Wait()

	cancel()
	close(cleanupDone)
	pgLogHandler.Stop()
	sentry.Flush(2 * time.Second)

	if rdb != nil {
		if err := rdb.Close(); err != nil {
			slog.Error("redis close error", "error", err)
		}
	}

	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			slog.Error("database close error", "error", err)
		}
	}

	slog.Info("server stopped")
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	// Only expose error details for client errors (4xx), not server errors (5xx)
	if code >= 500 {
		slog.Error("unhandled server error", "method", c.Method(), "path", c.Path(), "error", err.Error())
		message = "Internal server error"
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": message,
	})
}
