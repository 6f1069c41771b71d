package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zapgatehq/zapgate/internal/api"
	"github.com/zapgatehq/zapgate/internal/circuitbreaker"
	"github.com/zapgatehq/zapgate/internal/config"
	"github.com/zapgatehq/zapgate/internal/db"
	"github.com/zapgatehq/zapgate/internal/metrics"
	"github.com/zapgatehq/zapgate/internal/observ"
	"github.com/zapgatehq/zapgate/internal/quota"
	gwredis "github.com/zapgatehq/zapgate/internal/redis"
	"github.com/zapgatehq/zapgate/internal/responder"
	"github.com/zapgatehq/zapgate/internal/scheduler"
	"github.com/zapgatehq/zapgate/internal/secrets"
	"github.com/zapgatehq/zapgate/internal/webhook"
	"github.com/zapgatehq/zapgate/internal/whatsapp"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Local development convenience; missing .env is fine.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting zapgate gateway",
		zap.String("env", cfg.Env),
		zap.Int("port", cfg.Port),
	)

	ctx := context.Background()
	database, err := db.New(ctx, db.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	logger.Info("database connection established",
		zap.String("host", cfg.DBHost),
		zap.String("database", cfg.DBName),
	)

	repo := db.NewRepository(database, logger)

	// Redis backs dedup, the conversation cache and API rate limits.
	// The gateway stays functional without it.
	redisClient, err := gwredis.New(ctx, gwredis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, logger)
	if err != nil {
		logger.Warn("redis unavailable, dedup and rate limiting disabled",
			zap.Error(err),
			zap.String("host", cfg.RedisHost),
		)
		redisClient = nil
	}

	var rateLimiter *gwredis.RateLimiter
	var dedup webhook.Deduper
	var chatCache *gwredis.ChatCache
	if redisClient != nil {
		defer redisClient.Close()
		rateLimiter = gwredis.NewRateLimiter(redisClient, logger, gwredis.RateLimitConfig{
			Limit:  100,
			Window: 1 * time.Minute,
		})
		dedup = gwredis.NewEventDedup(redisClient, logger)
		chatCache = gwredis.NewChatCache(redisClient, logger, 20)
	}

	cipher, err := secrets.NewCipher(cfg.CredentialSecret)
	if err != nil {
		return fmt.Errorf("failed to initialize credential cipher: %w", err)
	}
	credStore := secrets.NewCredentialStore(repo, cipher, logger)

	gate := quota.NewGate(repo, logger)

	aiClient := responder.NewAIClient(responder.AIConfig{
		BaseURL: cfg.AIBaseURL,
		Timeout: time.Duration(cfg.AITimeoutSeconds) * time.Second,
	}, logger)
	replier := responder.New(aiClient, gate, repo, responder.Config{
		GenerationTimeout: time.Duration(cfg.AITimeoutSeconds) * time.Second,
		ChargeOnAttempt:   cfg.AIChargeAttempts,
	}, logger)

	breaker := circuitbreaker.New(circuitbreaker.DefaultConfig("whatsapp"), logger)
	waClient := whatsapp.NewClient(whatsapp.ClientConfig{
		BaseURL: cfg.GraphBaseURL,
		Timeout: 15 * time.Second,
	}, breaker, logger)

	var webhookCache webhook.ChatCache
	if chatCache != nil {
		webhookCache = chatCache
	}
	hook := webhook.New(logger, repo, credStore, waClient, replier, gate, dedup, webhookCache,
		webhook.Config{VerifyToken: cfg.WebhookVerifyToken})

	sched := scheduler.New(repo, credStore, waClient, gate, scheduler.Config{
		TickInterval: time.Duration(cfg.SchedulerTickSeconds) * time.Second,
	}, logger)

	schedCtx, schedCancel := context.WithCancel(context.Background())
	defer schedCancel()
	go sched.Start(schedCtx)

	logger.Info("campaign scheduler started in background")

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration_ms", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	})

	// Provider-facing webhook. No bearer auth; the GET handshake and
	// routing-key resolution are the trust boundary here.
	r.Get("/webhook", hook.Verify)
	r.Post("/webhook", hook.Receive)

	var mgmtCache api.ConversationCache
	if chatCache != nil {
		mgmtCache = chatCache
	}
	mgmt := api.NewHandler(logger, repo, credStore, mgmtCache, gate)
	r.Route("/v1", func(r chi.Router) {
		r.Use(api.AuthMiddleware(cfg.APIJWTSecret, logger))
		r.Use(api.RateLimitMiddleware(rateLimiter, logger, api.TenantKeyFunc))

		mgmt.Routes(r)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := database.Health(r.Context()); err != nil {
			logger.Error("health check failed", zap.Error(err))
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("DB UNAVAILABLE"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))

		schedCancel()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			srv.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}

		logger.Info("server stopped gracefully")
	}

	return nil
}
