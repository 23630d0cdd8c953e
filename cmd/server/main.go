package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/cache"
	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/database"
	"github.com/stemsi/exstem-cbt/internal/handler"
	"github.com/stemsi/exstem-cbt/internal/logger"
	"github.com/stemsi/exstem-cbt/internal/metrics"
	"github.com/stemsi/exstem-cbt/internal/middleware"
	"github.com/stemsi/exstem-cbt/internal/repository"
	"github.com/stemsi/exstem-cbt/internal/router"
	"github.com/stemsi/exstem-cbt/internal/seed"
	"github.com/stemsi/exstem-cbt/internal/service"
	"github.com/stemsi/exstem-cbt/internal/store"
	"github.com/stemsi/exstem-cbt/internal/validator"
	"github.com/stemsi/exstem-cbt/internal/worker"
)

// memoryScoreQueueSize bounds pending score snapshots when Redis is absent.
const memoryScoreQueueSize = 4096

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("storage", cfg.StorageDriver).
		Str("log_level", cfg.LogLevel).
		Msg("Starting ExStem CBT")

	// ─── Initialize Validator & Metrics ────────────────────────────────
	validator.Setup()
	metrics.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	checks := map[string]handler.HealthCheck{}

	// ─── Storage Driver ────────────────────────────────────────────────
	var (
		questions store.QuestionReader
		sessions  store.SessionStore
	)
	switch cfg.StorageDriver {
	case config.StorageDriverMemory:
		mem := store.NewMemory()
		if cfg.SeedFile != "" {
			bank, err := seed.LoadFile(cfg.SeedFile)
			if err != nil {
				log.Fatal().Err(err).Str("file", cfg.SeedFile).Msg("Invalid seed file")
			}
			n, err := seed.IntoMemory(mem, bank)
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to seed memory store")
			}
			log.Info().Int("subjects", len(bank)).Int("questions", n).Msg("Memory store seeded")
		}
		log.Warn().Msg("Memory storage driver: data is lost on restart")
		questions, sessions = mem, mem

	case config.StorageDriverPostgres:
		if cfg.MigrateOnStart {
			if err := database.MigrateUp(cfg.MigrationsPath, cfg.DatabaseURL, log); err != nil {
				log.Fatal().Err(err).Msg("Failed to migrate schema")
			}
		}
		pool, err := database.NewPostgresPool(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
		}
		defer pool.Close()

		pg := repository.NewPostgresStore(pool)
		questions, sessions = pg, pg
		checks["postgres"] = pool.Ping

	default:
		log.Fatal().Str("storage", cfg.StorageDriver).Msg("Unknown STORAGE_DRIVER")
	}

	// ─── Redis (paper cache, monitor fan-out, score queue) ─────────────
	var (
		opts       []service.Option
		subscriber handler.MonitorSubscriber
		scoreQueue worker.Queue
	)
	if cfg.RedisURL != "" {
		rdb, err := database.NewRedisClient(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()

		monitor := cache.NewRedisMonitor(rdb)
		subscriber = monitor
		scoreQueue = worker.NewRedisQueue(rdb, config.WorkerKey.PersistScoresQueue)
		opts = append(opts,
			service.WithPaperCache(cache.NewPaperCache(rdb)),
			service.WithPublisher(monitor),
		)
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	} else {
		log.Warn().Msg("REDIS_URL not set: monitor and score queue stay in-process")
		monitor := cache.NewLocalMonitor()
		subscriber = monitor
		scoreQueue = worker.NewMemoryQueue(memoryScoreQueueSize)
		opts = append(opts, service.WithPublisher(monitor))
	}
	opts = append(opts, service.WithScoreQueue(scoreQueue))

	// ─── Initialize Services ──────────────────────────────────────────
	tokenService := service.NewTokenService(cfg.JWTSecret, cfg.JWTExpiry)
	sessionService := service.NewSessionService(sessions, questions, service.NewRandomizer(), log, opts...)
	submissionService := service.NewSubmissionService(sessions, questions, log, opts...)
	resultService := service.NewResultService(sessions, questions)
	monitorService := service.NewMonitorService(sessions, questions, opts...)
	subjectService := service.NewSubjectService(questions)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Health:  handler.NewHealthHandler(checks, log),
		Subject: handler.NewSubjectHandler(subjectService, log),
		Session: handler.NewSessionHandler(sessionService, submissionService, log),
		Monitor: handler.NewMonitorHandler(monitorService, subscriber, log),
		WS:      handler.NewWSHandler(sessionService, submissionService, log, cfg.AllowedOrigins),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	workerDone := make(chan struct{})

	scoringWorker := worker.NewScoringWorker(scoreQueue, resultService, sessions, log)
	go func() {
		scoringWorker.Start(workerCtx)
		close(workerDone)
	}()

	// ─── Setup Router ──────────────────────────────────────────────────
	var submitLimiter *middleware.RateLimiter
	if cfg.SubmitRatePerSecond > 0 {
		submitLimiter = middleware.NewRateLimiter(ctx, cfg.SubmitRatePerSecond, cfg.SubmitRateBurst)
	}
	r := router.SetupRouter(tokenService, handlers, submitLimiter, cfg, log)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop the scoring worker and let it flush its batch.
	workerCancel()
	select {
	case <-workerDone:
	case <-time.After(10 * time.Second):
		log.Warn().Msg("Scoring worker did not finish flushing")
	}

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
