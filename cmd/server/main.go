package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/proktora/proktora-backend/internal/config"
	"github.com/proktora/proktora-backend/internal/database"
	"github.com/proktora/proktora-backend/internal/handler"
	"github.com/proktora/proktora-backend/internal/logger"
	"github.com/proktora/proktora-backend/internal/repository"
	"github.com/proktora/proktora-backend/internal/router"
	"github.com/proktora/proktora-backend/internal/service"
	"github.com/proktora/proktora-backend/internal/validator"
	"github.com/proktora/proktora-backend/internal/worker"
	"github.com/rs/zerolog"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting Proktora Backend")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	creditRepo := repository.NewCreditRepository(pool)
	packageRepo := repository.NewPackageRepository(pool)
	attemptRepo := repository.NewAttemptRepository(pool, creditRepo)
	violationRepo := repository.NewViolationRepository(pool)
	syncRepo := repository.NewSyncRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	sessionCache := service.NewRedisSessionCache(rdb)

	authService := service.NewAuthService(cfg)
	admissionService := service.NewAdmissionService(packageRepo, attemptRepo, sessionCache, log)
	attemptService := service.NewAttemptService(attemptRepo, packageRepo, sessionCache, cfg.MaxViolations, log)
	integrityService := service.NewIntegrityService(attemptRepo, violationRepo, sessionCache, cfg.MaxViolations, log)
	syncService := service.NewSyncService(attemptRepo, syncRepo, log)
	creditService := service.NewCreditService(creditRepo)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Attempt:   handler.NewAttemptHandler(admissionService, attemptService),
		Integrity: handler.NewIntegrityHandler(integrityService),
		Sync:      handler.NewSyncHandler(syncService),
		Credit:    handler.NewCreditHandler(creditService),
		WS:        handler.NewWSHandler(rdb, attemptService, integrityService, log, cfg.AllowedOrigins),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	autosaveWorker := worker.NewAutosaveWorker(attemptRepo, rdb, log)
	reaperWorker := worker.NewReaperWorker(attemptRepo, sessionCache, cfg.ReaperInterval, log)

	go autosaveWorker.Start(workerCtx)
	go reaperWorker.Start(workerCtx)

	// ─── Prewarm Redis Caches ─────────────────────────────────────────
	// Load all published package bundles into Redis BEFORE accepting
	// traffic. This avoids race conditions from lazy loading under
	// thundering herd when an exam window opens.
	if ids, err := packageRepo.ListPublishedIDs(ctx); err != nil {
		log.Warn().Err(err).Msg("Bundle prewarm skipped")
	} else if err := attemptService.PrewarmBundles(ctx, ids); err != nil {
		log.Warn().Err(err).Msg("Bundle prewarm failed")
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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

	// 2. Stop background workers and wait for queues to drain.
	workerCancel()
	time.Sleep(2 * time.Second) // Allow workers to drain.

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
