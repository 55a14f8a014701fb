package worker

import (
	"context"
	"time"

	"github.com/proktora/proktora-backend/internal/repository"
	"github.com/proktora/proktora-backend/internal/service"
	"github.com/rs/zerolog"
)

// ReaperWorker sweeps overdue IN_PROGRESS attempts into TIMED_OUT on an
// interval. Deadline checks on the request path already finalize attempts
// the client keeps touching; the reaper catches the ones that go silent.
type ReaperWorker struct {
	attempts *repository.AttemptRepository
	cache    service.SessionCache
	interval time.Duration
	log      zerolog.Logger
}

// NewReaperWorker creates a new ReaperWorker.
func NewReaperWorker(attempts *repository.AttemptRepository, cache service.SessionCache, interval time.Duration, log zerolog.Logger) *ReaperWorker {
	return &ReaperWorker{
		attempts: attempts,
		cache:    cache,
		interval: interval,
		log:      log.With().Str("component", "reaper_worker").Logger(),
	}
}

// Start begins the sweep loop. Call in a goroutine.
func (w *ReaperWorker) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("Worker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *ReaperWorker) sweep(ctx context.Context) {
	ids, err := w.attempts.ExpireOverdue(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("Expire sweep failed")
		return
	}
	if len(ids) == 0 {
		return
	}

	for _, id := range ids {
		w.cache.DropAttempt(ctx, id)
	}
	w.log.Info().Int("count", len(ids)).Msg("Expired overdue attempts")
}
