// Package scheduler runs the periodic maintenance sweeps: code expiry,
// vendor-side cleanup of expired codes, and lock health syncs.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/rental-lock-access/backend/internal/access"
	"github.com/rental-lock-access/backend/internal/storage"
	"github.com/rental-lock-access/backend/internal/storage/models"
	"github.com/rental-lock-access/backend/internal/websocket"
)

// Intervals configures the sweep cadences. Zero values fall back to the
// defaults in NewScheduler.
type Intervals struct {
	Expiry     time.Duration
	Cleanup    time.Duration
	StatusSync time.Duration
}

// Scheduler drives the maintenance sweeps on fixed intervals.
type Scheduler struct {
	cron        *cron.Cron
	svc         *access.Service
	locks       *storage.LockRepository
	broadcaster *websocket.EventBroadcaster
	intervals   Intervals
}

// NewScheduler creates a sweep scheduler. The broadcaster may be nil when no
// WebSocket fan-out is wanted.
func NewScheduler(svc *access.Service, locks *storage.LockRepository, broadcaster *websocket.EventBroadcaster, intervals Intervals) *Scheduler {
	if intervals.Expiry <= 0 {
		intervals.Expiry = time.Minute
	}
	if intervals.Cleanup <= 0 {
		intervals.Cleanup = 5 * time.Minute
	}
	if intervals.StatusSync <= 0 {
		intervals.StatusSync = 15 * time.Minute
	}

	return &Scheduler{
		cron:        cron.New(),
		svc:         svc,
		locks:       locks,
		broadcaster: broadcaster,
		intervals:   intervals,
	}
}

// Start begins the sweep schedules.
func (s *Scheduler) Start() {
	s.cron.Schedule(cron.Every(s.intervals.Expiry), cron.FuncJob(s.expireSweep))
	s.cron.Schedule(cron.Every(s.intervals.Cleanup), cron.FuncJob(s.cleanupSweep))
	s.cron.Schedule(cron.Every(s.intervals.StatusSync), cron.FuncJob(s.statusSweep))

	s.cron.Start()
	log.Info().
		Dur("expiry", s.intervals.Expiry).
		Dur("cleanup", s.intervals.Cleanup).
		Dur("status_sync", s.intervals.StatusSync).
		Msg("maintenance scheduler started")
}

// Stop shuts the scheduler down, waiting for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info().Msg("maintenance scheduler stopped")
}

func (s *Scheduler) expireSweep() {
	ctx := context.Background()

	count, err := s.svc.ExpireOldAccessCodes(ctx)
	if err != nil {
		log.Error().Err(err).Msg("expiry sweep failed")
		return
	}

	if count > 0 && s.broadcaster != nil {
		s.broadcaster.BroadcastNotification("info", "Codes expired",
			"expired access codes past their validity window")
	}
}

func (s *Scheduler) cleanupSweep() {
	ctx := context.Background()

	if _, err := s.svc.CleanupExpiredCodes(ctx); err != nil {
		log.Error().Err(err).Msg("cleanup sweep failed")
	}
}

// statusSweep syncs health for every enabled lock. Per-lock failures are
// recorded on the lock itself, so the sweep keeps going.
func (s *Scheduler) statusSweep() {
	ctx := context.Background()

	locks, err := s.locks.List(ctx)
	if err != nil {
		log.Error().Err(err).Msg("listing locks for status sweep failed")
		return
	}

	for i := range locks {
		lock := &locks[i]
		if lock.Status == models.LockStatusDisabled {
			continue
		}

		previous := lock.Status
		if err := s.svc.SyncLockStatus(ctx, lock); err != nil {
			log.Error().Err(err).Str("lock_id", lock.ID).Msg("status sync failed")
			continue
		}

		if s.broadcaster != nil {
			updated, err := s.locks.GetByID(ctx, lock.ID)
			if err != nil || updated == nil {
				continue
			}
			if updated.Status != previous {
				s.broadcaster.BroadcastLockStatusChanged(updated)
			}
		}
	}
}
