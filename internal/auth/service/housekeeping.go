package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/studyhub/internal/auth/store"
)

// DefaultLedgerRetention is how long login attempts are kept when no
// retention is configured.
const DefaultLedgerRetention = 90 * 24 * time.Hour

// HousekeepingService periodically purges used or expired unlock tokens and
// login attempts older than the retention period.
type HousekeepingService struct {
	Store     store.Store
	Logger    *slog.Logger
	Interval  time.Duration
	Retention time.Duration
	Now       func() time.Time

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService defaults a non-positive interval to one hour and a
// non-positive retention to DefaultLedgerRetention.
func NewHousekeepingService(st store.Store, logger *slog.Logger, interval, retention time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = time.Hour
	}
	if retention <= 0 {
		retention = DefaultLedgerRetention
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &HousekeepingService{
		Store:     st,
		Logger:    logger,
		Interval:  interval,
		Retention: retention,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start runs cleanup immediately and then every Interval until Stop.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started",
		"interval", s.Interval,
		"retention", s.Retention,
	)
}

// Stop blocks until an in-progress cleanup has finished.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.RunOnce(context.Background())

	for {
		select {
		case <-ticker.C:
			s.RunOnce(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// CleanupStats counts the rows removed by one cleanup pass.
type CleanupStats struct {
	UnlockTokens  int64
	LoginAttempts int64
}

// RunOnce performs a single cleanup pass. Each deletion is independent; a
// failure in one does not skip the other.
func (s *HousekeepingService) RunOnce(ctx context.Context) CleanupStats {
	now := nowFrom(s.Now)
	var stats CleanupStats

	n, err := s.Store.UnlockTokens().DeleteExpired(ctx, now)
	if err != nil {
		s.Logger.Error("failed to delete expired unlock tokens", "error", err)
	} else {
		stats.UnlockTokens = n
	}

	n, err = s.Store.LoginAttempts().DeleteBefore(ctx, now.Add(-s.Retention))
	if err != nil {
		s.Logger.Error("failed to delete old login attempts", "error", err)
	} else {
		stats.LoginAttempts = n
	}

	s.Logger.Info("housekeeping cleanup completed",
		"unlock_tokens_deleted", stats.UnlockTokens,
		"login_attempts_deleted", stats.LoginAttempts,
	)
	return stats
}
