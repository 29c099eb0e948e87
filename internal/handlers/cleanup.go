package handlers

import (
	"context"
	"sync"
	"time"

	"DF-WIZARD/internal/logger"

	"go.uber.org/zap"
)

// StagingSweeper removes staged files older than maxAge.
type StagingSweeper interface {
	Sweep(ctx context.Context, maxAge time.Duration) (int, error)
}

// SessionPurger drops session values that have not been touched for maxAge.
type SessionPurger interface {
	PurgeOlderThan(ctx context.Context, maxAge time.Duration) (int64, error)
}

// CleanupService removes abandoned staged files and, when the session store
// keeps no TTL of its own, stale session rows.
type CleanupService struct {
	staging       StagingSweeper
	stagingMaxAge time.Duration
	purger        SessionPurger
	sessionMaxAge time.Duration
	interval      time.Duration

	ticker   *time.Ticker
	done     chan struct{}
	stopOnce sync.Once
}

// NewCleanupService builds the janitor. purger may be nil.
func NewCleanupService(staging StagingSweeper, stagingMaxAge time.Duration, purger SessionPurger, sessionMaxAge time.Duration) *CleanupService {
	return &CleanupService{
		staging:       staging,
		stagingMaxAge: stagingMaxAge,
		purger:        purger,
		sessionMaxAge: sessionMaxAge,
		interval:      time.Hour,
		done:          make(chan struct{}),
	}
}

func (cs *CleanupService) Start() {
	cs.ticker = time.NewTicker(cs.interval)
	go func() {
		for {
			select {
			case <-cs.done:
				return
			case <-cs.ticker.C:
				cs.RunOnce(context.Background())
			}
		}
	}()
	logger.Log.Info("cleanup service started", zap.Duration("interval", cs.interval))
}

func (cs *CleanupService) Stop() {
	cs.stopOnce.Do(func() {
		if cs.ticker != nil {
			cs.ticker.Stop()
		}
		close(cs.done)
		logger.Log.Info("cleanup service stopped")
	})
}

// RunOnce performs a single cleanup pass.
func (cs *CleanupService) RunOnce(ctx context.Context) {
	if cs.staging != nil && cs.stagingMaxAge > 0 {
		n, err := cs.staging.Sweep(ctx, cs.stagingMaxAge)
		if err != nil {
			logger.Log.Warn("failed to sweep staged files", zap.Int("removed", n), zap.Error(err))
		} else if n > 0 {
			logger.Log.Info("removed stale staged files", zap.Int("files", n))
		}
	}
	if cs.purger != nil && cs.sessionMaxAge > 0 {
		n, err := cs.purger.PurgeOlderThan(ctx, cs.sessionMaxAge)
		if err != nil {
			logger.Log.Warn("failed to purge sessions", zap.Error(err))
			return
		}
		if n > 0 {
			logger.Log.Info("purged stale session values", zap.Int64("rows", n))
		}
	}
}
