package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"
)

// Purger removes stale call state
type Purger interface {
	PurgeSessions(ctx context.Context, before time.Time) (int, error)
	PurgeClaims(ctx context.Context, before time.Time) (int, error)
}

// Retention holds how long each kind of call state is kept. Claims must
// outlive the platform's transcription redelivery window or a late duplicate
// is notified again
type Retention struct {
	Sessions time.Duration
	Claims   time.Duration
}

// Janitor purges call state older than its retention on a cron schedule
type Janitor struct {
	purger    Purger
	schedule  string
	retention Retention
	logger    *slog.Logger
	now       func() time.Time
}

// NewJanitor validates the cron expression and builds a janitor
func NewJanitor(purger Purger, schedule string, retention Retention, logger *slog.Logger) (*Janitor, error) {
	if !gronx.New().IsValid(schedule) {
		return nil, fmt.Errorf("invalid purge schedule %q", schedule)
	}
	if retention.Sessions <= 0 {
		return nil, fmt.Errorf("session retention must be positive, got %s", retention.Sessions)
	}
	if retention.Claims < retention.Sessions {
		return nil, fmt.Errorf("claim retention %s is shorter than session retention %s", retention.Claims, retention.Sessions)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{
		purger:    purger,
		schedule:  schedule,
		retention: retention,
		logger:    logger.With("component", "janitor"),
		now:       time.Now,
	}, nil
}

// Run purges on every schedule tick until ctx is done
func (j *Janitor) Run(ctx context.Context) error {
	for {
		next, err := gronx.NextTickAfter(j.schedule, j.now(), false)
		if err != nil {
			return fmt.Errorf("next purge tick: %w", err)
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		j.PurgeOnce(ctx)
	}
}

// PurgeOnce removes sessions and transcription claims past their retention
// and returns the number of sessions removed
func (j *Janitor) PurgeOnce(ctx context.Context) int {
	now := j.now()
	removed, err := j.purger.PurgeSessions(ctx, now.Add(-j.retention.Sessions))
	if err != nil {
		j.logger.Error("purge sessions", "error", err)
	} else if removed > 0 {
		j.logger.Info("purged call sessions", "count", removed)
	}

	claims, err := j.purger.PurgeClaims(ctx, now.Add(-j.retention.Claims))
	if err != nil {
		j.logger.Error("purge transcription claims", "error", err)
	} else if claims > 0 {
		j.logger.Info("purged transcription claims", "count", claims)
	}
	return removed
}
