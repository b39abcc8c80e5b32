package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"hostwatch/internal/logger"
	"hostwatch/internal/metrics"
)

// Retention periodically prunes history older than Keep.
type Retention struct {
	history History
	keep    time.Duration
	cron    *cron.Cron
	now     func() time.Time
}

// NewRetention schedules pruning of h on schedule, a standard cron expression
// or descriptor such as "@hourly".
func NewRetention(h History, keep time.Duration, schedule string) (*Retention, error) {
	r := &Retention{
		history: h,
		keep:    keep,
		cron:    cron.New(),
		now:     time.Now,
	}
	if _, err := r.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		_, _ = r.PruneOnce(ctx)
	}); err != nil {
		return nil, fmt.Errorf("invalid prune schedule %q: %w", schedule, err)
	}
	return r, nil
}

func (r *Retention) Start() { r.cron.Start() }

// Stop stops the scheduler and waits for a running prune.
func (r *Retention) Stop() {
	<-r.cron.Stop().Done()
}

// PruneOnce deletes every point older than the retention window.
func (r *Retention) PruneOnce(ctx context.Context) (int64, error) {
	log := logger.WithComponent("retention")
	cutoff := r.now().Add(-r.keep)

	n, err := r.history.Prune(ctx, cutoff)
	if err != nil {
		log.Error().Err(err).Time("cutoff", cutoff).Msg("history prune failed")
		return 0, err
	}
	metrics.HistoryPruned.Add(float64(n))
	if n > 0 {
		log.Info().Int64("removed", n).Time("cutoff", cutoff).Msg("history pruned")
	}
	return n, nil
}
