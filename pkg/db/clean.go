package db

import (
	"context"
	"fmt"
	"time"

	"github.com/mfreeman451/lineradar/pkg/models"
	"go.uber.org/zap"
)

// CleanOldData removes context history, closed downtime and terminal
// andons older than the retention period. Open records are kept.
func (db *DB) CleanOldData(ctx context.Context, retentionPeriod time.Duration) (err error) {
	cutoff := time.Now().UTC().Add(-retentionPeriod)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", errFailedToBeginTx, err)
	}
	defer func() { db.rollbackOnError(tx, err) }()

	if _, err = tx.ExecContext(ctx, db.rebind(
		`DELETE FROM production_context_history WHERE recorded_at < ?`), cutoff); err != nil {
		return fmt.Errorf("%w context history: %w", errFailedToClean, err)
	}

	if _, err = tx.ExecContext(ctx, db.rebind(
		`DELETE FROM downtime_events WHERE end_time IS NOT NULL AND end_time < ?`), cutoff); err != nil {
		return fmt.Errorf("%w downtime: %w", errFailedToClean, err)
	}

	if _, err = tx.ExecContext(ctx, db.rebind(
		`DELETE FROM andon_events WHERE status IN (?, ?) AND updated_at < ?`),
		string(models.AndonResolved), string(models.AndonCancelled), cutoff); err != nil {
		return fmt.Errorf("%w andons: %w", errFailedToClean, err)
	}

	return tx.Commit()
}

// RunCleaner calls CleanOldData every interval until ctx is done.
func (db *DB) RunCleaner(ctx context.Context, retention, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := db.CleanOldData(ctx, retention); err != nil {
				db.logger.Warn("retention cleanup failed", zap.Error(err))
			}
		}
	}
}
