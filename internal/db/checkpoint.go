package db

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// StartWALCheckpointer truncates the sqlite write-ahead log every interval until ctx is done.
func StartWALCheckpointer(
	ctx context.Context,
	db *sqlx.DB,
	interval time.Duration,
	log *zap.Logger,
) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				var busy, logFrames, checkpointed int
				err := db.QueryRowxContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`).
					Scan(&busy, &logFrames, &checkpointed)
				if err != nil {
					log.Error("failed to checkpoint wal", zap.Error(err))
					continue
				}
				if checkpointed > 0 {
					log.Debug("checkpointed wal", zap.Int("frames", checkpointed), zap.Bool("busy", busy != 0))
				}
			}
		}
	}()
}
