package database

import (
	"context"
	"fmt"
	"time"

	"github.com/NexusBot-official/Nexus/internal/logging"
)

// RetentionManager prunes mitigation records older than the retention
// period. Records of a guild that is still locked are kept.
type RetentionManager struct {
	db        *Database
	retention time.Duration
	now       func() time.Time
}

func NewRetentionManager(db *Database, retention time.Duration, now func() time.Time) *RetentionManager {
	if now == nil {
		now = time.Now
	}
	return &RetentionManager{db: db, retention: retention, now: now}
}

// Cleanup deletes expired records and returns how many were removed. A
// non-positive retention keeps everything.
func (rm *RetentionManager) Cleanup(ctx context.Context) (int64, error) {
	if rm.retention <= 0 {
		return 0, nil
	}
	cutoff := rm.now().Add(-rm.retention).UnixMilli()

	res, err := rm.db.db.ExecContext(ctx,
		`DELETE FROM mitigation_records
		 WHERE at < ? AND guild_id NOT IN (SELECT guild_id FROM lockdown_state)`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune records: %w", err)
	}
	return res.RowsAffected()
}

// Run calls Cleanup every interval until ctx is done.
func (rm *RetentionManager) Run(ctx context.Context, interval time.Duration) {
	if rm.retention <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := rm.Cleanup(ctx)
			if err != nil {
				logging.Warn("[DATABASE] Retention cleanup failed: %v", err)
				continue
			}
			if n > 0 {
				logging.Info("[DATABASE] Pruned %d mitigation records older than %v", n, rm.retention)
			}
		}
	}
}
