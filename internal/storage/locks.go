package storage

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"
)

// AcquireNamedLock takes a mutual-exclusion lock on name that is released
// when the surrounding transaction ends. It must run inside WithTx.
func (q *Queries) AcquireNamedLock(ctx context.Context, name string, userID int64) error {
	if q.driver == DriverPostgres {
		if _, err := q.exec(ctx, "SELECT pg_advisory_xact_lock(?)", lockKey(name)); err != nil {
			return fmt.Errorf("acquire advisory lock %q: %w", name, err)
		}
		return nil
	}

	// SQLite transactions already hold the database write lock
	// (_txlock=immediate); writing the row makes the holder visible.
	_, err := q.exec(ctx,
		"INSERT INTO named_locks (lock_key, user_id, acquired_at) VALUES (?, ?, ?) "+
			"ON CONFLICT (lock_key) DO UPDATE SET user_id = excluded.user_id, acquired_at = excluded.acquired_at",
		name, userID, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("acquire named lock %q: %w", name, err)
	}
	return nil
}

func lockKey(name string) int64 {
	h := fnv.New64a()
	h.Write([]byte(name))
	return int64(h.Sum64())
}

// CategoryDedupLock names the per-user deduplication lock.
func CategoryDedupLock(userID int64) string {
	return fmt.Sprintf("category-dedup:%d", userID)
}
