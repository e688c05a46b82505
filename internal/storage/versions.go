package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// BumpConfigVersion advances the user's configuration version and returns
// the new value. Run it in the transaction that changes the data so both
// commit together.
func (q *Queries) BumpConfigVersion(ctx context.Context, userID int64) (int64, error) {
	var version int64
	err := q.queryRow(ctx,
		"INSERT INTO config_versions (user_id, version) VALUES (?, 1) "+
			"ON CONFLICT (user_id) DO UPDATE SET version = config_versions.version + 1 "+
			"RETURNING version",
		userID).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("bump config version: %w", err)
	}
	return version, nil
}

// ConfigVersion returns the user's configuration version, 0 when the user
// never saved.
func (q *Queries) ConfigVersion(ctx context.Context, userID int64) (int64, error) {
	var version int64
	err := q.queryRow(ctx, "SELECT version FROM config_versions WHERE user_id = ?", userID).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read config version: %w", err)
	}
	return version, nil
}
