package storage

import (
	"context"
	"fmt"
)

// InsertMonthLinks stores one row per month for ownerID.
func (q *Queries) InsertMonthLinks(ctx context.Context, t MonthLinkTable, userID, ownerID int64, months []int) error {
	query := "INSERT INTO " + string(t.Name) + " (user_id, " + t.OwnerColumn + ", month) VALUES (?, ?, ?)"
	for _, m := range months {
		if _, err := q.exec(ctx, query, userID, ownerID, m); err != nil {
			return fmt.Errorf("insert %s: %w", t.Name, err)
		}
	}
	return nil
}

// ListMonthLinks returns every month link of the user, ordered by owner and
// month.
func (q *Queries) ListMonthLinks(ctx context.Context, t MonthLinkTable, userID int64) ([]MonthLink, error) {
	rows, err := q.query(ctx,
		"SELECT "+t.OwnerColumn+", month FROM "+string(t.Name)+" WHERE user_id = ? ORDER BY "+t.OwnerColumn+", month",
		userID)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", t.Name, err)
	}
	defer rows.Close()

	var links []MonthLink
	for rows.Next() {
		var l MonthLink
		if err := rows.Scan(&l.OwnerID, &l.Month); err != nil {
			return nil, fmt.Errorf("scan %s: %w", t.Name, err)
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

// DeleteMonthLinks removes the links of the owners selected by scope.
func (q *Queries) DeleteMonthLinks(ctx context.Context, t MonthLinkTable, scope Scope) error {
	if scope.Empty() {
		return nil
	}
	where, args := scope.filter(t.OwnerColumn)
	if _, err := q.exec(ctx, "DELETE FROM "+string(t.Name)+" WHERE "+where, args...); err != nil {
		return fmt.Errorf("delete %s: %w", t.Name, err)
	}
	return nil
}

// GroupMonths folds links into owner id -> months.
func GroupMonths(links []MonthLink) map[int64][]int {
	out := make(map[int64][]int, len(links))
	for _, l := range links {
		out[l.OwnerID] = append(out[l.OwnerID], l.Month)
	}
	return out
}
