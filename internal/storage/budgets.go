package storage

import (
	"context"
	"fmt"
)

func (q *Queries) InsertBudget(ctx context.Context, userID int64, label string) (int64, error) {
	id, err := q.insertReturningID(ctx, "INSERT INTO budgets (user_id, label) VALUES (?, ?)", userID, label)
	if err != nil {
		return 0, fmt.Errorf("insert budget: %w", err)
	}
	return id, nil
}

// UpdateBudget returns ErrNotFound when the budget is missing or owned by
// someone else.
func (q *Queries) UpdateBudget(ctx context.Context, userID, id int64, label string) error {
	err := q.execTargeted(ctx, "UPDATE budgets SET label = ? WHERE user_id = ? AND id = ?", label, userID, id)
	if err != nil {
		return fmt.Errorf("update budget %d: %w", id, err)
	}
	return nil
}

func (q *Queries) ListBudgets(ctx context.Context, userID int64) ([]Budget, error) {
	rows, err := q.query(ctx, "SELECT id, label FROM budgets WHERE user_id = ? ORDER BY id", userID)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	defer rows.Close()

	var out []Budget
	for rows.Next() {
		var b Budget
		if err := rows.Scan(&b.ID, &b.Label); err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
