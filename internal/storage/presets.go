package storage

import (
	"context"
	"fmt"
)

func (q *Queries) InsertPresetExpense(ctx context.Context, userID int64, p PresetExpense) (int64, error) {
	id, err := q.insertReturningID(ctx,
		"INSERT INTO preset_expenses (user_id, description, category_id, active) VALUES (?, ?, ?, ?)",
		userID, p.Description, p.CategoryID, p.Active)
	if err != nil {
		return 0, fmt.Errorf("insert preset expense: %w", err)
	}
	return id, nil
}

func (q *Queries) ListPresetExpenses(ctx context.Context, userID int64) ([]PresetExpense, error) {
	rows, err := q.query(ctx,
		"SELECT id, description, category_id, active FROM preset_expenses WHERE user_id = ? ORDER BY id", userID)
	if err != nil {
		return nil, fmt.Errorf("list preset expenses: %w", err)
	}
	defer rows.Close()

	var out []PresetExpense
	for rows.Next() {
		var p PresetExpense
		if err := rows.Scan(&p.ID, &p.Description, &p.CategoryID, &p.Active); err != nil {
			return nil, fmt.Errorf("scan preset expense: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (q *Queries) DeletePresetExpenses(ctx context.Context, scope Scope) error {
	if scope.Empty() {
		return nil
	}
	where, args := scope.filter("id")
	if _, err := q.exec(ctx, "DELETE FROM preset_expenses WHERE "+where, args...); err != nil {
		return fmt.Errorf("delete preset expenses: %w", err)
	}
	return nil
}

func (q *Queries) InsertPresetIncomeType(ctx context.Context, userID int64, p PresetIncomeType) (int64, error) {
	id, err := q.insertReturningID(ctx,
		"INSERT INTO preset_income_types (user_id, description, recurring, active) VALUES (?, ?, ?, ?)",
		userID, p.Description, p.Recurring, p.Active)
	if err != nil {
		return 0, fmt.Errorf("insert preset income type: %w", err)
	}
	return id, nil
}

func (q *Queries) ListPresetIncomeTypes(ctx context.Context, userID int64) ([]PresetIncomeType, error) {
	rows, err := q.query(ctx,
		"SELECT id, description, recurring, active FROM preset_income_types WHERE user_id = ? ORDER BY id", userID)
	if err != nil {
		return nil, fmt.Errorf("list preset income types: %w", err)
	}
	defer rows.Close()

	var out []PresetIncomeType
	for rows.Next() {
		var p PresetIncomeType
		if err := rows.Scan(&p.ID, &p.Description, &p.Recurring, &p.Active); err != nil {
			return nil, fmt.Errorf("scan preset income type: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (q *Queries) DeletePresetIncomeTypes(ctx context.Context, scope Scope) error {
	if scope.Empty() {
		return nil
	}
	where, args := scope.filter("id")
	if _, err := q.exec(ctx, "DELETE FROM preset_income_types WHERE "+where, args...); err != nil {
		return fmt.Errorf("delete preset income types: %w", err)
	}
	return nil
}
