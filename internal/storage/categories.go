package storage

import (
	"context"
	"fmt"
)

func (q *Queries) InsertCategory(ctx context.Context, userID int64, c Category) (int64, error) {
	id, err := q.insertReturningID(ctx,
		"INSERT INTO categories (user_id, name, kind, active) VALUES (?, ?, ?, ?)",
		userID, c.Name, c.Kind, c.Active)
	if err != nil {
		return 0, fmt.Errorf("insert category: %w", err)
	}
	return id, nil
}

func (q *Queries) UpdateCategory(ctx context.Context, userID int64, c Category) error {
	err := q.execTargeted(ctx,
		"UPDATE categories SET name = ?, kind = ?, active = ? WHERE user_id = ? AND id = ?",
		c.Name, c.Kind, c.Active, userID, c.ID)
	if err != nil {
		return fmt.Errorf("update category %d: %w", c.ID, err)
	}
	return nil
}

// ListCategories returns active and inactive categories.
func (q *Queries) ListCategories(ctx context.Context, userID int64) ([]Category, error) {
	return q.listCategories(ctx, "SELECT id, name, kind, active FROM categories WHERE user_id = ? ORDER BY id", userID)
}

// ListActiveCategories returns active categories in id order.
func (q *Queries) ListActiveCategories(ctx context.Context, userID int64) ([]Category, error) {
	return q.listCategories(ctx,
		"SELECT id, name, kind, active FROM categories WHERE user_id = ? AND active = ? ORDER BY id",
		userID, true)
}

func (q *Queries) listCategories(ctx context.Context, query string, args ...any) ([]Category, error) {
	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Kind, &c.Active); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// RepointCategory moves every reference to one of from onto to, across
// incomes, expenses, card charges and preset expenses.
func (q *Queries) RepointCategory(ctx context.Context, userID, to int64, from []int64) error {
	if len(from) == 0 {
		return nil
	}
	in, inArgs := inList(from)
	for _, table := range []Table{TableIncomes, TableExpenses, TableCardCharges, TablePresetExpenses} {
		args := append([]any{to, userID}, inArgs...)
		_, err := q.exec(ctx,
			"UPDATE "+string(table)+" SET category_id = ? WHERE user_id = ? AND category_id IN ("+in+")",
			args...)
		if err != nil {
			return fmt.Errorf("repoint %s categories: %w", table, err)
		}
	}
	return nil
}

// DeactivateCategories flags ids inactive and returns how many changed.
func (q *Queries) DeactivateCategories(ctx context.Context, userID int64, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	in, inArgs := inList(ids)
	args := append([]any{false, userID}, inArgs...)
	res, err := q.exec(ctx, "UPDATE categories SET active = ? WHERE user_id = ? AND id IN ("+in+")", args...)
	if err != nil {
		return 0, fmt.Errorf("deactivate categories: %w", err)
	}
	return res.RowsAffected()
}

// DeleteCategories leaves referencing rows untouched; readers render the
// dangling reference as a placeholder.
func (q *Queries) DeleteCategories(ctx context.Context, scope Scope) error {
	if scope.Empty() {
		return nil
	}
	where, args := scope.filter("id")
	if _, err := q.exec(ctx, "DELETE FROM categories WHERE "+where, args...); err != nil {
		return fmt.Errorf("delete categories: %w", err)
	}
	return nil
}

// ListCategoryOwners returns users holding more than one active category,
// the only ones that can have duplicates, in id order after afterUserID.
func (q *Queries) ListCategoryOwners(ctx context.Context, afterUserID int64, limit int) ([]int64, error) {
	rows, err := q.query(ctx,
		`SELECT user_id FROM categories WHERE active = ? AND user_id > ?
		GROUP BY user_id HAVING COUNT(*) > 1 ORDER BY user_id LIMIT ?`,
		true, afterUserID, limit)
	if err != nil {
		return nil, fmt.Errorf("list category owners: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan category owner: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
