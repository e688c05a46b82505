package storage

import (
	"context"
	"fmt"
)

// InsertEntry stores one income, expense or card charge row.
func (q *Queries) InsertEntry(ctx context.Context, t EntryTable, userID int64, e Entry) (int64, error) {
	query := "INSERT INTO " + string(t.Name) + " (user_id, " + t.ParentColumn + ", category_id, description, note, amount, " +
		t.MonthColumn + ", date, status, recurrence, installment_index, installment_total) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
	id, err := q.insertReturningID(ctx, query,
		userID, e.ParentID, e.CategoryID, e.Description, e.Note, amountArg(e.Amount),
		e.Month, e.Date, e.Status, e.Recurrence, e.InstallmentIndex, e.InstallmentTotal)
	if err != nil {
		return 0, fmt.Errorf("insert %s: %w", t.Name, err)
	}
	return id, nil
}

func (q *Queries) ListEntries(ctx context.Context, t EntryTable, userID int64) ([]Entry, error) {
	query := "SELECT id, " + t.ParentColumn + ", category_id, description, note, amount, " + t.MonthColumn +
		", date, status, recurrence, installment_index, installment_total FROM " + string(t.Name) +
		" WHERE user_id = ? ORDER BY id"
	rows, err := q.query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", t.Name, err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.ParentID, &e.CategoryID, &e.Description, &e.Note, &e.Amount, &e.Month,
			&e.Date, &e.Status, &e.Recurrence, &e.InstallmentIndex, &e.InstallmentTotal); err != nil {
			return nil, fmt.Errorf("scan %s: %w", t.Name, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteEntries removes the entries selected by scope together with their
// month links.
func (q *Queries) DeleteEntries(ctx context.Context, t EntryTable, scope Scope) error {
	if scope.Empty() {
		return nil
	}
	if err := q.DeleteMonthLinks(ctx, t.Months, scope); err != nil {
		return err
	}
	where, args := scope.filter("id")
	if _, err := q.exec(ctx, "DELETE FROM "+string(t.Name)+" WHERE "+where, args...); err != nil {
		return fmt.Errorf("delete %s: %w", t.Name, err)
	}
	return nil
}

// DeleteEntriesByParent removes the entries hanging off the budgets or cards
// selected by parents, month links first.
func (q *Queries) DeleteEntriesByParent(ctx context.Context, t EntryTable, parents Scope) error {
	if parents.Empty() {
		return nil
	}
	where, args := parents.filter(t.ParentColumn)
	sub := "SELECT id FROM " + string(t.Name) + " WHERE " + where
	monthArgs := append([]any{parents.UserID}, args...)
	if _, err := q.exec(ctx,
		"DELETE FROM "+string(t.Months.Name)+" WHERE user_id = ? AND "+t.Months.OwnerColumn+" IN ("+sub+")",
		monthArgs...); err != nil {
		return fmt.Errorf("delete %s by parent: %w", t.Months.Name, err)
	}
	if _, err := q.exec(ctx, "DELETE FROM "+string(t.Name)+" WHERE "+where, args...); err != nil {
		return fmt.Errorf("delete %s by parent: %w", t.Name, err)
	}
	return nil
}
