package storage

import "context"

// Cascade routines delete deepest children first: month links, then
// entries, then the parent rows.

func (q *Queries) DeleteIncomesCascade(ctx context.Context, scope Scope) error {
	return q.DeleteEntries(ctx, Incomes, scope)
}

func (q *Queries) DeleteExpensesCascade(ctx context.Context, scope Scope) error {
	return q.DeleteEntries(ctx, Expenses, scope)
}

func (q *Queries) DeleteCardChargesCascade(ctx context.Context, scope Scope) error {
	return q.DeleteEntries(ctx, CardCharges, scope)
}

// DeleteBudgetsCascade removes budgets with their incomes, expenses and
// active months.
func (q *Queries) DeleteBudgetsCascade(ctx context.Context, scope Scope) error {
	if scope.Empty() {
		return nil
	}
	if err := q.DeleteEntriesByParent(ctx, Incomes, scope); err != nil {
		return err
	}
	if err := q.DeleteEntriesByParent(ctx, Expenses, scope); err != nil {
		return err
	}
	if err := q.DeleteMonthLinks(ctx, BudgetMonths, scope); err != nil {
		return err
	}
	where, args := scope.filter("id")
	if _, err := q.exec(ctx, "DELETE FROM budgets WHERE "+where, args...); err != nil {
		return err
	}
	return nil
}

// DeleteCardsCascade removes cards with their charges, limit overrides and
// closed invoices.
func (q *Queries) DeleteCardsCascade(ctx context.Context, scope Scope) error {
	if scope.Empty() {
		return nil
	}
	if err := q.DeleteEntriesByParent(ctx, CardCharges, scope); err != nil {
		return err
	}
	if err := q.DeleteCardMonthLimits(ctx, scope); err != nil {
		return err
	}
	if err := q.DeleteMonthLinks(ctx, CardClosedInvoices, scope); err != nil {
		return err
	}
	where, args := scope.filter("id")
	if _, err := q.exec(ctx, "DELETE FROM cards WHERE "+where, args...); err != nil {
		return err
	}
	return nil
}

// DeleteAllForUser wipes every row the user owns.
func (q *Queries) DeleteAllForUser(ctx context.Context, userID int64) error {
	all := AllOf(userID)
	steps := []func(context.Context, Scope) error{
		q.DeleteCardsCascade,
		q.DeleteBudgetsCascade,
		q.DeletePresetExpenses,
		q.DeletePresetIncomeTypes,
		q.DeleteCategories,
	}
	for _, step := range steps {
		if err := step(ctx, all); err != nil {
			return err
		}
	}
	return nil
}
