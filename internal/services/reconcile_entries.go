package services

import (
	"context"
	"database/sql"

	"orcamento/internal/core"
	"orcamento/internal/storage"
)

// submittedEntry is the kind-independent shape of an income, expense or
// card charge on its way to storage.
type submittedEntry struct {
	ID         core.ID
	ParentID   core.ID
	CategoryID core.ID
	Note       string
	Status     core.Status
	Schedule   core.Schedule
}

func fromEntry(e core.Entry) submittedEntry {
	return submittedEntry{
		ID:         e.ID,
		ParentID:   e.BudgetID,
		CategoryID: e.CategoryID,
		Note:       e.Note,
		Status:     e.Status,
		Schedule:   e.Schedule(),
	}
}

func fromCardCharge(c core.CardCharge) submittedEntry {
	return submittedEntry{
		ID:         c.ID,
		ParentID:   c.CardID,
		CategoryID: c.CategoryID,
		Note:       c.Note,
		Status:     c.Status,
		Schedule:   c.Schedule(),
	}
}

// entryKind carries what differs between the three entry collections.
type entryKind struct {
	key     string
	table   storage.EntryTable
	parents *remap
	settled core.Status
	counts  *KindCounts
	// categoryOptional reports whether a row may be stored without a
	// resolvable category.
	categoryOptional func(description string) bool
}

func categoryRequired(string) bool { return false }

func (p *reconcilePass) saveIncomes(ctx context.Context) error {
	kind := entryKind{
		key:              core.KeyIncomes,
		table:            storage.Incomes,
		parents:          p.budgets,
		settled:          core.StatusReceived,
		counts:           &p.result.Incomes,
		categoryOptional: categoryRequired,
	}
	for _, item := range p.tree.Incomes.Items {
		rows := core.MaterializeEntry(item, core.MaterializeOptions{FilterMonth: item.Month})
		if err := p.saveEntry(ctx, kind, fromEntry(item), mapEntries(rows, fromEntry)); err != nil {
			return err
		}
	}
	return nil
}

func (p *reconcilePass) saveExpenses(ctx context.Context) error {
	kind := entryKind{
		key:              core.KeyExpenses,
		table:            storage.Expenses,
		parents:          p.budgets,
		settled:          core.StatusPaid,
		counts:           &p.result.Expenses,
		categoryOptional: core.IsCardInvoiceExpense,
	}
	for _, item := range p.tree.Expenses.Items {
		rows := core.MaterializeEntry(item, core.MaterializeOptions{FilterMonth: item.Month})
		if err := p.saveEntry(ctx, kind, fromEntry(item), mapEntries(rows, fromEntry)); err != nil {
			return err
		}
	}
	return nil
}

func (p *reconcilePass) saveCardCharges(ctx context.Context) error {
	kind := entryKind{
		key:              core.KeyCardCharges,
		table:            storage.CardCharges,
		parents:          p.cards,
		settled:          core.StatusPaid,
		counts:           &p.result.CardCharges,
		categoryOptional: categoryRequired,
	}
	for _, item := range p.tree.CardCharges.Items {
		rows := core.MaterializeEntry(item, core.MaterializeOptions{FilterMonth: item.ReferenceMonth})
		if err := p.saveEntry(ctx, kind, fromCardCharge(item), mapEntries(rows, fromCardCharge)); err != nil {
			return err
		}
	}
	return nil
}

func mapEntries[T any](rows []T, convert func(T) submittedEntry) []submittedEntry {
	out := make([]submittedEntry, len(rows))
	for i, row := range rows {
		out[i] = convert(row)
	}
	return out
}

// saveEntry stores the materialized rows of one submitted entry. Entries
// whose parent or required category cannot be resolved are skipped.
func (p *reconcilePass) saveEntry(ctx context.Context, kind entryKind, submitted submittedEntry, rows []submittedEntry) error {
	parentID, ok := kind.parents.resolve(submitted.ParentID)
	if !ok {
		p.skip(ctx, kind.key, submitted.ID, "parent", submitted.ParentID)
		kind.counts.Skipped++
		return nil
	}
	var category sql.NullInt64
	category.Int64, category.Valid = p.categories.resolve(submitted.CategoryID)
	if !category.Valid && !kind.categoryOptional(submitted.Schedule.Description) {
		p.skip(ctx, kind.key, submitted.ID, "category", submitted.CategoryID)
		kind.counts.Skipped++
		return nil
	}

	if len(rows) > 0 {
		if err := p.splitFixedEdit(ctx, kind, submitted.ID, rows[0].Schedule); err != nil {
			return err
		}
	}

	for _, row := range rows {
		entry := storage.Entry{
			ParentID:   parentID,
			CategoryID: category,
			Note:       row.Note,
			Status:     string(row.Status.Normalize(kind.settled)),
		}
		if err := p.insertEntry(ctx, kind, entry, row.Schedule); err != nil {
			return err
		}
	}
	return nil
}

// splitFixedEdit keeps the months an edit removed from a stored FIXED entry
// on a copy of the stored row, so the history of those months survives.
func (p *reconcilePass) splitFixedEdit(ctx context.Context, kind entryKind, id core.ID, edited core.Schedule) error {
	serverID, ok := id.Int64()
	if !ok {
		return nil
	}
	stored, ok := p.snapshots[kind.table.Name][serverID]
	if !ok {
		return nil
	}
	// One stored row splits at most once per pass.
	delete(p.snapshots[kind.table.Name], serverID)

	preserved, ok := core.SplitFixedEdit(stored.schedule(), edited)
	if !ok {
		return nil
	}

	entry := stored.row
	parentID, ok := kind.parents.resolve(core.NewID(stored.row.ParentID))
	if !ok {
		p.skip(ctx, kind.key, id, "parent", core.NewID(stored.row.ParentID))
		kind.counts.Skipped++
		return nil
	}
	entry.ParentID = parentID

	var category sql.NullInt64
	if stored.row.CategoryID.Valid {
		category.Int64, category.Valid = p.categories.resolve(core.NewID(stored.row.CategoryID.Int64))
	}
	if !category.Valid && !kind.categoryOptional(preserved.Description) {
		p.skip(ctx, kind.key, id, "category", core.NewID(stored.row.CategoryID.Int64))
		kind.counts.Skipped++
		return nil
	}
	entry.CategoryID = category

	return p.insertEntry(ctx, kind, entry, preserved)
}

// insertEntry stores entry with the recurrence fields of s and its active
// months.
func (p *reconcilePass) insertEntry(ctx context.Context, kind entryKind, entry storage.Entry, s core.Schedule) error {
	entry.ID = 0
	entry.Description = s.Description
	entry.Amount = s.Amount
	entry.Month = int(s.Month)
	entry.Date = s.Date
	entry.Recurrence = string(s.Recurrence.Normalize())
	entry.InstallmentIndex = s.InstallmentIndex
	entry.InstallmentTotal = s.Installments

	id, err := p.q.InsertEntry(ctx, kind.table, p.userID, entry)
	if err != nil {
		return err
	}
	if err := p.q.InsertMonthLinks(ctx, kind.table.Months, p.userID, id, core.MonthsToInts(s.Months)); err != nil {
		return err
	}
	kind.counts.Inserted++
	return nil
}
