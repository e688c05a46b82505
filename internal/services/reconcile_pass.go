package services

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"

	"orcamento/internal/core"
	applog "orcamento/internal/log"
	"orcamento/internal/storage"
)

// remap resolves identifiers sent by the client to server identifiers.
// ids holds what this pass inserted or updated, keyed by the client's id;
// owned holds server ids that were not resubmitted but still exist, which
// is how references into collections absent from a partial save resolve.
type remap struct {
	ids   map[core.ID]int64
	owned map[int64]bool
}

func newRemap() *remap {
	return &remap{ids: make(map[core.ID]int64), owned: make(map[int64]bool)}
}

func (r *remap) bind(clientID core.ID, serverID int64) {
	if clientID.IsZero() {
		return
	}
	r.ids[clientID] = serverID
}

func (r *remap) resolve(id core.ID) (int64, bool) {
	if id.IsZero() {
		return 0, false
	}
	if serverID, ok := r.ids[id]; ok {
		return serverID, true
	}
	if n, ok := id.Int64(); ok && r.owned[n] {
		return n, true
	}
	return 0, false
}

// snapshot is a stored entry as it was before this pass cleared it.
type snapshot struct {
	row    storage.Entry
	months []int
}

func (s snapshot) schedule() core.Schedule {
	return core.Schedule{
		Description:      s.row.Description,
		Amount:           s.row.Amount,
		Month:            core.Month(s.row.Month),
		Date:             s.row.Date,
		Recurrence:       core.Recurrence(s.row.Recurrence),
		Installments:     s.row.InstallmentTotal,
		InstallmentIndex: s.row.InstallmentIndex,
		Months:           core.MonthsFromInts(s.months),
	}
}

// reconcilePass is the state of one Reconcile call. It lives for a single
// transaction and is not shared.
type reconcilePass struct {
	q      *storage.Queries
	userID int64
	tree   core.Tree
	result *ReconcileResult

	budgets    *remap
	categories *remap
	cards      *remap

	snapshots map[storage.Table]map[int64]snapshot
}

func newReconcilePass(q *storage.Queries, userID int64, tree core.Tree, result *ReconcileResult) *reconcilePass {
	return &reconcilePass{
		q:          q,
		userID:     userID,
		tree:       tree,
		result:     result,
		budgets:    newRemap(),
		categories: newRemap(),
		cards:      newRemap(),
		snapshots:  make(map[storage.Table]map[int64]snapshot),
	}
}

func (p *reconcilePass) run(ctx context.Context) error {
	if err := p.takeSnapshots(ctx); err != nil {
		return err
	}

	if p.tree.Partial {
		if err := p.clearLeafCollections(ctx); err != nil {
			return err
		}
		if err := p.loadUntouchedReferences(ctx); err != nil {
			return err
		}
	} else {
		if err := p.clearAll(ctx); err != nil {
			return err
		}
	}

	// Dependency order: referenced rows exist before anything points at them.
	steps := []func(context.Context) error{
		p.saveBudgets,
		p.saveCategories,
		p.savePresetExpenses,
		p.saveIncomeTypes,
		p.saveCards,
		p.saveIncomes,
		p.saveExpenses,
		p.saveCardCharges,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			return err
		}
	}
	return nil
}

// takeSnapshots keeps the stored entries that may be edited by this pass,
// so FIXED edits can be compared with what they replace.
func (p *reconcilePass) takeSnapshots(ctx context.Context) error {
	tables := []struct {
		present bool
		table   storage.EntryTable
	}{
		{p.tree.Incomes.Present, storage.Incomes},
		{p.tree.Expenses.Present, storage.Expenses},
		{p.tree.CardCharges.Present, storage.CardCharges},
	}
	for _, t := range tables {
		if !t.present {
			continue
		}
		rows, err := p.q.ListEntries(ctx, t.table, p.userID)
		if err != nil {
			return err
		}
		links, err := p.q.ListMonthLinks(ctx, t.table.Months, p.userID)
		if err != nil {
			return err
		}
		months := storage.GroupMonths(links)
		byID := make(map[int64]snapshot, len(rows))
		for _, row := range rows {
			byID[row.ID] = snapshot{row: row, months: months[row.ID]}
		}
		p.snapshots[t.table.Name] = byID
	}
	return nil
}

func (p *reconcilePass) countOwned(ctx context.Context, table storage.Table) (int, error) {
	ids, err := p.q.OwnedIDs(ctx, table, p.userID)
	return len(ids), err
}

// clearAll removes every row the user owns ahead of a full replace.
func (p *reconcilePass) clearAll(ctx context.Context) error {
	counts := []struct {
		table storage.Table
		kind  *KindCounts
	}{
		{storage.TableBudgets, &p.result.Budgets},
		{storage.TableCategories, &p.result.Categories},
		{storage.TablePresetExpenses, &p.result.PresetExpenses},
		{storage.TablePresetIncomeTypes, &p.result.IncomeTypes},
		{storage.TableCards, &p.result.Cards},
		{storage.TableIncomes, &p.result.Incomes},
		{storage.TableExpenses, &p.result.Expenses},
		{storage.TableCardCharges, &p.result.CardCharges},
	}
	for _, c := range counts {
		n, err := p.countOwned(ctx, c.table)
		if err != nil {
			return err
		}
		c.kind.Deleted += n
	}
	return p.q.DeleteAllForUser(ctx, p.userID)
}

// clearLeafCollections empties the present collections nothing else
// references. Referenced collections are reconciled in place later.
func (p *reconcilePass) clearLeafCollections(ctx context.Context) error {
	all := storage.AllOf(p.userID)
	leaves := []struct {
		present bool
		table   storage.Table
		kind    *KindCounts
		clear   func(context.Context, storage.Scope) error
	}{
		{p.tree.CardCharges.Present, storage.TableCardCharges, &p.result.CardCharges, p.q.DeleteCardChargesCascade},
		{p.tree.Incomes.Present, storage.TableIncomes, &p.result.Incomes, p.q.DeleteIncomesCascade},
		{p.tree.Expenses.Present, storage.TableExpenses, &p.result.Expenses, p.q.DeleteExpensesCascade},
		{p.tree.PresetExpenses.Present, storage.TablePresetExpenses, &p.result.PresetExpenses, p.q.DeletePresetExpenses},
		{p.tree.IncomeTypes.Present, storage.TablePresetIncomeTypes, &p.result.IncomeTypes, p.q.DeletePresetIncomeTypes},
	}
	for _, leaf := range leaves {
		if !leaf.present {
			continue
		}
		n, err := p.countOwned(ctx, leaf.table)
		if err != nil {
			return err
		}
		if err := leaf.clear(ctx, all); err != nil {
			return err
		}
		leaf.kind.Deleted += n
	}
	return nil
}

// loadUntouchedReferences makes the rows of referenced collections absent
// from a partial save resolvable by their server ids.
func (p *reconcilePass) loadUntouchedReferences(ctx context.Context) error {
	refs := []struct {
		present bool
		table   storage.Table
		remap   *remap
	}{
		{p.tree.Budgets.Present, storage.TableBudgets, p.budgets},
		{p.tree.Categories.Present, storage.TableCategories, p.categories},
		{p.tree.Cards.Present, storage.TableCards, p.cards},
	}
	for _, ref := range refs {
		if ref.present {
			continue
		}
		ids, err := p.q.OwnedIDs(ctx, ref.table, p.userID)
		if err != nil {
			return err
		}
		for _, id := range ids {
			ref.remap.owned[id] = true
		}
	}
	return nil
}

// inPlace tracks the reconciliation of one referenced collection during a
// partial save: which stored rows exist and which were resubmitted.
type inPlace struct {
	existing map[int64]bool
	seen     map[int64]bool
}

func (p *reconcilePass) beginInPlace(ctx context.Context, table storage.Table) (*inPlace, error) {
	ip := &inPlace{existing: make(map[int64]bool), seen: make(map[int64]bool)}
	if !p.tree.Partial {
		return ip, nil
	}
	ids, err := p.q.OwnedIDs(ctx, table, p.userID)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		ip.existing[id] = true
	}
	return ip, nil
}

// upsert updates the stored row named by clientID when it is an owned
// server id not yet claimed by an earlier item, and inserts otherwise.
func (ip *inPlace) upsert(clientID core.ID, update func(int64) error, insert func() (int64, error)) (int64, bool, error) {
	if n, ok := clientID.Int64(); ok && ip.existing[n] && !ip.seen[n] {
		err := update(n)
		if err == nil {
			ip.seen[n] = true
			return n, true, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return 0, false, err
		}
	}
	id, err := insert()
	return id, false, err
}

// stale lists stored rows that were not resubmitted, in id order.
func (ip *inPlace) stale() []int64 {
	var ids []int64
	for id := range ip.existing {
		if !ip.seen[id] {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (p *reconcilePass) saveBudgets(ctx context.Context) error {
	if !p.tree.Budgets.Present {
		return nil
	}
	ip, err := p.beginInPlace(ctx, storage.TableBudgets)
	if err != nil {
		return err
	}

	counts := &p.result.Budgets
	for _, b := range p.tree.Budgets.Items {
		label := strings.TrimSpace(b.Label)
		id, updated, err := ip.upsert(b.ID,
			func(id int64) error { return p.q.UpdateBudget(ctx, p.userID, id, label) },
			func() (int64, error) { return p.q.InsertBudget(ctx, p.userID, label) })
		if err != nil {
			return err
		}
		if updated {
			counts.Updated++
			if err := p.q.DeleteMonthLinks(ctx, storage.BudgetMonths, storage.OnlyIDs(p.userID, id)); err != nil {
				return err
			}
		} else {
			counts.Inserted++
		}
		if err := p.q.InsertMonthLinks(ctx, storage.BudgetMonths, p.userID, id, core.MonthsToInts(core.NormalizeMonths(b.Months))); err != nil {
			return err
		}
		p.budgets.bind(b.ID, id)
	}

	stale := ip.stale()
	if err := p.q.DeleteBudgetsCascade(ctx, storage.OnlyIDs(p.userID, stale...)); err != nil {
		return err
	}
	counts.Deleted += len(stale)
	return nil
}

func (p *reconcilePass) saveCategories(ctx context.Context) error {
	if !p.tree.Categories.Present {
		return nil
	}
	ip, err := p.beginInPlace(ctx, storage.TableCategories)
	if err != nil {
		return err
	}

	counts := &p.result.Categories
	for _, c := range p.tree.Categories.Items {
		row := storage.Category{
			Name:   strings.TrimSpace(c.Name),
			Kind:   string(c.Kind.Normalize()),
			Active: c.IsActive(),
		}
		id, updated, err := ip.upsert(c.ID,
			func(id int64) error {
				row.ID = id
				return p.q.UpdateCategory(ctx, p.userID, row)
			},
			func() (int64, error) { return p.q.InsertCategory(ctx, p.userID, row) })
		if err != nil {
			return err
		}
		if updated {
			counts.Updated++
		} else {
			counts.Inserted++
		}
		p.categories.bind(c.ID, id)
	}

	stale := ip.stale()
	if err := p.q.DeleteCategories(ctx, storage.OnlyIDs(p.userID, stale...)); err != nil {
		return err
	}
	counts.Deleted += len(stale)
	return nil
}

func (p *reconcilePass) saveCards(ctx context.Context) error {
	if !p.tree.Cards.Present {
		return nil
	}
	ip, err := p.beginInPlace(ctx, storage.TableCards)
	if err != nil {
		return err
	}

	counts := &p.result.Cards
	for _, c := range p.tree.Cards.Items {
		row := storage.Card{
			Name:        strings.TrimSpace(c.Name),
			CreditLimit: c.CreditLimit,
		}
		id, updated, err := ip.upsert(c.ID,
			func(id int64) error {
				row.ID = id
				return p.q.UpdateCard(ctx, p.userID, row)
			},
			func() (int64, error) { return p.q.InsertCard(ctx, p.userID, row) })
		if err != nil {
			return err
		}
		if updated {
			counts.Updated++
			only := storage.OnlyIDs(p.userID, id)
			if err := p.q.DeleteCardMonthLimits(ctx, only); err != nil {
				return err
			}
			if err := p.q.DeleteMonthLinks(ctx, storage.CardClosedInvoices, only); err != nil {
				return err
			}
		} else {
			counts.Inserted++
		}

		months := make([]core.Month, 0, len(c.MonthlyLimits))
		for m := range c.MonthlyLimits {
			months = append(months, m)
		}
		for _, m := range core.NormalizeMonths(months) {
			limit := storage.CardMonthLimit{CardID: id, Month: int(m), Amount: c.MonthlyLimits[m]}
			if err := p.q.InsertCardMonthLimit(ctx, p.userID, limit); err != nil {
				return err
			}
		}
		closed := core.MonthsToInts(core.NormalizeMonths(c.ClosedInvoices))
		if err := p.q.InsertMonthLinks(ctx, storage.CardClosedInvoices, p.userID, id, closed); err != nil {
			return err
		}
		p.cards.bind(c.ID, id)
	}

	stale := ip.stale()
	if err := p.q.DeleteCardsCascade(ctx, storage.OnlyIDs(p.userID, stale...)); err != nil {
		return err
	}
	counts.Deleted += len(stale)
	return nil
}

func (p *reconcilePass) savePresetExpenses(ctx context.Context) error {
	counts := &p.result.PresetExpenses
	for _, preset := range p.tree.PresetExpenses.Items {
		row := storage.PresetExpense{
			Description: strings.TrimSpace(preset.Description),
			Active:      preset.IsActive(),
		}
		if !preset.CategoryID.IsZero() {
			categoryID, ok := p.categories.resolve(preset.CategoryID)
			if !ok {
				p.skip(ctx, core.KeyPresetExpenses, preset.ID, "category", preset.CategoryID)
				counts.Skipped++
				continue
			}
			row.CategoryID.Int64, row.CategoryID.Valid = categoryID, true
		}
		if _, err := p.q.InsertPresetExpense(ctx, p.userID, row); err != nil {
			return err
		}
		counts.Inserted++
	}
	return nil
}

func (p *reconcilePass) saveIncomeTypes(ctx context.Context) error {
	for _, t := range p.tree.IncomeTypes.Items {
		row := storage.PresetIncomeType{
			Description: strings.TrimSpace(t.Description),
			Recurring:   t.Recurring,
			Active:      t.IsActive(),
		}
		if _, err := p.q.InsertPresetIncomeType(ctx, p.userID, row); err != nil {
			return err
		}
		p.result.IncomeTypes.Inserted++
	}
	return nil
}

func (p *reconcilePass) skip(ctx context.Context, kind string, id core.ID, reference string, target core.ID) {
	slog.DebugContext(ctx, "Skipping row with unresolved reference",
		applog.FieldUserID, p.userID,
		applog.FieldKind, kind,
		applog.FieldRowID, string(id),
		applog.FieldReference, reference,
		applog.FieldTarget, string(target))
}
