package services

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"orcamento/internal/cache"
	"orcamento/internal/core"
	applog "orcamento/internal/log"
	"orcamento/internal/storage"
)

// ConfigReader assembles the read-model of a user's configuration.
type ConfigReader struct {
	store  *storage.Store
	merger CategoryMerger
	views  cache.Cache[core.View]
}

// NewConfigReader wires the reader. merger and views may be nil.
func NewConfigReader(store *storage.Store, merger CategoryMerger, views cache.Cache[core.View]) *ConfigReader {
	return &ConfigReader{
		store:  store,
		merger: merger,
		views:  views,
	}
}

// userRows is every stored row of one user, table by table.
type userRows struct {
	budgets        []storage.Budget
	budgetMonths   []storage.MonthLink
	categories     []storage.Category
	presetExpenses []storage.PresetExpense
	incomeTypes    []storage.PresetIncomeType
	cards          []storage.Card
	cardLimits     []storage.CardMonthLimit
	closedInvoices []storage.MonthLink
	incomes        []storage.Entry
	incomeMonths   []storage.MonthLink
	expenses       []storage.Entry
	expenseMonths  []storage.MonthLink
	cardCharges    []storage.Entry
	chargeMonths   []storage.MonthLink
}

// LoadView merges duplicate categories first, then serves the cached view
// or assembles a fresh one. A failed merge is logged and does not block
// the read.
//
// The cache key carries the configuration version read before the tables
// are. A save or merge committing meanwhile bumps the version, so whatever
// this call caches lands under a key no later read asks for.
func (r *ConfigReader) LoadView(ctx context.Context, userID int64) (core.View, error) {
	if userID <= 0 {
		return core.View{}, ErrInvalidUser
	}

	if r.merger != nil {
		if _, err := r.merger.MergeDuplicateCategories(ctx, userID); err != nil {
			slog.WarnContext(ctx, "Category merge before read failed",
				applog.NewFields().WithOperation(applog.OpLoadConfig).WithUserID(userID).WithError(err).ToSlice()...)
		}
	}

	key, cacheable := r.viewKey(ctx, userID)
	if cacheable {
		view, ok, err := r.views.Get(ctx, key)
		if err != nil {
			slog.WarnContext(ctx, "Failed to read cached view", applog.FieldUserID, userID, applog.FieldError, err)
		} else if ok {
			return view, nil
		}
	}

	rows, err := r.readAll(ctx, userID)
	if err != nil {
		return core.View{}, fmt.Errorf("load view for user %d: %w", userID, err)
	}
	view := assembleView(rows)

	if cacheable {
		if err := r.views.Set(ctx, key, view); err != nil {
			slog.WarnContext(ctx, "Failed to cache view", applog.FieldUserID, userID, applog.FieldError, err)
		}
	}
	return view, nil
}

// viewKey reports false when there is no cache or the version cannot be
// read; the caller then goes to the database.
func (r *ConfigReader) viewKey(ctx context.Context, userID int64) (string, bool) {
	if r.views == nil {
		return "", false
	}
	version, err := r.store.Queries().ConfigVersion(ctx, userID)
	if err != nil {
		slog.WarnContext(ctx, "Failed to read config version, bypassing view cache",
			applog.FieldUserID, userID, applog.FieldError, err)
		return "", false
	}
	return ViewCacheKey(userID, version), true
}

// readAll issues one query per table concurrently. The reads are
// independent; none of them writes.
func (r *ConfigReader) readAll(ctx context.Context, userID int64) (userRows, error) {
	q := r.store.Queries()
	var rows userRows

	g, ctx := errgroup.WithContext(ctx)
	load(g, &rows.budgets, func() ([]storage.Budget, error) { return q.ListBudgets(ctx, userID) })
	load(g, &rows.budgetMonths, func() ([]storage.MonthLink, error) { return q.ListMonthLinks(ctx, storage.BudgetMonths, userID) })
	load(g, &rows.categories, func() ([]storage.Category, error) { return q.ListCategories(ctx, userID) })
	load(g, &rows.presetExpenses, func() ([]storage.PresetExpense, error) { return q.ListPresetExpenses(ctx, userID) })
	load(g, &rows.incomeTypes, func() ([]storage.PresetIncomeType, error) { return q.ListPresetIncomeTypes(ctx, userID) })
	load(g, &rows.cards, func() ([]storage.Card, error) { return q.ListCards(ctx, userID) })
	load(g, &rows.cardLimits, func() ([]storage.CardMonthLimit, error) { return q.ListCardMonthLimits(ctx, userID) })
	load(g, &rows.closedInvoices, func() ([]storage.MonthLink, error) {
		return q.ListMonthLinks(ctx, storage.CardClosedInvoices, userID)
	})
	load(g, &rows.incomes, func() ([]storage.Entry, error) { return q.ListEntries(ctx, storage.Incomes, userID) })
	load(g, &rows.incomeMonths, func() ([]storage.MonthLink, error) { return q.ListMonthLinks(ctx, storage.IncomeMonths, userID) })
	load(g, &rows.expenses, func() ([]storage.Entry, error) { return q.ListEntries(ctx, storage.Expenses, userID) })
	load(g, &rows.expenseMonths, func() ([]storage.MonthLink, error) { return q.ListMonthLinks(ctx, storage.ExpenseMonths, userID) })
	load(g, &rows.cardCharges, func() ([]storage.Entry, error) { return q.ListEntries(ctx, storage.CardCharges, userID) })
	load(g, &rows.chargeMonths, func() ([]storage.MonthLink, error) {
		return q.ListMonthLinks(ctx, storage.CardChargeMonths, userID)
	})

	if err := g.Wait(); err != nil {
		return userRows{}, err
	}
	return rows, nil
}

func load[T any](g *errgroup.Group, dst *[]T, fn func() ([]T, error)) {
	g.Go(func() error {
		rows, err := fn()
		*dst = rows
		return err
	})
}
