package services

import (
	"github.com/shopspring/decimal"

	"orcamento/internal/core"
	"orcamento/internal/storage"
)

func assembleView(rows userRows) core.View {
	view := core.View{
		Budgets:        make([]core.Budget, 0, len(rows.budgets)),
		Categories:     make([]core.Category, 0, len(rows.categories)),
		PresetExpenses: make([]core.PresetExpense, 0, len(rows.presetExpenses)),
		IncomeTypes:    make([]core.IncomeType, 0, len(rows.incomeTypes)),
		Cards:          make([]core.Card, 0, len(rows.cards)),
	}

	budgetMonths := storage.GroupMonths(rows.budgetMonths)
	for _, b := range rows.budgets {
		view.Budgets = append(view.Budgets, core.Budget{
			ID:     core.NewID(b.ID),
			Label:  b.Label,
			Months: monthList(budgetMonths[b.ID]),
		})
	}

	names := make(map[int64]string, len(rows.categories))
	for _, c := range rows.categories {
		active := c.Active
		names[c.ID] = c.Name
		view.Categories = append(view.Categories, core.Category{
			ID:     core.NewID(c.ID),
			Name:   c.Name,
			Kind:   core.CategoryKind(c.Kind).Normalize(),
			Active: &active,
		})
	}

	for _, p := range rows.presetExpenses {
		active := p.Active
		preset := core.PresetExpense{
			ID:          core.NewID(p.ID),
			Description: p.Description,
			Active:      &active,
		}
		if p.CategoryID.Valid {
			preset.CategoryID = core.NewID(p.CategoryID.Int64)
		}
		view.PresetExpenses = append(view.PresetExpenses, preset)
	}

	for _, t := range rows.incomeTypes {
		active := t.Active
		view.IncomeTypes = append(view.IncomeTypes, core.IncomeType{
			ID:          core.NewID(t.ID),
			Description: t.Description,
			Recurring:   t.Recurring,
			Active:      &active,
		})
	}

	limits := make(map[int64]map[core.Month]decimal.Decimal)
	for _, l := range rows.cardLimits {
		if limits[l.CardID] == nil {
			limits[l.CardID] = make(map[core.Month]decimal.Decimal)
		}
		limits[l.CardID][core.Month(l.Month)] = l.Amount
	}
	closed := storage.GroupMonths(rows.closedInvoices)
	for _, c := range rows.cards {
		monthly := limits[c.ID]
		if monthly == nil {
			monthly = map[core.Month]decimal.Decimal{}
		}
		view.Cards = append(view.Cards, core.Card{
			ID:             core.NewID(c.ID),
			Name:           c.Name,
			CreditLimit:    c.CreditLimit,
			MonthlyLimits:  monthly,
			ClosedInvoices: monthList(closed[c.ID]),
		})
	}

	view.Incomes = assembleEntries(rows.incomes, rows.incomeMonths, names, core.StatusReceived)
	view.Expenses = assembleEntries(rows.expenses, rows.expenseMonths, names, core.StatusPaid)

	chargeMonths := storage.GroupMonths(rows.chargeMonths)
	view.CardCharges = make([]core.CardCharge, 0, len(rows.cardCharges))
	for _, e := range rows.cardCharges {
		view.CardCharges = append(view.CardCharges, core.CardCharge{
			ID:               core.NewID(e.ID),
			CardID:           core.NewID(e.ParentID),
			CategoryID:       categoryRef(e),
			CategoryName:     categoryName(e, names),
			Description:      e.Description,
			Note:             e.Note,
			Amount:           e.Amount,
			Date:             e.Date,
			ReferenceMonth:   core.Month(e.Month),
			Status:           core.Status(e.Status).Normalize(core.StatusPaid),
			Recurrence:       core.Recurrence(e.Recurrence).Normalize(),
			Installments:     e.InstallmentTotal,
			InstallmentIndex: e.InstallmentIndex,
			Months:           monthList(chargeMonths[e.ID]),
		})
	}

	return view
}

func assembleEntries(rows []storage.Entry, links []storage.MonthLink, names map[int64]string, settled core.Status) []core.Entry {
	months := storage.GroupMonths(links)
	out := make([]core.Entry, 0, len(rows))
	for _, e := range rows {
		out = append(out, core.Entry{
			ID:               core.NewID(e.ID),
			BudgetID:         core.NewID(e.ParentID),
			CategoryID:       categoryRef(e),
			CategoryName:     categoryName(e, names),
			Description:      e.Description,
			Note:             e.Note,
			Amount:           e.Amount,
			Month:            core.Month(e.Month),
			Date:             e.Date,
			Status:           core.Status(e.Status).Normalize(settled),
			Recurrence:       core.Recurrence(e.Recurrence).Normalize(),
			Installments:     e.InstallmentTotal,
			InstallmentIndex: e.InstallmentIndex,
			Months:           monthList(months[e.ID]),
		})
	}
	return out
}

func categoryRef(e storage.Entry) core.ID {
	if !e.CategoryID.Valid {
		return ""
	}
	return core.NewID(e.CategoryID.Int64)
}

// categoryName falls back to the placeholder for missing or deleted
// categories.
func categoryName(e storage.Entry, names map[int64]string) string {
	if e.CategoryID.Valid {
		if name, ok := names[e.CategoryID.Int64]; ok {
			return name
		}
	}
	return core.UncategorizedName
}

// monthList never returns nil so lists serialize as [].
func monthList(values []int) []core.Month {
	months := core.MonthsFromInts(values)
	if months == nil {
		return []core.Month{}
	}
	return months
}
