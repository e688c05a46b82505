package storage

import (
	"database/sql"

	"github.com/shopspring/decimal"
)

// Table names a user-owned table.
type Table string

const (
	TableBudgets            Table = "budgets"
	TableBudgetMonths       Table = "budget_months"
	TableCategories         Table = "categories"
	TablePresetExpenses     Table = "preset_expenses"
	TablePresetIncomeTypes  Table = "preset_income_types"
	TableCards              Table = "cards"
	TableCardMonthLimits    Table = "card_month_limits"
	TableCardClosedInvoices Table = "card_closed_invoices"
	TableIncomes            Table = "incomes"
	TableIncomeMonths       Table = "income_months"
	TableExpenses           Table = "expenses"
	TableExpenseMonths      Table = "expense_months"
	TableCardCharges        Table = "card_charges"
	TableCardChargeMonths   Table = "card_charge_months"
)

// MonthLinkTable is a child table holding one month per row for an owner.
type MonthLinkTable struct {
	Name        Table
	OwnerColumn string
}

var (
	BudgetMonths       = MonthLinkTable{Name: TableBudgetMonths, OwnerColumn: "budget_id"}
	CardClosedInvoices = MonthLinkTable{Name: TableCardClosedInvoices, OwnerColumn: "card_id"}
	IncomeMonths       = MonthLinkTable{Name: TableIncomeMonths, OwnerColumn: "income_id"}
	ExpenseMonths      = MonthLinkTable{Name: TableExpenseMonths, OwnerColumn: "expense_id"}
	CardChargeMonths   = MonthLinkTable{Name: TableCardChargeMonths, OwnerColumn: "card_charge_id"}
)

// EntryTable describes one of the three entry tables. Incomes and expenses
// hang off a budget and carry month; card charges hang off a card and carry
// reference_month.
type EntryTable struct {
	Name         Table
	ParentColumn string
	MonthColumn  string
	Months       MonthLinkTable
}

var (
	Incomes     = EntryTable{Name: TableIncomes, ParentColumn: "budget_id", MonthColumn: "month", Months: IncomeMonths}
	Expenses    = EntryTable{Name: TableExpenses, ParentColumn: "budget_id", MonthColumn: "month", Months: ExpenseMonths}
	CardCharges = EntryTable{Name: TableCardCharges, ParentColumn: "card_id", MonthColumn: "reference_month", Months: CardChargeMonths}
)

type Budget struct {
	ID    int64
	Label string
}

type MonthLink struct {
	OwnerID int64
	Month   int
}

type Category struct {
	ID     int64
	Name   string
	Kind   string
	Active bool
}

type PresetExpense struct {
	ID          int64
	Description string
	CategoryID  sql.NullInt64
	Active      bool
}

type PresetIncomeType struct {
	ID          int64
	Description string
	Recurring   bool
	Active      bool
}

type Card struct {
	ID          int64
	Name        string
	CreditLimit decimal.Decimal
}

type CardMonthLimit struct {
	CardID int64
	Month  int
	Amount decimal.Decimal
}

// Entry is a row of incomes, expenses or card_charges. ParentID is the
// budget or card; Month is month or reference_month.
type Entry struct {
	ID               int64
	ParentID         int64
	CategoryID       sql.NullInt64
	Description      string
	Note             string
	Amount           decimal.Decimal
	Month            int
	Date             string
	Status           string
	Recurrence       string
	InstallmentIndex int
	InstallmentTotal int
}
