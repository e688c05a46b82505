package core

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	KindExpense CategoryKind = "EXPENSE"
	KindIncome  CategoryKind = "INCOME"

	StatusPending  Status = "PENDING"
	StatusReceived Status = "RECEIVED"
	StatusPaid     Status = "PAID"

	OneOff      Recurrence = "ONE_OFF"
	Fixed       Recurrence = "FIXED"
	Installment Recurrence = "INSTALLMENT"
)

// Top-level collection keys of the configuration tree.
const (
	KeyBudgets        = "orcamentos"
	KeyCategories     = "categorias"
	KeyPresetExpenses = "gastosPredefinidos"
	KeyIncomeTypes    = "tiposReceita"
	KeyCards          = "cartoes"
	KeyIncomes        = "receitas"
	KeyExpenses       = "despesas"
	KeyCardCharges    = "lancamentosCartao"
)

// CollectionKeys lists every collection key in insertion order.
var CollectionKeys = []string{
	KeyBudgets,
	KeyCategories,
	KeyPresetExpenses,
	KeyIncomeTypes,
	KeyCards,
	KeyIncomes,
	KeyExpenses,
	KeyCardCharges,
}

// CardInvoicePrefix marks expenses generated from a card's monthly invoice.
const CardInvoicePrefix = "Fatura "

// UncategorizedName is shown for entries whose category is missing or was
// deleted.
const UncategorizedName = "Sem categoria"

type (
	CategoryKind string
	Status       string
	Recurrence   string
)

var (
	ErrUnknownMonth = errors.New("unknown month")
	ErrInvalidID    = errors.New("invalid identifier")
)

func init() {
	// Amounts travel as JSON numbers, matching what clients send.
	decimal.MarshalJSONWithoutQuotes = true
}

// Normalize maps unknown kinds to EXPENSE.
func (k CategoryKind) Normalize() CategoryKind {
	if strings.EqualFold(string(k), string(KindIncome)) {
		return KindIncome
	}
	return KindExpense
}

// Normalize maps an empty or unknown status to PENDING. settled is the
// status meaning "done" for the entry kind (RECEIVED or PAID).
func (s Status) Normalize(settled Status) Status {
	if strings.EqualFold(string(s), string(settled)) {
		return settled
	}
	return StatusPending
}

// Normalize maps an empty or unknown recurrence mode to ONE_OFF.
func (r Recurrence) Normalize() Recurrence {
	switch Recurrence(strings.ToUpper(strings.TrimSpace(string(r)))) {
	case Fixed:
		return Fixed
	case Installment:
		return Installment
	default:
		return OneOff
	}
}

// IsCardInvoiceExpense reports whether an expense description follows the
// card invoice naming convention ("Fatura <card> ...").
func IsCardInvoiceExpense(description string) bool {
	return strings.HasPrefix(strings.TrimSpace(description), CardInvoicePrefix)
}
