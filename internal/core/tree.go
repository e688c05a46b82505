package core

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

type (
	Budget struct {
		ID     ID      `json:"id"`
		Label  string  `json:"label"`
		Months []Month `json:"meses"`
	}

	Category struct {
		ID     ID           `json:"id"`
		Name   string       `json:"nome"`
		Kind   CategoryKind `json:"tipo"`
		Active *bool        `json:"ativa"`
	}

	PresetExpense struct {
		ID          ID     `json:"id"`
		Description string `json:"descricao"`
		CategoryID  ID     `json:"categoriaId"`
		Active      *bool  `json:"ativo"`
	}

	IncomeType struct {
		ID          ID     `json:"id"`
		Description string `json:"descricao"`
		Recurring   bool   `json:"recorrente"`
		Active      *bool  `json:"ativo"`
	}

	Card struct {
		ID             ID                        `json:"id"`
		Name           string                    `json:"nome"`
		CreditLimit    decimal.Decimal           `json:"limite"`
		MonthlyLimits  map[Month]decimal.Decimal `json:"limitesMensais"`
		ClosedInvoices []Month                   `json:"faturasFechadas"`
	}

	// Entry is an income (receita) or an expense (despesa).
	Entry struct {
		ID               ID              `json:"id"`
		BudgetID         ID              `json:"orcamentoId"`
		CategoryID       ID              `json:"categoriaId"`
		CategoryName     string          `json:"categoria,omitempty"`
		Description      string          `json:"descricao"`
		Note             string          `json:"complemento"`
		Amount           decimal.Decimal `json:"valor"`
		Month            Month           `json:"mes"`
		Date             string          `json:"data"`
		Status           Status          `json:"status"`
		Recurrence       Recurrence      `json:"tipoRecorrencia"`
		Installments     int             `json:"qtdParcelas"`
		InstallmentIndex int             `json:"parcelaAtual"`
		Months           []Month         `json:"meses"`
	}

	CardCharge struct {
		ID               ID              `json:"id"`
		CardID           ID              `json:"cartaoId"`
		CategoryID       ID              `json:"categoriaId"`
		CategoryName     string          `json:"categoria,omitempty"`
		Description      string          `json:"descricao"`
		Note             string          `json:"complemento"`
		Amount           decimal.Decimal `json:"valor"`
		Date             string          `json:"data"`
		ReferenceMonth   Month           `json:"mesReferencia"`
		Status           Status          `json:"status"`
		Recurrence       Recurrence      `json:"tipoRecorrencia"`
		Installments     int             `json:"qtdParcelas"`
		InstallmentIndex int             `json:"parcelaAtual"`
		Months           []Month         `json:"meses"`
	}
)

// IsActive treats a missing flag as active.
func (c Category) IsActive() bool { return c.Active == nil || *c.Active }

func (p PresetExpense) IsActive() bool { return p.Active == nil || *p.Active }

func (t IncomeType) IsActive() bool { return t.Active == nil || *t.Active }

// Collection is one top-level list of the submitted tree. Present records
// whether the key appeared in the payload at all, which is what partial
// sync keys off: an absent key means "untouched", a present key (even
// empty or null) means "replace with this".
type Collection[T any] struct {
	Present bool
	Items   []T
}

// Of builds a present collection.
func Of[T any](items ...T) Collection[T] {
	if items == nil {
		items = []T{}
	}
	return Collection[T]{Present: true, Items: items}
}

func (c *Collection[T]) UnmarshalJSON(data []byte) error {
	c.Present = true
	c.Items = nil
	if string(data) == "null" {
		return nil
	}
	return json.Unmarshal(data, &c.Items)
}

func (c Collection[T]) MarshalJSON() ([]byte, error) {
	if c.Items == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(c.Items)
}

// Tree is the configuration submitted by a client.
type Tree struct {
	Partial        bool                      `json:"_partial"`
	Budgets        Collection[Budget]        `json:"orcamentos"`
	Categories     Collection[Category]      `json:"categorias"`
	PresetExpenses Collection[PresetExpense] `json:"gastosPredefinidos"`
	IncomeTypes    Collection[IncomeType]    `json:"tiposReceita"`
	Cards          Collection[Card]          `json:"cartoes"`
	Incomes        Collection[Entry]         `json:"receitas"`
	Expenses       Collection[Entry]         `json:"despesas"`
	CardCharges    Collection[CardCharge]    `json:"lancamentosCartao"`
}

// PresentKeys lists the collection keys the tree carries, in insertion
// order.
func (t Tree) PresentKeys() []string {
	var keys []string
	add := func(present bool, key string) {
		if present {
			keys = append(keys, key)
		}
	}
	add(t.Budgets.Present, KeyBudgets)
	add(t.Categories.Present, KeyCategories)
	add(t.PresetExpenses.Present, KeyPresetExpenses)
	add(t.IncomeTypes.Present, KeyIncomeTypes)
	add(t.Cards.Present, KeyCards)
	add(t.Incomes.Present, KeyIncomes)
	add(t.Expenses.Present, KeyExpenses)
	add(t.CardCharges.Present, KeyCardCharges)
	return keys
}

// View is the read-model returned to clients. Every collection is always
// populated, never null.
type View struct {
	Budgets        []Budget        `json:"orcamentos"`
	Categories     []Category      `json:"categorias"`
	PresetExpenses []PresetExpense `json:"gastosPredefinidos"`
	IncomeTypes    []IncomeType    `json:"tiposReceita"`
	Cards          []Card          `json:"cartoes"`
	Incomes        []Entry         `json:"receitas"`
	Expenses       []Entry         `json:"despesas"`
	CardCharges    []CardCharge    `json:"lancamentosCartao"`
}

// Tree turns a read-model into a full submission, as a client saving back
// what it loaded would.
func (v View) Tree(partial bool) Tree {
	return Tree{
		Partial:        partial,
		Budgets:        Of(v.Budgets...),
		Categories:     Of(v.Categories...),
		PresetExpenses: Of(v.PresetExpenses...),
		IncomeTypes:    Of(v.IncomeTypes...),
		Cards:          Of(v.Cards...),
		Incomes:        Of(v.Incomes...),
		Expenses:       Of(v.Expenses...),
		CardCharges:    Of(v.CardCharges...),
	}
}
