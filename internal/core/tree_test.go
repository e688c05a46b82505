package core

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/shopspring/decimal"
)

func TestTreePresenceSemantics(t *testing.T) {
	payload := `{
		"_partial": true,
		"cartoes": [],
		"receitas": null,
		"categorias": [{"id": "tmp-1", "nome": "Mercado", "tipo": "EXPENSE"}]
	}`
	var tree Tree
	if err := json.Unmarshal([]byte(payload), &tree); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if !tree.Partial {
		t.Error("expected partial")
	}
	if !tree.Cards.Present || len(tree.Cards.Items) != 0 {
		t.Errorf("empty list must be present: %+v", tree.Cards)
	}
	if !tree.Incomes.Present {
		t.Error("null must count as present")
	}
	if tree.CardCharges.Present || tree.Budgets.Present {
		t.Error("absent keys must not be present")
	}
	if len(tree.Categories.Items) != 1 || !tree.Categories.Items[0].IsActive() {
		t.Errorf("categories = %+v", tree.Categories.Items)
	}

	want := []string{KeyCategories, KeyCards, KeyIncomes}
	if got := tree.PresentKeys(); !reflect.DeepEqual(got, want) {
		t.Errorf("PresentKeys = %v, want %v", got, want)
	}
}

func TestIDJSON(t *testing.T) {
	var entry Entry
	if err := json.Unmarshal([]byte(`{"id": 12, "orcamentoId": "tmp-b", "categoriaId": "4"}`), &entry); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if entry.ID != "12" || entry.BudgetID != "tmp-b" || entry.CategoryID != "4" {
		t.Fatalf("ids = %q %q %q", entry.ID, entry.BudgetID, entry.CategoryID)
	}
	if n, ok := entry.CategoryID.Int64(); !ok || n != 4 {
		t.Errorf("CategoryID.Int64() = %d, %v", n, ok)
	}
	if _, ok := entry.BudgetID.Int64(); ok {
		t.Error("placeholder must not parse as a server id")
	}

	out, err := json.Marshal(struct {
		A ID `json:"a"`
		B ID `json:"b"`
		C ID `json:"c"`
	}{NewID(9), "tmp-x", ""})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `{"a":9,"b":"tmp-x","c":null}` {
		t.Errorf("marshal = %s", out)
	}
}

func TestFoldName(t *testing.T) {
	tests := []struct{ a, b string }{
		{"Água", "agua"},
		{"  Saúde  e  Bem-estar", "saude e bem-estar"},
		{"CAFÉ", "café"},
	}
	for _, tt := range tests {
		if NormalizeCategoryName(tt.a) != NormalizeCategoryName(tt.b) {
			t.Errorf("%q and %q should normalize equal: %q vs %q", tt.a, tt.b, NormalizeCategoryName(tt.a), NormalizeCategoryName(tt.b))
		}
	}
	if NormalizeCategoryName("Água") == NormalizeCategoryName("Luz") {
		t.Error("different names must not collide")
	}
}

func TestIsCardInvoiceExpense(t *testing.T) {
	if !IsCardInvoiceExpense("Fatura Nubank - Março") {
		t.Error("expected invoice match")
	}
	if IsCardInvoiceExpense("Faturamento") || IsCardInvoiceExpense("fatura nubank") {
		t.Error("unexpected invoice match")
	}
}

// A cached view is stored as JSON and must come back unchanged.
func TestViewJSONRoundTrip(t *testing.T) {
	inactive := false
	in := View{
		Budgets:    []Budget{{ID: NewID(1), Label: "2025", Months: []Month{1, 2, 12}}},
		Categories: []Category{{ID: NewID(2), Name: "Mercado", Kind: KindExpense, Active: &inactive}, {ID: NewID(3), Name: "Luz", Kind: KindExpense}},
		Cards: []Card{{
			ID:             NewID(4),
			Name:           "Nubank",
			CreditLimit:    decimal.RequireFromString("5000.75"),
			MonthlyLimits:  map[Month]decimal.Decimal{3: decimal.RequireFromString("4000"), 12: decimal.RequireFromString("0.1")},
			ClosedInvoices: []Month{1},
		}},
		Expenses: []Entry{{
			ID: NewID(5), BudgetID: NewID(1), Description: "Feira",
			Amount: decimal.RequireFromString("900.50"), Month: 2, Status: StatusPending,
		}},
	}

	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out View
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal %s: %v", data, err)
	}

	if out.Categories[0].Active == nil || *out.Categories[0].Active {
		t.Errorf("inactive flag lost: %+v", out.Categories[0])
	}
	if out.Categories[1].Active != nil || !out.Categories[1].IsActive() {
		t.Errorf("missing flag should stay missing: %+v", out.Categories[1])
	}
	limits := out.Cards[0].MonthlyLimits
	if len(limits) != 2 || !limits[3].Equal(decimal.NewFromInt(4000)) || !limits[12].Equal(decimal.RequireFromString("0.1")) {
		t.Errorf("monthly limits = %v", limits)
	}
	if !out.Cards[0].CreditLimit.Equal(in.Cards[0].CreditLimit) || !out.Expenses[0].Amount.Equal(in.Expenses[0].Amount) {
		t.Errorf("amounts = %s, %s", out.Cards[0].CreditLimit, out.Expenses[0].Amount)
	}
	if out.Expenses[0].ID != "5" || out.Expenses[0].BudgetID != "1" || out.Expenses[0].Month != 2 {
		t.Errorf("expense = %+v", out.Expenses[0])
	}

	again, err := json.Marshal(out)
	if err != nil {
		t.Fatalf("marshal again: %v", err)
	}
	if string(again) != string(data) {
		t.Errorf("round trip changed the encoding:\nfirst  %s\nsecond %s", data, again)
	}
}
