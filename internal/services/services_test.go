package services

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"orcamento/internal/amqp"
	"orcamento/internal/core"
	"orcamento/internal/storage"
)

// fixtureJSON is a complete configuration as a client would first submit
// it, with placeholder identifiers only.
const fixtureJSON = `{
	"orcamentos": [{"id": "tmp-b1", "label": "2025", "meses": ["Janeiro", "Fevereiro", "Março"]}],
	"categorias": [
		{"id": "tmp-c1", "nome": "Salário", "tipo": "INCOME"},
		{"id": "tmp-c2", "nome": "Mercado", "tipo": "EXPENSE"}
	],
	"gastosPredefinidos": [{"id": "tmp-p1", "descricao": "Feira", "categoriaId": "tmp-c2"}],
	"tiposReceita": [{"id": "tmp-t1", "descricao": "Salário", "recorrente": true}],
	"cartoes": [{
		"id": "tmp-k1", "nome": "Nubank", "limite": 5000,
		"limitesMensais": {"Março": 4000}, "faturasFechadas": ["Janeiro"]
	}],
	"receitas": [{
		"id": "tmp-r1", "orcamentoId": "tmp-b1", "categoriaId": "tmp-c1", "descricao": "Salário",
		"valor": 8000, "mes": "Janeiro", "status": "RECEIVED", "tipoRecorrencia": "FIXED",
		"meses": ["Janeiro", "Fevereiro", "Março"]
	}],
	"despesas": [
		{"id": "tmp-d1", "orcamentoId": "tmp-b1", "categoriaId": "tmp-c2", "descricao": "Mercado",
		 "valor": 900.5, "mes": "Fevereiro", "tipoRecorrencia": "ONE_OFF"},
		{"id": "tmp-d2", "orcamentoId": "tmp-b1", "descricao": "Fatura Nubank - Março", "valor": 1200, "mes": "Março"}
	],
	"lancamentosCartao": [{
		"id": "tmp-l1", "cartaoId": "tmp-k1", "categoriaId": "tmp-c2", "descricao": "Notebook",
		"valor": 3000, "mesReferencia": "Março", "tipoRecorrencia": "INSTALLMENT", "qtdParcelas": 3
	}]
}`

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(context.Background(), storage.Options{
		Driver:     storage.DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "orcamento.db"),
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func mustTree(t *testing.T, payload string) core.Tree {
	t.Helper()
	var tree core.Tree
	if err := json.Unmarshal([]byte(payload), &tree); err != nil {
		t.Fatalf("decode tree: %v", err)
	}
	return tree
}

func mustReconcile(t *testing.T, r *Reconciler, userID int64, tree core.Tree) ReconcileResult {
	t.Helper()
	result, err := r.Reconcile(context.Background(), userID, tree)
	if err != nil {
		t.Fatalf("reconcile user %d: %v", userID, err)
	}
	return result
}

func loadView(t *testing.T, store *storage.Store, userID int64) core.View {
	t.Helper()
	view, err := NewConfigReader(store, nil, nil).LoadView(context.Background(), userID)
	if err != nil {
		t.Fatalf("load view: %v", err)
	}
	return view
}

func dump(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(data)
}

// withoutIDs blanks every identifier so views of equal content compare
// equal even after rows were re-inserted.
func withoutIDs(v core.View) core.View {
	for i := range v.Budgets {
		v.Budgets[i].ID = ""
	}
	for i := range v.Categories {
		v.Categories[i].ID = ""
	}
	for i := range v.PresetExpenses {
		v.PresetExpenses[i].ID, v.PresetExpenses[i].CategoryID = "", ""
	}
	for i := range v.IncomeTypes {
		v.IncomeTypes[i].ID = ""
	}
	for i := range v.Cards {
		v.Cards[i].ID = ""
	}
	for _, entries := range [][]core.Entry{v.Incomes, v.Expenses} {
		for i := range entries {
			entries[i].ID, entries[i].BudgetID, entries[i].CategoryID = "", "", ""
		}
	}
	for i := range v.CardCharges {
		v.CardCharges[i].ID, v.CardCharges[i].CardID, v.CardCharges[i].CategoryID = "", "", ""
	}
	return v
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []*amqp.ConfigSavedMessage
	err  error
}

func (f *fakePublisher) PublishConfigSaved(_ context.Context, msg *amqp.ConfigSavedMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
	return f.err
}

// mapCache is a Cache that records how it was used.
type mapCache struct {
	mu      sync.Mutex
	items   map[string]core.View
	hits    int
	deletes int
}

func newMapCache() *mapCache {
	return &mapCache{items: make(map[string]core.View)}
}

func (c *mapCache) Get(_ context.Context, key string) (core.View, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.items[key]
	if ok {
		c.hits++
	}
	return v, ok, nil
}

func (c *mapCache) Set(_ context.Context, key string, v core.View) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = v
	return nil
}

func (c *mapCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	c.deletes++
	return nil
}

func TestReconcileRejectsInvalidUser(t *testing.T) {
	store := newTestStore(t)
	_, err := NewReconciler(store, nil, nil).Reconcile(context.Background(), 0, core.Tree{})
	if !errors.Is(err, ErrInvalidUser) {
		t.Fatalf("expected ErrInvalidUser, got %v", err)
	}
}

func TestFullReplaceBuildsView(t *testing.T) {
	store := newTestStore(t)
	result := mustReconcile(t, NewReconciler(store, nil, nil), 1, mustTree(t, fixtureJSON))

	if result.CardCharges.Inserted != 3 || result.Expenses.Inserted != 2 || result.Budgets.Inserted != 1 {
		t.Errorf("unexpected counts: %+v", result)
	}

	v := loadView(t, store, 1)
	if len(v.Budgets) != 1 || dump(t, v.Budgets[0].Months) != `["Janeiro","Fevereiro","Março"]` {
		t.Errorf("budgets = %s", dump(t, v.Budgets))
	}
	if len(v.Categories) != 2 || len(v.PresetExpenses) != 1 || len(v.IncomeTypes) != 1 {
		t.Fatalf("view = %s", dump(t, v))
	}
	if v.PresetExpenses[0].CategoryID != v.Categories[1].ID {
		t.Errorf("preset category = %q, want %q", v.PresetExpenses[0].CategoryID, v.Categories[1].ID)
	}

	card := v.Cards[0]
	if dump(t, card.MonthlyLimits) != `{"Março":4000}` || dump(t, card.ClosedInvoices) != `["Janeiro"]` {
		t.Errorf("card = %s", dump(t, card))
	}

	income := v.Incomes[0]
	if income.Status != core.StatusReceived || income.CategoryName != "Salário" || len(income.Months) != 3 {
		t.Errorf("income = %s", dump(t, income))
	}

	invoice := v.Expenses[1]
	if invoice.CategoryID != "" || invoice.CategoryName != core.UncategorizedName {
		t.Errorf("invoice expense should be stored without category: %s", dump(t, invoice))
	}
	if v.Expenses[0].Amount.String() != "900.5" {
		t.Errorf("amount = %s", v.Expenses[0].Amount)
	}

	for i, charge := range v.CardCharges {
		if charge.CardID != card.ID || charge.InstallmentIndex != i+1 || charge.ReferenceMonth != core.Month(3+i) {
			t.Errorf("charge %d = %s", i, dump(t, charge))
		}
	}
}

func TestReconcileIsAtomic(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	rec := NewReconciler(store, nil, nil)
	mustReconcile(t, rec, 1, mustTree(t, fixtureJSON))
	before := dump(t, loadView(t, store, 1))

	_, err := store.DB().ExecContext(ctx, `CREATE TRIGGER reject_boom BEFORE INSERT ON card_charges
		WHEN NEW.description LIKE 'boom%'
		BEGIN SELECT RAISE(ABORT, 'boom'); END`)
	if err != nil {
		t.Fatalf("create trigger: %v", err)
	}

	for _, partial := range []bool{false, true} {
		tree := mustTree(t, fixtureJSON)
		tree.Partial = partial
		tree.Budgets.Items[0].Label = "changed"
		tree.CardCharges.Items[0].Description = "boom"

		if _, err := rec.Reconcile(ctx, 1, tree); err == nil {
			t.Fatalf("partial=%v: expected the save to fail", partial)
		}
		if after := dump(t, loadView(t, store, 1)); after != before {
			t.Fatalf("partial=%v: failed save left changes:\nbefore %s\nafter  %s", partial, before, after)
		}
	}
}

func TestPartialSyncLeavesOtherCollections(t *testing.T) {
	store := newTestStore(t)
	rec := NewReconciler(store, nil, nil)
	mustReconcile(t, rec, 1, mustTree(t, fixtureJSON))
	before := loadView(t, store, 1)

	tree := mustTree(t, `{"_partial": true, "despesas": [
		{"id": "tmp-new", "orcamentoId": "`+string(before.Budgets[0].ID)+`", "categoriaId": "`+string(before.Categories[1].ID)+`",
		 "descricao": "Padaria", "valor": 12, "mes": "Março"}
	]}`)
	mustReconcile(t, rec, 1, tree)
	after := loadView(t, store, 1)

	if len(after.Expenses) != 1 || after.Expenses[0].Description != "Padaria" || after.Expenses[0].CategoryName != "Mercado" {
		t.Fatalf("expenses = %s", dump(t, after.Expenses))
	}

	before.Expenses, after.Expenses = nil, nil
	if dump(t, before) != dump(t, after) {
		t.Errorf("untouched collections changed:\nbefore %s\nafter  %s", dump(t, before), dump(t, after))
	}
}

func TestFullReplaceIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	rec := NewReconciler(store, nil, nil)
	mustReconcile(t, rec, 1, mustTree(t, fixtureJSON))
	first := loadView(t, store, 1)

	// Round-trip through JSON the way a client would.
	var resubmit core.Tree
	if err := json.Unmarshal([]byte(dump(t, first)), &resubmit); err != nil {
		t.Fatalf("decode view as tree: %v", err)
	}
	mustReconcile(t, rec, 1, resubmit)
	second := loadView(t, store, 1)

	if a, b := dump(t, withoutIDs(first)), dump(t, withoutIDs(second)); a != b {
		t.Errorf("second save changed content:\nfirst  %s\nsecond %s", a, b)
	}
}

func TestInstallmentExpansion(t *testing.T) {
	store := newTestStore(t)
	mustReconcile(t, NewReconciler(store, nil, nil), 1, mustTree(t, `{
		"orcamentos": [{"id": "b", "label": "2025"}],
		"categorias": [{"id": "c", "nome": "Casa", "tipo": "EXPENSE"}],
		"despesas": [{"orcamentoId": "b", "categoriaId": "c", "descricao": "Geladeira", "valor": 100,
			"mes": "Janeiro", "tipoRecorrencia": "INSTALLMENT", "qtdParcelas": 4}]
	}`))

	v := loadView(t, store, 1)
	if len(v.Expenses) != 4 {
		t.Fatalf("expected 4 rows, got %s", dump(t, v.Expenses))
	}
	wantMonths := []string{"Janeiro", "Fevereiro", "Março", "Abril"}
	for i, e := range v.Expenses {
		if e.Amount.StringFixed(2) != "25.00" {
			t.Errorf("row %d amount = %s", i, e.Amount)
		}
		if e.Month.String() != wantMonths[i] || e.InstallmentIndex != i+1 || e.Installments != 4 {
			t.Errorf("row %d = %s", i, dump(t, e))
		}
		if len(e.Months) != 0 {
			t.Errorf("row %d has active months %v", i, e.Months)
		}
	}
}

func TestFixedEditSplitsRemovedMonths(t *testing.T) {
	store := newTestStore(t)
	rec := NewReconciler(store, nil, nil)
	mustReconcile(t, rec, 1, mustTree(t, `{
		"orcamentos": [{"id": "b", "label": "2025"}],
		"categorias": [{"id": "c", "nome": "Moradia", "tipo": "EXPENSE"}],
		"despesas": [{"orcamentoId": "b", "categoriaId": "c", "descricao": "Aluguel", "valor": 1200,
			"mes": "Janeiro", "tipoRecorrencia": "FIXED", "meses": ["Janeiro", "Fevereiro", "Março"]}]
	}`))

	edited := loadView(t, store, 1).Expenses[0]
	edited.Amount = decimal.NewFromInt(1300)
	edited.Months = []core.Month{2}
	edited.Month = 2
	mustReconcile(t, rec, 1, core.Tree{Partial: true, Expenses: core.Of(edited)})

	v := loadView(t, store, 1)
	if len(v.Expenses) != 2 {
		t.Fatalf("expected the edit and the preserved row, got %s", dump(t, v.Expenses))
	}
	byMonths := map[string]core.Entry{}
	for _, e := range v.Expenses {
		byMonths[dump(t, e.Months)] = e
	}
	edit, ok := byMonths[`["Fevereiro"]`]
	if !ok || edit.Amount.StringFixed(2) != "1300.00" {
		t.Errorf("edited row = %s", dump(t, edit))
	}
	kept, ok := byMonths[`["Janeiro","Março"]`]
	if !ok || kept.Amount.StringFixed(2) != "1200.00" || kept.CategoryName != "Moradia" || kept.Month != 1 {
		t.Errorf("preserved row = %s", dump(t, kept))
	}
}

func TestSkipsRowsWithUnresolvedReferences(t *testing.T) {
	store := newTestStore(t)
	result := mustReconcile(t, NewReconciler(store, nil, nil), 1, mustTree(t, `{
		"orcamentos": [{"id": "b", "label": "2025"}],
		"categorias": [{"id": "c", "nome": "Casa", "tipo": "EXPENSE"}],
		"gastosPredefinidos": [{"descricao": "Gás", "categoriaId": "nope"}, {"descricao": "Avulso"}],
		"despesas": [
			{"orcamentoId": "missing", "categoriaId": "c", "descricao": "Sem orçamento", "valor": 1, "mes": 1},
			{"orcamentoId": "b", "categoriaId": "missing", "descricao": "Sem categoria", "valor": 1, "mes": 1},
			{"orcamentoId": "b", "descricao": "Fatura Inter", "valor": 1, "mes": 1}
		],
		"lancamentosCartao": [{"cartaoId": "missing", "categoriaId": "c", "descricao": "x", "valor": 1, "mesReferencia": 1}]
	}`))

	if result.Expenses.Skipped != 2 || result.Expenses.Inserted != 1 {
		t.Errorf("expenses = %+v", result.Expenses)
	}
	if result.CardCharges.Skipped != 1 || result.PresetExpenses.Skipped != 1 || result.PresetExpenses.Inserted != 1 {
		t.Errorf("result = %+v", result)
	}
	v := loadView(t, store, 1)
	if len(v.Expenses) != 1 || v.Expenses[0].Description != "Fatura Inter" {
		t.Errorf("expenses = %s", dump(t, v.Expenses))
	}
}

func TestPartialCategoriesKeepIdentifiers(t *testing.T) {
	store := newTestStore(t)
	rec := NewReconciler(store, nil, nil)
	mustReconcile(t, rec, 1, mustTree(t, fixtureJSON))
	before := loadView(t, store, 1)

	mercado := before.Categories[1]
	mercado.Name = "Supermercado"
	result := mustReconcile(t, rec, 1, core.Tree{Partial: true, Categories: core.Of(mercado)})
	if result.Categories.Updated != 1 || result.Categories.Deleted != 1 {
		t.Errorf("categories = %+v", result.Categories)
	}

	after := loadView(t, store, 1)
	if len(after.Categories) != 1 || after.Categories[0].ID != mercado.ID {
		t.Fatalf("categories = %s", dump(t, after.Categories))
	}
	if after.Expenses[0].CategoryID != mercado.ID || after.Expenses[0].CategoryName != "Supermercado" {
		t.Errorf("expense = %s", dump(t, after.Expenses[0]))
	}
	if after.Incomes[0].CategoryName != core.UncategorizedName {
		t.Errorf("income of a deleted category = %s", dump(t, after.Incomes[0]))
	}
}

func TestPartialBudgetRemovalCascades(t *testing.T) {
	store := newTestStore(t)
	rec := NewReconciler(store, nil, nil)
	mustReconcile(t, rec, 1, mustTree(t, fixtureJSON))

	result := mustReconcile(t, rec, 1, mustTree(t, `{"_partial": true, "orcamentos": [{"id": "tmp-2026", "label": "2026"}]}`))
	if result.Budgets.Deleted != 1 || result.Budgets.Inserted != 1 {
		t.Errorf("budgets = %+v", result.Budgets)
	}

	v := loadView(t, store, 1)
	if len(v.Incomes) != 0 || len(v.Expenses) != 0 {
		t.Errorf("entries of the removed budget survived: %s", dump(t, v))
	}
	if len(v.CardCharges) != 3 || len(v.Categories) != 2 {
		t.Errorf("unrelated collections changed: %s", dump(t, v))
	}
}

func TestCrossUserIsolation(t *testing.T) {
	store := newTestStore(t)
	rec := NewReconciler(store, nil, nil)
	mustReconcile(t, rec, 1, mustTree(t, fixtureJSON))
	mustReconcile(t, rec, 2, mustTree(t, fixtureJSON))
	other := dump(t, loadView(t, store, 2))

	// User 1 submits user 2's server ids; they must not match anything.
	stolen := loadView(t, store, 2).Categories[0]
	stolen.Name = "hijacked"
	mustReconcile(t, rec, 1, core.Tree{Partial: true, Categories: core.Of(stolen)})
	mustReconcile(t, rec, 1, core.Tree{})

	if got := dump(t, loadView(t, store, 2)); got != other {
		t.Errorf("user 2 changed:\nbefore %s\nafter  %s", other, got)
	}
	v := loadView(t, store, 1)
	if len(v.Budgets)+len(v.Categories)+len(v.Cards)+len(v.Expenses) != 0 {
		t.Errorf("user 1 should be empty: %s", dump(t, v))
	}
}

func TestCategoryMerge(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	mustReconcile(t, NewReconciler(store, nil, nil), 1, mustTree(t, `{
		"orcamentos": [{"id": "b", "label": "2025"}],
		"categorias": [
			{"id": "a", "nome": "Água", "tipo": "EXPENSE"},
			{"id": "l", "nome": "Luz", "tipo": "EXPENSE"},
			{"id": "dup", "nome": " agua ", "tipo": "EXPENSE"},
			{"id": "inc", "nome": "ÁGUA", "tipo": "INCOME"}
		],
		"gastosPredefinidos": [{"descricao": "Conta", "categoriaId": "dup"}],
		"despesas": [{"orcamentoId": "b", "categoriaId": "dup", "descricao": "Conta de água", "valor": 80, "mes": 1}]
	}`))

	d := NewCategoryDeduplicator(store)
	merged, err := d.MergeDuplicateCategories(ctx, 1)
	if err != nil || merged != 1 {
		t.Fatalf("merge = %d, %v", merged, err)
	}

	v := loadView(t, store, 1)
	survivor := v.Categories[0]
	if survivor.Name != "Água" || !survivor.IsActive() {
		t.Fatalf("survivor = %s", dump(t, survivor))
	}
	if v.Categories[2].IsActive() || !v.Categories[3].IsActive() {
		t.Errorf("only the same-kind duplicate is deactivated: %s", dump(t, v.Categories))
	}
	if v.Expenses[0].CategoryID != survivor.ID || v.PresetExpenses[0].CategoryID != survivor.ID {
		t.Errorf("dependents not repointed: %s", dump(t, v))
	}

	if merged, err := d.MergeDuplicateCategories(ctx, 1); err != nil || merged != 0 {
		t.Errorf("second merge = %d, %v", merged, err)
	}
}

func TestConcurrentCategoryMerges(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	mustReconcile(t, NewReconciler(store, nil, nil), 1, mustTree(t, `{"categorias": [
		{"nome": "Lazer", "tipo": "EXPENSE"},
		{"nome": "lazer", "tipo": "EXPENSE"},
		{"nome": "LAZER", "tipo": "EXPENSE"}
	]}`))

	d := NewCategoryDeduplicator(store)
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := d.MergeDuplicateCategories(ctx, 1)
			if err != nil {
				t.Errorf("merge: %v", err)
				return
			}
			mu.Lock()
			total += n
			mu.Unlock()
		}()
	}
	wg.Wait()

	if total != 2 {
		t.Errorf("concurrent merges deactivated %d rows, want 2", total)
	}
}

func TestGroupDuplicateCategories(t *testing.T) {
	groups := groupDuplicateCategories([]storage.Category{
		{ID: 1, Name: "Saúde", Kind: "EXPENSE"},
		{ID: 2, Name: "Lazer", Kind: "EXPENSE"},
		{ID: 3, Name: "saude", Kind: "EXPENSE"},
		{ID: 4, Name: "Saude", Kind: "INCOME"},
		{ID: 5, Name: "SAÚDE", Kind: "EXPENSE"},
	})
	if len(groups) != 1 || groups[0].Survivor != 1 || dump(t, groups[0].Duplicates) != "[3,5]" {
		t.Errorf("groups = %+v", groups)
	}
}

func TestSaveSideEffects(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	views := newMapCache()
	publisher := &fakePublisher{}
	rec := NewReconciler(store, views, publisher)
	reader := NewConfigReader(store, NewCategoryDeduplicator(store), views)

	mustReconcile(t, rec, 1, mustTree(t, fixtureJSON))
	if _, err := reader.LoadView(ctx, 1); err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, ok := views.items[ViewCacheKey(1, 1)]; !ok {
		t.Fatal("view should be cached after a read")
	}

	publisher.err = errors.New("broker down")
	mustReconcile(t, rec, 1, mustTree(t, `{"_partial": true, "tiposReceita": []}`))

	if _, ok := views.items[ViewCacheKey(1, 1)]; ok {
		t.Error("save must drop the previous version's view")
	}
	if v, err := store.Queries().ConfigVersion(ctx, 1); err != nil || v != 2 {
		t.Errorf("config version = %d, %v; want 2", v, err)
	}
	if len(publisher.msgs) != 2 {
		t.Fatalf("published %d messages, want 2", len(publisher.msgs))
	}
	full, partial := publisher.msgs[0], publisher.msgs[1]
	if full.Partial || len(full.Collections) != len(core.CollectionKeys) {
		t.Errorf("full save message = %+v", full)
	}
	if !partial.Partial || dump(t, partial.Collections) != `["tiposReceita"]` || partial.UserID != 1 {
		t.Errorf("partial save message = %+v", partial)
	}
}

func TestLoadViewUsesCacheUntilMerge(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	views := newMapCache()
	reader := NewConfigReader(store, NewCategoryDeduplicator(store), views)
	mustReconcile(t, NewReconciler(store, nil, nil), 1, mustTree(t, fixtureJSON))

	if _, err := reader.LoadView(ctx, 1); err != nil {
		t.Fatalf("load: %v", err)
	}

	// Written behind the reader's back: a cached read does not see it.
	q := store.Queries()
	if _, err := q.InsertBudget(ctx, 1, "2026"); err != nil {
		t.Fatalf("insert budget: %v", err)
	}
	v, err := reader.LoadView(ctx, 1)
	if err != nil || len(v.Budgets) != 1 || views.hits != 1 {
		t.Fatalf("expected cached view, got %d budgets, %d hits, err %v", len(v.Budgets), views.hits, err)
	}

	// A merge changes the data, so the next read bypasses the cache.
	if _, err := q.InsertCategory(ctx, 1, storage.Category{Name: "MERCADO", Kind: "EXPENSE", Active: true}); err != nil {
		t.Fatalf("insert category: %v", err)
	}
	v, err = reader.LoadView(ctx, 1)
	if err != nil || len(v.Budgets) != 2 || views.hits != 1 {
		t.Fatalf("expected fresh view, got %d budgets, %d hits, err %v", len(v.Budgets), views.hits, err)
	}
}

type failingMerger struct{}

func (failingMerger) MergeDuplicateCategories(context.Context, int64) (int, error) {
	return 0, errors.New("lock timeout")
}

func TestLoadViewSurvivesMergeFailure(t *testing.T) {
	store := newTestStore(t)
	mustReconcile(t, NewReconciler(store, nil, nil), 1, mustTree(t, fixtureJSON))

	v, err := NewConfigReader(store, failingMerger{}, nil).LoadView(context.Background(), 1)
	if err != nil || len(v.Budgets) != 1 {
		t.Fatalf("LoadView = %d budgets, %v", len(v.Budgets), err)
	}
}

func TestEmptyViewSerializesEmptyLists(t *testing.T) {
	store := newTestStore(t)
	got := dump(t, loadView(t, store, 9))
	want := `{"orcamentos":[],"categorias":[],"gastosPredefinidos":[],"tiposReceita":[],"cartoes":[],"receitas":[],"despesas":[],"lancamentosCartao":[]}`
	if got != want {
		t.Errorf("empty view = %s", got)
	}
}

// racingCache runs onSet once, just before the first Set stores its value,
// the way a save committing between a read and its cache fill would.
type racingCache struct {
	*mapCache
	once  sync.Once
	onSet func()
}

func (c *racingCache) Set(ctx context.Context, key string, v core.View) error {
	c.once.Do(c.onSet)
	return c.mapCache.Set(ctx, key, v)
}

func TestSaveDuringReadIsNotServedStale(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	views := &racingCache{mapCache: newMapCache()}
	rec := NewReconciler(store, views, nil)
	mustReconcile(t, rec, 1, mustTree(t, fixtureJSON))

	views.onSet = func() {
		mustReconcile(t, rec, 1, mustTree(t, `{"_partial": true, "orcamentos": [{"id": "tmp-x", "label": "2030"}]}`))
	}
	reader := NewConfigReader(store, nil, views)

	// This read assembled the view before the save, so it may return it.
	if _, err := reader.LoadView(ctx, 1); err != nil {
		t.Fatalf("load: %v", err)
	}

	v, err := reader.LoadView(ctx, 1)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(v.Budgets) != 1 || v.Budgets[0].Label != "2030" {
		t.Errorf("budgets after save = %s, want only 2030", dump(t, v.Budgets))
	}
}

func TestMergeElsewhereRetiresCachedView(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	mustReconcile(t, NewReconciler(store, nil, nil), 1, mustTree(t, `{
		"orcamentos": [{"id": "b", "label": "2025"}],
		"categorias": [
			{"id": "m", "nome": "Mercado", "tipo": "EXPENSE"},
			{"id": "dup", "nome": "mercado", "tipo": "EXPENSE"}
		],
		"despesas": [{"orcamentoId": "b", "categoriaId": "dup", "descricao": "Feira", "valor": 50, "mes": "Janeiro"}]
	}`))

	// A server process that never merges on read, with its own cache.
	reader := NewConfigReader(store, nil, newMapCache())
	before, err := reader.LoadView(ctx, 1)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !before.Categories[1].IsActive() {
		t.Fatalf("duplicate should still be active before the merge: %s", dump(t, before.Categories))
	}

	// A worker process merging against the same database.
	if n, err := NewCategoryDeduplicator(store).MergeDuplicateCategories(ctx, 1); err != nil || n != 1 {
		t.Fatalf("merge = %d, %v", n, err)
	}

	after, err := reader.LoadView(ctx, 1)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if after.Categories[1].IsActive() {
		t.Errorf("served the pre-merge view: %s", dump(t, after.Categories))
	}
	if after.Expenses[0].CategoryID != after.Categories[0].ID {
		t.Errorf("expense not repointed: %s", dump(t, after.Expenses))
	}
}

func TestPartialCardsLeaveCharges(t *testing.T) {
	store := newTestStore(t)
	rec := NewReconciler(store, nil, nil)
	mustReconcile(t, rec, 1, mustTree(t, fixtureJSON))
	before := loadView(t, store, 1)
	card := before.Cards[0]

	mustReconcile(t, rec, 1, mustTree(t, `{"_partial": true, "cartoes": [{
		"id": "`+string(card.ID)+`", "nome": "Nubank Ultravioleta", "limite": 8000,
		"limitesMensais": {"Abril": 6000}, "faturasFechadas": ["Janeiro", "Fevereiro"]
	}]}`))
	after := loadView(t, store, 1)

	if len(after.Cards) != 1 || after.Cards[0].ID != card.ID || after.Cards[0].Name != "Nubank Ultravioleta" {
		t.Fatalf("cards = %s", dump(t, after.Cards))
	}
	if got := dump(t, after.Cards[0].MonthlyLimits); got != `{"Abril":6000}` {
		t.Errorf("monthly limits = %s", got)
	}
	if a, b := dump(t, before.CardCharges), dump(t, after.CardCharges); a != b {
		t.Errorf("card charges changed:\nbefore %s\nafter  %s", a, b)
	}
}
