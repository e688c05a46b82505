package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"orcamento/internal/amqp"
	"orcamento/internal/cache"
	"orcamento/internal/core"
	applog "orcamento/internal/log"
	"orcamento/internal/storage"
)

var ErrInvalidUser = errors.New("invalid user id")

// ViewCacheKey is the cache key of a user's assembled view at one
// configuration version. Every committed change bumps the version, so a
// view cached under an older version is never served again.
func ViewCacheKey(userID, version int64) string {
	return fmt.Sprintf("orcamento:view:%d:%d", userID, version)
}

// ConfigSavedPublisher announces committed saves.
type ConfigSavedPublisher interface {
	PublishConfigSaved(ctx context.Context, msg *amqp.ConfigSavedMessage) error
}

// KindCounts tallies what a reconciliation did to one kind of row.
type KindCounts struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Deleted  int `json:"deleted"`
	Skipped  int `json:"skipped"`
}

func (k *KindCounts) add(o KindCounts) {
	k.Inserted += o.Inserted
	k.Updated += o.Updated
	k.Deleted += o.Deleted
	k.Skipped += o.Skipped
}

// ReconcileResult serializes under the collection keys of the tree.
type ReconcileResult struct {
	Budgets        KindCounts `json:"orcamentos"`
	Categories     KindCounts `json:"categorias"`
	PresetExpenses KindCounts `json:"gastosPredefinidos"`
	IncomeTypes    KindCounts `json:"tiposReceita"`
	Cards          KindCounts `json:"cartoes"`
	Incomes        KindCounts `json:"receitas"`
	Expenses       KindCounts `json:"despesas"`
	CardCharges    KindCounts `json:"lancamentosCartao"`
}

// Total sums the counts of every kind.
func (r ReconcileResult) Total() KindCounts {
	var t KindCounts
	for _, k := range []KindCounts{r.Budgets, r.Categories, r.PresetExpenses, r.IncomeTypes, r.Cards, r.Incomes, r.Expenses, r.CardCharges} {
		t.add(k)
	}
	return t
}

// Reconciler persists a submitted configuration tree for one user inside a
// single transaction.
type Reconciler struct {
	store     *storage.Store
	views     cache.Cache[core.View]
	publisher ConfigSavedPublisher
}

// NewReconciler wires the engine. views and publisher may be nil.
func NewReconciler(store *storage.Store, views cache.Cache[core.View], publisher ConfigSavedPublisher) *Reconciler {
	return &Reconciler{
		store:     store,
		views:     views,
		publisher: publisher,
	}
}

// Reconcile applies tree for userID. With tree.Partial unset every owned row
// is replaced; otherwise only the collections present in the tree are
// touched. Either everything commits or nothing does.
func (r *Reconciler) Reconcile(ctx context.Context, userID int64, tree core.Tree) (ReconcileResult, error) {
	if userID <= 0 {
		return ReconcileResult{}, ErrInvalidUser
	}

	var (
		result  ReconcileResult
		version int64
	)
	err := r.store.WithTx(ctx, func(q *storage.Queries) error {
		result = ReconcileResult{}
		if err := newReconcilePass(q, userID, tree, &result).run(ctx); err != nil {
			return err
		}
		var err error
		version, err = q.BumpConfigVersion(ctx, userID)
		return err
	})
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("reconcile config for user %d: %w", userID, err)
	}

	total := result.Total()
	fields := applog.NewFields().
		WithOperation(applog.OpSaveConfig).
		WithUserID(userID).
		WithSave(tree.Partial, tree.PresentKeys())
	slog.InfoContext(ctx, "Configuration saved", append(fields.ToSlice(),
		"inserted", total.Inserted,
		"updated", total.Updated,
		"deleted", total.Deleted,
		"skipped", total.Skipped)...)

	r.afterCommit(ctx, userID, version, tree)
	return result, nil
}

// afterCommit runs the best-effort side effects of a save. Failures are
// logged; the save itself already committed. Dropping the previous version's
// view only frees memory early; readers already moved to the new key.
func (r *Reconciler) afterCommit(ctx context.Context, userID, version int64, tree core.Tree) {
	if r.views != nil && version > 1 {
		if err := r.views.Delete(ctx, ViewCacheKey(userID, version-1)); err != nil {
			slog.WarnContext(ctx, "Failed to invalidate cached view", applog.FieldUserID, userID, applog.FieldError, err)
		}
	}

	if r.publisher == nil {
		return
	}
	collections := core.CollectionKeys
	if tree.Partial {
		collections = tree.PresentKeys()
	}
	msg := amqp.NewConfigSavedMessage(userID, tree.Partial, collections)
	if err := r.publisher.PublishConfigSaved(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "Failed to publish config saved message",
			applog.NewFields().WithUserID(userID).WithError(err).ToSlice()...)
	}
}
