package worker

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"orcamento/internal/amqp"
	"orcamento/internal/core"
	applog "orcamento/internal/log"
	"orcamento/internal/services"
)

// OwnerLister pages through users that may hold duplicate categories.
type OwnerLister interface {
	ListCategoryOwners(ctx context.Context, afterUserID int64, limit int) ([]int64, error)
}

// DedupWorker merges duplicate categories after saves and in periodic
// sweeps. It holds no view cache: a merge bumps the user's configuration
// version in the database, which retires the views cached by the server.
type DedupWorker struct {
	merger    services.CategoryMerger
	owners    OwnerLister
	batchSize int
}

func NewDedupWorker(merger services.CategoryMerger, owners OwnerLister, batchSize int) *DedupWorker {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &DedupWorker{
		merger:    merger,
		owners:    owners,
		batchSize: batchSize,
	}
}

// HandleConfigSaved merges the user's categories when the save could have
// introduced duplicates. A returned error requeues the message.
func (w *DedupWorker) HandleConfigSaved(ctx context.Context, msg *amqp.ConfigSavedMessage) error {
	if msg.Partial && !slices.Contains(msg.Collections, core.KeyCategories) {
		slog.DebugContext(ctx, "Save did not touch categories, skipping merge",
			applog.NewFields().WithUserID(msg.UserID).WithSave(msg.Partial, msg.Collections).ToSlice()...)
		return nil
	}

	slog.InfoContext(ctx, "Processing config saved message", append(
		applog.NewFields().WithOperation(applog.OpMerge).WithUserID(msg.UserID).ToSlice(),
		applog.FieldPartial, msg.Partial,
		"timestamp", msg.Timestamp)...)

	if _, err := w.merge(ctx, msg.UserID); err != nil {
		return err
	}
	return nil
}

// SweepDuplicates runs the merge for every user with more than one active
// category. It is the backup for lost messages; per-user failures are
// logged and do not stop the sweep.
func (w *DedupWorker) SweepDuplicates(ctx context.Context) error {
	var (
		after  int64
		users  int
		merged int
		failed int
	)
	for {
		ids, err := w.owners.ListCategoryOwners(ctx, after, w.batchSize)
		if err != nil {
			return fmt.Errorf("list category owners: %w", err)
		}
		for _, userID := range ids {
			if err := ctx.Err(); err != nil {
				return err
			}
			n, err := w.merge(ctx, userID)
			if err != nil {
				slog.ErrorContext(ctx, "Failed to merge categories during sweep", applog.FieldUserID, userID, applog.FieldError, err)
				failed++
				continue
			}
			merged += n
		}
		users += len(ids)
		if len(ids) < w.batchSize {
			break
		}
		after = ids[len(ids)-1]
	}

	slog.InfoContext(ctx, "Category sweep completed",
		"users", users,
		"deactivated", merged,
		"errors", failed)
	return nil
}

func (w *DedupWorker) merge(ctx context.Context, userID int64) (int, error) {
	n, err := w.merger.MergeDuplicateCategories(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("merge categories for user %d: %w", userID, err)
	}
	return n, nil
}
