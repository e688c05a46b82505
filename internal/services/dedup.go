package services

import (
	"context"
	"fmt"
	"log/slog"

	"orcamento/internal/core"
	applog "orcamento/internal/log"
	"orcamento/internal/storage"
)

// CategoryMerger merges a user's duplicate categories and reports how many
// were deactivated.
type CategoryMerger interface {
	MergeDuplicateCategories(ctx context.Context, userID int64) (int, error)
}

// CategoryDeduplicator folds categories that share a kind and a normalized
// name into the oldest one.
type CategoryDeduplicator struct {
	store *storage.Store
}

func NewCategoryDeduplicator(store *storage.Store) *CategoryDeduplicator {
	return &CategoryDeduplicator{store: store}
}

// duplicateGroup is a set of same-kind categories with equal normalized
// names. Survivor is the lowest id.
type duplicateGroup struct {
	Survivor   int64
	Duplicates []int64
}

// MergeDuplicateCategories runs in its own transaction under the user's
// dedup lock, so concurrent callers for one user serialize. A merge that
// changes anything bumps the configuration version, which retires every
// cached view of the user in any process sharing the database.
func (d *CategoryDeduplicator) MergeDuplicateCategories(ctx context.Context, userID int64) (int, error) {
	if userID <= 0 {
		return 0, ErrInvalidUser
	}

	merged := 0
	err := d.store.WithTx(ctx, func(q *storage.Queries) error {
		merged = 0
		if err := q.AcquireNamedLock(ctx, storage.CategoryDedupLock(userID), userID); err != nil {
			return err
		}

		categories, err := q.ListActiveCategories(ctx, userID)
		if err != nil {
			return err
		}

		for _, group := range groupDuplicateCategories(categories) {
			if err := q.RepointCategory(ctx, userID, group.Survivor, group.Duplicates); err != nil {
				return err
			}
			n, err := q.DeactivateCategories(ctx, userID, group.Duplicates)
			if err != nil {
				return err
			}
			merged += int(n)
		}
		if merged == 0 {
			return nil
		}
		_, err = q.BumpConfigVersion(ctx, userID)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("merge duplicate categories for user %d: %w", userID, err)
	}

	if merged > 0 {
		slog.InfoContext(ctx, "Merged duplicate categories", append(
			applog.NewFields().WithOperation(applog.OpMerge).WithUserID(userID).ToSlice(),
			"deactivated", merged)...)
	}
	return merged, nil
}

// groupDuplicateCategories expects categories in ascending id order and
// returns groups in the order their survivors appear.
func groupDuplicateCategories(categories []storage.Category) []duplicateGroup {
	type groupKey struct {
		kind core.CategoryKind
		name string
	}

	index := make(map[groupKey]int)
	var groups []duplicateGroup
	for _, c := range categories {
		key := groupKey{
			kind: core.CategoryKind(c.Kind).Normalize(),
			name: core.NormalizeCategoryName(c.Name),
		}
		if i, ok := index[key]; ok {
			groups[i].Duplicates = append(groups[i].Duplicates, c.ID)
			continue
		}
		index[key] = len(groups)
		groups = append(groups, duplicateGroup{Survivor: c.ID})
	}

	out := groups[:0]
	for _, g := range groups {
		if len(g.Duplicates) > 0 {
			out = append(out, g)
		}
	}
	return out
}
