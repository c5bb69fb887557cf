package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type viewRepository struct {
	db *gorm.DB
}

// RefreshIfDue refreshes one materialized view when its min interval has
// elapsed. The row lock makes it safe under concurrent workers, and calling
// it when no refresh is due is a cheap no-op, so bursts of writes within one
// delay window collapse to a single refresh.
func (r *viewRepository) RefreshIfDue(ctx context.Context, view string, now time.Time) (bool, error) {
	refreshed := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var state viewStateModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("view_name = ?", view).
			First(&state).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("unknown materialized view %q", view)
			}
			return err
		}

		minInterval := time.Duration(state.MinIntervalMS) * time.Millisecond
		if state.LastRefreshedAt != nil && now.Sub(*state.LastRefreshedAt) < minInterval {
			return nil
		}

		// View names come from the static registry row, never from callers.
		if err := tx.Exec(fmt.Sprintf("REFRESH MATERIALIZED VIEW CONCURRENTLY %s", state.ViewName)).Error; err != nil {
			return fmt.Errorf("refresh view %s: %w", state.ViewName, err)
		}

		refreshed = true
		return tx.Model(&viewStateModel{}).
			Where("view_name = ?", view).
			Updates(map[string]any{
				"last_refreshed_at": now,
				"refresh_count":     gorm.Expr("refresh_count + 1"),
			}).Error
	})
	return refreshed, err
}
