package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/millbrook/orderdesk/internal/domain"
	"github.com/millbrook/orderdesk/internal/ports"
)

type queueRepository struct {
	db *gorm.DB
}

func (r *queueRepository) Enqueue(ctx context.Context, spec ports.JobSpec) error {
	if spec.Kind == "" {
		return fmt.Errorf("job kind is required")
	}
	now := time.Now().UTC()
	rec := jobModel{
		JobID:       uuid.New(),
		Kind:        string(spec.Kind),
		Payload:     string(spec.Payload),
		Priority:    spec.Priority,
		MaxAttempts: spec.MaxAttempts,
		Backoff:     string(spec.Backoff),
		BackoffMS:   spec.BackoffDelay.Milliseconds(),
		AvailableAt: now.Add(spec.Delay),
		CreatedAt:   now,
	}
	if rec.MaxAttempts <= 0 {
		rec.MaxAttempts = 3
	}
	if rec.Backoff == "" {
		rec.Backoff = string(domain.BackoffExponential)
	}
	if rec.BackoffMS <= 0 {
		rec.BackoffMS = 2000
	}
	if spec.DedupeKey != "" {
		rec.DedupeKey = &spec.DedupeKey
	}

	err := r.db.WithContext(ctx).Create(&rec).Error
	if err != nil && spec.DedupeKey != "" && errors.Is(err, gorm.ErrDuplicatedKey) {
		// A pending job with the same dedupe key already covers this work;
		// rapid successive writes collapse into it.
		return nil
	}
	return err
}

func (r *queueRepository) Claim(ctx context.Context, limit int, claimToken string, claimUntil time.Time, now time.Time) ([]ports.JobRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	if claimToken == "" {
		return nil, fmt.Errorf("claim token is required")
	}

	var rows []jobModel
	if err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subquery := tx.Model(&jobModel{}).
			Select("job_id").
			Where("completed_at IS NULL").
			Where("dead_lettered_at IS NULL").
			Where("available_at <= ?", now).
			Where("claim_until IS NULL OR claim_until < ?", now).
			Order("priority DESC").
			Order("available_at ASC").
			Limit(limit).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})

		if err := tx.Model(&jobModel{}).
			Where("job_id IN (?)", subquery).
			Updates(map[string]any{
				"claim_token": claimToken,
				"claim_until": claimUntil,
			}).Error; err != nil {
			return err
		}

		return tx.Where("claim_token = ?", claimToken).
			Where("completed_at IS NULL").
			Where("dead_lettered_at IS NULL").
			Order("priority DESC").
			Order("available_at ASC").
			Find(&rows).Error
	}); err != nil {
		return nil, err
	}

	result := make([]ports.JobRecord, 0, len(rows))
	for _, row := range rows {
		result = append(result, ports.JobRecord{
			JobID:        row.JobID,
			Kind:         domain.JobKind(row.Kind),
			Payload:      []byte(row.Payload),
			Priority:     row.Priority,
			Attempts:     row.Attempts,
			MaxAttempts:  row.MaxAttempts,
			Backoff:      domain.BackoffPolicy(row.Backoff),
			BackoffDelay: time.Duration(row.BackoffMS) * time.Millisecond,
			AvailableAt:  row.AvailableAt,
			LastError:    row.LastError,
		})
	}
	return result, nil
}

func (r *queueRepository) MarkCompleted(ctx context.Context, jobID uuid.UUID, claimToken string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&jobModel{}).
		Where("job_id = ?", jobID).
		Where("claim_token = ?", claimToken).
		Updates(map[string]any{
			"completed_at": at,
			"dedupe_key":   nil,
			"claim_token":  nil,
			"claim_until":  nil,
		}).Error
}

func (r *queueRepository) MarkFailed(ctx context.Context, jobID uuid.UUID, claimToken, reason string, retryAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&jobModel{}).
		Where("job_id = ?", jobID).
		Where("claim_token = ?", claimToken).
		Updates(map[string]any{
			"attempts":      gorm.Expr("attempts + 1"),
			"available_at":  retryAt,
			"last_error":    reason,
			"last_error_at": time.Now().UTC(),
			"claim_token":   nil,
			"claim_until":   nil,
		}).Error
}

func (r *queueRepository) MarkDeadLettered(ctx context.Context, jobID uuid.UUID, claimToken, reason string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&jobModel{}).
		Where("job_id = ?", jobID).
		Where("claim_token = ?", claimToken).
		Updates(map[string]any{
			"attempts":         gorm.Expr("attempts + 1"),
			"last_error":       reason,
			"last_error_at":    at,
			"dead_lettered_at": at,
			"dedupe_key":       nil,
			"claim_token":      nil,
			"claim_until":      nil,
		}).Error
}

func (r *queueRepository) Stats(ctx context.Context) (domain.QueueStats, error) {
	var stats domain.QueueStats
	type row struct {
		Status string
		N      int64
	}
	var rows []row
	err := r.db.WithContext(ctx).Model(&jobModel{}).
		Select(`CASE
			WHEN dead_lettered_at IS NOT NULL THEN 'dead_lettered'
			WHEN completed_at IS NOT NULL THEN 'completed'
			WHEN claim_token IS NOT NULL THEN 'claimed'
			ELSE 'pending'
		END AS status, COUNT(*) AS n`).
		Group("status").
		Find(&rows).Error
	if err != nil {
		return domain.QueueStats{}, err
	}
	for _, r := range rows {
		switch r.Status {
		case "pending":
			stats.Pending = r.N
		case "claimed":
			stats.Claimed = r.N
		case "dead_lettered":
			stats.DeadLettered = r.N
		}
	}
	return stats, nil
}
