package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/waitlist/internal/notification/domain"
	"gorm.io/gorm"
)

const jobColumns = `id, kind, signup_id, project_id, dedupe_key, payload, status, attempts,
	last_error, correlation_id, available_at, processed_at, created_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// Insert reports false when a job with the same dedupe key already exists.
func (r *repo) Insert(ctx context.Context, db *gorm.DB, job *domain.Job) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO notification_jobs (
			id, kind, signup_id, project_id, dedupe_key, payload, status, attempts,
			last_error, correlation_id, available_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (dedupe_key) DO NOTHING`,
		job.ID,
		job.Kind,
		job.SignupID,
		job.ProjectID,
		job.DedupeKey,
		job.Payload,
		job.Status,
		job.Attempts,
		job.LastError,
		job.CorrelationID,
		job.AvailableAt,
		job.CreatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ListDue(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]domain.Job, error) {
	var jobs []domain.Job
	err := db.WithContext(ctx).Raw(
		`SELECT `+jobColumns+`
		 FROM notification_jobs
		 WHERE status = ? AND available_at <= ?
		 ORDER BY available_at ASC, id ASC
		 LIMIT ?`,
		domain.StatusPending,
		now,
		limit,
	).Scan(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// Claim leases a due job by pushing its availability past the lease. Only one
// dispatcher wins the conditional update; a crashed holder's lease expires.
func (r *repo) Claim(ctx context.Context, db *gorm.DB, id snowflake.ID, now, leaseUntil time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE notification_jobs
		 SET available_at = ?, attempts = attempts + 1
		 WHERE id = ? AND status = ? AND available_at <= ?`,
		leaseUntil,
		id,
		domain.StatusPending,
		now,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) MarkDone(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE notification_jobs SET status = ?, processed_at = ?, last_error = '' WHERE id = ?`,
		domain.StatusDone,
		at,
		id,
	).Error
}

func (r *repo) Reschedule(ctx context.Context, db *gorm.DB, id snowflake.ID, availableAt time.Time, lastError string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE notification_jobs SET available_at = ?, last_error = ? WHERE id = ?`,
		availableAt,
		lastError,
		id,
	).Error
}

func (r *repo) MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time, lastError string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE notification_jobs SET status = ?, processed_at = ?, last_error = ? WHERE id = ?`,
		domain.StatusFailed,
		at,
		lastError,
		id,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Job, error) {
	var job domain.Job
	err := db.WithContext(ctx).Raw(
		`SELECT `+jobColumns+` FROM notification_jobs WHERE id = ? LIMIT 1`,
		id,
	).Scan(&job).Error
	if err != nil {
		return nil, err
	}
	if job.ID == 0 {
		return nil, nil
	}
	return &job, nil
}
