package repository

import (
	"context"
	"errors"
	"time"

	"stratix/models"

	"gorm.io/gorm"
)

// JobRepository persists import jobs and their append-only item records. It
// implements importer.JobStore plus the read paths the job endpoints need.
type JobRepository struct {
	db *gorm.DB
}

func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

func (r *JobRepository) CreateJob(ctx context.Context, job *models.ImportJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *JobRepository) FindActiveJobByChecksum(ctx context.Context, tenantID int, checksum string, since time.Time) (*models.ImportJob, error) {
	var job models.ImportJob
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND checksum = ? AND created_at >= ?", tenantID, checksum, since).
		Where("status NOT IN ?", []string{models.JobStatusFailed, models.JobStatusCancelled}).
		Order("created_at DESC").
		First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *JobRepository) GetJob(ctx context.Context, jobID int) (*models.ImportJob, error) {
	var job models.ImportJob
	if err := r.db.WithContext(ctx).First(&job, jobID).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *JobRepository) MarkProcessing(ctx context.Context, jobID int, totalRows int) error {
	return r.db.WithContext(ctx).Model(&models.ImportJob{}).
		Where("id = ?", jobID).
		Updates(map[string]interface{}{
			"status":     models.JobStatusProcessing,
			"total_rows": totalRows,
			"updated_at": time.Now(),
		}).Error
}

func (r *JobRepository) UpdateCounters(ctx context.Context, jobID int, processed, success, errorCount, skipped int) error {
	return r.db.WithContext(ctx).Model(&models.ImportJob{}).
		Where("id = ?", jobID).
		Updates(map[string]interface{}{
			"processed_rows": processed,
			"success_rows":   success,
			"error_rows":     errorCount,
			"skipped_rows":   skipped,
			"updated_at":     time.Now(),
		}).Error
}

func (r *JobRepository) Finish(ctx context.Context, jobID int, status, summary string) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&models.ImportJob{}).
		Where("id = ?", jobID).
		Updates(map[string]interface{}{
			"status":       status,
			"summary":      summary,
			"updated_at":   now,
			"completed_at": now,
		}).Error
}

func (r *JobRepository) CancelPending(ctx context.Context, jobID int) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.ImportJob{}).
		Where("id = ? AND status = ?", jobID, models.JobStatusPending).
		Updates(map[string]interface{}{
			"status":     models.JobStatusCancelled,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *JobRepository) RecordItem(ctx context.Context, item *models.ImportJobItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

// ListJobs returns one page of a tenant's job history, newest first.
func (r *JobRepository) ListJobs(ctx context.Context, tenantID, page, pageSize int) ([]models.ImportJob, int64, error) {
	var total int64
	base := r.db.WithContext(ctx).Model(&models.ImportJob{}).Where("tenant_id = ?", tenantID)
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var jobs []models.ImportJob
	err := base.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&jobs).Error
	if err != nil {
		return nil, 0, err
	}
	return jobs, total, nil
}

// ListItems returns a job's row records in row order, optionally filtered by
// outcome status.
func (r *JobRepository) ListItems(ctx context.Context, jobID int, status string) ([]models.ImportJobItem, error) {
	q := r.db.WithContext(ctx).Where("job_id = ?", jobID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var items []models.ImportJobItem
	if err := q.Order("row_index ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// FailStalePending sweeps jobs stuck pending longer than maxAge to failed.
// Run from the housekeeping cron.
func (r *JobRepository) FailStalePending(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge)
	res := r.db.WithContext(ctx).Model(&models.ImportJob{}).
		Where("status = ? AND created_at < ?", models.JobStatusPending, cutoff).
		Updates(map[string]interface{}{
			"status":     models.JobStatusFailed,
			"summary":    "never started: pending past deadline",
			"updated_at": time.Now(),
		})
	return res.RowsAffected, res.Error
}
