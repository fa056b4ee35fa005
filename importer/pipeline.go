package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"stratix/models"

	"github.com/sirupsen/logrus"
)

// DefaultBatchSize bounds how many rows are processed between counter
// flushes, so a host kill mid-job leaves accurate partial progress behind.
const DefaultBatchSize = 50

// DedupWindow is how long a (tenant, checksum) pair blocks re-upload.
const DedupWindow = 24 * time.Hour

// JobStore is the persistence surface for import jobs and their items.
type JobStore interface {
	CreateJob(ctx context.Context, job *models.ImportJob) error
	// FindActiveJobByChecksum returns the newest non-failed, non-cancelled
	// job for the pair created at or after since, or nil.
	FindActiveJobByChecksum(ctx context.Context, tenantID int, checksum string, since time.Time) (*models.ImportJob, error)
	GetJob(ctx context.Context, jobID int) (*models.ImportJob, error)
	MarkProcessing(ctx context.Context, jobID int, totalRows int) error
	UpdateCounters(ctx context.Context, jobID int, processed, success, errorCount, skipped int) error
	Finish(ctx context.Context, jobID int, status, summary string) error
	// CancelPending flips pending → cancelled; returns false when the job
	// already left pending.
	CancelPending(ctx context.Context, jobID int) (bool, error)
	RecordItem(ctx context.Context, item *models.ImportJobItem) error
}

// ObjectFetcher reads an uploaded spreadsheet back by object path.
type ObjectFetcher interface {
	Fetch(ctx context.Context, objectPath string) ([]byte, error)
}

// Deduper is the fast path of the checksum dedup window. Optional: the
// import_jobs table remains the authoritative check.
type Deduper interface {
	Claim(ctx context.Context, tenantID int, checksum string, window time.Duration) (bool, error)
	Release(ctx context.Context, tenantID int, checksum string) error
}

// Coordinator owns the import job lifecycle: dedup on create, the sequential
// row pipeline, counter persistence and terminal classification.
type Coordinator struct {
	store   Store
	jobs    JobStore
	objects ObjectFetcher
	dedup   Deduper
	log     *logrus.Logger

	// recalc re-derives an initiative's progress after activity writes.
	recalc func(ctx context.Context, tenantID, initiativeID int) error
	// notify fires once per terminal job (completion email).
	notify func(job *models.ImportJob)

	batchSize int
}

func NewCoordinator(store Store, jobs JobStore, objects ObjectFetcher, log *logrus.Logger) *Coordinator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Coordinator{
		store:     store,
		jobs:      jobs,
		objects:   objects,
		log:       log,
		batchSize: DefaultBatchSize,
	}
}

// WithDeduper adds the redis fast path for the dedup window.
func (c *Coordinator) WithDeduper(d Deduper) *Coordinator {
	c.dedup = d
	return c
}

// WithRecalc wires the weighted progress engine's recalculation.
func (c *Coordinator) WithRecalc(fn func(ctx context.Context, tenantID, initiativeID int) error) *Coordinator {
	c.recalc = fn
	return c
}

// WithNotifier wires the terminal-status notification hook.
func (c *Coordinator) WithNotifier(fn func(job *models.ImportJob)) *Coordinator {
	c.notify = fn
	return c
}

// CreateJob registers an upload. A re-upload of identical content for the
// same tenant within the dedup window returns the existing job with
// duplicate=true instead of creating a second one.
func (c *Coordinator) CreateJob(ctx context.Context, tenantID int, areaID *int, uploadedBy, objectPath, checksum string, rowCount int) (*models.ImportJob, bool, error) {
	since := time.Now().Add(-DedupWindow)

	if c.dedup != nil {
		claimed, err := c.dedup.Claim(ctx, tenantID, checksum, DedupWindow)
		if err != nil {
			c.log.WithError(err).WithField("tenant_id", tenantID).Warn("dedup store unavailable, falling back to db check")
		} else if !claimed {
			existing, err := c.jobs.FindActiveJobByChecksum(ctx, tenantID, checksum, since)
			if err != nil {
				return nil, false, fmt.Errorf("dedup lookup: %w", err)
			}
			if existing != nil {
				return existing, true, nil
			}
			// Stale claim with no backing job; fall through and create.
		}
	}

	existing, err := c.jobs.FindActiveJobByChecksum(ctx, tenantID, checksum, since)
	if err != nil {
		return nil, false, fmt.Errorf("dedup lookup: %w", err)
	}
	if existing != nil {
		return existing, true, nil
	}

	job := &models.ImportJob{
		TenantID:   tenantID,
		AreaID:     areaID,
		UploadedBy: uploadedBy,
		ObjectPath: objectPath,
		Checksum:   checksum,
		Status:     models.JobStatusPending,
		TotalRows:  rowCount,
	}
	if err := c.jobs.CreateJob(ctx, job); err != nil {
		c.releaseClaim(ctx, tenantID, checksum)
		return nil, false, fmt.Errorf("create import job: %w", err)
	}

	c.log.WithFields(logrus.Fields{
		"job_id":    job.ID,
		"tenant_id": tenantID,
		"object":    objectPath,
	}).Info("import job created")
	return job, false, nil
}

// Cancel marks a job cancelled. Only pending jobs can be cancelled; once
// processing, a job runs to completion.
func (c *Coordinator) Cancel(ctx context.Context, jobID int) error {
	ok, err := c.jobs.CancelPending(ctx, jobID)
	if err != nil {
		return fmt.Errorf("cancel job %d: %w", jobID, err)
	}
	if !ok {
		return errors.New("job is not pending; processing jobs run to completion")
	}
	return nil
}

// ProcessJob runs the pipeline for a pending job: fetch file, parse, match,
// upsert and record every row in order. Row failures are absorbed into job
// items; only fatal pipeline errors mark the job failed outright.
func (c *Coordinator) ProcessJob(ctx context.Context, jobID int) error {
	job, err := c.jobs.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job %d: %w", jobID, err)
	}
	if job.Status == models.JobStatusCancelled {
		return nil
	}
	if job.Status != models.JobStatusPending {
		return fmt.Errorf("job %d is %s, not pending", jobID, job.Status)
	}

	logger := c.log.WithFields(logrus.Fields{"job_id": jobID, "tenant_id": job.TenantID})

	data, err := c.objects.Fetch(ctx, job.ObjectPath)
	if err != nil {
		return c.failJob(ctx, job, &FatalPipelineError{Stage: "fetch", Err: err}, logger)
	}

	rows, err := ReadRows(job.ObjectPath, data)
	if err != nil {
		return c.failJob(ctx, job, &FatalPipelineError{Stage: "read", Err: err}, logger)
	}

	if err := c.jobs.MarkProcessing(ctx, jobID, len(rows)); err != nil {
		return fmt.Errorf("mark job %d processing: %w", jobID, err)
	}
	logger.WithField("total_rows", len(rows)).Info("import job started")

	upserter := NewUpserter(c.store)
	var processed, success, errorCount, skipped int

	for i, raw := range rows {
		select {
		case <-ctx.Done():
			// Leave the job processing with accurate counters; a later run
			// can account for what happened. The flush must run on a
			// detached context, the cancelled one can no longer write.
			flushCtx, flushCancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			if err := c.jobs.UpdateCounters(flushCtx, jobID, processed, success, errorCount, skipped); err != nil {
				logger.WithError(err).Error("could not persist counters on interrupt")
			}
			flushCancel()
			logger.Warn("import interrupted, counters persisted")
			return ctx.Err()
		default:
		}

		rowIndex := i + 1
		cand, verr := ParseRow(rowIndex, raw)

		var res RowResult
		if verr != nil {
			res = classifyInvalidRow(cand, verr)
		} else {
			res = upserter.ApplyRow(ctx, job.TenantID, job.AreaID, cand)
		}

		if res.Status == models.ItemStatusSuccess && res.InitiativeID != nil && cand.Activity != nil && c.recalc != nil {
			if err := c.recalc(ctx, job.TenantID, *res.InitiativeID); err != nil {
				logger.WithError(err).WithField("initiative_id", *res.InitiativeID).Warn("progress recalculation failed")
			}
		}

		payload, _ := json.Marshal(raw)
		item := &models.ImportJobItem{
			JobID:        jobID,
			RowIndex:     rowIndex,
			EntityType:   res.EntityType,
			EntityID:     res.EntityID,
			Status:       res.Status,
			ErrorMessage: res.ErrorMessage,
			Warning:      res.Warning,
			RawPayload:   string(payload),
		}
		if err := c.jobs.RecordItem(ctx, item); err != nil {
			return c.failJob(ctx, job, &FatalPipelineError{Stage: "record", Err: err}, logger)
		}

		processed++
		switch res.Status {
		case models.ItemStatusSuccess:
			success++
		case models.ItemStatusError:
			errorCount++
		case models.ItemStatusSkipped:
			skipped++
		}

		if processed%c.batchSize == 0 {
			if err := c.jobs.UpdateCounters(ctx, jobID, processed, success, errorCount, skipped); err != nil {
				return c.failJob(ctx, job, &FatalPipelineError{Stage: "counters", Err: err}, logger)
			}
		}
	}

	if err := c.jobs.UpdateCounters(ctx, jobID, processed, success, errorCount, skipped); err != nil {
		return c.failJob(ctx, job, &FatalPipelineError{Stage: "counters", Err: err}, logger)
	}

	status := classifyJob(processed, success, errorCount, skipped)
	summary := fmt.Sprintf("%d rows processed: %d succeeded, %d failed, %d skipped", processed, success, errorCount, skipped)
	if err := c.jobs.Finish(ctx, jobID, status, summary); err != nil {
		return fmt.Errorf("finish job %d: %w", jobID, err)
	}
	if status == models.JobStatusFailed {
		c.releaseClaim(ctx, job.TenantID, job.Checksum)
	}

	logger.WithFields(logrus.Fields{
		"status":  status,
		"success": success,
		"errors":  errorCount,
		"skipped": skipped,
	}).Info("import job finished")

	if c.notify != nil {
		if finished, err := c.jobs.GetJob(ctx, jobID); err == nil {
			c.notify(finished)
		}
	}
	return nil
}

// classifyJob maps final counters to a terminal status: clean run →
// completed, anything succeeded → partial, nothing succeeded → failed.
func classifyJob(processed, success, errorCount, skipped int) string {
	if errorCount == 0 && skipped == 0 {
		return models.JobStatusCompleted
	}
	if success >= 1 {
		return models.JobStatusPartial
	}
	return models.JobStatusFailed
}

// classifyInvalidRow decides between error and skipped for a row that failed
// validation: a failure on the row's deepest level is an error, while a
// valid deep level under a failed ancestor is a skip with the unresolved
// parent recorded.
func classifyInvalidRow(cand *RowCandidate, verr *ValidationError) RowResult {
	deepest := cand.DeepestLevel()
	if deepest == "" || verr.LevelFailed("row") || verr.LevelFailed(deepest) {
		return RowResult{
			EntityType:   deepest,
			Status:       models.ItemStatusError,
			ErrorMessage: verr.Error(),
		}
	}

	failedLevel := models.EntityTypeInitiative
	if verr.LevelFailed(models.EntityTypeObjective) {
		failedLevel = models.EntityTypeObjective
	}
	uerr := &UnresolvedParentError{Level: failedLevel, Reason: verr.Error()}
	return RowResult{
		EntityType:   deepest,
		Status:       models.ItemStatusSkipped,
		ErrorMessage: uerr.Error(),
	}
}

func (c *Coordinator) failJob(ctx context.Context, job *models.ImportJob, ferr *FatalPipelineError, logger *logrus.Entry) error {
	logger.WithError(ferr.Err).WithField("stage", ferr.Stage).Error("import job failed")
	if err := c.jobs.Finish(ctx, int(job.ID), models.JobStatusFailed, ferr.Error()); err != nil {
		logger.WithError(err).Error("could not persist failed status")
	}
	c.releaseClaim(ctx, job.TenantID, job.Checksum)
	if c.notify != nil {
		if finished, err := c.jobs.GetJob(ctx, int(job.ID)); err == nil {
			c.notify(finished)
		}
	}
	return ferr
}

// releaseClaim frees the dedup window after a failed job so a corrected
// re-upload is not blocked for 24h.
func (c *Coordinator) releaseClaim(ctx context.Context, tenantID int, checksum string) {
	if c.dedup == nil {
		return
	}
	if err := c.dedup.Release(ctx, tenantID, checksum); err != nil {
		c.log.WithError(err).WithField("tenant_id", tenantID).Warn("could not release dedup claim")
	}
}
