package importer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"stratix/models"
	"stratix/storage"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memJobs is an in-memory importer.JobStore for tests.
type memJobs struct {
	jobs  map[int]*models.ImportJob
	items []models.ImportJobItem
	next  int
}

func newMemJobs() *memJobs {
	return &memJobs{jobs: map[int]*models.ImportJob{}, next: 1}
}

func (m *memJobs) CreateJob(_ context.Context, job *models.ImportJob) error {
	job.ID = uint(m.next)
	m.next++
	job.CreatedAt = time.Now()
	cp := *job
	m.jobs[int(job.ID)] = &cp
	return nil
}

func (m *memJobs) FindActiveJobByChecksum(_ context.Context, tenantID int, checksum string, since time.Time) (*models.ImportJob, error) {
	var newest *models.ImportJob
	for _, j := range m.jobs {
		if j.TenantID != tenantID || j.Checksum != checksum || j.CreatedAt.Before(since) {
			continue
		}
		if j.Status == models.JobStatusFailed || j.Status == models.JobStatusCancelled {
			continue
		}
		if newest == nil || j.CreatedAt.After(newest.CreatedAt) {
			newest = j
		}
	}
	if newest == nil {
		return nil, nil
	}
	cp := *newest
	return &cp, nil
}

func (m *memJobs) GetJob(_ context.Context, jobID int) (*models.ImportJob, error) {
	j, ok := m.jobs[jobID]
	if !ok {
		return nil, errors.New("job not found")
	}
	cp := *j
	return &cp, nil
}

func (m *memJobs) MarkProcessing(_ context.Context, jobID int, totalRows int) error {
	j := m.jobs[jobID]
	j.Status = models.JobStatusProcessing
	j.TotalRows = totalRows
	return nil
}

func (m *memJobs) UpdateCounters(_ context.Context, jobID int, processed, success, errorCount, skipped int) error {
	j := m.jobs[jobID]
	j.ProcessedRows = processed
	j.SuccessRows = success
	j.ErrorRows = errorCount
	j.SkippedRows = skipped
	return nil
}

func (m *memJobs) Finish(_ context.Context, jobID int, status, summary string) error {
	j := m.jobs[jobID]
	j.Status = status
	j.Summary = summary
	now := time.Now()
	j.CompletedAt = &now
	return nil
}

func (m *memJobs) CancelPending(_ context.Context, jobID int) (bool, error) {
	j, ok := m.jobs[jobID]
	if !ok || j.Status != models.JobStatusPending {
		return false, nil
	}
	j.Status = models.JobStatusCancelled
	return true, nil
}

func (m *memJobs) RecordItem(_ context.Context, item *models.ImportJobItem) error {
	m.items = append(m.items, *item)
	return nil
}

func (m *memJobs) itemsByStatus(status string) []models.ImportJobItem {
	var out []models.ImportJobItem
	for _, it := range m.items {
		if it.Status == status {
			out = append(out, it)
		}
	}
	return out
}

// memFetcher is an in-memory object store.
type memFetcher map[string][]byte

func (m memFetcher) Fetch(_ context.Context, objectPath string) ([]byte, error) {
	data, ok := m[objectPath]
	if !ok {
		return nil, fmt.Errorf("object %s not found", objectPath)
	}
	return data, nil
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func TestCreateJobIdempotentReupload(t *testing.T) {
	jobs := newMemJobs()
	coord := NewCoordinator(newMemStore(), jobs, memFetcher{}, quietLogger())

	first, dup, err := coord.CreateJob(context.Background(), 1, nil, "a@b.c", "imports/1/a.csv", "abc123", 10)
	require.NoError(t, err)
	assert.False(t, dup)

	second, dup, err := coord.CreateJob(context.Background(), 1, nil, "a@b.c", "imports/1/a.csv", "abc123", 10)
	require.NoError(t, err)
	assert.True(t, dup)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, jobs.jobs, 1)
}

func TestCreateJobDedupWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	dedup := storage.NewDedupStoreWithClient(client)

	jobs := newMemJobs()
	coord := NewCoordinator(newMemStore(), jobs, memFetcher{}, quietLogger()).WithDeduper(dedup)

	first, dup, err := coord.CreateJob(context.Background(), 1, nil, "", "imports/1/a.csv", "abc123", 0)
	require.NoError(t, err)
	assert.False(t, dup)

	second, dup, err := coord.CreateJob(context.Background(), 1, nil, "", "imports/1/a.csv", "abc123", 0)
	require.NoError(t, err)
	assert.True(t, dup)
	assert.Equal(t, first.ID, second.ID)

	// A different tenant with the same checksum is never deduped against it.
	_, dup, err = coord.CreateJob(context.Background(), 2, nil, "", "imports/2/a.csv", "abc123", 0)
	require.NoError(t, err)
	assert.False(t, dup)
}

func buildCSV(rows ...string) []byte {
	return []byte(strings.Join(rows, "\n") + "\n")
}

func startJob(t *testing.T, coord *Coordinator, tenantID int, objectPath, checksum string) int {
	t.Helper()
	job, dup, err := coord.CreateJob(context.Background(), tenantID, nil, "", objectPath, checksum, 0)
	require.NoError(t, err)
	require.False(t, dup)
	return int(job.ID)
}

func TestProcessJobPartialAccounting(t *testing.T) {
	rows := []string{"objective_title,objective_priority"}
	for i := 1; i <= 10; i++ {
		priority := "high"
		if i == 3 || i == 7 {
			priority = "urgent"
		}
		rows = append(rows, fmt.Sprintf("Objective %d,%s", i, priority))
	}

	store := newMemStore()
	jobs := newMemJobs()
	fetcher := memFetcher{"imports/1/batch.csv": buildCSV(rows...)}
	coord := NewCoordinator(store, jobs, fetcher, quietLogger())

	jobID := startJob(t, coord, 1, "imports/1/batch.csv", "sum1")
	require.NoError(t, coord.ProcessJob(context.Background(), jobID))

	job := jobs.jobs[jobID]
	assert.Equal(t, models.JobStatusPartial, job.Status)
	assert.Equal(t, 10, job.TotalRows)
	assert.Equal(t, 10, job.ProcessedRows)
	assert.Equal(t, 8, job.SuccessRows)
	assert.Equal(t, 2, job.ErrorRows)
	assert.Equal(t, 0, job.SkippedRows)
	assert.Equal(t, job.ProcessedRows, job.SuccessRows+job.ErrorRows+job.SkippedRows)

	errorItems := jobs.itemsByStatus(models.ItemStatusError)
	require.Len(t, errorItems, 2)
	assert.Equal(t, 3, errorItems[0].RowIndex)
	assert.Equal(t, 7, errorItems[1].RowIndex)
	assert.Len(t, store.objectives, 8)
}

func TestProcessJobCompletedCleanRun(t *testing.T) {
	store := newMemStore()
	jobs := newMemJobs()
	fetcher := memFetcher{"imports/1/ok.csv": buildCSV(
		"area_name,objective_title,initiative_title,activity_title",
		"Growth,Q3 Growth,Referral program,Draft landing page",
		"Growth,Q3 Growth,Referral program,Ship tracking",
	)}
	coord := NewCoordinator(store, jobs, fetcher, quietLogger())

	jobID := startJob(t, coord, 1, "imports/1/ok.csv", "sum2")
	require.NoError(t, coord.ProcessJob(context.Background(), jobID))

	job := jobs.jobs[jobID]
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, 2, job.SuccessRows)

	// One objective, one initiative, two activities: the second row reused
	// the hierarchy created by the first.
	assert.Len(t, store.objectives, 1)
	assert.Len(t, store.initiatives, 1)
	assert.Len(t, store.subtasks, 2)
}

func TestProcessJobHierarchicalDedupAcrossJobs(t *testing.T) {
	store := newMemStore()
	jobs := newMemJobs()
	fetcher := memFetcher{
		"imports/1/first.csv":  buildCSV("objective_title,objective_progress", "Q3 Growth,10"),
		"imports/1/second.csv": buildCSV("objective_title,objective_progress", "q3 growth,60"),
	}
	coord := NewCoordinator(store, jobs, fetcher, quietLogger())

	firstID := startJob(t, coord, 1, "imports/1/first.csv", "sumA")
	require.NoError(t, coord.ProcessJob(context.Background(), firstID))
	secondID := startJob(t, coord, 1, "imports/1/second.csv", "sumB")
	require.NoError(t, coord.ProcessJob(context.Background(), secondID))

	require.Len(t, store.objectives, 1, "case-insensitive re-import must update, not duplicate")
	assert.Equal(t, 60.0, store.objectives[0].Progress)
	assert.Equal(t, 2, store.objectives[0].Version)
}

func TestProcessJobOrphanPrevention(t *testing.T) {
	store := newMemStore()
	jobs := newMemJobs()
	fetcher := memFetcher{"imports/1/orphan.csv": buildCSV(
		"area_name,objective_title,objective_priority,initiative_title,activity_title",
		"Growth,Broken Objective,urgent,Valid Initiative,Valid Activity",
	)}
	coord := NewCoordinator(store, jobs, fetcher, quietLogger())

	jobID := startJob(t, coord, 1, "imports/1/orphan.csv", "sumC")
	require.NoError(t, coord.ProcessJob(context.Background(), jobID))

	skippedItems := jobs.itemsByStatus(models.ItemStatusSkipped)
	require.Len(t, skippedItems, 1)
	assert.Contains(t, skippedItems[0].ErrorMessage, "parent objective unresolved")

	assert.Empty(t, store.objectives)
	assert.Empty(t, store.initiatives, "children of a failed parent must not be created detached")
	assert.Empty(t, store.subtasks)

	// Nothing succeeded, so the job as a whole failed.
	assert.Equal(t, models.JobStatusFailed, jobs.jobs[jobID].Status)
}

func TestProcessJobFatalUnreadableFile(t *testing.T) {
	jobs := newMemJobs()
	coord := NewCoordinator(newMemStore(), jobs, memFetcher{}, quietLogger())

	jobID := startJob(t, coord, 1, "imports/1/missing.csv", "sumD")
	err := coord.ProcessJob(context.Background(), jobID)
	require.Error(t, err)

	var ferr *FatalPipelineError
	require.ErrorAs(t, err, &ferr)
	assert.Equal(t, "fetch", ferr.Stage)
	assert.Equal(t, models.JobStatusFailed, jobs.jobs[jobID].Status)
}

func TestCancelOnlyPending(t *testing.T) {
	jobs := newMemJobs()
	fetcher := memFetcher{"imports/1/a.csv": buildCSV("objective_title", "Q3 Growth")}
	coord := NewCoordinator(newMemStore(), jobs, fetcher, quietLogger())

	jobID := startJob(t, coord, 1, "imports/1/a.csv", "sumE")
	require.NoError(t, coord.Cancel(context.Background(), jobID))
	assert.Equal(t, models.JobStatusCancelled, jobs.jobs[jobID].Status)

	// Processing a cancelled job is a no-op.
	require.NoError(t, coord.ProcessJob(context.Background(), jobID))
	assert.Equal(t, models.JobStatusCancelled, jobs.jobs[jobID].Status)

	// A finished job cannot be cancelled.
	fetcher["imports/1/b.csv"] = buildCSV("objective_title", "Retention")
	doneID := startJob(t, coord, 1, "imports/1/b.csv", "sumF")
	require.NoError(t, coord.ProcessJob(context.Background(), doneID))
	require.Error(t, coord.Cancel(context.Background(), doneID))
}

// ctxJobs refuses writes once the context is gone, the way the GORM store
// does, and cancels the run after a fixed number of recorded items.
type ctxJobs struct {
	*memJobs
	cancel      context.CancelFunc
	cancelAfter int
}

func (j *ctxJobs) UpdateCounters(ctx context.Context, jobID int, processed, success, errorCount, skipped int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return j.memJobs.UpdateCounters(ctx, jobID, processed, success, errorCount, skipped)
}

func (j *ctxJobs) RecordItem(ctx context.Context, item *models.ImportJobItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := j.memJobs.RecordItem(ctx, item); err != nil {
		return err
	}
	if len(j.items) == j.cancelAfter {
		j.cancel()
	}
	return nil
}

func TestProcessJobInterruptPersistsCounters(t *testing.T) {
	rows := []string{"objective_title"}
	for i := 1; i <= 6; i++ {
		rows = append(rows, fmt.Sprintf("Objective %d", i))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	inner := newMemJobs()
	jobs := &ctxJobs{memJobs: inner, cancel: cancel, cancelAfter: 3}
	fetcher := memFetcher{"imports/1/long.csv": buildCSV(rows...)}
	coord := NewCoordinator(newMemStore(), jobs, fetcher, quietLogger())

	job, dup, err := coord.CreateJob(ctx, 1, nil, "", "imports/1/long.csv", "sumH", 0)
	require.NoError(t, err)
	require.False(t, dup)

	err = coord.ProcessJob(ctx, int(job.ID))
	require.ErrorIs(t, err, context.Canceled)

	// The rows finished before the cancellation are accounted for even
	// though the request context can no longer write.
	stored := inner.jobs[int(job.ID)]
	assert.Equal(t, models.JobStatusProcessing, stored.Status)
	assert.Equal(t, 3, stored.ProcessedRows)
	assert.Equal(t, 3, stored.SuccessRows)
	require.Len(t, inner.items, 3)
}

func TestProcessJobRecalcHookFires(t *testing.T) {
	store := newMemStore()
	jobs := newMemJobs()
	fetcher := memFetcher{"imports/1/act.csv": buildCSV(
		"area_name,initiative_title,activity_title,activity_is_completed",
		"Growth,Referral program,Draft landing page,yes",
	)}

	var recalced []int
	coord := NewCoordinator(store, jobs, fetcher, quietLogger()).
		WithRecalc(func(_ context.Context, _, initiativeID int) error {
			recalced = append(recalced, initiativeID)
			return nil
		})

	jobID := startJob(t, coord, 1, "imports/1/act.csv", "sumG")
	require.NoError(t, coord.ProcessJob(context.Background(), jobID))
	require.Len(t, recalced, 1)
	assert.Equal(t, int(store.initiatives[0].ID), recalced[0])
}
