package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"stratix/importer"
	"stratix/models"
	"stratix/progress"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// fakeProgressStore is an in-memory progress.Store backing engine handlers.
type fakeProgressStore struct {
	initiatives []models.Initiative
	subtasks    []models.Subtask
}

func (s *fakeProgressStore) GetInitiative(_ context.Context, tenantID, initiativeID int) (*models.Initiative, error) {
	for i := range s.initiatives {
		if s.initiatives[i].TenantID == tenantID && int(s.initiatives[i].ID) == initiativeID {
			cp := s.initiatives[i]
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *fakeProgressStore) SaveInitiative(_ context.Context, init *models.Initiative) error {
	for i := range s.initiatives {
		if s.initiatives[i].ID == init.ID {
			s.initiatives[i] = *init
			return nil
		}
	}
	s.initiatives = append(s.initiatives, *init)
	return nil
}

func (s *fakeProgressStore) GetSubtask(_ context.Context, tenantID, initiativeID, subtaskID int) (*models.Subtask, error) {
	for i := range s.subtasks {
		st := &s.subtasks[i]
		if st.TenantID == tenantID && st.InitiativeID == initiativeID && int(st.ID) == subtaskID {
			cp := *st
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *fakeProgressStore) ListSubtasks(_ context.Context, tenantID, initiativeID int) ([]models.Subtask, error) {
	var out []models.Subtask
	for _, st := range s.subtasks {
		if st.TenantID == tenantID && st.InitiativeID == initiativeID {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeProgressStore) SaveSubtask(_ context.Context, sub *models.Subtask) error {
	for i := range s.subtasks {
		if s.subtasks[i].ID == sub.ID {
			s.subtasks[i] = *sub
			return nil
		}
	}
	s.subtasks = append(s.subtasks, *sub)
	return nil
}

func (s *fakeProgressStore) DeleteSubtask(_ context.Context, tenantID, initiativeID, subtaskID int) error {
	for i := range s.subtasks {
		st := &s.subtasks[i]
		if st.TenantID == tenantID && st.InitiativeID == initiativeID && int(st.ID) == subtaskID {
			s.subtasks = append(s.subtasks[:i], s.subtasks[i+1:]...)
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (s *fakeProgressStore) InTransaction(_ context.Context, fn func(tx progress.Store) error) error {
	return fn(s)
}

func seededStore() *fakeProgressStore {
	s := &fakeProgressStore{}
	init := models.Initiative{TenantID: 1, AreaID: 1, Title: "Referral program", ProgressMethod: models.ProgressMethodSubtaskBased, Version: 1}
	init.ID = 1
	s.initiatives = []models.Initiative{init}

	a := models.Subtask{TenantID: 1, InitiativeID: 1, Title: "Draft landing page", WeightPercentage: 60, Version: 1}
	a.ID = 1
	b := models.Subtask{TenantID: 1, InitiativeID: 1, Title: "Ship tracking", WeightPercentage: 20, Version: 1}
	b.ID = 2
	s.subtasks = []models.Subtask{a, b}
	return s
}

func subtaskRouter(store *fakeProgressStore) *gin.Engine {
	gin.SetMode(gin.TestMode)
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	engine := progress.NewEngine(store, log)

	r := gin.New()
	r.GET("/api/initiatives/:initiative_id/subtasks/weights", GetWeightSummary(engine))
	r.PUT("/api/initiatives/:initiative_id/subtasks", BulkUpdateSubtasks(engine))
	r.PUT("/api/initiatives/:initiative_id/subtasks/:subtask_id", UpdateSubtask(engine))
	r.DELETE("/api/initiatives/:initiative_id/subtasks/:subtask_id", DeleteSubtask(engine))
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, url, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var parsed map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &parsed))
	}
	return w, parsed
}

func TestUpdateSubtaskHappyPath(t *testing.T) {
	r := subtaskRouter(seededStore())

	w, body := doJSON(t, r, http.MethodPut, "/api/initiatives/1/subtasks/1?tenant_id=1",
		`{"expected_version":1,"progress":100}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// 100*60/100 = 60 from the updated subtask, sibling contributes 0.
	assert.Equal(t, 60.0, body["new_progress"])
	assert.Equal(t, true, body["initiative_progress_updated"])
	sub := body["subtask"].(map[string]interface{})
	assert.Equal(t, 2.0, sub["version"])
}

func TestUpdateSubtaskStaleVersionConflict(t *testing.T) {
	r := subtaskRouter(seededStore())

	w, _ := doJSON(t, r, http.MethodPut, "/api/initiatives/1/subtasks/1?tenant_id=1",
		`{"expected_version":1,"progress":50}`)
	require.Equal(t, http.StatusOK, w.Code)

	w, body := doJSON(t, r, http.MethodPut, "/api/initiatives/1/subtasks/1?tenant_id=1",
		`{"expected_version":1,"progress":70}`)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "ConcurrencyConflict", body["error"])
	assert.Equal(t, 2.0, body["current_version"])
}

func TestUpdateSubtaskWeightExceeded(t *testing.T) {
	r := subtaskRouter(seededStore())

	// Sibling holds 60; pushing this one from 20 to 50 would total 110.
	w, body := doJSON(t, r, http.MethodPut, "/api/initiatives/1/subtasks/2?tenant_id=1",
		`{"expected_version":1,"weight_percentage":50}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "WeightExceededError", body["error"])
	assert.Equal(t, 110.0, body["would_be_total"])
}

func TestUpdateSubtaskRequiresTenant(t *testing.T) {
	r := subtaskRouter(seededStore())

	w, _ := doJSON(t, r, http.MethodPut, "/api/initiatives/1/subtasks/1",
		`{"expected_version":1,"progress":50}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateSubtaskUnknownID(t *testing.T) {
	r := subtaskRouter(seededStore())

	w, _ := doJSON(t, r, http.MethodPut, "/api/initiatives/1/subtasks/99?tenant_id=1",
		`{"expected_version":1,"progress":50}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetWeightSummaryHandler(t *testing.T) {
	r := subtaskRouter(seededStore())

	w, body := doJSON(t, r, http.MethodGet, "/api/initiatives/1/subtasks/weights?tenant_id=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "partial", body["state"])
	assert.Equal(t, 80.0, body["total_weight"])
	assert.Equal(t, 20.0, body["remaining"])
	assert.Len(t, body["allocations"], 2)
}

func TestBulkRedistributeWeights(t *testing.T) {
	store := seededStore()
	r := subtaskRouter(store)

	w, body := doJSON(t, r, http.MethodPut, "/api/initiatives/1/subtasks?tenant_id=1",
		`{"operation":"redistribute_weights","method":"equal"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	subtasks := body["subtasks"].([]interface{})
	require.Len(t, subtasks, 2)
	for _, raw := range subtasks {
		assert.Equal(t, 50.0, raw.(map[string]interface{})["weight_percentage"])
	}
}

func TestBulkReorder(t *testing.T) {
	store := seededStore()
	r := subtaskRouter(store)

	w, _ := doJSON(t, r, http.MethodPut, "/api/initiatives/1/subtasks?tenant_id=1",
		`{"operation":"reorder","order":[2,1]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	listed, err := store.ListSubtasks(context.Background(), 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, listed[0].SortOrder)
	assert.Equal(t, 0, listed[1].SortOrder)
}

func TestBulkUnknownOperation(t *testing.T) {
	r := subtaskRouter(seededStore())

	w, _ := doJSON(t, r, http.MethodPut, "/api/initiatives/1/subtasks?tenant_id=1",
		`{"operation":"shuffle"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteSubtaskWithRedistribute(t *testing.T) {
	store := seededStore()
	r := subtaskRouter(store)

	w, _ := doJSON(t, r, http.MethodDelete, "/api/initiatives/1/subtasks/2?tenant_id=1&redistribute_weights=true", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	listed, err := store.ListSubtasks(context.Background(), 1, 1)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, 100.0, listed[0].WeightPercentage)
}

// cancelJobs is the minimal job store CancelJob needs.
type cancelJobs struct {
	status map[int]string
}

func (m *cancelJobs) CreateJob(context.Context, *models.ImportJob) error { return nil }
func (m *cancelJobs) FindActiveJobByChecksum(context.Context, int, string, time.Time) (*models.ImportJob, error) {
	return nil, nil
}
func (m *cancelJobs) GetJob(context.Context, int) (*models.ImportJob, error) { return nil, nil }
func (m *cancelJobs) MarkProcessing(context.Context, int, int) error         { return nil }
func (m *cancelJobs) UpdateCounters(context.Context, int, int, int, int, int) error {
	return nil
}
func (m *cancelJobs) Finish(context.Context, int, string, string) error { return nil }
func (m *cancelJobs) RecordItem(context.Context, *models.ImportJobItem) error {
	return nil
}

func (m *cancelJobs) CancelPending(_ context.Context, jobID int) (bool, error) {
	if m.status[jobID] != models.JobStatusPending {
		return false, nil
	}
	m.status[jobID] = models.JobStatusCancelled
	return true, nil
}

func TestCancelJobHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	jobs := &cancelJobs{status: map[int]string{
		1: models.JobStatusPending,
		2: models.JobStatusProcessing,
	}}
	coord := importer.NewCoordinator(nil, jobs, nil, log)

	r := gin.New()
	r.POST("/api/jobs/:job_id/cancel", CancelJob(coord))

	w, _ := doJSON(t, r, http.MethodPost, "/api/jobs/1/cancel", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.JobStatusCancelled, jobs.status[1])

	w, _ = doJSON(t, r, http.MethodPost, "/api/jobs/2/cancel", "")
	assert.Equal(t, http.StatusConflict, w.Code)
}
