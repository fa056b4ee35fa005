package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"stratix/models"
	"stratix/progress"
	"stratix/repository"
	"stratix/utils"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func tenantFromQuery(c *gin.Context) (int, bool) {
	tenantID, err := strconv.Atoi(c.Query("tenant_id"))
	if err != nil {
		utils.ErrorResponse(c, "tenant_id query parameter is required", http.StatusBadRequest)
		return 0, false
	}
	return tenantID, true
}

// writeProgressError maps engine errors onto the HTTP surface. Conflicts
// carry the current version so callers can refetch and retry.
func writeProgressError(c *gin.Context, err error) {
	var conflict *progress.ConcurrencyConflict
	var exceeded *progress.WeightExceededError
	var invalid *progress.WeightValidationError
	switch {
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{
			"error":           "ConcurrencyConflict",
			"message":         conflict.Error(),
			"current_version": conflict.CurrentVersion,
		})
	case errors.As(err, &exceeded):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":          "WeightExceededError",
			"message":        exceeded.Error(),
			"would_be_total": exceeded.WouldBeTotal,
		})
	case errors.As(err, &invalid):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   "ValidationError",
			"message": invalid.Error(),
		})
	case errors.Is(err, gorm.ErrRecordNotFound):
		utils.ErrorResponse(c, "Not found", http.StatusNotFound)
	default:
		utils.ErrorResponse(c, err.Error(), http.StatusInternalServerError)
	}
}

// ListSubtasks returns an initiative's subtasks in sort order
// @Summary List subtasks
// @Tags Subtasks
// @Produce json
// @Param initiative_id path int true "Initiative ID"
// @Param tenant_id query int true "Tenant ID"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} utils.Response
// @Router /api/initiatives/{initiative_id}/subtasks [get]
func ListSubtasks(repo *repository.ProgressRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		initiativeID, err := strconv.Atoi(c.Param("initiative_id"))
		if err != nil {
			utils.ErrorResponse(c, "Invalid initiative id", http.StatusBadRequest)
			return
		}
		tenantID, ok := tenantFromQuery(c)
		if !ok {
			return
		}

		ctx, cancel := utils.DefaultQueryContext(c.Request.Context())
		defer cancel()
		subtasks, err := repo.ListSubtasks(ctx, tenantID, initiativeID)
		if err != nil {
			utils.ErrorResponse(c, "Could not list subtasks", http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, gin.H{"initiative_id": initiativeID, "subtasks": subtasks})
	}
}

// GetWeightSummary returns the weight aggregate state of an initiative
// @Summary Subtask weight summary
// @Description Weight aggregate state (unassigned/partial/balanced), per-subtask allocations and remaining headroom.
// @Tags Subtasks
// @Produce json
// @Param initiative_id path int true "Initiative ID"
// @Param tenant_id query int true "Tenant ID"
// @Success 200 {object} models.WeightSummaryResponse
// @Failure 400 {object} utils.Response
// @Router /api/initiatives/{initiative_id}/subtasks/weights [get]
func GetWeightSummary(engine *progress.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		initiativeID, err := strconv.Atoi(c.Param("initiative_id"))
		if err != nil {
			utils.ErrorResponse(c, "Invalid initiative id", http.StatusBadRequest)
			return
		}
		tenantID, ok := tenantFromQuery(c)
		if !ok {
			return
		}

		ctx, cancel := utils.DefaultQueryContext(c.Request.Context())
		defer cancel()
		summary, err := engine.WeightSummary(ctx, tenantID, initiativeID)
		if err != nil {
			writeProgressError(c, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

// UpdateSubtask patches one subtask under optimistic locking
// @Summary Update a subtask
// @Description Version-guarded partial update. Returns 409 with current_version on a stale expected_version; weight changes that would push the sibling total over 100 return 422.
// @Tags Subtasks
// @Accept json
// @Produce json
// @Param initiative_id path int true "Initiative ID"
// @Param subtask_id path int true "Subtask ID"
// @Param tenant_id query int true "Tenant ID"
// @Param request body models.SubtaskUpdateRequest true "Patch with expected_version"
// @Success 200 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Failure 422 {object} map[string]interface{}
// @Router /api/initiatives/{initiative_id}/subtasks/{subtask_id} [put]
func UpdateSubtask(engine *progress.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		initiativeID, err := strconv.Atoi(c.Param("initiative_id"))
		if err != nil {
			utils.ErrorResponse(c, "Invalid initiative id", http.StatusBadRequest)
			return
		}
		subtaskID, err := strconv.Atoi(c.Param("subtask_id"))
		if err != nil {
			utils.ErrorResponse(c, "Invalid subtask id", http.StatusBadRequest)
			return
		}
		tenantID, ok := tenantFromQuery(c)
		if !ok {
			return
		}

		var req models.SubtaskUpdateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.ErrorResponse(c, "Invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}

		ctx, cancel := utils.DefaultQueryContext(c.Request.Context())
		defer cancel()
		result, err := engine.ApplyOptimisticUpdate(ctx, tenantID, initiativeID, subtaskID, req.ExpectedVersion, req)
		if err != nil {
			writeProgressError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"subtask":                     result.Subtask,
			"initiative_progress_updated": result.InitiativeProgressUpdated,
			"previous_progress":           result.PreviousProgress,
			"new_progress":                result.NewProgress,
			"weight_impact":               result.WeightImpact,
		})
	}
}

// BulkUpdateSubtasks applies a collection operation on an initiative's subtasks
// @Summary Bulk subtask operation
// @Description operation is one of reorder, redistribute_weights (method equal/proportional), bulk_update.
// @Tags Subtasks
// @Accept json
// @Produce json
// @Param initiative_id path int true "Initiative ID"
// @Param tenant_id query int true "Tenant ID"
// @Param request body models.SubtaskBulkRequest true "Operation"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} utils.Response
// @Router /api/initiatives/{initiative_id}/subtasks [put]
func BulkUpdateSubtasks(engine *progress.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		initiativeID, err := strconv.Atoi(c.Param("initiative_id"))
		if err != nil {
			utils.ErrorResponse(c, "Invalid initiative id", http.StatusBadRequest)
			return
		}
		tenantID, ok := tenantFromQuery(c)
		if !ok {
			return
		}

		var req models.SubtaskBulkRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.ErrorResponse(c, "Invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}

		ctx, cancel := utils.DefaultQueryContext(c.Request.Context())
		defer cancel()

		switch req.Operation {
		case models.BulkOpReorder:
			if err := engine.Reorder(ctx, tenantID, initiativeID, req.Order); err != nil {
				writeProgressError(c, err)
				return
			}
			utils.SuccessResponse(c, "Subtasks reordered", http.StatusOK)

		case models.BulkOpRedistribute:
			method := req.Method
			if method == "" {
				method = models.RedistributionEqual
			}
			subtasks, err := engine.RedistributeWeights(ctx, tenantID, initiativeID, method)
			if err != nil {
				writeProgressError(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"subtasks": subtasks})

		case models.BulkOpBulkUpdate:
			results := make([]gin.H, 0, len(req.Updates))
			for _, u := range req.Updates {
				result, err := engine.ApplyOptimisticUpdate(ctx, tenantID, initiativeID, u.ID, u.ExpectedVersion, u.Patch)
				if err != nil {
					var conflict *progress.ConcurrencyConflict
					entry := gin.H{"id": u.ID, "error": err.Error()}
					if errors.As(err, &conflict) {
						entry["current_version"] = conflict.CurrentVersion
					}
					results = append(results, entry)
					continue
				}
				results = append(results, gin.H{"id": u.ID, "subtask": result.Subtask, "new_progress": result.NewProgress})
			}
			c.JSON(http.StatusOK, gin.H{"results": results})

		default:
			utils.ErrorResponse(c, "Unknown operation: "+req.Operation, http.StatusBadRequest)
		}
	}
}

// DeleteSubtask removes a subtask, optionally re-splitting weights
// @Summary Delete a subtask
// @Description With redistribute_weights=true the remaining siblings are re-split equally; otherwise weights are left as-is.
// @Tags Subtasks
// @Produce json
// @Param initiative_id path int true "Initiative ID"
// @Param subtask_id path int true "Subtask ID"
// @Param tenant_id query int true "Tenant ID"
// @Param redistribute_weights query bool false "Re-split remaining weights equally"
// @Success 200 {object} utils.Response
// @Failure 404 {object} utils.Response
// @Router /api/initiatives/{initiative_id}/subtasks/{subtask_id} [delete]
func DeleteSubtask(engine *progress.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		initiativeID, err := strconv.Atoi(c.Param("initiative_id"))
		if err != nil {
			utils.ErrorResponse(c, "Invalid initiative id", http.StatusBadRequest)
			return
		}
		subtaskID, err := strconv.Atoi(c.Param("subtask_id"))
		if err != nil {
			utils.ErrorResponse(c, "Invalid subtask id", http.StatusBadRequest)
			return
		}
		tenantID, ok := tenantFromQuery(c)
		if !ok {
			return
		}
		redistribute := c.Query("redistribute_weights") == "true"

		ctx, cancel := utils.DefaultQueryContext(c.Request.Context())
		defer cancel()
		if err := engine.Delete(ctx, tenantID, initiativeID, subtaskID, redistribute); err != nil {
			writeProgressError(c, err)
			return
		}
		utils.SuccessResponse(c, "Subtask deleted", http.StatusOK)
	}
}
