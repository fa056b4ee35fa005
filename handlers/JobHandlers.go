package handlers

import (
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"stratix/importer"
	"stratix/models"
	"stratix/repository"
	"stratix/utils"

	"github.com/gin-gonic/gin"
	"github.com/jung-kurt/gofpdf"
	"gorm.io/gorm"
)

// GetJobStatus returns an import job's counters
// @Summary Get import job status
// @Description Current status and row counters of an import job; safe to call mid-processing.
// @Tags Jobs
// @Produce json
// @Param job_id path int true "Job ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} utils.Response
// @Router /api/jobs/{job_id} [get]
func GetJobStatus(jobs *repository.JobRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID, err := strconv.Atoi(c.Param("job_id"))
		if err != nil {
			utils.ErrorResponse(c, "Invalid job id", http.StatusBadRequest)
			return
		}

		ctx, cancel := utils.DefaultQueryContext(c.Request.Context())
		defer cancel()
		job, err := jobs.GetJob(ctx, jobID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				utils.ErrorResponse(c, "Job not found", http.StatusNotFound)
				return
			}
			utils.ErrorResponse(c, "Could not load job", http.StatusInternalServerError)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"id":             job.ID,
			"tenant_id":      job.TenantID,
			"status":         job.Status,
			"total_rows":     job.TotalRows,
			"processed_rows": job.ProcessedRows,
			"success_rows":   job.SuccessRows,
			"error_rows":     job.ErrorRows,
			"skipped_rows":   job.SkippedRows,
			"summary":        job.Summary,
			"created_at":     job.CreatedAt,
			"completed_at":   job.CompletedAt,
		})
	}
}

// ListJobs returns a tenant's job history
// @Summary List import jobs
// @Description Paginated import job history for a tenant, newest first.
// @Tags Jobs
// @Produce json
// @Param tenant_id query int true "Tenant ID"
// @Param page query int false "Page (default 1)"
// @Param page_size query int false "Page size (default 20, max 100)"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} utils.Response
// @Router /api/jobs [get]
func ListJobs(jobs *repository.JobRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID, err := strconv.Atoi(c.Query("tenant_id"))
		if err != nil {
			utils.ErrorResponse(c, "tenant_id query parameter is required", http.StatusBadRequest)
			return
		}
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		if page < 1 {
			page = 1
		}
		pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
		if pageSize < 1 || pageSize > 100 {
			pageSize = 20
		}

		ctx, cancel := utils.DefaultQueryContext(c.Request.Context())
		defer cancel()
		list, total, err := jobs.ListJobs(ctx, tenantID, page, pageSize)
		if err != nil {
			utils.ErrorResponse(c, "Could not list jobs", http.StatusInternalServerError)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"jobs":      list,
			"total":     total,
			"page":      page,
			"page_size": pageSize,
		})
	}
}

// ListJobItems returns per-row outcomes of a job
// @Summary List import job items
// @Description Per-row outcome records of a job, optionally filtered by status (success/error/skipped).
// @Tags Jobs
// @Produce json
// @Param job_id path int true "Job ID"
// @Param status query string false "Filter by item status"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} utils.Response
// @Router /api/jobs/{job_id}/items [get]
func ListJobItems(jobs *repository.JobRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID, err := strconv.Atoi(c.Param("job_id"))
		if err != nil {
			utils.ErrorResponse(c, "Invalid job id", http.StatusBadRequest)
			return
		}
		status := c.Query("status")
		switch status {
		case "", models.ItemStatusSuccess, models.ItemStatusError, models.ItemStatusSkipped:
		default:
			utils.ErrorResponse(c, "Invalid status filter", http.StatusBadRequest)
			return
		}

		ctx, cancel := utils.DefaultQueryContext(c.Request.Context())
		defer cancel()
		items, err := jobs.ListItems(ctx, jobID, status)
		if err != nil {
			utils.ErrorResponse(c, "Could not list job items", http.StatusInternalServerError)
			return
		}

		c.JSON(http.StatusOK, gin.H{"job_id": jobID, "items": items})
	}
}

// JobReportCSV streams a job's non-success rows as CSV
// @Summary Download job error report (CSV)
// @Tags Jobs
// @Produce text/csv
// @Param job_id path int true "Job ID"
// @Success 200 {string} string "CSV data"
// @Failure 400 {object} utils.Response
// @Router /api/jobs/{job_id}/report.csv [get]
func JobReportCSV(jobs *repository.JobRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID, err := strconv.Atoi(c.Param("job_id"))
		if err != nil {
			utils.ErrorResponse(c, "Invalid job id", http.StatusBadRequest)
			return
		}

		ctx, cancel := utils.DefaultQueryContext(c.Request.Context())
		defer cancel()
		items, err := jobs.ListItems(ctx, jobID, "")
		if err != nil {
			utils.ErrorResponse(c, "Could not load job items", http.StatusInternalServerError)
			return
		}

		c.Header("Content-Type", "text/csv")
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=job_%d_report.csv", jobID))

		w := csv.NewWriter(c.Writer)
		_ = w.Write([]string{"row_index", "entity_type", "status", "error_message", "warning", "raw_payload"})
		for _, item := range items {
			if item.Status == models.ItemStatusSuccess && item.Warning == "" {
				continue
			}
			_ = w.Write([]string{
				strconv.Itoa(item.RowIndex),
				item.EntityType,
				item.Status,
				item.ErrorMessage,
				item.Warning,
				item.RawPayload,
			})
		}
		w.Flush()
	}
}

// JobReportPDF renders a printable job summary
// @Summary Download job report (PDF)
// @Tags Jobs
// @Produce application/pdf
// @Param job_id path int true "Job ID"
// @Success 200 {string} string "PDF data"
// @Failure 400 {object} utils.Response
// @Router /api/jobs/{job_id}/report.pdf [get]
func JobReportPDF(jobs *repository.JobRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID, err := strconv.Atoi(c.Param("job_id"))
		if err != nil {
			utils.ErrorResponse(c, "Invalid job id", http.StatusBadRequest)
			return
		}

		ctx, cancel := utils.DefaultQueryContext(c.Request.Context())
		defer cancel()
		job, err := jobs.GetJob(ctx, jobID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				utils.ErrorResponse(c, "Job not found", http.StatusNotFound)
				return
			}
			utils.ErrorResponse(c, "Could not load job", http.StatusInternalServerError)
			return
		}
		items, err := jobs.ListItems(ctx, jobID, models.ItemStatusError)
		if err != nil {
			utils.ErrorResponse(c, "Could not load job items", http.StatusInternalServerError)
			return
		}

		pdf := gofpdf.New("P", "mm", "A4", "")
		pdf.AddPage()
		pdf.SetFont("Arial", "B", 16)
		pdf.Cell(0, 10, fmt.Sprintf("Import Job #%d", job.ID))
		pdf.Ln(12)

		pdf.SetFont("Arial", "", 11)
		summary := [][2]string{
			{"Status", job.Status},
			{"Total rows", strconv.Itoa(job.TotalRows)},
			{"Processed", strconv.Itoa(job.ProcessedRows)},
			{"Succeeded", strconv.Itoa(job.SuccessRows)},
			{"Failed", strconv.Itoa(job.ErrorRows)},
			{"Skipped", strconv.Itoa(job.SkippedRows)},
		}
		for _, row := range summary {
			pdf.CellFormat(40, 7, row[0], "1", 0, "", false, 0, "")
			pdf.CellFormat(60, 7, row[1], "1", 1, "", false, 0, "")
		}

		if len(items) > 0 {
			pdf.Ln(6)
			pdf.SetFont("Arial", "B", 12)
			pdf.Cell(0, 8, "Failed rows")
			pdf.Ln(10)
			pdf.SetFont("Arial", "", 9)
			for _, item := range items {
				pdf.CellFormat(15, 6, strconv.Itoa(item.RowIndex), "1", 0, "", false, 0, "")
				pdf.CellFormat(25, 6, item.EntityType, "1", 0, "", false, 0, "")
				msg := item.ErrorMessage
				if len(msg) > 110 {
					msg = msg[:107] + "..."
				}
				pdf.CellFormat(150, 6, msg, "1", 1, "", false, 0, "")
			}
		}

		c.Header("Content-Type", "application/pdf")
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=job_%d_report.pdf", jobID))
		if err := pdf.Output(c.Writer); err != nil {
			utils.ErrorResponse(c, "Could not render PDF", http.StatusInternalServerError)
		}
	}
}

// CancelJob cancels a pending import job
// @Summary Cancel a pending job
// @Description Only pending jobs can be cancelled; once processing a job runs to completion.
// @Tags Jobs
// @Produce json
// @Param job_id path int true "Job ID"
// @Success 200 {object} utils.Response
// @Failure 409 {object} utils.Response
// @Router /api/jobs/{job_id}/cancel [post]
func CancelJob(coord *importer.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID, err := strconv.Atoi(c.Param("job_id"))
		if err != nil {
			utils.ErrorResponse(c, "Invalid job id", http.StatusBadRequest)
			return
		}

		ctx, cancel := utils.DefaultQueryContext(c.Request.Context())
		defer cancel()
		if err := coord.Cancel(ctx, jobID); err != nil {
			utils.ErrorResponse(c, err.Error(), http.StatusConflict)
			return
		}
		utils.SuccessResponse(c, "Job cancelled", http.StatusOK)
	}
}
