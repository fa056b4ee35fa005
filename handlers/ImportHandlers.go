package handlers

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"

	"stratix/importer"
	"stratix/models"
	"stratix/storage"
	"stratix/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const maxImportFileSize = 20 << 20 // 20 MB

// ImportUploadHandler accepts a spreadsheet upload and starts an import job
// @Summary Upload an import file
// @Description Store a CSV/XLSX file, create an import job and start processing. Re-uploads of identical content within 24h return the existing job.
// @Tags Import
// @Accept multipart/form-data
// @Produce json
// @Param tenant_id path int true "Tenant ID"
// @Param file formData file true "CSV or XLSX file"
// @Param area_id formData int false "Default area for rows without area_name"
// @Param uploaded_by formData string false "Uploader email for the completion notification"
// @Success 202 {object} map[string]interface{}
// @Failure 400 {object} utils.Response
// @Failure 500 {object} utils.Response
// @Router /api/tenants/{tenant_id}/import [post]
func ImportUploadHandler(coord *importer.Coordinator, objects *storage.ObjectStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID, err := strconv.Atoi(c.Param("tenant_id"))
		if err != nil {
			utils.ErrorResponse(c, "Invalid tenant id", http.StatusBadRequest)
			return
		}

		fileHeader, err := c.FormFile("file")
		if err != nil {
			utils.ErrorResponse(c, "Missing file", http.StatusBadRequest)
			return
		}
		if fileHeader.Size > maxImportFileSize {
			utils.ErrorResponse(c, "File exceeds the 20 MB limit", http.StatusBadRequest)
			return
		}
		ext := filepath.Ext(fileHeader.Filename)
		if ext != ".csv" && ext != ".xlsx" {
			utils.ErrorResponse(c, "Only .csv and .xlsx files are supported", http.StatusBadRequest)
			return
		}

		f, err := fileHeader.Open()
		if err != nil {
			utils.ErrorResponse(c, "Could not read file", http.StatusInternalServerError)
			return
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			utils.ErrorResponse(c, "Could not read file", http.StatusInternalServerError)
			return
		}

		sum := sha256.Sum256(data)
		checksum := hex.EncodeToString(sum[:])

		var areaID *int
		if v := c.PostForm("area_id"); v != "" {
			id, err := strconv.Atoi(v)
			if err != nil {
				utils.ErrorResponse(c, "Invalid area_id", http.StatusBadRequest)
				return
			}
			areaID = &id
		}
		uploadedBy := c.PostForm("uploaded_by")

		objectPath := fmt.Sprintf("imports/%d/%s%s", tenantID, uuid.New().String(), ext)
		ctx, cancel := utils.DefaultQueryContext(c.Request.Context())
		defer cancel()
		if err := objects.Put(ctx, objectPath, bytes.NewReader(data), int64(len(data)), fileHeader.Header.Get("Content-Type")); err != nil {
			utils.ErrorResponse(c, "Could not store file", http.StatusInternalServerError)
			return
		}

		job, duplicate, err := coord.CreateJob(ctx, tenantID, areaID, uploadedBy, objectPath, checksum, 0)
		if err != nil {
			utils.ErrorResponse(c, "Could not create import job", http.StatusInternalServerError)
			return
		}
		if !duplicate {
			startImport(coord, int(job.ID))
		}

		c.JSON(http.StatusAccepted, gin.H{
			"job_id":    job.ID,
			"status":    job.Status,
			"duplicate": duplicate,
		})
	}
}

// UploadCompleteHandler registers an already-uploaded object as an import job
// @Summary Notify upload completion
// @Description Create an import job for an object already placed in the bucket and start processing.
// @Tags Import
// @Accept json
// @Produce json
// @Param tenant_id path int true "Tenant ID"
// @Param request body models.UploadCompleteRequest true "Upload details"
// @Success 202 {object} map[string]interface{}
// @Failure 400 {object} utils.Response
// @Failure 500 {object} utils.Response
// @Router /api/tenants/{tenant_id}/import/upload-complete [post]
func UploadCompleteHandler(coord *importer.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID, err := strconv.Atoi(c.Param("tenant_id"))
		if err != nil {
			utils.ErrorResponse(c, "Invalid tenant id", http.StatusBadRequest)
			return
		}

		var req models.UploadCompleteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.ErrorResponse(c, "Invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}

		ctx, cancel := utils.DefaultQueryContext(c.Request.Context())
		defer cancel()
		job, duplicate, err := coord.CreateJob(ctx, tenantID, req.AreaID, req.UploadedBy, req.ObjectPath, req.Checksum, req.RowCount)
		if err != nil {
			utils.ErrorResponse(c, "Could not create import job", http.StatusInternalServerError)
			return
		}
		if !duplicate {
			startImport(coord, int(job.ID))
		}

		c.JSON(http.StatusAccepted, gin.H{
			"job_id":    job.ID,
			"status":    job.Status,
			"duplicate": duplicate,
		})
	}
}

// startImport runs the pipeline in the background, detached from the request
// context so a client disconnect does not kill the job.
func startImport(coord *importer.Coordinator, jobID int) {
	go func() {
		ctx, cancel := utils.QueryContext(context.Background(), utils.ImportJobTimeout)
		defer cancel()
		_ = coord.ProcessJob(ctx, jobID)
	}()
}
