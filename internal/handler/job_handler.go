package handler

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"loadplan/internal/export"
	"loadplan/internal/service"
)

// JobHandler handles blueprint job endpoints.
type JobHandler struct {
	jobService service.JobService
}

// NewJobHandler creates a new JobHandler.
func NewJobHandler(jobService service.JobService) *JobHandler {
	return &JobHandler{jobService: jobService}
}

// Submit handles POST /api/v1/jobs
func (h *JobHandler) Submit(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "MISSING_FILE", "file field is required")
		return
	}
	defer func() { _ = file.Close() }()

	location := c.PostForm("location")
	if location == "" {
		RespondError(c, http.StatusBadRequest, "MISSING_LOCATION", "location form field is required")
		return
	}

	job, err := h.jobService.Submit(c.Request.Context(), service.JobSubmitInput{
		File:     file,
		Header:   header,
		Location: location,
	})
	if err != nil {
		HandleError(c, err)
		return
	}

	RespondCreated(c, job)
}

// List handles GET /api/v1/jobs
func (h *JobHandler) List(c *gin.Context) {
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	jobs, total, err := h.jobService.List(c.Request.Context(), offset, limit)
	if err != nil {
		HandleError(c, err)
		return
	}

	RespondPaginated(c, jobs, PagMeta{Total: total, Offset: offset, Limit: limit})
}

// GetByID handles GET /api/v1/jobs/:id
func (h *JobHandler) GetByID(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_ID", "invalid job ID")
		return
	}

	job, err := h.jobService.GetByID(c.Request.Context(), jobID)
	if err != nil {
		HandleError(c, err)
		return
	}

	RespondOK(c, job)
}

// GetResult handles GET /api/v1/jobs/:id/result
func (h *JobHandler) GetResult(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_ID", "invalid job ID")
		return
	}

	calc, err := h.jobService.Result(c.Request.Context(), jobID)
	if err != nil {
		HandleError(c, err)
		return
	}

	RespondOK(c, calc)
}

// ExportResult handles GET /api/v1/jobs/:id/result/export
func (h *JobHandler) ExportResult(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "INVALID_ID", "invalid job ID")
		return
	}

	format := c.DefaultQuery("format", "csv")
	if format != "csv" && format != "xlsx" {
		RespondError(c, http.StatusBadRequest, "INVALID_FORMAT", "unsupported export format; allowed: csv, xlsx")
		return
	}

	job, err := h.jobService.GetByID(c.Request.Context(), jobID)
	if err != nil {
		HandleError(c, err)
		return
	}
	calc, err := h.jobService.Result(c.Request.Context(), jobID)
	if err != nil {
		HandleError(c, err)
		return
	}

	filename := export.BuildFilename(job.FileName, format)

	if format == "xlsx" {
		b, err := export.WriteXLSX(calc)
		if err != nil {
			HandleError(c, err)
			return
		}
		c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
		c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", b)
		return
	}

	var buf bytes.Buffer
	buf.Write(export.BOM)
	w := export.NewWriter(&buf)
	if err := w.WriteHeader(); err != nil {
		HandleError(c, err)
		return
	}
	if err := w.WriteCalculation(calc); err != nil {
		HandleError(c, err)
		return
	}
	w.Flush()
	if err := w.Error(); err != nil {
		HandleError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}
