package handler

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"loadplan/internal/service"
)

// CalcHandler handles the synchronous calculation endpoint.
type CalcHandler struct {
	jobService service.JobService
}

// NewCalcHandler creates a new CalcHandler.
func NewCalcHandler(jobService service.JobService) *CalcHandler {
	return &CalcHandler{jobService: jobService}
}

// Calculate handles POST /api/v1/calculate. The pipeline runs inline and the
// result is returned without persisting a job; large documents belong on the
// queue instead.
func (h *CalcHandler) Calculate(c *gin.Context) {
	file, _, err := c.Request.FormFile("file")
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

	input := service.CalculateInput{Location: location}
	if s := c.PostForm("scale_feet_per_unit"); s != "" {
		fpu, parseErr := strconv.ParseFloat(s, 64)
		if parseErr != nil || fpu <= 0 {
			RespondError(c, http.StatusBadRequest, "INVALID_SCALE", "scale_feet_per_unit must be a positive number")
			return
		}
		input.FeetPerUnit = fpu
	}

	doc, err := io.ReadAll(file)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "UNREADABLE_FILE", "could not read uploaded file")
		return
	}
	input.Document = doc

	calc, err := h.jobService.Calculate(c.Request.Context(), input)
	if err != nil {
		HandleError(c, err)
		return
	}

	RespondOK(c, calc)
}
