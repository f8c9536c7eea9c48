package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"loadplan/internal/domain"
)

// APIResponse is the standard envelope for all API responses.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
	Meta    *PagMeta    `json:"meta,omitempty"`
}

// APIError holds error details in the response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PagMeta holds pagination metadata.
type PagMeta struct {
	Total  int `json:"total"`
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// RespondOK sends a 200 success response.
func RespondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: data})
}

// RespondCreated sends a 201 success response.
func RespondCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, APIResponse{Success: true, Data: data})
}

// RespondPaginated sends a 200 success response with pagination metadata.
func RespondPaginated(c *gin.Context, data interface{}, meta PagMeta) {
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: data, Meta: &meta})
}

// RespondError sends an error response with the given status code.
func RespondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, APIResponse{
		Success: false,
		Error:   &APIError{Code: code, Message: msg},
	})
}

// MapDomainError translates domain errors to HTTP status codes and error codes.
// Pipeline failures arrive wrapped in StageError; errors.Is sees through it.
func MapDomainError(err error) (status int, code, msg string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "resource not found"
	case errors.Is(err, domain.ErrUnsupportedFileType):
		return http.StatusBadRequest, "UNSUPPORTED_FILE_TYPE", "unsupported file type; only PDF is accepted"
	case errors.Is(err, domain.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "file exceeds maximum allowed size"
	case errors.Is(err, domain.ErrUploadFailed):
		return http.StatusInternalServerError, "UPLOAD_FAILED", "file upload to storage failed"
	case errors.Is(err, domain.ErrJobNotCompleted):
		return http.StatusConflict, "JOB_NOT_COMPLETED", "job has not completed yet"
	case errors.Is(err, domain.ErrNoFloorPlanPages):
		return http.StatusUnprocessableEntity, "NO_FLOOR_PLAN_PAGES", "no floor plan pages found in document"
	case errors.Is(err, domain.ErrScaleUnresolved):
		return http.StatusUnprocessableEntity, "SCALE_UNRESOLVED", "drawing scale could not be resolved; supply scale_feet_per_unit"
	case errors.Is(err, domain.ErrInsufficientRoomData):
		return http.StatusUnprocessableEntity, "INSUFFICIENT_ROOM_DATA", "too little room data could be extracted from the drawing"
	case errors.Is(err, domain.ErrImplausibleBuilding):
		return http.StatusUnprocessableEntity, "IMPLAUSIBLE_BUILDING", "extracted building dimensions are implausible"
	case errors.Is(err, domain.ErrReconciliationFailed):
		return http.StatusUnprocessableEntity, "RECONCILIATION_FAILED", "extraction produced no usable candidates"
	case errors.Is(err, domain.ErrCalculationInput):
		return http.StatusUnprocessableEntity, "CALCULATION_INPUT", "load calculation input is invalid"
	case errors.Is(err, domain.ErrClimateLocationUnknown):
		return http.StatusUnprocessableEntity, "CLIMATE_LOCATION_UNKNOWN", "no design conditions for the given location"
	case errors.Is(err, domain.ErrCapabilityUnavailable):
		return http.StatusServiceUnavailable, "CAPABILITY_UNAVAILABLE", "a required external capability is unavailable"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", "an internal error occurred"
	}
}

// HandleError maps a domain error and sends the appropriate error response.
func HandleError(c *gin.Context, err error) {
	status, code, msg := MapDomainError(err)
	if status >= 500 {
		requestID, _ := c.Get("request_id")
		log.Printf("[%s] internal error: %v", requestID, err)
	}
	RespondError(c, status, code, msg)
}
