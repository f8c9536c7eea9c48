package handler_test

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"loadplan/internal/domain"
	"loadplan/internal/export"
	"loadplan/internal/handler"
	"loadplan/mocks"
)

func blueprintForm(t *testing.T, location string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "plan.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.4 test blueprint content"))
	require.NoError(t, err)
	if location != "" {
		require.NoError(t, writer.WriteField("location", location))
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func blueprintFormWithScale(t *testing.T, location, scale string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "plan.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.4 test blueprint content"))
	require.NoError(t, err)
	require.NoError(t, writer.WriteField("location", location))
	require.NoError(t, writer.WriteField("scale_feet_per_unit", scale))
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func completedCalc() *domain.SystemLoadCalculation {
	return &domain.SystemLoadCalculation{
		Location:      "Denver, CO",
		FloorAreaSqFt: 385.0,
		Stories:       1,
		Rooms: []domain.RoomLoadBreakdown{
			{
				RoomName:            "Living Room",
				FloorIndex:          0,
				AreaSqFt:            210.5,
				HeatingBTUH:         6830.4,
				CoolingSensibleBTUH: 3911.2,
				CoolingLatentBTUH:   782.6,
				CoolingBTUH:         4693.8,
			},
		},
		HeatingBTUH:         12044.3,
		CoolingBTUH:         8238.7,
		CoolingSensibleBTUH: 6865.3,
		CoolingLatentBTUH:   1373.4,
		HeatingTons:         1.0,
		CoolingTons:         0.69,
		CalculatedAt:        time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
	}
}

func TestJobHandler_Submit_Success(t *testing.T) {
	mockSvc := new(mocks.MockJobService)
	h := handler.NewJobHandler(mockSvc)

	jobID := uuid.New()
	expected := &domain.Job{
		ID:       jobID,
		FileName: "plan.pdf",
		Location: "Denver, CO",
		Status:   domain.JobStatusQueued,
	}

	mockSvc.On("Submit", mock.Anything, mock.AnythingOfType("service.JobSubmitInput")).
		Return(expected, nil)

	body, contentType := blueprintForm(t, "Denver, CO")

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodPost, "/api/v1/jobs", body)
	c.Request.Header.Set("Content-Type", contentType)

	h.Submit(c)

	assert.Equal(t, http.StatusCreated, w.Code)

	var resp handler.APIResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err)
	assert.True(t, resp.Success)
	mockSvc.AssertExpectations(t)
}

func TestJobHandler_Submit_NoFile(t *testing.T) {
	mockSvc := new(mocks.MockJobService)
	h := handler.NewJobHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodPost, "/api/v1/jobs", nil)

	h.Submit(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestJobHandler_Submit_MissingLocation(t *testing.T) {
	mockSvc := new(mocks.MockJobService)
	h := handler.NewJobHandler(mockSvc)

	body, contentType := blueprintForm(t, "")

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodPost, "/api/v1/jobs", body)
	c.Request.Header.Set("Content-Type", contentType)

	h.Submit(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp handler.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "MISSING_LOCATION", resp.Error.Code)
}

func TestJobHandler_List_Success(t *testing.T) {
	mockSvc := new(mocks.MockJobService)
	h := handler.NewJobHandler(mockSvc)

	jobs := []domain.Job{
		{ID: uuid.New(), FileName: "plan.pdf", Status: domain.JobStatusCompleted},
	}
	mockSvc.On("List", mock.Anything, 0, 20).Return(jobs, 1, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/api/v1/jobs?offset=0&limit=20", nil)

	h.List(c)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp handler.APIResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err)
	assert.True(t, resp.Success)
	assert.NotNil(t, resp.Meta)
	assert.Equal(t, 1, resp.Meta.Total)
	mockSvc.AssertExpectations(t)
}

func TestJobHandler_List_ClampsLimit(t *testing.T) {
	mockSvc := new(mocks.MockJobService)
	h := handler.NewJobHandler(mockSvc)

	mockSvc.On("List", mock.Anything, 0, 20).Return([]domain.Job{}, 0, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/api/v1/jobs?offset=-5&limit=500", nil)

	h.List(c)

	assert.Equal(t, http.StatusOK, w.Code)
	mockSvc.AssertExpectations(t)
}

func TestJobHandler_GetByID_Success(t *testing.T) {
	mockSvc := new(mocks.MockJobService)
	h := handler.NewJobHandler(mockSvc)

	jobID := uuid.New()
	job := &domain.Job{ID: jobID, FileName: "plan.pdf", Status: domain.JobStatusProcessing}
	mockSvc.On("GetByID", mock.Anything, jobID).Return(job, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/api/v1/jobs/"+jobID.String(), nil)
	c.Params = gin.Params{{Key: "id", Value: jobID.String()}}

	h.GetByID(c)

	assert.Equal(t, http.StatusOK, w.Code)
	mockSvc.AssertExpectations(t)
}

func TestJobHandler_GetByID_NotFound(t *testing.T) {
	mockSvc := new(mocks.MockJobService)
	h := handler.NewJobHandler(mockSvc)

	jobID := uuid.New()
	mockSvc.On("GetByID", mock.Anything, jobID).Return(nil, domain.ErrNotFound)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/api/v1/jobs/"+jobID.String(), nil)
	c.Params = gin.Params{{Key: "id", Value: jobID.String()}}

	h.GetByID(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestJobHandler_GetByID_InvalidID(t *testing.T) {
	mockSvc := new(mocks.MockJobService)
	h := handler.NewJobHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/api/v1/jobs/not-a-uuid", nil)
	c.Params = gin.Params{{Key: "id", Value: "not-a-uuid"}}

	h.GetByID(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestJobHandler_GetResult_Success(t *testing.T) {
	mockSvc := new(mocks.MockJobService)
	h := handler.NewJobHandler(mockSvc)

	jobID := uuid.New()
	mockSvc.On("Result", mock.Anything, jobID).Return(completedCalc(), nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/api/v1/jobs/"+jobID.String()+"/result", nil)
	c.Params = gin.Params{{Key: "id", Value: jobID.String()}}

	h.GetResult(c)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp handler.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	mockSvc.AssertExpectations(t)
}

func TestJobHandler_GetResult_NotCompleted(t *testing.T) {
	mockSvc := new(mocks.MockJobService)
	h := handler.NewJobHandler(mockSvc)

	jobID := uuid.New()
	mockSvc.On("Result", mock.Anything, jobID).Return(nil, domain.ErrJobNotCompleted)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/api/v1/jobs/"+jobID.String()+"/result", nil)
	c.Params = gin.Params{{Key: "id", Value: jobID.String()}}

	h.GetResult(c)

	assert.Equal(t, http.StatusConflict, w.Code)

	var resp handler.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "JOB_NOT_COMPLETED", resp.Error.Code)
}

func TestJobHandler_ExportResult_CSV(t *testing.T) {
	mockSvc := new(mocks.MockJobService)
	h := handler.NewJobHandler(mockSvc)

	jobID := uuid.New()
	job := &domain.Job{ID: jobID, FileName: "Main Floor Plan.pdf", Status: domain.JobStatusCompleted}
	mockSvc.On("GetByID", mock.Anything, jobID).Return(job, nil)
	mockSvc.On("Result", mock.Anything, jobID).Return(completedCalc(), nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/api/v1/jobs/"+jobID.String()+"/result/export?format=csv", nil)
	c.Params = gin.Params{{Key: "id", Value: jobID.String()}}

	h.ExportResult(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "Main_Floor_Plan_")
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".csv")

	body := w.Body.Bytes()
	require.True(t, len(body) >= 3)
	assert.Equal(t, export.BOM, body[:3])

	r := csv.NewReader(strings.NewReader(string(body[3:])))
	records, err := r.ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3) // header + 1 room + TOTAL

	assert.Equal(t, "Room", records[0][0])
	assert.Equal(t, "Living Room", records[1][0])
	assert.Equal(t, "TOTAL", records[2][0])
	assert.Equal(t, "12044", records[2][3])

	mockSvc.AssertExpectations(t)
}

func TestJobHandler_ExportResult_XLSX(t *testing.T) {
	mockSvc := new(mocks.MockJobService)
	h := handler.NewJobHandler(mockSvc)

	jobID := uuid.New()
	job := &domain.Job{ID: jobID, FileName: "plan.pdf", Status: domain.JobStatusCompleted}
	mockSvc.On("GetByID", mock.Anything, jobID).Return(job, nil)
	mockSvc.On("Result", mock.Anything, jobID).Return(completedCalc(), nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/api/v1/jobs/"+jobID.String()+"/result/export?format=xlsx", nil)
	c.Params = gin.Params{{Key: "id", Value: jobID.String()}}

	h.ExportResult(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".xlsx")

	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	assert.Contains(t, f.GetSheetList(), "Room Loads")

	mockSvc.AssertExpectations(t)
}

func TestJobHandler_ExportResult_InvalidFormat(t *testing.T) {
	mockSvc := new(mocks.MockJobService)
	h := handler.NewJobHandler(mockSvc)

	jobID := uuid.New()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/api/v1/jobs/"+jobID.String()+"/result/export?format=pdf", nil)
	c.Params = gin.Params{{Key: "id", Value: jobID.String()}}

	h.ExportResult(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp handler.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INVALID_FORMAT", resp.Error.Code)
}
