package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"recordapi/internal/model"
	"recordapi/internal/repository"
	"recordapi/internal/service"
	serviceMocks "recordapi/internal/service/mocks"
	"recordapi/internal/storage"
	"recordapi/internal/validate"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func multipartBody(t *testing.T, fields map[string]string, fileField, fileName, content string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	if fileField != "" {
		part, err := writer.CreateFormFile(fileField, fileName)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func decode[T any](t *testing.T, r io.Reader) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(r).Decode(&v))
	return v
}

func TestHealthCheck(t *testing.T) {
	mockSvc := new(serviceMocks.MockRecordService)
	app := fiber.New()
	app.Get("/health", HealthCheck(mockSvc))

	t.Run("healthy", func(t *testing.T) {
		mockSvc.On("Ping", mock.Anything).Return(nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		body := decode[map[string]string](t, resp.Body)
		assert.Equal(t, "healthy", body["status"])
	})

	t.Run("unhealthy", func(t *testing.T) {
		mockSvc.On("Ping", mock.Anything).Return(errors.New("db error")).Once()

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		body := decode[errorPayload](t, resp.Body)
		assert.Equal(t, "SERVICE_UNAVAILABLE", body.Error.Code)
	})

	mockSvc.AssertExpectations(t)
}

func TestLivenessProbe(t *testing.T) {
	app := fiber.New()
	app.Get("/healthz", LivenessProbe())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp, _ := app.Test(req)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRoot(t *testing.T) {
	app := fiber.New()
	app.Get("/", Root(time.UTC))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp, _ := app.Test(req)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]string](t, resp.Body)
	assert.Equal(t, "recordapi", body["service"])
	assert.Equal(t, Version, body["version"])
	_, err := time.Parse(time.DateTime, body["time"])
	assert.NoError(t, err)
}

func TestSubmitRecord_Outcomes(t *testing.T) {
	rec := &model.Record{ID: "iemapAb12C", OwnerEmail: "a@b.com", Institution: "X"}

	tests := []struct {
		name        string
		outcome     service.Outcome
		wantStatus  int
		wantMessage string
		wantStage   string
		wantData    bool
		wantFile    bool
	}{
		{
			name: "file exists",
			outcome: service.Outcome{
				Kind: service.KindPartialFailure, Stage: service.StageFileExists,
				Err: storage.ErrAlreadyExists, Record: rec, Filename: "iemapAb12C.xlsx", DataSaved: true,
			},
			wantStatus:  http.StatusConflict,
			wantMessage: "Data saved successfully, but the file already exists",
			wantStage:   "file-exists",
			wantData:    true,
		},
		{
			name: "file save",
			outcome: service.Outcome{
				Kind: service.KindPartialFailure, Stage: service.StageFileSave,
				Err: errors.New("disk full"), Record: rec, DataSaved: true,
			},
			wantStatus:  http.StatusInternalServerError,
			wantMessage: "Data saved successfully, but an error occurred while saving the file",
			wantStage:   "file-save",
			wantData:    true,
		},
		{
			name: "document update",
			outcome: service.Outcome{
				Kind: service.KindPartialFailure, Stage: service.StageDocumentUpdate,
				Err: repository.ErrNotModified, Record: rec, DataSaved: true, FileSaved: true,
			},
			wantStatus:  http.StatusInternalServerError,
			wantMessage: "Data and file saved, but linking the file to the record failed",
			wantStage:   "document-update",
			wantData:    true,
			wantFile:    true,
		},
		{
			name: "store unreachable",
			outcome: service.Outcome{
				Kind: service.KindUnexpected, Stage: service.StageProbe,
				Err: repository.ErrUnreachable, Record: rec,
			},
			wantStatus:  http.StatusServiceUnavailable,
			wantMessage: "Unable to reach the document store",
			wantStage:   "probe",
		},
		{
			name: "insert failure",
			outcome: service.Outcome{
				Kind: service.KindUnexpected, Stage: service.StageDocumentInsert,
				Err: errors.New("write concern error"), Record: rec,
			},
			wantStatus:  http.StatusInternalServerError,
			wantMessage: "Unable to add data into the document store",
			wantStage:   "document-insert",
		},
		{
			name: "unclassified",
			outcome: service.Outcome{
				Kind: service.KindUnexpected, Err: errors.New("boom"),
			},
			wantStatus:  http.StatusInternalServerError,
			wantMessage: "Unexpected error occurred",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockSvc := new(serviceMocks.MockRecordService)
			app := fiber.New()
			app.Post("/upload", SubmitRecord(mockSvc))

			mockSvc.On("Submit", mock.Anything, mock.Anything, mock.Anything).Return(tt.outcome).Once()

			body, ct := multipartBody(t, map[string]string{"data": `{"user_email":"a@b.com","institution":"X"}`}, "excel_file", "r.xlsx", "bytes")
			req := httptest.NewRequest(http.MethodPost, "/upload", body)
			req.Header.Set("Content-Type", ct)
			resp, err := app.Test(req)
			require.NoError(t, err)

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			res := decode[submissionFailure](t, resp.Body)
			assert.Equal(t, tt.wantMessage, res.Message)
			assert.Equal(t, tt.wantStage, res.Stage)
			assert.Equal(t, tt.outcome.Reason(), res.Error)
			assert.Equal(t, tt.wantData, res.DataSaved)
			assert.Equal(t, tt.wantFile, res.FileSaved)
			mockSvc.AssertExpectations(t)
		})
	}
}

func TestSubmitRecord(t *testing.T) {
	const data = `{"user_email":"a@b.com","institution":"X"}`

	t.Run("committed", func(t *testing.T) {
		mockSvc := new(serviceMocks.MockRecordService)
		app := fiber.New()
		app.Post("/upload", SubmitRecord(mockSvc))

		rec := &model.Record{ID: "iemapAb12C", AttachedFiles: []string{"iemapAb12C.xlsx"}}
		mockSvc.On("Submit", mock.Anything, []byte(data), mock.MatchedBy(func(att service.Attachment) bool {
			return att.Filename == "report.xlsx" && att.Size == 11 && att.Reader != nil
		})).Return(service.Outcome{
			Kind: service.KindCommitted, Record: rec, Filename: "iemapAb12C.xlsx", DataSaved: true, FileSaved: true,
		}).Once()

		body, ct := multipartBody(t, map[string]string{"data": data}, "excel_file", "report.xlsx", "hello world")
		req := httptest.NewRequest(http.MethodPost, "/upload", body)
		req.Header.Set("Content-Type", ct)
		resp, err := app.Test(req)
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		res := decode[submissionResult](t, resp.Body)
		assert.Equal(t, "Data and file saved successfully!", res.Message)
		assert.Equal(t, "iemapAb12C", res.ID)
		assert.Equal(t, "iemapAb12C.xlsx", res.Filename)
		mockSvc.AssertExpectations(t)
	})

	t.Run("file alias", func(t *testing.T) {
		mockSvc := new(serviceMocks.MockRecordService)
		app := fiber.New()
		app.Post("/upload", SubmitRecord(mockSvc))

		mockSvc.On("Submit", mock.Anything, []byte(data), mock.MatchedBy(func(att service.Attachment) bool {
			return att.Filename == "report.csv"
		})).Return(service.Outcome{
			Kind: service.KindCommitted, Record: &model.Record{ID: "abc"}, Filename: "abc.csv",
		}).Once()

		body, ct := multipartBody(t, map[string]string{"data": data}, "file", "report.csv", "a,b")
		req := httptest.NewRequest(http.MethodPost, "/upload", body)
		req.Header.Set("Content-Type", ct)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})

	t.Run("rejected", func(t *testing.T) {
		mockSvc := new(serviceMocks.MockRecordService)
		app := fiber.New()
		app.Post("/upload", SubmitRecord(mockSvc))

		mockSvc.On("Submit", mock.Anything, mock.Anything, mock.Anything).Return(service.Outcome{
			Kind: service.KindRejected,
			Err:  &validate.RejectedError{Errors: []validate.FieldError{
				{Field: "user_email", Message: "value is not a valid email address"},
			}},
		}).Once()

		body, ct := multipartBody(t, map[string]string{"data": `{"user_email":"nope","institution":"X"}`}, "excel_file", "r.xlsx", "x")
		req := httptest.NewRequest(http.MethodPost, "/upload", body)
		req.Header.Set("Content-Type", ct)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		res := decode[errorPayload](t, resp.Body)
		assert.Equal(t, "VALIDATION_FAILED", res.Error.Code)
		require.Len(t, res.Error.Details, 1)
		assert.Equal(t, "user_email", res.Error.Details[0].Field)
	})

	t.Run("missing data and file", func(t *testing.T) {
		mockSvc := new(serviceMocks.MockRecordService)
		app := fiber.New()
		app.Post("/upload", SubmitRecord(mockSvc))

		body, ct := multipartBody(t, map[string]string{"other": "x"}, "", "", "")
		req := httptest.NewRequest(http.MethodPost, "/upload", body)
		req.Header.Set("Content-Type", ct)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		res := decode[errorPayload](t, resp.Body)
		require.Len(t, res.Error.Details, 2)
		assert.Equal(t, "data", res.Error.Details[0].Field)
		assert.Equal(t, "excel_file", res.Error.Details[1].Field)
		mockSvc.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("not multipart", func(t *testing.T) {
		mockSvc := new(serviceMocks.MockRecordService)
		app := fiber.New()
		app.Post("/upload", SubmitRecord(mockSvc))

		req := httptest.NewRequest(http.MethodPost, "/upload", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		mockSvc.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestDownloadFile(t *testing.T) {
	mockSvc := new(serviceMocks.MockRecordService)
	app := fiber.New()
	app.Get("/download/:filename", DownloadFile(mockSvc))

	t.Run("success", func(t *testing.T) {
		mockSvc.On("Fetch", mock.Anything, "abc.xlsx").Return(
			io.NopCloser(strings.NewReader("file bytes")),
			storage.ObjectInfo{Key: "abc.xlsx", Size: 10, ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"},
			nil,
		).Once()

		req := httptest.NewRequest(http.MethodGet, "/download/abc.xlsx", nil)
		resp, err := app.Test(req)
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, `attachment; filename="abc.xlsx"`, resp.Header.Get("Content-Disposition"))
		assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", resp.Header.Get("Content-Type"))
		b, _ := io.ReadAll(resp.Body)
		assert.Equal(t, "file bytes", string(b))
	})

	t.Run("not found", func(t *testing.T) {
		mockSvc.On("Fetch", mock.Anything, "missing.xlsx").Return(nil, storage.ObjectInfo{}, service.ErrFileNotFound).Once()

		req := httptest.NewRequest(http.MethodGet, "/download/missing.xlsx", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		res := decode[errorPayload](t, resp.Body)
		assert.Equal(t, "NOT_FOUND", res.Error.Code)
	})

	t.Run("backend error", func(t *testing.T) {
		mockSvc.On("Fetch", mock.Anything, "abc.csv").Return(nil, storage.ObjectInfo{}, errors.New("io error")).Once()

		req := httptest.NewRequest(http.MethodGet, "/download/abc.csv", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	})

	mockSvc.AssertExpectations(t)
}

func TestGetRecord(t *testing.T) {
	mockSvc := new(serviceMocks.MockRecordService)
	app := fiber.New()
	app.Get("/records/:id", GetRecord(mockSvc))

	t.Run("success", func(t *testing.T) {
		rec := &model.Record{ID: "iemapAb12C", OwnerEmail: "a@b.com", AttachedFiles: []string{"iemapAb12C.xlsx"}}
		mockSvc.On("Get", mock.Anything, "iemapAb12C").Return(rec, nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/records/iemapAb12C", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		res := decode[model.Record](t, resp.Body)
		assert.Equal(t, "iemapAb12C", res.ID)
		assert.Equal(t, []string{"iemapAb12C.xlsx"}, res.AttachedFiles)
	})

	t.Run("not found", func(t *testing.T) {
		mockSvc.On("Get", mock.Anything, "missing").Return(nil, service.ErrNotFound).Once()

		req := httptest.NewRequest(http.MethodGet, "/records/missing", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		res := decode[errorPayload](t, resp.Body)
		assert.Equal(t, "NOT_FOUND", res.Error.Code)
	})

	t.Run("service error", func(t *testing.T) {
		mockSvc.On("Get", mock.Anything, "broken").Return(nil, errors.New("db down")).Once()

		req := httptest.NewRequest(http.MethodGet, "/records/broken", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	})

	mockSvc.AssertExpectations(t)
}

func TestListRecords(t *testing.T) {
	mockSvc := new(serviceMocks.MockRecordService)
	app := fiber.New()
	app.Get("/records", ListRecords(mockSvc))

	t.Run("success", func(t *testing.T) {
		expectedRes := &service.RecordListResult{
			Items: []model.Record{{ID: "iemapAb12C", Institution: "X"}},
			Total: 1,
		}
		mockSvc.On("List", mock.Anything, 10, 0).Return(expectedRes, nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/records?limit=10&offset=0", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		result := decode[service.RecordListResult](t, resp.Body)
		assert.Len(t, result.Items, 1)
		assert.Equal(t, 1, result.Total)
	})

	t.Run("invalid limit", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/records?limit=abc", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		body := decode[errorPayload](t, resp.Body)
		assert.Equal(t, "INVALID_LIMIT", body.Error.Code)
	})

	t.Run("invalid offset", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/records?offset=-x", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		body := decode[errorPayload](t, resp.Body)
		assert.Equal(t, "INVALID_OFFSET", body.Error.Code)
	})

	t.Run("service error", func(t *testing.T) {
		mockSvc.On("List", mock.Anything, 10, 0).Return(nil, errors.New("service error")).Once()

		req := httptest.NewRequest(http.MethodGet, "/records", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	})

	mockSvc.AssertExpectations(t)
}

func TestErrorHandler(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler()})
	app.Get("/bad", func(c *fiber.Ctx) error { return fiber.ErrBadRequest })
	app.Get("/large", func(c *fiber.Ctx) error { return fiber.ErrRequestEntityTooLarge })
	app.Get("/boom", func(c *fiber.Ctx) error { return errors.New("internal detail") })

	tests := []struct {
		path       string
		wantStatus int
		wantCode   string
	}{
		{path: "/bad", wantStatus: http.StatusBadRequest, wantCode: "BAD_REQUEST"},
		{path: "/large", wantStatus: http.StatusRequestEntityTooLarge, wantCode: "PAYLOAD_TOO_LARGE"},
		{path: "/boom", wantStatus: http.StatusInternalServerError, wantCode: "INTERNAL_ERROR"},
		{path: "/nowhere", wantStatus: http.StatusNotFound, wantCode: "NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			resp, _ := app.Test(req)

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			body := decode[errorPayload](t, resp.Body)
			assert.Equal(t, tt.wantCode, body.Error.Code)
			assert.NotContains(t, body.Error.Message, "internal detail")
		})
	}
}
