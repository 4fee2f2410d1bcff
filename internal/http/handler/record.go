package handler

import (
	"errors"
	"mime/multipart"
	"path/filepath"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"recordapi/internal/service"
	"recordapi/internal/validate"
)

const (
	formFieldData = "data"
	formFieldFile = "excel_file"
	// Accepted in place of excel_file.
	formFieldFileAlias = "file"
)

// submissionResult is the body of a committed submission.
type submissionResult struct {
	Message  string `json:"message"`
	ID       string `json:"id"`
	Filename string `json:"filename"`
}

// submissionFailure tells the caller which half of the submission landed.
type submissionFailure struct {
	Message   string `json:"message"`
	Error     string `json:"error"`
	Stage     string `json:"stage,omitempty"`
	DataSaved bool   `json:"data_saved"`
	FileSaved bool   `json:"file_saved"`
}

// SubmitRecord stores a record and its attachment as one unit.
//
//	@Summary	Submit a record with its attachment
//	@Tags		records
//	@Accept		multipart/form-data
//	@Produce	json
//	@Param		data		formData	string	true	"Record JSON: user_email, institution, optional id and date"
//	@Param		excel_file	formData	file	true	"Attachment"
//	@Success	200	{object}	submissionResult
//	@Failure	409	{object}	submissionFailure
//	@Failure	422	{object}	errorPayload
//	@Failure	500	{object}	submissionFailure
//	@Failure	503	{object}	submissionFailure
//	@Router		/upload [post]
func SubmitRecord(svc service.RecordService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var missing []validate.FieldError

		data := c.FormValue(formFieldData)
		if data == "" {
			missing = append(missing, validate.FieldError{Field: formFieldData, Message: "field required"})
		}
		fh, err := formFile(c)
		if err != nil {
			missing = append(missing, validate.FieldError{Field: formFieldFile, Message: "field required"})
		}
		if len(missing) > 0 {
			return writeValidationError(c, missing)
		}

		f, err := fh.Open()
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_OPEN_ERROR", "cannot open uploaded file")
		}
		defer f.Close()

		ct := fh.Header.Get(fiber.HeaderContentType)
		if ct == "" {
			ct = fiber.MIMEOctetStream
		}

		out := svc.Submit(c.UserContext(), []byte(data), service.Attachment{
			Reader:      f,
			Filename:    filepath.Base(fh.Filename),
			ContentType: ct,
			Size:        fh.Size,
		})
		return writeOutcome(c, out)
	}
}

func formFile(c *fiber.Ctx) (*multipart.FileHeader, error) {
	fh, err := c.FormFile(formFieldFile)
	if err == nil {
		return fh, nil
	}
	if alias, aliasErr := c.FormFile(formFieldFileAlias); aliasErr == nil {
		return alias, nil
	}
	return nil, err
}

// writeOutcome maps a terminal outcome to its HTTP response.
func writeOutcome(c *fiber.Ctx, out service.Outcome) error {
	switch out.Kind {
	case service.KindCommitted:
		return c.Status(fiber.StatusOK).JSON(submissionResult{
			Message:  "Data and file saved successfully!",
			ID:       out.Record.ID,
			Filename: out.Filename,
		})
	case service.KindRejected:
		return writeValidationError(c, out.FieldErrors())
	}

	status := fiber.StatusInternalServerError
	var message string
	switch out.Stage {
	case service.StageFileExists:
		status = fiber.StatusConflict
		message = "Data saved successfully, but the file already exists"
	case service.StageFileSave:
		message = "Data saved successfully, but an error occurred while saving the file"
	case service.StageDocumentUpdate:
		message = "Data and file saved, but linking the file to the record failed"
	case service.StageProbe:
		status = fiber.StatusServiceUnavailable
		message = "Unable to reach the document store"
	case service.StageDocumentInsert:
		message = "Unable to add data into the document store"
	default:
		message = "Unexpected error occurred"
	}

	return c.Status(status).JSON(submissionFailure{
		Message:   message,
		Error:     out.Reason(),
		Stage:     string(out.Stage),
		DataSaved: out.DataSaved,
		FileSaved: out.FileSaved,
	})
}

// DownloadFile streams a stored attachment back as a download.
//
//	@Summary	Download an attachment
//	@Tags		records
//	@Produce	octet-stream
//	@Param		filename	path	string	true	"Stored file name"
//	@Success	200	{file}		binary
//	@Failure	404	{object}	errorPayload
//	@Router		/download/{filename} [get]
func DownloadFile(svc service.RecordService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		name := c.Params("filename")
		rc, info, err := svc.Fetch(c.UserContext(), name)
		if err != nil {
			if errors.Is(err, service.ErrFileNotFound) || errors.Is(err, service.ErrFilenameRequired) {
				return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "file not found")
			}
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}

		c.Attachment(name)
		if info.ContentType != "" {
			c.Set(fiber.HeaderContentType, info.ContentType)
		}
		// fasthttp closes rc once the body is written.
		return c.SendStream(rc, int(info.Size))
	}
}

// GetRecord returns a record by id.
//
//	@Summary	Get a record
//	@Tags		records
//	@Produce	json
//	@Param		id	path	string	true	"Record id"
//	@Success	200	{object}	model.Record
//	@Failure	404	{object}	errorPayload
//	@Router		/records/{id} [get]
func GetRecord(svc service.RecordService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		rec, err := svc.Get(c.UserContext(), c.Params("id"))
		if err != nil {
			if errors.Is(err, service.ErrNotFound) {
				return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "record not found")
			}
			if errors.Is(err, service.ErrIDRequired) {
				return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "id is required")
			}
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return c.JSON(rec)
	}
}

// ListRecords returns records with limit & offset.
//
//	@Summary	List records
//	@Tags		records
//	@Produce	json
//	@Param		limit	query	int	false	"Page size (max 100)"	default(10)
//	@Param		offset	query	int	false	"Offset"				default(0)
//	@Success	200	{object}	service.RecordListResult
//	@Failure	400	{object}	errorPayload
//	@Router		/records [get]
func ListRecords(svc service.RecordService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit, err := strconv.Atoi(c.Query("limit", "10"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_LIMIT", "invalid limit")
		}
		offset, err := strconv.Atoi(c.Query("offset", "0"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_OFFSET", "invalid offset")
		}

		res, err := svc.List(c.UserContext(), limit, offset)
		if err != nil {
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return c.JSON(res)
	}
}
