package handlers

import (
	"bytes"
	"fmt"
	"io"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/incident-service/internal/api/dto"
	"github.com/spec-kit/incident-service/internal/service"
	apperrors "github.com/spec-kit/incident-service/pkg/util/errorutil"
)

// ImportHandler moves tickets in and out as CSV.
type ImportHandler struct {
	service  *service.ImportService
	maxBytes int64
}

// NewImportHandler constructs handler. maxBytes <= 0 disables the size check.
func NewImportHandler(importService *service.ImportService, maxBytes int64) *ImportHandler {
	return &ImportHandler{service: importService, maxBytes: maxBytes}
}

// ImportCSV POST /import/csv. Accepts a raw CSV body or a multipart "file"
// field.
func (h *ImportHandler) ImportCSV(c *fiber.Ctx) error {
	var body io.Reader
	if fh, err := c.FormFile("file"); err == nil {
		if h.maxBytes > 0 && fh.Size > h.maxBytes {
			return tooLarge(h.maxBytes)
		}
		f, err := fh.Open()
		if err != nil {
			return apperrors.NewValidationError("unreadable upload", nil)
		}
		defer f.Close()
		body = f
	} else {
		raw := c.Body()
		if h.maxBytes > 0 && int64(len(raw)) > h.maxBytes {
			return tooLarge(h.maxBytes)
		}
		body = bytes.NewReader(raw)
	}

	result, err := h.service.ImportCSV(c.UserContext(), actor(c), body)
	if err != nil {
		return err
	}
	rows := make([]dto.ImportRowResponse, 0, len(result.Errors))
	for _, e := range result.Errors {
		rows = append(rows, dto.ImportRowResponse{Line: e.Line, Key: e.Key, Message: e.Message})
	}
	keys := result.Keys
	if keys == nil {
		keys = []string{}
	}
	return c.JSON(fiber.Map{"data": dto.ImportResponse{
		Imported: result.Imported,
		Skipped:  result.Skipped,
		Failed:   result.Failed,
		Keys:     keys,
		Errors:   rows,
	}})
}

// ExportCSV GET /export/csv.
func (h *ImportHandler) ExportCSV(c *fiber.Ctx) error {
	var buf bytes.Buffer
	if _, err := h.service.ExportCSV(c.UserContext(), &buf); err != nil {
		return err
	}
	c.Attachment("incidents.csv")
	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	return c.Send(buf.Bytes())
}

func tooLarge(limit int64) error {
	return apperrors.NewDomainError(apperrors.CodeValidation,
		fmt.Sprintf("file exceeds %d bytes", limit), fiber.StatusRequestEntityTooLarge, nil)
}
