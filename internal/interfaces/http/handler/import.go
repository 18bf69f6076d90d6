package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	importapp "github.com/textile/backend/internal/application/import"
	csvimport "github.com/textile/backend/internal/infrastructure/import"
	"github.com/textile/backend/internal/interfaces/http/dto"
)

// ImportHandler turns spreadsheet uploads into order line items
type ImportHandler struct {
	BaseHandler
	service *importapp.IngestionService
	maxSize int64
}

// NewImportHandler creates a new ImportHandler. Uploads above maxSize bytes
// are refused.
func NewImportHandler(service *importapp.IngestionService, maxSize int64) *ImportHandler {
	return &ImportHandler{service: service, maxSize: maxSize}
}

// Upload godoc
//
//	@Summary		Import line items from a spreadsheet
//	@Description	Accepts a csv, xlsx or xls file. An optional "buffer" field carries the
//	@Description	current editing buffer as JSON; imported rows are merged into it.
//	@Tags			imports
//	@Accept			multipart/form-data
//	@Param			file	formData	file	true	"Spreadsheet"
//	@Param			buffer	formData	string	false	"Editing buffer (JSON line items)"
//	@Success		200	{object}	dto.ImportResponse
//	@Failure		413	{object}	dto.Response
//	@Failure		415	{object}	dto.Response
//	@Failure		429	{object}	dto.Response
//	@Router			/imports [post]
func (h *ImportHandler) Upload(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.tooLarge(c)
			return
		}
		h.BadRequest(c, "file is required")
		return
	}
	defer file.Close()

	if h.maxSize > 0 && header.Size > h.maxSize {
		h.tooLarge(c)
		return
	}
	if !h.service.Accepts(header.Filename) {
		h.Error(c, http.StatusUnsupportedMediaType, dto.ErrCodeUnsupportedFile,
			fmt.Sprintf("Unsupported file type %q", filepath.Ext(header.Filename)))
		return
	}

	var buffer []dto.LineItemRequest
	if raw := c.PostForm("buffer"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &buffer); err != nil {
			h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidJSON, "buffer is not a JSON list of line items")
			return
		}
	}

	data, err := io.ReadAll(file)
	if err != nil {
		h.BadRequest(c, "Failed to read upload")
		return
	}

	result, err := h.service.Ingest(c.Request.Context(), header.Filename, data)
	if err != nil {
		h.handleImportError(c, err)
		return
	}

	resp := dto.FromIngestResult(result)
	if buffer != nil {
		resp.Merged = dto.FromLineItems(h.service.MergeLineItems(dto.ToLineItems(buffer), result.Rows))
	}
	h.Success(c, resp)
}

func (h *ImportHandler) tooLarge(c *gin.Context) {
	h.Error(c, http.StatusRequestEntityTooLarge, dto.ErrCodeRequestTooLarge,
		fmt.Sprintf("File exceeds the maximum size of %d bytes", h.maxSize))
}

// handleImportError maps normalization failures, which are plain errors,
// before falling back to the domain mapping.
func (h *ImportHandler) handleImportError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, csvimport.ErrFileTooLarge):
		h.tooLarge(c)
	case errors.Is(err, csvimport.ErrEmptyFile),
		errors.Is(err, csvimport.ErrInvalidEncoding),
		errors.Is(err, csvimport.ErrMissingHeader),
		errors.Is(err, csvimport.ErrUnreadableWorkbook),
		errors.Is(err, csvimport.ErrNoSheets):
		h.Error(c, http.StatusBadRequest, dto.ErrCodeUnreadableFile, err.Error())
	default:
		h.HandleError(c, err)
	}
}
