package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/pagelift/pagelift/internal/api/middleware"
	"github.com/pagelift/pagelift/internal/apperr"
	"github.com/pagelift/pagelift/internal/models"
	"github.com/pagelift/pagelift/internal/services"
)

// DocumentHandler exposes ingestion and the document read paths.
type DocumentHandler struct {
	ingestion      *services.IngestionService
	documents      *services.DocumentService
	maxUploadBytes int64
}

// NewDocumentHandler wires the document endpoints.
func NewDocumentHandler(ingestion *services.IngestionService, documents *services.DocumentService, maxUploadBytes int64) *DocumentHandler {
	return &DocumentHandler{
		ingestion:      ingestion,
		documents:      documents,
		maxUploadBytes: maxUploadBytes,
	}
}

// Ingest handles POST /v1/documents. The response is sent as soon as the
// document reaches processing; extraction continues in the background.
func (h *DocumentHandler) Ingest(c *gin.Context) {
	ownerID := c.GetString(middleware.ContextUserID)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		respondError(c, apperr.Wrap(err, apperr.ErrValidation, "request must include a file"))
		return
	}
	// Reject oversize uploads before touching the payload, let alone storage.
	if fileHeader.Size > h.maxUploadBytes {
		respondError(c, apperr.Newf(apperr.ErrValidation, "file exceeds the maximum size of %d bytes", h.maxUploadBytes))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		respondError(c, apperr.Wrap(err, apperr.ErrInternal, "failed to read upload"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadBytes+1))
	if err != nil {
		respondError(c, apperr.Wrap(err, apperr.ErrInternal, "failed to read upload"))
		return
	}

	title := c.PostForm("title")
	if title == "" {
		title = fileHeader.Filename
	}

	doc, err := h.ingestion.Ingest(c.Request.Context(), &services.Upload{
		Filename:    fileHeader.Filename,
		Title:       title,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Data:        data,
	}, ownerID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.IngestResponse{
		DocumentID: doc.ID,
		Status:     doc.Status,
		PageCount:  doc.PageCount,
	})
}

// Get handles GET /v1/documents/:id, the poll path for clients waiting out
// the processing state.
func (h *DocumentHandler) Get(c *gin.Context) {
	doc, err := h.documents.Get(c.Request.Context(), c.Param("id"), c.GetString(middleware.ContextUserID))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// List handles GET /v1/documents.
func (h *DocumentHandler) List(c *gin.Context) {
	docs, err := h.documents.List(c.Request.Context(), c.GetString(middleware.ContextUserID))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.DocumentListResponse{
		Documents: docs,
		Total:     len(docs),
	})
}

// GetPageImage handles GET /v1/documents/:id/page-image/:page. Page images
// are immutable once attached, so the response carries a one-hour public
// cache header.
func (h *DocumentHandler) GetPageImage(c *gin.Context) {
	pageIndex, err := strconv.Atoi(c.Param("page"))
	if err != nil {
		respondError(c, apperr.New(apperr.ErrValidation, "page must be a number"))
		return
	}

	data, contentType, err := h.documents.GetPageImage(
		c.Request.Context(),
		c.Param("id"),
		pageIndex,
		c.GetString(middleware.ContextUserID),
	)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Cache-Control", "public, max-age=3600")
	c.Header("Content-Length", fmt.Sprintf("%d", len(data)))
	c.Data(http.StatusOK, contentType, data)
}
