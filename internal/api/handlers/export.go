package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pagelift/pagelift/internal/api/middleware"
	"github.com/pagelift/pagelift/internal/apperr"
	"github.com/pagelift/pagelift/internal/models"
	"github.com/pagelift/pagelift/internal/services"
)

// ExportHandler exposes POST /v1/export/:format.
type ExportHandler struct {
	exports *services.ExportService
}

// NewExportHandler wires the export endpoint.
func NewExportHandler(exports *services.ExportService) *ExportHandler {
	return &ExportHandler{exports: exports}
}

// Export returns the requested document rendered in the target format.
func (h *ExportHandler) Export(c *gin.Context) {
	var req models.ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.Wrap(err, apperr.ErrValidation, "request must include a documentId"))
		return
	}

	data, contentType, err := h.exports.Export(
		c.Request.Context(),
		req.DocumentID,
		c.Param("format"),
		c.GetString(middleware.ContextUserID),
	)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Data(http.StatusOK, contentType, data)
}
