package handlers

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/pagelift/pagelift/internal/apperr"
)

// ErrorResponse is the API error body: a machine-readable code plus a
// user-safe message. Raw internal error text never leaves the server.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// respondError logs the full error server-side and writes the classified
// response.
func respondError(c *gin.Context, err error) {
	slog.Error("Request error.",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"code", apperr.Code(err),
		"error", err,
	)
	c.AbortWithStatusJSON(apperr.HTTPStatus(err), ErrorResponse{
		Code:    apperr.Code(err),
		Message: apperr.Hint(err),
	})
}
