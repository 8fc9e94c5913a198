package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"pdfrag/internal/app"
	"pdfrag/internal/transport/http/response"
)

// writeError maps service errors onto the response envelope.
func writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, app.ErrInvalidInput):
		response.ErrorWithDetail(c, http.StatusUnprocessableEntity, response.CodeValidation, "validation failed", err.Error())
	case errors.Is(err, app.ErrDocumentNotFound):
		response.Error(c, http.StatusNotFound, response.CodeDocumentNotFound, "document not found")
	case errors.Is(err, app.ErrPageNotFound):
		response.Error(c, http.StatusNotFound, response.CodePageNotFound, "page not found")
	case errors.Is(err, app.ErrFileMissing):
		response.Error(c, http.StatusConflict, response.CodeFileMissing, "document file is missing")
	case errors.Is(err, app.ErrQueryEmbedding):
		response.ErrorWithDetail(c, http.StatusBadGateway, response.CodeUpstream, "search failed", err.Error())
	case errors.Is(err, app.ErrEnqueue):
		response.Error(c, http.StatusServiceUnavailable, response.CodeUnavailable, "document could not be scheduled for processing")
	default:
		_ = c.Error(err)
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
	}
}
