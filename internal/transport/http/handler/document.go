package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"pdfrag/internal/app"
	"pdfrag/internal/model"
	"pdfrag/internal/transport/http/response"
)

type DocumentService interface {
	Upload(ctx context.Context, input app.UploadInput) (*model.Document, error)
	List(ctx context.Context, page, perPage int) (*app.DocumentList, error)
	Get(ctx context.Context, id uint) (*app.DocumentDetail, error)
	Page(ctx context.Context, id uint, pageNumber int) (*model.DocumentPage, error)
	Delete(ctx context.Context, id uint) error
	Reprocess(ctx context.Context, id uint) (*model.Document, error)
}

type DocumentHandler struct {
	documents DocumentService
}

func NewDocumentHandler(documents DocumentService) *DocumentHandler {
	return &DocumentHandler{documents: documents}
}

// Upload accepts a multipart form with "file" (PDF) and an optional "title".
func (h *DocumentHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		response.ErrorWithDetail(c, http.StatusUnprocessableEntity, response.CodeValidation, "validation failed", "file is required")
		return
	}
	f, err := file.Open()
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "cannot read uploaded file")
		return
	}
	defer f.Close()

	doc, err := h.documents.Upload(c.Request.Context(), app.UploadInput{
		Filename: file.Filename,
		Title:    c.PostForm("title"),
		MimeType: file.Header.Get("Content-Type"),
		Size:     file.Size,
		Content:  f,
	})
	if err != nil {
		writeError(c, err, "upload document failed")
		return
	}
	response.Created(c, "document uploaded, processing in background", gin.H{"document": doc})
}

func (h *DocumentHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "0"))

	list, err := h.documents.List(c.Request.Context(), page, perPage)
	if err != nil {
		writeError(c, err, "list documents failed")
		return
	}
	response.OK(c, list)
}

func (h *DocumentHandler) Show(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	detail, err := h.documents.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err, "get document failed")
		return
	}
	response.OK(c, detail)
}

func (h *DocumentHandler) Page(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	pageNumber, err := strconv.Atoi(c.Param("page"))
	if err != nil || pageNumber < 1 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid page number")
		return
	}
	page, err := h.documents.Page(c.Request.Context(), id, pageNumber)
	if err != nil {
		writeError(c, err, "get page failed")
		return
	}
	response.OK(c, gin.H{"page": page})
}

func (h *DocumentHandler) Reprocess(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	doc, err := h.documents.Reprocess(c.Request.Context(), id)
	if err != nil {
		writeError(c, err, "reprocess document failed")
		return
	}
	c.JSON(http.StatusAccepted, response.APIResponse{
		Success: true,
		Code:    response.CodeOK,
		Message: "document scheduled for processing",
		Data:    gin.H{"document": doc},
	})
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.documents.Delete(c.Request.Context(), id); err != nil {
		writeError(c, err, "delete document failed")
		return
	}
	response.OK(c, gin.H{"deleted": true})
}

func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}
