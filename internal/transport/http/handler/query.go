package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"pdfrag/internal/app"
	"pdfrag/internal/model"
	"pdfrag/internal/transport/http/response"
)

type SearchService interface {
	Search(ctx context.Context, input app.SearchInput) (*app.SearchOutput, error)
	Stats(ctx context.Context) (*model.KnowledgeStats, error)
}

type QueryHandler struct {
	search SearchService
}

type SearchRequest struct {
	Query               string   `json:"query" binding:"required"`
	Limit               int      `json:"limit"`
	SimilarityThreshold *float64 `json:"similarity_threshold"`
	SearchType          string   `json:"search_type"`
}

func NewQueryHandler(search SearchService) *QueryHandler {
	return &QueryHandler{search: search}
}

func (h *QueryHandler) Search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithDetail(c, http.StatusUnprocessableEntity, response.CodeValidation, "validation failed", err.Error())
		return
	}

	out, err := h.search.Search(c.Request.Context(), app.SearchInput{
		Query:     req.Query,
		Limit:     req.Limit,
		Threshold: req.SimilarityThreshold,
		Mode:      app.SearchMode(req.SearchType),
	})
	if err != nil {
		writeError(c, err, "search failed")
		return
	}
	response.OK(c, out)
}

func (h *QueryHandler) Stats(c *gin.Context) {
	stats, err := h.search.Stats(c.Request.Context())
	if err != nil {
		writeError(c, err, "get stats failed")
		return
	}
	response.OK(c, stats)
}
