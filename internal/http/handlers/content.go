package handlers

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/learnmate-backend/internal/content/retrieval"
	"github.com/yungbote/learnmate-backend/internal/http/response"
	"github.com/yungbote/learnmate-backend/internal/platform/apierr"
)

type ContentSearcher interface {
	SearchAllSources(ctx context.Context, query string, filters *retrieval.Filters, maxResults int, safeSearch bool) map[retrieval.ContentType][]retrieval.Item
}

type ContentHandler struct {
	search ContentSearcher
}

func NewContentHandler(search ContentSearcher) *ContentHandler {
	return &ContentHandler{search: search}
}

type searchReq struct {
	Query      string             `json:"query"`
	Filters    *retrieval.Filters `json:"filters"`
	MaxResults int                `json:"max_results"`
	SafeSearch *bool              `json:"safe_search"`
}

// POST /api/content/search
func (h *ContentHandler) Search(c *gin.Context) {
	var req searchReq
	if !bindJSON(c, &req) {
		return
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		response.RespondAPIError(c, apierr.InvalidRequest("query is required", nil))
		return
	}
	safe := true
	if req.SafeSearch != nil {
		safe = *req.SafeSearch
	}
	results := h.search.SearchAllSources(c.Request.Context(), query, req.Filters, req.MaxResults, safe)
	response.RespondOK(c, gin.H{"query": query, "results": results})
}
