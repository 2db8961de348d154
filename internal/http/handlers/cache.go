package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/learnmate-backend/internal/data/cachestore"
	"github.com/yungbote/learnmate-backend/internal/http/response"
	"github.com/yungbote/learnmate-backend/internal/platform/apierr"
)

type CacheAdmin interface {
	Stats(ctx context.Context) (cachestore.Stats, error)
	ClearExpired(ctx context.Context) (int, error)
}

type CacheHandler struct {
	store CacheAdmin
}

func NewCacheHandler(store CacheAdmin) *CacheHandler {
	return &CacheHandler{store: store}
}

// GET /api/cache/stats
func (h *CacheHandler) Stats(c *gin.Context) {
	st, err := h.store.Stats(c.Request.Context())
	if err != nil {
		response.RespondAPIError(c, apierr.DataProcessing("cache stats unavailable", map[string]any{"error": err.Error()}))
		return
	}
	response.RespondOK(c, gin.H{"stats": st})
}

// POST /api/cache/clear-expired
func (h *CacheHandler) ClearExpired(c *gin.Context) {
	n, err := h.store.ClearExpired(c.Request.Context())
	if err != nil {
		response.RespondAPIError(c, apierr.DataProcessing("clear expired failed", map[string]any{"error": err.Error()}))
		return
	}
	response.RespondOK(c, gin.H{"updated": n})
}
