package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/learnmate-backend/internal/http/response"
	"github.com/yungbote/learnmate-backend/internal/platform/apierr"
)

type ExperimentService interface {
	GetVariant(experimentID, userID string) string
	TrackOutcome(experimentID, variant string, outcome float64, meta map[string]any)
}

type ExperimentHandler struct {
	exp ExperimentService
}

func NewExperimentHandler(exp ExperimentService) *ExperimentHandler {
	return &ExperimentHandler{exp: exp}
}

// GET /api/experiments/:id/variant?user_id=
func (h *ExperimentHandler) Variant(c *gin.Context) {
	userID := strings.TrimSpace(c.Query("user_id"))
	if userID == "" {
		response.RespondAPIError(c, apierr.InvalidRequest("user_id is required", nil))
		return
	}
	id := c.Param("id")
	response.RespondOK(c, gin.H{
		"experiment": id,
		"user_id":    userID,
		"variant":    h.exp.GetVariant(id, userID),
	})
}

type outcomeReq struct {
	Variant  string         `json:"variant"`
	Outcome  *float64       `json:"outcome"`
	Metadata map[string]any `json:"metadata"`
}

// POST /api/experiments/:id/outcome
func (h *ExperimentHandler) Outcome(c *gin.Context) {
	var req outcomeReq
	if !bindJSON(c, &req) {
		return
	}
	if strings.TrimSpace(req.Variant) == "" || req.Outcome == nil {
		response.RespondAPIError(c, apierr.InvalidRequest("variant and outcome are required", nil))
		return
	}
	h.exp.TrackOutcome(c.Param("id"), req.Variant, *req.Outcome, req.Metadata)
	response.RespondOK(c, gin.H{"recorded": true})
}
