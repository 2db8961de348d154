package handlers

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/learnmate-backend/internal/ai/moderation"
	"github.com/yungbote/learnmate-backend/internal/http/response"
	"github.com/yungbote/learnmate-backend/internal/platform/apierr"
)

type Moderator interface {
	CheckText(ctx context.Context, text string, contentCtx map[string]any) (moderation.Result, error)
	CheckImage(ctx context.Context, imageURL string, contentCtx map[string]any) (moderation.Result, error)
	CheckUserContent(ctx context.Context, content any, contentType string) (moderation.Result, error)
}

type ModerationHandler struct {
	mod Moderator
}

func NewModerationHandler(mod Moderator) *ModerationHandler {
	return &ModerationHandler{mod: mod}
}

type textReq struct {
	Text    string         `json:"text"`
	Context map[string]any `json:"context"`
}

// POST /api/moderation/text
func (h *ModerationHandler) Text(c *gin.Context) {
	var req textReq
	if !bindJSON(c, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		response.RespondAPIError(c, apierr.InvalidRequest("text is required", nil))
		return
	}
	r, err := h.mod.CheckText(c.Request.Context(), req.Text, req.Context)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, r)
}

type imageReq struct {
	ImageURL string         `json:"image_url"`
	Context  map[string]any `json:"context"`
}

// POST /api/moderation/image
func (h *ModerationHandler) Image(c *gin.Context) {
	var req imageReq
	if !bindJSON(c, &req) {
		return
	}
	if strings.TrimSpace(req.ImageURL) == "" {
		response.RespondAPIError(c, apierr.InvalidRequest("image_url is required", nil))
		return
	}
	r, err := h.mod.CheckImage(c.Request.Context(), req.ImageURL, req.Context)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, r)
}

type userContentReq struct {
	Content     any    `json:"content"`
	ContentType string `json:"content_type"`
}

// POST /api/moderation/user-content
func (h *ModerationHandler) UserContent(c *gin.Context) {
	var req userContentReq
	if !bindJSON(c, &req) {
		return
	}
	if req.Content == nil {
		response.RespondAPIError(c, apierr.InvalidRequest("content is required", nil))
		return
	}
	if req.ContentType == "" {
		req.ContentType = "user_content"
	}
	r, err := h.mod.CheckUserContent(c.Request.Context(), req.Content, req.ContentType)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, r)
}
