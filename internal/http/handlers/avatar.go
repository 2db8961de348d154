package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/learnmate-backend/internal/avatar"
	"github.com/yungbote/learnmate-backend/internal/http/middleware"
	"github.com/yungbote/learnmate-backend/internal/http/response"
	"github.com/yungbote/learnmate-backend/internal/platform/apierr"
	"github.com/yungbote/learnmate-backend/internal/platform/logger"
)

type AvatarService interface {
	HandleMessage(ctx context.Context, userID, text string, opts avatar.MessageOptions) (*avatar.Reply, error)
	StreamMessage(ctx context.Context, userID, text string, opts avatar.MessageOptions, onDelta func(string) error) (*avatar.Reply, error)
	GetContext(ctx context.Context, userID string) (*avatar.Context, error)
	ResetContext(ctx context.Context, userID string) error
	SetPersona(ctx context.Context, userID string, p avatar.Persona) (*avatar.Context, error)
	GetPreferences(ctx context.Context, userID string) (map[string]any, error)
	UpdatePreferences(ctx context.Context, userID string, prefs map[string]any) (map[string]any, error)
	AddTask(ctx context.Context, userID string, in avatar.TaskInput) (*avatar.Task, error)
	CompleteTask(ctx context.Context, userID, taskID string) (*avatar.Task, error)
	ProgressSummary(ctx context.Context, userID string) (*avatar.Progress, error)
}

type AvatarHandler struct {
	log *logger.Logger
	svc AvatarService
}

func NewAvatarHandler(log *logger.Logger, svc AvatarService) *AvatarHandler {
	return &AvatarHandler{log: logger.OrNop(log).With("handler", "AvatarHandler"), svc: svc}
}

type messageReq struct {
	UserID    string `json:"user_id"`
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
	Persona   string `json:"persona"`
	MediaURL  string `json:"media_url"`
	MediaType string `json:"media_type"`
}

func (r messageReq) options() avatar.MessageOptions {
	opts := avatar.MessageOptions{SessionID: r.SessionID, MediaURL: r.MediaURL, MediaType: r.MediaType}
	if p := strings.TrimSpace(r.Persona); p != "" {
		persona := avatar.Persona(strings.ToLower(p))
		opts.Persona = &persona
	}
	return opts
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		response.RespondError(c, http.StatusBadRequest, apierr.CodeInvalidRequest, err)
		return false
	}
	return true
}

// POST /api/avatar/message
func (h *AvatarHandler) Message(c *gin.Context) {
	var req messageReq
	if !bindJSON(c, &req) {
		return
	}
	middleware.BindLearner(c, req.UserID, req.SessionID)
	reply, err := h.svc.HandleMessage(c.Request.Context(), req.UserID, req.Message, req.options())
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"reply": reply})
}

// POST /api/avatar/message/stream
//
// Streams "delta" events while the reply is generated and a final "done"
// event carrying the full reply. Failures after the first delta are sent as
// an "error" event.
func (h *AvatarHandler) StreamMessage(c *gin.Context) {
	var req messageReq
	if !bindJSON(c, &req) {
		return
	}
	middleware.BindLearner(c, req.UserID, req.SessionID)

	w := c.Writer
	flusher, ok := w.(http.Flusher)
	if !ok {
		response.RespondError(c, http.StatusInternalServerError, "streaming_unsupported", errors.New("streaming unsupported"))
		return
	}
	started := false
	start := func() {
		if started {
			return
		}
		started = true
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
	}
	send := func(event string, payload any) error {
		start()
		if err := writeEvent(w, event, payload); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	ctx := c.Request.Context()
	reply, err := h.svc.StreamMessage(ctx, req.UserID, req.Message, req.options(), func(delta string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return send("delta", gin.H{"delta": delta})
	})
	if err != nil {
		var aborted *avatar.StreamAbortedError
		if errors.As(err, &aborted) {
			h.log.Info("Avatar stream closed by client", "user_id", req.UserID, "error", err)
			return
		}
		if !started {
			response.RespondAPIError(c, err)
			return
		}
		ae, ok := apierr.As(err)
		if !ok {
			ae = apierr.New(http.StatusInternalServerError, "internal_error", err)
		}
		_ = send("error", response.ErrorEnvelope{Error: response.APIError{Message: ae.Error(), Code: ae.Code, Details: ae.Details}})
		return
	}
	_ = send("done", gin.H{"reply": reply})
}

func writeEvent(w http.ResponseWriter, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

// GET /api/avatar/:user_id/context
func (h *AvatarHandler) GetContext(c *gin.Context) {
	ac, err := h.svc.GetContext(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"context": ac})
}

// DELETE /api/avatar/:user_id/context
func (h *AvatarHandler) ResetContext(c *gin.Context) {
	if err := h.svc.ResetContext(c.Request.Context(), c.Param("user_id")); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type personaReq struct {
	Persona string `json:"persona"`
}

// PUT /api/avatar/:user_id/persona
func (h *AvatarHandler) SetPersona(c *gin.Context) {
	var req personaReq
	if !bindJSON(c, &req) {
		return
	}
	ac, err := h.svc.SetPersona(c.Request.Context(), c.Param("user_id"), avatar.Persona(strings.ToLower(strings.TrimSpace(req.Persona))))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"persona": ac.Persona})
}

// GET /api/avatar/:user_id/preferences
func (h *AvatarHandler) GetPreferences(c *gin.Context) {
	prefs, err := h.svc.GetPreferences(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"preferences": prefs})
}

// PUT /api/avatar/:user_id/preferences
func (h *AvatarHandler) UpdatePreferences(c *gin.Context) {
	var req map[string]any
	if !bindJSON(c, &req) {
		return
	}
	prefs, err := h.svc.UpdatePreferences(c.Request.Context(), c.Param("user_id"), req)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"preferences": prefs})
}

type taskReq struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	DueDate     *time.Time `json:"due_date"`
}

// POST /api/avatar/:user_id/tasks
func (h *AvatarHandler) AddTask(c *gin.Context) {
	var req taskReq
	if !bindJSON(c, &req) {
		return
	}
	task, err := h.svc.AddTask(c.Request.Context(), c.Param("user_id"), avatar.TaskInput{
		Title:       req.Title,
		Description: req.Description,
		DueDate:     req.DueDate,
	})
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"task": task})
}

// POST /api/avatar/:user_id/tasks/:task_id/complete
func (h *AvatarHandler) CompleteTask(c *gin.Context) {
	task, err := h.svc.CompleteTask(c.Request.Context(), c.Param("user_id"), c.Param("task_id"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"task": task})
}

// GET /api/avatar/:user_id/progress
func (h *AvatarHandler) Progress(c *gin.Context) {
	p, err := h.svc.ProgressSummary(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"progress": p})
}
