package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/learnmate-backend/internal/http/response"
	"github.com/yungbote/learnmate-backend/internal/learning/classroom"
	"github.com/yungbote/learnmate-backend/internal/platform/apierr"
)

type ClassroomService interface {
	GenerateQuiz(ctx context.Context, topic string, difficulty classroom.Difficulty, n int) (*classroom.Quiz, error)
	GenerateLesson(ctx context.Context, req classroom.LessonRequest) (*classroom.Lesson, error)
	GenerateCurriculum(ctx context.Context, req classroom.CurriculumRequest) (*classroom.Curriculum, error)
	AssembleContentForTopic(ctx context.Context, topic string, difficulty classroom.Difficulty, userID string) (*classroom.Assembly, error)
	GenerateLearningPathway(ctx context.Context, userID, goal string, currentLevel classroom.Difficulty, weaknesses []string) (*classroom.Pathway, error)
}

type ClassroomHandler struct {
	svc ClassroomService
}

func NewClassroomHandler(svc ClassroomService) *ClassroomHandler {
	return &ClassroomHandler{svc: svc}
}

type quizReq struct {
	Topic        string               `json:"topic"`
	Difficulty   classroom.Difficulty `json:"difficulty"`
	NumQuestions int                  `json:"num_questions"`
}

// POST /api/classroom/quiz
func (h *ClassroomHandler) Quiz(c *gin.Context) {
	var req quizReq
	if !bindJSON(c, &req) {
		return
	}
	quiz, err := h.svc.GenerateQuiz(c.Request.Context(), req.Topic, req.Difficulty, req.NumQuestions)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"quiz": quiz})
}

// POST /api/classroom/lesson
func (h *ClassroomHandler) Lesson(c *gin.Context) {
	var req classroom.LessonRequest
	if !bindJSON(c, &req) {
		return
	}
	lesson, err := h.svc.GenerateLesson(c.Request.Context(), req)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"lesson": lesson})
}

// POST /api/classroom/curriculum
func (h *ClassroomHandler) Curriculum(c *gin.Context) {
	var req classroom.CurriculumRequest
	if !bindJSON(c, &req) {
		return
	}
	cur, err := h.svc.GenerateCurriculum(c.Request.Context(), req)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"curriculum": cur})
}

type pathwayReq struct {
	UserID       string               `json:"user_id"`
	Goal         string               `json:"goal"`
	CurrentLevel classroom.Difficulty `json:"current_level"`
	Weaknesses   []string             `json:"weaknesses"`
}

// POST /api/classroom/pathway
func (h *ClassroomHandler) Pathway(c *gin.Context) {
	var req pathwayReq
	if !bindJSON(c, &req) {
		return
	}
	p, err := h.svc.GenerateLearningPathway(c.Request.Context(), req.UserID, req.Goal, req.CurrentLevel, req.Weaknesses)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"pathway": p})
}

type assembleReq struct {
	Topic      string               `json:"topic"`
	Difficulty classroom.Difficulty `json:"difficulty"`
	UserID     string               `json:"user_id"`
}

// POST /api/classroom/assemble
func (h *ClassroomHandler) Assemble(c *gin.Context) {
	var req assembleReq
	if !bindJSON(c, &req) {
		return
	}
	a, err := h.svc.AssembleContentForTopic(c.Request.Context(), req.Topic, req.Difficulty, req.UserID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"assembly": a})
}

type reviewReq struct {
	Topics []string   `json:"topics"`
	Pace   string     `json:"pace"`
	From   *time.Time `json:"from"`
}

// POST /api/classroom/spaced-repetition
func (h *ClassroomHandler) SpacedRepetition(c *gin.Context) {
	var req reviewReq
	if !bindJSON(c, &req) {
		return
	}
	if len(req.Topics) == 0 {
		response.RespondAPIError(c, apierr.InvalidRequest("topics are required", nil))
		return
	}
	from := time.Now().UTC()
	if req.From != nil {
		from = *req.From
	}
	response.RespondOK(c, gin.H{"schedule": classroom.ScheduleSpacedRepetition(req.Topics, req.Pace, from)})
}
