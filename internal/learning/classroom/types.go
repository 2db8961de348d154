package classroom

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/learnmate-backend/internal/content/retrieval"
)

type Difficulty string

const (
	Beginner     Difficulty = "beginner"
	Intermediate Difficulty = "intermediate"
	Advanced     Difficulty = "advanced"
)

// ParseDifficulty maps unknown or empty values to Beginner.
func ParseDifficulty(s string) Difficulty {
	switch d := Difficulty(strings.ToLower(strings.TrimSpace(s))); d {
	case Beginner, Intermediate, Advanced:
		return d
	default:
		return Beginner
	}
}

type ContentKind string

const (
	KindText        ContentKind = "text"
	KindVideo       ContentKind = "video"
	KindImage       ContentKind = "image"
	KindQuiz        ContentKind = "quiz"
	KindExercise    ContentKind = "exercise"
	KindInteractive ContentKind = "interactive"
	KindAudio       ContentKind = "audio"
	KindCode        ContentKind = "code"
)

func parseKind(s string) ContentKind {
	switch k := ContentKind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindText, KindVideo, KindImage, KindQuiz, KindExercise, KindInteractive, KindAudio, KindCode:
		return k
	default:
		return KindText
	}
}

type LearningObjective struct {
	ID          string     `json:"id"`
	Description string     `json:"description"`
	Difficulty  Difficulty `json:"difficulty"`
}

type ContentElement struct {
	ID       string         `json:"id"`
	Kind     ContentKind    `json:"kind"`
	Title    string         `json:"title"`
	Body     string         `json:"body"`
	MediaURL string         `json:"media_url,omitempty"`
	Duration int            `json:"duration_minutes"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type QuizQuestion struct {
	ID           string     `json:"id"`
	Text         string     `json:"text"`
	Options      []string   `json:"options"`
	CorrectIndex int        `json:"correct_index"`
	Explanation  string     `json:"explanation,omitempty"`
	Difficulty   Difficulty `json:"difficulty"`
}

type Quiz struct {
	Topic      string         `json:"topic"`
	Difficulty Difficulty     `json:"difficulty"`
	Questions  []QuizQuestion `json:"questions"`
}

type Lesson struct {
	ID              string              `json:"id"`
	Title           string              `json:"title"`
	Description     string              `json:"description"`
	Topic           string              `json:"topic"`
	Difficulty      Difficulty          `json:"difficulty"`
	Objectives      []LearningObjective `json:"objectives"`
	Elements        []ContentElement    `json:"elements"`
	Quiz            []QuizQuestion      `json:"quiz,omitempty"`
	DurationMinutes int                 `json:"duration_minutes"`
	Prerequisites   []string            `json:"prerequisites,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
}

type Module struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Lessons     []Lesson   `json:"lessons"`
	Difficulty  Difficulty `json:"difficulty"`
	Order       int        `json:"order"`
}

type Curriculum struct {
	ID            string              `json:"id"`
	Title         string              `json:"title"`
	Description   string              `json:"description,omitempty"`
	Topic         string              `json:"topic"`
	Difficulty    Difficulty          `json:"difficulty"`
	Modules       []Module            `json:"modules"`
	AdaptivePaths map[string][]string `json:"adaptive_paths"`
	CreatedAt     time.Time           `json:"created_at"`
}

type PathwayStep struct {
	Order          int        `json:"order"`
	Topic          string     `json:"topic"`
	Description    string     `json:"description"`
	Difficulty     Difficulty `json:"difficulty"`
	EstimatedHours float64    `json:"estimated_hours"`
	Addresses      []string   `json:"addresses,omitempty"`
}

type Pathway struct {
	ID           string        `json:"id"`
	UserID       string        `json:"user_id,omitempty"`
	Goal         string        `json:"goal"`
	Title        string        `json:"title"`
	CurrentLevel Difficulty    `json:"current_level"`
	Steps        []PathwayStep `json:"steps"`
	CreatedAt    time.Time     `json:"created_at"`
}

type ReviewItem struct {
	Topic      string    `json:"topic"`
	Due        time.Time `json:"due"`
	Interval   int       `json:"interval_days"`
	Repetition int       `json:"repetition"`
}

// Assembly bundles a generated lesson with external resources for a topic.
type Assembly struct {
	Topic      string                                     `json:"topic"`
	Difficulty Difficulty                                 `json:"difficulty"`
	UserID     string                                     `json:"user_id,omitempty"`
	Lesson     *Lesson                                    `json:"lesson"`
	Resources  map[retrieval.ContentType][]retrieval.Item `json:"resources"`
	Removed    int                                        `json:"removed_elements"`
	CreatedAt  time.Time                                  `json:"created_at"`
}

type LessonRequest struct {
	Topic           string     `json:"topic"`
	Difficulty      Difficulty `json:"difficulty"`
	Objectives      []string   `json:"objectives,omitempty"`
	Style           string     `json:"style,omitempty"`
	DurationMinutes int        `json:"duration_minutes,omitempty"`
}

type CurriculumRequest struct {
	Topic            string     `json:"topic"`
	Difficulty       Difficulty `json:"difficulty"`
	Modules          int        `json:"modules,omitempty"`
	LessonsPerModule int        `json:"lessons_per_module,omitempty"`
}

func newID(prefix string, n int) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:n]
}
