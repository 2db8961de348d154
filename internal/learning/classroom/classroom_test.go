package classroom

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/yungbote/learnmate-backend/internal/ai/cache"
	"github.com/yungbote/learnmate-backend/internal/ai/config"
	"github.com/yungbote/learnmate-backend/internal/ai/llm/llmtest"
	"github.com/yungbote/learnmate-backend/internal/ai/moderation"
	"github.com/yungbote/learnmate-backend/internal/content/retrieval"
	"github.com/yungbote/learnmate-backend/internal/platform/apierr"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func question(text string, correct int) map[string]any {
	return map[string]any{
		"text":          text,
		"options":       []any{"A", "B", "C", "D"},
		"correct_index": float64(correct),
		"explanation":   "because",
	}
}

// scripted answers each prompt by schema name.
func scripted(overrides map[string]map[string]any) *llmtest.Fake {
	base := map[string]map[string]any{
		"quiz_questions": {"questions": []any{question("Q1", 0), question("Q2", 1), question("Q3", 2)}},
		"lesson_outline": {
			"title":         "Photosynthesis basics",
			"description":   "How plants turn light into sugar",
			"objectives":    []any{"Describe the light reactions"},
			"prerequisites": []any{},
			"sections": []any{
				map[string]any{"title": "Light reactions", "element_kinds": []any{"text"}},
				map[string]any{"title": "Calvin cycle", "element_kinds": []any{"text", "exercise"}},
			},
		},
		"lesson_elements": {"elements": []any{
			map[string]any{"kind": "text", "title": "Overview", "body": "Chlorophyll absorbs light.", "duration_minutes": float64(4)},
		}},
		"curriculum_outline": {
			"title":       "Plant biology",
			"description": "From cells to ecosystems",
			"modules": []any{
				map[string]any{"title": "Foundations", "description": "", "difficulty": "beginner", "topics": []any{"cells", "chlorophyll", "extra topic"}},
				map[string]any{"title": "Research", "description": "", "difficulty": "advanced", "topics": []any{"isotopes"}},
			},
		},
		"learning_pathway": {
			"title": "Biology path",
			"steps": []any{
				map[string]any{"topic": "Ecology", "description": "", "difficulty": "intermediate", "estimated_hours": float64(3), "addresses": []any{}},
				map[string]any{"topic": "Cell chemistry", "description": "", "difficulty": "beginner", "estimated_hours": float64(2), "addresses": []any{"chemistry"}},
			},
		},
	}
	for k, v := range overrides {
		base[k] = v
	}
	return &llmtest.Fake{JSONFn: func(_ context.Context, _, _, schema string) (map[string]any, error) {
		out, ok := base[schema]
		if !ok {
			return nil, errors.New("unexpected schema " + schema)
		}
		return out, nil
	}}
}

func newTestService(fake *llmtest.Fake, opts ...Option) *Service {
	cfg := config.Default()
	cfg.CacheEnabled = false
	return NewService(cfg, nil, fake, opts...)
}

func TestGenerateQuizDropsInvalidQuestions(t *testing.T) {
	fake := scripted(map[string]map[string]any{
		"quiz_questions": {"questions": []any{question("ok", 3), question("bad index", 4), map[string]any{"text": "", "options": []any{"x", "y"}, "correct_index": float64(0)}}},
	})
	q, err := newTestService(fake).GenerateQuiz(context.Background(), "photosynthesis", "unknown", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(q.Questions) != 1 || q.Questions[0].Text != "ok" || q.Difficulty != Beginner {
		t.Fatalf("unexpected quiz %+v", q)
	}
	if !strings.HasPrefix(q.Questions[0].ID, "question_") || len(q.Questions[0].ID) != len("question_")+8 {
		t.Fatalf("unexpected id %q", q.Questions[0].ID)
	}
}

func TestGenerateQuizNoValidQuestionsRetriesThenFails(t *testing.T) {
	fake := scripted(map[string]map[string]any{
		"quiz_questions": {"questions": []any{question("bad", 9)}},
	})
	_, err := newTestService(fake).GenerateQuiz(context.Background(), "photosynthesis", Beginner, 3)
	if !errors.Is(err, apierr.ErrDataProcessing) {
		t.Fatalf("expected data processing error, got %v", err)
	}
	if fake.SchemaCalls("quiz_questions") != maxAttempts {
		t.Fatalf("expected %d attempts, got %d", maxAttempts, fake.SchemaCalls("quiz_questions"))
	}
}

func TestGenerateQuizTruncatesToN(t *testing.T) {
	q, err := newTestService(scripted(nil)).GenerateQuiz(context.Background(), "photosynthesis", Advanced, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(q.Questions) != 2 || q.Questions[1].Difficulty != Advanced {
		t.Fatalf("unexpected quiz %+v", q)
	}
}

func TestGenerateQuizModelFailure(t *testing.T) {
	fake := &llmtest.Fake{Err: errors.New("503")}
	_, err := newTestService(fake).GenerateQuiz(context.Background(), "x", Beginner, 1)
	if !errors.Is(err, apierr.ErrModelExecution) {
		t.Fatalf("expected model execution error, got %v", err)
	}
}

func TestGenerateQuizCached(t *testing.T) {
	fake := scripted(nil)
	svc := NewService(config.Default(), nil, fake, WithCache(cache.New(config.Default(), nil)))
	for i := 0; i < 2; i++ {
		if _, err := svc.GenerateQuiz(context.Background(), "photosynthesis", Beginner, 3); err != nil {
			t.Fatal(err)
		}
	}
	if fake.SchemaCalls("quiz_questions") != 1 {
		t.Fatalf("second call should hit the cache, got %d calls", fake.SchemaCalls("quiz_questions"))
	}
}

func TestGenerateLesson(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(scripted(nil), WithClock(func() time.Time { return now }))
	l, err := svc.GenerateLesson(context.Background(), LessonRequest{
		Topic:      "photosynthesis",
		Difficulty: Intermediate,
		Objectives: []string{"Explain why leaves are green"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(l.ID, "lesson_") || len(l.ID) != len("lesson_")+12 {
		t.Fatalf("unexpected id %q", l.ID)
	}
	if len(l.Elements) != 2 || l.Elements[0].Metadata["section"] != "Light reactions" || l.Elements[1].Metadata["section"] != "Calvin cycle" {
		t.Fatalf("elements should follow section order: %+v", l.Elements)
	}
	if len(l.Quiz) != lessonQuizQuestions {
		t.Fatalf("expected %d quiz questions, got %d", lessonQuizQuestions, len(l.Quiz))
	}
	if len(l.Objectives) != 2 || l.Objectives[0].Description != "Explain why leaves are green" {
		t.Fatalf("requested objectives come first: %+v", l.Objectives)
	}
	if l.DurationMinutes != defaultLessonMinutes || !l.CreatedAt.Equal(now) || l.Difficulty != Intermediate {
		t.Fatalf("unexpected lesson %+v", l)
	}
}

func TestGenerateLessonSurvivesQuizFailure(t *testing.T) {
	fake := scripted(map[string]map[string]any{"quiz_questions": {"questions": []any{}}})
	l, err := newTestService(fake).GenerateLesson(context.Background(), LessonRequest{Topic: "photosynthesis"})
	if err != nil {
		t.Fatal(err)
	}
	if len(l.Quiz) != 0 || len(l.Elements) == 0 {
		t.Fatalf("unexpected lesson %+v", l)
	}
}

func TestGenerateCurriculum(t *testing.T) {
	c, err := newTestService(scripted(nil)).GenerateCurriculum(context.Background(), CurriculumRequest{Topic: "plants", LessonsPerModule: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(c.Modules) != 2 || c.Modules[0].Order != 1 || c.Modules[1].Order != 2 {
		t.Fatalf("unexpected modules %+v", c.Modules)
	}
	if len(c.Modules[0].Lessons) != 2 || c.Modules[0].Lessons[0].Topic != "cells" {
		t.Fatalf("lessons should be truncated and ordered: %+v", c.Modules[0].Lessons)
	}
	if len(c.AdaptivePaths["remedial"]) != 2 || len(c.AdaptivePaths["accelerated"]) != 1 {
		t.Fatalf("unexpected adaptive paths %+v", c.AdaptivePaths)
	}
	if c.AdaptivePaths["accelerated"][0] != c.Modules[1].Lessons[0].ID {
		t.Fatalf("accelerated path should list advanced lessons")
	}
}

func TestGenerateLearningPathwayPutsWeaknessesFirst(t *testing.T) {
	p, err := newTestService(scripted(nil)).GenerateLearningPathway(context.Background(), "u1", "become a biologist", Beginner, []string{"chemistry", "statistics"})
	if err != nil {
		t.Fatal(err)
	}
	var topics []string
	for i, st := range p.Steps {
		if st.Order != i+1 {
			t.Fatalf("orders must be sequential: %+v", p.Steps)
		}
		topics = append(topics, st.Topic)
	}
	want := []string{"statistics", "Cell chemistry", "Ecology"}
	if !reflect.DeepEqual(topics, want) {
		t.Fatalf("got %v want %v", topics, want)
	}
}

func TestGenerateLearningPathwayFallsBack(t *testing.T) {
	fake := &llmtest.Fake{Err: errors.New("down")}
	p, err := newTestService(fake).GenerateLearningPathway(context.Background(), "u1", "learn go", Intermediate, []string{"pointers"})
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Steps) != 2 || p.Steps[0].Topic != "pointers" || p.Steps[1].Topic != "learn go" {
		t.Fatalf("unexpected fallback steps %+v", p.Steps)
	}
}

type fakeSearch struct{}

func (fakeSearch) SearchAllSources(context.Context, string, *retrieval.Filters, int, bool) map[retrieval.ContentType][]retrieval.Item {
	return map[retrieval.ContentType][]retrieval.Item{
		retrieval.Video: {
			{ID: "v1", Title: "Photosynthesis", Relevance: retrieval.High},
			{ID: "v2", Title: "Cooking", Relevance: retrieval.Unrelated},
		},
	}
}

func TestAssembleContentForTopic(t *testing.T) {
	fake := scripted(map[string]map[string]any{
		"lesson_elements": {"elements": []any{
			map[string]any{"kind": "text", "title": "Fine", "body": "Chlorophyll absorbs light.", "duration_minutes": float64(3)},
			map[string]any{"kind": "text", "title": "Bad", "body": "A violent rant.", "duration_minutes": float64(3)},
		}},
	})
	mod := moderation.New(config.Default(), nil, nil, nil, nil)
	svc := newTestService(fake, WithSearch(fakeSearch{}), WithModerator(mod))

	a, err := svc.AssembleContentForTopic(context.Background(), "photosynthesis", Beginner, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if a.Removed != 2 || len(a.Lesson.Elements) != 2 {
		t.Fatalf("one unsafe element per section should be removed: removed=%d elements=%d", a.Removed, len(a.Lesson.Elements))
	}
	for _, el := range a.Lesson.Elements {
		if el.Title == "Bad" {
			t.Fatalf("unsafe element kept")
		}
	}
	if len(a.Resources) != len(retrieval.AllTypes) || len(a.Resources[retrieval.Video]) != 1 || a.Resources[retrieval.Book] == nil {
		t.Fatalf("unexpected resources %+v", a.Resources)
	}
}

func TestReviewIntervals(t *testing.T) {
	cases := map[string][]int{
		"medium": {1, 6, 12, 24, 48},
		"fast":   {1, 7, 15, 30, 60},
		"slow":   {1, 4, 9, 18, 36},
		"Fast ":  {1, 7, 15, 30, 60},
	}
	for pace, want := range cases {
		if got := ReviewIntervals(pace); !reflect.DeepEqual(got, want) {
			t.Errorf("%s: got %v want %v", pace, got, want)
		}
	}
}

func TestScheduleSpacedRepetition(t *testing.T) {
	from := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	items := ScheduleSpacedRepetition([]string{"cells", "atoms", "cells"}, "", from)
	if len(items) != 10 {
		t.Fatalf("expected 10 reviews, got %d", len(items))
	}
	if items[0].Topic != "cells" || items[1].Topic != "atoms" || !items[0].Due.Equal(from.AddDate(0, 0, 1)) {
		t.Fatalf("unexpected first reviews %+v", items[:2])
	}
	last := items[len(items)-1]
	if !last.Due.Equal(from.AddDate(0, 0, 91)) || last.Repetition != 5 || last.Interval != 48 {
		t.Fatalf("unexpected last review %+v", last)
	}
	for i := 1; i < len(items); i++ {
		if items[i].Due.Before(items[i-1].Due) {
			t.Fatalf("not sorted by due")
		}
	}
}
