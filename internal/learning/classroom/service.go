// Package classroom generates lessons, quizzes, curricula and learning
// pathways with an LLM, and schedules spaced-repetition reviews.
package classroom

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/learnmate-backend/internal/ai/cache"
	"github.com/yungbote/learnmate-backend/internal/ai/config"
	"github.com/yungbote/learnmate-backend/internal/ai/degrade"
	"github.com/yungbote/learnmate-backend/internal/ai/llm"
	"github.com/yungbote/learnmate-backend/internal/ai/moderation"
	"github.com/yungbote/learnmate-backend/internal/ai/tiered"
	"github.com/yungbote/learnmate-backend/internal/content/retrieval"
	"github.com/yungbote/learnmate-backend/internal/learning/prompts"
	"github.com/yungbote/learnmate-backend/internal/platform/apierr"
	"github.com/yungbote/learnmate-backend/internal/platform/logger"
	"github.com/yungbote/learnmate-backend/internal/platform/promptstyle"
)

const (
	defaultQuestions        = 5
	maxQuestions            = 20
	lessonQuizQuestions     = 3
	defaultLessonMinutes    = 30
	defaultModules          = 3
	maxModules              = 8
	defaultLessonsPerModule = 2
	maxLessonsPerModule     = 5
	assemblyItemsPerType    = 3
	maxAttempts             = 2
)

// Searcher finds external resources for a topic.
type Searcher interface {
	SearchAllSources(ctx context.Context, query string, filters *retrieval.Filters, maxResults int, safeSearch bool) map[retrieval.ContentType][]retrieval.Item
}

type TextChecker interface {
	CheckText(ctx context.Context, text string, contentCtx map[string]any) (moderation.Result, error)
}

type Service struct {
	cfg       config.Config
	log       *logger.Logger
	llm       llm.Client
	model     string
	cache     *cache.ResultCache
	tiers     *tiered.Selector
	search    Searcher
	moderator TextChecker
	workers   int
	now       func() time.Time
}

type Option func(*Service)

func WithModel(model string) Option { return func(s *Service) { s.model = model } }

func WithCache(c *cache.ResultCache) Option { return func(s *Service) { s.cache = c } }

func WithTiers(t *tiered.Selector) Option {
	return func(s *Service) {
		if t != nil {
			s.tiers = t
		}
	}
}

func WithSearch(search Searcher) Option { return func(s *Service) { s.search = search } }

func WithModerator(m TextChecker) Option { return func(s *Service) { s.moderator = m } }

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(cfg config.Config, log *logger.Logger, client llm.Client, opts ...Option) *Service {
	log = logger.OrNop(log).With("service", "ClassroomService")
	s := &Service{
		cfg:     cfg,
		log:     log,
		llm:     client,
		model:   cfg.Model("classroom", "text"),
		workers: cfg.Computation.MaxWorkers,
		now:     time.Now,
	}
	if s.workers <= 0 {
		s.workers = 4
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tiers == nil {
		s.tiers = tiered.New(cfg, log, nil)
	}
	return s
}

// generate renders a prompt and asks the model for JSON, re-prompting with the
// validation errors when check rejects the output. Results are cached by
// prompt fingerprint.
func (s *Service) generate(ctx context.Context, name prompts.PromptName, in prompts.Input, check func(map[string]any) []string) (map[string]any, error) {
	if s.llm == nil {
		return nil, apierr.ModelExecution(s.model, "not_configured", nil)
	}
	p, err := prompts.Build(name, in)
	if err != nil {
		return nil, apierr.DataProcessing(err.Error(), map[string]any{"prompt": string(name)})
	}
	return cache.Do(ctx, s.cache, "content_analysis", "classroom_"+p.Name, []any{p.Fingerprint()}, func(ctx context.Context) (map[string]any, error) {
		var lastErrs []string
		for attempt := 1; attempt <= maxAttempts; attempt++ {
			user := p.User
			if len(lastErrs) > 0 {
				user += "\n\nVALIDATION_ERRORS_TO_FIX:\n- " + strings.Join(lastErrs, "\n- ")
			}
			obj, err := s.llm.GenerateJSON(ctx, promptstyle.ApplySystem(p.System, promptstyle.ModeJSON), user, p.SchemaName, p.Schema, llm.Params{Model: s.model})
			if err != nil {
				if _, ok := apierr.As(err); ok {
					return nil, err
				}
				return nil, apierr.ModelExecution(s.model, p.Name, err)
			}
			if check == nil {
				return obj, nil
			}
			if lastErrs = check(obj); len(lastErrs) == 0 {
				return obj, nil
			}
			s.log.Warn("Generated content failed validation", "prompt", p.Name, "attempt", attempt, "errors", lastErrs)
		}
		return nil, apierr.DataProcessing(p.Name+" failed validation: "+strings.Join(lastErrs, "; "), map[string]any{"prompt": p.Name})
	})
}

// tieredGenerate picks the simple or rich rendering of a prompt.
func (s *Service) tieredGenerate(ctx context.Context, op string, name prompts.PromptName, in prompts.Input, check func(map[string]any) []string) (map[string]any, error) {
	run := func(t tiered.Tier) func(context.Context) (map[string]any, error) {
		return func(ctx context.Context) (map[string]any, error) {
			in := in
			in.Tier = t.String()
			return s.generate(ctx, name, in, check)
		}
	}
	return tiered.Run(ctx, s.tiers, op, nil, run(tiered.Simple), run(tiered.Complex))
}

// GenerateQuiz produces up to n (default 5, at most 20) multiple-choice
// questions. Questions with an out-of-range answer are dropped.
func (s *Service) GenerateQuiz(ctx context.Context, topic string, difficulty Difficulty, n int) (*Quiz, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, apierr.DataProcessing("topic is required", nil)
	}
	if n <= 0 {
		n = defaultQuestions
	}
	if n > maxQuestions {
		n = maxQuestions
	}
	difficulty = ParseDifficulty(string(difficulty))

	obj, err := s.tieredGenerate(ctx, "quiz_generation", prompts.PromptQuizQuestions, prompts.Input{
		Topic:        topic,
		Difficulty:   string(difficulty),
		NumQuestions: n,
	}, checkQuiz)
	if err != nil {
		return nil, err
	}
	qs := parseQuestions(obj["questions"], difficulty, n)
	if len(qs) == 0 {
		return nil, apierr.DataProcessing("quiz generation produced no valid questions", map[string]any{"topic": topic})
	}
	s.log.Info("Quiz generated", "topic", topic, "difficulty", difficulty, "questions", len(qs))
	return &Quiz{Topic: topic, Difficulty: difficulty, Questions: qs}, nil
}

func (s *Service) GenerateLesson(ctx context.Context, req LessonRequest) (*Lesson, error) {
	req.Topic = strings.TrimSpace(req.Topic)
	if req.Topic == "" {
		return nil, apierr.DataProcessing("topic is required", nil)
	}
	req.Difficulty = ParseDifficulty(string(req.Difficulty))
	if req.DurationMinutes <= 0 {
		req.DurationMinutes = defaultLessonMinutes
	}

	outline, err := s.tieredGenerate(ctx, "lesson_outline", prompts.PromptLessonOutline, prompts.Input{
		Topic:           req.Topic,
		Difficulty:      string(req.Difficulty),
		Style:           req.Style,
		DurationMinutes: req.DurationMinutes,
		ObjectivesCSV:   strings.Join(req.Objectives, ", "),
	}, checkOutline)
	if err != nil {
		return nil, err
	}
	sections := parseSections(outline["sections"])

	perSection := make([][]ContentElement, len(sections))
	var quiz *Quiz
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, sec := range sections {
		g.Go(func() error {
			perSection[i] = degrade.Fallback(gctx, s.log, "lesson_elements", []ContentElement(nil), func(ctx context.Context) ([]ContentElement, error) {
				return s.sectionElements(ctx, req, sec)
			})
			return nil
		})
	}
	g.Go(func() error {
		quiz = degrade.Fallback(gctx, s.log, "lesson_quiz", (*Quiz)(nil), func(ctx context.Context) (*Quiz, error) {
			return s.GenerateQuiz(ctx, req.Topic, req.Difficulty, lessonQuizQuestions)
		})
		return nil
	})
	_ = g.Wait()

	var elements []ContentElement
	for _, els := range perSection {
		elements = append(elements, els...)
	}
	if len(elements) == 0 {
		return nil, apierr.DataProcessing("lesson generation produced no content", map[string]any{"topic": req.Topic})
	}

	lesson := &Lesson{
		ID:              newID("lesson", 12),
		Title:           strOr(outline["title"], req.Topic),
		Description:     strOr(outline["description"], "A lesson about "+req.Topic),
		Topic:           req.Topic,
		Difficulty:      req.Difficulty,
		Objectives:      objectives(req.Objectives, stringsFrom(outline["objectives"]), req.Difficulty),
		Elements:        elements,
		DurationMinutes: req.DurationMinutes,
		Prerequisites:   stringsFrom(outline["prerequisites"]),
		CreatedAt:       s.now().UTC(),
	}
	if quiz != nil {
		lesson.Quiz = quiz.Questions
	}
	s.log.Info("Lesson generated", "lesson_id", lesson.ID, "topic", req.Topic, "elements", len(elements), "quiz", len(lesson.Quiz))
	return lesson, nil
}

type section struct {
	title string
	kinds []string
}

func (s *Service) sectionElements(ctx context.Context, req LessonRequest, sec section) ([]ContentElement, error) {
	obj, err := s.tieredGenerate(ctx, "lesson_elements", prompts.PromptLessonElements, prompts.Input{
		Topic:           req.Topic,
		Difficulty:      string(req.Difficulty),
		Style:           req.Style,
		SectionTitle:    sec.title,
		ElementKindsCSV: strings.Join(sec.kinds, ", "),
		MaxElements:     len(sec.kinds) + 1,
	}, checkElements)
	if err != nil {
		return nil, err
	}
	list, _ := obj["elements"].([]any)
	out := make([]ContentElement, 0, len(list))
	for _, raw := range list {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		body := strOr(m["body"], "")
		if body == "" {
			continue
		}
		out = append(out, ContentElement{
			ID:       newID("element", 8),
			Kind:     parseKind(strOr(m["kind"], "")),
			Title:    strOr(m["title"], sec.title),
			Body:     body,
			Duration: intFrom(m["duration_minutes"], 5),
			Metadata: map[string]any{"section": sec.title},
		})
	}
	return out, nil
}

func (s *Service) GenerateCurriculum(ctx context.Context, req CurriculumRequest) (*Curriculum, error) {
	req.Topic = strings.TrimSpace(req.Topic)
	if req.Topic == "" {
		return nil, apierr.DataProcessing("topic is required", nil)
	}
	req.Difficulty = ParseDifficulty(string(req.Difficulty))
	req.Modules = clamp(req.Modules, defaultModules, maxModules)
	req.LessonsPerModule = clamp(req.LessonsPerModule, defaultLessonsPerModule, maxLessonsPerModule)

	outline, err := s.tieredGenerate(ctx, "curriculum_outline", prompts.PromptCurriculumOutline, prompts.Input{
		Topic:            req.Topic,
		Difficulty:       string(req.Difficulty),
		NumModules:       req.Modules,
		LessonsPerModule: req.LessonsPerModule,
	}, checkCurriculum)
	if err != nil {
		return nil, err
	}

	rawMods, _ := outline["modules"].([]any)
	var modules []Module
	var topics [][]string
	for _, raw := range rawMods {
		if len(modules) >= req.Modules {
			break
		}
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		title := strOr(m["title"], "")
		if title == "" {
			continue
		}
		ts := stringsFrom(m["topics"])
		if len(ts) == 0 {
			ts = []string{title}
		}
		if len(ts) > req.LessonsPerModule {
			ts = ts[:req.LessonsPerModule]
		}
		diff := req.Difficulty
		if d := strOr(m["difficulty"], ""); d != "" {
			diff = ParseDifficulty(d)
		}
		modules = append(modules, Module{
			ID:          newID("module", 8),
			Title:       title,
			Description: strOr(m["description"], ""),
			Difficulty:  diff,
			Order:       len(modules) + 1,
		})
		topics = append(topics, ts)
	}

	lessons := make([][]*Lesson, len(modules))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i := range modules {
		lessons[i] = make([]*Lesson, len(topics[i]))
		for j, topic := range topics[i] {
			diff := modules[i].Difficulty
			g.Go(func() error {
				lessons[i][j] = degrade.Fallback(gctx, s.log, "curriculum_lesson", (*Lesson)(nil), func(ctx context.Context) (*Lesson, error) {
					return s.GenerateLesson(ctx, LessonRequest{Topic: topic, Difficulty: diff, DurationMinutes: defaultLessonMinutes})
				})
				return nil
			})
		}
	}
	_ = g.Wait()

	total := 0
	paths := map[string][]string{"remedial": {}, "accelerated": {}}
	for i := range modules {
		for _, l := range lessons[i] {
			if l == nil {
				continue
			}
			modules[i].Lessons = append(modules[i].Lessons, *l)
			total++
			switch modules[i].Difficulty {
			case Beginner:
				paths["remedial"] = append(paths["remedial"], l.ID)
			case Advanced:
				paths["accelerated"] = append(paths["accelerated"], l.ID)
			}
		}
	}
	if total == 0 {
		return nil, apierr.DataProcessing("curriculum generation produced no lessons", map[string]any{"topic": req.Topic})
	}

	c := &Curriculum{
		ID:            newID("curriculum", 8),
		Title:         strOr(outline["title"], req.Topic),
		Description:   strOr(outline["description"], ""),
		Topic:         req.Topic,
		Difficulty:    req.Difficulty,
		Modules:       modules,
		AdaptivePaths: paths,
		CreatedAt:     s.now().UTC(),
	}
	s.log.Info("Curriculum generated", "curriculum_id", c.ID, "topic", req.Topic, "modules", len(modules), "lessons", total)
	return c, nil
}

// AssembleContentForTopic combines a generated lesson with external
// resources. Lesson elements that fail moderation are removed; unrelated
// resources are dropped.
func (s *Service) AssembleContentForTopic(ctx context.Context, topic string, difficulty Difficulty, userID string) (*Assembly, error) {
	difficulty = ParseDifficulty(string(difficulty))
	var (
		lesson    *Lesson
		resources map[retrieval.ContentType][]retrieval.Item
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		lesson, err = s.GenerateLesson(gctx, LessonRequest{Topic: topic, Difficulty: difficulty})
		return err
	})
	g.Go(func() error {
		if s.search != nil {
			resources = s.search.SearchAllSources(gctx, topic, nil, assemblyItemsPerType, true)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &Assembly{
		Topic:      lesson.Topic,
		Difficulty: difficulty,
		UserID:     userID,
		Resources:  make(map[retrieval.ContentType][]retrieval.Item, len(retrieval.AllTypes)),
		CreatedAt:  s.now().UTC(),
	}
	for _, typ := range retrieval.AllTypes {
		kept := []retrieval.Item{}
		for _, it := range resources[typ] {
			if it.Relevance != retrieval.Unrelated {
				kept = append(kept, it)
			}
		}
		out.Resources[typ] = kept
	}

	if s.moderator != nil {
		kept := lesson.Elements[:0]
		for _, el := range lesson.Elements {
			r, err := s.moderator.CheckText(ctx, el.Title+"\n"+el.Body, map[string]any{"content_type": "lesson_element", "user_id": userID})
			if err != nil {
				return nil, err
			}
			if !r.IsSafe {
				out.Removed++
				s.log.Warn("Removed unsafe lesson element", "lesson_id", lesson.ID, "element_id", el.ID, "reason", r.Reason)
				continue
			}
			kept = append(kept, el)
		}
		lesson.Elements = kept
	}
	out.Lesson = lesson
	return out, nil
}

// GenerateLearningPathway orders steps so that those addressing a weakness
// come first. Weaknesses no step covers get a review step of their own. When
// the model is unavailable a pathway is derived from the weaknesses alone.
func (s *Service) GenerateLearningPathway(ctx context.Context, userID, goal string, currentLevel Difficulty, weaknesses []string) (*Pathway, error) {
	goal = strings.TrimSpace(goal)
	if goal == "" {
		return nil, apierr.DataProcessing("goal is required", nil)
	}
	currentLevel = ParseDifficulty(string(currentLevel))
	weaknesses = dedupe(weaknesses)

	obj := degrade.Fallback(ctx, s.log, "learning_pathway", map[string]any(nil), func(ctx context.Context) (map[string]any, error) {
		return s.tieredGenerate(ctx, "learning_pathway", prompts.PromptLearningPathway, prompts.Input{
			Goal:          goal,
			CurrentLevel:  string(currentLevel),
			WeaknessesCSV: strings.Join(weaknesses, ", "),
		}, checkPathway)
	})

	steps := parseSteps(obj["steps"], currentLevel)
	if len(steps) == 0 {
		steps = []PathwayStep{{
			Topic:          goal,
			Description:    "Work toward: " + goal,
			Difficulty:     currentLevel,
			EstimatedHours: 2,
		}}
	}
	steps = weaknessesFirst(steps, weaknesses, currentLevel)

	p := &Pathway{
		ID:           newID("pathway", 8),
		UserID:       userID,
		Goal:         goal,
		Title:        strOr(obj["title"], "Path to "+goal),
		CurrentLevel: currentLevel,
		Steps:        steps,
		CreatedAt:    s.now().UTC(),
	}
	s.log.Info("Learning pathway generated", "pathway_id", p.ID, "user_id", userID, "steps", len(steps))
	return p, nil
}

func weaknessesFirst(steps []PathwayStep, weaknesses []string, level Difficulty) []PathwayStep {
	covered := map[string]bool{}
	var remedial, rest []PathwayStep
	for _, st := range steps {
		hit := false
		for _, w := range weaknesses {
			if addresses(st, w) {
				covered[strings.ToLower(w)] = true
				hit = true
			}
		}
		if hit {
			remedial = append(remedial, st)
		} else {
			rest = append(rest, st)
		}
	}
	var missing []PathwayStep
	for _, w := range weaknesses {
		if !covered[strings.ToLower(w)] {
			missing = append(missing, PathwayStep{
				Topic:          w,
				Description:    "Review the fundamentals of " + w,
				Difficulty:     level,
				EstimatedHours: 1,
				Addresses:      []string{w},
			})
		}
	}
	out := make([]PathwayStep, 0, len(steps)+len(missing))
	out = append(out, missing...)
	out = append(out, remedial...)
	out = append(out, rest...)
	for i := range out {
		out[i].Order = i + 1
	}
	return out
}

func addresses(st PathwayStep, weakness string) bool {
	w := strings.ToLower(weakness)
	for _, a := range st.Addresses {
		if strings.ToLower(a) == w {
			return true
		}
	}
	return strings.Contains(strings.ToLower(st.Topic), w)
}

func objectives(requested, generated []string, d Difficulty) []LearningObjective {
	all := dedupe(append(append([]string(nil), requested...), generated...))
	out := make([]LearningObjective, 0, len(all))
	for _, desc := range all {
		out = append(out, LearningObjective{ID: newID("objective", 8), Description: desc, Difficulty: d})
	}
	return out
}

func clamp(v, def, max int) int {
	if v <= 0 {
		return def
	}
	if v > max {
		return max
	}
	return v
}
