package prompts

// RegisterAll registers every prompt. Build calls it once on first use.
func RegisterAll() {
	topic := RequireNonEmpty("Topic", func(in Input) string { return in.Topic })

	RegisterSpec(Spec{
		Name:       PromptLessonOutline,
		Version:    1,
		SchemaName: "lesson_outline",
		Schema:     LessonOutlineSchema,
		System: `
You are an instructional designer planning a single self-paced lesson.
Keep the outline achievable in the requested time and pitched at the requested difficulty.
Return JSON only.`,
		User: `
TOPIC: {{.Topic}}
DIFFICULTY: {{.Difficulty}}
DURATION_MINUTES: {{.DurationMinutes}}
LEARNING_STYLE: {{.Style}}
REQUESTED_OBJECTIVES: {{.ObjectivesCSV}}
LEARNER (optional): {{.LearnerJSON}}

Rules:
- objectives: 2-5 measurable statements; keep every requested objective.
- sections: {{if eq .Tier "complex"}}4-6{{else}}2-3{{end}} sections, each with 1-3 element_kinds.
- prerequisites: short topic names, empty when none.`,
		Validators: []Validator{topic},
	})

	RegisterSpec(Spec{
		Name:       PromptLessonElements,
		Version:    1,
		SchemaName: "lesson_elements",
		Schema:     LessonElementsSchema,
		System: `
You write the content of one lesson section.
Bodies are markdown. Quiz elements describe the check in prose; questions are generated separately.
Return JSON only.`,
		User: `
TOPIC: {{.Topic}}
SECTION: {{.SectionTitle}}
DIFFICULTY: {{.Difficulty}}
LEARNING_STYLE: {{.Style}}
ELEMENT_KINDS (in order): {{.ElementKindsCSV}}

Produce at most {{.MaxElements}} elements using only the listed kinds.
{{if eq .Tier "complex"}}Include a worked example and a common misconception.{{else}}Keep each body under 150 words.{{end}}`,
		Validators: []Validator{
			topic,
			RequireNonEmpty("SectionTitle", func(in Input) string { return in.SectionTitle }),
		},
	})

	RegisterSpec(Spec{
		Name:       PromptQuizQuestions,
		Version:    1,
		SchemaName: "quiz_questions",
		Schema:     QuizQuestionsSchema,
		System: `
You write multiple-choice questions that check understanding, not recall of trivia.
Each question has exactly 4 options and one correct answer; correct_index is zero-based.
Return JSON only.`,
		User: `
TOPIC: {{.Topic}}
DIFFICULTY: {{.Difficulty}}
NUMBER_OF_QUESTIONS: {{.NumQuestions}}
FOCUS_AREAS (optional): {{.FocusCSV}}
{{if eq .Tier "complex"}}Explanations should say why each distractor is wrong.{{else}}Keep explanations to one sentence.{{end}}`,
		Validators: []Validator{
			topic,
			RequirePositive("NumQuestions", func(in Input) int { return in.NumQuestions }),
		},
	})

	RegisterSpec(Spec{
		Name:       PromptCurriculumOutline,
		Version:    1,
		SchemaName: "curriculum_outline",
		Schema:     CurriculumOutlineSchema,
		System: `
You plan multi-module curricula that progress from foundations to application.
Return JSON only.`,
		User: `
TOPIC: {{.Topic}}
DIFFICULTY: {{.Difficulty}}
MODULES: {{.NumModules}}
LESSONS_PER_MODULE: {{.LessonsPerModule}}
LEARNER (optional): {{.LearnerJSON}}

Rules:
- Exactly MODULES modules, each with exactly LESSONS_PER_MODULE topics.
- Module difficulty may step up or down from DIFFICULTY by at most one level.`,
		Validators: []Validator{
			topic,
			RequirePositive("NumModules", func(in Input) int { return in.NumModules }),
		},
	})

	RegisterSpec(Spec{
		Name:       PromptLearningPathway,
		Version:    1,
		SchemaName: "learning_pathway",
		Schema:     LearningPathwaySchema,
		System: `
You design personal learning pathways from a learner's current level to a goal.
Return JSON only.`,
		User: `
GOAL: {{.Goal}}
CURRENT_LEVEL: {{.CurrentLevel}}
WEAKNESSES: {{.WeaknessesCSV}}

Rules:
- {{if eq .Tier "complex"}}6-10{{else}}3-5{{end}} ordered steps.
- addresses: the weaknesses a step remediates, copied verbatim; empty when none.`,
		Validators: []Validator{
			RequireNonEmpty("Goal", func(in Input) string { return in.Goal }),
		},
	})
}
