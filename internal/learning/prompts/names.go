package prompts

type PromptName string

const (
	// Classroom
	PromptLessonOutline     PromptName = "lesson_outline"
	PromptLessonElements    PromptName = "lesson_elements"
	PromptQuizQuestions     PromptName = "quiz_questions"
	PromptCurriculumOutline PromptName = "curriculum_outline"
	PromptLearningPathway   PromptName = "learning_pathway"
)
