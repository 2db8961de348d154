package prompts

var difficulties = []string{"beginner", "intermediate", "advanced"}

var elementKinds = []string{"text", "video", "image", "quiz", "exercise", "interactive", "audio", "code"}

func QuizQuestionSchema() map[string]any {
	return ObjectSchema(map[string]any{
		"text":          StringSchema(),
		"options":       StringArraySchema(),
		"correct_index": IntSchema(),
		"explanation":   StringSchema(),
	})
}

func QuizQuestionsSchema() map[string]any {
	return ObjectSchema(map[string]any{
		"questions": ArraySchema(QuizQuestionSchema()),
	})
}

func LessonOutlineSchema() map[string]any {
	return ObjectSchema(map[string]any{
		"title":         StringSchema(),
		"description":   StringSchema(),
		"objectives":    StringArraySchema(),
		"prerequisites": StringArraySchema(),
		"sections": ArraySchema(ObjectSchema(map[string]any{
			"title":         StringSchema(),
			"element_kinds": ArraySchema(EnumSchema(elementKinds...)),
		})),
	})
}

func LessonElementsSchema() map[string]any {
	return ObjectSchema(map[string]any{
		"elements": ArraySchema(ObjectSchema(map[string]any{
			"kind":             EnumSchema(elementKinds...),
			"title":            StringSchema(),
			"body":             StringSchema(),
			"duration_minutes": IntSchema(),
		})),
	})
}

func CurriculumOutlineSchema() map[string]any {
	return ObjectSchema(map[string]any{
		"title":       StringSchema(),
		"description": StringSchema(),
		"modules": ArraySchema(ObjectSchema(map[string]any{
			"title":       StringSchema(),
			"description": StringSchema(),
			"difficulty":  EnumSchema(difficulties...),
			"topics":      StringArraySchema(),
		})),
	})
}

func LearningPathwaySchema() map[string]any {
	return ObjectSchema(map[string]any{
		"title": StringSchema(),
		"steps": ArraySchema(ObjectSchema(map[string]any{
			"topic":           StringSchema(),
			"description":     StringSchema(),
			"difficulty":      EnumSchema(difficulties...),
			"estimated_hours": NumberSchema(),
			"addresses":       StringArraySchema(),
		})),
	})
}
