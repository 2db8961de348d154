package prompts

// Input is a superset of all fields any prompt might need.
// Missing fields render empty strings (templates use missingkey=zero).
type Input struct {
	Topic      string
	Difficulty string
	// Tier is "simple" or "complex" and controls output richness.
	Tier string

	// Lessons
	Style           string
	DurationMinutes int
	ObjectivesCSV   string
	SectionTitle    string
	ElementKindsCSV string
	MaxElements     int

	// Quizzes
	NumQuestions int
	FocusCSV     string

	// Curricula
	NumModules       int
	LessonsPerModule int

	// Pathways
	Goal          string
	CurrentLevel  string
	WeaknessesCSV string

	// LearnerJSON is an optional learner profile excerpt.
	LearnerJSON string
}
