package avatar

import (
	"fmt"
	"strings"

	"github.com/yungbote/learnmate-backend/internal/platform/promptstyle"
)

const (
	TimeoutMessage = "I'm taking a bit longer than expected to think about that. Could you try asking again?"
	TroubleMessage = "I seem to be having some trouble processing that. Please try again in a moment."
)

var personaPrompts = map[Persona]string{
	PersonaTutor: "You are a patient, knowledgeable tutor. Explain concepts step by step, " +
		"check understanding with short questions and adapt to the learner's level.",
	PersonaCoach: "You are an encouraging learning coach. Help the learner set goals, " +
		"keep momentum and reflect on progress. Keep replies short and actionable.",
	PersonaFriend: "You are a friendly study buddy. Use a casual, warm tone and relatable examples " +
		"while staying accurate.",
	PersonaExpert: "You are a subject-matter expert. Give precise, well-structured answers " +
		"and mention important nuances and edge cases.",
}

func systemPrompt(p Persona, c *Context) string {
	base, ok := personaPrompts[p]
	if !ok {
		base = personaPrompts[PersonaTutor]
	}
	var b strings.Builder
	b.WriteString(base)
	if c != nil {
		if c.CurrentModule != "" {
			b.WriteString("\nThe learner is currently studying: " + c.CurrentModule + ".")
		}
		if c.LearningStyle != "" {
			b.WriteString("\nPreferred learning style: " + c.LearningStyle + ".")
		}
		if d := c.Difficulty(); d != "" {
			b.WriteString("\nPreferred difficulty: " + d + ".")
		}
		if len(c.Weaknesses) > 0 {
			b.WriteString("\nAreas the learner finds hard: " + strings.Join(c.Weaknesses, ", ") + ".")
		}
	}
	return promptstyle.ApplySystem(b.String(), promptstyle.ModeChat)
}

func motivationalPrompt(p Persona, c *Context) string {
	var b strings.Builder
	b.WriteString("You are a supportive motivational companion. Acknowledge how the learner feels, ")
	b.WriteString("remind them of the progress they have made and suggest one small next step.")
	if c != nil {
		if n := len(c.CompletedLearning); n > 0 {
			fmt.Fprintf(&b, "\nThe learner has completed %d learning activities so far.", n)
		}
		if len(c.LearningGoals) > 0 {
			b.WriteString("\nTheir goals: " + strings.Join(c.LearningGoals, ", ") + ".")
		}
	}
	if p == PersonaFriend {
		b.WriteString("\nUse a casual, warm tone.")
	}
	return promptstyle.ApplySystem(b.String(), promptstyle.ModeChat)
}
