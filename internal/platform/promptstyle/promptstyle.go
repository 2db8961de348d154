package promptstyle

import "strings"

const marker = "LEARNMATE_PROMPT_STYLE_V1"

const (
	ModeChat = "chat"
	ModeJSON = "json"
)

// ApplySystem prepends a short guidance block to a system prompt. Prompts
// that already carry the block are returned unchanged.
func ApplySystem(system string, mode string) string {
	base := strings.TrimSpace(system)
	if base == "" {
		return base
	}
	if strings.Contains(base, marker) {
		return base
	}
	mode = strings.ToLower(strings.TrimSpace(mode))

	var b strings.Builder
	b.WriteString(marker)
	b.WriteString("\nYou are part of LearnMate, a learning companion for students.")
	switch mode {
	case ModeJSON:
		b.WriteString("\nReturn a single JSON object that conforms to the schema and contains no extra keys.")
		b.WriteString("\nUse the provided inputs as grounding and do not invent citations.")
	default:
		b.WriteString("\nKeep answers accurate and age-appropriate.")
		b.WriteString("\nIf you are unsure, say so instead of guessing.")
	}
	b.WriteString("\n---\n")
	b.WriteString(base)
	return strings.TrimSpace(b.String())
}
